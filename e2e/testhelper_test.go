package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/bofstudio/pipeline-console/internal/client"
	"github.com/bofstudio/pipeline-console/internal/config"
	"github.com/bofstudio/pipeline-console/internal/handler"
	"github.com/bofstudio/pipeline-console/internal/logger"
	"github.com/bofstudio/pipeline-console/internal/middleware"
	"github.com/bofstudio/pipeline-console/internal/model"
	"github.com/bofstudio/pipeline-console/internal/service"
	"github.com/bofstudio/pipeline-console/internal/settings"
	"github.com/bofstudio/pipeline-console/internal/worker"
)

const testFalKey = "fal-e2e-key-9876"

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	backend *fakeBackend
	poller  *service.Poller

	redis   *redis.Client
	exports *service.ExportService
	worker  *worker.ExportWorker
}

// setupApp creates a Fiber app wired like main.go against an in-process
// fake of the pipeline backend. The poll loops are not started; requests
// drive every fetch.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	backend := newFakeBackend(t)
	log := logger.Nop()
	validate := validator.New()

	store := settings.NewMemoryStore(settings.Defaults(&config.DefaultsConfig{FalAPIKey: testFalKey}))
	pipelineClient := client.NewPipelineClient(&config.PipelineConfig{
		BaseURL: backend.server.URL,
		Timeout: 5 * time.Second,
	}, func(ctx context.Context) (string, error) {
		s, err := store.Get(ctx)
		return s.FalAPIKey, err
	}, log)

	decisions := service.NewDecisionStore()
	poller := service.NewPoller(pipelineClient, decisions, time.Hour, log)
	pricing := service.DefaultPricing()
	reviewService := service.NewReviewService(pipelineClient, poller, decisions, store, log)
	batchService := service.NewBatchService(pipelineClient, poller, store, pricing, validate, log)
	galleryService := service.NewGalleryService(pipelineClient, 2, log)
	downloadService := service.NewDownloadService(pipelineClient, client.NewHTTPMediaFetcher(5*time.Second, 1<<20), galleryService, 2, log)

	// Redis (localhost, DB 15) backs exports only; those tests skip without it.
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: "localhost:6379", DB: 15})
	t.Cleanup(func() { asynqClient.Close() })
	exportService := service.NewExportService(redisClient, asynqClient, galleryService)
	archives := client.NewRedisArchiveStore(redisClient, time.Hour, func(key string) string {
		return "/api/" + strings.TrimSuffix(key, ".zip") + "/archive"
	})
	exportWorker := worker.NewExportWorker(exportService, downloadService, archives, nopNotifier{}, log)

	batchHandler := handler.NewBatchHandler(poller, batchService, pricing, store, validate)
	sessionHandler := handler.NewSessionHandler(poller, reviewService, decisions, pricing, store, validate)
	settingsHandler := handler.NewSettingsHandler(store, validate)
	galleryHandler := handler.NewGalleryHandler(galleryService, downloadService, validate)
	exportHandler := handler.NewExportHandler(exportService, archives, validate)

	// No redis client: the limiter lets everything through.
	rateLimiter := middleware.NewRateLimiter(nil, log)

	app := fiber.New(fiber.Config{
		BodyLimit: 25 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		s, _ := store.Get(c.UserContext())
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"pipeline":   pipelineClient.IsConfigured(),
				"credential": s.HasCredential(),
				"r2":         false,
			},
		})
	})

	api := app.Group("/api")

	batches := api.Group("/batches")
	batches.Get("/", batchHandler.List)
	batches.Post("/refresh", batchHandler.Refresh)
	batches.Post("/:batchId/open", sessionHandler.Open)
	batches.Post("/:batchId/cancel", batchHandler.Cancel)
	batches.Delete("/:batchId", batchHandler.Delete)

	session := api.Group("/session")
	session.Get("/", sessionHandler.Get)
	session.Delete("/", sessionHandler.Close)
	session.Post("/decisions", sessionHandler.Toggle)
	session.Post("/approve-all", sessionHandler.ApproveAll)
	session.Post("/submit", rateLimiter.PipelineLimit(10000), sessionHandler.Submit)
	session.Post("/regenerate", rateLimiter.PipelineLimit(10000), sessionHandler.Regenerate)

	api.Post("/pipeline", rateLimiter.PipelineLimit(10000), batchHandler.StartPipeline)
	api.Get("/pricing", batchHandler.Pricing)

	api.Get("/settings", settingsHandler.Get)
	api.Put("/settings", settingsHandler.Update)
	api.Delete("/settings", settingsHandler.Reset)

	api.Get("/gallery", galleryHandler.List)
	api.Post("/gallery/download", rateLimiter.ExportLimit(10000), galleryHandler.Download)
	api.Get("/videos/:batchId/:productId/download", batchHandler.VideoDownload)

	exports := api.Group("/exports")
	exports.Post("/", rateLimiter.ExportLimit(10000), exportHandler.Start)
	exports.Get("/:jobId", exportHandler.Status)
	exports.Delete("/:jobId", exportHandler.Cancel)
	exports.Get("/:jobId/archive", exportHandler.Archive)

	return &testApp{
		app:     app,
		backend: backend,
		poller:  poller,
		redis:   redisClient,
		exports: exportService,
		worker:  exportWorker,
	}
}

// requireRedis skips the test when the local redis is not running.
func (ta *testApp) requireRedis(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ta.redis.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { ta.redis.FlushDB(context.Background()) })
}

type nopNotifier struct{}

func (nopNotifier) BroadcastProgress(string, int, model.JobStatus, string) {}
func (nopNotifier) BroadcastComplete(string, interface{})                  {}
func (nopNotifier) BroadcastError(string, string, string)                  {}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode returns error.code from an error response body.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}
