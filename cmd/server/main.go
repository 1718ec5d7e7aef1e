package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bofstudio/pipeline-console/internal/client"
	"github.com/bofstudio/pipeline-console/internal/config"
	"github.com/bofstudio/pipeline-console/internal/handler"
	"github.com/bofstudio/pipeline-console/internal/logger"
	"github.com/bofstudio/pipeline-console/internal/middleware"
	"github.com/bofstudio/pipeline-console/internal/service"
	"github.com/bofstudio/pipeline-console/internal/settings"
	ws "github.com/bofstudio/pipeline-console/internal/websocket"
	"github.com/bofstudio/pipeline-console/internal/worker"
)

const (
	archiveTTL     = 24 * time.Hour
	mediaTimeout   = 2 * time.Minute
	maxMediaBytes  = 512 * 1024 * 1024 // 512MB per video
	archiveLinkFmt = "/api/exports/%s/archive"
)

// @title          Pipeline Console API
// @version        1.0
// @description    Operator console for the product media pipeline: batch monitoring, image review and video retrieval.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("production", "info")
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logger.New(cfg.Server.Env, cfg.Server.LogLevel)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	redisUp := redisClient.Ping(ctx).Err() == nil
	if !redisUp {
		log.Warn().Str("addr", cfg.Redis.Addr).Msg("Redis not available, exports and rate limits are degraded")
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	validate := validator.New()

	hub := ws.NewHub(log)
	go hub.Run()

	defaults := settings.Defaults(&cfg.Defaults)
	var settingsStore settings.Store
	switch cfg.Settings.Store {
	case "redis":
		settingsStore = settings.NewRedisStore(redisClient, defaults)
	default:
		settingsStore = settings.NewMemoryStore(defaults)
	}

	pipelineClient := client.NewPipelineClient(&cfg.Pipeline, func(ctx context.Context) (string, error) {
		s, err := settingsStore.Get(ctx)
		if err != nil {
			return "", err
		}
		return s.FalAPIKey, nil
	}, log)

	decisions := service.NewDecisionStore()
	poller := service.NewPoller(pipelineClient, decisions, cfg.Pipeline.PollInterval, log, service.WithPublisher(hub))
	poller.Start(ctx)

	pricing := service.DefaultPricing()
	reviewService := service.NewReviewService(pipelineClient, poller, decisions, settingsStore, log)
	batchService := service.NewBatchService(pipelineClient, poller, settingsStore, pricing, validate, log)
	galleryService := service.NewGalleryService(pipelineClient, cfg.Pipeline.FetchConcurrency, log)
	fetcher := client.NewHTTPMediaFetcher(mediaTimeout, maxMediaBytes)
	downloadService := service.NewDownloadService(pipelineClient, fetcher, galleryService, cfg.Pipeline.FetchConcurrency, log)

	// Archives go to R2 when configured, otherwise redis serves them back.
	var (
		archiveStore client.ArchiveStore
		redisArchive *client.RedisArchiveStore
		r2Ready      bool
	)
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Warn().Err(err).Msg("R2 client not initialized")
		} else {
			archiveStore = r2Client
			r2Ready = true
		}
	}
	if archiveStore == nil {
		log.Info().Msg("R2 storage not configured, archives are kept in redis")
		redisArchive = client.NewRedisArchiveStore(redisClient, archiveTTL, archiveLink)
		archiveStore = redisArchive
	}

	exportService := service.NewExportService(redisClient, asynqClient, galleryService)

	batchHandler := handler.NewBatchHandler(poller, batchService, pricing, settingsStore, validate)
	sessionHandler := handler.NewSessionHandler(poller, reviewService, decisions, pricing, settingsStore, validate)
	settingsHandler := handler.NewSettingsHandler(settingsStore, validate)
	galleryHandler := handler.NewGalleryHandler(galleryService, downloadService, validate)
	// A typed nil pointer would not compare equal to nil inside the handler.
	var archiveReader handler.ArchiveGetter
	if redisArchive != nil {
		archiveReader = redisArchive
	}
	exportHandler := handler.NewExportHandler(exportService, archiveReader, validate)

	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    25 * 1024 * 1024, // 25MB
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept",
		ExposeHeaders: handler.HeaderFileCount + "," + handler.HeaderWarnings + ",Content-Disposition",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		s, _ := settingsStore.Get(c.UserContext())
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"pipeline":   pipelineClient.IsConfigured(),
				"credential": s.HasCredential(),
				"redis":      redisClient.Ping(c.UserContext()).Err() == nil,
				"r2":         r2Ready,
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
	session.Post("/submit", rateLimiter.PipelineLimit(cfg.RateLimit.PipelinePerHour), sessionHandler.Submit)
	session.Post("/regenerate", rateLimiter.PipelineLimit(cfg.RateLimit.PipelinePerHour), sessionHandler.Regenerate)

	api.Post("/pipeline", rateLimiter.PipelineLimit(cfg.RateLimit.PipelinePerHour), batchHandler.StartPipeline)
	api.Get("/pricing", batchHandler.Pricing)

	api.Get("/settings", settingsHandler.Get)
	api.Put("/settings", settingsHandler.Update)
	api.Delete("/settings", settingsHandler.Reset)

	api.Get("/gallery", galleryHandler.List)
	api.Post("/gallery/download", rateLimiter.ExportLimit(cfg.RateLimit.ExportPerHour), galleryHandler.Download)
	api.Get("/videos/:batchId/:productId/download", batchHandler.VideoDownload)

	exports := api.Group("/exports")
	exports.Post("/", rateLimiter.ExportLimit(cfg.RateLimit.ExportPerHour), exportHandler.Start)
	exports.Get("/:jobId", exportHandler.Status)
	exports.Delete("/:jobId", exportHandler.Cancel)
	exports.Get("/:jobId/archive", exportHandler.Archive)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/batches", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, ws.TopicBatches)
	}))
	app.Get("/ws/batches/:batchId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, ws.BatchTopic(c.Params("batchId")))
	}))
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, ws.JobTopic(c.Params("jobId")))
	}))

	exportWorker := worker.NewExportWorker(exportService, downloadService, archiveStore, hub, log)
	if redisUp {
		go startWorkerServer(cfg, exportWorker, log)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server...")
		stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Str("backend", cfg.Pipeline.BaseURL).Msg("Server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}

// archiveLink points redis-held archives at the console's own endpoint.
func archiveLink(key string) string {
	jobID := strings.TrimSuffix(strings.TrimPrefix(key, "exports/"), ".zip")
	return fmt.Sprintf(archiveLinkFmt, jobID)
}

func startWorkerServer(cfg *config.Config, exportWorker *worker.ExportWorker, log zerolog.Logger) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				service.QueueExports: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeExport, exportWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Error().Err(err).Msg("Asynq worker error")
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
