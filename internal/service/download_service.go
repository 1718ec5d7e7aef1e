package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bofstudio/pipeline-console/internal/client"
	"github.com/bofstudio/pipeline-console/internal/model"
	"github.com/bofstudio/pipeline-console/pkg/archive"
)

// ErrNothingFetched is returned when every fetch of a multi-file retrieval
// failed.
var ErrNothingFetched = errors.New("none of the selected videos could be downloaded")

const videoExt = ".mp4"

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// URLResolver resolves stored videos to signed download URLs in one call.
type URLResolver interface {
	GetDownloadURLs(ctx context.Context, keys []model.ProductKey) ([]model.DownloadURL, error)
}

// NameLookup finds the display name of a product known locally.
type NameLookup interface {
	ProductName(key model.ProductKey) (string, bool)
}

// ProgressFunc is told how many of total fetches have finished.
type ProgressFunc func(done, total int)

// DownloadService turns a selection of finished videos into either a direct
// link or one zip archive.
type DownloadService struct {
	resolver    URLResolver
	fetcher     client.MediaFetcher
	names       NameLookup
	concurrency int
	now         func() time.Time
	log         zerolog.Logger
}

func NewDownloadService(resolver URLResolver, fetcher client.MediaFetcher, names NameLookup, concurrency int, log zerolog.Logger) *DownloadService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &DownloadService{
		resolver:    resolver,
		fetcher:     fetcher,
		names:       names,
		concurrency: concurrency,
		now:         time.Now,
		log:         log.With().Str("component", "download").Logger(),
	}
}

// WithNames returns a copy of s that names archive entries from names.
func (s *DownloadService) WithNames(names NameLookup) *DownloadService {
	c := *s
	c.names = names
	return &c
}

// Resolve returns the signed URLs for keys.
func (s *DownloadService) Resolve(ctx context.Context, keys []model.ProductKey) ([]model.DownloadURL, error) {
	if len(keys) == 0 {
		return nil, ErrEmptySelection
	}
	urls, err := s.resolver.GetDownloadURLs(ctx, dedupeKeys(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve download URLs: %w", err)
	}
	if len(urls) == 0 {
		return nil, ErrNothingResolved
	}
	return urls, nil
}

// Retrieve resolves keys and either returns the single URL for direct
// navigation or fetches every URL and packs the results into an archive.
func (s *DownloadService) Retrieve(ctx context.Context, keys []model.ProductKey) (*model.DownloadResult, error) {
	urls, err := s.Resolve(ctx, keys)
	if err != nil {
		return nil, err
	}
	missing := s.Unresolved(keys, urls)
	if len(urls) == 1 {
		return &model.DownloadResult{RedirectURL: urls[0].DownloadURL, FileCount: 1, Warnings: missing}, nil
	}
	result, err := s.BuildArchive(ctx, urls, nil)
	if result != nil {
		result.Warnings = append(missing, result.Warnings...)
	}
	return result, err
}

// Unresolved returns one warning for every selected key the backend returned
// no URL for.
func (s *DownloadService) Unresolved(keys []model.ProductKey, urls []model.DownloadURL) []string {
	resolved := make(map[model.ProductKey]bool, len(urls))
	for _, u := range urls {
		resolved[model.ProductKey{BatchID: u.BatchID, ProductID: u.ProductID}] = true
	}
	var warnings []string
	for _, k := range dedupeKeys(keys) {
		if resolved[k] {
			continue
		}
		s.log.Warn().Str("batchId", k.BatchID).Str("productId", k.ProductID).Msg("no download URL returned for selected video")
		warnings = append(warnings, fmt.Sprintf("no download URL for %s", k.String()))
	}
	return warnings
}

// BuildArchive fetches each URL and zips the successful ones in resolution
// order. Each failed fetch becomes a warning instead of an error.
func (s *DownloadService) BuildArchive(ctx context.Context, urls []model.DownloadURL, progress ProgressFunc) (*model.DownloadResult, error) {
	data := make([][]byte, len(urls))
	errs := make([]error, len(urls))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			data[i], errs[i] = s.fetcher.Fetch(gctx, u.DownloadURL)
			if progress != nil {
				mu.Lock()
				done++
				n := done
				mu.Unlock()
				progress(n, len(urls))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &model.DownloadResult{}
	used := make(map[string]int)
	var entries []archive.Entry
	for i, u := range urls {
		if errs[i] != nil {
			s.log.Warn().Err(errs[i]).Str("batchId", u.BatchID).Str("productId", u.ProductID).Msg("skipping video that failed to download")
			result.Warnings = append(result.Warnings, fmt.Sprintf("failed to download %s: %v", describe(u), errs[i]))
			continue
		}
		entries = append(entries, archive.Entry{
			Name: uniqueName(used, s.entryName(u)),
			Data: data[i],
		})
	}
	if len(entries) == 0 {
		return result, ErrNothingFetched
	}

	now := s.now()
	zipped, err := archive.Zip(entries, now)
	if err != nil {
		return nil, err
	}

	result.Archive = zipped
	result.ArchiveName = ArchiveName(now)
	result.FileCount = len(entries)
	return result, nil
}

// ArchiveName is the timestamped archive file name.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("product-videos-%d.zip", t.UnixMilli())
}

func (s *DownloadService) entryName(u model.DownloadURL) string {
	key := model.ProductKey{BatchID: u.BatchID, ProductID: u.ProductID}
	if s.names != nil {
		if name, ok := s.names.ProductName(key); ok && name != "" {
			return SanitizeName(name) + videoExt
		}
	}
	return u.ProductID + videoExt
}

// SanitizeName replaces every character outside [a-zA-Z0-9] with "_".
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

func uniqueName(used map[string]int, name string) string {
	used[name]++
	n := used[name]
	if n == 1 {
		return name
	}
	ext := path.Ext(name)
	candidate := fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
	// A generated name may collide with a real one further down the list.
	for used[candidate] > 0 {
		n++
		candidate = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
	}
	used[candidate] = 1
	return candidate
}

func describe(u model.DownloadURL) string {
	if u.S3Key != "" {
		return u.S3Key
	}
	return u.BatchID + "/" + u.ProductID
}

func dedupeKeys(keys []model.ProductKey) []model.ProductKey {
	seen := make(map[model.ProductKey]bool, len(keys))
	out := make([]model.ProductKey, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
