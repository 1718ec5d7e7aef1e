package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bofstudio/pipeline-console/internal/model"
)

// GalleryItem is one finished video available for retrieval.
type GalleryItem struct {
	Key string `json:"key"`
	model.Product
}

// GallerySnapshot is the last loaded set of finished videos.
type GallerySnapshot struct {
	Items    []GalleryItem `json:"items"`
	LoadedAt time.Time     `json:"loadedAt"`
	Warnings []string      `json:"warnings,omitempty"`
}

// GalleryService collects completed products with a stored video across all
// batches. It also serves as the local catalog for archive entry names.
type GalleryService struct {
	api         BatchReader
	concurrency int
	log         zerolog.Logger

	mu    sync.RWMutex
	snap  GallerySnapshot
	names map[model.ProductKey]string
}

func NewGalleryService(api BatchReader, concurrency int, log zerolog.Logger) *GalleryService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &GalleryService{
		api:         api,
		concurrency: concurrency,
		log:         log.With().Str("component", "gallery").Logger(),
		snap:        GallerySnapshot{Items: []GalleryItem{}},
		names:       map[model.ProductKey]string{},
	}
}

// Load fetches every batch detail and replaces the catalog. A batch whose
// detail cannot be fetched is skipped with a warning.
func (s *GalleryService) Load(ctx context.Context) (GallerySnapshot, error) {
	batches, err := s.api.ListBatches(ctx)
	if err != nil {
		return GallerySnapshot{}, fmt.Errorf("failed to list batches: %w", err)
	}

	perBatch := make([][]model.Product, len(batches))
	failures := make([]error, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, b := range batches {
		g.Go(func() error {
			detail, err := s.api.GetBatch(gctx, b.BatchID)
			if err != nil {
				failures[i] = err
				return nil
			}
			for _, p := range detail.Products {
				if p.HasVideo() {
					if p.BatchID == "" {
						p.BatchID = b.BatchID
					}
					perBatch[i] = append(perBatch[i], p)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	snap := GallerySnapshot{Items: []GalleryItem{}, LoadedAt: time.Now()}
	names := make(map[model.ProductKey]string)
	for i, products := range perBatch {
		if failures[i] != nil {
			s.log.Warn().Err(failures[i]).Str("batchId", batches[i].BatchID).Msg("skipping batch in gallery")
			snap.Warnings = append(snap.Warnings, fmt.Sprintf("batch %s could not be loaded: %v", batches[i].BatchID, failures[i]))
			continue
		}
		for _, p := range products {
			snap.Items = append(snap.Items, GalleryItem{Key: p.Key().String(), Product: p})
			names[p.Key()] = p.ProductName
		}
	}

	s.mu.Lock()
	s.snap = snap
	s.names = names
	s.mu.Unlock()
	return snap, nil
}

// Snapshot returns the last loaded catalog.
func (s *GalleryService) Snapshot() GallerySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// ProductName looks up a product's display name in the loaded catalog.
func (s *GalleryService) ProductName(key model.ProductKey) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[key]
	return name, ok
}
