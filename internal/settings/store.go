package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/bofstudio/pipeline-console/internal/config"
	"github.com/bofstudio/pipeline-console/internal/model"
)

// Store holds the operator settings. Every read returns the current value,
// so a credential change applies to the very next remote call.
type Store interface {
	Get(ctx context.Context) (model.Settings, error)
	Update(ctx context.Context, upd model.SettingsUpdate) (model.Settings, error)
	Reset(ctx context.Context) (model.Settings, error)
}

// Defaults builds the initial settings from configuration.
func Defaults(cfg *config.DefaultsConfig) model.Settings {
	return model.Settings{
		FalAPIKey:       cfg.FalAPIKey,
		ImagePrompt:     orDefault(cfg.ImagePrompt, config.DefaultImagePrompt),
		VideoPrompt:     orDefault(cfg.VideoPrompt, config.DefaultVideoPrompt),
		ImageModel:      orDefault(cfg.ImageModel, config.DefaultImageModel),
		VideoModel:      orDefault(cfg.VideoModel, config.DefaultVideoModel),
		ImageReviewMode: cfg.ImageReviewMode,
	}
}

// resetGenerationFields restores prompts and models, keeping the credential
// and the review mode.
func resetGenerationFields(s, defaults model.Settings) model.Settings {
	s.ImagePrompt = defaults.ImagePrompt
	s.VideoPrompt = defaults.VideoPrompt
	s.ImageModel = defaults.ImageModel
	s.VideoModel = defaults.VideoModel
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	current  model.Settings
	defaults model.Settings
}

func NewMemoryStore(defaults model.Settings) *MemoryStore {
	return &MemoryStore{current: defaults, defaults: defaults}
}

func (s *MemoryStore) Get(_ context.Context) (model.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *MemoryStore) Update(_ context.Context, upd model.SettingsUpdate) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = upd.Apply(s.current)
	return s.current, nil
}

func (s *MemoryStore) Reset(_ context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = resetGenerationFields(s.current, s.defaults)
	return s.current, nil
}

const redisKey = "settings:console"

// RedisStore persists settings as a JSON document so they survive restarts.
type RedisStore struct {
	redis    *redis.Client
	defaults model.Settings
	mu       sync.Mutex
}

func NewRedisStore(redisClient *redis.Client, defaults model.Settings) *RedisStore {
	return &RedisStore{redis: redisClient, defaults: defaults}
}

func (s *RedisStore) Get(ctx context.Context) (model.Settings, error) {
	data, err := s.redis.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s.defaults, nil
		}
		return model.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	var out model.Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return model.Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Update(ctx context.Context, upd model.SettingsUpdate) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Get(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	next := upd.Apply(cur)
	if err := s.save(ctx, next); err != nil {
		return model.Settings{}, err
	}
	return next, nil
}

func (s *RedisStore) Reset(ctx context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Get(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	next := resetGenerationFields(cur, s.defaults)
	if err := s.save(ctx, next); err != nil {
		return model.Settings{}, err
	}
	return next, nil
}

func (s *RedisStore) save(ctx context.Context, v model.Settings) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, redisKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
