package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Pipeline  PipelineConfig
	Defaults  DefaultsConfig
	Settings  SettingsConfig
	RateLimit RateLimitConfig
	R2        R2Config
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PipelineConfig describes the remote batch pipeline backend.
type PipelineConfig struct {
	BaseURL          string
	Timeout          time.Duration
	PollInterval     time.Duration
	FetchConcurrency int
}

// DefaultsConfig seeds the operator settings on first start.
type DefaultsConfig struct {
	FalAPIKey       string
	ImagePrompt     string
	VideoPrompt     string
	ImageModel      string
	VideoModel      string
	ImageReviewMode bool
}

type SettingsConfig struct {
	Store string // "memory" or "redis"
}

type RateLimitConfig struct {
	PipelinePerHour int
	ExportPerHour   int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	// Endpoint overrides the account endpoint for other S3-compatible stores.
	Endpoint        string
}

func Load() (*Config, error) {
	readSecret("REDIS_PASSWORD")
	readSecret("FAL_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("pipeline.base_url", "PIPELINE_BASE_URL")
	_ = v.BindEnv("pipeline.timeout", "PIPELINE_TIMEOUT")
	_ = v.BindEnv("pipeline.poll_interval", "PIPELINE_POLL_INTERVAL")
	_ = v.BindEnv("pipeline.fetch_concurrency", "PIPELINE_FETCH_CONCURRENCY")
	_ = v.BindEnv("defaults.fal_api_key", "FAL_KEY")
	_ = v.BindEnv("defaults.image_prompt", "DEFAULT_IMAGE_PROMPT")
	_ = v.BindEnv("defaults.video_prompt", "DEFAULT_VIDEO_PROMPT")
	_ = v.BindEnv("defaults.image_model", "DEFAULT_IMAGE_MODEL")
	_ = v.BindEnv("defaults.video_model", "DEFAULT_VIDEO_MODEL")
	_ = v.BindEnv("defaults.image_review_mode", "IMAGE_REVIEW_MODE")
	_ = v.BindEnv("settings.store", "SETTINGS_STORE")
	_ = v.BindEnv("ratelimit.pipeline_per_hour", "RATELIMIT_PIPELINE_PER_HOUR")
	_ = v.BindEnv("ratelimit.export_per_hour", "RATELIMIT_EXPORT_PER_HOUR")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("r2.endpoint", "R2_ENDPOINT")

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("pipeline.base_url", "http://localhost:3001")
	v.SetDefault("pipeline.timeout", 60*time.Second)
	v.SetDefault("pipeline.poll_interval", 5*time.Second)
	v.SetDefault("pipeline.fetch_concurrency", 4)

	v.SetDefault("defaults.image_prompt", DefaultImagePrompt)
	v.SetDefault("defaults.video_prompt", DefaultVideoPrompt)
	v.SetDefault("defaults.image_model", DefaultImageModel)
	v.SetDefault("defaults.video_model", DefaultVideoModel)
	v.SetDefault("defaults.image_review_mode", false)

	v.SetDefault("settings.store", "memory")

	v.SetDefault("ratelimit.pipeline_per_hour", 60)
	v.SetDefault("ratelimit.export_per_hour", 20)

	// Config file is optional
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Pipeline: PipelineConfig{
			BaseURL:          strings.TrimRight(v.GetString("pipeline.base_url"), "/"),
			Timeout:          v.GetDuration("pipeline.timeout"),
			PollInterval:     v.GetDuration("pipeline.poll_interval"),
			FetchConcurrency: v.GetInt("pipeline.fetch_concurrency"),
		},
		Defaults: DefaultsConfig{
			FalAPIKey:       v.GetString("defaults.fal_api_key"),
			ImagePrompt:     v.GetString("defaults.image_prompt"),
			VideoPrompt:     v.GetString("defaults.video_prompt"),
			ImageModel:      v.GetString("defaults.image_model"),
			VideoModel:      v.GetString("defaults.video_model"),
			ImageReviewMode: v.GetBool("defaults.image_review_mode"),
		},
		Settings: SettingsConfig{
			Store: strings.ToLower(v.GetString("settings.store")),
		},
		RateLimit: RateLimitConfig{
			PipelinePerHour: v.GetInt("ratelimit.pipeline_per_hour"),
			ExportPerHour:   v.GetInt("ratelimit.export_per_hour"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
			Endpoint:        v.GetString("r2.endpoint"),
		},
	}

	if cfg.Pipeline.PollInterval <= 0 {
		cfg.Pipeline.PollInterval = 5 * time.Second
	}
	if cfg.Pipeline.FetchConcurrency <= 0 {
		cfg.Pipeline.FetchConcurrency = 1
	}

	return cfg, nil
}
