package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Templates TemplatesConfig `yaml:"templates" mapstructure:"templates"`
	Worker    WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Downloads DownloadsConfig `yaml:"downloads" mapstructure:"downloads"`
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Seed      SeedConfig      `yaml:"seed" mapstructure:"seed"`
}

// ServerConfig configures the HTTP API listener and its static API key.
// An empty APIKey disables authentication.
type ServerConfig struct {
	Host          string `yaml:"host" mapstructure:"host"`
	Port          int    `yaml:"port" mapstructure:"port"`
	APIKey        string `yaml:"api_key" mapstructure:"api_key"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" mapstructure:"read_timeout_ms"`
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	DSN  string     `yaml:"dsn" mapstructure:"dsn"`
	Pool PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures Redis, used for API rate limiting and health checks.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// StorageConfig configures the object store holding run artifacts.
type StorageConfig struct {
	Endpoint             string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey            string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey            string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket               string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL               bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	PresignExpirySeconds int    `yaml:"presign_expiry_seconds" mapstructure:"presign_expiry_seconds"`
}

// EngineConfig configures the fetch engine.
type EngineConfig struct {
	Mode          string    `yaml:"mode" mapstructure:"mode"` // http, browser, auto
	UserAgent     string    `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutMs     int       `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	RespectRobots bool      `yaml:"respect_robots" mapstructure:"respect_robots"`
	Rod           RodConfig `yaml:"rod" mapstructure:"rod"`
}

// RodConfig configures the headless browser connection.
type RodConfig struct {
	ControlURL    string `yaml:"control_url" mapstructure:"control_url"`
	PageTimeoutMs int    `yaml:"page_timeout_ms" mapstructure:"page_timeout_ms"`
}

// PipelineConfig holds the content-cleaning tunables. Both thresholds
// are empirically tuned; the defaults match observed behavior but may
// be overridden per deployment.
type PipelineConfig struct {
	ContentFilterThreshold    float64 `yaml:"content_filter_threshold" mapstructure:"content_filter_threshold"`
	MinReductionRatio         float64 `yaml:"min_reduction_ratio" mapstructure:"min_reduction_ratio"`
	FallbackExtractionEnabled bool    `yaml:"fallback_extraction_enabled" mapstructure:"fallback_extraction_enabled"`
}

// LLMConfig holds defaults applied when a task does not specify its
// own provider, model, or credential.
type LLMConfig struct {
	DefaultProvider string `yaml:"default_provider" mapstructure:"default_provider"`
	DefaultModel    string `yaml:"default_model" mapstructure:"default_model"`
	APIKey          string `yaml:"api_key" mapstructure:"api_key"`
	TimeoutMs       int    `yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

// TemplatesConfig configures prompt/schema file references.
type TemplatesConfig struct {
	Dir              string `yaml:"dir" mapstructure:"dir"`
	DefaultPrompt    string `yaml:"default_prompt" mapstructure:"default_prompt"`
	DefaultPromptRef string `yaml:"default_prompt_ref" mapstructure:"default_prompt_ref"`
}

// WorkerConfig configures the run worker.
type WorkerConfig struct {
	Concurrency       int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxConcurrentURLs int `yaml:"max_concurrent_urls" mapstructure:"max_concurrent_urls"`
	PollIntervalMs    int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	RunTimeoutMs      int `yaml:"run_timeout_ms" mapstructure:"run_timeout_ms"`
}

// DownloadsConfig configures fallback resource downloads. Per-task
// settings override FallbackEnabled and MaxSizeMB.
type DownloadsConfig struct {
	FallbackEnabled bool `yaml:"fallback_enabled" mapstructure:"fallback_enabled"`
	MaxSizeMB       int  `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	TimeoutMs       int  `yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

// RetentionConfig configures TTL cleanup of old runs.
type RetentionConfig struct {
	Enabled                bool `yaml:"enabled" mapstructure:"enabled"`
	RunsDays               int  `yaml:"runs_days" mapstructure:"runs_days"`
	CleanupIntervalMinutes int  `yaml:"cleanup_interval_minutes" mapstructure:"cleanup_interval_minutes"`
}

// RateLimitConfig configures the fixed-window per-minute API rate
// limit. Zero disables limiting.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" mapstructure:"per_minute"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SeedConfig lists task definition files applied idempotently at startup.
type SeedConfig struct {
	Tasks []string `yaml:"tasks" mapstructure:"tasks"`
}

// Load reads configuration from an optional YAML file and
// DREDGE_-prefixed environment variables. A missing config file is not
// an error; every tunable has a default.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("DREDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout_ms", 30000)
	v.SetDefault("database.pool.max_conns", 10)
	v.SetDefault("database.pool.min_conns", 2)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("storage.bucket", "dredge")
	v.SetDefault("storage.presign_expiry_seconds", 3600)
	v.SetDefault("engine.mode", "auto")
	v.SetDefault("engine.user_agent", "dredge/1.0")
	v.SetDefault("engine.timeout_ms", 60000)
	v.SetDefault("engine.rod.page_timeout_ms", 60000)
	v.SetDefault("pipeline.content_filter_threshold", 0.48)
	v.SetDefault("pipeline.min_reduction_ratio", 0.05)
	v.SetDefault("pipeline.fallback_extraction_enabled", true)
	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.default_model", "gpt-4")
	v.SetDefault("llm.timeout_ms", 120000)
	v.SetDefault("templates.dir", "templates")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.max_concurrent_urls", 3)
	v.SetDefault("worker.poll_interval_ms", 2000)
	v.SetDefault("worker.run_timeout_ms", 3600000)
	v.SetDefault("downloads.fallback_enabled", false)
	v.SetDefault("downloads.max_size_mb", 10)
	v.SetDefault("downloads.timeout_ms", 30000)
	v.SetDefault("retention.runs_days", 30)
	v.SetDefault("retention.cleanup_interval_minutes", 60)
	v.SetDefault("rate_limit.per_minute", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional unless explicitly given)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger builds the process-global zap logger from LogConfig and
// installs it via zap.ReplaceGlobals.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
