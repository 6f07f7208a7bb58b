package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Hunter    HunterConfig    `yaml:"hunter" mapstructure:"hunter"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	SMTP      SMTPConfig      `yaml:"smtp" mapstructure:"smtp"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Monitor   MonitorConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	DraftModel   string `yaml:"draft_model" mapstructure:"draft_model"`
	ProfileModel string `yaml:"profile_model" mapstructure:"profile_model"`
	MaxTokens    int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// HunterConfig holds Hunter domain-search settings.
type HunterConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	Limit   int     `yaml:"limit" mapstructure:"limit"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// RedisConfig configures the shared contact reservation backend. An empty
// Addr keeps reservations in process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// NotionConfig holds the manual review queue settings.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
}

// OCRConfig configures resume PDF text extraction.
type OCRConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// PipelineConfig configures the regeneration loop and session behavior.
type PipelineConfig struct {
	MaxAttempts          int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	ScoreThreshold       float64 `yaml:"score_threshold" mapstructure:"score_threshold"`
	CooldownMinutes      int     `yaml:"cooldown_minutes" mapstructure:"cooldown_minutes"`
	GeneratorTimeoutSecs int     `yaml:"generator_timeout_secs" mapstructure:"generator_timeout_secs"`
	ScorerTimeoutSecs    int     `yaml:"scorer_timeout_secs" mapstructure:"scorer_timeout_secs"`
	RolesFile            string  `yaml:"roles_file" mapstructure:"roles_file"`
	Transport            string  `yaml:"transport" mapstructure:"transport"`
}

// Cooldown returns the contact reservation window.
func (p PipelineConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownMinutes) * time.Minute
}

// GeneratorTimeout returns the per-call draft generation timeout.
func (p PipelineConfig) GeneratorTimeout() time.Duration {
	return time.Duration(p.GeneratorTimeoutSecs) * time.Second
}

// ScorerTimeout returns the per-call scoring timeout.
func (p PipelineConfig) ScorerTimeout() time.Duration {
	return time.Duration(p.ScorerTimeoutSecs) * time.Second
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions" mapstructure:"max_concurrent_sessions"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitorConfig configures outcome alerting. An empty WebhookURL disables
// the background checker; the snapshot endpoint still works.
type MonitorConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold     float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	ExhaustedRateThreshold float64 `yaml:"exhausted_rate_threshold" mapstructure:"exhausted_rate_threshold"`
	MinSessions            int     `yaml:"min_sessions" mapstructure:"min_sessions"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	AlertCooldownSecs      int     `yaml:"alert_cooldown_secs" mapstructure:"alert_cooldown_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COLDREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults must be bound explicitly to be seen by Unmarshal.
	for _, key := range []string{
		"anthropic.key", "jina.key", "hunter.key",
		"notion.token", "notion.review_db",
		"redis.addr", "redis.password",
		"smtp.host", "smtp.username", "smtp.password", "smtp.from",
		"pipeline.roles_file", "monitoring.webhook_url",
	} {
		_ = v.BindEnv(key)
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "coldreach.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent_sessions", 5)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.score_threshold", 0.6)
	v.SetDefault("pipeline.cooldown_minutes", 30)
	v.SetDefault("pipeline.generator_timeout_secs", 60)
	v.SetDefault("pipeline.scorer_timeout_secs", 15)
	v.SetDefault("pipeline.transport", "log")
	v.SetDefault("anthropic.draft_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.profile_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("hunter.limit", 5)
	v.SetDefault("hunter.rps", 5)
	v.SetDefault("redis.prefix", "coldreach:contact")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("monitoring.error_rate_threshold", 0.2)
	v.SetDefault("monitoring.exhausted_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_sessions", 5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.alert_cooldown_secs", 3600)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given mode ("run" or "serve").
// Problems are collected and reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.MaxAttempts < 1 || c.Pipeline.MaxAttempts > 10 {
		errs = append(errs, "pipeline.max_attempts must be between 1 and 10")
	}
	if c.Pipeline.ScoreThreshold < 0 || c.Pipeline.ScoreThreshold > 1 {
		errs = append(errs, "pipeline.score_threshold must be in [0,1]")
	}
	if c.Pipeline.CooldownMinutes < 0 {
		errs = append(errs, "pipeline.cooldown_minutes must be >= 0")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	switch c.Pipeline.Transport {
	case "log":
	case "smtp":
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			errs = append(errs, "smtp.host and smtp.from are required for the smtp transport")
		}
	default:
		errs = append(errs, fmt.Sprintf("pipeline.transport %q is not supported", c.Pipeline.Transport))
	}
	if c.Batch.MaxConcurrentSessions < 1 || c.Batch.MaxConcurrentSessions > 50 {
		errs = append(errs, "batch.max_concurrent_sessions must be between 1 and 50")
	}
	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if mode == "serve" && c.Monitor.WebhookURL != "" {
		for name, v := range map[string]float64{
			"monitoring.error_rate_threshold":     c.Monitor.ErrorRateThreshold,
			"monitoring.exhausted_rate_threshold": c.Monitor.ExhaustedRateThreshold,
		} {
			if v < 0 || v > 1 {
				errs = append(errs, name+" must be in [0,1]")
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
