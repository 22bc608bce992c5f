// Package config loads and validates publisher configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. ESSAYPUB_STORAGE_BUCKET.
const EnvPrefix = "ESSAYPUB"

// Storage providers accepted by storage.provider.
const (
	ProviderS3     = "s3"
	ProviderGCS    = "gcs"
	ProviderLocal  = "local"
	ProviderMemory = "memory"
)

// Default source documents.
const (
	DefaultTemplateURL = "https://docs.google.com/document/d/e/2PACX-1vQA5iy-l8G6v90lncp-5ZE4ugE03oE3TvDJH44pDqnimm4wefn8aEaF5eCTxXV14b6yNmAknCYOxbka/pub"
	DefaultEssayURL    = "https://docs.google.com/document/d/e/2PACX-1vQ2jncgUpg-CQ4DzKl9PgqNeU5E_ZfoxJugms8XMX71T8HZfZsZDIGX9q_Ie6g6CD-Z5HScxNnR5Blw/pub"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Extract ExtractConfig `mapstructure:"extract"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig names the two documents a run merges.
type SourceConfig struct {
	TemplateURL string `mapstructure:"template_url"`
	EssayURL    string `mapstructure:"essay_url"`
	// Interactive requires the essay URL on the command line.
	Interactive bool `mapstructure:"interactive"`
}

// FetchConfig configures document retrieval.
type FetchConfig struct {
	UserAgent      string         `mapstructure:"user_agent"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds"`
	MaxRetries     int            `mapstructure:"max_retries"`
	RetryDelayMs   int            `mapstructure:"retry_delay_ms"`
	RateLimitRPS   float64        `mapstructure:"rate_limit_rps"`
	RateLimitBurst int            `mapstructure:"rate_limit_burst"`
	MaxBodyBytes   int            `mapstructure:"max_body_bytes"`
	Headless       HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures promotion of script-rendered documents to a headless browser.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// ExtractConfig names the elements stripped from the essay body.
type ExtractConfig struct {
	HeaderID string `mapstructure:"header_id"`
	FooterID string `mapstructure:"footer_id"`
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Provider      string `mapstructure:"provider"`
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	ContentType   string `mapstructure:"content_type"`
	LocalDir      string `mapstructure:"local_dir"`
	MaxRetries    int    `mapstructure:"max_retries"`
	RetryDelayMs  int    `mapstructure:"retry_delay_ms"`
}

// PubSubConfig holds metadata for publish notifications. An empty topic disables them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the end-of-run Pushgateway push.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// Span exporters supported by tracing.exporter.
const (
	TraceExporterNone       = "none"
	TraceExporterCloudTrace = "cloudtrace"
)

// TracingConfig toggles the OpenTelemetry tracer provider and its exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Exporter    string `mapstructure:"exporter"`
	ProjectID   string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.template_url", DefaultTemplateURL)
	v.SetDefault("source.essay_url", DefaultEssayURL)
	v.SetDefault("source.interactive", false)
	v.SetDefault("fetch.user_agent", "essaypub/0.1")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.retry_delay_ms", 10)
	v.SetDefault("fetch.rate_limit_rps", 0)
	v.SetDefault("fetch.rate_limit_burst", 1)
	v.SetDefault("fetch.max_body_bytes", 0)
	v.SetDefault("fetch.headless.enabled", false)
	v.SetDefault("fetch.headless.max_parallel", 2)
	v.SetDefault("fetch.headless.nav_timeout_seconds", 45)
	v.SetDefault("fetch.headless.promotion_threshold", 2048)
	v.SetDefault("extract.header_id", "header")
	v.SetDefault("extract.footer_id", "footer")
	v.SetDefault("storage.provider", ProviderS3)
	v.SetDefault("storage.bucket", "brlknd")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("storage.local_dir", "out")
	v.SetDefault("storage.max_retries", 3)
	v.SetDefault("storage.retry_delay_ms", 10)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", "essaypub")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "essaypub")
	v.SetDefault("tracing.exporter", TraceExporterNone)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Source.TemplateURL) == "" {
		return fmt.Errorf("source.template_url must be set")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Fetch.RetryDelayMs < 0 {
		return fmt.Errorf("fetch.retry_delay_ms must be >= 0")
	}
	if c.Fetch.RateLimitRPS < 0 {
		return fmt.Errorf("fetch.rate_limit_rps must be >= 0")
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return fmt.Errorf("fetch.max_body_bytes must be >= 0")
	}
	if c.Fetch.Headless.Enabled && c.Fetch.Headless.MaxParallel <= 0 {
		return fmt.Errorf("fetch.headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Storage.MaxRetries < 0 {
		return fmt.Errorf("storage.max_retries must be >= 0")
	}
	if c.Storage.RetryDelayMs < 0 {
		return fmt.Errorf("storage.retry_delay_ms must be >= 0")
	}
	switch c.Storage.Provider {
	case ProviderS3, ProviderGCS:
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return fmt.Errorf("storage.bucket must be set for provider %s", c.Storage.Provider)
		}
	case ProviderLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return fmt.Errorf("storage.local_dir must be set for provider local")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("storage.provider %q is not one of s3, gcs, local, memory", c.Storage.Provider)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	switch c.Tracing.Exporter {
	case "", TraceExporterNone, TraceExporterCloudTrace:
	default:
		return fmt.Errorf("tracing.exporter %q is not one of none, cloudtrace", c.Tracing.Exporter)
	}
	return nil
}

// FetchTimeout returns the per-request fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// FetchRetryDelay returns the fixed delay between fetch attempts.
func (c Config) FetchRetryDelay() time.Duration {
	return time.Duration(c.Fetch.RetryDelayMs) * time.Millisecond
}

// StorageRetryDelay returns the fixed delay between upload attempts.
func (c Config) StorageRetryDelay() time.Duration {
	return time.Duration(c.Storage.RetryDelayMs) * time.Millisecond
}
