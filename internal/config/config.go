// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Portal    PortalConfig    `mapstructure:"portal"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Render    RenderConfig    `mapstructure:"render"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PortalConfig holds the PNCP endpoints.
type PortalConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIURL  string `mapstructure:"api_url"`
}

// ExtractConfig governs the reconciliation pipeline defaults.
type ExtractConfig struct {
	MaxPages        int    `mapstructure:"max_pages"`
	PageSize        int    `mapstructure:"page_size"`
	MaxCandidates   int    `mapstructure:"max_candidates"`
	SaveAttachments bool   `mapstructure:"save_attachments"`
	PacingMs        int    `mapstructure:"pacing_ms"`
	UserAgent       string `mapstructure:"user_agent"`
}

// HTTPConfig configures HTTP client timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds         int `mapstructure:"timeout_seconds"`
	DownloadTimeoutSeconds int `mapstructure:"download_timeout_seconds"`
	MaxRetries             int `mapstructure:"max_retries"`
	BackoffInitialMs       int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs           int `mapstructure:"backoff_max_ms"`
}

// RenderConfig configures the headless rendering subsystem.
type RenderConfig struct {
	MaxConcurrency int     `mapstructure:"max_concurrency"`
	NavTimeoutSec  int     `mapstructure:"nav_timeout_seconds"`
	SettleMs       int     `mapstructure:"settle_ms"`
	DomainQPS      float64 `mapstructure:"domain_qps"`
}

// StorageConfig sets the attachment bucket and path prefix.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for progress-event publishing. Optional: an
// empty project disables the sink.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SchedulerConfig controls the daily automatic extraction.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CronSpec string `mapstructure:"cron_spec"`
	Timezone string `mapstructure:"timezone"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("portal.base_url", "https://pncp.gov.br")
	v.SetDefault("portal.api_url", "https://pncp.gov.br/api/pncp/v1")
	v.SetDefault("extract.max_pages", 3)
	v.SetDefault("extract.page_size", 25)
	v.SetDefault("extract.max_candidates", 30)
	v.SetDefault("extract.save_attachments", false)
	v.SetDefault("extract.pacing_ms", 200)
	v.SetDefault("extract.user_agent", "pncp-harvester/1.0")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.download_timeout_seconds", 30)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("render.max_concurrency", 1)
	v.SetDefault("render.nav_timeout_seconds", 30)
	v.SetDefault("render.settle_ms", 2000)
	v.SetDefault("render.domain_qps", 1.0)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "editais")
	v.SetDefault("db.table", "editais_completos")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron_spec", "0 6 * * *")
	v.SetDefault("scheduler.timezone", "America/Sao_Paulo")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Portal.BaseURL == "" || c.Portal.APIURL == "" {
		return fmt.Errorf("portal.base_url and portal.api_url are required")
	}
	if c.Extract.MaxPages <= 0 || c.Extract.PageSize <= 0 {
		return fmt.Errorf("extract.max_pages and extract.page_size must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Render.MaxConcurrency <= 0 {
		return fmt.Errorf("render.max_concurrency must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// HTTPTimeout returns the general request timeout as a Duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// DownloadTimeout returns the attachment download timeout as a Duration.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.HTTP.DownloadTimeoutSeconds) * time.Second
}

// Pacing returns the inter-candidate delay as a Duration.
func (c Config) Pacing() time.Duration {
	return time.Duration(c.Extract.PacingMs) * time.Millisecond
}
