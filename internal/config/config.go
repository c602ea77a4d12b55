// Package config loads and validates directory configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. DIRECTORY_AIRTABLE_VIEW.
const EnvPrefix = "DIRECTORY"

// Image host providers.
const (
	ProviderImgBB  = "imgbb"
	ProviderGCS    = "gcs"
	ProviderLocal  = "local"
	ProviderMemory = "memory"
)

// Event publisher providers.
const (
	PublisherPubSub = "pubsub"
	PublisherMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Airtable  AirtableConfig  `mapstructure:"airtable"`
	Lookup    LookupConfig    `mapstructure:"lookup"`
	ImageHost ImageHostConfig `mapstructure:"imagehost"`
	Backfill  BackfillConfig  `mapstructure:"backfill"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// AirtableConfig points at the product table.
type AirtableConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	BaseID            string  `mapstructure:"base_id"`
	TableName         string  `mapstructure:"table_name"`
	View              string  `mapstructure:"view"`
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
}

// LookupConfig configures the logo lookup service.
type LookupConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// ImageHostConfig selects where logos are re-hosted.
type ImageHostConfig struct {
	Provider      string      `mapstructure:"provider"`
	Prefix        string      `mapstructure:"prefix"`
	PublicBaseURL string      `mapstructure:"public_base_url"`
	ImgBB         ImgBBConfig `mapstructure:"imgbb"`
	GCS           GCSConfig   `mapstructure:"gcs"`
	Local         LocalConfig `mapstructure:"local"`
}

// ImgBBConfig holds ImgBB credentials.
type ImgBBConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// GCSConfig names the bucket logos are written to.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// LocalConfig names the directory logos are written to.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// BackfillConfig tunes the logo backfill job.
type BackfillConfig struct {
	WebsiteField            string `mapstructure:"website_field"`
	LogoField               string `mapstructure:"logo_field"`
	PacingMs                int    `mapstructure:"pacing_ms"`
	RateLimitBackoffSeconds int    `mapstructure:"rate_limit_backoff_seconds"`
	DryRun                  bool   `mapstructure:"dry_run"`
}

// DBConfig controls access to the audit database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PubSubConfig holds metadata for logo-updated notifications.
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the Pushgateway used by batch runs.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// envAliases accepts the unprefixed variable names the frontend build already uses.
var envAliases = map[string][]string{
	"airtable.api_key":        {"AIRTABLE_API_KEY", "REACT_APP_AIRTABLE_API_KEY"},
	"airtable.base_id":        {"AIRTABLE_BASE_ID", "REACT_APP_AIRTABLE_BASE_ID"},
	"airtable.table_name":     {"AIRTABLE_TABLE_NAME", "REACT_APP_AIRTABLE_TABLE_NAME"},
	"imagehost.imgbb.api_key": {"IMGBB_API_KEY"},
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindAliases(v); err != nil {
		return Config{}, err
	}

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

func bindAliases(v *viper.Viper) error {
	for key, aliases := range envAliases {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("airtable.view", "Grid view")
	v.SetDefault("airtable.base_url", "https://api.airtable.com/v0")
	v.SetDefault("airtable.requests_per_second", 5)
	v.SetDefault("airtable.timeout_seconds", 30)
	v.SetDefault("lookup.base_url", "https://logo.clearbit.com")
	v.SetDefault("lookup.timeout_seconds", 10)
	v.SetDefault("lookup.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("imagehost.provider", ProviderImgBB)
	v.SetDefault("imagehost.prefix", "logos")
	v.SetDefault("imagehost.public_base_url", "")
	v.SetDefault("imagehost.imgbb.endpoint", "https://api.imgbb.com/1/upload")
	v.SetDefault("imagehost.gcs.bucket", "")
	v.SetDefault("imagehost.local.base_dir", "")
	v.SetDefault("backfill.website_field", "Website")
	v.SetDefault("backfill.logo_field", "Logo")
	v.SetDefault("backfill.pacing_ms", 200)
	v.SetDefault("backfill.rate_limit_backoff_seconds", 5)
	v.SetDefault("backfill.dry_run", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "backfill_outcomes")
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("pubsub.provider", PublisherPubSub)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", "logo_backfill")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits shared by every command.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Airtable.APIKey == "" {
		return fmt.Errorf("airtable.api_key is required")
	}
	if c.Airtable.BaseID == "" {
		return fmt.Errorf("airtable.base_id is required")
	}
	if c.Airtable.TableName == "" {
		return fmt.Errorf("airtable.table_name is required")
	}
	if c.Airtable.RequestsPerSecond < 0 {
		return fmt.Errorf("airtable.requests_per_second must be >= 0")
	}
	if c.Backfill.PacingMs < 0 {
		return fmt.Errorf("backfill.pacing_ms must be >= 0")
	}
	if c.Backfill.RateLimitBackoffSeconds < 0 {
		return fmt.Errorf("backfill.rate_limit_backoff_seconds must be >= 0")
	}
	switch c.PubSub.Provider {
	case PublisherPubSub:
		if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id is required when pubsub.topic_name is set")
		}
	case PublisherMemory:
	default:
		return fmt.Errorf("unknown pubsub.provider %q", c.PubSub.Provider)
	}
	return nil
}

// ValidateImageHost checks the settings the backfill command needs to re-host logos.
func (c Config) ValidateImageHost() error {
	switch c.ImageHost.Provider {
	case ProviderImgBB:
		if c.ImageHost.ImgBB.APIKey == "" {
			return fmt.Errorf("imagehost.imgbb.api_key is required for the imgbb provider")
		}
	case ProviderGCS:
		if c.ImageHost.GCS.Bucket == "" {
			return fmt.Errorf("imagehost.gcs.bucket is required for the gcs provider")
		}
	case ProviderLocal:
		if c.ImageHost.Local.BaseDir == "" {
			return fmt.Errorf("imagehost.local.base_dir is required for the local provider")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("unknown imagehost.provider %q", c.ImageHost.Provider)
	}
	return nil
}

// Pacing is the pause after each processed record.
func (c Config) Pacing() time.Duration {
	return time.Duration(c.Backfill.PacingMs) * time.Millisecond
}

// RateLimitBackoff is the pause after a rate-limited record.
func (c Config) RateLimitBackoff() time.Duration {
	return time.Duration(c.Backfill.RateLimitBackoffSeconds) * time.Second
}

// AirtableTimeout bounds each Airtable request.
func (c Config) AirtableTimeout() time.Duration {
	return time.Duration(c.Airtable.TimeoutSeconds) * time.Second
}

// LookupTimeout bounds each logo lookup.
func (c Config) LookupTimeout() time.Duration {
	return time.Duration(c.Lookup.TimeoutSeconds) * time.Second
}
