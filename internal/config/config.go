// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; empty until DB is wired.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production"). Controls gin mode.
	Env string `mapstructure:"APP_ENV"`
	// WebHost is the public base URL of the web frontend; used for post-auth redirects.
	WebHost string `mapstructure:"WEB_HOST"`

	// BlockedEmailDomains is a comma-separated list of blocked email domain patterns.
	// A leading dot blocks any domain ending with that literal suffix (".us");
	// a bare domain blocks itself and all subdomains ("example.com").
	BlockedEmailDomains string `mapstructure:"BLOCKED_EMAIL_DOMAINS"`

	// AdminEmail overrides admin email discovery for telemetry identity (OPENHANDS_ADMIN_EMAIL).
	AdminEmail string `mapstructure:"OPENHANDS_ADMIN_EMAIL"`
	// TelemetryCollectionIntervalDays is how often metrics are collected (default 7).
	TelemetryCollectionIntervalDays int `mapstructure:"TELEMETRY_COLLECTION_INTERVAL_DAYS"`
	// TelemetryUploadIntervalHours is how often pending metrics are uploaded (default 24).
	TelemetryUploadIntervalHours int `mapstructure:"TELEMETRY_UPLOAD_INTERVAL_HOURS"`
	// TelemetryWarningThresholdDays is the days-without-upload threshold for license warnings (default 4).
	TelemetryWarningThresholdDays int `mapstructure:"TELEMETRY_WARNING_THRESHOLD_DAYS"`

	// BillingAPIURL is the base URL of the external billing/licensing service.
	// Telemetry upload is a no-op when this or BillingPublishableKey is empty.
	BillingAPIURL string `mapstructure:"BILLING_API_URL"`
	// BillingPublishableKey is the write-only telemetry key for the billing service.
	// Safe to distribute: it can only create customers/instances and push metric values.
	BillingPublishableKey string `mapstructure:"BILLING_PUBLISHABLE_KEY"`
	// BillingAppSlug identifies this application to the billing service.
	BillingAppSlug string `mapstructure:"BILLING_APP_SLUG"`

	// KeycloakServerURL is the base URL of the Keycloak server (e.g. https://auth.example.com).
	KeycloakServerURL string `mapstructure:"KEYCLOAK_SERVER_URL"`
	// KeycloakRealm is the realm users authenticate against.
	KeycloakRealm string `mapstructure:"KEYCLOAK_REALM"`
	// KeycloakClientID is the OAuth client id for the callback flow.
	KeycloakClientID string `mapstructure:"KEYCLOAK_CLIENT_ID"`
	// KeycloakClientSecret is the OAuth client secret for the callback flow.
	KeycloakClientSecret string `mapstructure:"KEYCLOAK_CLIENT_SECRET"`
	// KeycloakRedirectURI is this service's callback URL registered with Keycloak
	// (e.g. https://api.example.com/oauth/keycloak/callback).
	KeycloakRedirectURI string `mapstructure:"KEYCLOAK_REDIRECT_URI"`

	// LiteLLMAPIURL is the base URL of the LiteLLM proxy admin API; empty disables provisioning.
	LiteLLMAPIURL string `mapstructure:"LITE_LLM_API_URL"`
	// LiteLLMAPIKey is the LiteLLM master key used for admin API calls.
	LiteLLMAPIKey string `mapstructure:"LITE_LLM_API_KEY"`
	// LiteLLMTeamID is the team new users are added to.
	LiteLLMTeamID string `mapstructure:"LITE_LLM_TEAM_ID"`

	// JWTSecret signs the session cookie (HS256). Required for the auth callback.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// SessionTTL is the session cookie lifetime (e.g. "168h").
	SessionTTL string `mapstructure:"SESSION_TTL"`

	// DeviceCodeTTL is the device authorization code lifetime (e.g. "10m").
	DeviceCodeTTL string `mapstructure:"DEVICE_CODE_TTL"`
	// DeviceCodeCleanupInterval is how often the worker purges expired device codes.
	DeviceCodeCleanupInterval string `mapstructure:"DEVICE_CODE_CLEANUP_INTERVAL"`
	// DeviceCodeCleanupBatchSize caps rows deleted per cleanup pass (default 100).
	DeviceCodeCleanupBatchSize int `mapstructure:"DEVICE_CODE_CLEANUP_BATCH_SIZE"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("WEB_HOST", "")
	v.SetDefault("BLOCKED_EMAIL_DOMAINS", "")
	v.SetDefault("OPENHANDS_ADMIN_EMAIL", "")
	v.SetDefault("TELEMETRY_COLLECTION_INTERVAL_DAYS", 7)
	v.SetDefault("TELEMETRY_UPLOAD_INTERVAL_HOURS", 24)
	v.SetDefault("TELEMETRY_WARNING_THRESHOLD_DAYS", 4)
	v.SetDefault("BILLING_API_URL", "")
	v.SetDefault("BILLING_PUBLISHABLE_KEY", "")
	v.SetDefault("BILLING_APP_SLUG", "openhands-enterprise")
	v.SetDefault("KEYCLOAK_SERVER_URL", "")
	v.SetDefault("KEYCLOAK_REALM", "openhands")
	v.SetDefault("KEYCLOAK_CLIENT_ID", "")
	v.SetDefault("KEYCLOAK_CLIENT_SECRET", "")
	v.SetDefault("KEYCLOAK_REDIRECT_URI", "")
	v.SetDefault("LITE_LLM_API_URL", "")
	v.SetDefault("LITE_LLM_API_KEY", "")
	v.SetDefault("LITE_LLM_TEAM_ID", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("SESSION_TTL", "168h") // 7d
	v.SetDefault("DEVICE_CODE_TTL", "10m")
	v.SetDefault("DEVICE_CODE_CLEANUP_INTERVAL", "1h")
	v.SetDefault("DEVICE_CODE_CLEANUP_BATCH_SIZE", 100)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.TelemetryCollectionIntervalDays <= 0 {
		return nil, errors.New("config: TELEMETRY_COLLECTION_INTERVAL_DAYS must be positive")
	}
	if cfg.TelemetryUploadIntervalHours <= 0 {
		return nil, errors.New("config: TELEMETRY_UPLOAD_INTERVAL_HOURS must be positive")
	}
	if cfg.TelemetryWarningThresholdDays <= 0 {
		return nil, errors.New("config: TELEMETRY_WARNING_THRESHOLD_DAYS must be positive")
	}

	if cfg.DeviceCodeCleanupBatchSize == 0 {
		cfg.DeviceCodeCleanupBatchSize = 100
	}
	if cfg.DeviceCodeCleanupBatchSize < 0 {
		return nil, errors.New("config: DEVICE_CODE_CLEANUP_BATCH_SIZE must not be negative")
	}

	return &cfg, nil
}

// MustLoad is Load for composition roots that cannot start without config.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// SessionTTLDuration parses SessionTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) SessionTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// DeviceCodeTTLDuration parses DeviceCodeTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) DeviceCodeTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.DeviceCodeTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// DeviceCodeCleanupIntervalDuration parses DeviceCodeCleanupInterval. Returns 1h if unset or invalid.
func (c *Config) DeviceCodeCleanupIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.DeviceCodeCleanupInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// BlockedEmailDomainsList returns blocked domain patterns from the comma-separated config.
// Used to decide if domain blocking is enabled (non-empty list) and to build the blocklist.
func (c *Config) BlockedEmailDomainsList() []string {
	if c == nil || c.BlockedEmailDomains == "" {
		return nil
	}
	parts := strings.Split(c.BlockedEmailDomains, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// BillingEnabled reports whether the external billing client can be constructed.
// Both the API URL and the publishable key must be configured.
func (c *Config) BillingEnabled() bool {
	return c != nil && c.BillingAPIURL != "" && c.BillingPublishableKey != ""
}
