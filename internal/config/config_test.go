package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.TelemetryCollectionIntervalDays != 7 {
		t.Errorf("TelemetryCollectionIntervalDays = %d, want 7", cfg.TelemetryCollectionIntervalDays)
	}
	if cfg.TelemetryUploadIntervalHours != 24 {
		t.Errorf("TelemetryUploadIntervalHours = %d, want 24", cfg.TelemetryUploadIntervalHours)
	}
	if cfg.TelemetryWarningThresholdDays != 4 {
		t.Errorf("TelemetryWarningThresholdDays = %d, want 4", cfg.TelemetryWarningThresholdDays)
	}
	if cfg.BillingAppSlug != "openhands-enterprise" {
		t.Errorf("BillingAppSlug = %q, want %q", cfg.BillingAppSlug, "openhands-enterprise")
	}
	if cfg.KeycloakRealm != "openhands" {
		t.Errorf("KeycloakRealm = %q, want %q", cfg.KeycloakRealm, "openhands")
	}
	if cfg.DeviceCodeCleanupBatchSize != 100 {
		t.Errorf("DeviceCodeCleanupBatchSize = %d, want 100", cfg.DeviceCodeCleanupBatchSize)
	}
	if cfg.AdminEmail != "" {
		t.Errorf("AdminEmail = %q, want empty", cfg.AdminEmail)
	}
	if cfg.BillingEnabled() {
		t.Error("BillingEnabled should be false with no billing config")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("TELEMETRY_COLLECTION_INTERVAL_DAYS", "14")
	os.Setenv("TELEMETRY_UPLOAD_INTERVAL_HOURS", "12")
	os.Setenv("OPENHANDS_ADMIN_EMAIL", "admin@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.TelemetryCollectionIntervalDays != 14 {
		t.Errorf("TelemetryCollectionIntervalDays = %d, want 14", cfg.TelemetryCollectionIntervalDays)
	}
	if cfg.TelemetryUploadIntervalHours != 12 {
		t.Errorf("TelemetryUploadIntervalHours = %d, want 12", cfg.TelemetryUploadIntervalHours)
	}
	if cfg.AdminEmail != "admin@example.com" {
		t.Errorf("AdminEmail = %q, want %q", cfg.AdminEmail, "admin@example.com")
	}
}

func TestLoad_InvalidIntervals(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{"zero collection days", "TELEMETRY_COLLECTION_INTERVAL_DAYS", "0"},
		{"negative collection days", "TELEMETRY_COLLECTION_INTERVAL_DAYS", "-1"},
		{"zero upload hours", "TELEMETRY_UPLOAD_INTERVAL_HOURS", "0"},
		{"negative upload hours", "TELEMETRY_UPLOAD_INTERVAL_HOURS", "-3"},
		{"zero warning days", "TELEMETRY_WARNING_THRESHOLD_DAYS", "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("HTTP_ADDR", ":8080")
			os.Setenv(tc.key, tc.value)

			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load with %s=%s should return error", tc.key, tc.value)
			}
			if cfg != nil {
				t.Error("Load should return nil config on error")
			}
		})
	}
}

func TestLoad_BillingEnabled(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("BILLING_API_URL", "https://billing.example.com")
	os.Setenv("BILLING_PUBLISHABLE_KEY", "pk_test_123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.BillingEnabled() {
		t.Error("BillingEnabled should be true when URL and key are set")
	}
}

func TestLoad_BillingDisabledWithoutKey(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("BILLING_API_URL", "https://billing.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BillingEnabled() {
		t.Error("BillingEnabled should be false without a publishable key")
	}
}

func TestBlockedEmailDomainsList(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "example.com", []string{"example.com"}},
		{"multiple", ".us,openhands.dev", []string{".us", "openhands.dev"}},
		{"whitespace", " .us , openhands.dev ", []string{".us", "openhands.dev"}},
		{"trailing comma", "example.com,", []string{"example.com"}},
		{"only commas", ",,,", []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("HTTP_ADDR", ":8080")
			os.Setenv("BLOCKED_EMAIL_DOMAINS", tc.value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			got := cfg.BlockedEmailDomainsList()
			if len(got) != len(tc.want) {
				t.Fatalf("BlockedEmailDomainsList = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("BlockedEmailDomainsList[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestBlockedEmailDomainsList_NilConfig(t *testing.T) {
	var cfg *Config
	if got := cfg.BlockedEmailDomainsList(); got != nil {
		t.Errorf("nil config BlockedEmailDomainsList = %v, want nil", got)
	}
}

func TestDeviceCodeTTLDuration(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"valid", "5m", 5 * time.Minute},
		{"invalid", "abc", 10 * time.Minute},
		{"zero", "0", 10 * time.Minute},
		{"negative", "-1m", 10 * time.Minute},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("HTTP_ADDR", ":8080")
			os.Setenv("DEVICE_CODE_TTL", tc.value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := cfg.DeviceCodeTTLDuration(); got != tc.want {
				t.Errorf("DeviceCodeTTLDuration = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSessionTTLDuration(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("SESSION_TTL", "24h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.SessionTTLDuration(); got != 24*time.Hour {
		t.Errorf("SessionTTLDuration = %v, want %v", got, 24*time.Hour)
	}

	os.Setenv("SESSION_TTL", "bogus")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.SessionTTLDuration(); got != 168*time.Hour {
		t.Errorf("SessionTTLDuration = %v, want %v (default)", got, 168*time.Hour)
	}
}

func TestDeviceCodeCleanupIntervalDuration(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("DEVICE_CODE_CLEANUP_INTERVAL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.DeviceCodeCleanupIntervalDuration(); got != 30*time.Minute {
		t.Errorf("DeviceCodeCleanupIntervalDuration = %v, want %v", got, 30*time.Minute)
	}
}

func TestLoad_NegativeCleanupBatchSize(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("DEVICE_CODE_CLEANUP_BATCH_SIZE", "-5")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error for negative batch size")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
}
