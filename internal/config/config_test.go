package config

import (
	"os"
	"testing"
	"time"
)

var allEnvVars = []string{
	"COMMS_URL", "SERVICE_NAME", "APPLICATION_ID",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH", "FUNCTIONS_MANIFEST_FILE",
	"HTTP_ADDR", "HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "SHUTDOWN_TIMEOUT",
	"WEBHOOK_PATH_PREFIX", "WEBHOOK_ROUTES", "WEBHOOK_RESPONSE_TIMEOUT", "WEBHOOK_MAX_BODY_BYTES",
	"FUNCTION_REQUEST_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT", "LOG_TRUNCATE_LENGTH",
	"TRACING_ENABLED", "TRACING_EXPORTER", "TRACING_ENDPOINT", "TRACING_SAMPLE_RATE",
	"METRICS_NAMESPACE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnvVars {
		if v, ok := os.LookupEnv(env); ok {
			os.Unsetenv(env)
			t.Cleanup(func() { os.Setenv(env, v) })
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://127.0.0.1:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://127.0.0.1:4222")
	}
	if cfg.COMMSName != "webhook-dispatcher" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "webhook-dispatcher")
	}
	if cfg.ApplicationID != "" {
		t.Errorf("config:config_test - ApplicationID = %q, want empty", cfg.ApplicationID)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("config:config_test - DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("config:config_test - Addr() = %q, want :8080", cfg.Addr())
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.WebhookPathPrefix != "/webhooks" {
		t.Errorf("config:config_test - WebhookPathPrefix = %q, want /webhooks", cfg.WebhookPathPrefix)
	}
	if cfg.WebhookResponseTimeout != 0 {
		t.Errorf("config:config_test - WebhookResponseTimeout = %v, want 0", cfg.WebhookResponseTimeout)
	}
	if cfg.WebhookMaxBodyBytes != 1<<20 {
		t.Errorf("config:config_test - WebhookMaxBodyBytes = %d, want 1MiB", cfg.WebhookMaxBodyBytes)
	}
	if cfg.FunctionRequestTimeout != 25*time.Second {
		t.Errorf("config:config_test - FunctionRequestTimeout = %v, want 25s", cfg.FunctionRequestTimeout)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" || cfg.LogTruncateLength != 500 {
		t.Errorf("config:config_test - logging defaults = %q/%q/%d", cfg.LogLevel, cfg.LogFormat, cfg.LogTruncateLength)
	}
	if cfg.TracingEnabled || cfg.TracingSampleRate != 1 {
		t.Errorf("config:config_test - tracing defaults = %v/%v", cfg.TracingEnabled, cfg.TracingSampleRate)
	}
	if cfg.MetricsNamespace != "webhook_dispatcher" {
		t.Errorf("config:config_test - MetricsNamespace = %q", cfg.MetricsNamespace)
	}

	routes, err := cfg.Routes()
	if err != nil || routes["sendbird"] != "sbWebhook" {
		t.Errorf("config:config_test - Routes() = %v, %v", routes, err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"COMMS_URL":                "nats://custom:4222",
		"SERVICE_NAME":             "test-dispatcher",
		"APPLICATION_ID":           "chat",
		"DATABASE_URL":             "postgres://test@localhost/test",
		"RUN_MIGRATIONS":           "true",
		"MIGRATION_PATH":           "/tmp/migrations",
		"FUNCTIONS_MANIFEST_FILE":  "/tmp/functions.json",
		"HTTP_ADDR":                "127.0.0.1:9090",
		"WEBHOOK_PATH_PREFIX":      "/hooks",
		"WEBHOOK_ROUTES":           "sendbird:sbWebhook@2,stripe:stripeWebhook",
		"WEBHOOK_RESPONSE_TIMEOUT": "30s",
		"FUNCTION_REQUEST_TIMEOUT": "10s",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "json",
		"LOG_TRUNCATE_LENGTH":      "100",
		"TRACING_ENABLED":          "true",
		"TRACING_ENDPOINT":         "collector:4318",
		"TRACING_SAMPLE_RATE":      "0.5",
	}
	for k, v := range overrides {
		t.Setenv(k, v)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://custom:4222" {
		t.Errorf("config:config_test - COMMSURL = %q", cfg.COMMSURL)
	}
	if cfg.ApplicationID != "chat" {
		t.Errorf("config:config_test - ApplicationID = %q", cfg.ApplicationID)
	}
	if !cfg.RunMigrations || cfg.MigrationPath != "/tmp/migrations" {
		t.Errorf("config:config_test - migrations = %v %q", cfg.RunMigrations, cfg.MigrationPath)
	}
	if cfg.ManifestFile != "/tmp/functions.json" {
		t.Errorf("config:config_test - ManifestFile = %q", cfg.ManifestFile)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Errorf("config:config_test - Addr() = %q", cfg.Addr())
	}
	if cfg.WebhookResponseTimeout != 30*time.Second {
		t.Errorf("config:config_test - WebhookResponseTimeout = %v", cfg.WebhookResponseTimeout)
	}
	if cfg.FunctionRequestTimeout != 10*time.Second {
		t.Errorf("config:config_test - FunctionRequestTimeout = %v", cfg.FunctionRequestTimeout)
	}
	if cfg.LogTruncateLength != 100 {
		t.Errorf("config:config_test - LogTruncateLength = %d", cfg.LogTruncateLength)
	}

	routes, err := cfg.Routes()
	if err != nil {
		t.Fatalf("config:config_test - Routes() error: %v", err)
	}
	if routes["sendbird"] != "sbWebhook@2" || routes["stripe"] != "stripeWebhook" {
		t.Errorf("config:config_test - Routes() = %v", routes)
	}

	tc := cfg.Tracing()
	if !tc.Enabled || tc.Endpoint != "collector:4318" || tc.ServiceName != "test-dispatcher" || tc.SampleRate != 0.5 {
		t.Errorf("config:config_test - Tracing() = %+v", tc)
	}

	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - ValidateForServe() = %v", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		t.Errorf("config:config_test - ValidateForDB() = %v", err)
	}
}

func TestValidateForServe(t *testing.T) {
	clearEnv(t)
	base, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}
	base.ApplicationID = "chat"
	if err := base.ValidateForServe(); err != nil {
		t.Fatalf("config:config_test - valid config rejected: %v", err)
	}

	cases := map[string]func(c *Config){
		"missing app id":    func(c *Config) { c.ApplicationID = "" },
		"invalid app id":    func(c *Config) { c.ApplicationID = "-chat" },
		"bad routes":        func(c *Config) { c.WebhookRoutes = "sendbird" },
		"negative timeout":  func(c *Config) { c.WebhookResponseTimeout = -time.Second },
		"zero fn timeout":   func(c *Config) { c.FunctionRequestTimeout = 0 },
		"zero health check": func(c *Config) { c.HealthCheckTimeout = 0 },
		"bad log format":    func(c *Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range cases {
		c := *base
		mutate(&c)
		if err := c.ValidateForServe(); err == nil {
			t.Errorf("config:config_test - %s: expected error", name)
		}
	}
}

func TestValidateForDB(t *testing.T) {
	c := &Config{}
	if err := c.ValidateForDB(); err == nil {
		t.Error("config:config_test - expected error without DATABASE_URL")
	}
}

func TestLoadConfig_LogLevels(t *testing.T) {
	clearEnv(t)
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, level := range validLevels {
		t.Setenv("LOG_LEVEL", level)
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("config:config_test - unexpected error for level %q: %v", level, err)
		}
		if cfg.LogLevel != level {
			t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, level)
		}
	}
}
