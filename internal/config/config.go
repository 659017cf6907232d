// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/webhook-dispatcher/pkg/observability"
	"github.com/morezero/webhook-dispatcher/pkg/semver"
	"github.com/morezero/webhook-dispatcher/pkg/webhooks"
)

const logPrefix = "config:LoadConfig"

// Config holds webhook-dispatcher configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL. Empty disables remote
	// functions and events.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"webhook-dispatcher"`

	// ApplicationID is the application every webhook dispatches under.
	ApplicationID string `envconfig:"APPLICATION_ID"`

	// Database (empty = manifest only)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// Function manifest
	ManifestFile string `envconfig:"FUNCTIONS_MANIFEST_FILE"`

	// HTTP (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	// Webhooks
	WebhookPathPrefix string `envconfig:"WEBHOOK_PATH_PREFIX" default:"/webhooks"`
	// WebhookRoutes is "provider:function,..."; empty = sendbird:sbWebhook.
	WebhookRoutes          string        `envconfig:"WEBHOOK_ROUTES"`
	WebhookResponseTimeout time.Duration `envconfig:"WEBHOOK_RESPONSE_TIMEOUT" default:"0s"`
	WebhookMaxBodyBytes    int64         `envconfig:"WEBHOOK_MAX_BODY_BYTES" default:"1048576"`

	// Remote functions
	FunctionRequestTimeout time.Duration `envconfig:"FUNCTION_REQUEST_TIMEOUT" default:"25s"`

	// Logging
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat         string `envconfig:"LOG_FORMAT" default:"text"`
	LogTruncateLength int    `envconfig:"LOG_TRUNCATE_LENGTH" default:"500"`

	// Tracing
	TracingEnabled    bool    `envconfig:"TRACING_ENABLED" default:"false"`
	TracingExporter   string  `envconfig:"TRACING_EXPORTER" default:"otlp-http"`
	TracingEndpoint   string  `envconfig:"TRACING_ENDPOINT"`
	TracingSampleRate float64 `envconfig:"TRACING_SAMPLE_RATE" default:"1"`

	// Metrics
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"webhook_dispatcher"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Routes parses WebhookRoutes.
func (c *Config) Routes() (map[string]string, error) {
	return webhooks.ParseRoutes(c.WebhookRoutes)
}

// Tracing returns the tracer configuration.
func (c *Config) Tracing() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.TracingEnabled,
		Exporter:    c.TracingExporter,
		Endpoint:    c.TracingEndpoint,
		ServiceName: c.COMMSName,
		SampleRate:  c.TracingSampleRate,
	}
}

// ValidateForServe checks required config when running the dispatcher server.
func (c *Config) ValidateForServe() error {
	if c.ApplicationID == "" {
		return fmt.Errorf("%s - APPLICATION_ID is required for serve", logPrefix)
	}
	if !semver.ValidateAppID(c.ApplicationID) {
		return fmt.Errorf("%s - APPLICATION_ID %q is not a valid application id", logPrefix, c.ApplicationID)
	}
	if _, err := c.Routes(); err != nil {
		return fmt.Errorf("%s - WEBHOOK_ROUTES: %w", logPrefix, err)
	}
	if c.WebhookResponseTimeout < 0 {
		return fmt.Errorf("%s - WEBHOOK_RESPONSE_TIMEOUT must not be negative", logPrefix)
	}
	if c.FunctionRequestTimeout <= 0 {
		return fmt.Errorf("%s - FUNCTION_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%s - LOG_FORMAT must be text or json, got %q", logPrefix, c.LogFormat)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, seed).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
