// Package config defines the global configuration structure for the
// farewatch service. Configuration is loaded once at process startup and is
// immutable thereafter; it follows 12-Factor principles by strictly
// separating code from configuration.
//
// Values are resolved via: OS environment (highest) -> dotenv file.
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"farewatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Amadeus  AmadeusConfig
	Email    EmailConfig
	Sweep    SweepConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public base URL used in notification deep links (no trailing slash).
	PublicURL string `envconfig:"PUBLIC_URL" default:"https://farewatch.io"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// TriggerQueueURL is the SQS queue carrying targeted per-watch trigger
	// requests from the API to the sweep worker. Optional: when empty, the
	// API runs targeted triggers inline.
	TriggerQueueURL string `envconfig:"SQS_TRIGGER_QUEUE" validate:"omitempty,url"`

	// MetricsNamespace is the CloudWatch namespace for sweep metrics.
	// Optional: when empty, metrics are not emitted.
	MetricsNamespace string `envconfig:"CLOUDWATCH_NAMESPACE" default:"FareWatch"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AmadeusConfig holds fare-search provider credentials and tuning.
type AmadeusConfig struct {
	ClientID     SecretString  `envconfig:"AMADEUS_CLIENT_ID" validate:"required"`
	ClientSecret SecretString  `envconfig:"AMADEUS_CLIENT_SECRET" validate:"required"`
	BaseURL      string        `envconfig:"AMADEUS_BASE_URL" default:"https://test.api.amadeus.com"`
	Timeout      time.Duration `envconfig:"AMADEUS_TIMEOUT" default:"20s"`
	MaxResults   int           `envconfig:"AMADEUS_MAX_RESULTS" default:"20"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@farewatch.io" validate:"email"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"FareWatch Alerts"`
}

// SweepConfig tunes the sweep coordinator and trigger engine policy.
type SweepConfig struct {
	// Interval between scheduled sweeps (roughly twice daily by default).
	Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"12h"`

	// Pacing delay inserted between successive watch evaluations to avoid
	// bursting the fare provider.
	Pacing time.Duration `envconfig:"SWEEP_PACING" default:"500ms"`

	// MinNotifyDeltaUsd is the margin a new best price must undercut the
	// last notified price by before a repeat notification is allowed.
	MinNotifyDeltaUsd float64 `envconfig:"SWEEP_MIN_NOTIFY_DELTA_USD" default:"1.0"`

	// ResultPreviewLimit caps the per-watch outcome list in sweep summaries.
	ResultPreviewLimit int `envconfig:"SWEEP_RESULT_PREVIEW" default:"10"`

	// AlertRetention is how long alert rows are kept before archival.
	AlertRetention time.Duration `envconfig:"ALERT_RETENTION" default:"2160h"` // 90 days

	// ArchiveDir is where archived alert batches are written as gzipped
	// JSONL files.
	ArchiveDir string `envconfig:"ALERT_ARCHIVE_DIR" default:"archives"`
}
