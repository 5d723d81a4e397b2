// Package config defines the global configuration structure for the ZoneAtlas
// platform. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Derived defaults (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"zoneatlas/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the ZoneAtlas platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"zoneatlas-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Billing  BillingConfig
	Email    EmailConfig
	Report   ReportConfig
	Maps     MapsConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for redirects and upgrade links (no trailing slash)
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" default:"http://localhost:8080"`
	DashboardURL   string `envconfig:"DASHBOARD_URL" default:"http://localhost:3000"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// Per-IP rate limit for the search bucket
	SearchRateLimit  int           `envconfig:"SEARCH_RATE_LIMIT" default:"20"`
	SearchRateWindow time.Duration `envconfig:"SEARCH_RATE_WINDOW" default:"1m"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
// The connection string is either supplied directly via DATABASE_URL or
// derived by the loader from the Supabase project credentials.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	SupabaseURL            string       `envconfig:"SUPABASE_URL"`
	SupabaseServiceRoleKey SecretString `envconfig:"SUPABASE_SERVICE_ROLE_KEY"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	ReportQueueURL  string `envconfig:"SQS_REPORT_QUEUE"`
	MetricNamespace string `envconfig:"CLOUDWATCH_NAMESPACE" default:"ZoneAtlas"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe payment integration credentials.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	// Price-to-tier mapping: JSON object of Stripe price id -> tier name
	PriceTiers string `envconfig:"STRIPE_PRICE_TIERS_JSON" default:"{}"`
	// One-time price id for single report purchases
	ReportPriceID string `envconfig:"STRIPE_REPORT_PRICE_ID"`
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"reports@zoneatlas.io"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"ZoneAtlas Reports"`
}

// ReportConfig holds PDF report pipeline settings.
type ReportConfig struct {
	// Path to the headless Chrome binary; empty means chromedp's default
	// discovery.
	ChromePath    string        `envconfig:"CHROME_PATH"`
	RenderTimeout time.Duration `envconfig:"REPORT_RENDER_TIMEOUT" default:"45s"`
	MaxAttempts   int           `envconfig:"REPORT_MAX_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `envconfig:"REPORT_RETRY_DELAY" default:"2s"`
}

// MapsConfig holds geocoding provider credentials. Optional: when the API
// key is empty the geocoder client is not constructed and address
// resolution is skipped.
type MapsConfig struct {
	GoogleMapsAPIKey SecretString `envconfig:"GOOGLE_MAPS_API_KEY"`
	GeocodeTimeout   time.Duration `envconfig:"GEOCODE_TIMEOUT" default:"5s"`
}
