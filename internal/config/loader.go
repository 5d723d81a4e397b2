// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Derive DATABASE_URL from the Supabase project credentials when no
//     explicit DATABASE_URL is set.
//  4. Use envconfig to process struct tags and populate the Config struct.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType categorizes configuration failures.
type ConfigErrorType string

const (
	ErrParsing    ConfigErrorType = "parsing"
	ErrValidation ConfigErrorType = "validation"
	ErrDerivation ConfigErrorType = "derivation"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid
// debugging. It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// envLookup matches os.LookupEnv and allows injection for testing.
type envLookup func(key string) (string, bool)

// envSet matches os.Setenv and allows injection for testing.
type envSet func(key, value string) error

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without mutating global state.
type loaderDeps struct {
	lookupEnv envLookup
	setEnv    envSet
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
	}
}

// LoadConfig loads and validates the platform configuration.
func LoadConfig() (*Config, error) {
	return loadConfigWithDeps(defaultDeps())
}

func loadConfigWithDeps(deps loaderDeps) (*Config, error) {
	// Step 1: Enforce UTC timezone to prevent drift bugs.
	time.Local = time.UTC

	// Step 2: Load .env file (non-fatal if absent). godotenv does NOT
	// override existing environment variables.
	_ = godotenv.Load()

	// Step 3: Derive DATABASE_URL when only Supabase credentials are set.
	if err := deriveDatabaseURL(deps); err != nil {
		return nil, err
	}

	// Step 4: Process envconfig tags to populate the Config struct.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 5: Validate the populated struct.
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// deriveDatabaseURL builds a Postgres DSN from SUPABASE_URL and
// SUPABASE_SERVICE_ROLE_KEY when DATABASE_URL is not set explicitly.
// A Supabase project URL of https://<ref>.supabase.co maps to the pooled
// Postgres endpoint db.<ref>.supabase.co:5432 with the service role key
// as the password.
func deriveDatabaseURL(deps loaderDeps) error {
	if _, exists := deps.lookupEnv("DATABASE_URL"); exists {
		return nil
	}

	projectURL, haveURL := deps.lookupEnv("SUPABASE_URL")
	serviceKey, haveKey := deps.lookupEnv("SUPABASE_SERVICE_ROLE_KEY")
	if !haveURL || !haveKey {
		// Leave DATABASE_URL empty; the required validation will report
		// the missing value with a clear message.
		return nil
	}

	ref, err := supabaseProjectRef(projectURL)
	if err != nil {
		return &ConfigError{
			Type:    ErrDerivation,
			Message: "cannot derive DATABASE_URL from SUPABASE_URL",
			Err:     err,
		}
	}

	dsn := fmt.Sprintf(
		"postgres://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require",
		url.QueryEscape(serviceKey), ref,
	)
	if err := deps.setEnv("DATABASE_URL", dsn); err != nil {
		return &ConfigError{
			Type:    ErrDerivation,
			Message: "failed to set derived DATABASE_URL",
			Err:     err,
		}
	}
	return nil
}

// supabaseProjectRef extracts the project ref from a Supabase project URL.
func supabaseProjectRef(projectURL string) (string, error) {
	parsed, err := url.Parse(projectURL)
	if err != nil {
		return "", fmt.Errorf("invalid SUPABASE_URL: %w", err)
	}
	host := parsed.Host
	if host == "" {
		host = parsed.Path // bare "ref.supabase.co" without a scheme
	}
	ref, ok := strings.CutSuffix(host, ".supabase.co")
	if !ok || ref == "" || strings.Contains(ref, ".") {
		return "", fmt.Errorf("SUPABASE_URL host %q is not a *.supabase.co project URL", host)
	}
	return ref, nil
}
