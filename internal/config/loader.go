// loader.go implements the configuration loading lifecycle:
//
//  1. Enforce UTC to prevent local-time drift in date-window arithmetic.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load builds a Config from the process environment, applying defaults and
// failing fast on missing or malformed required values.
func Load() (*Config, error) {
	// All date-window math assumes UTC calendar days.
	time.Local = time.UTC

	// Dotenv is a local-development convenience; absence is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate runs struct-tag validation over the populated config and folds
// field errors into a single readable message.
func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}
