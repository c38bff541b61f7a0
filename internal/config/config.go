// Package config provides configuration loading and validation for the API
// server and the rank worker. It uses koanf to merge environment variables
// with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (rank cache mirror). Optional; empty disables mirroring.
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication. The previous secret is set only while a key
	// rotation is in progress.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Stripe
	StripeAPIKey        string `koanf:"stripe_api_key"`
	StripeWebhookSecret string `koanf:"stripe_webhook_secret"`

	// Stripe price IDs mapped to subscription tiers.
	StripePriceBasic    string `koanf:"stripe_price_basic"`
	StripePriceStandard string `koanf:"stripe_price_standard"`
	StripePricePremium  string `koanf:"stripe_price_premium"`

	// Redirect targets for the Stripe Checkout flow.
	StripeSuccessURL string `koanf:"stripe_success_url"`
	StripeCancelURL  string `koanf:"stripe_cancel_url"`

	// Ranking
	RankCalibrationPath      string  `koanf:"rank_calibration_path"`
	RankActiveIntervalMins   int     `koanf:"rank_active_interval_mins"`
	RankInactiveIntervalMins int     `koanf:"rank_inactive_interval_mins"`
	VelocityThresholdMPS     float64 `koanf:"velocity_threshold_mps"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL         = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret           = errors.New("JWT_SECRET is required")
	ErrMissingStripeAPIKey        = errors.New("STRIPE_API_KEY is required")
	ErrMissingStripeWebhookSecret = errors.New("STRIPE_WEBHOOK_SECRET is required")
	ErrIncompleteStripePrices     = errors.New("all of STRIPE_PRICE_BASIC, STRIPE_PRICE_STANDARD, STRIPE_PRICE_PREMIUM are required when any is set")
	ErrInvalidPort                = errors.New("PORT must be a valid integer")
	ErrInvalidInterval            = errors.New("rank update intervals must be non-negative")
	ErrInvalidVelocityThreshold   = errors.New("VELOCITY_THRESHOLD_MPS must be non-negative")
)

// Default values for non-secret configuration.
const (
	DefaultPort                     = 8080
	DefaultEnv                      = "development"
	DefaultRankActiveIntervalMins   = 15
	DefaultRankInactiveIntervalMins = 60
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try DINEFIND_PORT first, then PORT
	port, portErr := getEnvIntOrDefaultMulti([]string{"DINEFIND_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	activeMins, err := getEnvIntOrDefault("RANK_ACTIVE_INTERVAL_MINS", k.Int("rank_active_interval_mins"), DefaultRankActiveIntervalMins)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	inactiveMins, err := getEnvIntOrDefault("RANK_INACTIVE_INTERVAL_MINS", k.Int("rank_inactive_interval_mins"), DefaultRankInactiveIntervalMins)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	velocityThreshold, err := getEnvFloatOrDefault("VELOCITY_THRESHOLD_MPS", k.Float64("velocity_threshold_mps"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                     port,
		Env:                      getEnvOrDefaultMulti([]string{"DINEFIND_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:              getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                 getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:                getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:        getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		StripeAPIKey:             getEnvOrKoanf("STRIPE_API_KEY", k, "stripe_api_key"),
		StripeWebhookSecret:      getEnvOrKoanf("STRIPE_WEBHOOK_SECRET", k, "stripe_webhook_secret"),
		StripePriceBasic:         getEnvOrKoanf("STRIPE_PRICE_BASIC", k, "stripe_price_basic"),
		StripePriceStandard:      getEnvOrKoanf("STRIPE_PRICE_STANDARD", k, "stripe_price_standard"),
		StripePricePremium:       getEnvOrKoanf("STRIPE_PRICE_PREMIUM", k, "stripe_price_premium"),
		StripeSuccessURL:         getEnvOrKoanf("STRIPE_SUCCESS_URL", k, "stripe_success_url"),
		StripeCancelURL:          getEnvOrKoanf("STRIPE_CANCEL_URL", k, "stripe_cancel_url"),
		RankCalibrationPath:      getEnvOrKoanf("RANK_CALIBRATION_PATH", k, "rank_calibration_path"),
		RankActiveIntervalMins:   activeMins,
		RankInactiveIntervalMins: inactiveMins,
		VelocityThresholdMPS:     velocityThreshold,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.StripeAPIKey == "" {
		errs = append(errs, ErrMissingStripeAPIKey)
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, ErrMissingStripeWebhookSecret)
	}

	// Price IDs are optional as a group: a deployment without paid tiers
	// runs everything on free. Setting only some of them is a mistake.
	someSet := c.StripePriceBasic != "" || c.StripePriceStandard != "" || c.StripePricePremium != ""
	allSet := c.StripePriceBasic != "" && c.StripePriceStandard != "" && c.StripePricePremium != ""
	if someSet && !allSet {
		errs = append(errs, ErrIncompleteStripePrices)
	}

	if c.RankActiveIntervalMins < 0 || c.RankInactiveIntervalMins < 0 {
		errs = append(errs, ErrInvalidInterval)
	}
	if c.VelocityThresholdMPS < 0 {
		errs = append(errs, ErrInvalidVelocityThreshold)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                        fmt.Sprintf("%d", c.Port),
		"env":                         c.Env,
		"database_url":                maskDatabaseURL(c.DatabaseURL),
		"redis_url":                   maskDatabaseURL(c.RedisURL),
		"jwt_secret":                  maskSecret(c.JWTSecret),
		"jwt_previous_secret":         maskSecret(c.JWTPreviousSecret),
		"stripe_api_key":              maskStripeKey(c.StripeAPIKey),
		"stripe_webhook_secret":       maskSecret(c.StripeWebhookSecret),
		"stripe_price_basic":          c.StripePriceBasic,
		"stripe_price_standard":       c.StripePriceStandard,
		"stripe_price_premium":        c.StripePricePremium,
		"stripe_success_url":          c.StripeSuccessURL,
		"stripe_cancel_url":           c.StripeCancelURL,
		"rank_calibration_path":       c.RankCalibrationPath,
		"rank_active_interval_mins":   fmt.Sprintf("%d", c.RankActiveIntervalMins),
		"rank_inactive_interval_mins": fmt.Sprintf("%d", c.RankInactiveIntervalMins),
		"velocity_threshold_mps":      fmt.Sprintf("%g", c.VelocityThresholdMPS),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskStripeKey masks a Stripe API key, preserving the prefix (sk_live_, sk_test_, etc.)
func maskStripeKey(s string) string {
	if s == "" {
		return "<not set>"
	}

	parts := strings.SplitN(s, "_", 3)
	if len(parts) == 3 {
		return parts[0] + "_" + parts[1] + "_****"
	}

	return maskSecret(s)
}

// maskDatabaseURL masks the password in a connection URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
