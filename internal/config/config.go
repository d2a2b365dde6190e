// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
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

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (report cache, rate limiting)
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`

	// JWT Authentication
	JWTSecret string `koanf:"jwt_secret"`

	// Whop (membership platform; webhook ingestion + API)
	WhopAPIKey        string `koanf:"whop_api_key"`
	WhopWebhookSecret string `koanf:"whop_webhook_secret"`

	// Analyzer calibration file (optional JSON override of defaults)
	CalibrationPath string `koanf:"calibration_path"`

	// Insight generation (OpenAI-compatible chat completions endpoint)
	InsightAPIURL string `koanf:"insight_api_url"`
	InsightAPIKey string `koanf:"insight_api_key"`
	InsightModel  string `koanf:"insight_model"`

	// R2 (Cloudflare Object Storage, report exports)
	R2BucketName      string `koanf:"r2_bucket_name"`
	R2AccessKeyID     string `koanf:"r2_access_key_id"`
	R2SecretAccessKey string `koanf:"r2_secret_access_key"`
	R2Endpoint        string `koanf:"r2_endpoint"`

	// Background recompute
	RecomputeIntervalMinutes int `koanf:"recompute_interval_minutes"`

	// Report cache TTL
	CacheTTLSeconds int `koanf:"cache_ttl_seconds"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL       = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret         = errors.New("JWT_SECRET is required")
	ErrMissingWhopWebhookSecret = errors.New("WHOP_WEBHOOK_SECRET is required")
	ErrMissingR2BucketName      = errors.New("R2_BUCKET_NAME is required")
	ErrMissingR2AccessKeyID     = errors.New("R2_ACCESS_KEY_ID is required")
	ErrMissingR2SecretAccessKey = errors.New("R2_SECRET_ACCESS_KEY is required")
	ErrMissingR2Endpoint        = errors.New("R2_ENDPOINT is required")
	ErrMissingInsightAPIKey     = errors.New("INSIGHT_API_KEY is required when INSIGHT_API_URL is set")
	ErrInvalidPort              = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                     = 8080
	DefaultEnv                      = "development"
	DefaultRedisAddr                = "localhost:6379"
	DefaultInsightModel             = "gpt-4o-mini"
	DefaultRecomputeIntervalMinutes = 15
	DefaultCacheTTLSeconds          = 300
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

	// Try PULSE_PORT first, then PORT for platform compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"PULSE_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	recomputeInterval, intervalErr := getEnvIntOrDefault("RECOMPUTE_INTERVAL_MINUTES", k.Int("recompute_interval_minutes"), DefaultRecomputeIntervalMinutes)
	if intervalErr != nil {
		loadErrs = append(loadErrs, intervalErr)
	}

	cacheTTL, ttlErr := getEnvIntOrDefault("CACHE_TTL_SECONDS", k.Int("cache_ttl_seconds"), DefaultCacheTTLSeconds)
	if ttlErr != nil {
		loadErrs = append(loadErrs, ttlErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                     port,
		Env:                      getEnvOrDefaultMulti([]string{"PULSE_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:              getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisAddr:                getEnvOrDefault("REDIS_ADDR", k.String("redis_addr"), DefaultRedisAddr),
		RedisPassword:            getEnvOrKoanf("REDIS_PASSWORD", k, "redis_password"),
		JWTSecret:                getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		WhopAPIKey:               getEnvOrKoanf("WHOP_API_KEY", k, "whop_api_key"),
		WhopWebhookSecret:        getEnvOrKoanf("WHOP_WEBHOOK_SECRET", k, "whop_webhook_secret"),
		CalibrationPath:          getEnvOrKoanf("CALIBRATION_PATH", k, "calibration_path"),
		InsightAPIURL:            getEnvOrKoanf("INSIGHT_API_URL", k, "insight_api_url"),
		InsightAPIKey:            getEnvOrKoanf("INSIGHT_API_KEY", k, "insight_api_key"),
		InsightModel:             getEnvOrDefault("INSIGHT_MODEL", k.String("insight_model"), DefaultInsightModel),
		R2BucketName:             getEnvOrKoanf("R2_BUCKET_NAME", k, "r2_bucket_name"),
		R2AccessKeyID:            getEnvOrKoanf("R2_ACCESS_KEY_ID", k, "r2_access_key_id"),
		R2SecretAccessKey:        getEnvOrKoanf("R2_SECRET_ACCESS_KEY", k, "r2_secret_access_key"),
		R2Endpoint:               getEnvOrKoanf("R2_ENDPOINT", k, "r2_endpoint"),
		RecomputeIntervalMinutes: recomputeInterval,
		CacheTTLSeconds:          cacheTTL,
	}

	// Validate and collect errors
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

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
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
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
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
	if c.WhopWebhookSecret == "" {
		errs = append(errs, ErrMissingWhopWebhookSecret)
	}

	// R2 configuration is optional. Only validate fields if any R2 value is set.
	if c.R2BucketName != "" || c.R2AccessKeyID != "" || c.R2SecretAccessKey != "" || c.R2Endpoint != "" {
		if c.R2BucketName == "" {
			errs = append(errs, ErrMissingR2BucketName)
		}
		if c.R2AccessKeyID == "" {
			errs = append(errs, ErrMissingR2AccessKeyID)
		}
		if c.R2SecretAccessKey == "" {
			errs = append(errs, ErrMissingR2SecretAccessKey)
		}
		if c.R2Endpoint == "" {
			errs = append(errs, ErrMissingR2Endpoint)
		}
	}

	// Insight generation is optional, but a configured endpoint needs a key.
	if c.InsightAPIURL != "" && c.InsightAPIKey == "" {
		errs = append(errs, ErrMissingInsightAPIKey)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                       fmt.Sprintf("%d", c.Port),
		"env":                        c.Env,
		"database_url":               maskDatabaseURL(c.DatabaseURL),
		"redis_addr":                 c.RedisAddr,
		"redis_password":             maskSecret(c.RedisPassword),
		"jwt_secret":                 maskSecret(c.JWTSecret),
		"whop_api_key":               maskSecret(c.WhopAPIKey),
		"whop_webhook_secret":        maskSecret(c.WhopWebhookSecret),
		"calibration_path":           c.CalibrationPath,
		"insight_api_url":            c.InsightAPIURL,
		"insight_api_key":            maskSecret(c.InsightAPIKey),
		"insight_model":              c.InsightModel,
		"r2_bucket_name":             c.R2BucketName,
		"r2_access_key_id":           maskSecret(c.R2AccessKeyID),
		"r2_secret_access_key":       maskSecret(c.R2SecretAccessKey),
		"r2_endpoint":                c.R2Endpoint,
		"recompute_interval_minutes": fmt.Sprintf("%d", c.RecomputeIntervalMinutes),
		"cache_ttl_seconds":          fmt.Sprintf("%d", c.CacheTTLSeconds),
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

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
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

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
