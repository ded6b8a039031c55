// Package config loads application configuration. Values resolve in three
// stages: built-in defaults, then an optional YAML file named by
// CONFIG_FILE, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Environment string `yaml:"environment"`
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"log_level"`

	// AWS configuration
	AWSRegion        string `yaml:"aws_region"`
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"` // local endpoint override
	TablePrefix      string `yaml:"table_prefix"`
	ProvisionOnStart bool   `yaml:"provision_on_start"`

	// Engine policies
	SessionTimeoutMinutes    int  `yaml:"session_timeout_minutes"`
	UniqueUserTimeoutMinutes int  `yaml:"unique_user_timeout_minutes"`
	TTLDays                  int  `yaml:"ttl_days"`
	NormalizeKeys            bool `yaml:"normalize_keys"`
	NormalizerCacheSize      int  `yaml:"normalizer_cache_size"`

	// Authentication
	JWTSecret      string `yaml:"jwt_secret"`
	JWTIssuer      string `yaml:"jwt_issuer"`
	AllowAnonymous bool   `yaml:"allow_anonymous"` // opt-in unauthenticated access

	// HTTP surface
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"` // comma separated
	BreakerEnabled     bool   `yaml:"breaker_enabled"`
}

// Load resolves the configuration and validates it.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment:              "development",
		Port:                     "8080",
		LogLevel:                 "info",
		AWSRegion:                "us-east-1",
		TablePrefix:              "statbucket",
		ProvisionOnStart:         false,
		SessionTimeoutMinutes:    30,
		UniqueUserTimeoutMinutes: 30,
		TTLDays:                  30,
		NormalizeKeys:            false,
		NormalizerCacheSize:      1024,
		JWTIssuer:                "statbucket",
		AllowAnonymous:           false,
		CORSAllowedOrigins:       "*",
		BreakerEnabled:           true,
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Environment, "ENVIRONMENT")
	setString(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.AWSRegion, "AWS_REGION")
	setString(&c.DynamoDBEndpoint, "DYNAMODB_ENDPOINT")
	setString(&c.TablePrefix, "TABLE_PREFIX")
	setBool(&c.ProvisionOnStart, "PROVISION_ON_START")
	setInt(&c.SessionTimeoutMinutes, "SESSION_TIMEOUT_MINUTES")
	setInt(&c.UniqueUserTimeoutMinutes, "UNIQUE_USER_TIMEOUT_MINUTES")
	setInt(&c.TTLDays, "TTL_DAYS")
	setBool(&c.NormalizeKeys, "NORMALIZE_KEYS")
	setInt(&c.NormalizerCacheSize, "NORMALIZER_CACHE_SIZE")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.JWTIssuer, "JWT_ISSUER")
	setBool(&c.AllowAnonymous, "ALLOW_ANONYMOUS")
	setString(&c.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS")
	setBool(&c.BreakerEnabled, "BREAKER_ENABLED")
}

// Validate checks if all required configuration is present.
func (c *Config) Validate() error {
	if c.TablePrefix == "" {
		return fmt.Errorf("TABLE_PREFIX is required")
	}
	if c.SessionTimeoutMinutes < 1 {
		return fmt.Errorf("SESSION_TIMEOUT_MINUTES must be at least 1, got %d", c.SessionTimeoutMinutes)
	}
	if c.UniqueUserTimeoutMinutes < 1 {
		return fmt.Errorf("UNIQUE_USER_TIMEOUT_MINUTES must be at least 1, got %d", c.UniqueUserTimeoutMinutes)
	}
	if c.TTLDays < 1 {
		return fmt.Errorf("TTL_DAYS must be at least 1, got %d", c.TTLDays)
	}
	if c.NormalizerCacheSize < 1 {
		return fmt.Errorf("NORMALIZER_CACHE_SIZE must be at least 1, got %d", c.NormalizerCacheSize)
	}
	if c.IsProduction() && !c.AllowAnonymous && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production when anonymous access is disabled")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// SessionTimeout returns the session idle timeout as a duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

// UniqueUserTimeout returns the unique-user idle timeout as a duration.
func (c *Config) UniqueUserTimeout() time.Duration {
	return time.Duration(c.UniqueUserTimeoutMinutes) * time.Minute
}

// Origins splits the configured CORS origins.
func (c *Config) Origins() []string {
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// IsDevelopment checks if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setBool(dst *bool, key string) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	*dst = value == "true" || value == "1" || value == "yes"
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			*dst = intVal
		}
	}
}
