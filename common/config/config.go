package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Features  FeatureFlags
	Engine    EngineConfig
}

// EngineConfig holds settings for the execution engine's caches and bounds
// (spec §4.1, §4.4, §4.7, §4.8). Only WebhookBaseURL is read by
// cmd/orchestrator; the validator, identity, retention, progress and webhook
// packages use their own built-in constants and do not read these fields.
type EngineConfig struct {
	ValidatorCacheTTL   time.Duration
	ValidatorCacheSize  int
	IdentityCacheTTL    time.Duration
	RetentionTTL        time.Duration
	RetentionMaxPerUser int
	WebhookPollInterval time.Duration
	ProgressBufferSize  int
	WebhookBaseURL      string
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	MaxConns     int
	MinConns     int
	MaxIdleTime  time.Duration
	MaxLifetime  time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof    bool
	PprofPort      int
	EnableTracing  bool
	EnableMetrics  bool
	MetricsPort    int
	TracingBackend string
}

// FeatureFlags for MVP toggles
type FeatureFlags struct {
	EnableWebhooks  bool
	EnablePGStore   bool
	EnableFanoutBus bool
	EnableRateLimit bool
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "orchestrator"),
			User:        getEnv("POSTGRES_USER", "orchestrator"),
			Password:    getEnv("POSTGRES_PASSWORD", "orchestrator"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:    getEnvBool("ENABLE_PPROF", true),
			PprofPort:      getEnvInt("PPROF_PORT", 6060),
			EnableTracing:  getEnvBool("ENABLE_TRACING", true),
			EnableMetrics:  getEnvBool("ENABLE_METRICS", true),
			MetricsPort:    getEnvInt("METRICS_PORT", 9090),
			TracingBackend: getEnv("TRACING_BACKEND", "stdout"),
		},
		Features: FeatureFlags{
			EnableWebhooks:  getEnvBool("ENABLE_WEBHOOKS", true),
			EnablePGStore:   getEnvBool("ENABLE_PG_STORE", false),
			EnableFanoutBus: getEnvBool("ENABLE_FANOUT_BUS", false),
			EnableRateLimit: getEnvBool("ENABLE_RATE_LIMIT", false),
		},
		Engine: EngineConfig{
			ValidatorCacheTTL:   getEnvDuration("ENGINE_VALIDATOR_CACHE_TTL", 5*time.Second),
			ValidatorCacheSize:  getEnvInt("ENGINE_VALIDATOR_CACHE_SIZE", 50),
			IdentityCacheTTL:    getEnvDuration("ENGINE_IDENTITY_CACHE_TTL", 30*time.Second),
			RetentionTTL:        getEnvDuration("ENGINE_RETENTION_TTL", 24*time.Hour),
			RetentionMaxPerUser: getEnvInt("ENGINE_RETENTION_MAX_PER_USER", 100),
			WebhookPollInterval: getEnvDuration("ENGINE_WEBHOOK_POLL_INTERVAL", 500*time.Millisecond),
			ProgressBufferSize:  getEnvInt("ENGINE_PROGRESS_BUFFER_SIZE", 32),
			WebhookBaseURL:      getEnv("ENGINE_WEBHOOK_BASE_URL", "http://localhost:8080"),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

