// Package config loads the service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Dispatcher    DispatcherConfig
	Schedule      ScheduleConfig
	NATS          NATSConfig
	HTTP          HTTPConfig
	Features      FeaturesConfig
	Observability ObservabilityConfig
}

// AppConfig contains general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Version     string

	// Timezone decides which calendar day "today" is.
	Timezone string

	ShutdownTimeout time.Duration
}

// DatabaseConfig contains PostgreSQL settings. An empty URL selects the
// in-memory stores.
type DatabaseConfig struct {
	URL string

	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// RedisConfig contains Redis settings for the progress cache.
type RedisConfig struct {
	URL string

	Host     string
	Port     int
	Password string
	DB       int

	PoolSize    int
	DialTimeout time.Duration
	ProgressTTL time.Duration
	Disabled    bool
}

// DispatcherConfig contains event dispatch settings.
type DispatcherConfig struct {
	// FailurePolicy is "continue" or "stop".
	FailurePolicy  string
	HandlerTimeout time.Duration

	// FailOnDispatchError makes use cases return dispatch failures as errors.
	FailOnDispatchError bool

	// SuccessorMaxAttempts bounds retries of successor task creation.
	SuccessorMaxAttempts int
	SuccessorRetryDelay  time.Duration
}

// ScheduleConfig contains the spacing schedule.
type ScheduleConfig struct {
	// Intervals uses the "study:1,7,30;default:4" format.
	Intervals string

	// IntervalsFile is a YAML file; it wins over Intervals when set.
	IntervalsFile string
}

// NATSConfig contains the event relay settings. An empty URL disables it.
type NATSConfig struct {
	URL           string
	Stream        string
	SubjectPrefix string
	MaxAttempts   int
}

// HTTPConfig contains the health endpoint settings.
type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FeaturesConfig toggles the optional event consumers.
type FeaturesConfig struct {
	SuccessorScheduling bool
	DailyProgress       bool
}

// ObservabilityConfig contains logging settings.
type ObservabilityConfig struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		App:           loadAppConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Dispatcher:    loadDispatcherConfig(),
		Schedule:      loadScheduleConfig(),
		NATS:          loadNATSConfig(),
		HTTP:          loadHTTPConfig(),
		Features:      loadFeaturesConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Name:            getEnv("APP_NAME", "planner-core"),
		Environment:     Environment(getEnv("APP_ENV", string(EnvDevelopment))),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		Timezone:        getEnv("APP_TIMEZONE", "UTC"),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	url := getEnv("DATABASE_URL", "")
	if url == "" {
		host := getEnv("DB_HOST", "")
		user := getEnv("DB_USER", "")
		if host != "" && user != "" {
			url = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
				user, getEnv("DB_PASSWORD", ""), host, getEnv("DB_PORT", "5432"),
				getEnv("DB_NAME", "planner"), getEnv("DB_SSLMODE", "disable"))
		}
	}

	return DatabaseConfig{
		URL:             url,
		MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		MinConns:        getEnvInt("DB_MIN_CONNS", 2),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:         getEnv("REDIS_URL", ""),
		Host:        getEnv("REDIS_HOST", "localhost"),
		Port:        getEnvInt("REDIS_PORT", 6379),
		Password:    getEnv("REDIS_PASSWORD", ""),
		DB:          getEnvInt("REDIS_DB", 0),
		PoolSize:    getEnvInt("REDIS_POOL_SIZE", 10),
		DialTimeout: getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ProgressTTL: getEnvDuration("REDIS_PROGRESS_TTL", 10*time.Minute),
		Disabled:    getEnvBool("REDIS_DISABLED", true),
	}
}

func loadDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		FailurePolicy:        getEnv("DISPATCH_FAILURE_POLICY", "continue"),
		HandlerTimeout:       getEnvDuration("DISPATCH_HANDLER_TIMEOUT", 10*time.Second),
		FailOnDispatchError:  getEnvBool("DISPATCH_FAIL_USE_CASE", false),
		SuccessorMaxAttempts: getEnvInt("SUCCESSOR_MAX_ATTEMPTS", 3),
		SuccessorRetryDelay:  getEnvDuration("SUCCESSOR_RETRY_DELAY", 50*time.Millisecond),
	}
}

func loadScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Intervals:     getEnv("SCHEDULE_INTERVALS", ""),
		IntervalsFile: getEnv("SCHEDULE_INTERVALS_FILE", ""),
	}
}

func loadNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           getEnv("NATS_URL", ""),
		Stream:        getEnv("NATS_STREAM", "PLANNER_EVENTS"),
		SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "planner"),
		MaxAttempts:   getEnvInt("NATS_MAX_ATTEMPTS", 5),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Port:         getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 5*time.Second),
		WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
	}
}

func loadFeaturesConfig() FeaturesConfig {
	return FeaturesConfig{
		SuccessorScheduling: getEnvBool("FEATURE_SUCCESSOR_SCHEDULING", true),
		DailyProgress:       getEnvBool("FEATURE_DAILY_PROGRESS", true),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Validate checks that the configuration is usable and reports every
// problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Sprintf("APP_ENV %q is not one of development, staging, production", c.App.Environment))
	}

	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("APP_TIMEZONE %q: %v", c.App.Timezone, err))
	}

	if c.IsProduction() && c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required in production")
	}
	if c.Database.MaxConns < 1 {
		errs = append(errs, "DB_MAX_CONNS must be at least 1")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, "DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	}

	if !c.Redis.Disabled && c.Redis.ProgressTTL <= 0 {
		errs = append(errs, "REDIS_PROGRESS_TTL must be positive")
	}

	switch strings.ToLower(c.Dispatcher.FailurePolicy) {
	case "continue", "stop":
	default:
		errs = append(errs, fmt.Sprintf("DISPATCH_FAILURE_POLICY %q must be continue or stop", c.Dispatcher.FailurePolicy))
	}
	if c.Dispatcher.HandlerTimeout < 0 {
		errs = append(errs, "DISPATCH_HANDLER_TIMEOUT must not be negative")
	}
	if c.Dispatcher.SuccessorMaxAttempts < 1 {
		errs = append(errs, "SUCCESSOR_MAX_ATTEMPTS must be at least 1")
	}

	if c.Schedule.IntervalsFile == "" {
		if _, err := c.Schedule.Table(); err != nil {
			errs = append(errs, fmt.Sprintf("SCHEDULE_INTERVALS: %v", err))
		}
	}

	if c.NATS.URL != "" && c.NATS.MaxAttempts < 1 {
		errs = append(errs, "NATS_MAX_ATTEMPTS must be at least 1")
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, "HTTP_PORT must be 0-65535")
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Observability.LogLevel))
	}
	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT %q must be json or text", c.Observability.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
