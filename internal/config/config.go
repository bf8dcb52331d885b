package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds client configuration
type Config struct {
	Env       string
	LogLevel  string `validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `validate:"omitempty,oneof=json text"`

	// Remote booking API
	APIBaseURL     string        `validate:"required,url"`
	RequestTimeout time.Duration `validate:"gt=0"`
	CommandTimeout time.Duration `validate:"gt=0"`
	CalendarDays   int           `validate:"gt=0"`

	// Session persistence
	SessionStore  string        `validate:"oneof=memory redis"`
	SessionTTL    time.Duration `validate:"gte=0"`
	RedisAddr     string        `validate:"required_if=SessionStore redis"`
	RedisPassword string
	RedisTLS      bool

	// Optional /metrics + /healthz listener, disabled when empty
	MetricsAddr string

	// Admin CLI credentials
	AdminDocument  string
	AdminBirthDate string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:       getEnv("ENV", "development"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		APIBaseURL:     strings.TrimRight(getEnv("CITAS_API_URL", "http://127.0.0.1:5000"), "/"),
		RequestTimeout: getEnvAsDuration("CITAS_REQUEST_TIMEOUT", 10*time.Second),
		CommandTimeout: getEnvAsDuration("CITAS_COMMAND_TIMEOUT", 30*time.Second),
		CalendarDays:   getEnvAsInt("CITAS_CALENDAR_DAYS", 60),

		SessionStore:  strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", "memory"))),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 12*time.Hour),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		MetricsAddr: getEnv("METRICS_ADDR", ""),

		AdminDocument:  getEnv("CITAS_ADMIN_DOC", ""),
		AdminBirthDate: getEnv("CITAS_ADMIN_BIRTH", ""),
	}
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
