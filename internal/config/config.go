package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	LogFormat     string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Booking policy
	CancelNoticeHours   int
	NoShowGrace         time.Duration
	ReminderLeadTime    time.Duration
	BookingRetryMax     int
	DefaultTimezone     string
	DefaultSlotDuration int

	// Background sweeps
	SweepInterval time.Duration

	// Outbox delivery
	OutboxBatchSize int
	OutboxInterval  time.Duration

	// Event queue (optional; log delivery when unset)
	EventQueueURL       string
	AWSRegion           string
	AWSEndpointOverride string

	MetricsEnabled bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CancelNoticeHours:   getEnvAsInt("CANCEL_NOTICE_HOURS", 24),
		NoShowGrace:         getEnvAsDuration("NO_SHOW_GRACE", 30*time.Minute),
		ReminderLeadTime:    getEnvAsDuration("REMINDER_LEAD_TIME", 24*time.Hour),
		BookingRetryMax:     getEnvAsInt("BOOKING_RETRY_MAX", 3),
		DefaultTimezone:     getEnv("DEFAULT_TIMEZONE", "UTC"),
		DefaultSlotDuration: getEnvAsInt("DEFAULT_SLOT_DURATION_MINS", 30),

		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),

		OutboxBatchSize: getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		OutboxInterval:  getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),

		EventQueueURL:       getEnv("EVENT_QUEUE_URL", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}
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
