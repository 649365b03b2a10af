package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string
	DatabaseURL    string // empty runs on the in-memory store
	RedisURL       string
	JWTSecret      string
	AdminGroup     string

	ResultsLive       bool // show tallies before a poll closes
	RangeScoring      string
	RangeScoringTable string

	KafkaBrokers []string
	KafkaTopic   string

	SchedulerPollInterval time.Duration
	SweepInterval         time.Duration
	ReminderWindow        time.Duration
	ExtensionPeriod       time.Duration
	ExtensionQuorum       float64

	DescriptionMinLength int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigins:        parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		Environment:           getEnv("ENVIRONMENT", "production"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		AdminGroup:            getEnv("ADMIN_GROUP", "Admin"),
		ResultsLive:           getBoolEnv("RESULTS_LIVE", false),
		RangeScoring:          strings.ToLower(getEnv("RANGE_SCORING", "borda")),
		RangeScoringTable:     getEnv("RANGE_SCORING_TABLE", ""),
		KafkaBrokers:          parseList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "remo.voting.notifications"),
		SchedulerPollInterval: getDurationEnv("SCHEDULER_POLL_INTERVAL", 5*time.Second),
		SweepInterval:         getDurationEnv("SWEEP_INTERVAL", 10*time.Minute),
		ReminderWindow:        getDurationEnv("REMINDER_WINDOW", 24*time.Hour),
		ExtensionPeriod:       getDurationEnv("EXTENSION_PERIOD", 48*time.Hour),
		ExtensionQuorum:       getFloatEnv("EXTENSION_QUORUM", 0.5),
		DescriptionMinLength:  getIntEnv("DESCRIPTION_MIN_LENGTH", 20),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	switch c.RangeScoring {
	case "borda", "plurality":
	case "table":
		if strings.TrimSpace(c.RangeScoringTable) == "" {
			return fmt.Errorf("RANGE_SCORING=table requires RANGE_SCORING_TABLE")
		}
	default:
		return fmt.Errorf("unknown RANGE_SCORING %q", c.RangeScoring)
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.KafkaTopic == "" && len(c.KafkaBrokers) > 0 {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.ExtensionQuorum < 0 || c.ExtensionQuorum > 1 {
		return fmt.Errorf("EXTENSION_QUORUM must be within [0, 1], got %v", c.ExtensionQuorum)
	}
	for name, d := range map[string]time.Duration{
		"SCHEDULER_POLL_INTERVAL": c.SchedulerPollInterval,
		"SWEEP_INTERVAL":          c.SweepInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.ReminderWindow < 0 || c.ExtensionPeriod < 0 {
		return fmt.Errorf("REMINDER_WINDOW and EXTENSION_PERIOD must not be negative")
	}
	if c.DescriptionMinLength < 0 {
		return fmt.Errorf("DESCRIPTION_MIN_LENGTH must not be negative")
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseList parses a comma-separated value into a slice
func parseList(raw string) []string {
	if raw == "" {
		return []string{}
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
