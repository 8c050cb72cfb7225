package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration, loaded from the environment
// (and an optional .env file) once at process start.
type Config struct {
	// Server (non-core ops surface)
	Port    int
	DevMode bool

	// Database
	DatabasePath string

	// LLM gateway
	LLMBaseURL      string
	LLMAPIKey       string
	LLMModel        string
	LLMTimeout      time.Duration
	LLMMaxRetries   int
	LLMRetryDelay   time.Duration

	// Scheduler
	ScheduleInterval time.Duration
	StartupDelay     time.Duration
	ShutdownGrace    time.Duration

	// Content extractor
	ExtractorHTTPTimeout time.Duration
	ExtractorPDFTimeout  time.Duration
	MaxPDFSizeBytes      int64
	AdapterMinInterval   time.Duration

	// Ranker thresholds
	ThresholdKeyEvents float64
	ThresholdOtherNews float64
	MaxKeyEvents       int
	MaxEventAgeDays    int

	LogLevel string
}

// Load reads configuration from environment variables, falling back to
// sensible defaults for everything except the LLM API key.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/marketintel.db"),

		LLMBaseURL:    getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:     getEnv("LLM_API_KEY", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:    getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),
		LLMMaxRetries: getEnvAsInt("LLM_MAX_RETRIES", 3),
		LLMRetryDelay: getEnvAsDuration("LLM_RETRY_DELAY", 2*time.Second),

		ScheduleInterval: getEnvAsDuration("SCHEDULE_INTERVAL", time.Hour),
		StartupDelay:     getEnvAsDuration("STARTUP_DELAY", time.Minute),
		ShutdownGrace:    getEnvAsDuration("SHUTDOWN_GRACE", 5*time.Minute),

		ExtractorHTTPTimeout: getEnvAsDuration("EXTRACTOR_HTTP_TIMEOUT", 60*time.Second),
		ExtractorPDFTimeout:  getEnvAsDuration("EXTRACTOR_PDF_TIMEOUT", 15*time.Minute),
		MaxPDFSizeBytes:      int64(getEnvAsInt("MAX_PDF_SIZE_BYTES", 50*1024*1024)),
		AdapterMinInterval:   getEnvAsDuration("ADAPTER_MIN_INTERVAL", 2*time.Second),

		ThresholdKeyEvents: getEnvAsFloat("THRESHOLD_KEY_EVENTS", 70),
		ThresholdOtherNews: getEnvAsFloat("THRESHOLD_OTHER_NEWS", 40),
		MaxKeyEvents:       getEnvAsInt("MAX_KEY_EVENTS", 20),
		MaxEventAgeDays:    getEnvAsInt("MAX_EVENT_AGE_DAYS", 30),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.LLMBaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
