// Package config loads process configuration from the environment into a
// single Config value, which callers pass explicitly into constructors
// rather than reaching for package-level state.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-tunable knob described in spec.md §6.
type Config struct {
	Port string

	DBPath   string
	QueueURL string

	WorkerCount int

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	LLMMockEnabled     bool
	LLMMockFailureType string
	LLMMockProbability float64

	CallTimeout time.Duration
	StepTimeout time.Duration
	JobTimeout  time.Duration

	AllowedExtensions []string
	MaxFileSizeBytes  int64
	MaxContentChars   int
	MaxEstimatedSecs  int

	MetricRetentionDays int

	DataDir string
}

// Load builds a Config from the environment, applying the defaults named in
// spec.md §6.
func Load() Config {
	return Config{
		Port:     envOr("PORT", "8080"),
		DBPath:   envOr("DB_URL", "file:itdoc.db"),
		QueueURL: envOr("QUEUE_URL", "nats://127.0.0.1:4222"),

		WorkerCount: envInt("WORKER_COUNT", 0), // not read by any component; cmd/worker runs one queue consumer

		LLMBaseURL: envOr("LLM_BASE_URL", "http://127.0.0.1:11434"),
		LLMAPIKey:  envOr("LLM_API_KEY", ""),
		LLMModel:   envOr("LLM_MODEL", "default"),

		LLMMockEnabled:     envBool("LLM_MOCK_ENABLED", false),
		LLMMockFailureType: envOr("LLM_MOCK_FAILURE_TYPE", "timeout"),
		LLMMockProbability: envFloat("LLM_MOCK_PROBABILITY", 0.0),

		CallTimeout: envDuration("LLM_CALL_TIMEOUT", 60*time.Second),
		StepTimeout: envDuration("VIEW_STEP_TIMEOUT", 120*time.Second),
		JobTimeout:  envDuration("JOB_TIMEOUT", 600*time.Second),

		AllowedExtensions: []string{"pdf", "docx", "pptx", "md", "txt"},
		MaxFileSizeBytes:  envInt64("MAX_FILE_SIZE_BYTES", 30*1024*1024),
		MaxContentChars:   envInt("MAX_CONTENT_CHARS", 500_000),
		MaxEstimatedSecs:  envInt("MAX_ESTIMATED_SECS", 600),

		MetricRetentionDays: envInt("METRIC_RETENTION_DAYS", 30),

		DataDir: envOr("DATA_DIR", "/tmp/itdoc-data"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// IsAllowedExtension reports whether ext (without leading dot, lowercase) is
// in the allowed set.
func (c Config) IsAllowedExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range c.AllowedExtensions {
		if a == ext {
			return true
		}
	}
	return false
}
