// Package config provides application configuration loaded from environment
// variables (optionally seeded from a .env file) with defaults and validation.
// It centralizes the generator's settings: model access, corpus location,
// batching, duplicate filtering, quota ceilings, retry policy, logging, the
// run journal, the ops server, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tbourn/go-idea-generator/internal/sysutil"
)

// ErrMissingAPIKey is returned when no model credential is configured.
var ErrMissingAPIKey = errors.New("GOOGLE_API_KEY must be set")

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "ideagen")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// GeminiConfig holds the text-generation service settings.
type GeminiConfig struct {
	APIKey      string        // GOOGLE_API_KEY (fallback GEMINI_API_KEY)
	Model       string        // e.g. gemini-2.0-flash
	BaseURL     string        // API root, overridable for proxies/tests
	Timeout     time.Duration // per-request HTTP timeout
	Temperature float64       // sampling temperature [0,2]
}

// QuotaConfig holds the call ceilings enforced before each dispatch.
type QuotaConfig struct {
	DayLimit    int           // calls per calendar day (soft tracking)
	MinuteLimit int           // calls per 60s (soft tracking + hard throttle)
	Pause       time.Duration // wait between re-checks when the soft quota is spent
}

// RetryConfig holds the per-batch retry policy.
type RetryConfig struct {
	Attempts  int           // total attempts per batch (>= 1)
	BaseDelay time.Duration // first backoff delay, doubled each attempt
}

// Config holds all configuration values for the application.
type Config struct {
	// Model
	Gemini GeminiConfig

	// Corpus
	OutputPath string // CSV file appended to across runs
	BatchSize  int    // ideas requested per call
	MaxBatches int    // batches per run

	// Duplicate filtering
	DedupeEnabled   bool    // false => exact-match filtering only
	DedupeThreshold float64 // partial-ratio score in [0,100]

	// Throttling
	Quota      QuotaConfig
	Retry      RetryConfig
	BatchDelay time.Duration // pause between batches

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // console logs in dev

	// Journal / ops
	JournalPath string // SQLite path for the run journal
	OpsAddr     string // ops HTTP listen address; empty disables the server

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadDotEnv seeds the process environment from the given .env files (default
// ".env"). Missing files are ignored; values already set in the environment
// win, matching godotenv.Load semantics.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Gemini: GeminiConfig{
			APIKey:      strings.TrimSpace(sysutil.FirstNonEmpty(os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY"))),
			Model:       getenv("GEMINI_MODEL", "gemini-2.0-flash"),
			BaseURL:     strings.TrimRight(getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"), "/"),
			Timeout:     getdur("GEMINI_TIMEOUT", 60*time.Second),
			Temperature: getfloat("GEMINI_TEMPERATURE", 1.0),
		},

		OutputPath: getenv("OUTPUT_PATH", "project_ideas.csv"),
		BatchSize:  getint("BATCH_SIZE", 100),
		MaxBatches: getint("MAX_BATCHES", 200),

		DedupeEnabled:   getbool("DEDUPE_ENABLED", true),
		DedupeThreshold: getfloat("DEDUPE_THRESHOLD", 90),

		Quota: QuotaConfig{
			DayLimit:    getint("QUOTA_DAY_LIMIT", 1499),
			MinuteLimit: getint("QUOTA_MINUTE_LIMIT", 15),
			Pause:       getdur("QUOTA_PAUSE", 5*time.Second),
		},
		Retry: RetryConfig{
			Attempts:  getint("RETRY_ATTEMPTS", 3),
			BaseDelay: getdur("RETRY_BASE_DELAY", 2*time.Second),
		},
		BatchDelay: getdur("BATCH_DELAY", 5*time.Second),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		JournalPath: getenv("JOURNAL_DB_PATH", "ideagen.db"),
		OpsAddr:     strings.TrimSpace(os.Getenv("OPS_ADDR")),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "ideagen"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	// --- validation ---
	if cfg.Gemini.APIKey == "" {
		return cfg, ErrMissingAPIKey
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Gemini.Model) == "" {
		return cfg, errors.New("GEMINI_MODEL must not be empty")
	}
	if cfg.Gemini.Timeout <= 0 {
		return cfg, errors.New("GEMINI_TIMEOUT must be a positive duration")
	}
	if cfg.Gemini.Temperature < 0 || cfg.Gemini.Temperature > 2 {
		return cfg, errors.New("GEMINI_TEMPERATURE must be between 0 and 2")
	}
	if strings.TrimSpace(cfg.OutputPath) == "" {
		return cfg, errors.New("OUTPUT_PATH must not be empty")
	}
	if cfg.BatchSize < 1 {
		return cfg, errors.New("BATCH_SIZE must be >= 1")
	}
	if cfg.MaxBatches < 1 {
		return cfg, errors.New("MAX_BATCHES must be >= 1")
	}
	if cfg.DedupeThreshold < 0 || cfg.DedupeThreshold > 100 {
		return cfg, errors.New("DEDUPE_THRESHOLD must be between 0 and 100")
	}
	if cfg.Quota.DayLimit < 1 || cfg.Quota.MinuteLimit < 1 {
		return cfg, errors.New("QUOTA_DAY_LIMIT and QUOTA_MINUTE_LIMIT must be >= 1")
	}
	if cfg.Quota.MinuteLimit > cfg.Quota.DayLimit {
		return cfg, fmt.Errorf("QUOTA_MINUTE_LIMIT (%d) must not exceed QUOTA_DAY_LIMIT (%d)", cfg.Quota.MinuteLimit, cfg.Quota.DayLimit)
	}
	if cfg.Quota.Pause <= 0 {
		return cfg, errors.New("QUOTA_PAUSE must be a positive duration")
	}
	if cfg.Retry.Attempts < 1 {
		return cfg, errors.New("RETRY_ATTEMPTS must be >= 1")
	}
	if cfg.Retry.BaseDelay <= 0 {
		return cfg, errors.New("RETRY_BASE_DELAY must be a positive duration")
	}
	if cfg.BatchDelay < 0 {
		return cfg, errors.New("BATCH_DELAY must be >= 0")
	}
	if strings.TrimSpace(cfg.JournalPath) == "" {
		return cfg, errors.New("JOURNAL_DB_PATH must not be empty")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// Redacted returns a copy safe for logging.
func (c Config) Redacted() Config {
	if c.Gemini.APIKey != "" {
		c.Gemini.APIKey = "***REDACTED***"
	}
	return c
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

// getdur accepts Go durations ("5s", "1m") and bare integers as seconds.
func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
