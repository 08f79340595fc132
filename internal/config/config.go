package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config contains all runtime settings for the webhook auto-reply service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	// Meta WhatsApp Cloud API.
	MetaVerifyToken   string
	MetaAppSecret     string
	MetaAccessToken   string
	MetaPhoneNumberID string
	MetaAPIVersion    string
	MetaBaseURL       string
	MetaTimeout       time.Duration

	// Ollama chat backend.
	OllamaBaseURL string
	OllamaModel   string
	OllamaTimeout time.Duration

	// Storage: SQLite file by default, Postgres when DatabaseURL is set.
	SQLitePath  string
	DatabaseURL string

	// Per-sender rate limiting (messages per minute).
	RateLimitPerMinute int
}

// Load reads environment variables and applies safe defaults.
// The Meta credentials are required; everything else has a default.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "waply"),
		MetaAPIVersion:     envOrDefault("META_GRAPH_API_VERSION", "v25.0"),
		MetaBaseURL:        envOrDefault("META_GRAPH_BASE_URL", "https://graph.facebook.com"),
		OllamaBaseURL:      envOrDefault("OLLAMA_BASE_URL", "http://127.0.0.1:11434"),
		OllamaModel:        envOrDefault("OLLAMA_MODEL", "llama3.1:8b-instruct-q8_0"),
		SQLitePath:         envOrDefault("SQLITE_PATH", "./waply.sqlite"),
		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		RateLimitPerMinute: 10,
		ShutdownTimeout:    15 * time.Second,
		MetaTimeout:        15 * time.Second,
		OllamaTimeout:      120 * time.Second,
	}

	var err error
	if cfg.MetaVerifyToken, err = requireEnv("META_WA_VERIFY_TOKEN"); err != nil {
		return Config{}, err
	}
	if cfg.MetaAppSecret, err = requireEnv("META_APP_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.MetaAccessToken, err = requireEnv("META_WA_ACCESS_TOKEN"); err != nil {
		return Config{}, err
	}
	if cfg.MetaPhoneNumberID, err = requireEnv("META_WA_PHONE_NUMBER_ID"); err != nil {
		return Config{}, err
	}

	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MetaTimeout, err = durationFromEnv("META_TIMEOUT", cfg.MetaTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OllamaTimeout, err = durationFromEnv("OLLAMA_TIMEOUT", cfg.OllamaTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitPerMinute, err = intFromEnv("RATE_LIMIT_WA_PER_MINUTE", cfg.RateLimitPerMinute)
	if err != nil {
		return Config{}, err
	}

	if cfg.RateLimitPerMinute <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WA_PER_MINUTE must be positive")
	}
	if cfg.MetaTimeout <= 0 {
		return Config{}, fmt.Errorf("META_TIMEOUT must be positive")
	}
	if cfg.OllamaTimeout <= 0 {
		return Config{}, fmt.Errorf("OLLAMA_TIMEOUT must be positive")
	}
	if cfg.SQLitePath == "" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("SQLITE_PATH must not be empty when DATABASE_URL is unset")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := trimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func requireEnv(key string) (string, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return "", fmt.Errorf("missing required environment variable: %s", key)
	}
	return v, nil
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
