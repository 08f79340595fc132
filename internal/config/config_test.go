package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	setCoreEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.MetaAPIVersion != "v25.0" {
		t.Fatalf("MetaAPIVersion = %q, want %q", cfg.MetaAPIVersion, "v25.0")
	}
	if cfg.OllamaBaseURL != "http://127.0.0.1:11434" {
		t.Fatalf("OllamaBaseURL = %q, want default", cfg.OllamaBaseURL)
	}
	if cfg.RateLimitPerMinute != 10 {
		t.Fatalf("RateLimitPerMinute = %d, want 10", cfg.RateLimitPerMinute)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
}

func TestLoadRequiresMetaCredentials(t *testing.T) {
	setCoreEnv(t)
	t.Setenv("META_APP_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for missing META_APP_SECRET")
	}
}

func TestLoadUsesExplicitOverrides(t *testing.T) {
	setCoreEnv(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("RATE_LIMIT_WA_PER_MINUTE", "3")
	t.Setenv("OLLAMA_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9191")
	}
	if cfg.RateLimitPerMinute != 3 {
		t.Fatalf("RateLimitPerMinute = %d, want 3", cfg.RateLimitPerMinute)
	}
	if cfg.OllamaTimeout != 30*time.Second {
		t.Fatalf("OllamaTimeout = %v, want 30s", cfg.OllamaTimeout)
	}
}

func TestLoadRejectsInvalidRateLimit(t *testing.T) {
	setCoreEnv(t)
	t.Setenv("RATE_LIMIT_WA_PER_MINUTE", "zero")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected parse error for RATE_LIMIT_WA_PER_MINUTE")
	}

	t.Setenv("RATE_LIMIT_WA_PER_MINUTE", "-1")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for negative RATE_LIMIT_WA_PER_MINUTE")
	}
}

func setCoreEnv(t *testing.T) {
	t.Helper()
	t.Setenv("META_WA_VERIFY_TOKEN", "verify-token")
	t.Setenv("META_APP_SECRET", "app-secret")
	t.Setenv("META_WA_ACCESS_TOKEN", "access-token")
	t.Setenv("META_WA_PHONE_NUMBER_ID", "12345")
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"META_GRAPH_API_VERSION",
		"META_GRAPH_BASE_URL",
		"META_TIMEOUT",
		"OLLAMA_BASE_URL",
		"OLLAMA_MODEL",
		"OLLAMA_TIMEOUT",
		"SQLITE_PATH",
		"DATABASE_URL",
		"RATE_LIMIT_WA_PER_MINUTE",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
