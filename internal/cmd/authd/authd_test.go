package authd

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("authd", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "taskboard.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Fatalf("expected default base url, got %q", cfg.BaseURL)
	}
	if cfg.CleanupInterval != 10*time.Minute {
		t.Fatalf("expected default cleanup interval, got %v", cfg.CleanupInterval)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	env := map[string]string{
		"TASKBOARD_DB_PATH":        "env.db",
		"TASKBOARD_BASE_URL":       "https://env.example.com",
		"TASKBOARD_SESSION_SECRET": "secret-from-env",
	}
	lookup := func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}

	fs := flag.NewFlagSet("authd", flag.ContinueOnError)
	args := []string{"-db", "flag.db", "-cleanup-interval", "1m"}
	cfg, err := ParseConfig(fs, args, lookup)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "flag.db" {
		t.Fatalf("expected flag db path, got %q", cfg.DBPath)
	}
	if cfg.BaseURL != "https://env.example.com" {
		t.Fatalf("expected env base url, got %q", cfg.BaseURL)
	}
	if cfg.SessionSecret != "secret-from-env" {
		t.Fatalf("expected env session secret, got %q", cfg.SessionSecret)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Fatalf("expected flag cleanup interval, got %v", cfg.CleanupInterval)
	}
}

func TestEnvOrDefaultSkipsBlankValues(t *testing.T) {
	lookup := func(key string) (string, bool) { return "   ", true }
	if got := envOrDefault(lookup, "ANY", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
