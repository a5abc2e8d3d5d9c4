// Package authd wires the auth daemon: configuration, store, mailer,
// session manager, and the expired-row sweeper.
package authd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kimizuy/taskboard/internal/auth"
	"github.com/kimizuy/taskboard/internal/auth/session"
	"github.com/kimizuy/taskboard/internal/auth/storage/sqlite"
	"github.com/kimizuy/taskboard/internal/mail"
)

// Config holds authd command configuration.
type Config struct {
	DBPath          string
	BaseURL         string
	SessionSecret   string
	CleanupInterval time.Duration
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config. Environment values provide the
// defaults and flags override them.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		DBPath:          envOrDefault(lookup, "TASKBOARD_DB_PATH", "taskboard.db"),
		BaseURL:         envOrDefault(lookup, "TASKBOARD_BASE_URL", "http://localhost:8080"),
		SessionSecret:   envOrDefault(lookup, "TASKBOARD_SESSION_SECRET", ""),
		CleanupInterval: 10 * time.Minute,
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite database file")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL embedded in outbound email links")
	fs.DurationVar(&cfg.CleanupInterval, "cleanup-interval", cfg.CleanupInterval, "How often expired tokens and challenges are swept")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the store, assembles the auth service, and sweeps expired rows
// until the context is cancelled.
func Run(ctx context.Context, cfg Config) error {
	if cfg.SessionSecret == "" {
		return fmt.Errorf("TASKBOARD_SESSION_SECRET is required")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	codec, err := session.NewCodec([]byte(cfg.SessionSecret))
	if err != nil {
		return fmt.Errorf("session codec: %w", err)
	}
	sessions := session.NewManager(codec, store)

	mailer, closeMailer, err := buildMailer()
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}
	defer closeMailer()

	service := auth.New(store, sessions, mailer, cfg.BaseURL)

	googleCfg, err := auth.LoadGoogleConfigFromEnv()
	if err != nil {
		return fmt.Errorf("google config: %w", err)
	}
	if strings.TrimSpace(googleCfg.ClientID) != "" {
		provider, err := auth.NewGoogleProvider(googleCfg)
		if err != nil {
			return fmt.Errorf("google provider: %w", err)
		}
		service.SetGoogleProvider(provider)
		log.Printf("google sign-in enabled")
	} else {
		log.Printf("google sign-in disabled: no client id configured")
	}

	log.Printf("auth store ready at %s", cfg.DBPath)

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sweepExpired(ctx, store)
		}
	}
}

// sweepExpired removes rows whose deadlines have passed. Failures are
// logged; the next tick retries.
func sweepExpired(ctx context.Context, store *sqlite.Store) {
	now := time.Now().UTC()
	if err := store.DeleteExpiredChallenges(ctx, now); err != nil {
		log.Printf("sweep challenges: %v", err)
	}
	if err := store.DeleteExpiredOAuthStates(ctx, now); err != nil {
		log.Printf("sweep oauth states: %v", err)
	}
	if err := store.DeleteExpiredResetTokens(ctx, now); err != nil {
		log.Printf("sweep reset tokens: %v", err)
	}
}

// buildMailer returns an SMTP mailer when a host is configured, otherwise
// a mailer that logs messages instead of delivering them.
func buildMailer() (mail.Mailer, func(), error) {
	cfg, err := mail.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(cfg.Host) == "" {
		log.Printf("smtp host not configured; outbound email will be logged only")
		return logMailer{}, func() {}, nil
	}
	smtp, err := mail.NewSMTPMailer(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeMailer := func() {
		if err := smtp.Close(); err != nil {
			log.Printf("close mailer: %v", err)
		}
	}
	return smtp, closeMailer, nil
}

type logMailer struct{}

func (logMailer) Send(_ context.Context, to, subject, _ string) error {
	log.Printf("mail to %s: %s", to, subject)
	return nil
}

func envOrDefault(lookup EnvLookup, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
