// Package auth orchestrates the account authentication flows: registration,
// password login, email verification, password reset, passkey ceremonies,
// and Google sign-in.
package auth

import (
	"log"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/kimizuy/taskboard/internal/auth/passkey"
	"github.com/kimizuy/taskboard/internal/auth/session"
	"github.com/kimizuy/taskboard/internal/auth/storage"
	"github.com/kimizuy/taskboard/internal/mail"
	"github.com/kimizuy/taskboard/internal/platform/token"
)

// Token lifetimes.
const (
	verificationTTL = 24 * time.Hour
	resetTTL        = time.Hour
	oauthStateTTL   = 10 * time.Minute
)

// minPasswordLen is the shortest accepted password.
const minPasswordLen = 8

// Store is the combined persistence surface the flows depend on. The
// SQLite store satisfies all of it; tests swap in per-interface fakes.
type Store interface {
	storage.AccountStore
	storage.ResetTokenStore
	storage.PasskeyStore
	storage.ChallengeStore
	storage.OAuthStateStore
}

// Service implements the authentication flows over injected collaborators.
type Service struct {
	accounts    storage.AccountStore
	resetTokens storage.ResetTokenStore
	passkeys    storage.PasskeyStore
	challenges  storage.ChallengeStore
	oauthStates storage.OAuthStateStore

	sessions *session.Manager
	mailer   mail.Mailer

	passkeyConfig   passkey.Config
	passkeyWebAuthn passkeyProvider
	passkeyInitErr  error
	passkeyParser   passkeyParser

	google googleProvider

	// baseURL prefixes the links embedded in outbound email.
	baseURL string

	clock          func() time.Time
	tokenGenerator func() (string, error)
	logger         *log.Logger
}

// New builds a service with defaults for the auth package.
//
// Defaults are assembled here so callers can treat this as the canonical
// auth domain entrypoint.
func New(store Store, sessions *session.Manager, mailer mail.Mailer, baseURL string) *Service {
	config := passkey.LoadConfigFromEnv()
	webAuthn, err := webauthn.New(&webauthn.Config{
		RPDisplayName: config.RPDisplayName,
		RPID:          config.RPID,
		RPOrigins:     config.RPOrigins,
	})
	return &Service{
		accounts:        store,
		resetTokens:     store,
		passkeys:        store,
		challenges:      store,
		oauthStates:     store,
		sessions:        sessions,
		mailer:          mailer,
		passkeyConfig:   config,
		passkeyWebAuthn: webAuthn,
		passkeyInitErr:  err,
		passkeyParser:   defaultPasskeyParser{},
		baseURL:         baseURL,
		clock:           time.Now,
		tokenGenerator:  token.Generate,
		logger:          log.Default(),
	}
}

// SetGoogleProvider wires the Google OAuth client. Without it the Google
// flow operations fail with a configuration error.
func (s *Service) SetGoogleProvider(provider googleProvider) {
	s.google = provider
}

// logf logs on paths where failures are swallowed but must stay observable.
func (s *Service) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
