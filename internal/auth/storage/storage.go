// Package storage defines the persistence contracts for the auth core.
package storage

import (
	"context"
	"time"

	"github.com/kimizuy/taskboard/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// Account is the identity root. An account always carries at least one
// authentication method: a password hash, a passkey, or a Google subject.
type Account struct {
	ID                 int64
	Email              string
	PasswordHash       string // empty for passkey/OAuth-only accounts
	EmailVerified      bool
	GoogleID           string
	VerificationToken  *string    // present together with VerificationExpiry
	VerificationExpiry *time.Time // present together with VerificationToken
	CreatedAt          time.Time
}

// NewAccount describes the fields needed to create an account.
type NewAccount struct {
	Email         string
	PasswordHash  string
	EmailVerified bool
	GoogleID      string
	CreatedAt     time.Time
}

// AccountStore persists account records.
type AccountStore interface {
	CreateAccount(ctx context.Context, account NewAccount) (Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	GetAccountByGoogleID(ctx context.Context, googleID string) (Account, error)
	GetAccountByVerificationToken(ctx context.Context, token string) (Account, error)
	// SetVerificationToken replaces any live verification token for the account.
	SetVerificationToken(ctx context.Context, id int64, token string, expiry time.Time) error
	// ClearVerificationToken removes the token pair without verifying.
	ClearVerificationToken(ctx context.Context, id int64) error
	// MarkEmailVerified sets the verified flag and clears the token pair
	// in a single statement.
	MarkEmailVerified(ctx context.Context, id int64) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	// LinkGoogleAccount sets the external subject and marks the email
	// verified, since the provider vouches for it.
	LinkGoogleAccount(ctx context.Context, id int64, googleID string) error
}

// ResetToken is a single-use password reset token. At most one live row
// per account.
type ResetToken struct {
	AccountID int64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ResetTokenStore persists password reset tokens.
type ResetTokenStore interface {
	// PutResetToken stores a token, replacing any prior token for the account.
	PutResetToken(ctx context.Context, t ResetToken) error
	GetResetToken(ctx context.Context, token string) (ResetToken, error)
	DeleteResetToken(ctx context.Context, token string) error
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) error
}

// Passkey stores a WebAuthn credential for an account. The system keeps
// at most one passkey per account.
type Passkey struct {
	CredentialID   string // base64url, the response's top-level id
	AccountID      int64
	PublicKey      []byte
	SignCount      uint32
	Transports     string // JSON array of transport hints, may be empty
	AAGUID         []byte
	CredentialJSON string // full verifier credential record
	CreatedAt      time.Time
	LastUsedAt     *time.Time
}

// PasskeyStore persists WebAuthn credentials.
type PasskeyStore interface {
	PutPasskey(ctx context.Context, p Passkey) error
	GetPasskey(ctx context.Context, credentialID string) (Passkey, error)
	ListPasskeysByAccount(ctx context.Context, accountID int64) ([]Passkey, error)
	DeletePasskeysByAccount(ctx context.Context, accountID int64) error
	// UpdatePasskeyCounter persists the verifier's reported counter and
	// stamps last use.
	UpdatePasskeyCounter(ctx context.Context, credentialID string, signCount uint32, usedAt time.Time) error
}

// Challenge kinds.
const (
	ChallengeKindRegistration   = "registration"
	ChallengeKindAuthentication = "authentication"
)

// Challenge is one in-flight WebAuthn ceremony. A nil AccountID means the
// ceremony is not bound to a known account (passwordless login).
type Challenge struct {
	ID        int64
	Challenge string
	AccountID *int64
	Kind      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ChallengeStore persists ceremony challenges. Challenges are matched by
// recency, not by a client-supplied correlation id.
type ChallengeStore interface {
	PutChallenge(ctx context.Context, c Challenge) (Challenge, error)
	// LatestChallenge returns the most recently created challenge of the
	// given kind, regardless of account scope.
	LatestChallenge(ctx context.Context, kind string) (Challenge, error)
	// LatestChallengeForAccount returns the most recently created
	// challenge of the given kind scoped to the account.
	LatestChallengeForAccount(ctx context.Context, kind string, accountID int64) (Challenge, error)
	DeleteChallenge(ctx context.Context, id int64) error
	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}

// OAuthState is one in-flight authorization-code-with-PKCE flow.
type OAuthState struct {
	State        string
	CodeVerifier string
	Provider     string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// OAuthStateStore persists OAuth state rows.
type OAuthStateStore interface {
	PutOAuthState(ctx context.Context, s OAuthState) error
	GetOAuthState(ctx context.Context, state string) (OAuthState, error)
	DeleteOAuthState(ctx context.Context, state string) error
	DeleteExpiredOAuthStates(ctx context.Context, now time.Time) error
}
