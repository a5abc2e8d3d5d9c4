package session

import (
	"context"
	"errors"
	"time"

	"github.com/kimizuy/taskboard/internal/auth/storage"
	apperrors "github.com/kimizuy/taskboard/internal/platform/errors"
)

// Manager validates session tokens against live account state and handles
// sliding renewal.
type Manager struct {
	codec    *Codec
	accounts storage.AccountStore
	clock    func() time.Time
}

// NewManager builds a session manager with the default clock.
func NewManager(codec *Codec, accounts storage.AccountStore) *Manager {
	return &Manager{
		codec:    codec,
		accounts: accounts,
		clock:    time.Now,
	}
}

// CreateSession issues a fresh full-lifetime token for the account.
func (m *Manager) CreateSession(account storage.Account) (string, error) {
	now := m.clock().UTC()
	return m.codec.Encode(Claims{
		AccountID: account.ID,
		Email:     account.Email,
		IssuedAt:  now,
		ExpiresAt: now.Add(TTL),
	})
}

// GetUser resolves the token to its account, or to a zero account when the
// token is missing, invalid, expired, or the account no longer exists. The
// second return is a replacement token, non-empty only when the session was
// close enough to expiry to be renewed.
func (m *Manager) GetUser(ctx context.Context, token string) (storage.Account, string, error) {
	if token == "" {
		return storage.Account{}, "", nil
	}
	claims, err := m.codec.Decode(token)
	if err != nil {
		return storage.Account{}, "", nil
	}

	now := m.clock().UTC()
	if !claims.ExpiresAt.After(now) {
		return storage.Account{}, "", nil
	}

	account, err := m.accounts.GetAccount(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Account{}, "", nil
		}
		return storage.Account{}, "", err
	}

	refreshed := ""
	if claims.ExpiresAt.Sub(now) < RefreshThreshold {
		refreshed, err = m.CreateSession(account)
		if err != nil {
			return storage.Account{}, "", err
		}
	}
	return account, refreshed, nil
}

// RequireUser resolves the token or fails with an authentication error.
func (m *Manager) RequireUser(ctx context.Context, token string) (storage.Account, string, error) {
	account, refreshed, err := m.GetUser(ctx, token)
	if err != nil {
		return storage.Account{}, "", err
	}
	if account.ID == 0 {
		return storage.Account{}, "", apperrors.New(apperrors.CodeUnauthenticated, "authentication required")
	}
	return account, refreshed, nil
}

// RequireVerifiedUser resolves the token and additionally requires a
// verified email address.
func (m *Manager) RequireVerifiedUser(ctx context.Context, token string) (storage.Account, string, error) {
	account, refreshed, err := m.RequireUser(ctx, token)
	if err != nil {
		return storage.Account{}, "", err
	}
	if !account.EmailVerified {
		return storage.Account{}, "", apperrors.New(apperrors.CodeEmailUnverified, "email address is not verified")
	}
	return account, refreshed, nil
}
