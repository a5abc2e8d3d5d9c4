package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/kimizuy/taskboard/internal/auth/password"
	"github.com/kimizuy/taskboard/internal/auth/storage"
	apperrors "github.com/kimizuy/taskboard/internal/platform/errors"
)

// Login authenticates a password credential and opens a session.
//
// Every authentication failure collapses into one generic error so the
// response never reveals whether the email exists, lacks a password, or
// the password was wrong.
func (s *Service) Login(ctx context.Context, email, plaintext string) (storage.Account, string, error) {
	failed := apperrors.New(apperrors.CodeAuthenticationFailed, "invalid email or password")

	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Account{}, "", failed
		}
		return storage.Account{}, "", fmt.Errorf("look up account: %w", err)
	}
	if account.PasswordHash == "" {
		return storage.Account{}, "", failed
	}
	if !password.Verify(plaintext, account.PasswordHash) {
		return storage.Account{}, "", failed
	}

	sessionToken, err := s.sessions.CreateSession(account)
	if err != nil {
		return storage.Account{}, "", fmt.Errorf("create session: %w", err)
	}
	return account, sessionToken, nil
}
