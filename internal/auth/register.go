package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/kimizuy/taskboard/internal/auth/password"
	"github.com/kimizuy/taskboard/internal/auth/storage"
	apperrors "github.com/kimizuy/taskboard/internal/platform/errors"
)

// Register creates an unverified account with a password credential, sends
// the verification email, and opens a session.
//
// A failed email delivery surfaces to the caller, but the account and its
// verification token are already persisted; a later resend reuses them.
func (s *Service) Register(ctx context.Context, email, plaintext string) (storage.Account, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return storage.Account{}, "", err
	}
	if len(plaintext) < minPasswordLen {
		return storage.Account{}, "", apperrors.New(apperrors.CodeInvalidPassword,
			fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}

	if _, err := s.accounts.GetAccountByEmail(ctx, email); err == nil {
		return storage.Account{}, "", apperrors.New(apperrors.CodeEmailTaken, "email is already registered")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.Account{}, "", fmt.Errorf("look up account: %w", err)
	}

	hash, err := password.Hash(plaintext)
	if err != nil {
		return storage.Account{}, "", fmt.Errorf("hash password: %w", err)
	}

	account, err := s.accounts.CreateAccount(ctx, storage.NewAccount{
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.clock().UTC(),
	})
	if err != nil {
		return storage.Account{}, "", fmt.Errorf("create account: %w", err)
	}

	if err := s.RequestVerification(ctx, account); err != nil {
		return storage.Account{}, "", err
	}

	sessionToken, err := s.sessions.CreateSession(account)
	if err != nil {
		return storage.Account{}, "", fmt.Errorf("create session: %w", err)
	}
	return account, sessionToken, nil
}

// normalizeEmail trims surrounding whitespace and validates the address
// shape. Stored case is preserved.
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperrors.New(apperrors.CodeInvalidEmail, "email is required")
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return "", apperrors.New(apperrors.CodeInvalidEmail, "email address is invalid")
	}
	return email, nil
}
