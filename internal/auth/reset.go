package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/kimizuy/taskboard/internal/auth/password"
	"github.com/kimizuy/taskboard/internal/auth/storage"
	apperrors "github.com/kimizuy/taskboard/internal/platform/errors"
	"github.com/kimizuy/taskboard/internal/platform/token"
)

// RequestReset issues a password reset token and emails the reset link.
// Unknown addresses and accounts without a password credential succeed
// silently with no mail sent, so the response never confirms whether an
// email is registered.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logf("request reset: look up account: %v", err)
		}
		return nil
	}
	if account.PasswordHash == "" {
		return nil
	}

	value, err := s.tokenGenerator()
	if err != nil {
		s.logf("request reset for account %d: generate token: %v", account.ID, err)
		return nil
	}
	now := s.clock().UTC()
	err = s.resetTokens.PutResetToken(ctx, storage.ResetToken{
		AccountID: account.ID,
		Token:     value,
		ExpiresAt: token.Expiry(now, resetTTL),
		CreatedAt: now,
	})
	if err != nil {
		s.logf("request reset for account %d: store token: %v", account.ID, err)
		return nil
	}

	subject, body := resetEmail(s.baseURL, value)
	if err := s.mailer.Send(ctx, account.Email, subject, body); err != nil {
		s.logf("request reset for account %d: send email: %v", account.ID, err)
	}
	return nil
}

// VerifyResetToken validates a reset token without consuming it, so the
// caller can render the new-password form first. Expired tokens are
// deleted on sight.
func (s *Service) VerifyResetToken(ctx context.Context, value string) (storage.Account, error) {
	invalid := apperrors.New(apperrors.CodeInvalidToken, "reset token is invalid")

	record, err := s.resetTokens.GetResetToken(ctx, value)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Account{}, invalid
		}
		return storage.Account{}, fmt.Errorf("look up reset token: %w", err)
	}

	if token.IsExpired(&record.ExpiresAt, s.clock().UTC()) {
		if err := s.resetTokens.DeleteResetToken(ctx, value); err != nil {
			s.logf("delete expired reset token for account %d: %v", record.AccountID, err)
		}
		return storage.Account{}, invalid
	}

	account, err := s.accounts.GetAccount(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Account{}, invalid
		}
		return storage.Account{}, fmt.Errorf("look up account: %w", err)
	}
	return account, nil
}

// ResetPassword consumes a reset token and replaces the account's password
// hash. The token is single-use: it is deleted after the update, and a
// second call with the same token fails validation.
func (s *Service) ResetPassword(ctx context.Context, value, newPassword string) error {
	account, err := s.VerifyResetToken(ctx, value)
	if err != nil {
		return err
	}
	if len(newPassword) < minPasswordLen {
		return apperrors.New(apperrors.CodeInvalidPassword,
			fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if err := s.resetTokens.DeleteResetToken(ctx, value); err != nil {
		return fmt.Errorf("delete reset token: %w", err)
	}
	return nil
}

func resetEmail(baseURL, value string) (subject, body string) {
	subject = "Reset your password"
	body = fmt.Sprintf(
		`<p>Someone requested a password reset for your Taskboard account.</p>
<p><a href="%s/reset-password?token=%s">Choose a new password</a></p>
<p>This link expires in 1 hour. If you did not request a reset, you can ignore this message.</p>`,
		baseURL, value)
	return subject, body
}
