package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/kimizuy/taskboard/internal/auth/storage"
	apperrors "github.com/kimizuy/taskboard/internal/platform/errors"
	"github.com/kimizuy/taskboard/internal/platform/token"
)

// RequestVerification issues a fresh verification token for the account,
// replacing any prior one, and delivers the verification email. Delivery
// failure surfaces to the caller; the persisted token stays valid so a
// resend does not need to regenerate it.
func (s *Service) RequestVerification(ctx context.Context, account storage.Account) error {
	value, err := s.tokenGenerator()
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}
	expiry := token.Expiry(s.clock(), verificationTTL)
	if err := s.accounts.SetVerificationToken(ctx, account.ID, value, expiry); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	subject, body := verificationEmail(s.baseURL, value)
	if err := s.mailer.Send(ctx, account.Email, subject, body); err != nil {
		return apperrors.Wrap(apperrors.CodeEmailDeliveryFailed, "send verification email", err)
	}
	return nil
}

// ResendVerification regenerates and resends the verification token when
// the email belongs to an unverified account. Every outcome looks like
// success to the caller; failures are only logged.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logf("resend verification: look up account: %v", err)
		}
		return nil
	}
	if account.EmailVerified {
		return nil
	}
	if err := s.RequestVerification(ctx, account); err != nil {
		s.logf("resend verification for account %d: %v", account.ID, err)
	}
	return nil
}

// VerifyEmail consumes a verification token and marks the account verified.
// An expired token is deleted on sight; a consumed token cannot be replayed
// because verification clears it from the account row.
func (s *Service) VerifyEmail(ctx context.Context, value string) (storage.Account, error) {
	invalid := apperrors.New(apperrors.CodeInvalidToken, "verification token is invalid")

	account, err := s.accounts.GetAccountByVerificationToken(ctx, value)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Account{}, invalid
		}
		return storage.Account{}, fmt.Errorf("look up verification token: %w", err)
	}

	if token.IsExpired(account.VerificationExpiry, s.clock().UTC()) {
		if err := s.accounts.ClearVerificationToken(ctx, account.ID); err != nil {
			s.logf("clear expired verification token for account %d: %v", account.ID, err)
		}
		return storage.Account{}, invalid
	}

	if err := s.accounts.MarkEmailVerified(ctx, account.ID); err != nil {
		return storage.Account{}, fmt.Errorf("mark email verified: %w", err)
	}
	account.EmailVerified = true
	account.VerificationToken = nil
	account.VerificationExpiry = nil
	return account, nil
}

func verificationEmail(baseURL, value string) (subject, body string) {
	subject = "Verify your email address"
	body = fmt.Sprintf(
		`<p>Welcome to Taskboard. Confirm your email address to finish setting up your account.</p>
<p><a href="%s/verify-email?token=%s">Verify email</a></p>
<p>This link expires in 24 hours. If you did not create an account, you can ignore this message.</p>`,
		baseURL, value)
	return subject, body
}
