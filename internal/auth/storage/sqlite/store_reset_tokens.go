package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kimizuy/taskboard/internal/auth/storage"
)

// PutResetToken stores a reset token, replacing any prior token for the
// same account. Replacement keeps the one-live-token-per-account
// invariant; the delete and insert are separate statements, an accepted
// race window.
func (s *Store) PutResetToken(ctx context.Context, t storage.ResetToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if t.AccountID == 0 {
		return fmt.Errorf("account id is required")
	}
	if strings.TrimSpace(t.Token) == "" {
		return fmt.Errorf("token is required")
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE account_id = ?`, t.AccountID); err != nil {
		return fmt.Errorf("delete prior reset token: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO password_reset_tokens (account_id, token, expires_at, created_at)
VALUES (?, ?, ?, ?)`,
		t.AccountID, t.Token, toMillis(t.ExpiresAt), toMillis(createdAt)); err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

// GetResetToken fetches a reset token by its token value.
func (s *Store) GetResetToken(ctx context.Context, token string) (storage.ResetToken, error) {
	if err := ctx.Err(); err != nil {
		return storage.ResetToken{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.ResetToken{}, err
	}
	if strings.TrimSpace(token) == "" {
		return storage.ResetToken{}, fmt.Errorf("token is required")
	}

	var record storage.ResetToken
	var expiresAt int64
	var createdAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT account_id, token, expires_at, created_at
FROM password_reset_tokens WHERE token = ?`, token).Scan(
		&record.AccountID, &record.Token, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ResetToken{}, storage.ErrNotFound
		}
		return storage.ResetToken{}, fmt.Errorf("get reset token: %w", err)
	}
	record.ExpiresAt = fromMillis(expiresAt)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// DeleteResetToken removes a reset token by value.
func (s *Store) DeleteResetToken(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete reset token: %w", err)
	}
	return nil
}

// DeleteExpiredResetTokens sweeps tokens past their expiry.
func (s *Store) DeleteExpiredResetTokens(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return fmt.Errorf("delete expired reset tokens: %w", err)
	}
	return nil
}
