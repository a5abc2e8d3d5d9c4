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

// PutOAuthState stores an in-flight authorization state row.
func (s *Store) PutOAuthState(ctx context.Context, state storage.OAuthState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(state.State) == "" {
		return fmt.Errorf("state is required")
	}
	if strings.TrimSpace(state.CodeVerifier) == "" {
		return fmt.Errorf("code verifier is required")
	}
	if strings.TrimSpace(state.Provider) == "" {
		return fmt.Errorf("provider is required")
	}
	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO oauth_states (state, code_verifier, provider, expires_at, created_at)
VALUES (?, ?, ?, ?, ?)`,
		state.State, state.CodeVerifier, state.Provider, toMillis(state.ExpiresAt), toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("insert oauth state: %w", err)
	}
	return nil
}

// GetOAuthState fetches a state row by its state value.
func (s *Store) GetOAuthState(ctx context.Context, state string) (storage.OAuthState, error) {
	if err := ctx.Err(); err != nil {
		return storage.OAuthState{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.OAuthState{}, err
	}
	if strings.TrimSpace(state) == "" {
		return storage.OAuthState{}, fmt.Errorf("state is required")
	}

	var record storage.OAuthState
	var expiresAt int64
	var createdAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT state, code_verifier, provider, expires_at, created_at
FROM oauth_states WHERE state = ?`, state).Scan(
		&record.State, &record.CodeVerifier, &record.Provider, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OAuthState{}, storage.ErrNotFound
		}
		return storage.OAuthState{}, fmt.Errorf("get oauth state: %w", err)
	}
	record.ExpiresAt = fromMillis(expiresAt)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// DeleteOAuthState removes a state row.
func (s *Store) DeleteOAuthState(ctx context.Context, state string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(state) == "" {
		return fmt.Errorf("state is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM oauth_states WHERE state = ?`, state)
	if err != nil {
		return fmt.Errorf("delete oauth state: %w", err)
	}
	return nil
}

// DeleteExpiredOAuthStates sweeps state rows past their expiry.
func (s *Store) DeleteExpiredOAuthStates(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return fmt.Errorf("delete expired oauth states: %w", err)
	}
	return nil
}
