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

const challengeColumns = `id, challenge, account_id, kind, expires_at, created_at`

// PutChallenge inserts a ceremony challenge row and returns it with its
// assigned id.
func (s *Store) PutChallenge(ctx context.Context, c storage.Challenge) (storage.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return storage.Challenge{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.Challenge{}, err
	}
	if strings.TrimSpace(c.Challenge) == "" {
		return storage.Challenge{}, fmt.Errorf("challenge is required")
	}
	if c.Kind != storage.ChallengeKindRegistration && c.Kind != storage.ChallengeKindAuthentication {
		return storage.Challenge{}, fmt.Errorf("unknown challenge kind %q", c.Kind)
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	accountID := sql.NullInt64{}
	if c.AccountID != nil {
		accountID = sql.NullInt64{Int64: *c.AccountID, Valid: true}
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO webauthn_challenges (challenge, account_id, kind, expires_at, created_at)
VALUES (?, ?, ?, ?, ?)`,
		c.Challenge, accountID, c.Kind, toMillis(c.ExpiresAt), toMillis(createdAt))
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("insert challenge: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("challenge id: %w", err)
	}
	c.ID = id
	c.CreatedAt = fromMillis(toMillis(createdAt))
	c.ExpiresAt = fromMillis(toMillis(c.ExpiresAt))
	return c, nil
}

// LatestChallenge returns the most recently created challenge of the
// given kind, regardless of account scope.
func (s *Store) LatestChallenge(ctx context.Context, kind string) (storage.Challenge, error) {
	return s.latestChallengeWhere(ctx, `kind = ?`, kind)
}

// LatestChallengeForAccount returns the most recently created challenge
// of the given kind scoped to an account.
func (s *Store) LatestChallengeForAccount(ctx context.Context, kind string, accountID int64) (storage.Challenge, error) {
	return s.latestChallengeWhere(ctx, `kind = ? AND account_id = ?`, kind, accountID)
}

// DeleteChallenge removes a challenge row. Missing rows are not an error;
// single-use deletion may race a sweeper.
func (s *Store) DeleteChallenge(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM webauthn_challenges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

// DeleteExpiredChallenges sweeps challenges past their expiry.
func (s *Store) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM webauthn_challenges WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return fmt.Errorf("delete expired challenges: %w", err)
	}
	return nil
}

func (s *Store) latestChallengeWhere(ctx context.Context, where string, args ...any) (storage.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return storage.Challenge{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.Challenge{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+challengeColumns+` FROM webauthn_challenges
WHERE `+where+`
ORDER BY created_at DESC, id DESC
LIMIT 1`, args...)

	var record storage.Challenge
	var accountID sql.NullInt64
	var expiresAt int64
	var createdAt int64
	err := row.Scan(&record.ID, &record.Challenge, &accountID, &record.Kind, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Challenge{}, storage.ErrNotFound
		}
		return storage.Challenge{}, fmt.Errorf("latest challenge: %w", err)
	}
	if accountID.Valid {
		value := accountID.Int64
		record.AccountID = &value
	}
	record.ExpiresAt = fromMillis(expiresAt)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}
