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

const passkeyColumns = `credential_id, account_id, public_key, sign_count, transports, aaguid, credential_json, created_at, last_used_at`

// PutPasskey stores a WebAuthn credential.
func (s *Store) PutPasskey(ctx context.Context, p storage.Passkey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(p.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if p.AccountID == 0 {
		return fmt.Errorf("account id is required")
	}
	if strings.TrimSpace(p.CredentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	lastUsed := sql.NullInt64{}
	if p.LastUsedAt != nil {
		lastUsed = sql.NullInt64{Int64: toMillis(*p.LastUsedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO passkeys (credential_id, account_id, public_key, sign_count, transports, aaguid, credential_json, created_at, last_used_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(credential_id) DO UPDATE SET
	public_key = excluded.public_key,
	sign_count = excluded.sign_count,
	transports = excluded.transports,
	aaguid = excluded.aaguid,
	credential_json = excluded.credential_json,
	last_used_at = excluded.last_used_at`,
		p.CredentialID, p.AccountID, p.PublicKey, p.SignCount, p.Transports,
		p.AAGUID, p.CredentialJSON, toMillis(createdAt), lastUsed,
	)
	if err != nil {
		return fmt.Errorf("put passkey: %w", err)
	}
	return nil
}

// GetPasskey fetches a stored credential by id.
func (s *Store) GetPasskey(ctx context.Context, credentialID string) (storage.Passkey, error) {
	if err := ctx.Err(); err != nil {
		return storage.Passkey{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.Passkey{}, err
	}
	if strings.TrimSpace(credentialID) == "" {
		return storage.Passkey{}, fmt.Errorf("credential id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+passkeyColumns+` FROM passkeys WHERE credential_id = ?`, credentialID)
	record, err := scanPasskey(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Passkey{}, storage.ErrNotFound
		}
		return storage.Passkey{}, fmt.Errorf("get passkey: %w", err)
	}
	return record, nil
}

// ListPasskeysByAccount returns an account's credentials, most recently
// used or created first.
func (s *Store) ListPasskeysByAccount(ctx context.Context, accountID int64) ([]storage.Passkey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if accountID == 0 {
		return nil, fmt.Errorf("account id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+passkeyColumns+` FROM passkeys
WHERE account_id = ?
ORDER BY COALESCE(last_used_at, created_at) DESC, credential_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list passkeys: %w", err)
	}
	defer rows.Close()

	var credentials []storage.Passkey
	for rows.Next() {
		record, err := scanPasskey(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan passkey: %w", err)
		}
		credentials = append(credentials, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list passkeys: %w", err)
	}
	return credentials, nil
}

// DeletePasskeysByAccount removes every credential bound to the account.
func (s *Store) DeletePasskeysByAccount(ctx context.Context, accountID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if accountID == 0 {
		return fmt.Errorf("account id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM passkeys WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("delete passkeys: %w", err)
	}
	return nil
}

// UpdatePasskeyCounter persists the verifier-reported counter and stamps
// last use.
func (s *Store) UpdatePasskeyCounter(ctx context.Context, credentialID string, signCount uint32, usedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(credentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE passkeys SET sign_count = ?, last_used_at = ? WHERE credential_id = ?`,
		signCount, toMillis(usedAt), credentialID)
	if err != nil {
		return fmt.Errorf("update passkey counter: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update passkey counter: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanPasskey(scan func(dest ...any) error) (storage.Passkey, error) {
	var record storage.Passkey
	var aaguid []byte
	var createdAt int64
	var lastUsedAt sql.NullInt64
	if err := scan(
		&record.CredentialID,
		&record.AccountID,
		&record.PublicKey,
		&record.SignCount,
		&record.Transports,
		&aaguid,
		&record.CredentialJSON,
		&createdAt,
		&lastUsedAt,
	); err != nil {
		return storage.Passkey{}, err
	}
	record.AAGUID = aaguid
	record.CreatedAt = fromMillis(createdAt)
	if lastUsedAt.Valid {
		value := fromMillis(lastUsedAt.Int64)
		record.LastUsedAt = &value
	}
	return record, nil
}
