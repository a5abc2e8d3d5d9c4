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

const accountColumns = `id, email, password_hash, email_verified, google_id, verification_token, verification_expires_at, created_at`

// CreateAccount inserts an account row and returns the record with its
// assigned id.
func (s *Store) CreateAccount(ctx context.Context, account storage.NewAccount) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.Account{}, err
	}
	if strings.TrimSpace(account.Email) == "" {
		return storage.Account{}, fmt.Errorf("email is required")
	}
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	passwordHash := sql.NullString{}
	if account.PasswordHash != "" {
		passwordHash = sql.NullString{String: account.PasswordHash, Valid: true}
	}
	googleID := sql.NullString{}
	if account.GoogleID != "" {
		googleID = sql.NullString{String: account.GoogleID, Valid: true}
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO accounts (email, password_hash, email_verified, google_id, created_at)
VALUES (?, ?, ?, ?, ?)`,
		account.Email, passwordHash, boolToInt(account.EmailVerified), googleID, toMillis(createdAt),
	)
	if err != nil {
		return storage.Account{}, fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.Account{}, fmt.Errorf("account id: %w", err)
	}
	return s.GetAccount(ctx, id)
}

// GetAccount fetches an account by id.
func (s *Store) GetAccount(ctx context.Context, id int64) (storage.Account, error) {
	return s.getAccountWhere(ctx, "id = ?", id)
}

// GetAccountByEmail fetches an account by its stored email.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (storage.Account, error) {
	if strings.TrimSpace(email) == "" {
		return storage.Account{}, fmt.Errorf("email is required")
	}
	return s.getAccountWhere(ctx, "email = ?", email)
}

// GetAccountByGoogleID fetches an account by external provider subject.
func (s *Store) GetAccountByGoogleID(ctx context.Context, googleID string) (storage.Account, error) {
	if strings.TrimSpace(googleID) == "" {
		return storage.Account{}, fmt.Errorf("google id is required")
	}
	return s.getAccountWhere(ctx, "google_id = ?", googleID)
}

// GetAccountByVerificationToken fetches the account holding a live
// verification token.
func (s *Store) GetAccountByVerificationToken(ctx context.Context, token string) (storage.Account, error) {
	if strings.TrimSpace(token) == "" {
		return storage.Account{}, fmt.Errorf("token is required")
	}
	return s.getAccountWhere(ctx, "verification_token = ?", token)
}

// SetVerificationToken replaces the account's verification token pair.
func (s *Store) SetVerificationToken(ctx context.Context, id int64, token string, expiry time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required")
	}
	return s.updateAccount(ctx, id, `
UPDATE accounts SET verification_token = ?, verification_expires_at = ? WHERE id = ?`,
		token, toMillis(expiry), id)
}

// ClearVerificationToken removes the token pair without touching the
// verified flag.
func (s *Store) ClearVerificationToken(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.updateAccount(ctx, id, `
UPDATE accounts SET verification_token = NULL, verification_expires_at = NULL WHERE id = ?`, id)
}

// MarkEmailVerified flips the verified flag and consumes the token pair
// in one statement.
func (s *Store) MarkEmailVerified(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.updateAccount(ctx, id, `
UPDATE accounts SET email_verified = 1, verification_token = NULL, verification_expires_at = NULL WHERE id = ?`, id)
}

// UpdatePasswordHash replaces the account's password credential.
func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(hash) == "" {
		return fmt.Errorf("password hash is required")
	}
	return s.updateAccount(ctx, id, `UPDATE accounts SET password_hash = ? WHERE id = ?`, hash, id)
}

// LinkGoogleAccount attaches an external subject and marks the email
// verified, since the provider vouched for it.
func (s *Store) LinkGoogleAccount(ctx context.Context, id int64, googleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(googleID) == "" {
		return fmt.Errorf("google id is required")
	}
	return s.updateAccount(ctx, id, `
UPDATE accounts SET google_id = ?, email_verified = 1 WHERE id = ?`, googleID, id)
}

func (s *Store) getAccountWhere(ctx context.Context, where string, args ...any) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.Account{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where, args...)

	var account storage.Account
	var passwordHash sql.NullString
	var verified int
	var googleID sql.NullString
	var verificationToken sql.NullString
	var verificationExpiry sql.NullInt64
	var createdAt int64
	err := row.Scan(
		&account.ID,
		&account.Email,
		&passwordHash,
		&verified,
		&googleID,
		&verificationToken,
		&verificationExpiry,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, fmt.Errorf("get account: %w", err)
	}

	account.PasswordHash = passwordHash.String
	account.EmailVerified = verified != 0
	account.GoogleID = googleID.String
	if verificationToken.Valid {
		value := verificationToken.String
		account.VerificationToken = &value
	}
	if verificationExpiry.Valid {
		value := fromMillis(verificationExpiry.Int64)
		account.VerificationExpiry = &value
	}
	account.CreatedAt = fromMillis(createdAt)
	return account, nil
}

func (s *Store) updateAccount(ctx context.Context, id int64, query string, args ...any) error {
	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update account %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account %d: %w", id, err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
