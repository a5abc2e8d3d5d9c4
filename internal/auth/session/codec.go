// Package session issues and validates signed browser session tokens.
//
// Sessions are stateless JWTs: the account id and email ride in the claims,
// and validity is re-checked against storage on every use so a deleted
// account cannot keep an authenticated session alive.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/kimizuy/taskboard/internal/platform/errors"
)

const (
	// TTL is how long a freshly issued session lives.
	TTL = 7 * 24 * time.Hour
	// RefreshThreshold triggers reissue when less than this remains.
	RefreshThreshold = 3 * 24 * time.Hour
)

// minSecretLen guards against trivially brute-forceable signing keys.
const minSecretLen = 32

// Claims captures the validated contents of a session token.
type Claims struct {
	AccountID int64
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// sessionClaims is the internal claims type used for JWT parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
	AccountID int64  `json:"uid"`
	Email     string `json:"email"`
}

// Codec signs and verifies session tokens with an HMAC-SHA256 key.
type Codec struct {
	secret []byte
}

// NewCodec builds a codec from a signing secret.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLen)
	}
	return &Codec{secret: secret}, nil
}

// Encode signs the claims into a compact session token.
func (c *Codec) Encode(claims Claims) (string, error) {
	if c == nil || len(c.secret) == 0 {
		return "", fmt.Errorf("session codec is not configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt.UTC()),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt.UTC()),
		},
		AccountID: claims.AccountID,
		Email:     claims.Email,
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Decode verifies the token signature and returns its claims.
//
// Expiry is not checked here; callers validate timing against their own
// clock so tests and sliding renewal share one time source.
func (c *Codec) Decode(token string) (Claims, error) {
	if c == nil || len(c.secret) == 0 {
		return Claims{}, fmt.Errorf("session codec is not configured")
	}
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeInvalidToken, "session token is required")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}
	if parsed.AccountID == 0 {
		return Claims{}, apperrors.New(apperrors.CodeInvalidToken, "session token has no subject")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeInvalidToken, "session token has no expiry")
	}

	claims := Claims{
		AccountID: parsed.AccountID,
		Email:     parsed.Email,
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors. The
// message is deliberately uniform so callers cannot distinguish a forged
// signature from a malformed token.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.New(apperrors.CodeInvalidToken, "session token is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeInvalidToken, "session token is invalid")
	}
	return apperrors.New(apperrors.CodeInvalidToken, "session token is invalid")
}
