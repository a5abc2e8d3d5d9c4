// Package token generates single-use tokens and their expiry timestamps.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// tokenBytes is the entropy of a generated token. Hex encoding doubles it
// to 64 characters on the wire.
const tokenBytes = 32

// Generate returns a 64-character lowercase hex token from a
// cryptographically secure source.
func Generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Expiry returns the expiry timestamp for a token issued now with the
// given lifetime.
func Expiry(now time.Time, ttl time.Duration) time.Time {
	return now.UTC().Add(ttl)
}

// IsExpired reports whether a token expiry has passed. A missing expiry
// is always expired. The exact boundary instant counts as not expired.
func IsExpired(expiry *time.Time, now time.Time) bool {
	if expiry == nil {
		return true
	}
	return now.After(*expiry)
}

// Equal compares two token strings in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
