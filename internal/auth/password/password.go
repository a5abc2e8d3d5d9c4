// Package password hashes and verifies password credentials.
//
// The stored form embeds the salt alongside the derived key so
// verification needs no separate salt column:
//
//	hex(salt) + ":" + hex(key)
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	iterations = 100_000
	saltLen    = 16
	keyLen     = 32
)

// Hash derives a salted PBKDF2-SHA256 key from password and returns the
// self-contained stored form.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// Verify recomputes the derivation with the embedded salt and compares
// the derived key to the stored key in constant time. Malformed stored
// hashes verify false.
func Verify(password, stored string) bool {
	saltHex, keyHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) != saltLen {
		return false
	}
	want, err := hex.DecodeString(keyHex)
	if err != nil || len(want) != keyLen {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
