package token

import (
	"testing"
	"time"
)

func TestGenerateFormat(t *testing.T) {
	value, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(value) != 64 {
		t.Fatalf("expected 64-character token, got %d", len(value))
	}
	for _, r := range value {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			t.Fatalf("unexpected character %q in token", r)
		}
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		value, err := Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if seen[value] {
			t.Fatalf("duplicate token %q", value)
		}
		seen[value] = true
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if !IsExpired(nil, now) {
		t.Fatal("expected nil expiry to be expired")
	}

	future := now.Add(time.Minute)
	if IsExpired(&future, now) {
		t.Fatal("expected future expiry not to be expired")
	}

	// The boundary instant itself is still valid.
	boundary := now
	if IsExpired(&boundary, now) {
		t.Fatal("expected exact boundary not to be expired")
	}

	past := now.Add(-time.Millisecond)
	if !IsExpired(&past, now) {
		t.Fatal("expected past expiry to be expired")
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := Expiry(now, time.Hour)
	if !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("got %v, want %v", got, now.Add(time.Hour))
	}
}

func TestEqual(t *testing.T) {
	if !Equal("abc123", "abc123") {
		t.Fatal("expected equal tokens to match")
	}
	if Equal("abc123", "abc124") {
		t.Fatal("expected different tokens not to match")
	}
	if Equal("abc", "abcdef") {
		t.Fatal("expected different-length tokens not to match")
	}
}
