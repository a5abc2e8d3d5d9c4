package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kimizuy/taskboard/internal/auth/password"
	"github.com/kimizuy/taskboard/internal/auth/storage"
	apperrors "github.com/kimizuy/taskboard/internal/platform/errors"
)

func TestRegisterCreatesUnverifiedAccount(t *testing.T) {
	store := newFakeStore()
	service, mailer := newTestService(t, store)

	account, sessionToken, err := service.Register(context.Background(), "a@x.com", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.ID == 0 {
		t.Fatal("expected assigned account id")
	}
	if account.EmailVerified {
		t.Fatal("expected new account to be unverified")
	}
	if sessionToken == "" {
		t.Fatal("expected a session token")
	}
	if !password.Verify("password123", store.accounts[account.ID].PasswordHash) {
		t.Fatal("stored hash does not verify the password")
	}

	stored := store.accounts[account.ID]
	if stored.VerificationToken == nil || *stored.VerificationToken != "token-1" {
		t.Fatalf("verification token = %v, want token-1", stored.VerificationToken)
	}
	if stored.VerificationExpiry == nil || !stored.VerificationExpiry.Equal(testNow.Add(verificationTTL)) {
		t.Fatalf("verification expiry = %v, want %v", stored.VerificationExpiry, testNow.Add(verificationTTL))
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mailer.sent))
	}
	if mailer.sent[0].to != "a@x.com" {
		t.Fatalf("mail to = %q, want a@x.com", mailer.sent[0].to)
	}
	if !strings.Contains(mailer.sent[0].body, "token-1") {
		t.Fatal("verification mail does not carry the token")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newFakeStore()
	service, _ := newTestService(t, store)
	seedAccount(t, store, storage.NewAccount{Email: "a@x.com", PasswordHash: "h", CreatedAt: testNow})

	_, _, err := service.Register(context.Background(), "a@x.com", "password123")
	if apperrors.GetCode(err) != apperrors.CodeEmailTaken {
		t.Fatalf("error = %v, want CodeEmailTaken", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	store := newFakeStore()
	service, _ := newTestService(t, store)

	cases := []struct {
		name     string
		email    string
		password string
		want     apperrors.Code
	}{
		{name: "blank email", email: "  ", password: "password123", want: apperrors.CodeInvalidEmail},
		{name: "malformed email", email: "not-an-address", password: "password123", want: apperrors.CodeInvalidEmail},
		{name: "short password", email: "a@x.com", password: "short", want: apperrors.CodeInvalidPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := service.Register(context.Background(), tc.email, tc.password)
			if apperrors.GetCode(err) != tc.want {
				t.Fatalf("error = %v, want %s", err, tc.want)
			}
		})
	}
}

func TestRegisterEmailDeliveryFailurePersistsAccount(t *testing.T) {
	store := newFakeStore()
	service, mailer := newTestService(t, store)
	mailer.sendErr = errors.New("smtp down")

	_, _, err := service.Register(context.Background(), "a@x.com", "password123")
	if apperrors.GetCode(err) != apperrors.CodeEmailDeliveryFailed {
		t.Fatalf("error = %v, want CodeEmailDeliveryFailed", err)
	}

	// The account and its token survive; a later resend can reuse them.
	account, err := store.GetAccountByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("account was not persisted: %v", err)
	}
	if account.VerificationToken == nil {
		t.Fatal("verification token was not persisted")
	}
}
