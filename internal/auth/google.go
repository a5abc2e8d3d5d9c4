package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/kimizuy/taskboard/internal/auth/storage"
	"github.com/kimizuy/taskboard/internal/platform/config"
	apperrors "github.com/kimizuy/taskboard/internal/platform/errors"
	"github.com/kimizuy/taskboard/internal/platform/token"
)

const googleProviderName = "google"

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// googleProvider is the OAuth client surface the flow calls. It is
// satisfied by *oauth2.Config.
type googleProvider interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	Client(ctx context.Context, t *oauth2.Token) *http.Client
}

// GoogleConfig holds the OAuth client registration.
type GoogleConfig struct {
	ClientID     string `env:"TASKBOARD_GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"TASKBOARD_GOOGLE_CLIENT_SECRET"`
	RedirectURL  string `env:"TASKBOARD_GOOGLE_REDIRECT_URL"`
}

// LoadGoogleConfigFromEnv reads the Google OAuth client registration.
func LoadGoogleConfigFromEnv() (GoogleConfig, error) {
	var cfg GoogleConfig
	if err := config.ParseEnv(&cfg); err != nil {
		return GoogleConfig{}, fmt.Errorf("parse google oauth env: %w", err)
	}
	return cfg, nil
}

// NewGoogleProvider builds the oauth2 client for Google sign-in.
func NewGoogleProvider(cfg GoogleConfig) (*oauth2.Config, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, apperrors.New(apperrors.CodeConfiguration, "google client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, apperrors.New(apperrors.CodeConfiguration, "google client secret is required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, apperrors.New(apperrors.CodeConfiguration, "google redirect url is required")
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}, nil
}

// googleProfile is the subset of the userinfo response the flow consumes.
type googleProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
}

// GoogleAuthorize starts an authorization-code-with-PKCE flow: it persists
// the state and code verifier, then returns the provider URL to redirect
// the client to.
func (s *Service) GoogleAuthorize(ctx context.Context) (string, error) {
	if s.google == nil {
		return "", apperrors.New(apperrors.CodeConfiguration, "google sign-in is not configured")
	}

	state, err := s.tokenGenerator()
	if err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	now := s.clock().UTC()
	err = s.oauthStates.PutOAuthState(ctx, storage.OAuthState{
		State:        state,
		CodeVerifier: verifier,
		Provider:     googleProviderName,
		ExpiresAt:    token.Expiry(now, oauthStateTTL),
		CreatedAt:    now,
	})
	if err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}

	return s.google.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// GoogleCallback completes the flow: it consumes the state row, exchanges
// the code with the stored verifier, fetches the profile, and links or
// creates an account before opening a session. The state row is single
// use and is removed whatever the outcome.
func (s *Service) GoogleCallback(ctx context.Context, state, code string) (storage.Account, string, error) {
	if s.google == nil {
		return storage.Account{}, "", apperrors.New(apperrors.CodeConfiguration, "google sign-in is not configured")
	}
	invalid := apperrors.New(apperrors.CodeInvalidToken, "authorization state is invalid")

	stored, err := s.oauthStates.GetOAuthState(ctx, state)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Account{}, "", invalid
		}
		return storage.Account{}, "", fmt.Errorf("look up oauth state: %w", err)
	}
	if err := s.oauthStates.DeleteOAuthState(ctx, state); err != nil {
		s.logf("delete oauth state: %v", err)
	}
	if token.IsExpired(&stored.ExpiresAt, s.clock().UTC()) {
		return storage.Account{}, "", invalid
	}

	exchanged, err := s.google.Exchange(ctx, code, oauth2.VerifierOption(stored.CodeVerifier))
	if err != nil {
		return storage.Account{}, "", apperrors.Wrap(apperrors.CodeAuthenticationFailed, "exchange authorization code", err)
	}
	profile, err := s.fetchGoogleProfile(ctx, exchanged)
	if err != nil {
		return storage.Account{}, "", apperrors.Wrap(apperrors.CodeAuthenticationFailed, "fetch google profile", err)
	}

	account, err := s.linkOrCreateGoogleAccount(ctx, profile)
	if err != nil {
		return storage.Account{}, "", err
	}

	sessionToken, err := s.sessions.CreateSession(account)
	if err != nil {
		return storage.Account{}, "", fmt.Errorf("create session: %w", err)
	}
	return account, sessionToken, nil
}

func (s *Service) fetchGoogleProfile(ctx context.Context, t *oauth2.Token) (googleProfile, error) {
	client := s.google.Client(ctx, t)
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return googleProfile{}, fmt.Errorf("get userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return googleProfile{}, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return googleProfile{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if profile.ID == "" || profile.Email == "" {
		return googleProfile{}, fmt.Errorf("userinfo is missing subject or email")
	}
	return profile, nil
}

// linkOrCreateGoogleAccount resolves the provider identity to a local
// account: an account already carrying the subject wins, then an account
// matched by email gets the subject linked, otherwise a fresh verified
// passwordless account is created.
func (s *Service) linkOrCreateGoogleAccount(ctx context.Context, profile googleProfile) (storage.Account, error) {
	account, err := s.accounts.GetAccountByGoogleID(ctx, profile.ID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Account{}, fmt.Errorf("look up account by subject: %w", err)
	}

	account, err = s.accounts.GetAccountByEmail(ctx, profile.Email)
	if err == nil {
		if err := s.accounts.LinkGoogleAccount(ctx, account.ID, profile.ID); err != nil {
			return storage.Account{}, fmt.Errorf("link google account: %w", err)
		}
		account.GoogleID = profile.ID
		account.EmailVerified = true
		return account, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Account{}, fmt.Errorf("look up account by email: %w", err)
	}

	created, err := s.accounts.CreateAccount(ctx, storage.NewAccount{
		Email:         profile.Email,
		EmailVerified: true,
		GoogleID:      profile.ID,
		CreatedAt:     s.clock().UTC(),
	})
	if err != nil {
		return storage.Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}
