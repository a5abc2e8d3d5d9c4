package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/kimizuy/taskboard/internal/auth/storage"
	apperrors "github.com/kimizuy/taskboard/internal/platform/errors"
)

// passkeyProvider is the WebAuthn ceremony surface the flows call.
type passkeyProvider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

type passkeyParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultPasskeyParser struct{}

func (defaultPasskeyParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultPasskeyParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// BeginPasskeyRegistration builds credential creation options for the
// account and persists the ceremony challenge.
func (s *Service) BeginPasskeyRegistration(ctx context.Context, accountID int64) (*protocol.CredentialCreation, error) {
	if err := s.ensurePasskeySupport(); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeAccountNotFound, "account not found")
		}
		return nil, fmt.Errorf("look up account: %w", err)
	}
	user, err := s.loadPasskeyUser(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("load passkey user: %w", err)
	}

	options := []webauthn.RegistrationOption{
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		}),
	}
	if len(user.credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(user.credentials).CredentialDescriptors()))
	}

	creation, session, err := s.passkeyWebAuthn.BeginRegistration(user, options...)
	if err != nil {
		return nil, fmt.Errorf("begin passkey registration: %w", err)
	}
	if err := s.putChallenge(ctx, storage.ChallengeKindRegistration, &account.ID, session.Challenge); err != nil {
		return nil, fmt.Errorf("store registration challenge: %w", err)
	}
	return creation, nil
}

// FinishPasskeyRegistration verifies an attestation response against the
// account's most recent registration challenge and stores the credential.
// The challenge is consumed whether or not verification succeeds, and any
// prior passkeys for the account are replaced by the new one.
func (s *Service) FinishPasskeyRegistration(ctx context.Context, accountID int64, responseJSON []byte) (storage.Passkey, error) {
	if err := s.ensurePasskeySupport(); err != nil {
		return storage.Passkey{}, err
	}

	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Passkey{}, apperrors.New(apperrors.CodeAccountNotFound, "account not found")
		}
		return storage.Passkey{}, fmt.Errorf("look up account: %w", err)
	}

	challenge, err := s.challenges.LatestChallengeForAccount(ctx, storage.ChallengeKindRegistration, account.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Passkey{}, apperrors.New(apperrors.CodeNoChallenge, "no registration challenge outstanding")
		}
		return storage.Passkey{}, fmt.Errorf("look up registration challenge: %w", err)
	}
	if s.clock().UTC().After(challenge.ExpiresAt) {
		s.consumeChallenge(ctx, challenge.ID)
		return storage.Passkey{}, apperrors.New(apperrors.CodeChallengeExpired, "registration challenge expired")
	}

	parsed, err := s.passkeyParser.ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		s.consumeChallenge(ctx, challenge.ID)
		return storage.Passkey{}, apperrors.Wrap(apperrors.CodeVerificationFailed, "parse credential response", err)
	}

	user, err := s.loadPasskeyUser(ctx, account)
	if err != nil {
		return storage.Passkey{}, fmt.Errorf("load passkey user: %w", err)
	}

	credential, verifyErr := s.passkeyWebAuthn.CreateCredential(user, s.ceremonySession(challenge, account.ID), parsed)
	s.consumeChallenge(ctx, challenge.ID)
	if verifyErr != nil {
		return storage.Passkey{}, apperrors.Wrap(apperrors.CodeVerificationFailed, "verify attestation", verifyErr)
	}

	// One passkey per account: the new credential replaces all prior ones.
	if err := s.passkeys.DeletePasskeysByAccount(ctx, account.ID); err != nil {
		return storage.Passkey{}, fmt.Errorf("remove prior passkeys: %w", err)
	}
	record, err := s.newPasskeyRecord(parsed.ID, account.ID, *credential)
	if err != nil {
		return storage.Passkey{}, err
	}
	if err := s.passkeys.PutPasskey(ctx, record); err != nil {
		return storage.Passkey{}, fmt.Errorf("store passkey: %w", err)
	}
	return record, nil
}

// BeginPasskeyLogin builds credential request options. With an email the
// allow list is restricted to that account's current passkey; without one
// the ceremony is discoverable and any resident credential may answer.
func (s *Service) BeginPasskeyLogin(ctx context.Context, email string) (*protocol.CredentialAssertion, error) {
	if err := s.ensurePasskeySupport(); err != nil {
		return nil, err
	}

	var (
		assertion *protocol.CredentialAssertion
		session   *webauthn.SessionData
		scope     *int64
	)
	if email == "" {
		var err error
		assertion, session, err = s.passkeyWebAuthn.BeginDiscoverableLogin(
			webauthn.WithUserVerification(protocol.VerificationPreferred))
		if err != nil {
			return nil, fmt.Errorf("begin passkey login: %w", err)
		}
	} else {
		account, err := s.accounts.GetAccountByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, apperrors.New(apperrors.CodeAuthenticationFailed, "authentication failed")
			}
			return nil, fmt.Errorf("look up account: %w", err)
		}
		user, err := s.loadPasskeyUser(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("load passkey user: %w", err)
		}
		if len(user.credentials) == 0 {
			return nil, apperrors.New(apperrors.CodePasskeyNotFound, "account has no passkey")
		}
		// The store lists most recently used first; allow only that one.
		user.credentials = user.credentials[:1]

		assertion, session, err = s.passkeyWebAuthn.BeginLogin(user,
			webauthn.WithUserVerification(protocol.VerificationPreferred))
		if err != nil {
			return nil, fmt.Errorf("begin passkey login: %w", err)
		}
		scope = &account.ID
	}

	if err := s.putChallenge(ctx, storage.ChallengeKindAuthentication, scope, session.Challenge); err != nil {
		return nil, fmt.Errorf("store authentication challenge: %w", err)
	}
	return assertion, nil
}

// FinishPasskeyLogin verifies an assertion response, persists the reported
// signature counter, and opens a session for the credential's owner.
//
// The cross-account guard runs before any cryptography: a challenge scoped
// to one account never validates a response signed by another account's
// credential, and in that case the challenge stays outstanding.
func (s *Service) FinishPasskeyLogin(ctx context.Context, responseJSON []byte) (storage.Account, string, error) {
	if err := s.ensurePasskeySupport(); err != nil {
		return storage.Account{}, "", err
	}

	parsed, err := s.passkeyParser.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return storage.Account{}, "", apperrors.Wrap(apperrors.CodeVerificationFailed, "parse credential response", err)
	}

	stored, err := s.passkeys.GetPasskey(ctx, parsed.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Account{}, "", apperrors.New(apperrors.CodePasskeyNotFound, "passkey not found")
		}
		return storage.Account{}, "", fmt.Errorf("look up passkey: %w", err)
	}

	challenge, err := s.challenges.LatestChallenge(ctx, storage.ChallengeKindAuthentication)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Account{}, "", apperrors.New(apperrors.CodeNoChallenge, "no authentication challenge outstanding")
		}
		return storage.Account{}, "", fmt.Errorf("look up authentication challenge: %w", err)
	}
	if challenge.AccountID != nil && *challenge.AccountID != stored.AccountID {
		return storage.Account{}, "", apperrors.New(apperrors.CodeChallengeMismatch, "challenge is bound to another account")
	}
	if s.clock().UTC().After(challenge.ExpiresAt) {
		s.consumeChallenge(ctx, challenge.ID)
		return storage.Account{}, "", apperrors.New(apperrors.CodeChallengeExpired, "authentication challenge expired")
	}
	s.consumeChallenge(ctx, challenge.ID)

	account, err := s.accounts.GetAccount(ctx, stored.AccountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Account{}, "", apperrors.New(apperrors.CodeAccountNotFound, "account not found")
		}
		return storage.Account{}, "", fmt.Errorf("look up account: %w", err)
	}

	var credential *webauthn.Credential
	if challenge.AccountID != nil {
		user, err := s.loadPasskeyUser(ctx, account)
		if err != nil {
			return storage.Account{}, "", fmt.Errorf("load passkey user: %w", err)
		}
		credential, err = s.passkeyWebAuthn.ValidateLogin(user, s.ceremonySession(challenge, account.ID), parsed)
		if err != nil {
			return storage.Account{}, "", apperrors.Wrap(apperrors.CodeVerificationFailed, "verify assertion", err)
		}
	} else {
		_, credential, err = s.passkeyWebAuthn.ValidatePasskeyLogin(
			s.discoverableUserHandler(ctx), s.discoverableSession(challenge), parsed)
		if err != nil {
			return storage.Account{}, "", apperrors.Wrap(apperrors.CodeVerificationFailed, "verify assertion", err)
		}
	}

	if err := s.passkeys.UpdatePasskeyCounter(ctx, stored.CredentialID, credential.Authenticator.SignCount, s.clock().UTC()); err != nil {
		return storage.Account{}, "", fmt.Errorf("update passkey counter: %w", err)
	}

	sessionToken, err := s.sessions.CreateSession(account)
	if err != nil {
		return storage.Account{}, "", fmt.Errorf("create session: %w", err)
	}
	return account, sessionToken, nil
}

func (s *Service) ensurePasskeySupport() error {
	if s.passkeyInitErr != nil {
		return apperrors.Wrap(apperrors.CodeConfiguration, "passkey configuration is not available", s.passkeyInitErr)
	}
	if s.passkeyWebAuthn == nil || s.passkeyParser == nil {
		return apperrors.New(apperrors.CodeConfiguration, "passkey support is not configured")
	}
	return nil
}

func (s *Service) putChallenge(ctx context.Context, kind string, accountID *int64, value string) error {
	now := s.clock().UTC()
	_, err := s.challenges.PutChallenge(ctx, storage.Challenge{
		Challenge: value,
		AccountID: accountID,
		Kind:      kind,
		ExpiresAt: now.Add(s.passkeyConfig.ChallengeTTL),
		CreatedAt: now,
	})
	return err
}

// consumeChallenge enforces single use. A delete failure is logged, not
// surfaced; the ceremony outcome is already decided at that point.
func (s *Service) consumeChallenge(ctx context.Context, id int64) {
	if err := s.challenges.DeleteChallenge(ctx, id); err != nil {
		s.logf("delete challenge %d: %v", id, err)
	}
}

// ceremonySession rebuilds the verifier session for an account-scoped
// ceremony. Expiry is left zero; the flow has already checked the stored
// row against its own clock.
func (s *Service) ceremonySession(challenge storage.Challenge, accountID int64) webauthn.SessionData {
	return webauthn.SessionData{
		Challenge:        challenge.Challenge,
		UserID:           accountHandle(accountID),
		UserVerification: protocol.VerificationPreferred,
	}
}

// discoverableSession rebuilds the verifier session for an unscoped
// ceremony. The user id stays empty so the verifier resolves the owner
// from the response's user handle.
func (s *Service) discoverableSession(challenge storage.Challenge) webauthn.SessionData {
	return webauthn.SessionData{
		Challenge:        challenge.Challenge,
		UserVerification: protocol.VerificationPreferred,
	}
}

func (s *Service) discoverableUserHandler(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(_, userHandle []byte) (webauthn.User, error) {
		accountID, err := parseAccountHandle(userHandle)
		if err != nil {
			return nil, err
		}
		account, err := s.accounts.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return s.loadPasskeyUser(ctx, account)
	}
}

// passkeyUser adapts an account and its stored credentials to the
// verifier's user contract.
type passkeyUser struct {
	account     storage.Account
	credentials []webauthn.Credential
}

func (u *passkeyUser) WebAuthnID() []byte {
	return accountHandle(u.account.ID)
}

func (u *passkeyUser) WebAuthnName() string {
	return u.account.Email
}

func (u *passkeyUser) WebAuthnDisplayName() string {
	return u.account.Email
}

func (u *passkeyUser) WebAuthnIcon() string {
	return ""
}

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func (s *Service) loadPasskeyUser(ctx context.Context, account storage.Account) (*passkeyUser, error) {
	records, err := s.passkeys.ListPasskeysByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	credentials, err := decodeStoredCredentials(records)
	if err != nil {
		return nil, err
	}
	return &passkeyUser{account: account, credentials: credentials}, nil
}

func decodeStoredCredentials(records []storage.Passkey) ([]webauthn.Credential, error) {
	if len(records) == 0 {
		return nil, nil
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		var credential webauthn.Credential
		if err := json.Unmarshal([]byte(record.CredentialJSON), &credential); err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", record.CredentialID, err)
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}

func (s *Service) newPasskeyRecord(credentialID string, accountID int64, credential webauthn.Credential) (storage.Passkey, error) {
	credentialJSON, err := json.Marshal(credential)
	if err != nil {
		return storage.Passkey{}, fmt.Errorf("encode credential: %w", err)
	}
	transports := ""
	if len(credential.Transport) > 0 {
		encoded, err := json.Marshal(credential.Transport)
		if err != nil {
			return storage.Passkey{}, fmt.Errorf("encode transports: %w", err)
		}
		transports = string(encoded)
	}
	return storage.Passkey{
		CredentialID:   credentialID,
		AccountID:      accountID,
		PublicKey:      credential.PublicKey,
		SignCount:      credential.Authenticator.SignCount,
		Transports:     transports,
		AAGUID:         credential.Authenticator.AAGUID,
		CredentialJSON: string(credentialJSON),
		CreatedAt:      s.clock().UTC(),
	}, nil
}

func accountHandle(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}

func parseAccountHandle(handle []byte) (int64, error) {
	id, err := strconv.ParseInt(string(handle), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("user handle is invalid")
	}
	return id, nil
}
