package auth

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/kimizuy/taskboard/internal/auth/passkey"
	"github.com/kimizuy/taskboard/internal/auth/session"
	"github.com/kimizuy/taskboard/internal/auth/storage"
)

var testNow = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

// fakeStore is an in-memory implementation of every store interface, with
// per-method error injection.
type fakeStore struct {
	accounts        map[int64]storage.Account
	nextAccountID   int64
	resetTokens     map[string]storage.ResetToken
	passkeys        map[string]storage.Passkey
	challenges      map[int64]storage.Challenge
	nextChallengeID int64
	oauthStates     map[string]storage.OAuthState
	errs            map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:    make(map[int64]storage.Account),
		resetTokens: make(map[string]storage.ResetToken),
		passkeys:    make(map[string]storage.Passkey),
		challenges:  make(map[int64]storage.Challenge),
		oauthStates: make(map[string]storage.OAuthState),
		errs:        make(map[string]error),
	}
}

func (f *fakeStore) CreateAccount(ctx context.Context, account storage.NewAccount) (storage.Account, error) {
	if err := f.errs["CreateAccount"]; err != nil {
		return storage.Account{}, err
	}
	for _, existing := range f.accounts {
		if existing.Email == account.Email {
			return storage.Account{}, fmt.Errorf("email already exists")
		}
	}
	f.nextAccountID++
	created := storage.Account{
		ID:            f.nextAccountID,
		Email:         account.Email,
		PasswordHash:  account.PasswordHash,
		EmailVerified: account.EmailVerified,
		GoogleID:      account.GoogleID,
		CreatedAt:     account.CreatedAt,
	}
	f.accounts[created.ID] = created
	return created, nil
}

func (f *fakeStore) GetAccount(ctx context.Context, id int64) (storage.Account, error) {
	if err := f.errs["GetAccount"]; err != nil {
		return storage.Account{}, err
	}
	account, ok := f.accounts[id]
	if !ok {
		return storage.Account{}, storage.ErrNotFound
	}
	return account, nil
}

func (f *fakeStore) GetAccountByEmail(ctx context.Context, email string) (storage.Account, error) {
	if err := f.errs["GetAccountByEmail"]; err != nil {
		return storage.Account{}, err
	}
	for _, account := range f.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return storage.Account{}, storage.ErrNotFound
}

func (f *fakeStore) GetAccountByGoogleID(ctx context.Context, googleID string) (storage.Account, error) {
	for _, account := range f.accounts {
		if account.GoogleID == googleID && googleID != "" {
			return account, nil
		}
	}
	return storage.Account{}, storage.ErrNotFound
}

func (f *fakeStore) GetAccountByVerificationToken(ctx context.Context, value string) (storage.Account, error) {
	for _, account := range f.accounts {
		if account.VerificationToken != nil && *account.VerificationToken == value {
			return account, nil
		}
	}
	return storage.Account{}, storage.ErrNotFound
}

func (f *fakeStore) SetVerificationToken(ctx context.Context, id int64, value string, expiry time.Time) error {
	if err := f.errs["SetVerificationToken"]; err != nil {
		return err
	}
	account, ok := f.accounts[id]
	if !ok {
		return storage.ErrNotFound
	}
	account.VerificationToken = &value
	account.VerificationExpiry = &expiry
	f.accounts[id] = account
	return nil
}

func (f *fakeStore) ClearVerificationToken(ctx context.Context, id int64) error {
	account, ok := f.accounts[id]
	if !ok {
		return storage.ErrNotFound
	}
	account.VerificationToken = nil
	account.VerificationExpiry = nil
	f.accounts[id] = account
	return nil
}

func (f *fakeStore) MarkEmailVerified(ctx context.Context, id int64) error {
	if err := f.errs["MarkEmailVerified"]; err != nil {
		return err
	}
	account, ok := f.accounts[id]
	if !ok {
		return storage.ErrNotFound
	}
	account.EmailVerified = true
	account.VerificationToken = nil
	account.VerificationExpiry = nil
	f.accounts[id] = account
	return nil
}

func (f *fakeStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	if err := f.errs["UpdatePasswordHash"]; err != nil {
		return err
	}
	account, ok := f.accounts[id]
	if !ok {
		return storage.ErrNotFound
	}
	account.PasswordHash = hash
	f.accounts[id] = account
	return nil
}

func (f *fakeStore) LinkGoogleAccount(ctx context.Context, id int64, googleID string) error {
	if err := f.errs["LinkGoogleAccount"]; err != nil {
		return err
	}
	account, ok := f.accounts[id]
	if !ok {
		return storage.ErrNotFound
	}
	account.GoogleID = googleID
	account.EmailVerified = true
	f.accounts[id] = account
	return nil
}

func (f *fakeStore) PutResetToken(ctx context.Context, t storage.ResetToken) error {
	if err := f.errs["PutResetToken"]; err != nil {
		return err
	}
	for value, existing := range f.resetTokens {
		if existing.AccountID == t.AccountID {
			delete(f.resetTokens, value)
		}
	}
	f.resetTokens[t.Token] = t
	return nil
}

func (f *fakeStore) GetResetToken(ctx context.Context, value string) (storage.ResetToken, error) {
	if err := f.errs["GetResetToken"]; err != nil {
		return storage.ResetToken{}, err
	}
	record, ok := f.resetTokens[value]
	if !ok {
		return storage.ResetToken{}, storage.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) DeleteResetToken(ctx context.Context, value string) error {
	if err := f.errs["DeleteResetToken"]; err != nil {
		return err
	}
	delete(f.resetTokens, value)
	return nil
}

func (f *fakeStore) DeleteExpiredResetTokens(ctx context.Context, now time.Time) error {
	for value, record := range f.resetTokens {
		if record.ExpiresAt.Before(now) {
			delete(f.resetTokens, value)
		}
	}
	return nil
}

func (f *fakeStore) PutPasskey(ctx context.Context, p storage.Passkey) error {
	if err := f.errs["PutPasskey"]; err != nil {
		return err
	}
	f.passkeys[p.CredentialID] = p
	return nil
}

func (f *fakeStore) GetPasskey(ctx context.Context, credentialID string) (storage.Passkey, error) {
	if err := f.errs["GetPasskey"]; err != nil {
		return storage.Passkey{}, err
	}
	record, ok := f.passkeys[credentialID]
	if !ok {
		return storage.Passkey{}, storage.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) ListPasskeysByAccount(ctx context.Context, accountID int64) ([]storage.Passkey, error) {
	if err := f.errs["ListPasskeysByAccount"]; err != nil {
		return nil, err
	}
	var list []storage.Passkey
	for _, record := range f.passkeys {
		if record.AccountID == accountID {
			list = append(list, record)
		}
	}
	recency := func(p storage.Passkey) time.Time {
		if p.LastUsedAt != nil {
			return *p.LastUsedAt
		}
		return p.CreatedAt
	}
	sort.Slice(list, func(i, j int) bool {
		return recency(list[i]).After(recency(list[j]))
	})
	return list, nil
}

func (f *fakeStore) DeletePasskeysByAccount(ctx context.Context, accountID int64) error {
	if err := f.errs["DeletePasskeysByAccount"]; err != nil {
		return err
	}
	for id, record := range f.passkeys {
		if record.AccountID == accountID {
			delete(f.passkeys, id)
		}
	}
	return nil
}

func (f *fakeStore) UpdatePasskeyCounter(ctx context.Context, credentialID string, signCount uint32, usedAt time.Time) error {
	if err := f.errs["UpdatePasskeyCounter"]; err != nil {
		return err
	}
	record, ok := f.passkeys[credentialID]
	if !ok {
		return storage.ErrNotFound
	}
	record.SignCount = signCount
	record.LastUsedAt = &usedAt
	f.passkeys[credentialID] = record
	return nil
}

func (f *fakeStore) PutChallenge(ctx context.Context, c storage.Challenge) (storage.Challenge, error) {
	if err := f.errs["PutChallenge"]; err != nil {
		return storage.Challenge{}, err
	}
	f.nextChallengeID++
	c.ID = f.nextChallengeID
	f.challenges[c.ID] = c
	return c, nil
}

func (f *fakeStore) LatestChallenge(ctx context.Context, kind string) (storage.Challenge, error) {
	if err := f.errs["LatestChallenge"]; err != nil {
		return storage.Challenge{}, err
	}
	return f.latestChallenge(kind, nil)
}

func (f *fakeStore) LatestChallengeForAccount(ctx context.Context, kind string, accountID int64) (storage.Challenge, error) {
	if err := f.errs["LatestChallengeForAccount"]; err != nil {
		return storage.Challenge{}, err
	}
	return f.latestChallenge(kind, &accountID)
}

func (f *fakeStore) latestChallenge(kind string, accountID *int64) (storage.Challenge, error) {
	var best storage.Challenge
	found := false
	for _, c := range f.challenges {
		if c.Kind != kind {
			continue
		}
		if accountID != nil && (c.AccountID == nil || *c.AccountID != *accountID) {
			continue
		}
		if !found || c.CreatedAt.After(best.CreatedAt) || (c.CreatedAt.Equal(best.CreatedAt) && c.ID > best.ID) {
			best = c
			found = true
		}
	}
	if !found {
		return storage.Challenge{}, storage.ErrNotFound
	}
	return best, nil
}

func (f *fakeStore) DeleteChallenge(ctx context.Context, id int64) error {
	if err := f.errs["DeleteChallenge"]; err != nil {
		return err
	}
	delete(f.challenges, id)
	return nil
}

func (f *fakeStore) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	for id, c := range f.challenges {
		if c.ExpiresAt.Before(now) {
			delete(f.challenges, id)
		}
	}
	return nil
}

func (f *fakeStore) PutOAuthState(ctx context.Context, s storage.OAuthState) error {
	if err := f.errs["PutOAuthState"]; err != nil {
		return err
	}
	f.oauthStates[s.State] = s
	return nil
}

func (f *fakeStore) GetOAuthState(ctx context.Context, state string) (storage.OAuthState, error) {
	if err := f.errs["GetOAuthState"]; err != nil {
		return storage.OAuthState{}, err
	}
	record, ok := f.oauthStates[state]
	if !ok {
		return storage.OAuthState{}, storage.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) DeleteOAuthState(ctx context.Context, state string) error {
	delete(f.oauthStates, state)
	return nil
}

func (f *fakeStore) DeleteExpiredOAuthStates(ctx context.Context, now time.Time) error {
	for state, record := range f.oauthStates {
		if record.ExpiresAt.Before(now) {
			delete(f.oauthStates, state)
		}
	}
	return nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	sent    []sentMail
	sendErr error
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

// fakePasskeyProvider returns canned ceremony results and records what it
// was handed.
type fakePasskeyProvider struct {
	registrationSession *webauthn.SessionData
	createdCredential   *webauthn.Credential
	createCredentialErr error

	loginSession        *webauthn.SessionData
	validatedCredential *webauthn.Credential
	validateErr         error

	calls            []string
	lastUser         webauthn.User
	lastSession      webauthn.SessionData
	lastRegistration []webauthn.RegistrationOption
}

func (f *fakePasskeyProvider) BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	f.calls = append(f.calls, "BeginRegistration")
	f.lastUser = user
	f.lastRegistration = opts
	return &protocol.CredentialCreation{}, f.registrationSession, nil
}

func (f *fakePasskeyProvider) CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	f.calls = append(f.calls, "CreateCredential")
	f.lastUser = user
	f.lastSession = session
	if f.createCredentialErr != nil {
		return nil, f.createCredentialErr
	}
	return f.createdCredential, nil
}

func (f *fakePasskeyProvider) BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	f.calls = append(f.calls, "BeginLogin")
	f.lastUser = user
	return &protocol.CredentialAssertion{}, f.loginSession, nil
}

func (f *fakePasskeyProvider) BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	f.calls = append(f.calls, "BeginDiscoverableLogin")
	return &protocol.CredentialAssertion{}, f.loginSession, nil
}

func (f *fakePasskeyProvider) ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	f.calls = append(f.calls, "ValidateLogin")
	f.lastUser = user
	f.lastSession = session
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return f.validatedCredential, nil
}

func (f *fakePasskeyProvider) ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error) {
	f.calls = append(f.calls, "ValidatePasskeyLogin")
	f.lastSession = session
	if f.validateErr != nil {
		return nil, nil, f.validateErr
	}
	user, err := handler(response.RawID, response.Response.UserHandle)
	if err != nil {
		return nil, nil, err
	}
	return user, f.validatedCredential, nil
}

func (f *fakePasskeyProvider) called(name string) bool {
	for _, call := range f.calls {
		if call == name {
			return true
		}
	}
	return false
}

type fakePasskeyParser struct {
	creation    *protocol.ParsedCredentialCreationData
	creationErr error
	assertion   *protocol.ParsedCredentialAssertionData
	assertErr   error
}

func (f *fakePasskeyParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	if f.creationErr != nil {
		return nil, f.creationErr
	}
	return f.creation, nil
}

func (f *fakePasskeyParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	if f.assertErr != nil {
		return nil, f.assertErr
	}
	return f.assertion, nil
}

// sequentialTokens returns "token-1", "token-2", ... deterministically.
func sequentialTokens() func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("token-%d", n), nil
	}
}

func newTestService(t *testing.T, store *fakeStore) (*Service, *fakeMailer) {
	t.Helper()

	codec, err := session.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	mailer := &fakeMailer{}
	return &Service{
		accounts:    store,
		resetTokens: store,
		passkeys:    store,
		challenges:  store,
		oauthStates: store,
		sessions:    session.NewManager(codec, store),
		mailer:      mailer,
		passkeyConfig: passkey.Config{
			RPDisplayName: "Taskboard",
			RPID:          "localhost",
			RPOrigins:     []string{"http://localhost:8080"},
			ChallengeTTL:  5 * time.Minute,
		},
		passkeyParser:  &fakePasskeyParser{},
		baseURL:        "https://tasks.example.com",
		clock:          func() time.Time { return testNow },
		tokenGenerator: sequentialTokens(),
	}, mailer
}

func seedAccount(t *testing.T, store *fakeStore, account storage.NewAccount) storage.Account {
	t.Helper()

	created, err := store.CreateAccount(context.Background(), account)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return created
}
