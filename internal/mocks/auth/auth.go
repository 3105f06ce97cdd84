package auth

// Package auth contains simple hand-written test doubles for auth and profile ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider     = (*MockAuthProvider)(nil)
	_ ports.SessionStore     = (*MemorySessionStore)(nil)
	_ ports.IdentityProvider = (*MemoryIdentityProvider)(nil)
	_ ports.IdentityFeed     = (*MemoryFeed)(nil)
	_ ports.ProfileFeed      = (*MemoryFeed)(nil)
	_ ports.ProfileStore     = (*MemoryProfileStore)(nil)
	_ ports.ResetTokenStore  = (*MemoryResetTokenStore)(nil)
	_ ports.Mailer           = (*RecordingMailer)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: domainauth.Identity{
			ID:          "mock-user-1",
			Email:       "mock.user@example.com",
			DisplayName: "Mock User",
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.callCount++
	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	return authURL, fmt.Sprintf("%s-%d", statePrefix, m.callCount), fmt.Sprintf("%s-%d", noncePrefix, m.callCount), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	if m.DefaultUser.ID == "" {
		return domainauth.Identity{ID: "mock-user-1", Email: "mock.user@example.com"}, nil
	}
	return m.DefaultUser, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// ErrNotFound is returned by mocks when an entity is not present.
var ErrNotFound error = apperrors.NotFound("not found")

type account struct {
	identity domainauth.Identity
	password string
	disabled bool
}

// MemoryIdentityProvider stores password identities in memory. Passwords are compared in
// plain text.
type MemoryIdentityProvider struct {
	mu       sync.Mutex
	accounts map[string]*account // keyed by lowercase email
	nextID   int

	// SignInErr, when set, is returned by every SignIn call.
	SignInErr error
	// SetDisabledErr, when set, is returned by every SetDisabled call.
	SetDisabledErr error
}

// NewMemoryIdentityProvider creates an empty provider.
func NewMemoryIdentityProvider() *MemoryIdentityProvider {
	return &MemoryIdentityProvider{accounts: make(map[string]*account)}
}

// Add registers an identity directly.
func (m *MemoryIdentityProvider) Add(id domainauth.Identity, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[strings.ToLower(id.Email)] = &account{identity: id, password: password}
}

// Disable marks an account as disabled.
func (m *MemoryIdentityProvider) Disable(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[strings.ToLower(email)]; ok {
		a.disabled = true
	}
}

// Password returns the stored password for an identity id.
func (m *MemoryIdentityProvider) Password(identityID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.identity.ID == identityID {
			return a.password
		}
	}
	return ""
}

func (m *MemoryIdentityProvider) SignIn(_ context.Context, email, password string) (domainauth.Identity, error) {
	if m.SignInErr != nil {
		return domainauth.Identity{}, m.SignInErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[strings.ToLower(email)]
	if !ok || a.password != password {
		return domainauth.Identity{}, apperrors.InvalidCredentials("invalid email or password")
	}
	if a.disabled {
		return domainauth.Identity{}, apperrors.UserDisabled("account disabled")
	}
	return a.identity, nil
}

func (m *MemoryIdentityProvider) CreateIdentity(_ context.Context, in ports.CreateIdentityInput) (domainauth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(in.Email)
	if _, ok := m.accounts[key]; ok {
		return domainauth.Identity{}, &apperrors.AppError{Code: apperrors.ErrCodeConflict, Message: "email already in use", Field: "email"}
	}
	m.nextID++
	id := domainauth.Identity{ID: fmt.Sprintf("id-%d", m.nextID), Email: in.Email, DisplayName: in.DisplayName}
	m.accounts[key] = &account{identity: id, password: in.Password}
	return id, nil
}

func (m *MemoryIdentityProvider) LookupByEmail(_ context.Context, email string) (domainauth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[strings.ToLower(email)]
	if !ok {
		return domainauth.Identity{}, ErrNotFound
	}
	return a.identity, nil
}

func (m *MemoryIdentityProvider) SetPassword(_ context.Context, identityID, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.identity.ID == identityID {
			a.password = password
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryIdentityProvider) SetDisabled(_ context.Context, identityID string, disabled bool) error {
	if m.SetDisabledErr != nil {
		return m.SetDisabledErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.identity.ID == identityID {
			a.disabled = disabled
			return nil
		}
	}
	return ErrNotFound
}

// Disabled reports whether the identity with the given id is disabled.
func (m *MemoryIdentityProvider) Disabled(identityID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.identity.ID == identityID {
			return a.disabled
		}
	}
	return false
}

// MemoryFeed is a synchronous in-process identity and profile feed. Callbacks run on the
// publishing goroutine.
type MemoryFeed struct {
	mu         sync.Mutex
	nextID     int
	identities map[string]map[int]func(*domainauth.Identity)
	profiles   map[string]map[int]func()
}

// NewMemoryFeed creates an empty feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		identities: make(map[string]map[int]func(*domainauth.Identity)),
		profiles:   make(map[string]map[int]func()),
	}
}

type subscription struct {
	once  sync.Once
	close func()
}

func (s *subscription) Close() error {
	s.once.Do(s.close)
	return nil
}

func (m *MemoryFeed) PublishIdentity(_ context.Context, sessionID string, id *domainauth.Identity) error {
	m.mu.Lock()
	fns := make([]func(*domainauth.Identity), 0, len(m.identities[sessionID]))
	for _, fn := range m.identities[sessionID] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
	return nil
}

func (m *MemoryFeed) SubscribeIdentity(_ context.Context, sessionID string, fn func(*domainauth.Identity)) (ports.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	key := m.nextID
	if m.identities[sessionID] == nil {
		m.identities[sessionID] = make(map[int]func(*domainauth.Identity))
	}
	m.identities[sessionID][key] = fn
	return &subscription{close: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.identities[sessionID], key)
	}}, nil
}

func (m *MemoryFeed) PublishProfileChanged(_ context.Context, profileID string) error {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.profiles[profileID]))
	for _, fn := range m.profiles[profileID] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return nil
}

func (m *MemoryFeed) SubscribeProfile(_ context.Context, profileID string, fn func()) (ports.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	key := m.nextID
	if m.profiles[profileID] == nil {
		m.profiles[profileID] = make(map[int]func())
	}
	m.profiles[profileID][key] = fn
	return &subscription{close: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.profiles[profileID], key)
	}}, nil
}

// IdentitySubscribers reports the number of live identity subscriptions for a session.
func (m *MemoryFeed) IdentitySubscribers(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.identities[sessionID])
}

// ProfileSubscribers reports the number of live profile subscriptions for a profile.
func (m *MemoryFeed) ProfileSubscribers(profileID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles[profileID])
}

// MemoryProfileStore keeps profiles in memory. The *Err fields inject failures.
type MemoryProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domainauth.Profile
	creates  int

	GetErr    error
	CreateErr error
	TouchErr  error
}

// NewMemoryProfileStore creates a store seeded with the given profiles.
func NewMemoryProfileStore(seed ...domainauth.Profile) *MemoryProfileStore {
	m := &MemoryProfileStore{profiles: make(map[string]domainauth.Profile)}
	for _, p := range seed {
		m.profiles[p.ID] = p
	}
	return m
}

// Creates reports how many profiles were created through Create.
func (m *MemoryProfileStore) Creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

func (m *MemoryProfileStore) Get(_ context.Context, id string) (domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return domainauth.Profile{}, m.GetErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return domainauth.Profile{}, apperrors.NotFoundf("profile %s not found", id)
	}
	return p, nil
}

func (m *MemoryProfileStore) Create(_ context.Context, p domainauth.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if _, ok := m.profiles[p.ID]; ok {
		return apperrors.Conflictf("profile %s already exists", p.ID)
	}
	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Microsecond)
	p.LastLogin = p.LastLogin.UTC().Truncate(time.Microsecond)
	m.profiles[p.ID] = p
	m.creates++
	return nil
}

func (m *MemoryProfileStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TouchErr != nil {
		return m.TouchErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return apperrors.NotFoundf("profile %s not found", id)
	}
	p.LastLogin = at.UTC().Truncate(time.Microsecond)
	m.profiles[id] = p
	return nil
}

func (m *MemoryProfileStore) UpdateRole(_ context.Context, id string, role domainauth.Role) (domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return domainauth.Profile{}, apperrors.NotFoundf("profile %s not found", id)
	}
	p.Role = role
	m.profiles[id] = p
	return p, nil
}

func (m *MemoryProfileStore) List(_ context.Context, opts ports.ProfileListOptions) ([]domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domainauth.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		if opts.Role != nil && p.Role != *opts.Role {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domainauth.Profile) int { return strings.Compare(a.ID, b.ID) })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []domainauth.Profile{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// MemoryResetTokenStore issues sequential tokens.
type MemoryResetTokenStore struct {
	mu     sync.Mutex
	next   int
	tokens map[string]string
}

// NewMemoryResetTokenStore creates an empty token store.
func NewMemoryResetTokenStore() *MemoryResetTokenStore {
	return &MemoryResetTokenStore{tokens: make(map[string]string)}
}

func (m *MemoryResetTokenStore) Issue(_ context.Context, identityID string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	token := fmt.Sprintf("reset-%d", m.next)
	m.tokens[token] = identityID
	return token, nil
}

func (m *MemoryResetTokenStore) Redeem(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tokens[token]
	if !ok {
		return "", ErrNotFound
	}
	delete(m.tokens, token)
	return id, nil
}

// RecordingMailer records every sent message.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []ports.Message
	Err  error
}

func (m *RecordingMailer) Send(_ context.Context, msg ports.Message) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *RecordingMailer) Sent() []ports.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}
