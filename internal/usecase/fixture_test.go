package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/breaker"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/security"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository"
	redisrepo "github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository/redis"
)

const testKeyPrefix = "tokens"

var errDurableDown = errors.New("durable store down")

// memoryDurable is an in-memory stand-in for the Postgres blacklist and
// token version tables.
type memoryDurable struct {
	mu       sync.Mutex
	records  map[string]port.DurableBlacklistRecord
	versions map[string]port.DurableTokenVersion
	err      error
}

func newMemoryDurable() *memoryDurable {
	return &memoryDurable{
		records:  make(map[string]port.DurableBlacklistRecord),
		versions: make(map[string]port.DurableTokenVersion),
	}
}

func (m *memoryDurable) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *memoryDurable) Add(_ context.Context, entry domain.BlacklistEntry, retainUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if existing, ok := m.records[entry.JTI]; ok && existing.RetainUntil.After(retainUntil) {
		retainUntil = existing.RetainUntil
	}
	m.records[entry.JTI] = port.DurableBlacklistRecord{Entry: entry, RetainUntil: retainUntil}
	return nil
}

func (m *memoryDurable) AddIfAbsent(_ context.Context, entry domain.BlacklistEntry, retainUntil time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.records[entry.JTI]; ok {
		return false, nil
	}
	m.records[entry.JTI] = port.DurableBlacklistRecord{Entry: entry, RetainUntil: retainUntil}
	return true, nil
}

func (m *memoryDurable) Contains(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.records[jti]
	return ok, nil
}

func (m *memoryDurable) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var deleted int64
	for jti, record := range m.records {
		if record.RetainUntil.Before(before) {
			delete(m.records, jti)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memoryDurable) ListActive(_ context.Context, at time.Time, afterJTI string, limit int) ([]port.DurableBlacklistRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []port.DurableBlacklistRecord
	for jti, record := range m.records {
		if record.RetainUntil.After(at) && jti > afterJTI {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry.JTI < out[j].Entry.JTI })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryDurable) GetTokenVersion(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.versions[userID].Version, nil
}

func (m *memoryDurable) IncrementTokenVersion(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	next := m.versions[userID].Version + 1
	m.versions[userID] = port.DurableTokenVersion{UserID: userID, Version: next, UpdatedAt: time.Now()}
	return next, nil
}

func (m *memoryDurable) RaiseTokenVersion(_ context.Context, userID string, atLeast int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	current := m.versions[userID]
	if current.Version >= atLeast {
		return current.Version, nil
	}
	m.versions[userID] = port.DurableTokenVersion{UserID: userID, Version: atLeast, UpdatedAt: time.Now()}
	return atLeast, nil
}

func (m *memoryDurable) ListTokenVersions(_ context.Context, changedSince time.Time, afterUserID string, limit int) ([]port.DurableTokenVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []port.DurableTokenVersion
	for userID, v := range m.versions {
		if userID > afterUserID && !v.UpdatedAt.Before(changedSince) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryDurable) version(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[userID].Version
}

func (m *memoryDurable) has(jti string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[jti]
	return ok
}

// stubUserDirectory resolves users from memory; passwords are compared verbatim.
type stubUserDirectory struct {
	users     map[string]domain.UserIdentity
	passwords map[string]string
	err       error
}

func (s *stubUserDirectory) GetUser(_ context.Context, id string) (*domain.UserIdentity, error) {
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (s *stubUserDirectory) FindByEmail(_ context.Context, email string) (*domain.UserIdentity, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, user := range s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserDirectory) VerifyCredentials(_ context.Context, email, password string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	expected, ok := s.passwords[email]
	return ok && expected == password, nil
}

// recordingSink captures audit events.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
	panics bool
}

func (s *recordingSink) Record(_ context.Context, event domain.AuditEvent) error {
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) actions() []domain.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

func (s *recordingSink) eventsFor(action domain.AuditAction) []domain.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEvent
	for _, e := range s.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type engineFixture struct {
	redis        *miniredis.Miniredis
	client       *red.Client
	durable      *memoryDurable
	breakerClock *testClock
	breaker      *breaker.CacheBreaker
	store        *RevocationStore
	jwt          *security.JWTManager
	issuer       *TokenIssuer
	validator    *TokenValidator
	sessions     *SessionRegistry
	sink         *recordingSink
	audit        *BestEffortAudit
	users        *stubUserDirectory
	auth         *AuthService
}

func newEngineFixture(t *testing.T, mode domain.DegradationPolicyMode) *engineFixture {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := red.NewClient(&red.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	logger := zaptest.NewLogger(t)
	clock := newTestClock(time.Now())
	cb := breaker.New(breaker.Options{
		Probe:           func(ctx context.Context) error { return client.Ping(ctx).Err() },
		RecheckInterval: time.Minute,
		Now:             clock.Now,
	})

	durable := newMemoryDurable()
	store := NewRevocationStore(RevocationStoreOptions{
		Cache:           redisrepo.NewBlacklistRepository(client, testKeyPrefix),
		Durable:         durable,
		Versions:        redisrepo.NewTokenVersionRepository(client, testKeyPrefix, 365*24*time.Hour),
		DurableVersions: durable,
		Sessions:        redisrepo.NewSessionRepository(client, testKeyPrefix),
		Breaker:         cb,
		Logger:          logger,
	})

	keys, err := security.NewEphemeralKeyProvider(2048)
	if err != nil {
		t.Fatalf("NewEphemeralKeyProvider: %v", err)
	}
	manager := security.NewJWTManager(keys, security.JWTOptions{Issuer: "token-service", Audience: "platform"})
	policy := domain.NewDegradationPolicy(mode)

	issuer := NewTokenIssuer(manager, store, TokenIssuerOptions{Policy: policy, Logger: logger})
	validator := NewTokenValidator(manager, store, policy, nil, logger)
	// Session touches run detached and may outlive the test.
	sessions := NewSessionRegistry(store, zap.NewNop())
	sink := &recordingSink{}
	audit := NewBestEffortAudit(sink, time.Second, nil, logger)
	t.Cleanup(audit.Wait)

	users := &stubUserDirectory{
		users: map[string]domain.UserIdentity{
			"user-1": {ID: "user-1", Email: "ada@example.com", Role: "admin", Permissions: []string{"tokens:write", "tokens:read"}, IsActive: true},
			"user-2": {ID: "user-2", Email: "off@example.com", Role: "user", IsActive: false},
		},
		passwords: map[string]string{
			"ada@example.com": "correct horse",
			"off@example.com": "disabled",
		},
	}

	return &engineFixture{
		redis:        server,
		client:       client,
		durable:      durable,
		breakerClock: clock,
		breaker:      cb,
		store:        store,
		jwt:          manager,
		issuer:       issuer,
		validator:    validator,
		sessions:     sessions,
		sink:         sink,
		audit:        audit,
		users:        users,
		auth:         NewAuthService(users, issuer, validator, sessions, store, audit, logger),
	}
}

func (f *engineFixture) activeUser() domain.UserIdentity {
	return f.users.users["user-1"]
}

// cacheDown makes every Redis command fail.
func (f *engineFixture) cacheDown() {
	f.redis.SetError("ERR simulated outage")
}

func (f *engineFixture) cacheUp() {
	f.redis.SetError("")
}

func (f *engineFixture) login(t *testing.T, userAgent string) *LoginResult {
	t.Helper()
	result, err := f.auth.Login(context.Background(), LoginInput{
		Email:    "ada@example.com",
		Password: "correct horse",
		Device:   domain.DeviceInfo{UserAgent: userAgent, IPAddress: "203.0.113.7"},
	})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	return result
}

func timePtr(v time.Time) *time.Time { return &v }
