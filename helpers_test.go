package otpflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.PrivateKey = []byte("test-signing-secret")
	cfg.Challenge.EnableEmailThrottle = false
	cfg.Challenge.EnableIPThrottle = false
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, gw IdentityGateway) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithGateway(gw).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

var errFakeGateway = errors.New("fake gateway failure")

// fakeGateway is an in-memory IdentityGateway double. Emails present in
// invited are provisioned; everything else is denied. A single code per
// email is tracked, set by RequestCode/ResendCode.
type fakeGateway struct {
	mu       sync.Mutex
	invited  map[string]Identity
	codes    map[string]string
	nextCode string

	requestErr  error
	resendErr   error
	verifyErr   error
	verifyDelay time.Duration

	requests int
	resends  int
	verifies int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		invited:  make(map[string]Identity),
		codes:    make(map[string]string),
		nextCode: "123456",
	}
}

func (g *fakeGateway) invite(id, email string) Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	identity := Identity{ID: id, Email: email}
	g.invited[email] = identity
	return identity
}

func (g *fakeGateway) RequestCode(_ context.Context, email string, createIfMissing bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests++

	if g.requestErr != nil {
		return g.requestErr
	}
	if _, ok := g.invited[email]; !ok && !createIfMissing {
		return errFakeGateway
	}
	g.codes[email] = g.nextCode
	return nil
}

func (g *fakeGateway) ResendCode(_ context.Context, email string, createIfMissing bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resends++

	if g.resendErr != nil {
		return g.resendErr
	}
	if _, ok := g.invited[email]; !ok && !createIfMissing {
		return errFakeGateway
	}
	g.codes[email] = g.nextCode
	return nil
}

func (g *fakeGateway) VerifyCode(_ context.Context, email, code string) (Identity, error) {
	if g.verifyDelay > 0 {
		time.Sleep(g.verifyDelay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifies++

	if g.verifyErr != nil {
		return Identity{}, g.verifyErr
	}
	want, ok := g.codes[email]
	if !ok || want != code {
		return Identity{}, errFakeGateway
	}
	identity, ok := g.invited[email]
	if !ok {
		return Identity{}, errFakeGateway
	}
	delete(g.codes, email)
	return identity, nil
}

// fakeProfileStore is a controllable ProfileStore double.
type fakeProfileStore struct {
	mu       sync.Mutex
	rows     map[string]Profile
	getErr   error
	upErr    error
	getGate  chan struct{}
	upGate   chan struct{}
	upserts  int
	gets     int
	lastTime time.Time
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{rows: make(map[string]Profile)}
}

func (s *fakeProfileStore) GetProfile(_ context.Context, ownerID string) (*Profile, error) {
	if s.getGate != nil {
		<-s.getGate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++

	if s.getErr != nil {
		return nil, s.getErr
	}
	row, ok := s.rows[ownerID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	out := row
	return &out, nil
}

func (s *fakeProfileStore) UpsertProfile(_ context.Context, ownerID string, fields ProfileFields, updatedAt time.Time) error {
	if s.upGate != nil {
		<-s.upGate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.lastTime = updatedAt

	if s.upErr != nil {
		return s.upErr
	}
	s.rows[ownerID] = Profile{
		OwnerID:   ownerID,
		Fields:    fields,
		UpdatedAt: updatedAt.Unix(),
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}
