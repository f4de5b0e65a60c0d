package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/otpflow"
)

type staticGateway struct {
	identity otpflow.Identity
	code     string
}

func (g *staticGateway) RequestCode(context.Context, string, bool) error { return nil }
func (g *staticGateway) ResendCode(context.Context, string, bool) error  { return nil }
func (g *staticGateway) VerifyCode(_ context.Context, _, code string) (otpflow.Identity, error) {
	if code != g.code {
		return otpflow.Identity{}, otpflow.ErrCodeInvalid
	}
	return g.identity, nil
}

func newGuardedServer(t *testing.T) (*otpflow.Engine, string) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	gw := &staticGateway{
		identity: otpflow.Identity{ID: "uid-1", Email: "a@test.com"},
		code:     "123456",
	}

	cfg := otpflow.Config{
		Token: otpflow.TokenConfig{
			TTL:           time.Hour,
			SigningMethod: "hs256",
			PrivateKey:    []byte("middleware-test-secret"),
		},
		Session: otpflow.SessionConfig{RedisPrefix: "ofs", Lifetime: time.Hour},
		Challenge: otpflow.ChallengeConfig{
			CodeDigits:      6,
			ChallengeTTL:    15 * time.Minute,
			ResendAckWindow: 3 * time.Second,
			PendingOpTTL:    30 * time.Second,
		},
		Profile: otpflow.ProfileConfig{RedisPrefix: "ofp"},
	}

	engine, err := otpflow.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithGateway(gw).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	if _, err := engine.RequestCode(ctx, "a@test.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	result, _, err := engine.VerifyCode(ctx, "a@test.com", "123456")
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	return engine, result.Token
}

func protectedHandler(t *testing.T, sawSession *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok || sess == nil {
			t.Error("expected session in context")
		} else if sess.Identity.ID != "uid-1" {
			t.Errorf("unexpected identity: %q", sess.Identity.ID)
		}
		*sawSession = ok
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardRedirectsAnonymous(t *testing.T) {
	engine, _ := newGuardedServer(t)

	var saw bool
	handler := Guard(engine)(protectedHandler(t, &saw))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/auth" {
		t.Fatalf("expected redirect to /auth, got %q", loc)
	}
	if saw {
		t.Fatal("protected handler must not run for anonymous requests")
	}
}

func TestGuardAcceptsCookieToken(t *testing.T) {
	engine, token := newGuardedServer(t)

	var saw bool
	handler := Guard(engine)(protectedHandler(t, &saw))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !saw {
		t.Fatal("expected protected handler to run with session")
	}
}

func TestGuardAcceptsBearerToken(t *testing.T) {
	engine, token := newGuardedServer(t)

	var saw bool
	handler := Guard(engine)(protectedHandler(t, &saw))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGuardBearerTakesPrecedenceOverCookie(t *testing.T) {
	engine, token := newGuardedServer(t)

	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// A garbage bearer header wins over the valid cookie and denies.
	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
}

func TestGuardRejectsRevokedSession(t *testing.T) {
	engine, token := newGuardedServer(t)

	if err := engine.SignOut(context.Background(), token); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 after revocation, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/auth" {
		t.Fatalf("expected redirect to /auth, got %q", loc)
	}
}

func TestBearerTokenParsing(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"", "", false},
		{"Basic abc", "", false},
		{"bearer abc", "", false},
	}
	for _, tc := range cases {
		token, ok := bearerToken(tc.header)
		if token != tc.token || ok != tc.ok {
			t.Fatalf("header %q: got (%q, %v), want (%q, %v)", tc.header, token, ok, tc.token, tc.ok)
		}
	}
}

func TestRemoteIP(t *testing.T) {
	cases := []struct {
		addr string
		want string
	}{
		{"10.0.0.1:1234", "10.0.0.1"},
		{"[::1]:8080", "::1"},
		{"10.0.0.2", "10.0.0.2"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.addr
		if got := remoteIP(req); got != tc.want {
			t.Fatalf("addr %q: expected %q, got %q", tc.addr, tc.want, got)
		}
	}
}
