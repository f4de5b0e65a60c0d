package otpflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRequestCodeUnknownEmailDenied(t *testing.T) {
	_, rdb := newTestRedis(t)
	gw := newFakeGateway()
	engine := newTestEngine(t, rdb, gw)

	redirect, err := engine.RequestCode(context.Background(), "stranger@test.com")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if redirect.Route != RouteEntry {
		t.Fatalf("expected entry redirect, got %q", redirect.Route)
	}
	if redirect.ErrorFlag != ErrorFlagInviteOnly {
		t.Fatalf("expected invite-only flag, got %q", redirect.ErrorFlag)
	}

	// No challenge may be left behind for a denied email.
	if _, err := engine.Challenge(context.Background(), "stranger@test.com"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected no challenge after denial, got %v", err)
	}
	if got := engine.metrics.Value(MetricCodeDenied); got != 1 {
		t.Fatalf("expected 1 denial counted, got %d", got)
	}
}

func TestRequestCodeSuccessRedirectsToVerify(t *testing.T) {
	_, rdb := newTestRedis(t)
	gw := newFakeGateway()
	gw.invite("uid-1", "alice@test.com")
	engine := newTestEngine(t, rdb, gw)

	redirect, err := engine.RequestCode(context.Background(), "Alice@Test.com ")
	if err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	if redirect.Route != RouteVerify {
		t.Fatalf("expected verify redirect, got %q", redirect.Route)
	}
	if redirect.Email != "alice@test.com" {
		t.Fatalf("expected normalized email in redirect, got %q", redirect.Email)
	}

	state, err := engine.Challenge(context.Background(), "alice@test.com")
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}
	if state.Status != ChallengeAwaitingCode {
		t.Fatalf("expected ChallengeAwaitingCode, got %d", state.Status)
	}
	if got := engine.metrics.Value(MetricCodeRequested); got != 1 {
		t.Fatalf("expected 1 request counted, got %d", got)
	}
}

func TestRequestCodeInvalidEmail(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine := newTestEngine(t, rdb, newFakeGateway())

	for _, email := range []string{"", "no-at-sign", "@leading", "trailing@", "two@@ats", "sp ace@test.com"} {
		redirect, err := engine.RequestCode(context.Background(), email)
		if !errors.Is(err, ErrEmailInvalid) {
			t.Fatalf("email %q: expected ErrEmailInvalid, got %v", email, err)
		}
		if redirect.Route != RouteEntry {
			t.Fatalf("email %q: expected entry redirect, got %q", email, redirect.Route)
		}
	}
}

func TestRequestCodeSupersedesOpenChallenge(t *testing.T) {
	_, rdb := newTestRedis(t)
	gw := newFakeGateway()
	gw.invite("uid-1", "alice@test.com")
	engine := newTestEngine(t, rdb, gw)

	ctx := context.Background()
	if _, err := engine.RequestCode(ctx, "alice@test.com"); err != nil {
		t.Fatalf("first RequestCode failed: %v", err)
	}
	if _, err := engine.RequestCode(ctx, "alice@test.com"); err != nil {
		t.Fatalf("second RequestCode failed: %v", err)
	}

	if got := engine.metrics.Value(MetricChallengeSuperseded); got != 1 {
		t.Fatalf("expected 1 supersede counted, got %d", got)
	}

	// Still exactly one open challenge.
	state, err := engine.Challenge(ctx, "alice@test.com")
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}
	if state.Status != ChallengeAwaitingCode {
		t.Fatalf("expected fresh challenge awaiting code, got %d", state.Status)
	}
}

func TestRequestCodeSupersedeClearsPendingMarker(t *testing.T) {
	_, rdb := newTestRedis(t)
	gw := newFakeGateway()
	gw.invite("uid-1", "alice@test.com")
	engine := newTestEngine(t, rdb, gw)

	ctx := context.Background()
	if _, err := engine.RequestCode(ctx, "alice@test.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}

	// Simulate an in-flight operation holding the exclusive slot.
	if err := engine.challengeStore.BeginExclusive(ctx, "alice@test.com", pendingOpVerify, time.Minute); err != nil {
		t.Fatalf("BeginExclusive failed: %v", err)
	}

	// A new request replaces the challenge and releases the stale marker.
	if _, err := engine.RequestCode(ctx, "alice@test.com"); err != nil {
		t.Fatalf("superseding RequestCode failed: %v", err)
	}

	if err := engine.challengeStore.BeginExclusive(ctx, "alice@test.com", pendingOpVerify, time.Minute); err != nil {
		t.Fatalf("expected slot free after supersede, got %v", err)
	}
}

func TestRequestCodeRateLimited(t *testing.T) {
	_, rdb := newTestRedis(t)
	gw := newFakeGateway()
	gw.invite("uid-1", "alice@test.com")

	cfg := testConfig()
	cfg.Challenge.EnableEmailThrottle = true
	cfg.Challenge.MaxPerWindow = 2
	cfg.Challenge.ThrottleWindow = time.Minute

	engine, err := New().WithConfig(cfg).WithRedis(rdb).WithGateway(gw).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := engine.RequestCode(ctx, "alice@test.com"); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	redirect, err := engine.RequestCode(ctx, "alice@test.com")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if redirect.Route != RouteEntry {
		t.Fatalf("expected entry redirect, got %q", redirect.Route)
	}
	if got := engine.metrics.Value(MetricRateLimitHit); got != 1 {
		t.Fatalf("expected 1 rate limit hit, got %d", got)
	}
}

func TestResendCodeSuccess(t *testing.T) {
	_, rdb := newTestRedis(t)
	gw := newFakeGateway()
	gw.invite("uid-1", "alice@test.com")
	engine := newTestEngine(t, rdb, gw)

	ctx := context.Background()
	if _, err := engine.RequestCode(ctx, "alice@test.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}

	redirect, err := engine.ResendCode(ctx, "alice@test.com")
	if err != nil {
		t.Fatalf("ResendCode failed: %v", err)
	}
	if redirect.Route != RouteVerify {
		t.Fatalf("expected verify redirect, got %q", redirect.Route)
	}
	if !redirect.Resent {
		t.Fatal("expected Resent acknowledgment set")
	}
	if !redirect.ResentActive(time.Now()) {
		t.Fatal("expected acknowledgment active immediately after resend")
	}
	if redirect.ResentActive(time.Now().Add(10 * time.Second)) {
		t.Fatal("expected acknowledgment expired after the window")
	}

	// The challenge stays open and goes back to awaiting the new code.
	state, err := engine.Challenge(ctx, "alice@test.com")
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}
	if state.Status != ChallengeAwaitingCode {
		t.Fatalf("expected ChallengeAwaitingCode after resend, got %d", state.Status)
	}
	if gw.resends != 1 {
		t.Fatalf("expected 1 gateway resend, got %d", gw.resends)
	}
}

func TestResendCodeWithoutChallenge(t *testing.T) {
	_, rdb := newTestRedis(t)
	gw := newFakeGateway()
	gw.invite("uid-1", "alice@test.com")
	engine := newTestEngine(t, rdb, gw)

	redirect, err := engine.ResendCode(context.Background(), "alice@test.com")
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
	if redirect.Route != RouteEntry {
		t.Fatalf("expected entry redirect, got %q", redirect.Route)
	}
	if gw.resends != 0 {
		t.Fatalf("gateway must not be called without a challenge, got %d resends", gw.resends)
	}
}

func TestResendCodeFailureTerminatesChallenge(t *testing.T) {
	_, rdb := newTestRedis(t)
	gw := newFakeGateway()
	gw.invite("uid-1", "alice@test.com")
	engine := newTestEngine(t, rdb, gw)

	ctx := context.Background()
	if _, err := engine.RequestCode(ctx, "alice@test.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}

	gw.resendErr = errFakeGateway
	redirect, err := engine.ResendCode(ctx, "alice@test.com")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if redirect.Route != RouteEntry || redirect.ErrorFlag != ErrorFlagInviteOnly {
		t.Fatalf("expected invite-only entry redirect, got %+v", redirect)
	}

	// The failed resend kills the challenge; the user restarts from entry.
	if _, err := engine.Challenge(ctx, "alice@test.com"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected challenge gone after failed resend, got %v", err)
	}
}

func TestResendCodeExclusiveWithPendingOp(t *testing.T) {
	_, rdb := newTestRedis(t)
	gw := newFakeGateway()
	gw.invite("uid-1", "alice@test.com")
	engine := newTestEngine(t, rdb, gw)

	ctx := context.Background()
	if _, err := engine.RequestCode(ctx, "alice@test.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}

	// A verify in flight holds the exclusive slot.
	if err := engine.challengeStore.BeginExclusive(ctx, "alice@test.com", pendingOpVerify, time.Minute); err != nil {
		t.Fatalf("BeginExclusive failed: %v", err)
	}

	redirect, err := engine.ResendCode(ctx, "alice@test.com")
	if !errors.Is(err, ErrChallengeBusy) {
		t.Fatalf("expected ErrChallengeBusy, got %v", err)
	}
	if redirect.Route != RouteVerify {
		t.Fatalf("expected verify redirect, got %q", redirect.Route)
	}
	if gw.resends != 0 {
		t.Fatalf("gateway must not be called while busy, got %d resends", gw.resends)
	}
	if got := engine.metrics.Value(MetricChallengeBusy); got != 1 {
		t.Fatalf("expected 1 busy collision counted, got %d", got)
	}
}

func TestChallengeStateExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	gw := newFakeGateway()
	gw.invite("uid-1", "alice@test.com")

	cfg := testConfig()
	cfg.Challenge.ChallengeTTL = time.Minute

	engine, err := New().WithConfig(cfg).WithRedis(rdb).WithGateway(gw).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.RequestCode(ctx, "alice@test.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := engine.Challenge(ctx, "alice@test.com"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected expired challenge to be gone, got %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	got, err := normalizeEmail("  Bob@Example.COM ")
	if err != nil {
		t.Fatalf("normalizeEmail failed: %v", err)
	}
	if got != "bob@example.com" {
		t.Fatalf("expected lowercased trimmed email, got %q", got)
	}
}
