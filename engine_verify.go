package otpflow

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/otpflow/internal"
	"github.com/MrEthical07/otpflow/session"
)

// VerifyCode submits a one-time code for an open challenge. The local
// check is format only (exact digit count); the gateway is the sole
// authority on correctness. Outcomes:
//
//   - Malformed code: [ErrCodeFormat], redirect stays on the verify
//     screen. The challenge survives.
//   - Gateway rejection or backend failure: the challenge is terminated
//     and the caller is sent to the failure screen with
//     [ErrCodeInvalid]. Retrying requires a fresh code request.
//   - Success: a session is durably persisted, a signed token is
//     issued, and the caller is sent to the account screen. The account
//     redirect is returned only after the session write is
//     acknowledged.
//
// VerifyCode is exclusive with ResendCode per challenge: if a resend is
// in flight the verify is rejected with [ErrChallengeBusy].
func (e *Engine) VerifyCode(ctx context.Context, email, code string) (*SignInResult, Redirect, error) {
	if e == nil || e.gateway == nil || e.challengeStore == nil || e.sessionStore == nil || e.jwtManager == nil {
		return nil, redirectFailure(), ErrEngineNotReady
	}

	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		// time.Since must run at return time, inside the closure.
		defer func() {
			e.metrics.Observe(MetricVerifyLatency, time.Since(start))
		}()
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, redirectEntryDenied(), ErrEmailInvalid
	}

	if len(code) != e.config.Challenge.CodeDigits || !internal.IsNumeric(code) {
		// Pre-gateway rejection: the challenge stays open and the user
		// stays on the code entry screen.
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventVerifyFailure, false, email, "", "", ErrCodeFormat, func() map[string]string {
			return map[string]string{
				"reason": "code_format",
			}
		})
		return nil, redirectVerify(email), ErrCodeFormat
	}

	if _, err := e.challengeStore.Get(ctx, email); err != nil {
		if errors.Is(err, errChallengeNotFound) {
			return nil, redirectEntryDenied(), ErrChallengeNotFound
		}
		return nil, redirectFailure(), ErrCodeInvalid
	}

	ip := clientIPFromContext(ctx)
	if e.challengeLimiter != nil {
		if err := e.challengeLimiter.CheckVerify(ctx, email, ip); err != nil {
			if errors.Is(err, errChallengeRateLimited) {
				e.emitRateLimit(ctx, "verify_code", email)
				return nil, redirectVerify(email), ErrRateLimited
			}
			return nil, redirectFailure(), ErrCodeInvalid
		}
	}

	if err := e.challengeStore.BeginExclusive(ctx, email, pendingOpVerify, e.config.Challenge.PendingOpTTL); err != nil {
		if errors.Is(err, errChallengeOpPending) {
			e.metricInc(MetricChallengeBusy)
			return nil, redirectVerify(email), ErrChallengeBusy
		}
		return nil, redirectFailure(), ErrCodeInvalid
	}
	defer e.challengeStore.EndExclusive(ctx, email)

	if err := e.challengeStore.SetStatus(ctx, email, ChallengeVerifying); err != nil {
		if errors.Is(err, errChallengeNotFound) {
			return nil, redirectEntryDenied(), ErrChallengeNotFound
		}
		return nil, redirectFailure(), ErrCodeInvalid
	}
	_ = e.challengeStore.IncrementAttempts(ctx, email)

	identity, err := e.gateway.VerifyCode(ctx, email, code)
	if err != nil {
		// Single-shot challenge: any rejection terminates it. A wrong
		// code cannot be retried against the same challenge.
		_ = e.challengeStore.Delete(ctx, email)
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventVerifyFailure, false, email, "", "", ErrCodeInvalid, func() map[string]string {
			return map[string]string{
				"reason": "gateway_rejected",
			}
		})
		return nil, redirectFailure(), ErrCodeInvalid
	}

	result, err := e.establishSession(ctx, identity)
	if err != nil {
		_ = e.challengeStore.Delete(ctx, email)
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventVerifyFailure, false, email, identity.ID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "session_establish_failed",
			}
		})
		return nil, redirectFailure(), err
	}

	if err := e.challengeStore.Delete(ctx, email); err != nil {
		// The session already exists; a leftover challenge record just
		// ages out on its TTL.
		e.emitAudit(ctx, auditEventVerifySuccess, true, email, identity.ID, result.Session.SessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "challenge_cleanup_failed",
			}
		})
	}

	e.metricInc(MetricVerifySuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventVerifySuccess, true, email, identity.ID, result.Session.SessionID, nil, nil)
	e.emitAudit(ctx, auditEventSessionEstablish, true, email, identity.ID, result.Session.SessionID, nil, nil)

	e.notifySessionEvent(SessionEvent{
		Type:    SessionEstablished,
		Session: result.Session,
	})

	return result, redirectAccount(), nil
}

// establishSession persists a new session for identity and issues its
// signed token. The Redis write is acknowledged before the token is
// returned; callers downstream may rely on the session existing.
func (e *Engine) establishSession(ctx context.Context, identity Identity) (*SignInResult, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, ErrSessionCreationFailed
	}
	sessionID := sid.String()

	now := time.Now()
	lifetime := e.config.Session.Lifetime
	stored := &session.Session{
		SessionID: sessionID,
		UserID:    identity.ID,
		Email:     identity.Email,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(lifetime).Unix(),
	}

	if err := e.sessionStore.Save(ctx, stored, lifetime); err != nil {
		return nil, ErrSessionCreationFailed
	}

	token, err := e.jwtManager.CreateSession(identity.ID, sessionID, identity.Email)
	if err != nil {
		_ = e.sessionStore.Delete(ctx, identity.ID, sessionID)
		return nil, ErrSessionCreationFailed
	}

	return &SignInResult{
		Identity: identity,
		Session: Session{
			SessionID: sessionID,
			Identity:  identity,
			CreatedAt: stored.CreatedAt,
			ExpiresAt: stored.ExpiresAt,
		},
		Token: token,
	}, nil
}
