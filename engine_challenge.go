package otpflow

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	pendingOpVerify = "verify"
	pendingOpResend = "resend"
)

// RequestCode starts (or restarts) an email challenge. The gateway is
// asked to send a one-time code without creating an account for unknown
// emails; any gateway or backend failure is folded into a single
// invite-only denial so callers cannot distinguish "not invited" from
// "gateway down". On success the caller should navigate to the returned
// verify redirect.
//
// A second request for an email with an open challenge supersedes it;
// the old challenge can no longer be verified or resent.
func (e *Engine) RequestCode(ctx context.Context, email string) (Redirect, error) {
	if e == nil || e.gateway == nil || e.challengeStore == nil {
		return redirectEntryDenied(), ErrEngineNotReady
	}

	email, err := normalizeEmail(email)
	if err != nil {
		e.metricInc(MetricCodeDenied)
		e.emitAudit(ctx, auditEventChallengeDenied, false, email, "", "", ErrEmailInvalid, func() map[string]string {
			return map[string]string{
				"reason": "invalid_email",
			}
		})
		return redirectEntryDenied(), ErrEmailInvalid
	}

	ip := clientIPFromContext(ctx)
	if e.challengeLimiter != nil {
		if err := e.challengeLimiter.CheckRequest(ctx, email, ip); err != nil {
			if errors.Is(err, errChallengeRateLimited) {
				e.emitRateLimit(ctx, "request_code", email)
				return redirectEntryDenied(), ErrRateLimited
			}
			// Limiter backend failure denies like everything else on this
			// path; no enumeration signal leaks.
			e.metricInc(MetricCodeDenied)
			e.emitAudit(ctx, auditEventChallengeDenied, false, email, "", "", ErrAccessDenied, func() map[string]string {
				return map[string]string{
					"reason": "limiter_unavailable",
				}
			})
			return redirectEntryDenied(), ErrAccessDenied
		}
	}

	if err := e.gateway.RequestCode(ctx, email, false); err != nil {
		e.metricInc(MetricCodeDenied)
		e.emitAudit(ctx, auditEventChallengeDenied, false, email, "", "", ErrAccessDenied, func() map[string]string {
			return map[string]string{
				"reason": "gateway_rejected",
			}
		})
		return redirectEntryDenied(), ErrAccessDenied
	}

	now := time.Now()
	record := &challengeRecord{
		Email:     email,
		Status:    ChallengeAwaitingCode,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.Challenge.ChallengeTTL).Unix(),
	}

	superseded, err := e.challengeStore.Save(ctx, record, e.config.Challenge.ChallengeTTL)
	if err != nil {
		e.metricInc(MetricCodeDenied)
		e.emitAudit(ctx, auditEventChallengeDenied, false, email, "", "", ErrAccessDenied, func() map[string]string {
			return map[string]string{
				"reason": "challenge_store_failed",
			}
		})
		return redirectEntryDenied(), ErrAccessDenied
	}
	if superseded {
		e.metricInc(MetricChallengeSuperseded)
	}

	e.metricInc(MetricCodeRequested)
	e.emitAudit(ctx, auditEventChallengeRequest, true, email, "", "", nil, func() map[string]string {
		m := map[string]string{}
		if superseded {
			m["superseded_prior"] = "true"
		}
		return m
	})

	return redirectVerify(email), nil
}

// ResendCode asks the gateway to send a fresh code for an open
// challenge. Exclusive with verification: while a verify is in flight
// the resend is rejected with [ErrChallengeBusy], and vice versa. A
// resend failure terminates the challenge and sends the caller back to
// the entry screen with the same denial as a failed request.
//
// On success the redirect carries a short-lived acknowledgment window
// for display; it expires on its own and carries no state.
func (e *Engine) ResendCode(ctx context.Context, email string) (Redirect, error) {
	if e == nil || e.gateway == nil || e.challengeStore == nil {
		return redirectEntryDenied(), ErrEngineNotReady
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return redirectEntryDenied(), ErrEmailInvalid
	}

	if _, err := e.challengeStore.Get(ctx, email); err != nil {
		if errors.Is(err, errChallengeNotFound) {
			return redirectEntryDenied(), ErrChallengeNotFound
		}
		return redirectEntryDenied(), ErrAccessDenied
	}

	ip := clientIPFromContext(ctx)
	if e.challengeLimiter != nil {
		if err := e.challengeLimiter.CheckRequest(ctx, email, ip); err != nil {
			if errors.Is(err, errChallengeRateLimited) {
				e.emitRateLimit(ctx, "resend_code", email)
				return redirectVerify(email), ErrRateLimited
			}
			return redirectEntryDenied(), ErrAccessDenied
		}
	}

	if err := e.challengeStore.BeginExclusive(ctx, email, pendingOpResend, e.config.Challenge.PendingOpTTL); err != nil {
		if errors.Is(err, errChallengeOpPending) {
			e.metricInc(MetricChallengeBusy)
			return redirectVerify(email), ErrChallengeBusy
		}
		return redirectEntryDenied(), ErrAccessDenied
	}
	defer e.challengeStore.EndExclusive(ctx, email)

	if err := e.challengeStore.SetStatus(ctx, email, ChallengeResending); err != nil {
		if errors.Is(err, errChallengeNotFound) {
			return redirectEntryDenied(), ErrChallengeNotFound
		}
		return redirectEntryDenied(), ErrAccessDenied
	}

	if err := e.gateway.ResendCode(ctx, email, false); err != nil {
		// A failed resend kills the challenge outright; the caller starts
		// over from the entry screen.
		_ = e.challengeStore.Delete(ctx, email)
		e.metricInc(MetricCodeDenied)
		e.emitAudit(ctx, auditEventChallengeDenied, false, email, "", "", ErrAccessDenied, func() map[string]string {
			return map[string]string{
				"reason": "resend_rejected",
			}
		})
		return redirectEntryDenied(), ErrAccessDenied
	}

	if err := e.challengeStore.SetStatus(ctx, email, ChallengeAwaitingCode); err != nil {
		return redirectEntryDenied(), ErrAccessDenied
	}

	e.metricInc(MetricResendSuccess)
	e.emitAudit(ctx, auditEventChallengeResend, true, email, "", "", nil, nil)

	redirect := redirectVerify(email)
	redirect.Resent = true
	redirect.ResentUntil = time.Now().Add(e.config.Challenge.ResendAckWindow).Unix()
	return redirect, nil
}

// Challenge returns the current challenge state for email, or
// [ErrChallengeNotFound] when none is open.
func (e *Engine) Challenge(ctx context.Context, email string) (*ChallengeState, error) {
	if e == nil || e.challengeStore == nil {
		return nil, ErrEngineNotReady
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrEmailInvalid
	}

	record, err := e.challengeStore.Get(ctx, email)
	if err != nil {
		if errors.Is(err, errChallengeNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	return record.state(), nil
}

// normalizeEmail lowercases and trims the address and applies a shallow
// shape check. The gateway remains the authority on deliverability.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmailInvalid
	}

	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return email, ErrEmailInvalid
	}
	if strings.IndexByte(email[at+1:], '@') != -1 {
		return email, ErrEmailInvalid
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return email, ErrEmailInvalid
	}

	return email, nil
}
