package otpflow

import (
	"context"
	"time"
)

const (
	auditEventChallengeRequest = "challenge_request"
	auditEventChallengeDenied  = "challenge_denied"
	auditEventChallengeResend  = "challenge_resend"
	auditEventVerifySuccess    = "verify_success"
	auditEventVerifyFailure    = "verify_failure"
	auditEventSessionEstablish = "session_established"
	auditEventSignOut          = "sign_out"
	auditEventGuardDeny        = "guard_deny"
	auditEventProfileLoad      = "profile_load"
	auditEventProfileCommit    = "profile_commit"
	auditEventRateLimited      = "rate_limited"
)

// emitAudit hands an event to the dispatcher. metadata is lazily built so
// disabled audit costs nothing beyond the nil check.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	email, userID, sessionID string,
	err error,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Email:     email,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, operation, email string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimited, false, email, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"operation": operation,
		}
	})
}
