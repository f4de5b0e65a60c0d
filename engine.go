package otpflow

import (
	"context"
	"sync"

	"github.com/MrEthical07/otpflow/jwt"
	"github.com/MrEthical07/otpflow/session"
)

// Engine drives the passwordless sign-in workflow: email challenges,
// code verification, session issuance, and profile access. Configure it
// through [New] and treat it as immutable afterwards; all methods are
// safe for concurrent use.
type Engine struct {
	config           Config
	gateway          IdentityGateway
	challengeStore   *challengeStore
	challengeLimiter *challengeLimiter
	sessionStore     *session.Store
	profileStore     ProfileStore
	jwtManager       *jwt.Manager
	audit            *auditDispatcher
	metrics          *Metrics

	listenerMu  sync.RWMutex
	listeners   map[uint64]func(SessionEvent)
	listenerSeq uint64
}

// Close stops the audit dispatcher, draining buffered events first.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters and
// histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Subscribe registers a listener for session lifecycle events. Listeners
// run synchronously on the emitting goroutine and must not block. The
// returned function cancels the subscription.
func (e *Engine) Subscribe(fn func(SessionEvent)) func() {
	if e == nil || fn == nil {
		return func() {}
	}

	e.listenerMu.Lock()
	e.listenerSeq++
	id := e.listenerSeq
	if e.listeners == nil {
		e.listeners = make(map[uint64]func(SessionEvent))
	}
	e.listeners[id] = fn
	e.listenerMu.Unlock()

	return func() {
		e.listenerMu.Lock()
		delete(e.listeners, id)
		e.listenerMu.Unlock()
	}
}

func (e *Engine) notifySessionEvent(event SessionEvent) {
	e.listenerMu.RLock()
	fns := make([]func(SessionEvent), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenerMu.RUnlock()

	for _, fn := range fns {
		fn(event)
	}
}

// ValidateSession verifies a session token and resolves it against the
// Redis session store. Validation is strict and fail-closed: a valid
// signature alone never grants access; the backing session must still
// exist. Returns [ErrTokenInvalid] for unparsable tokens and
// [ErrSessionNotFound] when the session is gone or the backend is
// unreachable.
func (e *Engine) ValidateSession(ctx context.Context, tokenStr string) (*Session, error) {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseSession(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	// Backend unavailability is deliberately indistinguishable from a
	// missing session: validation fails closed either way.
	sess, err := e.sessionStore.Get(ctx, claims.SID, e.config.Session.Lifetime)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	if sess.UserID != claims.UID {
		_ = e.sessionStore.Delete(ctx, sess.UserID, sess.SessionID)
		return nil, ErrSessionNotFound
	}

	return &Session{
		SessionID: sess.SessionID,
		Identity: Identity{
			ID:    sess.UserID,
			Email: sess.Email,
		},
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// SignOut revokes the session behind tokenStr. Idempotent: revoking an
// already-gone session succeeds. The token itself remains parseable
// until it expires but no longer resolves.
func (e *Engine) SignOut(ctx context.Context, tokenStr string) error {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseSession(tokenStr)
	if err != nil {
		e.emitAudit(ctx, auditEventSignOut, false, "", "", "", ErrTokenInvalid, nil)
		return ErrTokenInvalid
	}

	sess, getErr := e.sessionStore.Get(ctx, claims.SID, 0)

	if err := e.sessionStore.Delete(ctx, claims.UID, claims.SID); err != nil {
		e.emitAudit(ctx, auditEventSignOut, false, claims.Email, claims.UID, claims.SID, err, nil)
		return err
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSignOut, true, claims.Email, claims.UID, claims.SID, nil, nil)

	if getErr == nil && sess != nil {
		e.notifySessionEvent(SessionEvent{
			Type: SessionRevoked,
			Session: Session{
				SessionID: sess.SessionID,
				Identity: Identity{
					ID:    sess.UserID,
					Email: sess.Email,
				},
				CreatedAt: sess.CreatedAt,
				ExpiresAt: sess.ExpiresAt,
			},
		})
	}

	return nil
}

// SignOutAll revokes every session belonging to userID.
func (e *Engine) SignOutAll(ctx context.Context, userID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	err := e.sessionStore.DeleteAllForUser(ctx, userID)
	if err == nil {
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventSignOut, err == nil, "", userID, "", err, func() map[string]string {
		return map[string]string{
			"scope": "all",
		}
	})
	return err
}

// ActiveSessionCount reports how many live sessions userID has.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int64, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessionStore.ActiveSessionCount(ctx, userID)
}
