package otpflow

import (
	"context"
	"time"
)

// SessionInfo is the safe introspection view for a session. It carries no
// token material.
type SessionInfo struct {
	SessionID string
	Email     string
	CreatedAt int64
	ExpiresAt int64
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// Health pings the session backend and reports reachability plus the
// observed round-trip latency.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}
	}

	start := time.Now()
	err := e.sessionStore.Ping(ctx)
	latency := time.Since(start)

	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
	}
}

// Sessions lists the live sessions belonging to userID, for account
// screens that show where the user is signed in. Already-expired index
// entries are filtered out.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrSessionRequired
	}

	stored, err := e.sessionStore.ListForUser(ctx, userID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	infos := make([]SessionInfo, 0, len(stored))
	for _, sess := range stored {
		infos = append(infos, SessionInfo{
			SessionID: sess.SessionID,
			Email:     sess.Email,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
		})
	}
	return infos, nil
}
