package otpflow

import "context"

// Decision is the outcome of a guard evaluation.
type Decision struct {
	// Allowed reports whether the protected area may render.
	Allowed bool
	// Redirect is where to send a denied caller. Zero when Allowed.
	Redirect Redirect
	// Session is the evaluated session when Allowed.
	Session *Session
}

// Evaluate applies the protected-area gate to an already-resolved
// session. Pure: no backend calls, no side effects. A nil session or a
// session with no identity id is denied and pointed at the entry
// screen without any error flag; absence of a session is an expected
// state, not a failure.
func Evaluate(sess *Session) Decision {
	if sess == nil || sess.Identity.ID == "" {
		return Decision{
			Allowed:  false,
			Redirect: Redirect{Route: RouteEntry},
		}
	}
	return Decision{
		Allowed: true,
		Session: sess,
	}
}

// Guard resolves tokenStr against the session backend and gates the
// protected area on the result. Fail-closed: token parse failures,
// missing sessions, and backend errors all deny. The denial redirect
// never carries an error flag; an expired session looks exactly like
// never having signed in.
func (e *Engine) Guard(ctx context.Context, tokenStr string) Decision {
	if e == nil {
		return Evaluate(nil)
	}

	if tokenStr == "" {
		e.metricInc(MetricGuardDeny)
		return Evaluate(nil)
	}

	sess, err := e.ValidateSession(ctx, tokenStr)
	if err != nil {
		e.metricInc(MetricGuardDeny)
		e.emitAudit(ctx, auditEventGuardDeny, false, "", "", "", err, nil)
		return Evaluate(nil)
	}

	return Evaluate(sess)
}
