package otpflow

import (
	"net/url"
	"time"
)

// Route names an abstract navigation target. Values are conventional
// paths; callers embedding the engine behind different routing remap them.
type Route string

const (
	// RouteEntry is the challenge entry screen (email form).
	RouteEntry Route = "/auth"
	// RouteVerify is the code entry screen, parameterized by email.
	RouteVerify Route = "/auth/verify"
	// RouteAccount is the protected-area entry point.
	RouteAccount Route = "/account"
	// RouteFailure is the generic verification-failure screen.
	RouteFailure Route = "/error"
)

// ErrorFlagInviteOnly is the query-level signal carried back to the entry
// screen when a code request is denied.
const ErrorFlagInviteOnly = "invite-only"

// Redirect is the typed navigation outcome of an engine operation. The
// engine never redirects by itself; it tells the caller where to go and
// the caller decides how. Errors returned alongside a Redirect describe
// what happened; the Redirect describes where to navigate regardless.
type Redirect struct {
	Route Route
	// Email parameterizes RouteVerify. Carried in the URL, not in server
	// state, because no session exists yet at that point.
	Email string
	// ErrorFlag is set to [ErrorFlagInviteOnly] on denial redirects.
	ErrorFlag string
	// Resent marks a successful resend acknowledgment.
	Resent bool
	// ResentUntil is the unix time at which the resend acknowledgment
	// expires. Purely presentational; it carries no state-machine
	// meaning.
	ResentUntil int64
	// Revalidate tells the caller to refetch any root-scoped cached
	// authorization data before rendering the target.
	Revalidate bool
}

// ResentActive reports whether the resend acknowledgment should still be
// shown at the given time.
func (r Redirect) ResentActive(now time.Time) bool {
	return r.Resent && now.Unix() < r.ResentUntil
}

// URL renders the redirect as a conventional path with query
// parameters. Callers with their own routing ignore this and read the
// fields directly.
func (r Redirect) URL() string {
	q := url.Values{}
	if r.Email != "" {
		q.Set("email", r.Email)
	}
	if r.ErrorFlag != "" {
		q.Set("error", r.ErrorFlag)
	}
	if r.Resent {
		q.Set("resent", "true")
	}

	if len(q) == 0 {
		return string(r.Route)
	}
	return string(r.Route) + "?" + q.Encode()
}

func redirectEntryDenied() Redirect {
	return Redirect{Route: RouteEntry, ErrorFlag: ErrorFlagInviteOnly}
}

func redirectVerify(email string) Redirect {
	return Redirect{Route: RouteVerify, Email: email}
}

func redirectFailure() Redirect {
	return Redirect{Route: RouteFailure}
}

func redirectAccount() Redirect {
	return Redirect{Route: RouteAccount, Revalidate: true}
}
