package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/otpflow"
)

// SessionCookieName is the cookie the middleware reads the session
// token from when no Authorization header is present.
const SessionCookieName = "of_session"

type sessionContextKey struct{}

// SessionFromContext returns the session attached by [Guard].
func SessionFromContext(ctx context.Context) (*otpflow.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*otpflow.Session)
	return sess, ok
}

// Guard gates a protected handler on session state. The token is taken
// from the Authorization bearer header or the session cookie; a denied
// request is answered with a 303 redirect to the guard's entry
// redirect, never with an error page. The resolved session is attached
// to the request context for downstream handlers.
func Guard(engine *otpflow.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := engine.Guard(requestContext(r), tokenFromRequest(r))
			if !decision.Allowed {
				http.Redirect(w, r, decision.Redirect.URL(), http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, decision.Session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestMeta attaches the caller's IP and user agent to every
// request context so engine operations downstream pick them up for
// throttling and audit.
func WithRequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(requestContext(r)))
	})
}

func requestContext(r *http.Request) context.Context {
	ctx := otpflow.WithClientIP(r.Context(), remoteIP(r))
	if ua := r.UserAgent(); ua != "" {
		ctx = otpflow.WithUserAgent(ctx, ua)
	}
	return ctx
}

func tokenFromRequest(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func remoteIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i != -1 {
		return strings.Trim(addr[:i], "[]")
	}
	return addr
}
