package otpflow

import "errors"

var (
	// ErrAccessDenied is the invite-only denial: the gateway refused a
	// code request or resend. Transport failures are deliberately folded
	// into the same error to avoid account-enumeration signals.
	ErrAccessDenied = errors.New("access not permitted for this email")
	// ErrCodeInvalid means the gateway rejected a verification attempt.
	// No finer diagnostic is surfaced; the challenge is terminated.
	ErrCodeInvalid = errors.New("verification failed")
	// ErrCodeFormat means the submitted code is not exactly six digits;
	// the gateway was never called.
	ErrCodeFormat = errors.New("code must be exactly six digits")
	// ErrEmailInvalid means the submitted email is empty or malformed.
	ErrEmailInvalid = errors.New("invalid email")
	// ErrChallengeNotFound means no open challenge exists for the email.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeBusy means a verify or resend is already in flight for
	// this challenge; only one of the two may be pending at a time.
	ErrChallengeBusy = errors.New("challenge operation already in flight")
	// ErrRateLimited means a fixed-window throttle rejected the call.
	ErrRateLimited = errors.New("rate limited")
	// ErrSessionRequired means an operation that needs an authenticated
	// session was attempted without one.
	ErrSessionRequired = errors.New("session required")
	// ErrSessionNotFound means the session backing a token no longer
	// exists (expired or revoked).
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCreationFailed means the session could not be durably
	// persisted after a successful verification.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrTokenInvalid means the session token failed to parse or verify.
	ErrTokenInvalid = errors.New("invalid session token")
	// ErrIdentityMismatch means a profile operation targeted an owner id
	// different from the bound session identity.
	ErrIdentityMismatch = errors.New("identity does not match session")
	// ErrProfileNotFound is returned by a ProfileStore for an identity
	// with no profile row. Absence is a valid state for a never-edited
	// user; the synchronizer does not treat it as an error.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileBusy means a commit is already in flight for this
	// identity; the caller should retry after it settles.
	ErrProfileBusy = errors.New("profile commit already in flight")
	// ErrProfileUnavailable means the profile store backend failed.
	ErrProfileUnavailable = errors.New("profile store unavailable")
	// ErrEngineNotReady means the engine was used before Build wired its
	// dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)
