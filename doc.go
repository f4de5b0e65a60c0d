// Package otpflow implements a passwordless email one-time-code sign-in
// workflow: an invite-only challenge flow (request, verify, resend), a
// Redis-backed session layer with signed session tokens, a session guard
// for protected areas, and a conflict-safe profile synchronizer.
//
// # Design
//
// The [Engine] orchestrates the challenge state machine against an
// [IdentityGateway], which owns code issuance and verification. Every
// engine operation returns a typed [Redirect] describing where the caller
// should navigate next, alongside an error describing what happened; the
// two are deliberately decoupled so callers interpret outcomes instead of
// being redirected server-side.
//
// Gateway failures on code request and resend are collapsed into a single
// invite-only denial. The engine does not distinguish "email not
// provisioned" from "gateway down" to its callers, which avoids leaking
// account-enumeration signals. Audit events retain the distinction.
//
// # Architecture boundaries
//
//   - The gateway is the sole authority on code correctness; the engine
//     only rejects malformed input locally.
//   - Sessions are persisted (write acknowledged) before any navigation
//     to a protected area is returned.
//   - Profiles are read and written only through [Synchronizer], which
//     guards against reloads clobbering unsaved edits.
package otpflow
