// Package middleware adapts the engine's session guard to net/http.
//
// [Guard] reads the session token from the Authorization header or the
// of_session cookie, asks the engine for a decision, and either invokes
// the next handler with the session in context or answers with a 303
// redirect to the challenge entry screen.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated
// to the engine's guard.
//
// # What this package must NOT do
//
//   - Parse or create session tokens directly (delegates to the Engine).
//   - Access Redis (the Engine handles I/O).
//   - Make authorization decisions beyond allow/deny from the guard.
package middleware
