// Package session provides the Redis-backed session store: a compact
// binary session record keyed by session id, plus a per-user index set so
// all sessions for an identity can be revoked together.
//
// # Architecture boundaries
//
// This package owns persistence only. Token issuance, validation policy,
// and session-change notification live in the root package.
package session
