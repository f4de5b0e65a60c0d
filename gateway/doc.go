// Package gateway is a self-contained identity gateway: an invite-only
// directory of provisioned emails plus one-time code issuance and
// verification, all backed by Redis. It satisfies the engine's gateway
// boundary for deployments that do not delegate identity to an external
// provider, and doubles as the reference implementation for writing
// one.
//
// Codes are stored hashed and consumed atomically; a code can be
// accepted at most once, and a bounded number of wrong guesses burns
// the challenge.
package gateway
