// Package jwt issues and validates the signed session token that callers
// carry between requests. The token binds a user id, session id, and
// email; the session id must still resolve against the Redis session
// store, so a token alone never grants access after sign-out.
package jwt
