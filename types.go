package otpflow

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/otpflow/internal/audit"
)

// Identity is the immutable record of an authenticated principal, created
// by the identity gateway on first successful verification. Unique per
// email.
type Identity struct {
	ID    string
	Email string
}

// Session records who is currently authenticated. A zero Identity.ID
// means no session; [Evaluate] treats it as a deny.
type Session struct {
	SessionID string
	Identity  Identity
	CreatedAt int64
	ExpiresAt int64
}

// ChallengeStatus is the lifecycle state of a single challenge attempt.
type ChallengeStatus uint8

const (
	// ChallengeIdle is the implicit state before any code request.
	ChallengeIdle ChallengeStatus = iota
	// ChallengeRequested means a code request has been sent to the gateway.
	ChallengeRequested
	// ChallengeAwaitingCode means the gateway accepted and a code is pending entry.
	ChallengeAwaitingCode
	// ChallengeVerifying means a verify call is in flight.
	ChallengeVerifying
	// ChallengeResending means a resend call is in flight.
	ChallengeResending
	// ChallengeVerified is terminal; the challenge is superseded by a Session.
	ChallengeVerified
	// ChallengeFailed is terminal; the caller must restart from ChallengeIdle.
	ChallengeFailed
)

// ChallengeState is the ephemeral per-attempt record held while an email
// challenge is open. At most one exists per email; a new request for the
// same email supersedes any prior one.
type ChallengeState struct {
	Email     string
	Status    ChallengeStatus
	Attempts  uint16
	CreatedAt int64
	ExpiresAt int64
}

// IdentityGateway is the external collaborator that issues and verifies
// one-time codes. It is the authority on code correctness and on which
// emails are provisioned. Implementations must treat createIfMissing=false
// as invite-only semantics: unknown emails get an error, never a silently
// created account.
//
// The engine collapses all gateway errors on RequestCode/ResendCode into
// [ErrAccessDenied]; implementations do not need to distinguish failure
// modes in their return values.
type IdentityGateway interface {
	RequestCode(ctx context.Context, email string, createIfMissing bool) error
	VerifyCode(ctx context.Context, email, code string) (Identity, error)
	ResendCode(ctx context.Context, email string, createIfMissing bool) error
}

// ProfileFields holds the mutable, user-editable profile attributes.
// A nil pointer means the field has never been set.
type ProfileFields struct {
	FullName  *string
	Username  *string
	Website   *string
	AvatarURL *string
}

// Profile is the stored profile row, keyed 1:1 by the owning identity.
type Profile struct {
	OwnerID   string
	Fields    ProfileFields
	UpdatedAt int64
}

// ProfileStore is the persistence boundary for profile rows. GetProfile
// returns [ErrProfileNotFound] for an identity that has never committed a
// profile; callers treat that as a valid empty state, not a failure.
// UpsertProfile creates or replaces the row for ownerID.
type ProfileStore interface {
	GetProfile(ctx context.Context, ownerID string) (*Profile, error)
	UpsertProfile(ctx context.Context, ownerID string, fields ProfileFields, updatedAt time.Time) error
}

// SignInResult is returned by [Engine.VerifyCode] on success. Token is
// the signed session credential the caller should persist (cookie or
// equivalent) before following the redirect.
type SignInResult struct {
	Identity Identity
	Session  Session
	Token    string
}

// SessionEventType distinguishes session-change notifications.
type SessionEventType uint8

const (
	// SessionEstablished fires after a session is durably persisted.
	SessionEstablished SessionEventType = iota
	// SessionRevoked fires after sign-out or backend invalidation.
	SessionRevoked
)

// SessionEvent is delivered to listeners registered with
// [Engine.Subscribe].
type SessionEvent struct {
	Type    SessionEventType
	Session Session
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
