package otpflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// NoticeKind classifies the synchronizer's advisory notices.
type NoticeKind uint8

const (
	// NoticeNone means no notice is pending.
	NoticeNone NoticeKind = iota
	// NoticeLoadFailed means the last load degraded; field values were
	// left untouched and editing remains possible.
	NoticeLoadFailed
	// NoticeCommitSuccess acknowledges a successful commit.
	NoticeCommitSuccess
	// NoticeCommitFailed means the last commit was rejected; local edits
	// are preserved for retry.
	NoticeCommitFailed
)

// Notice is the transient advisory state surfaced after loads and
// commits. Purely informational; it has no bearing on stored data and
// is replaced on the next commit attempt.
type Notice struct {
	Kind NoticeKind
	At   int64
}

type editedFlags struct {
	fullName  bool
	username  bool
	website   bool
	avatarURL bool
}

func (f editedFlags) any() bool {
	return f.fullName || f.username || f.website || f.avatarURL
}

// Synchronizer holds one identity's profile as editable local state and
// mediates all reads and writes of the backing row. It is the sole
// writer for its identity. Safe for concurrent use.
//
// Loads are keyed strictly off the identity id by value: a second load
// for the id already loaded is a no-op, and a resolving load never
// overwrites fields the caller has edited since. This closes the class
// of defect where an incidental re-trigger (same identity, new object)
// silently wipes unsaved input.
type Synchronizer struct {
	engine   *Engine
	store    ProfileStore
	identity Identity

	mu         sync.Mutex
	loadedID   string
	generation uint64
	committing bool
	fields     ProfileFields
	edited     editedFlags
	notice     Notice
}

// Profile binds a [Synchronizer] to the given session's identity.
// Requires an authenticated session; a nil session or one without an
// identity returns [ErrSessionRequired]. The synchronizer stays valid
// for the session's lifetime; a new session needs a new synchronizer.
func (e *Engine) Profile(sess *Session) (*Synchronizer, error) {
	if e == nil || e.profileStore == nil {
		return nil, ErrEngineNotReady
	}
	if sess == nil || sess.Identity.ID == "" {
		return nil, ErrSessionRequired
	}

	return &Synchronizer{
		engine:   e,
		store:    e.profileStore,
		identity: sess.Identity,
	}, nil
}

// Identity returns the bound identity.
func (s *Synchronizer) Identity() Identity {
	return s.identity
}

// Load fetches the profile row for identity. The identity must match
// the bound session identity or [ErrIdentityMismatch] is returned.
//
// A load for the id that is already loaded is suppressed entirely; this
// is the value-keyed dedup that makes incidental re-triggers harmless.
// An absent row is a valid empty state: fields become null and no
// notice is raised. A store failure leaves fields untouched, raises a
// load-failed notice, and returns a wrapped [ErrProfileUnavailable];
// the caller may still edit and commit, which upserts.
//
// Fields edited between the load being issued and it resolving keep
// their edited values; only untouched fields take store data.
func (s *Synchronizer) Load(ctx context.Context, identity Identity) error {
	if s == nil {
		return ErrEngineNotReady
	}
	if identity.ID == "" {
		return ErrSessionRequired
	}
	if identity.ID != s.identity.ID {
		return ErrIdentityMismatch
	}

	s.mu.Lock()
	if s.loadedID == identity.ID {
		s.mu.Unlock()
		s.engine.metricInc(MetricProfileLoadSuppressed)
		return nil
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	profile, err := s.store.GetProfile(ctx, identity.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		// A newer load superseded this one while it was in flight; its
		// result wins and this response is dropped.
		s.engine.metricInc(MetricProfileLoadSuppressed)
		return nil
	}

	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			// Never-edited user: absence is success with empty fields.
			s.loadedID = identity.ID
			s.applyLoaded(ProfileFields{})
			s.engine.metricInc(MetricProfileLoadEmpty)
			s.engine.emitAudit(ctx, auditEventProfileLoad, true, identity.Email, identity.ID, "", nil, func() map[string]string {
				return map[string]string{
					"result": "empty",
				}
			})
			return nil
		}

		// loadedID stays unset so a later load can retry.
		s.notice = Notice{Kind: NoticeLoadFailed, At: time.Now().Unix()}
		s.engine.metricInc(MetricProfileLoadFailed)
		s.engine.emitAudit(ctx, auditEventProfileLoad, false, identity.Email, identity.ID, "", err, nil)
		return fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}

	s.loadedID = identity.ID
	s.applyLoaded(profile.Fields)
	s.engine.metricInc(MetricProfileLoad)
	s.engine.emitAudit(ctx, auditEventProfileLoad, true, identity.Email, identity.ID, "", nil, nil)
	return nil
}

// applyLoaded writes store data into local fields, skipping anything
// the user has edited. Caller holds s.mu.
func (s *Synchronizer) applyLoaded(loaded ProfileFields) {
	if !s.edited.fullName {
		s.fields.FullName = loaded.FullName
	}
	if !s.edited.username {
		s.fields.Username = loaded.Username
	}
	if !s.edited.website {
		s.fields.Website = loaded.Website
	}
	if !s.edited.avatarURL {
		s.fields.AvatarURL = loaded.AvatarURL
	}
}

// SetFullName stages a local edit.
func (s *Synchronizer) SetFullName(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields.FullName = &v
	s.edited.fullName = true
}

// SetUsername stages a local edit.
func (s *Synchronizer) SetUsername(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields.Username = &v
	s.edited.username = true
}

// SetWebsite stages a local edit.
func (s *Synchronizer) SetWebsite(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields.Website = &v
	s.edited.website = true
}

// SetAvatarURL stages a local edit.
func (s *Synchronizer) SetAvatarURL(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields.AvatarURL = &v
	s.edited.avatarURL = true
}

// Fields returns a copy of the current local field values.
func (s *Synchronizer) Fields() ProfileFields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields
}

// Dirty reports whether any local edit has not been committed.
func (s *Synchronizer) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edited.any()
}

// Notice returns the pending advisory notice, if any.
func (s *Synchronizer) Notice() Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// ClearNotice dismisses the pending notice.
func (s *Synchronizer) ClearNotice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = Notice{}
}

// Commit upserts the current field snapshot for the bound identity. At
// most one commit may be in flight; a second concurrent call is
// rejected with [ErrProfileBusy] without touching the store. On failure
// local edits are preserved so the user can retry; on success the
// edited markers clear and the local state becomes the loaded state.
func (s *Synchronizer) Commit(ctx context.Context) error {
	if s == nil {
		return ErrEngineNotReady
	}

	s.mu.Lock()
	if s.committing {
		s.mu.Unlock()
		s.engine.metricInc(MetricProfileCommitBusy)
		return ErrProfileBusy
	}
	s.committing = true
	s.notice = Notice{}
	snapshot := s.fields
	s.mu.Unlock()

	err := s.store.UpsertProfile(ctx, s.identity.ID, snapshot, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.committing = false

	if err != nil {
		s.notice = Notice{Kind: NoticeCommitFailed, At: time.Now().Unix()}
		s.engine.metricInc(MetricProfileCommitFailed)
		s.engine.emitAudit(ctx, auditEventProfileCommit, false, s.identity.Email, s.identity.ID, "", err, nil)
		return fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}

	s.notice = Notice{Kind: NoticeCommitSuccess, At: time.Now().Unix()}
	s.edited = editedFlags{}
	s.loadedID = s.identity.ID
	s.engine.metricInc(MetricProfileCommitSuccess)
	s.engine.emitAudit(ctx, auditEventProfileCommit, true, s.identity.Email, s.identity.ID, "", nil, nil)
	return nil
}
