package session

// Session is the stored session record. Timestamps are unix seconds.
type Session struct {
	SessionID string
	UserID    string
	Email     string
	CreatedAt int64
	ExpiresAt int64
}
