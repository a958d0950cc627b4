package sessions

import "time"

// Session is one coding-agent session reconstructed from its log file.
// Sessions are append-only history: they are created on the first observed
// log line and updated on every subsequent append, never deleted.
type Session struct {
	ID             string
	ProjectSlug    string
	ProjectPath    string
	TranscriptPath string
	StartedAt      time.Time
	LastActivityAt time.Time
	MessageCount   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Mark is the high-water mark for one session log file: the byte offset and
// line count already indexed. A scan reads only bytes past the mark.
type Mark struct {
	Path      string
	SessionID string
	Offset    int64
	Lines     int
	UpdatedAt time.Time
}

// AuditEvent is one hook job lifecycle transition in the append-only audit
// log. The audit log is the durable record of hook activity; pub-sub
// delivery is best-effort on top of it.
type AuditEvent struct {
	ID        int64
	HookID    string
	SessionID string
	Plugin    string
	Hook      string
	Event     string
	Detail    string
	CreatedAt time.Time
}

// IndexUpdate captures the result of indexing appended bytes of one session
// log file, applied to the store in a single transaction.
type IndexUpdate struct {
	SessionID      string
	ProjectSlug    string
	ProjectPath    string
	TranscriptPath string
	Path           string
	Offset         int64
	Lines          int
	Messages       int
	ActivityAt     time.Time
}
