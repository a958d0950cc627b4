package ipc

import (
	"time"

	"github.com/TheBushidoCollective/han-sub006/internal/hooks"
	"github.com/TheBushidoCollective/han-sub006/internal/pubsub"
)

// ServiceName is the RPC namespace every method lives under.
const ServiceName = "Han"

// PingArgs requests a liveness probe.
type PingArgs struct{}

// PingReply reports that the daemon answered and whether it currently
// leads.
type PingReply struct {
	PID     int  `json:"pid"`
	Leading bool `json:"leading"`
}

// StatusArgs requests the full daemon status.
type StatusArgs struct{}

// StatusReply is the daemon's self-description.
type StatusReply struct {
	PID           int            `json:"pid"`
	Hostname      string         `json:"hostname"`
	Leading       bool           `json:"leading"`
	StartedAt     time.Time      `json:"startedAt"`
	HeartbeatAt   time.Time      `json:"heartbeatAt"`
	SessionCount  int            `json:"sessionCount"`
	QueueCounts   map[string]int `json:"queueCounts"`
	WatchRoot     string         `json:"watchRoot"`
	SocketPath    string         `json:"socketPath"`
	MaxConcurrent int            `json:"maxConcurrent"`
}

// EnqueueArgs submits a hook job.
type EnqueueArgs struct {
	Plugin         string   `json:"plugin"`
	Hook           string   `json:"hook"`
	SessionID      string   `json:"sessionId,omitempty"`
	Command        string   `json:"command"`
	Files          []string `json:"files,omitempty"`
	TimeoutSeconds int      `json:"timeoutSeconds,omitempty"`
}

// EnqueueReply acknowledges admission to the queue. RunID identifies this
// admission; the hook id alone recurs across executions of the same work.
type EnqueueReply struct {
	HookID string `json:"hookId"`
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// ClearSessionArgs cancels every live hook of one session.
type ClearSessionArgs struct {
	SessionID string `json:"sessionId"`
}

// ClearSessionReply reports how many jobs the call cancelled.
type ClearSessionReply struct {
	Cancelled int `json:"cancelled"`
}

// WaitResultArgs long-polls for a hook's terminal result. A non-empty
// RunID waits for that specific admission rather than any buffered result
// carrying the hook id.
type WaitResultArgs struct {
	HookID         string `json:"hookId"`
	RunID          string `json:"runId,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// WaitResultReply carries the result when one arrived in time.
type WaitResultReply struct {
	Found  bool          `json:"found"`
	Result *hooks.Result `json:"result,omitempty"`
}

// SessionListArgs requests all indexed sessions.
type SessionListArgs struct{}

// SessionInfo is one indexed session.
type SessionInfo struct {
	ID             string    `json:"id"`
	ProjectSlug    string    `json:"projectSlug,omitempty"`
	ProjectPath    string    `json:"projectPath,omitempty"`
	TranscriptPath string    `json:"transcriptPath,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	MessageCount   int       `json:"messageCount"`
}

// SessionListReply lists sessions, most recently active first.
type SessionListReply struct {
	Sessions []SessionInfo `json:"sessions"`
}

// QueueListArgs requests all tracked hook jobs.
type QueueListArgs struct{}

// JobInfo is one tracked hook job.
type JobInfo struct {
	HookID     string    `json:"hookId"`
	Plugin     string    `json:"plugin"`
	Hook       string    `json:"hook"`
	SessionID  string    `json:"sessionId,omitempty"`
	Files      []string  `json:"files,omitempty"`
	Status     string    `json:"status"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// QueueListReply lists jobs, oldest first.
type QueueListReply struct {
	Jobs []JobInfo `json:"jobs"`
}

// AuditArgs requests the audit trail of one hook id.
type AuditArgs struct {
	HookID string `json:"hookId"`
}

// AuditEventInfo is one recorded lifecycle transition.
type AuditEventInfo struct {
	HookID    string    `json:"hookId"`
	SessionID string    `json:"sessionId,omitempty"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditReply lists transitions, oldest first.
type AuditReply struct {
	Events []AuditEventInfo `json:"events"`
}

// EventsArgs polls the event hub.
type EventsArgs struct {
	Since       uint64 `json:"since"`
	Limit       int    `json:"limit,omitempty"`
	WaitSeconds int    `json:"waitSeconds,omitempty"`
}

// EventsReply returns buffered events past the cursor.
type EventsReply struct {
	Events []pubsub.Event `json:"events"`
	Cursor uint64         `json:"cursor"`
}
