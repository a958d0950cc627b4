package hooks

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of a hook job.
type Status string

const (
	StatusQueued            Status = "queued"
	StatusRunning           Status = "running"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusCancelledQueued   Status = "cancelled_queued"
	StatusCancelledInflight Status = "cancelled_inflight"
)

// IsTerminal reports whether the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelledQueued, StatusCancelledInflight:
		return true
	}
	return false
}

// Spec describes one hook invocation request.
type Spec struct {
	Plugin    string
	Hook      string
	SessionID string
	Command   string
	Files     []string
	Timeout   time.Duration
}

// Validate checks the fields a job cannot run without.
func (s Spec) Validate() error {
	if s.Plugin == "" {
		return errors.New("plugin is required")
	}
	if s.Hook == "" {
		return errors.New("hook is required")
	}
	if s.Command == "" {
		return errors.New("command is required")
	}
	return nil
}

// DedupeKey identifies the logical work a job performs. Two specs with the
// same plugin, hook, and file set collide regardless of file order.
func (s Spec) DedupeKey() string {
	files := append([]string(nil), s.Files...)
	sort.Strings(files)
	return s.Plugin + "\x00" + s.Hook + "\x00" + strings.Join(files, "\x00")
}

// ID derives the stable hook identifier "plugin:hook:hash8" where hash8 is
// the first eight hex digits of the dedupe key's SHA-256.
func (s Spec) ID() string {
	sum := sha256.Sum256([]byte(s.DedupeKey()))
	return fmt.Sprintf("%s:%s:%s", s.Plugin, s.Hook, hex.EncodeToString(sum[:4]))
}

// Job is one tracked hook invocation. ID is derived from the dedupe key
// and recurs across executions of the same work; RunID is unique to this
// admission.
type Job struct {
	ID         string
	RunID      string
	Spec       Spec
	Status     Status
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	key             string
	cancelRequested bool
	cancel          func()
	finished        bool
}

// Snapshot is a copy of a job's observable state, safe to hand across the
// queue's lock boundary.
type Snapshot struct {
	ID         string
	RunID      string
	Plugin     string
	Hook       string
	SessionID  string
	Files      []string
	Status     Status
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

func (j *Job) snapshot() Snapshot {
	return Snapshot{
		ID:         j.ID,
		RunID:      j.RunID,
		Plugin:     j.Spec.Plugin,
		Hook:       j.Spec.Hook,
		SessionID:  j.Spec.SessionID,
		Files:      append([]string(nil), j.Spec.Files...),
		Status:     j.Status,
		EnqueuedAt: j.EnqueuedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

// Result is the single terminal outcome of a job. Cancelled jobs report
// Success true with Cancelled set: cancellation is a normal outcome of
// supersession, not a failure of the hook. RunID ties the result to one
// admission, since hook ids repeat across executions of the same work.
type Result struct {
	HookID     string        `json:"hookId"`
	RunID      string        `json:"runId,omitempty"`
	SessionID  string        `json:"sessionId,omitempty"`
	Plugin     string        `json:"plugin"`
	Hook       string        `json:"hook"`
	Status     Status        `json:"status"`
	Success    bool          `json:"success"`
	Cancelled  bool          `json:"cancelled"`
	ExitCode   int           `json:"exitCode"`
	Stdout     string        `json:"stdout,omitempty"`
	Stderr     string        `json:"stderr,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// ResultSink receives each job's terminal result exactly once.
type ResultSink interface {
	HookResult(result Result)
}

// nopSink discards results.
type nopSink struct{}

func (nopSink) HookResult(Result) {}
