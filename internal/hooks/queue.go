package hooks

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheBushidoCollective/han-sub006/internal/logging"
	"github.com/TheBushidoCollective/han-sub006/internal/sessions"
)

// Auditor records job lifecycle transitions durably.
type Auditor interface {
	AppendAudit(ctx context.Context, event sessions.AuditEvent) error
}

// Queue schedules hook jobs across a bounded worker pool with dedupe-key
// supersession.
type Queue struct {
	runner        Runner
	sink          ResultSink
	audit         Auditor
	logger        *slog.Logger
	maxConcurrent int

	mu           sync.Mutex
	jobs         map[string]*Job
	queuedByKey  map[string]*Job
	runningByKey map[string]*Job
	pending      []*Job
	wake         chan struct{}

	runCtx  context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewQueue constructs a queue. A nil runner uses the shell runner; a nil
// sink discards results; a nil auditor skips the audit log.
func NewQueue(maxConcurrent int, runner Runner, sink ResultSink, audit Auditor, logger *slog.Logger) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if runner == nil {
		runner = ShellRunner{}
	}
	if sink == nil {
		sink = nopSink{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Queue{
		runner:        runner,
		sink:          sink,
		audit:         audit,
		logger:        logging.NewComponentLogger(logger, "hookqueue"),
		maxConcurrent: maxConcurrent,
		jobs:          make(map[string]*Job),
		queuedByKey:   make(map[string]*Job),
		runningByKey:  make(map[string]*Job),
		wake:          make(chan struct{}, 1),
	}
}

// Start launches the worker pool. Jobs enqueued before Start wait until a
// worker picks them up.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.runCtx, q.stop = context.WithCancel(ctx)
	q.mu.Unlock()

	for i := 0; i < q.maxConcurrent; i++ {
		q.wg.Add(1)
		go q.worker(q.runCtx)
	}
	q.logger.Info("hook queue started", logging.Int("workers", q.maxConcurrent))
}

// Stop cancels all in-flight jobs and waits for the workers to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	stop := q.stop
	q.mu.Unlock()

	stop()
	q.wg.Wait()
	q.logger.Info("hook queue stopped")
}

// Enqueue admits a job. A queued job with the same dedupe key is
// superseded: cancelled with a terminal cancellation result before the new
// job takes its place. A running job with the same key keeps running; the
// new job waits behind it.
func (q *Queue) Enqueue(ctx context.Context, spec Spec) (Snapshot, error) {
	if err := spec.Validate(); err != nil {
		return Snapshot{}, err
	}

	job := &Job{
		ID:         spec.ID(),
		RunID:      uuid.NewString(),
		Spec:       spec,
		Status:     StatusQueued,
		EnqueuedAt: time.Now(),
		key:        spec.DedupeKey(),
	}

	var superseded *Result
	q.mu.Lock()
	q.pruneLocked()
	if prior, ok := q.queuedByKey[job.key]; ok {
		superseded = q.cancelQueuedLocked(prior, StatusCancelledQueued)
	}
	q.jobs[job.ID] = job
	q.queuedByKey[job.key] = job
	q.pending = append(q.pending, job)
	q.mu.Unlock()

	if superseded != nil {
		q.emit(*superseded, "superseded by newer enqueue")
	}
	q.recordAudit(job, "queued", "")
	q.logger.Info("hook enqueued",
		logging.String(logging.FieldHookID, job.ID),
		logging.String(logging.FieldSessionID, spec.SessionID),
		logging.Bool("superseded_prior", superseded != nil))
	q.signal()
	return job.snapshot(), nil
}

// ClearSession cancels every live job belonging to a session and returns
// how many were cancelled. Queued jobs terminate immediately; running jobs
// receive SIGTERM and report their cancellation when the process exits.
// Repeated calls do not count a job twice.
func (q *Queue) ClearSession(ctx context.Context, sessionID string) int {
	if sessionID == "" {
		return 0
	}

	var (
		count   int
		results []Result
	)
	q.mu.Lock()
	// A running job superseded in the jobs map by a same-key arrival is
	// still live, so sweep runningByKey as well. The cancelRequested
	// guard keeps a job visited through both maps from counting twice.
	live := make(map[*Job]struct{}, len(q.jobs)+len(q.runningByKey))
	for _, job := range q.jobs {
		live[job] = struct{}{}
	}
	for _, job := range q.runningByKey {
		live[job] = struct{}{}
	}
	for job := range live {
		if job.Spec.SessionID != sessionID || job.finished || job.cancelRequested {
			continue
		}
		switch job.Status {
		case StatusQueued:
			if result := q.cancelQueuedLocked(job, StatusCancelledQueued); result != nil {
				results = append(results, *result)
				count++
			}
		case StatusRunning:
			job.cancelRequested = true
			job.cancel()
			count++
		}
	}
	q.mu.Unlock()

	for _, result := range results {
		q.emit(result, "session cleared")
	}
	if count > 0 {
		q.logger.Info("session hooks cleared",
			logging.String(logging.FieldSessionID, sessionID),
			logging.Int("cancelled", count))
	}
	return count
}

// Get returns the tracked state of one job by hook id.
func (q *Queue) Get(hookID string) (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[hookID]
	if !ok {
		return Snapshot{}, false
	}
	return job.snapshot(), true
}

// List returns a snapshot of every tracked job, oldest first.
func (q *Queue) List() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Snapshot, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, job.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out
}

// Counts returns the number of tracked jobs per status.
func (q *Queue) Counts() map[Status]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[Status]int)
	for _, job := range q.jobs {
		counts[job.Status]++
	}
	return counts
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		job, jobCtx := q.next(ctx)
		if job == nil {
			return
		}
		q.runJob(ctx, job, jobCtx)
	}
}

// next blocks until a queued job is available or ctx is done. The returned
// job is already marked running under the queue lock so cancellation paths
// see a consistent state.
func (q *Queue) next(ctx context.Context) (*Job, context.Context) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			job := q.pending[0]
			q.pending = q.pending[1:]
			job.Status = StatusRunning
			job.StartedAt = time.Now()
			delete(q.queuedByKey, job.key)
			q.runningByKey[job.key] = job
			jobCtx, cancel := context.WithCancel(ctx)
			job.cancel = cancel
			more := len(q.pending) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			q.recordAudit(job, "started", "")
			return job, jobCtx
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil
		case <-q.wake:
		}
	}
}

func (q *Queue) runJob(ctx context.Context, job *Job, jobCtx context.Context) {
	outcome := q.runner.Run(jobCtx, job.Spec)
	job.cancel()

	q.mu.Lock()
	job.FinishedAt = time.Now()
	var result Result
	if job.cancelRequested || (jobCtx.Err() != nil && ctx.Err() != nil) {
		job.Status = StatusCancelledInflight
		result = cancellationResult(job, StatusCancelledInflight)
		result.Stdout = outcome.Stdout
		result.Stderr = outcome.Stderr
	} else {
		result = resultFromExec(job.Spec, outcome, job.StartedAt)
		result.RunID = job.RunID
		job.Status = result.Status
	}
	job.finished = true
	delete(q.runningByKey, job.key)
	q.mu.Unlock()

	q.emit(result, "")
}

// finishedRetention is how long terminal jobs stay visible to Get and
// List before pruning.
const finishedRetention = time.Hour

// pruneLocked drops long-finished jobs so the tracking maps stay bounded
// in a long-lived daemon. Caller holds the queue lock.
func (q *Queue) pruneLocked() {
	cutoff := time.Now().Add(-finishedRetention)
	for id, job := range q.jobs {
		if job.finished && job.FinishedAt.Before(cutoff) {
			delete(q.jobs, id)
		}
	}
}

// cancelQueuedLocked terminates a job that never started. Caller holds the
// queue lock and emits the returned result after releasing it.
func (q *Queue) cancelQueuedLocked(job *Job, status Status) *Result {
	if job.finished {
		return nil
	}
	job.Status = status
	job.FinishedAt = time.Now()
	job.finished = true
	delete(q.queuedByKey, job.key)
	for i, pending := range q.pending {
		if pending == job {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	result := cancellationResult(job, status)
	return &result
}

// cancellationResult builds the terminal result of a cancelled job.
// Cancellation is a clean outcome: success with exit code zero.
func cancellationResult(job *Job, status Status) Result {
	return Result{
		HookID:     job.ID,
		RunID:      job.RunID,
		SessionID:  job.Spec.SessionID,
		Plugin:     job.Spec.Plugin,
		Hook:       job.Spec.Hook,
		Status:     status,
		Success:    true,
		Cancelled:  true,
		ExitCode:   0,
		Duration:   job.FinishedAt.Sub(job.EnqueuedAt),
		FinishedAt: job.FinishedAt,
	}
}

// emit delivers a terminal result to the sink and the audit log.
func (q *Queue) emit(result Result, detail string) {
	q.sink.HookResult(result)

	event := string(result.Status)
	if detail == "" && result.Error != "" {
		detail = result.Error
	}
	q.appendAudit(sessions.AuditEvent{
		HookID:    result.HookID,
		SessionID: result.SessionID,
		Plugin:    result.Plugin,
		Hook:      result.Hook,
		Event:     event,
		Detail:    detail,
	})

	level := slog.LevelInfo
	if !result.Success {
		level = slog.LevelWarn
	}
	q.logger.Log(context.Background(), level, "hook finished",
		logging.String(logging.FieldHookID, result.HookID),
		logging.String(logging.FieldSessionID, result.SessionID),
		logging.String("status", string(result.Status)),
		logging.Int("exit_code", result.ExitCode),
		logging.Duration("duration", result.Duration))
}

func (q *Queue) recordAudit(job *Job, event, detail string) {
	q.appendAudit(sessions.AuditEvent{
		HookID:    job.ID,
		SessionID: job.Spec.SessionID,
		Plugin:    job.Spec.Plugin,
		Hook:      job.Spec.Hook,
		Event:     event,
		Detail:    detail,
	})
}

func (q *Queue) appendAudit(event sessions.AuditEvent) {
	if q.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.audit.AppendAudit(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		q.logger.Warn("failed to append audit event",
			logging.String(logging.FieldHookID, event.HookID),
			logging.Error(err))
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
