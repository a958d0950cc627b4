package pubsub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/TheBushidoCollective/han-sub006/internal/hooks"
)

// Event kinds carried by the hub.
const (
	KindHookResult     = "hook_result"
	KindSessionIndexed = "session_indexed"
	KindLeadership     = "leadership"
)

// DefaultCapacity is the ring size used when none is given.
const DefaultCapacity = 256

// ErrClosed is returned by blocking reads after the hub shuts down.
var ErrClosed = errors.New("pubsub: hub closed")

// Event is one entry in the hub's ring. Seq is assigned at publish time
// and strictly increases for the life of the hub.
type Event struct {
	Seq       uint64        `json:"seq"`
	Timestamp time.Time     `json:"timestamp"`
	Kind      string        `json:"kind"`
	SessionID string        `json:"sessionId,omitempty"`
	HookID    string        `json:"hookId,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Result    *hooks.Result `json:"result,omitempty"`
}

// Hub is a bounded, drop-oldest event ring with blocking readers.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	events   []Event
	capacity int
	nextSeq  uint64
	closed   bool
}

// NewHub constructs a hub holding at most capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &Hub{capacity: capacity, nextSeq: 1}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends an event to the ring, evicting the oldest entry when
// full, and wakes every blocked reader. Publishing never blocks.
func (h *Hub) Publish(event Event) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	event.Seq = h.nextSeq
	h.nextSeq++
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.events = append(h.events, event)
	if len(h.events) > h.capacity {
		h.events = h.events[len(h.events)-h.capacity:]
	}
	h.cond.Broadcast()
	return event.Seq
}

// HookResult publishes a hook's terminal result, satisfying the queue's
// result sink.
func (h *Hub) HookResult(result hooks.Result) {
	r := result
	h.Publish(Event{
		Kind:      KindHookResult,
		SessionID: result.SessionID,
		HookID:    result.HookID,
		Result:    &r,
	})
}

// Close wakes all blocked readers and rejects further publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.cond.Broadcast()
}

// EarliestSeq returns the sequence of the oldest buffered event, or the
// next sequence to be assigned when the ring is empty.
func (h *Hub) EarliestSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == 0 {
		return h.nextSeq
	}
	return h.events[0].Seq
}

// Fetch returns up to limit events with sequence greater than since. When
// none are buffered and wait is positive it blocks until an event arrives,
// the wait elapses, or ctx is cancelled. The returned cursor is the
// sequence to pass as since on the next call.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait time.Duration) ([]Event, uint64, error) {
	if limit <= 0 {
		limit = h.capacity
	}

	var deadline time.Time
	if wait > 0 {
		deadline = time.Now().Add(wait)
	}

	// The cond has no deadline of its own, so a helper wakes readers when
	// the context ends or the wait expires.
	wakeCtx, cancelWake := context.WithCancel(ctx)
	defer cancelWake()
	if wait > 0 {
		go func() {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-wakeCtx.Done():
			case <-timer.C:
			}
			h.mu.Lock()
			h.cond.Broadcast()
			h.mu.Unlock()
		}()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		if events := h.collectLocked(since, limit); len(events) > 0 {
			return events, events[len(events)-1].Seq, nil
		}
		if h.closed {
			return nil, since, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, since, err
		}
		if wait <= 0 || !time.Now().Before(deadline) {
			return nil, since, nil
		}
		h.cond.Wait()
	}
}

func (h *Hub) collectLocked(since uint64, limit int) []Event {
	var out []Event
	for _, event := range h.events {
		if event.Seq <= since {
			continue
		}
		out = append(out, event)
		if len(out) == limit {
			break
		}
	}
	return out
}

// AwaitHook blocks until a terminal result for hookID appears, scanning
// from the oldest buffered event so a result published moments before the
// call is still found. Hook ids recur across executions of the same work,
// so a non-empty runID restricts the match to that admission; without it
// a stale buffered result from an earlier execution would satisfy the
// wait. Returns nil when the wait elapses without a match.
func (h *Hub) AwaitHook(ctx context.Context, hookID, runID string, wait time.Duration) (*hooks.Result, error) {
	deadline := time.Now().Add(wait)
	since := uint64(0)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		events, cursor, err := h.Fetch(ctx, since, 0, remaining)
		if err != nil {
			return nil, err
		}
		for _, event := range events {
			if event.Kind != KindHookResult || event.HookID != hookID || event.Result == nil {
				continue
			}
			if runID != "" && event.Result.RunID != runID {
				continue
			}
			return event.Result, nil
		}
		if cursor == since {
			// Wait elapsed with nothing new.
			return nil, nil
		}
		since = cursor
	}
}
