package pubsub_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/TheBushidoCollective/han-sub006/internal/hooks"
	"github.com/TheBushidoCollective/han-sub006/internal/pubsub"
)

func TestPublishAndFetch(t *testing.T) {
	hub := pubsub.NewHub(8)
	defer hub.Close()

	hub.Publish(pubsub.Event{Kind: pubsub.KindSessionIndexed, SessionID: "s1"})
	hub.Publish(pubsub.Event{Kind: pubsub.KindSessionIndexed, SessionID: "s2"})

	events, cursor, err := hub.Fetch(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].SessionID != "s1" || events[1].SessionID != "s2" {
		t.Fatalf("events out of order: %+v", events)
	}
	if cursor != events[1].Seq {
		t.Fatalf("cursor = %d, want %d", cursor, events[1].Seq)
	}

	// Nothing past the cursor without waiting.
	events, _, err = hub.Fetch(context.Background(), cursor, 0, 0)
	if err != nil {
		t.Fatalf("Fetch past cursor: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func TestRingDropsOldestWhenFull(t *testing.T) {
	hub := pubsub.NewHub(3)
	defer hub.Close()

	for i := 0; i < 5; i++ {
		hub.Publish(pubsub.Event{Kind: pubsub.KindSessionIndexed, SessionID: fmt.Sprintf("s%d", i)})
	}

	events, _, err := hub.Fetch(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3 (capacity)", len(events))
	}
	if events[0].SessionID != "s2" {
		t.Fatalf("oldest surviving event = %s, want s2", events[0].SessionID)
	}
	if got := hub.EarliestSeq(); got != events[0].Seq {
		t.Fatalf("EarliestSeq = %d, want %d", got, events[0].Seq)
	}
}

func TestFetchBlocksUntilPublish(t *testing.T) {
	hub := pubsub.NewHub(8)
	defer hub.Close()

	done := make(chan []pubsub.Event, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 0, 5*time.Second)
		done <- events
	}()

	time.Sleep(50 * time.Millisecond)
	hub.Publish(pubsub.Event{Kind: pubsub.KindLeadership, Detail: "acquired"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Detail != "acquired" {
			t.Fatalf("events = %+v", events)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	hub := pubsub.NewHub(8)
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := hub.Fetch(ctx, 0, 0, time.Minute)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a context error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not observe cancellation")
	}
}

func TestAwaitHookFindsBufferedResult(t *testing.T) {
	hub := pubsub.NewHub(8)
	defer hub.Close()

	// The result lands before anyone waits: a late waiter must still
	// find it in the ring.
	hub.HookResult(hooks.Result{
		HookID:  "fmt:post-edit:deadbeef",
		Status:  hooks.StatusCompleted,
		Success: true,
	})

	result, err := hub.AwaitHook(context.Background(), "fmt:post-edit:deadbeef", "", time.Second)
	if err != nil {
		t.Fatalf("AwaitHook: %v", err)
	}
	if result == nil || !result.Success {
		t.Fatalf("result = %+v, want buffered success", result)
	}
}

func TestAwaitHookWaitsForLateResult(t *testing.T) {
	hub := pubsub.NewHub(8)
	defer hub.Close()

	type await struct {
		result *hooks.Result
		err    error
	}
	done := make(chan await, 1)
	go func() {
		result, err := hub.AwaitHook(context.Background(), "lint:post-edit:cafe0000", "", 5*time.Second)
		done <- await{result, err}
	}()

	time.Sleep(50 * time.Millisecond)
	// An unrelated event must not satisfy the wait.
	hub.Publish(pubsub.Event{Kind: pubsub.KindSessionIndexed, SessionID: "s1"})
	hub.HookResult(hooks.Result{HookID: "lint:post-edit:cafe0000", Status: hooks.StatusCompleted, Success: true})

	select {
	case got := <-done:
		if got.err != nil {
			t.Fatalf("AwaitHook: %v", got.err)
		}
		if got.result == nil || got.result.HookID != "lint:post-edit:cafe0000" {
			t.Fatalf("result = %+v", got.result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("AwaitHook did not observe the result")
	}
}

func TestAwaitHookIgnoresResultsFromOtherRuns(t *testing.T) {
	hub := pubsub.NewHub(8)
	defer hub.Close()

	// An earlier execution of the same hook id sits in the ring. A waiter
	// scoped to a newer run must not be satisfied by it.
	hub.HookResult(hooks.Result{
		HookID:  "fmt:post-edit:deadbeef",
		RunID:   "run-1",
		Status:  hooks.StatusCompleted,
		Success: true,
		Stdout:  "stale",
	})

	result, err := hub.AwaitHook(context.Background(), "fmt:post-edit:deadbeef", "run-2", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitHook: %v", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil: the ring must not replay an earlier run", result)
	}

	type await struct {
		result *hooks.Result
		err    error
	}
	done := make(chan await, 1)
	go func() {
		result, err := hub.AwaitHook(context.Background(), "fmt:post-edit:deadbeef", "run-2", 5*time.Second)
		done <- await{result, err}
	}()

	time.Sleep(50 * time.Millisecond)
	hub.HookResult(hooks.Result{
		HookID:  "fmt:post-edit:deadbeef",
		RunID:   "run-2",
		Status:  hooks.StatusCompleted,
		Success: true,
		Stdout:  "fresh",
	})

	select {
	case got := <-done:
		if got.err != nil {
			t.Fatalf("AwaitHook: %v", got.err)
		}
		if got.result == nil || got.result.Stdout != "fresh" {
			t.Fatalf("result = %+v, want the run-2 result", got.result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("AwaitHook did not observe the matching run")
	}
}

func TestAwaitHookTimesOutWithoutResult(t *testing.T) {
	hub := pubsub.NewHub(8)
	defer hub.Close()

	start := time.Now()
	result, err := hub.AwaitHook(context.Background(), "never:shows:00000000", "", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitHook: %v", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil on timeout", result)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("AwaitHook blocked far past its wait")
	}
}

func TestCloseUnblocksReaders(t *testing.T) {
	hub := pubsub.NewHub(8)

	done := make(chan error, 1)
	go func() {
		_, _, err := hub.Fetch(context.Background(), 0, 0, time.Minute)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	hub.Close()

	select {
	case err := <-done:
		if err != pubsub.ErrClosed {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not unblock on Close")
	}
}
