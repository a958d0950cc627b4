package ipc_test

import (
	"context"
	"testing"
	"time"

	"github.com/TheBushidoCollective/han-sub006/internal/hooks"
	"github.com/TheBushidoCollective/han-sub006/internal/ipc"
	"github.com/TheBushidoCollective/han-sub006/internal/lease"
	"github.com/TheBushidoCollective/han-sub006/internal/pubsub"
	"github.com/TheBushidoCollective/han-sub006/internal/testsupport"
)

func startServer(t *testing.T) (*ipc.Client, *pubsub.Hub) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := pubsub.NewHub(64)
	queue := hooks.NewQueue(2, hooks.ShellRunner{}, hub, store, nil)
	manager := lease.NewManager(cfg.LeasePath(), cfg.LeaseTTL(), nil,
		lease.WithAliveCheck(func(int) bool { return true }))
	if acquired, err := manager.TryAcquire(); err != nil || !acquired {
		t.Fatalf("lease acquire = (%v, %v)", acquired, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)
	t.Cleanup(func() {
		cancel()
		queue.Stop()
		hub.Close()
	})

	server := ipc.NewServer(ipc.Deps{
		Config:    cfg,
		Store:     store,
		Queue:     queue,
		Hub:       hub,
		Lease:     manager,
		StartedAt: time.Now(),
	})
	go func() { _ = server.Serve(ctx) }()

	var (
		client *ipc.Client
		err    error
	)
	deadline := time.Now().Add(5 * time.Second)
	for {
		client, err = ipc.DialTimeout(cfg.SocketPath(), time.Second)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Cleanup(func() { client.Close() })
	return client, hub
}

func TestPingReportsLeadership(t *testing.T) {
	client, _ := startServer(t)

	reply, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !reply.Leading {
		t.Fatal("server holds the lease but Ping reports not leading")
	}
	if reply.PID == 0 {
		t.Fatal("Ping missing pid")
	}
}

func TestEnqueueAndWaitResultRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	enqueued, err := client.Enqueue(ipc.EnqueueArgs{
		Plugin:    "fmt",
		Hook:      "post-edit",
		SessionID: "s1",
		Command:   "echo formatted",
		Files:     []string{"a.go"},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if enqueued.HookID == "" {
		t.Fatal("Enqueue returned no hook id")
	}
	if enqueued.RunID == "" {
		t.Fatal("Enqueue returned no run id")
	}

	reply, err := client.WaitResult(ipc.WaitResultArgs{
		HookID:         enqueued.HookID,
		RunID:          enqueued.RunID,
		TimeoutSeconds: 5,
	})
	if err != nil {
		t.Fatalf("WaitResult: %v", err)
	}
	if !reply.Found || reply.Result == nil {
		t.Fatal("result not delivered")
	}
	if !reply.Result.Success {
		t.Fatalf("result = %+v, want success", reply.Result)
	}

	audit, err := client.Audit(enqueued.HookID)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(audit.Events) < 3 {
		t.Fatalf("audit events = %d, want queued/started/completed", len(audit.Events))
	}
}

func TestWaitResultScopedToItsOwnExecution(t *testing.T) {
	client, _ := startServer(t)

	// First execution of the key finishes and its result stays buffered.
	first, err := client.Enqueue(ipc.EnqueueArgs{
		Plugin: "fmt", Hook: "post-edit", SessionID: "s1",
		Command: "echo first-run", Files: []string{"a.go"},
	})
	if err != nil {
		t.Fatalf("Enqueue first: %v", err)
	}
	reply, err := client.WaitResult(ipc.WaitResultArgs{
		HookID: first.HookID, RunID: first.RunID, TimeoutSeconds: 5,
	})
	if err != nil || !reply.Found {
		t.Fatalf("WaitResult first = (%+v, %v)", reply, err)
	}

	// Re-running the same (plugin, hook, files) reuses the hook id. The
	// wait must deliver the new execution's output, not the buffered one.
	second, err := client.Enqueue(ipc.EnqueueArgs{
		Plugin: "fmt", Hook: "post-edit", SessionID: "s1",
		Command: "echo second-run", Files: []string{"a.go"},
	})
	if err != nil {
		t.Fatalf("Enqueue second: %v", err)
	}
	if second.HookID != first.HookID {
		t.Fatalf("hook id changed across executions: %s vs %s", second.HookID, first.HookID)
	}
	reply, err = client.WaitResult(ipc.WaitResultArgs{
		HookID: second.HookID, RunID: second.RunID, TimeoutSeconds: 5,
	})
	if err != nil {
		t.Fatalf("WaitResult second: %v", err)
	}
	if !reply.Found || reply.Result == nil {
		t.Fatal("second execution's result not delivered")
	}
	if got := reply.Result.Stdout; got != "second-run\n" {
		t.Fatalf("stdout = %q, want the second execution's output", got)
	}
}

func TestStatusAndListsOverSocket(t *testing.T) {
	client, _ := startServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Leading {
		t.Fatal("status reports not leading")
	}
	if status.MaxConcurrent != 3 {
		t.Fatalf("max concurrent = %d, want configured 3", status.MaxConcurrent)
	}

	sessions, err := client.SessionList()
	if err != nil {
		t.Fatalf("SessionList: %v", err)
	}
	if len(sessions.Sessions) != 0 {
		t.Fatalf("sessions = %d, want 0 in a fresh store", len(sessions.Sessions))
	}

	if _, err := client.Enqueue(ipc.EnqueueArgs{
		Plugin: "lint", Hook: "post-edit", Command: "true",
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	jobs, err := client.QueueList()
	if err != nil {
		t.Fatalf("QueueList: %v", err)
	}
	if len(jobs.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs.Jobs))
	}
}

func TestClearSessionOverSocket(t *testing.T) {
	client, _ := startServer(t)

	if _, err := client.Enqueue(ipc.EnqueueArgs{
		Plugin: "slow", Hook: "post-edit", SessionID: "s9",
		Command: "sleep 30",
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// Give the worker a moment to pick the job up.
	time.Sleep(100 * time.Millisecond)

	reply, err := client.ClearSession("s9")
	if err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if reply.Cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", reply.Cancelled)
	}
}

func TestEventsExposeHookResults(t *testing.T) {
	client, hub := startServer(t)

	hub.Publish(pubsub.Event{Kind: pubsub.KindSessionIndexed, SessionID: "s1"})

	reply, err := client.Events(ipc.EventsArgs{Since: 0})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(reply.Events) != 1 || reply.Events[0].SessionID != "s1" {
		t.Fatalf("events = %+v", reply.Events)
	}
	if reply.Cursor == 0 {
		t.Fatal("cursor not advanced")
	}
}

func TestEnqueueValidationError(t *testing.T) {
	client, _ := startServer(t)

	if _, err := client.Enqueue(ipc.EnqueueArgs{Plugin: "fmt"}); err == nil {
		t.Fatal("expected validation error over the wire")
	}
}
