package lease_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TheBushidoCollective/han-sub006/internal/lease"
)

func leasePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "coordinator.lock")
}

func TestAcquireAndRelease(t *testing.T) {
	path := leasePath(t)
	manager := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(100, "host-a"),
		lease.WithAliveCheck(func(int) bool { return true }))

	acquired, err := manager.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !acquired {
		t.Fatal("fresh lease not acquired")
	}

	status, err := manager.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Leader || !status.Held {
		t.Fatalf("status = %+v, want leader and held", status)
	}
	if status.Record.PID != 100 {
		t.Fatalf("record pid = %d, want 100", status.Record.PID)
	}

	released, err := manager.Release()
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !released {
		t.Fatal("holder failed to release")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("lease record still present after release")
	}
}

func TestAcquireIsReentrantForHolder(t *testing.T) {
	manager := lease.NewManager(leasePath(t), 30*time.Second, nil,
		lease.WithIdentity(100, "host-a"))

	for i := 0; i < 2; i++ {
		acquired, err := manager.TryAcquire()
		if err != nil {
			t.Fatalf("TryAcquire #%d: %v", i+1, err)
		}
		if !acquired {
			t.Fatalf("TryAcquire #%d returned false for the holder", i+1)
		}
	}
}

func TestSecondProcessCannotAcquireLiveLease(t *testing.T) {
	path := leasePath(t)
	alive := func(int) bool { return true }

	holder := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(100, "host-a"), lease.WithAliveCheck(alive))
	if acquired, err := holder.TryAcquire(); err != nil || !acquired {
		t.Fatalf("holder acquire = (%v, %v)", acquired, err)
	}

	rival := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(200, "host-a"), lease.WithAliveCheck(alive))
	acquired, err := rival.TryAcquire()
	if err != nil {
		t.Fatalf("rival TryAcquire: %v", err)
	}
	if acquired {
		t.Fatal("rival acquired a live lease")
	}
}

func TestTakeoverOfDeadHolder(t *testing.T) {
	path := leasePath(t)

	holder := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(100, "host-a"), lease.WithAliveCheck(func(int) bool { return true }))
	if acquired, err := holder.TryAcquire(); err != nil || !acquired {
		t.Fatalf("holder acquire = (%v, %v)", acquired, err)
	}

	// The rival observes pid 100 as dead.
	rival := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(200, "host-a"),
		lease.WithAliveCheck(func(pid int) bool { return pid == 200 }))
	acquired, err := rival.TryAcquire()
	if err != nil {
		t.Fatalf("rival TryAcquire: %v", err)
	}
	if !acquired {
		t.Fatal("rival failed to take over a dead holder's lease")
	}
}

func TestTakeoverOfLapsedHeartbeat(t *testing.T) {
	path := leasePath(t)
	alive := func(int) bool { return true }

	base := time.Now()
	holder := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(100, "host-a"), lease.WithAliveCheck(alive),
		lease.WithClock(func() time.Time { return base }))
	if acquired, err := holder.TryAcquire(); err != nil || !acquired {
		t.Fatalf("holder acquire = (%v, %v)", acquired, err)
	}

	// The rival's clock is past the TTL: the holder is alive but silent.
	rival := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(200, "host-a"), lease.WithAliveCheck(alive),
		lease.WithClock(func() time.Time { return base.Add(31 * time.Second) }))
	acquired, err := rival.TryAcquire()
	if err != nil {
		t.Fatalf("rival TryAcquire: %v", err)
	}
	if !acquired {
		t.Fatal("rival failed to take over a lapsed lease")
	}
}

func TestHeartbeatFailsAfterTakeover(t *testing.T) {
	path := leasePath(t)

	holder := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(100, "host-a"), lease.WithAliveCheck(func(int) bool { return true }))
	if acquired, err := holder.TryAcquire(); err != nil || !acquired {
		t.Fatalf("holder acquire = (%v, %v)", acquired, err)
	}

	rival := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(200, "host-a"),
		lease.WithAliveCheck(func(pid int) bool { return pid == 200 }))
	if acquired, err := rival.TryAcquire(); err != nil || !acquired {
		t.Fatalf("rival takeover = (%v, %v)", acquired, err)
	}

	// The old holder's next heartbeat must report loss, not silently
	// renew over the new holder's record.
	renewed, err := holder.Heartbeat()
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if renewed {
		t.Fatal("deposed holder renewed the lease")
	}
}

func TestHeartbeatWithoutLease(t *testing.T) {
	manager := lease.NewManager(leasePath(t), 30*time.Second, nil,
		lease.WithIdentity(100, "host-a"))

	renewed, err := manager.Heartbeat()
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if renewed {
		t.Fatal("heartbeat succeeded with no lease on disk")
	}
}

func TestCorruptRecordIsReplaced(t *testing.T) {
	path := leasePath(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}

	manager := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(100, "host-a"))
	acquired, err := manager.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !acquired {
		t.Fatal("corrupt record blocked acquisition")
	}
}

func TestReleaseByNonHolderIsNoop(t *testing.T) {
	path := leasePath(t)
	alive := func(int) bool { return true }

	holder := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(100, "host-a"), lease.WithAliveCheck(alive))
	if acquired, err := holder.TryAcquire(); err != nil || !acquired {
		t.Fatalf("holder acquire = (%v, %v)", acquired, err)
	}

	rival := lease.NewManager(path, 30*time.Second, nil,
		lease.WithIdentity(200, "host-a"), lease.WithAliveCheck(alive))
	released, err := rival.Release()
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released {
		t.Fatal("non-holder release reported success")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("non-holder release removed the record")
	}
}
