package lease

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/TheBushidoCollective/han-sub006/internal/logging"
)

// Record is the on-disk lease state shared by all cooperating processes.
type Record struct {
	PID         int       `json:"pid"`
	Hostname    string    `json:"hostname,omitempty"`
	AcquiredAt  time.Time `json:"acquired_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// Status reports lease state as observed by one process.
type Status struct {
	// Leader is true when this process holds the lease.
	Leader bool
	// Held is true when any live process holds an unexpired lease.
	Held bool
	// Record is the current lease record, nil when no valid lease exists.
	Record *Record
}

// Manager acquires, renews, and releases the coordinator lease.
type Manager struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger
	flk    *flock.Flock

	pid      int
	hostname string
	now      func() time.Time
	alive    func(pid int) bool
}

// Option customizes Manager construction; used by tests to control time
// and process-liveness checks.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithAliveCheck overrides the process-liveness probe.
func WithAliveCheck(alive func(pid int) bool) Option {
	return func(m *Manager) { m.alive = alive }
}

// WithIdentity overrides the holder identity recorded in the lease.
func WithIdentity(pid int, hostname string) Option {
	return func(m *Manager) {
		m.pid = pid
		m.hostname = hostname
	}
}

// NewManager constructs a lease manager for the record at path.
func NewManager(path string, ttl time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	hostname, _ := os.Hostname()
	m := &Manager{
		path:     path,
		ttl:      ttl,
		logger:   logging.NewComponentLogger(logger, "lease"),
		flk:      flock.New(path + ".flock"),
		pid:      os.Getpid(),
		hostname: hostname,
		now:      time.Now,
		alive:    processAlive,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the lease record location.
func (m *Manager) Path() string {
	return m.path
}

// TryAcquire attempts to take the lease. It succeeds when no unexpired
// lease exists, when the existing lease is stale (dead holder or lapsed
// heartbeat), or when this process already holds it. The read-check-write
// runs under the flock so two processes cannot both observe "free" and
// both write.
func (m *Manager) TryAcquire() (bool, error) {
	unlock, err := m.interlock()
	if err != nil {
		return false, err
	}
	defer unlock()

	record, err := m.readRecord()
	if err != nil {
		return false, err
	}
	if record != nil {
		if record.PID == m.pid {
			return true, m.writeRecord(&Record{
				PID:         m.pid,
				Hostname:    m.hostname,
				AcquiredAt:  record.AcquiredAt,
				HeartbeatAt: m.now(),
			})
		}
		if !m.stale(record) {
			return false, nil
		}
		m.logger.Info("taking over stale lease",
			logging.Int("holder_pid", record.PID),
			logging.Duration("heartbeat_age", m.now().Sub(record.HeartbeatAt)),
			logging.String(logging.FieldEventType, "lease_takeover"))
	}

	now := m.now()
	if err := m.writeRecord(&Record{
		PID:         m.pid,
		Hostname:    m.hostname,
		AcquiredAt:  now,
		HeartbeatAt: now,
	}); err != nil {
		return false, err
	}
	m.logger.Info("lease acquired",
		logging.Int("pid", m.pid),
		logging.String(logging.FieldEventType, "lease_acquired"))
	return true, nil
}

// Heartbeat renews the lease. It returns false, without error, when this
// process no longer holds the lease; the caller must treat that as loss of
// leadership and stop all side effects immediately.
func (m *Manager) Heartbeat() (bool, error) {
	unlock, err := m.interlock()
	if err != nil {
		return false, err
	}
	defer unlock()

	record, err := m.readRecord()
	if err != nil {
		return false, err
	}
	if record == nil || record.PID != m.pid {
		return false, nil
	}
	record.HeartbeatAt = m.now()
	if err := m.writeRecord(record); err != nil {
		return false, err
	}
	return true, nil
}

// Release voluntarily relinquishes the lease. It returns false when this
// process did not hold it.
func (m *Manager) Release() (bool, error) {
	unlock, err := m.interlock()
	if err != nil {
		return false, err
	}
	defer unlock()

	record, err := m.readRecord()
	if err != nil {
		return false, err
	}
	if record == nil || record.PID != m.pid {
		return false, nil
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("remove lease record: %w", err)
	}
	m.logger.Info("lease released",
		logging.Int("pid", m.pid),
		logging.String(logging.FieldEventType, "lease_released"))
	return true, nil
}

// Status reports the current lease state without mutating it.
func (m *Manager) Status() (Status, error) {
	record, err := m.readRecord()
	if err != nil {
		return Status{}, err
	}
	if record == nil || m.stale(record) {
		return Status{}, nil
	}
	return Status{
		Leader: record.PID == m.pid,
		Held:   true,
		Record: record,
	}, nil
}

func (m *Manager) stale(record *Record) bool {
	if !m.alive(record.PID) {
		return true
	}
	return m.now().Sub(record.HeartbeatAt) > m.ttl
}

func (m *Manager) interlock() (func(), error) {
	if dir := filepath.Dir(m.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure lease directory: %w", err)
		}
	}
	if err := m.flk.Lock(); err != nil {
		return nil, fmt.Errorf("acquire lease interlock: %w", err)
	}
	return func() {
		if err := m.flk.Unlock(); err != nil {
			m.logger.Warn("failed to release lease interlock", logging.Error(err))
		}
	}, nil
}

func (m *Manager) readRecord() (*Record, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lease record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		// A corrupted record is treated as absent; the next writer replaces it.
		m.logger.Warn("discarding unreadable lease record",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lease_record_corrupt"))
		return nil, nil
	}
	return &record, nil
}

func (m *Manager) writeRecord(record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal lease record: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write lease record: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("publish lease record: %w", err)
	}
	return nil
}
