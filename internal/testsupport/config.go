// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/TheBushidoCollective/han-sub006/internal/config"
	"github.com/TheBushidoCollective/han-sub006/internal/sessions"
)

// NewConfig returns a config rooted in a per-test temp directory with
// short intervals suitable for tests.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WatchRoot = filepath.Join(base, "projects")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Coordinator.LeaseTTL = 2
	cfg.Coordinator.HeartbeatInterval = 1
	cfg.Coordinator.FailoverPoll = 1
	cfg.Coordinator.ReconcileInterval = 1
	cfg.Hooks.WaitTimeout = 5
	cfg.Hooks.ProbeTimeout = 1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("create test directories: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a session store for the test and closes it on
// cleanup.
func MustOpenStore(t *testing.T, cfg *config.Config) *sessions.Store {
	t.Helper()

	store, err := sessions.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}
