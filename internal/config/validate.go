package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants after normalization.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.WatchRoot) == "" {
		problems = append(problems, "paths.watch_root must be set")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}

	if c.Coordinator.LeaseTTL <= 0 {
		problems = append(problems, "coordinator.lease_ttl must be positive")
	}
	if c.Coordinator.HeartbeatInterval <= 0 {
		problems = append(problems, "coordinator.heartbeat_interval must be positive")
	}
	if c.Coordinator.LeaseTTL > 0 && c.Coordinator.HeartbeatInterval > 0 &&
		c.Coordinator.HeartbeatInterval >= c.Coordinator.LeaseTTL {
		problems = append(problems, fmt.Sprintf(
			"coordinator.heartbeat_interval (%d) must be shorter than coordinator.lease_ttl (%d)",
			c.Coordinator.HeartbeatInterval, c.Coordinator.LeaseTTL))
	}
	if c.Coordinator.FailoverPoll <= 0 {
		problems = append(problems, "coordinator.failover_poll must be positive")
	}
	if c.Coordinator.ReconcileInterval <= 0 {
		problems = append(problems, "coordinator.reconcile_interval must be positive")
	}

	if c.Hooks.MaxConcurrent <= 0 {
		problems = append(problems, "hooks.max_concurrent must be positive")
	}
	if c.Hooks.WaitTimeout <= 0 {
		problems = append(problems, "hooks.wait_timeout must be positive")
	}
	if c.Hooks.ProbeTimeout <= 0 {
		problems = append(problems, "hooks.probe_timeout must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of console, json", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
