package config

const (
	defaultWatchRoot = "~/.claude/projects"
	defaultDataDir   = "~/.local/share/han"
	defaultLogDir    = "~/.local/share/han/logs"

	// Lease timing mirrors the behavior clients already expect: a holder
	// that misses three heartbeats is considered gone.
	defaultLeaseTTL          = 30
	defaultHeartbeatInterval = 10
	defaultFailoverPoll      = 10
	defaultReconcileInterval = 60

	defaultMaxConcurrent = 3
	defaultWaitTimeout   = 300
	defaultProbeTimeout  = 2

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchRoot: defaultWatchRoot,
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
		},
		Coordinator: Coordinator{
			LeaseTTL:          defaultLeaseTTL,
			HeartbeatInterval: defaultHeartbeatInterval,
			FailoverPoll:      defaultFailoverPoll,
			ReconcileInterval: defaultReconcileInterval,
		},
		Hooks: Hooks{
			MaxConcurrent: defaultMaxConcurrent,
			WaitTimeout:   defaultWaitTimeout,
			ProbeTimeout:  defaultProbeTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
