// Package client dispatches hook work to the coordinator, degrading to
// local execution when no daemon is reachable.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TheBushidoCollective/han-sub006/internal/config"
	"github.com/TheBushidoCollective/han-sub006/internal/hooks"
	"github.com/TheBushidoCollective/han-sub006/internal/ipc"
	"github.com/TheBushidoCollective/han-sub006/internal/logging"
)

// Dispatcher submits hooks for execution. Every dispatch first probes the
// coordinator socket with a short timeout; a dead or absent daemon never
// blocks a hook, it just runs synchronously in this process instead.
type Dispatcher struct {
	cfg    *config.Config
	runner hooks.Runner
	logger *slog.Logger
}

// NewDispatcher builds a dispatcher against the configured socket.
func NewDispatcher(cfg *config.Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		cfg:    cfg,
		runner: hooks.ShellRunner{},
		logger: logging.NewComponentLogger(logger, "client"),
	}
}

// Probe reports whether a live coordinator answers on the socket.
func (d *Dispatcher) Probe() (*ipc.Client, bool) {
	conn, err := ipc.DialTimeout(d.cfg.SocketPath(), d.cfg.ProbeTimeout())
	if err != nil {
		return nil, false
	}
	if _, err := conn.Ping(); err != nil {
		conn.Close()
		return nil, false
	}
	return conn, true
}

// Dispatch runs a hook and blocks for its terminal result. With a live
// coordinator the job goes through the shared queue and the call waits up
// to wait (the configured default when zero) for the result. Without one,
// or when the coordinator fails to deliver a result in time, the hook
// runs locally and synchronously so the caller always gets an answer.
// The boolean reports whether the result came from the coordinator.
func (d *Dispatcher) Dispatch(ctx context.Context, spec hooks.Spec, wait time.Duration) (hooks.Result, bool, error) {
	if err := spec.Validate(); err != nil {
		return hooks.Result{}, false, err
	}
	if wait <= 0 {
		wait = d.cfg.WaitTimeout()
	}

	conn, ok := d.Probe()
	if !ok {
		d.logger.Info("no coordinator reachable, running hook locally",
			logging.String(logging.FieldSessionID, spec.SessionID))
		result, err := hooks.RunLocal(ctx, d.runner, spec, d.logger)
		return result, false, err
	}
	defer conn.Close()

	enqueued, err := conn.Enqueue(ipc.EnqueueArgs{
		Plugin:         spec.Plugin,
		Hook:           spec.Hook,
		SessionID:      spec.SessionID,
		Command:        spec.Command,
		Files:          spec.Files,
		TimeoutSeconds: int(spec.Timeout / time.Second),
	})
	if err != nil {
		d.logger.Warn("enqueue failed, running hook locally", logging.Error(err))
		result, localErr := hooks.RunLocal(ctx, d.runner, spec, d.logger)
		return result, false, localErr
	}

	reply, err := conn.WaitResult(ipc.WaitResultArgs{
		HookID:         enqueued.HookID,
		RunID:          enqueued.RunID,
		TimeoutSeconds: int(wait / time.Second),
	})
	if err == nil && reply.Found && reply.Result != nil {
		return *reply.Result, true, nil
	}

	// No result in time, or the daemon went away mid-wait. The wait is
	// advisory: run the hook locally so the caller always gets an answer.
	if err != nil {
		d.logger.Warn("wait for hook result failed, running locally",
			logging.String(logging.FieldHookID, enqueued.HookID),
			logging.Error(err))
	} else {
		d.logger.Warn("hook result did not arrive in time, running locally",
			logging.String(logging.FieldHookID, enqueued.HookID),
			logging.Duration("waited", wait))
	}
	result, localErr := hooks.RunLocal(ctx, d.runner, spec, d.logger)
	return result, false, localErr
}

// ClearSession cancels a session's live hooks on the coordinator. Without
// a reachable coordinator there is nothing queued anywhere, so the call
// reports zero cancellations.
func (d *Dispatcher) ClearSession(sessionID string) (int, error) {
	conn, ok := d.Probe()
	if !ok {
		return 0, nil
	}
	defer conn.Close()

	reply, err := conn.ClearSession(sessionID)
	if err != nil {
		return 0, fmt.Errorf("clear session: %w", err)
	}
	return reply.Cancelled, nil
}
