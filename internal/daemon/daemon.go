package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TheBushidoCollective/han-sub006/internal/config"
	"github.com/TheBushidoCollective/han-sub006/internal/hooks"
	"github.com/TheBushidoCollective/han-sub006/internal/index"
	"github.com/TheBushidoCollective/han-sub006/internal/ipc"
	"github.com/TheBushidoCollective/han-sub006/internal/lease"
	"github.com/TheBushidoCollective/han-sub006/internal/logging"
	"github.com/TheBushidoCollective/han-sub006/internal/pubsub"
	"github.com/TheBushidoCollective/han-sub006/internal/sessions"
	"github.com/TheBushidoCollective/han-sub006/internal/watcher"
)

// Daemon owns the coordinator components and drives leadership.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	base      *slog.Logger
	store     *sessions.Store
	hub       *pubsub.Hub
	queue     *hooks.Queue
	lease     *lease.Manager
	indexer   *index.Indexer
	startedAt time.Time
}

// Option customizes daemon construction.
type Option func(*options)

type options struct {
	leaseOpts []lease.Option
}

// WithLeaseOptions forwards options to the lease manager; tests use this
// to control holder identity and process-liveness checks.
func WithLeaseOptions(opts ...lease.Option) Option {
	return func(o *options) { o.leaseOpts = append(o.leaseOpts, opts...) }
}

// New opens the store and wires the coordinator components together.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := sessions.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	hub := pubsub.NewHub(pubsub.DefaultCapacity)
	queue := hooks.NewQueue(cfg.Hooks.MaxConcurrent, hooks.ShellRunner{}, hub, store, logger)
	leaseManager := lease.NewManager(cfg.LeasePath(), cfg.LeaseTTL(), logger, o.leaseOpts...)
	indexer := index.NewIndexer(store, cfg.Paths.WatchRoot, logger)

	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		base:      logger,
		store:     store,
		hub:       hub,
		queue:     queue,
		lease:     leaseManager,
		indexer:   indexer,
		startedAt: time.Now(),
	}, nil
}

// Close releases resources once Run has returned.
func (d *Daemon) Close() error {
	d.hub.Close()
	return d.store.Close()
}

// Run acquires leadership when possible and performs leader duties until
// ctx is cancelled. A process that cannot acquire the lease polls for
// failover instead of exiting, so a standby takes over when the leader
// dies.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("coordinator starting",
		logging.String(logging.FieldPath, d.cfg.Paths.WatchRoot),
		logging.Duration("lease_ttl", d.cfg.LeaseTTL()))

	for {
		acquired, err := d.lease.TryAcquire()
		if err != nil {
			d.logger.Warn("lease acquisition failed", logging.Error(err))
		}
		if acquired {
			if err := d.lead(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			// Leadership lost to a heartbeat failure: rejoin the
			// acquisition poll.
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.cfg.FailoverPoll()):
		}
	}
}

// lead performs leader duties until shutdown or heartbeat failure. A nil
// return means leadership was lost and the caller should poll to
// reacquire; context.Canceled means clean shutdown.
func (d *Daemon) lead(ctx context.Context) error {
	leaderCtx, stopLeading := context.WithCancel(ctx)
	defer stopLeading()

	d.logger.Info("leadership acquired")
	d.hub.Publish(pubsub.Event{Kind: pubsub.KindLeadership, Detail: "acquired"})

	d.queue.Start(leaderCtx)
	defer d.queue.Stop()

	server := ipc.NewServer(ipc.Deps{
		Config:    d.cfg,
		Store:     d.store,
		Queue:     d.queue,
		Hub:       d.hub,
		Lease:     d.lease,
		StartedAt: d.startedAt,
		Logger:    d.base,
	})
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Serve(leaderCtx) }()

	// Catch up on everything written while nobody was leading before
	// trusting filesystem events.
	if _, err := d.indexer.ScanRoot(leaderCtx); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("initial session scan failed", logging.Error(err))
	}

	go d.watch(leaderCtx)

	ticker := time.NewTicker(d.cfg.HeartbeatInterval())
	defer ticker.Stop()

	lastRenewed := time.Now()
	for {
		select {
		case <-ctx.Done():
			stopLeading()
			if _, err := d.lease.Release(); err != nil {
				d.logger.Warn("lease release failed", logging.Error(err))
			}
			d.logger.Info("coordinator stopped")
			return context.Canceled
		case err := <-serverErr:
			if err != nil && leaderCtx.Err() == nil {
				stopLeading()
				if _, releaseErr := d.lease.Release(); releaseErr != nil {
					d.logger.Warn("lease release failed", logging.Error(releaseErr))
				}
				return fmt.Errorf("ipc server failed: %w", err)
			}
		case <-ticker.C:
			renewed, err := d.lease.Heartbeat()
			if err != nil {
				d.logger.Warn("heartbeat failed", logging.Error(err))
				if time.Since(lastRenewed) < d.cfg.LeaseTTL() {
					continue
				}
				// The lease has not been renewed for a full TTL, so
				// every other process now sees it as stale and may take
				// it over. This leader must be stopped by then.
				renewed = false
			}
			if !renewed {
				// Fail-stop all leader duties before another process
				// starts acting on our state.
				d.logger.Warn("lease lost, stepping down")
				d.hub.Publish(pubsub.Event{Kind: pubsub.KindLeadership, Detail: "lost"})
				return nil
			}
			lastRenewed = time.Now()
		}
	}
}

// watch runs the filesystem watcher for the duration of a leadership
// term, restarting it after transient failures.
func (d *Daemon) watch(ctx context.Context) {
	onFile := func(ctx context.Context, path string) {
		result, err := d.indexer.IndexFile(ctx, path)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				d.logger.Warn("indexing failed",
					logging.String(logging.FieldPath, path),
					logging.Error(err))
			}
			return
		}
		d.publishIndexResult(result)
	}
	onReconcile := func(ctx context.Context) {
		results, err := d.indexer.ScanRoot(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("reconcile scan failed", logging.Error(err))
		}
		for _, result := range results {
			d.publishIndexResult(result)
		}
	}

	for {
		w := watcher.New(d.cfg.Paths.WatchRoot, d.cfg.ReconcileInterval(), d.base, onFile, onReconcile)
		err := w.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		d.logger.Warn("watcher exited, restarting", logging.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (d *Daemon) publishIndexResult(result *index.Result) {
	if result == nil || result.MessagesIndexed == 0 {
		return
	}
	d.hub.Publish(pubsub.Event{
		Kind:      pubsub.KindSessionIndexed,
		SessionID: result.SessionID,
		Detail:    fmt.Sprintf("indexed %d messages", result.MessagesIndexed),
	})
}
