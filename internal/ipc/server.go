package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"github.com/TheBushidoCollective/han-sub006/internal/config"
	"github.com/TheBushidoCollective/han-sub006/internal/hooks"
	"github.com/TheBushidoCollective/han-sub006/internal/lease"
	"github.com/TheBushidoCollective/han-sub006/internal/logging"
	"github.com/TheBushidoCollective/han-sub006/internal/pubsub"
	"github.com/TheBushidoCollective/han-sub006/internal/sessions"
)

// Deps are the coordinator components the RPC surface fronts.
type Deps struct {
	Config    *config.Config
	Store     *sessions.Store
	Queue     *hooks.Queue
	Hub       *pubsub.Hub
	Lease     *lease.Manager
	StartedAt time.Time
	Logger    *slog.Logger
}

// Service implements the "Han" RPC namespace.
type Service struct {
	deps   Deps
	logger *slog.Logger
}

// Server accepts unix socket connections and dispatches RPC calls.
type Server struct {
	path     string
	service  *Service
	logger   *slog.Logger
	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
}

// NewServer builds a server bound to the configured socket path.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")
	return &Server{
		path:    deps.Config.SocketPath(),
		service: &Service{deps: deps, logger: logger},
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Serve listens on the unix socket until ctx is cancelled. A stale socket
// file from a previous run is removed before binding.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("restrict socket permissions: %w", err)
	}
	s.listener = listener

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, s.service); err != nil {
		listener.Close()
		return fmt.Errorf("register rpc service: %w", err)
	}

	go func() {
		<-ctx.Done()
		listener.Close()
		s.closeConns()
	}()

	s.logger.Info("ipc listening", logging.String(logging.FieldPath, s.path))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.cleanup()
				return nil
			}
			return fmt.Errorf("accept ipc connection: %w", err)
		}
		s.track(conn)
		go func() {
			defer s.untrack(conn)
			rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
		}()
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

func (s *Server) cleanup() {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove socket", logging.Error(err))
	}
}

// Ping answers immediately so clients can probe liveness cheaply.
func (s *Service) Ping(_ PingArgs, reply *PingReply) error {
	reply.PID = os.Getpid()
	if status, err := s.deps.Lease.Status(); err == nil {
		reply.Leading = status.Leader
	}
	return nil
}

// Status assembles the daemon's full self-description.
func (s *Service) Status(_ StatusArgs, reply *StatusReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply.PID = os.Getpid()
	reply.Hostname, _ = os.Hostname()
	reply.StartedAt = s.deps.StartedAt
	reply.WatchRoot = s.deps.Config.Paths.WatchRoot
	reply.SocketPath = s.deps.Config.SocketPath()
	reply.MaxConcurrent = s.deps.Config.Hooks.MaxConcurrent

	if status, err := s.deps.Lease.Status(); err == nil {
		reply.Leading = status.Leader
		if status.Record != nil {
			reply.HeartbeatAt = status.Record.HeartbeatAt
		}
	}

	count, err := s.deps.Store.CountSessions(ctx)
	if err != nil {
		return err
	}
	reply.SessionCount = count

	reply.QueueCounts = make(map[string]int)
	for status, n := range s.deps.Queue.Counts() {
		reply.QueueCounts[string(status)] = n
	}
	return nil
}

// Enqueue admits a hook job to the queue.
func (s *Service) Enqueue(args EnqueueArgs, reply *EnqueueReply) error {
	spec := hooks.Spec{
		Plugin:    args.Plugin,
		Hook:      args.Hook,
		SessionID: args.SessionID,
		Command:   args.Command,
		Files:     args.Files,
		Timeout:   time.Duration(args.TimeoutSeconds) * time.Second,
	}
	snapshot, err := s.deps.Queue.Enqueue(context.Background(), spec)
	if err != nil {
		return err
	}
	reply.HookID = snapshot.ID
	reply.RunID = snapshot.RunID
	reply.Status = string(snapshot.Status)
	return nil
}

// ClearSession cancels every live hook job of a session.
func (s *Service) ClearSession(args ClearSessionArgs, reply *ClearSessionReply) error {
	if args.SessionID == "" {
		return errors.New("session id is required")
	}
	reply.Cancelled = s.deps.Queue.ClearSession(context.Background(), args.SessionID)
	return nil
}

// WaitResult long-polls for a hook's terminal result.
func (s *Service) WaitResult(args WaitResultArgs, reply *WaitResultReply) error {
	if args.HookID == "" {
		return errors.New("hook id is required")
	}
	wait := s.deps.Config.WaitTimeout()
	if args.TimeoutSeconds > 0 {
		wait = time.Duration(args.TimeoutSeconds) * time.Second
	}
	result, err := s.deps.Hub.AwaitHook(context.Background(), args.HookID, args.RunID, wait)
	if err != nil && !errors.Is(err, pubsub.ErrClosed) {
		return err
	}
	reply.Found = result != nil
	reply.Result = result
	return nil
}

// SessionList returns every indexed session.
func (s *Service) SessionList(_ SessionListArgs, reply *SessionListReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	list, err := s.deps.Store.ListSessions(ctx)
	if err != nil {
		return err
	}
	reply.Sessions = make([]SessionInfo, 0, len(list))
	for _, session := range list {
		reply.Sessions = append(reply.Sessions, SessionInfo{
			ID:             session.ID,
			ProjectSlug:    session.ProjectSlug,
			ProjectPath:    session.ProjectPath,
			TranscriptPath: session.TranscriptPath,
			StartedAt:      session.StartedAt,
			LastActivityAt: session.LastActivityAt,
			MessageCount:   session.MessageCount,
		})
	}
	return nil
}

// QueueList returns every tracked hook job.
func (s *Service) QueueList(_ QueueListArgs, reply *QueueListReply) error {
	jobs := s.deps.Queue.List()
	reply.Jobs = make([]JobInfo, 0, len(jobs))
	for _, job := range jobs {
		reply.Jobs = append(reply.Jobs, JobInfo{
			HookID:     job.ID,
			Plugin:     job.Plugin,
			Hook:       job.Hook,
			SessionID:  job.SessionID,
			Files:      job.Files,
			Status:     string(job.Status),
			EnqueuedAt: job.EnqueuedAt,
			StartedAt:  job.StartedAt,
			FinishedAt: job.FinishedAt,
		})
	}
	return nil
}

// Audit returns the recorded lifecycle transitions of one hook id.
func (s *Service) Audit(args AuditArgs, reply *AuditReply) error {
	if args.HookID == "" {
		return errors.New("hook id is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := s.deps.Store.AuditTrail(ctx, args.HookID)
	if err != nil {
		return err
	}
	reply.Events = make([]AuditEventInfo, 0, len(events))
	for _, event := range events {
		reply.Events = append(reply.Events, AuditEventInfo{
			HookID:    event.HookID,
			SessionID: event.SessionID,
			Event:     event.Event,
			Detail:    event.Detail,
			CreatedAt: event.CreatedAt,
		})
	}
	return nil
}

// Events polls the hub for entries past the client's cursor.
func (s *Service) Events(args EventsArgs, reply *EventsReply) error {
	wait := time.Duration(args.WaitSeconds) * time.Second
	events, cursor, err := s.deps.Hub.Fetch(context.Background(), args.Since, args.Limit, wait)
	if err != nil && !errors.Is(err, pubsub.ErrClosed) {
		return err
	}
	reply.Events = events
	reply.Cursor = cursor
	return nil
}
