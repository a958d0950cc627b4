package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// DefaultDialTimeout bounds how long a probe waits on a dead socket.
const DefaultDialTimeout = 2 * time.Second

// Client is a connection to a running coordinator.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the coordinator socket with the default timeout.
func Dial(socketPath string) (*Client, error) {
	return DialTimeout(socketPath, DefaultDialTimeout)
}

// DialTimeout connects to the coordinator socket, failing fast when no
// daemon is listening.
func DialTimeout(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial coordinator socket: %w", err)
	}
	return &Client{rpc: jsonrpc.NewClient(conn)}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Ping probes daemon liveness.
func (c *Client) Ping() (PingReply, error) {
	var reply PingReply
	err := c.rpc.Call(ServiceName+".Ping", PingArgs{}, &reply)
	return reply, err
}

// Status fetches the daemon's self-description.
func (c *Client) Status() (StatusReply, error) {
	var reply StatusReply
	err := c.rpc.Call(ServiceName+".Status", StatusArgs{}, &reply)
	return reply, err
}

// Enqueue submits a hook job.
func (c *Client) Enqueue(args EnqueueArgs) (EnqueueReply, error) {
	var reply EnqueueReply
	err := c.rpc.Call(ServiceName+".Enqueue", args, &reply)
	return reply, err
}

// ClearSession cancels every live hook of a session.
func (c *Client) ClearSession(sessionID string) (ClearSessionReply, error) {
	var reply ClearSessionReply
	err := c.rpc.Call(ServiceName+".ClearSession", ClearSessionArgs{SessionID: sessionID}, &reply)
	return reply, err
}

// WaitResult blocks until the hook finishes or the server-side wait
// elapses.
func (c *Client) WaitResult(args WaitResultArgs) (WaitResultReply, error) {
	var reply WaitResultReply
	err := c.rpc.Call(ServiceName+".WaitResult", args, &reply)
	return reply, err
}

// SessionList fetches every indexed session.
func (c *Client) SessionList() (SessionListReply, error) {
	var reply SessionListReply
	err := c.rpc.Call(ServiceName+".SessionList", SessionListArgs{}, &reply)
	return reply, err
}

// QueueList fetches every tracked hook job.
func (c *Client) QueueList() (QueueListReply, error) {
	var reply QueueListReply
	err := c.rpc.Call(ServiceName+".QueueList", QueueListArgs{}, &reply)
	return reply, err
}

// Audit fetches the audit trail of one hook id.
func (c *Client) Audit(hookID string) (AuditReply, error) {
	var reply AuditReply
	err := c.rpc.Call(ServiceName+".Audit", AuditArgs{HookID: hookID}, &reply)
	return reply, err
}

// Events polls the daemon's event hub.
func (c *Client) Events(args EventsArgs) (EventsReply, error) {
	var reply EventsReply
	err := c.rpc.Call(ServiceName+".Events", args, &reply)
	return reply, err
}
