// Package ipc exposes the coordinator over a unix domain socket.
//
// The wire protocol is JSON-RPC via net/rpc, registered under the "Han"
// service name. The socket lives in the data directory with owner-only
// permissions; clients dial with a short timeout so a dead socket file
// fails fast instead of hanging hook dispatch.
package ipc
