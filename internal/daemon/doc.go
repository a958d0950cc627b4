// Package daemon runs the coordinator's leadership loop.
//
// Exactly one daemon process leads at a time, guarded by the heartbeated
// lease. The leader indexes session logs, runs the hook queue, and serves
// the IPC socket. A daemon that fails a heartbeat fail-stops: it tears
// down all leader duties immediately and rejoins the acquisition poll, so
// two processes never act as leader across a lease handoff.
package daemon
