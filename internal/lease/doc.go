// Package lease implements the time-bounded coordinator lease that makes
// exactly one process on the machine the leader.
//
// The lease is a JSON record on local disk naming the holder pid plus
// acquisition and heartbeat timestamps. Every read-check-write of the
// record runs under a sidecar flock, so acquisition is an atomic
// compare-and-set across cooperating processes. A lease is stale when its
// holder process is gone or its heartbeat is older than the TTL; stale
// leases are taken over, never waited out.
package lease
