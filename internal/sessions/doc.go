// Package sessions persists coordinator state in SQLite: session records
// built from indexed log files, per-file high-water marks for incremental
// indexing, and the append-only audit trail of hook job lifecycle
// transitions.
//
// Only the current lease holder may call the mutating methods; that
// discipline is enforced by the daemon, not here.
package sessions
