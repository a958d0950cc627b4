// Package watcher observes the session log tree for appended bytes.
//
// It layers two signals: fsnotify events for low latency, and a periodic
// reconciliation pass for completeness. Filesystem notification is lossy
// under load and blind to writes that happened while the daemon was not
// leading, so the reconcile tick walks the whole tree and relies on the
// indexer's high-water marks to make untouched files cheap.
package watcher
