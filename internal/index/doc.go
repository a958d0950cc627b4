// Package index turns appended session log bytes into session records.
//
// Session logs are JSONL files written by coding agents under the watch
// root. The indexer keeps a per-file high-water mark in the store and only
// reads bytes past it, so repeated scans of an unchanged file are cheap
// no-ops. Indexing is fail-soft at line granularity: a malformed line is
// skipped and logged without blocking the lines after it.
package index
