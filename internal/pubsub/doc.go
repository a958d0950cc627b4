// Package pubsub fans hook results and session events out to waiting
// clients.
//
// The hub keeps a bounded in-memory ring of recent events. Publishing
// never blocks: when the ring is full the oldest event is dropped.
// Delivery is therefore best-effort with no replay; the durable record
// of hook activity is the audit log, not this hub. A subscriber that
// arrives shortly after a result was published still finds it in the
// ring, which covers the common race between a fast hook and its waiter.
package pubsub
