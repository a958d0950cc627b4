// Package hooks runs plugin hook commands through a deduplicating queue.
//
// A hook job is identified by its plugin, hook name, and the sorted file
// set it covers. Enqueueing a job whose key matches one still waiting in
// the queue supersedes it: the waiting job is cancelled and the new one
// takes its place. A job that is already executing is never preempted by
// a newer arrival; the newer job queues behind it.
//
// Every job produces exactly one terminal result, including cancelled
// jobs. Results flow through a sink so delivery stays decoupled from
// execution; the durable record is the audit log in the session store.
package hooks
