// Package task contains the asynchronous billing-task pipeline: the
// producers that create and enqueue generation tasks, the dispatcher
// that executes them against the emission webhooks, the queue consumers,
// and the scheduled sweeper that catches tasks the queue path missed.
//
// The flow is store-first: a task row exists before any queue message
// referencing it, queue messages carry ids rather than task data, and
// every status change is recorded in the same transaction as its audit
// log entry. The queue is an optimization for latency; the sweeper
// guarantees eventual execution even if every message is lost.
package task
