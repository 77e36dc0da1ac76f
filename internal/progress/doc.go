// Package progress provides the event primitives, non-blocking hub, and
// run-scoped reporter used to observe a crawl. Events are batched on a
// background goroutine and fanned out to sinks such as structured logs,
// Prometheus metrics, or an in-memory tally.
package progress
