// Package ticketdb implements the acknowledged-ticket ingestion pipeline and
// per-channel unrealized-value accounting of a veilmix node.
//
// High-frequency ticket writes from the packet-forwarding pipeline must never
// contend with the rest of the node for the database's single write lock.
// All writes therefore funnel through one process-wide mutex, and ticket
// persistence is decoupled from the forwarding path by a bounded FIFO queue
// drained by a single background worker, while arbitrary numbers of read
// transactions proceed concurrently.
package ticketdb

import "errors"

// Facade errors.
var (
	// ErrNotStarted is returned by Insert before Start has been called.
	ErrNotStarted = errors.New("ticket processing not started")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("ticket processing already started")

	// ErrQueueFull is returned by Insert when the ingestion queue is
	// saturated. The ticket is not enqueued and the cache is untouched;
	// the caller decides whether to retry, drop, or back off.
	ErrQueueFull = errors.New("ticket ingestion queue is full")

	// ErrNotSingleChannel is returned by UnrealizedValue for selectors
	// whose channel set does not have exactly one element.
	ErrNotSingleChannel = errors.New("selector must name a single channel")
)
