package ports

import (
	"context"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
)

// SampleSink is the buffered writer in front of the relational store.
// Enqueue never blocks on I/O; Flush is serialized internally.
type SampleSink interface {
	// Enqueue appends to the in-memory buffer and returns the number
	// appended. Crossing the auto-flush threshold schedules an
	// asynchronous flush.
	Enqueue(ctx context.Context, samples []*domain.Sample) int
	// Flush persists everything currently buffered. A storage outage is
	// absorbed by spooling and is not an error; anything else is returned.
	Flush(ctx context.Context) error
	PendingCount() int
	// IsHealthy probes the store without mutating sink state.
	IsHealthy(ctx context.Context) bool
	// TryRecover probes an unhealthy store subject to backoff and drains
	// the spool on success.
	TryRecover(ctx context.Context) error
}
