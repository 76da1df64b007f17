package ports

import "github.com/Shilirayen01/sys-acquisition/internal/domain"

// Subscriber owns the sessions to the configured machines and pushes one
// Sample per value-change notification into the channel handed to Start.
// Implementations must tolerate Stop without a prior Start.
type Subscriber interface {
	Start(out chan<- *domain.Sample) error
	Stop() error
	// Reconnect tears the sessions down and rebuilds them against the
	// channel from the last Start, after a short grace delay.
	Reconnect() error
	// Healthy reports whether every session is currently connected.
	Healthy() bool
}
