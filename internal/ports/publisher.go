package ports

import (
	"context"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
)

// EventPublisher fans validated samples out to an external event bus.
// Publishing is best effort; failures must not block ingestion.
type EventPublisher interface {
	Publish(ctx context.Context, s *domain.Sample) error
	Close() error
}
