package ports

import (
	"context"
	"errors"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
)

// ErrNotFound is returned by metadata lookups that match nothing.
var ErrNotFound = errors.New("metadata: not found")

// MetadataRepository is a read-only view of machines and tags in the
// relational store. Implementations return snapshots by value; retries are
// the caller's concern.
type MetadataRepository interface {
	ListActiveMachines(ctx context.Context) ([]domain.Machine, error)
	GetMachine(ctx context.Context, id int32) (domain.Machine, error)
	GetTagByNodeID(ctx context.Context, nodeID string) (domain.Tag, error)
	ListActiveTagsByMachine(ctx context.Context, machineID int32) ([]domain.Tag, error)
}
