package ports

import "github.com/Shilirayen01/sys-acquisition/internal/domain"

// Spool is the durable on-disk store-and-forward queue the sink degrades
// to while the relational store is unhealthy. One process-local writer at
// a time; batch files are immutable once written.
type Spool interface {
	// Append writes one new batch file atomically and returns its batch id.
	// Capacity cleanup runs before the write.
	Append(samples []*domain.Sample) (string, error)
	// ListBatches returns all batches in ascending filename order, which is
	// chronological order. Corrupt files are skipped, never fatal.
	ListBatches() ([]domain.StoredBatch, error)
	DeleteBatch(batchID string) error
	TotalRecords() (int, error)
	ClearAll() error
}
