// Package spool implements the on-disk store-and-forward queue: one JSON
// file per batch, named so lexicographic order equals chronological order.
package spool

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

var fileNamePattern = regexp.MustCompile(`^batch_\d{8}_\d{6}_[0-9a-f]{32}\.json$`)

// FileSpool is the sole writer of its directory within the process. A
// single mutex serializes writers; the sink's recovery path reads under
// the same lock.
type FileSpool struct {
	mu         sync.Mutex
	dir        string
	maxRecords int
	obs        ports.Observability

	now func() time.Time
}

func NewFileSpool(dir string, maxRecords int, obs ports.Observability) (*FileSpool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spool dir: %w", err)
	}
	return &FileSpool{
		dir:        dir,
		maxRecords: maxRecords,
		obs:        obs,
		now:        time.Now,
	}, nil
}

// Append writes one batch atomically (temp file + rename) after running
// capacity cleanup. A filesystem error is fatal for this batch and is
// returned to the caller.
func (s *FileSpool) Append(samples []*domain.Sample) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cleanupIfNeededLocked(); err != nil {
		return "", err
	}

	id := uuid.New()
	batch := domain.StoredBatch{
		BatchID:   hex.EncodeToString(id[:]),
		Timestamp: s.now(),
		TagValues: samples,
	}

	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("spool encode: %w", err)
	}

	name := fmt.Sprintf("batch_%s_%s.json", batch.Timestamp.Format("20060102_150405"), batch.BatchID)
	tmp := filepath.Join(s.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("spool write: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("spool rename: %w", err)
	}

	s.obs.IncCounter("acq_spooled_records_total", float64(len(samples)))
	return batch.BatchID, nil
}

// ListBatches returns every readable batch in ascending filename order.
// Corrupt files are logged and skipped.
func (s *FileSpool) ListBatches() ([]domain.StoredBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *FileSpool) listLocked() ([]domain.StoredBatch, error) {
	names, err := s.fileNamesLocked()
	if err != nil {
		return nil, err
	}

	out := make([]domain.StoredBatch, 0, len(names))
	for _, name := range names {
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			s.obs.LogError("spool_read_failed", err, ports.Field{Key: "file", Value: name})
			continue
		}
		var batch domain.StoredBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			s.obs.LogError("spool_corrupt_batch", err, ports.Field{Key: "file", Value: name})
			continue
		}
		out = append(out, batch)
	}
	return out, nil
}

func (s *FileSpool) DeleteBatch(batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.fileNamesLocked()
	if err != nil {
		return err
	}
	for _, name := range names {
		if strings.Contains(name, batchID) {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
				return fmt.Errorf("spool delete: %w", err)
			}
		}
	}
	return nil
}

// TotalRecords sums sample counts across every batch file.
func (s *FileSpool) TotalRecords() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalRecordsLocked()
}

func (s *FileSpool) totalRecordsLocked() (int, error) {
	batches, err := s.listLocked()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, b := range batches {
		total += len(b.TagValues)
	}
	return total, nil
}

func (s *FileSpool) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.fileNamesLocked()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("spool clear: %w", err)
		}
	}
	return nil
}

// cleanupIfNeededLocked deletes oldest batch files until the residual
// record count drops to 80% of the cap. Per-file granularity; the target
// is approximate.
func (s *FileSpool) cleanupIfNeededLocked() error {
	if s.maxRecords <= 0 {
		return nil
	}
	total, err := s.totalRecordsLocked()
	if err != nil {
		return err
	}
	if total < s.maxRecords {
		return nil
	}

	target := int(0.8 * float64(s.maxRecords))
	names, err := s.fileNamesLocked()
	if err != nil {
		return err
	}

	for _, name := range names {
		if total <= target {
			break
		}
		path := filepath.Join(s.dir, name)
		removed := 0
		if data, err := os.ReadFile(path); err == nil {
			var batch domain.StoredBatch
			if err := json.Unmarshal(data, &batch); err == nil {
				removed = len(batch.TagValues)
			}
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("spool cleanup: %w", err)
		}
		total -= removed
		s.obs.LogWarn("spool_cleanup_dropped_batch",
			ports.Field{Key: "file", Value: name},
			ports.Field{Key: "records", Value: removed})
	}
	return nil
}

func (s *FileSpool) fileNamesLocked() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("spool list: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !fileNamePattern.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

var _ ports.Spool = (*FileSpool)(nil)
