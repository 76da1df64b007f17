// Package sink buffers enriched samples and persists them to the
// relational store in chunks, degrading to the on-disk spool while the
// store is unhealthy and draining it back on recovery.
package sink

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

const maxBackoff = 60 * time.Second

var insertColumns = []string{
	"machine_id", "tag_id", "tag_name", "node_id", "value", "quality",
	"source_timestamp", "server_timestamp", "received_timestamp",
}

type Config struct {
	Table              string
	AutoFlushThreshold int
	MaxChunk           int
}

func (c *Config) applyDefaults() {
	if c.Table == "" {
		c.Table = "tag_values"
	}
	if c.AutoFlushThreshold <= 0 {
		c.AutoFlushThreshold = 5_000
	}
	if c.MaxChunk <= 0 {
		c.MaxChunk = 1_000
	}
}

// PostgresSink is the process-wide batch sink: one buffer, one health
// state, initialized at startup and flushed at shutdown.
type PostgresSink struct {
	db    *sql.DB
	spool ports.Spool
	obs   ports.Observability
	cfg   Config

	bufMu sync.Mutex
	buf   []*domain.Sample

	// flushMu serializes the flush path, including the spool drain.
	flushMu       sync.Mutex
	flushQueued   atomic.Bool
	disableCopyIn atomic.Bool

	healthMu    sync.Mutex
	healthy     bool
	failures    int
	nextAttempt time.Time

	now func() time.Time
}

func NewPostgresSink(db *sql.DB, spool ports.Spool, obs ports.Observability, cfg Config) *PostgresSink {
	cfg.applyDefaults()
	return &PostgresSink{
		db:      db,
		spool:   spool,
		obs:     obs,
		cfg:     cfg,
		healthy: true,
		now:     time.Now,
	}
}

// Enqueue appends to the in-memory FIFO buffer and schedules an
// asynchronous flush once the threshold is crossed. It never performs I/O.
func (s *PostgresSink) Enqueue(ctx context.Context, samples []*domain.Sample) int {
	if len(samples) == 0 {
		return 0
	}

	s.bufMu.Lock()
	s.buf = append(s.buf, samples...)
	pending := len(s.buf)
	s.bufMu.Unlock()

	s.obs.SetGauge("acq_pending_samples", float64(pending))

	if pending >= s.cfg.AutoFlushThreshold && s.flushQueued.CompareAndSwap(false, true) {
		go func() {
			defer s.flushQueued.Store(false)
			if err := s.Flush(context.WithoutCancel(ctx)); err != nil {
				s.obs.LogCritical("auto_flush_failed", err)
			}
		}()
	}
	return len(samples)
}

func (s *PostgresSink) PendingCount() int {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return len(s.buf)
}

// Flush moves the pending buffer into a worker-local slice and persists it
// in chunks. A storage outage marks the sink unhealthy and spools the
// whole flushed set; an unexpected failure spools and is returned so the
// worker loop can log it fatally.
func (s *PostgresSink) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.bufMu.Lock()
	batch := s.buf
	s.buf = nil
	s.bufMu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	s.obs.SetGauge("acq_pending_samples", 0)

	start := s.now()
	err := s.persist(ctx, batch)
	if err == nil {
		s.obs.ObserveLatency("acq_flush_latency_seconds", s.now().Sub(start).Seconds())
		s.obs.IncCounter("acq_samples_persisted_total", float64(len(batch)))
		if s.markHealthy() {
			if err := s.drainSpoolLocked(ctx); err != nil {
				s.obs.LogError("spool_drain_failed", err)
			}
		}
		return nil
	}

	if isStorageUnavailable(err) {
		s.obs.LogError("storage_unavailable", err, ports.Field{Key: "samples", Value: len(batch)})
		s.markUnhealthy()
		if _, spoolErr := s.spool.Append(batch); spoolErr != nil {
			return fmt.Errorf("flush: spool fallback: %w", spoolErr)
		}
		return nil
	}

	// Unexpected failure: keep the data, surface the error.
	if _, spoolErr := s.spool.Append(batch); spoolErr != nil {
		return fmt.Errorf("flush: %w (spool fallback also failed: %v)", err, spoolErr)
	}
	return fmt.Errorf("flush: %w", err)
}

// IsHealthy probes the store with a SELECT 1 round trip. It does not
// mutate the sink's health state.
func (s *PostgresSink) IsHealthy(ctx context.Context) bool {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one) == nil
}

// TryRecover is a no-op while healthy or while backoff says wait. On a
// successful probe it resets the failure count and drains the spool.
func (s *PostgresSink) TryRecover(ctx context.Context) error {
	s.healthMu.Lock()
	if s.healthy {
		s.healthMu.Unlock()
		return nil
	}
	if s.now().Before(s.nextAttempt) {
		s.healthMu.Unlock()
		return nil
	}
	s.healthMu.Unlock()

	if !s.IsHealthy(ctx) {
		s.recordFailure()
		return nil
	}

	s.markHealthy()
	s.obs.LogInfo("storage_recovered")

	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.drainSpoolLocked(ctx)
}

// persist partitions into chunks of MaxChunk and writes each in one round
// trip. The bulk COPY path is preferred; a schema-missing failure switches
// this process to the direct insert path for good.
func (s *PostgresSink) persist(ctx context.Context, samples []*domain.Sample) error {
	for off := 0; off < len(samples); off += s.cfg.MaxChunk {
		end := off + s.cfg.MaxChunk
		if end > len(samples) {
			end = len(samples)
		}
		if err := s.writeChunk(ctx, samples[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresSink) writeChunk(ctx context.Context, chunk []*domain.Sample) error {
	if len(chunk) == 0 {
		return nil
	}
	if !s.disableCopyIn.Load() {
		err := s.copyChunk(ctx, chunk)
		if err == nil {
			return nil
		}
		if !isSchemaMissing(err) {
			return err
		}
		s.disableCopyIn.Store(true)
		s.obs.LogWarn("bulk_copy_unavailable_using_insert", ports.Field{Key: "cause", Value: err.Error()})
	}
	return s.insertChunk(ctx, chunk)
}

// copyChunk streams the chunk through COPY FROM STDIN in one transaction.
func (s *PostgresSink) copyChunk(ctx context.Context, chunk []*domain.Sample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("copy begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(s.cfg.Table, insertColumns...))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("copy prepare: %w", err)
	}

	for _, smp := range chunk {
		if _, err := stmt.ExecContext(ctx, rowArgs(smp)...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("copy row: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		_ = tx.Rollback()
		return fmt.Errorf("copy flush: %w", err)
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("copy close: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("copy commit: %w", err)
	}
	return nil
}

// insertChunk is the direct path: one parameterized multi-row INSERT.
func (s *PostgresSink) insertChunk(ctx context.Context, chunk []*domain.Sample) error {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.cfg.Table)
	b.WriteString(" (")
	b.WriteString(strings.Join(insertColumns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(chunk)*len(insertColumns))
	for i, smp := range chunk {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for j := range insertColumns {
			if j > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j+1)
		}
		b.WriteString(")")
		args = append(args, rowArgs(smp)...)
	}

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

func rowArgs(s *domain.Sample) []any {
	return []any{
		s.MachineID,
		s.TagID,
		s.TagName,
		s.NodeID,
		s.Value.DisplayString(),
		int64(s.Quality.Word),
		s.SourceTimestamp,
		s.ServerTimestamp,
		s.ReceivedTimestamp,
	}
}

// drainSpoolLocked replays every spooled batch in filename order. Files
// are only cleared after every batch persisted; any failure aborts the
// drain, leaves the files intact and re-marks the sink unhealthy.
// Callers hold flushMu.
func (s *PostgresSink) drainSpoolLocked(ctx context.Context) error {
	batches, err := s.spool.ListBatches()
	if err != nil {
		return fmt.Errorf("drain list: %w", err)
	}
	if len(batches) == 0 {
		return nil
	}

	drained := 0
	for _, b := range batches {
		if err := s.persist(ctx, b.TagValues); err != nil {
			s.markUnhealthy()
			s.obs.LogError("spool_drain_aborted", err,
				ports.Field{Key: "batch", Value: b.BatchID},
				ports.Field{Key: "drained", Value: drained})
			return fmt.Errorf("drain batch %s: %w", b.BatchID, err)
		}
		drained += len(b.TagValues)
	}

	if err := s.spool.ClearAll(); err != nil {
		return fmt.Errorf("drain clear: %w", err)
	}
	s.obs.IncCounter("acq_drained_records_total", float64(drained))
	s.obs.LogInfo("spool_drained",
		ports.Field{Key: "batches", Value: len(batches)},
		ports.Field{Key: "records", Value: drained})
	return nil
}

// markHealthy transitions to healthy and reports whether a transition
// happened.
func (s *PostgresSink) markHealthy() bool {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	was := s.healthy
	s.healthy = true
	s.failures = 0
	s.nextAttempt = time.Time{}
	s.obs.SetGauge("acq_sink_healthy", 1)
	return !was
}

func (s *PostgresSink) markUnhealthy() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.healthy = false
	s.obs.SetGauge("acq_sink_healthy", 0)
}

// recordFailure extends the backoff: the first retry comes after 1s, each
// further consecutive failure doubles the delay up to 60s.
func (s *PostgresSink) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	delay := time.Duration(math.Min(math.Pow(2, float64(s.failures)), maxBackoff.Seconds())) * time.Second
	s.failures++
	s.nextAttempt = s.now().Add(delay)
	s.obs.LogWarn("storage_retry_scheduled",
		ports.Field{Key: "failures", Value: s.failures},
		ports.Field{Key: "delay", Value: delay.String()})
}

// Healthy exposes the tracked state for the worker loop's logging.
func (s *PostgresSink) Healthy() bool {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	return s.healthy
}

var _ ports.SampleSink = (*PostgresSink)(nil)
