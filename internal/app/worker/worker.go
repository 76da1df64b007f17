// Package worker is the long-running supervisor: it wires the subscriber
// into the ingestion pipeline, drives the periodic flush/recovery tick and
// performs the orderly shutdown.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/Shilirayen01/sys-acquisition/internal/app/pipeline"
	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

const shutdownFlushTimeout = 30 * time.Second

type Worker struct {
	sub  ports.Subscriber
	sink ports.SampleSink
	pipe *pipeline.Ingest
	obs  ports.Observability

	flushInterval time.Duration
	channelDepth  int
}

func New(sub ports.Subscriber, sink ports.SampleSink, pipe *pipeline.Ingest, obs ports.Observability, flushInterval time.Duration, channelDepth int) *Worker {
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}
	if channelDepth <= 0 {
		channelDepth = 5_000
	}
	return &Worker{
		sub:           sub,
		sink:          sink,
		pipe:          pipe,
		obs:           obs,
		flushInterval: flushInterval,
		channelDepth:  channelDepth,
	}
}

// Run blocks until ctx is cancelled. Subscriptions stop first so no new
// samples arrive, then one final flush runs under its own deadline that
// the caller's cancellation cannot cut short.
func (w *Worker) Run(ctx context.Context) error {
	samples := make(chan *domain.Sample, w.channelDepth)

	if err := w.sub.Start(samples); err != nil {
		return fmt.Errorf("worker start: %w", err)
	}

	pipeDone := make(chan struct{})
	go func() {
		defer close(pipeDone)
		w.pipe.Run(ctx, samples)
	}()

	w.obs.LogInfo("worker_started", ports.Field{Key: "flushInterval", Value: w.flushInterval.String()})

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.shutdown(samples, pipeDone)
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if !w.sub.Healthy() {
		w.obs.LogWarn("subscriber_disconnected_reconnecting")
		if err := w.sub.Reconnect(); err != nil {
			w.obs.LogError("reconnect_failed", err)
		}
	}

	if w.sink.PendingCount() > 0 {
		if err := w.sink.Flush(ctx); err != nil {
			// Data is already spooled at this point; keep running.
			w.obs.LogCritical("flush_failed", err)
		}
	}

	// A healed store drains the spool even when no new traffic arrives.
	if err := w.sink.TryRecover(ctx); err != nil {
		w.obs.LogError("recover_failed", err)
	}
}

func (w *Worker) shutdown(samples chan *domain.Sample, pipeDone <-chan struct{}) error {
	w.obs.LogInfo("worker_stopping")

	if err := w.sub.Stop(); err != nil {
		w.obs.LogError("subscriber_stop_failed", err)
	}
	close(samples)
	<-pipeDone

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	if err := w.sink.Flush(flushCtx); err != nil {
		w.obs.LogError("final_flush_failed", err)
		return err
	}

	w.obs.LogInfo("worker_stopped")
	return nil
}
