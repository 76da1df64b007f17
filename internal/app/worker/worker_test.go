package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shilirayen01/sys-acquisition/internal/app/pipeline"
	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

type nopObs struct{}

func (nopObs) LogInfo(string, ...ports.Field)            {}
func (nopObs) LogWarn(string, ...ports.Field)            {}
func (nopObs) LogError(string, error, ...ports.Field)    {}
func (nopObs) LogCritical(string, error, ...ports.Field) {}
func (nopObs) IncCounter(string, float64)                {}
func (nopObs) SetGauge(string, float64)                  {}
func (nopObs) ObserveLatency(string, float64)            {}

type fakeRepo struct{ tags map[string]domain.Tag }

func (f *fakeRepo) ListActiveMachines(context.Context) ([]domain.Machine, error) { return nil, nil }
func (f *fakeRepo) GetMachine(context.Context, int32) (domain.Machine, error) {
	return domain.Machine{}, ports.ErrNotFound
}
func (f *fakeRepo) ListActiveTagsByMachine(context.Context, int32) ([]domain.Tag, error) {
	return nil, nil
}
func (f *fakeRepo) GetTagByNodeID(_ context.Context, nodeID string) (domain.Tag, error) {
	if t, ok := f.tags[nodeID]; ok {
		return t, nil
	}
	return domain.Tag{}, ports.ErrNotFound
}

type fakeSink struct {
	mu        sync.Mutex
	buf       []*domain.Sample
	flushed   []*domain.Sample
	flushes   int32
	recovers  int32
}

func (f *fakeSink) Enqueue(_ context.Context, s []*domain.Sample) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = append(f.buf, s...)
	return len(s)
}

func (f *fakeSink) Flush(context.Context) error {
	atomic.AddInt32(&f.flushes, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed = append(f.flushed, f.buf...)
	f.buf = nil
	return nil
}

func (f *fakeSink) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}

func (f *fakeSink) IsHealthy(context.Context) bool { return true }

func (f *fakeSink) TryRecover(context.Context) error {
	atomic.AddInt32(&f.recovers, 1)
	return nil
}

func (f *fakeSink) flushedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flushed)
}

type fakeSub struct {
	mu         sync.Mutex
	out        chan<- *domain.Sample
	healthy    bool
	reconnects int
	stopped    bool
}

func (f *fakeSub) Start(out chan<- *domain.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = out
	f.healthy = true
	return nil
}

func (f *fakeSub) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	f.healthy = false
	return nil
}

func (f *fakeSub) Reconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	f.healthy = true
	return nil
}

func (f *fakeSub) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeSub) started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out != nil
}

func (f *fakeSub) emit(s *domain.Sample) {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	out <- s
}

func newTestWorker(sink ports.SampleSink, sub ports.Subscriber) *Worker {
	repo := &fakeRepo{tags: map[string]domain.Tag{
		"ns=2;s=T": {ID: 1, MachineID: 1, Name: "temp", NodeID: "ns=2;s=T", DataType: "Double", IsActive: true},
	}}
	pipe := pipeline.NewIngest(pipeline.NewTagCache(repo), sink, nil, nopObs{})
	return New(sub, sink, pipe, nopObs{}, 20*time.Millisecond, 64)
}

func TestWorkerFlushesAndRecoversOnTick(t *testing.T) {
	sink := &fakeSink{}
	sub := &fakeSub{}
	w := newTestWorker(sink, sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Wait for the subscriber to be started, then feed samples through the
	// real pipeline.
	deadline := time.Now().Add(time.Second)
	for !sub.started() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	sub.emit(&domain.Sample{NodeID: "ns=2;s=T", Value: domain.FloatValue(10, 64), Quality: domain.QualityFromStatus(0)})
	sub.emit(&domain.Sample{NodeID: "ns=2;s=T", Value: domain.FloatValue(20, 64), Quality: domain.QualityFromStatus(0)})

	deadline = time.Now().Add(2 * time.Second)
	for sink.flushedCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.flushedCount() != 2 {
		t.Fatalf("tick flush persisted %d samples, want 2", sink.flushedCount())
	}
	if atomic.LoadInt32(&sink.recovers) == 0 {
		t.Error("tick did not call TryRecover")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	if !sub.stopped {
		t.Error("subscriber not stopped on shutdown")
	}
}

func TestWorkerReconnectsUnhealthySubscriber(t *testing.T) {
	sink := &fakeSink{}
	sub := &fakeSub{}
	w := newTestWorker(sink, sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() { cancel(); <-done }()

	deadline := time.Now().Add(time.Second)
	for !sub.started() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	sub.mu.Lock()
	sub.healthy = false
	sub.mu.Unlock()

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sub.mu.Lock()
		n := sub.reconnects
		sub.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("worker never reconnected the unhealthy subscriber")
}

func TestWorkerFinalFlushOnShutdown(t *testing.T) {
	sink := &fakeSink{}
	sub := &fakeSub{}
	// Long tick so only the shutdown flush can drain the buffer.
	repo := &fakeRepo{tags: map[string]domain.Tag{
		"ns=2;s=T": {ID: 1, MachineID: 1, Name: "temp", NodeID: "ns=2;s=T", DataType: "Double", IsActive: true},
	}}
	pipe := pipeline.NewIngest(pipeline.NewTagCache(repo), sink, nil, nopObs{})
	w := New(sub, sink, pipe, nopObs{}, time.Hour, 64)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !sub.started() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	sub.emit(&domain.Sample{NodeID: "ns=2;s=T", Value: domain.FloatValue(1, 64), Quality: domain.QualityFromStatus(0)})

	// Give the pipeline a moment to enqueue, then shut down.
	deadline = time.Now().Add(time.Second)
	for sink.PendingCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	if sink.flushedCount() != 1 {
		t.Fatalf("final flush persisted %d samples, want 1", sink.flushedCount())
	}
	if sink.PendingCount() != 0 {
		t.Errorf("pending = %d after shutdown, want 0", sink.PendingCount())
	}
}
