// Package pipeline carries each sample from the subscription callback to
// the batch sink: resolve metadata, enrich, validate, enqueue. Failures
// here are per-sample and never tear down a subscription.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/Shilirayen01/sys-acquisition/internal/app/validate"
	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

type Ingest struct {
	cache     *TagCache
	sink      ports.SampleSink
	publisher ports.EventPublisher // optional fan-out, may be nil
	obs       ports.Observability
}

func NewIngest(cache *TagCache, sink ports.SampleSink, publisher ports.EventPublisher, obs ports.Observability) *Ingest {
	return &Ingest{
		cache:     cache,
		sink:      sink,
		publisher: publisher,
		obs:       obs,
	}
}

// Run drains the subscriber channel with a single consumer so per-tag
// delivery order is preserved into the sink buffer. It returns when the
// channel closes; cancellation is handled by the worker loop, which stops
// the subscriber and closes the channel, so already-delivered samples are
// still drained during shutdown.
func (p *Ingest) Run(ctx context.Context, in <-chan *domain.Sample) {
	ctx = context.WithoutCancel(ctx)
	for s := range in {
		p.HandleSample(ctx, s)
	}
}

// HandleSample processes one sample. Panics and unexpected errors are
// contained and logged; the sample is dropped, the pipeline keeps running.
func (p *Ingest) HandleSample(ctx context.Context, s *domain.Sample) {
	defer func() {
		if r := recover(); r != nil {
			p.obs.LogError("ingest_panic", fmt.Errorf("%v", r),
				ports.Field{Key: "nodeId", Value: s.NodeID},
				ports.Field{Key: "stack", Value: string(debug.Stack())})
		}
	}()

	if accepted := p.admit(ctx, s); accepted {
		p.sink.Enqueue(ctx, []*domain.Sample{s})
		p.publish(ctx, s)
	}
}

// HandleBatch is the batch-mode variant: each element is resolved and
// validated individually, the surviving subset is enqueued in one call.
func (p *Ingest) HandleBatch(ctx context.Context, samples []*domain.Sample) {
	defer func() {
		if r := recover(); r != nil {
			p.obs.LogError("ingest_panic", fmt.Errorf("%v", r),
				ports.Field{Key: "stack", Value: string(debug.Stack())})
		}
	}()

	accepted := make([]*domain.Sample, 0, len(samples))
	for _, s := range samples {
		if p.admit(ctx, s) {
			accepted = append(accepted, s)
		}
	}
	if len(accepted) == 0 {
		return
	}
	p.sink.Enqueue(ctx, accepted)
	for _, s := range accepted {
		p.publish(ctx, s)
	}
}

// admit resolves and enriches the sample and runs the validation chain.
func (p *Ingest) admit(ctx context.Context, s *domain.Sample) bool {
	tag, err := p.cache.Resolve(ctx, s.NodeID)
	if err != nil {
		if IsNotFound(err) {
			p.obs.LogWarn("unknown_tag_dropped", ports.Field{Key: "nodeId", Value: s.NodeID})
			p.obs.IncCounter("acq_samples_dropped_total", 1)
			return false
		}
		p.obs.LogError("tag_resolve_failed", err, ports.Field{Key: "nodeId", Value: s.NodeID})
		p.obs.IncCounter("acq_samples_dropped_total", 1)
		return false
	}

	s.TagID = tag.ID
	s.MachineID = tag.MachineID
	s.TagName = tag.Name

	if ok, reason := validate.Check(tag, s.Value, s.Quality); !ok {
		p.obs.LogWarn("sample_rejected",
			ports.Field{Key: "nodeId", Value: s.NodeID},
			ports.Field{Key: "reason", Value: string(reason)},
			ports.Field{Key: "value", Value: s.Value.DisplayString()})
		p.obs.IncCounter("acq_samples_dropped_total", 1)
		return false
	}

	p.obs.IncCounter("acq_samples_ingested_total", 1)
	return true
}

func (p *Ingest) publish(ctx context.Context, s *domain.Sample) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, s); err != nil {
		p.obs.LogError("event_publish_failed", err, ports.Field{Key: "nodeId", Value: s.NodeID})
	}
}

// ReloadMetadata makes the next resolve observe fresh repository data.
func (p *Ingest) ReloadMetadata() {
	p.cache.Invalidate()
	p.obs.LogInfo("metadata_reloaded")
}
