// Package sysacq wires the acquisition worker together: metadata, cache,
// validation, sink, spool, subscriber and the supervisor loop. Every
// dependency can be overridden through options so the runtime can be
// embedded in other services or driven by tests.
package sysacq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Shilirayen01/sys-acquisition/internal/adapters/eventbus"
	"github.com/Shilirayen01/sys-acquisition/internal/adapters/metadata"
	"github.com/Shilirayen01/sys-acquisition/internal/adapters/observability"
	acqopcua "github.com/Shilirayen01/sys-acquisition/internal/adapters/opcua"
	"github.com/Shilirayen01/sys-acquisition/internal/adapters/simulator"
	acqsink "github.com/Shilirayen01/sys-acquisition/internal/adapters/sink"
	acqspool "github.com/Shilirayen01/sys-acquisition/internal/adapters/spool"
	"github.com/Shilirayen01/sys-acquisition/internal/app/config"
	"github.com/Shilirayen01/sys-acquisition/internal/app/pipeline"
	"github.com/Shilirayen01/sys-acquisition/internal/app/worker"
	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

// Option overrides one of the runtime's dependencies.
type Option func(*overrides)

type overrides struct {
	repository ports.MetadataRepository
	subscriber ports.Subscriber
	sink       ports.SampleSink
	spool      ports.Spool
	publisher  ports.EventPublisher
	obs        ports.Observability
}

// WithRepository injects a custom metadata source.
func WithRepository(r ports.MetadataRepository) Option {
	return func(o *overrides) { o.repository = r }
}

// WithSubscriber injects a custom sample source (another protocol,
// a replayer, a test feed).
func WithSubscriber(s ports.Subscriber) Option {
	return func(o *overrides) { o.subscriber = s }
}

// WithSink injects a custom persistence sink.
func WithSink(s ports.SampleSink) Option {
	return func(o *overrides) { o.sink = s }
}

// WithSpool injects a custom store-and-forward implementation.
func WithSpool(s ports.Spool) Option {
	return func(o *overrides) { o.spool = s }
}

// WithPublisher injects a custom event-bus producer.
func WithPublisher(p ports.EventPublisher) Option {
	return func(o *overrides) { o.publisher = p }
}

// WithObservability plugs in a custom logging/metrics backend.
func WithObservability(obs ports.Observability) Option {
	return func(o *overrides) { o.obs = obs }
}

// Runtime owns the process-wide components. Construct once at startup,
// Run until the context is cancelled.
type Runtime struct {
	cfg *config.Config
	log *zap.Logger
	obs ports.Observability

	db         *sql.DB
	repo       ports.MetadataRepository
	spool      ports.Spool
	sink       ports.SampleSink
	publisher  ports.EventPublisher
	subscriber ports.Subscriber
	pipe       *pipeline.Ingest

	metricsSrv *http.Server
}

// New builds the default adapters: Postgres metadata and sink, file spool,
// OPC UA or simulator subscriber, zap/Prometheus observability. It fails
// only on configuration-class errors (bad config, unwritable spool
// directory, unreachable event bus); an unreachable database is a runtime
// condition the sink absorbs.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var ov overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&ov)
		}
	}

	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	obs := ov.obs
	if obs == nil {
		obs = observability.New(log, prometheus.DefaultRegisterer)
	}

	rt := &Runtime{cfg: cfg, log: log, obs: obs}

	if ov.repository == nil || ov.sink == nil {
		db, err := sql.Open("postgres", cfg.Storage.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		rt.db = db
	}

	rt.repo = ov.repository
	if rt.repo == nil {
		rt.repo = metadata.NewRepository(rt.db)
	}

	rt.spool = ov.spool
	if rt.spool == nil {
		fs, err := acqspool.NewFileSpool(cfg.Resilience.StoreForwardPath, cfg.Resilience.MaxLocalStorageRecords, obs)
		if err != nil {
			return nil, fmt.Errorf("spool: %w", err)
		}
		rt.spool = fs
	}

	rt.sink = ov.sink
	if rt.sink == nil {
		rt.sink = acqsink.NewPostgresSink(rt.db, rt.spool, obs, acqsink.Config{
			Table:              cfg.Storage.Table,
			AutoFlushThreshold: cfg.Batch.AutoFlushThreshold,
			MaxChunk:           cfg.Batch.MaxChunk,
		})
	}

	rt.publisher = ov.publisher
	if rt.publisher == nil && cfg.EventBus.Enabled {
		pub, err := eventbus.NewRedisPublisher(context.Background(), eventbus.Config{
			Addr:     cfg.EventBus.Addr,
			Channel:  cfg.EventBus.Channel,
			Password: cfg.EventBus.Password,
			DB:       cfg.EventBus.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("event bus: %w", err)
		}
		rt.publisher = pub
	}

	rt.subscriber = ov.subscriber
	rt.pipe = pipeline.NewIngest(pipeline.NewTagCache(rt.repo), rt.sink, rt.publisher, obs)

	return rt, nil
}

// Pipeline exposes the ingestion entry points for embedders that feed
// samples directly instead of through a subscriber.
func (rt *Runtime) Pipeline() *pipeline.Ingest { return rt.pipe }

// Run loads the machine fleet, starts the subscriber, serves /metrics and
// supervises until ctx is cancelled.
func (rt *Runtime) Run(ctx context.Context) error {
	defer rt.close()

	sub := rt.subscriber
	if sub == nil {
		machines, err := rt.loadMachines(ctx)
		if err != nil {
			return err
		}
		if rt.cfg.Opc.UseSimulator {
			sub = simulator.NewSubscriber(rt.cfg.Opc.SamplingInterval, machines, rt.obs)
		} else {
			sub = acqopcua.NewSubscriber(acqopcua.Config{
				PublishInterval:  rt.cfg.Opc.PublishInterval,
				SamplingInterval: rt.cfg.Opc.SamplingInterval,
				KeepAliveCount:   rt.cfg.Opc.KeepAliveCount,
				LifetimeCount:    rt.cfg.Opc.LifetimeCount,
				QueueSize:        rt.cfg.Opc.QueueSize,
				SecurityMode:     rt.cfg.Opc.SecurityMode,
				SecurityPolicy:   rt.cfg.Opc.SecurityPolicy,
				ApplicationName:  rt.cfg.Opc.ApplicationName,
				ReconnectGrace:   rt.cfg.Opc.ReconnectGrace,
			}, machines, rt.obs)
		}
	}

	rt.serveMetrics()

	w := worker.New(sub, rt.sink, rt.pipe, rt.obs,
		rt.cfg.Batch.FlushInterval(), rt.cfg.Batch.AutoFlushThreshold)
	return w.Run(ctx)
}

// loadMachines retries a few times so a database that is merely slow to
// come up does not kill the process at boot.
func (rt *Runtime) loadMachines(ctx context.Context) ([]domain.Machine, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		machines, err := rt.repo.ListActiveMachines(ctx)
		if err == nil {
			rt.obs.LogInfo("machines_loaded", ports.Field{Key: "count", Value: len(machines)})
			return machines, nil
		}
		lastErr = err
		rt.obs.LogWarn("machine_load_retry", ports.Field{Key: "attempt", Value: attempt + 1})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}
	return nil, fmt.Errorf("load machines: %w", lastErr)
}

func (rt *Runtime) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	rt.metricsSrv = &http.Server{Addr: rt.cfg.Metrics.Addr, Handler: mux}

	go func() {
		if err := rt.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.obs.LogError("metrics_server_failed", err)
		}
	}()
}

func (rt *Runtime) close() {
	if rt.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = rt.metricsSrv.Shutdown(ctx)
		cancel()
	}
	if rt.publisher != nil {
		_ = rt.publisher.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
	_ = rt.log.Sync()
}
