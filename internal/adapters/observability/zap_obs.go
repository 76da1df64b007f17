// Package observability backs the Observability port with zap structured
// logs and Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

type ZapObs struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// New registers the acquisition metrics on the given registerer and wires
// them behind the port. Pass prometheus.DefaultRegisterer in production.
func New(log *zap.Logger, reg prometheus.Registerer) *ZapObs {
	ingested := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acq_samples_ingested_total",
		Help: "Samples accepted by validation and handed to the sink.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acq_samples_dropped_total",
		Help: "Samples dropped for unknown tags or failed validation.",
	})
	persisted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acq_samples_persisted_total",
		Help: "Samples written to the relational store.",
	})
	spooled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acq_spooled_records_total",
		Help: "Samples diverted to the store-and-forward spool.",
	})
	drained := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acq_drained_records_total",
		Help: "Spooled samples replayed into the store after recovery.",
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "acq_pending_samples",
		Help: "Samples buffered in the sink awaiting flush.",
	})
	healthy := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "acq_sink_healthy",
		Help: "1 while the relational store is reachable.",
	})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "acq_connected_sessions",
		Help: "Open OPC UA sessions.",
	})
	flushLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "acq_flush_latency_seconds",
		Help:    "Duration of one sink flush including all chunks.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg.MustRegister(ingested, dropped, persisted, spooled, drained,
		pending, healthy, sessions, flushLatency)

	return &ZapObs{
		log: log,
		counters: map[string]prometheus.Counter{
			"acq_samples_ingested_total":  ingested,
			"acq_samples_dropped_total":   dropped,
			"acq_samples_persisted_total": persisted,
			"acq_spooled_records_total":   spooled,
			"acq_drained_records_total":   drained,
		},
		gauges: map[string]prometheus.Gauge{
			"acq_pending_samples":     pending,
			"acq_sink_healthy":        healthy,
			"acq_connected_sessions":  sessions,
		},
		histos: map[string]prometheus.Observer{
			"acq_flush_latency_seconds": flushLatency,
		},
	}
}

func (z *ZapObs) LogInfo(msg string, fields ...ports.Field) {
	z.log.Info(msg, zapFields(fields)...)
}

func (z *ZapObs) LogWarn(msg string, fields ...ports.Field) {
	z.log.Warn(msg, zapFields(fields)...)
}

func (z *ZapObs) LogError(msg string, err error, fields ...ports.Field) {
	z.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (z *ZapObs) LogCritical(msg string, err error, fields ...ports.Field) {
	// DPanic: fatal in development, a loud error in production. The worker
	// loop keeps running.
	z.log.DPanic(msg, append(zapFields(fields), zap.Error(err))...)
}

func (z *ZapObs) IncCounter(name string, v float64) {
	if c, ok := z.counters[name]; ok {
		c.Add(v)
	}
}

func (z *ZapObs) SetGauge(name string, v float64) {
	if g, ok := z.gauges[name]; ok {
		g.Set(v)
	}
}

func (z *ZapObs) ObserveLatency(name string, seconds float64) {
	if h, ok := z.histos[name]; ok {
		h.Observe(seconds)
	}
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*ZapObs)(nil)
