package sysacquisition

import (
	base "github.com/Shilirayen01/sys-acquisition/pkg/sysacq"
)

// ErrNotFound is re-exported for convenience.
var ErrNotFound = base.ErrNotFound

// Type aliases so consumers can import the module root directly.
type (
	Config  = base.Config
	Runtime = base.Runtime
	Option  = base.Option

	Sample      = base.Sample
	StoredBatch = base.StoredBatch
	Value       = base.Value
	OpcQuality  = base.OpcQuality
	Machine     = base.Machine
	Tag         = base.Tag

	RepositoryPort    = base.RepositoryPort
	SubscriberPort    = base.SubscriberPort
	SinkPort          = base.SinkPort
	SpoolPort         = base.SpoolPort
	PublisherPort     = base.PublisherPort
	ObservabilityPort = base.ObservabilityPort
	Field             = base.Field
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Runtime construction and dependency overrides.
func New(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.New(cfg, opts...)
}

func WithRepository(r RepositoryPort) Option { return base.WithRepository(r) }

func WithSubscriber(s SubscriberPort) Option { return base.WithSubscriber(s) }

func WithSink(s SinkPort) Option { return base.WithSink(s) }

func WithSpool(s SpoolPort) Option { return base.WithSpool(s) }

func WithPublisher(p PublisherPort) Option { return base.WithPublisher(p) }

func WithObservability(o ObservabilityPort) Option { return base.WithObservability(o) }
