package sysacq

import (
	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

// Aliases for the domain types and ports embedders implement or consume.
type (
	Sample      = domain.Sample
	StoredBatch = domain.StoredBatch
	Value       = domain.Value
	OpcQuality  = domain.OpcQuality
	Machine     = domain.Machine
	Tag         = domain.Tag

	RepositoryPort    = ports.MetadataRepository
	SubscriberPort    = ports.Subscriber
	SinkPort          = ports.SampleSink
	SpoolPort         = ports.Spool
	PublisherPort     = ports.EventPublisher
	ObservabilityPort = ports.Observability
	Field             = ports.Field
)

// ErrNotFound is returned by metadata lookups that match nothing.
var ErrNotFound = ports.ErrNotFound
