// Package simulator is the synthetic stand-in for the OPC UA subscriber,
// used for testing without hardware. It emits samples matching each tag's
// logical type and bounds at the configured sampling interval.
package simulator

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

type Subscriber struct {
	interval time.Duration
	machines []domain.Machine
	obs      ports.Observability

	mu      sync.Mutex
	out     chan<- *domain.Sample
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool

	rng *rand.Rand
}

func NewSubscriber(interval time.Duration, machines []domain.Machine, obs ports.Observability) *Subscriber {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	active := make([]domain.Machine, 0, len(machines))
	for _, m := range machines {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return &Subscriber{
		interval: interval,
		machines: active,
		obs:      obs,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Subscriber) Start(out chan<- *domain.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.out = out
	s.stop = make(chan struct{})
	s.started = true

	s.wg.Add(1)
	go s.run(s.stop, out)
	if s.obs != nil {
		s.obs.LogInfo("simulator_started", ports.Field{Key: "machines", Value: len(s.machines)})
	}
	return nil
}

func (s *Subscriber) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	close(s.stop)
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Subscriber) Reconnect() error {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	if out == nil {
		return nil
	}
	if err := s.Stop(); err != nil {
		return err
	}
	return s.Start(out)
}

func (s *Subscriber) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Subscriber) run(stop <-chan struct{}, out chan<- *domain.Sample) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, m := range s.machines {
				for _, tag := range m.ActiveTags() {
					sample := s.synthesize(tag)
					select {
					case <-stop:
						return
					case out <- sample:
					}
				}
			}
		}
	}
}

// synthesize produces one plausible sample for the tag: values respect the
// logical type, the configured bounds and the allowed list.
func (s *Subscriber) synthesize(tag domain.Tag) *domain.Sample {
	now := time.Now().UTC()
	return &domain.Sample{
		NodeID:            tag.NodeID,
		Value:             s.synthValue(tag),
		Quality:           domain.QualityFromStatus(0),
		SourceTimestamp:   now,
		ServerTimestamp:   now,
		ReceivedTimestamp: now,
	}
}

func (s *Subscriber) synthValue(tag domain.Tag) domain.Value {
	if allowed := tag.AllowedList(); len(allowed) > 0 {
		return domain.TextValue(allowed[s.intn(len(allowed))])
	}

	lo, hi := bounds(tag)
	switch strings.ToLower(tag.DataType) {
	case "boolean", "bool":
		return domain.BoolValue(s.intn(2) == 0)
	case "string":
		return domain.TextValue(tag.Name + "-" + now36(s.intn(1 << 16)))
	case "int16":
		return domain.IntValue(int64(s.between(lo, hi)), 16)
	case "int32":
		return domain.IntValue(int64(s.between(lo, hi)), 32)
	case "int64", "int":
		return domain.IntValue(int64(s.between(lo, hi)), 64)
	case "uint16":
		return domain.UintValue(uint64(s.between(lo, hi)), 16)
	case "uint32":
		return domain.UintValue(uint64(s.between(lo, hi)), 32)
	case "uint64", "uint":
		return domain.UintValue(uint64(s.between(lo, hi)), 64)
	case "float":
		return domain.FloatValue(float64(float32(s.between(lo, hi))), 32)
	default:
		return domain.FloatValue(s.between(lo, hi), 64)
	}
}

func bounds(tag domain.Tag) (float64, float64) {
	lo, hi := 0.0, 100.0
	if tag.MinValue != nil {
		lo = *tag.MinValue
	}
	if tag.MaxValue != nil {
		hi = *tag.MaxValue
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func (s *Subscriber) between(lo, hi float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Subscriber) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func now36(n int) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{digits[n%36]}, b...)
		n /= 36
	}
	return string(b)
}

var _ ports.Subscriber = (*Subscriber)(nil)
