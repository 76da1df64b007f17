// Package opcua opens one session per active machine, subscribes to its
// active tags as monitored items and translates value-change notifications
// into domain samples.
package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

// Config carries the session and subscription parameters shared by all
// machines; endpoints and node ids come from metadata.
type Config struct {
	PublishInterval  time.Duration
	SamplingInterval time.Duration
	KeepAliveCount   uint32
	LifetimeCount    uint32
	QueueSize        uint32
	SecurityMode     string
	SecurityPolicy   string
	ApplicationName  string
	ReconnectGrace   time.Duration
}

func (c *Config) applyDefaults() {
	if c.PublishInterval <= 0 {
		c.PublishInterval = time.Second
	}
	if c.SamplingInterval <= 0 {
		c.SamplingInterval = 500 * time.Millisecond
	}
	if c.KeepAliveCount == 0 {
		c.KeepAliveCount = 10
	}
	if c.LifetimeCount == 0 {
		c.LifetimeCount = 100
	}
	if c.QueueSize == 0 {
		c.QueueSize = 10
	}
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "sys-acquisition"
	}
	if c.ReconnectGrace <= 0 {
		c.ReconnectGrace = 2 * time.Second
	}
}

// Subscriber manages the fleet's sessions.
type Subscriber struct {
	cfg      Config
	machines []domain.Machine
	obs      ports.Observability

	mu       sync.Mutex
	sessions []*session
	out      chan<- *domain.Sample
	started  bool
}

// session is the per-machine connection state.
type session struct {
	machine   domain.Machine
	client    *opcua.Client
	sub       *opcua.Subscription
	cancel    context.CancelFunc
	handleMap map[uint32]domain.Tag
	wg        sync.WaitGroup
}

func NewSubscriber(cfg Config, machines []domain.Machine, obs ports.Observability) *Subscriber {
	cfg.applyDefaults()
	active := make([]domain.Machine, 0, len(machines))
	for _, m := range machines {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return &Subscriber{cfg: cfg, machines: active, obs: obs}
}

// Start opens a session per machine. A machine that fails to connect is
// logged and skipped; the worker loop's health check picks it up via
// Reconnect on a later tick.
func (s *Subscriber) Start(out chan<- *domain.Sample) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("opcua subscriber already started")
	}
	s.out = out
	s.started = true
	s.mu.Unlock()

	var sessions []*session
	for _, m := range s.machines {
		sess, err := s.openSession(m, out)
		if err != nil {
			s.obs.LogError("session_open_failed", err,
				ports.Field{Key: "machine", Value: m.Name},
				ports.Field{Key: "endpoint", Value: m.OpcEndpoint})
			continue
		}
		sessions = append(sessions, sess)
		s.obs.LogInfo("session_opened",
			ports.Field{Key: "machine", Value: m.Name},
			ports.Field{Key: "tags", Value: len(sess.handleMap)})
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()

	s.obs.SetGauge("acq_connected_sessions", float64(len(sessions)))
	if len(sessions) == 0 && len(s.machines) > 0 {
		return fmt.Errorf("opcua: no session could be opened for %d machines", len(s.machines))
	}
	return nil
}

func (s *Subscriber) openSession(m domain.Machine, out chan<- *domain.Sample) (*session, error) {
	ctx, cancel := context.WithCancel(context.Background())

	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(s.cfg.SecurityPolicy),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.AutoReconnect(true),
		opcua.AuthAnonymous(),
	}

	client, err := opcua.NewClient(m.OpcEndpoint, opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("new client %s: %w", m.OpcEndpoint, err)
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("connect %s: %w", m.OpcEndpoint, err)
	}

	tags := m.ActiveTags()
	notifyCh := make(chan *opcua.PublishNotificationData, len(tags)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval:          s.cfg.PublishInterval,
		LifetimeCount:     s.cfg.LifetimeCount,
		MaxKeepAliveCount: s.cfg.KeepAliveCount,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return nil, fmt.Errorf("subscribe %s: %w", m.OpcEndpoint, err)
	}

	sess := &session{
		machine:   m,
		client:    client,
		sub:       sub,
		cancel:    cancel,
		handleMap: make(map[uint32]domain.Tag, len(tags)),
	}

	for i, tag := range tags {
		nodeID, err := ua.ParseNodeID(tag.NodeID)
		if err != nil {
			s.teardown(ctx, sess)
			return nil, fmt.Errorf("parse node id %q: %w", tag.NodeID, err)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		req.RequestedParameters.SamplingInterval = float64(s.cfg.SamplingInterval / time.Millisecond)
		req.RequestedParameters.QueueSize = s.cfg.QueueSize
		req.RequestedParameters.DiscardOldest = true

		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			s.teardown(ctx, sess)
			return nil, fmt.Errorf("monitor %q: %w", tag.NodeID, err)
		}
		if len(res.Results) == 0 || res.Results[0].StatusCode != ua.StatusOK {
			s.teardown(ctx, sess)
			return nil, fmt.Errorf("monitor %q rejected", tag.NodeID)
		}
		sess.handleMap[handle] = tag
	}

	sess.wg.Add(1)
	go s.consume(ctx, sess, notifyCh, out)
	return sess, nil
}

// Stop deletes the subscriptions and closes all sessions.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = nil
	s.started = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	for _, sess := range sessions {
		sess.cancel()
		if sess.sub != nil {
			if e := sess.sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
				err = errors.Join(err, e)
			}
		}
		if sess.client != nil {
			if e := sess.client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
				err = errors.Join(err, e)
			}
		}
		sess.wg.Wait()
	}
	s.obs.SetGauge("acq_connected_sessions", 0)
	return err
}

// Reconnect is stop, a short grace delay, then start against the channel
// from the last Start.
func (s *Subscriber) Reconnect() error {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	if out == nil {
		return fmt.Errorf("opcua: reconnect before start")
	}

	if err := s.Stop(); err != nil {
		s.obs.LogError("reconnect_stop_failed", err)
	}
	time.Sleep(s.cfg.ReconnectGrace)
	return s.Start(out)
}

// Healthy reports whether every configured machine has a connected session.
func (s *Subscriber) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false
	}
	if len(s.sessions) < len(s.machines) {
		return false
	}
	for _, sess := range s.sessions {
		if sess.client.State() != opcua.Connected {
			return false
		}
	}
	return true
}

func (s *Subscriber) consume(ctx context.Context, sess *session, ch <-chan *opcua.PublishNotificationData, out chan<- *domain.Sample) {
	defer sess.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				s.obs.LogError("notification_error", notif.Error,
					ports.Field{Key: "machine", Value: sess.machine.Name})
				continue
			}
			s.processNotification(ctx, sess, notif.Value, out)
		}
	}
}

func (s *Subscriber) processNotification(ctx context.Context, sess *session, val any, out chan<- *domain.Sample) {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return
	}

	for _, item := range data.MonitoredItems {
		tag, ok := sess.handleMap[item.ClientHandle]
		if !ok {
			continue
		}
		sample := SampleFromDataValue(tag.NodeID, item.Value)

		select {
		case <-ctx.Done():
			return
		case out <- sample:
		}
	}
}

// SampleFromDataValue translates one transport DataValue into a Sample,
// deriving the quality from the raw status word.
func SampleFromDataValue(nodeID string, dv *ua.DataValue) *domain.Sample {
	s := &domain.Sample{
		NodeID:            nodeID,
		Quality:           domain.QualityFromStatus(uint32(dv.Status)),
		SourceTimestamp:   dv.SourceTimestamp,
		ServerTimestamp:   dv.ServerTimestamp,
		ReceivedTimestamp: time.Now().UTC(),
	}
	if dv.Value != nil {
		s.Value = domain.ValueOf(dv.Value.Value())
	}
	return s
}

func (s *Subscriber) teardown(ctx context.Context, sess *session) {
	sess.cancel()
	if sess.sub != nil {
		_ = sess.sub.Cancel(ctx)
	}
	if sess.client != nil {
		_ = sess.client.Close(ctx)
	}
}

// normalizeSecurityMode maps loose operator spellings onto the transport's
// expected values.
func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

var _ ports.Subscriber = (*Subscriber)(nil)
