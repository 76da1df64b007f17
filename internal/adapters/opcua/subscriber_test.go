package opcua

import (
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
)

func TestSampleFromDataValue(t *testing.T) {
	src := time.Date(2026, 8, 6, 10, 0, 0, 0, time.UTC)
	srv := src.Add(50 * time.Millisecond)

	variant, err := ua.NewVariant(float32(21.5))
	if err != nil {
		t.Fatalf("variant: %v", err)
	}
	dv := &ua.DataValue{
		Value:           variant,
		Status:          ua.StatusCode(0x40000000),
		SourceTimestamp: src,
		ServerTimestamp: srv,
	}

	s := SampleFromDataValue("ns=2;s=Press01.Temperature", dv)
	if s.NodeID != "ns=2;s=Press01.Temperature" {
		t.Errorf("node id = %q", s.NodeID)
	}
	if !s.Quality.IsUncertain() {
		t.Errorf("quality = %s, want Uncertain", s.Quality)
	}
	if s.Value.Kind != domain.ValueFloat || s.Value.Bits != 32 || s.Value.Float != float64(float32(21.5)) {
		t.Errorf("value = %+v", s.Value)
	}
	if !s.SourceTimestamp.Equal(src) || !s.ServerTimestamp.Equal(srv) {
		t.Errorf("timestamps not carried over")
	}
	if s.ReceivedTimestamp.IsZero() {
		t.Error("received timestamp not stamped")
	}
}

func TestSampleFromDataValueNilVariant(t *testing.T) {
	dv := &ua.DataValue{Status: ua.StatusCode(0x80000000)}
	s := SampleFromDataValue("ns=2;s=T", dv)
	if !s.Quality.IsBad() {
		t.Errorf("quality = %s, want Bad", s.Quality)
	}
	if s.Value.Kind != domain.ValueEmpty {
		t.Errorf("value kind = %d, want empty", s.Value.Kind)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.PublishInterval != time.Second {
		t.Errorf("publish interval = %s", cfg.PublishInterval)
	}
	if cfg.SamplingInterval != 500*time.Millisecond {
		t.Errorf("sampling interval = %s", cfg.SamplingInterval)
	}
	if cfg.KeepAliveCount != 10 || cfg.LifetimeCount != 100 || cfg.QueueSize != 10 {
		t.Errorf("subscription counts = %d/%d/%d", cfg.KeepAliveCount, cfg.LifetimeCount, cfg.QueueSize)
	}
}

func TestNewSubscriberFiltersInactiveMachines(t *testing.T) {
	machines := []domain.Machine{
		{ID: 1, Name: "on", IsActive: true},
		{ID: 2, Name: "off", IsActive: false},
	}
	s := NewSubscriber(Config{}, machines, nil)
	if len(s.machines) != 1 || s.machines[0].Name != "on" {
		t.Fatalf("inactive machine not filtered: %+v", s.machines)
	}
}

func TestNormalizeSecurityMode(t *testing.T) {
	cases := map[string]string{
		"sign":            "Sign",
		"SignAndEncrypt":  "SignAndEncrypt",
		"sign+encrypt":    "SignAndEncrypt",
		"none":            "None",
		"":                "None",
		"anything-else":   "None",
	}
	for in, want := range cases {
		if got := normalizeSecurityMode(in); got != want {
			t.Errorf("normalizeSecurityMode(%q) = %q, want %q", in, got, want)
		}
	}
}
