package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Opc        OpcConfig        `yaml:"opc"`
	Batch      BatchConfig      `yaml:"batch"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Storage    StorageConfig    `yaml:"storage"`
	EventBus   EventBusConfig   `yaml:"event_bus"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type OpcConfig struct {
	UseSimulator     bool          `yaml:"use_simulator"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	KeepAliveCount   uint32        `yaml:"keep_alive_count"`
	LifetimeCount    uint32        `yaml:"lifetime_count"`
	QueueSize        uint32        `yaml:"queue_size"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	ReconnectGrace   time.Duration `yaml:"reconnect_grace"`
}

type BatchConfig struct {
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
	AutoFlushThreshold   int `yaml:"auto_flush_threshold"`
	MaxChunk             int `yaml:"max_chunk"`
}

func (b BatchConfig) FlushInterval() time.Duration {
	return time.Duration(b.FlushIntervalSeconds) * time.Second
}

type ResilienceConfig struct {
	StoreForwardPath       string `yaml:"store_forward_path"`
	MaxLocalStorageRecords int    `yaml:"max_local_storage_records"`
}

type StorageConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Table            string `yaml:"table"`
}

type EventBusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Channel  string `yaml:"channel"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Opc.PublishInterval == 0 {
		c.Opc.PublishInterval = time.Second
	}
	if c.Opc.SamplingInterval == 0 {
		c.Opc.SamplingInterval = 500 * time.Millisecond
	}
	if c.Opc.KeepAliveCount == 0 {
		c.Opc.KeepAliveCount = 10
	}
	if c.Opc.LifetimeCount == 0 {
		c.Opc.LifetimeCount = 100
	}
	if c.Opc.QueueSize == 0 {
		c.Opc.QueueSize = 10
	}
	if c.Opc.SecurityMode == "" {
		c.Opc.SecurityMode = "None"
	}
	if c.Opc.SecurityPolicy == "" {
		c.Opc.SecurityPolicy = "None"
	}
	if c.Opc.ApplicationName == "" {
		c.Opc.ApplicationName = "sys-acquisition"
	}
	if c.Opc.ReconnectGrace == 0 {
		c.Opc.ReconnectGrace = 2 * time.Second
	}

	if c.Batch.FlushIntervalSeconds == 0 {
		c.Batch.FlushIntervalSeconds = 10
	}
	if c.Batch.AutoFlushThreshold == 0 {
		c.Batch.AutoFlushThreshold = 5_000
	}
	if c.Batch.MaxChunk == 0 {
		c.Batch.MaxChunk = 1_000
	}

	if c.Resilience.StoreForwardPath == "" {
		c.Resilience.StoreForwardPath = "./data/spool"
	}
	if c.Resilience.MaxLocalStorageRecords == 0 {
		c.Resilience.MaxLocalStorageRecords = 100_000
	}

	if c.Storage.Table == "" {
		c.Storage.Table = "tag_values"
	}

	if c.EventBus.Channel == "" {
		c.EventBus.Channel = "sys-acquisition.samples"
	}
	if c.EventBus.Addr == "" {
		c.EventBus.Addr = "localhost:6379"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
}

func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage.connection_string is required")
	}
	if c.Batch.FlushIntervalSeconds < 0 {
		return fmt.Errorf("batch.flush_interval_seconds must be positive")
	}
	if c.Batch.AutoFlushThreshold < 0 || c.Batch.MaxChunk < 0 {
		return fmt.Errorf("batch thresholds must be positive")
	}
	if c.Resilience.MaxLocalStorageRecords < 0 {
		return fmt.Errorf("resilience.max_local_storage_records must be positive")
	}
	if c.Resilience.StoreForwardPath == "" {
		return fmt.Errorf("resilience.store_forward_path is required")
	}
	return nil
}
