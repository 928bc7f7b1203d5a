package config

import "time"

// Config contains all application settings
type Config struct {
	BindPort      int    `mapstructure:"PORT" yaml:"port"`
	BindHost      string `mapstructure:"HOST" yaml:"host"`
	DatabaseURL   string `mapstructure:"DATABASE_URL" yaml:"database_url"`
	NATSServerURL string `mapstructure:"NATS_URL" yaml:"nats_url"`

	LogLevel  string `mapstructure:"LOG_LEVEL" yaml:"log_level"`
	LogFormat string `mapstructure:"LOG_FORMAT" yaml:"log_format"`

	// Sync
	SyncMaxWorkers       int           `mapstructure:"SYNC_MAX_WORKERS" yaml:"sync_max_workers"`
	SyncLeaseTTL         time.Duration `mapstructure:"SYNC_LEASE_TTL" yaml:"sync_lease_ttl"`
	DeviceConnectTimeout time.Duration `mapstructure:"DEVICE_CONNECT_TIMEOUT" yaml:"device_connect_timeout"`
	DeviceFetchTimeout   time.Duration `mapstructure:"DEVICE_FETCH_TIMEOUT" yaml:"device_fetch_timeout"`
	DeviceBulkTimeout    time.Duration `mapstructure:"DEVICE_BULK_TIMEOUT" yaml:"device_bulk_timeout"`
	DeviceMaxRetries     int           `mapstructure:"DEVICE_MAX_RETRIES" yaml:"device_max_retries"`
	ClockOffsetQuantum   time.Duration `mapstructure:"CLOCK_OFFSET_QUANTUM" yaml:"clock_offset_quantum"`
	StoreTimeout         time.Duration `mapstructure:"STORE_TIMEOUT" yaml:"store_timeout"`

	// Version
	BuildVersion string `yaml:"-"`
	BuildHash    string `yaml:"-"`
	BuildTime    string `yaml:"-"`
}
