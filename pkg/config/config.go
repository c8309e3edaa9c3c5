package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server defaults
const (
	DefaultPort    = "8080"
	DefaultDataDir = "./data/loadpulse"
)

// Field domain defaults applied when a rule is absent from the config file.
// Response times above a minute are treated as timeouts by every load engine
// we ingest from, so 60s is the hard ceiling.
const (
	DefaultResponseTimeMin = 0
	DefaultResponseTimeMax = 60000 // ms
	DefaultThroughputMin   = 0
	DefaultThroughputMax   = 1_000_000 // req/s
	DefaultErrorRateMin    = 0
	DefaultErrorRateMax    = 100 // percent
	DefaultActiveUsersMin  = 0
	DefaultActiveUsersMax  = 1_000_000
)

// Normalization defaults
const (
	// DefaultMaxAge is how far in the past a raw timestamp may be before it
	// is re-stamped to the normalization time.
	DefaultMaxAge = 5 * time.Minute
)

// Cleaning defaults
const (
	DefaultOutlierThreshold = 3.0 // std-dev multiplier
	DefaultSmoothingWindow  = 5   // points on each side
)

// Downsampling defaults
const (
	DefaultMaxPoints = 1000
	DefaultCacheSize = 256
)

// Producer loop defaults
const (
	DefaultPollInterval   = 5 * time.Second
	DefaultWorkerInterval = 1 * time.Second
)

// Ingest timeouts and limits
const (
	IngestTimeout       = 5 * time.Second
	SeriesQueryTimeout  = 10 * time.Second
	StatsTimeout        = 5 * time.Second
	MaxRequestBodyBytes = 4 << 20 // 4 MB
	MaxPointsPerRequest = 10000
)

// Store defaults
const (
	DefaultRetention   = 6 * time.Hour
	CleanupInterval    = 10 * time.Minute
	DefaultMaxMemoryMB = 48
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Config is the top-level file configuration. Fields map 1:1 to
// config.example.yaml; absent fields take the package defaults above.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Rules      RulesConfig      `yaml:"rules"`
	Cleaning   CleaningConfig   `yaml:"cleaning"`
	Downsample DownsampleConfig `yaml:"downsample"`
	Poll       PollConfig       `yaml:"poll"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// ServerConfig holds the HTTP listener and store settings.
type ServerConfig struct {
	Port string `yaml:"port"`

	// DataDir is where the badger-backed series buffer lives when
	// persistent mode is enabled. Ignored when Persistent is false.
	DataDir    string `yaml:"data_dir"`
	Persistent bool   `yaml:"persistent"`

	// Retention bounds the series buffer; points older than this are
	// dropped by the cleanup task.
	Retention time.Duration `yaml:"retention"`
}

// Domain is an inclusive [min, max] range for one numeric field.
type Domain struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// RulesConfig configures per-field validation domains and timestamp aging.
type RulesConfig struct {
	ResponseTime Domain        `yaml:"response_time"`
	Throughput   Domain        `yaml:"throughput"`
	ErrorRate    Domain        `yaml:"error_rate"`
	ActiveUsers  Domain        `yaml:"active_users"`
	MaxAge       time.Duration `yaml:"max_age"`
}

// CleaningConfig configures the batch cleaning pass.
type CleaningConfig struct {
	RemoveOutliers    bool    `yaml:"remove_outliers"`
	OutlierThreshold  float64 `yaml:"outlier_threshold"`
	SmoothingWindow   int     `yaml:"smoothing_window"`
	FillMissingValues bool    `yaml:"fill_missing_values"`
}

// DownsampleConfig configures the downsampler and its result cache.
type DownsampleConfig struct {
	MaxPoints         int    `yaml:"max_points"`
	Strategy          string `yaml:"strategy"` // uniform | adaptive | importance
	PreserveKeyPoints bool   `yaml:"preserve_key_points"`
	CacheEnabled      bool   `yaml:"cache_enabled"`
	CacheSize         int    `yaml:"cache_size"`
}

// PollConfig configures the status-poll producer. Disabled when URL is empty.
type PollConfig struct {
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
}

// WorkerConfig configures the in-process worker producer.
type WorkerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns a Config populated with every package default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the YAML config at path, applying defaults for
// absent fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = DefaultDataDir
	}
	if c.Server.Retention <= 0 {
		c.Server.Retention = DefaultRetention
	}

	if c.Rules.ResponseTime == (Domain{}) {
		c.Rules.ResponseTime = Domain{Min: DefaultResponseTimeMin, Max: DefaultResponseTimeMax}
	}
	if c.Rules.Throughput == (Domain{}) {
		c.Rules.Throughput = Domain{Min: DefaultThroughputMin, Max: DefaultThroughputMax}
	}
	if c.Rules.ErrorRate == (Domain{}) {
		c.Rules.ErrorRate = Domain{Min: DefaultErrorRateMin, Max: DefaultErrorRateMax}
	}
	if c.Rules.ActiveUsers == (Domain{}) {
		c.Rules.ActiveUsers = Domain{Min: DefaultActiveUsersMin, Max: DefaultActiveUsersMax}
	}
	if c.Rules.MaxAge <= 0 {
		c.Rules.MaxAge = DefaultMaxAge
	}

	if c.Cleaning.OutlierThreshold <= 0 {
		c.Cleaning.OutlierThreshold = DefaultOutlierThreshold
	}
	if c.Cleaning.SmoothingWindow <= 0 {
		c.Cleaning.SmoothingWindow = DefaultSmoothingWindow
	}

	if c.Downsample.MaxPoints <= 0 {
		c.Downsample.MaxPoints = DefaultMaxPoints
	}
	if c.Downsample.Strategy == "" {
		c.Downsample.Strategy = "adaptive"
	}
	if c.Downsample.CacheSize <= 0 {
		c.Downsample.CacheSize = DefaultCacheSize
	}

	if c.Poll.Interval <= 0 {
		c.Poll.Interval = DefaultPollInterval
	}
	if c.Worker.Interval <= 0 {
		c.Worker.Interval = DefaultWorkerInterval
	}
}
