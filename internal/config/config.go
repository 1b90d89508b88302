// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage controls where content-addressed artifacts are mirrored.
type Storage struct {
	Backend  string `mapstructure:"backend"` // "local" or "s3"
	Root     string `mapstructure:"root"`
	Compress bool   `mapstructure:"compress"`
	S3Bucket string `mapstructure:"s3_bucket"`
	S3Prefix string `mapstructure:"s3_prefix"`
}

// State controls the relational job-queue backend.
type State struct {
	Driver        string      `mapstructure:"driver"` // "postgres" or "sqlite"
	DSN           string      `mapstructure:"dsn"`
	MigrationsDir string      `mapstructure:"migrations_dir"`
	StatsMirror   StatsMirror `mapstructure:"stats_mirror"`
}

// StatsMirror optionally mirrors queue stats snapshots into ClickHouse as
// an append-only time series for dashboards. Clickhouse is a host:port
// address; an empty value disables mirroring.
type StatsMirror struct {
	Clickhouse string `mapstructure:"clickhouse"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// Runner controls ingest/dispatch worker tuning, shared across both
// pipelines per spec.md §6.
type Runner struct {
	BatchSize          int           `mapstructure:"batch_size"`
	MaxRetries         int           `mapstructure:"max_retries"`
	EnableDiscovery    bool          `mapstructure:"enable_discovery"`
	MaxWorkers         int           `mapstructure:"max_workers"`
	LeaseSeconds       int           `mapstructure:"lease_seconds"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	BaseBackoffSeconds float64       `mapstructure:"base_backoff_seconds"`
	MaxBackoffSeconds  float64       `mapstructure:"max_backoff_seconds"`
	RespectRetryAfter  bool          `mapstructure:"respect_retry_after"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
}

// Source is one upstream connector's static configuration. IncludeGlobs and
// ExcludeGlobs are doublestar patterns (supporting "**") matched against a
// discovered item's request_uri to decide whether discovery may enqueue it;
// an empty IncludeGlobs matches everything.
type Source struct {
	Name              string            `mapstructure:"name"`
	BaseURI           string            `mapstructure:"base_uri"`
	Headers           map[string]string `mapstructure:"headers"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second"`
	IncludeGlobs      []string          `mapstructure:"include_globs"`
	ExcludeGlobs      []string          `mapstructure:"exclude_globs"`
}

// Seed is one work item to enqueue at startup, for bootstrapping a fresh
// queue without a separate seeding tool.
type Seed struct {
	SourceSystem string `mapstructure:"source_system"`
	SourceName   string `mapstructure:"source_name"`
	ResourceType string `mapstructure:"resource_type"`
	ResourceID   string `mapstructure:"resource_id"`
	RequestURI   string `mapstructure:"request_uri"`
	Priority     int    `mapstructure:"priority"`
}

// Tracing mirrors the teacher's tracing section, unchanged shape.
type Tracing struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Environment      string  `mapstructure:"environment"`
	SamplingStrategy string  `mapstructure:"sampling_strategy"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

// Observability mirrors the teacher's section, renamed fields aside: log
// level and metrics port are ambient regardless of what spec.md's
// Non-goals exclude from the domain surface.
type Observability struct {
	MetricsPort int     `mapstructure:"metrics_port"`
	LogLevel    string  `mapstructure:"log_level"`
	LogFile     string  `mapstructure:"log_file"`
	Tracing     Tracing `mapstructure:"tracing"`
}

// Config is the root configuration mapping, sections named per spec.md §6.
type Config struct {
	Storage       Storage       `mapstructure:"storage"`
	State         State         `mapstructure:"state"`
	Runner        Runner        `mapstructure:"runner"`
	Sources       []Source      `mapstructure:"sources"`
	Seeds         []Seed        `mapstructure:"seeds"`
	Observability Observability `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Storage: Storage{
			Backend: "local",
			Root:    "./lake",
		},
		State: State{
			Driver:        "sqlite",
			DSN:           "./orchestrator.db",
			MigrationsDir: "internal/store/migrations",
			StatsMirror:   StatsMirror{BufferSize: 256},
		},
		Runner: Runner{
			BatchSize:          10,
			MaxRetries:         3,
			EnableDiscovery:    true,
			MaxWorkers:         4,
			LeaseSeconds:       120,
			HeartbeatInterval:  30 * time.Second,
			BaseBackoffSeconds: 0.25,
			MaxBackoffSeconds:  60,
			RespectRetryAfter:  true,
			RequestsPerSecond:  0,
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
			Tracing:     Tracing{Enabled: false, SamplingStrategy: "probabilistic", SamplingRate: 0.1},
		},
	}
}

// Load reads configuration from a YAML file with environment overrides.
// A missing file is not an error: defaults (and any env overrides) apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("storage.root", def.Storage.Root)
	v.SetDefault("storage.compress", def.Storage.Compress)

	v.SetDefault("state.driver", def.State.Driver)
	v.SetDefault("state.dsn", def.State.DSN)
	v.SetDefault("state.migrations_dir", def.State.MigrationsDir)
	v.SetDefault("state.stats_mirror.clickhouse", def.State.StatsMirror.Clickhouse)
	v.SetDefault("state.stats_mirror.buffer_size", def.State.StatsMirror.BufferSize)

	v.SetDefault("runner.batch_size", def.Runner.BatchSize)
	v.SetDefault("runner.max_retries", def.Runner.MaxRetries)
	v.SetDefault("runner.enable_discovery", def.Runner.EnableDiscovery)
	v.SetDefault("runner.max_workers", def.Runner.MaxWorkers)
	v.SetDefault("runner.lease_seconds", def.Runner.LeaseSeconds)
	v.SetDefault("runner.heartbeat_interval", def.Runner.HeartbeatInterval)
	v.SetDefault("runner.base_backoff_seconds", def.Runner.BaseBackoffSeconds)
	v.SetDefault("runner.max_backoff_seconds", def.Runner.MaxBackoffSeconds)
	v.SetDefault("runner.respect_retry_after", def.Runner.RespectRetryAfter)
	v.SetDefault("runner.requests_per_second", def.Runner.RequestsPerSecond)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.sampling_strategy", def.Observability.Tracing.SamplingStrategy)
	v.SetDefault("observability.tracing.sampling_rate", def.Observability.Tracing.SamplingRate)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Runner.BatchSize < 1 {
		return fmt.Errorf("runner.batch_size must be >= 1")
	}
	if cfg.Runner.MaxWorkers < 1 {
		return fmt.Errorf("runner.max_workers must be >= 1")
	}
	if cfg.Runner.LeaseSeconds < 1 {
		return fmt.Errorf("runner.lease_seconds must be >= 1")
	}
	if cfg.Runner.HeartbeatInterval <= 0 || time.Duration(cfg.Runner.LeaseSeconds)*time.Second < cfg.Runner.HeartbeatInterval*2 {
		return fmt.Errorf("runner.heartbeat_interval must be >0 and <= lease_seconds/2")
	}
	if cfg.Runner.RequestsPerSecond < 0 {
		return fmt.Errorf("runner.requests_per_second must be >= 0")
	}
	if cfg.State.Driver != "postgres" && cfg.State.Driver != "sqlite" {
		return fmt.Errorf("state.driver must be \"postgres\" or \"sqlite\"")
	}
	if cfg.Storage.Backend != "local" && cfg.Storage.Backend != "s3" {
		return fmt.Errorf("storage.backend must be \"local\" or \"s3\"")
	}
	if cfg.Storage.Backend == "s3" && cfg.Storage.S3Bucket == "" {
		return fmt.Errorf("storage.s3_bucket required when storage.backend is \"s3\"")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
