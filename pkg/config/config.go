package config

import (
	"fmt"
	"time"
)

// Config is the top-level filetrail collector configuration.
type Config struct {
	ProviderID string         `yaml:"provider_id"` // identifies this collector instance
	Volumes    []string       `yaml:"volumes"`
	Capture    CaptureConfig  `yaml:"capture"`
	Pipeline   PipelineConfig `yaml:"pipeline"`
	Recorder   RecorderConfig `yaml:"recorder"`
	Metrics    MetricsConfig  `yaml:"metrics"`
	Archive    ArchiveConfig  `yaml:"archive"`
}

// CaptureConfig controls the per-volume monitors and classification rules.
type CaptureConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"` // default 1s
	IncludeCloseEvents bool          `yaml:"include_close_events"`
	ExcludedPrefixes   []string      `yaml:"excluded_prefixes"`
	ExcludedExtensions []string      `yaml:"excluded_extensions"`
	// ExcludedProcesses is accepted for config compatibility; journal
	// records carry no originating process, so it is not enforced.
	ExcludedProcesses []string `yaml:"excluded_processes"`
	// UseStableVolumePaths resolves drive letters to reboot-stable volume
	// identifiers; pointer to distinguish unset from false, default true.
	UseStableVolumePaths *bool `yaml:"use_stable_volume_paths"`
	// ForceFallback degrades every volume to the synthetic generator,
	// regardless of journal availability.
	ForceFallback bool `yaml:"force_fallback"`
	// UseInotify substitutes the native notification adapter for volumes
	// without a change journal instead of synthetic generation. The volume
	// string doubles as the watch root.
	UseInotify bool `yaml:"use_inotify"`
}

// StablePaths returns whether drive letters should be resolved to stable
// volume identifiers.
func (c CaptureConfig) StablePaths() bool {
	if c.UseStableVolumePaths == nil {
		return true // default: enabled
	}
	return *c.UseStableVolumePaths
}

// PipelineConfig controls the bounded event queue and its consumer.
type PipelineConfig struct {
	QueueSize int `yaml:"queue_size"` // default 10000
	// Overflow is the full-queue policy: "block", "drop_oldest" or
	// "drop_newest". Default block.
	Overflow      string        `yaml:"overflow"`
	StopGrace     time.Duration `yaml:"stop_grace"`     // worker exit grace on Stop, default 5s
	DrainInterval time.Duration `yaml:"drain_interval"` // consumer receive timeout, default 250ms
}

// RecorderConfig controls the tiered retention store.
type RecorderConfig struct {
	Path          string        `yaml:"path"`
	TTL           time.Duration `yaml:"ttl"`            // default 96h
	SweepInterval time.Duration `yaml:"sweep_interval"` // default 10m
	// InMemory runs badger without files; used by tests and the ctl's
	// dry-run mode.
	InMemory bool `yaml:"in_memory"`
}

// MetricsConfig configures the Prometheus metrics and health endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"` // pointer to distinguish unset from false; default true
	Addr    string `yaml:"addr"`    // listen address; default ":9090"
}

// MetricsEnabled returns whether the metrics server should run.
func (m MetricsConfig) MetricsEnabled() bool {
	if m.Enabled == nil {
		return true // default: enabled
	}
	return *m.Enabled
}

// ArchiveConfig configures capture-file upload to an rclone remote.
type ArchiveConfig struct {
	Enabled    bool              `yaml:"enabled"`
	Type       string            `yaml:"type"`        // rclone backend name, e.g. "s3", "local"
	RemotePath string            `yaml:"remote_path"` // bucket/container + optional prefix
	Params     map[string]string `yaml:"params"`      // rclone config keys
}

// Known overflow policies.
const (
	OverflowBlock      = "block"
	OverflowDropOldest = "drop_oldest"
	OverflowDropNewest = "drop_newest"
)

// Validate checks the configuration for logical errors. Per-volume string
// problems are not checked here; a malformed volume is fatal for that
// volume only and is reported when the pipeline opens it.
func (c *Config) Validate() error {
	if c.Pipeline.QueueSize < 0 {
		return fmt.Errorf("config: queue_size must be positive, got %d", c.Pipeline.QueueSize)
	}
	switch c.Pipeline.Overflow {
	case OverflowBlock, OverflowDropOldest, OverflowDropNewest:
	default:
		return fmt.Errorf("config: unknown overflow policy %q", c.Pipeline.Overflow)
	}
	if c.Capture.PollInterval < 0 {
		return fmt.Errorf("config: poll_interval must be positive, got %v", c.Capture.PollInterval)
	}
	if c.Recorder.TTL < 0 {
		return fmt.Errorf("config: recorder ttl must be positive, got %v", c.Recorder.TTL)
	}
	if c.Archive.Enabled {
		if c.Archive.Type == "" {
			return fmt.Errorf("config: archive.type is required when archive is enabled")
		}
		if c.Archive.RemotePath == "" {
			return fmt.Errorf("config: archive.remote_path is required when archive is enabled")
		}
	}
	return nil
}
