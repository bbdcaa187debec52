package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a filetrail configuration file.
// Supports environment variable expansion in string values via ${VAR} syntax.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with their documented defaults. Exported
// so programmatic construction (tests, ctl) gets the same treatment as
// file loading.
func (c *Config) ApplyDefaults() {
	if c.ProviderID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "filetrail"
		}
		c.ProviderID = "filetrail-" + host
	}
	if c.Capture.PollInterval == 0 {
		c.Capture.PollInterval = time.Second
	}
	if c.Pipeline.QueueSize == 0 {
		c.Pipeline.QueueSize = 10000
	}
	if c.Pipeline.Overflow == "" {
		c.Pipeline.Overflow = OverflowBlock
	}
	if c.Pipeline.StopGrace == 0 {
		c.Pipeline.StopGrace = 5 * time.Second
	}
	if c.Pipeline.DrainInterval == 0 {
		c.Pipeline.DrainInterval = 250 * time.Millisecond
	}
	if c.Recorder.Path == "" {
		c.Recorder.Path = "/var/lib/filetrail/store"
	}
	if c.Recorder.TTL == 0 {
		c.Recorder.TTL = 96 * time.Hour // 4 days
	}
	if c.Recorder.SweepInterval == 0 {
		c.Recorder.SweepInterval = 10 * time.Minute
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}
