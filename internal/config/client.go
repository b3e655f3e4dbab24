package config

import (
	"os"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// ClientConfig configures the focus-client binary. Zero values fall back to
// the defaults in DefaultClientConfig.
type ClientConfig struct {
	Server    string        `yaml:"server"`
	UserID    string        `yaml:"user_id"`
	Debounce  time.Duration `yaml:"debounce"`
	Heartbeat time.Duration `yaml:"heartbeat"`

	Thresholds ClientThresholds `yaml:"thresholds"`
}

type ClientThresholds struct {
	EAR        float64 `yaml:"ear"`
	HeadOffset float64 `yaml:"head_offset"`
	WindowSize int     `yaml:"window_size"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Server:    "ws://localhost:8000/ws",
		UserID:    "user1",
		Debounce:  500 * time.Millisecond,
		Heartbeat: 5 * time.Second,
		Thresholds: ClientThresholds{
			EAR:        0.21,
			HeadOffset: 0.08,
			WindowSize: 5,
		},
	}
}

// LoadClientConfig reads path on top of the defaults. An empty path returns
// the defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, xerrors.Errorf("read client config: %w", err)
	}
	var file ClientConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return cfg, xerrors.Errorf("parse client config %s: %w", path, err)
	}
	cfg.merge(file)
	return cfg, nil
}

func (c *ClientConfig) merge(o ClientConfig) {
	if o.Server != "" {
		c.Server = o.Server
	}
	if o.UserID != "" {
		c.UserID = o.UserID
	}
	if o.Debounce > 0 {
		c.Debounce = o.Debounce
	}
	if o.Heartbeat > 0 {
		c.Heartbeat = o.Heartbeat
	}
	if o.Thresholds.EAR > 0 {
		c.Thresholds.EAR = o.Thresholds.EAR
	}
	if o.Thresholds.HeadOffset > 0 {
		c.Thresholds.HeadOffset = o.Thresholds.HeadOffset
	}
	if o.Thresholds.WindowSize > 0 {
		c.Thresholds.WindowSize = o.Thresholds.WindowSize
	}
}
