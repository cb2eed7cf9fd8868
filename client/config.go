package client

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the JSON file shape for configuring a client without code. All
// fields except URL are optional; zero values fall back to the defaults.
type Config struct {
	URL                 string          `json:"url"`
	Token               string          `json:"token,omitempty"`
	RequestTimeoutMS    int             `json:"requestTimeoutMs,omitempty"`
	ConnectionTimeoutMS int             `json:"connectionTimeoutMs,omitempty"`
	Reconnect           ReconnectConfig `json:"reconnect,omitempty"`
}

// ReconnectConfig configures the stream recovery schedule.
type ReconnectConfig struct {
	BaseMS      int `json:"baseMs,omitempty"`
	MaxAttempts int `json:"maxAttempts,omitempty"`
}

// LoadConfig reads and validates a client configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("config file %s has no gateway URL", path)
	}
	return &cfg, nil
}

// Options translates the file values into construction options.
func (cfg *Config) Options() []Option {
	var opts []Option
	if cfg.Token != "" {
		opts = append(opts, WithStaticToken(cfg.Token))
	}
	if cfg.RequestTimeoutMS > 0 {
		opts = append(opts, WithRequestTimeout(time.Duration(cfg.RequestTimeoutMS)*time.Millisecond))
	}
	if cfg.ConnectionTimeoutMS > 0 {
		opts = append(opts, WithConnectionTimeout(time.Duration(cfg.ConnectionTimeoutMS)*time.Millisecond))
	}
	if cfg.Reconnect.BaseMS > 0 || cfg.Reconnect.MaxAttempts > 0 {
		base := DefaultReconnectBase
		if cfg.Reconnect.BaseMS > 0 {
			base = time.Duration(cfg.Reconnect.BaseMS) * time.Millisecond
		}
		attempts := DefaultReconnectAttempts
		if cfg.Reconnect.MaxAttempts > 0 {
			attempts = cfg.Reconnect.MaxAttempts
		}
		opts = append(opts, WithReconnect(base, attempts))
	}
	return opts
}

// NewClientFromConfig builds a client from a configuration file. Extra options
// are applied after the file's own, so they win on conflict.
func NewClientFromConfig(path string, extra ...Option) (Client, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewClient(cfg.URL, append(cfg.Options(), extra...)...)
}
