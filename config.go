// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package hullserver

import (
	"fmt"
	"net"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/absmach/hullserver/pkg/geometry"
	"github.com/caarlos0/env/v11"
)

// Serving modes.
const (
	ModeReactor  = "reactor"
	ModeProactor = "proactor"
)

// Config is the server configuration. Values come from the environment
// (with the prefix passed to NewConfig) and may be overridden by a TOML
// file through LoadFile.
type Config struct {
	Mode string `env:"MODE" envDefault:"reactor" toml:"mode"`
	Host string `env:"HOST" envDefault:"" toml:"host"`
	Port string `env:"PORT" envDefault:"9034" toml:"port"`

	PollTimeout     time.Duration `env:"POLL_TIMEOUT"     envDefault:"100ms" toml:"poll_timeout"`
	MaxWorkers      int           `env:"MAX_WORKERS"      envDefault:"1024"  toml:"max_workers"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"   toml:"shutdown_timeout"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT"    envDefault:"5s"    toml:"write_timeout"`

	ThresholdArea float64 `env:"THRESHOLD_AREA" envDefault:"100" toml:"threshold_area"`
	HullAlgorithm string  `env:"ALGORITHM" envDefault:"graham" toml:"hull_algorithm"`

	// RateLimitCapacity is the per-session burst. Zero disables rate limiting.
	RateLimitCapacity int64   `env:"RATE_LIMIT_CAPACITY" envDefault:"0" toml:"rate_limit_capacity"`
	RateLimitRefill   float64 `env:"RATE_LIMIT_REFILL"   envDefault:"10" toml:"rate_limit_refill"`

	// OpsAddress is the listen address of the operations HTTP server. Empty
	// disables it.
	OpsAddress string `env:"OPS_ADDRESS" envDefault:":9090" toml:"ops_address"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info" toml:"log_level"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text" toml:"log_format"`
}

// NewConfig parses the environment into a Config.
func NewConfig(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadFile overlays the TOML file at path onto c. Only keys present in the
// file change c, so file values win over the environment.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeReactor, ModeProactor:
	default:
		return fmt.Errorf("invalid mode %q: want %s or %s", c.Mode, ModeReactor, ModeProactor)
	}
	if c.Port == "" {
		return fmt.Errorf("port not configured")
	}
	if _, err := geometry.ParseAlgorithm(c.HullAlgorithm); err != nil {
		return err
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max workers must not be negative, got %d", c.MaxWorkers)
	}
	if c.RateLimitCapacity < 0 || c.RateLimitRefill < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	return nil
}

// Address returns the TCP listen address.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Algorithm returns the configured hull algorithm.
func (c Config) Algorithm() geometry.Algorithm {
	a, err := geometry.ParseAlgorithm(c.HullAlgorithm)
	if err != nil {
		return geometry.Graham
	}
	return a
}
