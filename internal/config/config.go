// Package config loads swarmd's layered configuration (flags > env >
// config file) via spf13/viper, the way the pack's cobra/viper-based
// daemons (Dragonfly2's dfget/dfdaemon commands) bind a handful of
// PersistentFlags into a typed struct rather than hand-parsing a flag.FlagSet
// the way the teacher's single-binary main.go does.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every knob shared by swarmd's tracker and client roles.
// Not every field applies to every role; cobra's subcommands read only
// the fields relevant to them.
type Config struct {
	// ListenAddr is the tracker's TCP listen address. The seed and
	// download subcommands take their data-port address from their own
	// --listen/--seed-listen flags, not from this field.
	ListenAddr string `mapstructure:"listen_addr"`

	// DataDir is where a client stores downloaded/seeded file content.
	DataDir string `mapstructure:"data_dir"`

	// RefreshInterval is loaded from refresh_interval (env or config
	// file; no flag sets it). No component reads it: the downloader
	// always uses downloader.DefaultRefreshInterval (30s).
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	// IOTimeout is loaded from io_timeout / --io-timeout. No component
	// reads it: the downloader uses downloader.DefaultIOTimeout (30s) and
	// the seeder a fixed 10s for tracker registration.
	IOTimeout time.Duration `mapstructure:"io_timeout"`

	// RedisDSN, if set, backs the tracker's registry with Redis
	// instead of the default in-memory store.
	RedisDSN string `mapstructure:"redis_dsn"`

	// AdminAddr, if set, starts the tracker's read-only gin AdminAPI on
	// this address alongside the TCP protocol listener.
	AdminAddr string `mapstructure:"admin_addr"`

	// MetricsAddr, if set, exposes Prometheus metrics on this address.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Default values, applied by Load when viper has nothing bound for them.
const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultIOTimeout       = 30 * time.Second
)

// New returns a *viper.Viper pre-populated with swarmd's defaults. Callers
// bind cobra flags and environment variables into it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("swarmd")
	v.AutomaticEnv()
	v.SetDefault("listen_addr", "0.0.0.0:6969")
	v.SetDefault("data_dir", ".")
	v.SetDefault("refresh_interval", DefaultRefreshInterval)
	v.SetDefault("io_timeout", DefaultIOTimeout)
	return v
}

// Load unmarshals v into a Config, filling in any zero-value durations
// that Unmarshal's duration decoding left empty.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	return cfg, nil
}
