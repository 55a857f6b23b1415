// Package tally parses tally command flags and starts the tally runtime.
package tally

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/ballotbox/internal/platform/cmd"
	server "github.com/louisbranch/ballotbox/internal/services/tally/app"
)

// Config holds tally command configuration.
type Config struct {
	Port              int           `env:"BALLOTBOX_TALLY_PORT" envDefault:"8090"`
	Addr              string        `env:"BALLOTBOX_TALLY_ADDR"`
	DBPath            string        `env:"BALLOTBOX_TALLY_DB_PATH" envDefault:"data/tally.db"`
	RollupInterval    time.Duration `env:"BALLOTBOX_TALLY_ROLLUP_INTERVAL" envDefault:"30s"`
	RollupConcurrency int           `env:"BALLOTBOX_TALLY_ROLLUP_CONCURRENCY" envDefault:"4"`
	RemovalPolicy     string        `env:"BALLOTBOX_TALLY_REMOVAL_POLICY" envDefault:"keep_with_results"`
	HMACKeys          string        `env:"BALLOTBOX_TALLY_EVENT_HMAC_KEYS"`
	HMACKeyID         string        `env:"BALLOTBOX_TALLY_EVENT_HMAC_KEY_ID"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The tally server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The tally server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the tally sqlite database")
	fs.DurationVar(&cfg.RollupInterval, "rollup-interval", cfg.RollupInterval, "How often stale rollups are rebuilt")
	fs.IntVar(&cfg.RollupConcurrency, "rollup-concurrency", cfg.RollupConcurrency, "Contests rebuilt in parallel")
	fs.StringVar(&cfg.RemovalPolicy, "removal-policy", cfg.RemovalPolicy, "What snapshot rebuilds do with removed units (keep_with_results|reject)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RuntimeConfig maps the command configuration onto the service runtime.
func (c Config) RuntimeConfig() server.RuntimeConfig {
	return server.RuntimeConfig{
		Port:              c.Port,
		Addr:              c.Addr,
		DBPath:            c.DBPath,
		RollupInterval:    c.RollupInterval,
		RollupConcurrency: c.RollupConcurrency,
		RemovalPolicy:     c.RemovalPolicy,
		HMACKeys:          c.HMACKeys,
		HMACKeyID:         c.HMACKeyID,
	}
}

// Run starts the tally service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTally, func(ctx context.Context) error {
		return server.Run(ctx, cfg.RuntimeConfig())
	})
}
