package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if TRACKSTAR_CONFIG is set
//  3. env (prefix TRACKSTAR_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv("TRACKSTAR_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: TRACKSTAR_ADDR, TRACKSTAR_TOP_N, ...
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("TRACKSTAR_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "trackstar_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StorePath == "":
		return fmt.Errorf("%w: store_path must not be empty", ErrInvalidConfig)
	case len(c.Shards) == 0:
		return fmt.Errorf("%w: at least one shard is required", ErrInvalidConfig)
	case c.TopN < 1:
		return fmt.Errorf("%w: top_n must be positive", ErrInvalidConfig)
	case c.PollIntervalSeconds < 1:
		return fmt.Errorf("%w: poll_interval_seconds must be positive", ErrInvalidConfig)
	case c.InactivityThresholdSeconds < 1:
		return fmt.Errorf("%w: inactivity_threshold_seconds must be positive", ErrInvalidConfig)
	}
	for name, shard := range c.Shards {
		if shard.Flavor != "mirror" && shard.Flavor != "client" {
			return fmt.Errorf("%w: shard %q has unknown flavor %q", ErrInvalidConfig, name, shard.Flavor)
		}
		if shard.Flavor == "client" && shard.BaseURL == "" {
			return fmt.Errorf("%w: shard %q needs base_url for the client flavor", ErrInvalidConfig, name)
		}
	}
	return nil
}
