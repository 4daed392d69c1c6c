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
//  1. defaults (New)
//  2. file (YAML) if RIFTFEED_CONFIG is set
//  3. env (prefix RIFTFEED_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("RIFTFEED_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: RIFTFEED_ADDR, RIFTFEED_QUEUE_SIZE, ...
	// Keys keep their underscores to match the koanf tags on the struct.
	envProvider := env.Provider("RIFTFEED_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "riftfeed_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if cfg.LiveBaseURL == "" {
		return fmt.Errorf("%w: live_base_url must not be empty", ErrInvalidConfig)
	}
	for name, value := range map[string]int{
		"poll_interval_combat_ms": cfg.PollIntervalCombatMS,
		"poll_interval_normal_ms": cfg.PollIntervalNormalMS,
		"poll_interval_idle_ms":   cfg.PollIntervalIdleMS,
		"heartbeat_interval_ms":   cfg.HeartbeatIntervalMS,
		"request_timeout_ms":      cfg.RequestTimeoutMS,
		"queue_size":              cfg.QueueSize,
		"dedupe_window":           cfg.DedupeWindow,
		"bus_capacity":            cfg.BusCapacity,
	} {
		if value <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	if cfg.PollIntervalCombatMS > cfg.PollIntervalNormalMS ||
		cfg.PollIntervalNormalMS > cfg.PollIntervalIdleMS {
		return fmt.Errorf("%w: poll intervals must widen from combat to idle", ErrInvalidConfig)
	}
	return nil
}
