// Package config defines the daemon configuration and its loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers a YAML file and environment on top.
// - Durations are configured in milliseconds for flat env compatibility.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address. The boundary is local
	// by default.
	Addr string `koanf:"addr"`

	// LiveBaseURL is the live client REST surface being polled.
	LiveBaseURL string `koanf:"live_base_url"`

	// Poll intervals per activity regime.
	PollIntervalCombatMS int `koanf:"poll_interval_combat_ms"`
	PollIntervalNormalMS int `koanf:"poll_interval_normal_ms"`
	PollIntervalIdleMS   int `koanf:"poll_interval_idle_ms"`

	// CombatCooldownMS is how long combat cadence persists after the
	// last activity; IdleCooldownMS how long before dropping to idle.
	CombatCooldownMS int `koanf:"combat_cooldown_ms"`
	IdleCooldownMS   int `koanf:"idle_cooldown_ms"`

	// ErrorBackoffMS and ErrorBackoffMaxMS bound the retry schedule
	// after failed poll cycles.
	ErrorBackoffMS    int `koanf:"error_backoff_ms"`
	ErrorBackoffMaxMS int `koanf:"error_backoff_max_ms"`

	// HeartbeatIntervalMS sets the fixed liveness tick cadence.
	HeartbeatIntervalMS int `koanf:"heartbeat_interval_ms"`

	// RequestTimeoutMS bounds each outbound request to the client.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// Lockfile optionally pins the client lockfile location.
	Lockfile string `koanf:"lockfile"`

	// DiscoveryIntervalMS is how often the lockfile is probed while the
	// client is not running.
	DiscoveryIntervalMS int `koanf:"discovery_interval_ms"`

	// ReconnectMinMS and ReconnectMaxMS bound the session socket
	// reconnect schedule.
	ReconnectMinMS int `koanf:"reconnect_min_ms"`
	ReconnectMaxMS int `koanf:"reconnect_max_ms"`

	// QueueSize bounds the fan-in queue between sources and normalizer.
	QueueSize int `koanf:"queue_size"`

	// DedupeWindow and DedupeTTLMS bound the duplicate suppression
	// window by count and age.
	DedupeWindow int `koanf:"dedupe_window"`
	DedupeTTLMS  int `koanf:"dedupe_ttl_ms"`

	// CoalesceWindowMS is the gold aggregation window.
	CoalesceWindowMS int `koanf:"coalesce_window_ms"`

	// BusCapacity and BusMaxAgeMS bound the broadcast retention window.
	BusCapacity int `koanf:"bus_capacity"`
	BusMaxAgeMS int `koanf:"bus_max_age_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 "127.0.0.1:9184",
		LiveBaseURL:          "https://127.0.0.1:2999",
		PollIntervalCombatMS: 150,
		PollIntervalNormalMS: 750,
		PollIntervalIdleMS:   1500,
		CombatCooldownMS:     5_000,
		IdleCooldownMS:       20_000,
		ErrorBackoffMS:       1_000,
		ErrorBackoffMaxMS:    15_000,
		HeartbeatIntervalMS:  1_000,
		RequestTimeoutMS:     2_000,
		DiscoveryIntervalMS:  1_000,
		ReconnectMinMS:       500,
		ReconnectMaxMS:       15_000,
		QueueSize:            4_096,
		DedupeWindow:         2_048,
		DedupeTTLMS:          3_000,
		CoalesceWindowMS:     400,
		BusCapacity:          1_024,
		BusMaxAgeMS:          60_000,
	}
}
