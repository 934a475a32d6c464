// Package config loads the gateway's own tunables. This is distinct from
// host-application bootstrap (DB pools, TLS certs, plugin manifests) is
// out of scope here; this package only knows about the gateway's own
// knobs, loaded the env-var-with-defaults way.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the gateway reads from the environment.
type Config struct {
	// PingInterval is UPDATE_PING_INTERVAL from spec §4.7 — the cadence at
	// which C7 snapshots connections and updates the allocation index.
	PingInterval time.Duration

	// InitTimeout is the hard cap on waiting for the first inbound frame
	// during the handshake (spec §4.3 step 3).
	InitTimeout time.Duration

	// FaninBackoff is loaded from GATEWAY_FANIN_BACKOFF. The gateway does
	// not read it: C6 and C7 restart after their own fixed 2-second
	// constants (faninRestartBackoff, pingRestartBackoff).
	FaninBackoff time.Duration

	// MaxFrameBytes bounds a single inbound WebSocket message. Not named
	// by the prose spec but required by any real frame reader — enforced
	// via Conn.SetReadLimit.
	MaxFrameBytes int64

	// Datacenter labels RunnerIds minted by this gateway instance.
	Datacenter string

	// ListenAddr is only consumed by the example binary (cmd/gatewayd);
	// the gateway's own HTTP mounting is the host application's concern.
	ListenAddr string

	// HandshakeRateLimitPerSecond and HandshakeRateLimitBurst bound the
	// per-IP token bucket guarding HandleUpgrade.
	HandshakeRateLimitPerSecond float64
	HandshakeRateLimitBurst     int

	// AdminAPIKey, when set, gates cmd/gatewayd's /metrics and /readyz
	// endpoints behind a static bearer token. Empty means no auth.
	AdminAPIKey string
}

// Default returns the gateway's baseline tunables.
func Default() Config {
	return Config{
		PingInterval:                3 * time.Second,
		InitTimeout:                 5 * time.Second,
		FaninBackoff:                2 * time.Second,
		MaxFrameBytes:               1 << 20,
		Datacenter:                  "local",
		ListenAddr:                  ":8080",
		HandshakeRateLimitPerSecond: 10,
		HandshakeRateLimitBurst:     20,
	}
}

// FromEnv overlays environment variables onto Default(), returning a
// descriptive error for any malformed value rather than silently falling
// back rather than silently falling back to a guessed default.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("GATEWAY_PING_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("config: GATEWAY_PING_INTERVAL=%q: %w", v, err)
		}
		cfg.PingInterval = d
	}
	if v := os.Getenv("GATEWAY_INIT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("config: GATEWAY_INIT_TIMEOUT=%q: %w", v, err)
		}
		cfg.InitTimeout = d
	}
	if v := os.Getenv("GATEWAY_FANIN_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("config: GATEWAY_FANIN_BACKOFF=%q: %w", v, err)
		}
		cfg.FaninBackoff = d
	}
	if v := os.Getenv("GATEWAY_MAX_FRAME_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("config: GATEWAY_MAX_FRAME_BYTES=%q: must be a positive integer", v)
		}
		cfg.MaxFrameBytes = n
	}
	if v := os.Getenv("GATEWAY_DATACENTER"); v != "" {
		cfg.Datacenter = v
	}
	if v := os.Getenv("GATEWAY_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("GATEWAY_HANDSHAKE_RATE_LIMIT_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return cfg, fmt.Errorf("config: GATEWAY_HANDSHAKE_RATE_LIMIT_PER_SECOND=%q: must be a positive number", v)
		}
		cfg.HandshakeRateLimitPerSecond = f
	}
	if v := os.Getenv("GATEWAY_HANDSHAKE_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("config: GATEWAY_HANDSHAKE_RATE_LIMIT_BURST=%q: must be a positive integer", v)
		}
		cfg.HandshakeRateLimitBurst = n
	}
	if v := os.Getenv("GATEWAY_ADMIN_API_KEY"); v != "" {
		cfg.AdminAPIKey = v
	}

	return cfg, nil
}
