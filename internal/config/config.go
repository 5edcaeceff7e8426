// Package config loads the cubewatch daemon's configuration from the
// environment. The SDK itself reads no environment variables; everything
// here is translated into an explicit ucube.Config by the daemon's main.
package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Cube    CubeConfig
	Watch   WatchConfig
	Server  ServerConfig
	Observe ObserveConfig
}

// CubeConfig carries the United Cube credentials and client options.
// Exactly one credential form must be set: the username/password pair, or
// a manually obtained bearer token.
type CubeConfig struct {
	Username string `env:"UCUBE_USERNAME"`
	Password string `env:"UCUBE_PASSWORD"`
	Token    string `env:"UCUBE_AUTH"`

	// BaseURL overrides the remote address. Testing only.
	BaseURL string `env:"UCUBE_BASE_URL"`

	PageSize int `env:"UCUBE_PAGE_SIZE, default=30"`

	// What Start loads. Boards are always loaded; posts and comments are
	// optional, and board categories may be restricted.
	LoadPosts       bool     `env:"UCUBE_LOAD_POSTS, default=true"`
	CommentsPerPost int      `env:"UCUBE_COMMENTS_PER_POST, default=0"`
	BoardCategories []string `env:"UCUBE_BOARD_CATEGORIES"`
	FollowAllClubs  bool     `env:"UCUBE_FOLLOW_ALL_CLUBS, default=false"`
}

// WatchConfig controls the notification poll loop.
type WatchConfig struct {
	PollIntervalSeconds int `env:"WATCH_POLL_INTERVAL_SECS, default=60"`

	// ProfilePath points at the optional YAML watch profile. Empty means
	// every followed club is watched, with no per-run limit.
	ProfilePath          string `env:"WATCH_PROFILE_PATH"`
	ProfileReloadSeconds int    `env:"WATCH_PROFILE_RELOAD_SECS, default=300"`
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=cubewatch"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Cube.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid credential configuration: %w", err)
	}

	err = cfg.Watch.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid watch configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the either/or credential invariant.
func (c *CubeConfig) Validate() error {
	hasPassword := c.Username != "" || c.Password != ""
	hasToken := c.Token != ""

	switch {
	case hasToken && hasPassword:
		return fmt.Errorf("UCUBE_AUTH and UCUBE_USERNAME/UCUBE_PASSWORD are mutually exclusive")

	case !hasToken && !hasPassword:
		return fmt.Errorf("either UCUBE_AUTH or UCUBE_USERNAME/UCUBE_PASSWORD must be set")

	case hasPassword && (c.Username == "" || c.Password == ""):
		return fmt.Errorf("UCUBE_USERNAME and UCUBE_PASSWORD must both be set")
	}

	return nil
}

// Validate checks that the poll loop settings are usable.
func (c *WatchConfig) Validate() error {
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("WATCH_POLL_INTERVAL_SECS must be at least 1")
	}
	if c.ProfilePath != "" && c.ProfileReloadSeconds < 1 {
		return fmt.Errorf("WATCH_PROFILE_RELOAD_SECS must be at least 1")
	}
	return nil
}
