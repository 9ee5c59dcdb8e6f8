package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Invoke    InvokeConfig    `yaml:"invoke"`
	Routing   RoutingConfig   `yaml:"routing"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Gateway   GatewayConfig   `yaml:"gateway"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// DiscoveryConfig holds agent discovery settings.
type DiscoveryConfig struct {
	BaseURL         string `yaml:"base_url"`
	RefreshInterval string `yaml:"refresh_interval"` // duration string (default: 5m)
	Timeout         string `yaml:"timeout"`          // duration string (default: 10s)
}

// InvokeConfig holds A2A invocation settings.
type InvokeConfig struct {
	BaseURL        string        `yaml:"base_url"` // defaults to discovery base_url
	Timeout        string        `yaml:"timeout"`  // per-call bound (default: 30s)
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff string        `yaml:"initial_backoff"` // default: 500ms
	MaxBackoff     string        `yaml:"max_backoff"`     // default: 5s
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker around the invoker.
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"max_failures"` // consecutive failures before opening
	Timeout     string `yaml:"timeout"`      // open-state duration (default: 30s)
	Interval    string `yaml:"interval"`     // closed-state count reset (default: 60s)
}

// RoutingConfig holds router settings. Keywords maps "namespace/name" to
// extra routing keywords merged into whatever discovery reports.
type RoutingConfig struct {
	DefaultAgent string              `yaml:"default_agent"`
	Keywords     map[string][]string `yaml:"keywords,omitempty"`
}

// SessionsConfig holds session store settings. The reaper is opt-in;
// session state is in-memory only and rebuilt on restart.
type SessionsConfig struct {
	ReapEnabled  bool   `yaml:"reap_enabled"`
	MaxIdle      string `yaml:"max_idle"`      // duration string (default: 24h)
	ReapInterval string `yaml:"reap_interval"` // duration string (default: 1h)
}

// GatewayConfig holds the WebSocket/REST shim settings.
type GatewayConfig struct {
	Enabled bool            `yaml:"enabled"`
	Addr    string          `yaml:"addr"`
	Tokens  []GatewayToken  `yaml:"tokens"`
	Rate    RateLimitConfig `yaml:"rate"`
}

// GatewayToken is one static client credential.
type GatewayToken struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"`
	Burst          int `yaml:"burst"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stderr"
	}
	if c.Tracer.Exporter == "" {
		c.Tracer.Exporter = "noop"
	}
	if c.Discovery.BaseURL == "" {
		c.Discovery.BaseURL = "http://localhost:8083"
	}
	if c.Discovery.RefreshInterval == "" {
		c.Discovery.RefreshInterval = "5m"
	}
	if c.Discovery.Timeout == "" {
		c.Discovery.Timeout = "10s"
	}
	if c.Invoke.BaseURL == "" {
		c.Invoke.BaseURL = c.Discovery.BaseURL
	}
	if c.Invoke.Timeout == "" {
		c.Invoke.Timeout = "30s"
	}
	if c.Invoke.MaxRetries == 0 {
		c.Invoke.MaxRetries = 2
	}
	if c.Invoke.InitialBackoff == "" {
		c.Invoke.InitialBackoff = "500ms"
	}
	if c.Invoke.MaxBackoff == "" {
		c.Invoke.MaxBackoff = "5s"
	}
	if c.Invoke.Breaker.MaxFailures == 0 {
		c.Invoke.Breaker.MaxFailures = 5
	}
	if c.Invoke.Breaker.Timeout == "" {
		c.Invoke.Breaker.Timeout = "30s"
	}
	if c.Invoke.Breaker.Interval == "" {
		c.Invoke.Breaker.Interval = "60s"
	}
	if c.Routing.DefaultAgent == "" {
		c.Routing.DefaultAgent = "kagent/k8s-agent"
	}
	if c.Sessions.MaxIdle == "" {
		c.Sessions.MaxIdle = "24h"
	}
	if c.Sessions.ReapInterval == "" {
		c.Sessions.ReapInterval = "1h"
	}
	if c.Gateway.Addr == "" {
		c.Gateway.Addr = "127.0.0.1:8090"
	}
	if c.Gateway.Rate.RequestsPerMin == 0 {
		c.Gateway.Rate.RequestsPerMin = 120
	}
	if c.Gateway.Rate.Burst == 0 {
		c.Gateway.Rate.Burst = 20
	}
}

// Duration accessors. Defaults make these infallible after applyDefaults;
// Validate catches malformed values at load time.

func (c *DiscoveryConfig) RefreshIntervalDuration() time.Duration {
	return mustDuration(c.RefreshInterval, 5*time.Minute)
}

func (c *DiscoveryConfig) TimeoutDuration() time.Duration {
	return mustDuration(c.Timeout, 10*time.Second)
}

func (c *InvokeConfig) TimeoutDuration() time.Duration {
	return mustDuration(c.Timeout, 30*time.Second)
}

func (c *InvokeConfig) InitialBackoffDuration() time.Duration {
	return mustDuration(c.InitialBackoff, 500*time.Millisecond)
}

func (c *InvokeConfig) MaxBackoffDuration() time.Duration {
	return mustDuration(c.MaxBackoff, 5*time.Second)
}

func (c *BreakerConfig) TimeoutDuration() time.Duration {
	return mustDuration(c.Timeout, 30*time.Second)
}

func (c *BreakerConfig) IntervalDuration() time.Duration {
	return mustDuration(c.Interval, 60*time.Second)
}

func (c *SessionsConfig) MaxIdleDuration() time.Duration {
	return mustDuration(c.MaxIdle, 24*time.Hour)
}

func (c *SessionsConfig) ReapIntervalDuration() time.Duration {
	return mustDuration(c.ReapInterval, time.Hour)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
