package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks the config for structural correctness. It returns a
// *ValidationError when one or more problems are found, allowing callers
// to see all issues at once.
func (c *Config) Validate() error {
	ve := &ValidationError{}
	validateLogger(c, ve)
	validateTracer(c, ve)
	validateDiscovery(c, ve)
	validateInvoke(c, ve)
	validateRouting(c, ve)
	validateSessions(c, ve)
	validateGateway(c, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLogger(c *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(c.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", c.Logger.Level)
	}
	switch strings.ToLower(c.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", c.Logger.Format)
	}
}

func validateTracer(c *Config, ve *ValidationError) {
	switch c.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", c.Tracer.Exporter)
	}
}

func validateDiscovery(c *Config, ve *ValidationError) {
	checkURL(ve, "discovery.base_url", c.Discovery.BaseURL)
	checkDuration(ve, "discovery.refresh_interval", c.Discovery.RefreshInterval)
	checkDuration(ve, "discovery.timeout", c.Discovery.Timeout)
}

func validateInvoke(c *Config, ve *ValidationError) {
	checkURL(ve, "invoke.base_url", c.Invoke.BaseURL)
	checkDuration(ve, "invoke.timeout", c.Invoke.Timeout)
	checkDuration(ve, "invoke.initial_backoff", c.Invoke.InitialBackoff)
	checkDuration(ve, "invoke.max_backoff", c.Invoke.MaxBackoff)
	checkDuration(ve, "invoke.breaker.timeout", c.Invoke.Breaker.Timeout)
	checkDuration(ve, "invoke.breaker.interval", c.Invoke.Breaker.Interval)
	if c.Invoke.MaxRetries < 0 {
		ve.Add("invoke.max_retries must be >= 0")
	}
}

func validateRouting(c *Config, ve *ValidationError) {
	if !strings.Contains(c.Routing.DefaultAgent, "/") {
		ve.Add("routing.default_agent %q must be namespace/name", c.Routing.DefaultAgent)
	}
	for ref := range c.Routing.Keywords {
		if !strings.Contains(ref, "/") {
			ve.Add("routing.keywords key %q must be namespace/name", ref)
		}
	}
}

func validateSessions(c *Config, ve *ValidationError) {
	checkDuration(ve, "sessions.max_idle", c.Sessions.MaxIdle)
	checkDuration(ve, "sessions.reap_interval", c.Sessions.ReapInterval)
}

func validateGateway(c *Config, ve *ValidationError) {
	if !c.Gateway.Enabled {
		return
	}
	if len(c.Gateway.Tokens) == 0 {
		ve.Add("gateway.tokens must not be empty when the gateway is enabled")
	}
	for i, t := range c.Gateway.Tokens {
		if t.Token == "" {
			ve.Add("gateway.tokens[%d].token must not be empty", i)
		}
		if t.Name == "" {
			ve.Add("gateway.tokens[%d].name must not be empty", i)
		}
	}
	if c.Gateway.Rate.RequestsPerMin < 0 || c.Gateway.Rate.Burst < 0 {
		ve.Add("gateway.rate values must be >= 0")
	}
}

func checkDuration(ve *ValidationError, field, value string) {
	d, err := time.ParseDuration(value)
	if err != nil {
		ve.Add("%s %q is not a valid duration", field, value)
		return
	}
	if d <= 0 {
		ve.Add("%s must be > 0", field)
	}
}

func checkURL(ve *ValidationError, field, value string) {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("%s %q is not a valid absolute URL", field, value)
	}
}
