// Package config provides configuration management for the agent gateway.
// It handles loading and parsing YAML configuration files, applying
// environment overrides, and provides structured access to application
// settings including the listen address, upstream agent service, session
// credential exchange, audit trail, and metrics.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the gateway's configuration, loaded from a YAML file.
type Config struct {
	// Host is the local network interface to listen on. Empty binds all interfaces.
	Host string `yaml:"host" json:"host"`

	// Port is the local TCP port the gateway listens on.
	Port int `yaml:"port" json:"port"`

	// Debug enables verbose request logging and gin debug mode.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingLevel overrides the log level by name
	// (debug|verbose|info|warn|error|quiet). Empty means info.
	LoggingLevel string `yaml:"logging-level,omitempty" json:"logging-level,omitempty"`

	// LoggingToFile routes log output to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is the directory for rotated log files. Empty means ./logs.
	LogDir string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`

	// Upstream configures the backend agent service connection.
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`

	// Session configures how caller sessions are exchanged for upstream
	// bearer credentials.
	Session SessionConfig `yaml:"session" json:"session"`

	// Audit configures the local audit trail.
	Audit AuditConfig `yaml:"audit,omitempty" json:"audit,omitempty"`

	// Metrics configures the Prometheus exposition endpoint.
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`

	// CORS configures cross-origin access for browser frontends.
	CORS CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty"`
}

// UpstreamConfig holds the backend agent service settings.
type UpstreamConfig struct {
	// BaseURL is the root URL of the backend agent service.
	BaseURL string `yaml:"base-url" json:"base-url"`

	// TimeoutSeconds bounds non-streaming upstream requests.
	// <= 0 means the default (120).
	TimeoutSeconds int `yaml:"timeout-seconds,omitempty" json:"timeout-seconds,omitempty"`

	// RequestRetry is the number of transparent retries after a
	// transport-level failure on non-streaming calls. Retries never apply to
	// HTTP-level errors or to streaming calls. Values above 1 clamp to 1;
	// nil means the default (1).
	RequestRetry *int `yaml:"request-retry,omitempty" json:"request-retry,omitempty"`
}

// SessionConfig holds the session-credential provider settings.
type SessionConfig struct {
	// Mode selects the credential source: "exchange" posts the caller's
	// session key to TokenURL as a refresh grant, "static" always uses
	// StaticToken. Empty means exchange.
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	// TokenURL is the session provider's grant endpoint (exchange mode).
	TokenURL string `yaml:"token-url,omitempty" json:"token-url,omitempty"`

	// APIKey is sent as the provider's apikey header on grant requests.
	APIKey string `yaml:"api-key,omitempty" json:"api-key,omitempty"`

	// StaticToken is the fixed upstream bearer token (static mode).
	StaticToken string `yaml:"static-token,omitempty" json:"static-token,omitempty"`

	// RefreshSkewSeconds refreshes a cached credential this many seconds
	// before its expiry instant. <= 0 means the default (30).
	RefreshSkewSeconds int `yaml:"refresh-skew-seconds,omitempty" json:"refresh-skew-seconds,omitempty"`

	// CacheTTLSeconds is the assumed credential lifetime when the provider
	// does not report an expiry. <= 0 means the default (300).
	CacheTTLSeconds int `yaml:"cache-ttl-seconds,omitempty" json:"cache-ttl-seconds,omitempty"`
}

// AuditConfig holds the local audit trail settings.
type AuditConfig struct {
	// Database is the SQLite file path for audit rows. Empty disables auditing.
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled exposes GET /metrics when true.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// CORSConfig holds the cross-origin settings for browser callers.
type CORSConfig struct {
	// AllowOrigins lists the origins allowed to call the gateway from a
	// browser. Empty allows any origin.
	AllowOrigins []string `yaml:"allow-origins,omitempty" json:"allow-origins,omitempty"`
}

// Session modes accepted by ValidateConfig.
const (
	SessionModeExchange = "exchange"
	SessionModeStatic   = "static"
)

// Defaults applied by LoadConfig and the getter methods.
const (
	DefaultPort            = 8317
	DefaultUpstreamBaseURL = "http://127.0.0.1:8000"
	defaultUpstreamTimeout = 120 * time.Second
	defaultRefreshSkew     = 30 * time.Second
	defaultCacheTTL        = 300 * time.Second
)

// GetTimeout returns the non-streaming upstream timeout, defaulting to 120s.
func (c *UpstreamConfig) GetTimeout() time.Duration {
	if c == nil || c.TimeoutSeconds <= 0 {
		return defaultUpstreamTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetRequestRetry returns the transport retry count, defaulting to 1 and
// clamping to the [0, 1] range.
func (c *UpstreamConfig) GetRequestRetry() int {
	if c == nil || c.RequestRetry == nil {
		return 1
	}
	if *c.RequestRetry <= 0 {
		return 0
	}
	return 1
}

// GetMode returns the session source mode, defaulting to exchange.
func (c *SessionConfig) GetMode() string {
	if c == nil || strings.TrimSpace(c.Mode) == "" {
		return SessionModeExchange
	}
	return strings.ToLower(strings.TrimSpace(c.Mode))
}

// GetRefreshSkew returns the proactive refresh window, defaulting to 30s.
func (c *SessionConfig) GetRefreshSkew() time.Duration {
	if c == nil || c.RefreshSkewSeconds <= 0 {
		return defaultRefreshSkew
	}
	return time.Duration(c.RefreshSkewSeconds) * time.Second
}

// GetCacheTTL returns the fallback credential lifetime, defaulting to 300s.
func (c *SessionConfig) GetCacheTTL() time.Duration {
	if c == nil || c.CacheTTLSeconds <= 0 {
		return defaultCacheTTL
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Enabled reports whether the audit trail is configured.
func (c *AuditConfig) Enabled() bool {
	return c != nil && strings.TrimSpace(c.Database) != ""
}

// Origins returns the allowed browser origins, defaulting to any origin.
func (c *CORSConfig) Origins() []string {
	if c == nil || len(c.AllowOrigins) == 0 {
		return []string{"*"}
	}
	return c.AllowOrigins
}

// LoadConfig reads the YAML configuration at path, applies environment
// overrides and defaults, and returns the parsed configuration.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigOptional(path, false)
}

// LoadConfigOptional behaves like LoadConfig, but when optional is true a
// missing or unparsable file yields a default configuration instead of an
// error.
func LoadConfigOptional(path string, optional bool) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if optional {
			applyDefaults(cfg)
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		if optional {
			cfg = &Config{}
			applyDefaults(cfg)
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyDefaults fills the values a runnable gateway cannot go without.
func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if strings.TrimSpace(cfg.Upstream.BaseURL) == "" {
		cfg.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
}

// applyEnvOverrides lets deployment environments override the file values
// that differ per environment without editing the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTGATE_UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("AGENTGATE_SESSION_TOKEN_URL"); v != "" {
		cfg.Session.TokenURL = v
	}
	if v := os.Getenv("AGENTGATE_SESSION_API_KEY"); v != "" {
		cfg.Session.APIKey = v
	}
	if v := os.Getenv("AGENTGATE_STATIC_TOKEN"); v != "" {
		cfg.Session.StaticToken = v
	}
}

// ValidateConfig checks the configuration for values the server cannot start
// with. It returns the validated configuration unchanged on success.
func ValidateConfig(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.Port)
	}
	base := strings.TrimSpace(cfg.Upstream.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("upstream base-url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid upstream base-url %q", cfg.Upstream.BaseURL)
	}
	switch cfg.Session.GetMode() {
	case SessionModeExchange:
		if strings.TrimSpace(cfg.Session.TokenURL) == "" {
			return nil, fmt.Errorf("session token-url is required in exchange mode")
		}
	case SessionModeStatic:
		if strings.TrimSpace(cfg.Session.StaticToken) == "" {
			return nil, fmt.Errorf("session static-token is required in static mode")
		}
	default:
		return nil, fmt.Errorf("unknown session mode %q", cfg.Session.Mode)
	}
	return cfg, nil
}
