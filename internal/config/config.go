package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hacastro22/watibot3-sub002/internal/debounce"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
// WhatsApp ids are often written as bare numbers.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the watibot service.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Buffer    BufferConfig    `json:"buffer"`
	Channels  ChannelsConfig  `json:"channels"`
	Processor ProcessorConfig `json:"processor"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// GatewayConfig configures the HTTP listener.
type GatewayConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Token        string `json:"token,omitempty"`          // bearer token for /v1 endpoints (empty = open)
	RateLimitRPM int    `json:"rate_limit_rpm,omitempty"` // per sender webhook rate limit (0 = off)
	MaxBodyBytes int64  `json:"max_body_bytes,omitempty"` // webhook body cap (default 1MB)
	DedupeTTL    string `json:"dedupe_ttl,omitempty"`     // provider message id dedupe window (default "20m")
	DedupeMax    int    `json:"dedupe_max,omitempty"`     // dedupe cache size (default 5000)
}

// DedupeWindow returns the parsed dedupe TTL with the default applied.
func (g GatewayConfig) DedupeWindow() time.Duration {
	return parseDuration(g.DedupeTTL, 20*time.Minute)
}

// BufferConfig configures the inbound message debounce.
type BufferConfig struct {
	QuietPeriod    string      `json:"quiet_period,omitempty"`    // W (default "35s")
	LookbackMargin string      `json:"lookback_margin,omitempty"` // subtracted from original start for context fetches (default "2s")
	SweepSchedule  string      `json:"sweep_schedule,omitempty"`  // cron for orphan sweep (default "*/5 * * * *", "off" disables)
	DrainRetry     RetryConfig `json:"drain_retry,omitempty"`
}

// RetryConfig configures the bounded drain retry.
type RetryConfig struct {
	MaxRetries int    `json:"max_retries,omitempty"`      // default 5
	BaseDelay  string `json:"retry_base_delay,omitempty"` // default "500ms"
	MaxDelay   string `json:"retry_max_delay,omitempty"`  // default "10s"
}

// SweepEnabled reports whether the periodic orphan sweep should run.
func (b BufferConfig) SweepEnabled() bool {
	return b.SweepSchedule != "" && b.SweepSchedule != "off"
}

// QuietPeriodDuration returns W with the default applied.
func (b BufferConfig) QuietPeriodDuration() time.Duration {
	return parseDuration(b.QuietPeriod, debounce.DefaultQuietPeriod)
}

// ToRetryConfig converts RetryConfig to debounce.RetryConfig with defaults applied.
func (rc RetryConfig) ToRetryConfig() debounce.RetryConfig {
	cfg := debounce.DefaultRetryConfig()
	if rc.MaxRetries > 0 {
		cfg.MaxRetries = rc.MaxRetries
	}
	if rc.BaseDelay != "" {
		if d, err := time.ParseDuration(rc.BaseDelay); err == nil && d > 0 {
			cfg.BaseDelay = d
		}
	}
	if rc.MaxDelay != "" {
		if d, err := time.ParseDuration(rc.MaxDelay); err == nil && d > 0 {
			cfg.MaxDelay = d
		}
	}
	return cfg
}

// ToOptions builds debounce options from the buffer section.
// Clock and Metrics are left for the caller.
func (b BufferConfig) ToOptions() debounce.Options {
	return debounce.Options{
		QuietPeriod:    b.QuietPeriodDuration(),
		LookbackMargin: parseDuration(b.LookbackMargin, debounce.DefaultLookbackMargin),
		DrainRetry:     b.DrainRetry.ToRetryConfig(),
	}
}

// ProcessorConfig selects what handles a drained batch.
type ProcessorConfig struct {
	Mode    string `json:"mode,omitempty"`    // "log" (default) or "http"
	URL     string `json:"url,omitempty"`     // AI engine endpoint for mode "http"
	Timeout string `json:"timeout,omitempty"` // per-batch request timeout (default "60s")
	APIKey  string `json:"-"`                 // from env WATIBOT_PROCESSOR_API_KEY only
}

// TimeoutDuration returns the processor timeout with the default applied.
func (p ProcessorConfig) TimeoutDuration() time.Duration {
	return parseDuration(p.Timeout, 60*time.Second)
}

// DatabaseConfig selects the buffer store.
// PostgresDSN is never read from config.json, only from env WATIBOT_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	Mode        string `json:"mode,omitempty"`        // "standalone" (default, SQLite) or "managed" (Postgres)
	SQLitePath  string `json:"sqlite_path,omitempty"` // default "~/.watibot/buffer.db"
}

// IsManagedMode returns true if the buffer lives in Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// TelemetryConfig configures OpenTelemetry export for debounce cycle spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext, for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "watibot"
	Headers     map[string]string `json:"headers,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway = src.Gateway
	c.Buffer = src.Buffer
	c.Channels = src.Channels
	c.Processor = src.Processor
	c.Database = src.Database
	c.Telemetry = src.Telemetry
}

// BufferSnapshot returns the buffer section under the read lock.
func (c *Config) BufferSnapshot() BufferConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Buffer
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
