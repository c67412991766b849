package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18790,
			RateLimitRPM: 60,
			MaxBodyBytes: 1 << 20,
			DedupeTTL:    "20m",
			DedupeMax:    5000,
		},
		Buffer: BufferConfig{
			QuietPeriod:    "35s",
			LookbackMargin: "2s",
			SweepSchedule:  "*/5 * * * *",
			DrainRetry: RetryConfig{
				MaxRetries: 5,
				BaseDelay:  "500ms",
				MaxDelay:   "10s",
			},
		},
		Processor: ProcessorConfig{
			Mode:    "log",
			Timeout: "60s",
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "~/.watibot/buffer.db",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// Gateway
	envStr("WATIBOT_HOST", &c.Gateway.Host)
	if v := os.Getenv("WATIBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	envStr("WATIBOT_GATEWAY_TOKEN", &c.Gateway.Token)

	// Buffer
	envStr("WATIBOT_QUIET_PERIOD", &c.Buffer.QuietPeriod)
	envStr("WATIBOT_SWEEP_SCHEDULE", &c.Buffer.SweepSchedule)

	// Channel secrets
	envStr("WATIBOT_WATI_WEBHOOK_SECRET", &c.Channels.Wati.WebhookSecret)
	envStr("WATIBOT_MANYCHAT_WEBHOOK_SECRET", &c.Channels.ManyChat.WebhookSecret)
	envStr("WATIBOT_GENERIC_WEBHOOK_SECRET", &c.Channels.Generic.WebhookSecret)

	// Processor
	envStr("WATIBOT_PROCESSOR_MODE", &c.Processor.Mode)
	envStr("WATIBOT_PROCESSOR_URL", &c.Processor.URL)
	envStr("WATIBOT_PROCESSOR_API_KEY", &c.Processor.APIKey)

	// Database
	envStr("WATIBOT_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("WATIBOT_MODE", &c.Database.Mode)
	envStr("WATIBOT_SQLITE_PATH", &c.Database.SQLitePath)

	// Telemetry
	envStr("WATIBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("WATIBOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("WATIBOT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("WATIBOT_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("WATIBOT_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyEnvOverrides()
}

// Save writes the config to a JSON file with secrets stripped.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	cp := cfg.copyLocked()
	cfg.mu.RUnlock()
	cp.StripSecrets()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config, used to skip no-op reloads.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

const secretMask = "***"

// MaskedCopy returns a copy of the config with all secret fields masked.
// Used by the doctor command when printing the effective config.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	cp := c.copyLocked()
	c.mu.RUnlock()

	maskNonEmpty(&cp.Gateway.Token)
	maskNonEmpty(&cp.Processor.APIKey)
	maskNonEmpty(&cp.Database.PostgresDSN)
	maskNonEmpty(&cp.Channels.Wati.WebhookSecret)
	maskNonEmpty(&cp.Channels.ManyChat.WebhookSecret)
	maskNonEmpty(&cp.Channels.Generic.WebhookSecret)
	return cp
}

// StripSecrets zeros out all secret fields so they never persist in config.json.
func (c *Config) StripSecrets() {
	c.Gateway.Token = ""
	c.Processor.APIKey = ""
	c.Database.PostgresDSN = ""
	c.Channels.Wati.WebhookSecret = ""
	c.Channels.ManyChat.WebhookSecret = ""
	c.Channels.Generic.WebhookSecret = ""
}

func (c *Config) copyLocked() *Config {
	cp := &Config{
		Gateway:   c.Gateway,
		Buffer:    c.Buffer,
		Channels:  c.Channels,
		Processor: c.Processor,
		Database:  c.Database,
		Telemetry: c.Telemetry,
	}
	if c.Telemetry.Headers != nil {
		cp.Telemetry.Headers = make(map[string]string, len(c.Telemetry.Headers))
		for k, v := range c.Telemetry.Headers {
			cp.Telemetry.Headers[k] = v
		}
	}
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
