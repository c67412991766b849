package channels

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/hacastro22/watibot3-sub002/internal/config"
)

// Manager holds the registered webhook adapters by channel name.
type Manager struct {
	channels map[string]Adapter
	mu       sync.RWMutex
}

// NewManager creates an empty channel manager.
// Adapters are registered via RegisterChannel.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Adapter)}
}

// NewManagerFromConfig registers an adapter for every enabled channel.
func NewManagerFromConfig(cfg config.ChannelsConfig) *Manager {
	m := NewManager()
	if cfg.Wati.Enabled {
		m.RegisterChannel(NewWatiChannel(cfg.Wati.AllowFrom, cfg.Wati.WebhookSecret))
	}
	if cfg.ManyChat.Enabled {
		m.RegisterChannel(NewManyChatChannel(cfg.ManyChat.AllowFrom, cfg.ManyChat.WebhookSecret))
	}
	if cfg.Generic.Enabled {
		m.RegisterChannel(NewGenericChannel(cfg.Generic.AllowFrom, cfg.Generic.WebhookSecret))
	}
	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
	}
	return m
}

// RegisterChannel adds an adapter under its Name.
func (m *Manager) RegisterChannel(a Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[a.Name()] = a
	slog.Info("channel registered", "channel", a.Name())
}

// UnregisterChannel removes an adapter.
func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}

// GetChannel returns an adapter by name.
func (m *Manager) GetChannel(name string) (Adapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.channels[name]
	return a, ok
}

// GetEnabledChannels returns the names of all registered adapters, sorted.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
