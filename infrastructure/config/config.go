// Package config resolves and loads the supervisor's own operational
// settings (server_id, log directory, replay window, ring capacity).
// This is ambient configuration for the supervisor itself, distinct
// from — and out of scope relative to — the content of the core's own
// configuration files (spec.md §1 Non-goals).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the supervisor's non-secret operational settings. The
// PSK itself is deliberately excluded: spec §9 forbids persisting key
// material to disk, so it is always supplied out-of-band (environment
// variable or --psk-file) and never round-trips through this struct.
type Config struct {
	ServerID        string        `yaml:"server_id"`
	LogDir          string        `yaml:"log_dir"`
	ReplayWindow    time.Duration `yaml:"replay_window"`
	LogRingCapacity int           `yaml:"log_ring_capacity"`
	OrphanImageName string        `yaml:"orphan_image_name"`
}

// DefaultServerID matches the original source's `verge-service-server`
// convention (original_source/src/service/mod.rs `SERVER_ID`), renamed
// for this repository.
const DefaultServerID = "svcbroker-server"

// Default returns the out-of-the-box configuration.
func Default() Config {
	return Config{
		ServerID:        DefaultServerID,
		ReplayWindow:    500 * time.Millisecond,
		LogRingCapacity: 1000,
		OrphanImageName: "verge-mihomo",
	}
}

// Resolver locates the config file path for the current platform,
// generalizing infrastructure/PAL/configuration/client's per-OS
// resolver_*.go files to this supervisor's own settings file.
type Resolver interface {
	Resolve() (string, error)
}

// Manager reads and writes the config file at the path a Resolver
// produces.
type Manager struct {
	resolver Resolver
}

// NewManager constructs a Manager bound to the given Resolver.
func NewManager(resolver Resolver) *Manager {
	return &Manager{resolver: resolver}
}

// Load reads the config file, falling back to Default() if it does not
// exist yet — a missing config file is not an error on first run.
func (m *Manager) Load() (Config, error) {
	path, err := m.resolver.Resolve()
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to the resolved path.
func (m *Manager) Save(cfg Config) error {
	path, err := m.resolver.Resolve()
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
