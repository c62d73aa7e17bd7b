package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// ProfilesConfig holds named overlays on top of the global Config, e.g.
// a "test" profile pointing at a throwaway GNUPGHOME.
type ProfilesConfig struct {
	Profiles map[string]Config `yaml:"profiles"`
}

// Manager resolves the effective Config for a named profile, merging a
// profile's overrides on top of the global config loaded at startup.
type Manager struct {
	globalConfig *Config
	profiles     map[string]Config
	mu           sync.RWMutex
}

// NewManager loads the master config and an optional profiles file. A
// missing profiles file just yields an empty override set.
func NewManager(masterPath, profilesPath string) (*Manager, error) {
	master, err := LoadConfig(masterPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(profilesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manager{globalConfig: master, profiles: make(map[string]Config)}, nil
		}
		return nil, err
	}
	defer f.Close()

	var pc ProfilesConfig
	if err := yaml.NewDecoder(f).Decode(&pc); err != nil {
		return nil, err
	}

	return &Manager{
		globalConfig: master,
		profiles:     pc.Profiles,
	}, nil
}

// Get returns the effective config for a profile. Overrides apply per
// section, not per field: a profile section replaces the global one
// whole when its key field is set (OpenPGP.Path, CMS.Path,
// Context.Protocol, either WaitCore value, Logging.Level, Metrics.Addr
// or Metrics.Enabled); a section whose key field is unset is ignored.
func (m *Manager) Get(profile string) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	effective := *m.globalConfig

	override, ok := m.profiles[profile]
	if !ok {
		return &effective
	}

	if override.OpenPGP.Path != "" {
		effective.OpenPGP = override.OpenPGP
	}
	if override.CMS.Path != "" {
		effective.CMS = override.CMS
	}
	if override.Context.Protocol != "" {
		effective.Context = override.Context
	}
	if override.WaitCore.PollIntervalMs != 0 || override.WaitCore.TimeoutSec != 0 {
		effective.WaitCore = override.WaitCore
	}
	if override.Logging.Level != "" {
		effective.Logging = override.Logging
	}
	if override.Metrics.Addr != "" || override.Metrics.Enabled {
		effective.Metrics = override.Metrics
	}

	effective.applyDefaults()
	return &effective
}
