// Package config loads the runtime's configuration the way the teacher
// does: a single yaml.v2-tagged struct, a sync.Once-guarded singleton
// accessor, and environment-variable overrides layered on top of
// whatever the YAML file set.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// EngineConfig locates and configures a single cryptographic engine
// (the OpenPGP engine or the CMS engine).
type EngineConfig struct {
	Path      string   `yaml:"path"`
	Version   string   `yaml:"version"`
	ExtraArgs []string `yaml:"extra_args"`
	HomeDir   string   `yaml:"home_dir"`
}

// ContextDefaults mirrors the flags a freshly constructed operation
// context starts with.
type ContextDefaults struct {
	Protocol     string `yaml:"protocol"`
	KeylistMode  string `yaml:"keylist_mode"`
	IncludeCerts int    `yaml:"include_certs"`
	Armor        bool   `yaml:"armor"`
	Textmode     bool   `yaml:"textmode"`
}

// WaitCoreConfig tunes the select-loop driving engine I/O.
type WaitCoreConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`
	TimeoutSec     int `yaml:"timeout_sec"`
}

// LoggingConfig controls internal/obslog.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig controls whether internal/metrics is wired up.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Config is the top-level runtime configuration.
type Config struct {
	OpenPGP  EngineConfig    `yaml:"openpgp"`
	CMS      EngineConfig    `yaml:"cms"`
	Context  ContextDefaults `yaml:"context"`
	WaitCore WaitCoreConfig  `yaml:"wait_core"`
	Logging  LoggingConfig   `yaml:"logging"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

var (
	once    sync.Once
	global  *Config
	loadErr error
)

// Get returns the process-wide Config, loading it from CONFIG_PATH (or
// "config.yaml") on first call.
func Get() (*Config, error) {
	once.Do(func() {
		global, loadErr = LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if loadErr == nil {
			global.applyEnvOverrides()
		}
	})
	return global, loadErr
}

// LoadConfig reads and decodes the YAML file at path, then applies
// defaults for anything the file left zero-valued. A missing file is
// not an error: it yields an all-defaults Config, matching the
// teacher's tolerance for an optional config file in dev environments.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.OpenPGP.Path = getEnv("GPGCLIENT_OPENPGP_PATH", c.OpenPGP.Path)
	c.OpenPGP.HomeDir = getEnv("GPGCLIENT_OPENPGP_HOME", c.OpenPGP.HomeDir)
	c.CMS.Path = getEnv("GPGCLIENT_CMS_PATH", c.CMS.Path)
	c.CMS.HomeDir = getEnv("GPGCLIENT_CMS_HOME", c.CMS.HomeDir)

	c.Context.Protocol = getEnv("GPGCLIENT_PROTOCOL", c.Context.Protocol)
	c.Context.KeylistMode = getEnv("GPGCLIENT_KEYLIST_MODE", c.Context.KeylistMode)
	c.Context.IncludeCerts = getEnvInt("GPGCLIENT_INCLUDE_CERTS", c.Context.IncludeCerts)
	c.Context.Armor = getEnvBool("GPGCLIENT_ARMOR", c.Context.Armor)
	c.Context.Textmode = getEnvBool("GPGCLIENT_TEXTMODE", c.Context.Textmode)

	c.WaitCore.PollIntervalMs = getEnvInt("GPGCLIENT_POLL_INTERVAL_MS", c.WaitCore.PollIntervalMs)
	c.WaitCore.TimeoutSec = getEnvInt("GPGCLIENT_WAIT_TIMEOUT_SEC", c.WaitCore.TimeoutSec)

	c.Logging.Level = getEnv("GPGCLIENT_LOG_LEVEL", c.Logging.Level)

	c.Metrics.Enabled = getEnvBool("GPGCLIENT_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Addr = getEnv("GPGCLIENT_METRICS_ADDR", c.Metrics.Addr)

	c.applyDefaults()
}

func (c *Config) applyDefaults() {
	if c.OpenPGP.Path == "" {
		c.OpenPGP.Path = "/usr/bin/gpg"
	}
	if c.CMS.Path == "" {
		c.CMS.Path = "/usr/bin/gpgsm"
	}
	if c.Context.Protocol == "" {
		c.Context.Protocol = "openpgp"
	}
	if c.Context.KeylistMode == "" {
		c.Context.KeylistMode = "local"
	}
	if c.Context.IncludeCerts == 0 {
		c.Context.IncludeCerts = 1
	}
	if c.WaitCore.PollIntervalMs == 0 {
		c.WaitCore.PollIntervalMs = 50
	}
	if c.WaitCore.TimeoutSec == 0 {
		c.WaitCore.TimeoutSec = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9101"
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
