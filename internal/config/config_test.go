package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/gpg", cfg.OpenPGP.Path)
	require.Equal(t, "/usr/bin/gpgsm", cfg.CMS.Path)
	require.Equal(t, "openpgp", cfg.Context.Protocol)
	require.Equal(t, 1, cfg.Context.IncludeCerts)
	require.Equal(t, 50, cfg.WaitCore.PollIntervalMs)
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
openpgp:
  path: /opt/gnupg/bin/gpg
  home_dir: /var/lib/gpgclient/gnupg
context:
  protocol: cms
  armor: true
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/opt/gnupg/bin/gpg", cfg.OpenPGP.Path)
	require.Equal(t, "/var/lib/gpgclient/gnupg", cfg.OpenPGP.HomeDir)
	require.Equal(t, "cms", cfg.Context.Protocol)
	require.True(t, cfg.Context.Armor)
	require.Equal(t, "/usr/bin/gpgsm", cfg.CMS.Path, "unset fields still get defaults")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GPGCLIENT_OPENPGP_PATH", "/custom/gpg")
	t.Setenv("GPGCLIENT_ARMOR", "true")
	t.Setenv("GPGCLIENT_INCLUDE_CERTS", "-1")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	require.Equal(t, "/custom/gpg", cfg.OpenPGP.Path)
	require.True(t, cfg.Context.Armor)
	require.Equal(t, -1, cfg.Context.IncludeCerts)
}

func TestSplitCSV(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, splitCSV("a, b ,c"))
	require.Nil(t, splitCSV(""))
}

func TestManagerGetAppliesProfileOverride(t *testing.T) {
	masterPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(masterPath, []byte(`
openpgp:
  path: /usr/bin/gpg
logging:
  level: info
`), 0o644))

	profilesPath := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(profilesPath, []byte(`
profiles:
  test:
    openpgp:
      path: /usr/bin/gpg-test
      home_dir: /tmp/gnupg-test
    logging:
      level: debug
`), 0o644))

	mgr, err := NewManager(masterPath, profilesPath)
	require.NoError(t, err)

	effective := mgr.Get("test")
	require.Equal(t, "/usr/bin/gpg-test", effective.OpenPGP.Path)
	require.Equal(t, "/tmp/gnupg-test", effective.OpenPGP.HomeDir)
	require.Equal(t, "debug", effective.Logging.Level)

	unchanged := mgr.Get("unknown-profile")
	require.Equal(t, "/usr/bin/gpg", unchanged.OpenPGP.Path)
}

func TestManagerGetWithMissingProfilesFile(t *testing.T) {
	masterPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(masterPath, []byte(`openpgp:
  path: /usr/bin/gpg
`), 0o644))

	mgr, err := NewManager(masterPath, filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/gpg", mgr.Get("anything").OpenPGP.Path)
}
