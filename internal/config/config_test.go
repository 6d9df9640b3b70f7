package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
protocol: 754
proxy_address: ":25565"
simulation_servers:
  - name: overworld
    address: 127.0.0.1:25566
  - name: nether
    address: 127.0.0.1:25567
max_players: 50
motd: "Welcome"
compression_threshold: 256
`

func writeTemp(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 2, len(cfg.SimulationServers))
	require.Equal(t, "multimc", cfg.Brand)
	require.Equal(t, ":9090", cfg.Admin.ListenAddr)
	require.Equal(t, "static", cfg.Zoning.Strategy)
}

func TestSaveIntervalFallsBackOnBadValue(t *testing.T) {
	cfg := &Config{Persistence: PersistenceConfig{SaveInterval: "not-a-duration"}}
	require.Equal(t, defaultSaveInterval, cfg.SaveInterval())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
