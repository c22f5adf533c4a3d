package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const yamlConfig = `
server:
  addr: ":9090"
model:
  snapshot_path: /models/fit.json
simulation:
  level: 0.9
  n_sims: 500
logging:
  level: debug
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", yamlConfig))
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "/models/fit.json", cfg.Model.SnapshotPath)
	require.Equal(t, 0.9, cfg.Simulation.Level)
	require.Equal(t, 500, cfg.Simulation.NSims)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", "model:\n  snapshot_path: /m.json\n"))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 0.95, cfg.Simulation.Level)
	require.Equal(t, 1000, cfg.Simulation.NSims)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("MIXSIM_SERVER__ADDR", ":7070")
	t.Setenv("MIXSIM_SIMULATION__N_SIMS", "250")

	cfg, err := Load(writeConfig(t, "config.yaml", yamlConfig))
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Server.Addr)
	require.Equal(t, 250, cfg.Simulation.NSims)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", "model:\n  snapshot_path: /m.json\nsimulation:\n  level: 1.5\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "config.yaml", "simulation:\n  level: 0.9\n"))
	require.Error(t, err, "missing model snapshot path")

	_, err = Load(writeConfig(t, "config.toml", "x = 1"))
	require.Error(t, err, "unsupported extension")
}
