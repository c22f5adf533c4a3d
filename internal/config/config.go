// Package config loads service configuration from a yaml/json file with
// environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Model      ModelConfig      `json:"model"`
	Database   DatabaseConfig   `json:"database"`
	Simulation SimulationConfig `json:"simulation"`
	Logging    LoggingConfig    `json:"logging"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
}

type ModelConfig struct {
	// SnapshotPath points at the JSON model snapshot exported by the fitter.
	SnapshotPath string `json:"snapshot_path"`
}

type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn"`
}

type SimulationConfig struct {
	Level   float64 `json:"level"`
	NSims   int     `json:"n_sims"`
	Workers int     `json:"workers"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Simulation.Level == 0 {
		c.Simulation.Level = 0.95
	}
	if c.Simulation.NSims == 0 {
		c.Simulation.NSims = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Simulation.Level <= 0 || c.Simulation.Level >= 1 {
		return fmt.Errorf("simulation.level %g outside (0, 1)", c.Simulation.Level)
	}
	if c.Simulation.NSims < 1 {
		return fmt.Errorf("simulation.n_sims must be at least 1, got %d", c.Simulation.NSims)
	}
	if c.Model.SnapshotPath == "" {
		return fmt.Errorf("model.snapshot_path is required")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when database.enabled")
	}
	return nil
}

// Load reads configuration from path (yaml or json, by extension) and applies
// MIXSIM_-prefixed environment overrides, "__" delimiting nested keys. An
// empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", path)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider("MIXSIM_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "mixsim_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
