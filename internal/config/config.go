package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"crease/internal/domain"
)

// Config models crease.yml: workspace-level defaults applied to new games and
// to the DLS calculator. Per-game settings are frozen into the game row at
// creation time.
type Config struct {
	Defaults struct {
		Format         string `yaml:"format"`
		PlayersPerSide int    `yaml:"players_per_side"`
		BallsPerOver   int    `yaml:"balls_per_over"`
	} `yaml:"defaults"`
	DLS struct {
		G50            float64 `yaml:"g50"`
		StandardExcess bool    `yaml:"standard_excess"`
		TableFile      string  `yaml:"table_file"`
	} `yaml:"dls"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

const fileName = "crease.yml"

// Path returns the config file location for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".crease", fileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Defaults.Format = domain.FormatT20
	cfg.Defaults.PlayersPerSide = 11
	cfg.Defaults.BallsPerOver = 6
	cfg.DLS.G50 = 245
	cfg.Server.Addr = ":8080"
	cfg.Server.BasePath = "/v1"
	return cfg
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates a config document.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Defaults.Format {
	case domain.FormatT20, domain.FormatODI, domain.FormatFirstClass, domain.FormatCustom:
	default:
		return fmt.Errorf("defaults.format %q unknown", c.Defaults.Format)
	}
	if c.Defaults.PlayersPerSide < 2 {
		return fmt.Errorf("defaults.players_per_side must be at least 2")
	}
	if c.Defaults.BallsPerOver < 1 {
		return fmt.Errorf("defaults.balls_per_over must be at least 1")
	}
	if c.DLS.G50 <= 0 {
		return fmt.Errorf("dls.g50 must be positive")
	}
	return nil
}

// Preset returns the game settings for a named format.
func (c *Config) Preset(format string) (domain.Settings, error) {
	s := domain.Settings{
		Format:         format,
		BallsPerOver:   c.Defaults.BallsPerOver,
		PlayersPerSide: c.Defaults.PlayersPerSide,
		G50:            c.DLS.G50,
	}
	switch format {
	case domain.FormatT20:
		s.MaxOvers = 20
		s.DLSEnabled = true
		s.FreeHit = true
	case domain.FormatODI:
		s.MaxOvers = 50
		s.DLSEnabled = true
		s.FreeHit = true
	case domain.FormatFirstClass:
		s.Days = 5
		s.OversPerDay = 90
	case domain.FormatCustom:
		// caller fills in overs/days
	default:
		return domain.Settings{}, fmt.Errorf("format %q unknown", format)
	}
	return s, nil
}
