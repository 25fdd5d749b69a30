/*
PURPOSE:
  Defines the configuration structure and loading logic for fleet-sim.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Configure the dataset mapping, trial count, percentiles, horizon,
    targets and search bounds.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs to support Environment variables overrides (FLEETSIM_...),
    including values kept in a local .env file.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli
  - Dependencies: gopkg.in/yaml.v3, github.com/joho/godotenv
  - internal/engine never reads config; the CLI passes values explicitly.

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default config files fall back to defaults.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Defaults should be sensible (e.g., 2000 trials).

USAGE:
  cfg, err := config.Load("fleet_sim.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig().

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/daryltucker/fleet-sim/internal/dataset"
	"github.com/daryltucker/fleet-sim/internal/model"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding file values.
const (
	EnvDataset   = "FLEETSIM_DATASET"
	EnvOutputDir = "FLEETSIM_OUTPUT_DIR"
	EnvAddr      = "FLEETSIM_ADDR"
	EnvLogLevel  = "FLEETSIM_LOG_LEVEL"
	EnvTrials    = "FLEETSIM_TRIALS"
	EnvSeed      = "FLEETSIM_SEED"
)

// Config represents the full configuration for fleet-sim.
type Config struct {
	Dataset    dataset.Options  `yaml:"dataset"`
	Simulation SimulationConfig `yaml:"simulation"`
	Search     SearchConfig     `yaml:"search"`
	Server     ServerConfig     `yaml:"server"`
	OutputDir  string           `yaml:"output_dir"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"`
}

// SimulationConfig holds the Resample Estimator defaults.
type SimulationConfig struct {
	SampleSize  int       `yaml:"sample_size"`
	Pollutants  []string  `yaml:"pollutants"`
	Trials      int       `yaml:"trials"`
	Days        int       `yaml:"days"`
	Percentiles []float64 `yaml:"percentiles"`
	// Seed is optional; nil means a fresh seed per run.
	Seed *uint64 `yaml:"seed"`
	// Scenarios are the fleet sizes compared by a sweep.
	Scenarios []int `yaml:"scenarios"`
}

// SearchConfig holds the Fleet-Size Search defaults.
type SearchConfig struct {
	Targets       map[string]float64 `yaml:"targets"`
	Percentile    float64            `yaml:"percentile"`
	MinSize       int                `yaml:"min_size"`
	MaxSize       int                `yaml:"max_size"`
	Step          int                `yaml:"step"`
	MaxOperations int64              `yaml:"max_operations"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultFiles are searched in order when no path is given.
var DefaultFiles = []string{"fleet_sim.yaml", "fleet-sim.yaml", "fleet_sim.yml"}

// DefaultConfig returns the default configuration. The dataset mapping
// matches the trips export of the emissions dashboard.
func DefaultConfig() *Config {
	return &Config{
		Dataset: dataset.Options{
			Path:           "data/gdf_final.csv",
			IDColumn:       "id_onibus",
			ElectricColumn: "is_eletrico",
			ModelColumn:    "modelo",
			TimeColumn:     "momento_inicial",
			Filter:         dataset.FilterElectric,
			Pollutants: []dataset.PollutantColumn{
				{Key: "co2", Column: "emissao_co2", Unit: "kg"},
			},
		},
		Simulation: SimulationConfig{
			SampleSize:  1,
			Pollutants:  []string{"co2"},
			Trials:      model.DefaultTrials,
			Days:        30,
			Percentiles: []float64{2.5, 97.5},
			Scenarios:   []int{10, 50, 100},
		},
		Search: SearchConfig{
			Percentile: 75,
			MinSize:    1,
			Step:       1,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		OutputDir: ".",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, returns default config.
// Environment overrides are applied last in every case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
	} else {
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
		}
	}

	if path != "" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from .env files into the process environment
// without overriding variables that are already set. Missing files are
// not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from FLEETSIM_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvDataset); v != "" {
		c.Dataset.Path = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvTrials); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTrials, v, err)
		}
		c.Simulation.Trials = n
	}
	if v := os.Getenv(EnvSeed); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvSeed, v, err)
		}
		c.Simulation.Seed = &n
	}
	return nil
}

// SimulationRequest builds the engine request from the configured defaults.
func (c *Config) SimulationRequest() model.SimulationRequest {
	return model.SimulationRequest{
		SampleSize:  c.Simulation.SampleSize,
		Pollutants:  c.Simulation.Pollutants,
		Trials:      c.Simulation.Trials,
		Days:        c.Simulation.Days,
		Percentiles: c.Simulation.Percentiles,
		Seed:        c.Simulation.Seed,
	}
}

// SearchRequest builds the engine request from the configured defaults.
func (c *Config) SearchRequest() model.SearchRequest {
	return model.SearchRequest{
		Targets:       model.FleetTarget(c.Search.Targets),
		Pollutants:    c.Simulation.Pollutants,
		Trials:        c.Simulation.Trials,
		Percentile:    c.Search.Percentile,
		MinSize:       c.Search.MinSize,
		MaxSize:       c.Search.MaxSize,
		Step:          c.Search.Step,
		Seed:          c.Simulation.Seed,
		MaxOperations: c.Search.MaxOperations,
	}
}
