// Package config provides configuration loading and management for the
// calibration pipeline. It handles loading configuration from YAML
// files and provides default values for the Mindways Model 3 phantom.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Phantom parameters
	Phantom struct {
		// H2ODensities are the H2O-equivalent rod densities, rod A to
		// rod E, in mg/cc
		H2ODensities []float64 `yaml:"h2oDensities"`

		// K2HPO4Densities are the K2HPO4-equivalent rod densities, rod
		// A to rod E, in mg/cc
		K2HPO4Densities []float64 `yaml:"k2hpo4Densities"`
	} `yaml:"phantom"`

	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many goroutines apply the voxel-wise
		// calibration transform
		NumWorkers int `yaml:"numWorkers"`

		// DensityFloor, when enabled, replaces calibrated densities
		// below FloorValue with FloorValue before output
		DensityFloor bool    `yaml:"densityFloor"`
		FloorValue   float64 `yaml:"floorValue"`
	} `yaml:"processing"`

	// FiniteElement parameters used for material table and PMMA cap
	// construction
	FiniteElement struct {
		// PoissonsRatio is the bone Poisson ratio
		PoissonsRatio float64 `yaml:"poissonsRatio"`

		// ElasticEmax and ElasticExponent define the power-law
		// density-modulus relationship E = Emax * density^exponent,
		// with density in g/cc and E in MPa
		ElasticEmax     float64 `yaml:"elasticEmax"`
		ElasticExponent float64 `yaml:"elasticExponent"`

		// PMMAMaterialID labels synthetic end-cap voxels
		PMMAMaterialID int `yaml:"pmmaMaterialId"`

		// PMMAModulus and PMMAPoissonsRatio are the cap material
		// elastic constants, MPa and unitless
		PMMAModulus       float64 `yaml:"pmmaModulus"`
		PMMAPoissonsRatio float64 `yaml:"pmmaPoissonsRatio"`
	} `yaml:"finiteElement"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// QASlices enables grayscale slice exports of the calibrated
		// volume for visual inspection
		QASlices bool `yaml:"qaSlices"`

		// QASlicesDir is the directory for QA slice exports
		QASlicesDir string `yaml:"qaSlicesDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Mindways Model 3 nominal rod densities, rod A to rod E.
	cfg.Phantom.H2ODensities = []float64{1012.25, 1056.95, 1103.57, 1119.52, 923.20}
	cfg.Phantom.K2HPO4Densities = []float64{-51.83, -53.40, 58.88, 157.05, 375.83}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.DensityFloor = false
	cfg.Processing.FloorValue = 0.1

	cfg.FiniteElement.PoissonsRatio = 0.3
	cfg.FiniteElement.ElasticEmax = 6850
	cfg.FiniteElement.ElasticExponent = 1.49
	cfg.FiniteElement.PMMAMaterialID = 2
	cfg.FiniteElement.PMMAModulus = 2500
	cfg.FiniteElement.PMMAPoissonsRatio = 0.3

	cfg.Output.Verbose = true
	cfg.Output.QASlices = false
	cfg.Output.QASlicesDir = "qa_slices"

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if len(cfg.Phantom.H2ODensities) != len(cfg.Phantom.K2HPO4Densities) {
		return nil, fmt.Errorf("config lists %d H2O densities but %d K2HPO4 densities",
			len(cfg.Phantom.H2ODensities), len(cfg.Phantom.K2HPO4Densities))
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
