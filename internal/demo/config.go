package demo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the scenario configuration shared by cmd/manager and
// cmd/worker: both must agree on grid dimensions and the simulation's
// tuning constants, since they jointly produce and consume the same
// World and Update values.
type Config struct {
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	ResourcePerCell int     `yaml:"resource_per_cell"`
	ResourceToLive  int     `yaml:"resource_to_live"`
	StartResources  int     `yaml:"start_resources"`
	BirthThreshold  int     `yaml:"birth_threshold"`
	PReplenishment  float64 `yaml:"p_replenishment"`
	StartPopulation int     `yaml:"start_population"`
	NSteps          int     `yaml:"n_steps"`
	ReportEvery     int     `yaml:"report_every"`
}

// DefaultConfig returns a reasonable small-scale scenario: a 20x20 grid
// with enough starting population and resources to show spawning,
// starvation, and cell replenishment within a short run.
func DefaultConfig() Config {
	return Config{
		Width:           20,
		Height:          20,
		ResourcePerCell: 6,
		ResourceToLive:  6,
		StartResources:  10,
		BirthThreshold:  10,
		PReplenishment:  0.8,
		StartPopulation: 200,
		NSteps:          10,
		ReportEvery:     1,
	}
}

// LoadConfig reads a YAML scenario file, overlaying its fields onto
// DefaultConfig so a scenario file only needs to override what it
// changes.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("demo: load config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("demo: load config: %w", err)
	}
	return cfg, nil
}

// Simulation builds the Sim value this configuration describes.
func (c Config) Simulation() Sim {
	return Sim{
		PReplenishment:  c.PReplenishment,
		BirthThreshold:  c.BirthThreshold,
		ResourcePerCell: c.ResourcePerCell,
		ResourceToLive:  c.ResourceToLive,
		StartResources:  c.StartResources,
		Width:           c.Width,
		Height:          c.Height,
	}
}
