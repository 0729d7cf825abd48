package engine

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/logging"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/solution"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/strategy"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all parameters for an evolutionary run.
type Config struct {
	DataPath       string `yaml:"data_path"`
	CheckpointPath string `yaml:"checkpoint_path"`
	StopFlagPath   string `yaml:"stop_flag_path"`

	Strategy      string  `yaml:"strategy"`
	Population    int     `yaml:"population"`
	Generations   int     `yaml:"generations"` // goal; <= 0 runs until stopped
	FitnessGoal   float64 `yaml:"fitness_goal"`
	Parents       int     `yaml:"parents"`
	MutationGenes int     `yaml:"mutation_genes"`
	Workers       int     `yaml:"workers"`
	Seed          int64   `yaml:"seed"` // 0 = random

	Format      string         `yaml:"format"` // "text" or "json"
	Verbose     bool           `yaml:"verbose"`
	MetricsAddr string         `yaml:"metrics_addr"`
	Log         logging.Config `yaml:"log"`

	ChromosomeLength int `yaml:"-"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DataPath:         "trips.csv",
		CheckpointPath:   "vehicular_fuel_efficiency_equation.json",
		StopFlagPath:     "to_safely_stop_genetic_learner.deleteme",
		Strategy:         "elitist",
		Population:       1024,
		Generations:      1000000,
		FitnessGoal:      3,
		Parents:          64,
		MutationGenes:    1,
		Workers:          1,
		Seed:             0,
		Format:           "text",
		Log:              logging.DefaultConfig(),
		ChromosomeLength: solution.ChromosomeLength,
	}
}

// LoadConfig reads a YAML file over the defaults. Keys missing from the file
// keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for values the controller cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Population >= 2, "population must be at least 2, got %d", c.Population)
	check(c.Parents >= 1 && c.Parents <= c.Population, "parents must be in [1, population], got %d", c.Parents)
	check(c.ChromosomeLength >= 2, "chromosome length must be at least 2, got %d", c.ChromosomeLength)
	check(c.MutationGenes >= 0 && c.MutationGenes <= c.ChromosomeLength,
		"mutation genes must be in [0, %d], got %d", c.ChromosomeLength, c.MutationGenes)
	check(c.Workers >= 1, "workers must be at least 1, got %d", c.Workers)
	check(c.CheckpointPath != "", "checkpoint path is required")
	check(c.StopFlagPath != "", "stop flag path is required")
	check(c.Format == "text" || c.Format == "json", "format must be text or json, got %q", c.Format)
	_, err := strategy.Get(c.Strategy)
	check(err == nil, "unknown strategy %q (available: %v)", c.Strategy, strategy.Names())

	return errors.Join(errs...)
}

// Params returns the breeding parameters handed to the strategy.
func (c Config) Params() strategy.Params {
	return strategy.Params{Parents: c.Parents, MutationGenes: c.MutationGenes}
}
