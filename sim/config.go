package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ehn4602/tag2tag-simulator/sim/physics"
)

// Solver names accepted by Config.Solver.
const (
	SolverSelfConsistent = "self-consistent"
	SolverSingleBounce   = "single-bounce"
)

// Config holds engine tuning for one run, loadable from a YAML file.
// Nil pointer fields mean "not set in YAML": they fall back to scenario
// defaults or package defaults rather than overriding them with zero.
type Config struct {
	// Horizon is the simulated time to run for, in seconds.
	Horizon float64 `yaml:"horizon"`
	// FeedbackInterval is the channel sampling period in seconds. Zero
	// disables the feedback loop.
	FeedbackInterval float64 `yaml:"feedback_interval"`
	// Seed is the master RNG seed; subsystem streams derive from it.
	Seed int64 `yaml:"seed"`
	// NoiseStd is the detector noise standard deviation in volts.
	NoiseStd float64 `yaml:"noise_std"`
	// PassiveReflection is the reflection magnitude presented by
	// listening or unpowered tags.
	PassiveReflection *float64 `yaml:"passive_reflection"`
	// PowerThresholdDBm is the power-on threshold for tags without
	// their own.
	PowerThresholdDBm *float64 `yaml:"power_threshold_dbm"`
	// Solver picks the channel model: self-consistent (default) or
	// single-bounce.
	Solver string `yaml:"solver"`
}

// LoadConfig reads and parses a YAML engine configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading engine config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing engine config: %w", err)
	}
	return &cfg, nil
}

// ValidSolvers is the set of recognized solver names.
var ValidSolvers = map[string]bool{"": true, SolverSelfConsistent: true, SolverSingleBounce: true}

// Validate checks solver names and parameter ranges.
func (c *Config) Validate() error {
	if !ValidSolvers[c.Solver] {
		return fmt.Errorf("unknown solver %q", c.Solver)
	}
	if !(c.Horizon > 0) {
		return fmt.Errorf("horizon must be positive, got %g", c.Horizon)
	}
	if !(c.FeedbackInterval >= 0) {
		return fmt.Errorf("feedback_interval must be non-negative, got %g", c.FeedbackInterval)
	}
	if !(c.NoiseStd >= 0) {
		return fmt.Errorf("noise_std must be non-negative, got %g", c.NoiseStd)
	}
	if c.PassiveReflection != nil && !(*c.PassiveReflection >= 0 && *c.PassiveReflection <= 1) {
		return fmt.Errorf("passive_reflection must be in [0, 1], got %g", *c.PassiveReflection)
	}
	return nil
}

// physicsConfig maps the validated config onto the engine's knobs,
// applying package defaults for unset fields.
func (c *Config) physicsConfig() physics.Config {
	pc := physics.Config{
		NoiseStd:          c.NoiseStd,
		PassiveReflection: physics.DefaultPassiveReflection,
		SingleBounce:      c.Solver == SolverSingleBounce,
	}
	if c.PassiveReflection != nil {
		pc.PassiveReflection = *c.PassiveReflection
	}
	if c.PowerThresholdDBm != nil {
		pc.PowerThresholdDBm = *c.PowerThresholdDBm
	}
	return pc
}
