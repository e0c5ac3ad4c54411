// Package config loads run configuration for the yggdrasil CLI.
//
// Configuration can be loaded from:
//   - YAML configuration file
//   - Environment variables (recommended for containers)
//   - Programmatic defaults
//
// Environment Variables:
//
//	YGGDRASIL_TREE                - Newick tree file path
//	YGGDRASIL_ALIGNMENT           - FASTA alignment file path
//	YGGDRASIL_MODEL               - Substitution model name (default: T92)
//	YGGDRASIL_MODEL_KAPPA         - Transition/transversion ratio
//	YGGDRASIL_MODEL_THETA         - Equilibrium GC content
//	YGGDRASIL_OPT_MAX_EVALUATIONS - Objective evaluation budget (default: 10000)
//	YGGDRASIL_OPT_GRADIENT_FREE   - Force derivative-free optimization
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes one likelihood run: the input data, the substitution
// model and the optimizer budget.
type Config struct {
	// TreeFile is the path of the Newick tree.
	TreeFile string `yaml:"tree"`

	// AlignmentFile is the path of the FASTA alignment.
	AlignmentFile string `yaml:"alignment"`

	// Model selects and parameterizes the substitution model.
	Model ModelConfig `yaml:"model"`

	// Optimize tunes the optimizer subcommand.
	Optimize OptimizeConfig `yaml:"optimize"`
}

// ModelConfig names a substitution model and its starting parameters.
// Parameters left at zero fall back to the model defaults.
type ModelConfig struct {
	// Name is the model name. Only "T92" is currently available.
	Name string `yaml:"name"`

	// Kappa is the transition/transversion ratio.
	Kappa float64 `yaml:"kappa"`

	// Theta is the equilibrium GC content, in (0, 1).
	Theta float64 `yaml:"theta"`
}

// OptimizeConfig bounds the optimizer.
type OptimizeConfig struct {
	// MaxEvaluations limits objective evaluations, 0 for no limit.
	MaxEvaluations int `yaml:"max_evaluations"`

	// GradientFree forces a derivative-free method.
	GradientFree bool `yaml:"gradient_free"`

	// Branches enables branch length optimization (default: true).
	Branches *bool `yaml:"branches"`
}

// DefaultConfig returns a configuration with the T92 defaults and a
// generous optimizer budget. Input paths must still be provided.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{Name: "T92"},
		Optimize: OptimizeConfig{
			MaxEvaluations: 10000,
		},
	}
}

// Validate checks that the configuration describes a runnable job.
func (c *Config) Validate() error {
	if c.TreeFile == "" {
		return fmt.Errorf("config: tree file path is required")
	}
	if c.AlignmentFile == "" {
		return fmt.Errorf("config: alignment file path is required")
	}
	if !strings.EqualFold(c.Model.Name, "T92") {
		return fmt.Errorf("config: unknown model %q", c.Model.Name)
	}
	if c.Model.Kappa < 0 {
		return fmt.Errorf("config: kappa must be positive, got %g", c.Model.Kappa)
	}
	if c.Model.Theta < 0 || c.Model.Theta >= 1 {
		return fmt.Errorf("config: theta must be in (0, 1), got %g", c.Model.Theta)
	}
	if c.Optimize.MaxEvaluations < 0 {
		return fmt.Errorf("config: max_evaluations must be non-negative, got %d", c.Optimize.MaxEvaluations)
	}
	return nil
}

// ModelParameters returns the explicitly configured model parameters by
// name, omitting the ones left at zero so model defaults apply.
func (c *Config) ModelParameters() map[string]float64 {
	out := make(map[string]float64, 2)
	if c.Model.Kappa != 0 {
		out["kappa"] = c.Model.Kappa
	}
	if c.Model.Theta != 0 {
		out["theta"] = c.Model.Theta
	}
	return out
}

// OptimizeBranches reports whether branch lengths should be optimized.
func (c *Config) OptimizeBranches() bool {
	return c.Optimize.Branches == nil || *c.Optimize.Branches
}

// LoadConfig loads configuration from a YAML file, filling defaults for
// unspecified fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = "T92"
	}
	return cfg, nil
}

// LoadConfigOrDefault loads config from file, or returns defaults if the
// file doesn't exist.
func LoadConfigOrDefault(path string) *Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// LoadFromEnvOrFile loads config from file first, then applies environment
// variable overrides. Environment variables take precedence.
func LoadFromEnvOrFile(path string) *Config {
	cfg := LoadConfigOrDefault(path)

	if v := os.Getenv("YGGDRASIL_TREE"); v != "" {
		cfg.TreeFile = v
	}
	if v := os.Getenv("YGGDRASIL_ALIGNMENT"); v != "" {
		cfg.AlignmentFile = v
	}
	if v := os.Getenv("YGGDRASIL_MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("YGGDRASIL_MODEL_KAPPA"); v != "" {
		cfg.Model.Kappa = parseFloat(v, cfg.Model.Kappa)
	}
	if v := os.Getenv("YGGDRASIL_MODEL_THETA"); v != "" {
		cfg.Model.Theta = parseFloat(v, cfg.Model.Theta)
	}
	if v := os.Getenv("YGGDRASIL_OPT_MAX_EVALUATIONS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Optimize.MaxEvaluations = n
		}
	}
	if v := os.Getenv("YGGDRASIL_OPT_GRADIENT_FREE"); v != "" {
		cfg.Optimize.GradientFree = parseBool(v, cfg.Optimize.GradientFree)
	}
	return cfg
}

// parseBool parses a boolean from string with a default value.
func parseBool(s string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultVal
	}
}

// parseFloat parses a float from string with a default value.
func parseFloat(s string, defaultVal float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return defaultVal
	}
	return v
}
