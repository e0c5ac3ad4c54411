package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yggdrasil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
tree: data/tree.nwk
alignment: data/align.fasta
model:
  name: T92
  kappa: 2.5
  theta: 0.4
optimize:
  max_evaluations: 500
  gradient_free: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "data/tree.nwk", cfg.TreeFile)
	assert.Equal(t, "data/align.fasta", cfg.AlignmentFile)
	assert.Equal(t, "T92", cfg.Model.Name)
	assert.InDelta(t, 2.5, cfg.Model.Kappa, 1e-12)
	assert.Equal(t, 500, cfg.Optimize.MaxEvaluations)
	assert.True(t, cfg.Optimize.GradientFree)
	assert.True(t, cfg.OptimizeBranches())

	params := cfg.ModelParameters()
	assert.InDelta(t, 2.5, params["kappa"], 1e-12)
	assert.InDelta(t, 0.4, params["theta"], 1e-12)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "tree: t.nwk\nalignment: a.fasta\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "T92", cfg.Model.Name)
	assert.Equal(t, 10000, cfg.Optimize.MaxEvaluations)
	assert.Empty(t, cfg.ModelParameters(), "unset parameters fall back to model defaults")
}

func TestLoadConfigOrDefault(t *testing.T) {
	cfg := LoadConfigOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, "T92", cfg.Model.Name)
	assert.Error(t, cfg.Validate(), "defaults lack input paths")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.TreeFile = "t.nwk"
		cfg.AlignmentFile = "a.fasta"
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing_tree", func(c *Config) { c.TreeFile = "" }},
		{"missing_alignment", func(c *Config) { c.AlignmentFile = "" }},
		{"unknown_model", func(c *Config) { c.Model.Name = "GTR" }},
		{"negative_kappa", func(c *Config) { c.Model.Kappa = -1 }},
		{"theta_out_of_range", func(c *Config) { c.Model.Theta = 1.5 }},
		{"negative_budget", func(c *Config) { c.Optimize.MaxEvaluations = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, base().Validate())
}

func TestLoadFromEnvOrFile(t *testing.T) {
	path := writeConfig(t, "tree: file.nwk\nalignment: file.fasta\nmodel:\n  kappa: 1.5\n")

	t.Setenv("YGGDRASIL_TREE", "env.nwk")
	t.Setenv("YGGDRASIL_MODEL_KAPPA", "3.5")
	t.Setenv("YGGDRASIL_OPT_MAX_EVALUATIONS", "42")
	t.Setenv("YGGDRASIL_OPT_GRADIENT_FREE", "yes")

	cfg := LoadFromEnvOrFile(path)
	assert.Equal(t, "env.nwk", cfg.TreeFile, "env overrides file")
	assert.Equal(t, "file.fasta", cfg.AlignmentFile, "file value kept")
	assert.InDelta(t, 3.5, cfg.Model.Kappa, 1e-12)
	assert.Equal(t, 42, cfg.Optimize.MaxEvaluations)
	assert.True(t, cfg.Optimize.GradientFree)
}

func TestParseBool(t *testing.T) {
	assert.True(t, parseBool("TRUE", false))
	assert.True(t, parseBool(" on ", false))
	assert.False(t, parseBool("off", true))
	assert.True(t, parseBool("garbage", true))
	assert.False(t, parseBool("", false))
}
