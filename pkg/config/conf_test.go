package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Len(t, c.Features, 7)
	assert.Equal(t, "label", c.Label)
	assert.Equal(t, uint64(42), c.Seed)
	assert.InDelta(t, 0.1, c.Model.C, 1e-12)
	assert.Equal(t, 1000, c.Model.MaxIter)
	assert.Equal(t, []int{100, 200}, c.TopK)
	assert.Equal(t, "weights.csv", c.WeightsFile)

	// defaults must not alias the package-level schema
	c.Features[0] = "changed"
	assert.Equal(t, "recency_days", DefaultFeatures[0])
}

func TestLoad_EmptyPath(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
seed: 7
model:
  c: 1.5
  max_iter: 50
  fail_on_nonconvergence: true
top_k: [10]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), c.Seed)
	assert.InDelta(t, 1.5, c.Model.C, 1e-12)
	assert.Equal(t, 50, c.Model.MaxIter)
	assert.True(t, c.Model.FailOnNonConvergence)
	assert.Equal(t, []int{10}, c.TopK)
	// untouched keys keep their defaults
	assert.Equal(t, SolverLBFGS, c.Model.Solver)
	assert.Equal(t, DefaultFeatures, c.Features)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sede: 1\n"), 0600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDecode_Empty(t *testing.T) {
	c := Default()
	require.NoError(t, Decode(strings.NewReader(""), c))
	assert.Equal(t, Default(), c)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no features", func(c *Config) { c.Features = nil }},
		{"empty feature", func(c *Config) { c.Features = []string{"a", " "} }},
		{"duplicate feature", func(c *Config) { c.Features = []string{"a", "a"} }},
		{"no label", func(c *Config) { c.Label = "" }},
		{"label is feature", func(c *Config) { c.Label = "recency_days" }},
		{"zero C", func(c *Config) { c.Model.C = 0 }},
		{"l1 penalty", func(c *Config) { c.Model.Penalty = "l1" }},
		{"other solver", func(c *Config) { c.Model.Solver = "sag" }},
		{"zero iterations", func(c *Config) { c.Model.MaxIter = 0 }},
		{"zero tolerance", func(c *Config) { c.Model.Tolerance = 0 }},
		{"negative k", func(c *Config) { c.TopK = []int{100, -1} }},
		{"weights path", func(c *Config) { c.WeightsFile = "dir/weights.csv" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
