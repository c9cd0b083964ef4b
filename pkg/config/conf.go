package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultSeed        = 42
	defaultLabel       = "label"
	defaultWeightsFile = "weights.csv"

	PenaltyL2   = "l2"
	SolverLBFGS = "lbfgs"
)

// DefaultFeatures is the ordered lead feature schema.
var DefaultFeatures = []string{
	"recency_days",
	"fatigue_score",
	"sentiment_score",
	"engagement_rate_30d",
	"reply_rate_90d",
	"opt_out_risk",
	"mms_affinity",
}

// Config is the static configuration of one pipeline run.
type Config struct {
	Features    []string `yaml:"features"`
	Label       string   `yaml:"label"`
	Seed        uint64   `yaml:"seed"`
	Model       Model    `yaml:"model"`
	TopK        []int    `yaml:"top_k"`
	WeightsFile string   `yaml:"weights_file"`
}

// Model holds the logistic regression hyperparameters.
type Model struct {
	// C is the inverse regularization strength; smaller is stronger.
	C                    float64 `yaml:"c"`
	Penalty              string  `yaml:"penalty"`
	Solver               string  `yaml:"solver"`
	MaxIter              int     `yaml:"max_iter"`
	Tolerance            float64 `yaml:"tolerance"`
	FailOnNonConvergence bool    `yaml:"fail_on_nonconvergence"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Features: append([]string(nil), DefaultFeatures...),
		Label:    defaultLabel,
		Seed:     defaultSeed,
		Model: Model{
			C:         0.1,
			Penalty:   PenaltyL2,
			Solver:    SolverLBFGS,
			MaxIter:   1000,
			Tolerance: 1e-6,
		},
		TopK:        []int{100, 200},
		WeightsFile: defaultWeightsFile,
	}
}

// Load returns the defaults overlaid with the YAML file at path.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	if err := Decode(bytes.NewReader(b), c); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return c, nil
}

// Decode overlays YAML from r onto c. Unknown keys are rejected.
func Decode(r io.Reader, c *Config) error {
	if c == nil {
		return errors.New("config required")
	}
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Features) == 0 {
		return errors.New("at least one feature required")
	}

	seen := make(map[string]bool, len(c.Features))
	for _, f := range c.Features {
		f = strings.TrimSpace(f)
		if f == "" {
			return errors.New("feature name cannot be empty")
		}
		if seen[f] {
			return fmt.Errorf("duplicate feature: %s", f)
		}
		seen[f] = true
	}

	if strings.TrimSpace(c.Label) == "" {
		return errors.New("label column required")
	}
	if seen[c.Label] {
		return fmt.Errorf("label column %s is also a feature", c.Label)
	}

	if c.Model.C <= 0 {
		return fmt.Errorf("model.c must be positive, got %v", c.Model.C)
	}
	if c.Model.Penalty != PenaltyL2 {
		return fmt.Errorf("unsupported penalty: %s", c.Model.Penalty)
	}
	if c.Model.Solver != SolverLBFGS {
		return fmt.Errorf("unsupported solver: %s", c.Model.Solver)
	}
	if c.Model.MaxIter <= 0 {
		return fmt.Errorf("model.max_iter must be positive, got %d", c.Model.MaxIter)
	}
	if c.Model.Tolerance <= 0 {
		return fmt.Errorf("model.tolerance must be positive, got %v", c.Model.Tolerance)
	}

	for _, k := range c.TopK {
		if k <= 0 {
			return fmt.Errorf("top_k values must be positive, got %d", k)
		}
	}

	if strings.TrimSpace(c.WeightsFile) == "" || strings.ContainsAny(c.WeightsFile, `/\`) {
		return fmt.Errorf("weights_file must be a plain file name, got %q", c.WeightsFile)
	}

	return nil
}
