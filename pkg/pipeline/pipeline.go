// Package pipeline runs the lead scoring training flow:
// load, scale, train, evaluate, then extract and export weights.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mchmarny/leadscore/pkg/config"
	"github.com/mchmarny/leadscore/pkg/dataset"
	"github.com/mchmarny/leadscore/pkg/metrics"
	"github.com/mchmarny/leadscore/pkg/model"
	"github.com/mchmarny/leadscore/pkg/scale"
	"github.com/mchmarny/leadscore/pkg/weights"
)

// Options locate the inputs and output of one run.
type Options struct {
	TrainURI  string
	ValidURI  string
	OutputDir string
	// Out receives the human readable report; nil discards it.
	Out io.Writer
}

// Result summarizes a completed run.
type Result struct {
	TrainRows  int             `json:"train_rows" yaml:"train_rows"`
	ValidRows  int             `json:"valid_rows" yaml:"valid_rows"`
	Iterations int             `json:"iterations" yaml:"iterations"`
	Converged  bool            `json:"converged" yaml:"converged"`
	Intercept  float64         `json:"intercept" yaml:"intercept"`
	Metrics    *metrics.Record `json:"metrics" yaml:"metrics"`
	Weights    weights.Table   `json:"weights" yaml:"weights"`
	Path       string          `json:"path" yaml:"path"`
	Duration   string          `json:"duration" yaml:"duration"`
}

// Run executes every stage once, in order. The first failing stage ends
// the run and nothing after it executes, so no weights file is written.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	start := time.Now()
	slog.Debug("pipeline started",
		"train", opts.TrainURI,
		"valid", opts.ValidURI,
		"output", opts.OutputDir,
		"seed", cfg.Seed)

	// 1. load
	split, err := dataset.Load(ctx, opts.TrainURI, opts.ValidURI, cfg.Features, cfg.Label)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Train: %d rows, Valid: %d rows\n", split.Train.Rows(), split.Valid.Rows())

	// 2. standardize with training statistics only
	scaler, err := scale.Fit(cfg.Features, split.Train.X)
	if err != nil {
		return nil, err
	}
	xTrain, err := scaler.Transform(split.Train.X)
	if err != nil {
		return nil, err
	}
	xValid, err := scaler.Transform(split.Valid.X)
	if err != nil {
		return nil, err
	}

	// 3. train
	m, err := model.Train(xTrain, split.Train.Y, cfg.Features, cfg.Model)
	if err != nil {
		return nil, err
	}
	if m.Converged {
		fmt.Fprintf(out, "Logistic Regression trained, converged in %d iterations\n", m.Iterations)
	} else {
		fmt.Fprintf(out, "Logistic Regression trained, stopped after %d iterations without converging\n", m.Iterations)
	}

	// 4. evaluate
	rec, err := metrics.Evaluate(m, xValid, split.Valid.Y, cfg.TopK)
	if err != nil {
		return nil, err
	}
	rec.Print(out)

	// 5. extract and export
	tbl, err := weights.Extract(m)
	if err != nil {
		return nil, err
	}
	tbl.Print(out)

	path, err := weights.Export(tbl, opts.OutputDir, cfg.WeightsFile)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "\nWeights exported to %s\n", path)
	fmt.Fprintln(out, "\nPipeline complete.")

	res := &Result{
		TrainRows:  split.Train.Rows(),
		ValidRows:  split.Valid.Rows(),
		Iterations: m.Iterations,
		Converged:  m.Converged,
		Intercept:  m.Intercept,
		Metrics:    rec,
		Weights:    tbl,
		Path:       path,
		Duration:   time.Since(start).String(),
	}

	slog.Debug("pipeline finished", "duration", res.Duration, "path", path)
	return res, nil
}
