// Package scale standardizes feature columns to zero mean and unit variance
// using statistics fitted on the training matrix only.
package scale

import (
	"log/slog"

	"github.com/mchmarny/leadscore/pkg/errs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler is the fitted per-feature state. It is never modified after Fit.
type Scaler struct {
	Features []string
	Mean     []float64
	// Std is the population standard deviation (divisor n).
	Std []float64
}

// Fit computes per-column mean and population standard deviation.
// A constant column cannot be scaled and fails with a DataError.
func Fit(features []string, x *mat.Dense) (*Scaler, error) {
	if x == nil {
		return nil, errs.Data(errs.StageScale, "cannot fit scaler on a split with no rows")
	}

	rows, cols := x.Dims()
	if cols != len(features) {
		return nil, errs.Schema(errs.StageScale, "matrix has %d columns, schema has %d features", cols, len(features))
	}

	s := &Scaler{
		Features: append([]string(nil), features...),
		Mean:     make([]float64, cols),
		Std:      make([]float64, cols),
	}

	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || floats.Max(col) == floats.Min(col) {
			return nil, errs.Data(errs.StageScale, "feature %q has zero variance in training data", features[j])
		}
		s.Mean[j] = mean
		s.Std[j] = std
		slog.Debug("feature scaled", "feature", features[j], "mean", mean, "std", std)
	}

	return s, nil
}

// Transform returns a new standardized matrix; x is left untouched.
// A nil x (an empty split) transforms to nil.
func (s *Scaler) Transform(x *mat.Dense) (*mat.Dense, error) {
	if x == nil {
		return nil, nil
	}

	rows, cols := x.Dims()
	if cols != len(s.Mean) {
		return nil, errs.Schema(errs.StageScale, "matrix has %d columns, scaler was fitted on %d", cols, len(s.Mean))
	}

	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Std[j]
	}, x)

	return out, nil
}
