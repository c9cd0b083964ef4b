// Package model fits an L2-regularized logistic regression with L-BFGS
// and scores rows with the fitted linear decision function.
package model

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/mchmarny/leadscore/pkg/config"
	"github.com/mchmarny/leadscore/pkg/errs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Model is a fitted linear classifier. It is immutable once returned.
type Model struct {
	Features   []string
	Coef       []float64
	Intercept  float64
	Iterations int
	Converged  bool
	// Loss is the regularized objective at the returned coefficients.
	Loss float64
	// Warning is set when the optimizer stopped before converging.
	Warning *errs.ConvergenceWarning
}

// Train minimizes
//
//	mean(-y*log(p) - (1-y)*log(1-p)) + (1/C)*||w||^2,  p = sigmoid(w.x + b)
//
// starting from all-zero parameters, so identical inputs always produce
// identical coefficients. The intercept is not penalized.
func Train(x *mat.Dense, y []float64, features []string, params config.Model) (*Model, error) {
	if x == nil || len(y) == 0 {
		return nil, errs.Data(errs.StageTrain, "cannot train on a split with no rows")
	}

	rows, cols := x.Dims()
	if rows != len(y) {
		return nil, errs.Data(errs.StageTrain, "feature matrix has %d rows, label vector has %d", rows, len(y))
	}
	if cols != len(features) {
		return nil, errs.Schema(errs.StageTrain, "matrix has %d columns, schema has %d features", cols, len(features))
	}
	if params.C <= 0 || params.MaxIter <= 0 {
		return nil, fmt.Errorf("invalid hyperparameters: c=%v max_iter=%d", params.C, params.MaxIter)
	}

	if pos := positives(y); pos == 0 || pos == len(y) {
		return nil, errs.Data(errs.StageTrain, "training labels contain a single class (%d of %d positive)", pos, len(y))
	}

	obj := &objective{x: x, y: y, lambda: 1 / params.C}
	problem := optimize.Problem{
		Func: obj.value,
		Grad: obj.gradient,
	}
	// Minimize counts the initial location as a major iteration.
	settings := &optimize.Settings{
		GradientThreshold: params.Tolerance,
		MajorIterations:   params.MaxIter + 1,
	}

	init := make([]float64, cols+1)
	res, err := optimize.Minimize(problem, init, settings, &optimize.LBFGS{})
	if res == nil {
		if err == nil {
			err = errors.New("optimizer returned no result")
		}
		return nil, &errs.ConvergenceError{Stage: errs.StageTrain, Err: err}
	}

	if !allFinite(res.X) {
		return nil, &errs.ConvergenceError{
			Stage: errs.StageTrain,
			Err:   fmt.Errorf("optimizer produced non-finite coefficients (status %v)", res.Status),
		}
	}

	m := &Model{
		Features:   append([]string(nil), features...),
		Coef:       append([]float64(nil), res.X[:cols]...),
		Intercept:  res.X[cols],
		Iterations: max(res.Stats.MajorIterations-1, 0),
		Converged:  err == nil && converged(res.Status),
		Loss:       res.F,
	}

	slog.Debug("optimizer finished",
		"status", res.Status.String(),
		"iterations", m.Iterations,
		"func_evals", res.Stats.FuncEvaluations,
		"loss", m.Loss)

	if !m.Converged {
		reason := res.Status.String()
		if err != nil {
			reason = err.Error()
		}
		w := &errs.ConvergenceWarning{Iterations: m.Iterations, Reason: reason}
		if params.FailOnNonConvergence {
			return nil, &errs.ConvergenceError{Stage: errs.StageTrain, Err: w}
		}
		m.Warning = w
		slog.Warn("logistic regression did not converge", "iterations", m.Iterations, "reason", reason)
	}

	return m, nil
}

// Decision returns w.x + b for every row of x.
func (m *Model) Decision(x *mat.Dense) ([]float64, error) {
	if x == nil {
		return []float64{}, nil
	}

	rows, cols := x.Dims()
	if cols != len(m.Coef) {
		return nil, errs.Schema(errs.StageEvaluate, "matrix has %d columns, model has %d coefficients", cols, len(m.Coef))
	}

	out := make([]float64, rows)
	for i := range out {
		out[i] = floats.Dot(m.Coef, x.RawRowView(i)) + m.Intercept
	}
	return out, nil
}

// PredictProba returns the positive class probability for every row of x.
func (m *Model) PredictProba(x *mat.Dense) ([]float64, error) {
	s, err := m.Decision(x)
	if err != nil {
		return nil, err
	}
	for i, v := range s {
		s[i] = sigmoid(v)
	}
	return s, nil
}

// objective is the penalized mean log-loss over params = [w..., b].
type objective struct {
	x      *mat.Dense
	y      []float64
	lambda float64
}

func (o *objective) value(params []float64) float64 {
	w, b := split(params)
	var loss float64
	for i, yi := range o.y {
		s := floats.Dot(w, o.x.RawRowView(i)) + b
		loss += softplus(s) - yi*s
	}
	return loss/float64(len(o.y)) + o.lambda*floats.Dot(w, w)
}

func (o *objective) gradient(grad, params []float64) {
	w, b := split(params)
	n := float64(len(o.y))

	for i := range grad {
		grad[i] = 0
	}
	gw := grad[:len(w)]
	for i, yi := range o.y {
		row := o.x.RawRowView(i)
		r := sigmoid(floats.Dot(w, row)+b) - yi
		floats.AddScaled(gw, r, row)
		grad[len(w)] += r
	}

	floats.Scale(1/n, grad)
	floats.AddScaled(gw, 2*o.lambda, w)
}

func split(params []float64) ([]float64, float64) {
	n := len(params) - 1
	return params[:n], params[n]
}

func sigmoid(s float64) float64 {
	if s >= 0 {
		return 1 / (1 + math.Exp(-s))
	}
	e := math.Exp(s)
	return e / (1 + e)
}

// softplus is log(1 + e^s) without overflow.
func softplus(s float64) float64 {
	if s > 0 {
		return s + math.Log1p(math.Exp(-s))
	}
	return math.Log1p(math.Exp(s))
}

func converged(s optimize.Status) bool {
	return s == optimize.GradientThreshold || s == optimize.FunctionConvergence
}

func positives(y []float64) int {
	n := 0
	for _, v := range y {
		if v == 1 {
			n++
		}
	}
	return n
}

func allFinite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
