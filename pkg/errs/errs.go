// Package errs defines the failure classes of the training pipeline.
// Every class records the pipeline stage it came from and wraps a cause.
package errs

import (
	"errors"
	"fmt"
)

// Pipeline stages used to label errors.
const (
	StageLoad     = "load"
	StageScale    = "scale"
	StageTrain    = "train"
	StageEvaluate = "evaluate"
	StageExport   = "export"
)

// SchemaError reports missing or mismatched feature or label columns.
type SchemaError struct {
	Stage string
	Err   error
}

func (e *SchemaError) Error() string { return format("schema error", e.Stage, e.Err) }
func (e *SchemaError) Unwrap() error { return e.Err }

// DataError reports degenerate input: single-class labels, constant
// feature columns, unparseable values or all-zero coefficients.
type DataError struct {
	Stage string
	Err   error
}

func (e *DataError) Error() string { return format("data error", e.Stage, e.Err) }
func (e *DataError) Unwrap() error { return e.Err }

// MetricsError aborts evaluation; no partial metric record is produced.
type MetricsError struct {
	Stage string
	Err   error
}

func (e *MetricsError) Error() string { return format("metrics error", e.Stage, e.Err) }
func (e *MetricsError) Unwrap() error { return e.Err }

// IOError reports an unreadable input or an unwritable output.
type IOError struct {
	Stage string
	Err   error
}

func (e *IOError) Error() string { return format("io error", e.Stage, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// ConvergenceError is the fatal form of a non-converged fit, used when
// the model configuration asks for strict convergence.
type ConvergenceError struct {
	Stage string
	Err   error
}

func (e *ConvergenceError) Error() string { return format("convergence error", e.Stage, e.Err) }
func (e *ConvergenceError) Unwrap() error { return e.Err }

// ConvergenceWarning is not fatal. The optimizer stopped before meeting
// its tolerance and the run continues with the last iterate.
type ConvergenceWarning struct {
	Iterations int
	Reason     string
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("convergence warning: optimizer stopped after %d iterations: %s", w.Iterations, w.Reason)
}

func Schema(stage, msg string, args ...any) error {
	return &SchemaError{Stage: stage, Err: fmt.Errorf(msg, args...)}
}

func Data(stage, msg string, args ...any) error {
	return &DataError{Stage: stage, Err: fmt.Errorf(msg, args...)}
}

func Metrics(stage, msg string, args ...any) error {
	return &MetricsError{Stage: stage, Err: fmt.Errorf(msg, args...)}
}

func IO(stage, msg string, args ...any) error {
	return &IOError{Stage: stage, Err: fmt.Errorf(msg, args...)}
}

// IsFatal returns false only for a nil error or a ConvergenceWarning.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var w *ConvergenceWarning
	return !errors.As(err, &w)
}

// Class returns the short class name of err, or "error" for errors
// outside the taxonomy.
func Class(err error) string {
	var (
		se *SchemaError
		de *DataError
		me *MetricsError
		ie *IOError
		ce *ConvergenceError
		cw *ConvergenceWarning
	)
	switch {
	case errors.As(err, &se):
		return "SchemaError"
	case errors.As(err, &de):
		return "DataError"
	case errors.As(err, &me):
		return "MetricsError"
	case errors.As(err, &ie):
		return "IOError"
	case errors.As(err, &ce):
		return "ConvergenceError"
	case errors.As(err, &cw):
		return "ConvergenceWarning"
	default:
		return "error"
	}
}

func format(class, stage string, err error) string {
	if stage == "" {
		return fmt.Sprintf("%s: %v", class, err)
	}
	return fmt.Sprintf("%s [%s]: %v", class, stage, err)
}
