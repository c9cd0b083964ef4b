package errs

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormat(t *testing.T) {
	err := Schema(StageLoad, "train: missing column %q", "mms_affinity")
	assert.Equal(t, `schema error [load]: train: missing column "mms_affinity"`, err.Error())

	err = &DataError{Err: errors.New("no rows")}
	assert.Equal(t, "data error: no rows", err.Error())
}

func TestClass(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"schema", Schema(StageLoad, "x"), "SchemaError"},
		{"data", Data(StageScale, "x"), "DataError"},
		{"metrics", Metrics(StageEvaluate, "x"), "MetricsError"},
		{"io", IO(StageExport, "x"), "IOError"},
		{"convergence", &ConvergenceError{Stage: StageTrain, Err: errors.New("x")}, "ConvergenceError"},
		{"warning", &ConvergenceWarning{Iterations: 3, Reason: "limit"}, "ConvergenceWarning"},
		{"wrapped", fmt.Errorf("running: %w", Data(StageTrain, "x")), "DataError"},
		{"other", errors.New("x"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Class(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(&ConvergenceWarning{Iterations: 10, Reason: "iteration limit"}))
	assert.True(t, IsFatal(Data(StageTrain, "single class")))
	assert.True(t, IsFatal(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	err := &IOError{Stage: StageLoad, Err: fmt.Errorf("open: %w", os.ErrNotExist)}
	assert.ErrorIs(t, err, os.ErrNotExist)
}
