package metrics

import (
	"bytes"
	"testing"

	"github.com/mchmarny/leadscore/pkg/errs"
	"github.com/mchmarny/leadscore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestAUCROC(t *testing.T) {
	tests := []struct {
		name  string
		y     []float64
		probs []float64
		want  float64
	}{
		{"perfect", []float64{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1.0},
		{"inverted", []float64{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}, 0.0},
		{"all tied", []float64{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"known", []float64{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75},
		{"partial tie", []float64{0, 1, 0, 1}, []float64{0.2, 0.5, 0.5, 0.9}, 0.875},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUCROC(tt.y, tt.probs)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAUCROC_PerfectIsExact(t *testing.T) {
	y := make([]float64, 300)
	p := make([]float64, 300)
	for i := range y {
		p[i] = float64(i) / 300
		if i >= 270 {
			y[i] = 1
		}
	}
	got, err := AUCROC(y, p)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestAUCROC_SingleClass(t *testing.T) {
	_, err := AUCROC([]float64{1, 1}, []float64{0.2, 0.4})
	var me *errs.MetricsError
	assert.ErrorAs(t, err, &me)
}

func TestAveragePrecision(t *testing.T) {
	tests := []struct {
		name  string
		y     []float64
		probs []float64
		want  float64
	}{
		{"perfect", []float64{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1.0},
		// thresholds 0.8 (P=1, R=.5), 0.4 (P=1/2, R=.5), 0.35 (P=2/3, R=1), 0.1
		{"known", []float64{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}, 0.5 + 0.5*2.0/3},
		{"all tied", []float64{0, 1, 0, 0}, []float64{0.3, 0.3, 0.3, 0.3}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AveragePrecision(tt.y, tt.probs)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAveragePrecision_NoPositives(t *testing.T) {
	_, err := AveragePrecision([]float64{0, 0}, []float64{0.2, 0.4})
	assert.Error(t, err)
}

func TestBrier(t *testing.T) {
	got, err := Brier([]float64{0, 1, 1, 0}, []float64{0.1, 0.9, 0.6, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, (0.01+0.01+0.16+0.25)/4, got, 1e-12)

	got, err = Brier([]float64{0, 1}, []float64{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got, 1e-15)
}

func TestPrecisionAtK(t *testing.T) {
	y := []float64{1, 0, 1, 0, 0}
	p := []float64{0.9, 0.8, 0.7, 0.1, 0.2}

	got, err := PrecisionAtK(y, p, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-15)

	got, err = PrecisionAtK(y, p, 3)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, got, 1e-15)

	// k beyond the row count is the positive rate of the whole set
	got, err = PrecisionAtK(y, p, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got, 1e-15)
}

func TestPrecisionAtK_TieBreak(t *testing.T) {
	// rows 1..3 tie; the later rows in input order win the top slots
	y := []float64{1, 1, 0, 0}
	p := []float64{0.1, 0.5, 0.5, 0.5}

	got, err := PrecisionAtK(y, p, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	y = []float64{1, 0, 0, 1}
	got, err = PrecisionAtK(y, p, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestPrecisionAtK_InvalidK(t *testing.T) {
	_, err := PrecisionAtK([]float64{1}, []float64{0.5}, 0)
	assert.Error(t, err)
}

func TestScore_Errors(t *testing.T) {
	tests := []struct {
		name  string
		y     []float64
		probs []float64
	}{
		{"empty", nil, nil},
		{"length mismatch", []float64{0, 1}, []float64{0.5}},
		{"bad probability", []float64{0, 1}, []float64{0.5, 1.5}},
		{"single class", []float64{0, 0}, []float64{0.5, 0.4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Score(tt.y, tt.probs, []int{100})
			assert.Nil(t, r)
			var me *errs.MetricsError
			assert.ErrorAs(t, err, &me)
		})
	}
}

func TestEvaluate(t *testing.T) {
	m := &model.Model{Coef: []float64{2}, Intercept: -1}
	x := mat.NewDense(4, 1, []float64{-1, -0.5, 0.5, 1})
	y := []float64{0, 0, 1, 1}

	r, err := Evaluate(m, x, y, []int{200, 100})
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.AUCROC)
	assert.InDelta(t, 1.0, r.PRAUC, 1e-12)
	assert.GreaterOrEqual(t, r.Brier, 0.0)
	assert.LessOrEqual(t, r.Brier, 0.25)
	assert.Equal(t, []int{100, 200}, r.Ks())
	assert.InDelta(t, 0.5, r.PrecisionAtK[100], 1e-15)
	assert.Equal(t, 4, r.Rows)
	assert.Equal(t, 2, r.Positives)

	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()
	assert.Contains(t, out, "--- Validation Metrics ---")
	assert.Contains(t, out, "AUC-ROC: 1.0000")
	assert.Contains(t, out, "P@100: 0.5000")
	assert.Contains(t, out, "P@200: 0.5000")
}

func TestEvaluate_EmptyValidation(t *testing.T) {
	m := &model.Model{Coef: []float64{1}}
	_, err := Evaluate(m, nil, nil, []int{100})
	var me *errs.MetricsError
	assert.ErrorAs(t, err, &me)
}
