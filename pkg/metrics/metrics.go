// Package metrics scores predicted probabilities against binary labels.
package metrics

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sort"

	"github.com/mchmarny/leadscore/pkg/errs"
	"github.com/mchmarny/leadscore/pkg/model"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Record is the validation metric block of one fitted model.
type Record struct {
	AUCROC       float64         `json:"auc_roc" yaml:"auc_roc"`
	PRAUC        float64         `json:"pr_auc" yaml:"pr_auc"`
	Brier        float64         `json:"brier" yaml:"brier"`
	PrecisionAtK map[int]float64 `json:"precision_at_k" yaml:"precision_at_k"`
	Rows         int             `json:"rows" yaml:"rows"`
	Positives    int             `json:"positives" yaml:"positives"`
}

// Evaluate scores m on x against y. Any metric failure fails the whole
// evaluation.
func Evaluate(m *model.Model, x *mat.Dense, y []float64, ks []int) (*Record, error) {
	if m == nil {
		return nil, errs.Metrics(errs.StageEvaluate, "model required")
	}

	probs, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}

	return Score(y, probs, ks)
}

// Score computes every metric from labels and probabilities.
func Score(y, probs []float64, ks []int) (*Record, error) {
	if err := check(y, probs); err != nil {
		return nil, err
	}

	r := &Record{
		PrecisionAtK: make(map[int]float64, len(ks)),
		Rows:         len(y),
		Positives:    countPositives(y),
	}

	var err error
	if r.AUCROC, err = AUCROC(y, probs); err != nil {
		return nil, err
	}
	if r.PRAUC, err = AveragePrecision(y, probs); err != nil {
		return nil, err
	}
	if r.Brier, err = Brier(y, probs); err != nil {
		return nil, err
	}
	for _, k := range ks {
		p, err := PrecisionAtK(y, probs, k)
		if err != nil {
			return nil, err
		}
		r.PrecisionAtK[k] = p
	}

	return r, nil
}

// AUCROC is the probability that a random positive ranks above a random
// negative. Tied scores get half credit through averaged ranks.
func AUCROC(y, probs []float64) (float64, error) {
	if err := check(y, probs); err != nil {
		return 0, err
	}

	pos := countPositives(y)
	neg := len(y) - pos
	if pos == 0 || neg == 0 {
		return 0, errs.Metrics(errs.StageEvaluate, "AUC-ROC is undefined with a single class (%d of %d positive)", pos, len(y))
	}

	order := argsort(probs)
	var rankSum float64
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && probs[order[j+1]] == probs[order[i]] {
			j++
		}
		// ranks i+1..j+1 share their average
		avg := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			if y[order[k]] == 1 {
				rankSum += avg
			}
		}
		i = j + 1
	}

	p, n := float64(pos), float64(neg)
	return (rankSum - p*(p+1)/2) / (p * n), nil
}

// AveragePrecision is the area under the precision-recall curve:
// sum over distinct thresholds, highest first, of (R_n - R_n-1) * P_n.
func AveragePrecision(y, probs []float64) (float64, error) {
	if err := check(y, probs); err != nil {
		return 0, err
	}

	pos := countPositives(y)
	if pos == 0 {
		return 0, errs.Metrics(errs.StageEvaluate, "average precision is undefined without positive labels")
	}

	order := argsort(probs)
	slices.Reverse(order)

	var tp, fp, prevRecall, ap float64
	for i := 0; i < len(order); {
		j := i
		for ; j < len(order) && probs[order[j]] == probs[order[i]]; j++ {
			if y[order[j]] == 1 {
				tp++
			} else {
				fp++
			}
		}
		recall := tp / float64(pos)
		ap += (recall - prevRecall) * tp / (tp + fp)
		prevRecall = recall
		i = j
	}

	return ap, nil
}

// Brier is the mean squared difference between probability and label.
func Brier(y, probs []float64) (float64, error) {
	if err := check(y, probs); err != nil {
		return 0, err
	}

	d := make([]float64, len(probs))
	floats.SubTo(d, probs, y)
	return floats.Dot(d, d) / float64(len(d)), nil
}

// PrecisionAtK is the positive rate among the k highest scored rows.
// Rows are ranked by a stable ascending sort on probability, ties kept in
// input order, and the last k are taken; among tied probabilities the
// later row wins. k larger than the row count covers every row.
func PrecisionAtK(y, probs []float64, k int) (float64, error) {
	if err := check(y, probs); err != nil {
		return 0, err
	}
	if k <= 0 {
		return 0, errs.Metrics(errs.StageEvaluate, "precision@k requires a positive k, got %d", k)
	}

	k = min(k, len(y))
	order := argsort(probs)

	var hits float64
	for _, i := range order[len(order)-k:] {
		hits += y[i]
	}
	return hits / float64(k), nil
}

// Print writes the metric block in the console report format.
func (r *Record) Print(w io.Writer) {
	fmt.Fprintln(w, "\n--- Validation Metrics ---")
	fmt.Fprintf(w, "  AUC-ROC: %.4f\n", r.AUCROC)
	fmt.Fprintf(w, "  PR-AUC: %.4f\n", r.PRAUC)
	fmt.Fprintf(w, "  Brier: %.4f\n", r.Brier)
	for _, k := range r.Ks() {
		fmt.Fprintf(w, "  P@%d: %.4f\n", k, r.PrecisionAtK[k])
	}
}

// Ks returns the evaluated K values in ascending order.
func (r *Record) Ks() []int {
	ks := make([]int, 0, len(r.PrecisionAtK))
	for k := range r.PrecisionAtK {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	return ks
}

// argsort returns row indexes in stable ascending probability order.
func argsort(probs []float64) []int {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] < probs[idx[b]]
	})
	return idx
}

func check(y, probs []float64) error {
	if len(y) == 0 {
		return errs.Metrics(errs.StageEvaluate, "no validation rows")
	}
	if len(y) != len(probs) {
		return errs.Metrics(errs.StageEvaluate, "%d labels but %d probabilities", len(y), len(probs))
	}
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return errs.Metrics(errs.StageEvaluate, "row %d: probability %v outside [0, 1]", i+1, p)
		}
	}
	return nil
}

func countPositives(y []float64) int {
	n := 0
	for _, v := range y {
		if v == 1 {
			n++
		}
	}
	return n
}
