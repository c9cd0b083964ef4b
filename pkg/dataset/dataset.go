// Package dataset loads the labeled train and validation tables and
// splits each into a feature matrix and a label vector.
package dataset

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/mchmarny/leadscore/pkg/errs"
	"gonum.org/v1/gonum/mat"
)

const (
	SplitTrain = "train"
	SplitValid = "valid"
)

// Table is one split. X is nil when the split has no rows.
type Table struct {
	Name     string
	Features []string
	X        *mat.Dense
	Y        []float64
}

// Rows returns the number of observations in the table.
func (t *Table) Rows() int {
	if t == nil {
		return 0
	}
	return len(t.Y)
}

// Positives returns the number of rows labeled 1.
func (t *Table) Positives() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, v := range t.Y {
		if v == 1 {
			n++
		}
	}
	return n
}

// Split holds the train and validation tables, which share one schema.
type Split struct {
	Train *Table
	Valid *Table
}

// Load reads both splits and selects the configured columns from each.
func Load(ctx context.Context, trainURI, validURI string, features []string, label string) (*Split, error) {
	train, err := LoadTable(ctx, SplitTrain, trainURI, features, label)
	if err != nil {
		return nil, err
	}

	valid, err := LoadTable(ctx, SplitValid, validURI, features, label)
	if err != nil {
		return nil, err
	}

	slog.Debug("data loaded",
		"train_rows", train.Rows(),
		"train_positives", train.Positives(),
		"valid_rows", valid.Rows(),
		"valid_positives", valid.Positives())

	return &Split{Train: train, Valid: valid}, nil
}

// LoadTable reads one split from uri.
func LoadTable(ctx context.Context, name, uri string, features []string, label string) (*Table, error) {
	src, err := Open(uri)
	if err != nil {
		return nil, err
	}

	slog.Debug("loading split", "split", name, "source", src.String())

	recs, err := src.Read(ctx)
	if err != nil {
		return nil, err
	}

	return FromRecords(name, recs, features, label)
}

// FromRecords selects the feature and label columns from raw records.
// Extra columns are ignored and column order is free.
func FromRecords(name string, recs *Records, features []string, label string) (*Table, error) {
	if recs == nil {
		return nil, errs.Schema(errs.StageLoad, "%s: no records", name)
	}

	index := columnIndex(recs.Header)

	featIdx := make([]int, len(features))
	for i, f := range features {
		j, err := lookup(name, index, f, "feature")
		if err != nil {
			return nil, err
		}
		featIdx[i] = j
	}

	labelIdx, err := lookup(name, index, label, "label")
	if err != nil {
		return nil, err
	}

	t := &Table{
		Name:     name,
		Features: append([]string(nil), features...),
		Y:        make([]float64, len(recs.Rows)),
	}
	if len(recs.Rows) == 0 {
		return t, nil
	}

	data := make([]float64, len(recs.Rows)*len(features))
	for r, row := range recs.Rows {
		// row numbers are 1-based and exclude the header
		for i, j := range featIdx {
			v, err := parseFeature(row[j])
			if err != nil {
				return nil, errs.Data(errs.StageLoad, "%s: row %d column %q: %w", name, r+1, features[i], err)
			}
			data[r*len(features)+i] = v
		}

		y, err := parseLabel(row[labelIdx])
		if err != nil {
			return nil, errs.Data(errs.StageLoad, "%s: row %d column %q: %w", name, r+1, label, err)
		}
		t.Y[r] = y
	}

	t.X = mat.NewDense(len(recs.Rows), len(features), data)
	return t, nil
}

// columnIndex maps header names to positions; duplicated names map to -1.
func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := index[h]; dup {
			index[h] = -1
			continue
		}
		index[h] = i
	}
	return index
}

func lookup(name string, index map[string]int, col, kind string) (int, error) {
	j, ok := index[col]
	if !ok {
		return 0, errs.Schema(errs.StageLoad, "%s: missing %s column %q", name, kind, col)
	}
	if j < 0 {
		return 0, errs.Schema(errs.StageLoad, "%s: ambiguous %s column %q appears more than once", name, kind, col)
	}
	return j, nil
}

func parseFeature(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}

func parseLabel(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if v != 0 && v != 1 {
		return 0, errLabelValue(s)
	}
	return v, nil
}

type errLabelValue string

func (e errLabelValue) Error() string {
	return "label must be 0 or 1, got " + strconv.Quote(string(e))
}
