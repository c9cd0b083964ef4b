// Package weights turns fitted coefficients into the exported,
// L1-normalized feature weight table.
package weights

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/mchmarny/leadscore/pkg/errs"
	"github.com/mchmarny/leadscore/pkg/model"
	"gonum.org/v1/gonum/floats"
)

const (
	dirMode  = 0755
	fileMode = 0644
)

var header = []string{"feature", "weight"}

// Row is one feature weight.
type Row struct {
	Feature string  `json:"feature" yaml:"feature"`
	Weight  float64 `json:"weight" yaml:"weight"`
}

// Table holds one row per feature, sorted by feature name.
type Table []Row

// Extract divides every coefficient by the sum of absolute coefficients,
// so |weights| sum to 1 and signs are kept, then sorts by feature name.
func Extract(m *model.Model) (Table, error) {
	if m == nil {
		return nil, errs.Data(errs.StageExport, "model required")
	}
	if len(m.Coef) != len(m.Features) {
		return nil, errs.Schema(errs.StageExport, "model has %d coefficients for %d features", len(m.Coef), len(m.Features))
	}

	sum := floats.Norm(m.Coef, 1)
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, errs.Data(errs.StageExport, "cannot normalize coefficients with absolute sum %v", sum)
	}

	t := make(Table, len(m.Coef))
	for i, c := range m.Coef {
		t[i] = Row{Feature: m.Features[i], Weight: c / sum}
	}

	sort.Slice(t, func(i, j int) bool { return t[i].Feature < t[j].Feature })
	return t, nil
}

// Print writes the table in the console report format.
func (t Table) Print(w io.Writer) {
	fmt.Fprintln(w, "\n--- Normalized Weights ---")
	for _, r := range t {
		fmt.Fprintf(w, "  %23s: %+.6f\n", r.Feature, r.Weight)
	}
}

// WriteCSV writes the header and one row per feature.
func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range t {
		if err := cw.Write([]string{r.Feature, strconv.FormatFloat(r.Weight, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export writes the table to dir/fileName, creating dir as needed and
// replacing any previous file. It returns the written path.
func Export(t Table, dir, fileName string) (string, error) {
	if len(t) == 0 {
		return "", errs.Data(errs.StageExport, "weight table is empty")
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return "", errs.IO(errs.StageExport, "failed to create output dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, fileName)
	tmp, err := os.CreateTemp(dir, "."+fileName+".*")
	if err != nil {
		return "", errs.IO(errs.StageExport, "failed to create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if err := t.WriteCSV(tmp); err != nil {
		tmp.Close()
		return "", errs.IO(errs.StageExport, "failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return "", errs.IO(errs.StageExport, "failed to set mode on %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", errs.IO(errs.StageExport, "failed to close %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errs.IO(errs.StageExport, "failed to replace %s: %w", path, err)
	}

	return path, nil
}
