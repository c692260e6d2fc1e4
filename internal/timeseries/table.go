// Package timeseries provides the small time-indexed table the ledger
// and backtest reports are assembled from: named float64 columns over
// a shared ascending time index, with the forward-fill and return
// arithmetic performance reporting needs.
package timeseries

import (
	"math"
	"sort"
	"time"
)

// Table is a time-indexed table of float64 columns. Cells[i][j] holds
// the value of Columns[j] at Times[i]; missing cells are NaN.
type Table struct {
	Times   []time.Time
	Columns []string
	Cells   [][]float64
}

// New creates an empty table with the given column names.
func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

// columnIndex returns the position of name, adding the column (and
// backfilling NaN) if it does not exist yet.
func (t *Table) columnIndex(name string) int {
	for j, c := range t.Columns {
		if c == name {
			return j
		}
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Cells {
		t.Cells[i] = append(t.Cells[i], math.NaN())
	}
	return len(t.Columns) - 1
}

// rowIndex returns the row for ts, inserting a NaN row to keep the
// index sorted when ts is unseen.
func (t *Table) rowIndex(ts time.Time) int {
	i := sort.Search(len(t.Times), func(i int) bool { return !t.Times[i].Before(ts) })
	if i < len(t.Times) && t.Times[i].Equal(ts) {
		return i
	}
	row := make([]float64, len(t.Columns))
	for j := range row {
		row[j] = math.NaN()
	}
	t.Times = append(t.Times, time.Time{})
	copy(t.Times[i+1:], t.Times[i:])
	t.Times[i] = ts
	t.Cells = append(t.Cells, nil)
	copy(t.Cells[i+1:], t.Cells[i:])
	t.Cells[i] = row
	return i
}

// Set writes one cell, growing the index and columns as needed.
// Writing the same (time, column) twice keeps the last value.
func (t *Table) Set(ts time.Time, column string, value float64) {
	j := t.columnIndex(column)
	i := t.rowIndex(ts)
	t.Cells[i][j] = value
}

// Get reads one cell; ok is false when the cell is missing.
func (t *Table) Get(ts time.Time, column string) (float64, bool) {
	j := -1
	for k, c := range t.Columns {
		if c == column {
			j = k
			break
		}
	}
	if j < 0 {
		return 0, false
	}
	i := sort.Search(len(t.Times), func(i int) bool { return !t.Times[i].Before(ts) })
	if i >= len(t.Times) || !t.Times[i].Equal(ts) {
		return 0, false
	}
	v := t.Cells[i][j]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ForwardFill replaces every NaN cell with the last seen value of its
// column. Leading NaNs stay NaN.
func (t *Table) ForwardFill() {
	for j := range t.Columns {
		last := math.NaN()
		for i := range t.Times {
			if math.IsNaN(t.Cells[i][j]) {
				t.Cells[i][j] = last
			} else {
				last = t.Cells[i][j]
			}
		}
	}
}

// RowSum returns per-timestamp sums across all columns, treating NaN
// as zero.
func (t *Table) RowSum() []float64 {
	sums := make([]float64, len(t.Times))
	for i, row := range t.Cells {
		for _, v := range row {
			if !math.IsNaN(v) {
				sums[i] += v
			}
		}
	}
	return sums
}

// PctChange computes element-wise percentage change over a series; the
// first element (and any element following a zero) is 0.
func PctChange(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			out[i] = values[i]/values[i-1] - 1
		}
	}
	return out
}

// CumProd returns the running product of (1 + r) for a return series,
// i.e. a performance index starting at 1.0.
func CumProd(returns []float64) []float64 {
	out := make([]float64, len(returns))
	acc := 1.0
	for i, r := range returns {
		acc *= 1 + r
		out[i] = acc
	}
	return out
}

// ResampleDaily reduces the table to the last observation of each
// calendar day (in the index's locations), stamped at that
// observation's own time.
func (t *Table) ResampleDaily() *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for i := range t.Times {
		last := i == len(t.Times)-1 || !sameDay(t.Times[i], t.Times[i+1])
		if !last {
			continue
		}
		out.Times = append(out.Times, t.Times[i])
		out.Cells = append(out.Cells, append([]float64(nil), t.Cells[i]...))
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
