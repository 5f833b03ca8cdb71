package model

import (
	"errors"
	"fmt"
	"sort"
	"time"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
)

var (
	ErrEmptyTable     = errors.New("point table has no rows")
	ErrColumnMismatch = errors.New("point table columns differ in length")
)

// Table is a tidy point dataset, one row per observation. Layer and Time are
// optional columns; nil means the column is absent.
type Table struct {
	X      []float64
	Y      []float64
	Rate   []float64
	IDName []string
	Layer  []int
	Time   []time.Time
}

// Rows returns the number of observations.
func (t *Table) Rows() int {
	return len(t.X)
}

func (t *Table) HasLayer() bool {
	return t.Layer != nil
}

func (t *Table) HasTime() bool {
	return t.Time != nil
}

// Validate checks that the required columns are present and all columns have
// equal length.
func (t *Table) Validate() error {
	if t.Rows() == 0 {
		return coreerrors.Invalid(ErrEmptyTable, "empty_table", "")
	}
	lengths := map[string]int{"y": len(t.Y), "rate": len(t.Rate), "id_name": len(t.IDName)}
	if t.HasLayer() {
		lengths["layer"] = len(t.Layer)
	}
	if t.HasTime() {
		lengths["time"] = len(t.Time)
	}
	for _, column := range []string{"y", "rate", "id_name", "layer", "time"} {
		length, ok := lengths[column]
		if ok && length != t.Rows() {
			return coreerrors.Invalid(
				fmt.Errorf("%w: x has %d rows, %s has %d", ErrColumnMismatch, t.Rows(), column, length),
				"column_mismatch",
				"",
			)
		}
	}
	return nil
}

// Extent returns the bounding box of the points.
func (t *Table) Extent() (xmin, xmax, ymin, ymax float64) {
	xmin, xmax = minMax(t.X)
	ymin, ymax = minMax(t.Y)
	return xmin, xmax, ymin, ymax
}

// UniqueLayers returns the sorted distinct layer values.
func (t *Table) UniqueLayers() []int {
	seen := map[int]struct{}{}
	out := []int{}
	for _, layer := range t.Layer {
		if _, ok := seen[layer]; ok {
			continue
		}
		seen[layer] = struct{}{}
		out = append(out, layer)
	}
	sort.Ints(out)
	return out
}

// UniqueTimes returns the sorted distinct instants of the time column.
func (t *Table) UniqueTimes() []time.Time {
	return SortedUnique(t.Time)
}

// Select returns the rows matching the given time and layer. A nil filter
// matches every row.
func (t *Table) Select(at *time.Time, layer *int) *Table {
	out := &Table{}
	if t.HasLayer() {
		out.Layer = []int{}
	}
	if t.HasTime() {
		out.Time = []time.Time{}
	}
	for i := 0; i < t.Rows(); i++ {
		if at != nil && t.HasTime() && !t.Time[i].Equal(*at) {
			continue
		}
		if layer != nil && t.HasLayer() && t.Layer[i] != *layer {
			continue
		}
		out.X = append(out.X, t.X[i])
		out.Y = append(out.Y, t.Y[i])
		out.Rate = append(out.Rate, t.Rate[i])
		out.IDName = append(out.IDName, t.IDName[i])
		if t.HasLayer() {
			out.Layer = append(out.Layer, t.Layer[i])
		}
		if t.HasTime() {
			out.Time = append(out.Time, t.Time[i])
		}
	}
	return out
}

// MaxActive returns the largest number of rows sharing one time. Without a
// layer column every row applies to all nlayer layers.
func (t *Table) MaxActive(nlayer int) int {
	best := t.Rows()
	if t.HasTime() {
		counts := map[instant]int{}
		best = 0
		for _, at := range t.Time {
			key := instantOf(at)
			counts[key]++
			if counts[key] > best {
				best = counts[key]
			}
		}
	}
	if !t.HasLayer() {
		best *= nlayer
	}
	return best
}

type instant struct {
	sec  int64
	nsec int
}

func instantOf(t time.Time) instant {
	return instant{sec: t.Unix(), nsec: t.Nanosecond()}
}

// SortedUnique returns the distinct instants of times in ascending order.
// Instants are compared independently of location.
func SortedUnique(times []time.Time) []time.Time {
	seen := map[instant]struct{}{}
	out := []time.Time{}
	for _, at := range times {
		key := instantOf(at)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, at.UTC().Round(0))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
