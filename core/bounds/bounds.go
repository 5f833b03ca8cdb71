// Package bounds derives the model grid from the bnd package and checks that
// every other entry stays inside it. It also collects the global time set.
package bounds

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/model"
)

// GridPackage is the key of the mandatory grid-defining entry.
const GridPackage = "bnd"

// TopLayer is the layer sentinel for "uppermost active layer".
const TopLayer = -1

var (
	ErrMissingGridPackage   = errors.New("grid package bnd is missing")
	ErrNonConsecutiveLayers = errors.New("bnd layers must start at 1 and be consecutive")
	ErrLayerOutOfBounds     = errors.New("layer falls outside of bnd")
	ErrBoundsExceeded       = errors.New("extent falls outside of bnd")
)

type Options struct {
	Seawat bool
}

// Bounds is the grid and time frame shared by every entry of a model.
// Times is empty for steady-state models.
type Bounds struct {
	NRow       int
	NCol       int
	NLay       int
	CellWidth  float64
	CellHeight float64
	XMin       float64
	XMax       float64
	YMin       float64
	YMax       float64
	NPer       int
	Times      []time.Time
}

// Steady reports whether the model has no time data.
func (b Bounds) Steady() bool {
	return len(b.Times) == 0
}

// Layers returns 1..NLay.
func (b Bounds) Layers() []int {
	out := make([]int, b.NLay)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// WithEndTime appends a terminal instant and recomputes NPer. end must be
// later than every collected time.
func (b Bounds) WithEndTime(end time.Time) Bounds {
	times := make([]time.Time, 0, len(b.Times)+1)
	times = append(times, b.Times...)
	b.Times = model.SortedUnique(append(times, end))
	b.NPer = periodCount(b.Times)
	return b
}

// Compute validates entries against the bnd grid and collects their times.
func Compute(entries []model.Entry, opts Options) (Bounds, error) {
	grid, ok := findGrid(entries)
	if !ok {
		return Bounds{}, coreerrors.Invalid(ErrMissingGridPackage, "missing_grid_package", "add a bnd array defining the active cells")
	}
	if grid.Kind != model.KindArray {
		return Bounds{}, coreerrors.Invalid(fmt.Errorf("%w: bnd must be an array", ErrMissingGridPackage), "missing_grid_package", "")
	}

	layers := append([]int(nil), grid.Array.Layers...)
	sort.Ints(layers)
	for i, layer := range layers {
		if layer != i+1 {
			return Bounds{}, coreerrors.Invalid(
				fmt.Errorf("%w: got %v", ErrNonConsecutiveLayers, grid.Array.Layers),
				"non_consecutive_layers",
				"",
			)
		}
	}
	ref, err := model.SpatialReference(grid.Array)
	if err != nil {
		return Bounds{}, fmt.Errorf("bnd: %w", err)
	}

	out := Bounds{
		NRow:       len(grid.Array.Y),
		NCol:       len(grid.Array.X),
		NLay:       len(layers),
		CellWidth:  math.Abs(ref.DX),
		CellHeight: math.Abs(ref.DY),
		XMin:       ref.XMin,
		XMax:       ref.XMax,
		YMin:       ref.YMin,
		YMax:       ref.YMax,
	}

	var times []time.Time
	for _, entry := range entries {
		if err := checkLayers(entry, out.NLay, opts); err != nil {
			return Bounds{}, err
		}
		if err := checkExtent(entry, out); err != nil {
			return Bounds{}, err
		}
		switch entry.Kind {
		case model.KindArray:
			times = append(times, entry.Array.Times...)
		case model.KindTable:
			times = append(times, entry.Table.Time...)
		}
	}

	out.Times = model.SortedUnique(times)
	out.NPer = periodCount(out.Times)
	return out, nil
}

func periodCount(times []time.Time) int {
	if len(times) == 0 {
		return 1
	}
	return len(times) - 1
}

func findGrid(entries []model.Entry) (model.Entry, bool) {
	for _, entry := range entries {
		if entry.Key == GridPackage {
			return entry, true
		}
	}
	return model.Entry{}, false
}

func checkLayers(entry model.Entry, nlay int, opts Options) error {
	for _, layer := range entry.Layers() {
		if layer == TopLayer && entry.TopLayer && !opts.Seawat {
			continue
		}
		if layer < 1 || layer > nlay {
			hint := fmt.Sprintf("layers must be within 1..%d", nlay)
			if layer == TopLayer {
				hint = "layer -1 needs top_layer and is not supported by seawat"
			}
			return coreerrors.Inconsistent(
				fmt.Errorf("%w: %s layer %d", ErrLayerOutOfBounds, entry.Key, layer),
				"layer_out_of_bounds",
				hint,
			)
		}
	}
	return nil
}

func checkExtent(entry model.Entry, grid Bounds) error {
	var xmin, xmax, ymin, ymax float64
	switch entry.Kind {
	case model.KindArray:
		ref, err := model.SpatialReference(entry.Array)
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Key, err)
		}
		xmin, xmax, ymin, ymax = ref.XMin, ref.XMax, ref.YMin, ref.YMax
	case model.KindTable:
		xmin, xmax, ymin, ymax = entry.Table.Extent()
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{"xmin", xmin >= grid.XMin},
		{"xmax", xmax <= grid.XMax},
		{"ymin", ymin >= grid.YMin},
		{"ymax", ymax <= grid.YMax},
	}
	for _, check := range checks {
		if !check.ok {
			return coreerrors.Inconsistent(
				fmt.Errorf("%w: %s %s", ErrBoundsExceeded, entry.Key, check.name),
				"bounds_exceeded",
				fmt.Sprintf("grid extent is x %g..%g, y %g..%g", grid.XMin, grid.XMax, grid.YMin, grid.YMax),
			)
		}
	}
	return nil
}
