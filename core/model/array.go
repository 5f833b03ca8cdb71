package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
)

var (
	ErrShapeMismatch   = errors.New("array shape mismatch")
	ErrMissingLayer    = errors.New("array has no layer coordinate")
	ErrUnstructured    = errors.New("unstructured arrays are not supported")
	ErrNonEquidistant  = errors.New("coordinate is not equidistant")
	ErrUnsortedTimes   = errors.New("time coordinate is not strictly increasing")
	ErrDuplicateLayer  = errors.New("layer coordinate has duplicates")
	ErrUndefinedExtent = errors.New("cell size cannot be derived")
)

// Array is a labeled grid with dimensions time, layer, y and x. Values are
// stored flat in that order; a nil Times means the array has no time
// dimension. NaN marks a missing cell.
type Array struct {
	Times  []time.Time
	Layers []int
	Y      []float64
	X      []float64
	// DX and DY override the cell size derived from the coordinates when both
	// are non-zero.
	DX     float64
	DY     float64
	Values []float64
	// Faces is the face count of a mesh-based array. Any non-zero value marks
	// the array as unstructured.
	Faces int
}

// NumTimes returns the length of the time dimension, which is 1 for arrays
// without time.
func (a *Array) NumTimes() int {
	if len(a.Times) == 0 {
		return 1
	}
	return len(a.Times)
}

// HasTime reports whether the array carries a time coordinate.
func (a *Array) HasTime() bool {
	return len(a.Times) > 0
}

// Validate checks the dimensions against the flat value slice.
func (a *Array) Validate() error {
	if a.Faces != 0 {
		return coreerrors.Invalid(ErrUnstructured, "unstructured_array", "regrid mesh data to a structured grid first")
	}
	if len(a.Layers) == 0 {
		return coreerrors.Invalid(ErrMissingLayer, "missing_layer", "assign a layer coordinate")
	}
	seen := make(map[int]struct{}, len(a.Layers))
	for _, layer := range a.Layers {
		if _, ok := seen[layer]; ok {
			return coreerrors.Invalid(fmt.Errorf("%w: layer %d", ErrDuplicateLayer, layer), "duplicate_layer", "")
		}
		seen[layer] = struct{}{}
	}
	for i := 1; i < len(a.Times); i++ {
		if !a.Times[i].After(a.Times[i-1]) {
			return coreerrors.Invalid(
				fmt.Errorf("%w: %s follows %s", ErrUnsortedTimes, a.Times[i].Format(time.RFC3339), a.Times[i-1].Format(time.RFC3339)),
				"unsorted_times",
				"",
			)
		}
	}
	if len(a.X) == 0 || len(a.Y) == 0 {
		return coreerrors.Invalid(fmt.Errorf("%w: x=%d y=%d", ErrShapeMismatch, len(a.X), len(a.Y)), "shape_mismatch", "x and y need at least one coordinate")
	}
	want := a.NumTimes() * len(a.Layers) * len(a.Y) * len(a.X)
	if len(a.Values) != want {
		return coreerrors.Invalid(
			fmt.Errorf("%w: have %d values, dimensions %dx%dx%dx%d need %d", ErrShapeMismatch, len(a.Values), a.NumTimes(), len(a.Layers), len(a.Y), len(a.X), want),
			"shape_mismatch",
			"",
		)
	}
	return nil
}

func (a *Array) index(timeIndex, layerIndex, row, col int) int {
	return ((timeIndex*len(a.Layers)+layerIndex)*len(a.Y)+row)*len(a.X) + col
}

// At returns the value at the given dimension indices.
func (a *Array) At(timeIndex, layerIndex, row, col int) float64 {
	return a.Values[a.index(timeIndex, layerIndex, row, col)]
}

// Slice returns the row-major y by x plane for one time and layer index. The
// returned slice aliases the array.
func (a *Array) Slice(timeIndex, layerIndex int) []float64 {
	start := a.index(timeIndex, layerIndex, 0, 0)
	return a.Values[start : start+len(a.Y)*len(a.X)]
}

// MaxActive counts the non-missing cells of every period and returns the
// largest count.
func (a *Array) MaxActive() int {
	perTime := len(a.Layers) * len(a.Y) * len(a.X)
	best := 0
	for ti := 0; ti < a.NumTimes(); ti++ {
		count := 0
		for _, value := range a.Values[ti*perTime : (ti+1)*perTime] {
			if !math.IsNaN(value) {
				count++
			}
		}
		if count > best {
			best = count
		}
	}
	return best
}

// Reference is the spatial footprint of a grid. DX and DY keep the sign of
// the coordinate direction; the extent is always min < max.
type Reference struct {
	DX   float64
	DY   float64
	XMin float64
	XMax float64
	YMin float64
	YMax float64
}

// SpatialReference derives cell size and extent from cell-centre
// coordinates. A grid with a single column or row borrows the spacing of the
// other axis, because iMOD only supports square cells in that case.
func SpatialReference(a *Array) (Reference, error) {
	var dx, dy float64
	switch {
	case a.DX != 0 && a.DY != 0:
		dx, dy = a.DX, a.DY
	case len(a.X) == 1 && len(a.Y) == 1:
		return Reference{}, coreerrors.Invalid(ErrUndefinedExtent, "undefined_extent", "set dx and dy for single-cell grids")
	case len(a.X) == 1:
		delta, err := equidistant(a.Y, "y")
		if err != nil {
			return Reference{}, err
		}
		dx, dy = delta, delta
	case len(a.Y) == 1:
		delta, err := equidistant(a.X, "x")
		if err != nil {
			return Reference{}, err
		}
		dx, dy = delta, delta
	default:
		var err error
		if dx, err = equidistant(a.X, "x"); err != nil {
			return Reference{}, err
		}
		if dy, err = equidistant(a.Y, "y"); err != nil {
			return Reference{}, err
		}
	}

	xlo, xhi := minMax(a.X)
	ylo, yhi := minMax(a.Y)
	return Reference{
		DX:   dx,
		DY:   dy,
		XMin: xlo - 0.5*math.Abs(dx),
		XMax: xhi + 0.5*math.Abs(dx),
		YMin: ylo - 0.5*math.Abs(dy),
		YMax: yhi + 0.5*math.Abs(dy),
	}, nil
}

func equidistant(coords []float64, name string) (float64, error) {
	delta := coords[1] - coords[0]
	if delta == 0 {
		return 0, coreerrors.Invalid(fmt.Errorf("%w: %s has zero spacing", ErrNonEquidistant, name), "non_equidistant", "")
	}
	tolerance := math.Abs(1.0e-6 * delta)
	for i := 2; i < len(coords); i++ {
		step := coords[i] - coords[i-1]
		if math.Abs(step-delta) > tolerance+1.0e-5*math.Abs(delta) {
			return 0, coreerrors.Invalid(
				fmt.Errorf("%w: %s step %g differs from %g", ErrNonEquidistant, name, step, delta),
				"non_equidistant",
				"",
			)
		}
	}
	return delta, nil
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, value := range values[1:] {
		lo = math.Min(lo, value)
		hi = math.Max(hi, value)
	}
	return lo, hi
}
