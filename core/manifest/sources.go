package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/gwdeck/core/calendar"
	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/idf"
	"github.com/davidahmann/gwdeck/core/ipf"
	"github.com/davidahmann/gwdeck/core/model"
	"github.com/davidahmann/gwdeck/core/pathcodec"
)

var (
	ErrSourceGrid     = errors.New("raster sources do not share one grid")
	ErrSourceCoverage = errors.New("raster sources do not cover every time and layer exactly once")
	ErrSourceKind     = errors.New("source has the wrong file extension")
)

type rasterSource struct {
	path   string
	at     *time.Time
	layer  int
	raster idf.Raster
}

// readRasters stacks IDF files into one array. Each file name carries its
// layer and, for transient data, its time.
func readRasters(sources []string, baseDir string) (*model.Array, error) {
	loaded := make([]rasterSource, 0, len(sources))
	for _, source := range sources {
		parts, err := pathcodec.Decompose(source)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(parts.Extension, pathcodec.ExtRaster) {
			return nil, coreerrors.Invalid(fmt.Errorf("%w: %s is not an IDF", ErrSourceKind, source), "source_kind", "")
		}
		if parts.Layer == nil {
			return nil, coreerrors.Invalid(fmt.Errorf("%w: %s has no _l<layer> token", model.ErrMissingLayer, source), "missing_layer", "")
		}
		raster, err := idf.Read(resolve(baseDir, source))
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, rasterSource{path: source, at: parts.Time, layer: *parts.Layer, raster: raster})
	}

	first := loaded[0].raster
	var layers []int
	var times []time.Time
	seenLayer := map[int]bool{}
	for _, source := range loaded {
		if !sameGrid(first, source.raster) {
			return nil, coreerrors.Inconsistent(fmt.Errorf("%w: %s differs from %s", ErrSourceGrid, source.path, loaded[0].path), "source_grid", "")
		}
		if (source.at == nil) != (loaded[0].at == nil) {
			return nil, coreerrors.Invalid(fmt.Errorf("%w: %s and %s disagree on a time token", ErrSourceCoverage, source.path, loaded[0].path), "source_coverage", "")
		}
		if !seenLayer[source.layer] {
			seenLayer[source.layer] = true
			layers = append(layers, source.layer)
		}
		if source.at != nil {
			times = append(times, *source.at)
		}
	}
	sort.Ints(layers)
	if len(times) > 0 {
		times = model.SortedUnique(times)
	}
	ntime := len(times)
	if ntime == 0 {
		ntime = 1
	}
	if len(loaded) != ntime*len(layers) {
		return nil, coreerrors.Invalid(
			fmt.Errorf("%w: %d files for %d times and %d layers", ErrSourceCoverage, len(loaded), ntime, len(layers)),
			"source_coverage",
			"",
		)
	}

	cells := first.NRow * first.NCol
	array := &model.Array{
		Times:  times,
		Layers: layers,
		Y:      make([]float64, first.NRow),
		X:      make([]float64, first.NCol),
		DX:     first.DX,
		DY:     -first.DY,
		Values: make([]float64, ntime*len(layers)*cells),
	}
	for col := range array.X {
		array.X[col] = first.XMin + first.DX*(float64(col)+0.5)
	}
	for row := range array.Y {
		array.Y[row] = first.YMax - first.DY*(float64(row)+0.5)
	}
	filled := map[int]bool{}
	for _, source := range loaded {
		timeIndex := 0
		if source.at != nil {
			timeIndex = sort.Search(len(times), func(i int) bool { return !times[i].Before(*source.at) })
		}
		layerIndex := sort.SearchInts(layers, source.layer)
		slot := timeIndex*len(layers) + layerIndex
		if filled[slot] {
			return nil, coreerrors.Invalid(fmt.Errorf("%w: %s repeats a time and layer", ErrSourceCoverage, source.path), "source_coverage", "")
		}
		filled[slot] = true
		copy(array.Values[slot*cells:(slot+1)*cells], source.raster.Values)
	}
	return array, nil
}

func sameGrid(a, b idf.Raster) bool {
	return a.NCol == b.NCol && a.NRow == b.NRow &&
		a.XMin == b.XMin && a.YMax == b.YMax &&
		a.DX == b.DX && a.DY == b.DY
}

func readPoints(pkg Package, baseDir string) (*model.Table, error) {
	if !strings.EqualFold(filepath.Ext(pkg.Source), pathcodec.ExtPoints) {
		return nil, coreerrors.Invalid(fmt.Errorf("%w: %s is not an IPF", ErrSourceKind, pkg.Source), "source_kind", "")
	}
	table, err := ipf.Read(resolve(baseDir, pkg.Source))
	if err != nil {
		return nil, err
	}
	if pkg.Layer != nil {
		table.Layer = make([]int, table.Rows())
		for i := range table.Layer {
			table.Layer[i] = *pkg.Layer
		}
	}
	if pkg.Time != "" {
		at, err := calendar.Parse(pkg.Time)
		if err != nil {
			return nil, err
		}
		table.Time = make([]time.Time, table.Rows())
		for i := range table.Time {
			table.Time[i] = at
		}
	}
	return table, nil
}
