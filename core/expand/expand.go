// Package expand turns the entries of one package into the nested path trees
// a run file refers to, and lists the files those paths name.
package expand

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/davidahmann/gwdeck/core/calendar"
	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/model"
	"github.com/davidahmann/gwdeck/core/pathcodec"
	"github.com/davidahmann/gwdeck/core/schema"
	"github.com/davidahmann/gwdeck/core/timedisc"
)

var ErrFieldOrderMismatch = errors.New("declared field is missing")

// Item is an entry together with its parsed key.
type Item struct {
	Key   schema.Key
	Entry model.Entry
}

type LayerPath struct {
	Layer int
	Path  string
}

type StaticField struct {
	Field  string
	Layers []LayerPath
}

// StaticPackage is the field, layer, path tree of a static package.
type StaticPackage struct {
	Name   string
	Fields []StaticField
}

// LayerPeriods holds the paths of one layer. Periods labels each path with
// the stress periods it applies to: a 1-based index for arrays, a forcing
// span such as "1:3" for point tables. Layer 0 marks a table without a layer
// column.
type LayerPeriods struct {
	Layer   int
	Paths   []string
	Periods []string
}

type SystemPaths struct {
	System string
	Layers []LayerPeriods
}

type PeriodField struct {
	Field   string
	Systems []SystemPaths
}

// PeriodPackage is the field, system, layer, paths tree of a stress-period
// package.
type PeriodPackage struct {
	Name   string
	Fields []PeriodField
}

// Field returns the named field, if present.
func (p PeriodPackage) Field(name string) (PeriodField, bool) {
	for _, field := range p.Fields {
		if field.Field == name {
			return field, true
		}
	}
	return PeriodField{}, false
}

// Static expands a static package. dir is the package directory.
func Static(name string, items []Item, entry schema.Entry, mode calendar.Mode, dir string) (StaticPackage, error) {
	byField, err := itemsByField(name, items, entry)
	if err != nil {
		return StaticPackage{}, err
	}
	out := StaticPackage{Name: name}
	for _, field := range entry.Fields() {
		item := byField[field][0]
		staticField := StaticField{Field: field}
		for _, layer := range item.Entry.Layers() {
			staticField.Layers = append(staticField.Layers, LayerPath{
				Layer: layer,
				Path:  compose(dir, item, mode, nil, layerPtr(layer)),
			})
		}
		out.Fields = append(out.Fields, staticField)
	}
	return out, nil
}

// Period expands a stress-period package over the global period starts. An
// empty starts slice means a steady-state model with a single period.
func Period(name string, items []Item, entry schema.Entry, starts []time.Time, mode calendar.Mode, dir string) (PeriodPackage, error) {
	byField, err := itemsByField(name, items, entry)
	if err != nil {
		return PeriodPackage{}, err
	}
	out := PeriodPackage{Name: name}
	for _, field := range entry.Fields() {
		periodField := PeriodField{Field: field}
		for _, item := range byField[field] {
			var layers []LayerPeriods
			switch item.Entry.Kind {
			case model.KindTable:
				layers = tableLayers(dir, item, starts, mode)
			default:
				layers, err = arrayLayers(dir, item, starts, mode)
				if err != nil {
					return PeriodPackage{}, err
				}
			}
			periodField.Systems = append(periodField.Systems, SystemPaths{
				System: item.Key.SystemOrDefault(),
				Layers: layers,
			})
		}
		out.Fields = append(out.Fields, periodField)
	}
	return out, nil
}

func arrayLayers(dir string, item Item, starts []time.Time, mode calendar.Mode) ([]LayerPeriods, error) {
	array := item.Entry.Array
	nper := len(starts)
	if nper == 0 {
		nper = 1
	}
	var fill []int
	if array.HasTime() {
		var err error
		fill, err = timedisc.ForwardFill(normalizeTimes(mode, array.Times), starts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", item.Key, err)
		}
	}

	layers := make([]LayerPeriods, 0, len(array.Layers))
	for _, layer := range array.Layers {
		periods := LayerPeriods{Layer: layer}
		for period := 0; period < nper; period++ {
			var at *time.Time
			if fill != nil {
				t := array.Times[fill[period]]
				at = &t
			}
			periods.Paths = append(periods.Paths, compose(dir, item, mode, at, layerPtr(layer)))
			periods.Periods = append(periods.Periods, strconv.Itoa(period+1))
		}
		layers = append(layers, periods)
	}
	return layers, nil
}

func tableLayers(dir string, item Item, starts []time.Time, mode calendar.Mode) []LayerPeriods {
	table := item.Entry.Table
	var times []time.Time
	var spans []string
	if table.HasTime() {
		times = table.UniqueTimes()
		spans = timedisc.ForcingSpans(normalizeTimes(mode, times), starts)
	} else {
		spans = []string{wholeSpan(len(starts))}
	}

	layerValues := []int{0}
	if table.HasLayer() {
		layerValues = table.UniqueLayers()
	}
	layers := make([]LayerPeriods, 0, len(layerValues))
	for _, layer := range layerValues {
		var suffix *int
		if table.HasLayer() {
			suffix = layerPtr(layer)
		}
		periods := LayerPeriods{Layer: layer}
		for i, span := range spans {
			var at *time.Time
			if times != nil {
				at = &times[i]
			}
			if table.Select(at, suffix).Rows() == 0 {
				continue
			}
			periods.Paths = append(periods.Paths, compose(dir, item, mode, at, suffix))
			periods.Periods = append(periods.Periods, span)
		}
		if len(periods.Paths) > 0 {
			layers = append(layers, periods)
		}
	}
	return layers
}

// normalizeTimes brings package times to the resolution of the period
// starts, which the axis has already normalized under mode.
func normalizeTimes(mode calendar.Mode, times []time.Time) []time.Time {
	out := make([]time.Time, len(times))
	for i, t := range times {
		out[i] = calendar.Normalize(mode, t)
	}
	return out
}

func wholeSpan(nper int) string {
	if nper <= 1 {
		return "1"
	}
	return "1:" + strconv.Itoa(nper)
}

// itemsByField groups items by field and checks that every declared field is
// supplied. Within a field, items keep their input order.
func itemsByField(name string, items []Item, entry schema.Entry) (map[string][]Item, error) {
	byField := map[string][]Item{}
	for _, item := range items {
		if item.Key.Name != name {
			return nil, coreerrors.Wrap(
				fmt.Errorf("item %s does not belong to package %s", item.Key, name),
				coreerrors.CategoryInternalFailure,
				"package_mismatch",
				"",
				false,
			)
		}
		field := item.Key.FieldOrImplicit()
		byField[field] = append(byField[field], item)
	}
	var missing []string
	for _, field := range entry.Fields() {
		if len(byField[field]) == 0 {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, coreerrors.Invalid(
			fmt.Errorf("%w: package %s lacks %s", ErrFieldOrderMismatch, name, strings.Join(missing, ",")),
			"field_order_mismatch",
			"required fields are "+strings.Join(entry.Fields(), ","),
		)
	}
	return byField, nil
}

func compose(dir string, item Item, mode calendar.Mode, at *time.Time, layer *int) string {
	return pathcodec.ComposeIn(mode, pathcodec.Parts{
		Extension: extension(item.Entry.Kind),
		Directory: dir,
		Name:      item.Key.String(),
		Time:      at,
		Layer:     layer,
	})
}

func extension(kind model.Kind) string {
	if kind == model.KindTable {
		return pathcodec.ExtPoints
	}
	return pathcodec.ExtRaster
}

func layerPtr(layer int) *int {
	return &layer
}
