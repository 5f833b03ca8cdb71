package manifest

import (
	"fmt"
	"math"
	"time"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/fsx"
	"github.com/davidahmann/gwdeck/core/model"
	"github.com/goccy/go-yaml"
)

// DumpOptions are the composition options stored alongside the model.
type DumpOptions struct {
	Seawat   bool
	EndTime  *time.Time
	Settings map[string]any
}

// Dump writes m as an inline manifest that Load reads back into an
// equivalent model.
func Dump(path string, m *model.Model, opts DumpOptions) error {
	document := FromModel(m, opts)
	content, err := yaml.Marshal(document)
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("encode manifest: %w", err), coreerrors.CategoryInternalFailure, "manifest_encode", "", false)
	}
	if err := fsx.WriteFileAtomic(path, content, 0o600); err != nil {
		return coreerrors.Wrap(fmt.Errorf("write manifest %s: %w", path, err), coreerrors.CategoryIOFailure, "manifest_write_failed", "", true)
	}
	return nil
}

// FromModel converts m to an inline document.
func FromModel(m *model.Model, opts DumpOptions) Document {
	document := Document{
		Name:     m.Name,
		Seawat:   opts.Seawat,
		Settings: opts.Settings,
	}
	if opts.EndTime != nil {
		document.EndTime = formatTime(*opts.EndTime)
	}
	for _, entry := range m.Entries() {
		pkg := Package{Key: entry.Key, TopLayer: entry.TopLayer, SaveBudget: entry.SaveBudget}
		if entry.Kind == model.KindTable {
			pkg.Kind = "table"
			pkg.Rows = tableRows(entry.Table)
		} else {
			pkg.Kind = "array"
			array := entry.Array
			pkg.Layers = append([]int{}, array.Layers...)
			pkg.X = append([]float64{}, array.X...)
			pkg.Y = append([]float64{}, array.Y...)
			pkg.DX = array.DX
			pkg.DY = array.DY
			for _, at := range array.Times {
				pkg.Times = append(pkg.Times, formatTime(at))
			}
			pkg.Values = make([]*float64, len(array.Values))
			for i := range array.Values {
				if math.IsNaN(array.Values[i]) {
					continue
				}
				pkg.Values[i] = &array.Values[i]
			}
		}
		document.Packages = append(document.Packages, pkg)
	}
	return document
}

func tableRows(table *model.Table) []Row {
	rows := make([]Row, table.Rows())
	for i := range rows {
		rows[i] = Row{X: table.X[i], Y: table.Y[i], Rate: table.Rate[i], IDName: table.IDName[i]}
		if table.HasLayer() {
			layer := table.Layer[i]
			rows[i].Layer = &layer
		}
		if table.HasTime() {
			rows[i].Time = formatTime(table.Time[i])
		}
	}
	return rows
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
