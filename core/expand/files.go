package expand

import (
	"time"

	"github.com/davidahmann/gwdeck/core/calendar"
	"github.com/davidahmann/gwdeck/core/model"
)

// File is one raster or point file to be written for an entry. For arrays
// TimeIndex and LayerIndex address the slice to write; TimeIndex is -1 for
// arrays without time. For tables Time and Layer filter the rows.
type File struct {
	Path       string
	Entry      model.Entry
	TimeIndex  int
	LayerIndex int
	Time       *time.Time
	Layer      *int
}

// Files lists every file the entry of item contributes, named exactly as the
// paths of Static and Period name them.
func Files(item Item, mode calendar.Mode, dir string) []File {
	if item.Entry.Kind == model.KindTable {
		return tableFiles(item, mode, dir)
	}
	array := item.Entry.Array
	var files []File
	for ti := 0; ti < array.NumTimes(); ti++ {
		var at *time.Time
		timeIndex := -1
		if array.HasTime() {
			t := array.Times[ti]
			at = &t
			timeIndex = ti
		}
		for li, layer := range array.Layers {
			files = append(files, File{
				Path:       compose(dir, item, mode, at, layerPtr(layer)),
				Entry:      item.Entry,
				TimeIndex:  timeIndex,
				LayerIndex: li,
				Time:       at,
				Layer:      layerPtr(layer),
			})
		}
	}
	return files
}

func tableFiles(item Item, mode calendar.Mode, dir string) []File {
	table := item.Entry.Table
	times := []*time.Time{nil}
	if table.HasTime() {
		times = times[:0]
		for _, t := range table.UniqueTimes() {
			times = append(times, &t)
		}
	}
	layers := []*int{nil}
	if table.HasLayer() {
		layers = layers[:0]
		for _, layer := range table.UniqueLayers() {
			layers = append(layers, layerPtr(layer))
		}
	}

	var files []File
	for _, at := range times {
		for _, layer := range layers {
			if table.Select(at, layer).Rows() == 0 {
				continue
			}
			files = append(files, File{
				Path:       compose(dir, item, mode, at, layer),
				Entry:      item.Entry,
				TimeIndex:  -1,
				LayerIndex: -1,
				Time:       at,
				Layer:      layer,
			})
		}
	}
	return files
}
