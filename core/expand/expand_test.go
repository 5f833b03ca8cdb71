package expand

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/davidahmann/gwdeck/core/calendar"
	"github.com/davidahmann/gwdeck/core/model"
	"github.com/davidahmann/gwdeck/core/schema"
	"github.com/davidahmann/gwdeck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(t *testing.T, registry *schema.Registry, entry model.Entry) Item {
	t.Helper()
	key, err := schema.Parse(entry.Key, registry)
	require.NoError(t, err)
	return Item{Key: key, Entry: entry}
}

func TestStatic(t *testing.T) {
	dir := filepath.Join("deck", "ani")
	angle := model.ArrayEntry("ani-angle", testutil.Grid(nil, []int{1, 2}, testutil.ScenarioY, testutil.ScenarioX, 30))
	factor := model.ArrayEntry("ani-factor", testutil.Grid(nil, []int{1}, testutil.ScenarioY, testutil.ScenarioX, 0.5))
	entry, _, _ := schema.Flow().Lookup("ani")

	got, err := Static("ani", []Item{item(t, schema.Flow(), factor), item(t, schema.Flow(), angle)}, entry, calendar.Fixed, dir)
	require.NoError(t, err)
	assert.Equal(t, StaticPackage{
		Name: "ani",
		Fields: []StaticField{
			{Field: "angle", Layers: []LayerPath{
				{Layer: 1, Path: filepath.Join(dir, "ani-angle_l1.idf")},
				{Layer: 2, Path: filepath.Join(dir, "ani-angle_l2.idf")},
			}},
			{Field: "factor", Layers: []LayerPath{
				{Layer: 1, Path: filepath.Join(dir, "ani-factor_l1.idf")},
			}},
		},
	}, got)

	_, err = Static("ani", []Item{item(t, schema.Flow(), angle)}, entry, calendar.Fixed, dir)
	assert.ErrorIs(t, err, ErrFieldOrderMismatch)
}

func TestStaticImplicitField(t *testing.T) {
	khv := model.ArrayEntry("khv", testutil.Grid(nil, []int{1}, testutil.ScenarioY, testutil.ScenarioX, 10))
	entry, _, _ := schema.Flow().Lookup("khv")
	got, err := Static("khv", []Item{item(t, schema.Flow(), khv)}, entry, calendar.Fixed, "khv")
	require.NoError(t, err)
	require.Len(t, got.Fields, 1)
	assert.Equal(t, schema.ImplicitField, got.Fields[0].Field)
	assert.Equal(t, filepath.Join("khv", "khv_l1.idf"), got.Fields[0].Layers[0].Path)
}

func TestPeriodArraysForwardFill(t *testing.T) {
	starts := testutil.Times(t, "2000-01-01", "2000-01-02", "2000-01-03")
	stage := model.ArrayEntry("riv-stage-north", testutil.Grid(starts[:1], []int{1}, testutil.ScenarioY, testutil.ScenarioX, 1))
	cond := model.ArrayEntry("riv-cond-north", testutil.Grid(nil, []int{1}, testutil.ScenarioY, testutil.ScenarioX, 1))
	bot := model.ArrayEntry("riv-bot-north", testutil.Grid(starts[:2], []int{1}, testutil.ScenarioY, testutil.ScenarioX, 1))
	inff := model.ArrayEntry("riv-inff-north", testutil.Grid(nil, []int{1}, testutil.ScenarioY, testutil.ScenarioX, 1))
	items := []Item{
		item(t, schema.Flow(), stage), item(t, schema.Flow(), cond),
		item(t, schema.Flow(), bot), item(t, schema.Flow(), inff),
	}
	entry, _, _ := schema.Flow().Lookup("riv")

	got, err := Period("riv", items, entry, starts, calendar.Fixed, "riv")
	require.NoError(t, err)
	fields := []string{}
	for _, field := range got.Fields {
		fields = append(fields, field.Field)
	}
	assert.Equal(t, []string{"cond", "stage", "bot", "inff"}, fields)

	stageField, ok := got.Field("stage")
	require.True(t, ok)
	require.Len(t, stageField.Systems, 1)
	assert.Equal(t, "north", stageField.Systems[0].System)
	stagePath := filepath.Join("riv", "riv-stage-north_20000101000000_l1.idf")
	assert.Equal(t, []string{stagePath, stagePath, stagePath}, stageField.Systems[0].Layers[0].Paths)
	assert.Equal(t, []string{"1", "2", "3"}, stageField.Systems[0].Layers[0].Periods)

	botField, _ := got.Field("bot")
	assert.Equal(t, []string{
		filepath.Join("riv", "riv-bot-north_20000101000000_l1.idf"),
		filepath.Join("riv", "riv-bot-north_20000102000000_l1.idf"),
		filepath.Join("riv", "riv-bot-north_20000102000000_l1.idf"),
	}, botField.Systems[0].Layers[0].Paths)

	condField, _ := got.Field("cond")
	constant := filepath.Join("riv", "riv-cond-north_l1.idf")
	assert.Equal(t, []string{constant, constant, constant}, condField.Systems[0].Layers[0].Paths)
}

func TestPeriodNoPriorValue(t *testing.T) {
	starts := testutil.Times(t, "2000-01-01", "2000-01-02")
	late := model.ArrayEntry("rch", testutil.Grid(starts[1:], []int{1}, testutil.ScenarioY, testutil.ScenarioX, 0.001))
	entry, _, _ := schema.Flow().Lookup("rch")
	_, err := Period("rch", []Item{item(t, schema.Flow(), late)}, entry, starts, calendar.Fixed, "rch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rch")
}

func TestPeriodExtendedSubSecondTimes(t *testing.T) {
	starts := []time.Time{
		time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1500, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	offset := 500 * time.Millisecond
	rch := model.ArrayEntry("rch", testutil.Grid([]time.Time{starts[0].Add(offset), starts[1].Add(offset)}, []int{1}, testutil.ScenarioY, testutil.ScenarioX, 0.001))
	entry, _, _ := schema.Flow().Lookup("rch")

	got, err := Period("rch", []Item{item(t, schema.Flow(), rch)}, entry, starts, calendar.Extended, "rch")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("rch", "rch_15000101000000_l1.idf"),
		filepath.Join("rch", "rch_15000102000000_l1.idf"),
	}, got.Fields[0].Systems[0].Layers[0].Paths)

	wells := &model.Table{
		X:      []float64{0.5, 1.5},
		Y:      []float64{0.5, 0.5},
		Rate:   []float64{-10, -5},
		IDName: []string{"w1", "w2"},
		Time:   []time.Time{starts[0].Add(offset), starts[1].Add(offset)},
	}
	wel, _, _ := schema.Flow().Lookup("wel")
	tables, err := Period("wel", []Item{item(t, schema.Flow(), model.TableEntry("wel", wells))}, wel, starts, calendar.Extended, "wel")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, tables.Fields[0].Systems[0].Layers[0].Periods)
}

func TestPeriodTables(t *testing.T) {
	starts := testutil.Times(t, "2000-01-01", "2000-01-02", "2000-01-03")
	wells := &model.Table{
		X:      []float64{0.5, 1.5, 0.5},
		Y:      []float64{0.5, 0.5, 0.5},
		Rate:   []float64{-10, -5, -10},
		IDName: []string{"w1", "w2", "w1"},
		Layer:  []int{1, 2, 1},
		Time:   []time.Time{starts[0], starts[0], starts[2]},
	}
	steady := &model.Table{X: []float64{2.5}, Y: []float64{1.5}, Rate: []float64{-1}, IDName: []string{"w3"}}
	items := []Item{
		item(t, schema.Flow(), model.TableEntry("wel-field", wells)),
		item(t, schema.Flow(), model.TableEntry("wel", steady)),
	}
	entry, _, _ := schema.Flow().Lookup("wel")

	got, err := Period("wel", items, entry, starts, calendar.Fixed, "wel")
	require.NoError(t, err)
	require.Len(t, got.Fields, 1)
	systems := got.Fields[0].Systems
	require.Len(t, systems, 2)

	assert.Equal(t, "field", systems[0].System)
	assert.Equal(t, []LayerPeriods{
		{Layer: 1, Paths: []string{
			filepath.Join("wel", "wel-field_20000101000000_l1.ipf"),
			filepath.Join("wel", "wel-field_20000103000000_l1.ipf"),
		}, Periods: []string{"1:2", "3"}},
		{Layer: 2, Paths: []string{
			filepath.Join("wel", "wel-field_20000101000000_l2.ipf"),
		}, Periods: []string{"1:2"}},
	}, systems[0].Layers)

	assert.Equal(t, schema.DefaultSystem, systems[1].System)
	assert.Equal(t, []LayerPeriods{
		{Layer: 0, Paths: []string{filepath.Join("wel", "wel.ipf")}, Periods: []string{"1:3"}},
	}, systems[1].Layers)
}

func TestPeriodSteadyState(t *testing.T) {
	chd := model.ArrayEntry("chd", testutil.Grid(nil, []int{1, 2}, testutil.ScenarioY, testutil.ScenarioX, 1))
	entry, _, _ := schema.Flow().Lookup("chd")
	got, err := Period("chd", []Item{item(t, schema.Flow(), chd)}, entry, nil, calendar.Fixed, "chd")
	require.NoError(t, err)
	layers := got.Fields[0].Systems[0].Layers
	require.Len(t, layers, 2)
	assert.Equal(t, []string{filepath.Join("chd", "chd_l2.idf")}, layers[1].Paths)
	assert.Equal(t, []string{"1"}, layers[1].Periods)
}

func TestFilesMatchTreePaths(t *testing.T) {
	times := testutil.Times(t, "2000-01-01", "2000-01-02")
	stage := item(t, schema.Flow(), model.ArrayEntry("riv-stage", testutil.Grid(times, []int{1, 2}, testutil.ScenarioY, testutil.ScenarioX, 1)))
	files := Files(stage, calendar.Fixed, "riv")
	require.Len(t, files, 4)
	assert.Equal(t, filepath.Join("riv", "riv-stage_20000101000000_l1.idf"), files[0].Path)
	assert.Equal(t, 0, files[0].TimeIndex)
	assert.Equal(t, 1, files[1].LayerIndex)
	assert.Equal(t, filepath.Join("riv", "riv-stage_20000102000000_l2.idf"), files[3].Path)

	wells := &model.Table{
		X: []float64{0.5, 1.5}, Y: []float64{0.5, 0.5}, Rate: []float64{-1, -2}, IDName: []string{"a", "b"},
		Layer: []int{1, 2}, Time: []time.Time{times[0], times[1]},
	}
	tableFiles := Files(item(t, schema.Flow(), model.TableEntry("wel", wells)), calendar.Fixed, "wel")
	require.Len(t, tableFiles, 2)
	assert.Equal(t, filepath.Join("wel", "wel_20000101000000_l1.ipf"), tableFiles[0].Path)
	assert.Equal(t, filepath.Join("wel", "wel_20000102000000_l2.ipf"), tableFiles[1].Path)
}
