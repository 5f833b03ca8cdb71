package group

import (
	"strings"
	"testing"

	"github.com/davidahmann/gwdeck/core/calendar"
	"github.com/davidahmann/gwdeck/core/expand"
	"github.com/davidahmann/gwdeck/core/model"
	"github.com/davidahmann/gwdeck/core/schema"
	"github.com/davidahmann/gwdeck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(t *testing.T, registry *schema.Registry, entries ...model.Entry) []expand.Item {
	t.Helper()
	out := make([]expand.Item, 0, len(entries))
	for _, entry := range entries {
		key, err := schema.Parse(entry.Key, registry)
		require.NoError(t, err)
		out = append(out, expand.Item{Key: key, Entry: entry})
	}
	return out
}

func grid(value float64) *model.Array {
	return testutil.Grid(nil, []int{1}, testutil.ScenarioY, testutil.ScenarioX, value)
}

func TestGroupMovesConcentrationSystemFirst(t *testing.T) {
	group, err := Group("ghb", items(t, schema.Seawat(),
		model.ArrayEntry("ghb-head-a", grid(1)),
		model.ArrayEntry("ghb-head-b", grid(1)),
		model.ArrayEntry("ghb-conc-b", grid(35)),
		model.ArrayEntry("ghb-head-c", grid(1)),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, group.KeyOrder)
	assert.Equal(t, "b", group.FirstKey)
	system, ok := group.System("b")
	require.True(t, ok)
	assert.Len(t, system.Items, 2)
}

func TestGroupRejectsTwoConcentrationSystems(t *testing.T) {
	_, err := Group("riv", items(t, schema.Seawat(),
		model.ArrayEntry("riv-conc-a", grid(1)),
		model.ArrayEntry("riv-conc-b", grid(1)),
	))
	require.ErrorIs(t, err, ErrMultipleConcentrationSystems)
	assert.Contains(t, err.Error(), "a,b")
}

func TestGroupUnknownStrategy(t *testing.T) {
	_, err := Group("khv", nil)
	assert.ErrorIs(t, err, ErrNotGroupable)
	_, ok := StrategyFor("rch")
	assert.False(t, ok)
}

func TestRenderArrays(t *testing.T) {
	starts := testutil.Times(t, "2000-01-01", "2000-01-02")
	sparse := grid(1)
	sparse.Values[0] = testutil.NaN()
	budget := model.ArrayEntry("riv-stage-b", grid(2))
	budget.SaveBudget = true
	packageItems := items(t, schema.Flow(),
		model.ArrayEntry("riv-stage-a", sparse),
		model.ArrayEntry("riv-cond-a", grid(10)),
		model.ArrayEntry("riv-bot-a", grid(0)),
		model.ArrayEntry("riv-inff-a", grid(1)),
		budget,
		model.ArrayEntry("riv-cond-b", grid(10)),
		model.ArrayEntry("riv-bot-b", grid(0)),
		model.ArrayEntry("riv-inff-b", grid(1)),
	)
	entry, _, _ := schema.Flow().Lookup("riv")
	tree, err := expand.Period("riv", packageItems, entry, starts, calendar.Fixed, "riv")
	require.NoError(t, err)
	group, err := Group("riv", packageItems)
	require.NoError(t, err)

	rendered, err := Render(group, tree, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rendered.NSystems)
	assert.Equal(t, 5+6, rendered.NMaxActive)
	assert.Equal(t, 1, rendered.SaveBudget)
	assert.Equal(t, "[riv]\n    mrivsys = 2\n    mxactr = 11\n    irivcb = 1", rendered.Header)
	require.Len(t, rendered.Blocks, 2)
	assert.True(t, strings.HasPrefix(rendered.Blocks[0], "    cond_p1_s1_l1 = riv/riv-cond-a_l1.idf"), rendered.Blocks[0])
	assert.Contains(t, rendered.Blocks[1], "    stage_p2_s2_l1 = riv/riv-stage-b_l1.idf")
	assert.Empty(t, rendered.SSM)
	assert.True(t, strings.HasPrefix(rendered.Text(), rendered.Header+"\n"))
}

func TestRenderTablesScaleByLayers(t *testing.T) {
	wells := &model.Table{
		X: []float64{0.5, 1.5}, Y: []float64{0.5, 0.5}, Rate: []float64{-1, -2}, IDName: []string{"a", "b"},
	}
	packageItems := items(t, schema.Flow(), model.TableEntry("wel", wells))
	entry, _, _ := schema.Flow().Lookup("wel")
	tree, err := expand.Period("wel", packageItems, entry, nil, calendar.Fixed, "wel")
	require.NoError(t, err)
	group, err := Group("wel", packageItems)
	require.NoError(t, err)

	rendered, err := Render(group, tree, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, rendered.NMaxActive)
	assert.Equal(t, []string{"    wel_p1_s1_l? = wel/wel.ipf"}, rendered.Blocks)
}

func TestRenderConcentrationIntoSSM(t *testing.T) {
	starts := testutil.Times(t, "2000-01-01", "2000-01-02")
	packageItems := items(t, schema.Seawat(),
		model.ArrayEntry("chd-head-sea", grid(0)),
		model.ArrayEntry("chd-conc-sea", grid(35)),
	)
	entry, _, _ := schema.Seawat().Lookup("chd")
	tree, err := expand.Period("chd", packageItems, entry, starts, calendar.Fixed, "chd")
	require.NoError(t, err)
	group, err := Group("chd", packageItems)
	require.NoError(t, err)

	rendered, err := Render(group, tree, 1)
	require.NoError(t, err)
	assert.Equal(t, "[chd]\n    mchdsys = 1\n    mxactc = 6", rendered.Header)
	assert.NotContains(t, rendered.Blocks[0], "conc_")
	assert.Equal(t, "    cchd_t1_p1_l1 = chd/chd-conc-sea_l1.idf\n    cchd_t1_p2_l1 = chd/chd-conc-sea_l1.idf", rendered.SSM)
}

func TestRenderPlain(t *testing.T) {
	starts := testutil.Times(t, "2000-01-01", "2000-01-02")
	packageItems := items(t, schema.Seawat(),
		model.ArrayEntry("rch-rate", grid(0.001)),
		model.ArrayEntry("rch-conc", grid(0)),
	)
	entry, _, _ := schema.Seawat().Lookup("rch")
	tree, err := expand.Period("rch", packageItems, entry, starts, calendar.Fixed, "rch")
	require.NoError(t, err)

	rendered := RenderPlain(tree)
	assert.Equal(t, "[rch]", rendered.Header)
	assert.Equal(t, 1, rendered.NSystems)
	assert.Equal(t, []string{"    rate_p1_s1_l1 = rch/rch-rate_l1.idf\n    rate_p2_s1_l1 = rch/rch-rate_l1.idf"}, rendered.Blocks)
	assert.Contains(t, rendered.SSM, "crch_t1_p1_l1 = rch/rch-conc_l1.idf")
}
