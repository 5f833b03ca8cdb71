package deck

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davidahmann/gwdeck/core/cache"
	"github.com/davidahmann/gwdeck/core/idf"
	"github.com/davidahmann/gwdeck/core/ipf"
	"github.com/davidahmann/gwdeck/core/metrics"
	"github.com/davidahmann/gwdeck/core/model"
	"github.com/davidahmann/gwdeck/core/runfile"
	"github.com/davidahmann/gwdeck/internal/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func endTime(t *testing.T) *time.Time {
	t.Helper()
	end := testutil.Time(t, "2000-01-03")
	return &end
}

func TestWriteScenarioDeck(t *testing.T) {
	dir := t.TempDir()
	result, err := Write(context.Background(), testutil.ScenarioModel(t), Options{Directory: dir, EndTime: endTime(t), Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "results.run"), result.RunFile)
	assert.False(t, result.Cached)
	require.Len(t, result.Files, 20)
	for _, path := range result.Files {
		_, err := os.Stat(path)
		require.NoError(t, err, path)
	}

	text := string(testutil.MustReadFile(t, result.RunFile))
	assert.Contains(t, text, filepath.Join(dir, "riv", "riv-stage-sys1_20000101000000_l1.idf"))

	raster, err := idf.Read(filepath.Join(dir, "khv", "khv_l2.idf"))
	require.NoError(t, err)
	assert.Equal(t, 3, raster.NCol)
	assert.Equal(t, 2, raster.NRow)
	assert.Equal(t, 0.0, raster.XMin)
	assert.Equal(t, 3.0, raster.XMax)
	assert.Equal(t, 2.0, raster.YMax)
	for _, value := range raster.Values {
		assert.Equal(t, 10.0, value)
	}
}

func TestWriteFlipsAscendingRows(t *testing.T) {
	dir := t.TempDir()
	bnd := testutil.Grid(nil, []int{1}, testutil.ScenarioY, testutil.ScenarioX, 1)
	// Row 0 is y=0.5, the southern row.
	bnd.Values = []float64{1, 1, 1, 2, 2, testutil.NaN()}
	m := model.New("flip")
	require.NoError(t, m.Add(model.ArrayEntry("bnd", bnd)))

	_, err := Write(context.Background(), m, Options{Directory: dir, EndTime: endTime(t)})
	require.NoError(t, err)

	raster, err := idf.Read(filepath.Join(dir, "bnd", "bnd_l1.idf"))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2}, raster.Values[:2])
	assert.True(t, raster.Values[2] != raster.Values[2], "missing cell must read back as NaN")
	assert.Equal(t, []float64{1, 1, 1}, raster.Values[3:])
}

func TestWritePartitionsWellTable(t *testing.T) {
	dir := t.TempDir()
	times := testutil.Times(t, "2000-01-01", "2000-01-02")
	m := model.New("wells")
	require.NoError(t, m.Add(model.ArrayEntry("bnd", testutil.Grid(nil, []int{1, 2}, testutil.ScenarioY, testutil.ScenarioX, 1))))
	require.NoError(t, m.Add(model.TableEntry("wel-sys1", &model.Table{
		X:      []float64{0.5, 1.5, 2.5},
		Y:      []float64{0.5, 0.5, 1.5},
		Rate:   []float64{-10, -20, -30},
		IDName: []string{"a", "b", "c"},
		Layer:  []int{1, 2, 1},
		Time:   []time.Time{times[0], times[0], times[1]},
	})))

	result, err := Write(context.Background(), m, Options{Directory: dir, EndTime: endTime(t)})
	require.NoError(t, err)

	wellFiles := []string{}
	for _, path := range result.Files {
		if strings.HasSuffix(path, ".ipf") {
			wellFiles = append(wellFiles, filepath.Base(path))
		}
	}
	assert.Equal(t, []string{
		"wel-sys1_20000101000000_l1.ipf",
		"wel-sys1_20000101000000_l2.ipf",
		"wel-sys1_20000102000000_l1.ipf",
	}, wellFiles)

	points, err := ipf.Read(filepath.Join(dir, "wel", "wel-sys1_20000101000000_l2.ipf"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, points.IDName)
	assert.Equal(t, []float64{-20}, points.Rate)
}

func TestWriteFailsBeforeTouchingDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deck")
	m := model.New("broken")
	require.NoError(t, m.Add(model.ArrayEntry("bnd", testutil.Grid(nil, []int{1}, testutil.ScenarioY, testutil.ScenarioX, 1))))
	require.NoError(t, m.Add(model.ArrayEntry("lake", testutil.Grid(nil, []int{1}, testutil.ScenarioY, testutil.ScenarioX, 1))))

	_, err := Write(context.Background(), m, Options{Directory: dir, EndTime: endTime(t)})
	require.ErrorIs(t, err, runfile.ErrIncompleteConsumption)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunFilePathsExistOnDisk(t *testing.T) {
	dir := t.TempDir()
	m := testutil.ScenarioModel(t)
	times := testutil.Times(t, "2000-01-01", "2000-01-02")
	require.NoError(t, m.Add(model.ArrayEntry("rch", testutil.Grid(times[:1], []int{1}, testutil.ScenarioY, testutil.ScenarioX, 0.001))))
	require.NoError(t, m.Add(model.TableEntry("wel-sys1", &model.Table{
		X:      []float64{0.5, 1.5},
		Y:      []float64{0.5, 1.5},
		Rate:   []float64{-10, -20},
		IDName: []string{"a", "b"},
		Layer:  []int{1, 2},
		Time:   []time.Time{times[0], times[1]},
	})))

	result, err := Write(context.Background(), m, Options{Directory: dir, EndTime: endTime(t)})
	require.NoError(t, err)

	referenced := runFilePaths(string(testutil.MustReadFile(t, result.RunFile)))
	require.NotEmpty(t, referenced)
	for _, path := range referenced {
		_, err := os.Stat(path)
		assert.NoError(t, err, "run file references %s", path)
	}
}

func TestWriteRejectsTimedStaticArray(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deck")
	times := testutil.Times(t, "2000-01-01", "2000-01-02")
	m := model.New("timed")
	require.NoError(t, m.Add(model.ArrayEntry("bnd", testutil.Grid(nil, []int{1, 2}, testutil.ScenarioY, testutil.ScenarioX, 1))))
	require.NoError(t, m.Add(model.ArrayEntry("khv", testutil.Grid(times[:1], []int{1, 2}, testutil.ScenarioY, testutil.ScenarioX, 10))))
	require.NoError(t, m.Add(model.ArrayEntry("rch", testutil.Grid(times, []int{1}, testutil.ScenarioY, testutil.ScenarioX, 0.001))))

	_, err := Write(context.Background(), m, Options{Directory: dir, EndTime: endTime(t)})
	require.ErrorIs(t, err, runfile.ErrStaticWithTime)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

// runFilePaths returns every raster or point file path named in text.
func runFilePaths(text string) []string {
	var paths []string
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '"' || r == '\''
	})
	for _, token := range tokens {
		if strings.HasSuffix(token, ".idf") || strings.HasSuffix(token, ".ipf") {
			paths = append(paths, token)
		}
	}
	return paths
}

func TestWriteUsesCache(t *testing.T) {
	dir := t.TempDir()
	recorder := metrics.NewRecorder()
	store := cache.New(cache.NewMemoryStore())
	opts := Options{Directory: dir, EndTime: endTime(t), Cache: store, Metrics: recorder}

	first, err := Write(context.Background(), testutil.ScenarioModel(t), opts)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := Write(context.Background(), testutil.ScenarioModel(t), opts)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.RunFileDigest, second.RunFileDigest)

	// A deleted deck file forces a rewrite even with a cache hit on record.
	require.NoError(t, os.Remove(first.Files[0]))
	third, err := Write(context.Background(), testutil.ScenarioModel(t), opts)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	_, err = os.Stat(first.Files[0])
	require.NoError(t, err)

	opts.Overrides = map[string]any{"outer": float64(300)}
	fourth, err := Write(context.Background(), testutil.ScenarioModel(t), opts)
	require.NoError(t, err)
	assert.False(t, fourth.Cached)

	lookups, err := promtest.GatherAndCount(recorder.Registry(), "gwdeck_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, lookups, "hit and miss series")
}

func TestComposeDoesNotWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deck")
	composed, text, err := Compose(context.Background(), testutil.ScenarioModel(t), Options{Directory: dir, EndTime: endTime(t)})
	require.NoError(t, err)
	assert.Equal(t, "results", composed.ModelName())
	assert.True(t, strings.HasPrefix(text, "[gen]\n"))
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}
