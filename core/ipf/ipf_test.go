package ipf

import (
	"os"
	"path/filepath"
	"testing"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wel.ipf")
	points := &model.Table{
		X:      []float64{0.5, 1.5},
		Y:      []float64{1.5, 0.5},
		Rate:   []float64{-100, 2.25},
		IDName: []string{"well 1", "a,b"},
	}
	require.NoError(t, Write(path, points))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2\n4\nx\ny\nrate\nid_name\n0,TXT\n0.5,1.5,-100,well 1\n1.5,0.5,2.25,\"a,b\"\n", string(raw))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, points.X, got.X)
	assert.Equal(t, points.Y, got.Y)
	assert.Equal(t, points.Rate, got.Rate)
	assert.Equal(t, points.IDName, got.IDName)
}

func TestReadAcceptsReorderedColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.ipf")
	content := "1\n5\nID_NAME\nX,-9999\nY\nRATE\nextra\n0,TXT\nw1, 10, 20, -5, ignored\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, got.X)
	assert.Equal(t, []float64{20}, got.Y)
	assert.Equal(t, []float64{-5}, got.Rate)
	assert.Equal(t, []string{"w1"}, got.IDName)
}

func TestReadRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"bad count":      "x\n",
		"missing column": "1\n2\nx\ny\n0,TXT\n1,2\n",
		"short row":      "1\n4\nx\ny\nrate\nid_name\n0,TXT\n1,2,3\n",
		"bad number":     "1\n4\nx\ny\nrate\nid_name\n0,TXT\n1,north,3,w\n",
		"missing rows":   "2\n4\nx\ny\nrate\nid_name\n0,TXT\n1,2,3,w\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.ipf")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, err := Read(path)
			require.ErrorIs(t, err, ErrMalformed)
			assert.Equal(t, coreerrors.CategoryInvalidInput, coreerrors.CategoryOf(err))
		})
	}
}
