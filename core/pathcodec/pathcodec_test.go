package pathcodec

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/davidahmann/gwdeck/core/calendar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestDecompose(t *testing.T) {
	testCases := []struct {
		name string
		path string
		want Parts
	}{
		{
			name: "name only",
			path: "bnd.idf",
			want: Parts{Extension: ".idf", Name: "bnd"},
		},
		{
			name: "layer",
			path: filepath.Join("deck", "khv", "khv_l3.idf"),
			want: Parts{Extension: ".idf", Directory: filepath.Join("deck", "khv"), Name: "khv", Layer: intPtr(3)},
		},
		{
			name: "upper case layer",
			path: "head_L12.idf",
			want: Parts{Extension: ".idf", Name: "head", Layer: intPtr(12)},
		},
		{
			name: "long time and layer",
			path: "riv-stage-sys1_20000102030405_l1.idf",
			want: Parts{
				Extension: ".idf",
				Name:      "riv-stage-sys1",
				Time:      timePtr(time.Date(2000, 1, 2, 3, 4, 5, 0, time.UTC)),
				Layer:     intPtr(1),
			},
		},
		{
			name: "short time",
			path: "head_20000102_l1.idf",
			want: Parts{
				Extension: ".idf",
				Name:      "head",
				Time:      timePtr(time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)),
				Layer:     intPtr(1),
			},
		},
		{
			name: "first time token wins",
			path: "head_steady_20000102_20010101.idf",
			want: Parts{
				Extension: ".idf",
				Name:      "head",
				Time:      timePtr(time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)),
			},
		},
		{
			name: "layer must be final",
			path: "head_l2_extra.ipf",
			want: Parts{Extension: ".ipf", Name: "head"},
		},
		{
			name: "name looking like layer",
			path: "l3.idf",
			want: Parts{Extension: ".idf", Name: "l3"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decompose(tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecomposeEmptyName(t *testing.T) {
	_, err := Decompose(filepath.Join("deck", "_l1.idf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyName))
}

func TestCompose(t *testing.T) {
	stamp := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	base := Parts{Name: "riv-cond-sys1", Extension: ExtRaster}

	assert.Equal(t, "riv-cond-sys1.idf", Compose(base))
	assert.Equal(t, "riv-cond-sys1_l2.idf", Compose(base.WithLayer(2)))
	assert.Equal(t, "riv-cond-sys1_20000101000000.idf", Compose(base.WithTime(stamp)))
	assert.Equal(t, "riv-cond-sys1_20000101000000_l2.idf", Compose(base.WithTime(stamp).WithLayer(2)))

	base.Directory = "."
	assert.Equal(t, "."+string(filepath.Separator)+"riv-cond-sys1.idf", Compose(base))

	base.Directory = filepath.Join("out", "riv")
	assert.Equal(t, filepath.Join("out", "riv", "riv-cond-sys1_l2.idf"), Compose(base.WithLayer(2)))
}

func TestComposeInExtendedDropsSubseconds(t *testing.T) {
	stamp := time.Date(3000, 1, 1, 0, 0, 0, 250, time.UTC)
	parts := Parts{Name: "rch", Extension: ExtRaster}.WithTime(stamp)
	assert.Equal(t, "rch_30000101000000.idf", ComposeIn(calendar.Extended, parts))
	assert.Equal(t, 250, parts.Time.Nanosecond(), "ComposeIn must not mutate its argument")
}

func TestRoundTrip(t *testing.T) {
	stamp := time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC)
	testCases := []Parts{
		{Name: "bnd", Extension: ExtRaster},
		{Name: "bnd", Extension: ExtRaster, Directory: "."},
		{Name: "bnd", Extension: ExtRaster, Directory: "deck"},
		{Name: "khv", Extension: ExtRaster, Directory: "deck", Layer: intPtr(1)},
		{Name: "wel-sys2", Extension: ExtPoints, Directory: filepath.Join("deck", "wel"), Time: timePtr(stamp)},
		{Name: "riv-stage-sys1", Extension: ExtRaster, Directory: "riv", Time: timePtr(stamp), Layer: intPtr(14)},
	}
	for _, parts := range testCases {
		t.Run(Compose(parts), func(t *testing.T) {
			got, err := Decompose(Compose(parts))
			require.NoError(t, err)
			assert.Equal(t, parts, got)
		})
	}
}
