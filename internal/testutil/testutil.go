package testutil

import (
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/davidahmann/gwdeck/core/calendar"
	"github.com/davidahmann/gwdeck/core/model"
)

func RepoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to locate testutil source file")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

func BuildBinary(t *testing.T, root string) string {
	t.Helper()
	binDir := t.TempDir()
	binName := "gwdeck"
	if runtime.GOOS == "windows" {
		binName = "gwdeck.exe"
	}
	binPath := filepath.Join(binDir, binName)

	// #nosec G204 -- arguments are fixed and used only in test binaries.
	build := exec.Command("go", "build", "-o", binPath, "./cmd/gwdeck")
	build.Dir = root
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build gwdeck binary: %v\n%s", err, string(out))
	}
	return binPath
}

func CommandExitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected command exit error, got: %v", err)
	}
	return exitErr.ExitCode()
}

func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("create parent directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func MustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	content, err := os.ReadFile(path) // #nosec G304 -- test helper for controlled paths.
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}

// Time parses a literal accepted by calendar.Parse or fails the test.
func Time(t *testing.T, literal string) time.Time {
	t.Helper()
	parsed, err := calendar.Parse(literal)
	if err != nil {
		t.Fatalf("parse time %q: %v", literal, err)
	}
	return parsed
}

// Times parses every literal with Time.
func Times(t *testing.T, literals ...string) []time.Time {
	t.Helper()
	out := make([]time.Time, 0, len(literals))
	for _, literal := range literals {
		out = append(out, Time(t, literal))
	}
	return out
}

// Grid returns an array over the given coordinates filled with value.
func Grid(times []time.Time, layers []int, y, x []float64, value float64) *model.Array {
	count := len(layers) * len(y) * len(x)
	if len(times) > 0 {
		count *= len(times)
	}
	values := make([]float64, count)
	for i := range values {
		values[i] = value
	}
	return &model.Array{Times: times, Layers: layers, Y: y, X: x, Values: values}
}

// ScenarioY and ScenarioX are the cell centres of the 2 by 3 reference grid
// with unit cells.
var (
	ScenarioY = []float64{0.5, 1.5}
	ScenarioX = []float64{0.5, 1.5, 2.5}
)

// ScenarioModel builds the two-layer reference model: a bnd grid, a static
// khv package and one river system on two days. The river carries every
// declared field because a missing one is a field-order error.
func ScenarioModel(t *testing.T) *model.Model {
	t.Helper()
	layers := []int{1, 2}
	times := Times(t, "2000-01-01", "2000-01-02")
	m := model.New("results")
	entries := []model.Entry{
		model.ArrayEntry("bnd", Grid(nil, layers, ScenarioY, ScenarioX, 1)),
		model.ArrayEntry("khv", Grid(nil, layers, ScenarioY, ScenarioX, 10)),
		model.ArrayEntry("riv-stage-sys1", Grid(times, layers, ScenarioY, ScenarioX, 2.5)),
		model.ArrayEntry("riv-cond-sys1", Grid(times, layers, ScenarioY, ScenarioX, 100)),
		model.ArrayEntry("riv-bot-sys1", Grid(times, layers, ScenarioY, ScenarioX, 1.5)),
		model.ArrayEntry("riv-inff-sys1", Grid(times, layers, ScenarioY, ScenarioX, 1)),
	}
	for _, entry := range entries {
		if err := m.Add(entry); err != nil {
			t.Fatalf("add %s: %v", entry.Key, err)
		}
	}
	return m
}

// NaN returns a missing value.
func NaN() float64 {
	return math.NaN()
}
