package e2e

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/davidahmann/gwdeck/internal/testutil"
)

const wellManifest = `name: polder
end_time: "2000-01-03"
settings:
  modelname: polder
packages:
  - {key: bnd, kind: array, layers: [1, 2], y: [1.5, 0.5], x: [0.5, 1.5, 2.5], fill: 1}
  - {key: khv, kind: array, layers: [1, 2], y: [1.5, 0.5], x: [0.5, 1.5, 2.5], fill: 10}
  - key: wel-sys1
    kind: table
    rows:
      - {x: 0.5, y: 0.5, rate: -100, id_name: w1, layer: 1, time: "2000-01-01"}
      - {x: 1.5, y: 1.5, rate: -50, id_name: w2, layer: 2, time: "2000-01-02"}
`

func TestCLIWriteInspectRun(t *testing.T) {
	binPath := testutil.BuildBinary(t, testutil.RepoRoot(t))
	workDir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(workDir, "model.yaml"), []byte(wellManifest))

	validate := exec.Command(binPath, "validate", "model.yaml")
	validate.Dir = workDir
	validateOut, err := validate.CombinedOutput()
	if err != nil {
		t.Fatalf("gwdeck validate failed: %v\n%s", err, string(validateOut))
	}
	if !strings.Contains(string(validateOut), "valid imodflow model") {
		t.Fatalf("unexpected validate output: %s", string(validateOut))
	}

	write := exec.Command(binPath, "write", "model.yaml", "--json", "--log-level", "warn")
	write.Dir = workDir
	writeOut, err := write.Output()
	if err != nil {
		t.Fatalf("gwdeck write failed: %v\n%s", err, string(writeOut))
	}
	var writeResult struct {
		OK   bool `json:"ok"`
		Deck struct {
			RunFile string   `json:"run_file"`
			Files   []string `json:"files"`
			Cached  bool     `json:"cached"`
		} `json:"deck"`
	}
	if err := json.Unmarshal(writeOut, &writeResult); err != nil {
		t.Fatalf("parse write json output: %v\n%s", err, string(writeOut))
	}
	if !writeResult.OK || writeResult.Deck.Cached {
		t.Fatalf("unexpected write result: %s", string(writeOut))
	}
	if filepath.Base(writeResult.Deck.RunFile) != "polder.run" {
		t.Fatalf("unexpected run file: %s", writeResult.Deck.RunFile)
	}

	wellFile := ""
	for _, file := range writeResult.Deck.Files {
		if strings.HasSuffix(file, ".ipf") {
			wellFile = file
			break
		}
	}
	if wellFile == "" {
		t.Fatalf("expected a well file in %v", writeResult.Deck.Files)
	}
	inspect := exec.Command(binPath, "inspect", wellFile)
	inspect.Dir = workDir
	inspectOut, err := inspect.CombinedOutput()
	if err != nil {
		t.Fatalf("gwdeck inspect failed: %v\n%s", err, string(inspectOut))
	}
	if !strings.Contains(string(inspectOut), "name: wel-sys1") || !strings.Contains(string(inspectOut), "points: 1 rows") {
		t.Fatalf("unexpected inspect output: %s", string(inspectOut))
	}

	if runtime.GOOS == "windows" {
		return
	}
	solve := exec.Command(binPath, "run", "model.yaml", "--solver", "sh", "--solver-arg", "-c", "--solver-arg", "exit 4")
	solve.Dir = workDir
	solveOut, err := solve.CombinedOutput()
	if code := testutil.CommandExitCode(t, err); code != 4 {
		t.Fatalf("expected solver failure exit 4, got %d\n%s", code, string(solveOut))
	}
	if _, err := os.Stat(filepath.Join(workDir, "deck", "solver.log")); err != nil {
		t.Fatalf("expected solver log: %v", err)
	}
}

func TestCLIUsageExitCodes(t *testing.T) {
	binPath := testutil.BuildBinary(t, testutil.RepoRoot(t))
	workDir := t.TempDir()

	version := exec.Command(binPath, "version")
	version.Dir = workDir
	if out, err := version.CombinedOutput(); err != nil || !strings.HasPrefix(string(out), "gwdeck ") {
		t.Fatalf("gwdeck version failed: %v\n%s", err, string(out))
	}

	missing := exec.Command(binPath, "write", "absent.yaml", "--json")
	missing.Dir = workDir
	out, err := missing.Output()
	if code := testutil.CommandExitCode(t, err); code != 2 {
		t.Fatalf("expected exit 2 for a missing model, got %d", code)
	}
	var envelope struct {
		OK            bool   `json:"ok"`
		ErrorCode     string `json:"error_code"`
		ErrorCategory string `json:"error_category"`
		Hint          string `json:"hint"`
	}
	if err := json.Unmarshal(out, &envelope); err != nil {
		t.Fatalf("parse error envelope: %v\n%s", err, string(out))
	}
	if envelope.OK || envelope.ErrorCode != "manifest_not_found" || envelope.ErrorCategory != "invalid_input" || envelope.Hint == "" {
		t.Fatalf("unexpected error envelope: %s", string(out))
	}
}
