package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/gwdeck/core/cache"
	"github.com/davidahmann/gwdeck/core/manifest"
	"github.com/davidahmann/gwdeck/core/projectconfig"
)

// DefaultCacheDir holds the composition cache relative to the work directory.
const DefaultCacheDir = ".gwdeck/cache"

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

type Options struct {
	WorkDir          string
	OutputDir        string
	ConfigPath       string
	SolverExecutable string
	CacheDir         string
	CacheDisabled    bool
	ProducerVersion  string
}

type Result struct {
	SchemaID        string   `json:"schema_id"`
	SchemaVersion   string   `json:"schema_version"`
	CreatedAt       string   `json:"created_at"`
	ProducerVersion string   `json:"producer_version"`
	Status          string   `json:"status"`
	NonFixable      bool     `json:"non_fixable"`
	Summary         string   `json:"summary"`
	FixCommands     []string `json:"fix_commands"`
	Checks          []Check  `json:"checks"`
}

type Check struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	FixCommand string `json:"fix_command,omitempty"`
	NonFixable bool   `json:"non_fixable,omitempty"`
}

func Run(opts Options) Result {
	workDir := strings.TrimSpace(opts.WorkDir)
	if workDir == "" {
		workDir = "."
	}
	outputDir := strings.TrimSpace(opts.OutputDir)
	if outputDir == "" {
		outputDir = "./deck"
	}
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(workDir, outputDir)
	}

	producerVersion := strings.TrimSpace(opts.ProducerVersion)
	if producerVersion == "" {
		producerVersion = "0.0.0-dev"
	}

	cacheDir := strings.TrimSpace(opts.CacheDir)
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(workDir, cacheDir)
	}

	checks := []Check{
		checkWorkDirWritable(workDir),
		checkConfig(opts.ConfigPath),
		checkOutputDir(outputDir),
		checkSolver(opts.SolverExecutable),
		checkCache(cacheDir, opts.CacheDisabled),
		checkManifestSchema(),
	}

	failed := 0
	warned := 0
	nonFixable := false
	fixCommands := make([]string, 0, len(checks))
	seenFixes := map[string]struct{}{}
	for _, check := range checks {
		switch check.Status {
		case statusFail:
			failed++
		case statusWarn:
			warned++
		}
		if check.NonFixable {
			nonFixable = true
		}
		if check.FixCommand != "" {
			if _, ok := seenFixes[check.FixCommand]; !ok {
				seenFixes[check.FixCommand] = struct{}{}
				fixCommands = append(fixCommands, check.FixCommand)
			}
		}
	}

	status := statusPass
	if failed > 0 {
		status = statusFail
	} else if warned > 0 {
		status = statusWarn
	}

	sort.Strings(fixCommands)
	summary := fmt.Sprintf("doctor: status=%s failed=%d warned=%d non_fixable=%t", status, failed, warned, nonFixable)

	return Result{
		SchemaID:        "gwdeck.doctor.result",
		SchemaVersion:   "1.0.0",
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		ProducerVersion: producerVersion,
		Status:          status,
		NonFixable:      nonFixable,
		Summary:         summary,
		FixCommands:     fixCommands,
		Checks:          checks,
	}
}

func checkWorkDirWritable(workDir string) Check {
	info, err := os.Stat(workDir)
	if err != nil {
		return Check{
			Name:       "workdir",
			Status:     statusFail,
			Message:    fmt.Sprintf("workdir not accessible: %v", err),
			FixCommand: fmt.Sprintf("mkdir -p %s", shellQuote(workDir)),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:       "workdir",
			Status:     statusFail,
			Message:    "workdir is not a directory",
			FixCommand: fmt.Sprintf("mkdir -p %s", shellQuote(workDir)),
		}
	}
	testPath := filepath.Join(workDir, ".gwdeck-doctor-writecheck")
	if err := os.WriteFile(testPath, []byte("ok"), 0o600); err != nil {
		return Check{
			Name:       "workdir",
			Status:     statusFail,
			Message:    fmt.Sprintf("workdir not writable: %v", err),
			FixCommand: fmt.Sprintf("chmod u+w %s", shellQuote(workDir)),
		}
	}
	_ = os.Remove(testPath)
	return Check{
		Name:    "workdir",
		Status:  statusPass,
		Message: "workdir is writable",
	}
}

func checkOutputDir(outputDir string) Check {
	info, err := os.Stat(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Check{
				Name:       "output_dir",
				Status:     statusWarn,
				Message:    "output directory does not exist",
				FixCommand: fmt.Sprintf("mkdir -p %s", shellQuote(outputDir)),
			}
		}
		return Check{
			Name:    "output_dir",
			Status:  statusFail,
			Message: fmt.Sprintf("output directory check failed: %v", err),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    "output_dir",
			Status:  statusFail,
			Message: "output path is not a directory",
		}
	}
	testPath := filepath.Join(outputDir, ".gwdeck-doctor-writecheck")
	if err := os.WriteFile(testPath, []byte("ok"), 0o600); err != nil {
		return Check{
			Name:       "output_dir",
			Status:     statusFail,
			Message:    fmt.Sprintf("output directory not writable: %v", err),
			FixCommand: fmt.Sprintf("chmod u+w %s", shellQuote(outputDir)),
		}
	}
	_ = os.Remove(testPath)
	return Check{
		Name:    "output_dir",
		Status:  statusPass,
		Message: "output directory is writable",
	}
}

func checkConfig(path string) Check {
	if strings.TrimSpace(path) == "" {
		return Check{
			Name:    "config",
			Status:  statusPass,
			Message: "no project config requested",
		}
	}
	if _, err := projectconfig.Load(path, true); err != nil {
		return Check{
			Name:       "config",
			Status:     statusFail,
			Message:    fmt.Sprintf("project config invalid: %v", err),
			FixCommand: fmt.Sprintf("edit %s", shellQuote(path)),
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Check{
			Name:    "config",
			Status:  statusWarn,
			Message: "project config not found, using defaults",
		}
	}
	return Check{
		Name:    "config",
		Status:  statusPass,
		Message: "project config is valid",
	}
}

func checkSolver(executable string) Check {
	if strings.TrimSpace(executable) == "" {
		return Check{
			Name:       "solver",
			Status:     statusWarn,
			Message:    "no solver executable configured",
			FixCommand: "set solver.executable in " + projectconfig.DefaultPath,
		}
	}
	resolved, err := exec.LookPath(executable)
	if err != nil {
		return Check{
			Name:       "solver",
			Status:     statusFail,
			Message:    fmt.Sprintf("solver %s not found: %v", executable, err),
			NonFixable: true,
		}
	}
	return Check{
		Name:    "solver",
		Status:  statusPass,
		Message: "solver resolves to " + resolved,
	}
}

func checkCache(dir string, disabled bool) Check {
	if disabled {
		return Check{
			Name:    "cache",
			Status:  statusPass,
			Message: "composition cache disabled",
		}
	}
	store, err := cache.OpenBadger(dir, nil)
	if err != nil {
		return Check{
			Name:       "cache",
			Status:     statusWarn,
			Message:    fmt.Sprintf("cache directory not usable: %v", err),
			FixCommand: fmt.Sprintf("rm -rf %s", shellQuote(dir)),
		}
	}
	if err := store.Close(); err != nil {
		return Check{
			Name:    "cache",
			Status:  statusWarn,
			Message: fmt.Sprintf("cache close failed: %v", err),
		}
	}
	return Check{
		Name:    "cache",
		Status:  statusPass,
		Message: "cache directory is usable",
	}
}

func checkManifestSchema() Check {
	if err := manifest.CompileSchema(); err != nil {
		return Check{
			Name:       "manifest_schema",
			Status:     statusFail,
			Message:    fmt.Sprintf("embedded manifest schema does not compile: %v", err),
			NonFixable: true,
		}
	}
	return Check{
		Name:    "manifest_schema",
		Status:  statusPass,
		Message: "manifest schema compiles",
	}
}

func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
