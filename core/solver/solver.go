// Package solver runs an external groundwater solver on a written deck and
// records the invocation next to the deck.
package solver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/fsx"
	"github.com/davidahmann/gwdeck/internal/ctxlog"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	RecordFileName  = "run_record.json"
	HistoryFileName = "runs.jsonl"
	LogFileName     = "solver.log"

	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

// waitDelay bounds how long output pipes are drained after the solver is
// killed on timeout.
const waitDelay = 2 * time.Second

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options describes one solver invocation. Dir is the deck directory and the
// working directory of the solver.
type Options struct {
	Executable string        `validate:"required"`
	Args       []string      `validate:"dive,required"`
	Dir        string        `validate:"required"`
	Timeout    time.Duration `validate:"gte=0"`
	// DeckDigest identifies the run file the solver was pointed at.
	DeckDigest string
}

// ExecutionError is returned when the solver exits nonzero or times out.
type ExecutionError struct {
	ExitCode int
	Output   string
	TimedOut bool
}

func (e *ExecutionError) Error() string {
	if e.TimedOut {
		return "solver timed out"
	}
	return fmt.Sprintf("solver exited with code %d", e.ExitCode)
}

// Record is the persisted description of one invocation.
type Record struct {
	RunID           string    `json:"run_id"`
	Executable      string    `json:"executable"`
	Args            []string  `json:"args"`
	Dir             string    `json:"dir"`
	DeckDigest      string    `json:"deck_digest,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	ExitCode        int       `json:"exit_code"`
	Outcome         string    `json:"outcome"`
}

// Run executes the solver and waits for it. The run record and combined
// output are written to Dir whether or not the solver succeeds.
func Run(ctx context.Context, opts Options) (Record, error) {
	logger := ctxlog.FromContext(ctx)
	if err := validate.Struct(opts); err != nil {
		return Record{}, coreerrors.Invalid(fmt.Errorf("solver options: %w", err), "solver_options_invalid", "")
	}
	executable, err := exec.LookPath(opts.Executable)
	if err != nil {
		return Record{}, coreerrors.Wrap(
			fmt.Errorf("resolve solver %q: %w", opts.Executable, err),
			coreerrors.CategoryDependencyMissing,
			"solver_not_found",
			"install the solver or set solver.executable in .gwdeck/config.yaml",
			false,
		)
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return Record{}, coreerrors.Wrap(fmt.Errorf("resolve deck directory: %w", err), coreerrors.CategoryIOFailure, "directory_invalid", "", false)
	}

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	record := Record{
		RunID:      uuid.NewString(),
		Executable: executable,
		Args:       append([]string{}, opts.Args...),
		Dir:        dir,
		DeckDigest: opts.DeckDigest,
		StartedAt:  time.Now().UTC(),
	}
	logger.Info("solver started", "run_id", record.RunID, "executable", executable, "dir", dir)

	// #nosec G204 -- the solver executable is explicit user configuration.
	command := exec.CommandContext(runCtx, executable, opts.Args...)
	command.Dir = dir
	command.WaitDelay = waitDelay
	output, runErr := command.CombinedOutput()
	record.FinishedAt = time.Now().UTC()
	record.DurationSeconds = record.FinishedAt.Sub(record.StartedAt).Seconds()

	var failure *ExecutionError
	switch {
	case runErr == nil:
		record.Outcome = OutcomeOK
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		record.Outcome = OutcomeTimeout
		record.ExitCode = -1
		failure = &ExecutionError{ExitCode: -1, Output: string(output), TimedOut: true}
	default:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Record{}, coreerrors.Wrap(fmt.Errorf("start solver: %w", runErr), coreerrors.CategoryDependencyMissing, "solver_start_failed", "", false)
		}
		record.Outcome = OutcomeFailed
		record.ExitCode = exitErr.ExitCode()
		failure = &ExecutionError{ExitCode: record.ExitCode, Output: string(output)}
	}

	if err := persist(dir, record, output); err != nil {
		return record, err
	}
	logger.Info("solver finished",
		"run_id", record.RunID,
		"outcome", record.Outcome,
		"exit_code", record.ExitCode,
		"duration_seconds", record.DurationSeconds,
	)
	if failure != nil {
		code := "solver_failed"
		if failure.TimedOut {
			code = "solver_timeout"
		}
		return record, coreerrors.Wrap(failure, coreerrors.CategorySolverFailed, code, "see "+filepath.Join(dir, LogFileName), false)
	}
	return record, nil
}

func persist(dir string, record Record, output []byte) error {
	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("encode run record: %w", err), coreerrors.CategoryInternalFailure, "run_record_encode", "", false)
	}
	if err := fsx.WriteFileAtomic(filepath.Join(dir, RecordFileName), append(encoded, '\n'), 0o600); err != nil {
		return ioError("write run record", err)
	}
	if err := fsx.WriteFileAtomic(filepath.Join(dir, LogFileName), output, 0o600); err != nil {
		return ioError("write solver log", err)
	}
	compact, err := json.Marshal(record)
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("encode run history: %w", err), coreerrors.CategoryInternalFailure, "run_record_encode", "", false)
	}
	if err := fsx.AppendRecord(filepath.Join(dir, HistoryFileName), compact, 0o600); err != nil {
		return ioError("append run history", err)
	}
	return nil
}

// ReadHistory returns every recorded run in dir, oldest first.
func ReadHistory(dir string) ([]Record, error) {
	content, err := fsx.ReadLines(filepath.Join(dir, HistoryFileName))
	if err != nil {
		return nil, ioError("read run history", err)
	}
	records := make([]Record, 0, len(content))
	for i, line := range content {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, coreerrors.Invalid(fmt.Errorf("run history line %d: %w", i+1, err), "run_history_malformed", "")
		}
		records = append(records, record)
	}
	return records, nil
}

func ioError(op string, err error) error {
	return coreerrors.Wrap(fmt.Errorf("%s: %w", op, err), coreerrors.CategoryIOFailure, "run_record_write_failed", "", true)
}
