package solver

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("solver tests use /bin/sh")
	}
}

func TestRunSuccessWritesRecord(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	record, err := Run(context.Background(), Options{
		Executable: "sh",
		Args:       []string{"-c", "echo converged; pwd"},
		Dir:        dir,
		DeckDigest: "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, record.Outcome)
	assert.Equal(t, 0, record.ExitCode)
	assert.Len(t, record.RunID, 36)

	raw, err := os.ReadFile(filepath.Join(dir, RecordFileName))
	require.NoError(t, err)
	var stored Record
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, record.RunID, stored.RunID)
	assert.Equal(t, "abc123", stored.DeckDigest)

	output, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(output), "converged")

	history, err := ReadHistory(dir)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, record.RunID, history[0].RunID)
}

func TestRunNonzeroExit(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	record, err := Run(context.Background(), Options{
		Executable: "sh",
		Args:       []string{"-c", "echo diverged >&2; exit 3"},
		Dir:        dir,
	})
	require.Error(t, err)
	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Contains(t, execErr.Output, "diverged")
	assert.Equal(t, coreerrors.CategorySolverFailed, coreerrors.CategoryOf(err))
	assert.Equal(t, "solver_failed", coreerrors.CodeOf(err))
	assert.Equal(t, OutcomeFailed, record.Outcome)

	_, err = os.Stat(filepath.Join(dir, RecordFileName))
	require.NoError(t, err)
}

func TestRunTimeout(t *testing.T) {
	requireShell(t)
	_, err := Run(context.Background(), Options{
		Executable: "sh",
		Args:       []string{"-c", "sleep 5"},
		Dir:        t.TempDir(),
		Timeout:    100 * time.Millisecond,
	})
	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.True(t, execErr.TimedOut)
	assert.Equal(t, "solver_timeout", coreerrors.CodeOf(err))
}

func TestRunMissingExecutable(t *testing.T) {
	_, err := Run(context.Background(), Options{Executable: "gwdeck-no-such-solver", Dir: t.TempDir()})
	require.Error(t, err)
	assert.Equal(t, coreerrors.CategoryDependencyMissing, coreerrors.CategoryOf(err))
	assert.Equal(t, "solver_not_found", coreerrors.CodeOf(err))
}

func TestRunValidatesOptions(t *testing.T) {
	testCases := map[string]Options{
		"no executable":    {Dir: "deck"},
		"no directory":     {Executable: "sh"},
		"negative timeout": {Executable: "sh", Dir: "deck", Timeout: -time.Second},
		"empty argument":   {Executable: "sh", Dir: "deck", Args: []string{""}},
	}
	for name, opts := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Run(context.Background(), opts)
			require.Error(t, err)
			assert.Equal(t, "solver_options_invalid", coreerrors.CodeOf(err))
		})
	}
}

func TestReadHistoryMissing(t *testing.T) {
	history, err := ReadHistory(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, history)
}
