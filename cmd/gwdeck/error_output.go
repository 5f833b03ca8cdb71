package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/solver"
)

const (
	exitOK                = 0
	exitInternalFailure   = 1
	exitInvalidInput      = 2
	exitMissingDependency = 3
	exitSolverFailed      = 4
	exitIOFailure         = 5
)

type errorOutput struct {
	OK            bool   `json:"ok"`
	Error         string `json:"error"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
	Hint          string `json:"hint,omitempty"`
	Retryable     bool   `json:"retryable"`
}

func newErrorOutput(err error) errorOutput {
	return errorOutput{
		OK:            false,
		Error:         err.Error(),
		ErrorCode:     coreerrors.CodeOf(err),
		ErrorCategory: string(coreerrors.CategoryOf(err)),
		Hint:          coreerrors.HintOf(err),
		Retryable:     coreerrors.RetryableOf(err),
	}
}

func writeJSONOutput(w io.Writer, output any, exitCode int) int {
	encoded, err := marshalOutputWithErrorEnvelope(output, exitCode)
	if err != nil {
		_, _ = fmt.Fprintln(w, `{"ok":false,"error":"failed to encode output","error_code":"encode_failed","error_category":"internal_failure","retryable":false}`)
		return exitInternalFailure
	}
	_, _ = fmt.Fprintln(w, string(encoded))
	return exitCode
}

// marshalOutputWithErrorEnvelope fills the error fields a command left empty
// from the exit code, so every failing JSON output carries the full envelope.
func marshalOutputWithErrorEnvelope(output any, exitCode int) ([]byte, error) {
	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	errorText := strings.TrimSpace(asString(result["error"]))
	if errorText == "" {
		return json.Marshal(result)
	}
	if strings.TrimSpace(asString(result["error_code"])) == "" {
		result["error_code"] = defaultErrorCode(exitCode)
	}
	if strings.TrimSpace(asString(result["error_category"])) == "" {
		result["error_category"] = string(defaultErrorCategory(exitCode))
	}
	if _, exists := result["retryable"]; !exists {
		result["retryable"] = false
	}
	if strings.TrimSpace(asString(result["hint"])) == "" {
		result["hint"] = defaultHint(exitCode)
	}
	return json.Marshal(result)
}

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput, coreerrors.CategoryInconsistentModel:
		return exitInvalidInput
	case coreerrors.CategoryDependencyMissing:
		return exitMissingDependency
	case coreerrors.CategorySolverFailed:
		return exitSolverFailed
	case coreerrors.CategoryIOFailure:
		return exitIOFailure
	case coreerrors.CategoryInternalFailure:
		return exitInternalFailure
	}
	var execErr *solver.ExecutionError
	if stderrors.As(err, &execErr) {
		return exitSolverFailed
	}
	return fallbackExit
}

func defaultErrorCategory(exitCode int) coreerrors.Category {
	switch exitCode {
	case exitInvalidInput:
		return coreerrors.CategoryInvalidInput
	case exitMissingDependency:
		return coreerrors.CategoryDependencyMissing
	case exitSolverFailed:
		return coreerrors.CategorySolverFailed
	case exitIOFailure:
		return coreerrors.CategoryIOFailure
	default:
		return coreerrors.CategoryInternalFailure
	}
}

func defaultErrorCode(exitCode int) string {
	switch exitCode {
	case exitInvalidInput:
		return "invalid_input"
	case exitMissingDependency:
		return "dependency_missing"
	case exitSolverFailed:
		return "solver_failed"
	case exitIOFailure:
		return "io_failure"
	default:
		return "internal_failure"
	}
}

func defaultHint(exitCode int) string {
	switch exitCode {
	case exitInvalidInput:
		return "check command usage and the model definition"
	case exitMissingDependency:
		return "install or configure the missing dependency and retry"
	case exitSolverFailed:
		return "inspect solver.log in the deck directory"
	case exitIOFailure:
		return "check that the deck and cache directories are writable"
	default:
		return "retry after checking local environment and logs"
	}
}

func asString(value any) string {
	text, _ := value.(string)
	return text
}
