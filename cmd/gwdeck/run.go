package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/davidahmann/gwdeck/core/deck"
	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/solver"
	"github.com/spf13/cobra"
)

type solverFlags struct {
	executable string
	args       []string
	timeout    string
}

type runOutput struct {
	OK            bool           `json:"ok"`
	Error         string         `json:"error,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	ErrorCategory string         `json:"error_category,omitempty"`
	Hint          string         `json:"hint,omitempty"`
	Deck          *deck.Result   `json:"deck,omitempty"`
	Record        *solver.Record `json:"record,omitempty"`
}

func (a *app) runCommand() *cobra.Command {
	f := &deckFlags{}
	s := &solverFlags{}
	cmd := &cobra.Command{
		Use:   "run <model.yaml>",
		Short: "Write the deck of a model and run the solver on it",
		Long: "Write the deck of a model and run the solver on it. Without --solver-arg the\n" +
			"solver receives the run file name and runs inside the deck directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, _, err := a.writeDeck(cmd.Context(), cmd, args[0], f)
			if err != nil {
				a.fail(err, exitInternalFailure)
				return nil
			}
			opts, err := a.solverOptions(cmd, s, result)
			if err != nil {
				a.fail(err, exitInvalidInput)
				return nil
			}
			record, err := solver.Run(cmd.Context(), opts)
			if record.RunID != "" {
				a.metrics.SolverRun(record.Outcome, record.FinishedAt.Sub(record.StartedAt))
			}
			output := runOutput{OK: err == nil, Deck: &result}
			if record.RunID != "" {
				output.Record = &record
			}
			exitCode := exitOK
			if err != nil {
				exitCode = exitCodeForError(err, exitSolverFailed)
				output.Error = err.Error()
				output.ErrorCode = coreerrors.CodeOf(err)
				output.ErrorCategory = string(coreerrors.CategoryOf(err))
				output.Hint = coreerrors.HintOf(err)
			}
			a.emit(output, exitCode, func(w io.Writer) {
				printDeck(w, result)
				if output.Record != nil {
					_, _ = fmt.Fprintf(w, "solver %s: exit code %d after %.1fs (run %s)\n", record.Outcome, record.ExitCode, record.DurationSeconds, record.RunID)
				}
				if output.Error != "" {
					_, _ = fmt.Fprintf(a.stderr, "error: %s\n", output.Error)
					if output.Hint != "" {
						_, _ = fmt.Fprintf(a.stderr, "hint: %s\n", output.Hint)
					}
				}
			})
			return nil
		},
	}
	f.bindWrite(cmd)
	flags := cmd.Flags()
	flags.StringVar(&s.executable, "solver", "", "solver executable (default solver.executable from config)")
	flags.StringArrayVar(&s.args, "solver-arg", nil, "solver argument (repeatable)")
	flags.StringVar(&s.timeout, "timeout", "", "kill the solver after this duration, for example 90m")
	return cmd
}

func (a *app) solverOptions(cmd *cobra.Command, s *solverFlags, result deck.Result) (solver.Options, error) {
	executable := firstNonEmpty(s.executable, a.config.Solver.Executable)
	if executable == "" {
		return solver.Options{}, coreerrors.Wrap(
			fmt.Errorf("no solver configured"),
			coreerrors.CategoryDependencyMissing,
			"solver_not_configured",
			"pass --solver or set solver.executable in .gwdeck/config.yaml",
			false,
		)
	}
	args := a.config.Solver.Args
	if cmd.Flags().Changed("solver-arg") {
		args = s.args
	}
	if len(args) == 0 {
		args = []string{filepath.Base(result.RunFile)}
	}

	timeout, err := a.config.Solver.TimeoutDuration()
	if err != nil {
		return solver.Options{}, coreerrors.Invalid(err, "solver_timeout_invalid", "")
	}
	if strings.TrimSpace(s.timeout) != "" {
		timeout, err = time.ParseDuration(s.timeout)
		if err != nil || timeout < 0 {
			return solver.Options{}, coreerrors.Invalid(fmt.Errorf("invalid solver timeout %q", s.timeout), "solver_timeout_invalid", "use a duration such as 90m")
		}
	}
	return solver.Options{
		Executable: executable,
		Args:       args,
		Dir:        result.Directory,
		Timeout:    timeout,
		DeckDigest: result.RunFileDigest,
	}, nil
}
