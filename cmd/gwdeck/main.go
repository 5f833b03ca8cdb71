package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/metrics"
	"github.com/davidahmann/gwdeck/core/projectconfig"
	"github.com/davidahmann/gwdeck/internal/ctxlog"
	"github.com/davidahmann/gwdeck/internal/logging"
	"github.com/spf13/cobra"
)

var version = "0.0.0-dev"

// skipConfig marks commands that must work with a broken project config.
const skipConfig = "gwdeck/skip-config"

type app struct {
	stdout io.Writer
	stderr io.Writer

	jsonOutput  bool
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string

	config   projectconfig.Config
	metrics  *metrics.Recorder
	exitCode int
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(arguments []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{stdout: stdout, stderr: stderr, metrics: metrics.NewRecorder()}
	root := a.rootCommand()
	root.SetArgs(arguments)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		a.fail(err, exitInvalidInput)
	}
	if a.metricsFile != "" {
		if err := a.metrics.WriteTextfile(a.metricsFile); err != nil {
			_, _ = fmt.Fprintf(stderr, "write metrics: %v\n", err)
			if a.exitCode == exitOK {
				a.exitCode = exitIOFailure
			}
		}
	}
	return a.exitCode
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "gwdeck",
		Short:         "Write iMODFLOW and iMOD-SEAWAT input decks from a model definition",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.BoolVar(&a.jsonOutput, "json", false, "emit JSON output")
	flags.StringVar(&a.configPath, "config", projectconfig.DefaultPath, "project config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	root.AddCommand(
		a.composeCommand(),
		a.writeCommand(),
		a.runCommand(),
		a.validateCommand(),
		a.inspectCommand(),
		a.doctorCommand(),
		a.watchCommand(),
		a.versionCommand(),
	)
	return root
}

// setup loads the project config and installs the logger. Flags win over
// config values.
func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Annotations[skipConfig] == "" {
		explicit := cmd.Flags().Changed("config")
		config, err := projectconfig.Load(a.configPath, !explicit)
		if err != nil {
			return coreerrors.Invalid(err, "config_invalid", "fix "+a.configPath+" or run `gwdeck doctor`")
		}
		a.config = config
	}
	level := firstNonEmpty(a.logLevel, a.config.Log.Level, "info")
	format := firstNonEmpty(a.logFormat, a.config.Log.Format, "text")
	logger, err := logging.New(level, format, a.stderr)
	if err != nil {
		return coreerrors.Invalid(err, "log_flags_invalid", "")
	}
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return nil
}

// emit prints output as JSON or through text and records the exit code.
func (a *app) emit(output any, exitCode int, text func(io.Writer)) {
	if a.jsonOutput {
		a.exitCode = writeJSONOutput(a.stdout, output, exitCode)
		return
	}
	text(a.stdout)
	a.exitCode = exitCode
}

func (a *app) fail(err error, fallbackExit int) {
	exitCode := exitCodeForError(err, fallbackExit)
	if a.jsonOutput {
		a.exitCode = writeJSONOutput(a.stdout, newErrorOutput(err), exitCode)
		return
	}
	_, _ = fmt.Fprintf(a.stderr, "error: %v\n", err)
	if hint := coreerrors.HintOf(err); hint != "" {
		_, _ = fmt.Fprintf(a.stderr, "hint: %s\n", hint)
	}
	a.exitCode = exitCode
}

type versionOutput struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the gwdeck version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(*cobra.Command, []string) error {
			a.emit(versionOutput{OK: true, Version: version}, exitOK, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "gwdeck %s\n", version)
			})
			return nil
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
