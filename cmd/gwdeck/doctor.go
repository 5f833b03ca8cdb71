package main

import (
	"fmt"
	"io"

	"github.com/davidahmann/gwdeck/core/doctor"
	"github.com/davidahmann/gwdeck/core/projectconfig"
	"github.com/spf13/cobra"
)

type doctorOutput struct {
	OK              bool           `json:"ok"`
	Error           string         `json:"error,omitempty"`
	SchemaID        string         `json:"schema_id,omitempty"`
	SchemaVersion   string         `json:"schema_version,omitempty"`
	CreatedAt       string         `json:"created_at,omitempty"`
	ProducerVersion string         `json:"producer_version,omitempty"`
	Status          string         `json:"status,omitempty"`
	NonFixable      bool           `json:"non_fixable"`
	Summary         string         `json:"summary,omitempty"`
	FixCommands     []string       `json:"fix_commands,omitempty"`
	Checks          []doctor.Check `json:"checks,omitempty"`
}

func (a *app) doctorCommand() *cobra.Command {
	var workDir string
	var outputDir string
	var executable string
	var cacheDir string
	cmd := &cobra.Command{
		Use:         "doctor",
		Short:       "Check the local environment for writing and running decks",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			// A broken config is reported by the config check.
			config, _ := projectconfig.Load(a.configPath, true)
			result := doctor.Run(doctor.Options{
				WorkDir:          workDir,
				OutputDir:        firstNonEmpty(outputDir, config.Write.Directory, defaultDeckDir),
				ConfigPath:       a.configPath,
				SolverExecutable: firstNonEmpty(executable, config.Solver.Executable),
				CacheDir:         firstNonEmpty(cacheDir, config.Cache.Dir),
				CacheDisabled:    config.Cache.Disabled,
				ProducerVersion:  version,
			})

			exitCode := exitOK
			if result.NonFixable {
				exitCode = exitMissingDependency
			}
			output := doctorOutput{
				OK:              !result.NonFixable,
				SchemaID:        result.SchemaID,
				SchemaVersion:   result.SchemaVersion,
				CreatedAt:       result.CreatedAt,
				ProducerVersion: result.ProducerVersion,
				Status:          result.Status,
				NonFixable:      result.NonFixable,
				Summary:         result.Summary,
				FixCommands:     result.FixCommands,
				Checks:          result.Checks,
			}
			a.emit(output, exitCode, func(w io.Writer) {
				writeDoctorText(w, output)
			})
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&workDir, "workdir", ".", "work directory to check")
	flags.StringVar(&outputDir, "dir", "", "deck directory to check")
	flags.StringVar(&executable, "solver", "", "solver executable to resolve")
	flags.StringVar(&cacheDir, "cache-dir", "", "composition cache directory to open")
	return cmd
}

func writeDoctorText(w io.Writer, output doctorOutput) {
	_, _ = fmt.Fprintln(w, output.Summary)
	for _, check := range output.Checks {
		_, _ = fmt.Fprintf(w, "- %s: %s (%s)\n", check.Name, check.Status, check.Message)
		if check.FixCommand != "" {
			_, _ = fmt.Fprintf(w, "  fix: %s\n", check.FixCommand)
		}
	}
}
