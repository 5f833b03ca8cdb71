package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/davidahmann/gwdeck/core/cache"
	"github.com/davidahmann/gwdeck/core/calendar"
	"github.com/davidahmann/gwdeck/core/deck"
	"github.com/davidahmann/gwdeck/core/doctor"
	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/manifest"
	"github.com/davidahmann/gwdeck/internal/ctxlog"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

const defaultDeckDir = "deck"

// deckFlags are the composition flags shared by compose, validate, write,
// run and watch.
type deckFlags struct {
	dir      string
	seawat   bool
	endTime  string
	settings []string

	workers  int
	noCache  bool
	cacheDir string
}

func (f *deckFlags) bindCompose(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.dir, "dir", "", "deck directory (default \"deck\")")
	flags.BoolVar(&f.seawat, "seawat", false, "write an iMOD-SEAWAT deck")
	flags.StringVar(&f.endTime, "end-time", "", "end of the last stress period (YYYY-MM-DD or RFC 3339)")
	flags.StringArrayVar(&f.settings, "set", nil, "override a run file setting, name=value (repeatable)")
}

func (f *deckFlags) bindWrite(cmd *cobra.Command) {
	f.bindCompose(cmd)
	flags := cmd.Flags()
	flags.IntVar(&f.workers, "workers", 0, "concurrent file writes (default GOMAXPROCS)")
	flags.BoolVar(&f.noCache, "no-cache", false, "always rewrite the deck")
	flags.StringVar(&f.cacheDir, "cache-dir", "", "composition cache directory (default \""+doctor.DefaultCacheDir+"\")")
}

// options resolves composition options from flags, the manifest and the
// project config, in that order of precedence.
func (a *app) options(cmd *cobra.Command, loaded *manifest.Manifest, f *deckFlags) (deck.Options, error) {
	opts := deck.Options{
		Directory: firstNonEmpty(f.dir, a.config.Write.Directory, defaultDeckDir),
		Seawat:    loaded.Seawat || a.config.Write.Seawat,
		EndTime:   loaded.EndTime,
		Workers:   a.config.Write.Workers,
		Metrics:   a.metrics,
	}
	if cmd.Flags().Changed("seawat") {
		opts.Seawat = f.seawat
	}
	if strings.TrimSpace(f.endTime) != "" {
		end, err := calendar.Parse(f.endTime)
		if err != nil {
			return deck.Options{}, err
		}
		opts.EndTime = &end
	}
	if f.workers > 0 {
		opts.Workers = f.workers
	}

	overrides := map[string]any{}
	maps.Copy(overrides, a.config.Runfile.Settings)
	maps.Copy(overrides, loaded.Settings)
	for _, assignment := range f.settings {
		name, value, err := parseSetting(assignment)
		if err != nil {
			return deck.Options{}, err
		}
		overrides[name] = value
	}
	if len(overrides) > 0 {
		opts.Overrides = overrides
	}
	return opts, nil
}

// openCache returns nil when caching is disabled. The caller closes the
// returned cache.
func (a *app) openCache(ctx context.Context, f *deckFlags) (*cache.Cache, error) {
	if f.noCache || a.config.Cache.Disabled {
		return nil, nil
	}
	dir := firstNonEmpty(f.cacheDir, a.config.Cache.Dir, doctor.DefaultCacheDir)
	store, err := cache.OpenBadger(dir, ctxlog.FromContext(ctx))
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "cache_open_failed", "pass --no-cache or check that no other gwdeck holds "+dir, true)
	}
	return cache.New(store), nil
}

// parseSetting splits name=value and decodes value as a YAML scalar, so
// numbers and booleans reach the run file with their type.
func parseSetting(assignment string) (string, any, error) {
	name, raw, ok := strings.Cut(assignment, "=")
	name = strings.ToLower(strings.TrimSpace(name))
	if !ok || name == "" {
		return "", nil, coreerrors.Invalid(fmt.Errorf("setting %q is not name=value", assignment), "setting_malformed", "use --set outer=200")
	}
	if strings.TrimSpace(raw) == "" {
		return name, raw, nil
	}
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return "", nil, coreerrors.Invalid(fmt.Errorf("setting %s: %w", name, err), "setting_malformed", "")
	}
	if value == nil {
		value = raw
	}
	return name, value, nil
}

type composeOutput struct {
	OK        bool     `json:"ok"`
	Error     string   `json:"error,omitempty"`
	Flavor    string   `json:"flavor,omitempty"`
	Directory string   `json:"directory,omitempty"`
	RunFile   string   `json:"run_file,omitempty"`
	Files     []string `json:"files,omitempty"`
}

func (a *app) composeCommand() *cobra.Command {
	f := &deckFlags{}
	cmd := &cobra.Command{
		Use:   "compose <model.yaml>",
		Short: "Print the run file of a model without writing the deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := manifest.Load(args[0])
			if err != nil {
				a.fail(err, exitInvalidInput)
				return nil
			}
			opts, err := a.options(cmd, loaded, f)
			if err != nil {
				a.fail(err, exitInvalidInput)
				return nil
			}
			composed, text, err := deck.Compose(cmd.Context(), loaded.Model, opts)
			if err != nil {
				a.fail(err, exitInvalidInput)
				return nil
			}
			output := composeOutput{OK: true, Flavor: composed.Flavor, Directory: composed.Directory, RunFile: text}
			for _, file := range composed.Files {
				output.Files = append(output.Files, file.Path)
			}
			a.emit(output, exitOK, func(w io.Writer) {
				_, _ = io.WriteString(w, text)
			})
			return nil
		},
	}
	f.bindCompose(cmd)
	return cmd
}

type validateOutput struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Name     string `json:"name,omitempty"`
	Digest   string `json:"digest,omitempty"`
	Flavor   string `json:"flavor,omitempty"`
	Packages int    `json:"packages"`
	Files    int    `json:"files"`
}

func (a *app) validateCommand() *cobra.Command {
	f := &deckFlags{}
	cmd := &cobra.Command{
		Use:   "validate <model.yaml>",
		Short: "Check a model definition and its composition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := manifest.Load(args[0])
			if err != nil {
				a.fail(err, exitInvalidInput)
				return nil
			}
			opts, err := a.options(cmd, loaded, f)
			if err != nil {
				a.fail(err, exitInvalidInput)
				return nil
			}
			composed, _, err := deck.Compose(cmd.Context(), loaded.Model, opts)
			if err != nil {
				a.fail(err, exitInvalidInput)
				return nil
			}
			output := validateOutput{
				OK:       true,
				Name:     composed.ModelName(),
				Digest:   loaded.Digest,
				Flavor:   composed.Flavor,
				Packages: loaded.Model.Len(),
				Files:    len(composed.Files),
			}
			a.emit(output, exitOK, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "%s: valid %s model, %d packages, %d files\n", args[0], output.Flavor, output.Packages, output.Files)
			})
			return nil
		},
	}
	f.bindCompose(cmd)
	return cmd
}

type writeOutput struct {
	OK    bool         `json:"ok"`
	Error string       `json:"error,omitempty"`
	Deck  *deck.Result `json:"deck,omitempty"`
}

func (a *app) writeCommand() *cobra.Command {
	f := &deckFlags{}
	cmd := &cobra.Command{
		Use:   "write <model.yaml>",
		Short: "Write the deck of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, _, err := a.writeDeck(cmd.Context(), cmd, args[0], f)
			if err != nil {
				a.fail(err, exitInternalFailure)
				return nil
			}
			a.emit(writeOutput{OK: true, Deck: &result}, exitOK, func(w io.Writer) {
				printDeck(w, result)
			})
			return nil
		},
	}
	f.bindWrite(cmd)
	return cmd
}

// writeDeck loads the model at path and writes its deck. The loaded manifest
// is returned so callers can follow its source files.
func (a *app) writeDeck(ctx context.Context, cmd *cobra.Command, path string, f *deckFlags) (deck.Result, *manifest.Manifest, error) {
	loaded, err := manifest.Load(path)
	if err != nil {
		return deck.Result{}, nil, err
	}
	opts, err := a.options(cmd, loaded, f)
	if err != nil {
		return deck.Result{}, loaded, err
	}
	compositionCache, err := a.openCache(ctx, f)
	if err != nil {
		return deck.Result{}, loaded, err
	}
	if compositionCache != nil {
		defer func() {
			_ = compositionCache.Close()
		}()
		opts.Cache = compositionCache
	}
	result, err := deck.Write(ctx, loaded.Model, opts)
	return result, loaded, err
}

func printDeck(w io.Writer, result deck.Result) {
	state := "written"
	if result.Cached {
		state = "unchanged"
	}
	_, _ = fmt.Fprintf(w, "deck %s: %s (%d files)\n", state, result.RunFile, len(result.Files))
}
