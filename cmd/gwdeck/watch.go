package main

import (
	"context"
	"io"
	"time"

	"github.com/davidahmann/gwdeck/core/watch"
	"github.com/davidahmann/gwdeck/internal/ctxlog"
	"github.com/spf13/cobra"
)

type watchOutput struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Writes int    `json:"writes"`
}

func (a *app) watchCommand() *cobra.Command {
	f := &deckFlags{}
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch <model.yaml>",
		Short: "Rewrite the deck whenever the model definition or its sources change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := ctxlog.FromContext(ctx)
			path := args[0]
			writes := 0

			rewrite := func(ctx context.Context) error {
				result, _, err := a.writeDeck(ctx, cmd, path, f)
				if err != nil {
					return err
				}
				writes++
				if !a.jsonOutput {
					printDeck(a.stdout, result)
				}
				return nil
			}

			// The model may be broken when watching starts; the manifest is
			// still watched so that a fix triggers the first write.
			paths := []string{path}
			result, loaded, err := a.writeDeck(ctx, cmd, path, f)
			if loaded != nil {
				paths = append(paths, loaded.Sources...)
			}
			if err != nil {
				logger.Error("initial write failed", "error", err)
			} else {
				writes++
				if !a.jsonOutput {
					printDeck(a.stdout, result)
				}
			}

			watcher, err := watch.New(paths, debounce)
			if err != nil {
				a.fail(err, exitIOFailure)
				return nil
			}
			logger.Info("watching model", "path", path, "files", len(paths))
			if err := watcher.Run(ctx, rewrite); err != nil {
				a.fail(err, exitIOFailure)
				return nil
			}
			a.emit(watchOutput{OK: true, Writes: writes}, exitOK, func(io.Writer) {})
			return nil
		},
	}
	f.bindWrite(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a change triggers a rewrite")
	return cmd
}
