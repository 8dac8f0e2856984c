package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/localrag/internal/watcher"
)

var watchInitial bool

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Re-ingest documents as they change",
	Long: `Watch a directory tree and ingest supported files when they are created
or modified. Bursts of writes to one file are collapsed by watch_debounce.

Examples:
  localrag watch ./docs
  localrag watch --initial ./docs`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
			return runWatch(ctx, a, out, args[0])
		})
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchInitial, "initial", false, "ingest the directory once before watching")
}

func runWatch(ctx context.Context, a *app, out io.Writer, dir string) error {
	if watchInitial {
		result, err := a.service.Ingest(ctx, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Initial ingest: %d files, %d chunks\n", result.FilesProcessed, result.ChunksStored)
	}

	w, err := watcher.New(dir, a.service, watcher.Config{Debounce: a.cfg.WatchDebounce}, a.logger.Named("watcher"))
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", dir)
	return w.Run(ctx)
}
