package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the indexed collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
			stats, err := a.service.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Collection: %s\n", stats.CollectionName)
			fmt.Fprintf(out, "Chunks:     %d\n", stats.TotalChunkCount)
			fmt.Fprintf(out, "Storage:    %s\n", stats.StorageLocation)
			return nil
		})
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every indexed chunk",
	Long: `Drop the collection and recreate it empty. Source files are not touched.

Asks for confirmation unless --yes is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !resetYes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete all indexed chunks? [y/N] ") {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
		return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
			if err := a.service.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Index reset.")
			return nil
		})
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip confirmation")
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
