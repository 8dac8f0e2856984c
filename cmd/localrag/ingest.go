package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Index a file or a directory of documents",
	Long: `Parse, chunk, embed and store a document, or every supported document
under a directory.

Examples:
  localrag ingest report.pdf
  localrag ingest ./docs`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
			result, err := a.service.Ingest(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Files processed: %d\n", result.FilesProcessed)
			fmt.Fprintf(out, "Chunks created:  %d\n", result.ChunksCreated)
			fmt.Fprintf(out, "Chunks stored:   %d\n", result.ChunksStored)
			return nil
		})
	},
}
