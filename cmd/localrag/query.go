package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var (
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieve the most relevant chunks and ask the language model to answer
from them. Sources are listed with their relevance scores.

Examples:
  localrag query "What was revenue in Q3?"
  localrag query --top-k 10 --json "Who signed the contract?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
			answer, err := a.service.Query(ctx, question, queryTopK)
			if err != nil {
				return err
			}

			if queryJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}

			fmt.Fprintln(out, answer.Answer)
			if len(answer.Sources) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Sources:")
			for i, src := range answer.Sources {
				page := ""
				if src.Page != nil {
					page = fmt.Sprintf(", page %d", *src.Page)
				}
				fmt.Fprintf(out, "  [%d] %s%s (score %.4f)\n", i+1, src.Document, page, src.RelevanceScore)
			}
			return nil
		})
	},
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the answer as JSON")
}
