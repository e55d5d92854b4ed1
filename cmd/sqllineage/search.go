package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/sqllineage/internal/app"
)

func newSearchCmd(configPath *string) *cobra.Command {
	var (
		topK       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Find analyzed statements similar to text",
		Long:  "Embed text with the configured provider and query the Qdrant statement index (vector.host).",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withApp(cmd.Context(), *configPath, nil, func(ctx context.Context, a *app.App) error {
				if a.Embedder == nil {
					return errors.New("statement search needs vector.host and an LLM provider")
				}
				results, err := a.Embedder.Search(ctx, text, topK)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(results)
				}
				if len(results) == 0 {
					fmt.Fprintln(out, "No matches.")
					return nil
				}
				for i, r := range results {
					fmt.Fprintf(out, "%d. %.3f  %s #%s\n", i+1, r.Score, r.Metadata["file_path"], r.Metadata["statement_index"])
					if lin := r.Metadata["sources"]; lin != "" {
						fmt.Fprintf(out, "   %s -> %s\n", lin, r.Metadata["targets"])
					}
					fmt.Fprintf(out, "   %s\n", firstLine(r.Content))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Number of matches")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print matches as JSON")
	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
