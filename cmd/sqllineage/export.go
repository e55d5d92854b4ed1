package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/sqllineage/internal/app"
	"github.com/efebarandurmaz/sqllineage/internal/depgraph"
)

func newExportCmd(configPath *string) *cobra.Command {
	var (
		format    string
		output    string
		showStats bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the saved lineage graph as DOT, Mermaid or JSON",
		Long:  "Read every edge from the SQLite store (store.dsn) and render the table graph.",
		Example: `  sqllineage export -f dot -o lineage.dot
  sqllineage export -f mermaid
  sqllineage export --stats`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, nil, func(ctx context.Context, a *app.App) error {
				if a.Store == nil {
					return errors.New("export needs store.dsn")
				}
				edges, err := a.Store.Edges(ctx)
				if err != nil {
					return err
				}
				g := depgraph.Build(edges)

				if showStats {
					fmt.Fprint(cmd.OutOrStdout(), depgraph.FormatStats(g))
					return nil
				}
				data, err := depgraph.Export(g, format)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), output, data)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", depgraph.FormatDOT, "Output format (dot|mermaid|json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print graph statistics instead of the graph")
	return cmd
}

func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "Wrote %s\n", path)
	return nil
}
