package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/sqllineage/internal/app"
	"github.com/efebarandurmaz/sqllineage/internal/graph"
	"github.com/efebarandurmaz/sqllineage/internal/lineage"
)

type lineageOptions struct {
	outputFormat string
	upstream     bool
	downstream   bool
	depth        int
}

type lineageOutput struct {
	Table      string      `json:"table"`
	Backend    string      `json:"backend"`
	Upstream   []graph.Hop `json:"upstream,omitempty"`
	Downstream []graph.Hop `json:"downstream,omitempty"`
}

func newLineageCmd(configPath *string) *cobra.Command {
	opts := &lineageOptions{}

	cmd := &cobra.Command{
		Use:     "lineage <table>",
		Aliases: []string{"upstream"},
		Short:   "Show the tables feeding and fed by a table",
		Long: `Walk saved lineage from a table. Neo4j is used when graph.uri is set,
otherwise the SQLite store.`,
		Example: `  sqllineage lineage DW.SALES_FACT
  sqllineage lineage SALES_FACT --downstream=false --depth 2
  sqllineage lineage SALES_FACT -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, nil, func(ctx context.Context, a *app.App) error {
				return showLineage(ctx, cmd.OutOrStdout(), a, args[0], opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.outputFormat, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().BoolVar(&opts.upstream, "upstream", true, "Include upstream tables")
	cmd.Flags().BoolVar(&opts.downstream, "downstream", true, "Include downstream tables")
	cmd.Flags().IntVar(&opts.depth, "depth", 0, fmt.Sprintf("Max traversal depth (0 = %d)", graph.MaxDepth))
	return cmd
}

func traverser(a *app.App) (graph.Traverser, string, error) {
	switch {
	case a.Graph != nil:
		return a.Graph, a.Graph.Name(), nil
	case a.Store != nil:
		return a.Store, a.Store.Name(), nil
	}
	return nil, "", fmt.Errorf("no lineage backend configured: set graph.uri or store.dsn")
}

func showLineage(ctx context.Context, w io.Writer, a *app.App, table string, opts *lineageOptions) error {
	t, backend, err := traverser(a)
	if err != nil {
		return err
	}

	out := lineageOutput{Table: lineage.NormalizeName(table), Backend: backend}
	if opts.upstream {
		if out.Upstream, err = t.Upstream(ctx, table, opts.depth); err != nil {
			return err
		}
	}
	if opts.downstream {
		if out.Downstream, err = t.Downstream(ctx, table, opts.depth); err != nil {
			return err
		}
	}

	if opts.outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "Lineage for: %s (%s)\n\n", out.Table, out.Backend)
	if opts.upstream {
		fmt.Fprintf(w, "Upstream tables (%d):\n", len(out.Upstream))
		writeHops(w, out.Upstream)
		fmt.Fprintln(w)
	}
	if opts.downstream {
		fmt.Fprintf(w, "Downstream tables (%d):\n", len(out.Downstream))
		writeHops(w, out.Downstream)
	}
	return nil
}

func writeHops(w io.Writer, hops []graph.Hop) {
	for _, h := range hops {
		fmt.Fprintf(w, "  %d  %s\n", h.Depth, h.Table)
	}
}
