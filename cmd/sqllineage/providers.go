package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/sqllineage/internal/llm"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			names := make([]string, 0, len(llm.KnownProviders))
			for name := range llm.KnownProviders {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Fprintln(out, "Available LLM providers:")
			fmt.Fprintln(out)
			for _, name := range names {
				fmt.Fprintf(out, "  %-14s %s\n", name, llm.KnownProviders[name])
			}
			fmt.Fprintln(out, "  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Fprintln(out, "  none           (run without LLM: statements are counted, no lineage)")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Reasoning models (o1/o3/o4) get max_completion_tokens and no temperature;")
			fmt.Fprintln(out, "force the request shape with llm.variant: chat|reasoning.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Configure in sqllineage.yaml, .env or via environment:")
			fmt.Fprintln(out, "  SQLLINEAGE_LLM_PROVIDER=gateway")
			fmt.Fprintln(out, "  SQLLINEAGE_LLM_BASE_URL=http://gateway:9393/v1")
			fmt.Fprintln(out, "  SQLLINEAGE_LLM_MODEL=o3-mini")
		},
	}
}
