package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/sqllineage/internal/report"
	"github.com/efebarandurmaz/sqllineage/internal/source"
	temporalmod "github.com/efebarandurmaz/sqllineage/internal/temporal"
)

func newSubmitCmd(configPath *string) *cobra.Command {
	var (
		input       source.Input
		parallelism int
		wait        bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "submit [file.sql]",
		Short: "Run a batch as a durable Temporal workflow",
		Long: `Start LineageWorkflow on the configured task queue. Paths are resolved here
and must be readable by the workers (cmd/worker) at the same location.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				input.File = args[0]
			}
			paths, err := input.Paths()
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("nothing to analyze: pass a file, --list or --dir")
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			c, err := temporalclient.Dial(temporalclient.Options{
				HostPort:  cfg.Temporal.Host,
				Namespace: cfg.Temporal.Namespace,
			})
			if err != nil {
				return fmt.Errorf("temporal client: %w", err)
			}
			defer c.Close()

			runID := uuid.NewString()
			if parallelism <= 0 {
				parallelism = cfg.Run.Concurrency
			}
			run, err := c.ExecuteWorkflow(cmd.Context(), temporalclient.StartWorkflowOptions{
				ID:        "sqllineage-" + runID,
				TaskQueue: cfg.Temporal.TaskQueue,
			}, temporalmod.LineageWorkflow, temporalmod.LineageInput{
				RunID:       runID,
				Paths:       paths,
				Parallelism: parallelism,
			})
			if err != nil {
				return fmt.Errorf("start workflow: %w", err)
			}
			logger.Info().
				Str("workflow_id", run.GetID()).
				Str("temporal_run_id", run.GetRunID()).
				Int("files", len(paths)).
				Msg("workflow started")
			if !wait {
				return nil
			}

			var out temporalmod.LineageOutput
			if err := run.Get(cmd.Context(), &out); err != nil {
				return fmt.Errorf("workflow: %w", err)
			}
			if jsonOutput {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printTotals(cmd, out.Totals)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.File, "file", "", "SQL file to analyze")
	cmd.Flags().StringVar(&input.List, "list", "", "File listing one SQL path per line")
	cmd.Flags().StringVar(&input.Dir, "dir", "", "Directory to walk for *.sql files")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "Concurrent file activities (default run.concurrency)")
	cmd.Flags().BoolVar(&wait, "wait", true, "Wait for the workflow and print its totals")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the workflow result as JSON")
	return cmd
}

func printTotals(cmd *cobra.Command, t report.Totals) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Files:     %d\n", t.Files)
	fmt.Fprintf(out, "  success: %d\n", t.Success)
	fmt.Fprintf(out, "  skipped: %d\n", t.Skipped)
	fmt.Fprintf(out, "  errors:  %d\n", t.Errors)
	fmt.Fprintf(out, "Queries:   %d\n", t.Queries)
	fmt.Fprintf(out, "Lineages:  %d\n", t.Lineages)
}
