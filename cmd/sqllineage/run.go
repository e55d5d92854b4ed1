package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/sqllineage/internal/app"
	"github.com/efebarandurmaz/sqllineage/internal/config"
	"github.com/efebarandurmaz/sqllineage/internal/observability"
	"github.com/efebarandurmaz/sqllineage/internal/qualitygate"
	"github.com/efebarandurmaz/sqllineage/internal/report"
	"github.com/efebarandurmaz/sqllineage/internal/source"
)

// ErrGatesFailed is returned by run when a critical or required quality gate
// fails.
var ErrGatesFailed = errors.New("quality gates failed")

type runOptions struct {
	input         source.Input
	jsonReport    bool
	concurrency   int
	skipProcessed bool
	reportDir     string
	noReport      bool
	gates         bool
}

func newRunCmd(configPath *string) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [file.sql]",
		Short: "Extract lineage from SQL files and save it",
		Example: `  # One file
  sqllineage run etl/load_sales.sql

  # Every path listed in a file (blank lines and # comments ignored)
  sqllineage run --list files.txt

  # Every *.sql under a directory, four files at a time
  sqllineage run --dir etl/ --concurrency 4

  # Exit non-zero when the run misses the configured quality gates
  sqllineage run --dir etl/ --gates`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.input.File = args[0]
			}
			return runLineage(cmd, *configPath, opts)
		},
	}

	cmd.Flags().StringVar(&opts.input.File, "file", "", "SQL file to analyze")
	cmd.Flags().StringVar(&opts.input.List, "list", "", "File listing one SQL path per line")
	cmd.Flags().StringVar(&opts.input.Dir, "dir", "", "Directory to walk for *.sql files")
	cmd.Flags().BoolVar(&opts.jsonReport, "json", false, "Print the report as JSON")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Files processed at once (overrides run.concurrency)")
	cmd.Flags().BoolVar(&opts.skipProcessed, "skip-processed", false, "Skip files already processed with the same content")
	cmd.Flags().StringVar(&opts.reportDir, "report-dir", "", "Directory for the text report (overrides run.report_dir)")
	cmd.Flags().BoolVar(&opts.noReport, "no-report", false, "Do not write the text report file")
	cmd.Flags().BoolVar(&opts.gates, "gates", false, "Evaluate quality gates after the run (overrides gates.enabled)")
	return cmd
}

func runLineage(cmd *cobra.Command, configPath string, opts *runOptions) error {
	paths, err := opts.input.Paths()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("nothing to analyze: pass a file, --list or --dir")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adjust := func(cfg *config.Config) {
		if cmd.Flags().Changed("concurrency") {
			cfg.Run.Concurrency = opts.concurrency
		}
		if cmd.Flags().Changed("skip-processed") {
			cfg.Run.SkipProcessed = opts.skipProcessed
		}
		if opts.reportDir != "" {
			cfg.Run.ReportDir = opts.reportDir
		}
		if cmd.Flags().Changed("gates") {
			cfg.Gates.Enabled = opts.gates
		}
	}

	return withApp(ctx, configPath, adjust, func(ctx context.Context, a *app.App) error {
		if addr := a.Config.Metrics.Addr; addr != "" {
			ms := observability.NewMetricsServer(addr, a.Registry, a.Logger)
			ms.Handle("/api/", a.Progress.Server.Handler())
			ms.Start()
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = ms.Shutdown(sctx)
			}()
		}

		rep, runErr := a.Runner.Run(ctx, paths)
		return finishRun(cmd, a, rep, opts, runErr)
	})
}

func finishRun(cmd *cobra.Command, a *app.App, rep *report.Report, opts *runOptions, runErr error) error {
	out := cmd.OutOrStdout()
	if !opts.noReport {
		path, err := rep.Save(a.Config.Run.ReportDir)
		if err != nil {
			a.Logger.Error().Err(err).Msg("report not written")
		} else {
			a.Logger.Info().Str("path", path).Msg("report written")
		}
	}

	if opts.jsonReport {
		data, err := rep.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		rep.PrintSummary(out)
	}
	if runErr != nil || !a.Config.Gates.Enabled {
		return runErr
	}
	return checkGates(cmd, a, rep, opts.jsonReport)
}

// checkGates evaluates the configured gates. With --json the gate report goes
// to stderr so stdout stays machine-readable.
func checkGates(cmd *cobra.Command, a *app.App, rep *report.Report, jsonReport bool) error {
	result := qualitygate.BuildPipeline(&a.Config.Gates).Run(qualitygate.FromReport(rep))
	w := cmd.OutOrStdout()
	if jsonReport {
		w = cmd.ErrOrStderr()
	}
	fmt.Fprint(w, qualitygate.FormatReport(result))

	a.Logger.Info().
		Str("status", string(result.Status)).
		Int("failed", result.FailedCount).
		Int("warnings", result.WarningCount).
		Msg("quality gates evaluated")
	if !result.Passed() {
		return ErrGatesFailed
	}
	return nil
}
