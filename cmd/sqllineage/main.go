package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/sqllineage/internal/app"
	"github.com/efebarandurmaz/sqllineage/internal/config"
	"github.com/efebarandurmaz/sqllineage/internal/observability"
)

// Config files looked up when --config is not given, in order.
var defaultConfigFiles = []string{"sqllineage.yaml", ".env"}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "sqllineage",
		Short:         "Extract table-level lineage from SQL files with an LLM",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (YAML or .env); defaults to ./sqllineage.yaml or ./.env")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newSubmitCmd(&configPath),
		newLineageCmd(&configPath),
		newSearchCmd(&configPath),
		newExportCmd(&configPath),
		newProvidersCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig reads path, or the first default config file that exists, or
// falls back to defaults and the environment.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		for _, p := range defaultConfigFiles {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	cfg, err := config.LoadAndWarn(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return observability.NewLogger(observability.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}, "sqllineage")
}

// withApp loads configuration, wires the runtime and closes it after fn.
func withApp(ctx context.Context, configPath string, adjust func(*config.Config), fn func(context.Context, *app.App) error) (err error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if adjust != nil {
		adjust(cfg)
	}
	logger := newLogger(cfg)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil {
			logger.Warn().Err(cerr).Msg("shutdown")
			err = errors.Join(err, cerr)
		}
	}()
	return fn(ctx, a)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sqllineage %s\n", app.Version)
		},
	}
}
