// Command earshot runs the voice scheduler against a simulated scene and
// plays the result through a configurable audio backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/earshot/internal/app"
	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/observe"
)

const version = "0.3.0"

// shutdownTimeout bounds the whole graceful stop, including the drain.
const shutdownTimeout = 15 * time.Second

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     "earshot",
		Short:   "Distance-ranked voice scheduler for 3D sound emitters",
		Version: version,
		Long: `earshot keeps the closest emitters of a simulated scene voiced on an
audio backend, never exceeding the configured voice budget.

Examples:
  # Run with the example configuration
  earshot run --config configs/example.yaml

  # Check a configuration file without starting anything
  earshot validate --config configs/example.yaml
`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(backendsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", configPath)
	}
	return cfg, err
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler, the simulation and the HTTP surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func run(parent context.Context, cfg *config.Config) error {
	logger, level := observe.NewLogger(
		observe.ParseLevel(string(cfg.Server.LogLevel)),
		string(cfg.Server.LogFormat),
		os.Stderr,
	)
	slog.SetDefault(logger)

	slog.Info("earshot starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"backend", cfg.Backend.Name,
		"max_voices", cfg.Scheduler.MaxVoices,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := app.New(cfg,
		app.WithLogLevel(level),
		app.WithConfigPath(configPath),
	)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !slices.Contains(app.DefaultRegistry().Backends(), cfg.Backend.Name) {
				return fmt.Errorf("%w: %q", config.ErrBackendNotRegistered, cfg.Backend.Name)
			}
			emitters := 0
			for _, e := range cfg.Simulation.Emitters {
				emitters += e.Count
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (backend %s, %d voices, %d emitters in %d groups)\n",
				configPath, cfg.Backend.Name, cfg.Scheduler.MaxVoices, emitters, len(cfg.Simulation.Emitters))
			return nil
		},
	}
}

func backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the voice backends compiled into this binary",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range app.DefaultRegistry().Backends() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
