package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-nnconform/internal/config"
	"github.com/example/go-nnconform/internal/logging"
	"github.com/example/go-nnconform/internal/runtime/tensor"
)

var (
	cfgFile   string
	activeCfg config.Config
)

// errCasesFailed makes the process exit non-zero after a report that
// already describes the failures.
var errCasesFailed = errors.New("conformance cases failed")

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "nnconform",
		Short:         "Neural network graph conformance harness",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}

			activeCfg = loaded
			setupLogger(loaded.LogLevel, loaded.LogFormat)
			tensor.SetWorkers(loaded.Runtime.Workers)

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newToleranceCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(level, format string) {
	logger, err := logging.NewLogger(os.Stderr, level, format)
	if err != nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
		logger.Warn("invalid logging config, using defaults", "error", err)
	}

	slog.SetDefault(logger)
}

func requireConfig() (config.Config, error) {
	if activeCfg.Runtime.Device == "" {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}

	return activeCfg, nil
}
