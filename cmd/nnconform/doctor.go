package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-nnconform/internal/config"
	"github.com/example/go-nnconform/internal/doctor"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and fixture checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			provider, err := newProvider(cfg)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "device: %s\n", cfg.Runtime.Device)

			result := doctor.Run(cmd.Context(), doctor.Config{
				Provider:   provider,
				Devices:    config.Devices,
				Required:   cfg.Runtime.Device,
				Fs:         fsys,
				FixtureDir: cfg.Paths.FixtureDir,
			}, w)

			if result.Failed() {
				return fmt.Errorf("doctor found %d issue(s):\n  %s",
					len(result.Failures()), strings.Join(result.Failures(), "\n  "))
			}

			return nil
		},
	}
}
