package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-nnconform/internal/report"
)

func newRunCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "run [suite files...]",
		Short: "Run conformance cases against the reference runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			cases, err := loadCases(cfg, args)
			if err != nil {
				return err
			}

			runner, err := newRunner(cfg)
			if err != nil {
				return err
			}

			selected := runner.Select(cases)
			if len(selected) == 0 {
				return fmt.Errorf("no cases match %v", cfg.Suite.Filter)
			}

			rep, err := runner.Run(cmd.Context(), selected)
			if err != nil {
				return err
			}

			if err := report.Write(cmd.OutOrStdout(), f, rep); err != nil {
				return err
			}

			if rep.Failed() > 0 {
				return errCasesFailed
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")

	return cmd
}
