package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newToleranceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tolerance [suite files...]",
		Short: "Print the tolerance each case would be verified with",
		Long: "Print the tolerance each case would be verified with. Operators whose rule\n" +
			"reads the shape of an intermediate operand are reported as unresolved, since\n" +
			"those shapes are only known after the graph is built.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
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

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CASE\tOPERATORS\tTOLERANCE")

			for _, c := range runner.Select(cases) {
				spec, err := runner.Tolerance(c, nil)

				text := spec.String()
				if err != nil {
					text = "error: " + err.Error()
				}

				fmt.Fprintf(tw, "%s\t%v\t%s\n", c.ID(), c.Graph.OperatorNames(), text)
			}

			return tw.Flush()
		},
	}
}
