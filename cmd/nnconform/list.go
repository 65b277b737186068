package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [suite files...]",
		Short: "List suites and their case names",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			suites, err := loadSuites(cfg, args)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()

			for _, s := range suites {
				label := s.Name
				if s.Operator != "" {
					label += " (" + s.Operator + ")"
				}

				fmt.Fprintf(w, "%s: %d cases\n", label, len(s.Cases))

				for _, c := range s.Cases {
					fmt.Fprintf(w, "  %s\n", c.Name)
				}
			}

			return nil
		},
	}
}
