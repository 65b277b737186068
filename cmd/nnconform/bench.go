package main

import (
	"context"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/example/go-nnconform/internal/bench"
	"github.com/example/go-nnconform/internal/conformance"
	"github.com/example/go-nnconform/internal/report"
)

func newBenchCmd() *cobra.Command {
	var (
		caseName   string
		runs       int
		warmup     int
		format     string
		maxMeanMS  float64
		cpuprofile string
	)

	cmd := &cobra.Command{
		Use:   "bench [suite files...]",
		Short: "Benchmark the latency of one conformance case",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if caseName == "" {
				return fmt.Errorf("--case is required for bench")
			}

			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			cases, err := loadCases(cfg, args)
			if err != nil {
				return err
			}

			c, ok := findCase(cases, caseName)
			if !ok {
				return fmt.Errorf("case %q not found", caseName)
			}

			runner, err := newRunner(cfg)
			if err != nil {
				return err
			}

			if cpuprofile != "" {
				pf, err := os.Create(cpuprofile)
				if err != nil {
					return fmt.Errorf("create cpuprofile: %w", err)
				}
				defer pf.Close()

				if err := pprof.StartCPUProfile(pf); err != nil {
					return fmt.Errorf("start cpuprofile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			results, err := bench.Measure(cmd.Context(), bench.Options{Runs: runs, Warmup: warmup}, func(ctx context.Context) error {
				rt, err := runner.NewContext(ctx)
				if err != nil {
					return err
				}

				return runner.RunCase(ctx, rt, c).Err
			})
			if err != nil {
				return err
			}

			stats := bench.ComputeStats(bench.Durations(results))
			w := cmd.OutOrStdout()

			if f == report.FormatJSON {
				if err := bench.FormatJSON(c.ID(), results, stats, w); err != nil {
					return err
				}
			} else {
				bench.FormatTable(c.ID(), results, stats, w)
			}

			return bench.CheckMeanThreshold(stats.Mean, maxMeanMS)
		},
	}

	cmd.Flags().StringVar(&caseName, "case", "", "Case to benchmark: name or suite/name (required)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of timed runs")
	cmd.Flags().IntVar(&warmup, "warmup", 0, "Number of untimed warmup runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&maxMeanMS, "max-mean-ms", 0, "Exit non-zero if mean latency exceeds this many milliseconds (0 = disabled)")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "Write a CPU profile of the timed runs")

	return cmd
}

func findCase(cases []conformance.Case, name string) (conformance.Case, bool) {
	for _, c := range cases {
		if c.ID() == name || c.Name == name {
			return c, true
		}
	}

	return conformance.Case{}, false
}
