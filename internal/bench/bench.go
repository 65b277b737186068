// Package bench provides latency measurement for the nnconform bench command.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing of a single case evaluation.
type RunResult struct {
	Index    int
	Cold     bool // true for the first measured run
	Duration time.Duration
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	Median time.Duration
}

// ComputeStats calculates min, max, mean and median over a slice of
// durations. An empty slice yields zero Stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	mid := len(sorted) / 2

	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return Stats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   sum / time.Duration(len(sorted)),
		Median: median,
	}
}

// Durations extracts run durations in order.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}

	return out
}

// ---------------------------------------------------------------------------
// Measurement
// ---------------------------------------------------------------------------

// Options control a measurement.
type Options struct {
	Runs   int
	Warmup int
	// Clock is used for timing; nil uses time.Now.
	Clock func() time.Time
}

// Measure calls fn Warmup times untimed, then Runs times timed. The first
// failing call aborts the measurement.
func Measure(ctx context.Context, opts Options, fn func(context.Context) error) ([]RunResult, error) {
	if opts.Runs < 1 {
		return nil, fmt.Errorf("runs must be >= 1, got %d", opts.Runs)
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	for i := range opts.Warmup {
		if err := fn(ctx); err != nil {
			return nil, fmt.Errorf("warmup run %d: %w", i+1, err)
		}
	}

	runs := make([]RunResult, 0, opts.Runs)

	for i := range opts.Runs {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		start := now()
		if err := fn(ctx); err != nil {
			return runs, fmt.Errorf("run %d: %w", i+1, err)
		}

		runs = append(runs, RunResult{Index: i, Cold: i == 0 && opts.Warmup == 0, Duration: now().Sub(start)})
	}

	return runs, nil
}

// ---------------------------------------------------------------------------
// Threshold gate
// ---------------------------------------------------------------------------

// CheckMeanThreshold returns an error if mean exceeds maxMeanMS milliseconds.
// A threshold of 0 disables the gate.
func CheckMeanThreshold(mean time.Duration, maxMeanMS float64) error {
	if maxMeanMS <= 0 {
		return nil
	}

	if ms := durationMS(mean); ms > maxMeanMS {
		return fmt.Errorf("mean latency %.3fms exceeds threshold %.3fms", ms, maxMeanMS)
	}

	return nil
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable table of bench results to w.
func FormatTable(name string, runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "case: %s\n", name)
	fmt.Fprintf(sb, "%-5s  %-5s  %12s\n", "Run", "Cold", "MS")
	fmt.Fprintln(sb, strings.Repeat("-", 26))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %12.3f\n", r.Index+1, cold, durationMS(r.Duration))
	}

	fmt.Fprintln(sb, strings.Repeat("-", 26))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.3f  (min)\n", "", "", durationMS(stats.Min))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.3f  (median)\n", "", "", durationMS(stats.Median))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.3f  (mean)\n", "", "", durationMS(stats.Mean))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.3f  (max)\n", "", "", durationMS(stats.Max))

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Case  string    `json:"case"`
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
}

type jsonStats struct {
	MinMS    float64 `json:"min_ms"`
	MedianMS float64 `json:"median_ms"`
	MeanMS   float64 `json:"mean_ms"`
	MaxMS    float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(name string, runs []RunResult, stats Stats, w io.Writer) error {
	jr := jsonReport{
		Case: name,
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:    durationMS(stats.Min),
			MedianMS: durationMS(stats.Median),
			MeanMS:   durationMS(stats.Mean),
			MaxMS:    durationMS(stats.Max),
		},
	}

	for i, r := range runs {
		jr.Runs[i] = jsonRun{Index: r.Index, Cold: r.Cold, DurationMS: durationMS(r.Duration)}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(jr)
}
