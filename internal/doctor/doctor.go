// Package doctor provides environment preflight checks for nnconform.
package doctor

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"slices"

	"github.com/spf13/afero"
	"golang.org/x/sys/cpu"

	"github.com/example/go-nnconform/internal/fixture"
	"github.com/example/go-nnconform/internal/nnapi"
)

// PassMark, FailMark and InfoMark are the prefix symbols printed for each
// check result.
const (
	PassMark = "✓"
	FailMark = "✗"
	InfoMark = "-"
)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// Provider creates contexts for the device probes.
	Provider nnapi.Provider
	// Devices are probed in order. Only a failure on Required is fatal.
	Devices  []string
	Required string
	// CPUFeatures lists detected instruction set extensions; nil uses
	// CPUFeatures from this package.
	CPUFeatures func() []string
	// FixtureDir is scanned on Fs for suites, each of which must load.
	Fs         afero.Fs
	FixtureDir string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
func Run(ctx context.Context, cfg Config, w io.Writer) Result {
	var res Result

	// ---- cpu --------------------------------------------------------------
	features := cfg.CPUFeatures
	if features == nil {
		features = CPUFeatures
	}

	fmt.Fprintf(w, "%s cpu: %s/%s %v\n", InfoMark, runtime.GOOS, runtime.GOARCH, features())

	// ---- contexts ---------------------------------------------------------
	for _, device := range cfg.Devices {
		checkDevice(ctx, cfg, device, &res, w)
	}

	// ---- fixtures ---------------------------------------------------------
	if cfg.FixtureDir != "" {
		checkFixtures(cfg, &res, w)
	}

	return res
}

func checkDevice(ctx context.Context, cfg Config, device string, res *Result, w io.Writer) {
	if cfg.Provider == nil {
		res.fail("context: no runtime provider")
		fmt.Fprintf(w, "%s context %s: no runtime provider\n", FailMark, device)

		return
	}

	rt, err := cfg.Provider.CreateContext(ctx, nnapi.ContextOptions{DeviceType: device})
	if err != nil {
		if device == cfg.Required {
			res.fail(fmt.Sprintf("context %s: %v", device, err))
			fmt.Fprintf(w, "%s context %s: %v\n", FailMark, device, err)
		} else {
			fmt.Fprintf(w, "%s context %s: unavailable (%v)\n", InfoMark, device, err)
		}

		return
	}

	fmt.Fprintf(w, "%s context %s: %d operators\n", PassMark, device, len(rt.OpSupportLimits().Operators))
}

func checkFixtures(cfg Config, res *Result, w io.Writer) {
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	paths, err := fixture.Discover(fsys, cfg.FixtureDir)
	if err != nil {
		res.fail(fmt.Sprintf("fixtures: %v", err))
		fmt.Fprintf(w, "%s fixtures %s: %v\n", FailMark, cfg.FixtureDir, err)

		return
	}

	if len(paths) == 0 {
		res.fail(fmt.Sprintf("fixtures: no suites in %s", cfg.FixtureDir))
		fmt.Fprintf(w, "%s fixtures %s: no suites\n", FailMark, cfg.FixtureDir)

		return
	}

	cases := 0

	for _, path := range paths {
		s, err := fixture.Load(fsys, path)
		if err != nil {
			res.fail(fmt.Sprintf("suite %s: %v", path, err))
			fmt.Fprintf(w, "%s suite %s: %v\n", FailMark, path, err)

			continue
		}

		cases += len(s.Cases)
	}

	fmt.Fprintf(w, "%s fixtures %s: %d suites, %d cases\n", PassMark, cfg.FixtureDir, len(paths), cases)
}

// CPUFeatures reports the SIMD extensions relevant to tensor kernels.
func CPUFeatures() []string {
	var out []string

	add := func(ok bool, name string) {
		if ok {
			out = append(out, name)
		}
	}

	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasFPHP, "fphp")
		add(cpu.ARM64.HasASIMDHP, "asimdhp")
	}

	slices.Sort(out)

	return out
}
