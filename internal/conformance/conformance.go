// Package conformance runs fixture cases against a graph runtime: it selects
// cases, evaluates each graph through the interpreter, computes its
// tolerance and verifies the outputs.
package conformance

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/example/go-nnconform/internal/fixture"
	"github.com/example/go-nnconform/internal/graph"
	"github.com/example/go-nnconform/internal/interp"
	"github.com/example/go-nnconform/internal/nnapi"
	"github.com/example/go-nnconform/internal/tolerance"
	"github.com/example/go-nnconform/internal/verify"
)

// Options replaces process-wide run state: device choice, case filter and
// the type substitution and tolerance switches.
type Options struct {
	// Device is the context device class; empty means the runtime default.
	Device string
	// Filter selects cases by name, by "suite/name" or by suite name. Empty
	// selects everything.
	Filter []string
	// CastToSupportedType enables type substitution in the interpreter.
	// When off, graphs are validated against the support limits first.
	CastToSupportedType bool
	// AllowUnlisted makes operators without a tolerance rule contribute 0.
	AllowUnlisted bool
	// MaxValidated caps scalar expansion in the verifier.
	MaxValidated int
	// Parallel is the number of cases evaluated at once; <= 1 is serial.
	Parallel int
	Logger   *slog.Logger
}

// Case is one runnable graph.
type Case struct {
	Suite string
	Name  string
	Graph *graph.Graph
	// Tolerance overrides the operator policy when set.
	Tolerance tolerance.Source
}

// ID is the suite-qualified case name.
func (c Case) ID() string {
	if c.Suite == "" {
		return c.Name
	}

	return c.Suite + "/" + c.Name
}

// FromSuite turns a loaded suite into cases.
func FromSuite(s *fixture.Suite) []Case {
	cases := make([]Case, len(s.Cases))
	for i, fc := range s.Cases {
		cases[i] = Case{Suite: s.Name, Name: fc.Name, Graph: fc.Graph, Tolerance: s.ToleranceSource(nil)}
	}

	return cases
}

// FromSuites flattens suites into cases in suite order.
func FromSuites(suites []*fixture.Suite) []Case {
	var cases []Case
	for _, s := range suites {
		cases = append(cases, FromSuite(s)...)
	}

	return cases
}

// Result is the outcome of one case.
type Result struct {
	Suite     string
	Case      string
	Tolerance tolerance.Spec
	Duration  time.Duration
	Err       error
	Kind      FailureKind
}

// Passed reports whether the case verified.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Report collects the results of a run in case order.
type Report struct {
	Device  string
	Results []Result
}

// Failed counts failing cases.
func (r *Report) Failed() int {
	n := 0

	for _, res := range r.Results {
		if !res.Passed() {
			n++
		}
	}

	return n
}

// Passed counts passing cases.
func (r *Report) Passed() int {
	return len(r.Results) - r.Failed()
}

// Runner evaluates cases on contexts from one provider.
type Runner struct {
	provider nnapi.Provider
	opts     Options
	logger   *slog.Logger
	policy   *tolerance.Policy
}

// NewRunner returns a Runner.
func NewRunner(p nnapi.Provider, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		provider: p,
		opts:     opts,
		logger:   logger,
		policy:   &tolerance.Policy{AllowUnlisted: opts.AllowUnlisted, Logger: logger},
	}
}

// Selected reports whether the filter admits c.
func (r *Runner) Selected(c Case) bool {
	if len(r.opts.Filter) == 0 {
		return true
	}

	return slices.Contains(r.opts.Filter, c.Name) ||
		slices.Contains(r.opts.Filter, c.ID()) ||
		slices.Contains(r.opts.Filter, c.Suite)
}

// Select returns the cases the filter admits, in order.
func (r *Runner) Select(cases []Case) []Case {
	out := make([]Case, 0, len(cases))

	for _, c := range cases {
		if r.Selected(c) {
			out = append(out, c)
		}
	}

	return out
}

// NewContext creates a context for the configured device.
func (r *Runner) NewContext(ctx context.Context) (nnapi.Context, error) {
	rt, err := r.provider.CreateContext(ctx, nnapi.ContextOptions{DeviceType: r.opts.Device})
	if err != nil {
		return nil, fmt.Errorf("conformance: device %q: %w", r.opts.Device, err)
	}

	return rt, nil
}

// Run evaluates the selected cases. Context creation is probed once; if it
// fails the run stops with that error and no case is reported. Otherwise
// each case gets its own context and fails independently.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	if _, err := r.NewContext(ctx); err != nil {
		return nil, err
	}

	selected := r.Select(cases)
	results := make([]Result, len(selected))

	p := pool.New().WithContext(ctx).WithMaxGoroutines(max(r.opts.Parallel, 1))

	for i, c := range selected {
		p.Go(func(ctx context.Context) error {
			results[i] = r.runIsolated(ctx, c)
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Report{Device: r.opts.Device, Results: results}, nil
}

func (r *Runner) runIsolated(ctx context.Context, c Case) Result {
	rt, err := r.NewContext(ctx)
	if err != nil {
		return Result{Suite: c.Suite, Case: c.Name, Err: err, Kind: Classify(err)}
	}

	return r.RunCase(ctx, rt, c)
}

// RunCase evaluates one case on rt.
func (r *Runner) RunCase(ctx context.Context, rt nnapi.Context, c Case) Result {
	start := time.Now()

	spec, err := r.evaluate(ctx, rt, c)

	res := Result{
		Suite:     c.Suite,
		Case:      c.Name,
		Tolerance: spec,
		Duration:  time.Since(start),
		Err:       err,
		Kind:      Classify(err),
	}

	if err != nil {
		r.logger.Info("case failed", "case", c.ID(), "kind", res.Kind.String(), "error", err)
	} else {
		r.logger.Debug("case passed", "case", c.ID(), "tolerance", spec.String(), "duration", res.Duration)
	}

	return res
}

func (r *Runner) evaluate(ctx context.Context, rt nnapi.Context, c Case) (tolerance.Spec, error) {
	if !r.opts.CastToSupportedType {
		if err := ValidateSupport(rt.OpSupportLimits(), c.Graph); err != nil {
			return tolerance.Spec{}, err
		}
	}

	out, err := interp.New(rt, interp.Options{
		CastToSupportedType: r.opts.CastToSupportedType,
		Logger:              r.logger,
	}).Run(ctx, c.Graph)
	if err != nil {
		return tolerance.Spec{}, err
	}

	spec, err := r.Tolerance(c, out.Shape)
	if err != nil {
		return tolerance.Spec{}, err
	}

	v := &verify.Verifier{MaxValidated: r.opts.MaxValidated, Logger: r.logger}

	return spec, v.Check(spec, c.Graph.OperatorNames(), verify.Outputs(out.Outputs), c.Graph)
}

// Tolerance computes the case tolerance. intermediates may be nil, in which
// case operators reading intermediate shapes have no rule.
func (r *Runner) Tolerance(c Case, intermediates tolerance.ShapeFunc) (tolerance.Spec, error) {
	src := c.Tolerance
	if src == nil {
		src = r.policy
	}

	return src.Graph(c.Graph, tolerance.Shapes(c.Graph, intermediates))
}
