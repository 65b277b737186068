package conformance

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/example/go-nnconform/internal/graph"
	"github.com/example/go-nnconform/internal/nnapi"
)

// ErrUnsupportedGraph is returned when a context's support limits reject a
// graph and type substitution is off.
var ErrUnsupportedGraph = errors.New("graph not supported by context")

// ValidateSupport checks every graph input, constant and expected output
// kind against the context limits, and every operand argument that names a
// graph input against the operator's per-parameter limits. Expected outputs
// an operator produces are checked against its "output" limit, or "outputs"
// when it returns a list. All violations are reported together.
func ValidateSupport(limits nnapi.SupportLimits, g *graph.Graph) error {
	var errs error

	for _, in := range g.Inputs {
		lim, what := limits.Input, "input"
		if in.Constant {
			lim, what = limits.Constant, "constant"
		}

		if !lim.Supports(in.Descriptor.DataType) {
			errs = multierr.Append(errs, fmt.Errorf("%s %q: %v not supported", what, in.Name, in.Descriptor.DataType))
		}
	}

	for _, out := range g.ExpectedOutputs {
		if !limits.Output.Supports(out.Descriptor.DataType) {
			errs = multierr.Append(errs, fmt.Errorf("output %q: %v not supported", out.Name, out.Descriptor.DataType))
		}
	}

	for i, op := range g.Operators {
		params, ok := limits.Operators[op.Name]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("operator %d (%s): not supported", i, op.Name))
			continue
		}

		for _, a := range op.Arguments {
			for _, ref := range operandRefs(a) {
				in, ok := g.Input(ref.name)
				if !ok {
					continue
				}

				lim, ok := params[ref.param]
				if ok && !lim.Supports(in.Descriptor.DataType) {
					errs = multierr.Append(errs, fmt.Errorf("operator %d (%s) %s %q: %v not supported",
						i, op.Name, ref.param, ref.name, in.Descriptor.DataType))
				}
			}
		}

		role := "output"
		if op.MultiOutput {
			role = "outputs"
		}

		lim, ok := params[role]
		if !ok {
			continue
		}

		for _, name := range op.Outputs {
			out, ok := g.ExpectedOutput(name)
			if ok && !lim.Supports(out.Descriptor.DataType) {
				errs = multierr.Append(errs, fmt.Errorf("operator %d (%s) %s %q: %v not supported",
					i, op.Name, role, name, out.Descriptor.DataType))
			}
		}
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedGraph, errs)
	}

	return nil
}

type operandRef struct {
	param string
	name  string
}

// operandRefs lists the strings an argument could resolve to an operand by,
// paired with the parameter they bind to. Options entries bind to their own
// names.
func operandRefs(a graph.Argument) []operandRef {
	switch a.Value.Kind {
	case graph.KindString:
		return []operandRef{{a.Name, a.Value.String}}
	case graph.KindList:
		var refs []operandRef

		for _, item := range a.Value.List {
			if item.Kind == graph.KindString {
				refs = append(refs, operandRef{a.Name, item.String})
			}
		}

		return refs
	case graph.KindOptions:
		var refs []operandRef
		for _, o := range a.Value.Options {
			refs = append(refs, operandRefs(o)...)
		}

		return refs
	}

	return nil
}
