// Package tolerance computes how far a runtime's results may drift from the
// expected values of a graph before the graph is considered wrong.
package tolerance

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/graph"
)

var (
	// ErrNoToleranceRule means no rule covers an operator for a kind. It is
	// distinct from a rule that yields zero.
	ErrNoToleranceRule = errors.New("no tolerance rule")
	// ErrUnsupportedLayout reports an unknown tensor layout tag.
	ErrUnsupportedLayout = errors.New("unsupported layout")
)

// Metric selects how actual and expected values are compared.
type Metric uint8

const (
	ULP Metric = iota
	ATOL
)

func (m Metric) String() string {
	if m == ATOL {
		return "ATOL"
	}

	return "ULP"
}

// Spec is the tolerance for one graph evaluation.
type Spec struct {
	Metric Metric
	Value  float64
}

func (s Spec) String() string {
	return s.Metric.String() + " " + strconv.FormatFloat(s.Value, 'g', -1, 64)
}

// ShapeFunc resolves the shape of a named operand.
type ShapeFunc func(name string) ([]int64, bool)

// Source produces the tolerance for a whole graph.
type Source interface {
	Graph(g *graph.Graph, shapes ShapeFunc) (Spec, error)
}

// Shapes resolves names against the graph's inputs first and then against
// intermediate operands.
func Shapes(g *graph.Graph, intermediates ShapeFunc) ShapeFunc {
	return func(name string) ([]int64, bool) {
		if r, ok := g.Input(name); ok {
			return r.Descriptor.Shape, true
		}

		if intermediates != nil {
			return intermediates(name)
		}

		return nil, false
	}
}

// ExpectedKind is the declared kind of the graph's first expected output.
// A substituted storage kind is ignored: verification compares in the
// declared kind, so tolerances are keyed by it too.
func ExpectedKind(g *graph.Graph) datatype.DataType {
	if len(g.ExpectedOutputs) == 0 {
		return datatype.Invalid
	}

	return g.ExpectedOutputs[0].Descriptor.DataType
}

// Policy sums per-operator ULP contributions over a graph.
type Policy struct {
	// AllowUnlisted turns missing rules into a zero contribution with a
	// warning instead of an error.
	AllowUnlisted bool
	Logger        *slog.Logger
}

// Graph returns the summed tolerance of every operator in g.
func (p *Policy) Graph(g *graph.Graph, shapes ShapeFunc) (Spec, error) {
	dt := ExpectedKind(g)

	var total float64

	for i, op := range g.Operators {
		v, err := p.Operator(op, dt, shapes)
		if err != nil {
			return Spec{}, fmt.Errorf("tolerance: operator %d (%s): %w", i, op.Name, err)
		}

		total += v
	}

	return Spec{Metric: ULP, Value: total}, nil
}

// Operator returns one operator's contribution for kind dt.
func (p *Policy) Operator(op graph.Operator, dt datatype.DataType, shapes ShapeFunc) (float64, error) {
	v, err := contribution(op, dt, shapes)
	if errors.Is(err, ErrNoToleranceRule) && p.AllowUnlisted {
		p.logger().Warn("no tolerance rule, using zero", "operator", op.Name, "data_type", dt.String())

		return 0, nil
	}

	return v, err
}

func (p *Policy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}

	return slog.Default()
}

// Fixed is a per-kind graph tolerance that replaces the operator policy,
// used by suites whose operators need a hand-tuned bound.
type Fixed map[datatype.DataType]float64

// Graph implements Source.
func (f Fixed) Graph(g *graph.Graph, _ ShapeFunc) (Spec, error) {
	dt := ExpectedKind(g)

	v, ok := f[dt]
	if !ok {
		return Spec{}, fmt.Errorf("tolerance: suite has no value for %v: %w", dt, ErrNoToleranceRule)
	}

	return Spec{Metric: ULP, Value: v}, nil
}
