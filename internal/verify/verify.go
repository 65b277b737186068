// Package verify compares a runtime's output buffers against the expected
// values of a graph description under a tolerance.
package verify

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/example/go-nnconform/internal/codec"
	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/graph"
	"github.com/example/go-nnconform/internal/tolerance"
	"github.com/example/go-nnconform/internal/ulp"
)

// ErrAssertionMismatch marks a result outside the tolerance.
var ErrAssertionMismatch = errors.New("assertion mismatch")

// DefaultMaxValidated caps how many elements of a scalar-filled expected
// output are compared.
const DefaultMaxValidated = 1000

// MismatchError describes the first element that failed.
type MismatchError struct {
	Operators []string
	DataType  datatype.DataType
	Output    string
	// Index is -1 for a length mismatch.
	Index     int
	Actual    string
	Expected  string
	Tolerance tolerance.Spec
	// Distance is the ULP distance or absolute delta that was exceeded.
	Distance float64
	// Reason is set for structural mismatches.
	Reason string
}

func (e *MismatchError) Error() string {
	ops := strings.Join(e.Operators, ", ")

	if e.Index < 0 {
		return fmt.Sprintf("%s: [%s] %s output %q: %s", ErrAssertionMismatch, ops, e.DataType, e.Output, e.Reason)
	}

	return fmt.Sprintf("%s: [%s] %s output %q element %d: actual %s, expected %s (distance %g, tolerance %s)",
		ErrAssertionMismatch, ops, e.DataType, e.Output, e.Index, e.Actual, e.Expected, e.Distance, e.Tolerance)
}

func (e *MismatchError) Unwrap() error {
	return ErrAssertionMismatch
}

// Verifier checks results. The zero value caps scalar expansion at
// DefaultMaxValidated.
type Verifier struct {
	MaxValidated int
	Logger       *slog.Logger
}

// Outputs are actual buffers keyed by expected output name, each in the
// output's declared kind.
type Outputs map[string][]byte

// Check compares every expected output of g against actual.
func (v *Verifier) Check(spec tolerance.Spec, operators []string, actual Outputs, g *graph.Graph) error {
	for _, exp := range g.ExpectedOutputs {
		buf, ok := actual[exp.Name]
		if !ok {
			return &MismatchError{
				Operators: operators,
				DataType:  exp.Descriptor.DataType,
				Output:    exp.Name,
				Index:     -1,
				Tolerance: spec,
				Reason:    "no result",
			}
		}

		if err := v.CheckOutput(spec, operators, exp, buf); err != nil {
			return err
		}
	}

	return nil
}

// CheckOutput compares one output buffer against its expected resource.
func (v *Verifier) CheckOutput(spec tolerance.Spec, operators []string, exp graph.Resource, buf []byte) error {
	dt := exp.Descriptor.DataType
	count := exp.Descriptor.ElementCount()

	mismatch := func(index int) *MismatchError {
		return &MismatchError{Operators: operators, DataType: dt, Output: exp.Name, Index: index, Tolerance: spec}
	}

	if exp.Data.Scalar && count > 1 {
		count = min(count, v.maxValidated())
	}

	want, err := exp.Data.Expand(count)
	if err != nil {
		e := mismatch(-1)
		e.Reason = err.Error()

		return e
	}

	got, err := codec.Elements(dt, buf, count)
	if err != nil {
		e := mismatch(-1)
		e.Reason = fmt.Sprintf("actual holds %d bytes, expected %d elements", len(buf), count)

		return e
	}

	for i := range count {
		wantBits, err := codec.ElementBits(dt, want[i])
		if err != nil {
			return fmt.Errorf("verify: output %q element %d: %w", exp.Name, i, err)
		}

		if got[i] == wantBits {
			continue
		}

		dist, ok, err := within(spec, got[i], wantBits, dt)
		if err != nil {
			return fmt.Errorf("verify: output %q element %d: %w", exp.Name, i, err)
		}

		if ok {
			continue
		}

		e := mismatch(i)
		e.Actual = codec.FormatElement(dt, got[i])
		e.Expected = string(want[i])
		e.Distance = dist

		return e
	}

	v.logger().Debug("output verified", "output", exp.Name, "data_type", dt.String(), "elements", count, "tolerance", spec.String())

	return nil
}

// within reports whether actual is inside the tolerance of expected, and the
// measured distance.
func within(spec tolerance.Spec, actual, expected uint64, dt datatype.DataType) (float64, bool, error) {
	if dt.IsFloat() && math.IsNaN(codec.ElementFloat(dt, actual)) && math.IsNaN(codec.ElementFloat(dt, expected)) {
		return 0, true, nil
	}

	if spec.Metric == tolerance.ATOL {
		d := math.Abs(codec.ElementFloat(dt, actual) - codec.ElementFloat(dt, expected))
		if math.IsNaN(d) {
			return d, false, nil
		}

		return d, d <= spec.Value, nil
	}

	d, err := ulp.Distance(actual, expected, dt)
	if err != nil {
		return 0, false, err
	}

	return float64(d), float64(d) <= spec.Value, nil
}

func (v *Verifier) maxValidated() int {
	if v.MaxValidated > 0 {
		return v.MaxValidated
	}

	return DefaultMaxValidated
}

func (v *Verifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}

	return slog.Default()
}
