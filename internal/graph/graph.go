// Package graph models a declarative computation graph: named input
// resources, an ordered operator list and the expected outputs.
package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/example/go-nnconform/internal/codec"
	"github.com/example/go-nnconform/internal/datatype"
)

// Descriptor describes a tensor's element kind and shape. CastedType is set
// when the runtime stores the tensor in a substitute kind.
type Descriptor struct {
	DataType   datatype.DataType
	Shape      []int64
	CastedType datatype.DataType
}

// ElementCount is the product of the dimensions; 1 for scalars.
func (d Descriptor) ElementCount() int {
	n := 1
	for _, dim := range d.Shape {
		n *= int(dim)
	}

	return n
}

// StorageType is the kind actually exchanged with the runtime.
func (d Descriptor) StorageType() datatype.DataType {
	if d.CastedType.Valid() {
		return d.CastedType
	}

	return d.DataType
}

// Casted reports whether the descriptor carries a substitute kind.
func (d Descriptor) Casted() bool {
	return d.CastedType.Valid()
}

// WithCast returns a copy of d tagged with a substitute storage kind.
func (d Descriptor) WithCast(dt datatype.DataType) Descriptor {
	return Descriptor{DataType: d.DataType, Shape: slices.Clone(d.Shape), CastedType: dt}
}

func (d Descriptor) String() string {
	if d.Casted() {
		return fmt.Sprintf("%v%v (as %v)", d.DataType, d.Shape, d.CastedType)
	}

	return fmt.Sprintf("%v%v", d.DataType, d.Shape)
}

// Resource is named tensor content: a graph input, a constant or an
// expected output.
type Resource struct {
	Name       string
	Data       codec.Data
	Descriptor Descriptor
	Constant   bool
}

// Operator is one graph step.
type Operator struct {
	Name      string
	Arguments []Argument
	Outputs   []string
	// MultiOutput is set when outputs were declared as a list; the runtime
	// result is then a list matched to Outputs by position.
	MultiOutput bool
}

// Arg returns the i-th positional argument.
func (o Operator) Arg(i int) (Argument, bool) {
	if i < 0 || i >= len(o.Arguments) {
		return Argument{}, false
	}

	return o.Arguments[i], true
}

// Options returns the operator's options bag, if any.
func (o Operator) Options() Options {
	for _, a := range o.Arguments {
		if a.Value.Kind == KindOptions {
			return a.Value.Options
		}
	}

	return nil
}

// Graph is a complete test graph.
type Graph struct {
	Inputs          []Resource
	Operators       []Operator
	ExpectedOutputs []Resource
}

// Input looks up a graph input or constant by name.
func (g *Graph) Input(name string) (Resource, bool) {
	return lookup(g.Inputs, name)
}

// ExpectedOutput looks up an expected output by name.
func (g *Graph) ExpectedOutput(name string) (Resource, bool) {
	return lookup(g.ExpectedOutputs, name)
}

// OperatorNames lists operator names in graph order.
func (g *Graph) OperatorNames() []string {
	names := make([]string, len(g.Operators))
	for i, op := range g.Operators {
		names[i] = op.Name
	}

	return names
}

// Validate checks structural invariants that do not depend on a runtime.
func (g *Graph) Validate() error {
	if len(g.Operators) == 0 {
		return errors.New("graph: no operators")
	}

	if len(g.ExpectedOutputs) == 0 {
		return errors.New("graph: no expected outputs")
	}

	seen := make(map[string]string)

	for _, in := range g.Inputs {
		if _, dup := seen[in.Name]; dup {
			return fmt.Errorf("graph: duplicate input %q", in.Name)
		}

		seen[in.Name] = "input"

		if err := validateResource(in); err != nil {
			return fmt.Errorf("graph: input %q: %w", in.Name, err)
		}
	}

	for i, op := range g.Operators {
		if op.Name == "" {
			return fmt.Errorf("graph: operator %d has no name", i)
		}

		if len(op.Outputs) == 0 {
			return fmt.Errorf("graph: operator %d (%s) declares no outputs", i, op.Name)
		}

		for _, out := range op.Outputs {
			if prev, dup := seen[out]; dup {
				return fmt.Errorf("graph: operator %d (%s) output %q already defined as %s", i, op.Name, out, prev)
			}

			seen[out] = "operator output"
		}
	}

	for _, out := range g.ExpectedOutputs {
		if err := validateResource(out); err != nil {
			return fmt.Errorf("graph: expected output %q: %w", out.Name, err)
		}
	}

	return nil
}

func validateResource(r Resource) error {
	if !r.Descriptor.DataType.Valid() {
		return fmt.Errorf("descriptor: %w", datatype.ErrUnsupportedDataType)
	}

	for _, d := range r.Descriptor.Shape {
		if d < 0 {
			return fmt.Errorf("descriptor: negative dimension in %v", r.Descriptor.Shape)
		}
	}

	if !r.Data.Scalar && r.Data.Len() != r.Descriptor.ElementCount() {
		return fmt.Errorf("data holds %d values, shape %v needs %d", r.Data.Len(), r.Descriptor.Shape, r.Descriptor.ElementCount())
	}

	return nil
}

func lookup(list []Resource, name string) (Resource, bool) {
	for _, r := range list {
		if r.Name == name {
			return r, true
		}
	}

	return Resource{}, false
}
