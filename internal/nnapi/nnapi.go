// Package nnapi is the contract between the conformance harness and a
// neural-network graph runtime: build a graph from operands, compile it and
// dispatch it against input and output tensors.
package nnapi

import (
	"context"
	"errors"
	"slices"

	"github.com/example/go-nnconform/internal/datatype"
)

// ErrContextCreation is returned when a runtime cannot provide a context for
// the requested device.
var ErrContextCreation = errors.New("unable to create context")

// OperandDescriptor describes a graph operand.
type OperandDescriptor struct {
	DataType datatype.DataType
	Shape    []int64
}

// ElementCount is the product of the dimensions.
func (d OperandDescriptor) ElementCount() int {
	n := 1
	for _, dim := range d.Shape {
		n *= int(dim)
	}

	return n
}

// TensorDescriptor describes a runtime tensor.
type TensorDescriptor struct {
	OperandDescriptor
	Readable bool
	Writable bool
}

// Operand is a node value inside a graph under construction.
type Operand interface {
	DataType() datatype.DataType
	Shape() []int64
}

// ArgKind tags the variant held by an Arg.
type ArgKind uint8

const (
	ArgLiteral ArgKind = iota
	ArgOperand
	ArgOperands
	ArgOptions
)

// Arg is a resolved operator argument.
type Arg struct {
	Name     string
	Kind     ArgKind
	Operand  Operand
	Operands []Operand
	// Literal holds int64, float64, string, bool or []any.
	Literal any
	Options  []Arg
}

// Option returns a named entry of an options argument.
func (a Arg) Option(name string) (Arg, bool) {
	for _, o := range a.Options {
		if o.Name == name {
			return o, true
		}
	}

	return Arg{}, false
}

// Value returns the Go value carried by the argument: an Operand, a
// []Operand, a literal or, for options, a map of names to values.
func (a Arg) Value() any {
	switch a.Kind {
	case ArgOperand:
		return a.Operand
	case ArgOperands:
		return a.Operands
	case ArgOptions:
		m := make(map[string]any, len(a.Options))
		for _, o := range a.Options {
			m[o.Name] = o.Value()
		}

		return m
	default:
		return a.Literal
	}
}

// DataTypeLimits lists the kinds accepted in some position.
type DataTypeLimits struct {
	DataTypes []datatype.DataType
}

// Supports reports whether dt is accepted.
func (l DataTypeLimits) Supports(dt datatype.DataType) bool {
	return slices.Contains(l.DataTypes, dt)
}

// CastLimits describes which kinds a cast accepts and produces.
type CastLimits struct {
	Input  DataTypeLimits
	Output DataTypeLimits
}

// SupportLimits advertises what a context can handle.
type SupportLimits struct {
	Input    DataTypeLimits
	Constant DataTypeLimits
	Output   DataTypeLimits
	Cast     CastLimits
	// Operators maps an operator name to the limits of each of its
	// operand parameters, keyed by parameter name.
	Operators map[string]map[string]DataTypeLimits
}

// Builder records a graph.
type Builder interface {
	Input(name string, desc OperandDescriptor) (Operand, error)
	Constant(desc OperandDescriptor, data []byte) (Operand, error)
	Cast(input Operand, to datatype.DataType) (Operand, error)
	// Call appends an operator. Single-output operators return a one
	// element slice.
	Call(op string, args []Arg) ([]Operand, error)
	Build(ctx context.Context, outputs map[string]Operand) (Graph, error)
}

// Graph is a compiled graph.
type Graph interface {
	InputNames() []string
	OutputNames() []string
}

// Tensor is runtime-owned storage bound to graph inputs and outputs.
type Tensor interface {
	Descriptor() TensorDescriptor
	Destroy()
}

// Context owns builders, tensors and dispatch for one device.
type Context interface {
	OpSupportLimits() SupportLimits
	NewBuilder() Builder
	CreateTensor(ctx context.Context, desc TensorDescriptor) (Tensor, error)
	WriteTensor(t Tensor, data []byte) error
	Dispatch(g Graph, inputs, outputs map[string]Tensor) error
	ReadTensor(ctx context.Context, t Tensor) ([]byte, error)
}

// ContextOptions selects a device class.
type ContextOptions struct {
	DeviceType string
}

// Provider creates contexts.
type Provider interface {
	CreateContext(ctx context.Context, opts ContextOptions) (Context, error)
}
