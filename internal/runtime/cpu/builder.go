package cpu

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/nnapi"
)

var errForeignOperand = errors.New("operand was not created by this builder")

type operand struct {
	id    int
	desc  nnapi.OperandDescriptor
	owner *Builder
}

func (o *operand) DataType() datatype.DataType { return o.desc.DataType }

func (o *operand) Shape() []int64 { return slices.Clone(o.desc.Shape) }

type node struct {
	op      string
	args    []nnapi.Arg
	outputs []*operand
}

// Builder records a graph. Call evaluates each kernel on placeholder values
// to infer output descriptors, so every operator has one implementation.
type Builder struct {
	ctx *Context

	operands  []*operand
	inputs    map[string]*operand
	constants map[int]value
	nodes     []node
	shadow    map[int]value
}

func newBuilder(c *Context) *Builder {
	return &Builder{
		ctx:       c,
		inputs:    make(map[string]*operand),
		constants: make(map[int]value),
		shadow:    make(map[int]value),
	}
}

func (b *Builder) newOperand(desc nnapi.OperandDescriptor) *operand {
	o := &operand{
		id:    len(b.operands),
		desc:  nnapi.OperandDescriptor{DataType: desc.DataType, Shape: slices.Clone(desc.Shape)},
		owner: b,
	}
	b.operands = append(b.operands, o)

	return o
}

// Input declares a named graph input.
func (b *Builder) Input(name string, desc nnapi.OperandDescriptor) (nnapi.Operand, error) {
	if name == "" {
		return nil, errors.New("cpu: input name is empty")
	}

	if _, dup := b.inputs[name]; dup {
		return nil, fmt.Errorf("cpu: duplicate input %q", name)
	}

	if !b.ctx.limits.Input.Supports(desc.DataType) {
		return nil, fmt.Errorf("cpu: input %q: %w: %v is not a supported input kind", name, datatype.ErrUnsupportedDataType, desc.DataType)
	}

	placeholder, err := zeroValue(desc)
	if err != nil {
		return nil, fmt.Errorf("cpu: input %q: %w", name, err)
	}

	o := b.newOperand(desc)
	b.inputs[name] = o
	b.shadow[o.id] = placeholder

	return o, nil
}

// Constant declares a constant operand holding data.
func (b *Builder) Constant(desc nnapi.OperandDescriptor, data []byte) (nnapi.Operand, error) {
	if !b.ctx.limits.Constant.Supports(desc.DataType) {
		return nil, fmt.Errorf("cpu: constant: %w: %v is not a supported constant kind", datatype.ErrUnsupportedDataType, desc.DataType)
	}

	if want := desc.DataType.ByteLength(desc.ElementCount()); len(data) != want {
		return nil, fmt.Errorf("cpu: constant %v%v: got %d bytes, want %d", desc.DataType, desc.Shape, len(data), want)
	}

	v, err := decodeValue(desc, data)
	if err != nil {
		return nil, fmt.Errorf("cpu: constant: %w", err)
	}

	o := b.newOperand(desc)
	b.constants[o.id] = v
	b.shadow[o.id] = v

	return o, nil
}

// Cast converts input to kind to.
func (b *Builder) Cast(input nnapi.Operand, to datatype.DataType) (nnapi.Operand, error) {
	outs, err := b.Call("cast", []nnapi.Arg{
		{Name: "input", Kind: nnapi.ArgOperand, Operand: input},
		{Name: "type", Kind: nnapi.ArgLiteral, Literal: to.String()},
	})
	if err != nil {
		return nil, err
	}

	return outs[0], nil
}

// Call appends an operator and returns its output operands.
func (b *Builder) Call(op string, args []nnapi.Arg) ([]nnapi.Operand, error) {
	k, ok := kernels[op]
	if !ok {
		return nil, fmt.Errorf("cpu: operator %q is not supported", op)
	}

	if err := b.checkArgs(op, args); err != nil {
		return nil, err
	}

	results, err := k(&call{op: op, args: args, env: b.shadow})
	if err != nil {
		return nil, fmt.Errorf("cpu: %s: %w", op, err)
	}

	n := node{op: op, args: slices.Clone(args)}
	outs := make([]nnapi.Operand, len(results))

	for i, r := range results {
		o := b.newOperand(r.descriptor())
		b.shadow[o.id] = r
		n.outputs = append(n.outputs, o)
		outs[i] = o
	}

	b.nodes = append(b.nodes, n)

	return outs, nil
}

// checkArgs verifies operand ownership and per-operator kind limits.
func (b *Builder) checkArgs(op string, args []nnapi.Arg) error {
	params := b.ctx.limits.Operators[op]

	var check func(a nnapi.Arg) error
	check = func(a nnapi.Arg) error {
		switch a.Kind {
		case nnapi.ArgOperand:
			return b.checkOperand(op, a.Name, a.Operand, params)
		case nnapi.ArgOperands:
			for _, o := range a.Operands {
				if err := b.checkOperand(op, a.Name, o, params); err != nil {
					return err
				}
			}
		case nnapi.ArgOptions:
			for _, o := range a.Options {
				if err := check(o); err != nil {
					return err
				}
			}
		}

		return nil
	}

	for _, a := range args {
		if err := check(a); err != nil {
			return err
		}
	}

	return nil
}

func (b *Builder) checkOperand(op, param string, o nnapi.Operand, params map[string]nnapi.DataTypeLimits) error {
	own, ok := o.(*operand)
	if !ok || own.owner != b {
		return fmt.Errorf("cpu: %s argument %q: %w", op, param, errForeignOperand)
	}

	if lim, ok := params[param]; ok && !lim.Supports(own.desc.DataType) {
		return fmt.Errorf("cpu: %s argument %q: %w: %v", op, param, datatype.ErrUnsupportedDataType, own.desc.DataType)
	}

	return nil
}

// Build compiles the recorded nodes into a graph producing outputs.
func (b *Builder) Build(ctx context.Context, outputs map[string]nnapi.Operand) (nnapi.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(outputs) == 0 {
		return nil, errors.New("cpu: build requires at least one output")
	}

	g := &Graph{
		inputs:    make(map[string]*operand, len(b.inputs)),
		outputs:   make(map[string]*operand, len(outputs)),
		constants: b.constants,
		nodes:     slices.Clone(b.nodes),
	}

	for name, o := range b.inputs {
		g.inputs[name] = o
	}

	for name, out := range outputs {
		o, ok := out.(*operand)
		if !ok || o.owner != b {
			return nil, fmt.Errorf("cpu: output %q: %w", name, errForeignOperand)
		}

		if !b.ctx.limits.Output.Supports(o.desc.DataType) {
			return nil, fmt.Errorf("cpu: output %q: %w: %v is not a supported output kind", name, datatype.ErrUnsupportedDataType, o.desc.DataType)
		}

		if _, isConst := b.constants[o.id]; isConst || b.isInput(o) {
			return nil, fmt.Errorf("cpu: output %q must be produced by an operator", name)
		}

		g.outputs[name] = o
	}

	return g, nil
}

func (b *Builder) isInput(o *operand) bool {
	for _, in := range b.inputs {
		if in == o {
			return true
		}
	}

	return false
}

// Graph is a compiled cpu graph.
type Graph struct {
	inputs    map[string]*operand
	outputs   map[string]*operand
	constants map[int]value
	nodes     []node
}

// InputNames returns the sorted input names.
func (g *Graph) InputNames() []string {
	return sortedKeys(g.inputs)
}

// OutputNames returns the sorted output names.
func (g *Graph) OutputNames() []string {
	return sortedKeys(g.outputs)
}

func sortedKeys(m map[string]*operand) []string {
	return slices.Sorted(maps.Keys(m))
}
