// Package interp drives a graph runtime from a declarative graph
// description: it resolves operator arguments, builds and compiles the graph,
// moves data in and out of runtime tensors and returns the raw output
// buffers in the kinds the description declares.
package interp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/example/go-nnconform/internal/codec"
	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/graph"
	"github.com/example/go-nnconform/internal/nnapi"
)

// ErrUndefinedGraphOutput is returned when an expected output names no
// operand produced by the graph.
var ErrUndefinedGraphOutput = errors.New("undefined graph output")

// Options configures an Interpreter.
type Options struct {
	// CastToSupportedType lets operands whose kind the runtime rejects be
	// created in a wider kind and cast back inside the graph.
	CastToSupportedType bool
	Logger              *slog.Logger
}

// Interpreter evaluates graph descriptions on one runtime context.
type Interpreter struct {
	rt     nnapi.Context
	opts   Options
	logger *slog.Logger
}

// New returns an Interpreter bound to rt.
func New(rt nnapi.Context, opts Options) *Interpreter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Interpreter{rt: rt, opts: opts, logger: logger}
}

// Result holds the outputs of one evaluation.
type Result struct {
	// Outputs are little-endian buffers in each expected output's declared
	// kind, keyed by name.
	Outputs map[string][]byte
	// Descriptors are the expected output descriptors, tagged with the
	// storage kind when the runtime needed a substitute.
	Descriptors map[string]graph.Descriptor
	// Intermediates maps every operator output name to its operand.
	Intermediates map[string]nnapi.Operand
}

// Shape resolves the shape of an intermediate operand. It satisfies
// tolerance.ShapeFunc.
func (r *Result) Shape(name string) ([]int64, bool) {
	o, ok := r.Intermediates[name]
	if !ok {
		return nil, false
	}

	return o.Shape(), true
}

// boundInput is a graph input created as a builder input, waiting for data.
type boundInput struct {
	name     string
	resource graph.Resource
	desc     graph.Descriptor
}

// session is the state of one Run.
type session struct {
	*Interpreter

	g       *graph.Graph
	limits  nnapi.SupportLimits
	builder nnapi.Builder

	operands      map[string]nnapi.Operand
	inputs        []boundInput
	intermediates map[string]nnapi.Operand
}

// Run builds g, dispatches it and reads every expected output back.
func (in *Interpreter) Run(ctx context.Context, g *graph.Graph) (*Result, error) {
	s := &session{
		Interpreter:   in,
		g:             g,
		limits:        in.rt.OpSupportLimits(),
		builder:       in.rt.NewBuilder(),
		operands:      make(map[string]nnapi.Operand),
		intermediates: make(map[string]nnapi.Operand),
	}

	for i, op := range g.Operators {
		if err := s.call(i, op); err != nil {
			return nil, err
		}
	}

	outputs, descs, err := s.outputs()
	if err != nil {
		return nil, err
	}

	compiled, err := s.builder.Build(ctx, outputs)
	if err != nil {
		return nil, fmt.Errorf("interp: build: %w", err)
	}

	bufs, err := s.execute(ctx, compiled, descs)
	if err != nil {
		return nil, err
	}

	return &Result{Outputs: bufs, Descriptors: descs, Intermediates: s.intermediates}, nil
}

func (s *session) call(i int, op graph.Operator) error {
	args := make([]nnapi.Arg, len(op.Arguments))

	for k, a := range op.Arguments {
		arg, err := s.resolve(a.Name, a.Value)
		if err != nil {
			return fmt.Errorf("interp: operator %d (%s) argument %q: %w", i, op.Name, a.Name, err)
		}

		args[k] = arg
	}

	s.logger.Debug("build operator", "index", i, "op", op.Name, "outputs", op.Outputs)

	outs, err := s.builder.Call(op.Name, args)
	if err != nil {
		return fmt.Errorf("interp: operator %d (%s): %w", i, op.Name, err)
	}

	switch {
	case op.MultiOutput && len(outs) != len(op.Outputs):
		return fmt.Errorf("interp: operator %d (%s) produced %d outputs, %d declared", i, op.Name, len(outs), len(op.Outputs))
	case !op.MultiOutput && len(outs) != 1:
		return fmt.Errorf("interp: operator %d (%s) produced %d outputs, 1 declared", i, op.Name, len(outs))
	}

	for k, name := range op.Outputs {
		s.intermediates[name] = outs[k]
	}

	return nil
}

// resolve turns a described argument into a runtime argument. Strings name
// graph inputs first, then intermediates, and are literals otherwise. Lists
// whose elements all resolve to operands become operand lists.
func (s *session) resolve(name string, v graph.Value) (nnapi.Arg, error) {
	arg := nnapi.Arg{Name: name}

	switch v.Kind {
	case graph.KindString:
		o, ok, err := s.lookup(v.String)
		if err != nil {
			return arg, err
		}

		if ok {
			arg.Kind = nnapi.ArgOperand
			arg.Operand = o

			return arg, nil
		}
	case graph.KindList:
		ops, ok, err := s.operandList(v.List)
		if err != nil {
			return arg, err
		}

		if ok {
			arg.Kind = nnapi.ArgOperands
			arg.Operands = ops

			return arg, nil
		}
	case graph.KindOptions:
		arg.Kind = nnapi.ArgOptions
		arg.Options = make([]nnapi.Arg, len(v.Options))

		for k, o := range v.Options {
			sub, err := s.resolve(o.Name, o.Value)
			if err != nil {
				return arg, fmt.Errorf("option %q: %w", o.Name, err)
			}

			arg.Options[k] = sub
		}

		return arg, nil
	}

	lit, err := v.Literal()
	if err != nil {
		return arg, err
	}

	arg.Kind = nnapi.ArgLiteral
	arg.Literal = lit

	return arg, nil
}

func (s *session) operandList(items []graph.Value) ([]nnapi.Operand, bool, error) {
	if len(items) == 0 {
		return nil, false, nil
	}

	out := make([]nnapi.Operand, 0, len(items))

	for _, item := range items {
		if item.Kind != graph.KindString {
			return nil, false, nil
		}

		o, ok, err := s.lookup(item.String)
		if err != nil || !ok {
			return nil, false, err
		}

		out = append(out, o)
	}

	return out, true, nil
}

func (s *session) lookup(ref string) (nnapi.Operand, bool, error) {
	if o, ok := s.operands[ref]; ok {
		return o, true, nil
	}

	if r, ok := s.g.Input(ref); ok {
		o, err := s.createOperand(r)
		if err != nil {
			return nil, false, fmt.Errorf("%s %q: %w", role(r), ref, err)
		}

		s.operands[ref] = o

		return o, true, nil
	}

	if o, ok := s.intermediates[ref]; ok {
		return o, true, nil
	}

	return nil, false, nil
}

func role(r graph.Resource) string {
	if r.Constant {
		return "constant"
	}

	return "input"
}

// createOperand declares a graph input or constant, substituting a wider
// kind when the runtime does not accept the declared one.
func (s *session) createOperand(r graph.Resource) (nnapi.Operand, error) {
	limit := s.limits.Input
	if r.Constant {
		limit = s.limits.Constant
	}

	desc, err := s.storage(r.Descriptor, limit, role(r), r.Name)
	if err != nil {
		return nil, err
	}

	od := nnapi.OperandDescriptor{DataType: desc.StorageType(), Shape: slices.Clone(desc.Shape)}

	var o nnapi.Operand

	if r.Constant {
		buf, err := codec.Encode(od.DataType, od.ElementCount(), r.Data)
		if err != nil {
			return nil, err
		}

		o, err = s.builder.Constant(od, buf)
		if err != nil {
			return nil, err
		}
	} else {
		o, err = s.builder.Input(r.Name, od)
		if err != nil {
			return nil, err
		}

		s.inputs = append(s.inputs, boundInput{name: r.Name, resource: r, desc: desc})
	}

	if !desc.Casted() {
		return o, nil
	}

	return s.builder.Cast(o, desc.DataType)
}

// storage returns desc unchanged when limit accepts its kind, or a copy
// tagged with a lossless substitute.
func (s *session) storage(desc graph.Descriptor, limit nnapi.DataTypeLimits, what, name string) (graph.Descriptor, error) {
	if limit.Supports(desc.DataType) {
		return graph.Descriptor{DataType: desc.DataType, Shape: slices.Clone(desc.Shape)}, nil
	}

	if !s.opts.CastToSupportedType {
		return graph.Descriptor{}, fmt.Errorf("%w: %v is not a supported %s kind", datatype.ErrUnsupportedDataType, desc.DataType, what)
	}

	sub, ok := datatype.FindCompatible(desc.DataType, limit.DataTypes, s.limits.Cast.Input.DataTypes, s.limits.Cast.Output.DataTypes)
	if !ok {
		return graph.Descriptor{}, fmt.Errorf("%w: no supported %s kind can hold %v", datatype.ErrUnsupportedDataType, what, desc.DataType)
	}

	s.logger.Warn("substituting data type", "role", what, "name", name, "declared", desc.DataType.String(), "storage", sub.String())

	return desc.WithCast(sub), nil
}

// outputs resolves every expected output to an operand, casting the ones
// whose kind the runtime cannot return, and checks their descriptors.
func (s *session) outputs() (map[string]nnapi.Operand, map[string]graph.Descriptor, error) {
	outputs := make(map[string]nnapi.Operand, len(s.g.ExpectedOutputs))
	descs := make(map[string]graph.Descriptor, len(s.g.ExpectedOutputs))

	for _, exp := range s.g.ExpectedOutputs {
		o, ok := s.intermediates[exp.Name]
		if !ok {
			return nil, nil, fmt.Errorf("interp: %w: %q", ErrUndefinedGraphOutput, exp.Name)
		}

		desc, err := s.storage(exp.Descriptor, s.limits.Output, "output", exp.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("interp: output %q: %w", exp.Name, err)
		}

		if desc.Casted() {
			if o, err = s.builder.Cast(o, desc.CastedType); err != nil {
				return nil, nil, fmt.Errorf("interp: output %q: %w", exp.Name, err)
			}
		}

		if err := matchDescriptor(o, desc); err != nil {
			return nil, nil, fmt.Errorf("interp: output %q: %w", exp.Name, err)
		}

		outputs[exp.Name] = o
		descs[exp.Name] = desc
	}

	return outputs, descs, nil
}

func matchDescriptor(o nnapi.Operand, want graph.Descriptor) error {
	if o.DataType() != want.StorageType() || !slices.Equal(o.Shape(), want.Shape) {
		return fmt.Errorf("operand %v%v does not match expected descriptor %v", o.DataType(), o.Shape(), want)
	}

	return nil
}
