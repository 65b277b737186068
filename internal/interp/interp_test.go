package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-nnconform/internal/codec"
	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/graph"
	"github.com/example/go-nnconform/internal/nnapi"
	"github.com/example/go-nnconform/internal/runtime/cpu"
)

func parse(t *testing.T, doc string) *graph.Graph {
	t.Helper()

	g, err := graph.Parse([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	return g
}

func runtimeContext(t *testing.T, opts cpu.Options) nnapi.Context {
	t.Helper()

	rt, err := cpu.NewProvider(opts).CreateContext(context.Background(), nnapi.ContextOptions{DeviceType: "cpu"})
	require.NoError(t, err)

	return rt
}

func decode(t *testing.T, dt datatype.DataType, buf []byte, count int) []string {
	t.Helper()

	bits, err := codec.Elements(dt, buf, count)
	require.NoError(t, err)

	out := make([]string, len(bits))
	for i, b := range bits {
		out[i] = codec.FormatElement(dt, b)
	}

	return out
}

const chainGraph = `
inputs:
  x: {data: [1, -2, 3, -4], descriptor: {shape: [2, 2], dataType: float32}}
  w: {data: [1, 1, 1, 1], descriptor: {shape: [2, 2], dataType: float32}, constant: true}
operators:
  - name: relu
    arguments: [{input: x}]
    outputs: r
  - name: add
    arguments: [{a: r}, {b: w}]
    outputs: s
  - name: concat
    arguments: [{inputs: [r, s]}, {axis: 0}]
    outputs: c
expectedOutputs:
  c: {data: [1, 0, 3, 0, 2, 1, 4, 1], descriptor: {shape: [4, 2], dataType: float32}}
`

func TestRunChain(t *testing.T) {
	g := parse(t, chainGraph)

	res, err := New(runtimeContext(t, cpu.Options{}), Options{}).Run(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "0", "3", "0", "2", "1", "4", "1"}, decode(t, datatype.Float32, res.Outputs["c"], 8))
	assert.False(t, res.Descriptors["c"].Casted())

	shape, ok := res.Shape("r")
	require.True(t, ok)
	assert.Equal(t, []int64{2, 2}, shape)

	_, ok = res.Shape("x")
	assert.False(t, ok)
}

func TestRunUndefinedOutput(t *testing.T) {
	g := parse(t, `
inputs:
  x: {data: [1], descriptor: {shape: [1], dataType: float32}}
operators:
  - name: relu
    arguments: [{input: x}]
    outputs: r
expectedOutputs:
  missing: {data: [1], descriptor: {shape: [1], dataType: float32}}
`)

	_, err := New(runtimeContext(t, cpu.Options{}), Options{}).Run(context.Background(), g)
	assert.ErrorIs(t, err, ErrUndefinedGraphOutput)
}

func TestRunDescriptorMismatch(t *testing.T) {
	g := parse(t, `
inputs:
  x: {data: [1, 2], descriptor: {shape: [2], dataType: float32}}
operators:
  - name: relu
    arguments: [{input: x}]
    outputs: r
expectedOutputs:
  r: {data: [1, 2], descriptor: {shape: [1, 2], dataType: float32}}
`)

	_, err := New(runtimeContext(t, cpu.Options{}), Options{}).Run(context.Background(), g)
	assert.ErrorContains(t, err, "does not match expected descriptor")
}

const int4Graph = `
inputs:
  x: {data: [-7, -6, 5], descriptor: {shape: [3], dataType: int4}}
operators:
  - name: reshape
    arguments: [{input: x}, {newShape: [3, 1]}]
    outputs: y
expectedOutputs:
  y: {data: [-7, -6, 5], descriptor: {shape: [3, 1], dataType: int4}}
`

func TestRunTypeSubstitution(t *testing.T) {
	rt := runtimeContext(t, cpu.Options{
		DisabledInputTypes:  []datatype.DataType{datatype.Int4},
		DisabledOutputTypes: []datatype.DataType{datatype.Int4},
	})

	g := parse(t, int4Graph)

	res, err := New(rt, Options{CastToSupportedType: true}).Run(context.Background(), g)
	require.NoError(t, err)

	desc := res.Descriptors["y"]
	assert.True(t, desc.Casted())
	assert.Equal(t, datatype.Int8, desc.CastedType)
	assert.Equal(t, datatype.Int4, desc.DataType)

	// Buffers come back in the declared packed layout.
	assert.Equal(t, []byte{0xA9, 0x05}, res.Outputs["y"])

	// The loaded description keeps its declared descriptor.
	exp, _ := g.ExpectedOutput("y")
	assert.False(t, exp.Descriptor.Casted())
}

func TestRunSubstitutionDisabled(t *testing.T) {
	rt := runtimeContext(t, cpu.Options{DisabledInputTypes: []datatype.DataType{datatype.Int4}})

	_, err := New(rt, Options{}).Run(context.Background(), parse(t, int4Graph))
	assert.ErrorIs(t, err, datatype.ErrUnsupportedDataType)
}

func TestRunMultiOutput(t *testing.T) {
	g := parse(t, `
inputs:
  x: {data: [1, 2], descriptor: {shape: [1, 1, 2], dataType: float32}}
  w: {data: [0, 0, 0, 0, 0, 0], descriptor: {shape: [1, 3, 2], dataType: float32}}
  r: {data: [0, 0, 0], descriptor: {shape: [1, 3, 1], dataType: float32}}
operators:
  - name: gru
    arguments:
      - input: x
      - weight: w
      - recurrentWeight: r
      - steps: 1
      - hiddenSize: 1
      - options: {returnSequence: true}
    outputs: [h, seq]
expectedOutputs:
  h: {data: [0], descriptor: {shape: [1, 1, 1], dataType: float32}}
  seq: {data: [0], descriptor: {shape: [1, 1, 1, 1], dataType: float32}}
`)

	res, err := New(runtimeContext(t, cpu.Options{}), Options{}).Run(context.Background(), g)
	require.NoError(t, err)
	assert.Len(t, res.Outputs, 2)
	assert.Equal(t, []string{"0"}, decode(t, datatype.Float32, res.Outputs["seq"], 1))
}

func TestRunDeclaredSingleOutputForMulti(t *testing.T) {
	g := parse(t, `
inputs:
  x: {data: [1, 2], descriptor: {shape: [1, 1, 2], dataType: float32}}
  w: {data: [0, 0, 0, 0, 0, 0], descriptor: {shape: [1, 3, 2], dataType: float32}}
  r: {data: [0, 0, 0], descriptor: {shape: [1, 3, 1], dataType: float32}}
operators:
  - name: gru
    arguments: [{input: x}, {weight: w}, {recurrentWeight: r}, {steps: 1}, {hiddenSize: 1}, {options: {returnSequence: true}}]
    outputs: h
expectedOutputs:
  h: {data: [0], descriptor: {shape: [1, 1, 1], dataType: float32}}
`)

	_, err := New(runtimeContext(t, cpu.Options{}), Options{}).Run(context.Background(), g)
	assert.ErrorContains(t, err, "produced 2 outputs")
}

func TestResolveLiterals(t *testing.T) {
	s := &session{
		Interpreter:   New(runtimeContext(t, cpu.Options{}), Options{}),
		g:             &graph.Graph{},
		operands:      map[string]nnapi.Operand{},
		intermediates: map[string]nnapi.Operand{},
	}

	arg, err := s.resolve("layout", graph.StringValue("zrn"))
	require.NoError(t, err)
	assert.Equal(t, nnapi.ArgLiteral, arg.Kind)
	assert.Equal(t, "zrn", arg.Literal)

	arg, err = s.resolve("newShape", graph.ListValue(graph.NumberValue("2"), graph.NumberValue("3")))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(3)}, arg.Literal)

	arg, err = s.resolve("options", graph.OptionsValue(graph.Argument{Name: "alpha", Value: graph.NumberValue("0.5")}))
	require.NoError(t, err)
	require.Equal(t, nnapi.ArgOptions, arg.Kind)
	assert.Equal(t, map[string]any{"alpha": 0.5}, arg.Value())
}
