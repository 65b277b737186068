package cpu

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-nnconform/internal/codec"
	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/nnapi"
)

func newContext(t *testing.T, opts Options) nnapi.Context {
	t.Helper()

	c, err := NewProvider(opts).CreateContext(context.Background(), nnapi.ContextOptions{DeviceType: "cpu"})
	require.NoError(t, err)

	return c
}

func desc(dt datatype.DataType, shape ...int64) nnapi.OperandDescriptor {
	if shape == nil {
		shape = []int64{}
	}

	return nnapi.OperandDescriptor{DataType: dt, Shape: shape}
}

func encode(t *testing.T, d nnapi.OperandDescriptor, data codec.Data) []byte {
	t.Helper()

	buf, err := codec.Encode(d.DataType, d.ElementCount(), data)
	require.NoError(t, err)

	return buf
}

func opArg(name string, o nnapi.Operand) nnapi.Arg {
	return nnapi.Arg{Name: name, Kind: nnapi.ArgOperand, Operand: o}
}

func litArg(name string, v any) nnapi.Arg {
	return nnapi.Arg{Name: name, Kind: nnapi.ArgLiteral, Literal: v}
}

func optsArg(opts ...nnapi.Arg) nnapi.Arg {
	return nnapi.Arg{Name: "options", Kind: nnapi.ArgOptions, Options: opts}
}

// run builds a graph with one output "out", binds inputs and returns the
// decoded element bits of the output.
func run(t *testing.T, c nnapi.Context, b nnapi.Builder, out nnapi.Operand, inputs map[string][]byte) []uint64 {
	t.Helper()

	ctx := context.Background()

	g, err := b.Build(ctx, map[string]nnapi.Operand{"out": out})
	require.NoError(t, err)

	bound := make(map[string]nnapi.Tensor)

	for name, buf := range inputs {
		bi := b.(*Builder).inputs[name]
		require.NotNil(t, bi, "input %q", name)

		tensor, err := c.CreateTensor(ctx, nnapi.TensorDescriptor{OperandDescriptor: bi.desc, Writable: true})
		require.NoError(t, err)
		require.NoError(t, c.WriteTensor(tensor, buf))

		bound[name] = tensor
	}

	od := nnapi.OperandDescriptor{DataType: out.DataType(), Shape: out.Shape()}

	result, err := c.CreateTensor(ctx, nnapi.TensorDescriptor{OperandDescriptor: od, Readable: true})
	require.NoError(t, err)
	require.NoError(t, c.Dispatch(g, bound, map[string]nnapi.Tensor{"out": result}))

	buf, err := c.ReadTensor(ctx, result)
	require.NoError(t, err)

	bits, err := codec.Elements(od.DataType, buf, od.ElementCount())
	require.NoError(t, err)

	return bits
}

func floats(dt datatype.DataType, bits []uint64) []float64 {
	out := make([]float64, len(bits))
	for i, b := range bits {
		out[i] = codec.ElementFloat(dt, b)
	}

	return out
}

func signed(bits []uint64) []int64 {
	out := make([]int64, len(bits))
	for i, b := range bits {
		out[i] = int64(b)
	}

	return out
}

func TestCreateContextDevices(t *testing.T) {
	p := NewProvider(Options{})
	ctx := context.Background()

	for _, device := range []string{"", "cpu", "CPU"} {
		c, err := p.CreateContext(ctx, nnapi.ContextOptions{DeviceType: device})
		require.NoError(t, err, device)
		assert.NotNil(t, c)
	}

	for _, device := range []string{"gpu", "npu"} {
		_, err := p.CreateContext(ctx, nnapi.ContextOptions{DeviceType: device})
		assert.ErrorIs(t, err, nnapi.ErrContextCreation, device)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	_, err := p.CreateContext(cancelled, nnapi.ContextOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSupportLimits(t *testing.T) {
	c := newContext(t, Options{
		DisabledInputTypes:  []datatype.DataType{datatype.Int4, datatype.Uint4},
		DisabledOutputTypes: []datatype.DataType{datatype.Int64},
	})

	lim := c.OpSupportLimits()
	assert.False(t, lim.Input.Supports(datatype.Int4))
	assert.True(t, lim.Input.Supports(datatype.Int8))
	assert.True(t, lim.Constant.Supports(datatype.Int4))
	assert.False(t, lim.Output.Supports(datatype.Int64))

	assert.True(t, lim.Operators["add"]["a"].Supports(datatype.Int32))
	assert.False(t, lim.Operators["gru"]["input"].Supports(datatype.Int32))
	assert.True(t, lim.Operators["gru"]["initialHiddenState"].Supports(datatype.Float16))
	assert.True(t, lim.Operators["gru"]["outputs"].Supports(datatype.Float16))
	assert.False(t, lim.Operators["softmax"]["output"].Supports(datatype.Int32))
	assert.True(t, lim.Operators["greater"]["output"].Supports(datatype.Uint8))
	assert.False(t, lim.Operators["greater"]["output"].Supports(datatype.Float32))

	_, err := c.NewBuilder().Input("x", desc(datatype.Int4, 2))
	assert.ErrorIs(t, err, datatype.ErrUnsupportedDataType)
}

func TestOperatorsSorted(t *testing.T) {
	names := Operators()
	assert.IsNonDecreasing(t, names)
	assert.Contains(t, names, "gru")
	assert.Contains(t, names, "reduceLogSumExp")
	assert.Contains(t, names, "identity")
}

func TestAddFloat32(t *testing.T) {
	c := newContext(t, Options{})
	b := c.NewBuilder()

	d := desc(datatype.Float32, 2, 2)
	x, err := b.Input("x", d)
	require.NoError(t, err)

	y, err := b.Constant(desc(datatype.Float32, 2), encode(t, desc(datatype.Float32, 2), codec.Floats(10, 20)))
	require.NoError(t, err)

	outs, err := b.Call("add", []nnapi.Arg{opArg("a", x), opArg("b", y)})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, []int64{2, 2}, outs[0].Shape())

	got := run(t, c, b, outs[0], map[string][]byte{"x": encode(t, d, codec.Floats(1, 2, 3, 4))})
	assert.Equal(t, []float64{11, 22, 13, 24}, floats(datatype.Float32, got))
}

func TestIntegerWrap(t *testing.T) {
	c := newContext(t, Options{})
	b := c.NewBuilder()

	d := desc(datatype.Int8, 3)
	x, err := b.Input("x", d)
	require.NoError(t, err)

	outs, err := b.Call("add", []nnapi.Arg{opArg("a", x), opArg("b", x)})
	require.NoError(t, err)

	got := run(t, c, b, outs[0], map[string][]byte{"x": encode(t, d, codec.Ints(100, -100, 3))})
	assert.Equal(t, []int64{-56, 56, 6}, signed(got))
}

func TestUint64Compare(t *testing.T) {
	c := newContext(t, Options{})
	b := c.NewBuilder()

	d := desc(datatype.Uint64, 2)
	x, err := b.Input("x", d)
	require.NoError(t, err)

	y, err := b.Constant(d, encode(t, d, codec.ArrayData("18446744073709551615", "1")))
	require.NoError(t, err)

	outs, err := b.Call("greater", []nnapi.Arg{opArg("a", y), opArg("b", x)})
	require.NoError(t, err)
	assert.Equal(t, datatype.Uint8, outs[0].DataType())

	got := run(t, c, b, outs[0], map[string][]byte{"x": encode(t, d, codec.Ints(5, 5))})
	assert.Equal(t, []uint64{1, 0}, got)
}

func TestReshapeKeepsBits(t *testing.T) {
	c := newContext(t, Options{})
	b := c.NewBuilder()

	d := desc(datatype.Float16, 2, 3)
	x, err := b.Input("x", d)
	require.NoError(t, err)

	outs, err := b.Call("reshape", []nnapi.Arg{opArg("input", x), litArg("newShape", []any{int64(3), int64(2)})})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, outs[0].Shape())

	in := encode(t, d, codec.Floats(0.1, -2, 65504, 0, 1e-7, 3.14159))
	want, err := codec.Elements(datatype.Float16, in, 6)
	require.NoError(t, err)

	assert.Equal(t, want, run(t, c, b, outs[0], map[string][]byte{"x": in}))
}

func TestCast(t *testing.T) {
	c := newContext(t, Options{})
	b := c.NewBuilder()

	d := desc(datatype.Float32, 4)
	x, err := b.Input("x", d)
	require.NoError(t, err)

	out, err := b.Cast(x, datatype.Int8)
	require.NoError(t, err)
	assert.Equal(t, datatype.Int8, out.DataType())

	got := run(t, c, b, out, map[string][]byte{"x": encode(t, d, codec.Floats(1.9, -1.9, 300, math.NaN()))})
	assert.Equal(t, []int64{1, -1, 44, 0}, signed(got))
}

func TestFloat16Arithmetic(t *testing.T) {
	c := newContext(t, Options{})
	b := c.NewBuilder()

	d := desc(datatype.Float16, 1)
	x, err := b.Input("x", d)
	require.NoError(t, err)

	outs, err := b.Call("mul", []nnapi.Arg{opArg("a", x), opArg("b", x)})
	require.NoError(t, err)

	// 300*300 overflows half precision.
	got := run(t, c, b, outs[0], map[string][]byte{"x": encode(t, d, codec.Floats(300))})
	assert.True(t, math.IsInf(floats(datatype.Float16, got)[0], 1))
}

func TestGemmWithOptions(t *testing.T) {
	c := newContext(t, Options{})
	b := c.NewBuilder()

	da := desc(datatype.Float32, 2, 2)
	a, err := b.Input("a", da)
	require.NoError(t, err)

	bm, err := b.Constant(da, encode(t, da, codec.Floats(1, 0, 0, 1)))
	require.NoError(t, err)

	cm, err := b.Constant(desc(datatype.Float32), encode(t, desc(datatype.Float32), codec.ScalarData("1")))
	require.NoError(t, err)

	outs, err := b.Call("gemm", []nnapi.Arg{
		opArg("a", a), opArg("b", bm),
		optsArg(opArg("c", cm), litArg("alpha", 2.0), litArg("beta", int64(3)), litArg("aTranspose", true)),
	})
	require.NoError(t, err)

	got := run(t, c, b, outs[0], map[string][]byte{"a": encode(t, da, codec.Floats(1, 2, 3, 4))})
	assert.Equal(t, []float64{5, 9, 7, 11}, floats(datatype.Float32, got))
}

func TestReduceAndSoftmax(t *testing.T) {
	c := newContext(t, Options{})
	b := c.NewBuilder()

	d := desc(datatype.Float32, 2, 3)
	x, err := b.Input("x", d)
	require.NoError(t, err)

	sum, err := b.Call("reduceSum", []nnapi.Arg{opArg("input", x), optsArg(litArg("axes", []any{int64(1)}))})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, sum[0].Shape())

	got := run(t, c, b, sum[0], map[string][]byte{"x": encode(t, d, codec.Floats(1, 2, 3, 4, 5, 6))})
	assert.Equal(t, []float64{6, 15}, floats(datatype.Float32, got))

	b = c.NewBuilder()
	x, err = b.Input("x", d)
	require.NoError(t, err)

	sm, err := b.Call("softmax", []nnapi.Arg{opArg("input", x), litArg("axis", int64(-1))})
	require.NoError(t, err)

	probs := floats(datatype.Float32, run(t, c, b, sm[0], map[string][]byte{"x": encode(t, d, codec.Floats(0, 0, 0, 1, 1, 1))}))
	for _, p := range probs {
		assert.InDelta(t, 1.0/3, p, 1e-6)
	}
}

func TestCallRejectsUnsupported(t *testing.T) {
	c := newContext(t, Options{})
	b := c.NewBuilder()

	x, err := b.Input("x", desc(datatype.Int32, 2))
	require.NoError(t, err)

	_, err = b.Call("sigmoid", []nnapi.Arg{opArg("input", x)})
	assert.ErrorIs(t, err, datatype.ErrUnsupportedDataType)

	_, err = b.Call("noSuchOp", []nnapi.Arg{opArg("input", x)})
	assert.ErrorContains(t, err, "not supported")

	other := c.NewBuilder()
	_, err = other.Call("relu", []nnapi.Arg{opArg("input", x)})
	assert.True(t, errors.Is(err, errForeignOperand))
}

func TestBuildRejectsInputOutput(t *testing.T) {
	c := newContext(t, Options{})
	b := c.NewBuilder()

	x, err := b.Input("x", desc(datatype.Float32, 1))
	require.NoError(t, err)

	_, err = b.Build(context.Background(), map[string]nnapi.Operand{"out": x})
	assert.ErrorContains(t, err, "produced by an operator")

	_, err = b.Input("x", desc(datatype.Float32, 1))
	assert.ErrorContains(t, err, "duplicate")
}

func TestDispatchDescriptorMismatch(t *testing.T) {
	c := newContext(t, Options{})
	b := c.NewBuilder()
	ctx := context.Background()

	x, err := b.Input("x", desc(datatype.Float32, 2))
	require.NoError(t, err)

	outs, err := b.Call("relu", []nnapi.Arg{opArg("input", x)})
	require.NoError(t, err)

	g, err := b.Build(ctx, map[string]nnapi.Operand{"out": outs[0]})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, g.InputNames())
	assert.Equal(t, []string{"out"}, g.OutputNames())

	wrong, err := c.CreateTensor(ctx, nnapi.TensorDescriptor{OperandDescriptor: desc(datatype.Float32, 3), Writable: true})
	require.NoError(t, err)

	out, err := c.CreateTensor(ctx, nnapi.TensorDescriptor{OperandDescriptor: desc(datatype.Float32, 2), Readable: true})
	require.NoError(t, err)

	err = c.Dispatch(g, map[string]nnapi.Tensor{"x": wrong}, map[string]nnapi.Tensor{"out": out})
	assert.ErrorContains(t, err, "does not match")

	err = c.Dispatch(g, map[string]nnapi.Tensor{}, map[string]nnapi.Tensor{"out": out})
	assert.ErrorContains(t, err, "not bound")
}

func TestTensorAccess(t *testing.T) {
	c := newContext(t, Options{})
	ctx := context.Background()

	ro, err := c.CreateTensor(ctx, nnapi.TensorDescriptor{OperandDescriptor: desc(datatype.Int4, 3), Readable: true})
	require.NoError(t, err)

	assert.Error(t, c.WriteTensor(ro, []byte{0, 0}))

	buf, err := c.ReadTensor(ctx, ro)
	require.NoError(t, err)
	assert.Len(t, buf, 2)

	ro.Destroy()

	_, err = c.ReadTensor(ctx, ro)
	assert.ErrorIs(t, err, errDestroyedTensor)
}
