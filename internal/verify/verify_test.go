package verify

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-nnconform/internal/codec"
	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/graph"
	"github.com/example/go-nnconform/internal/tolerance"
)

func resource(name string, dt datatype.DataType, data codec.Data, shape ...int64) graph.Resource {
	if shape == nil {
		shape = []int64{}
	}

	return graph.Resource{Name: name, Data: data, Descriptor: graph.Descriptor{DataType: dt, Shape: shape}}
}

func float32Buf(values ...float32) []byte {
	bits := make([]uint64, len(values))
	for i, v := range values {
		bits[i] = uint64(math.Float32bits(v))
	}

	buf, _ := codec.Pack(datatype.Float32, bits)

	return buf
}

func ulpSpec(v float64) tolerance.Spec {
	return tolerance.Spec{Metric: tolerance.ULP, Value: v}
}

func TestCheckULP(t *testing.T) {
	exp := resource("y", datatype.Float32, codec.Floats(1, 2), 2)
	g := &graph.Graph{ExpectedOutputs: []graph.Resource{exp}}

	next := math.Nextafter32(math.Nextafter32(2, 3), 3)

	v := &Verifier{}
	require.NoError(t, v.Check(ulpSpec(0), []string{"add"}, Outputs{"y": float32Buf(1, 2)}, g))
	require.NoError(t, v.Check(ulpSpec(2), []string{"add"}, Outputs{"y": float32Buf(1, next)}, g))

	err := v.Check(ulpSpec(1), []string{"add"}, Outputs{"y": float32Buf(1, next)}, g)
	require.ErrorIs(t, err, ErrAssertionMismatch)

	var me *MismatchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 1, me.Index)
	assert.Equal(t, "y", me.Output)
	assert.Equal(t, "2", me.Expected)
	assert.InDelta(t, 2.0, me.Distance, 0)
	assert.Contains(t, err.Error(), "[add]")
}

func TestCheckFloat16SignedZero(t *testing.T) {
	exp := resource("y", datatype.Float16, codec.Floats(0, 1), 2)

	buf, err := codec.Pack(datatype.Float16, []uint64{0x8000, uint64(codec.Float16Bits(1))})
	require.NoError(t, err)

	v := &Verifier{}
	assert.NoError(t, v.CheckOutput(ulpSpec(0), []string{"mul"}, exp, buf))
}

func TestCheckATOL(t *testing.T) {
	exp := resource("y", datatype.Float32, codec.Floats(1, 2), 2)
	spec := tolerance.Spec{Metric: tolerance.ATOL, Value: 0.01}

	v := &Verifier{}
	assert.NoError(t, v.CheckOutput(spec, nil, exp, float32Buf(1.005, 1.995)))
	assert.ErrorIs(t, v.CheckOutput(spec, nil, exp, float32Buf(1, 2.5)), ErrAssertionMismatch)
}

func TestCheckNaN(t *testing.T) {
	nan := float32(math.NaN())
	exp := resource("y", datatype.Float32, codec.ArrayData("NaN", "1"), 2)

	v := &Verifier{}
	assert.NoError(t, v.CheckOutput(ulpSpec(0), nil, exp, float32Buf(nan, 1)))
	assert.ErrorIs(t, v.CheckOutput(ulpSpec(1e9), nil, exp, float32Buf(0, 1)), ErrAssertionMismatch)
}

func TestCheckScalarClampsToCap(t *testing.T) {
	const count = 10000

	exp := resource("y", datatype.Float32, codec.ScalarData("3"), count)

	values := make([]float32, count)
	for i := range values {
		values[i] = 3
	}

	// Beyond the cap: ignored.
	values[5000] = 99

	v := &Verifier{}
	require.NoError(t, v.CheckOutput(ulpSpec(0), nil, exp, float32Buf(values...)))

	// Only the capped prefix needs to be present.
	require.NoError(t, v.CheckOutput(ulpSpec(0), nil, exp, float32Buf(values[:DefaultMaxValidated]...)))

	values[10] = 99
	err := v.CheckOutput(ulpSpec(0), nil, exp, float32Buf(values...))

	var me *MismatchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 10, me.Index)

	small := &Verifier{MaxValidated: 5}
	assert.NoError(t, small.CheckOutput(ulpSpec(0), nil, exp, float32Buf(values...)))
}

func TestCheckPackedInt4(t *testing.T) {
	exp := resource("y", datatype.Int4, codec.Ints(-7, -6), 2)

	v := &Verifier{}
	assert.NoError(t, v.CheckOutput(ulpSpec(0), nil, exp, []byte{0xA9}))

	err := v.CheckOutput(ulpSpec(0), nil, exp, []byte{0xB9})

	var me *MismatchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "-5", me.Actual)
	assert.Equal(t, "-6", me.Expected)
}

func TestCheckLengthMismatch(t *testing.T) {
	exp := resource("y", datatype.Float32, codec.Floats(1, 2, 3), 3)

	v := &Verifier{}
	err := v.CheckOutput(ulpSpec(10), nil, exp, float32Buf(1, 2))

	var me *MismatchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, -1, me.Index)
	assert.ErrorIs(t, err, ErrAssertionMismatch)
}

func TestCheckMissingOutput(t *testing.T) {
	g := &graph.Graph{ExpectedOutputs: []graph.Resource{resource("y", datatype.Int32, codec.Ints(1), 1)}}

	err := (&Verifier{}).Check(ulpSpec(0), []string{"relu"}, Outputs{}, g)
	assert.ErrorIs(t, err, ErrAssertionMismatch)
	assert.ErrorContains(t, err, "no result")
}

func TestCheckIntegerDistance(t *testing.T) {
	exp := resource("y", datatype.Int64, codec.ArrayData("9223372036854775807"), 1)

	buf, err := codec.Encode(datatype.Int64, 1, codec.ArrayData("9223372036854775805"))
	require.NoError(t, err)

	v := &Verifier{}
	assert.NoError(t, v.CheckOutput(ulpSpec(2), nil, exp, buf))
	assert.ErrorIs(t, v.CheckOutput(ulpSpec(1), nil, exp, buf), ErrAssertionMismatch)
}
