package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-nnconform/internal/datatype"
)

func TestEncodeFloat32LittleEndian(t *testing.T) {
	buf, err := Encode(datatype.Float32, 2, Floats(1, -2))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xc0}, buf)
}

func TestEncode64BitIntegersAreExact(t *testing.T) {
	buf, err := Encode(datatype.Int64, 2, ArrayData("9007199254740993", "-9223372036854775808"))
	require.NoError(t, err)

	got, err := Elements(datatype.Int64, buf, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), int64(got[0]))
	assert.Equal(t, int64(math.MinInt64), int64(got[1]))

	buf, err = Encode(datatype.Uint64, 1, ArrayData("18446744073709551615"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, buf)
}

func TestEncodeIntegerWrapAndTruncate(t *testing.T) {
	buf, err := Encode(datatype.Int8, 5, ArrayData("-1", "128", "1.9", "-1.9", "255"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0x80, 0x01, 0xff, 0xff}, buf)

	buf, err = Encode(datatype.Uint32, 1, ArrayData("-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, buf)
}

func TestEncodeScalarBroadcast(t *testing.T) {
	buf, err := Encode(datatype.Uint8, 3, ScalarData("7"))
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7, 7}, buf)
}

func TestEncodeLengthMismatch(t *testing.T) {
	_, err := Encode(datatype.Float32, 3, Floats(1, 2))
	require.Error(t, err)
}

func TestEncodeUnsupportedKind(t *testing.T) {
	_, err := Encode(datatype.Invalid, 1, Floats(1))
	require.ErrorIs(t, err, datatype.ErrUnsupportedDataType)

	_, err = Elements(datatype.DataType(99), []byte{0}, 1)
	require.ErrorIs(t, err, datatype.ErrUnsupportedDataType)
}

func TestFloat16Encoding(t *testing.T) {
	tests := []struct {
		in   float32
		want uint16
	}{
		{1, 0x3c00},
		{-2, 0xc000},
		{65504, 0x7bff},
		{float32(math.Inf(1)), 0x7c00},
		{5.9604645e-08, 0x0001},
		{2049, 0x6800},
		{2051, 0x6802},
		{0.1, 0x2e66},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, Float16Bits(tt.in), "Float16Bits(%v)", tt.in)
	}

	assert.True(t, math.IsNaN(float64(Float16Value(0x7e00))))
	assert.Equal(t, float32(5.9604645e-08), Float16Value(0x0001))
	assert.True(t, math.Signbit(float64(Float16Value(0x8000))))
}

func TestFloat16RoundTripWithinOneULP(t *testing.T) {
	values := []float64{0.1, -3.14159, 1e-5, 12345.678, -0.000123, 0.333333}

	for _, v := range values {
		buf, err := Encode(datatype.Float16, 1, Floats(v))
		require.NoError(t, err)

		bits, err := Elements(datatype.Float16, buf, 1)
		require.NoError(t, err)

		decoded := Float16Value(uint16(bits[0]))
		again := Float16Bits(decoded)
		assert.Equal(t, uint16(bits[0]), again, "second encode of %v must be idempotent", v)

		assert.LessOrEqual(t, math.Abs(float64(decoded)-v), half16ULP(v), "decoded %v from %v", decoded, v)
	}
}

// half16ULP is the spacing of binary16 values around v, floored at the
// smallest subnormal.
func half16ULP(v float64) float64 {
	_, exp := math.Frexp(v)

	return math.Ldexp(1, max(exp-11, -24))
}

func TestPacked4Bit(t *testing.T) {
	got, err := Elements(datatype.Uint4, []byte{0x21}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, got)

	got, err = Elements(datatype.Int4, []byte{0xa9}, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-7), int64(got[0]))
	assert.Equal(t, int64(-6), int64(got[1]))

	buf, err := Encode(datatype.Int4, 2, Ints(-7, -6))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa9}, buf)
}

func TestPacked4BitRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 8} {
		values := make([]int64, n)
		for i := range values {
			values[i] = int64(i%16) - 8
		}

		buf, err := Encode(datatype.Int4, n, Ints(values...))
		require.NoError(t, err)
		require.Len(t, buf, (n+1)/2)

		got := Unpack4(buf, n, true)
		for i, v := range values {
			assert.Equal(t, int8(v), got[i], "n=%d element %d", n, i)
		}

		if n%2 == 1 {
			assert.Zero(t, buf[len(buf)-1]&0xf0, "odd count leaves the final high nibble empty")
		}
	}
}

func TestPack4OddCount(t *testing.T) {
	buf, err := Encode(datatype.Uint4, 3, Ints(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x21, 0x03}, buf)
}

func TestIntegerRoundTripExact(t *testing.T) {
	kinds := []datatype.DataType{
		datatype.Int64, datatype.Uint64, datatype.Int32, datatype.Uint32,
		datatype.Int8, datatype.Uint8,
	}

	for _, dt := range kinds {
		in := Ints(0, 1, 5, 100)
		if dt.Signed() {
			in = Ints(-100, -1, 0, 1, 100)
		}

		buf, err := Encode(dt, in.Len(), in)
		require.NoError(t, err)

		bits, err := Elements(dt, buf, in.Len())
		require.NoError(t, err)

		for i, b := range bits {
			assert.Equal(t, string(in.Values[i]), FormatElement(dt, b), "%v element %d", dt, i)
		}
	}
}

func TestConvert(t *testing.T) {
	buf, err := Encode(datatype.Float16, 2, Floats(0.5, -1.25))
	require.NoError(t, err)

	out, err := Convert(buf, datatype.Float16, datatype.Float32, 2)
	require.NoError(t, err)

	bits, err := Elements(datatype.Float32, out, 2)
	require.NoError(t, err)
	assert.Equal(t, float64(0.5), ElementFloat(datatype.Float32, bits[0]))
	assert.Equal(t, float64(-1.25), ElementFloat(datatype.Float32, bits[1]))

	buf, err = Encode(datatype.Int32, 2, Ints(-3, 300))
	require.NoError(t, err)

	out, err = Convert(buf, datatype.Int32, datatype.Int8, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfd, 0x2c}, out)
}

func TestNumberParsing(t *testing.T) {
	f, err := Number("NaN").Float64()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f))

	f, err = Number("-Infinity").Float64()
	require.NoError(t, err)
	assert.True(t, math.IsInf(f, -1))

	v, err := Number("1e3").BigInt()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.Int64())

	_, err = Number("abc").Float64()
	require.Error(t, err)
}
