package cpu

import (
	"fmt"
	"math"
	"math/big"

	"github.com/example/go-nnconform/internal/codec"
	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/nnapi"
	"github.com/example/go-nnconform/internal/runtime/ops"
	"github.com/example/go-nnconform/internal/runtime/tensor"
)

// value is an evaluated operand. Float kinds live in f, integer kinds in i.
// float16 data is always held at half precision.
type value struct {
	dt datatype.DataType
	f  *tensor.Tensor[float32]
	i  *tensor.Tensor[int64]
}

func floatValue(dt datatype.DataType, t *tensor.Tensor[float32]) value {
	if dt == datatype.Float16 {
		ops.RoundTensor(t, ops.Float16)
	}

	return value{dt: dt, f: t}
}

func intValue(dt datatype.DataType, t *tensor.Tensor[int64]) value {
	data := t.RawData()
	for k, v := range data {
		data[k] = wrapInt(dt, v)
	}

	return value{dt: dt, i: t}
}

func (v value) shape() []int64 {
	if v.f != nil {
		return v.f.Shape()
	}

	return v.i.Shape()
}

func (v value) descriptor() nnapi.OperandDescriptor {
	return nnapi.OperandDescriptor{DataType: v.dt, Shape: v.shape()}
}

// zeroValue is a placeholder used to infer descriptors at build time.
func zeroValue(desc nnapi.OperandDescriptor) (value, error) {
	if desc.DataType.IsFloat() {
		t, err := tensor.Zeros[float32](desc.Shape)
		if err != nil {
			return value{}, err
		}

		return value{dt: desc.DataType, f: t}, nil
	}

	t, err := tensor.Zeros[int64](desc.Shape)
	if err != nil {
		return value{}, err
	}

	return value{dt: desc.DataType, i: t}, nil
}

// decodeValue reads a little-endian buffer into a value.
func decodeValue(desc nnapi.OperandDescriptor, buf []byte) (value, error) {
	count := desc.ElementCount()

	bits, err := codec.Elements(desc.DataType, buf, count)
	if err != nil {
		return value{}, err
	}

	if desc.DataType.IsFloat() {
		data := make([]float32, count)
		for k, b := range bits {
			data[k] = float32(codec.ElementFloat(desc.DataType, b))
		}

		t, err := tensor.New(data, desc.Shape)
		if err != nil {
			return value{}, err
		}

		return value{dt: desc.DataType, f: t}, nil
	}

	data := make([]int64, count)
	for k, b := range bits {
		data[k] = int64(b)
	}

	t, err := tensor.New(data, desc.Shape)
	if err != nil {
		return value{}, err
	}

	return value{dt: desc.DataType, i: t}, nil
}

// encode writes the value in its kind's little-endian layout.
func (v value) encode() ([]byte, error) {
	var bits []uint64

	switch {
	case v.dt == datatype.Float32:
		for _, x := range v.f.RawData() {
			bits = append(bits, uint64(math.Float32bits(x)))
		}
	case v.dt == datatype.Float16:
		for _, x := range v.f.RawData() {
			bits = append(bits, uint64(codec.Float16Bits(x)))
		}
	case v.dt.IsInteger():
		for _, x := range v.i.RawData() {
			bits = append(bits, uint64(x))
		}
	default:
		return nil, fmt.Errorf("cpu: encode %v: %w", v.dt, datatype.ErrUnsupportedDataType)
	}

	return codec.Pack(v.dt, bits)
}

// wrapInt reduces v modulo 2^bits of dt, sign-extending signed kinds.
func wrapInt(dt datatype.DataType, v int64) int64 {
	bits := dt.Bits()
	if bits >= 64 || bits == 0 {
		return v
	}

	mask := uint64(1)<<uint(bits) - 1
	u := uint64(v) & mask

	if dt.Signed() && u&(1<<uint(bits-1)) != 0 {
		u |= ^mask
	}

	return int64(u)
}

// intToFloat converts a canonical integer of kind dt.
func intToFloat(dt datatype.DataType, v int64) float32 {
	if dt == datatype.Uint64 {
		return float32(uint64(v))
	}

	return float32(v)
}

// floatToInt truncates toward zero and wraps into dt. NaN becomes 0.
func floatToInt(dt datatype.DataType, f float32) int64 {
	x := float64(f)

	switch {
	case math.IsNaN(x):
		return 0
	case math.IsInf(x, 0):
		return 0
	case x > -(1<<63) && x < 1<<63:
		return wrapInt(dt, int64(x))
	}

	b, _ := big.NewFloat(math.Trunc(x)).Int(nil)
	mod := new(big.Int).Lsh(big.NewInt(1), 64)
	b.Mod(b, mod)

	return wrapInt(dt, int64(b.Uint64()))
}

// convert casts v to kind to.
func convert(v value, to datatype.DataType) value {
	switch {
	case v.dt.IsFloat() && to.IsFloat():
		return floatValue(to, v.f.Clone())
	case v.dt.IsFloat():
		return intValue(to, tensor.Convert(v.f, func(x float32) int64 { return floatToInt(to, x) }))
	case to.IsFloat():
		return floatValue(to, tensor.Convert(v.i, func(x int64) float32 { return intToFloat(v.dt, x) }))
	default:
		return intValue(to, v.i.Clone())
	}
}
