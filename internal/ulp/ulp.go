// Package ulp measures the distance between two numbers in units of the
// last place of their storage kind.
package ulp

import (
	"fmt"
	"math"
	"math/big"

	"github.com/example/go-nnconform/internal/codec"
	"github.com/example/go-nnconform/internal/datatype"
)

// Distance returns the ULP distance between two canonical bit patterns of
// kind dt (see codec.Elements). The result is symmetric and zero for
// identical inputs.
func Distance(a, b uint64, dt datatype.DataType) (uint64, error) {
	switch dt {
	case datatype.Float32:
		return float32Distance(uint32(a), uint32(b)), nil
	case datatype.Float16:
		return float16Distance(uint16(a), uint16(b)), nil
	case datatype.Int64:
		return bigDistance(big.NewInt(int64(a)), big.NewInt(int64(b))), nil
	case datatype.Uint64:
		return bigDistance(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b)), nil
	case datatype.Int32, datatype.Uint32, datatype.Int8, datatype.Uint8, datatype.Int4, datatype.Uint4:
		return absDiff(int64(a), int64(b)), nil
	default:
		return 0, fmt.Errorf("ulp: %v: %w", dt, datatype.ErrUnsupportedDataType)
	}
}

// Between encodes expected as kind dt and measures its distance to the
// already-encoded actual value.
func Between(actual uint64, expected codec.Number, dt datatype.DataType) (uint64, error) {
	b, err := codec.ElementBits(dt, expected)
	if err != nil {
		return 0, fmt.Errorf("ulp: encode expected %q: %w", expected, err)
	}

	return Distance(actual, b, dt)
}

// float32Distance orders floats by their magnitude bits, negated for
// negative values, so adjacent representable values are one apart.
func float32Distance(a, b uint32) uint64 {
	return absDiff(orderedFloat32(a), orderedFloat32(b))
}

func orderedFloat32(bits uint32) int64 {
	v := math.Float32frombits(bits)
	mag := int64(bits & 0x7fffffff)
	if v < 0 {
		return -mag
	}

	return mag
}

// float16Distance treats +0 and -0 as equal and otherwise compares raw
// bit patterns.
func float16Distance(a, b uint16) uint64 {
	if a&0x7fff == 0 && b&0x7fff == 0 {
		return 0
	}

	return absDiff(int64(a), int64(b))
}

func bigDistance(a, b *big.Int) uint64 {
	d := new(big.Int).Sub(a, b)

	return d.Abs(d).Uint64()
}

func absDiff(a, b int64) uint64 {
	if a > b {
		return uint64(a - b)
	}

	return uint64(b - a)
}
