// Package codec converts fixture literals to and from the little-endian
// buffers exchanged with a graph runtime.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/x448/float16"

	"github.com/example/go-nnconform/internal/datatype"
)

// Encode produces the buffer for count elements of kind dt.
func Encode(dt datatype.DataType, count int, data Data) ([]byte, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("codec: encode %v: %w", dt, datatype.ErrUnsupportedDataType)
	}

	values, err := data.Expand(count)
	if err != nil {
		return nil, err
	}

	bits := make([]uint64, len(values))
	for i, v := range values {
		b, err := ElementBits(dt, v)
		if err != nil {
			return nil, fmt.Errorf("codec: element %d: %w", i, err)
		}

		bits[i] = b
	}

	return Pack(dt, bits)
}

// Pack lays out per-element bit patterns in the buffer format of dt.
func Pack(dt datatype.DataType, bits []uint64) ([]byte, error) {
	if dt.Packed() {
		nibbles := make([]byte, len(bits))
		for i, b := range bits {
			nibbles[i] = byte(b & 0xF)
		}

		return Pack4(nibbles), nil
	}

	width := dt.Bits() / 8
	if width == 0 {
		return nil, fmt.Errorf("codec: pack %v: %w", dt, datatype.ErrUnsupportedDataType)
	}

	buf := make([]byte, len(bits)*width)
	for i, b := range bits {
		off := i * width
		switch width {
		case 1:
			buf[off] = byte(b)
		case 2:
			binary.LittleEndian.PutUint16(buf[off:], uint16(b))
		case 4:
			binary.LittleEndian.PutUint32(buf[off:], uint32(b))
		case 8:
			binary.LittleEndian.PutUint64(buf[off:], b)
		}
	}

	return buf, nil
}

// Elements returns the canonical bit pattern of each of the first count
// elements in buf. Floats keep their raw encoding, signed integers are
// sign-extended to 64 bits and unsigned integers are zero-extended.
func Elements(dt datatype.DataType, buf []byte, count int) ([]uint64, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("codec: decode %v: %w", dt, datatype.ErrUnsupportedDataType)
	}

	if need := dt.ByteLength(count); len(buf) < need {
		return nil, fmt.Errorf("codec: %v buffer holds %d bytes, need %d for %d elements", dt, len(buf), need, count)
	}

	out := make([]uint64, count)

	if dt.Packed() {
		for i, v := range Unpack4(buf, count, dt.Signed()) {
			out[i] = uint64(int64(v))
		}

		return out, nil
	}

	width := dt.Bits() / 8
	for i := range out {
		off := i * width

		var raw uint64
		switch width {
		case 1:
			raw = uint64(buf[off])
		case 2:
			raw = uint64(binary.LittleEndian.Uint16(buf[off:]))
		case 4:
			raw = uint64(binary.LittleEndian.Uint32(buf[off:]))
		case 8:
			raw = binary.LittleEndian.Uint64(buf[off:])
		}

		if dt.IsInteger() && dt.Signed() {
			raw = signExtend(raw, dt.Bits())
		}

		out[i] = raw
	}

	return out, nil
}

// ElementBits encodes a single literal as the canonical bit pattern of dt.
func ElementBits(dt datatype.DataType, n Number) (uint64, error) {
	switch dt {
	case datatype.Float32:
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}

		return uint64(math.Float32bits(float32(f))), nil
	case datatype.Float16:
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}

		return uint64(Float16Bits(float32(f))), nil
	case datatype.Int64, datatype.Uint64, datatype.Int32, datatype.Uint32,
		datatype.Int8, datatype.Uint8, datatype.Int4, datatype.Uint4:
		v, err := n.BigInt()
		if err != nil {
			return 0, err
		}

		raw := wrap(v, dt.Bits())
		if dt.Signed() {
			raw = signExtend(raw, dt.Bits())
		}

		return raw, nil
	default:
		return 0, fmt.Errorf("codec: %v: %w", dt, datatype.ErrUnsupportedDataType)
	}
}

// FormatElement renders a canonical bit pattern as a decimal literal.
func FormatElement(dt datatype.DataType, bits uint64) string {
	switch {
	case dt == datatype.Float32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(bits))), 'g', -1, 32)
	case dt == datatype.Float16:
		return strconv.FormatFloat(float64(Float16Value(uint16(bits))), 'g', -1, 32)
	case dt.IsInteger() && dt.Signed():
		return strconv.FormatInt(int64(bits), 10)
	default:
		return strconv.FormatUint(bits, 10)
	}
}

// ElementFloat returns the numeric value of a canonical bit pattern.
func ElementFloat(dt datatype.DataType, bits uint64) float64 {
	switch {
	case dt == datatype.Float32:
		return float64(math.Float32frombits(uint32(bits)))
	case dt == datatype.Float16:
		return float64(Float16Value(uint16(bits)))
	case dt.IsInteger() && dt.Signed():
		return float64(int64(bits))
	default:
		return float64(bits)
	}
}

// Convert re-encodes count elements of buf from one kind to another using
// the same rounding and wrapping rules as Encode.
func Convert(buf []byte, from, to datatype.DataType, count int) ([]byte, error) {
	if from == to {
		if need := from.ByteLength(count); len(buf) >= need {
			return append([]byte(nil), buf[:need]...), nil
		}
	}

	src, err := Elements(from, buf, count)
	if err != nil {
		return nil, err
	}

	dst := make([]uint64, count)
	for i, b := range src {
		v, err := ElementBits(to, Number(FormatElement(from, b)))
		if err != nil {
			return nil, fmt.Errorf("codec: convert element %d from %v to %v: %w", i, from, to, err)
		}

		dst[i] = v
	}

	return Pack(to, dst)
}

// Float16Bits rounds f to the nearest binary16 value, ties to even.
func Float16Bits(f float32) uint16 {
	return float16.Fromfloat32(f).Bits()
}

// Float16Value decodes a binary16 bit pattern, including subnormals,
// infinities and NaN.
func Float16Value(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}

func wrap(v *big.Int, bits int) uint64 {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	r := new(big.Int).Mod(v, mod)

	return r.Uint64()
}

func signExtend(raw uint64, bits int) uint64 {
	if bits >= 64 {
		return raw
	}

	shift := uint(64 - bits)

	return uint64(int64(raw<<shift) >> shift)
}
