// Package datatype defines the numeric element kinds carried by graph
// operands and tensors.
package datatype

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnsupportedDataType reports a kind name or value outside the closed set.
var ErrUnsupportedDataType = errors.New("unsupported data type")

// DataType is a numeric element kind.
type DataType uint8

const (
	Invalid DataType = iota
	Float32
	Float16
	Int64
	Uint64
	Int32
	Uint32
	Int8
	Uint8
	Int4
	Uint4
)

var names = [...]string{
	Invalid: "invalid",
	Float32: "float32",
	Float16: "float16",
	Int64:   "int64",
	Uint64:  "uint64",
	Int32:   "int32",
	Uint32:  "uint32",
	Int8:    "int8",
	Uint8:   "uint8",
	Int4:    "int4",
	Uint4:   "uint4",
}

// All lists every supported kind in declaration order.
var All = []DataType{Float32, Float16, Int64, Uint64, Int32, Uint32, Int8, Uint8, Int4, Uint4}

// IntegerOrder is the widening order used when substituting integer kinds.
var IntegerOrder = []DataType{Uint4, Int4, Uint8, Int8, Uint32, Int32, Uint64, Int64}

// FloatOrder is the widening order used when substituting float kinds.
var FloatOrder = []DataType{Float16, Float32}

// Parse returns the kind with the given name.
func Parse(s string) (DataType, error) {
	name := strings.TrimSpace(s)
	for _, dt := range All {
		if names[dt] == name {
			return dt, nil
		}
	}

	return Invalid, fmt.Errorf("%w: %q", ErrUnsupportedDataType, s)
}

func (d DataType) String() string {
	if int(d) < len(names) {
		return names[d]
	}

	return fmt.Sprintf("DataType(%d)", uint8(d))
}

// Valid reports whether d is one of the supported kinds.
func (d DataType) Valid() bool {
	return d > Invalid && d <= Uint4
}

// Bits is the element width in bits.
func (d DataType) Bits() int {
	switch d {
	case Float32, Int32, Uint32:
		return 32
	case Float16:
		return 16
	case Int64, Uint64:
		return 64
	case Int8, Uint8:
		return 8
	case Int4, Uint4:
		return 4
	default:
		return 0
	}
}

// ByteLength returns the number of bytes needed to store count elements.
// Packed 4-bit kinds store two elements per byte.
func (d DataType) ByteLength(count int) int {
	if d.Packed() {
		return (count + 1) / 2
	}

	return count * d.Bits() / 8
}

func (d DataType) IsFloat() bool {
	return d == Float32 || d == Float16
}

func (d DataType) IsInteger() bool {
	return d.Valid() && !d.IsFloat()
}

// Signed reports whether values of d can be negative.
func (d DataType) Signed() bool {
	switch d {
	case Float32, Float16, Int64, Int32, Int8, Int4:
		return true
	default:
		return false
	}
}

// Packed reports whether d stores sub-byte elements.
func (d DataType) Packed() bool {
	return d == Int4 || d == Uint4
}

// Holds reports whether every value of src is exactly representable in d.
func (d DataType) Holds(src DataType) bool {
	if d == src {
		return true
	}

	switch {
	case src.IsFloat() && d.IsFloat():
		return d.Bits() > src.Bits()
	case src.IsInteger() && d.IsInteger():
		if src.Signed() && !d.Signed() {
			return false
		}

		return d.Bits() > src.Bits()
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d DataType) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDataType, uint8(d))
	}

	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DataType) UnmarshalText(text []byte) error {
	dt, err := Parse(string(text))
	if err != nil {
		return err
	}

	*d = dt

	return nil
}

// ParseList parses a list of kind names.
func ParseList(names []string) ([]DataType, error) {
	out := make([]DataType, 0, len(names))
	for _, n := range names {
		dt, err := Parse(n)
		if err != nil {
			return nil, err
		}

		out = append(out, dt)
	}

	return out, nil
}

// FindCompatible picks the narrowest kind from supported that can hold every
// value of dt, constrained by the kinds a cast accepts as input and produces
// as output. It returns Invalid and false when no such kind exists.
func FindCompatible(dt DataType, supported, castInputs, castOutputs []DataType) (DataType, bool) {
	if !slices.Contains(castInputs, dt) || !slices.Contains(castOutputs, dt) {
		return Invalid, false
	}

	order := IntegerOrder
	if dt.IsFloat() {
		order = FloatOrder
	}

	pos := slices.Index(order, dt)
	if pos < 0 {
		return Invalid, false
	}

	for _, candidate := range order[pos+1:] {
		if !slices.Contains(supported, candidate) || !candidate.Holds(dt) {
			continue
		}

		if !slices.Contains(castInputs, candidate) || !slices.Contains(castOutputs, candidate) {
			continue
		}

		return candidate, true
	}

	return Invalid, false
}
