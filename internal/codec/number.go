package codec

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Number is a numeric literal kept in its textual form so that 64-bit
// integers never round-trip through float64.
type Number string

// Float64 parses n as a float. NaN and the infinities are accepted.
func (n Number) Float64() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return v, nil
		}

		return 0, fmt.Errorf("codec: parse number %q: %w", string(n), err)
	}

	return v, nil
}

// BigInt parses n as an integer. Fractional literals truncate toward zero.
func (n Number) BigInt() (*big.Int, error) {
	s := strings.TrimSpace(string(n))
	if v, ok := new(big.Int).SetString(s, 10); ok {
		return v, nil
	}

	f, _, err := big.ParseFloat(s, 10, 256, big.ToZero)
	if err != nil {
		return nil, fmt.Errorf("codec: parse integer %q: %w", string(n), err)
	}

	if f.IsInf() {
		return nil, fmt.Errorf("codec: parse integer %q: infinite value", string(n))
	}

	v, _ := f.Int(nil)

	return v, nil
}

func (n Number) String() string {
	return string(n)
}

// FloatNumber formats f as a Number.
func FloatNumber(f float64) Number {
	return Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// IntNumber formats i as a Number.
func IntNumber(i int64) Number {
	return Number(strconv.FormatInt(i, 10))
}

// Data is tensor content as written in a fixture: either one scalar that
// fills every element, or one value per element.
type Data struct {
	Values []Number
	Scalar bool
}

// ScalarData returns a scalar payload.
func ScalarData(n Number) Data {
	return Data{Values: []Number{n}, Scalar: true}
}

// ArrayData returns an element-wise payload.
func ArrayData(values ...Number) Data {
	return Data{Values: values}
}

// Floats builds an element-wise payload from float values.
func Floats(values ...float64) Data {
	out := make([]Number, len(values))
	for i, v := range values {
		out[i] = FloatNumber(v)
	}

	return Data{Values: out}
}

// Ints builds an element-wise payload from integer values.
func Ints(values ...int64) Data {
	out := make([]Number, len(values))
	for i, v := range values {
		out[i] = IntNumber(v)
	}

	return Data{Values: out}
}

// Len returns the number of literal values.
func (d Data) Len() int {
	return len(d.Values)
}

// Expand returns count literals, repeating a scalar as needed.
func (d Data) Expand(count int) ([]Number, error) {
	if d.Scalar {
		if len(d.Values) != 1 {
			return nil, fmt.Errorf("codec: scalar data holds %d values", len(d.Values))
		}

		out := make([]Number, count)
		for i := range out {
			out[i] = d.Values[0]
		}

		return out, nil
	}

	if len(d.Values) != count {
		return nil, fmt.Errorf("codec: data holds %d values, descriptor expects %d", len(d.Values), count)
	}

	return d.Values, nil
}
