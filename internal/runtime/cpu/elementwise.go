package cpu

import (
	"fmt"
	"math"

	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/runtime/ops"
	"github.com/example/go-nnconform/internal/runtime/tensor"
)

type binaryFunc struct {
	f func(x, y float32) float32
	i func(dt datatype.DataType, x, y int64) int64
}

var binaryOps = map[string]binaryFunc{
	"add": {
		f: func(x, y float32) float32 { return x + y },
		i: func(_ datatype.DataType, x, y int64) int64 { return x + y },
	},
	"sub": {
		f: func(x, y float32) float32 { return x - y },
		i: func(_ datatype.DataType, x, y int64) int64 { return x - y },
	},
	"mul": {
		f: func(x, y float32) float32 { return x * y },
		i: func(_ datatype.DataType, x, y int64) int64 { return x * y },
	},
	"div": {
		f: func(x, y float32) float32 { return x / y },
		i: func(dt datatype.DataType, x, y int64) int64 {
			if y == 0 {
				return 0
			}

			if dt == datatype.Uint64 {
				return int64(uint64(x) / uint64(y))
			}

			return x / y
		},
	},
	"max": {
		f: func(x, y float32) float32 { return max(x, y) },
		i: func(dt datatype.DataType, x, y int64) int64 {
			if compareInts(dt, x, y) >= 0 {
				return x
			}

			return y
		},
	},
	"min": {
		f: func(x, y float32) float32 { return min(x, y) },
		i: func(dt datatype.DataType, x, y int64) int64 {
			if compareInts(dt, x, y) <= 0 {
				return x
			}

			return y
		},
	},
}

// compareOps map a three-way comparison result to the predicate.
var compareOps = map[string]func(cmp int) bool{
	"equal":          func(c int) bool { return c == 0 },
	"notEqual":       func(c int) bool { return c != 0 },
	"greater":        func(c int) bool { return c > 0 },
	"greaterOrEqual": func(c int) bool { return c >= 0 },
	"lesser":         func(c int) bool { return c < 0 },
	"lesserOrEqual":  func(c int) bool { return c <= 0 },
}

func compareInts(dt datatype.DataType, x, y int64) int {
	if dt == datatype.Uint64 {
		switch ux, uy := uint64(x), uint64(y); {
		case ux < uy:
			return -1
		case ux > uy:
			return 1
		}

		return 0
	}

	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}

	return 0
}

func binaryPair(c *call) (value, value, error) {
	a, err := c.operand(0)
	if err != nil {
		return value{}, value{}, err
	}

	b, err := c.operand(1)
	if err != nil {
		return value{}, value{}, err
	}

	if a.dt != b.dt {
		return value{}, value{}, fmt.Errorf("operand kinds differ: %v and %v", a.dt, b.dt)
	}

	return a, b, nil
}

func binaryKernel(op string, fn binaryFunc) kernel {
	return func(c *call) ([]value, error) {
		a, b, err := binaryPair(c)
		if err != nil {
			return nil, err
		}

		if a.dt.IsFloat() {
			out, err := tensor.Binary(a.f, b.f, fn.f, op)
			if err != nil {
				return nil, err
			}

			return []value{floatValue(a.dt, out)}, nil
		}

		out, err := tensor.Binary(a.i, b.i, func(x, y int64) int64 { return fn.i(a.dt, x, y) }, op)
		if err != nil {
			return nil, err
		}

		return []value{intValue(a.dt, out)}, nil
	}
}

func compareKernel(op string) kernel {
	pred := compareOps[op]

	return func(c *call) ([]value, error) {
		a, b, err := binaryPair(c)
		if err != nil {
			return nil, err
		}

		var out *tensor.Tensor[int64]

		if a.dt.IsFloat() {
			out, err = tensor.Binary(a.f, b.f, func(x, y float32) int64 {
				// NaN compares unequal to everything.
				if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) {
					return boolInt(op == "notEqual")
				}

				return boolInt(pred(compareFloats(x, y)))
			}, op)
		} else {
			out, err = tensor.Binary(a.i, b.i, func(x, y int64) int64 {
				return boolInt(pred(compareInts(a.dt, x, y)))
			}, op)
		}

		if err != nil {
			return nil, err
		}

		return []value{intValue(datatype.Uint8, out)}, nil
	}
}

func compareFloats(x, y float32) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}

	return 0
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}

func logicalNotKernel(c *call) ([]value, error) {
	in, err := c.operand(0)
	if err != nil {
		return nil, err
	}

	out := in.i.Map(func(x int64) int64 { return boolInt(x == 0) })

	return []value{intValue(datatype.Uint8, out)}, nil
}

// unaryOptions are the option keys of the parameterised activations.
type unaryOptions struct {
	Alpha    float64 `mapstructure:"alpha"`
	Beta     float64 `mapstructure:"beta"`
	MinValue float64 `mapstructure:"minValue"`
	MaxValue float64 `mapstructure:"maxValue"`
}

func unaryKernel(op string) kernel {
	return func(c *call) ([]value, error) {
		in, err := c.operand(0)
		if err != nil {
			return nil, err
		}

		d := ops.DefaultUnaryParams(op)
		opts := unaryOptions{Alpha: d.Alpha, Beta: d.Beta, MinValue: d.Min, MaxValue: d.Max}

		if err := c.options(&opts); err != nil {
			return nil, err
		}

		p := ops.UnaryParams{Alpha: opts.Alpha, Beta: opts.Beta, Min: opts.MinValue, Max: opts.MaxValue}

		if !in.dt.IsFloat() {
			return intUnary(op, in, p)
		}

		fn, err := ops.Unary(op, p)
		if err != nil {
			return nil, err
		}

		return []value{floatValue(in.dt, in.f.Map(fn))}, nil
	}
}

func intUnary(op string, in value, p ops.UnaryParams) ([]value, error) {
	var fn func(int64) int64

	switch op {
	case "relu":
		fn = func(x int64) int64 {
			if in.dt != datatype.Uint64 && x < 0 {
				return 0
			}

			return x
		}
	case "clamp":
		if p.Min > p.Max {
			return nil, fmt.Errorf("minValue %v exceeds maxValue %v", p.Min, p.Max)
		}

		fn = func(x int64) int64 {
			f := float64(x)
			if in.dt == datatype.Uint64 {
				f = float64(uint64(x))
			}

			switch {
			case f < p.Min:
				return int64(math.Ceil(p.Min))
			case f > p.Max:
				return int64(math.Floor(p.Max))
			}

			return x
		}
	default:
		return nil, fmt.Errorf("%s does not accept %v", op, in.dt)
	}

	return []value{intValue(in.dt, in.i.Map(fn))}, nil
}

func identityKernel(c *call) ([]value, error) {
	in, err := c.operand(0)
	if err != nil {
		return nil, err
	}

	return []value{convert(in, in.dt)}, nil
}

func castKernel(c *call) ([]value, error) {
	in, err := c.operand(0)
	if err != nil {
		return nil, err
	}

	name, err := c.stringArg(1)
	if err != nil {
		return nil, err
	}

	to, err := datatype.Parse(name)
	if err != nil {
		return nil, err
	}

	return []value{convert(in, to)}, nil
}
