package cpu

import (
	"math"

	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/runtime/tensor"
)

// reduction folds float values in float64 and integer values in int64.
// finish post-processes a float accumulator given the reduced count.
type reduction struct {
	floatOnly bool
	init      float64
	step      func(acc, v float64) float64
	finish    func(acc float64, count int64) float64
	intStep   func(dt datatype.DataType, acc, v int64) int64
}

var reductions = map[string]reduction{
	"reduceSum": {
		step:    func(acc, v float64) float64 { return acc + v },
		intStep: func(_ datatype.DataType, acc, v int64) int64 { return acc + v },
	},
	"reduceL1": {
		step: func(acc, v float64) float64 { return acc + math.Abs(v) },
		intStep: func(dt datatype.DataType, acc, v int64) int64 {
			if dt != datatype.Uint64 && v < 0 {
				v = -v
			}

			return acc + v
		},
	},
	"reduceSumSquare": {
		step:    func(acc, v float64) float64 { return acc + v*v },
		intStep: func(_ datatype.DataType, acc, v int64) int64 { return acc + v*v },
	},
	"reduceProduct": {
		init:    1,
		step:    func(acc, v float64) float64 { return acc * v },
		intStep: func(_ datatype.DataType, acc, v int64) int64 { return acc * v },
	},
	"reduceMax": {
		init: math.Inf(-1),
		step: math.Max,
		intStep: func(dt datatype.DataType, acc, v int64) int64 {
			if compareInts(dt, v, acc) > 0 {
				return v
			}

			return acc
		},
	},
	"reduceMin": {
		init: math.Inf(1),
		step: math.Min,
		intStep: func(dt datatype.DataType, acc, v int64) int64 {
			if compareInts(dt, v, acc) < 0 {
				return v
			}

			return acc
		},
	},
	"reduceMean": {
		floatOnly: true,
		step:      func(acc, v float64) float64 { return acc + v },
		finish:    func(acc float64, n int64) float64 { return acc / float64(n) },
	},
	"reduceL2": {
		floatOnly: true,
		step:      func(acc, v float64) float64 { return acc + v*v },
		finish:    func(acc float64, _ int64) float64 { return math.Sqrt(acc) },
	},
	"reduceLogSum": {
		floatOnly: true,
		step:      func(acc, v float64) float64 { return acc + v },
		finish:    func(acc float64, _ int64) float64 { return math.Log(acc) },
	},
	"reduceLogSumExp": {
		floatOnly: true,
		step:      func(acc, v float64) float64 { return acc + math.Exp(v) },
		finish:    func(acc float64, _ int64) float64 { return math.Log(acc) },
	},
}

type reduceOptions struct {
	Axes           []int `mapstructure:"axes"`
	KeepDimensions bool  `mapstructure:"keepDimensions"`
}

func reduceKernel(op string) kernel {
	r := reductions[op]

	return func(c *call) ([]value, error) {
		in, err := c.operand(0)
		if err != nil {
			return nil, err
		}

		var opts reduceOptions
		if err := c.options(&opts); err != nil {
			return nil, err
		}

		shape := in.shape()

		axes := opts.Axes
		if axes == nil {
			axes = tensor.AllAxes(len(shape))
		}

		if !in.dt.IsFloat() {
			out, err := tensor.Reduce(in.i, axes, opts.KeepDimensions, intInit(op, in.dt), func(acc, v int64) int64 {
				return r.intStep(in.dt, acc, v)
			})
			if err != nil {
				return nil, err
			}

			return []value{intValue(in.dt, out)}, nil
		}

		wide := tensor.Convert(in.f, func(x float32) float64 { return float64(x) })

		acc, err := tensor.Reduce(wide, axes, opts.KeepDimensions, r.init, r.step)
		if err != nil {
			return nil, err
		}

		count := tensor.ReducedCount(shape, axes)

		return []value{floatValue(in.dt, tensor.Convert(acc, func(x float64) float32 {
			if r.finish != nil {
				x = r.finish(x, count)
			}

			return float32(x)
		}))}, nil
	}
}

func intInit(op string, dt datatype.DataType) int64 {
	switch op {
	case "reduceProduct":
		return 1
	case "reduceMax":
		if dt == datatype.Uint64 {
			return 0
		}

		return math.MinInt64
	case "reduceMin":
		if dt == datatype.Uint64 {
			return -1
		}

		return math.MaxInt64
	}

	return 0
}
