package cpu

import (
	"errors"
	"fmt"

	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/nnapi"
	"github.com/example/go-nnconform/internal/runtime/ops"
	"github.com/example/go-nnconform/internal/runtime/tensor"
)

func roundFor(dt datatype.DataType) ops.Round {
	if dt == datatype.Float16 {
		return ops.Float16
	}

	return ops.Float32
}

type gemmOptions struct {
	C          nnapi.Operand `mapstructure:"c"`
	Alpha      float32       `mapstructure:"alpha"`
	Beta       float32       `mapstructure:"beta"`
	ATranspose bool          `mapstructure:"aTranspose"`
	BTranspose bool          `mapstructure:"bTranspose"`
}

func gemmKernel(c *call) ([]value, error) {
	a, b, err := binaryPair(c)
	if err != nil {
		return nil, err
	}

	d := ops.DefaultGemmParams()
	opts := gemmOptions{Alpha: d.Alpha, Beta: d.Beta}

	if err := c.options(&opts); err != nil {
		return nil, err
	}

	var ct *tensor.Tensor[float32]

	cv, ok, err := c.optional(opts.C)
	if err != nil {
		return nil, fmt.Errorf("c: %w", err)
	}

	if ok {
		ct = cv.f
	}

	out, err := ops.Gemm(a.f, b.f, ct, ops.GemmParams{
		Alpha:      opts.Alpha,
		Beta:       opts.Beta,
		ATranspose: opts.ATranspose,
		BTranspose: opts.BTranspose,
	})
	if err != nil {
		return nil, err
	}

	return []value{floatValue(a.dt, out)}, nil
}

func matmulKernel(c *call) ([]value, error) {
	a, b, err := binaryPair(c)
	if err != nil {
		return nil, err
	}

	out, err := tensor.MatMul(a.f, b.f)
	if err != nil {
		return nil, err
	}

	return []value{floatValue(a.dt, out)}, nil
}

func softmaxKernel(c *call) ([]value, error) {
	in, err := c.operand(0)
	if err != nil {
		return nil, err
	}

	axis, err := c.int64Arg(1, int64(len(in.shape())-1))
	if err != nil {
		return nil, err
	}

	out, err := tensor.Softmax(in.f, int(axis))
	if err != nil {
		return nil, err
	}

	return []value{floatValue(in.dt, out)}, nil
}

type conv2dOptions struct {
	Bias         nnapi.Operand `mapstructure:"bias"`
	Padding      []int64       `mapstructure:"padding"`
	Strides      []int64       `mapstructure:"strides"`
	Dilations    []int64       `mapstructure:"dilations"`
	Groups       int64         `mapstructure:"groups"`
	InputLayout  string        `mapstructure:"inputLayout"`
	FilterLayout string        `mapstructure:"filterLayout"`
}

func conv2dKernel(c *call) ([]value, error) {
	in, err := c.operand(0)
	if err != nil {
		return nil, err
	}

	filter, err := c.operand(1)
	if err != nil {
		return nil, err
	}

	p := ops.DefaultConv2DParams()
	opts := conv2dOptions{Groups: p.Groups, InputLayout: p.InputLayout, FilterLayout: p.FilterLayout}

	if err := c.options(&opts); err != nil {
		return nil, err
	}

	p.Groups = opts.Groups
	p.InputLayout = opts.InputLayout
	p.FilterLayout = opts.FilterLayout

	if err := fill(p.Padding[:], opts.Padding, "padding"); err != nil {
		return nil, err
	}

	if err := fill(p.Strides[:], opts.Strides, "strides"); err != nil {
		return nil, err
	}

	if err := fill(p.Dilations[:], opts.Dilations, "dilations"); err != nil {
		return nil, err
	}

	var bias *tensor.Tensor[float32]

	bv, ok, err := c.optional(opts.Bias)
	if err != nil {
		return nil, fmt.Errorf("bias: %w", err)
	}

	if ok {
		bias = bv.f
	}

	out, err := ops.Conv2D(in.f, filter.f, bias, p)
	if err != nil {
		return nil, err
	}

	return []value{floatValue(in.dt, out)}, nil
}

type poolOptions struct {
	WindowDimensions []int64 `mapstructure:"windowDimensions"`
	Padding          []int64 `mapstructure:"padding"`
	Strides          []int64 `mapstructure:"strides"`
	Dilations        []int64 `mapstructure:"dilations"`
	RoundingType     string  `mapstructure:"roundingType"`
	Layout           string  `mapstructure:"layout"`
}

func poolKernel(kind ops.PoolKind) kernel {
	return func(c *call) ([]value, error) {
		in, err := c.operand(0)
		if err != nil {
			return nil, err
		}

		p := ops.DefaultPool2DParams()
		opts := poolOptions{RoundingType: p.RoundingType, Layout: p.Layout}

		if err := c.options(&opts); err != nil {
			return nil, err
		}

		p.WindowDimensions = opts.WindowDimensions
		p.RoundingType = opts.RoundingType
		p.Layout = opts.Layout

		if err := fill(p.Padding[:], opts.Padding, "padding"); err != nil {
			return nil, err
		}

		if err := fill(p.Strides[:], opts.Strides, "strides"); err != nil {
			return nil, err
		}

		if err := fill(p.Dilations[:], opts.Dilations, "dilations"); err != nil {
			return nil, err
		}

		out, err := ops.Pool2D(kind, in.f, p)
		if err != nil {
			return nil, err
		}

		return []value{floatValue(in.dt, out)}, nil
	}
}

// fill copies an option list over its default; an absent list keeps dst.
func fill(dst, src []int64, name string) error {
	if src == nil {
		return nil
	}

	if len(src) != len(dst) {
		return fmt.Errorf("%s must have %d entries, got %v", name, len(dst), src)
	}

	copy(dst, src)

	return nil
}

type gruOptions struct {
	Bias               nnapi.Operand `mapstructure:"bias"`
	RecurrentBias      nnapi.Operand `mapstructure:"recurrentBias"`
	InitialHiddenState nnapi.Operand `mapstructure:"initialHiddenState"`
	ResetAfter         bool          `mapstructure:"resetAfter"`
	ReturnSequence     bool          `mapstructure:"returnSequence"`
	Direction          string        `mapstructure:"direction"`
	Layout             string        `mapstructure:"layout"`
	Activations        []string      `mapstructure:"activations"`
}

func gruKernel(c *call) ([]value, error) {
	var in ops.GRUOperands

	operands := []**tensor.Tensor[float32]{&in.Input, &in.Weight, &in.RecurrentWeight}

	var dt datatype.DataType

	for k, dst := range operands {
		v, err := c.operand(k)
		if err != nil {
			return nil, err
		}

		if k == 0 {
			dt = v.dt
		} else if v.dt != dt {
			return nil, fmt.Errorf("operand %d kind %v differs from input kind %v", k, v.dt, dt)
		}

		*dst = v.f
	}

	steps, err := c.int64Arg(3, 0)
	if err != nil {
		return nil, fmt.Errorf("steps: %w", err)
	}

	hiddenSize, err := c.int64Arg(4, 0)
	if err != nil {
		return nil, fmt.Errorf("hiddenSize: %w", err)
	}

	p := ops.DefaultGRUParams(steps, hiddenSize)
	opts := gruOptions{ResetAfter: p.ResetAfter, Direction: p.Direction, Layout: p.Layout}

	if err := c.options(&opts); err != nil {
		return nil, err
	}

	p.ResetAfter = opts.ResetAfter
	p.ReturnSequence = opts.ReturnSequence
	p.Direction = opts.Direction
	p.Layout = opts.Layout

	if len(opts.Activations) > 0 {
		if len(opts.Activations) != 2 {
			return nil, fmt.Errorf("activations must name 2 functions, got %v", opts.Activations)
		}

		for k, name := range opts.Activations {
			fn, err := ops.Unary(name, ops.DefaultUnaryParams(name))
			if err != nil {
				return nil, err
			}

			p.Activations[k] = fn
		}
	}

	optional := []struct {
		o   nnapi.Operand
		dst **tensor.Tensor[float32]
	}{
		{opts.Bias, &in.Bias},
		{opts.RecurrentBias, &in.RecurrentBias},
		{opts.InitialHiddenState, &in.InitialHidden},
	}

	for _, opt := range optional {
		v, ok, err := c.optional(opt.o)
		if err != nil {
			return nil, err
		}

		if ok {
			if v.dt != dt {
				return nil, errors.New("gru options must match the input kind")
			}

			*opt.dst = v.f
		}
	}

	outs, err := ops.GRU(in, p, roundFor(dt))
	if err != nil {
		return nil, err
	}

	results := make([]value, len(outs))
	for k, t := range outs {
		results[k] = value{dt: dt, f: t}
	}

	return results, nil
}
