package cpu

import (
	"errors"
	"fmt"

	"github.com/example/go-nnconform/internal/runtime/tensor"
)

// apply runs the float or integer variant of a data movement op, keeping the
// operand kind.
func apply(v value,
	ff func(*tensor.Tensor[float32]) (*tensor.Tensor[float32], error),
	fi func(*tensor.Tensor[int64]) (*tensor.Tensor[int64], error),
) ([]value, error) {
	if v.f != nil {
		out, err := ff(v.f)
		if err != nil {
			return nil, err
		}

		return []value{{dt: v.dt, f: out}}, nil
	}

	out, err := fi(v.i)
	if err != nil {
		return nil, err
	}

	return []value{{dt: v.dt, i: out}}, nil
}

func reshapeKernel(c *call) ([]value, error) {
	in, err := c.operand(0)
	if err != nil {
		return nil, err
	}

	shape, ok, err := c.int64sArg(1)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, errors.New("missing newShape")
	}

	return apply(in,
		func(t *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) { return t.Reshape(shape) },
		func(t *tensor.Tensor[int64]) (*tensor.Tensor[int64], error) { return t.Reshape(shape) })
}

type transposeOptions struct {
	Permutation []int `mapstructure:"permutation"`
}

func transposeKernel(c *call) ([]value, error) {
	in, err := c.operand(0)
	if err != nil {
		return nil, err
	}

	var opts transposeOptions
	if err := c.options(&opts); err != nil {
		return nil, err
	}

	perm := opts.Permutation
	if perm == nil {
		rank := len(in.shape())

		perm = make([]int, rank)
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}

	return apply(in,
		func(t *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) { return t.Permute(perm) },
		func(t *tensor.Tensor[int64]) (*tensor.Tensor[int64], error) { return t.Permute(perm) })
}

func concatKernel(c *call) ([]value, error) {
	inputs, err := c.operands(0)
	if err != nil {
		return nil, err
	}

	if len(inputs) == 0 {
		return nil, errors.New("concat requires at least one input")
	}

	axis, err := c.int64Arg(1, 0)
	if err != nil {
		return nil, err
	}

	dt := inputs[0].dt

	var (
		fs []*tensor.Tensor[float32]
		is []*tensor.Tensor[int64]
	)

	for k, in := range inputs {
		if in.dt != dt {
			return nil, fmt.Errorf("input %d kind %v differs from %v", k, in.dt, dt)
		}

		fs = append(fs, in.f)
		is = append(is, in.i)
	}

	if dt.IsFloat() {
		out, err := tensor.Concat(fs, int(axis))
		if err != nil {
			return nil, err
		}

		return []value{{dt: dt, f: out}}, nil
	}

	out, err := tensor.Concat(is, int(axis))
	if err != nil {
		return nil, err
	}

	return []value{{dt: dt, i: out}}, nil
}

func expandKernel(c *call) ([]value, error) {
	in, err := c.operand(0)
	if err != nil {
		return nil, err
	}

	shape, ok, err := c.int64sArg(1)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, errors.New("missing newShape")
	}

	return apply(in,
		func(t *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) { return t.Expand(shape) },
		func(t *tensor.Tensor[int64]) (*tensor.Tensor[int64], error) { return t.Expand(shape) })
}

func sliceKernel(c *call) ([]value, error) {
	in, err := c.operand(0)
	if err != nil {
		return nil, err
	}

	starts, okStarts, err := c.int64sArg(1)
	if err != nil {
		return nil, err
	}

	sizes, okSizes, err := c.int64sArg(2)
	if err != nil {
		return nil, err
	}

	if !okStarts || !okSizes {
		return nil, errors.New("slice requires starts and sizes")
	}

	return apply(in,
		func(t *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) { return t.Slice(starts, sizes) },
		func(t *tensor.Tensor[int64]) (*tensor.Tensor[int64], error) { return t.Slice(starts, sizes) })
}
