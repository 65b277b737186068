package tensor

import (
	"errors"
	"fmt"
)

// Reduce folds the elements of x over axes, starting each output element at
// init. Only the listed axes are reduced; an empty list copies x. With
// keepDims the reduced dimensions stay in the result with size 1.
func Reduce[T Elem](x *Tensor[T], axes []int, keepDims bool, init T, fn func(acc, v T) T) (*Tensor[T], error) {
	if x == nil {
		return nil, errors.New("tensor: reduce on nil tensor")
	}

	rank := len(x.shape)
	reduced := make([]bool, rank)

	for _, a := range axes {
		d, err := normalizeDim(a, rank)
		if err != nil {
			return nil, fmt.Errorf("tensor: reduce: %w", err)
		}

		if reduced[d] {
			return nil, fmt.Errorf("tensor: reduce axis %d repeated", a)
		}

		reduced[d] = true
	}

	keptShape := make([]int64, rank)
	outShape := make([]int64, 0, rank)

	for d, size := range x.shape {
		keptShape[d] = size
		if reduced[d] {
			keptShape[d] = 1
			if keepDims {
				outShape = append(outShape, 1)
			}

			continue
		}

		outShape = append(outShape, size)
	}

	out, err := Full(outShape, init)
	if err != nil {
		return nil, err
	}

	srcStrides := computeStrides(x.shape)
	keptStrides := computeStrides(keptShape)
	coord := make([]int64, rank)

	for i, v := range x.data {
		linearToCoord(int64(i), x.shape, srcStrides, coord)

		var off int64
		for d, c := range coord {
			if !reduced[d] {
				off += c * keptStrides[d]
			}
		}

		out.data[off] = fn(out.data[off], v)
	}

	return out, nil
}

// AllAxes lists every dimension of a rank-r tensor.
func AllAxes(rank int) []int {
	axes := make([]int, rank)
	for i := range axes {
		axes[i] = i
	}

	return axes
}

// ReducedCount returns how many source elements fold into each output
// element of a reduction over axes.
func ReducedCount(shape []int64, axes []int) int64 {
	n := int64(1)
	seen := make(map[int]bool, len(axes))

	for _, a := range axes {
		d, err := normalizeDim(a, len(shape))
		if err != nil || seen[d] {
			continue
		}

		seen[d] = true
		n *= shape[d]
	}

	return n
}
