package tensor

import (
	"errors"
	"fmt"
	"slices"
)

// Narrow slices the tensor along a single dimension.
func (t *Tensor[T]) Narrow(dim int, start, length int64) (*Tensor[T], error) {
	if t == nil {
		return nil, errors.New("tensor: narrow on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: narrow: %w", err)
	}

	if start < 0 || length < 0 || start+length > t.shape[dim] {
		return nil, fmt.Errorf("tensor: narrow: range [%d:%d] out of bounds for dim %d size %d", start, start+length, dim, t.shape[dim])
	}

	starts := make([]int64, len(t.shape))
	sizes := append([]int64(nil), t.shape...)
	starts[dim] = start
	sizes[dim] = length

	return t.Slice(starts, sizes)
}

// Slice extracts the block beginning at starts with extent sizes.
func (t *Tensor[T]) Slice(starts, sizes []int64) (*Tensor[T], error) {
	if t == nil {
		return nil, errors.New("tensor: slice on nil tensor")
	}

	rank := len(t.shape)
	if len(starts) != rank || len(sizes) != rank {
		return nil, fmt.Errorf("tensor: slice expects %d starts and sizes, got %d and %d", rank, len(starts), len(sizes))
	}

	for d := range rank {
		if starts[d] < 0 || sizes[d] < 0 || starts[d]+sizes[d] > t.shape[d] {
			return nil, fmt.Errorf("tensor: slice range [%d:%d] out of bounds for dim %d size %d", starts[d], starts[d]+sizes[d], d, t.shape[d])
		}
	}

	out, err := Zeros[T](sizes)
	if err != nil {
		return nil, err
	}

	srcStrides := computeStrides(t.shape)
	outStrides := computeStrides(sizes)
	coord := make([]int64, rank)

	for i := range out.data {
		linearToCoord(int64(i), sizes, outStrides, coord)

		var off int64
		for d, c := range coord {
			off += (c + starts[d]) * srcStrides[d]
		}

		out.data[i] = t.data[off]
	}

	return out, nil
}

// Permute reorders dimensions: output dim i is input dim perm[i].
func (t *Tensor[T]) Permute(perm []int) (*Tensor[T], error) {
	if t == nil {
		return nil, errors.New("tensor: permute on nil tensor")
	}

	rank := len(t.shape)
	if len(perm) != rank {
		return nil, fmt.Errorf("tensor: permutation %v does not match rank %d", perm, rank)
	}

	seen := make([]bool, rank)
	outShape := make([]int64, rank)

	for i, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			return nil, fmt.Errorf("tensor: invalid permutation %v", perm)
		}

		seen[p] = true
		outShape[i] = t.shape[p]
	}

	out, err := Zeros[T](outShape)
	if err != nil {
		return nil, err
	}

	srcStrides := computeStrides(t.shape)
	outStrides := computeStrides(outShape)
	outCoord := make([]int64, rank)

	for i := range out.data {
		linearToCoord(int64(i), outShape, outStrides, outCoord)

		var off int64
		for d, p := range perm {
			off += outCoord[d] * srcStrides[p]
		}

		out.data[i] = t.data[off]
	}

	return out, nil
}

// Transpose swaps dim1 and dim2.
func (t *Tensor[T]) Transpose(dim1, dim2 int) (*Tensor[T], error) {
	if t == nil {
		return nil, errors.New("tensor: transpose on nil tensor")
	}

	rank := len(t.shape)

	d1, err := normalizeDim(dim1, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim1: %w", err)
	}

	d2, err := normalizeDim(dim2, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim2: %w", err)
	}

	perm := make([]int, rank)
	for i := range perm {
		perm[i] = i
	}

	perm[d1], perm[d2] = perm[d2], perm[d1]

	return t.Permute(perm)
}

// Expand broadcasts t to shape.
func (t *Tensor[T]) Expand(shape []int64) (*Tensor[T], error) {
	if t == nil {
		return nil, errors.New("tensor: expand on nil tensor")
	}

	target, err := broadcastShape(t.shape, shape)
	if err != nil {
		return nil, fmt.Errorf("tensor: expand: %w", err)
	}

	if !slices.Equal(target, shape) {
		return nil, fmt.Errorf("tensor: cannot expand %v to %v", t.shape, shape)
	}

	return broadcastInto(t, t, func(x, _ T) T { return x }, target), nil
}

// Concat concatenates tensors along dim.
func Concat[T Elem](tensors []*Tensor[T], dim int) (*Tensor[T], error) {
	if len(tensors) == 0 {
		return nil, errors.New("tensor: concat requires at least one tensor")
	}

	first := tensors[0]
	if first == nil {
		return nil, errors.New("tensor: concat tensor 0 is nil")
	}

	rank := len(first.shape)

	dim, err := normalizeDim(dim, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: concat: %w", err)
	}

	outShape := append([]int64(nil), first.shape...)
	outShape[dim] = 0

	for i, t := range tensors {
		if t == nil {
			return nil, fmt.Errorf("tensor: concat tensor %d is nil", i)
		}

		if len(t.shape) != rank {
			return nil, fmt.Errorf("tensor: concat tensor %d rank %d does not match rank %d", i, len(t.shape), rank)
		}

		for d := range rank {
			if d != dim && t.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("tensor: concat tensor %d shape %v does not match base shape %v on dim %d", i, t.shape, first.shape, d)
			}
		}

		outShape[dim] += t.shape[dim]
	}

	out, err := Zeros[T](outShape)
	if err != nil {
		return nil, err
	}

	inner := int64(1)
	for i := dim + 1; i < rank; i++ {
		inner *= outShape[i]
	}

	outer := int64(1)
	for i := range dim {
		outer *= outShape[i]
	}

	outDim := outShape[dim]

	for o := range outer {
		writePos := int64(0)

		for _, t := range tensors {
			span := t.shape[dim] * inner
			srcBase := o * t.shape[dim] * inner
			dstBase := o*outDim*inner + writePos
			copy(out.data[dstBase:dstBase+span], t.data[srcBase:srcBase+span])
			writePos += span
		}
	}

	return out, nil
}
