// Package tensor provides dense, row-major tensors and the CPU kernels used
// by the reference graph runtime.
package tensor

import (
	"errors"
	"fmt"
)

// Elem is the set of element types a Tensor can hold. Float kinds compute on
// float32 and integer kinds on int64; float64 serves as an accumulator.
type Elem interface {
	~float32 | ~float64 | ~int64
}

// Tensor is a dense, row-major tensor.
type Tensor[T Elem] struct {
	shape []int64
	data  []T
}

// New creates a tensor from data and shape.
func New[T Elem](data []T, shape []int64) (*Tensor[T], error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)", len(data), shape, total)
	}

	s := append([]int64(nil), shape...)
	d := append([]T(nil), data...)

	return &Tensor[T]{shape: s, data: d}, nil
}

// newOwned creates a Tensor taking ownership of data and shape without
// copying. len(data) must equal the product of shape.
func newOwned[T Elem](data []T, shape []int64) *Tensor[T] {
	return &Tensor[T]{shape: shape, data: data}
}

// Zeros creates a zero-initialized tensor.
func Zeros[T Elem](shape []int64) (*Tensor[T], error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	return &Tensor[T]{
		shape: append([]int64(nil), shape...),
		data:  make([]T, total),
	}, nil
}

// Full creates a tensor filled with value.
func Full[T Elem](shape []int64, value T) (*Tensor[T], error) {
	t, err := Zeros[T](shape)
	if err != nil {
		return nil, err
	}

	for i := range t.data {
		t.data[i] = value
	}

	return t, nil
}

func (t *Tensor[T]) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64(nil), t.shape...)
}

// Data returns a copy of the underlying tensor data.
func (t *Tensor[T]) Data() []T {
	if t == nil {
		return nil
	}

	return append([]T(nil), t.data...)
}

// RawData returns the underlying data slice.
// Callers must treat it as read-only.
func (t *Tensor[T]) RawData() []T {
	if t == nil {
		return nil
	}

	return t.data
}

func (t *Tensor[T]) ElemCount() int {
	if t == nil {
		return 0
	}

	return len(t.data)
}

func (t *Tensor[T]) Rank() int {
	if t == nil {
		return 0
	}

	return len(t.shape)
}

// Clone returns a deep copy.
func (t *Tensor[T]) Clone() *Tensor[T] {
	if t == nil {
		return nil
	}

	return newOwned(append([]T(nil), t.data...), append([]int64(nil), t.shape...))
}

// Reshape returns a copy of t with a new shape.
func (t *Tensor[T]) Reshape(shape []int64) (*Tensor[T], error) {
	if t == nil {
		return nil, errors.New("tensor: reshape on nil tensor")
	}

	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if total != len(t.data) {
		return nil, fmt.Errorf("tensor: cannot reshape %v (%d elements) to %v (%d elements)", t.shape, len(t.data), shape, total)
	}

	return newOwned(append([]T(nil), t.data...), append([]int64(nil), shape...)), nil
}

// Map applies fn element-wise.
func (t *Tensor[T]) Map(fn func(T) T) *Tensor[T] {
	out := t.Clone()
	for i, v := range out.data {
		out.data[i] = fn(v)
	}

	return out
}

// Convert applies fn element-wise into a tensor of another element type.
func Convert[T, U Elem](t *Tensor[T], fn func(T) U) *Tensor[U] {
	data := make([]U, len(t.data))
	for i, v := range t.data {
		data[i] = fn(v)
	}

	return newOwned(data, append([]int64(nil), t.shape...))
}
