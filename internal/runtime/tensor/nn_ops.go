package tensor

import (
	"errors"
	"fmt"
	"math"
)

// Dot returns the float32 dot product of two equal-length slices, rounding
// after every multiply and add.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		// The explicit conversion keeps the compiler from fusing into FMA.
		sum += float32(a[i] * b[i])
	}

	return sum
}

// Softmax applies softmax along dim.
func Softmax(x *Tensor[float32], dim int) (*Tensor[float32], error) {
	if x == nil {
		return nil, errors.New("tensor: softmax on nil tensor")
	}

	if len(x.shape) == 0 {
		return nil, errors.New("tensor: softmax requires rank >= 1")
	}

	dim, err := normalizeDim(dim, len(x.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: softmax: %w", err)
	}

	axis := x.shape[dim]
	if axis <= 0 {
		return nil, fmt.Errorf("tensor: softmax axis dimension must be > 0, got %d", axis)
	}

	inner := int64(1)
	for i := dim + 1; i < len(x.shape); i++ {
		inner *= x.shape[i]
	}

	outer := int64(1)
	for i := range dim {
		outer *= x.shape[i]
	}

	out := x.Clone()
	exps := make([]float64, axis)

	for o := range outer {
		for in := range inner {
			base := o*axis*inner + in
			maxV := math.Inf(-1)

			for k := range axis {
				maxV = max(maxV, float64(out.data[base+k*inner]))
			}

			var sum float64

			for k := range axis {
				exps[k] = math.Exp(float64(out.data[base+k*inner]) - maxV)
				sum += exps[k]
			}

			for k := range axis {
				out.data[base+k*inner] = float32(exps[k] / sum)
			}
		}
	}

	return out, nil
}

// MatMul performs batched matrix multiplication with broadcasting over batch
// dims. Rank-1 operands are not promoted.
func MatMul(a, b *Tensor[float32]) (*Tensor[float32], error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: matmul requires non-nil inputs")
	}

	if a.Rank() < 2 || b.Rank() < 2 {
		return nil, fmt.Errorf("tensor: matmul requires rank >= 2, got %d and %d", a.Rank(), b.Rank())
	}

	aRank := len(a.shape)
	bRank := len(b.shape)
	m := a.shape[aRank-2]
	k := a.shape[aRank-1]
	n := b.shape[bRank-1]

	if k2 := b.shape[bRank-2]; k != k2 {
		return nil, fmt.Errorf("tensor: matmul mismatch: A shape %v and B shape %v (K dims %d vs %d)", a.shape, b.shape, k, k2)
	}

	batchShape, err := broadcastShape(a.shape[:aRank-2], b.shape[:bRank-2])
	if err != nil {
		return nil, fmt.Errorf("tensor: matmul batch broadcast: %w", err)
	}

	outShape := append(append([]int64(nil), batchShape...), m, n)

	out, err := Zeros[float32](outShape)
	if err != nil {
		return nil, err
	}

	batchCount, err := shapeElemCount(batchShape)
	if err != nil {
		return nil, err
	}

	aStrides := computeStrides(a.shape)
	bStrides := computeStrides(b.shape)
	batchStrides := computeStrides(batchShape)
	rows := batchCount * int(m)

	parallelFor(rows, Workers(), func(lo, hi int) {
		batchCoords := make([]int64, len(batchShape))
		col := make([]float32, k)

		for row := lo; row < hi; row++ {
			batchIdx := int64(row) / m
			i := int64(row) % m

			linearToCoord(batchIdx, batchShape, batchStrides, batchCoords)
			aOff := broadcastBatchOffset(batchCoords, a.shape[:aRank-2], aStrides[:aRank-2])
			bOff := broadcastBatchOffset(batchCoords, b.shape[:bRank-2], bStrides[:bRank-2])
			aRow := a.data[aOff+i*k : aOff+(i+1)*k]
			outRow := out.data[int64(row)*n : int64(row+1)*n]

			for j := range n {
				for kk := range k {
					col[kk] = b.data[bOff+kk*n+j]
				}

				outRow[j] = Dot(aRow, col)
			}
		}
	})

	return out, nil
}
