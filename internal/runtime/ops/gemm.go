package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-nnconform/internal/runtime/tensor"
)

// GemmParams are the gemm options.
type GemmParams struct {
	Alpha      float32
	Beta       float32
	ATranspose bool
	BTranspose bool
}

// DefaultGemmParams returns alpha=1, beta=1 and no transposes.
func DefaultGemmParams() GemmParams {
	return GemmParams{Alpha: 1, Beta: 1}
}

// Gemm computes alpha*A*B + beta*C for rank-2 A and B. C is optional and
// broadcasts to [M, N].
func Gemm(a, b, c *tensor.Tensor[float32], p GemmParams) (*tensor.Tensor[float32], error) {
	if a == nil || b == nil {
		return nil, errors.New("ops: gemm requires non-nil a/b")
	}

	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, fmt.Errorf("ops: gemm expects rank-2 a/b, got %v and %v", a.Shape(), b.Shape())
	}

	var err error

	if p.ATranspose {
		if a, err = a.Transpose(0, 1); err != nil {
			return nil, fmt.Errorf("ops: gemm transpose a: %w", err)
		}
	}

	if p.BTranspose {
		if b, err = b.Transpose(0, 1); err != nil {
			return nil, fmt.Errorf("ops: gemm transpose b: %w", err)
		}
	}

	ab, err := tensor.MatMul(a, b)
	if err != nil {
		return nil, fmt.Errorf("ops: gemm: %w", err)
	}

	out := ab.Map(func(v float32) float32 { return p.Alpha * v })
	if c == nil || p.Beta == 0 {
		return out, nil
	}

	cb, err := c.Expand(out.Shape())
	if err != nil {
		return nil, fmt.Errorf("ops: gemm c: %w", err)
	}

	res, err := tensor.Binary(out, cb, func(x, y float32) float32 {
		return x + float32(p.Beta*y)
	}, "gemm")
	if err != nil {
		return nil, fmt.Errorf("ops: gemm: %w", err)
	}

	return res, nil
}
