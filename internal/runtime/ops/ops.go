// Package ops implements the float reference kernels evaluated by the CPU
// runtime: activations, gemm, conv2d, pooling and gru.
package ops

import (
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/example/go-nnconform/internal/runtime/tensor"
)

// Round maps a float32 result onto the storage precision of an operand.
type Round func(float32) float32

// Float32 keeps single precision.
func Float32(v float32) float32 { return v }

// Float16 rounds to the nearest half-precision value, ties to even.
func Float16(v float32) float32 { return float16.Fromfloat32(v).Float32() }

// RoundTensor applies r in place and returns t.
func RoundTensor(t *tensor.Tensor[float32], r Round) *tensor.Tensor[float32] {
	if r == nil {
		return t
	}

	data := t.RawData()
	for i, v := range data {
		data[i] = r(v)
	}

	return t
}

// UnaryParams carries the scalar options of the parameterised activations.
// Fields a kernel does not use are ignored.
type UnaryParams struct {
	Alpha float64
	Beta  float64
	Min   float64
	Max   float64
}

// DefaultUnaryParams returns the option defaults for the named activation.
func DefaultUnaryParams(name string) UnaryParams {
	p := UnaryParams{Alpha: 1, Min: math.Inf(-1), Max: math.Inf(1)}

	switch name {
	case "hardSigmoid":
		p.Alpha, p.Beta = 0.2, 0.5
	case "leakyRelu":
		p.Alpha = 0.01
	}

	return p
}

// Activations lists the unary float kernels Unary knows.
var Activations = []string{
	"clamp", "elu", "gelu", "hardSigmoid", "hardSwish", "identity", "leakyRelu",
	"linear", "relu", "sigmoid", "softplus", "softsign", "tanh",
}

// Unary returns the element-wise kernel for the named activation. Each kernel
// evaluates in float64 and rounds once to float32.
func Unary(name string, p UnaryParams) (func(float32) float32, error) {
	var fn func(float64) float64

	switch name {
	case "identity":
		return Float32, nil
	case "relu":
		fn = func(x float64) float64 { return max(x, 0) }
	case "sigmoid":
		fn = func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	case "tanh":
		fn = math.Tanh
	case "elu":
		fn = func(x float64) float64 {
			if x < 0 {
				return p.Alpha * (math.Exp(x) - 1)
			}

			return x
		}
	case "gelu":
		fn = func(x float64) float64 { return 0.5 * x * (1 + math.Erf(x/math.Sqrt2)) }
	case "hardSigmoid":
		fn = func(x float64) float64 { return max(0, min(1, p.Alpha*x+p.Beta)) }
	case "hardSwish":
		fn = func(x float64) float64 { return x * max(0, min(6, x+3)) / 6 }
	case "leakyRelu":
		fn = func(x float64) float64 {
			if x < 0 {
				return p.Alpha * x
			}

			return x
		}
	case "linear":
		fn = func(x float64) float64 { return p.Alpha*x + p.Beta }
	case "softplus":
		fn = func(x float64) float64 { return math.Log1p(math.Exp(x)) }
	case "softsign":
		fn = func(x float64) float64 { return x / (1 + math.Abs(x)) }
	case "clamp":
		if p.Min > p.Max {
			return nil, fmt.Errorf("ops: clamp minValue %v exceeds maxValue %v", p.Min, p.Max)
		}

		fn = func(x float64) float64 { return max(p.Min, min(p.Max, x)) }
	default:
		return nil, fmt.Errorf("ops: unknown activation %q", name)
	}

	return func(v float32) float32 { return float32(fn(float64(v))) }, nil
}
