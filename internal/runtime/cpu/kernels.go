package cpu

import (
	"slices"

	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/nnapi"
	"github.com/example/go-nnconform/internal/runtime/ops"
)

type kernel func(c *call) ([]value, error)

var (
	floatKinds   = []datatype.DataType{datatype.Float32, datatype.Float16}
	numericKinds = []datatype.DataType{
		datatype.Float32, datatype.Float16,
		datatype.Int64, datatype.Uint64, datatype.Int32, datatype.Uint32,
		datatype.Int8, datatype.Uint8,
	}
	boolKinds = []datatype.DataType{datatype.Uint8}
)

// opSpec describes one operator: its kernel and the kinds each operand
// parameter accepts. The "output" role (or "outputs" for list results)
// limits what the operator produces.
type opSpec struct {
	kernel kernel
	params map[string][]datatype.DataType
}

var specs map[string]opSpec

// kernels is the dispatch table derived from specs.
var kernels map[string]kernel

func init() {
	specs = map[string]opSpec{
		"cast":      {castKernel, params(datatype.All, "input", "output")},
		"identity":  {identityKernel, params(datatype.All, "input", "output")},
		"reshape":   {reshapeKernel, params(datatype.All, "input", "output")},
		"transpose": {transposeKernel, params(datatype.All, "input", "output")},
		"concat":    {concatKernel, params(datatype.All, "inputs", "output")},
		"expand":    {expandKernel, params(datatype.All, "input", "output")},
		"slice":     {sliceKernel, params(datatype.All, "input", "output")},

		"logicalNot": {logicalNotKernel, params(boolKinds, "input", "output")},

		"gemm":          {gemmKernel, params(floatKinds, "a", "b", "c", "output")},
		"matmul":        {matmulKernel, params(floatKinds, "a", "b", "output")},
		"softmax":       {softmaxKernel, params(floatKinds, "input", "output")},
		"conv2d":        {conv2dKernel, params(floatKinds, "input", "filter", "bias", "output")},
		"averagePool2d": {poolKernel(ops.PoolAverage), params(floatKinds, "input", "output")},
		"maxPool2d":     {poolKernel(ops.PoolMax), params(floatKinds, "input", "output")},
		"l2Pool2d":      {poolKernel(ops.PoolL2), params(floatKinds, "input", "output")},
		"gru": {gruKernel, params(floatKinds,
			"input", "weight", "recurrentWeight", "bias", "recurrentBias", "initialHiddenState", "outputs")},
	}

	for op, fn := range binaryOps {
		specs[op] = opSpec{binaryKernel(op, fn), params(numericKinds, "a", "b", "output")}
	}

	for op := range compareOps {
		p := params(numericKinds, "a", "b")
		p["output"] = boolKinds
		specs[op] = opSpec{compareKernel(op), p}
	}

	for _, op := range ops.Activations {
		if op == "identity" {
			continue
		}

		kinds := floatKinds
		if op == "relu" || op == "clamp" {
			kinds = numericKinds
		}

		specs[op] = opSpec{unaryKernel(op), params(kinds, "input", "output")}
	}

	for op, r := range reductions {
		kinds := numericKinds
		if r.floatOnly {
			kinds = floatKinds
		}

		specs[op] = opSpec{reduceKernel(op), params(kinds, "input", "output")}
	}

	kernels = make(map[string]kernel, len(specs))
	for op, s := range specs {
		kernels[op] = s.kernel
	}
}

func params(kinds []datatype.DataType, names ...string) map[string][]datatype.DataType {
	m := make(map[string][]datatype.DataType, len(names))
	for _, n := range names {
		m[n] = kinds
	}

	return m
}

// Operators lists the supported operator names, sorted.
func Operators() []string {
	names := make([]string, 0, len(specs))
	for op := range specs {
		names = append(names, op)
	}

	slices.Sort(names)

	return names
}

func operatorLimits() map[string]map[string]nnapi.DataTypeLimits {
	out := make(map[string]map[string]nnapi.DataTypeLimits, len(specs))

	for op, s := range specs {
		m := make(map[string]nnapi.DataTypeLimits, len(s.params))
		for name, kinds := range s.params {
			m[name] = nnapi.DataTypeLimits{DataTypes: slices.Clone(kinds)}
		}

		out[op] = m
	}

	return out
}
