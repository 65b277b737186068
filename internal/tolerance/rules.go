package tolerance

import (
	"fmt"

	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/graph"
)

// Family groups operators that share a tolerance rule.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyTable
	FamilyZero
	FamilyGemm
	FamilyConv2d
	FamilyPool2d
	FamilySoftmax
	FamilyReduce
	FamilyResample
	FamilyFixed
)

func (f Family) String() string {
	switch f {
	case FamilyTable:
		return "table"
	case FamilyZero:
		return "zero"
	case FamilyGemm:
		return "gemm"
	case FamilyConv2d:
		return "conv2d"
	case FamilyPool2d:
		return "pool2d"
	case FamilySoftmax:
		return "softmax"
	case FamilyReduce:
		return "reduce"
	case FamilyResample:
		return "resample"
	case FamilyFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

type kinds = map[datatype.DataType]float64

func floats(f32, f16 float64) kinds {
	return kinds{datatype.Float32: f32, datatype.Float16: f16}
}

var operatorTable = map[string]kinds{
	"argMax":             floats(0, 0),
	"argMin":             floats(0, 0),
	"batchNormalization": floats(6, 6),
	"clamp":              floats(0, 0),
	"add":                floats(1, 1),
	"sub": {
		datatype.Float32: 1, datatype.Float16: 1,
		datatype.Int8: 0, datatype.Uint8: 0,
		datatype.Int32: 0, datatype.Uint32: 0,
		datatype.Int64: 0, datatype.Uint64: 0,
	},
	"mul":         floats(1, 1),
	"max":         floats(0, 0),
	"min":         floats(0, 0),
	"elu":         floats(18, 18),
	"gelu":        floats(18, 18),
	"hardSigmoid": floats(2, 2),
	"hardSwish":   floats(4, 4),
	"leakyRelu":   floats(1, 2),
	"linear":      floats(2, 2),
	"prelu":       floats(1, 1),
	"relu":        {datatype.Float32: 0, datatype.Float16: 0, datatype.Int8: 0, datatype.Int32: 0},
	"sigmoid":     floats(34, 10),
	"softplus":    floats(18, 18),
	"softsign":    floats(3, 3),
	"tanh":        floats(16, 16),
}

var fixedTable = map[string]kinds{
	"gru":                   floats(6, 6),
	"instanceNormalization": floats(840, 8400),
}

var zeroOperators = []string{
	"concat", "expand", "gather", "gatherElements", "gatherND", "identity", "pad",
	"reshape", "reverse", "scatterElements", "scatterND", "slice", "split",
	"tile", "transpose",
	"equal", "notEqual", "greater", "greaterOrEqual", "lesser", "lesserOrEqual",
	"logicalNot", "logicalAnd", "logicalOr", "logicalXor",
}

var families = func() map[string]Family {
	m := map[string]Family{
		"gemm":            FamilyGemm,
		"conv2d":          FamilyConv2d,
		"convTranspose2d": FamilyConv2d,
		"averagePool2d":   FamilyPool2d,
		"l2Pool2d":        FamilyPool2d,
		"maxPool2d":       FamilyPool2d,
		"softmax":         FamilySoftmax,
		"resample2d":      FamilyResample,
	}

	for _, op := range []string{
		"reduceL1", "reduceL2", "reduceLogSum", "reduceLogSumExp", "reduceMax",
		"reduceMean", "reduceMin", "reduceProduct", "reduceSum", "reduceSumSquare",
	} {
		m[op] = FamilyReduce
	}

	for _, op := range zeroOperators {
		m[op] = FamilyZero
	}

	for op := range operatorTable {
		m[op] = FamilyTable
	}

	for op := range fixedTable {
		m[op] = FamilyFixed
	}

	return m
}()

// FamilyOf classifies an operator name.
func FamilyOf(op string) Family {
	return families[op]
}

func contribution(op graph.Operator, dt datatype.DataType, shapes ShapeFunc) (float64, error) {
	switch FamilyOf(op.Name) {
	case FamilyZero:
		return 0, nil
	case FamilyTable:
		return lookupKind(operatorTable[op.Name], dt)
	case FamilyFixed:
		return lookupKind(fixedTable[op.Name], dt)
	case FamilyGemm:
		return floatOnly(dt, func() (float64, error) { return gemmTolerance(op, shapes) })
	case FamilyConv2d:
		return floatOnly(dt, func() (float64, error) { return conv2dTolerance(op, shapes) })
	case FamilyPool2d:
		return floatOnly(dt, func() (float64, error) { return pool2dTolerance(op, shapes) })
	case FamilySoftmax:
		return floatOnly(dt, func() (float64, error) { return softmaxTolerance(op, shapes) })
	case FamilyReduce:
		return reduceTolerance(op, shapes)
	case FamilyResample:
		return resampleTolerance(op, dt)
	default:
		return 0, ErrNoToleranceRule
	}
}

func lookupKind(table kinds, dt datatype.DataType) (float64, error) {
	v, ok := table[dt]
	if !ok {
		return 0, fmt.Errorf("%v: %w", dt, ErrNoToleranceRule)
	}

	return v, nil
}

func floatOnly(dt datatype.DataType, rule func() (float64, error)) (float64, error) {
	if !dt.IsFloat() {
		return 0, fmt.Errorf("%v: %w", dt, ErrNoToleranceRule)
	}

	return rule()
}

// gemm: 2*K, plus one for a scaled product and up to two for a scaled
// bias term.
func gemmTolerance(op graph.Operator, shapes ShapeFunc) (float64, error) {
	a, err := operandShape(op, 0, shapes)
	if err != nil {
		return 0, err
	}

	if len(a) != 2 {
		return 0, fmt.Errorf("gemm input a has rank %d, want 2", len(a))
	}

	opts := op.Options()

	width := a[1]
	if v, ok := opts.Lookup("aTranspose"); ok && v.Truthy() {
		width = a[0]
	}

	tol := float64(width) * 2

	if v, ok := opts.Lookup("alpha"); ok {
		alpha, err := v.Float()
		if err != nil {
			return 0, fmt.Errorf("gemm alpha: %w", err)
		}

		if alpha != 1 {
			tol++
		}
	}

	if opts.Has("c") {
		beta, hasBeta := 1.0, false
		if v, ok := opts.Lookup("beta"); ok {
			if beta, err = v.Float(); err != nil {
				return 0, fmt.Errorf("gemm beta: %w", err)
			}

			hasBeta = true
		}

		if beta != 0 {
			tol++

			if hasBeta && beta != 1 {
				tol++
			}
		}
	}

	return tol, nil
}

type filterAxes struct{ height, width int }

var conv2dFilterLayouts = map[string]filterAxes{
	"oihw": {2, 3},
	"hwio": {0, 1},
	"ohwi": {1, 2},
	"ihwo": {1, 2},
}

var convTranspose2dFilterLayouts = map[string]filterAxes{
	"iohw": {2, 3},
	"hwoi": {0, 1},
	"ohwi": {1, 2},
}

// conv2d and convTranspose2d: filter window times input channels per group,
// doubled.
func conv2dTolerance(op graph.Operator, shapes ShapeFunc) (float64, error) {
	input, err := operandShape(op, 0, shapes)
	if err != nil {
		return 0, err
	}

	filter, err := operandShape(op, 1, shapes)
	if err != nil {
		return 0, err
	}

	if len(input) != 4 || len(filter) != 4 {
		return 0, fmt.Errorf("%s expects rank-4 input and filter, got %v and %v", op.Name, input, filter)
	}

	opts := op.Options()

	channels := input[1]

	layout, err := optionText(opts, "inputLayout", "nchw")
	if err != nil {
		return 0, err
	}

	switch layout {
	case "nchw":
	case "nhwc":
		channels = input[3]
	default:
		return 0, fmt.Errorf("%s inputLayout %q: %w", op.Name, layout, ErrUnsupportedLayout)
	}

	layouts, defaultLayout := conv2dFilterLayouts, "oihw"
	if op.Name == "convTranspose2d" {
		layouts, defaultLayout = convTranspose2dFilterLayouts, "iohw"
	}

	filterLayout, err := optionText(opts, "filterLayout", defaultLayout)
	if err != nil {
		return 0, err
	}

	axes, ok := layouts[filterLayout]
	if !ok {
		return 0, fmt.Errorf("%s filterLayout %q: %w", op.Name, filterLayout, ErrUnsupportedLayout)
	}

	groups := int64(1)
	if v, ok := opts.Lookup("groups"); ok {
		if groups, err = v.Int(); err != nil {
			return 0, fmt.Errorf("%s groups: %w", op.Name, err)
		}

		if groups <= 0 {
			return 0, fmt.Errorf("%s groups must be positive, got %d", op.Name, groups)
		}
	}

	window := float64(filter[axes.width] * filter[axes.height])

	return window * (float64(channels) / float64(groups)) * 2, nil
}

func pool2dTolerance(op graph.Operator, shapes ShapeFunc) (float64, error) {
	if op.Name == "maxPool2d" {
		return 0, nil
	}

	opts := op.Options()

	var height, width int64

	if v, ok := opts.Lookup("windowDimensions"); ok {
		dims, err := v.Ints()
		if err != nil || len(dims) != 2 {
			return 0, fmt.Errorf("%s windowDimensions must hold two integers", op.Name)
		}

		height, width = dims[0], dims[1]
	} else {
		input, err := operandShape(op, 0, shapes)
		if err != nil {
			return 0, err
		}

		if len(input) != 4 {
			return 0, fmt.Errorf("%s expects a rank-4 input, got %v", op.Name, input)
		}

		layout, err := optionText(opts, "layout", "nchw")
		if err != nil {
			return 0, err
		}

		switch layout {
		case "nchw":
			height, width = input[2], input[3]
		case "nhwc":
			height, width = input[1], input[2]
		default:
			return 0, fmt.Errorf("%s layout %q: %w", op.Name, layout, ErrUnsupportedLayout)
		}
	}

	return float64(height*width) + 2, nil
}

func softmaxTolerance(op graph.Operator, shapes ShapeFunc) (float64, error) {
	input, err := operandShape(op, 0, shapes)
	if err != nil {
		return 0, err
	}

	axis := int64(1)
	if a, ok := op.Arg(1); ok && a.Value.Kind == graph.KindNumber {
		if axis, err = a.Value.Int(); err != nil {
			return 0, fmt.Errorf("softmax axis: %w", err)
		}
	}

	idx, err := normalizeAxis(axis, len(input))
	if err != nil {
		return 0, fmt.Errorf("softmax: %w", err)
	}

	return float64(input[idx])*3 + 3, nil
}

func reduceTolerance(op graph.Operator, shapes ShapeFunc) (float64, error) {
	if op.Name == "reduceMax" || op.Name == "reduceMin" {
		return 0, nil
	}

	input, err := operandShape(op, 0, shapes)
	if err != nil {
		return 0, err
	}

	sizes := input

	if v, ok := op.Options().Lookup("axes"); ok {
		axes, err := v.Ints()
		if err != nil {
			return 0, fmt.Errorf("%s axes: %w", op.Name, err)
		}

		sizes = make([]int64, len(axes))
		for i, a := range axes {
			idx, err := normalizeAxis(a, len(input))
			if err != nil {
				return 0, fmt.Errorf("%s: %w", op.Name, err)
			}

			sizes[i] = input[idx]
		}
	}

	base := 1.0
	for _, s := range sizes {
		base *= float64(s)
	}

	switch op.Name {
	case "reduceL2":
		return base*2 + 2, nil
	case "reduceLogSum":
		return base + 18, nil
	case "reduceLogSumExp":
		return base*2 + 18, nil
	case "reduceMean":
		return base + 2, nil
	case "reduceSumSquare":
		return base * 2, nil
	default:
		return base, nil
	}
}

func resampleTolerance(op graph.Operator, dt datatype.DataType) (float64, error) {
	mode, err := optionText(op.Options(), "mode", "nearest-neighbor")
	if err != nil {
		return 0, err
	}

	if mode != "linear" {
		return 0, nil
	}

	switch dt {
	case datatype.Float32:
		return 84, nil
	case datatype.Float16:
		return 10, nil
	default:
		return 1, nil
	}
}

// operandShape resolves the shape of the operand named by argument i.
func operandShape(op graph.Operator, i int, shapes ShapeFunc) ([]int64, error) {
	arg, ok := op.Arg(i)
	if !ok {
		return nil, fmt.Errorf("%s has no argument %d", op.Name, i)
	}

	if arg.Value.Kind != graph.KindString {
		return nil, fmt.Errorf("%s argument %q is not an operand name", op.Name, arg.Name)
	}

	shape, ok := shapes(arg.Value.String)
	if !ok {
		return nil, fmt.Errorf("%s: shape of operand %q is unknown", op.Name, arg.Value.String)
	}

	return shape, nil
}

func optionText(opts graph.Options, name, fallback string) (string, error) {
	v, ok := opts.Lookup(name)
	if !ok {
		return fallback, nil
	}

	s, err := v.Text()
	if err != nil {
		return "", fmt.Errorf("option %s: %w", name, err)
	}

	return s, nil
}

func normalizeAxis(axis int64, rank int) (int, error) {
	if axis < 0 {
		axis += int64(rank)
	}

	if axis < 0 || axis >= int64(rank) {
		return 0, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}

	return int(axis), nil
}
