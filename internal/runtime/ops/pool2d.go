package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-nnconform/internal/runtime/tensor"
)

// PoolKind selects the pooling reduction.
type PoolKind string

const (
	PoolAverage PoolKind = "averagePool2d"
	PoolMax     PoolKind = "maxPool2d"
	PoolL2      PoolKind = "l2Pool2d"
)

// Pool2DParams are the pooling options. A nil WindowDimensions pools over
// the whole spatial extent.
type Pool2DParams struct {
	WindowDimensions []int64
	Padding          [4]int64
	Strides          [2]int64
	Dilations        [2]int64
	RoundingType     string
	Layout           string
}

// DefaultPool2DParams returns global pooling with unit strides and nchw.
func DefaultPool2DParams() Pool2DParams {
	return Pool2DParams{
		Strides:      [2]int64{1, 1},
		Dilations:    [2]int64{1, 1},
		RoundingType: "floor",
		Layout:       "nchw",
	}
}

// Pool2D reduces sliding windows over the spatial dimensions. Average
// pooling counts only positions inside the input.
func Pool2D(kind PoolKind, input *tensor.Tensor[float32], p Pool2DParams) (*tensor.Tensor[float32], error) {
	if input == nil {
		return nil, errors.New("ops: pool2d requires non-nil input")
	}

	switch kind {
	case PoolAverage, PoolMax, PoolL2:
	default:
		return nil, fmt.Errorf("ops: unknown pooling kind %q", kind)
	}

	if input.Rank() != 4 {
		return nil, fmt.Errorf("ops: pool2d expects rank-4 input, got %v", input.Shape())
	}

	x, err := toNCHW(input, p.Layout)
	if err != nil {
		return nil, fmt.Errorf("ops: %s: %w", kind, err)
	}

	xs := x.Shape()
	batch, ch, inH, inW := xs[0], xs[1], xs[2], xs[3]

	kH, kW := inH, inW
	if p.WindowDimensions != nil {
		if len(p.WindowDimensions) != 2 {
			return nil, fmt.Errorf("ops: %s windowDimensions must have 2 entries, got %v", kind, p.WindowDimensions)
		}

		kH, kW = p.WindowDimensions[0], p.WindowDimensions[1]
	}

	ceil := p.RoundingType == "ceil"

	outH, err := windowOutput(inH, kH, p.Padding[0], p.Padding[1], p.Strides[0], p.Dilations[0], ceil)
	if err != nil {
		return nil, fmt.Errorf("ops: %s height: %w", kind, err)
	}

	outW, err := windowOutput(inW, kW, p.Padding[2], p.Padding[3], p.Strides[1], p.Dilations[1], ceil)
	if err != nil {
		return nil, fmt.Errorf("ops: %s width: %w", kind, err)
	}

	out, err := tensor.Zeros[float32]([]int64{batch, ch, outH, outW})
	if err != nil {
		return nil, err
	}

	xData := x.RawData()
	outData := out.RawData()

	tensor.ParallelFor(int(batch*ch), func(lo, hi int) {
		for plane := lo; plane < hi; plane++ {
			src := xData[plane*int(inH*inW) : (plane+1)*int(inH*inW)]
			dst := outData[plane*int(outH*outW) : (plane+1)*int(outH*outW)]

			for oy := range outH {
				for ox := range outW {
					acc := math.Inf(-1)
					if kind != PoolMax {
						acc = 0
					}

					count := 0

					for ky := range kH {
						iy := oy*p.Strides[0] - p.Padding[0] + ky*p.Dilations[0]
						if iy < 0 || iy >= inH {
							continue
						}

						for kx := range kW {
							ix := ox*p.Strides[1] - p.Padding[2] + kx*p.Dilations[1]
							if ix < 0 || ix >= inW {
								continue
							}

							v := float64(src[iy*inW+ix])
							count++

							switch kind {
							case PoolMax:
								acc = max(acc, v)
							case PoolL2:
								acc += v * v
							default:
								acc += v
							}
						}
					}

					switch kind {
					case PoolAverage:
						if count > 0 {
							acc /= float64(count)
						}
					case PoolL2:
						acc = math.Sqrt(acc)
					}

					dst[oy*outW+ox] = float32(acc)
				}
			}
		}
	})

	return fromNCHW(out, p.Layout)
}
