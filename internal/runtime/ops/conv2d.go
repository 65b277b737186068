package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-nnconform/internal/runtime/tensor"
)

// Conv2DParams are the conv2d options. Padding is [beginH, endH, beginW,
// endW]; Strides and Dilations are [h, w].
type Conv2DParams struct {
	Padding      [4]int64
	Strides      [2]int64
	Dilations    [2]int64
	Groups       int64
	InputLayout  string
	FilterLayout string
}

// DefaultConv2DParams returns unit strides and dilations, one group and
// nchw/oihw layouts.
func DefaultConv2DParams() Conv2DParams {
	return Conv2DParams{
		Strides:      [2]int64{1, 1},
		Dilations:    [2]int64{1, 1},
		Groups:       1,
		InputLayout:  "nchw",
		FilterLayout: "oihw",
	}
}

// filterToOIHW maps a filter layout to the permutation producing oihw.
var filterToOIHW = map[string][]int{
	"oihw": {0, 1, 2, 3},
	"hwio": {3, 2, 0, 1},
	"ohwi": {0, 3, 1, 2},
	"ihwo": {3, 0, 1, 2},
}

// Conv2D performs a direct CPU 2-D convolution.
func Conv2D(input, filter, bias *tensor.Tensor[float32], p Conv2DParams) (*tensor.Tensor[float32], error) {
	if input == nil || filter == nil {
		return nil, errors.New("ops: conv2d requires non-nil input/filter")
	}

	if input.Rank() != 4 || filter.Rank() != 4 {
		return nil, fmt.Errorf("ops: conv2d expects rank-4 input/filter, got %v and %v", input.Shape(), filter.Shape())
	}

	x, err := toNCHW(input, p.InputLayout)
	if err != nil {
		return nil, fmt.Errorf("ops: conv2d: %w", err)
	}

	perm, ok := filterToOIHW[p.FilterLayout]
	if !ok {
		return nil, fmt.Errorf("ops: conv2d: unsupported filter layout %q", p.FilterLayout)
	}

	w, err := filter.Permute(perm)
	if err != nil {
		return nil, fmt.Errorf("ops: conv2d filter: %w", err)
	}

	out, err := conv2DNCHW(x, w, bias, p)
	if err != nil {
		return nil, err
	}

	return fromNCHW(out, p.InputLayout)
}

func conv2DNCHW(x, w, bias *tensor.Tensor[float32], p Conv2DParams) (*tensor.Tensor[float32], error) {
	if p.Groups <= 0 {
		return nil, fmt.Errorf("ops: conv2d groups must be > 0, got %d", p.Groups)
	}

	xs := x.Shape()
	ws := w.Shape()
	batch, inC, inH, inW := xs[0], xs[1], xs[2], xs[3]
	outC, kInC, kH, kW := ws[0], ws[1], ws[2], ws[3]

	if inC%p.Groups != 0 || outC%p.Groups != 0 {
		return nil, fmt.Errorf("ops: conv2d channels not divisible by groups (%d, %d, groups=%d)", inC, outC, p.Groups)
	}

	inPerGroup := inC / p.Groups
	if kInC != inPerGroup {
		return nil, fmt.Errorf("ops: conv2d filter input channels %d, want %d", kInC, inPerGroup)
	}

	if bias != nil {
		if bs := bias.Shape(); len(bs) != 1 || bs[0] != outC {
			return nil, fmt.Errorf("ops: conv2d bias shape %v does not match output channels %d", bs, outC)
		}
	}

	outH, err := windowOutput(inH, kH, p.Padding[0], p.Padding[1], p.Strides[0], p.Dilations[0], false)
	if err != nil {
		return nil, fmt.Errorf("ops: conv2d height: %w", err)
	}

	outW, err := windowOutput(inW, kW, p.Padding[2], p.Padding[3], p.Strides[1], p.Dilations[1], false)
	if err != nil {
		return nil, fmt.Errorf("ops: conv2d width: %w", err)
	}

	out, err := tensor.Zeros[float32]([]int64{batch, outC, outH, outW})
	if err != nil {
		return nil, err
	}

	xData := x.RawData()
	wData := w.RawData()
	outData := out.RawData()

	var biasData []float32
	if bias != nil {
		biasData = bias.RawData()
	}

	patchLen := int(inPerGroup * kH * kW)
	positions := int(outH * outW)
	outPerGroup := outC / p.Groups

	imcol := getScratch(positions * patchLen)
	defer putScratch(imcol)

	for b := range batch {
		for g := range p.Groups {
			clear(imcol)

			// imcol row = output position, column = (ic, ky, kx).
			for ic := range inPerGroup {
				plane := ((b*inC + g*inPerGroup + ic) * inH) * inW
				for ky := range kH {
					for kx := range kW {
						col := int((ic*kH+ky)*kW + kx)
						for oy := range outH {
							iy := oy*p.Strides[0] - p.Padding[0] + ky*p.Dilations[0]
							if iy < 0 || iy >= inH {
								continue
							}

							for ox := range outW {
								ix := ox*p.Strides[1] - p.Padding[2] + kx*p.Dilations[1]
								if ix < 0 || ix >= inW {
									continue
								}

								imcol[int(oy*outW+ox)*patchLen+col] = xData[plane+iy*inW+ix]
							}
						}
					}
				}
			}

			ocBase := int(g * outPerGroup)

			tensor.ParallelFor(int(outPerGroup), func(lo, hi int) {
				for o := lo; o < hi; o++ {
					oc := ocBase + o
					kernelRow := wData[oc*patchLen : (oc+1)*patchLen]
					outBase := (int(b)*int(outC) + oc) * positions

					for pos := range positions {
						v := tensor.Dot(kernelRow, imcol[pos*patchLen:(pos+1)*patchLen])
						if biasData != nil {
							v += biasData[oc]
						}

						outData[outBase+pos] = v
					}
				}
			})
		}
	}

	return out, nil
}

// windowOutput is the sliding-window output size for one spatial dimension.
func windowOutput(in, window, padBegin, padEnd, stride, dilation int64, ceil bool) (int64, error) {
	if stride <= 0 || dilation <= 0 {
		return 0, fmt.Errorf("stride %d and dilation %d must be > 0", stride, dilation)
	}

	span := in + padBegin + padEnd - dilation*(window-1) - 1
	if span < 0 {
		return 0, fmt.Errorf("window %d (dilation %d) exceeds padded input %d", window, dilation, in+padBegin+padEnd)
	}

	out := span / stride
	if ceil && span%stride != 0 {
		out++
	}

	return out + 1, nil
}

func toNCHW(t *tensor.Tensor[float32], layout string) (*tensor.Tensor[float32], error) {
	switch layout {
	case "", "nchw":
		return t, nil
	case "nhwc":
		return t.Permute([]int{0, 3, 1, 2})
	default:
		return nil, fmt.Errorf("unsupported input layout %q", layout)
	}
}

func fromNCHW(t *tensor.Tensor[float32], layout string) (*tensor.Tensor[float32], error) {
	if layout == "nhwc" {
		return t.Permute([]int{0, 2, 3, 1})
	}

	return t, nil
}
