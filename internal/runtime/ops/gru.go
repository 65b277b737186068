package ops

import (
	"errors"
	"fmt"
	"slices"

	"github.com/example/go-nnconform/internal/runtime/tensor"
)

// GRUParams are the gru options beyond its operands.
type GRUParams struct {
	Steps          int64
	HiddenSize     int64
	ResetAfter     bool
	ReturnSequence bool
	// Direction is forward, backward or both.
	Direction string
	// Layout orders the gates inside the weights: zrn or rzn.
	Layout string
	// Activations are the gate and candidate activations. Nil entries
	// default to sigmoid and tanh.
	Activations [2]func(float32) float32
}

// DefaultGRUParams returns resetAfter, forward direction, zrn layout and
// sigmoid/tanh activations.
func DefaultGRUParams(steps, hiddenSize int64) GRUParams {
	return GRUParams{
		Steps:      steps,
		HiddenSize: hiddenSize,
		ResetAfter: true,
		Direction:  "forward",
		Layout:     "zrn",
	}
}

// GRUOperands groups the gru inputs. Bias, RecurrentBias and InitialHidden
// are optional.
type GRUOperands struct {
	Input           *tensor.Tensor[float32]
	Weight          *tensor.Tensor[float32]
	RecurrentWeight *tensor.Tensor[float32]
	Bias            *tensor.Tensor[float32]
	RecurrentBias   *tensor.Tensor[float32]
	InitialHidden   *tensor.Tensor[float32]
}

// GRU runs a gated recurrent unit over Steps time steps.
//
// Shapes: input [steps, batch, inputSize], weight [dirs, 3H, inputSize],
// recurrentWeight [dirs, 3H, H], biases [dirs, 3H], initialHidden
// [dirs, batch, H]. The first result is the final hidden state
// [dirs, batch, H]; with ReturnSequence a second result holds every step as
// [steps, dirs, batch, H].
//
// Every gate value and hidden state passes through round, so a float16
// graph keeps half precision between time steps.
func GRU(in GRUOperands, p GRUParams, round Round) ([]*tensor.Tensor[float32], error) {
	if in.Input == nil || in.Weight == nil || in.RecurrentWeight == nil {
		return nil, errors.New("ops: gru requires input, weight and recurrentWeight")
	}

	if round == nil {
		round = Float32
	}

	cell, err := newGRUCell(in, p)
	if err != nil {
		return nil, err
	}

	hidden, err := tensor.Zeros[float32]([]int64{cell.dirs, cell.batch, cell.h})
	if err != nil {
		return nil, err
	}

	var sequence *tensor.Tensor[float32]
	if p.ReturnSequence {
		sequence, err = tensor.Zeros[float32]([]int64{p.Steps, cell.dirs, cell.batch, cell.h})
		if err != nil {
			return nil, err
		}
	}

	state := int(cell.batch * cell.h)

	for d := range cell.dirs {
		h := make([]float32, state)
		if in.InitialHidden != nil {
			copy(h, in.InitialHidden.RawData()[int(d)*state:])
		}

		backward := p.Direction == "backward" || (p.Direction == "both" && d == 1)

		for s := range p.Steps {
			t := s
			if backward {
				t = p.Steps - 1 - s
			}

			h = cell.step(d, t, h, round)

			if sequence != nil {
				copy(sequence.RawData()[int((t*cell.dirs)+d)*state:], h)
			}
		}

		copy(hidden.RawData()[int(d)*state:], h)
	}

	if sequence != nil {
		return []*tensor.Tensor[float32]{hidden, sequence}, nil
	}

	return []*tensor.Tensor[float32]{hidden}, nil
}

type gruCell struct {
	x, w, r, b, rb []float32

	dirs, batch, inputSize, h int64
	z, reset, n                int64
	resetAfter                 bool
	gate, candidate            func(float32) float32
}

func newGRUCell(in GRUOperands, p GRUParams) (*gruCell, error) {
	xs := in.Input.Shape()
	if len(xs) != 3 {
		return nil, fmt.Errorf("ops: gru input must be rank 3, got %v", xs)
	}

	if xs[0] != p.Steps {
		return nil, fmt.Errorf("ops: gru input has %d steps, want %d", xs[0], p.Steps)
	}

	if p.HiddenSize <= 0 {
		return nil, fmt.Errorf("ops: gru hiddenSize must be > 0, got %d", p.HiddenSize)
	}

	c := &gruCell{
		x:          in.Input.RawData(),
		w:          in.Weight.RawData(),
		r:          in.RecurrentWeight.RawData(),
		dirs:       1,
		batch:      xs[1],
		inputSize:  xs[2],
		h:          p.HiddenSize,
		resetAfter: p.ResetAfter,
		gate:       p.Activations[0],
		candidate:  p.Activations[1],
	}

	switch p.Direction {
	case "", "forward", "backward":
	case "both":
		c.dirs = 2
	default:
		return nil, fmt.Errorf("ops: gru unknown direction %q", p.Direction)
	}

	switch p.Layout {
	case "", "zrn":
		c.z, c.reset, c.n = 0, 1, 2
	case "rzn":
		c.z, c.reset, c.n = 1, 0, 2
	default:
		return nil, fmt.Errorf("ops: gru unknown layout %q", p.Layout)
	}

	if c.gate == nil {
		c.gate, _ = Unary("sigmoid", UnaryParams{})
	}

	if c.candidate == nil {
		c.candidate, _ = Unary("tanh", UnaryParams{})
	}

	checks := []struct {
		name string
		t    *tensor.Tensor[float32]
		want []int64
	}{
		{"weight", in.Weight, []int64{c.dirs, 3 * c.h, c.inputSize}},
		{"recurrentWeight", in.RecurrentWeight, []int64{c.dirs, 3 * c.h, c.h}},
		{"bias", in.Bias, []int64{c.dirs, 3 * c.h}},
		{"recurrentBias", in.RecurrentBias, []int64{c.dirs, 3 * c.h}},
		{"initialHiddenState", in.InitialHidden, []int64{c.dirs, c.batch, c.h}},
	}

	for _, chk := range checks {
		if chk.t == nil {
			continue
		}

		if got := chk.t.Shape(); !slices.Equal(got, chk.want) {
			return nil, fmt.Errorf("ops: gru %s shape %v, want %v", chk.name, got, chk.want)
		}
	}

	if in.Bias != nil {
		c.b = in.Bias.RawData()
	}

	if in.RecurrentBias != nil {
		c.rb = in.RecurrentBias.RawData()
	}

	return c, nil
}

// step advances every batch row of direction d by time step t.
func (c *gruCell) step(d, t int64, h []float32, round Round) []float32 {
	size := c.h
	next := make([]float32, len(h))
	z := make([]float32, size)
	r := make([]float32, size)
	rh := make([]float32, size)

	for bb := range c.batch {
		xrow := c.x[(t*c.batch+bb)*c.inputSize : (t*c.batch+bb+1)*c.inputSize]
		hrow := h[bb*size : (bb+1)*size]

		for j := range size {
			z[j] = round(c.gate(c.gatePre(d, c.z, j, xrow, hrow)))
			r[j] = round(c.gate(c.gatePre(d, c.reset, j, xrow, hrow)))
		}

		for j := range size {
			var pre float32

			if c.resetAfter {
				rec := c.dotR(d, c.n, j, hrow) + c.bias(c.rb, d, c.n, j)
				pre = c.dotW(d, c.n, j, xrow) + c.bias(c.b, d, c.n, j) + float32(r[j]*rec)
			} else {
				for k := range size {
					rh[k] = r[k] * hrow[k]
				}

				pre = c.dotW(d, c.n, j, xrow) + c.bias(c.b, d, c.n, j) + c.dotR(d, c.n, j, rh) + c.bias(c.rb, d, c.n, j)
			}

			n := round(c.candidate(pre))
			next[bb*size+j] = round(float32((1-z[j])*n) + float32(z[j]*hrow[j]))
		}
	}

	return next
}

// gatePre is the pre-activation of gate g: ((W.x + b) + R.h) + rb.
func (c *gruCell) gatePre(d, g, j int64, xrow, hrow []float32) float32 {
	return c.dotW(d, g, j, xrow) + c.bias(c.b, d, g, j) + c.dotR(d, g, j, hrow) + c.bias(c.rb, d, g, j)
}

func (c *gruCell) row(d, g, j int64) int64 {
	return d*3*c.h + g*c.h + j
}

func (c *gruCell) dotW(d, g, j int64, xrow []float32) float32 {
	row := c.row(d, g, j)
	return tensor.Dot(xrow, c.w[row*c.inputSize:(row+1)*c.inputSize])
}

func (c *gruCell) dotR(d, g, j int64, hrow []float32) float32 {
	row := c.row(d, g, j)
	return tensor.Dot(hrow, c.r[row*c.h:(row+1)*c.h])
}

func (c *gruCell) bias(b []float32, d, g, j int64) float32 {
	if b == nil {
		return 0
	}

	return b[c.row(d, g, j)]
}
