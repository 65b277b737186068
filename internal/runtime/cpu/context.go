package cpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/example/go-nnconform/internal/nnapi"
)

var errDestroyedTensor = errors.New("tensor was destroyed")

// Context evaluates cpu graphs.
type Context struct {
	limits nnapi.SupportLimits
	logger *slog.Logger
}

// OpSupportLimits reports the kinds this context accepts.
func (c *Context) OpSupportLimits() nnapi.SupportLimits {
	return c.limits
}

// NewBuilder starts a new graph.
func (c *Context) NewBuilder() nnapi.Builder {
	return newBuilder(c)
}

// Tensor is host memory bound to graph inputs and outputs.
type Tensor struct {
	desc nnapi.TensorDescriptor

	mu        sync.Mutex
	data      []byte
	destroyed bool
}

// Descriptor returns the tensor descriptor.
func (t *Tensor) Descriptor() nnapi.TensorDescriptor {
	d := t.desc
	d.Shape = slices.Clone(d.Shape)

	return d
}

// Destroy releases the tensor storage.
func (t *Tensor) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data = nil
	t.destroyed = true
}

// CreateTensor allocates zeroed storage for desc.
func (c *Context) CreateTensor(ctx context.Context, desc nnapi.TensorDescriptor) (nnapi.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !desc.DataType.Valid() {
		return nil, fmt.Errorf("cpu: create tensor: invalid data type %v", desc.DataType)
	}

	for _, d := range desc.Shape {
		if d < 0 {
			return nil, fmt.Errorf("cpu: create tensor: negative dimension in %v", desc.Shape)
		}
	}

	desc.Shape = slices.Clone(desc.Shape)

	return &Tensor{
		desc: desc,
		data: make([]byte, desc.DataType.ByteLength(desc.ElementCount())),
	}, nil
}

// WriteTensor copies data into a writable tensor.
func (c *Context) WriteTensor(t nnapi.Tensor, data []byte) error {
	ct, err := c.own(t)
	if err != nil {
		return err
	}

	if !ct.desc.Writable {
		return errors.New("cpu: write tensor: tensor is not writable")
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.destroyed {
		return fmt.Errorf("cpu: write tensor: %w", errDestroyedTensor)
	}

	if len(data) != len(ct.data) {
		return fmt.Errorf("cpu: write tensor: got %d bytes, want %d", len(data), len(ct.data))
	}

	copy(ct.data, data)

	return nil
}

// ReadTensor returns a copy of a readable tensor's contents.
func (c *Context) ReadTensor(ctx context.Context, t nnapi.Tensor) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ct, err := c.own(t)
	if err != nil {
		return nil, err
	}

	if !ct.desc.Readable {
		return nil, errors.New("cpu: read tensor: tensor is not readable")
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.destroyed {
		return nil, fmt.Errorf("cpu: read tensor: %w", errDestroyedTensor)
	}

	return slices.Clone(ct.data), nil
}

func (c *Context) own(t nnapi.Tensor) (*Tensor, error) {
	ct, ok := t.(*Tensor)
	if !ok || ct == nil {
		return nil, fmt.Errorf("cpu: tensor %T was not created by the cpu runtime", t)
	}

	return ct, nil
}

// Dispatch evaluates g with the bound input tensors and writes every graph
// output into its bound output tensor.
func (c *Context) Dispatch(g nnapi.Graph, inputs, outputs map[string]nnapi.Tensor) error {
	cg, ok := g.(*Graph)
	if !ok || cg == nil {
		return fmt.Errorf("cpu: dispatch: graph %T was not built by the cpu runtime", g)
	}

	env := make(map[int]value, len(cg.inputs)+len(cg.constants)+len(cg.nodes))
	for id, v := range cg.constants {
		env[id] = v
	}

	for name, o := range cg.inputs {
		t, ok := inputs[name]
		if !ok {
			return fmt.Errorf("cpu: dispatch: input %q is not bound", name)
		}

		v, err := c.bind(name, o, t)
		if err != nil {
			return err
		}

		env[o.id] = v
	}

	for _, n := range cg.nodes {
		c.logger.Debug("dispatch node", "op", n.op, "outputs", len(n.outputs))

		results, err := kernels[n.op](&call{op: n.op, args: n.args, env: env})
		if err != nil {
			return fmt.Errorf("cpu: dispatch %s: %w", n.op, err)
		}

		if len(results) != len(n.outputs) {
			return fmt.Errorf("cpu: dispatch %s: produced %d outputs, want %d", n.op, len(results), len(n.outputs))
		}

		for i, o := range n.outputs {
			env[o.id] = results[i]
		}
	}

	for name, o := range cg.outputs {
		t, ok := outputs[name]
		if !ok {
			return fmt.Errorf("cpu: dispatch: output %q is not bound", name)
		}

		if err := c.store(name, o, env[o.id], t); err != nil {
			return err
		}
	}

	return nil
}

func (c *Context) bind(name string, o *operand, t nnapi.Tensor) (value, error) {
	ct, err := c.own(t)
	if err != nil {
		return value{}, err
	}

	if err := matchDescriptor(ct.desc.OperandDescriptor, o.desc); err != nil {
		return value{}, fmt.Errorf("cpu: dispatch: input %q: %w", name, err)
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.destroyed {
		return value{}, fmt.Errorf("cpu: dispatch: input %q: %w", name, errDestroyedTensor)
	}

	return decodeValue(o.desc, ct.data)
}

func (c *Context) store(name string, o *operand, v value, t nnapi.Tensor) error {
	ct, err := c.own(t)
	if err != nil {
		return err
	}

	if err := matchDescriptor(ct.desc.OperandDescriptor, o.desc); err != nil {
		return fmt.Errorf("cpu: dispatch: output %q: %w", name, err)
	}

	buf, err := v.encode()
	if err != nil {
		return fmt.Errorf("cpu: dispatch: output %q: %w", name, err)
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.destroyed {
		return fmt.Errorf("cpu: dispatch: output %q: %w", name, errDestroyedTensor)
	}

	copy(ct.data, buf)

	return nil
}

func matchDescriptor(got, want nnapi.OperandDescriptor) error {
	if got.DataType != want.DataType || !slices.Equal(got.Shape, want.Shape) {
		return fmt.Errorf("tensor %v%v does not match operand %v%v", got.DataType, got.Shape, want.DataType, want.Shape)
	}

	return nil
}
