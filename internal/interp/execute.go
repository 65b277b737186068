package interp

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/example/go-nnconform/internal/codec"
	"github.com/example/go-nnconform/internal/graph"
	"github.com/example/go-nnconform/internal/nnapi"
)

// tensorSet collects runtime tensors created concurrently.
type tensorSet struct {
	mu      sync.Mutex
	tensors map[string]nnapi.Tensor
}

func newTensorSet(n int) *tensorSet {
	return &tensorSet{tensors: make(map[string]nnapi.Tensor, n)}
}

func (ts *tensorSet) put(name string, t nnapi.Tensor) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.tensors[name] = t
}

func (ts *tensorSet) destroy() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for _, t := range ts.tensors {
		t.Destroy()
	}
}

// execute writes the inputs, dispatches compiled and reads the outputs back
// in their declared kinds.
func (s *session) execute(ctx context.Context, compiled nnapi.Graph, descs map[string]graph.Descriptor) (map[string][]byte, error) {
	inputs := newTensorSet(len(s.inputs))
	defer inputs.destroy()

	outputs := newTensorSet(len(descs))
	defer outputs.destroy()

	p := pool.New().WithErrors().WithContext(ctx)

	for _, in := range s.inputs {
		p.Go(func(ctx context.Context) error {
			return s.writeInput(ctx, inputs, in)
		})
	}

	for name, desc := range descs {
		p.Go(func(ctx context.Context) error {
			t, err := s.rt.CreateTensor(ctx, nnapi.TensorDescriptor{
				OperandDescriptor: operandDescriptor(desc),
				Readable:          true,
			})
			if err != nil {
				return fmt.Errorf("interp: output %q: create tensor: %w", name, err)
			}

			outputs.put(name, t)

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	if err := s.rt.Dispatch(compiled, inputs.tensors, outputs.tensors); err != nil {
		return nil, fmt.Errorf("interp: dispatch: %w", err)
	}

	var mu sync.Mutex

	bufs := make(map[string][]byte, len(descs))
	rp := pool.New().WithErrors().WithContext(ctx)

	for name, desc := range descs {
		rp.Go(func(ctx context.Context) error {
			buf, err := s.readOutput(ctx, outputs.tensors[name], desc)
			if err != nil {
				return fmt.Errorf("interp: output %q: %w", name, err)
			}

			mu.Lock()
			bufs[name] = buf
			mu.Unlock()

			return nil
		})
	}

	if err := rp.Wait(); err != nil {
		return nil, err
	}

	return bufs, nil
}

func (s *session) writeInput(ctx context.Context, ts *tensorSet, in boundInput) error {
	od := operandDescriptor(in.desc)

	buf, err := codec.Encode(od.DataType, od.ElementCount(), in.resource.Data)
	if err != nil {
		return fmt.Errorf("interp: input %q: %w", in.name, err)
	}

	t, err := s.rt.CreateTensor(ctx, nnapi.TensorDescriptor{OperandDescriptor: od, Writable: true})
	if err != nil {
		return fmt.Errorf("interp: input %q: create tensor: %w", in.name, err)
	}

	ts.put(in.name, t)

	if err := s.rt.WriteTensor(t, buf); err != nil {
		return fmt.Errorf("interp: input %q: write tensor: %w", in.name, err)
	}

	return nil
}

// readOutput reads t and undoes a storage substitution on the host.
func (s *session) readOutput(ctx context.Context, t nnapi.Tensor, desc graph.Descriptor) ([]byte, error) {
	buf, err := s.rt.ReadTensor(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("read tensor: %w", err)
	}

	if !desc.Casted() {
		return buf, nil
	}

	return codec.Convert(buf, desc.CastedType, desc.DataType, desc.ElementCount())
}

func operandDescriptor(d graph.Descriptor) nnapi.OperandDescriptor {
	return nnapi.OperandDescriptor{DataType: d.StorageType(), Shape: d.Shape}
}
