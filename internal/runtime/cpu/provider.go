// Package cpu is a pure-Go reference implementation of the nnapi runtime
// contract. Graphs are recorded by a Builder, compiled into an ordered node
// list and evaluated on dispatch with the kernels in internal/runtime/ops.
package cpu

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/nnapi"
)

// DeviceCPU is the only device class this runtime provides.
const DeviceCPU = "cpu"

// Options configures the contexts a Provider creates.
type Options struct {
	// Disabled*Types remove kinds from the advertised support limits, which
	// forces the harness onto its type substitution path.
	DisabledInputTypes    []datatype.DataType
	DisabledConstantTypes []datatype.DataType
	DisabledOutputTypes   []datatype.DataType

	Logger *slog.Logger
}

// Provider creates cpu contexts.
type Provider struct {
	opts Options
}

// NewProvider returns a Provider with the given options.
func NewProvider(opts Options) *Provider {
	return &Provider{opts: opts}
}

// CreateContext returns a context for the cpu device. Any other device class
// fails with nnapi.ErrContextCreation.
func (p *Provider) CreateContext(ctx context.Context, opts nnapi.ContextOptions) (nnapi.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	device := strings.ToLower(strings.TrimSpace(opts.DeviceType))
	if device != "" && device != DeviceCPU {
		return nil, fmt.Errorf("%w: device %q is not available in the cpu runtime", nnapi.ErrContextCreation, opts.DeviceType)
	}

	logger := p.opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Context{
		limits: p.limits(),
		logger: logger.With("device", DeviceCPU),
	}, nil
}

func (p *Provider) limits() nnapi.SupportLimits {
	return nnapi.SupportLimits{
		Input:    nnapi.DataTypeLimits{DataTypes: without(datatype.All, p.opts.DisabledInputTypes)},
		Constant: nnapi.DataTypeLimits{DataTypes: without(datatype.All, p.opts.DisabledConstantTypes)},
		Output:   nnapi.DataTypeLimits{DataTypes: without(datatype.All, p.opts.DisabledOutputTypes)},
		Cast: nnapi.CastLimits{
			Input:  nnapi.DataTypeLimits{DataTypes: slices.Clone(datatype.All)},
			Output: nnapi.DataTypeLimits{DataTypes: slices.Clone(datatype.All)},
		},
		Operators: operatorLimits(),
	}
}

func without(all, drop []datatype.DataType) []datatype.DataType {
	out := make([]datatype.DataType, 0, len(all))
	for _, dt := range all {
		if !slices.Contains(drop, dt) {
			out = append(out, dt)
		}
	}

	return out
}
