package cpu

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"

	"github.com/example/go-nnconform/internal/nnapi"
)

// call is one kernel invocation: the recorded arguments plus the operand
// values they resolve to.
type call struct {
	op   string
	args []nnapi.Arg
	env  map[int]value
}

// positional returns the i-th non-options argument.
func (c *call) positional(i int) (nnapi.Arg, bool) {
	n := 0
	for _, a := range c.args {
		if a.Kind == nnapi.ArgOptions {
			continue
		}

		if n == i {
			return a, true
		}

		n++
	}

	return nnapi.Arg{}, false
}

func (c *call) resolve(o nnapi.Operand) (value, error) {
	own, ok := o.(*operand)
	if !ok {
		return value{}, fmt.Errorf("%w: %T", errForeignOperand, o)
	}

	v, ok := c.env[own.id]
	if !ok {
		return value{}, fmt.Errorf("operand %d has no value", own.id)
	}

	return v, nil
}

// operand returns positional argument i as an operand value.
func (c *call) operand(i int) (value, error) {
	a, ok := c.positional(i)
	if !ok {
		return value{}, fmt.Errorf("missing operand argument %d", i)
	}

	if a.Kind != nnapi.ArgOperand {
		return value{}, fmt.Errorf("argument %d (%s) is not an operand", i, a.Name)
	}

	return c.resolve(a.Operand)
}

// operands returns positional argument i as a list of operand values.
func (c *call) operands(i int) ([]value, error) {
	a, ok := c.positional(i)
	if !ok {
		return nil, fmt.Errorf("missing operand list argument %d", i)
	}

	list := a.Operands
	if a.Kind == nnapi.ArgOperand {
		list = []nnapi.Operand{a.Operand}
	} else if a.Kind != nnapi.ArgOperands {
		return nil, fmt.Errorf("argument %d (%s) is not an operand list", i, a.Name)
	}

	out := make([]value, len(list))
	for k, o := range list {
		v, err := c.resolve(o)
		if err != nil {
			return nil, err
		}

		out[k] = v
	}

	return out, nil
}

// optional resolves an operand taken from an options struct; nil stays
// absent.
func (c *call) optional(o nnapi.Operand) (value, bool, error) {
	if o == nil {
		return value{}, false, nil
	}

	v, err := c.resolve(o)

	return v, err == nil, err
}

// literal returns positional argument i as a Go literal.
func (c *call) literal(i int) (any, bool) {
	a, ok := c.positional(i)
	if !ok || a.Kind != nnapi.ArgLiteral {
		return nil, false
	}

	return a.Literal, true
}

func (c *call) int64Arg(i int, fallback int64) (int64, error) {
	lit, ok := c.literal(i)
	if !ok {
		return fallback, nil
	}

	v, err := cast.ToInt64E(lit)
	if err != nil {
		return 0, fmt.Errorf("argument %d: %w", i, err)
	}

	return v, nil
}

func (c *call) int64sArg(i int) ([]int64, bool, error) {
	lit, ok := c.literal(i)
	if !ok {
		return nil, false, nil
	}

	v, err := toInt64s(lit)
	if err != nil {
		return nil, true, fmt.Errorf("argument %d: %w", i, err)
	}

	return v, true, nil
}

func (c *call) stringArg(i int) (string, error) {
	lit, ok := c.literal(i)
	if !ok {
		return "", fmt.Errorf("missing argument %d", i)
	}

	return cast.ToStringE(lit)
}

// options decodes the options bag into dst, which should already hold the
// defaults. Keys missing from the bag keep their default.
func (c *call) options(dst any) error {
	for _, a := range c.args {
		if a.Kind != nnapi.ArgOptions {
			continue
		}

		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           dst,
		})
		if err != nil {
			return err
		}

		if err := dec.Decode(a.Value()); err != nil {
			return fmt.Errorf("options: %w", err)
		}
	}

	return nil
}

func toInt64s(v any) ([]int64, error) {
	if ints, ok := v.([]int64); ok {
		return ints, nil
	}

	items, err := cast.ToSliceE(v)
	if err != nil {
		return nil, err
	}

	out := make([]int64, len(items))
	for k, item := range items {
		if out[k], err = cast.ToInt64E(item); err != nil {
			return nil, fmt.Errorf("element %d: %w", k, err)
		}
	}

	return out, nil
}
