package graph

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/example/go-nnconform/internal/codec"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
	KindBool
	KindList
	KindOptions
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindOptions:
		return "options"
	default:
		return "null"
	}
}

// Value is an operator argument as written in the graph description.
// Strings may name operands; the interpreter decides.
type Value struct {
	Kind    ValueKind
	Number  codec.Number
	String  string
	Bool    bool
	List    []Value
	Options Options
}

// Argument is a named operator argument.
type Argument struct {
	Name  string
	Value Value
}

// Options is an ordered options bag.
type Options []Argument

// Lookup returns the value of a named option.
func (o Options) Lookup(name string) (Value, bool) {
	for _, a := range o {
		if a.Name == name {
			return a.Value, true
		}
	}

	return Value{}, false
}

// Has reports whether the option is present.
func (o Options) Has(name string) bool {
	_, ok := o.Lookup(name)

	return ok
}

func NumberValue(n codec.Number) Value { return Value{Kind: KindNumber, Number: n} }

func StringValue(s string) Value { return Value{Kind: KindString, String: s} }

func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func ListValue(items ...Value) Value { return Value{Kind: KindList, List: items} }

func OptionsValue(opts ...Argument) Value { return Value{Kind: KindOptions, Options: opts} }

// Literal converts the value into plain Go data: int64 or float64 for
// numbers, string, bool, []any for lists and map[string]any for options.
func (v Value) Literal() (any, error) {
	switch v.Kind {
	case KindNumber:
		if i, err := cast.ToInt64E(string(v.Number)); err == nil {
			return i, nil
		}

		return v.Number.Float64()
	case KindString:
		return v.String, nil
	case KindBool:
		return v.Bool, nil
	case KindList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			lit, err := item.Literal()
			if err != nil {
				return nil, err
			}

			out[i] = lit
		}

		return out, nil
	case KindOptions:
		out := make(map[string]any, len(v.Options))
		for _, a := range v.Options {
			lit, err := a.Value.Literal()
			if err != nil {
				return nil, err
			}

			out[a.Name] = lit
		}

		return out, nil
	default:
		return nil, nil
	}
}

// Int coerces the value to an integer.
func (v Value) Int() (int64, error) {
	lit, err := v.Literal()
	if err != nil {
		return 0, err
	}

	n, err := cast.ToInt64E(lit)
	if err != nil {
		return 0, fmt.Errorf("graph: %s value is not an integer: %w", v.Kind, err)
	}

	return n, nil
}

// Float coerces the value to a float.
func (v Value) Float() (float64, error) {
	if v.Kind == KindNumber {
		return v.Number.Float64()
	}

	lit, err := v.Literal()
	if err != nil {
		return 0, err
	}

	f, err := cast.ToFloat64E(lit)
	if err != nil {
		return 0, fmt.Errorf("graph: %s value is not a number: %w", v.Kind, err)
	}

	return f, nil
}

// Ints coerces a list value to integers.
func (v Value) Ints() ([]int64, error) {
	if v.Kind != KindList {
		return nil, fmt.Errorf("graph: %s value is not a list", v.Kind)
	}

	out := make([]int64, len(v.List))
	for i, item := range v.List {
		n, err := item.Int()
		if err != nil {
			return nil, fmt.Errorf("graph: list element %d: %w", i, err)
		}

		out[i] = n
	}

	return out, nil
}

// Text coerces the value to a string.
func (v Value) Text() (string, error) {
	lit, err := v.Literal()
	if err != nil {
		return "", err
	}

	return cast.ToStringE(lit)
}

// Truthy reports a boolean option, treating a missing or null value as false.
func (v Value) Truthy() bool {
	lit, err := v.Literal()
	if err != nil || lit == nil {
		return false
	}

	return cast.ToBool(lit)
}
