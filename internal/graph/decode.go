package graph

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/go-nnconform/internal/codec"
	"github.com/example/go-nnconform/internal/datatype"
)

// Parse decodes a graph description from YAML or JSON text.
func Parse(data []byte) (*Graph, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("graph: parse: %w", err)
	}

	return DecodeNode(&doc)
}

// DecodeNode decodes a graph description from a YAML node. Mapping order is
// preserved for inputs and expected outputs, and numeric literals keep their
// source text.
func DecodeNode(node *yaml.Node) (*Graph, error) {
	node = unwrapDocument(node)
	if node.Kind != yaml.MappingNode {
		return nil, nodeErr(node, "graph must be a mapping")
	}

	g := &Graph{}

	err := eachPair(node, func(key string, val *yaml.Node) error {
		var err error

		switch key {
		case "inputs":
			g.Inputs, err = decodeResources(val)
		case "operators":
			g.Operators, err = decodeOperators(val)
		case "expectedOutputs":
			g.ExpectedOutputs, err = decodeResources(val)
		default:
			return nodeErr(val, "unknown graph field %q", key)
		}

		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	return g, nil
}

func decodeResources(node *yaml.Node) ([]Resource, error) {
	if node.Kind != yaml.MappingNode {
		return nil, nodeErr(node, "expected a mapping of named resources")
	}

	var out []Resource

	err := eachPair(node, func(name string, val *yaml.Node) error {
		r, err := decodeResource(name, val)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		out = append(out, r)

		return nil
	})

	return out, err
}

func decodeResource(name string, node *yaml.Node) (Resource, error) {
	if node.Kind != yaml.MappingNode {
		return Resource{}, nodeErr(node, "expected a resource mapping")
	}

	r := Resource{Name: name}

	err := eachPair(node, func(key string, val *yaml.Node) error {
		var err error

		switch key {
		case "data":
			r.Data, err = decodeData(val)
		case "descriptor":
			r.Descriptor, err = decodeDescriptor(val)
		case "constant":
			err = val.Decode(&r.Constant)
		default:
			return nodeErr(val, "unknown resource field %q", key)
		}

		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}

		return nil
	})

	return r, err
}

func decodeData(node *yaml.Node) (codec.Data, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		n, err := numberFromNode(node)
		if err != nil {
			return codec.Data{}, err
		}

		return codec.ScalarData(n), nil
	case yaml.SequenceNode:
		values := make([]codec.Number, len(node.Content))
		for i, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return codec.Data{}, nodeErr(item, "data element %d is not a number", i)
			}

			n, err := numberFromNode(item)
			if err != nil {
				return codec.Data{}, err
			}

			values[i] = n
		}

		return codec.ArrayData(values...), nil
	default:
		return codec.Data{}, nodeErr(node, "data must be a number or a list of numbers")
	}
}

func decodeDescriptor(node *yaml.Node) (Descriptor, error) {
	var raw struct {
		Shape      []int64 `yaml:"shape"`
		DataType   string  `yaml:"dataType"`
		CastedType string  `yaml:"castedType"`
	}

	if err := node.Decode(&raw); err != nil {
		return Descriptor{}, err
	}

	dt, err := datatype.Parse(raw.DataType)
	if err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{DataType: dt, Shape: raw.Shape}
	if d.Shape == nil {
		d.Shape = []int64{}
	}

	if raw.CastedType != "" {
		if d.CastedType, err = datatype.Parse(raw.CastedType); err != nil {
			return Descriptor{}, err
		}
	}

	return d, nil
}

func decodeOperators(node *yaml.Node) ([]Operator, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, nodeErr(node, "operators must be a list")
	}

	ops := make([]Operator, 0, len(node.Content))

	for i, item := range node.Content {
		op, err := decodeOperator(item)
		if err != nil {
			return nil, fmt.Errorf("operator %d: %w", i, err)
		}

		ops = append(ops, op)
	}

	return ops, nil
}

func decodeOperator(node *yaml.Node) (Operator, error) {
	if node.Kind != yaml.MappingNode {
		return Operator{}, nodeErr(node, "operator must be a mapping")
	}

	var op Operator

	err := eachPair(node, func(key string, val *yaml.Node) error {
		switch key {
		case "name":
			return val.Decode(&op.Name)
		case "arguments":
			args, err := decodeArguments(val)
			op.Arguments = args

			return err
		case "outputs":
			switch val.Kind {
			case yaml.ScalarNode:
				op.Outputs = []string{val.Value}
			case yaml.SequenceNode:
				op.MultiOutput = true
				return val.Decode(&op.Outputs)
			default:
				return nodeErr(val, "outputs must be a name or a list of names")
			}

			return nil
		default:
			return nodeErr(val, "unknown operator field %q", key)
		}
	})

	return op, err
}

// decodeArguments accepts a list of single-key mappings, one per argument.
func decodeArguments(node *yaml.Node) ([]Argument, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, nodeErr(node, "arguments must be a list")
	}

	args := make([]Argument, 0, len(node.Content))

	for i, item := range node.Content {
		if item.Kind != yaml.MappingNode || len(item.Content) != 2 {
			return nil, nodeErr(item, "argument %d must be a single-key mapping", i)
		}

		v, err := decodeValue(item.Content[1])
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", item.Content[0].Value, err)
		}

		args = append(args, Argument{Name: item.Content[0].Value, Value: v})
	}

	return args, nil
}

func decodeValue(node *yaml.Node) (Value, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!int", "!!float":
			n, err := numberFromNode(node)
			if err != nil {
				return Value{}, err
			}

			return NumberValue(n), nil
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return Value{}, err
			}

			return BoolValue(b), nil
		case "!!null":
			return Value{}, nil
		default:
			return StringValue(node.Value), nil
		}
	case yaml.SequenceNode:
		items := make([]Value, len(node.Content))
		for i, item := range node.Content {
			v, err := decodeValue(item)
			if err != nil {
				return Value{}, err
			}

			items[i] = v
		}

		return ListValue(items...), nil
	case yaml.MappingNode:
		var opts Options

		err := eachPair(node, func(key string, val *yaml.Node) error {
			v, err := decodeValue(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}

			opts = append(opts, Argument{Name: key, Value: v})

			return nil
		})
		if err != nil {
			return Value{}, err
		}

		return OptionsValue(opts...), nil
	case yaml.AliasNode:
		return decodeValue(node.Alias)
	default:
		return Value{}, nodeErr(node, "unsupported argument value")
	}
}

// numberFromNode keeps the literal text, mapping YAML's special float
// spellings onto the ones strconv understands.
func numberFromNode(node *yaml.Node) (codec.Number, error) {
	switch strings.ToLower(node.Value) {
	case ".nan", "nan":
		return "NaN", nil
	case ".inf", "+.inf", "infinity", "+infinity":
		return "+Inf", nil
	case "-.inf", "-infinity":
		return "-Inf", nil
	}

	n := codec.Number(node.Value)
	if _, err := n.Float64(); err != nil {
		return "", nodeErr(node, "%q is not a number", node.Value)
	}

	return n, nil
}

func eachPair(node *yaml.Node, fn func(key string, val *yaml.Node) error) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}

	return nil
}

func unwrapDocument(node *yaml.Node) *yaml.Node {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		return node.Content[0]
	}

	return node
}

func nodeErr(node *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", node.Line, fmt.Sprintf(format, args...))
}
