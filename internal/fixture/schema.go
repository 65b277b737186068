package fixture

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed suite.schema.json
var schemaData []byte

var (
	suiteSchema *jsonschema.Schema
	compileOnce sync.Once
	compileErr  error
)

func compileSchema() error {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal suite schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()

		if err := compiler.AddResource("suite.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add suite schema resource: %w", err)
			return
		}

		suiteSchema, err = compiler.Compile("suite.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile suite schema: %w", err)
		}
	})

	return compileErr
}

// Validate checks a JSON or YAML suite document against the suite schema.
func Validate(data []byte) error {
	if err := compileSchema(); err != nil {
		return err
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid suite document: %w", err)
	}

	if err := suiteSchema.Validate(jsonValue(v)); err != nil {
		return fmt.Errorf("suite validation failed: %w", err)
	}

	return nil
}

// jsonValue maps a decoded YAML value onto the types the schema validator
// understands. Non-finite floats become their fixture spelling.
func jsonValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = jsonValue(item)
		}

		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[fmt.Sprint(k)] = jsonValue(item)
		}

		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = jsonValue(item)
		}

		return out
	case int:
		return json.Number(strconv.Itoa(x))
	case int64:
		return json.Number(strconv.FormatInt(x, 10))
	case uint64:
		return json.Number(strconv.FormatUint(x, 10))
	case float64:
		switch {
		case math.IsNaN(x):
			return "NaN"
		case math.IsInf(x, 1):
			return "Infinity"
		case math.IsInf(x, -1):
			return "-Infinity"
		}

		return json.Number(strconv.FormatFloat(x, 'g', -1, 64))
	default:
		return v
	}
}
