package fixture

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/testutil"
	"github.com/example/go-nnconform/internal/tolerance"
)

const reshapeSuite = `{
  "operator": "reshape",
  "tests": [
    {
      "name": "reshape float32 2D to 1D",
      "graph": {
        "inputs": {
          "x": {"data": [1, 2, 3, 4], "descriptor": {"shape": [2, 2], "dataType": "float32"}}
        },
        "operators": [
          {"name": "reshape", "arguments": [{"input": "x"}, {"newShape": [4]}], "outputs": "y"}
        ],
        "expectedOutputs": {
          "y": {"data": [1, 2, 3, 4], "descriptor": {"shape": [4], "dataType": "float32"}}
        }
      }
    }
  ]
}`

const yamlSuite = `
operator: relu
tolerance:
  float32: 0
tests:
  - name: relu scalar nan
    graph:
      inputs:
        x: {data: .nan, descriptor: {shape: [2], dataType: float32}}
      operators:
        - name: relu
          arguments: [{input: x}]
          outputs: y
      expectedOutputs:
        y: {data: [0, 0], descriptor: {shape: [2], dataType: float32}}
`

func TestLoadJSONSuite(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/suites/reshape.json", []byte(reshapeSuite), 0o644))

	s, err := Load(fsys, "/suites/reshape.json")
	require.NoError(t, err)

	assert.Equal(t, "reshape", s.Name)
	assert.Equal(t, "reshape", s.Operator)
	require.Len(t, s.Cases, 1)

	c, ok := s.Case("reshape float32 2D to 1D")
	require.True(t, ok)
	assert.Equal(t, []string{"reshape"}, c.Graph.OperatorNames())

	policy := &tolerance.Policy{}
	assert.Same(t, policy, s.ToleranceSource(policy))
}

func TestLoadYAMLSuite(t *testing.T) {
	s, err := Parse("relu", []byte(yamlSuite))
	require.NoError(t, err)

	assert.Equal(t, tolerance.Fixed{datatype.Float32: 0}, s.Tolerance)
	assert.Equal(t, s.Tolerance, s.ToleranceSource(&tolerance.Policy{}))

	in, ok := s.Cases[0].Graph.Input("x")
	require.True(t, ok)
	assert.True(t, in.Data.Scalar)
	assert.Equal(t, "NaN", in.Data.Values[0].String())
}

func TestSchemaRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no tests", `{"operator": "add"}`},
		{"empty tests", `{"tests": []}`},
		{"unknown kind", `{"tests": [{"name": "a", "graph": {"operators": [{"name": "relu", "outputs": "y"}],
			"expectedOutputs": {"y": {"data": 1, "descriptor": {"dataType": "bfloat16"}}}}}]}`},
		{"unknown field", `{"tests": [], "extra": 1}`},
		{"negative tolerance", `{"tolerance": {"float32": -1}, "tests": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad", []byte(tt.doc))
			assert.ErrorContains(t, err, "suite validation failed")
		})
	}
}

func TestDuplicateCaseNames(t *testing.T) {
	doc := `{"tests": [
	  {"name": "a", "graph": {"operators": [{"name": "relu", "arguments": [{"input": "x"}], "outputs": "y"}],
	    "inputs": {"x": {"data": 1, "descriptor": {"dataType": "float32"}}},
	    "expectedOutputs": {"y": {"data": 1, "descriptor": {"dataType": "float32"}}}}},
	  {"name": "a", "graph": {"operators": [{"name": "relu", "arguments": [{"input": "x"}], "outputs": "y"}],
	    "inputs": {"x": {"data": 1, "descriptor": {"dataType": "float32"}}},
	    "expectedOutputs": {"y": {"data": 1, "descriptor": {"dataType": "float32"}}}}}
	]}`

	_, err := Parse("dup", []byte(doc))
	assert.ErrorContains(t, err, "duplicate name")
}

func TestLoadDir(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/s/b.yaml", []byte(yamlSuite), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/s/a.json", []byte(reshapeSuite), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/s/notes.txt", []byte("ignored"), 0o644))
	require.NoError(t, fsys.MkdirAll("/s/nested.json", 0o755))

	suites, err := LoadDir(fsys, "/s")
	require.NoError(t, err)
	require.Len(t, suites, 2)
	assert.Equal(t, "a", suites[0].Name)
	assert.Equal(t, "b", suites[1].Name)

	_, err = LoadDir(fsys, "/missing")
	assert.ErrorContains(t, err, "does not exist")
}

func TestCorpusSuitesLoad(t *testing.T) {
	dir := testutil.ConformanceDir(t)

	suites, err := LoadDir(afero.NewOsFs(), dir)
	require.NoError(t, err)
	require.NotEmpty(t, suites)

	for _, s := range suites {
		assert.NotEmpty(t, s.Cases, s.Name)
	}

	for _, s := range suites {
		if s.Name != "gru" {
			continue
		}

		assert.Len(t, s.Cases, 24)
		assert.Equal(t, tolerance.Fixed{datatype.Float32: 6, datatype.Float16: 6}, s.Tolerance)
	}
}
