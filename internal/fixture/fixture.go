// Package fixture loads conformance suites: a list of named graph
// descriptions plus an optional per-kind tolerance override, written as JSON
// or YAML and validated against an embedded JSON schema.
package fixture

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/graph"
	"github.com/example/go-nnconform/internal/tolerance"
)

// Extensions lists the file suffixes LoadDir picks up.
var Extensions = []string{".json", ".yaml", ".yml"}

// Case is one named graph of a suite.
type Case struct {
	Name  string
	Graph *graph.Graph
}

// Suite is a parsed fixture file.
type Suite struct {
	// Name is the file name without extension.
	Name        string
	Path        string
	Operator    string
	Description string
	// Tolerance replaces the operator policy when set.
	Tolerance tolerance.Fixed
	Cases     []Case
}

// Case looks up a case by name.
func (s *Suite) Case(name string) (Case, bool) {
	for _, c := range s.Cases {
		if c.Name == name {
			return c, true
		}
	}

	return Case{}, false
}

// ToleranceSource returns the suite override, or policy when the suite has
// none.
func (s *Suite) ToleranceSource(policy tolerance.Source) tolerance.Source {
	if len(s.Tolerance) > 0 {
		return s.Tolerance
	}

	return policy
}

// Load reads and parses one suite file.
func Load(fsys afero.Fs, path string) (*Suite, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read %s: %w", path, err)
	}

	s, err := Parse(suiteName(path), data)
	if err != nil {
		return nil, fmt.Errorf("fixture: %s: %w", path, err)
	}

	s.Path = path

	return s, nil
}

// LoadDir loads every suite file directly under dir, sorted by path.
func LoadDir(fsys afero.Fs, dir string) ([]*Suite, error) {
	paths, err := Discover(fsys, dir)
	if err != nil {
		return nil, err
	}

	suites := make([]*Suite, 0, len(paths))

	for _, p := range paths {
		s, err := Load(fsys, p)
		if err != nil {
			return nil, err
		}

		suites = append(suites, s)
	}

	return suites, nil
}

// Discover lists the suite files under dir, sorted.
func Discover(fsys afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("fixture: directory %s does not exist: %w", dir, err)
		}

		return nil, fmt.Errorf("fixture: read dir %s: %w", dir, err)
	}

	var paths []string

	for _, e := range entries {
		if e.IsDir() || !slices.Contains(Extensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}

		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	slices.Sort(paths)

	return paths, nil
}

// Parse validates data against the suite schema and decodes it.
func Parse(name string, data []byte) (*Suite, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	s := &Suite{Name: name}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, root.Content[i+1]

		var err error

		switch key {
		case "operator":
			err = val.Decode(&s.Operator)
		case "description":
			err = val.Decode(&s.Description)
		case "tolerance":
			s.Tolerance, err = decodeTolerance(val)
		case "tests":
			s.Cases, err = decodeCases(val)
		}

		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}

	return s, nil
}

func decodeTolerance(node *yaml.Node) (tolerance.Fixed, error) {
	var raw map[string]float64
	if err := node.Decode(&raw); err != nil {
		return nil, err
	}

	out := make(tolerance.Fixed, len(raw))

	for name, v := range raw {
		dt, err := datatype.Parse(name)
		if err != nil {
			return nil, err
		}

		out[dt] = v
	}

	return out, nil
}

func decodeCases(node *yaml.Node) ([]Case, error) {
	cases := make([]Case, 0, len(node.Content))
	seen := make(map[string]bool, len(node.Content))

	for i, item := range node.Content {
		var c Case

		for k := 0; k+1 < len(item.Content); k += 2 {
			switch item.Content[k].Value {
			case "name":
				c.Name = item.Content[k+1].Value
			case "graph":
				g, err := graph.DecodeNode(item.Content[k+1])
				if err != nil {
					return nil, fmt.Errorf("case %d: %w", i, err)
				}

				c.Graph = g
			}
		}

		if seen[c.Name] {
			return nil, fmt.Errorf("case %d: duplicate name %q", i, c.Name)
		}

		seen[c.Name] = true

		if err := c.Graph.Validate(); err != nil {
			return nil, fmt.Errorf("case %q: %w", c.Name, err)
		}

		cases = append(cases, c)
	}

	return cases, nil
}

func suiteName(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}
