package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/example/go-nnconform/internal/config"
	"github.com/example/go-nnconform/internal/conformance"
	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/fixture"
	"github.com/example/go-nnconform/internal/runtime/cpu"
)

// fsys is swapped for an in-memory filesystem in tests.
var fsys = afero.NewOsFs()

func newProvider(cfg config.Config) (*cpu.Provider, error) {
	in, err := datatype.ParseList(cfg.Runtime.DisableInputTypes)
	if err != nil {
		return nil, fmt.Errorf("runtime.disable_input_types: %w", err)
	}

	constant, err := datatype.ParseList(cfg.Runtime.DisableConstantTypes)
	if err != nil {
		return nil, fmt.Errorf("runtime.disable_constant_types: %w", err)
	}

	out, err := datatype.ParseList(cfg.Runtime.DisableOutputTypes)
	if err != nil {
		return nil, fmt.Errorf("runtime.disable_output_types: %w", err)
	}

	return cpu.NewProvider(cpu.Options{
		DisabledInputTypes:    in,
		DisabledConstantTypes: constant,
		DisabledOutputTypes:   out,
		Logger:                slog.Default(),
	}), nil
}

func newRunner(cfg config.Config) (*conformance.Runner, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	return conformance.NewRunner(provider, conformance.Options{
		Device:              cfg.Runtime.Device,
		Filter:              cfg.Suite.Filter,
		CastToSupportedType: cfg.Suite.CastToSupportedType,
		AllowUnlisted:       cfg.Suite.AllowUnlistedOperators,
		MaxValidated:        cfg.Suite.MaxValidatedElements,
		Parallel:            cfg.Suite.Parallel,
		Logger:              slog.Default(),
	}), nil
}

// loadSuites reads the named suite files, or every suite in the fixture
// directory when none are named.
func loadSuites(cfg config.Config, paths []string) ([]*fixture.Suite, error) {
	if len(paths) == 0 {
		return fixture.LoadDir(fsys, cfg.Paths.FixtureDir)
	}

	suites := make([]*fixture.Suite, 0, len(paths))

	for _, p := range paths {
		s, err := fixture.Load(fsys, p)
		if err != nil {
			return nil, err
		}

		suites = append(suites, s)
	}

	return suites, nil
}

func loadCases(cfg config.Config, paths []string) ([]conformance.Case, error) {
	suites, err := loadSuites(cfg, paths)
	if err != nil {
		return nil, err
	}

	return conformance.FromSuites(suites), nil
}
