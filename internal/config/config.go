package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig   `mapstructure:"paths"`
	Runtime   RuntimeConfig `mapstructure:"runtime"`
	Suite     SuiteConfig   `mapstructure:"suite"`
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"`
}

type PathsConfig struct {
	FixtureDir string `mapstructure:"fixture_dir"`
}

type RuntimeConfig struct {
	Device               string   `mapstructure:"device"`
	Workers              int      `mapstructure:"workers"`
	DisableInputTypes    []string `mapstructure:"disable_input_types"`
	DisableConstantTypes []string `mapstructure:"disable_constant_types"`
	DisableOutputTypes   []string `mapstructure:"disable_output_types"`
}

type SuiteConfig struct {
	Filter                 []string `mapstructure:"filter"`
	Parallel               int      `mapstructure:"parallel"`
	CastToSupportedType    bool     `mapstructure:"cast_to_supported_type"`
	AllowUnlistedOperators bool     `mapstructure:"allow_unlisted_operators"`
	MaxValidatedElements   int      `mapstructure:"max_validated_elements"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// FixtureDirEnv is honoured in addition to NNCONFORM_PATHS_FIXTURE_DIR.
const FixtureDirEnv = "NNCONFORM_FIXTURE_DIR"

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			FixtureDir: "testdata/conformance",
		},
		Runtime: RuntimeConfig{
			Device:  DeviceCPU,
			Workers: 1,
		},
		Suite: SuiteConfig{
			Parallel:             1,
			MaxValidatedElements: 1000,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// flagKeys maps each registered flag to its config key.
var flagKeys = map[string]string{
	"fixture-dir":              "paths.fixture_dir",
	"device":                   "runtime.device",
	"workers":                  "runtime.workers",
	"disable-input-types":      "runtime.disable_input_types",
	"disable-constant-types":   "runtime.disable_constant_types",
	"disable-output-types":     "runtime.disable_output_types",
	"tc":                       "suite.filter",
	"parallel":                 "suite.parallel",
	"cast-to-supported-type":   "suite.cast_to_supported_type",
	"allow-unlisted-operators": "suite.allow_unlisted_operators",
	"max-validated":            "suite.max_validated_elements",
	"log-level":                "log_level",
	"log-format":               "log_format",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("fixture-dir", defaults.Paths.FixtureDir, "Directory of conformance suite files")
	fs.String("device", defaults.Runtime.Device, "Context device class (cpu|gpu|npu)")
	fs.Int("workers", defaults.Runtime.Workers, "Goroutines used by tensor kernels")
	fs.StringSlice("disable-input-types", defaults.Runtime.DisableInputTypes, "Data types removed from the input support limits")
	fs.StringSlice("disable-constant-types", defaults.Runtime.DisableConstantTypes, "Data types removed from the constant support limits")
	fs.StringSlice("disable-output-types", defaults.Runtime.DisableOutputTypes, "Data types removed from the output support limits")
	fs.StringSlice("tc", defaults.Suite.Filter, "Only run cases with these names (name, suite/name or suite)")
	fs.Int("parallel", defaults.Suite.Parallel, "Cases evaluated concurrently")
	fs.Bool("cast-to-supported-type", defaults.Suite.CastToSupportedType, "Substitute unsupported operand types with a compatible wider type")
	fs.Bool("allow-unlisted-operators", defaults.Suite.AllowUnlistedOperators, "Treat operators without a tolerance rule as exact instead of failing")
	fs.Int("max-validated", defaults.Suite.MaxValidatedElements, "Maximum elements compared when a scalar expectation is expanded")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("log-format", defaults.LogFormat, "Log format (text|json)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("NNCONFORM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if err := v.BindEnv("paths.fixture_dir", "NNCONFORM_PATHS_FIXTURE_DIR", FixtureDirEnv); err != nil {
		return Config{}, fmt.Errorf("bind fixture env vars: %w", err)
	}

	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("nnconform")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	device, err := NormalizeDevice(cfg.Runtime.Device)
	if err != nil {
		return Config{}, err
	}

	cfg.Runtime.Device = device

	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.fixture_dir", c.Paths.FixtureDir)
	v.SetDefault("runtime.device", c.Runtime.Device)
	v.SetDefault("runtime.workers", c.Runtime.Workers)
	v.SetDefault("runtime.disable_input_types", c.Runtime.DisableInputTypes)
	v.SetDefault("runtime.disable_constant_types", c.Runtime.DisableConstantTypes)
	v.SetDefault("runtime.disable_output_types", c.Runtime.DisableOutputTypes)
	v.SetDefault("suite.filter", c.Suite.Filter)
	v.SetDefault("suite.parallel", c.Suite.Parallel)
	v.SetDefault("suite.cast_to_supported_type", c.Suite.CastToSupportedType)
	v.SetDefault("suite.allow_unlisted_operators", c.Suite.AllowUnlistedOperators)
	v.SetDefault("suite.max_validated_elements", c.Suite.MaxValidatedElements)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_format", c.LogFormat)
}
