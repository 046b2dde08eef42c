// Package config holds the sizing parameters shared by the command line tools
// and loads them from YAML.
//
// Precedence
// ==========
//
// Values are resolved in three layers, later layers winning:
//
//  1. Default()
//  2. The YAML file named by -config, if any. Keys missing from the file keep
//     their default.
//  3. Flags given explicitly on the command line. A flag left at its default
//     does not override the file.
//
// A minimal file:
//
//	bloom:
//	  expected_items: 500000
//	  false_positive_rate: 0.001
//	count_min:
//	  epsilon: 0.0005
//	  delta: 0.01
//	hyperloglog:
//	  precision: 12
//	shards: 32
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"sketch.lopezb.com/internal/pds/hyperloglog"
)

// ErrInvalid is returned by Validate for out-of-range values.
var ErrInvalid = errors.New("config: invalid value")

// Config holds the complete sketch configuration.
type Config struct {
	Bloom       BloomConfig       `yaml:"bloom"`
	CountMin    CountMinConfig    `yaml:"count_min"`
	HyperLogLog HyperLogLogConfig `yaml:"hyperloglog"`

	Shards  int `yaml:"shards"`  // lock shards for the concurrent structures
	Workers int `yaml:"workers"` // ingestion goroutines
	TopK    int `yaml:"top_k"`

	// Seed drives the synthetic data generators. 0 picks a random seed.
	Seed uint64 `yaml:"seed"`
}

// BloomConfig sizes a Bloom filter.
type BloomConfig struct {
	ExpectedItems     uint64  `yaml:"expected_items"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

// CountMinConfig sizes a Count-Min sketch from its error bounds.
type CountMinConfig struct {
	Epsilon float64 `yaml:"epsilon"`
	Delta   float64 `yaml:"delta"`
}

// HyperLogLogConfig sizes a HyperLogLog.
type HyperLogLogConfig struct {
	Precision uint8 `yaml:"precision"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bloom: BloomConfig{
			ExpectedItems:     100000,
			FalsePositiveRate: 0.01,
		},
		CountMin: CountMinConfig{
			Epsilon: 0.001,
			Delta:   0.01,
		},
		HyperLogLog: HyperLogLogConfig{
			Precision: hyperloglog.DefaultPrecision,
		},
		Shards:  16,
		Workers: 4,
		TopK:    10,
	}
}

// Load reads a YAML file over Default() and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sketch config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sketch config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first out-of-range field.
func (c *Config) Validate() error {
	switch {
	case c.Bloom.ExpectedItems < 1:
		return fmt.Errorf("%w: bloom.expected_items must be >= 1", ErrInvalid)
	case !(c.Bloom.FalsePositiveRate > 0 && c.Bloom.FalsePositiveRate < 1):
		return fmt.Errorf("%w: bloom.false_positive_rate must be in (0, 1), got %v", ErrInvalid, c.Bloom.FalsePositiveRate)
	case !(c.CountMin.Epsilon > 0):
		return fmt.Errorf("%w: count_min.epsilon must be > 0, got %v", ErrInvalid, c.CountMin.Epsilon)
	case !(c.CountMin.Delta > 0 && c.CountMin.Delta < 1):
		return fmt.Errorf("%w: count_min.delta must be in (0, 1), got %v", ErrInvalid, c.CountMin.Delta)
	case c.HyperLogLog.Precision < hyperloglog.MinPrecision || c.HyperLogLog.Precision > hyperloglog.MaxPrecision:
		return fmt.Errorf("%w: hyperloglog.precision must be in [%d, %d], got %d",
			ErrInvalid, hyperloglog.MinPrecision, hyperloglog.MaxPrecision, c.HyperLogLog.Precision)
	case c.Shards < 1:
		return fmt.Errorf("%w: shards must be >= 1", ErrInvalid)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be >= 1", ErrInvalid)
	case c.TopK < 1:
		return fmt.Errorf("%w: top_k must be >= 1", ErrInvalid)
	}
	return nil
}

// bindings maps each flag name to the field it sets, so explicitly set flags
// can be copied over a loaded file.
var bindings = []struct {
	name  string
	usage string
	bind  func(fs *flag.FlagSet, c *Config, name, usage string)
	copy  func(dst, src *Config)
}{
	{
		name: "bloom-items", usage: "Bloom filter expected number of items",
		bind: func(fs *flag.FlagSet, c *Config, n, u string) { fs.Uint64Var(&c.Bloom.ExpectedItems, n, c.Bloom.ExpectedItems, u) },
		copy: func(d, s *Config) { d.Bloom.ExpectedItems = s.Bloom.ExpectedItems },
	},
	{
		name: "bloom-fp", usage: "Bloom filter target false positive rate (e.g., 0.01 for 1%)",
		bind: func(fs *flag.FlagSet, c *Config, n, u string) {
			fs.Float64Var(&c.Bloom.FalsePositiveRate, n, c.Bloom.FalsePositiveRate, u)
		},
		copy: func(d, s *Config) { d.Bloom.FalsePositiveRate = s.Bloom.FalsePositiveRate },
	},
	{
		name: "cms-epsilon", usage: "Count-Min relative error bound",
		bind: func(fs *flag.FlagSet, c *Config, n, u string) { fs.Float64Var(&c.CountMin.Epsilon, n, c.CountMin.Epsilon, u) },
		copy: func(d, s *Config) { d.CountMin.Epsilon = s.CountMin.Epsilon },
	},
	{
		name: "cms-delta", usage: "Count-Min failure probability",
		bind: func(fs *flag.FlagSet, c *Config, n, u string) { fs.Float64Var(&c.CountMin.Delta, n, c.CountMin.Delta, u) },
		copy: func(d, s *Config) { d.CountMin.Delta = s.CountMin.Delta },
	},
	{
		name: "hll-precision", usage: "HyperLogLog precision (4-18)",
		bind: func(fs *flag.FlagSet, c *Config, n, u string) { fs.Var((*uint8Value)(&c.HyperLogLog.Precision), n, u) },
		copy: func(d, s *Config) { d.HyperLogLog.Precision = s.HyperLogLog.Precision },
	},
	{
		name: "shards", usage: "Number of lock shards",
		bind: func(fs *flag.FlagSet, c *Config, n, u string) { fs.IntVar(&c.Shards, n, c.Shards, u) },
		copy: func(d, s *Config) { d.Shards = s.Shards },
	},
	{
		name: "workers", usage: "Number of ingestion workers",
		bind: func(fs *flag.FlagSet, c *Config, n, u string) { fs.IntVar(&c.Workers, n, c.Workers, u) },
		copy: func(d, s *Config) { d.Workers = s.Workers },
	},
	{
		name: "top-k", usage: "Number of heavy hitters to report",
		bind: func(fs *flag.FlagSet, c *Config, n, u string) { fs.IntVar(&c.TopK, n, c.TopK, u) },
		copy: func(d, s *Config) { d.TopK = s.TopK },
	},
	{
		name: "seed", usage: "Seed for generated data (0 for random)",
		bind: func(fs *flag.FlagSet, c *Config, n, u string) { fs.Uint64Var(&c.Seed, n, c.Seed, u) },
		copy: func(d, s *Config) { d.Seed = s.Seed },
	},
}

// Flags registers one flag per field of c on fs, with c's current values as
// the defaults. After fs.Parse, pass c to Resolve.
func (c *Config) Flags(fs *flag.FlagSet) {
	for _, b := range bindings {
		b.bind(fs, c, b.name, b.usage)
	}
}

// Resolve returns the effective configuration. flags must have been
// registered with Flags on fs, and fs already parsed. With an empty path the
// flag values are used as they are; otherwise the file is loaded and every
// flag explicitly set on fs is applied on top of it.
func Resolve(fs *flag.FlagSet, flags *Config, path string) (*Config, error) {
	if path == "" {
		if err := flags.Validate(); err != nil {
			return nil, err
		}
		return flags, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for _, b := range bindings {
		if set[b.name] {
			b.copy(cfg, flags)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type uint8Value uint8

func (v *uint8Value) String() string { return strconv.FormatUint(uint64(*v), 10) }

func (v *uint8Value) Set(s string) error {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return err
	}
	*v = uint8Value(n)
	return nil
}
