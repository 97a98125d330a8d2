// Package nrconfig holds the immutable run configuration: raster geometry,
// trajectory lengths, generator seed, verification policy and fixture
// location. A Config is a plain value and is passed explicitly to every
// component. Load is the only place that consults the environment.
package nrconfig

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrinterp"
)

// Config is the full set of knobs of a generate/verify cycle.
type Config struct {
	// Raster geometry.
	Width  int `yaml:"width" toml:"width"`
	Height int `yaml:"height" toml:"height"`

	// Trajectory.
	Points             int `yaml:"points" toml:"points"`
	VerifiedIterations int `yaml:"verified_iterations" toml:"verified_iterations"`
	TotalIterations    int `yaml:"total_iterations" toml:"total_iterations"`

	// Generator. One sample in MissingInverse is missing on average.
	MissingInverse int   `yaml:"missing_inverse" toml:"missing_inverse"`
	Seed           int64 `yaml:"seed" toml:"seed"`

	// Verification.
	Repetitions      int    `yaml:"repetitions" toml:"repetitions"`
	StrictIterations int    `yaml:"strict_iterations" toml:"strict_iterations"`
	Kernel           string `yaml:"kernel" toml:"kernel"`
	Parallel         bool   `yaml:"parallel" toml:"parallel"`

	DataDir   string `yaml:"data_dir" toml:"data_dir"`
	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`
}

// Environment variables consulted by Load after the file has been applied.
const (
	EnvDataDir  = "NANRASTER_DATA_DIR"
	EnvLogLevel = "NANRASTER_LOG_LEVEL"
)

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Width:              800,
		Height:             600,
		Points:             20000,
		VerifiedIterations: 12,
		TotalIterations:    15,
		MissingInverse:     8,
		Seed:               2082799447325596418,
		Repetitions:        10,
		StrictIterations:   8,
		Kernel:             "widened",
		DataDir:            "data",
		LogLevel:           "info",
		LogFormat:          "auto",
	}
}

// Load reads path on top of Default. The format follows the extension:
// .yaml/.yml or .toml. Unknown keys are rejected in both formats. An empty
// path returns the defaults with environment overrides applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, nrerr.Wrap(nrerr.IOError, -1, "read config", errors.Wrapf(err, "config %s", path))
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			err = decodeYAML(data, &cfg)
		case ".toml":
			err = decodeTOML(data, &cfg)
		default:
			return Config{}, nrerr.Newf(nrerr.InvalidConfig, -1, "config %s: unsupported extension %q", path, ext)
		}
		if err != nil {
			return Config{}, nrerr.Wrap(nrerr.InvalidConfig, -1, "parse config "+path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "yaml")
	}
	return nil
}

func decodeTOML(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return errors.Wrap(err, "toml")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.Newf("toml: unknown keys %s", strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the internal consistency of c.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}
	check(c.Width >= 2 && c.Height >= 2, "raster %dx%d must be at least 2x2", c.Width, c.Height)
	check(c.Points > 0, "points must be positive, got %d", c.Points)
	check(c.VerifiedIterations >= 0 && c.VerifiedIterations <= c.TotalIterations,
		"verified_iterations %d must be within [0, total_iterations=%d]", c.VerifiedIterations, c.TotalIterations)
	check(c.StrictIterations >= 0 && c.StrictIterations <= c.VerifiedIterations,
		"strict_iterations %d must be within [0, verified_iterations=%d]", c.StrictIterations, c.VerifiedIterations)
	check(c.MissingInverse > 0, "missing_inverse must be positive, got %d", c.MissingInverse)
	check(c.Repetitions > 0, "repetitions must be positive, got %d", c.Repetitions)
	check(c.DataDir != "", "data_dir must not be empty")
	if _, err := nrinterp.KernelByName(c.Kernel); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return nrerr.New(nrerr.InvalidConfig, -1, strings.Join(problems, "; "))
	}
	return nil
}

// Fingerprint identifies the fixture set c generates. Only the fields that
// change generated bytes take part; verification settings do not.
func (c Config) Fingerprint() string {
	var buf [8 * 6]byte
	for i, v := range []uint64{
		uint64(c.Width), uint64(c.Height), uint64(c.Points),
		uint64(c.VerifiedIterations), uint64(c.MissingInverse), uint64(c.Seed),
	} {
		binary.BigEndian.PutUint64(buf[i*8:], v)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(buf[:]))
}

// YAML renders c as a YAML document.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, nrerr.Wrap(nrerr.InternalError, -1, "marshal config", err)
	}
	return out, nil
}

// KernelFunc resolves the configured kernel.
func (c Config) KernelFunc() (nrinterp.Kernel, error) {
	return nrinterp.KernelByName(c.Kernel)
}
