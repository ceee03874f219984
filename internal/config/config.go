// Package config loads the YAML configuration shared by the GUI and the CLI.
package config

import (
	"fmt"
	"os"
	"strings"

	"fib-correlate/internal/alignment"

	"gopkg.in/yaml.v2"
)

/* Example config file ...

alignment:
  alpha: 0.5
  inverse: true
  interpolation: bilinear
  backend: native

output:
  annotate: true
  write_points: true
  format: tif

logging:
  level: info
  format: text
  file: ""

*/

// Config is the top-level configuration.
type Config struct {
	Alignment AlignmentConfig `yaml:"alignment"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AlignmentConfig controls the correlation pipeline.
type AlignmentConfig struct {
	Alpha         float64 `yaml:"alpha"`
	Inverse       bool    `yaml:"inverse"`
	Interpolation string  `yaml:"interpolation"`
	Backend       string  `yaml:"backend"`
}

// OutputConfig controls what Export writes besides the overlay and report.
type OutputConfig struct {
	Annotate    bool   `yaml:"annotate"`     // Marker previews of both inputs
	WritePoints bool   `yaml:"write_points"` // Control-point CSV
	Format      string `yaml:"format"`       // Extension for outputs named without one
}

// LoggingConfig selects the log level, formatter and an optional file.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Alignment: AlignmentConfig{
			Alpha:         0.5,
			Inverse:       true,
			Interpolation: string(alignment.InterpBilinear),
			Backend:       alignment.BackendNative,
		},
		Output: OutputConfig{
			Annotate:    false,
			WritePoints: true,
			Format:      "tif",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, c.Validate()
}

// Validate checks values that would otherwise fail deep in the pipeline.
func (c *Config) Validate() error {
	if !alignment.ValidAlpha(c.Alignment.Alpha) {
		return fmt.Errorf("alignment.alpha %g: %w", c.Alignment.Alpha, alignment.ErrInvalidAlpha)
	}
	interp, err := alignment.ParseInterpolation(c.Alignment.Interpolation)
	if err != nil {
		return fmt.Errorf("alignment.interpolation: %w", err)
	}
	c.Alignment.Interpolation = string(interp)

	if c.Alignment.Backend == "" {
		c.Alignment.Backend = alignment.BackendNative
	}

	c.Output.Format = strings.TrimPrefix(strings.ToLower(c.Output.Format), ".")
	switch c.Output.Format {
	case "":
		c.Output.Format = "tif"
	case "tif", "tiff", "png", "jpg", "jpeg":
	default:
		return fmt.Errorf("output.format %q: unsupported", c.Output.Format)
	}
	return nil
}

// PipelineOptions converts the alignment section for alignment.Correlate.
func (c Config) PipelineOptions() alignment.Options {
	return alignment.Options{
		Alpha: c.Alignment.Alpha,
		Warp: alignment.WarpOptions{
			Inverse:       c.Alignment.Inverse,
			Interpolation: alignment.Interpolation(c.Alignment.Interpolation),
			Backend:       c.Alignment.Backend,
		},
	}
}

// AsYAML renders the configuration, for `correlate config`.
func (c Config) AsYAML() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(b), nil
}
