package config

import (
	"os"
	"path/filepath"
	"testing"

	"fib-correlate/internal/alignment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "correlate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
alignment:
  alpha: 0.3
  interpolation: Nearest
output:
  annotate: true
  format: .PNG
logging:
  level: debug
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.3, c.Alignment.Alpha)
	assert.Equal(t, "nearest", c.Alignment.Interpolation)
	assert.True(t, c.Alignment.Inverse, "unset keys keep their default")
	assert.Equal(t, alignment.BackendNative, c.Alignment.Backend)
	assert.True(t, c.Output.Annotate)
	assert.True(t, c.Output.WritePoints)
	assert.Equal(t, "png", c.Output.Format)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, "text", c.Logging.Format)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"alpha", "alignment:\n  alpha: 1.5\n"},
		{"alpha nan", "alignment:\n  alpha: .nan\n"},
		{"interpolation", "alignment:\n  interpolation: lanczos\n"},
		{"format", "output:\n  format: gif\n"},
		{"syntax", "alignment: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPipelineOptions(t *testing.T) {
	c := Default()
	c.Alignment.Alpha = 0.7
	opts := c.PipelineOptions()

	assert.Equal(t, 0.7, opts.Alpha)
	assert.Equal(t, alignment.DefaultWarpOptions(), opts.Warp)
}

func TestAsYAMLRoundTrips(t *testing.T) {
	out, err := Default().AsYAML()
	require.NoError(t, err)

	c, err := Load(writeConfig(t, out))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}
