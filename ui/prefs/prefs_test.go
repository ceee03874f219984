package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", prefsFile)

	p := LoadFrom(path)
	assert.Equal(t, 0.5, p.FloatWithFallback(KeyAlpha, 0.5))
	assert.True(t, p.Bool(KeyFitToWindow, true))
	assert.Empty(t, p.String(KeyLastImageDir))

	p.SetFloat(KeyAlpha, 0.7)
	p.SetBool(KeyFitToWindow, false)
	p.SetDirOf(KeyLastImageDir, "/data/run1/fluo.tif")
	require.NoError(t, p.Save())

	again := LoadFrom(path)
	assert.Equal(t, 0.7, again.FloatWithFallback(KeyAlpha, 0.5))
	assert.False(t, again.Bool(KeyFitToWindow, true))
	assert.Equal(t, "/data/run1", again.String(KeyLastImageDir))
}

func TestPrefsIgnoresCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), prefsFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	p := LoadFrom(path)
	assert.Equal(t, 0.25, p.FloatWithFallback(KeyAlpha, 0.25))

	p.SetString(KeyAlpha, "x")
	assert.Equal(t, 0.25, p.FloatWithFallback(KeyAlpha, 0.25))
}
