package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 3, c.FramesInFlight)
	assert.Equal(t, runtime.NumCPU(), c.Kernels)
	assert.Equal(t, time.Duration(0), c.FenceTimeout)
}

func TestNewAppliesOptions(t *testing.T) {
	c, err := New(
		WithFramesInFlight(2),
		WithKernels(3),
		WithShadows(4, 2),
		WithFenceTimeout(time.Second),
		WithEffects(false, true),
		WithViewport(640, 480),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, c.FramesInFlight)
	assert.Equal(t, 3, c.Kernels)
	assert.Equal(t, 4, c.MaxShadowMapsCount)
	assert.Equal(t, 2, c.CascadedShadowCount)
	assert.Equal(t, time.Second, c.FenceTimeout)
	assert.False(t, c.SSAO)
	assert.True(t, c.SSR)
	assert.Equal(t, 640, c.Width)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	_, err := New(
		WithFramesInFlight(0),
		WithShadows(2, 3),
		WithSamplesCount(3),
		WithLogging("loud", "xml"),
	)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "frames_in_flight")
	assert.Contains(t, msg, "cascaded_shadow_count")
	assert.Contains(t, msg, "samples_count")
	assert.Contains(t, msg, "log level")
	assert.Contains(t, msg, "log format")
}

func TestParseOverlaysDefaults(t *testing.T) {
	src := `
render {
  frames_in_flight      = 2
  kernels               = max(1, cpu_count - 1)
  cascaded_shadow_count = min(3, 6)
  fence_timeout         = "250ms"
  ssr                   = true
  buffer_arena_mib      = 32
}

window {
  title = "demo"
}

log {
  format = "json"
}
`
	c, err := Parse([]byte(src), "test.hcl")
	require.NoError(t, err)

	assert.Equal(t, 2, c.FramesInFlight)
	assert.Equal(t, max(1, runtime.NumCPU()-1), c.Kernels)
	assert.Equal(t, 3, c.CascadedShadowCount)
	assert.Equal(t, 250*time.Millisecond, c.FenceTimeout)
	assert.True(t, c.SSR)
	assert.Equal(t, uint64(32<<20), c.BufferArenaBytes)
	assert.Equal(t, "demo", c.Title)
	assert.Equal(t, "json", c.LogFormat)

	// Untouched values keep their defaults.
	assert.Equal(t, Default().Width, c.Width)
	assert.Equal(t, Default().ShadowMapAspect, c.ShadowMapAspect)
	assert.Equal(t, "info", c.LogLevel)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"syntax":        `render {`,
		"unknown attr":  `render { frame_count = 2 }`,
		"bad duration":  `render { fence_timeout = "soon" }`,
		"invalid value": `window { width = 0 }`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), "bad.hcl")
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`log { level = "debug" }`), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.LogLevel)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
