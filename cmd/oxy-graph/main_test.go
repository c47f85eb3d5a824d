package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-graph/common"
)

const smallConfig = `
render {
  frames_in_flight      = 2
  kernels               = 2
  max_shadow_maps_count = 2
  cascaded_shadow_count = 2
  shadow_map_aspect     = 32
  ssr                   = true
  buffer_arena_mib      = 32
}

window {
  width  = 64
  height = 32
}
`

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oxy.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0600))
	return path
}

func TestRun_ShouldExit(t *testing.T) {
	out := &bytes.Buffer{}

	err := run(out, &bytes.Buffer{}, []string{"-h"})

	require.NoError(t, err, "help should exit cleanly")
	require.Contains(t, out.String(), "Usage:")
}

func TestRun_ParseError(t *testing.T) {
	err := run(&bytes.Buffer{}, &bytes.Buffer{}, []string{"--not-a-flag"})

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, err.Error(), "flag provided but not defined")
}

func TestRun_HeadlessRendersFrames(t *testing.T) {
	t.Cleanup(func() { common.SetLogger(nil) })
	path := writeConfig(t, smallConfig)
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}

	err := run(out, logs, []string{"-config", path, "-headless", "-frames", "3", "-cubes", "9", "-log-format", "json"})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "rendered 3 frames")

	var sawCreated bool
	for line := range strings.Lines(logs.String()) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "every log line is JSON")
		if entry["msg"] == "engine created" {
			sawCreated = true
			assert.Equal(t, "headless", entry["backend"])
			assert.NotEmpty(t, entry["run"])
		}
	}
	assert.True(t, sawCreated)
}

func TestParseArgs(t *testing.T) {
	path := writeConfig(t, smallConfig)

	testCases := []struct {
		name     string
		args     []string
		wantCode int
		wantMsg  string
	}{
		{name: "bad level", args: []string{"-log-level", "loud"}, wantCode: 2, wantMsg: "invalid log-level"},
		{name: "bad format", args: []string{"-log-format", "xml"}, wantCode: 2, wantMsg: "invalid log-format"},
		{name: "missing config", args: []string{"-config", filepath.Join(t.TempDir(), "nope.hcl")}, wantCode: 1, wantMsg: "failed to read config file"},
		{name: "too many cubes", args: []string{"-config", path, "-cubes", "512"}, wantCode: 2, wantMsg: "cubes must be between 1 and 511"},
		{name: "stray argument", args: []string{"scene.hcl"}, wantCode: 2, wantMsg: "unexpected argument"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := parseArgs(tc.args, &bytes.Buffer{})

			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, tc.wantCode, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantMsg)
		})
	}

	t.Run("overrides", func(t *testing.T) {
		opts, exit, err := parseArgs([]string{"-config", path, "-log-level", "DEBUG", "-headless", "-frames", "7"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.False(t, exit)
		assert.Equal(t, "debug", opts.cfg.LogLevel)
		assert.Equal(t, 64, opts.cfg.Width)
		assert.True(t, opts.cfg.SSR)
		assert.True(t, opts.headless)
		assert.Equal(t, uint64(7), opts.frames)
		assert.Equal(t, 64, opts.cubes)
	})
}
