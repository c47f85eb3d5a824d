package profiler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickReportsAfterInterval(t *testing.T) {
	var buf bytes.Buffer
	p := NewProfiler(slog.New(slog.NewJSONHandler(&buf, nil)))
	p.SetInterval(time.Hour)

	p.Observe(FrameTimings{Record: 2 * time.Millisecond})
	assert.False(t, p.Tick())
	assert.Zero(t, buf.Len())

	p.SetInterval(0)
	p.Observe(FrameTimings{Record: 4 * time.Millisecond, Submit: time.Millisecond})
	require.True(t, p.Tick())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "profiler", entry["msg"])
	// two frames: (2ms + 4ms) / 2
	assert.Equal(t, float64(3*time.Millisecond), entry["record"])
	assert.Contains(t, entry, "fps")
	assert.Contains(t, entry, "heap_mb")
}
