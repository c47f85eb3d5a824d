package common

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(0), AlignUp(0, 256))
	assert.Equal(t, uint64(256), AlignUp(1, 256))
	assert.Equal(t, uint64(256), AlignUp(256, 256))
	assert.Equal(t, uint64(512), AlignUp(257, 256))
	assert.Equal(t, uint64(7), AlignUp(7, 0))
}

func TestNextIDIsUniqueAcrossGoroutines(t *testing.T) {
	const workers, perWorker = 8, 500
	var mu sync.Mutex
	seen := make(map[uint64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, perWorker)
			for range perWorker {
				local = append(local, NextID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	_, zero := seen[0]
	assert.False(t, zero)
}

func TestFatalfPanicsAndLogsCaller(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewLogger("debug", "text", &buf))
	t.Cleanup(func() { SetLogger(nil) })

	assert.PanicsWithValue(t, "node: input 3 out of range", func() {
		Fatalf("node: input %d out of range", 3)
	})
	assert.Contains(t, buf.String(), "common_test.go")
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("warn", "json", &buf).Info("hidden")
	assert.Empty(t, buf.String())

	NewLogger("warn", "json", &buf).Warn("shown", "k", 1)
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}

func TestMat4InverseRoundTrip(t *testing.T) {
	m := Translation(Vec3{1, 2, 3}).Mul(Scaling(Vec3{2, 4, 8}))
	inv, ok := m.Inverse()
	require.True(t, ok)

	id := m.Mul(inv)
	for i, v := range Identity4() {
		assert.InDelta(t, v, id[i], 1e-5, "element %d", i)
	}

	_, ok = Mat4{}.Inverse()
	assert.False(t, ok)
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	eye := Vec3{4, 3, 5}
	view := LookAt(eye, Vec3{0, 0, 0}, Vec3{0, 1, 0})

	p := view.MulPoint(eye)
	for i := range p {
		assert.InDelta(t, 0, p[i], 1e-5)
	}

	// The target sits straight ahead on -Z.
	target := view.MulPoint(Vec3{0, 0, 0})
	assert.InDelta(t, 0, target[0], 1e-5)
	assert.InDelta(t, 0, target[1], 1e-5)
	assert.Less(t, target[2], float32(0))
}

func TestByteWriterLayout(t *testing.T) {
	w := NewByteWriter(32)
	w.Float32(1.5).Uint32(7).Skip(8).Vec3(Vec3{1, 2, 3}, 9)

	b := w.Bytes()
	require.Len(t, b, 32)
	assert.Equal(t, 32, w.Offset())
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(b[4:8]))
	assert.Equal(t, float32(9), math.Float32frombits(binary.LittleEndian.Uint32(b[28:32])))

	assert.Panics(t, func() { w.Float32(0) })
}
