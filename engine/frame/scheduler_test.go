package frame

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/config"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/node"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	backend   *renderer.HeadlessBackend
	r         renderer.Renderer
	scheduler *Scheduler
	view      scene.View
	refreshes int
}

func newFixture(t *testing.T, latency time.Duration, options ...SchedulerBuilderOption) *fixture {
	t.Helper()
	b := renderer.NewHeadlessBackend(
		renderer.WithHeadlessExtent(64, 32),
		renderer.WithHeadlessFrames(2),
		renderer.WithHeadlessLatency(latency),
	)
	t.Cleanup(b.Release)
	r, err := renderer.NewRenderer(b, renderer.WithKernelsCount(2), renderer.WithBufferArena(8<<20))
	require.NoError(t, err)

	cfg, err := config.New(config.WithShadows(0, 0), config.WithEffects(false, false))
	require.NoError(t, err)
	g, err := graph.BuildDeferred(context.Background(), r, cfg)
	require.NoError(t, err)

	f := &fixture{backend: b, r: r}
	refresh := func(r renderer.Renderer) (*graph.Graph, error) {
		f.refreshes++
		return graph.BuildDeferred(context.Background(), r, cfg)
	}
	s, err := NewScheduler(r, g, append([]SchedulerBuilderOption{WithRefresh(refresh)}, options...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Release() })
	f.scheduler = s

	mesh, err := scene.NewCubeMesh(r.Buffers())
	require.NoError(t, err)
	light := scene.NewDirectionalLight(common.Vec3{0, -1, -1}, common.Vec3{1, 1, 1}, 2)
	f.view = scene.NewStaticView(scene.NewCamera(),
		[]*scene.Object{scene.NewObject(mesh, scene.DefaultMaterial, common.Identity4())},
		[]scene.DirectionalLight{light})
	return f
}

func TestTickChainsSubmissions(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.scheduler.Tick(f.view))
	require.NoError(t, f.backend.WaitIdle())

	subs := f.backend.Submissions()
	require.Len(t, subs, 5)
	copySub, upload, present := subs[0], subs[1], subs[4]

	assert.Len(t, copySub.Waits, 1)
	assert.Equal(t, copySub.Signals, upload.Waits)
	assert.Equal(t, upload.Signals, subs[2].Waits, "the root node waits on the upload")
	assert.Equal(t, subs[2].Signals, subs[3].Waits, "the composer waits on the g-buffer")
	assert.Equal(t, subs[3].Signals, present.Waits, "composition waits on the sink")
	assert.True(t, present.Fenced)
	for _, s := range subs[:4] {
		assert.False(t, s.Fenced)
	}

	assert.Equal(t, []int{0}, f.backend.Presents())
	assert.Equal(t, StateIdle, f.scheduler.SlotState(0), "a finished frame leaves its slot idle")
	assert.Equal(t, StateIdle, f.scheduler.SlotState(1))
	assert.Equal(t, uint64(1), f.scheduler.Stats().Frame)
}

func TestFrameSlotsDoNotOverlap(t *testing.T) {
	f := newFixture(t, 2*time.Millisecond)

	var waited time.Duration
	for i := range 6 {
		require.NoError(t, f.scheduler.Tick(f.view), "tick %d", i)
		st := f.scheduler.Stats()
		assert.Equal(t, i%2, st.Slot)
		waited += st.FenceWait
	}
	require.NoError(t, f.backend.WaitIdle())

	assert.GreaterOrEqual(t, waited, time.Millisecond, "reusing a slot waits for its previous frame")
	assert.Equal(t, []int{0, 1, 0, 1, 0, 1}, f.backend.Presents())
	// one mesh, the composer and the present pass per frame
	assert.Equal(t, int64(18), f.backend.Draws())
}

func TestFenceTimeout(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, WithFenceTimeout(time.Millisecond))
	require.NoError(t, f.scheduler.Tick(f.view))
	require.NoError(t, f.scheduler.Tick(f.view))
	err := f.scheduler.Tick(f.view)
	assert.ErrorIs(t, err, renderer.ErrFenceTimeout)
	require.NoError(t, f.backend.WaitIdle())
}

func TestSlotSettlesToIdle(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	require.NoError(t, f.scheduler.Tick(f.view))
	assert.Equal(t, StatePresented, f.scheduler.SlotState(0), "the GPU is still running the frame")

	require.NoError(t, f.backend.WaitIdle())
	assert.Equal(t, StateIdle, f.scheduler.SlotState(0))
}

func TestFailedRecordReleasesSlot(t *testing.T) {
	f := newFixture(t, 0, WithFenceTimeout(500*time.Millisecond))

	// more objects than both kernels can draw
	mesh := f.view.Objects()[0].Mesh
	crowd := make([]*scene.Object, 2*node.DefaultObjectCapacity+10)
	for i := range crowd {
		crowd[i] = scene.NewObject(mesh, scene.DefaultMaterial, common.Identity4())
	}
	crowded := scene.NewStaticView(f.view.Camera(), crowd, f.view.Lights())

	err := f.scheduler.Tick(crowded)
	require.ErrorIs(t, err, renderer.ErrOutOfMemory)
	assert.Equal(t, StateIdle, f.scheduler.SlotState(0))

	for i := range 3 {
		require.NoError(t, f.scheduler.Tick(f.view), "tick %d after the failure", i)
	}
	require.NoError(t, f.backend.WaitIdle())

	assert.Equal(t, []int{0, 1, 0, 1}, f.backend.Presents(), "the failed frame still returns its image")
	var fenced int
	for _, sub := range f.backend.Submissions() {
		if sub.Fenced {
			fenced++
		}
	}
	assert.Equal(t, 4, fenced, "every acquired frame queues exactly one fenced submission")
}

func TestRefreshRebuildsGraph(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.scheduler.Tick(f.view))
	before := f.scheduler.Graph()

	f.backend.RequestRefresh()
	err := f.scheduler.Tick(f.view)
	assert.ErrorIs(t, err, renderer.ErrNeedsRefresh)
	assert.Equal(t, 1, f.refreshes)
	assert.NotSame(t, before, f.scheduler.Graph())

	require.NoError(t, f.scheduler.Tick(f.view))
	require.NoError(t, f.backend.WaitIdle())
	assert.Len(t, f.backend.Presents(), 2)
}

func TestResize(t *testing.T) {
	f := newFixture(t, 0)
	f.scheduler.Resize(32, 16)

	err := f.scheduler.Tick(f.view)
	assert.ErrorIs(t, err, renderer.ErrNeedsRefresh)
	w, h := f.backend.Extent()
	assert.Equal(t, [2]int{32, 16}, [2]int{w, h})

	out, err := f.scheduler.Graph().OutputTexture()
	require.NoError(t, err)
	assert.Equal(t, uint32(32), out.Image.Width)

	require.NoError(t, f.scheduler.Tick(f.view))
}

func TestCopyStageFlushesPrimaryBuffers(t *testing.T) {
	f := newFixture(t, 0)
	buf, err := f.r.Buffers().CreateDynamic("frame constants", 4, renderer.StagePrimary)
	require.NoError(t, err)
	buf.Update(0, binary.LittleEndian.AppendUint32(nil, 42))

	require.NoError(t, f.scheduler.Tick(f.view))
	require.NoError(t, f.backend.WaitIdle())

	mem := f.backend.BufferContents(buf.Buffer())
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(mem[buf.Offset(0):]))

	subs := f.backend.Submissions()
	var writes int
	for _, c := range subs[0].Commands[0].Commands() {
		if _, ok := c.(renderer.CmdWriteBuffer); ok {
			writes++
		}
	}
	assert.Equal(t, 1, writes)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "recording", StateRecording.String())
	assert.Equal(t, "state(9)", State(9).String())
}
