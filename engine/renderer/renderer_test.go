package renderer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const effectSource = `
struct Params {
    tint: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var color_map: texture_2d<f32>;
@group(0) @binding(2) var color_sampler: sampler;

@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return params.tint;
}
`

func newTestRenderer(t *testing.T, options ...HeadlessBackendOption) (*HeadlessBackend, Renderer) {
	t.Helper()
	b := NewHeadlessBackend(append([]HeadlessBackendOption{WithHeadlessExtent(64, 32), WithHeadlessFrames(2)}, options...)...)
	t.Cleanup(b.Release)
	r, err := NewRenderer(b, WithKernelsCount(2), WithBufferArena(1<<20))
	require.NoError(t, err)
	return b, r
}

func TestNewRenderer(t *testing.T) {
	_, r := newTestRenderer(t)
	assert.Equal(t, 2, r.FramesCount())
	assert.Equal(t, 2, r.KernelsCount())
	w, h := r.Viewport()
	assert.Equal(t, 64, w)
	assert.Equal(t, 32, h)
	assert.Equal(t, 1, r.KernelPool(1).Kernel())

	a, err := r.DefaultTexture(FormatR8Uint)
	require.NoError(t, err)
	b, err := r.DefaultTexture(FormatR8Uint)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestCommandBufferRecordingRules(t *testing.T) {
	cb := NewCommandBuffer(LevelPrimary, "primary")
	assert.Panics(t, func() { cb.Draw(3, 1) }, "recording outside Begin")

	require.NoError(t, cb.Begin())
	sec := NewCommandBuffer(LevelSecondary, "secondary")
	require.NoError(t, sec.Begin())
	assert.Panics(t, func() { cb.ExecuteCommands(sec) }, "secondary still recording")
	sec.Draw(3, 1)
	sec.End()
	assert.Panics(t, func() { sec.BeginRenderPass(&Framebuffer{}) })

	cb.BeginRenderPass(&Framebuffer{})
	cb.ExecuteCommands(sec)
	assert.Panics(t, func() { cb.End() }, "ending inside a pass")
	cb.EndRenderPass()
	cb.End()

	require.Len(t, cb.Commands(), 3)
	assert.IsType(t, CmdExecuteCommands{}, cb.Commands()[1])
}

func TestCommandBufferInFlightUntilCompleted(t *testing.T) {
	b, _ := newTestRenderer(t, WithHeadlessLatency(50*time.Millisecond))
	acquired := b.CreateSemaphore("acquired")
	_, err := b.AcquireNextImage(acquired)
	require.NoError(t, err)

	sec := NewCommandBuffer(LevelSecondary, "secondary")
	require.NoError(t, sec.Begin())
	sec.Draw(3, 1)
	sec.End()

	cb := NewCommandBuffer(LevelPrimary, "primary")
	require.NoError(t, cb.Begin())
	cb.BeginRenderPass(&Framebuffer{})
	cb.ExecuteCommands(sec)
	cb.EndRenderPass()
	cb.End()

	fence := NewFence(false)
	require.NoError(t, b.Submit(SubmitInfo{Waits: []*Semaphore{acquired}, Commands: []*CommandBuffer{cb}, Fence: fence}))

	assert.True(t, cb.InFlight())
	assert.ErrorIs(t, cb.Begin(), ErrCommandBufferInFlight)
	assert.ErrorIs(t, sec.Begin(), ErrCommandBufferInFlight)
	assert.ErrorIs(t, fence.Wait(time.Millisecond), ErrFenceTimeout)

	require.NoError(t, fence.Wait(0))
	assert.False(t, cb.InFlight())
	assert.NoError(t, sec.Begin())
	assert.NoError(t, cb.Begin())
	assert.Equal(t, int64(1), b.Draws())
}

func TestFence(t *testing.T) {
	f := NewFence(true)
	require.NoError(t, f.Wait(time.Millisecond))
	f.Reset()
	assert.False(t, f.Signaled())

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.Wait(time.Second))
		}()
	}
	f.Signal()
	f.Signal()
	wg.Wait()
	assert.True(t, f.Signaled())
}

func TestFencePoller(t *testing.T) {
	f := NewFence(false)
	var polls atomic.Int32
	f.SetPoller(func() {
		if polls.Add(1) == 3 {
			f.Signal()
		}
	})
	require.NoError(t, f.Wait(time.Second), "completion only arrives through polling")
	assert.GreaterOrEqual(t, polls.Load(), int32(3))

	stuck := NewFence(false)
	stuck.SetPoller(func() {})
	assert.ErrorIs(t, stuck.Wait(5*time.Millisecond), ErrFenceTimeout)
}

func TestBufferManagerArenaAndStages(t *testing.T) {
	b, r := newTestRenderer(t)
	m := r.Buffers()

	primary, err := m.CreateDynamic("primary", 16, StagePrimary)
	require.NoError(t, err)
	assert.Equal(t, uint64(UniformAlignment), primary.Stride())
	assert.Equal(t, uint64(2*UniformAlignment), m.Used())
	secondary, err := m.CreateDynamic("secondary", 300, StageSecondary)
	require.NoError(t, err)
	assert.Equal(t, uint64(512), secondary.Stride())
	assert.Equal(t, uint64(512), secondary.Range(1).Offset)

	_, err = m.CreateDynamic("too big", 1<<20, StagePrimary)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	primary.Update(1, []byte{1, 2, 3, 4})
	secondary.Update(1, []byte{9})
	assert.Panics(t, func() { primary.Update(0, make([]byte, 17)) })

	acquired := b.CreateSemaphore("acquired")
	_, err = b.AcquireNextImage(acquired)
	require.NoError(t, err)

	cb := NewCommandBuffer(LevelPrimary, "upload")
	require.NoError(t, cb.Begin())
	assert.Equal(t, 1, m.Flush(1, StagePrimary, cb))
	assert.Equal(t, 0, m.Flush(1, StagePrimary, cb), "flush clears staged data")
	assert.Equal(t, 0, m.Flush(1, StageManual, cb))
	cb.End()
	assert.True(t, secondary.Dirty(1))

	fence := NewFence(false)
	require.NoError(t, b.Submit(SubmitInfo{Waits: []*Semaphore{acquired}, Commands: []*CommandBuffer{cb}, Fence: fence}))
	require.NoError(t, fence.Wait(time.Second))

	mem := b.BufferContents(primary.Buffer())
	assert.Equal(t, []byte{1, 2, 3, 4}, mem[UniformAlignment:UniformAlignment+4])
	assert.Equal(t, []byte{0, 0, 0, 0}, mem[:4])

	used := m.Used()
	m.Free(secondary)
	assert.Equal(t, used-secondary.Buffer().Size, m.Used())
}

func TestPipelineAndSamplerCaches(t *testing.T) {
	b, r := newTestRenderer(t)
	pass, err := b.CreateRenderPass(RenderPassDescriptor{Label: "p", Colors: []Format{FormatRGBA16Float}})
	require.NoError(t, err)

	desc := PipelineDescriptor{Label: "effect", Source: effectSource, Pass: pass}
	var wg sync.WaitGroup
	got := make([]*Pipeline, 8)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := r.Pipelines().Get("effect", desc)
			assert.NoError(t, err)
			got[i] = p
		}()
	}
	wg.Wait()
	for _, p := range got {
		assert.Same(t, got[0], p)
	}
	assert.Equal(t, 1, r.Pipelines().Len())

	s1, err := r.Samplers().Get(SamplerDescriptor{Filter: FilterLinear})
	require.NoError(t, err)
	s2, err := r.Samplers().Get(SamplerDescriptor{Filter: FilterLinear})
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestHeadlessValidatesDescriptorSets(t *testing.T) {
	b, r := newTestRenderer(t)
	pass, err := b.CreateRenderPass(RenderPassDescriptor{Label: "p", Colors: []Format{FormatRGBA16Float}})
	require.NoError(t, err)
	p, err := r.Pipelines().Get("effect", PipelineDescriptor{Label: "effect", Source: effectSource, Pass: pass})
	require.NoError(t, err)

	params, err := r.Buffers().CreateDynamic("params", 16, StageSecondary)
	require.NoError(t, err)
	color, err := b.CreateImage(ImageDescriptor{Label: "color", Width: 4, Height: 4, Format: FormatRGBA16Float})
	require.NoError(t, err)
	depth, err := b.CreateImage(ImageDescriptor{Label: "depth", Width: 4, Height: 4, Format: FormatDepth32Float})
	require.NoError(t, err)
	sampler, err := r.Samplers().Get(SamplerDescriptor{Filter: FilterLinear})
	require.NoError(t, err)

	_, err = r.Descriptors().Create(DescriptorSetDescriptor{
		Label:    "ok",
		Pipeline: p,
		Buffers:  []BufferRange{params.Range(0)},
		Textures: []*Texture{{Image: color, Sampler: sampler}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Descriptors().Len())

	cases := map[string]DescriptorSetDescriptor{
		"no sampler":   {Pipeline: p, Buffers: []BufferRange{params.Range(0)}, Textures: []*Texture{{Image: color}}},
		"depth image":  {Pipeline: p, Buffers: []BufferRange{params.Range(0)}, Textures: []*Texture{{Image: depth, Sampler: sampler}}},
		"short buffer": {Pipeline: p, Buffers: []BufferRange{{Buffer: params.Buffer(), Size: 8}}, Textures: []*Texture{{Image: color, Sampler: sampler}}},
		"extra":        {Pipeline: p, Buffers: []BufferRange{params.Range(0), params.Range(1)}, Textures: []*Texture{{Image: color, Sampler: sampler}}},
	}
	for name, desc := range cases {
		t.Run(name, func(t *testing.T) {
			desc.Label = name
			_, err := r.Descriptors().Create(desc)
			assert.Error(t, err)
		})
	}
}

func TestHeadlessFramebufferValidation(t *testing.T) {
	b, _ := newTestRenderer(t)
	pass, err := b.CreateRenderPass(RenderPassDescriptor{Label: "gbuffer", Colors: []Format{FormatRGBA16Float}, Depth: FormatDepth32Float})
	require.NoError(t, err)
	color, _ := b.CreateImage(ImageDescriptor{Label: "c", Width: 8, Height: 8, Format: FormatRGBA16Float})
	depth, _ := b.CreateImage(ImageDescriptor{Label: "d", Width: 8, Height: 8, Format: FormatDepth32Float})
	small, _ := b.CreateImage(ImageDescriptor{Label: "s", Width: 4, Height: 4, Format: FormatDepth32Float})

	fb, err := b.CreateFramebuffer(pass, []*Image{color, depth})
	require.NoError(t, err)
	assert.Equal(t, uint32(8), fb.Width)

	_, err = b.CreateFramebuffer(pass, []*Image{depth, color})
	assert.Error(t, err)
	_, err = b.CreateFramebuffer(pass, []*Image{color, small})
	assert.Error(t, err)
	_, err = b.CreateFramebuffer(pass, []*Image{color})
	assert.Error(t, err)
}

func TestHeadlessSemaphoreEpochs(t *testing.T) {
	b, _ := newTestRenderer(t)
	acquired := b.CreateSemaphore("acquired")
	done := b.CreateSemaphore("done")

	err := b.Submit(SubmitInfo{Waits: []*Semaphore{acquired}})
	assert.ErrorIs(t, err, ErrUnsignaledSemaphore, "nothing acquired yet")

	index, err := b.AcquireNextImage(acquired)
	require.NoError(t, err)
	require.NoError(t, b.Submit(SubmitInfo{Waits: []*Semaphore{acquired}, Signals: []*Semaphore{done}}))
	require.NoError(t, b.Present(index, done))

	// A signal from the previous frame does not satisfy a wait in the next one.
	next, err := b.AcquireNextImage(acquired)
	require.NoError(t, err)
	assert.NotEqual(t, index, next)
	assert.ErrorIs(t, b.Present(next, done), ErrUnsignaledSemaphore)

	require.NoError(t, b.WaitIdle())
	log := b.Submissions()
	require.Len(t, log, 1)
	assert.Equal(t, []*Semaphore{done}, log[0].Signals)
	assert.Equal(t, []int{index}, b.Presents())
}

func TestHeadlessRefresh(t *testing.T) {
	b, r := newTestRenderer(t)
	b.RequestRefresh()
	_, err := b.AcquireNextImage(b.CreateSemaphore("a"))
	assert.True(t, errors.Is(err, ErrNeedsRefresh))

	old := b.SwapchainImages()
	require.NoError(t, b.RecreateSwapchain(100, 50))
	assert.NotSame(t, old[0], b.SwapchainImages()[0])
	w, h := r.Viewport()
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
	_, err = b.AcquireNextImage(b.CreateSemaphore("a"))
	assert.NoError(t, err)
}
