package node

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blurSource = `
struct Params {
    texel: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var source_map: texture_2d<f32>;

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0);
}

@fragment
fn fs_main(@builtin(position) coord: vec4<f32>) -> @location(0) vec4<f32> {
    return textureLoad(source_map, vec2<i32>(coord.xy), 0);
}
`

type blurUniform struct {
	texel [4]float32
}

func (blurUniform) Size() int { return 16 }

func (u blurUniform) Marshal() []byte { return common.NewByteWriter(16).Vec4(u.texel).Bytes() }

func newTestRenderer(t *testing.T, options ...renderer.HeadlessBackendOption) (*renderer.HeadlessBackend, renderer.Renderer) {
	t.Helper()
	b := renderer.NewHeadlessBackend(append([]renderer.HeadlessBackendOption{
		renderer.WithHeadlessExtent(64, 32),
		renderer.WithHeadlessFrames(2),
	}, options...)...)
	t.Cleanup(b.Release)
	r, err := renderer.NewRenderer(b, renderer.WithKernelsCount(2), renderer.WithBufferArena(4<<20))
	require.NoError(t, err)
	return b, r
}

func newTestView(t *testing.T, r renderer.Renderer, objects int) scene.View {
	t.Helper()
	mesh, err := scene.NewCubeMesh(r.Buffers())
	require.NoError(t, err)
	objs := make([]*scene.Object, objects)
	for i := range objs {
		objs[i] = scene.NewObject(mesh, scene.DefaultMaterial, common.Translation(common.Vec3{float32(i), 0, 0}))
	}
	light := scene.NewDirectionalLight(common.Vec3{-1, -2, -1}, common.Vec3{1, 1, 1}, 3)
	return scene.NewStaticView(scene.NewCamera(scene.WithAspect(2)), objs, []scene.DirectionalLight{light})
}

func newBlur(t *testing.T, r renderer.Renderer) *Template {
	t.Helper()
	tmpl, err := NewEffect(r, EffectConfig[blurUniform]{
		Kind:    UserIDStart + 1,
		Name:    "blur",
		Outputs: []BufferInfo{{Format: renderer.FormatR8Unorm, Link: link.Get(link.SingleOutput)}},
		Inputs:  []InputInfo{{Link: link.Get(link.SingleInput), Format: renderer.FormatR8Unorm}},
		Source:  blurSource,
		Uniform: blurUniform{texel: [4]float32{1, 1, 0, 0}},
	})
	require.NoError(t, err)
	return tmpl
}

func mustInstantiate(t *testing.T, tmpl *Template, r renderer.Renderer) *Instance {
	t.Helper()
	n, err := tmpl.Instantiate(r)
	require.NoError(t, err)
	t.Cleanup(n.Release)
	return n
}

// bindGBuffer binds every input of n whose link the G-buffer produces.
func bindGBuffer(n, gbuffer *Instance) {
	for i, in := range n.Inputs().Links() {
		if o, ok := gbuffer.Outputs().Index(in.ID); ok {
			n.RegisterProvider(i, gbuffer, o)
		}
	}
}

func recordAll(t *testing.T, r renderer.Renderer, frame int, view scene.View, nodes ...Node) {
	t.Helper()
	for _, n := range nodes {
		require.NoError(t, n.Prepare(frame, view))
		for k := range r.KernelsCount() {
			require.NoError(t, n.Record(k, frame, view))
		}
	}
}

func TestTemplateInstanceIndependence(t *testing.T) {
	_, r := newTestRenderer(t)
	tmpl, err := NewSSAO(r)
	require.NoError(t, err)

	a := mustInstantiate(t, tmpl, r)
	bn, err := a.CreateInstance(r)
	require.NoError(t, err)
	b := bn.(*Instance)
	t.Cleanup(b.Release)

	assert.Same(t, a.Shared(), b.Shared())
	assert.Same(t, a.OutputResource(0), b.OutputResource(0))
	assert.Same(t, tmpl, b.Template())
	assert.NotSame(t, a.Pass(), b.Pass())
	assert.NotSame(t, a.Semaphore(0), b.Semaphore(0))
	assert.NotSame(t, a.Semaphore(0), a.Semaphore(1))

	ea := a.Pass().(*Effect[SSAOUniform])
	eb := b.Pass().(*Effect[SSAOUniform])
	assert.NotSame(t, ea.Buffer(), eb.Buffer())
	assert.Equal(t, r.FramesCount(), ea.Buffer().Frames())
	assert.Panics(t, func() { a.OutputResource(1) })
}

func TestEffectCopyOnInstantiate(t *testing.T) {
	_, r := newTestRenderer(t)
	tmpl, err := NewSSAO(r)
	require.NoError(t, err)

	a := mustInstantiate(t, tmpl, r)
	ea := a.Pass().(*Effect[SSAOUniform])
	u := ea.Uniform()
	u.Radius = 2
	ea.SetUniform(u)

	bn, err := a.CreateInstance(r)
	require.NoError(t, err)
	t.Cleanup(bn.Release)
	eb := bn.(*Instance).Pass().(*Effect[SSAOUniform])
	assert.Equal(t, float32(2), eb.Uniform().Radius)

	u.Radius = 3
	eb.SetUniform(u)
	assert.Equal(t, float32(2), ea.Uniform().Radius)

	fresh := mustInstantiate(t, tmpl, r)
	assert.Equal(t, DefaultSSAOUniform().Radius, fresh.Pass().(*Effect[SSAOUniform]).Uniform().Radius)
}

func TestBindingInvariant(t *testing.T) {
	_, r := newTestRenderer(t)
	view := newTestView(t, r, 1)
	gt, err := NewGBufferFiller(r, 8)
	require.NoError(t, err)
	st, err := NewSSAO(r)
	require.NoError(t, err)

	g := mustInstantiate(t, gt, r)
	s := mustInstantiate(t, st, r)

	p, _ := s.Provider(0)
	assert.Nil(t, p)
	assert.Panics(t, func() { _ = s.Record(0, 0, view) }, "required inputs unbound")

	bindGBuffer(s, g)
	for i, in := range s.Inputs().Links() {
		p, o := s.Provider(i)
		require.NotNil(t, p, in.Name)
		assert.Same(t, g, p)
		assert.Same(t, g.OutputResource(o), p.OutputResource(o))
		assert.Equal(t, in.ID, g.Outputs().At(o).ID)
	}
	assert.Equal(t, []Node{s}, g.Consumers(g.Outputs().MustIndex(link.Normal)))
	assert.Empty(t, g.Consumers(g.Outputs().MustIndex(link.Albedo)))

	recordAll(t, r, 0, view, g, s)
	cmds := s.frames[0].secondaries[0].Commands()
	require.Len(t, cmds, 3)
	assert.IsType(t, renderer.CmdBindPipeline{}, cmds[0])
	set := cmds[1].(renderer.CmdBindDescriptorSet).Set
	assert.Same(t, g.OutputResource(0), set.Desc.Textures[0])
	assert.Empty(t, s.frames[0].secondaries[1].Commands(), "effects record on kernel 0 only")
}

func TestRegisterProviderPanics(t *testing.T) {
	_, r := newTestRenderer(t)
	gt, err := NewGBufferFiller(r, 8)
	require.NoError(t, err)
	st, err := NewSSAO(r)
	require.NoError(t, err)
	g := mustInstantiate(t, gt, r)
	s := mustInstantiate(t, st, r)
	position := s.Inputs().MustIndex(link.Position)

	t.Run("mismatched links", func(t *testing.T) {
		assert.Panics(t, func() { s.RegisterProvider(position, g, g.Outputs().MustIndex(link.Normal)) })
	})
	t.Run("unknown input", func(t *testing.T) {
		assert.Panics(t, func() { s.RegisterProvider(s.Inputs().Len(), g, 0) })
	})
	t.Run("unknown output", func(t *testing.T) {
		assert.Panics(t, func() { s.RegisterProvider(position, g, g.Outputs().Len()) })
	})
	t.Run("self", func(t *testing.T) {
		assert.Panics(t, func() { s.RegisterProvider(position, s, 0) })
	})
	t.Run("rebinding", func(t *testing.T) {
		s.RegisterProvider(position, g, g.Outputs().MustIndex(link.Position))
		other := mustInstantiate(t, gt, r)
		assert.Panics(t, func() { s.RegisterProvider(position, other, other.Outputs().MustIndex(link.Position)) })
		p, _ := s.Provider(position)
		assert.Same(t, g, p, "a rejected rebind leaves the first binding")
	})
}

func TestDeferredChainEndToEnd(t *testing.T) {
	b, r := newTestRenderer(t)
	view := newTestView(t, r, 3)

	gt, err := NewGBufferFiller(r, 8)
	require.NoError(t, err)
	st, err := NewSSAO(r)
	require.NoError(t, err)
	dt, err := NewDeferredPBR(r, 1)
	require.NoError(t, err)

	g := mustInstantiate(t, gt, r)
	s := mustInstantiate(t, st, r)
	blur := mustInstantiate(t, newBlur(t, r), r)
	d := mustInstantiate(t, dt, r)

	bindGBuffer(s, g)
	bindGBuffer(d, g)
	blur.RegisterProvider(0, s, 0)
	d.RegisterProvider(d.Inputs().MustIndex(link.Occlusion), blur, 0)

	recordAll(t, r, 0, view, g, s, blur, d)

	acquired := b.CreateSemaphore("acquired")
	_, err = b.AcquireNextImage(acquired)
	require.NoError(t, err)

	err = d.Submit(0, b, []*renderer.Semaphore{blur.Semaphore(0)})
	assert.ErrorIs(t, err, renderer.ErrUnsignaledSemaphore, "consumer submitted before its provider")

	require.NoError(t, g.Submit(0, b, []*renderer.Semaphore{acquired}))
	require.NoError(t, s.Submit(0, b, []*renderer.Semaphore{g.Semaphore(0)}))
	require.NoError(t, blur.Submit(0, b, []*renderer.Semaphore{s.Semaphore(0)}))
	require.NoError(t, d.Submit(0, b, []*renderer.Semaphore{g.Semaphore(0), blur.Semaphore(0)}))
	require.NoError(t, b.WaitIdle())

	subs := b.Submissions()
	require.Len(t, subs, 4)
	assert.Contains(t, subs[2].Waits, s.Semaphore(0))
	assert.Contains(t, subs[3].Waits, blur.Semaphore(0))
	assert.Equal(t, []*renderer.Semaphore{d.Semaphore(0)}, subs[3].Signals)
	// three cubes plus one fullscreen triangle per effect
	assert.Equal(t, int64(3+3), b.Draws())

	composer := d.Pass().(*Effect[DeferredPBRUniform])
	set := d.frames[0].secondaries[0].Commands()[1].(renderer.CmdBindDescriptorSet).Set
	assert.Same(t, blur.OutputResource(0), set.Desc.Textures[d.Inputs().MustIndex(link.Occlusion)])
	assert.Equal(t, composer.Buffer().Range(0), set.Desc.Buffers[0])
}

func TestSingleInputSingleOutputEndToEnd(t *testing.T) {
	b, r := newTestRenderer(t)
	view := newTestView(t, r, 1)
	tmpl, err := NewEffect(r, EffectConfig[blurUniform]{
		Kind:    UserIDStart + 2,
		Name:    "relay",
		Outputs: []BufferInfo{{Format: renderer.FormatR8Unorm, Link: link.Get(link.SingleOutput)}},
		Inputs:  []InputInfo{{Link: link.Get(link.SingleInput), Format: renderer.FormatR8Unorm, Optional: true}},
		Source:  blurSource,
	})
	require.NoError(t, err)
	require.Equal(t, 1, tmpl.Inputs().Len())
	require.Equal(t, 1, tmpl.Outputs().Len())
	assert.True(t, tmpl.Optional(0))

	a := mustInstantiate(t, tmpl, r)
	bn := mustInstantiate(t, tmpl, r)
	bn.RegisterProvider(0, a, 0)

	recordAll(t, r, 0, view, a, bn)

	fallback, err := r.DefaultTexture(renderer.FormatR8Unorm)
	require.NoError(t, err)
	aSet := a.frames[0].secondaries[0].Commands()[1].(renderer.CmdBindDescriptorSet).Set
	assert.Same(t, fallback, aSet.Desc.Textures[0], "an unbound optional input reads the default texture")
	bSet := bn.frames[0].secondaries[0].Commands()[1].(renderer.CmdBindDescriptorSet).Set
	assert.Same(t, a.OutputResource(0), bSet.Desc.Textures[0])

	acquired := b.CreateSemaphore("acquired")
	_, err = b.AcquireNextImage(acquired)
	require.NoError(t, err)
	require.NoError(t, a.Submit(0, b, []*renderer.Semaphore{acquired}))
	require.NoError(t, bn.Submit(0, b, []*renderer.Semaphore{a.Semaphore(0)}))
	require.NoError(t, b.WaitIdle())

	subs := b.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, []*renderer.Semaphore{a.Semaphore(0)}, subs[1].Waits)
	assert.Equal(t, int64(2), b.Draws())

	c := mustInstantiate(t, tmpl, r)
	copied, err := bn.CreateInstance(r)
	require.NoError(t, err)
	t.Cleanup(copied.Release)

	p, o := bn.Provider(0)
	assert.Same(t, a, p, "new instances leave existing bindings alone")
	assert.Equal(t, 0, o)
	p, _ = c.Provider(0)
	assert.Nil(t, p)
	p, _ = copied.Provider(0)
	assert.Nil(t, p)
	assert.Equal(t, []Node{bn}, a.Consumers(0))
}

func TestRecordWhileInFlight(t *testing.T) {
	b, r := newTestRenderer(t, renderer.WithHeadlessLatency(50*time.Millisecond))
	view := newTestView(t, r, 1)
	gt, err := NewGBufferFiller(r, 8)
	require.NoError(t, err)
	g := mustInstantiate(t, gt, r)

	acquired := b.CreateSemaphore("acquired")
	_, err = b.AcquireNextImage(acquired)
	require.NoError(t, err)
	recordAll(t, r, 0, view, g)
	require.NoError(t, g.Submit(0, b, []*renderer.Semaphore{acquired}))

	err = g.Record(0, 0, view)
	assert.ErrorIs(t, err, renderer.ErrCommandBufferInFlight)
	assert.NoError(t, g.Record(0, 1, view), "another frame slot is free")

	require.NoError(t, b.WaitIdle())
	assert.NoError(t, g.Record(0, 0, view))
}

func TestMeshPassPartitionsObjects(t *testing.T) {
	_, r := newTestRenderer(t)
	view := newTestView(t, r, 5)
	gt, err := NewGBufferFiller(r, 8)
	require.NoError(t, err)
	g := mustInstantiate(t, gt, r)
	recordAll(t, r, 0, view, g)

	pass := g.Pass().(*GBufferFiller)
	assert.Equal(t, 3, pass.Drawn(0, 0))
	assert.Equal(t, 2, pass.Drawn(1, 0))

	var offsets []uint32
	for _, c := range g.frames[0].secondaries[1].Commands() {
		if bind, ok := c.(renderer.CmdBindDescriptorSet); ok && bind.Set.Desc.Group == 1 {
			offsets = append(offsets, bind.Offsets...)
		}
	}
	assert.Equal(t, []uint32{0, ObjectSlotSize}, offsets)

	t.Run("capacity", func(t *testing.T) {
		small, err := NewGBufferFiller(r, 1)
		require.NoError(t, err)
		n := mustInstantiate(t, small, r)
		require.NoError(t, n.Prepare(0, view))
		err = n.Record(0, 0, view)
		assert.True(t, errors.Is(err, renderer.ErrOutOfMemory))
	})
}

func TestShadowMapperDrawsCasters(t *testing.T) {
	_, r := newTestRenderer(t)
	view := newTestView(t, r, 4)
	view.Objects()[0].CastsShadows = false
	view.Objects()[2].CastsShadows = false

	tmpl, err := NewShadowMapper(r, 0, 256, 8)
	require.NoError(t, err)
	n := mustInstantiate(t, tmpl, r)
	SetShadowCascade(n, 1, 2)
	recordAll(t, r, 0, view, n)

	sm := n.Pass().(*ShadowMapper)
	assert.Equal(t, 0, sm.Drawn(0, 0))
	assert.Equal(t, 2, sm.Drawn(1, 0))
	cascade, cascades := sm.Cascade()
	assert.Equal(t, 1, cascade)
	assert.Equal(t, 2, cascades)
	assert.Equal(t, uint32(256), n.OutputResource(0).Image.Width)
	assert.Panics(t, func() { sm.SetCascade(2, 2) })
}

func TestManagerHoldsTemplatesWeakly(t *testing.T) {
	_, r := newTestRenderer(t)
	m := NewManager()

	kept, err := NewSSAO(r)
	require.NoError(t, err)
	m.Insert(kept)
	func() {
		dropped := newBlur(t, r)
		m.Insert(dropped)
		assert.Equal(t, 2, m.Len())
	}()

	n, err := m.ByName(SSAOName, r)
	require.NoError(t, err)
	t.Cleanup(n.Release)
	assert.Equal(t, SSAOKind, n.Kind())

	n, err = m.ByIndex(0, r)
	require.NoError(t, err)
	t.Cleanup(n.Release)
	assert.Equal(t, SSAOName, n.Name())

	runtime.GC()
	assert.Equal(t, 1, m.Len())
	_, err = m.ByKind(UserIDStart+1, r)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
	_, err = m.ByName("blur", r)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
	runtime.KeepAlive(kept)
}

func TestManagerInsertReplaces(t *testing.T) {
	_, r := newTestRenderer(t)
	m := NewManager()
	first, err := NewSSAO(r)
	require.NoError(t, err)
	second, err := NewSSAO(r)
	require.NoError(t, err)

	m.Insert(first)
	m.Insert(second)
	assert.Equal(t, 1, m.Len())
	got, ok := m.Template(SSAOKind)
	require.True(t, ok)
	assert.Same(t, second, got)

	_, err = m.ByIndex(1, r)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
	runtime.KeepAlive(first)
}

func TestManagerKeepsTemplatesOfOneKind(t *testing.T) {
	_, r := newTestRenderer(t)
	m := NewManager()
	first, err := NewShadowMapper(r, 0, 16, 4)
	require.NoError(t, err)
	second, err := NewShadowMapper(r, 1, 16, 4)
	require.NoError(t, err)

	m.Insert(first)
	m.Insert(second)
	assert.Equal(t, 2, m.Len())
	got, ok := m.Template(ShadowMapperKind)
	require.True(t, ok)
	assert.Same(t, second, got)

	inst, err := m.ByName(first.Name(), r)
	require.NoError(t, err)
	assert.Same(t, first, inst.Template())
	inst.Release()
}

func TestSSAOSampleVectors(t *testing.T) {
	a := SSAOSampleVectors(7)
	assert.Equal(t, a, SSAOSampleVectors(7))
	assert.NotEqual(t, a, SSAOSampleVectors(8))

	var sum float32
	for _, s := range a {
		assert.GreaterOrEqual(t, s[2], float32(0))
		assert.Less(t, s[2], float32(1))
		assert.Less(t, s[3], float32(0))
		sum += s[3]
	}
	assert.InDelta(t, -1, sum, 1e-4)
}

func TestUniformLayoutsMatchShaders(t *testing.T) {
	cases := []struct {
		name      string
		source    string
		constants map[string]string
		uniform   Uniform
	}{
		{SSAOName, ssaoSource, nil, DefaultSSAOUniform()},
		{SSRName, ssrSource, nil, SSRUniform{}},
		{DeferredPBRName, deferredPBRSource, nil, DeferredPBRUniform{}},
		{ShadowAccumulatorDirectionalName, shadowAccumulatorDirectionalSource, map[string]string{"CASCADES": "4"}, DefaultShadowAccumulatorUniform()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			program, err := shader.NewShader(tc.name, tc.source, tc.constants)
			require.NoError(t, err)
			bindings := program.Bindings(0)
			require.NotEmpty(t, bindings)
			assert.Equal(t, shader.BindingUniform, bindings[0].Kind)
			assert.Equal(t, uint64(tc.uniform.Size()), bindings[0].Size)
			assert.Len(t, tc.uniform.Marshal(), tc.uniform.Size())
		})
	}

	t.Run("mesh passes", func(t *testing.T) {
		for _, src := range []string{gbufferFillerSource, shadowMapperSource} {
			program, err := shader.NewShader("mesh", src, nil)
			require.NoError(t, err)
			assert.Equal(t, uint64(64), program.Bindings(0)[0].Size)
			assert.Equal(t, uint64(objectDataSize), program.Bindings(1)[0].Size)
		}
	})
}

func TestDeferredEffectsRecord(t *testing.T) {
	b, r := newTestRenderer(t)
	view := newTestView(t, r, 2)
	const cascades = 2

	gt, err := NewGBufferFiller(r, 8)
	require.NoError(t, err)
	at, err := NewShadowAccumulatorDirectional(r, cascades)
	require.NoError(t, err)
	dt, err := NewDeferredPBR(r, 1)
	require.NoError(t, err)
	rt, err := NewSSR(r)
	require.NoError(t, err)

	g := mustInstantiate(t, gt, r)
	acc := mustInstantiate(t, at, r)
	d := mustInstantiate(t, dt, r)
	ssr := mustInstantiate(t, rt, r)
	nodes := []Node{g}
	for c := range cascades {
		st, err := NewShadowMapper(r, c, 128, 8)
		require.NoError(t, err)
		sm := mustInstantiate(t, st, r)
		SetShadowCascade(sm, c, cascades)
		acc.RegisterProvider(acc.Inputs().MustIndex(link.ShadowMap0+link.ID(c)), sm, 0)
		nodes = append(nodes, sm)
	}
	bindGBuffer(acc, g)
	bindGBuffer(d, g)
	bindGBuffer(ssr, g)
	d.RegisterProvider(d.Inputs().MustIndex(link.AccumulatedShadows), acc, 0)
	ssr.RegisterProvider(ssr.Inputs().MustIndex(link.Color), d, 0)
	nodes = append(nodes, acc, d, ssr)

	recordAll(t, r, 1, view, nodes...)

	u := acc.Pass().(*Effect[ShadowAccumulatorUniform]).Uniform()
	assert.Equal(t, uint32(cascades), u.CascadesCount)
	assert.InDelta(t, 3, u.DirectionStrength[3], 1e-6)

	set := acc.frames[1].secondaries[0].Commands()[1].(renderer.CmdBindDescriptorSet).Set
	unbound := set.Desc.Textures[acc.Inputs().MustIndex(link.ShadowMap5)]
	placeholder, err := r.DefaultTexture(renderer.FormatDepth32Float)
	require.NoError(t, err)
	assert.Same(t, placeholder, unbound)

	acquired := b.CreateSemaphore("acquired")
	_, err = b.AcquireNextImage(acquired)
	require.NoError(t, err)
	for _, n := range nodes {
		require.NoError(t, n.Submit(1, b, []*renderer.Semaphore{acquired}))
	}
	require.NoError(t, b.WaitIdle())
}
