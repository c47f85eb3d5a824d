// Package wgpu_backend implements renderer.Backend on top of WebGPU.
//
// Command buffers are recorded on the CPU by any goroutine and replayed into a
// wgpu.CommandEncoder when they are submitted. WebGPU exposes a single ordered queue, so
// semaphores are satisfied by submission order. Fences are signaled from the queue's
// work-done callback, which only fires while the device is polled; Submit, AcquireNextImage
// and Fence.Wait all poll.
package wgpu_backend

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// DynamicGroup is the bind group whose uniform bindings take a dynamic offset. Mesh passes
// keep one uniform slot per object in it.
const DynamicGroup = 1

type wgpuImage struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

type wgpuPipeline struct {
	pipeline *wgpu.RenderPipeline
	layouts  map[int]*wgpu.BindGroupLayout
	program  shader.Shader
}

type wgpuBackend struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	fallback      bool

	width  int
	height int
	frames int

	images  []*renderer.Image
	next    int
	current *wgpuImage
}

var _ renderer.Backend = &wgpuBackend{}

// NewWGPUBackend creates a backend rendering to the surface described by surfaceDescriptor.
// The swapchain is configured at width x height before it returns.
//
// Parameters:
//   - surfaceDescriptor: the platform surface to present to
//   - width: initial surface width in pixels
//   - height: initial surface height in pixels
//   - options: functional options to configure the backend
//
// Returns:
//   - renderer.Backend: the configured backend
//   - error: an error if no adapter or device could be obtained
func NewWGPUBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, width, height int, options ...WGPUBackendOption) (renderer.Backend, error) {
	runtime.LockOSThread()
	b := &wgpuBackend{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
		frames:      3,
	}
	for _, opt := range options {
		opt(b)
	}
	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: b.fallback,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu_backend: request adapter: %w", err)
	}
	b.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Graph Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu_backend: request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()

	if err := b.RecreateSwapchain(width, height); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *wgpuBackend) Type() renderer.RendererBackendType {
	return renderer.BackendTypeWGPU
}

func (b *wgpuBackend) textureFormat(f renderer.Format) wgpu.TextureFormat {
	switch f {
	case renderer.FormatRGBA16Float:
		return wgpu.TextureFormatRGBA16Float
	case renderer.FormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm
	case renderer.FormatR8Unorm:
		return wgpu.TextureFormatR8Unorm
	case renderer.FormatR8Uint:
		return wgpu.TextureFormatR8Uint
	case renderer.FormatDepth32Float:
		return wgpu.TextureFormatDepth32Float
	case renderer.FormatSurface:
		return b.surfaceFormat
	}
	common.Fatalf("wgpu_backend: no texture format for %s", f)
	return wgpu.TextureFormatUndefined
}

func (b *wgpuBackend) CreateImage(desc renderer.ImageDescriptor) (*renderer.Image, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.Format == renderer.FormatUndefined {
		return nil, fmt.Errorf("wgpu_backend: invalid image %q: %dx%d %s", desc.Label, desc.Width, desc.Height, desc.Format)
	}
	var usage wgpu.TextureUsage
	if desc.Usage&renderer.ImageUsageAttachment != 0 {
		usage |= wgpu.TextureUsageRenderAttachment
	}
	if desc.Usage&renderer.ImageUsageSampled != 0 {
		usage |= wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	texture, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        b.textureFormat(desc.Format),
		Usage:         usage,
	})
	if err != nil {
		return nil, err
	}
	view, err := texture.CreateView(nil)
	if err != nil {
		texture.Release()
		return nil, err
	}
	return renderer.NewImage(desc, &wgpuImage{texture: texture, view: view}), nil
}

func (b *wgpuBackend) CreateSampler(desc renderer.SamplerDescriptor) (*renderer.Sampler, error) {
	filter, mipmap := wgpu.FilterModeNearest, wgpu.MipmapFilterModeNearest
	if desc.Filter == renderer.FilterLinear {
		filter, mipmap = wgpu.FilterModeLinear, wgpu.MipmapFilterModeLinear
	}
	sd := &wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  mipmap,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
	if desc.Compare {
		sd.Compare = wgpu.CompareFunctionLess
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.device.CreateSampler(sd)
	if err != nil {
		return nil, err
	}
	return renderer.NewSampler(desc, s), nil
}

func (b *wgpuBackend) CreateBuffer(desc renderer.BufferDescriptor) (*renderer.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("wgpu_backend: buffer %q has zero size", desc.Label)
	}
	var usage wgpu.BufferUsage
	if desc.Usage&renderer.BufferUsageUniform != 0 {
		usage |= wgpu.BufferUsageUniform
	}
	if desc.Usage&renderer.BufferUsageVertex != 0 {
		usage |= wgpu.BufferUsageVertex
	}
	if desc.Usage&renderer.BufferUsageIndex != 0 {
		usage |= wgpu.BufferUsageIndex
	}
	if desc.Usage&renderer.BufferUsageCopyDst != 0 {
		usage |= wgpu.BufferUsageCopyDst
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: usage,
	})
	if err != nil {
		return nil, err
	}
	return renderer.NewBuffer(desc, buf), nil
}

func (b *wgpuBackend) WriteBuffer(buf *renderer.Buffer, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > buf.Size {
		return fmt.Errorf("wgpu_backend: write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, buf.Label, buf.Size)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.WriteBuffer(buf.Native().(*wgpu.Buffer), offset, data)
}

func (b *wgpuBackend) CreateRenderPass(desc renderer.RenderPassDescriptor) (*renderer.RenderPass, error) {
	if len(desc.Colors) == 0 && desc.Depth == renderer.FormatUndefined {
		return nil, fmt.Errorf("wgpu_backend: render pass %q has no attachments", desc.Label)
	}
	if desc.Depth != renderer.FormatUndefined && !desc.Depth.IsDepth() {
		return nil, fmt.Errorf("wgpu_backend: render pass %q depth attachment is %s", desc.Label, desc.Depth)
	}
	return renderer.NewRenderPass(desc, nil), nil
}

func (b *wgpuBackend) CreateFramebuffer(pass *renderer.RenderPass, attachments []*renderer.Image) (*renderer.Framebuffer, error) {
	want := len(pass.Desc.Colors)
	if pass.Desc.Depth != renderer.FormatUndefined {
		want++
	}
	if len(attachments) != want {
		return nil, fmt.Errorf("wgpu_backend: render pass %q takes %d attachments, got %d", pass.Desc.Label, want, len(attachments))
	}
	for i, img := range attachments {
		f := pass.Desc.Depth
		if i < len(pass.Desc.Colors) {
			f = pass.Desc.Colors[i]
		}
		if img.Format != f {
			return nil, fmt.Errorf("wgpu_backend: attachment %d of %q is %s, pass wants %s", i, pass.Desc.Label, img.Format, f)
		}
		if img.Width != attachments[0].Width || img.Height != attachments[0].Height {
			return nil, fmt.Errorf("wgpu_backend: attachments of %q differ in size", pass.Desc.Label)
		}
	}
	return renderer.NewFramebuffer(pass, attachments, nil), nil
}

func (b *wgpuBackend) CreatePipeline(desc renderer.PipelineDescriptor) (*renderer.Pipeline, error) {
	if desc.Pass == nil {
		return nil, fmt.Errorf("wgpu_backend: pipeline %q has no render pass", desc.Label)
	}
	program, err := shader.NewShader(desc.Label, desc.Source, desc.Constants)
	if err != nil {
		return nil, err
	}
	if len(desc.Pass.Desc.Colors) > 0 && program.FragmentEntry() == "" {
		return nil, fmt.Errorf("wgpu_backend: pipeline %q writes color but declares no @fragment entry", desc.Label)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: program.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: program.Source(),
		},
	})
	if err != nil {
		return nil, err
	}

	native := &wgpuPipeline{layouts: make(map[int]*wgpu.BindGroupLayout), program: program}
	maxGroup := -1
	for _, g := range program.Groups() {
		maxGroup = max(maxGroup, g)
	}
	bindGroupLayouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := range maxGroup + 1 {
		layout, layoutErr := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s Group %d", desc.Label, g),
			Entries: layoutEntries(g, program.Bindings(g)),
		})
		if layoutErr != nil {
			return nil, fmt.Errorf("wgpu_backend: bind group layout %d of %q: %w", g, desc.Label, layoutErr)
		}
		bindGroupLayouts[g] = layout
		native.layouts[g] = layout
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return nil, err
	}

	var vertexLayouts []wgpu.VertexBufferLayout
	if desc.Vertex == renderer.VertexInputMesh {
		vertexLayouts = []wgpu.VertexBufferLayout{{
			ArrayStride: renderer.MeshVertexStride,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
				{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
				{Format: wgpu.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
			},
		}}
	}

	rpd := &wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: program.VertexEntry(),
			Buffers:    vertexLayouts,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cullMode(desc.Cull),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if program.FragmentEntry() != "" {
		targets := make([]wgpu.ColorTargetState, len(desc.Pass.Desc.Colors))
		for i, f := range desc.Pass.Desc.Colors {
			targets[i] = wgpu.ColorTargetState{Format: b.textureFormat(f), WriteMask: wgpu.ColorWriteMaskAll}
		}
		rpd.Fragment = &wgpu.FragmentState{
			Module:     module,
			EntryPoint: program.FragmentEntry(),
			Targets:    targets,
		}
	}
	if desc.Pass.Desc.Depth != renderer.FormatUndefined {
		depthCompare := wgpu.CompareFunctionLess
		if !desc.DepthTest {
			depthCompare = wgpu.CompareFunctionAlways
		}
		rpd.DepthStencil = &wgpu.DepthStencilState{
			Format:            b.textureFormat(desc.Pass.Desc.Depth),
			DepthWriteEnabled: desc.DepthTest,
			DepthCompare:      depthCompare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	native.pipeline, err = b.device.CreateRenderPipeline(rpd)
	if err != nil {
		return nil, err
	}
	return renderer.NewPipeline(desc, native), nil
}

func cullMode(c renderer.CullMode) wgpu.CullMode {
	switch c {
	case renderer.CullBack:
		return wgpu.CullModeBack
	case renderer.CullFront:
		return wgpu.CullModeFront
	}
	return wgpu.CullModeNone
}

// layoutEntries turns reflected bindings into layout entries. Uniforms of DynamicGroup
// take a dynamic offset.
func layoutEntries(group int, bindings []shader.Binding) []wgpu.BindGroupLayoutEntry {
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(bindings))
	for _, bd := range bindings {
		entry := wgpu.BindGroupLayoutEntry{
			Binding:    uint32(bd.Binding),
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
		}
		switch bd.Kind {
		case shader.BindingUniform:
			entry.Buffer.Type = wgpu.BufferBindingTypeUniform
			entry.Buffer.MinBindingSize = bd.Size
			entry.Buffer.HasDynamicOffset = group == DynamicGroup
		case shader.BindingTexture:
			entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
			entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
		case shader.BindingUintTexture:
			entry.Texture.SampleType = wgpu.TextureSampleTypeUint
			entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
		case shader.BindingDepthTexture:
			entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
			entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
		case shader.BindingSampler:
			entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
		case shader.BindingComparisonSampler:
			entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
		}
		entries = append(entries, entry)
	}
	return entries
}

func (b *wgpuBackend) CreateDescriptorSet(desc renderer.DescriptorSetDescriptor) (*renderer.DescriptorSet, error) {
	native := desc.Pipeline.Native().(*wgpuPipeline)
	bindings := native.program.Bindings(desc.Group)
	if err := renderer.ValidateDescriptorSet(bindings, desc); err != nil {
		return nil, err
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(bindings))
	nextBuffer, nextTexture := 0, 0
	var last *renderer.Texture
	for _, bd := range bindings {
		entry := wgpu.BindGroupEntry{Binding: uint32(bd.Binding)}
		switch {
		case bd.Kind == shader.BindingUniform:
			r := desc.Buffers[nextBuffer]
			entry.Buffer = r.Buffer.Native().(*wgpu.Buffer)
			entry.Offset = r.Offset
			entry.Size = r.Size
			nextBuffer++
		case bd.Kind.IsTexture():
			last = desc.Textures[nextTexture]
			entry.TextureView = last.Image.Native().(*wgpuImage).view
			nextTexture++
		case bd.Kind.IsSampler():
			entry.Sampler = last.Sampler.Native().(*wgpu.Sampler)
		}
		entries = append(entries, entry)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label + " Bind Group",
		Layout:  native.layouts[desc.Group],
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	return renderer.NewDescriptorSet(desc, bindGroup), nil
}

func (b *wgpuBackend) CreateSemaphore(label string) *renderer.Semaphore {
	return renderer.NewSemaphore(label)
}

func (b *wgpuBackend) SwapchainImages() []*renderer.Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.images
}

func (b *wgpuBackend) Extent() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

func (b *wgpuBackend) AcquireNextImage(_ *renderer.Semaphore) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device.Poll(false, nil)

	if b.current != nil {
		return 0, errors.New("wgpu_backend: previous surface image not yet presented")
	}
	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", renderer.ErrNeedsRefresh, err)
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return 0, err
	}
	b.current = &wgpuImage{texture: surfaceTexture, view: view}

	index := b.next
	b.next = (b.next + 1) % len(b.images)
	b.images[index].SetNative(b.current)
	return index, nil
}

func (b *wgpuBackend) Present(index int, _ *renderer.Semaphore) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.images) {
		return fmt.Errorf("wgpu_backend: present of image %d out of %d", index, len(b.images))
	}
	if b.current == nil {
		return errors.New("wgpu_backend: present without an acquired image")
	}
	b.surface.Present()
	b.current.view.Release()
	b.current.texture.Release()
	b.current = nil
	b.images[index].SetNative(nil)
	return nil
}

func (b *wgpuBackend) RecreateSwapchain(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("wgpu_backend: invalid swapchain size %dx%d", width, height)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	b.width, b.height = width, height
	b.images = make([]*renderer.Image, b.frames)
	for i := range b.images {
		b.images[i] = renderer.NewImage(renderer.ImageDescriptor{
			Label:  fmt.Sprintf("Swapchain %d", i),
			Width:  uint32(width),
			Height: uint32(height),
			Format: renderer.FormatSurface,
			Usage:  renderer.ImageUsageAttachment | renderer.ImageUsagePresent,
		}, nil)
	}
	b.next = 0
	return nil
}

func (b *wgpuBackend) Submit(info renderer.SubmitInfo) error {
	for _, cmd := range info.Commands {
		if cmd.Recording() || cmd.Level != renderer.LevelPrimary {
			return fmt.Errorf("wgpu_backend: command buffer %q is not an ended primary", cmd.Label)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	buffers := make([]*wgpu.CommandBuffer, 0, len(info.Commands))
	for _, cmd := range info.Commands {
		cb, err := b.encode(cmd)
		if err != nil {
			for _, done := range buffers {
				done.Release()
			}
			return err
		}
		buffers = append(buffers, cb)
	}
	for _, cmd := range info.Commands {
		cmd.MarkSubmitted()
	}
	b.queue.Submit(buffers...)
	for _, cb := range buffers {
		cb.Release()
	}

	// The callback runs inside device.Poll with b.mu held.
	cmds := append([]*renderer.CommandBuffer(nil), info.Commands...)
	fence := info.Fence
	b.queue.OnSubmittedWorkDone(func(status wgpu.QueueWorkDoneStatus) {
		if status != wgpu.QueueWorkDoneStatusSuccess {
			common.Logger().Error("wgpu_backend: submitted work did not complete", "status", status)
		}
		for _, cmd := range cmds {
			cmd.MarkCompleted()
		}
		if fence != nil {
			fence.Signal()
		}
	})
	if fence != nil {
		fence.SetPoller(b.poll)
	}
	b.device.Poll(false, nil)
	return nil
}

// poll drives pending queue callbacks without blocking.
func (b *wgpuBackend) poll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device.Poll(false, nil)
}

// encode replays one primary command buffer into a fresh encoder. Buffer writes go
// straight to the queue so they land before the work that reads them.
func (b *wgpuBackend) encode(cmd *renderer.CommandBuffer) (*wgpu.CommandBuffer, error) {
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	var pass *wgpu.RenderPassEncoder
	if err := b.replay(encoder, &pass, cmd); err != nil {
		encoder.Release()
		return nil, err
	}
	cb, err := encoder.Finish(nil)
	encoder.Release()
	return cb, err
}

func (b *wgpuBackend) replay(encoder *wgpu.CommandEncoder, pass **wgpu.RenderPassEncoder, cmd *renderer.CommandBuffer) error {
	for _, c := range cmd.Commands() {
		switch c := c.(type) {
		case renderer.CmdWriteBuffer:
			if err := b.queue.WriteBuffer(c.Buffer.Native().(*wgpu.Buffer), c.Offset, c.Data); err != nil {
				return err
			}
		case renderer.CmdBeginRenderPass:
			*pass = encoder.BeginRenderPass(passDescriptor(c.Framebuffer))
		case renderer.CmdEndRenderPass:
			(*pass).End()
			*pass = nil
		case renderer.CmdBindPipeline:
			(*pass).SetPipeline(c.Pipeline.Native().(*wgpuPipeline).pipeline)
		case renderer.CmdBindDescriptorSet:
			(*pass).SetBindGroup(uint32(c.Set.Desc.Group), c.Set.Native().(*wgpu.BindGroup), c.Offsets)
		case renderer.CmdDraw:
			(*pass).Draw(c.Vertices, c.Instances, 0, 0)
		case renderer.CmdDrawMesh:
			(*pass).SetVertexBuffer(0, c.Mesh.Vertices.Native().(*wgpu.Buffer), 0, wgpu.WholeSize)
			(*pass).SetIndexBuffer(c.Mesh.Indices.Native().(*wgpu.Buffer), wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
			(*pass).DrawIndexed(c.Mesh.IndexCount, c.Instances, 0, 0, 0)
		case renderer.CmdExecuteCommands:
			for _, secondary := range c.Buffers {
				if err := b.replay(encoder, pass, secondary); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// passDescriptor resolves attachment views at replay time, so swapchain framebuffers pick
// up the image acquired for this frame.
func passDescriptor(fb *renderer.Framebuffer) *wgpu.RenderPassDescriptor {
	desc := fb.Pass.Desc
	loadOp := wgpu.LoadOpLoad
	if desc.Clear {
		loadOp = wgpu.LoadOpClear
	}
	rpd := &wgpu.RenderPassDescriptor{
		Label:            desc.Label,
		ColorAttachments: make([]wgpu.RenderPassColorAttachment, len(desc.Colors)),
	}
	for i := range desc.Colors {
		rpd.ColorAttachments[i] = wgpu.RenderPassColorAttachment{
			View:    fb.Attachments[i].Native().(*wgpuImage).view,
			LoadOp:  loadOp,
			StoreOp: wgpu.StoreOpStore,
			ClearValue: wgpu.Color{
				R: desc.ClearColor.R, G: desc.ClearColor.G, B: desc.ClearColor.B, A: desc.ClearColor.A,
			},
		}
	}
	if desc.Depth != renderer.FormatUndefined {
		rpd.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            fb.Attachments[len(desc.Colors)].Native().(*wgpuImage).view,
			DepthLoadOp:     loadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		}
	}
	return rpd
}

func (b *wgpuBackend) WaitIdle() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device.Poll(true, nil)
	return nil
}

func (b *wgpuBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.current.view.Release()
		b.current.texture.Release()
		b.current = nil
	}
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.surface.Release()
	b.instance.Release()
}
