package renderer

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
)

// Format is a backend-neutral texel format.
type Format int

const (
	FormatUndefined Format = iota
	// FormatRGBA16Float holds G-buffer vectors and lit color.
	FormatRGBA16Float
	// FormatRGBA8Unorm holds albedo.
	FormatRGBA8Unorm
	// FormatR8Unorm holds a single normalised float per texel, such as ambient occlusion.
	FormatR8Unorm
	// FormatR8Uint holds eight flag bits per texel, such as accumulated shadow bits.
	FormatR8Uint
	// FormatDepth32Float holds depth.
	FormatDepth32Float
	// FormatSurface is whatever format the presentation surface prefers.
	FormatSurface
)

func (f Format) String() string {
	switch f {
	case FormatRGBA16Float:
		return "rgba16float"
	case FormatRGBA8Unorm:
		return "rgba8unorm"
	case FormatR8Unorm:
		return "r8unorm"
	case FormatR8Uint:
		return "r8uint"
	case FormatDepth32Float:
		return "depth32float"
	case FormatSurface:
		return "surface"
	}
	return "undefined"
}

// IsDepth reports whether f is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatDepth32Float
}

// ImageUsage is a bit set of the ways an image will be used.
type ImageUsage uint32

const (
	ImageUsageAttachment ImageUsage = 1 << iota
	ImageUsageSampled
	ImageUsagePresent
)

// ImageDescriptor describes an image to create.
type ImageDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format Format
	Usage  ImageUsage
}

// Image is a backend image handle.
type Image struct {
	ID     uint64
	Label  string
	Width  uint32
	Height uint32
	Format Format
	Usage  ImageUsage
	native any
}

// NewImage wraps a backend payload in an Image handle. Backends call this.
func NewImage(desc ImageDescriptor, native any) *Image {
	return &Image{
		ID:     common.NextID(),
		Label:  desc.Label,
		Width:  desc.Width,
		Height: desc.Height,
		Format: desc.Format,
		Usage:  desc.Usage,
		native: native,
	}
}

// Native returns the backend payload.
func (i *Image) Native() any { return i.native }

// SetNative replaces the backend payload. Swapchain images are rebound on every acquire.
func (i *Image) SetNative(native any) { i.native = native }

// Filter selects texel filtering for a sampler.
type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

// SamplerDescriptor describes a sampler. It is comparable and used as a cache key.
type SamplerDescriptor struct {
	Label   string
	Filter  Filter
	Compare bool
}

// Sampler is a backend sampler handle.
type Sampler struct {
	ID     uint64
	Desc   SamplerDescriptor
	native any
}

// NewSampler wraps a backend payload in a Sampler handle.
func NewSampler(desc SamplerDescriptor, native any) *Sampler {
	return &Sampler{ID: common.NextID(), Desc: desc, native: native}
}

func (s *Sampler) Native() any { return s.native }

// Texture is an image as seen by a shader: the image plus the sampler that reads it.
// Sampler may be nil for texel fetches.
type Texture struct {
	Image   *Image
	Sampler *Sampler
}

// BufferUsage is a bit set of the ways a buffer will be used.
type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageCopyDst
)

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// Buffer is a backend buffer handle.
type Buffer struct {
	ID     uint64
	Label  string
	Size   uint64
	Usage  BufferUsage
	native any
}

// NewBuffer wraps a backend payload in a Buffer handle.
func NewBuffer(desc BufferDescriptor, native any) *Buffer {
	return &Buffer{ID: common.NextID(), Label: desc.Label, Size: desc.Size, Usage: desc.Usage, native: native}
}

func (b *Buffer) Native() any { return b.native }

// BufferRange is a window into a buffer bound to a shader.
type BufferRange struct {
	Buffer *Buffer
	Offset uint64
	Size   uint64
}

// Color is a linear RGBA clear color.
type Color struct {
	R, G, B, A float64
}

// RenderPassDescriptor describes the attachments of a pass.
type RenderPassDescriptor struct {
	Label string
	// Colors lists the color attachment formats in binding order.
	Colors []Format
	// Depth is the depth attachment format, or FormatUndefined for none.
	Depth Format
	// Clear selects clear-on-load; otherwise previous contents are kept.
	Clear      bool
	ClearColor Color
}

// RenderPass is a backend render pass handle.
type RenderPass struct {
	ID     uint64
	Desc   RenderPassDescriptor
	native any
}

// NewRenderPass wraps a backend payload in a RenderPass handle.
func NewRenderPass(desc RenderPassDescriptor, native any) *RenderPass {
	return &RenderPass{ID: common.NextID(), Desc: desc, native: native}
}

func (p *RenderPass) Native() any { return p.native }

// Framebuffer binds images to a render pass's attachments.
type Framebuffer struct {
	ID          uint64
	Pass        *RenderPass
	Attachments []*Image
	Width       uint32
	Height      uint32
	native      any
}

// NewFramebuffer wraps a backend payload in a Framebuffer handle. The size is taken from the first attachment.
func NewFramebuffer(pass *RenderPass, attachments []*Image, native any) *Framebuffer {
	fb := &Framebuffer{ID: common.NextID(), Pass: pass, Attachments: attachments, native: native}
	if len(attachments) > 0 {
		fb.Width, fb.Height = attachments[0].Width, attachments[0].Height
	}
	return fb
}

func (f *Framebuffer) Native() any { return f.native }

// VertexInput selects the vertex stream a pipeline consumes.
type VertexInput int

const (
	// VertexInputNone draws a generated fullscreen triangle; no vertex buffer is bound.
	VertexInputNone VertexInput = iota
	// VertexInputMesh consumes interleaved position/normal/uv vertices (MeshVertexStride bytes).
	VertexInputMesh
)

// MeshVertexStride is the size of one interleaved mesh vertex: position, normal and uv.
const MeshVertexStride = 32

// CullMode selects face culling.
type CullMode int

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

// PipelineDescriptor describes a graphics pipeline.
type PipelineDescriptor struct {
	Label string
	// Source is the WGSL program. It declares vs_main and fs_main entry points.
	Source string
	// Constants replace ${NAME} placeholders in Source before compilation.
	Constants map[string]string
	Pass      *RenderPass
	Vertex    VertexInput
	Cull      CullMode
	DepthTest bool
}

// Pipeline is a backend pipeline handle.
type Pipeline struct {
	ID     uint64
	Desc   PipelineDescriptor
	native any
}

// NewPipeline wraps a backend payload in a Pipeline handle.
func NewPipeline(desc PipelineDescriptor, native any) *Pipeline {
	return &Pipeline{ID: common.NextID(), Desc: desc, native: native}
}

func (p *Pipeline) Native() any { return p.native }

// DescriptorSetDescriptor binds resources to group Group of Pipeline's layout.
// Buffers and Textures are assigned to the group's bindings in binding order; a sampler
// binding takes the Sampler of the texture bound just before it.
type DescriptorSetDescriptor struct {
	Label    string
	Pipeline *Pipeline
	Group    int
	Buffers  []BufferRange
	Textures []*Texture
}

// DescriptorSet is a backend descriptor set (bind group) handle.
type DescriptorSet struct {
	ID     uint64
	Desc   DescriptorSetDescriptor
	native any
}

// NewDescriptorSet wraps a backend payload in a DescriptorSet handle.
func NewDescriptorSet(desc DescriptorSetDescriptor, native any) *DescriptorSet {
	return &DescriptorSet{ID: common.NextID(), Desc: desc, native: native}
}

func (d *DescriptorSet) Native() any { return d.native }

// Semaphore orders GPU work between submissions.
type Semaphore struct {
	ID    uint64
	Label string
}

// NewSemaphore creates a semaphore handle.
func NewSemaphore(label string) *Semaphore {
	return &Semaphore{ID: common.NextID(), Label: label}
}

// Mesh is an indexed triangle list in GPU memory. Indices are uint32.
type Mesh struct {
	Vertices   *Buffer
	Indices    *Buffer
	IndexCount uint32
}

// SubmitInfo describes one queue submission.
type SubmitInfo struct {
	Waits    []*Semaphore
	Commands []*CommandBuffer
	Signals  []*Semaphore
	Fence    *Fence
}
