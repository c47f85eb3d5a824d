package renderer

import "errors"

// RendererBackendType identifies the GPU backend implementation behind a Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU backend (see package wgpu_backend).
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeHeadless selects the in-memory backend used for tests and headless runs.
	BackendTypeHeadless
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeHeadless:
		return "headless"
	}
	return "unknown"
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	PresentModeUncapped
)

var (
	// ErrNeedsRefresh reports that the swapchain no longer matches the surface (resize,
	// minimise, display change). The current frame must be dropped and swapchain-dependent
	// resources rebuilt. It is the only backend error callers recover from.
	ErrNeedsRefresh = errors.New("renderer: swapchain needs refresh")

	// ErrFenceTimeout reports that a frame fence did not signal within the configured timeout.
	ErrFenceTimeout = errors.New("renderer: fence wait timed out")

	// ErrOutOfMemory reports that an allocation would exceed the buffer arena.
	ErrOutOfMemory = errors.New("renderer: out of buffer memory")

	// ErrCommandBufferInFlight reports an attempt to re-record a command buffer the GPU has not finished with.
	ErrCommandBufferInFlight = errors.New("renderer: command buffer is still in flight")

	// ErrUnsignaledSemaphore reports a submission waiting on a semaphore nothing signaled this frame.
	ErrUnsignaledSemaphore = errors.New("renderer: wait on unsignaled semaphore")
)

// Submitter queues recorded command buffers for execution. Backend implements it; node
// code depends only on this narrow view.
type Submitter interface {
	// Submit queues info.Commands for execution after every semaphore in info.Waits has been
	// signaled. On completion every semaphore in info.Signals is signaled and, if set,
	// info.Fence is signaled.
	//
	// Parameters:
	//   - info: the submission description
	//
	// Returns:
	//   - error: a validation or device error
	Submit(info SubmitInfo) error
}

// Backend is the narrow boundary between the engine and a native graphics API.
// Handles returned by a backend carry an opaque native payload only that backend reads.
type Backend interface {
	Submitter

	// Type reports which implementation this is.
	Type() RendererBackendType

	// CreateImage allocates a 2D image usable as an attachment and, if requested, as a sampled texture.
	CreateImage(desc ImageDescriptor) (*Image, error)

	// CreateSampler creates a texture sampler.
	CreateSampler(desc SamplerDescriptor) (*Sampler, error)

	// CreateBuffer allocates a GPU buffer of desc.Size bytes.
	CreateBuffer(desc BufferDescriptor) (*Buffer, error)

	// WriteBuffer uploads data immediately, outside any command buffer. Used for static data
	// such as mesh vertices; per-frame data goes through CommandBuffer.WriteBuffer instead.
	WriteBuffer(buf *Buffer, offset uint64, data []byte) error

	// CreateRenderPass describes the attachments a framebuffer must provide.
	CreateRenderPass(desc RenderPassDescriptor) (*RenderPass, error)

	// CreateFramebuffer binds images to the attachments of pass. Attachment order follows the
	// pass's color formats, then the depth format if any.
	CreateFramebuffer(pass *RenderPass, attachments []*Image) (*Framebuffer, error)

	// CreatePipeline compiles a graphics pipeline compatible with desc.Pass.
	CreatePipeline(desc PipelineDescriptor) (*Pipeline, error)

	// CreateDescriptorSet binds buffers and textures to one group of a pipeline's layout.
	CreateDescriptorSet(desc DescriptorSetDescriptor) (*DescriptorSet, error)

	// CreateSemaphore creates a GPU-GPU synchronization primitive.
	CreateSemaphore(label string) *Semaphore

	// SwapchainImages returns one image per frame in flight. The slice is replaced by RecreateSwapchain.
	SwapchainImages() []*Image

	// Extent returns the current swapchain size in pixels.
	Extent() (width, height int)

	// AcquireNextImage obtains the index of the next swapchain image and arranges for signal to
	// be signaled once the image is ready. Returns ErrNeedsRefresh when the swapchain is stale.
	AcquireNextImage(signal *Semaphore) (int, error)

	// Present queues swapchain image index for display once wait is signaled.
	Present(index int, wait *Semaphore) error

	// RecreateSwapchain rebuilds the swapchain at the given size. Callers must WaitIdle first.
	RecreateSwapchain(width, height int) error

	// WaitIdle blocks until every queued submission has completed.
	WaitIdle() error

	// Release destroys the device. The backend is unusable afterwards.
	Release()
}
