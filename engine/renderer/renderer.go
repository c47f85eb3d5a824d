package renderer

import (
	"fmt"
	"runtime"
	"sync"
)

// DefaultBufferArena is the buffer arena size used when none is configured.
const DefaultBufferArena uint64 = 256 << 20

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backend     Backend
	kernels     int
	arenaBytes  uint64
	buffers     *BufferManager
	pipelines   *PipelineManager
	descriptors *DescriptorManager
	samplers    *SamplerManager
	pools       []*CommandPool

	defaults map[Format]*Texture
}

// Renderer is the GPU context handed to graph nodes and the frame scheduler.
//
// It bundles the backend with the shared resource managers and the per-kernel command pools.
// Every manager is safe for concurrent use by recording workers; the backend itself is only
// driven from the scheduler goroutine and from template construction.
type Renderer interface {
	// Backend returns the backend that owns every GPU object.
	//
	// Returns:
	//   - Backend: the backend
	Backend() Backend

	// FramesCount returns the number of frames in flight, one per swapchain image.
	//
	// Returns:
	//   - int: the frame count
	FramesCount() int

	// KernelsCount returns the number of recording workers.
	//
	// Returns:
	//   - int: the kernel count
	KernelsCount() int

	// Buffers returns the buffer manager.
	//
	// Returns:
	//   - *BufferManager: the buffer manager
	Buffers() *BufferManager

	// Pipelines returns the pipeline cache.
	//
	// Returns:
	//   - *PipelineManager: the pipeline cache
	Pipelines() *PipelineManager

	// Descriptors returns the descriptor set manager.
	//
	// Returns:
	//   - *DescriptorManager: the descriptor set manager
	Descriptors() *DescriptorManager

	// Samplers returns the sampler cache.
	//
	// Returns:
	//   - *SamplerManager: the sampler cache
	Samplers() *SamplerManager

	// KernelPool returns the command pool owned by one recording worker. Secondary command
	// buffers recorded by that worker are allocated from it.
	//
	// Parameters:
	//   - kernel: the worker index in [0, KernelsCount())
	//
	// Returns:
	//   - *CommandPool: the worker's pool
	KernelPool(kernel int) *CommandPool

	// Viewport returns the current swapchain size in pixels.
	//
	// Returns:
	//   - int: width
	//   - int: height
	Viewport() (width, height int)

	// DefaultTexture returns a 1x1 sampled placeholder of the given format, created on first
	// use. Optional node inputs that nothing provides are bound to it.
	//
	// Parameters:
	//   - format: the texel format
	//
	// Returns:
	//   - *Texture: the placeholder
	//   - error: a backend error
	DefaultTexture(format Format) (*Texture, error)
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer around an initialised backend.
//
// Parameters:
//   - backend: the GPU backend
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: if the backend reports no swapchain images
func NewRenderer(backend Backend, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:         &sync.Mutex{},
		backend:    backend,
		kernels:    runtime.NumCPU(),
		arenaBytes: DefaultBufferArena,
		defaults:   make(map[Format]*Texture),
	}
	for _, opt := range options {
		opt(r)
	}

	if r.FramesCount() == 0 {
		return nil, fmt.Errorf("renderer: backend %s has no swapchain images", backend.Type())
	}
	if r.kernels < 1 {
		r.kernels = 1
	}

	r.buffers = NewBufferManager(backend, r.FramesCount(), r.arenaBytes)
	r.pipelines = NewPipelineManager(backend)
	r.descriptors = NewDescriptorManager(backend)
	r.samplers = NewSamplerManager(backend)
	r.pools = make([]*CommandPool, r.kernels)
	for k := range r.kernels {
		r.pools[k] = NewCommandPool(k)
	}
	return r, nil
}

func (r *renderer) Backend() Backend {
	return r.backend
}

func (r *renderer) FramesCount() int {
	return len(r.backend.SwapchainImages())
}

func (r *renderer) KernelsCount() int {
	return r.kernels
}

func (r *renderer) Buffers() *BufferManager {
	return r.buffers
}

func (r *renderer) Pipelines() *PipelineManager {
	return r.pipelines
}

func (r *renderer) Descriptors() *DescriptorManager {
	return r.descriptors
}

func (r *renderer) Samplers() *SamplerManager {
	return r.samplers
}

func (r *renderer) KernelPool(kernel int) *CommandPool {
	return r.pools[kernel]
}

func (r *renderer) Viewport() (int, int) {
	return r.backend.Extent()
}

func (r *renderer) DefaultTexture(format Format) (*Texture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.defaults[format]; ok {
		return t, nil
	}
	img, err := r.backend.CreateImage(ImageDescriptor{
		Label:  "default " + format.String(),
		Width:  1,
		Height: 1,
		Format: format,
		Usage:  ImageUsageSampled | ImageUsageAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create default %s texture: %w", format, err)
	}
	t := &Texture{Image: img}
	r.defaults[format] = t
	return t, nil
}
