package renderer

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithKernelsCount sets the number of recording workers, and so the number of command pools.
// When not specified the CPU count is used.
//
// Parameters:
//   - n: the kernel count
//
// Returns:
//   - RendererBuilderOption: a function that applies the kernel count to a renderer
func WithKernelsCount(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.kernels = n
	}
}

// WithBufferArena sets the byte capacity of the buffer manager. Allocations beyond it fail
// with ErrOutOfMemory.
//
// Parameters:
//   - bytes: the arena size
//
// Returns:
//   - RendererBuilderOption: a function that applies the arena size to a renderer
func WithBufferArena(bytes uint64) RendererBuilderOption {
	return func(r *renderer) {
		r.arenaBytes = bytes
	}
}
