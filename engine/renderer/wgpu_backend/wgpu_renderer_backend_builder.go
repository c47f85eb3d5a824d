package wgpu_backend

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUBackendOption is a functional option for configuring a wgpuBackend.
// Use the With* functions to create options.
type WGPUBackendOption func(*wgpuBackend)

// WithFallbackAdapter forces the software fallback adapter.
//
// Parameters:
//   - fallback: whether to request the fallback adapter
//
// Returns:
//   - WGPUBackendOption: option function to apply
func WithFallbackAdapter(fallback bool) WGPUBackendOption {
	return func(b *wgpuBackend) {
		b.fallback = fallback
	}
}

// WithPresentMode sets the surface present mode. VSync maps to FIFO and Uncapped to Immediate.
//
// Parameters:
//   - mode: the present mode
//
// Returns:
//   - WGPUBackendOption: option function to apply
func WithPresentMode(mode renderer.PresentMode) WGPUBackendOption {
	return func(b *wgpuBackend) {
		b.presentMode = presentMode(mode)
	}
}

// WithFrames sets the number of swapchain images, and so the number of frames in flight.
//
// Parameters:
//   - n: swapchain image count
//
// Returns:
//   - WGPUBackendOption: option function to apply
func WithFrames(n int) WGPUBackendOption {
	return func(b *wgpuBackend) {
		if n > 0 {
			b.frames = n
		}
	}
}

func presentMode(mode renderer.PresentMode) wgpu.PresentMode {
	switch mode {
	case renderer.PresentModeVSync:
		return wgpu.PresentModeFifo
	case renderer.PresentModeUncapped:
		fallthrough
	default:
		return wgpu.PresentModeImmediate
	}
}
