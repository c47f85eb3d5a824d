package renderer

import "time"

// HeadlessBackendOption is a functional option applied to a HeadlessBackend by NewHeadlessBackend.
type HeadlessBackendOption func(*HeadlessBackend)

// WithHeadlessExtent sets the simulated swapchain size.
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//
// Returns:
//   - HeadlessBackendOption: option function to apply
func WithHeadlessExtent(width, height int) HeadlessBackendOption {
	return func(b *HeadlessBackend) {
		b.width = width
		b.height = height
	}
}

// WithHeadlessFrames sets the number of swapchain images, and so the number of frames in flight.
func WithHeadlessFrames(n int) HeadlessBackendOption {
	return func(b *HeadlessBackend) {
		b.frames = n
	}
}

// WithHeadlessLatency delays the execution of every submission, so tests can observe work
// that is still in flight.
func WithHeadlessLatency(d time.Duration) HeadlessBackendOption {
	return func(b *HeadlessBackend) {
		b.latency = d
	}
}
