package frame

import "time"

// SchedulerBuilderOption is a functional option for configuring a Scheduler.
type SchedulerBuilderOption func(*Scheduler)

// WithFenceTimeout bounds the wait on a frame slot's fence. Zero waits forever.
//
// Parameters:
//   - d: the timeout
//
// Returns:
//   - SchedulerBuilderOption: option function to apply
func WithFenceTimeout(d time.Duration) SchedulerBuilderOption {
	return func(s *Scheduler) {
		s.fenceTimeout = d
	}
}

// WithRefresh sets the callback that rebuilds the graph after a swapchain recreation.
// Without one the graph is kept, which only suits graphs whose images do not depend on the
// swapchain size.
//
// Parameters:
//   - fn: the rebuild callback
//
// Returns:
//   - SchedulerBuilderOption: option function to apply
func WithRefresh(fn RefreshFunc) SchedulerBuilderOption {
	return func(s *Scheduler) {
		s.refresh = fn
	}
}
