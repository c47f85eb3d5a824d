package renderer

import (
	"sync"
	"time"
)

// fencePollInterval is how often Wait drives a fence poller.
const fencePollInterval = 250 * time.Microsecond

// Fence is a CPU-observable completion signal. The backend signals it when the submission it
// was attached to has finished executing.
type Fence struct {
	mu       sync.Mutex
	done     chan struct{}
	signaled bool
	poll     func()
}

// NewFence creates a fence, optionally already signaled. Frame fences start signaled so the
// first wait on a fresh frame slot returns immediately.
func NewFence(signaled bool) *Fence {
	f := &Fence{done: make(chan struct{})}
	if signaled {
		f.signaled = true
		close(f.done)
	}
	return f
}

// Signal marks the fence complete and wakes every waiter. Signaling twice is a no-op.
func (f *Fence) Signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaled {
		return
	}
	f.signaled = true
	close(f.done)
}

// Signaled reports the fence state without blocking.
func (f *Fence) Signaled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}

// SetPoller installs a hook Wait calls while the fence is unsignaled. Backends whose
// completion callbacks only fire when the device is polled use it to make progress.
func (f *Fence) SetPoller(poll func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poll = poll
}

// Reset returns a signaled fence to the unsignaled state.
func (f *Fence) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signaled {
		return
	}
	f.signaled = false
	f.done = make(chan struct{})
}

// Wait blocks until the fence is signaled.
//
// Parameters:
//   - timeout: the longest wait; zero or negative waits forever
//
// Returns:
//   - error: ErrFenceTimeout if the timeout elapsed first
func (f *Fence) Wait(timeout time.Duration) error {
	f.mu.Lock()
	done, poll := f.done, f.poll
	f.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	if poll == nil {
		select {
		case <-done:
			return nil
		case <-expired:
			return ErrFenceTimeout
		}
	}

	ticker := time.NewTicker(fencePollInterval)
	defer ticker.Stop()
	for {
		poll()
		select {
		case <-done:
			return nil
		case <-expired:
			return ErrFenceTimeout
		case <-ticker.C:
		}
	}
}
