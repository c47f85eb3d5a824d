package renderer

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
)

// UniformAlignment is the offset alignment required for dynamic uniform bindings.
const UniformAlignment = 256

// UpdateStage selects when staged writes to a DynamicBuffer reach the GPU.
type UpdateStage int

const (
	// StagePrimary writes are flushed by the scheduler's first (copy/clear) submission.
	StagePrimary UpdateStage = iota
	// StageSecondary writes are flushed by the scheduler's second (upload) submission, after
	// every node has prepared its uniforms for the frame.
	StageSecondary
	// StageManual writes are flushed by the owner, typically into its own primary buffer.
	StageManual
)

// DynamicBuffer is one GPU buffer holding a region per frame in flight. Writes for a frame
// are staged on the CPU and recorded into a command buffer when flushed, so a region is never
// overwritten while an earlier frame that reads it may still be executing.
type DynamicBuffer struct {
	mu     sync.Mutex
	buffer *Buffer
	size   uint64
	stride uint64
	stage  UpdateStage
	staged [][]byte
}

// Buffer returns the underlying GPU buffer.
func (d *DynamicBuffer) Buffer() *Buffer { return d.buffer }

// Size returns the usable bytes per frame.
func (d *DynamicBuffer) Size() uint64 { return d.size }

// Stride returns the aligned distance between two frame regions.
func (d *DynamicBuffer) Stride() uint64 { return d.stride }

// Stage returns the flush stage the buffer was created for.
func (d *DynamicBuffer) Stage() UpdateStage { return d.stage }

// Frames returns the number of frame regions.
func (d *DynamicBuffer) Frames() int { return len(d.staged) }

// Offset returns the byte offset of frame's region.
func (d *DynamicBuffer) Offset(frame int) uint64 {
	return uint64(frame) * d.stride
}

// Range returns frame's region as a binding range.
func (d *DynamicBuffer) Range(frame int) BufferRange {
	return BufferRange{Buffer: d.buffer, Offset: d.Offset(frame), Size: d.size}
}

// Update stages data for frame's region, replacing anything staged before. data is copied.
func (d *DynamicBuffer) Update(frame int, data []byte) {
	if uint64(len(data)) > d.size {
		common.Fatalf("renderer: update of %d bytes overflows dynamic buffer %q (%d bytes per frame)", len(data), d.buffer.Label, d.size)
	}
	d.mu.Lock()
	d.staged[frame] = append(d.staged[frame][:0], data...)
	d.mu.Unlock()
}

// Dirty reports whether frame has staged data waiting for a flush.
func (d *DynamicBuffer) Dirty(frame int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.staged[frame]) > 0
}

// Flush records frame's staged data into cmd and clears it.
//
// Returns:
//   - bool: whether anything was written
func (d *DynamicBuffer) Flush(frame int, cmd *CommandBuffer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	data := d.staged[frame]
	if len(data) == 0 {
		return false
	}
	cmd.WriteBuffer(d.buffer, d.Offset(frame), data)
	d.staged[frame] = data[:0]
	return true
}

// BufferManager allocates GPU buffers against a fixed byte arena and tracks the dynamic
// buffers the scheduler flushes each frame. It is safe for concurrent use: recording workers
// may allocate while other workers read.
type BufferManager struct {
	mu       sync.RWMutex
	backend  Backend
	frames   int
	capacity uint64
	used     uint64
	dynamic  []*DynamicBuffer
}

// NewBufferManager creates a manager that sizes dynamic buffers for frames frames in flight.
//
// Parameters:
//   - backend: the backend that creates the buffers
//   - frames: the number of frames in flight
//   - capacity: the arena size in bytes
//
// Returns:
//   - *BufferManager: the manager
func NewBufferManager(backend Backend, frames int, capacity uint64) *BufferManager {
	return &BufferManager{backend: backend, frames: frames, capacity: capacity}
}

// Used returns the bytes allocated from the arena.
func (m *BufferManager) Used() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

// Capacity returns the arena size in bytes.
func (m *BufferManager) Capacity() uint64 {
	return m.capacity
}

func (m *BufferManager) reserve(label string, size uint64) error {
	if m.used+size > m.capacity {
		return fmt.Errorf("failed to allocate %d bytes for %q (%d of %d used): %w", size, label, m.used, m.capacity, ErrOutOfMemory)
	}
	m.used += size
	return nil
}

// CreateStatic allocates a buffer and uploads data immediately. Used for mesh data.
//
// Parameters:
//   - label: debug label
//   - usage: the buffer usage; BufferUsageCopyDst is added
//   - data: the initial contents
//
// Returns:
//   - *Buffer: the buffer
//   - error: ErrOutOfMemory when the arena is exhausted, or a backend error
func (m *BufferManager) CreateStatic(label string, usage BufferUsage, data []byte) (*Buffer, error) {
	size := common.AlignUp(uint64(len(data)), 4)
	m.mu.Lock()
	if err := m.reserve(label, size); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	buf, err := m.backend.CreateBuffer(BufferDescriptor{Label: label, Size: size, Usage: usage | BufferUsageCopyDst})
	if err != nil {
		m.unreserve(size)
		return nil, fmt.Errorf("failed to create buffer %q: %w", label, err)
	}
	if err := m.backend.WriteBuffer(buf, 0, data); err != nil {
		return nil, fmt.Errorf("failed to upload buffer %q: %w", label, err)
	}
	return buf, nil
}

// CreateDynamic allocates a uniform buffer with one aligned region of size bytes per frame in flight.
//
// Parameters:
//   - label: debug label
//   - size: the usable bytes per frame
//   - stage: when staged writes are flushed
//
// Returns:
//   - *DynamicBuffer: the buffer
//   - error: ErrOutOfMemory when the arena is exhausted, or a backend error
func (m *BufferManager) CreateDynamic(label string, size uint64, stage UpdateStage) (*DynamicBuffer, error) {
	stride := common.AlignUp(size, UniformAlignment)
	total := stride * uint64(m.frames)

	m.mu.Lock()
	if err := m.reserve(label, total); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	buf, err := m.backend.CreateBuffer(BufferDescriptor{Label: label, Size: total, Usage: BufferUsageUniform | BufferUsageCopyDst})
	if err != nil {
		m.unreserve(total)
		return nil, fmt.Errorf("failed to create dynamic buffer %q: %w", label, err)
	}

	d := &DynamicBuffer{
		buffer: buf,
		size:   size,
		stride: stride,
		stage:  stage,
		staged: make([][]byte, m.frames),
	}
	m.mu.Lock()
	m.dynamic = append(m.dynamic, d)
	m.mu.Unlock()
	return d, nil
}

// Free returns a dynamic buffer's bytes to the arena and stops flushing it.
func (m *BufferManager) Free(d *DynamicBuffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.Index(m.dynamic, d)
	if i < 0 {
		return
	}
	m.dynamic = slices.Delete(m.dynamic, i, i+1)
	m.used -= d.buffer.Size
}

func (m *BufferManager) unreserve(size uint64) {
	m.mu.Lock()
	m.used -= size
	m.mu.Unlock()
}

// Flush records every staged write for frame in buffers of the given stage into cmd.
// StageManual buffers are never flushed here.
//
// Returns:
//   - int: the number of buffers written
func (m *BufferManager) Flush(frame int, stage UpdateStage, cmd *CommandBuffer) int {
	if stage == StageManual {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, d := range m.dynamic {
		if d.stage == stage && d.Flush(frame, cmd) {
			n++
		}
	}
	return n
}
