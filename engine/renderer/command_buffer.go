package renderer

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-graph/common"
)

// CommandBufferLevel distinguishes buffers submitted to the queue from buffers executed by other buffers.
type CommandBufferLevel int

const (
	// LevelPrimary buffers are submitted directly and may execute secondaries.
	LevelPrimary CommandBufferLevel = iota
	// LevelSecondary buffers are recorded by workers and executed inside a primary's render pass.
	LevelSecondary
)

// Command is one recorded operation. Backends replay the concrete Cmd* types in order.
type Command interface {
	command()
}

// CmdBeginRenderPass opens a render pass on a framebuffer.
type CmdBeginRenderPass struct {
	Framebuffer *Framebuffer
}

// CmdEndRenderPass closes the current render pass.
type CmdEndRenderPass struct{}

// CmdBindPipeline selects the pipeline for subsequent draws.
type CmdBindPipeline struct {
	Pipeline *Pipeline
}

// CmdBindDescriptorSet binds a descriptor set at its group with optional dynamic offsets.
type CmdBindDescriptorSet struct {
	Set     *DescriptorSet
	Offsets []uint32
}

// CmdDraw draws non-indexed vertices.
type CmdDraw struct {
	Vertices  uint32
	Instances uint32
}

// CmdDrawMesh binds a mesh's vertex and index buffers and draws it.
type CmdDrawMesh struct {
	Mesh      *Mesh
	Instances uint32
}

// CmdExecuteCommands executes secondary buffers in place.
type CmdExecuteCommands struct {
	Buffers []*CommandBuffer
}

// CmdWriteBuffer copies Data into Buffer at Offset before any later command in the submission reads it.
type CmdWriteBuffer struct {
	Buffer *Buffer
	Offset uint64
	Data   []byte
}

func (CmdBeginRenderPass) command()   {}
func (CmdEndRenderPass) command()     {}
func (CmdBindPipeline) command()      {}
func (CmdBindDescriptorSet) command() {}
func (CmdDraw) command()              {}
func (CmdDrawMesh) command()          {}
func (CmdExecuteCommands) command()   {}
func (CmdWriteBuffer) command()       {}

// CommandBuffer records commands for later submission. A buffer is owned by exactly one
// goroutine while recording; the pending count is the only state touched by the GPU side.
type CommandBuffer struct {
	ID    uint64
	Label string
	Level CommandBufferLevel

	recording bool
	inPass    bool
	commands  []Command
	pending   atomic.Int32
}

// NewCommandBuffer creates an empty command buffer. Most callers allocate through a CommandPool.
func NewCommandBuffer(level CommandBufferLevel, label string) *CommandBuffer {
	return &CommandBuffer{ID: common.NextID(), Label: label, Level: level}
}

// Begin resets the buffer and starts recording.
// Returns ErrCommandBufferInFlight if a submission that references this buffer has not completed.
func (c *CommandBuffer) Begin() error {
	if c.pending.Load() > 0 {
		return ErrCommandBufferInFlight
	}
	c.commands = c.commands[:0]
	c.recording = true
	c.inPass = false
	return nil
}

// End finishes recording.
func (c *CommandBuffer) End() {
	c.mustRecord("End")
	if c.inPass {
		common.Fatalf("renderer: command buffer %q ended inside a render pass", c.Label)
	}
	c.recording = false
}

// Recording reports whether Begin has been called without a matching End.
func (c *CommandBuffer) Recording() bool {
	return c.recording
}

// BeginRenderPass opens a render pass on fb. Only primary buffers open passes.
func (c *CommandBuffer) BeginRenderPass(fb *Framebuffer) {
	c.mustRecord("BeginRenderPass")
	if c.Level != LevelPrimary {
		common.Fatalf("renderer: secondary command buffer %q cannot begin a render pass", c.Label)
	}
	if c.inPass {
		common.Fatalf("renderer: command buffer %q already inside a render pass", c.Label)
	}
	c.inPass = true
	c.commands = append(c.commands, CmdBeginRenderPass{Framebuffer: fb})
}

// EndRenderPass closes the current render pass.
func (c *CommandBuffer) EndRenderPass() {
	c.mustRecord("EndRenderPass")
	if !c.inPass {
		common.Fatalf("renderer: command buffer %q has no render pass to end", c.Label)
	}
	c.inPass = false
	c.commands = append(c.commands, CmdEndRenderPass{})
}

func (c *CommandBuffer) BindPipeline(p *Pipeline) {
	c.mustRecord("BindPipeline")
	c.commands = append(c.commands, CmdBindPipeline{Pipeline: p})
}

func (c *CommandBuffer) BindDescriptorSet(set *DescriptorSet, offsets ...uint32) {
	c.mustRecord("BindDescriptorSet")
	c.commands = append(c.commands, CmdBindDescriptorSet{Set: set, Offsets: offsets})
}

func (c *CommandBuffer) Draw(vertices, instances uint32) {
	c.mustRecord("Draw")
	c.commands = append(c.commands, CmdDraw{Vertices: vertices, Instances: instances})
}

func (c *CommandBuffer) DrawMesh(m *Mesh, instances uint32) {
	c.mustRecord("DrawMesh")
	c.commands = append(c.commands, CmdDrawMesh{Mesh: m, Instances: instances})
}

// ExecuteCommands executes secondaries inside the current render pass.
func (c *CommandBuffer) ExecuteCommands(secondaries ...*CommandBuffer) {
	c.mustRecord("ExecuteCommands")
	if c.Level != LevelPrimary {
		common.Fatalf("renderer: secondary command buffer %q cannot execute other buffers", c.Label)
	}
	for _, s := range secondaries {
		if s.Level != LevelSecondary {
			common.Fatalf("renderer: %q is not a secondary command buffer", s.Label)
		}
		if s.recording {
			common.Fatalf("renderer: secondary command buffer %q is still recording", s.Label)
		}
	}
	c.commands = append(c.commands, CmdExecuteCommands{Buffers: append([]*CommandBuffer(nil), secondaries...)})
}

// WriteBuffer records a buffer upload. data is copied.
func (c *CommandBuffer) WriteBuffer(buf *Buffer, offset uint64, data []byte) {
	c.mustRecord("WriteBuffer")
	if c.inPass {
		common.Fatalf("renderer: command buffer %q cannot write buffers inside a render pass", c.Label)
	}
	if offset+uint64(len(data)) > buf.Size {
		common.Fatalf("renderer: write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, buf.Label, buf.Size)
	}
	c.commands = append(c.commands, CmdWriteBuffer{Buffer: buf, Offset: offset, Data: append([]byte(nil), data...)})
}

// Commands returns the recorded commands. The slice is reused by the next Begin.
func (c *CommandBuffer) Commands() []Command {
	return c.commands
}

// InFlight reports whether a submission referencing this buffer has not completed yet.
func (c *CommandBuffer) InFlight() bool {
	return c.pending.Load() > 0
}

// MarkSubmitted records that c, and every secondary it executes, is referenced by a queued
// submission. Backends call it from Submit.
func (c *CommandBuffer) MarkSubmitted() {
	c.pending.Add(1)
	for _, cmd := range c.commands {
		if exec, ok := cmd.(CmdExecuteCommands); ok {
			for _, s := range exec.Buffers {
				s.MarkSubmitted()
			}
		}
	}
}

// MarkCompleted undoes one MarkSubmitted. Backends call it when the submission has executed.
// Secondaries are released before c so c's command list is never reset under the walk.
func (c *CommandBuffer) MarkCompleted() {
	for _, cmd := range c.commands {
		if exec, ok := cmd.(CmdExecuteCommands); ok {
			for _, s := range exec.Buffers {
				s.MarkCompleted()
			}
		}
	}
	if c.pending.Add(-1) < 0 {
		common.Fatalf("renderer: command buffer %q completed more often than submitted", c.Label)
	}
}

func (c *CommandBuffer) mustRecord(op string) {
	if !c.recording {
		common.Fatalf("renderer: %s on command buffer %q outside Begin/End", op, c.Label)
	}
}

// CommandPool allocates command buffers for one recording worker.
type CommandPool struct {
	mu      sync.Mutex
	kernel  int
	buffers []*CommandBuffer
}

// NewCommandPool creates the pool for worker kernel.
func NewCommandPool(kernel int) *CommandPool {
	return &CommandPool{kernel: kernel}
}

// Kernel returns the worker index the pool belongs to.
func (p *CommandPool) Kernel() int {
	return p.kernel
}

// Allocate creates a command buffer owned by the pool.
func (p *CommandPool) Allocate(level CommandBufferLevel, label string) *CommandBuffer {
	cb := NewCommandBuffer(level, label)
	p.mu.Lock()
	p.buffers = append(p.buffers, cb)
	p.mu.Unlock()
	return cb
}

// Free drops buffers from the pool.
func (p *CommandPool) Free(buffers ...*CommandBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range buffers {
		for i, owned := range p.buffers {
			if owned == b {
				p.buffers = append(p.buffers[:i], p.buffers[i+1:]...)
				break
			}
		}
	}
}

// Len returns the number of live buffers allocated from the pool.
func (p *CommandPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffers)
}
