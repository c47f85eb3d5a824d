package renderer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
)

var errReleased = errors.New("renderer: backend released")

// SubmissionRecord is the headless backend's log entry for one Submit call.
type SubmissionRecord struct {
	Epoch    uint64
	Waits    []*Semaphore
	Commands []*CommandBuffer
	Signals  []*Semaphore
	Fenced   bool
}

// headlessWork is one submission queued on the simulated GPU.
type headlessWork struct {
	commands []*CommandBuffer
	fence    *Fence
}

// headlessPipeline is the native payload of a headless pipeline.
type headlessPipeline struct {
	program shader.Shader
}

// HeadlessBackend is a Backend without a GPU. Submissions execute asynchronously on a
// goroutine after a configurable latency, buffer writes land in memory, and semaphore use is
// validated per acquired frame. It backs tests and the -headless CLI mode.
type HeadlessBackend struct {
	mu       sync.Mutex
	submitMu sync.Mutex

	width, height int
	frames        int
	latency       time.Duration

	images   []*Image
	next     int
	epoch    uint64
	signaled map[uint64]uint64
	refresh  bool
	released bool

	memory      map[uint64][]byte
	submissions []SubmissionRecord
	presents    []int

	queue    chan headlessWork
	inflight sync.WaitGroup
	draws    atomic.Int64
}

var _ Backend = &HeadlessBackend{}

// NewHeadlessBackend creates a headless backend and starts its queue goroutine.
//
// Parameters:
//   - options: variadic list of HeadlessBackendOption functions
//
// Returns:
//   - *HeadlessBackend: the backend
func NewHeadlessBackend(options ...HeadlessBackendOption) *HeadlessBackend {
	b := &HeadlessBackend{
		width:    1280,
		height:   720,
		frames:   3,
		signaled: make(map[uint64]uint64),
		memory:   make(map[uint64][]byte),
		queue:    make(chan headlessWork, 64),
	}
	for _, opt := range options {
		opt(b)
	}
	b.images = b.createSwapchain()
	go b.run()
	return b
}

func (b *HeadlessBackend) run() {
	for work := range b.queue {
		if b.latency > 0 {
			time.Sleep(b.latency)
		}
		for _, cmd := range work.commands {
			b.execute(cmd)
		}
		for _, cmd := range work.commands {
			cmd.MarkCompleted()
		}
		if work.fence != nil {
			work.fence.Signal()
		}
		b.inflight.Done()
	}
}

func (b *HeadlessBackend) execute(cmd *CommandBuffer) {
	for _, c := range cmd.Commands() {
		switch c := c.(type) {
		case CmdWriteBuffer:
			b.mu.Lock()
			copy(b.memory[c.Buffer.ID][c.Offset:], c.Data)
			b.mu.Unlock()
		case CmdDraw, CmdDrawMesh:
			b.draws.Add(1)
		case CmdExecuteCommands:
			for _, s := range c.Buffers {
				b.execute(s)
			}
		}
	}
}

func (b *HeadlessBackend) createSwapchain() []*Image {
	images := make([]*Image, b.frames)
	for i := range images {
		images[i] = NewImage(ImageDescriptor{
			Label:  fmt.Sprintf("swapchain %d", i),
			Width:  uint32(b.width),
			Height: uint32(b.height),
			Format: FormatSurface,
			Usage:  ImageUsageAttachment | ImageUsagePresent,
		}, nil)
	}
	return images
}

func (b *HeadlessBackend) Type() RendererBackendType {
	return BackendTypeHeadless
}

func (b *HeadlessBackend) CreateImage(desc ImageDescriptor) (*Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("renderer: image %q has zero extent", desc.Label)
	}
	if desc.Format == FormatUndefined {
		return nil, fmt.Errorf("renderer: image %q has no format", desc.Label)
	}
	return NewImage(desc, nil), nil
}

func (b *HeadlessBackend) CreateSampler(desc SamplerDescriptor) (*Sampler, error) {
	return NewSampler(desc, nil), nil
}

func (b *HeadlessBackend) CreateBuffer(desc BufferDescriptor) (*Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("renderer: buffer %q has zero size", desc.Label)
	}
	buf := NewBuffer(desc, nil)
	b.mu.Lock()
	b.memory[buf.ID] = make([]byte, desc.Size)
	b.mu.Unlock()
	return buf, nil
}

func (b *HeadlessBackend) WriteBuffer(buf *Buffer, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	mem, ok := b.memory[buf.ID]
	if !ok {
		return fmt.Errorf("renderer: unknown buffer %q", buf.Label)
	}
	if offset+uint64(len(data)) > uint64(len(mem)) {
		return fmt.Errorf("renderer: write of %d bytes at %d overflows buffer %q", len(data), offset, buf.Label)
	}
	copy(mem[offset:], data)
	return nil
}

func (b *HeadlessBackend) CreateRenderPass(desc RenderPassDescriptor) (*RenderPass, error) {
	if len(desc.Colors) == 0 && desc.Depth == FormatUndefined {
		return nil, fmt.Errorf("renderer: render pass %q has no attachments", desc.Label)
	}
	if desc.Depth != FormatUndefined && !desc.Depth.IsDepth() {
		return nil, fmt.Errorf("renderer: render pass %q depth attachment is %s", desc.Label, desc.Depth)
	}
	return NewRenderPass(desc, nil), nil
}

func (b *HeadlessBackend) CreateFramebuffer(pass *RenderPass, attachments []*Image) (*Framebuffer, error) {
	want := append([]Format(nil), pass.Desc.Colors...)
	if pass.Desc.Depth != FormatUndefined {
		want = append(want, pass.Desc.Depth)
	}
	if len(attachments) != len(want) {
		return nil, fmt.Errorf("renderer: render pass %q needs %d attachments, got %d", pass.Desc.Label, len(want), len(attachments))
	}
	for i, img := range attachments {
		if img.Format != want[i] {
			return nil, fmt.Errorf("renderer: attachment %d of %q is %s, want %s", i, pass.Desc.Label, img.Format, want[i])
		}
		if img.Width != attachments[0].Width || img.Height != attachments[0].Height {
			return nil, fmt.Errorf("renderer: attachments of %q differ in size", pass.Desc.Label)
		}
	}
	return NewFramebuffer(pass, attachments, nil), nil
}

func (b *HeadlessBackend) CreatePipeline(desc PipelineDescriptor) (*Pipeline, error) {
	if desc.Pass == nil {
		return nil, fmt.Errorf("renderer: pipeline %q has no render pass", desc.Label)
	}
	program, err := shader.NewShader(desc.Label, desc.Source, desc.Constants)
	if err != nil {
		return nil, err
	}
	if len(desc.Pass.Desc.Colors) > 0 && program.FragmentEntry() == "" {
		return nil, fmt.Errorf("renderer: pipeline %q writes color but has no fragment entry", desc.Label)
	}
	return NewPipeline(desc, &headlessPipeline{program: program}), nil
}

func (b *HeadlessBackend) CreateDescriptorSet(desc DescriptorSetDescriptor) (*DescriptorSet, error) {
	p, ok := desc.Pipeline.Native().(*headlessPipeline)
	if !ok {
		return nil, fmt.Errorf("renderer: descriptor set %q targets a foreign pipeline", desc.Label)
	}
	if err := ValidateDescriptorSet(p.program.Bindings(desc.Group), desc); err != nil {
		return nil, err
	}
	return NewDescriptorSet(desc, nil), nil
}

// ValidateDescriptorSet checks desc against the reflected bindings of its group. Buffers and
// textures are consumed in binding order; a sampler binding takes the sampler of the texture
// bound just before it.
func ValidateDescriptorSet(bindings []shader.Binding, desc DescriptorSetDescriptor) error {
	nextBuffer, nextTexture := 0, 0
	var last *Texture
	for _, bd := range bindings {
		switch {
		case bd.Kind == shader.BindingUniform:
			if nextBuffer >= len(desc.Buffers) {
				return fmt.Errorf("renderer: descriptor set %q missing buffer for %s", desc.Label, bd.Name)
			}
			if r := desc.Buffers[nextBuffer]; bd.Size > 0 && r.Size < bd.Size {
				return fmt.Errorf("renderer: descriptor set %q binds %d bytes to %s, shader needs %d", desc.Label, r.Size, bd.Name, bd.Size)
			}
			nextBuffer++
		case bd.Kind.IsTexture():
			if nextTexture >= len(desc.Textures) {
				return fmt.Errorf("renderer: descriptor set %q missing texture for %s", desc.Label, bd.Name)
			}
			last = desc.Textures[nextTexture]
			if !textureMatches(bd.Kind, last.Image.Format) {
				return fmt.Errorf("renderer: descriptor set %q binds %s image to %s %s", desc.Label, last.Image.Format, bd.Kind, bd.Name)
			}
			nextTexture++
		case bd.Kind.IsSampler():
			if last == nil || last.Sampler == nil {
				return fmt.Errorf("renderer: descriptor set %q has no sampler for %s", desc.Label, bd.Name)
			}
		}
	}
	if nextBuffer != len(desc.Buffers) || nextTexture != len(desc.Textures) {
		return fmt.Errorf("renderer: descriptor set %q binds %d buffers and %d textures, group %d declares %d and %d",
			desc.Label, len(desc.Buffers), len(desc.Textures), desc.Group, nextBuffer, nextTexture)
	}
	return nil
}

func textureMatches(kind shader.BindingKind, f Format) bool {
	switch kind {
	case shader.BindingDepthTexture:
		return f.IsDepth()
	case shader.BindingUintTexture:
		return f == FormatR8Uint
	default:
		return !f.IsDepth() && f != FormatR8Uint
	}
}

func (b *HeadlessBackend) CreateSemaphore(label string) *Semaphore {
	return NewSemaphore(label)
}

func (b *HeadlessBackend) SwapchainImages() []*Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.images
}

func (b *HeadlessBackend) Extent() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

func (b *HeadlessBackend) AcquireNextImage(signal *Semaphore) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return 0, errReleased
	}
	if b.refresh {
		return 0, ErrNeedsRefresh
	}
	b.epoch++
	b.signaled[signal.ID] = b.epoch
	index := b.next
	b.next = (b.next + 1) % b.frames
	return index, nil
}

func (b *HeadlessBackend) Submit(info SubmitInfo) error {
	b.submitMu.Lock()
	defer b.submitMu.Unlock()

	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return errReleased
	}
	for _, w := range info.Waits {
		if !b.signaledNow(w) {
			b.mu.Unlock()
			return fmt.Errorf("submit waits on %q: %w", w.Label, ErrUnsignaledSemaphore)
		}
	}
	for _, cmd := range info.Commands {
		if cmd.Recording() {
			b.mu.Unlock()
			return fmt.Errorf("renderer: command buffer %q submitted while recording", cmd.Label)
		}
		if cmd.Level != LevelPrimary {
			b.mu.Unlock()
			return fmt.Errorf("renderer: secondary command buffer %q submitted directly", cmd.Label)
		}
	}
	for _, s := range info.Signals {
		b.signaled[s.ID] = b.epoch
	}
	b.submissions = append(b.submissions, SubmissionRecord{
		Epoch:    b.epoch,
		Waits:    append([]*Semaphore(nil), info.Waits...),
		Commands: append([]*CommandBuffer(nil), info.Commands...),
		Signals:  append([]*Semaphore(nil), info.Signals...),
		Fenced:   info.Fence != nil,
	})
	b.mu.Unlock()

	for _, cmd := range info.Commands {
		cmd.MarkSubmitted()
	}
	b.inflight.Add(1)
	b.queue <- headlessWork{commands: append([]*CommandBuffer(nil), info.Commands...), fence: info.Fence}
	return nil
}

// signaledNow reports whether s was signaled since the last acquisition. Callers hold b.mu.
func (b *HeadlessBackend) signaledNow(s *Semaphore) bool {
	e, ok := b.signaled[s.ID]
	return ok && e == b.epoch
}

func (b *HeadlessBackend) Present(index int, wait *Semaphore) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return errReleased
	}
	if index < 0 || index >= len(b.images) {
		return fmt.Errorf("renderer: present of swapchain image %d out of %d", index, len(b.images))
	}
	if !b.signaledNow(wait) {
		return fmt.Errorf("present waits on %q: %w", wait.Label, ErrUnsignaledSemaphore)
	}
	b.presents = append(b.presents, index)
	return nil
}

func (b *HeadlessBackend) RecreateSwapchain(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("renderer: invalid swapchain size %dx%d", width, height)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = width, height
	b.images = b.createSwapchain()
	b.next = 0
	b.refresh = false
	return nil
}

func (b *HeadlessBackend) WaitIdle() error {
	b.inflight.Wait()
	return nil
}

func (b *HeadlessBackend) Release() {
	b.submitMu.Lock()
	defer b.submitMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	close(b.queue)
}

// RequestRefresh makes every acquisition fail with ErrNeedsRefresh until RecreateSwapchain,
// as a window resize does on a real surface.
func (b *HeadlessBackend) RequestRefresh() {
	b.mu.Lock()
	b.refresh = true
	b.mu.Unlock()
}

// Submissions returns a copy of the submission log.
func (b *HeadlessBackend) Submissions() []SubmissionRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]SubmissionRecord(nil), b.submissions...)
}

// Presents returns the swapchain indices presented so far.
func (b *HeadlessBackend) Presents() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.presents...)
}

// Draws returns the number of draw commands executed so far.
func (b *HeadlessBackend) Draws() int64 {
	return b.draws.Load()
}

// BufferContents returns a copy of buf's memory as of the last executed write.
func (b *HeadlessBackend) BufferContents(buf *Buffer) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.memory[buf.ID]...)
}
