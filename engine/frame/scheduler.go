// Package frame drives a render graph against a multiply-buffered swapchain. Every frame
// slot owns its semaphores, command buffers and fence; a slot is recycled only after its
// fence proves the GPU has finished the previous frame recorded into it.
package frame

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

// ErrPresent wraps a failed presentation.
var ErrPresent = errors.New("frame: present failed")

// State is the lifecycle position of a frame slot.
type State int

const (
	StateIdle State = iota
	StateAcquired
	StateRecording
	StateSubmitted
	StatePresented
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquired:
		return "acquired"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	case StatePresented:
		return "presented"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RefreshFunc rebuilds the graph after the swapchain was recreated. The scheduler releases
// the previous graph once the new one is returned.
type RefreshFunc func(r renderer.Renderer) (*graph.Graph, error)

// Stats are the timings of the last completed Tick.
type Stats struct {
	Frame     uint64
	Slot      int
	Image     int
	FenceWait time.Duration
	Record    time.Duration
	Submit    time.Duration
}

// slot is the per-frame-in-flight resource set.
type slot struct {
	acquired   *renderer.Semaphore
	stageA     *renderer.Semaphore
	stageB     *renderer.Semaphore
	rendered   *renderer.Semaphore
	copyCmd    *renderer.CommandBuffer
	uploadCmd  *renderer.CommandBuffer
	presentCmd *renderer.CommandBuffer
	fence      *renderer.Fence
	state      State
}

// settle moves a presented slot back to idle once the GPU has finished its frame.
func (sl *slot) settle() {
	if sl.state == StatePresented && sl.fence.Signaled() {
		sl.state = StateIdle
	}
}

// Scheduler records and submits one frame per Tick.
type Scheduler struct {
	mu sync.Mutex

	r        renderer.Renderer
	graph    *graph.Graph
	recorder *graph.Recorder
	present  *presentPass
	slots    []*slot
	next     int
	frame    uint64

	fenceTimeout time.Duration
	refresh      RefreshFunc
	resize       [2]int
	stats        Stats
}

// NewScheduler creates a scheduler for g. The graph must have an output.
//
// Parameters:
//   - r: the renderer g was built for
//   - g: the graph to render
//   - options: variadic list of SchedulerBuilderOption functions
//
// Returns:
//   - *Scheduler: the scheduler
//   - error: ErrNoOutput, or a backend error
func NewScheduler(r renderer.Renderer, g *graph.Graph, options ...SchedulerBuilderOption) (*Scheduler, error) {
	s := &Scheduler{
		r:        r,
		graph:    g,
		recorder: graph.NewRecorder(r.KernelsCount()),
	}
	for _, opt := range options {
		opt(s)
	}
	if err := s.build(); err != nil {
		return nil, err
	}
	common.Logger().Debug("scheduler created", "frames", len(s.slots), "kernels", s.recorder.Kernels())
	return s, nil
}

// build creates the slots and the present pass for the current swapchain.
func (s *Scheduler) build() error {
	out, err := s.graph.OutputTexture()
	if err != nil {
		return err
	}
	if s.present, err = newPresentPass(s.r, out); err != nil {
		return err
	}
	backend := s.r.Backend()
	s.slots = make([]*slot, s.r.FramesCount())
	for i := range s.slots {
		s.slots[i] = &slot{
			acquired:   backend.CreateSemaphore(fmt.Sprintf("acquired %d", i)),
			stageA:     backend.CreateSemaphore(fmt.Sprintf("copy %d", i)),
			stageB:     backend.CreateSemaphore(fmt.Sprintf("upload %d", i)),
			rendered:   backend.CreateSemaphore(fmt.Sprintf("rendered %d", i)),
			copyCmd:    renderer.NewCommandBuffer(renderer.LevelPrimary, fmt.Sprintf("copy %d", i)),
			uploadCmd:  renderer.NewCommandBuffer(renderer.LevelPrimary, fmt.Sprintf("upload %d", i)),
			presentCmd: renderer.NewCommandBuffer(renderer.LevelPrimary, fmt.Sprintf("present %d", i)),
			fence:      renderer.NewFence(true),
		}
	}
	s.next = 0
	return nil
}

// Graph returns the graph currently rendered.
func (s *Scheduler) Graph() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

// Stats returns the timings of the last completed frame.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SlotState returns the lifecycle state of frame slot i.
func (s *Scheduler) SlotState(i int) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := s.slots[i]
	sl.settle()
	return sl.state
}

// Resize schedules a swapchain recreation at width x height before the next frame.
func (s *Scheduler) Resize(width, height int) {
	s.mu.Lock()
	s.resize = [2]int{width, height}
	s.mu.Unlock()
}

// Tick renders one frame of view.
//
// The slot's frame runs as a chain of submissions: the copy submission waits on image
// acquisition and signals A, the upload submission waits A and signals B, root nodes wait
// B, other nodes wait their providers, and the composition waits every sink node before it
// signals the slot fence and the semaphore presentation waits on.
//
// Parameters:
//   - view: the scene snapshot to render
//
// Returns:
//   - error: a wrapped renderer.ErrNeedsRefresh when the frame was dropped for a swapchain
//     recreation, ErrPresent, or a backend error
func (s *Scheduler) Tick(view scene.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resize != [2]int{} {
		size := s.resize
		s.resize = [2]int{}
		if err := s.recreate(size[0], size[1]); err != nil {
			return err
		}
		return fmt.Errorf("frame: resized to %dx%d: %w", size[0], size[1], renderer.ErrNeedsRefresh)
	}

	backend := s.r.Backend()
	idx := s.next
	sl := s.slots[idx]
	sl.settle()

	image, err := backend.AcquireNextImage(sl.acquired)
	if errors.Is(err, renderer.ErrNeedsRefresh) {
		w, h := backend.Extent()
		if rerr := s.recreate(w, h); rerr != nil {
			return rerr
		}
		return fmt.Errorf("frame: acquire: %w", err)
	}
	if err != nil {
		return fmt.Errorf("frame: acquire: %w", err)
	}
	sl.state = StateAcquired
	s.next = (s.next + 1) % len(s.slots)
	s.frame++
	stats := Stats{Frame: s.frame, Slot: idx, Image: image}

	start := time.Now()
	if err := sl.fence.Wait(s.fenceTimeout); err != nil {
		return fmt.Errorf("frame: slot %d: %w", idx, err)
	}
	sl.fence.Reset()
	stats.FenceWait = time.Since(start)

	if err := s.render(sl, idx, image, view, &stats); err != nil {
		return errors.Join(err, s.abandon(sl, image))
	}
	sl.state = StateSubmitted

	if err := backend.Present(image, sl.rendered); err != nil {
		sl.state = StateIdle
		if errors.Is(err, renderer.ErrNeedsRefresh) {
			w, h := backend.Extent()
			if rerr := s.recreate(w, h); rerr != nil {
				return rerr
			}
		}
		return fmt.Errorf("%w: image %d: %w", ErrPresent, image, err)
	}
	sl.state = StatePresented
	s.stats = stats
	return nil
}

// render records the graph and submits the whole chain up to the fenced composition.
func (s *Scheduler) render(sl *slot, idx, image int, view scene.View, stats *Stats) error {
	sl.state = StateRecording
	start := time.Now()
	order, err := s.graph.Order()
	if err != nil {
		return err
	}
	if err := s.graph.Prepare(idx, view); err != nil {
		return err
	}
	if err := s.recorder.Record(order, idx, view); err != nil {
		return err
	}
	stats.Record = time.Since(start)

	start = time.Now()
	if err := s.submitStage(sl.copyCmd, idx, renderer.StagePrimary, sl.acquired, sl.stageA); err != nil {
		return err
	}
	if err := s.submitStage(sl.uploadCmd, idx, renderer.StageSecondary, sl.stageA, sl.stageB); err != nil {
		return err
	}
	if err := s.graph.Submit(idx, s.r.Backend(), []*renderer.Semaphore{sl.stageB}); err != nil {
		return err
	}
	if err := s.compose(sl, idx, image); err != nil {
		return err
	}
	stats.Submit = time.Since(start)
	return nil
}

// abandon hands a frame that failed before composition back to the swapchain. The present
// pass is submitted waiting only on acquisition, so the image shows the previous output and
// the slot fence is signaled once everything already queued for the slot has finished.
func (s *Scheduler) abandon(sl *slot, image int) error {
	backend := s.r.Backend()
	sl.state = StateIdle
	if err := s.present.record(sl.presentCmd, image); err != nil {
		return s.unwedge(sl, fmt.Errorf("frame: %s: %w", sl.presentCmd.Label, err))
	}
	err := backend.Submit(renderer.SubmitInfo{
		Waits:    []*renderer.Semaphore{sl.acquired},
		Commands: []*renderer.CommandBuffer{sl.presentCmd},
		Signals:  []*renderer.Semaphore{sl.rendered},
		Fence:    sl.fence,
	})
	if err != nil {
		return s.unwedge(sl, fmt.Errorf("frame: abandon frame: %w", err))
	}
	if err := backend.Present(image, sl.rendered); err != nil {
		return fmt.Errorf("%w: image %d: %w", ErrPresent, image, err)
	}
	common.Logger().Warn("frame abandoned", "image", image)
	return nil
}

// unwedge signals the slot fence by hand after the GPU drained, when no fenced submission
// could be queued for the slot.
func (s *Scheduler) unwedge(sl *slot, cause error) error {
	if err := s.r.Backend().WaitIdle(); err != nil {
		cause = errors.Join(cause, err)
	}
	sl.fence.Signal()
	return cause
}

// submitStage flushes the dynamic buffers of one stage into cmd and submits it.
func (s *Scheduler) submitStage(cmd *renderer.CommandBuffer, frame int, stage renderer.UpdateStage, wait, signal *renderer.Semaphore) error {
	if err := cmd.Begin(); err != nil {
		return fmt.Errorf("frame: %s: %w", cmd.Label, err)
	}
	s.r.Buffers().Flush(frame, stage, cmd)
	cmd.End()
	return s.r.Backend().Submit(renderer.SubmitInfo{
		Waits:    []*renderer.Semaphore{wait},
		Commands: []*renderer.CommandBuffer{cmd},
		Signals:  []*renderer.Semaphore{signal},
	})
}

// compose draws the graph output into the swapchain image once every sink has finished.
func (s *Scheduler) compose(sl *slot, frame, image int) error {
	sinks, err := s.graph.Sinks()
	if err != nil {
		return err
	}
	waits := make([]*renderer.Semaphore, len(sinks))
	for i, n := range sinks {
		waits[i] = n.Semaphore(frame)
	}
	if err := s.present.record(sl.presentCmd, image); err != nil {
		return fmt.Errorf("frame: %s: %w", sl.presentCmd.Label, err)
	}
	return s.r.Backend().Submit(renderer.SubmitInfo{
		Waits:    waits,
		Commands: []*renderer.CommandBuffer{sl.presentCmd},
		Signals:  []*renderer.Semaphore{sl.rendered},
		Fence:    sl.fence,
	})
}

// recreate rebuilds every swapchain-dependent resource: the swapchain, the graph through
// the refresh callback, the slots and the present pass. Callers hold s.mu.
func (s *Scheduler) recreate(width, height int) error {
	backend := s.r.Backend()
	if err := backend.WaitIdle(); err != nil {
		return fmt.Errorf("frame: wait idle: %w", err)
	}
	if err := backend.RecreateSwapchain(width, height); err != nil {
		return fmt.Errorf("frame: recreate swapchain: %w", err)
	}
	if s.refresh != nil {
		g, err := s.refresh(s.r)
		if err != nil {
			return fmt.Errorf("frame: refresh graph: %w", err)
		}
		if g != s.graph {
			s.graph.Release()
			s.graph = g
		}
	}
	s.present.release(s.r)
	if err := s.build(); err != nil {
		return err
	}
	common.Logger().Warn("swapchain recreated", "width", width, "height", height, "frames", len(s.slots))
	return nil
}

// Release waits for the GPU and frees the graph and the present pass.
func (s *Scheduler) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.r.Backend().WaitIdle(); err != nil {
		return err
	}
	s.present.release(s.r)
	s.graph.Release()
	return nil
}
