package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/config"
	"github.com/Carmen-Shannon/oxy-graph/engine/frame"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/profiler"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/wgpu_backend"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/Carmen-Shannon/oxy-graph/engine/window"
)

// engine implements the Engine interface.
// Coordinates the tick, render, and window threads.
type engine struct {
	cfg    config.Config
	runID  uuid.UUID
	logger *slog.Logger

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	err     error

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	headless  bool
	window    window.Window
	backend   renderer.Backend
	renderer  renderer.Renderer
	scheduler *frame.Scheduler

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	view      scene.View
	maxFrames uint64
	frames    uint64

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the engine.
// It owns the renderer, the deferred graph and the frame scheduler, and runs the tick and
// render loops.
type Engine interface {
	// Window returns the underlying window, nil when headless.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the GPU context graph nodes are built against.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// Scheduler returns the frame scheduler.
	//
	// Returns:
	//   - *frame.Scheduler: the scheduler
	Scheduler() *frame.Scheduler

	// RunID returns the identifier attached to every log record of this engine.
	//
	// Returns:
	//   - uuid.UUID: the run id
	RunID() uuid.UUID

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each rendered frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// SetView replaces the scene snapshot rendered by the following frames. Frames are
	// skipped while no view is set.
	//
	// Parameters:
	//   - v: the view
	SetView(v scene.View)

	// View returns the current scene snapshot.
	//
	// Returns:
	//   - scene.View: the view, or nil
	View() scene.View

	// Frames returns the number of frames presented so far.
	//
	// Returns:
	//   - uint64: the frame count
	Frames() uint64

	// Run starts the engine loops and blocks until the window closes, Quit is called, the
	// frame limit is reached or a frame fails.
	//
	// Returns:
	//   - error: the error that stopped rendering, if any
	Run() error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates the backend, renderer, deferred graph and scheduler described by cfg.
// Options are applied directly to the engine struct via the option-builder pattern before
// anything is created.
//
// Parameters:
//   - cfg: the engine configuration
//   - options: functional options for engine configuration (headless, profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: a window, backend or graph construction error
func NewEngine(cfg config.Config, options ...EngineBuilderOption) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.New()
	e := &engine{
		cfg:             cfg,
		runID:           runID,
		logger:          common.Logger().With(slog.String("run", runID.String())),
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}
	e.profiler = profiler.NewProfiler(e.logger)

	if err := e.createBackend(); err != nil {
		return nil, err
	}

	r, err := renderer.NewRenderer(e.backend,
		renderer.WithKernelsCount(cfg.Kernels),
		renderer.WithBufferArena(cfg.BufferArenaBytes))
	if err != nil {
		return nil, err
	}
	e.renderer = r

	build := func(r renderer.Renderer) (*graph.Graph, error) {
		return graph.BuildDeferred(context.Background(), r, cfg)
	}
	g, err := build(r)
	if err != nil {
		return nil, err
	}
	e.scheduler, err = frame.NewScheduler(r, g,
		frame.WithFenceTimeout(cfg.FenceTimeout),
		frame.WithRefresh(build))
	if err != nil {
		g.Release()
		return nil, err
	}

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			e.scheduler.Resize(width, height)
			if v := e.View(); v != nil {
				v.Camera().SetAspect(float32(width) / float32(height))
			}
		})
	}

	e.logger.Info("engine created",
		"backend", e.backend.Type().String(),
		"frames_in_flight", r.FramesCount(),
		"kernels", r.KernelsCount(),
		"nodes", g.Len())
	return e, nil
}

// createBackend opens the window unless headless and creates the matching backend.
func (e *engine) createBackend() error {
	if e.headless {
		e.backend = renderer.NewHeadlessBackend(
			renderer.WithHeadlessExtent(e.cfg.Width, e.cfg.Height),
			renderer.WithHeadlessFrames(e.cfg.FramesInFlight))
		return nil
	}

	if e.window == nil {
		w, err := window.NewWindow(
			window.WithTitle(e.cfg.Title),
			window.WithSize(e.cfg.Width, e.cfg.Height))
		if err != nil {
			return err
		}
		e.window = w
	}
	mode := renderer.PresentModeVSync
	if e.cfg.PresentMode == "uncapped" {
		mode = renderer.PresentModeUncapped
	}
	width, height := e.window.Size()
	b, err := wgpu_backend.NewWGPUBackend(e.window.SurfaceDescriptor(), width, height,
		wgpu_backend.WithFrames(e.cfg.FramesInFlight),
		wgpu_backend.WithPresentMode(mode))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.backend = b
	return nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Scheduler() *frame.Scheduler {
	return e.scheduler
}

func (e *engine) RunID() uuid.UUID {
	return e.runID
}

func (e *engine) Run() error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.handle()
	if e.window != nil {
		e.window.SetUpdateCallback(func() {
			select {
			case <-e.quitChannel:
				_ = e.window.Close()
			default:
			}
		})
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()

	if err := e.scheduler.Release(); err != nil {
		e.setErr(err)
	}
	e.backend.Release()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.logger.Info("engine stopped", "frames", e.frames)
	return e.err
}

// Quit signals all engine goroutines to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

// handle launches the engine and render goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Each iteration ticks the scheduler with the current view. A refresh drops the frame and
// continues; any other error stops the engine.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render goroutine recovered from panic", "panic", r)
			e.setErr(fmt.Errorf("engine: render panic: %v", r))
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		if v := e.View(); v != nil {
			err := e.scheduler.Tick(v)
			switch {
			case errors.Is(err, renderer.ErrNeedsRefresh):
				continue
			case err != nil:
				e.logger.Error("frame failed", "error", err)
				e.setErr(err)
				e.signalQuit()
				return
			}

			e.mu.Lock()
			e.frames++
			done := e.maxFrames > 0 && e.frames >= e.maxFrames
			e.mu.Unlock()

			if e.profilingEnabled {
				st := e.scheduler.Stats()
				e.profiler.Observe(profiler.FrameTimings{FenceWait: st.FenceWait, Record: st.Record, Submit: st.Submit})
				e.profiler.Tick()
			}
			if done {
				e.signalQuit()
				return
			}
		}

		if e.renderCallback != nil {
			e.renderCallback(dt)
		}

		if e.renderFrameLimit > 0 {
			elapsed := time.Since(lastRender)
			if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Second / time.Duration(fps)

	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		e.engineTickRate = newRate
		return
	}
	// replace a pending update rather than block
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Second / time.Duration(fps)
}

func (e *engine) SetView(v scene.View) {
	e.mu.Lock()
	e.view = v
	e.mu.Unlock()
}

func (e *engine) View() scene.View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

func (e *engine) Frames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}
