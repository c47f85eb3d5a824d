package node

import (
	"fmt"
	"sync"
	"weak"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

// provider is a strong edge from an input to the output that feeds it.
type provider struct {
	node   *Instance
	output int
}

// frameData is what an instance owns for one frame in flight.
type frameData struct {
	primary     *renderer.CommandBuffer
	semaphore   *renderer.Semaphore
	secondaries []*renderer.CommandBuffer
}

// Instance is a live node: a template reference, its own pass, its edges and its per-frame
// command buffers. Consumers hold providers strongly; providers see consumers through
// weak pointers, so a graph is kept alive from its output backwards.
type Instance struct {
	mu        sync.RWMutex
	template  *Template
	renderer  renderer.Renderer
	pass      Pass
	providers []provider
	consumers [][]weak.Pointer[Instance]
	frames    []frameData
	released  bool
}

var _ Node = &Instance{}

func newInstance(t *Template, r renderer.Renderer, pass Pass) *Instance {
	n := &Instance{
		template:  t,
		renderer:  r,
		pass:      pass,
		providers: make([]provider, t.inputs.Len()),
		consumers: make([][]weak.Pointer[Instance], t.outputs.Len()),
		frames:    make([]frameData, r.FramesCount()),
	}
	for f := range n.frames {
		fd := &n.frames[f]
		fd.primary = renderer.NewCommandBuffer(renderer.LevelPrimary, fmt.Sprintf("%s primary %d", t.name, f))
		fd.semaphore = r.Backend().CreateSemaphore(fmt.Sprintf("%s done %d", t.name, f))
		fd.secondaries = make([]*renderer.CommandBuffer, r.KernelsCount())
		for k := range fd.secondaries {
			fd.secondaries[k] = r.KernelPool(k).Allocate(renderer.LevelSecondary, fmt.Sprintf("%s kernel %d frame %d", t.name, k, f))
		}
	}
	return n
}

func (n *Instance) Kind() KindID { return n.template.kind }

func (n *Instance) Name() string { return n.template.name }

func (n *Instance) Inputs() link.Set { return n.template.inputs }

func (n *Instance) Outputs() link.Set { return n.template.outputs }

// Template returns the template the instance was created from.
func (n *Instance) Template() *Template { return n.template }

// Pass returns the instance's pass, for kind-specific configuration.
func (n *Instance) Pass() Pass { return n.pass }

// Shared returns the template's shared data.
func (n *Instance) Shared() *Shared { return n.pass.Shared() }

func (n *Instance) CreateInstance(r renderer.Renderer) (Node, error) {
	pass, err := n.pass.Clone(r)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate %s: %w", n.template.name, err)
	}
	return newInstance(n.template, r, pass), nil
}

func (n *Instance) OutputResource(index int) *renderer.Texture {
	outputs := n.pass.Shared().Outputs
	if index < 0 || index >= len(outputs) {
		common.Fatalf("node: %s has no output %d", n.template.name, index)
	}
	return outputs[index]
}

func (n *Instance) RegisterProvider(input int, p Node, output int) {
	up, ok := p.(*Instance)
	if !ok || up == nil {
		common.Fatalf("node: %s input %d bound to a foreign node %T", n.template.name, input, p)
	}
	if up == n {
		common.Fatalf("node: %s cannot provide its own input", n.template.name)
	}
	in := n.template.inputs.At(input)
	out := up.template.outputs.At(output)
	if !link.Compatible(in.ID, out.ID) {
		common.Fatalf("node: %s input %s cannot take %s output %s", n.template.name, in, up.template.name, out)
	}

	n.mu.Lock()
	if prev := n.providers[input]; prev.node != nil {
		n.mu.Unlock()
		common.Fatalf("node: %s input %s already bound to %s", n.template.name, in, prev.node.template.name)
	}
	n.providers[input] = provider{node: up, output: output}
	n.pass.BindInput(input, up.OutputResource(output))
	n.mu.Unlock()

	up.RegisterConsumer(output, n)
}

func (n *Instance) RegisterConsumer(output int, c Node) {
	down, ok := c.(*Instance)
	if !ok || down == nil {
		common.Fatalf("node: %s output %d consumed by a foreign node %T", n.template.name, output, c)
	}
	n.template.outputs.At(output)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.consumers[output] = append(n.consumers[output], weak.Make(down))
}

func (n *Instance) Provider(input int) (Node, int) {
	n.template.inputs.At(input)
	n.mu.RLock()
	defer n.mu.RUnlock()
	p := n.providers[input]
	if p.node == nil {
		return nil, 0
	}
	return p.node, p.output
}

func (n *Instance) Consumers(output int) []Node {
	n.template.outputs.At(output)
	n.mu.Lock()
	defer n.mu.Unlock()
	live := n.consumers[output][:0]
	var out []Node
	for _, wp := range n.consumers[output] {
		if c := wp.Value(); c != nil {
			live = append(live, wp)
			out = append(out, c)
		}
	}
	n.consumers[output] = live
	return out
}

func (n *Instance) Prepare(frame int, view scene.View) error {
	if err := n.pass.Prepare(frame, view); err != nil {
		return fmt.Errorf("failed to prepare %s: %w", n.template.name, err)
	}
	return nil
}

func (n *Instance) Record(kernel, frame int, view scene.View) error {
	n.mu.RLock()
	for i, p := range n.providers {
		if p.node == nil && !n.template.Optional(i) {
			n.mu.RUnlock()
			common.Fatalf("node: %s required input %s is unbound", n.template.name, n.template.inputs.At(i))
		}
	}
	n.mu.RUnlock()

	cmd := n.frames[frame].secondaries[kernel]
	if err := cmd.Begin(); err != nil {
		return fmt.Errorf("%s kernel %d frame %d: %w", n.template.name, kernel, frame, err)
	}
	if err := n.pass.Record(kernel, frame, view, cmd); err != nil {
		cmd.End()
		return fmt.Errorf("failed to record %s: %w", n.template.name, err)
	}
	cmd.End()
	return nil
}

func (n *Instance) Submit(frame int, submitter renderer.Submitter, waits []*renderer.Semaphore) error {
	fd := &n.frames[frame]
	if err := fd.primary.Begin(); err != nil {
		return fmt.Errorf("%s frame %d: %w", n.template.name, frame, err)
	}
	fd.primary.BeginRenderPass(n.pass.Shared().Framebuffer)
	fd.primary.ExecuteCommands(fd.secondaries...)
	fd.primary.EndRenderPass()
	fd.primary.End()

	err := submitter.Submit(renderer.SubmitInfo{
		Waits:    waits,
		Commands: []*renderer.CommandBuffer{fd.primary},
		Signals:  []*renderer.Semaphore{fd.semaphore},
	})
	if err != nil {
		return fmt.Errorf("failed to submit %s: %w", n.template.name, err)
	}
	return nil
}

func (n *Instance) Semaphore(frame int) *renderer.Semaphore {
	return n.frames[frame].semaphore
}

// Release frees the instance's render data. Callers must make sure no submission that
// references the instance is still executing.
func (n *Instance) Release() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.released {
		return
	}
	n.released = true
	for _, fd := range n.frames {
		for k, cmd := range fd.secondaries {
			n.renderer.KernelPool(k).Free(cmd)
		}
	}
	n.pass.Release(n.renderer)
}
