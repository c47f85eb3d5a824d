package node

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

// Uniform is the per-instance parameter block of an effect. Implementations are value
// types: cloning an instance copies the value.
type Uniform interface {
	// Size returns the byte size of the marshaled block.
	Size() int
	// Marshal packs the block in the shader's uniform layout.
	Marshal() []byte
}

// BufferInfo declares one output image of an effect. A zero Width or Height takes the
// viewport size.
type BufferInfo struct {
	Width, Height uint32
	Format        renderer.Format
	Link          link.Link
}

// InputInfo declares one input of an effect. Format is the placeholder format bound when an
// optional input is left unbound.
type InputInfo struct {
	Link     link.Link
	Optional bool
	Format   renderer.Format
}

// EffectConfig describes a fullscreen effect.
type EffectConfig[U Uniform] struct {
	Kind    KindID
	Name    string
	Outputs []BufferInfo
	Inputs  []InputInfo
	// Source is the WGSL program. Group 0 binds the uniform at binding 0 followed by one
	// texture per input in input order.
	Source    string
	Constants map[string]string
	Uniform   U
	// Update refreshes the uniform from the view before it is staged. Optional.
	Update func(u *U, view scene.View)
}

// Effect is a Pass that draws one fullscreen triangle reading its inputs through texel
// loads. Every instance owns a uniform value and a dynamic buffer holding it per frame.
type Effect[U Uniform] struct {
	shared *Shared
	name   string
	inputs []InputInfo
	update func(*U, scene.View)

	mu      sync.Mutex
	r       renderer.Renderer
	uniform U
	buffer  *renderer.DynamicBuffer
	bound   []*renderer.Texture
	sets    []*renderer.DescriptorSet
	stale   []bool
}

var _ Pass = &Effect[Uniform]{}

// NewEffect builds the shared images, render pass, framebuffer and pipeline of an effect and
// returns its template.
//
// Parameters:
//   - r: the renderer that owns the GPU objects
//   - cfg: the effect description
//
// Returns:
//   - *Template: the template
//   - error: a backend error
func NewEffect[U Uniform](r renderer.Renderer, cfg EffectConfig[U]) (*Template, error) {
	shared, err := buildTargets(r, cfg.Name, cfg.Outputs)
	if err != nil {
		return nil, err
	}
	shared.Pipeline, err = r.Pipelines().Get(pipelineKey(cfg.Name, cfg.Outputs, cfg.Constants), renderer.PipelineDescriptor{
		Label:     cfg.Name,
		Source:    cfg.Source,
		Constants: cfg.Constants,
		Pass:      shared.RenderPass,
		Vertex:    renderer.VertexInputNone,
		Cull:      renderer.CullNone,
	})
	if err != nil {
		return nil, err
	}

	proto := &Effect[U]{
		shared:  shared,
		name:    cfg.Name,
		inputs:  slices.Clone(cfg.Inputs),
		update:  cfg.Update,
		uniform: cfg.Uniform,
	}
	inputs := make([]Input, len(cfg.Inputs))
	for i, in := range cfg.Inputs {
		inputs[i] = Input{Link: in.Link, Optional: in.Optional}
	}
	outputs := make([]link.Link, len(cfg.Outputs))
	for i, out := range cfg.Outputs {
		outputs[i] = out.Link
	}
	return NewTemplate(cfg.Kind, cfg.Name, inputs, outputs, proto), nil
}

// buildTargets creates the output images plus the pass and framebuffer that render into
// them. Color outputs keep their order; a depth output is attached last.
func buildTargets(r renderer.Renderer, name string, outputs []BufferInfo) (*Shared, error) {
	vw, vh := r.Viewport()
	sampler, err := r.Samplers().Get(renderer.SamplerDescriptor{Label: "nearest", Filter: renderer.FilterNearest})
	if err != nil {
		return nil, err
	}

	shared := &Shared{Outputs: make([]*renderer.Texture, len(outputs))}
	desc := renderer.RenderPassDescriptor{Label: name, Clear: true}
	var colors []*renderer.Image
	var depth *renderer.Image
	for i, out := range outputs {
		w, h := out.Width, out.Height
		if w == 0 || h == 0 {
			w, h = uint32(vw), uint32(vh)
		}
		img, err := r.Backend().CreateImage(renderer.ImageDescriptor{
			Label:  name + " " + out.Link.Name,
			Width:  w,
			Height: h,
			Format: out.Format,
			Usage:  renderer.ImageUsageAttachment | renderer.ImageUsageSampled,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s output %s: %w", name, out.Link, err)
		}
		shared.Outputs[i] = &renderer.Texture{Image: img, Sampler: sampler}
		if out.Format.IsDepth() {
			if depth != nil {
				return nil, fmt.Errorf("node: %s declares more than one depth output", name)
			}
			depth = img
			desc.Depth = out.Format
			continue
		}
		colors = append(colors, img)
		desc.Colors = append(desc.Colors, out.Format)
	}

	shared.RenderPass, err = r.Backend().CreateRenderPass(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s render pass: %w", name, err)
	}
	attachments := colors
	if depth != nil {
		attachments = append(attachments, depth)
	}
	shared.Framebuffer, err = r.Backend().CreateFramebuffer(shared.RenderPass, attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s framebuffer: %w", name, err)
	}
	return shared, nil
}

// pipelineKey identifies a pipeline by program name, attachment formats and constants.
func pipelineKey(name string, outputs []BufferInfo, constants map[string]string) string {
	var sb strings.Builder
	sb.WriteString(name)
	for _, out := range outputs {
		sb.WriteString("|" + out.Format.String())
	}
	for _, k := range slices.Sorted(maps.Keys(constants)) {
		sb.WriteString("|" + k + "=" + constants[k])
	}
	return sb.String()
}

func (e *Effect[U]) Shared() *Shared { return e.shared }

func (e *Effect[U]) Clone(r renderer.Renderer) (Pass, error) {
	e.mu.Lock()
	u := e.uniform
	e.mu.Unlock()

	buf, err := r.Buffers().CreateDynamic(e.name+" uniform", uint64(u.Size()), renderer.StageSecondary)
	if err != nil {
		return nil, err
	}
	frames := r.FramesCount()
	return &Effect[U]{
		shared:  e.shared,
		name:    e.name,
		inputs:  e.inputs,
		update:  e.update,
		r:       r,
		uniform: u,
		buffer:  buf,
		bound:   make([]*renderer.Texture, len(e.inputs)),
		sets:    make([]*renderer.DescriptorSet, frames),
		stale:   make([]bool, frames),
	}, nil
}

// Uniform returns a copy of the current uniform value.
func (e *Effect[U]) Uniform() U {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uniform
}

// SetUniform replaces the uniform value. The next Prepare stages it.
func (e *Effect[U]) SetUniform(u U) {
	e.mu.Lock()
	e.uniform = u
	e.mu.Unlock()
}

// Buffer returns the instance's uniform buffer, nil on a template prototype.
func (e *Effect[U]) Buffer() *renderer.DynamicBuffer { return e.buffer }

func (e *Effect[U]) BindInput(index int, tex *renderer.Texture) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bound[index] = tex
	for f := range e.stale {
		e.stale[f] = true
	}
}

func (e *Effect[U]) Prepare(frame int, view scene.View) error {
	e.mu.Lock()
	if e.update != nil {
		e.update(&e.uniform, view)
	}
	data := e.uniform.Marshal()
	e.mu.Unlock()
	e.buffer.Update(frame, data)
	return nil
}

func (e *Effect[U]) Record(kernel, frame int, _ scene.View, cmd *renderer.CommandBuffer) error {
	if kernel != 0 {
		return nil
	}
	set, err := e.descriptorSet(frame)
	if err != nil {
		return err
	}
	cmd.BindPipeline(e.shared.Pipeline)
	cmd.BindDescriptorSet(set)
	cmd.Draw(3, 1)
	return nil
}

// descriptorSet returns frame's set, rebuilding it after an input was rebound.
func (e *Effect[U]) descriptorSet(frame int) (*renderer.DescriptorSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sets[frame] != nil && !e.stale[frame] {
		return e.sets[frame], nil
	}

	textures := make([]*renderer.Texture, len(e.inputs))
	for i, in := range e.inputs {
		tex := e.bound[i]
		if tex == nil {
			var err error
			if tex, err = e.r.DefaultTexture(in.Format); err != nil {
				return nil, err
			}
		}
		textures[i] = tex
	}
	set, err := e.r.Descriptors().Create(renderer.DescriptorSetDescriptor{
		Label:    fmt.Sprintf("%s frame %d", e.name, frame),
		Pipeline: e.shared.Pipeline,
		Group:    0,
		Buffers:  []renderer.BufferRange{e.buffer.Range(frame)},
		Textures: textures,
	})
	if err != nil {
		return nil, err
	}
	e.r.Descriptors().Release(e.sets[frame])
	e.sets[frame] = set
	e.stale[frame] = false
	return set, nil
}

func (e *Effect[U]) Release(r renderer.Renderer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r.Descriptors().Release(e.sets...)
	if e.buffer != nil {
		r.Buffers().Free(e.buffer)
	}
}
