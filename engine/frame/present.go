package frame

import (
	_ "embed"
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
)

//go:embed assets/present.wgsl
var presentSource string

// presentPass draws the graph output onto a swapchain image.
type presentPass struct {
	pass         *renderer.RenderPass
	pipeline     *renderer.Pipeline
	framebuffers []*renderer.Framebuffer
	set          *renderer.DescriptorSet
	source       *renderer.Texture
}

// newPresentPass builds one framebuffer per swapchain image and the descriptor set that
// samples source through a linear sampler.
func newPresentPass(r renderer.Renderer, source *renderer.Texture) (*presentPass, error) {
	backend := r.Backend()
	pass, err := backend.CreateRenderPass(renderer.RenderPassDescriptor{
		Label:  "present",
		Colors: []renderer.Format{renderer.FormatSurface},
		Clear:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create present render pass: %w", err)
	}
	pipeline, err := r.Pipelines().Get("present", renderer.PipelineDescriptor{
		Label:  "present",
		Source: presentSource,
		Pass:   pass,
		Vertex: renderer.VertexInputNone,
		Cull:   renderer.CullNone,
	})
	if err != nil {
		return nil, err
	}

	p := &presentPass{pass: pass, pipeline: pipeline}
	for i, img := range backend.SwapchainImages() {
		fb, err := backend.CreateFramebuffer(pass, []*renderer.Image{img})
		if err != nil {
			return nil, fmt.Errorf("failed to create swapchain framebuffer %d: %w", i, err)
		}
		p.framebuffers = append(p.framebuffers, fb)
	}
	if err := p.bind(r, source); err != nil {
		return nil, err
	}
	return p, nil
}

// bind points the pass at a new source texture.
func (p *presentPass) bind(r renderer.Renderer, source *renderer.Texture) error {
	linear, err := r.Samplers().Get(renderer.SamplerDescriptor{Label: "linear", Filter: renderer.FilterLinear})
	if err != nil {
		return err
	}
	tex := &renderer.Texture{Image: source.Image, Sampler: linear}
	set, err := r.Descriptors().Create(renderer.DescriptorSetDescriptor{
		Label:    "present",
		Pipeline: p.pipeline,
		Textures: []*renderer.Texture{tex},
	})
	if err != nil {
		return err
	}
	r.Descriptors().Release(p.set)
	p.set, p.source = set, source
	return nil
}

// record fills cmd with the composition into swapchain image index.
func (p *presentPass) record(cmd *renderer.CommandBuffer, image int) error {
	if err := cmd.Begin(); err != nil {
		return err
	}
	cmd.BeginRenderPass(p.framebuffers[image])
	cmd.BindPipeline(p.pipeline)
	cmd.BindDescriptorSet(p.set)
	cmd.Draw(3, 1)
	cmd.EndRenderPass()
	cmd.End()
	return nil
}

func (p *presentPass) release(r renderer.Renderer) {
	r.Descriptors().Release(p.set)
	p.set = nil
}
