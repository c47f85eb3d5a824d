package node

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

//go:embed assets/gbuffer_filler.wgsl
var gbufferFillerSource string

// GBufferFillerName is the display name of the G-buffer filler.
const GBufferFillerName = "gbuffer-filler"

// GBufferFiller rasterizes the view's objects into world position, normal, albedo and depth
// images.
type GBufferFiller struct {
	meshPass
}

var _ Pass = &GBufferFiller{}

// NewGBufferFiller builds the G-buffer template with viewport-sized outputs.
//
// Parameters:
//   - r: the renderer
//   - capacity: objects each kernel can draw per frame; DefaultObjectCapacity when zero
//
// Returns:
//   - *Template: the template
//   - error: a backend error
func NewGBufferFiller(r renderer.Renderer, capacity int) (*Template, error) {
	outputs := []BufferInfo{
		{Format: renderer.FormatRGBA16Float, Link: link.Get(link.Position)},
		{Format: renderer.FormatRGBA16Float, Link: link.Get(link.Normal)},
		{Format: renderer.FormatRGBA8Unorm, Link: link.Get(link.Albedo)},
		{Format: renderer.FormatDepth32Float, Link: link.Get(link.Depth)},
	}
	shared, err := buildTargets(r, GBufferFillerName, outputs)
	if err != nil {
		return nil, err
	}
	if shared.Pipeline, err = newMeshPipeline(r, GBufferFillerName, gbufferFillerSource, shared, outputs); err != nil {
		return nil, err
	}

	proto := &GBufferFiller{meshPass{
		shared:      shared,
		name:        GBufferFillerName,
		capacity:    common.Coalesce(capacity, DefaultObjectCapacity),
		filter:      func(*scene.Object) bool { return true },
		globalsSize: 64,
	}}
	links := make([]link.Link, len(outputs))
	for i, out := range outputs {
		links[i] = out.Link
	}
	return NewTemplate(GBufferFillerKind, GBufferFillerName, nil, links, proto), nil
}

func (g *GBufferFiller) Clone(r renderer.Renderer) (Pass, error) {
	c := &GBufferFiller{meshPass{
		shared:      g.shared,
		name:        g.name,
		capacity:    g.capacity,
		filter:      g.filter,
		globalsSize: g.globalsSize,
	}}
	if err := g.clone(r, &c.meshPass); err != nil {
		return nil, err
	}
	return c, nil
}

func (g *GBufferFiller) Prepare(frame int, view scene.View) error {
	g.globalsBuf.Update(frame, common.NewByteWriter(64).Mat4(view.Camera().ViewProjectionMatrix()).Bytes())
	return nil
}
