package node

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

//go:embed assets/deferred_pbr.wgsl
var deferredPBRSource string

const DeferredPBRName = "deferred-pbr"

// DeferredPBRUniform is the parameter block of the deferred composer.
type DeferredPBRUniform struct {
	CameraPosition common.Vec3
	// LightDirection is the travel direction of the first directional light.
	LightDirection common.Vec3
	LightIntensity float32
	LightColor     common.Vec3
	// PixelStep is the texel size in x and y, then the occlusion blur radius.
	PixelStep [4]float32
}

func (DeferredPBRUniform) Size() int { return 64 }

func (u DeferredPBRUniform) Marshal() []byte {
	return common.NewByteWriter(u.Size()).
		Vec3(u.CameraPosition, 1).
		Vec3(u.LightDirection, u.LightIntensity).
		Vec3(u.LightColor, 1).
		Vec4(u.PixelStep).
		Bytes()
}

// NewDeferredPBR builds the composer that lights the G-buffer. Occlusion and accumulated
// shadows are optional; left unbound, the pixel is unoccluded and unshadowed.
//
// Parameters:
//   - r: the renderer
//   - samples: the occlusion blur radius in texels
//
// Returns:
//   - *Template: the template
//   - error: a backend error
func NewDeferredPBR(r renderer.Renderer, samples int) (*Template, error) {
	w, h := r.Viewport()
	return NewEffect(r, EffectConfig[DeferredPBRUniform]{
		Kind:    DeferredPBRKind,
		Name:    DeferredPBRName,
		Outputs: []BufferInfo{{Format: renderer.FormatRGBA16Float, Link: link.Get(link.Color)}},
		Inputs: []InputInfo{
			{Link: link.Get(link.Position), Format: renderer.FormatRGBA16Float},
			{Link: link.Get(link.Normal), Format: renderer.FormatRGBA16Float},
			{Link: link.Get(link.Albedo), Format: renderer.FormatRGBA8Unorm},
			{Link: link.Get(link.Depth), Format: renderer.FormatDepth32Float},
			{Link: link.Get(link.Occlusion), Optional: true, Format: renderer.FormatR8Unorm},
			{Link: link.Get(link.AccumulatedShadows), Optional: true, Format: renderer.FormatR8Uint},
		},
		Source: deferredPBRSource,
		Uniform: DeferredPBRUniform{
			LightDirection: common.Vec3{0, -1, 0},
			LightColor:     common.Vec3{1, 1, 1},
			PixelStep:      [4]float32{1 / float32(w), 1 / float32(h), float32(samples), 0},
		},
		Update: func(u *DeferredPBRUniform, view scene.View) {
			u.CameraPosition = view.Camera().Position()
			u.LightIntensity = 0
			if lights := view.Lights(); len(lights) > 0 {
				u.LightDirection = lights[0].Direction
				u.LightColor = lights[0].Color
				u.LightIntensity = lights[0].Intensity
			}
		},
	})
}
