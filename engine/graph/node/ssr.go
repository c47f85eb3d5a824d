package node

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

//go:embed assets/ssr.wgsl
var ssrSource string

const SSRName = "ssr"

// SSRUniform is the parameter block of the screen-space reflection effect.
type SSRUniform struct {
	ViewProjection common.Mat4
	CameraPosition common.Vec3
	MaxDistance    float32
	Steps          uint32
	// Thickness is the depth tolerance of a hit in normalized device depth.
	Thickness float32
	Strength  float32
}

func (SSRUniform) Size() int { return 96 }

func (u SSRUniform) Marshal() []byte {
	return common.NewByteWriter(u.Size()).
		Mat4(u.ViewProjection).
		Vec3(u.CameraPosition, 1).
		Vec4([4]float32{u.MaxDistance, float32(u.Steps), u.Thickness, u.Strength}).
		Bytes()
}

// NewSSR builds the effect that traces reflections through the lit color and blends them in.
func NewSSR(r renderer.Renderer) (*Template, error) {
	return NewEffect(r, EffectConfig[SSRUniform]{
		Kind:    SSRKind,
		Name:    SSRName,
		Outputs: []BufferInfo{{Format: renderer.FormatRGBA16Float, Link: link.Get(link.Reflection)}},
		Inputs: []InputInfo{
			{Link: link.Get(link.Position), Format: renderer.FormatRGBA16Float},
			{Link: link.Get(link.Normal), Format: renderer.FormatRGBA16Float},
			{Link: link.Get(link.Depth), Format: renderer.FormatDepth32Float},
			{Link: link.Get(link.Color), Format: renderer.FormatRGBA16Float},
		},
		Source: ssrSource,
		Uniform: SSRUniform{
			ViewProjection: common.Identity4(),
			MaxDistance:    8,
			Steps:          32,
			Thickness:      0.01,
			Strength:       0.5,
		},
		Update: func(u *SSRUniform, view scene.View) {
			cam := view.Camera()
			u.ViewProjection = cam.ViewProjectionMatrix()
			u.CameraPosition = cam.Position()
		},
	})
}
