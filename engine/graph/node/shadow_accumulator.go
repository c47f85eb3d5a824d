package node

import (
	_ "embed"
	"strconv"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

//go:embed assets/shadow_accumulator_directional.wgsl
var shadowAccumulatorDirectionalSource string

const ShadowAccumulatorDirectionalName = "shadow-accumulator-directional"

// shadowBias maps clip space to shadow-map texture coordinates.
var shadowBias = common.Translation(common.Vec3{0.5, 0.5, 0}).Mul(common.Scaling(common.Vec3{0.5, -0.5, 1}))

// ShadowAccumulatorUniform is the parameter block of the directional shadow accumulator.
type ShadowAccumulatorUniform struct {
	// ViewProjectionBiases map world space into each cascade's shadow-map coordinates.
	ViewProjectionBiases [link.MaxShadowMaps]common.Mat4
	// DirectionStrength is the light's travel direction and strength.
	DirectionStrength [4]float32
	CascadesCount     uint32
	// LightIndex is the bit the light sets in the accumulated shadow mask.
	LightIndex uint32
}

func (ShadowAccumulatorUniform) Size() int { return 416 }

func (u ShadowAccumulatorUniform) Marshal() []byte {
	w := common.NewByteWriter(u.Size())
	for _, m := range u.ViewProjectionBiases {
		w.Mat4(m)
	}
	return w.Vec4(u.DirectionStrength).Uint32(u.CascadesCount).Uint32(u.LightIndex).Bytes()
}

// DefaultShadowAccumulatorUniform looks straight down -Z with no cascades.
func DefaultShadowAccumulatorUniform() ShadowAccumulatorUniform {
	var u ShadowAccumulatorUniform
	for i := range u.ViewProjectionBiases {
		u.ViewProjectionBiases[i] = common.Identity4()
	}
	u.DirectionStrength = [4]float32{0, 0, -1, 1}
	return u
}

// NewShadowAccumulatorDirectional builds the effect that resolves the cascaded shadow maps of
// the first directional light into a per-pixel shadow bit mask.
//
// Parameters:
//   - r: the renderer
//   - cascades: the number of cascades, at most link.MaxShadowMaps
//
// Returns:
//   - *Template: the template
//   - error: a backend error
func NewShadowAccumulatorDirectional(r renderer.Renderer, cascades int) (*Template, error) {
	if cascades < 1 || cascades > link.MaxShadowMaps {
		common.Fatalf("node: %d shadow cascades out of range [1, %d]", cascades, link.MaxShadowMaps)
	}
	inputs := []InputInfo{
		{Link: link.Get(link.Position), Format: renderer.FormatRGBA16Float},
		{Link: link.Get(link.Normal), Format: renderer.FormatRGBA16Float},
	}
	for i := range link.MaxShadowMaps {
		inputs = append(inputs, InputInfo{Link: link.ShadowMap(i), Optional: true, Format: renderer.FormatDepth32Float})
	}
	return NewEffect(r, EffectConfig[ShadowAccumulatorUniform]{
		Kind:      ShadowAccumulatorDirectionalKind,
		Name:      ShadowAccumulatorDirectionalName,
		Outputs:   []BufferInfo{{Format: renderer.FormatR8Uint, Link: link.Get(link.SingleOutput)}},
		Inputs:    inputs,
		Source:    shadowAccumulatorDirectionalSource,
		Constants: map[string]string{"CASCADES": strconv.Itoa(cascades)},
		Uniform:   DefaultShadowAccumulatorUniform(),
		Update: func(u *ShadowAccumulatorUniform, view scene.View) {
			lights := view.Lights()
			if len(lights) == 0 {
				u.CascadesCount = 0
				u.DirectionStrength[3] = 0
				return
			}
			cam := view.Camera()
			splits := scene.CascadeSplits(cam, cascades)
			for c := range cascades {
				u.ViewProjectionBiases[c] = shadowBias.Mul(lights[0].CascadeViewProjection(cam, splits, c))
			}
			d := lights[0].Direction
			u.DirectionStrength = [4]float32{d[0], d[1], d[2], lights[0].Intensity}
			u.CascadesCount = uint32(cascades)
			u.LightIndex = 0
		},
	})
}
