package node

import (
	_ "embed"
	"math/rand/v2"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

//go:embed assets/ssao.wgsl
var ssaoSource string

const SSAOName = "ssao"

// MaxSSAOSamples is the size of the SSAO sample kernel.
const MaxSSAOSamples = 128

// SSAOUniform is the parameter block of the SSAO effect.
type SSAOUniform struct {
	ViewProjection common.Mat4
	// SampleVectors hold hemisphere offsets in xyz and negative weights summing to -1 in w.
	SampleVectors [MaxSSAOSamples][4]float32
	Radius        float32
	Bias          float32
	SamplesCount  uint32
}

func (SSAOUniform) Size() int { return 64 + MaxSSAOSamples*16 + 16 }

func (u SSAOUniform) Marshal() []byte {
	w := common.NewByteWriter(u.Size()).Mat4(u.ViewProjection)
	for _, s := range u.SampleVectors {
		w.Vec4(s)
	}
	return w.Vec4([4]float32{u.Radius, u.Bias, float32(u.SamplesCount), 0}).Bytes()
}

// SSAOSampleVectors builds the sample kernel: offsets with x and y in [-1, 1) and z in
// [0, 1), weighted by 2.4 minus their length and normalized so the weights sum to -1.
//
// Parameters:
//   - seed: the generator seed; equal seeds give equal kernels
//
// Returns:
//   - [MaxSSAOSamples][4]float32: the kernel
func SSAOSampleVectors(seed uint64) [MaxSSAOSamples][4]float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var out [MaxSSAOSamples][4]float32
	var sum float32
	for i := range out {
		v := common.Vec3{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()}
		w := 2.4 - v.Length()
		out[i] = [4]float32{v[0], v[1], v[2], w}
		sum += w
	}
	coef := -1 / sum
	for i := range out {
		out[i][3] *= coef
	}
	return out
}

// DefaultSSAOUniform returns the uniform every SSAO template starts from.
func DefaultSSAOUniform() SSAOUniform {
	return SSAOUniform{
		ViewProjection: common.Identity4(),
		SampleVectors:  SSAOSampleVectors(1),
		Radius:         0.5,
		Bias:           0.0005,
		SamplesCount:   MaxSSAOSamples,
	}
}

// NewSSAO builds the screen-space ambient occlusion effect.
func NewSSAO(r renderer.Renderer) (*Template, error) {
	return NewEffect(r, EffectConfig[SSAOUniform]{
		Kind:    SSAOKind,
		Name:    SSAOName,
		Outputs: []BufferInfo{{Format: renderer.FormatR8Unorm, Link: link.Get(link.SingleOutput)}},
		Inputs: []InputInfo{
			{Link: link.Get(link.Position), Format: renderer.FormatRGBA16Float},
			{Link: link.Get(link.Normal), Format: renderer.FormatRGBA16Float},
			{Link: link.Get(link.Depth), Format: renderer.FormatDepth32Float},
		},
		Source:  ssaoSource,
		Uniform: DefaultSSAOUniform(),
		Update: func(u *SSAOUniform, view scene.View) {
			u.ViewProjection = view.Camera().ViewProjectionMatrix()
		},
	})
}
