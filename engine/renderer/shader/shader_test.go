package shader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSource = `
struct Light {
    direction: vec4<f32>,
    color: vec4<f32>,
}

struct Params {
    view_projection: mat4x4<f32>,
    lights: array<Light, ${LIGHTS}>,
    step: vec2<f32>,
    count: u32,
}

// @group(9) @binding(9) var<uniform> commented: Params;
@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var position_map: texture_2d<f32>;
@group(0) @binding(2) var shadow_bits: texture_2d<u32>;
@group(0) @binding(3) var depth_map: texture_depth_2d;
@group(0) @binding(4) var linear: sampler;
@group(1) @binding(0) var<uniform> object: mat4x4<f32>;

@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0);
}

/* @fragment fn not_this_one() {} */
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0);
}
`

func TestNewShaderReflectsBindings(t *testing.T) {
	s, err := NewShader("test", testSource, map[string]string{"LIGHTS": "4"})
	require.NoError(t, err)

	assert.Equal(t, "vs_main", s.VertexEntry())
	assert.Equal(t, "fs_main", s.FragmentEntry())
	assert.Equal(t, []int{0, 1}, s.Groups())
	assert.Contains(t, s.Source(), "array<Light, 4>")

	g0 := s.Bindings(0)
	require.Len(t, g0, 5)
	kinds := make([]BindingKind, len(g0))
	for i, b := range g0 {
		kinds[i] = b.Kind
	}
	assert.Equal(t, []BindingKind{BindingUniform, BindingTexture, BindingUintTexture, BindingDepthTexture, BindingSampler}, kinds)

	// 64 (matrix) + 4*32 (lights) + 8 (step) + 4 (count), rounded to 16.
	assert.Equal(t, uint64(208), g0[0].Size)
	assert.Equal(t, uint64(64), s.Bindings(1)[0].Size)
	assert.Nil(t, s.Bindings(9))
}

func TestNewShaderErrors(t *testing.T) {
	_, err := NewShader("missing", testSource, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIGHTS")

	_, err = NewShader("no vertex", `@fragment fn fs_main() {}`, nil)
	assert.ErrorContains(t, err, "@vertex")

	_, err = NewShader("storage", `
@group(0) @binding(0) var<storage, read> data: array<u32>;
@vertex fn vs_main() {}
`, nil)
	assert.ErrorContains(t, err, "unsupported resource")
}

func TestDepthOnlyShader(t *testing.T) {
	s, err := NewShader("depth", `@vertex fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }`, nil)
	require.NoError(t, err)
	assert.Empty(t, s.FragmentEntry())
	assert.Empty(t, s.Groups())
}

func TestPreProcessorReportsEachMissingNameOnce(t *testing.T) {
	_, err := NewPreProcessor(map[string]string{"A": "1"}).Process("${A} ${B} ${B} ${C}")
	require.Error(t, err)
	assert.Equal(t, "unresolved placeholders: B, C", err.Error())

	out, err := NewPreProcessor(map[string]string{"A": "1"}).Process("x = ${A};")
	require.NoError(t, err)
	assert.Equal(t, "x = 1;", out)
}
