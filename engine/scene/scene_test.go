package scene

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCameraMatrices(t *testing.T) {
	cam := NewCamera(WithPose(common.Vec3{0, 0, 5}, common.Vec3{}), WithClipPlanes(1, 10))

	// The target sits 5 units straight ahead on -Z in view space.
	p := cam.ViewMatrix().MulPoint(common.Vec3{})
	assert.InDelta(t, -5, p[2], 1e-5)

	// Points on the near and far planes map to depth 0 and 1.
	near := cam.ViewProjectionMatrix().MulPoint(common.Vec3{0, 0, 4})
	far := cam.ViewProjectionMatrix().MulPoint(common.Vec3{0, 0, -5})
	assert.InDelta(t, 0, near[2], 1e-5)
	assert.InDelta(t, 1, far[2], 1e-5)

	id := cam.ProjectionMatrix().Mul(cam.InverseProjectionMatrix())
	for i, v := range common.Identity4() {
		assert.InDelta(t, v, id[i], 1e-4)
	}

	cam.SetAspect(2)
	assert.Equal(t, float32(2), cam.Aspect())
	assert.InDelta(t, cam.ProjectionMatrix()[5]/2, cam.ProjectionMatrix()[0], 1e-6)
}

func TestCascadeSplits(t *testing.T) {
	cam := NewCamera(WithClipPlanes(0.5, 50))
	splits := CascadeSplits(cam, 4)
	require.Len(t, splits, 5)
	assert.Equal(t, float32(0.5), splits[0])
	assert.Equal(t, float32(50), splits[4])
	for i := 1; i < len(splits); i++ {
		assert.Greater(t, splits[i], splits[i-1])
	}
}

func TestCascadeViewProjectionContainsSlice(t *testing.T) {
	cam := NewCamera(WithPose(common.Vec3{0, 2, 6}, common.Vec3{}), WithClipPlanes(0.1, 20))
	light := NewDirectionalLight(common.Vec3{-1, -2, -1}, common.Vec3{1, 1, 1}, 3)
	assert.InDelta(t, 1, light.Direction.Length(), 1e-6)

	splits := CascadeSplits(cam, 2)
	for c := range 2 {
		m := light.CascadeViewProjection(cam, splits, c)
		eye := cam.Position()
		forward := cam.Target().Sub(eye).Normalize()
		mid := eye.Add(forward.Scale((splits[c] + splits[c+1]) / 2))
		p := m.MulPoint(mid)
		assert.InDelta(t, 0, p[0], 1e-4)
		assert.InDelta(t, 0, p[1], 1e-4)
		assert.True(t, p[2] > 0 && p[2] < 1, "cascade %d depth %f", c, p[2])
	}
}

func TestCubeGeometry(t *testing.T) {
	vertices, indices := CubeGeometry()
	require.Len(t, vertices, 24)
	require.Len(t, indices, 36)

	// Every triangle winds counter-clockwise around its face normal.
	for i := 0; i < len(indices); i += 3 {
		a, b, c := vertices[indices[i]], vertices[indices[i+1]], vertices[indices[i+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		assert.Greater(t, n.Dot(a.Normal), float32(0))
	}
}

func TestNewMeshUploads(t *testing.T) {
	backend := renderer.NewHeadlessBackend(renderer.WithHeadlessFrames(2))
	t.Cleanup(backend.Release)
	buffers := renderer.NewBufferManager(backend, 2, 1<<16)

	mesh, err := NewPlaneMesh(buffers, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), mesh.IndexCount)
	assert.Equal(t, uint64(4*renderer.MeshVertexStride), mesh.Vertices.Size)

	data := backend.BufferContents(mesh.Vertices)
	require.Len(t, data, 4*renderer.MeshVertexStride)
	x := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	ny := math.Float32frombits(binary.LittleEndian.Uint32(data[16:20]))
	assert.Equal(t, float32(-2), x)
	assert.Equal(t, float32(1), ny)

	_, err = NewMesh(buffers, "empty", nil, nil)
	assert.Error(t, err)
}

func TestStaticViewCopiesInputs(t *testing.T) {
	mesh := &renderer.Mesh{IndexCount: 3}
	objects := []*Object{NewObject(mesh, DefaultMaterial, common.Identity4())}
	v := NewStaticView(NewCamera(), objects, nil)
	objects[0] = nil
	require.Len(t, v.Objects(), 1)
	assert.NotNil(t, v.Objects()[0])
	assert.True(t, v.Objects()[0].CastsShadows)

	assert.Panics(t, func() { NewStaticView(nil, nil, nil) })
	assert.Panics(t, func() { NewObject(nil, DefaultMaterial, common.Identity4()) })
}
