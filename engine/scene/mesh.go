package scene

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
)

// Vertex is one interleaved mesh vertex, renderer.MeshVertexStride bytes on the GPU.
type Vertex struct {
	Position common.Vec3
	Normal   common.Vec3
	UV       [2]float32
}

// NewMesh uploads vertices and indices into static buffers.
//
// Parameters:
//   - buffers: the buffer manager that owns the memory
//   - label: debug label for both buffers
//   - vertices: the vertex list
//   - indices: triangle list indices into vertices
//
// Returns:
//   - *renderer.Mesh: the uploaded mesh
//   - error: renderer.ErrOutOfMemory or a backend error
func NewMesh(buffers *renderer.BufferManager, label string, vertices []Vertex, indices []uint32) (*renderer.Mesh, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return nil, fmt.Errorf("scene: mesh %q is empty", label)
	}
	vw := common.NewByteWriter(len(vertices) * renderer.MeshVertexStride)
	for _, v := range vertices {
		vw.Float32(v.Position[0]).Float32(v.Position[1]).Float32(v.Position[2])
		vw.Float32(v.Normal[0]).Float32(v.Normal[1]).Float32(v.Normal[2])
		vw.Float32(v.UV[0]).Float32(v.UV[1])
	}
	iw := common.NewByteWriter(len(indices) * 4)
	for _, i := range indices {
		iw.Uint32(i)
	}

	vb, err := buffers.CreateStatic(label+" Vertices", renderer.BufferUsageVertex|renderer.BufferUsageCopyDst, vw.Bytes())
	if err != nil {
		return nil, err
	}
	ib, err := buffers.CreateStatic(label+" Indices", renderer.BufferUsageIndex|renderer.BufferUsageCopyDst, iw.Bytes())
	if err != nil {
		return nil, err
	}
	return &renderer.Mesh{Vertices: vb, Indices: ib, IndexCount: uint32(len(indices))}, nil
}

// CubeGeometry returns a unit cube centred on the origin with per-face normals.
func CubeGeometry() ([]Vertex, []uint32) {
	faces := []struct{ normal, u, v common.Vec3 }{
		{common.Vec3{0, 0, 1}, common.Vec3{1, 0, 0}, common.Vec3{0, 1, 0}},
		{common.Vec3{0, 0, -1}, common.Vec3{-1, 0, 0}, common.Vec3{0, 1, 0}},
		{common.Vec3{1, 0, 0}, common.Vec3{0, 0, -1}, common.Vec3{0, 1, 0}},
		{common.Vec3{-1, 0, 0}, common.Vec3{0, 0, 1}, common.Vec3{0, 1, 0}},
		{common.Vec3{0, 1, 0}, common.Vec3{1, 0, 0}, common.Vec3{0, 0, -1}},
		{common.Vec3{0, -1, 0}, common.Vec3{1, 0, 0}, common.Vec3{0, 0, 1}},
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	vertices := make([]Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range faces {
		base := uint32(len(vertices))
		for _, c := range corners {
			p := f.normal.Scale(0.5).Add(f.u.Scale(c[0] * 0.5)).Add(f.v.Scale(c[1] * 0.5))
			vertices = append(vertices, Vertex{Position: p, Normal: f.normal, UV: [2]float32{(c[0] + 1) / 2, (1 - c[1]) / 2}})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}

// PlaneGeometry returns a square on the XZ plane facing +Y with the given half size.
func PlaneGeometry(halfSize float32) ([]Vertex, []uint32) {
	up := common.Vec3{0, 1, 0}
	vertices := []Vertex{
		{Position: common.Vec3{-halfSize, 0, halfSize}, Normal: up, UV: [2]float32{0, 1}},
		{Position: common.Vec3{halfSize, 0, halfSize}, Normal: up, UV: [2]float32{1, 1}},
		{Position: common.Vec3{halfSize, 0, -halfSize}, Normal: up, UV: [2]float32{1, 0}},
		{Position: common.Vec3{-halfSize, 0, -halfSize}, Normal: up, UV: [2]float32{0, 0}},
	}
	return vertices, []uint32{0, 1, 2, 0, 2, 3}
}

// NewCubeMesh uploads CubeGeometry.
func NewCubeMesh(buffers *renderer.BufferManager) (*renderer.Mesh, error) {
	v, i := CubeGeometry()
	return NewMesh(buffers, "Cube", v, i)
}

// NewPlaneMesh uploads PlaneGeometry.
func NewPlaneMesh(buffers *renderer.BufferManager, halfSize float32) (*renderer.Mesh, error) {
	v, i := PlaneGeometry(halfSize)
	return NewMesh(buffers, "Plane", v, i)
}
