package scene

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
)

// Material holds the PBR parameters of an object.
type Material struct {
	Albedo    [4]float32
	Metallic  float32
	Roughness float32
}

// DefaultMaterial is a white dielectric.
var DefaultMaterial = Material{Albedo: [4]float32{1, 1, 1, 1}, Metallic: 0, Roughness: 0.5}

// Object is a drawable entity: a mesh placed in the world with a material.
type Object struct {
	ID           uint64
	Transform    common.Mat4
	Mesh         *renderer.Mesh
	Material     Material
	CastsShadows bool
}

// NewObject creates a shadow-casting object with a fresh id.
//
// Parameters:
//   - mesh: the GPU mesh to draw
//   - material: surface parameters
//   - transform: model-to-world matrix
//
// Returns:
//   - *Object: the object
func NewObject(mesh *renderer.Mesh, material Material, transform common.Mat4) *Object {
	if mesh == nil {
		panic("scene: NewObject requires a mesh")
	}
	return &Object{
		ID:           common.NextID(),
		Transform:    transform,
		Mesh:         mesh,
		Material:     material,
		CastsShadows: true,
	}
}
