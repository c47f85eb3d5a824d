package scene

import (
	"math"

	"github.com/Carmen-Shannon/oxy-graph/common"
)

// DefaultShadowSplitLambda blends logarithmic (1) and uniform (0) cascade splits.
const DefaultShadowSplitLambda float32 = 0.75

// DirectionalLight is a light with no position, only a direction. It lights every
// fragment uniformly and casts cascaded shadows.
type DirectionalLight struct {
	// Direction points from the light toward the scene.
	Direction common.Vec3
	Color     common.Vec3
	Intensity float32
}

// NewDirectionalLight creates a directional light with a normalized direction.
//
// Parameters:
//   - direction: direction the light travels
//   - color: linear RGB color
//   - intensity: scalar multiplier
//
// Returns:
//   - DirectionalLight: the light
func NewDirectionalLight(direction, color common.Vec3, intensity float32) DirectionalLight {
	return DirectionalLight{Direction: direction.Normalize(), Color: color, Intensity: intensity}
}

// CascadeSplits returns cascades+1 view distances partitioning [near, far] of cam.
// The first value is near and the last is far.
//
// Parameters:
//   - cam: the viewing camera
//   - cascades: number of cascades, at least 1
//
// Returns:
//   - []float32: split distances in ascending order
func CascadeSplits(cam Camera, cascades int) []float32 {
	near, far := cam.Near(), cam.Far()
	splits := make([]float32, cascades+1)
	for i := range splits {
		p := float32(i) / float32(cascades)
		logSplit := near * float32(math.Pow(float64(far/near), float64(p)))
		uniSplit := near + (far-near)*p
		splits[i] = DefaultShadowSplitLambda*logSplit + (1-DefaultShadowSplitLambda)*uniSplit
	}
	splits[0], splits[cascades] = near, far
	return splits
}

// CascadeViewProjection returns the light-space matrix of one cascade. The cascade
// covers a bounding sphere of the camera frustum slice [splits[cascade], splits[cascade+1]].
//
// Parameters:
//   - cam: the viewing camera
//   - splits: distances from CascadeSplits
//   - cascade: the cascade index
//
// Returns:
//   - common.Mat4: projection * view of the light for this cascade
func (l DirectionalLight) CascadeViewProjection(cam Camera, splits []float32, cascade int) common.Mat4 {
	near, far := splits[cascade], splits[cascade+1]
	eye := cam.Position()
	forward := cam.Target().Sub(eye).Normalize()

	tanHalf := float32(math.Tan(float64(cam.Fov()) / 2))
	halfHeight := far * tanHalf
	halfWidth := halfHeight * cam.Aspect()
	halfDepth := (far - near) / 2
	radius := common.Vec3{halfWidth, halfHeight, halfDepth}.Length()

	center := eye.Add(forward.Scale(near + halfDepth))
	up := common.Vec3{0, 1, 0}
	if math.Abs(float64(l.Direction[1])) > 0.99 {
		up = common.Vec3{0, 0, 1}
	}
	view := common.LookAt(center.Sub(l.Direction.Scale(2*radius)), center, up)
	proj := common.Orthographic(-radius, radius, -radius, radius, 0, 4*radius)
	return proj.Mul(view)
}
