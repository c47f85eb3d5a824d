package scene

import "slices"

// View is the read-only snapshot of a scene that render passes record from.
// Implementations must be safe for concurrent reads from every recording kernel.
type View interface {
	// Camera returns the viewing camera.
	//
	// Returns:
	//   - Camera: the camera
	Camera() Camera

	// Objects returns the visible objects. Callers must not modify the slice.
	//
	// Returns:
	//   - []*Object: the objects to draw
	Objects() []*Object

	// Lights returns the directional lights.
	//
	// Returns:
	//   - []DirectionalLight: the lights
	Lights() []DirectionalLight
}

type staticView struct {
	camera  Camera
	objects []*Object
	lights  []DirectionalLight
}

var _ View = &staticView{}

// NewStaticView builds a View over fixed object and light lists. The slices are copied.
//
// Parameters:
//   - camera: the viewing camera
//   - objects: the objects to draw
//   - lights: the directional lights
//
// Returns:
//   - View: the view
func NewStaticView(camera Camera, objects []*Object, lights []DirectionalLight) View {
	if camera == nil {
		panic("scene: NewStaticView requires a camera")
	}
	return &staticView{
		camera:  camera,
		objects: slices.Clone(objects),
		lights:  slices.Clone(lights),
	}
}

func (v *staticView) Camera() Camera { return v.camera }

func (v *staticView) Objects() []*Object { return v.objects }

func (v *staticView) Lights() []DirectionalLight { return v.lights }
