package main

import (
	"math"
	"math/rand/v2"
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

const (
	demoSpacing     = 3.0
	demoOrbitSpeed  = 0.2 // radians per second
	demoSpeedStep   = 0.1
	demoCameraLift  = 0.6
	demoRadiusScale = 1.2
)

// demo is a grid of cubes over a floor plane, lit by one sun, with an orbiting camera.
type demo struct {
	view   scene.View
	camera scene.Camera
	radius float32
	angle  float64
	speed  atomic.Uint64 // float64 bits; written by the window thread
}

func newDemo(buffers *renderer.BufferManager, cubes int, aspect float32) (*demo, error) {
	cube, err := scene.NewCubeMesh(buffers)
	if err != nil {
		return nil, err
	}
	side := int(math.Ceil(math.Sqrt(float64(cubes))))
	extent := float32(side) * demoSpacing
	floor, err := scene.NewPlaneMesh(buffers, extent)
	if err != nil {
		return nil, err
	}

	objects := make([]*scene.Object, 0, cubes+1)
	ground := scene.NewObject(floor, scene.Material{Albedo: [4]float32{0.6, 0.6, 0.6, 1}, Roughness: 0.9}, common.Identity4())
	ground.CastsShadows = false
	objects = append(objects, ground)

	offset := (extent - demoSpacing) / 2
	for i := range cubes {
		x := float32(i%side)*demoSpacing - offset
		z := float32(i/side)*demoSpacing - offset
		mat := scene.Material{
			Albedo:    [4]float32{rand.Float32(), rand.Float32(), rand.Float32(), 1},
			Metallic:  rand.Float32(),
			Roughness: 0.2 + 0.8*rand.Float32(),
		}
		objects = append(objects, scene.NewObject(cube, mat, common.Translation(common.Vec3{x, 1, z})))
	}

	radius := max(extent*demoRadiusScale, 6)
	cam := scene.NewCamera(
		scene.WithAspect(aspect),
		scene.WithClipPlanes(0.1, radius*4),
	)
	d := &demo{camera: cam, radius: radius}
	d.speed.Store(math.Float64bits(demoOrbitSpeed))
	d.place()

	sun := scene.NewDirectionalLight(common.Vec3{-0.4, -1, -0.3}, common.Vec3{1, 0.95, 0.9}, 3)
	d.view = scene.NewStaticView(cam, objects, []scene.DirectionalLight{sun})
	return d, nil
}

// tick orbits the camera around the grid.
func (d *demo) tick(dt float32) {
	speed := math.Float64frombits(d.speed.Load())
	d.angle = math.Mod(d.angle+speed*float64(dt), 2*math.Pi)
	d.place()
}

// keyDown changes the orbit speed with the arrow keys.
func (d *demo) keyDown(key uint32) {
	var delta float64
	switch glfw.Key(key) {
	case glfw.KeyRight:
		delta = demoSpeedStep
	case glfw.KeyLeft:
		delta = -demoSpeedStep
	default:
		return
	}
	speed := math.Float64frombits(d.speed.Load()) + delta
	d.speed.Store(math.Float64bits(speed))
}

func (d *demo) place() {
	s, c := math.Sincos(d.angle)
	eye := common.Vec3{
		d.radius * float32(c),
		d.radius * demoCameraLift,
		d.radius * float32(s),
	}
	d.camera.SetPose(eye, common.Vec3{})
}
