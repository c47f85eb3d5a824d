package engine

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/config"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.New(
		config.WithFramesInFlight(2),
		config.WithKernels(2),
		config.WithViewport(64, 32),
		config.WithShadows(2, 2),
		config.WithEffects(true, true),
	)
	require.NoError(t, err)
	cfg.ShadowMapAspect = 32
	cfg.BufferArenaBytes = 16 << 20
	return cfg
}

func TestHeadlessRunStopsAfterMaxFrames(t *testing.T) {
	e, err := NewEngine(testConfig(t), WithHeadless(true), WithMaxFrames(5))
	require.NoError(t, err)
	assert.Nil(t, e.Window())
	assert.NotEqual(t, uuid.Nil, e.RunID())
	assert.Equal(t, renderer.BackendTypeHeadless, e.Renderer().Backend().Type())

	mesh, err := scene.NewCubeMesh(e.Renderer().Buffers())
	require.NoError(t, err)
	e.SetView(scene.NewStaticView(scene.NewCamera(scene.WithAspect(2)),
		[]*scene.Object{scene.NewObject(mesh, scene.DefaultMaterial, common.Identity4())},
		[]scene.DirectionalLight{scene.NewDirectionalLight(common.Vec3{0, -1, 0}, common.Vec3{1, 1, 1}, 1)}))

	var rendered int
	e.SetRenderCallback(func(float32) { rendered++ })

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(5), e.Frames())
	assert.Equal(t, 4, rendered, "the last frame stops the loop before its callback")
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.FramesInFlight = 0
	_, err := NewEngine(cfg, WithHeadless(true))
	assert.Error(t, err)
}

func TestQuitBeforeFirstFrame(t *testing.T) {
	e, err := NewEngine(testConfig(t), WithHeadless(true))
	require.NoError(t, err)
	e.Quit()
	require.NoError(t, e.Run())
	assert.Zero(t, e.Frames())
}
