package node

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

//go:embed assets/shadow_mapper.wgsl
var shadowMapperSource string

// ShadowMapperName is the display name of shadow mappers. Each cascade gets its own template
// named ShadowMapperName followed by the cascade index.
const ShadowMapperName = "shadow-mapper"

// DefaultShadowMapSize is the edge length of a shadow map in texels.
const DefaultShadowMapSize = 2048

// ShadowMapper renders the depth of shadow-casting objects from the first directional light
// for one cascade of the camera frustum.
type ShadowMapper struct {
	meshPass

	mu       sync.Mutex
	cascade  int
	cascades int
}

var _ Pass = &ShadowMapper{}

// NewShadowMapper builds a shadow-mapper template with a square depth output.
//
// Parameters:
//   - r: the renderer
//   - index: distinguishes the template's name and output image from other cascades
//   - size: the shadow map edge in texels; DefaultShadowMapSize when zero
//   - capacity: objects each kernel can draw per frame; DefaultObjectCapacity when zero
//
// Returns:
//   - *Template: the template
//   - error: a backend error
func NewShadowMapper(r renderer.Renderer, index int, size uint32, capacity int) (*Template, error) {
	size = common.Coalesce(size, DefaultShadowMapSize)
	name := fmt.Sprintf("%s-%d", ShadowMapperName, index)
	outputs := []BufferInfo{{Width: size, Height: size, Format: renderer.FormatDepth32Float, Link: link.Get(link.SingleOutput)}}
	shared, err := buildTargets(r, name, outputs)
	if err != nil {
		return nil, err
	}
	if shared.Pipeline, err = newMeshPipeline(r, ShadowMapperName, shadowMapperSource, shared, outputs); err != nil {
		return nil, err
	}

	proto := &ShadowMapper{
		meshPass: meshPass{
			shared:      shared,
			name:        name,
			capacity:    common.Coalesce(capacity, DefaultObjectCapacity),
			filter:      func(o *scene.Object) bool { return o.CastsShadows },
			globalsSize: 64,
		},
		cascade:  min(index, link.MaxShadowMaps-1),
		cascades: 1,
	}
	return NewTemplate(ShadowMapperKind, name, nil, []link.Link{outputs[0].Link}, proto), nil
}

func (s *ShadowMapper) Clone(r renderer.Renderer) (Pass, error) {
	cascade, cascades := s.Cascade()
	c := &ShadowMapper{
		meshPass: meshPass{
			shared:      s.shared,
			name:        s.name,
			capacity:    s.capacity,
			filter:      s.filter,
			globalsSize: s.globalsSize,
		},
		cascade:  cascade,
		cascades: cascades,
	}
	if err := s.clone(r, &c.meshPass); err != nil {
		return nil, err
	}
	return c, nil
}

// SetCascade selects which of cascades frustum slices the mapper covers.
func (s *ShadowMapper) SetCascade(cascade, cascades int) {
	if cascades < 1 || cascade < 0 || cascade >= cascades {
		common.Fatalf("node: cascade %d out of range [0, %d)", cascade, cascades)
	}
	s.mu.Lock()
	s.cascade, s.cascades = cascade, cascades
	s.mu.Unlock()
}

// Cascade returns the covered cascade and the cascade count.
func (s *ShadowMapper) Cascade() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cascade, s.cascades
}

func (s *ShadowMapper) Prepare(frame int, view scene.View) error {
	cascade, cascades := s.Cascade()
	vp := common.Identity4()
	if lights := view.Lights(); len(lights) > 0 {
		cam := view.Camera()
		vp = lights[0].CascadeViewProjection(cam, scene.CascadeSplits(cam, cascades), cascade)
	}
	s.globalsBuf.Update(frame, common.NewByteWriter(64).Mat4(vp).Bytes())
	return nil
}

// SetShadowCascade configures the cascade of a shadow-mapper node. It panics when n is not
// a shadow mapper.
//
// Parameters:
//   - n: the shadow-mapper instance
//   - cascade: the covered cascade
//   - cascades: the cascade count
func SetShadowCascade(n Node, cascade, cascades int) {
	inst, ok := n.(*Instance)
	if !ok {
		common.Fatalf("node: %T is not an instance", n)
	}
	sm, ok := inst.Pass().(*ShadowMapper)
	if !ok {
		common.Fatalf("node: %s is not a shadow mapper", n.Name())
	}
	sm.SetCascade(cascade, cascades)
}
