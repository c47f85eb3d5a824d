package node

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

// ObjectSlotSize is the per-object stride in a kernel's object buffer, one dynamic offset
// per object.
const ObjectSlotSize = renderer.UniformAlignment

// objectDataSize is the WGSL ObjectData block: model matrix, albedo and material params.
const objectDataSize = 96

// DefaultObjectCapacity is the number of objects each kernel can draw per frame.
const DefaultObjectCapacity = 256

// kernelData is the render data one recording kernel owns inside a mesh pass.
type kernelData struct {
	objects *renderer.DynamicBuffer
	sets    []*renderer.DescriptorSet
	drawn   []int
}

// meshPass draws the view's objects split across kernels: kernel k draws every object whose
// index is k modulo the kernel count. Group 0 holds the pass globals, group 1 the
// per-object block addressed with a dynamic offset.
type meshPass struct {
	shared   *Shared
	name     string
	capacity int
	// filter selects the objects the pass draws.
	filter func(*scene.Object) bool
	// globalsSize is the byte size of the group 0 block the embedding pass stages.
	globalsSize uint64

	globalsBuf *renderer.DynamicBuffer
	globalSets []*renderer.DescriptorSet
	kernels    []*kernelData
}

func (p *meshPass) Shared() *Shared { return p.shared }

// clone allocates the render data of a new instance into c, which already carries the
// shared fields.
func (p *meshPass) clone(r renderer.Renderer, c *meshPass) error {
	frames := r.FramesCount()

	var err error
	c.globalsBuf, err = r.Buffers().CreateDynamic(p.name+" globals", p.globalsSize, renderer.StageSecondary)
	if err != nil {
		return err
	}
	c.globalSets = make([]*renderer.DescriptorSet, frames)
	for f := range frames {
		c.globalSets[f], err = r.Descriptors().Create(renderer.DescriptorSetDescriptor{
			Label:    fmt.Sprintf("%s globals %d", p.name, f),
			Pipeline: p.shared.Pipeline,
			Group:    0,
			Buffers:  []renderer.BufferRange{c.globalsBuf.Range(f)},
		})
		if err != nil {
			c.release(r)
			return err
		}
	}

	c.kernels = make([]*kernelData, r.KernelsCount())
	for k := range c.kernels {
		kd := &kernelData{sets: make([]*renderer.DescriptorSet, frames), drawn: make([]int, frames)}
		c.kernels[k] = kd
		kd.objects, err = r.Buffers().CreateDynamic(fmt.Sprintf("%s objects %d", p.name, k), uint64(p.capacity*ObjectSlotSize), renderer.StageSecondary)
		if err != nil {
			c.release(r)
			return err
		}
		for f := range frames {
			rng := kd.objects.Range(f)
			rng.Size = ObjectSlotSize
			kd.sets[f], err = r.Descriptors().Create(renderer.DescriptorSetDescriptor{
				Label:    fmt.Sprintf("%s objects %d frame %d", p.name, k, f),
				Pipeline: p.shared.Pipeline,
				Group:    1,
				Buffers:  []renderer.BufferRange{rng},
			})
			if err != nil {
				c.release(r)
				return err
			}
		}
	}
	return nil
}

// Mesh passes read no inputs.
func (p *meshPass) BindInput(int, *renderer.Texture) {}

func (p *meshPass) Record(kernel, frame int, view scene.View, cmd *renderer.CommandBuffer) error {
	kd := p.kernels[kernel]
	stride := len(p.kernels)

	var mine []*scene.Object
	for i, obj := range view.Objects() {
		if i%stride == kernel && p.filter(obj) {
			mine = append(mine, obj)
		}
	}
	kd.drawn[frame] = len(mine)
	if len(mine) == 0 {
		return nil
	}
	if len(mine) > p.capacity {
		return fmt.Errorf("%s kernel %d has %d objects, capacity %d: %w", p.name, kernel, len(mine), p.capacity, renderer.ErrOutOfMemory)
	}

	w := common.NewByteWriter(len(mine) * ObjectSlotSize)
	for _, obj := range mine {
		m := obj.Material
		w.Mat4(obj.Transform).
			Vec4(m.Albedo).
			Vec4([4]float32{m.Metallic, m.Roughness, 0, 0}).
			Skip(ObjectSlotSize - objectDataSize)
	}
	kd.objects.Update(frame, w.Bytes())

	cmd.BindPipeline(p.shared.Pipeline)
	cmd.BindDescriptorSet(p.globalSets[frame])
	for j, obj := range mine {
		cmd.BindDescriptorSet(kd.sets[frame], uint32(j*ObjectSlotSize))
		cmd.DrawMesh(obj.Mesh, 1)
	}
	return nil
}

// Drawn returns the number of objects kernel drew in its last recording of frame.
func (p *meshPass) Drawn(kernel, frame int) int {
	return p.kernels[kernel].drawn[frame]
}

func (p *meshPass) Release(r renderer.Renderer) {
	p.release(r)
}

func (p *meshPass) release(r renderer.Renderer) {
	r.Descriptors().Release(p.globalSets...)
	if p.globalsBuf != nil {
		r.Buffers().Free(p.globalsBuf)
	}
	for _, kd := range p.kernels {
		if kd == nil {
			continue
		}
		r.Descriptors().Release(kd.sets...)
		if kd.objects != nil {
			r.Buffers().Free(kd.objects)
		}
	}
}

// newMeshPipeline compiles the mesh pipeline of a pass.
func newMeshPipeline(r renderer.Renderer, name, source string, shared *Shared, outputs []BufferInfo) (*renderer.Pipeline, error) {
	return r.Pipelines().Get(pipelineKey(name, outputs, nil), renderer.PipelineDescriptor{
		Label:     name,
		Source:    source,
		Pass:      shared.RenderPass,
		Vertex:    renderer.VertexInputMesh,
		Cull:      renderer.CullBack,
		DepthTest: true,
	})
}
