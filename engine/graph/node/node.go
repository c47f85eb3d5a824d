// Package node implements the render-graph node framework: templates holding the shared
// GPU objects of a pass, live instances holding per-frame render data, and the built-in
// passes of the deferred pipeline.
package node

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

// KindID identifies a node kind. Instances of one template share a kind.
type KindID uint32

const (
	GBufferFillerKind KindID = iota + 1
	DeferredPBRKind
	ShadowMapperKind
	ShadowAccumulatorDirectionalKind
	SSAOKind
	SSRKind
)

// UserIDStart is the first kind id available to user-defined nodes.
const UserIDStart KindID = 1024

// ErrUnknownTemplate is returned by Manager lookups that find no live template.
var ErrUnknownTemplate = errors.New("node: unknown template")

// Shared is the data every instance of a template shares by pointer. It is read-only
// once the template is built.
type Shared struct {
	Outputs     []*renderer.Texture
	RenderPass  *renderer.RenderPass
	Framebuffer *renderer.Framebuffer
	Pipeline    *renderer.Pipeline
}

// Pass is the kind-specific behavior behind an Instance. A template holds a prototype
// Pass; every instance holds its own Clone.
type Pass interface {
	// Shared returns the template's shared data.
	//
	// Returns:
	//   - *Shared: the shared data, identical for every clone
	Shared() *Shared

	// Clone creates the render data of a new instance.
	//
	// Parameters:
	//   - r: the renderer the instance is bound to
	//
	// Returns:
	//   - Pass: the new pass sharing this pass's shared data
	//   - error: a backend or allocation error
	Clone(r renderer.Renderer) (Pass, error)

	// BindInput points input index at tex and invalidates cached descriptor sets.
	//
	// Parameters:
	//   - index: the input index
	//   - tex: the provider's output texture
	BindInput(index int, tex *renderer.Texture)

	// Prepare stages per-frame uniform data. It runs on the scheduler goroutine before
	// recording starts.
	//
	// Parameters:
	//   - frame: the frame-in-flight index
	//   - view: the scene snapshot
	//
	// Returns:
	//   - error: an allocation error
	Prepare(frame int, view scene.View) error

	// Record appends this pass's commands for one kernel to cmd, an already begun
	// secondary command buffer. Each kernel is called from its own goroutine.
	//
	// Parameters:
	//   - kernel: the recording worker index
	//   - frame: the frame-in-flight index
	//   - view: the scene snapshot
	//   - cmd: the kernel's secondary command buffer
	//
	// Returns:
	//   - error: an allocation or backend error
	Record(kernel, frame int, view scene.View, cmd *renderer.CommandBuffer) error

	// Release frees the render data owned by this pass.
	//
	// Parameters:
	//   - r: the renderer the pass was cloned for
	Release(r renderer.Renderer)
}

// Node is the capability set of a live graph node. *Instance is the implementation.
type Node interface {
	// Kind returns the node kind.
	Kind() KindID

	// Name returns the template's display name.
	Name() string

	// Inputs returns the ordered input links.
	Inputs() link.Set

	// Outputs returns the ordered output links.
	Outputs() link.Set

	// CreateInstance clones this node into a new instance sharing the template's shared
	// data and owning fresh render data sized to the renderer's frames in flight.
	//
	// Parameters:
	//   - r: the renderer the instance is bound to
	//
	// Returns:
	//   - Node: the new instance
	//   - error: a backend or allocation error
	CreateInstance(r renderer.Renderer) (Node, error)

	// OutputResource returns the texture produced for output index. It panics when
	// index is out of range.
	//
	// Parameters:
	//   - index: the output index
	//
	// Returns:
	//   - *renderer.Texture: the output texture
	OutputResource(index int) *renderer.Texture

	// RegisterProvider binds input to provider's output. It panics on an unknown
	// index, a link mismatch, a self binding, or an input that is already bound.
	//
	// Parameters:
	//   - input: the input index of this node
	//   - provider: the upstream node
	//   - output: the output index of provider
	RegisterProvider(input int, provider Node, output int)

	// RegisterConsumer records a weak back-reference from output to consumer.
	//
	// Parameters:
	//   - output: the output index of this node
	//   - consumer: the downstream node
	RegisterConsumer(output int, consumer Node)

	// Provider returns the node and output bound to input, or nil.
	//
	// Parameters:
	//   - input: the input index
	//
	// Returns:
	//   - Node: the provider, or nil when unbound
	//   - int: the provider's output index
	Provider(input int) (Node, int)

	// Consumers returns the live consumers registered on output.
	//
	// Parameters:
	//   - output: the output index
	//
	// Returns:
	//   - []Node: consumers that have not been collected
	Consumers(output int) []Node

	// Prepare stages per-frame uniform data for frame.
	Prepare(frame int, view scene.View) error

	// Record records this node's work for one kernel into that kernel's secondary buffer
	// for frame. It panics when a required input is unbound.
	//
	// Parameters:
	//   - kernel: the recording worker index
	//   - frame: the frame-in-flight index
	//   - view: the scene snapshot
	//
	// Returns:
	//   - error: renderer.ErrCommandBufferInFlight or a pass error
	Record(kernel, frame int, view scene.View) error

	// Submit assembles the frame's secondaries into the node's primary buffer and submits
	// it waiting on waits and signaling Semaphore(frame).
	//
	// Parameters:
	//   - frame: the frame-in-flight index
	//   - submitter: the queue to submit to
	//   - waits: semaphores the submission waits on
	//
	// Returns:
	//   - error: a submission error
	Submit(frame int, submitter renderer.Submitter, waits []*renderer.Semaphore) error

	// Semaphore returns the semaphore this node signals for frame.
	Semaphore(frame int) *renderer.Semaphore

	// Release frees the instance's render data.
	Release()
}
