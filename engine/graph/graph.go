// Package graph assembles render nodes into a frame graph: named attachment, link wiring by
// link name, dependency ordering and the per-frame prepare, record and submit walks.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/node"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

var (
	// ErrCycle reports a provider chain that loops back on itself.
	ErrCycle = errors.New("graph: cycle")
	// ErrDetachedProvider reports a node whose provider is not attached to the graph.
	ErrDetachedProvider = errors.New("graph: provider not attached")
	// ErrNoOutput reports a graph without an output node.
	ErrNoOutput = errors.New("graph: no output")
)

// Graph is a set of named nodes. The edges live on the nodes themselves; the graph orders
// them and drives the per-frame walks.
type Graph struct {
	mu        sync.RWMutex
	r         renderer.Renderer
	names     []string
	nodes     map[string]node.Node
	output    node.Node
	outputIdx int
	order     []node.Node

	templates *node.Manager
	// keep holds the templates built for this graph alive for the manager's weak index.
	keep []*node.Template
}

// New creates an empty graph bound to r.
//
// Parameters:
//   - r: the renderer every node was instantiated for
//
// Returns:
//   - *Graph: the graph
func New(r renderer.Renderer) *Graph {
	return &Graph{
		r:         r,
		nodes:     make(map[string]node.Node),
		templates: node.NewManager(),
	}
}

// Templates returns the manager indexing the templates the graph was built from.
func (g *Graph) Templates() *node.Manager { return g.templates }

// Own registers t with the graph's template manager and keeps it alive with the graph.
func (g *Graph) Own(t *node.Template) {
	g.mu.Lock()
	g.keep = append(g.keep, t)
	g.mu.Unlock()
	g.templates.Insert(t)
}

// Attach adds n under name. It panics when the name is taken.
func (g *Graph) Attach(name string, n node.Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[name]; ok {
		common.Fatalf("graph: node %q already attached", name)
	}
	g.nodes[name] = n
	g.names = append(g.names, name)
	g.order = nil
}

// Detach removes the node called name and returns it. Edges are left in place: consumers
// that still read from it make the next Order fail with ErrDetachedProvider.
func (g *Graph) Detach(name string) (node.Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[name]
	if !ok {
		return nil, false
	}
	delete(g.nodes, name)
	g.names = slices.DeleteFunc(g.names, func(s string) bool { return s == name })
	if g.output == n {
		g.output = nil
	}
	g.order = nil
	return n, true
}

// Node returns the node attached under name.
func (g *Graph) Node(name string) (node.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[name]
	return n, ok
}

// Len returns the number of attached nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Link binds consumer's input link to provider's output link, both named. It panics on an
// unknown node or link, or on any binding error RegisterProvider rejects.
//
// Parameters:
//   - consumer: the consuming node's name
//   - input: the input link name on consumer
//   - provider: the providing node's name
//   - output: the output link name on provider
func (g *Graph) Link(consumer, input, provider, output string) {
	c := g.mustNode(consumer)
	p := g.mustNode(provider)
	c.RegisterProvider(c.Inputs().MustIndexByName(input), p, p.Outputs().MustIndexByName(output))

	g.mu.Lock()
	g.order = nil
	g.mu.Unlock()
}

func (g *Graph) mustNode(name string) node.Node {
	n, ok := g.Node(name)
	if !ok {
		common.Fatalf("graph: no node %q", name)
	}
	return n
}

// SetOutput selects the node output that frame composition presents.
func (g *Graph) SetOutput(name, output string) {
	n := g.mustNode(name)
	idx := n.Outputs().MustIndexByName(output)
	g.mu.Lock()
	g.output, g.outputIdx = n, idx
	g.mu.Unlock()
}

// Output returns the presented node and output index.
func (g *Graph) Output() (node.Node, int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.output == nil {
		return nil, 0, ErrNoOutput
	}
	return g.output, g.outputIdx, nil
}

// OutputTexture returns the presented texture.
func (g *Graph) OutputTexture() (*renderer.Texture, error) {
	n, idx, err := g.Output()
	if err != nil {
		return nil, err
	}
	return n.OutputResource(idx), nil
}

// Order returns the attached nodes with every provider before its consumers. Nodes are
// visited in attachment order, so unrelated nodes keep the order they were attached in.
//
// Returns:
//   - []node.Node: the ordered nodes
//   - error: ErrCycle or ErrDetachedProvider
func (g *Graph) Order() ([]node.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.order != nil {
		return g.order, nil
	}

	attached := make(map[node.Node]string, len(g.nodes))
	for name, n := range g.nodes {
		attached[n] = name
	}
	permanent := make(map[node.Node]bool, len(g.nodes))
	temporary := make(map[node.Node]bool)
	order := make([]node.Node, 0, len(g.nodes))

	var visit func(n node.Node) error
	visit = func(n node.Node) error {
		if permanent[n] {
			return nil
		}
		if temporary[n] {
			return fmt.Errorf("%w through %q", ErrCycle, attached[n])
		}
		temporary[n] = true
		for i := range n.Inputs().Len() {
			p, _ := n.Provider(i)
			if p == nil {
				continue
			}
			if _, ok := attached[p]; !ok {
				return fmt.Errorf("%w: %s input %s reads from %s", ErrDetachedProvider, attached[n], n.Inputs().At(i), p.Name())
			}
			if err := visit(p); err != nil {
				return err
			}
		}
		delete(temporary, n)
		permanent[n] = true
		order = append(order, n)
		return nil
	}

	for _, name := range g.names {
		if err := visit(g.nodes[name]); err != nil {
			return nil, err
		}
	}
	g.order = order
	return order, nil
}

// Sinks returns the ordered nodes that no attached node consumes.
func (g *Graph) Sinks() ([]node.Node, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	consumed := make(map[node.Node]bool, len(order))
	for _, n := range order {
		for i := range n.Inputs().Len() {
			if p, _ := n.Provider(i); p != nil {
				consumed[p] = true
			}
		}
	}
	var sinks []node.Node
	for _, n := range order {
		if !consumed[n] {
			sinks = append(sinks, n)
		}
	}
	return sinks, nil
}

// Prepare stages every node's uniforms for frame, in order.
func (g *Graph) Prepare(frame int, view scene.View) error {
	order, err := g.Order()
	if err != nil {
		return err
	}
	for _, n := range order {
		if err := n.Prepare(frame, view); err != nil {
			return err
		}
	}
	return nil
}

// Submit submits every node for frame in order. Nodes without providers wait on rootWaits;
// every other node waits on the semaphores of its distinct providers.
//
// Parameters:
//   - frame: the frame-in-flight index
//   - submitter: the queue
//   - rootWaits: what nodes without providers wait on
//
// Returns:
//   - error: an ordering or submission error
func (g *Graph) Submit(frame int, submitter renderer.Submitter, rootWaits []*renderer.Semaphore) error {
	order, err := g.Order()
	if err != nil {
		return err
	}
	for _, n := range order {
		if err := n.Submit(frame, submitter, Waits(n, frame, rootWaits)); err != nil {
			return err
		}
	}
	return nil
}

// Waits returns the semaphores n waits on for frame: one per distinct provider, or
// rootWaits when n has none.
func Waits(n node.Node, frame int, rootWaits []*renderer.Semaphore) []*renderer.Semaphore {
	var waits []*renderer.Semaphore
	for i := range n.Inputs().Len() {
		p, _ := n.Provider(i)
		if p == nil {
			continue
		}
		if s := p.Semaphore(frame); !slices.Contains(waits, s) {
			waits = append(waits, s)
		}
	}
	if len(waits) == 0 {
		return rootWaits
	}
	return waits
}

// Release releases every attached node.
func (g *Graph) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, name := range g.names {
		g.nodes[name].Release()
	}
	g.nodes = make(map[string]node.Node)
	g.names = nil
	g.output = nil
	g.order = nil
}
