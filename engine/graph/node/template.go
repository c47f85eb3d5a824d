package node

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
)

// Input declares one input link of a template.
type Input struct {
	Link link.Link
	// Optional inputs may stay unbound; passes bind a default texture in their place.
	Optional bool
}

// Template is the immutable description of a node kind plus its prototype pass. Whoever
// builds a template owns it; managers and instances only reference it.
type Template struct {
	kind     KindID
	name     string
	inputs   link.Set
	optional []bool
	outputs  link.Set
	pass     Pass
}

// NewTemplate builds a template. It panics when the output count does not match the
// pass's shared outputs.
//
// Parameters:
//   - kind: the node kind
//   - name: the display name
//   - inputs: the ordered inputs
//   - outputs: the ordered output links
//   - pass: the prototype pass holding the shared data
//
// Returns:
//   - *Template: the template
func NewTemplate(kind KindID, name string, inputs []Input, outputs []link.Link, pass Pass) *Template {
	if pass == nil {
		common.Fatalf("node: template %q has no pass", name)
	}
	if len(outputs) != len(pass.Shared().Outputs) {
		common.Fatalf("node: template %q declares %d outputs, pass produces %d", name, len(outputs), len(pass.Shared().Outputs))
	}
	links := make([]link.Link, len(inputs))
	optional := make([]bool, len(inputs))
	for i, in := range inputs {
		links[i] = in.Link
		optional[i] = in.Optional
	}
	return &Template{
		kind:     kind,
		name:     name,
		inputs:   link.NewSet(links...),
		optional: optional,
		outputs:  link.NewSet(outputs...),
		pass:     pass,
	}
}

func (t *Template) Kind() KindID { return t.kind }

func (t *Template) Name() string { return t.name }

func (t *Template) Inputs() link.Set { return t.inputs }

func (t *Template) Outputs() link.Set { return t.outputs }

// Optional reports whether input index may stay unbound.
func (t *Template) Optional(index int) bool { return t.optional[index] }

// Shared returns the shared data every instance points at.
func (t *Template) Shared() *Shared { return t.pass.Shared() }

// Instantiate creates a live instance from the prototype pass.
//
// Parameters:
//   - r: the renderer the instance is bound to
//
// Returns:
//   - *Instance: the instance
//   - error: a backend or allocation error
func (t *Template) Instantiate(r renderer.Renderer) (*Instance, error) {
	pass, err := t.pass.Clone(r)
	if err != nil {
		return nil, err
	}
	return newInstance(t, r, pass), nil
}
