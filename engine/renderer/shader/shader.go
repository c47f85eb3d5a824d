// Package shader reflects WGSL programs: entry points, resource bindings and uniform sizes.
// Backends use the reflection to build binding layouts; nothing here depends on a GPU API.
package shader

import (
	"fmt"
	"slices"
)

// BindingKind classifies a resource declaration.
type BindingKind int

const (
	BindingUnknown BindingKind = iota
	// BindingUniform is a var<uniform> buffer.
	BindingUniform
	// BindingTexture is a float sampled texture.
	BindingTexture
	// BindingUintTexture is an unsigned integer texture.
	BindingUintTexture
	// BindingDepthTexture is a depth texture.
	BindingDepthTexture
	// BindingSampler is a filtering sampler.
	BindingSampler
	// BindingComparisonSampler is a depth comparison sampler.
	BindingComparisonSampler
)

func (k BindingKind) String() string {
	switch k {
	case BindingUniform:
		return "uniform"
	case BindingTexture:
		return "texture"
	case BindingUintTexture:
		return "uint texture"
	case BindingDepthTexture:
		return "depth texture"
	case BindingSampler:
		return "sampler"
	case BindingComparisonSampler:
		return "comparison sampler"
	}
	return "unknown"
}

// IsTexture reports whether k is any texture kind.
func (k BindingKind) IsTexture() bool {
	return k == BindingTexture || k == BindingUintTexture || k == BindingDepthTexture
}

// IsSampler reports whether k is any sampler kind.
func (k BindingKind) IsSampler() bool {
	return k == BindingSampler || k == BindingComparisonSampler
}

// Binding is one @group/@binding declaration.
type Binding struct {
	Group   int
	Binding int
	Kind    BindingKind
	Name    string
	Type    string
	// Size is the host-shareable size of a uniform's type, or 0 if it could not be resolved.
	Size uint64
}

// shader is the implementation of the Shader interface.
type shader struct {
	key      string
	source   string
	vertex   string
	fragment string
	bindings []Binding
}

// Shader is a reflected WGSL program with one vertex and at most one fragment entry point.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the specialised WGSL source.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// VertexEntry returns the name of the @vertex function.
	//
	// Returns:
	//   - string: the entry point name
	VertexEntry() string

	// FragmentEntry returns the name of the @fragment function, or "" for depth-only programs.
	//
	// Returns:
	//   - string: the entry point name
	FragmentEntry() string

	// Groups returns the distinct bind group indices in ascending order.
	//
	// Returns:
	//   - []int: the group indices
	Groups() []int

	// Bindings returns the declarations of one group in binding order.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - []Binding: the group's bindings, nil if the group is not declared
	Bindings(group int) []Binding
}

var _ Shader = &shader{}

// NewShader specialises and reflects WGSL source.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - source: the raw WGSL source, possibly containing ${NAME} placeholders
//   - constants: placeholder values; every placeholder in source must have one
//
// Returns:
//   - Shader: the reflected shader
//   - error: an error if a placeholder is unresolved, no vertex entry exists or a binding cannot be classified
func NewShader(key, source string, constants map[string]string) (Shader, error) {
	specialised, err := NewPreProcessor(constants).Process(source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}

	cleaned := stripComments(specialised)
	s := &shader{key: key, source: specialised}

	m := vertexEntryRegex.FindStringSubmatch(cleaned)
	if m == nil {
		return nil, fmt.Errorf("shader %s: no @vertex entry point", key)
	}
	s.vertex = m[1]
	if m := fragmentEntryRegex.FindStringSubmatch(cleaned); m != nil {
		s.fragment = m[1]
	}

	s.bindings = parseBindings(cleaned, structLayouts(parseStructs(cleaned)))
	for _, b := range s.bindings {
		if b.Kind == BindingUnknown {
			return nil, fmt.Errorf("shader %s: unsupported resource %s: %s at group %d binding %d", key, b.Name, b.Type, b.Group, b.Binding)
		}
	}
	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) VertexEntry() string {
	return s.vertex
}

func (s *shader) FragmentEntry() string {
	return s.fragment
}

func (s *shader) Groups() []int {
	var groups []int
	for _, b := range s.bindings {
		if !slices.Contains(groups, b.Group) {
			groups = append(groups, b.Group)
		}
	}
	return groups
}

func (s *shader) Bindings(group int) []Binding {
	var out []Binding
	for _, b := range s.bindings {
		if b.Group == group {
			out = append(out, b)
		}
	}
	return out
}
