package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// fieldRegex matches a struct field: optional attributes, name, colon, type
	fieldRegex = regexp.MustCompile(`(?:@\w+\([^)]*\)\s*)*(\w+)\s*:\s*(.+)`)

	// vertexEntryRegex matches @vertex functions and captures the entry point name
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\s+fn\s+(\w+)`)

	// fragmentEntryRegex matches @fragment functions and captures the entry point name
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\s+fn\s+(\w+)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name and type
	// from declarations like: @group(0) @binding(0) var<uniform> params: Params;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// typeLayout is the byte size and alignment of a WGSL type.
type typeLayout struct {
	size  uint64
	align uint64
}

// primitiveLayouts covers the host-shareable types used by uniform structs.
var primitiveLayouts = map[string]typeLayout{
	"f32":         {4, 4},
	"i32":         {4, 4},
	"u32":         {4, 4},
	"vec2<f32>":   {8, 8},
	"vec2f":       {8, 8},
	"vec2<u32>":   {8, 8},
	"vec2u":       {8, 8},
	"vec3<f32>":   {12, 16},
	"vec3f":       {12, 16},
	"vec4<f32>":   {16, 16},
	"vec4f":       {16, 16},
	"vec4<u32>":   {16, 16},
	"vec4u":       {16, 16},
	"mat3x3<f32>": {48, 16},
	"mat3x3f":     {48, 16},
	"mat4x4<f32>": {64, 16},
	"mat4x4f":     {64, 16},
}

type parsedStruct struct {
	name   string
	fields []string
}

func roundUp(alignment, value uint64) uint64 {
	return (value + alignment - 1) &^ (alignment - 1)
}

// resolveLayout resolves primitives, known structs and fixed-size arrays.
func resolveLayout(typeName string, known map[string]typeLayout) (typeLayout, bool) {
	if l, ok := primitiveLayouts[typeName]; ok {
		return l, true
	}
	if l, ok := known[typeName]; ok {
		return l, true
	}
	inner, ok := strings.CutPrefix(typeName, "array<")
	if !ok {
		return typeLayout{}, false
	}
	elem, count, ok := strings.Cut(strings.TrimSuffix(inner, ">"), ",")
	if !ok {
		return typeLayout{}, false
	}
	el, ok := resolveLayout(strings.TrimSpace(elem), known)
	if !ok {
		return typeLayout{}, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(count), 10, 64)
	if err != nil {
		return typeLayout{}, false
	}
	// uniform address space rounds array strides up to 16
	stride := roundUp(max(el.align, 16), el.size)
	return typeLayout{n * stride, max(el.align, 16)}, true
}

// structLayouts computes the layout of every struct, iterating until nested structs resolve.
func structLayouts(structs []parsedStruct) map[string]typeLayout {
	known := make(map[string]typeLayout, len(structs))
	for progress := true; progress; {
		progress = false
		for _, ps := range structs {
			if _, done := known[ps.name]; done {
				continue
			}
			if l, ok := structLayout(ps, known); ok {
				known[ps.name] = l
				progress = true
			}
		}
	}
	return known
}

func structLayout(ps parsedStruct, known map[string]typeLayout) (typeLayout, bool) {
	var offset uint64
	align := uint64(1)
	for _, t := range ps.fields {
		fl, ok := resolveLayout(t, known)
		if !ok {
			return typeLayout{}, false
		}
		offset = roundUp(fl.align, offset) + fl.size
		align = max(align, fl.align)
	}
	return typeLayout{roundUp(align, offset), align}, true
}

func parseStructs(source string) []parsedStruct {
	var out []parsedStruct
	for _, m := range structBlockRegex.FindAllStringSubmatch(source, -1) {
		ps := parsedStruct{name: m[1]}
		for _, field := range splitAtTopLevelCommas(m[2]) {
			if fm := fieldRegex.FindStringSubmatch(strings.TrimSpace(field)); fm != nil {
				ps.fields = append(ps.fields, strings.TrimSpace(fm[2]))
			}
		}
		out = append(out, ps)
	}
	return out
}

// parseBindings extracts every resource declaration, sorted by group then binding.
func parseBindings(source string, layouts map[string]typeLayout) []Binding {
	var out []Binding
	for _, m := range bindGroupDeclRegex.FindAllStringSubmatch(source, -1) {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		b := Binding{
			Group:   group,
			Binding: binding,
			Name:    m[4],
			Type:    strings.TrimSpace(m[5]),
			Kind:    classifyResource(strings.TrimSpace(m[3]), strings.TrimSpace(m[5])),
		}
		if b.Kind == BindingUniform {
			if l, ok := resolveLayout(b.Type, layouts); ok {
				b.Size = l.size
			}
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Binding < out[j].Binding
	})
	return out
}

// classifyResource maps an address space and type to a BindingKind.
func classifyResource(addressSpace, typeName string) BindingKind {
	if addressSpace != "" {
		if addressSpace == "uniform" {
			return BindingUniform
		}
		return BindingUnknown
	}
	switch {
	case typeName == "sampler":
		return BindingSampler
	case typeName == "sampler_comparison":
		return BindingComparisonSampler
	case strings.HasPrefix(typeName, "texture_depth_"):
		return BindingDepthTexture
	case strings.HasPrefix(typeName, "texture_"):
		_, param := splitTypeParams(typeName)
		switch param {
		case "u32":
			return BindingUintTexture
		case "f32":
			return BindingTexture
		}
	}
	return BindingUnknown
}

// splitTypeParams splits "texture_2d<f32>" into ("texture_2d", "f32").
func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return before, strings.TrimSpace(strings.TrimSuffix(after, ">"))
}

// splitAtTopLevelCommas splits on commas that are not nested inside angle brackets.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// stripComments removes line comments and (nested) block comments.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			switch {
			case source[i] == '/' && source[i+1] == '*':
				depth++
				i++
				continue
			case source[i] == '*' && source[i+1] == '/' && depth > 0:
				depth--
				i++
				continue
			case depth == 0 && source[i] == '/' && source[i+1] == '/':
				for i < len(source) && source[i] != '\n' {
					i++
				}
				if i < len(source) {
					sb.WriteByte('\n')
				}
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}
