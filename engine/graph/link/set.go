package link

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-graph/common"
)

// Set is the ordered input or output link list of a node. Lookups are linear: sets hold
// a handful of links and are built once per template.
type Set struct {
	links []Link
}

// NewSet builds a Set, panicking on a duplicate id or name.
//
// Parameters:
//   - links: the links in index order
//
// Returns:
//   - Set: the set
func NewSet(links ...Link) Set {
	for i, l := range links {
		for _, prev := range links[:i] {
			if prev.ID == l.ID || prev.Name == l.Name {
				common.Fatalf("link: %s registered twice in one set (clashes with %s)", l, prev)
			}
		}
	}
	return Set{links: slices.Clone(links)}
}

// Len returns the number of links.
func (s Set) Len() int { return len(s.links) }

// At returns the link at index i.
func (s Set) At(i int) Link {
	if i < 0 || i >= len(s.links) {
		common.Fatalf("link: index %d out of range [0, %d)", i, len(s.links))
	}
	return s.links[i]
}

// Links returns a copy of the links in index order.
func (s Set) Links() []Link { return slices.Clone(s.links) }

// Index returns the index of the link with id.
func (s Set) Index(id ID) (int, bool) {
	for i, l := range s.links {
		if l.ID == id {
			return i, true
		}
	}
	return -1, false
}

// IndexByName returns the index of the link named name.
func (s Set) IndexByName(name string) (int, bool) {
	for i, l := range s.links {
		if l.Name == name {
			return i, true
		}
	}
	return -1, false
}

// MustIndex is Index, panicking when the set does not declare id.
func (s Set) MustIndex(id ID) int {
	i, ok := s.Index(id)
	if !ok {
		common.Fatalf("link: set does not declare link id %d", id)
	}
	return i
}

// MustIndexByName is IndexByName, panicking when the set does not declare name.
func (s Set) MustIndexByName(name string) int {
	i, ok := s.IndexByName(name)
	if !ok {
		common.Fatalf("link: set does not declare link %q", name)
	}
	return i
}
