// Package link defines the typed resource slots through which one render node's output
// becomes another node's input.
//
// Every link is a stable (ID, Name) pair. Built-in links are registered at init; engine
// integrations may Register their own links with ids at or above UserIDStart.
package link

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
)

// ID identifies a link.
type ID uint32

const (
	Position ID = iota + 1
	Normal
	Depth
	Albedo
	Occlusion
	AccumulatedShadows
	Color
	// SingleInput is the generic input of one-input nodes. It accepts any output.
	SingleInput
	// SingleOutput is the generic output of one-output nodes. It feeds any input.
	SingleOutput
	ShadowMap0
	ShadowMap1
	ShadowMap2
	ShadowMap3
	ShadowMap4
	ShadowMap5
	Reflection
)

// UserIDStart is the first id available to Register.
const UserIDStart ID = 1024

// MaxShadowMaps is the number of shadow-map links.
const MaxShadowMaps = 6

// Link is an immutable (ID, Name) pair.
type Link struct {
	ID   ID
	Name string
}

func (l Link) String() string {
	return fmt.Sprintf("%s(%d)", l.Name, l.ID)
}

type registry struct {
	mu     sync.RWMutex
	byID   map[ID]Link
	byName map[string]Link
}

var global = &registry{byID: make(map[ID]Link), byName: make(map[string]Link)}

func init() {
	for _, l := range []Link{
		{Position, "position"},
		{Normal, "normal"},
		{Depth, "depth"},
		{Albedo, "albedo"},
		{Occlusion, "occlusion"},
		{AccumulatedShadows, "accumulated-shadows"},
		{Color, "color"},
		{SingleInput, "single-input"},
		{SingleOutput, "single-output"},
		{ShadowMap0, "shadow-map-0"},
		{ShadowMap1, "shadow-map-1"},
		{ShadowMap2, "shadow-map-2"},
		{ShadowMap3, "shadow-map-3"},
		{ShadowMap4, "shadow-map-4"},
		{ShadowMap5, "shadow-map-5"},
		{Reflection, "reflection"},
	} {
		global.add(l)
	}
}

func (r *registry) add(l Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byID[l.ID]; ok {
		common.Fatalf("link: id %d already registered as %q", l.ID, prev.Name)
	}
	if prev, ok := r.byName[l.Name]; ok {
		common.Fatalf("link: name %q already registered with id %d", l.Name, prev.ID)
	}
	r.byID[l.ID] = l
	r.byName[l.Name] = l
}

// Register adds a user link to the process-wide registry. It panics when id is below
// UserIDStart, the name is empty, or either is already registered.
//
// Parameters:
//   - id: the link id, at least UserIDStart
//   - name: the unique link name
//
// Returns:
//   - Link: the registered link
func Register(id ID, name string) Link {
	if id < UserIDStart {
		common.Fatalf("link: user id %d is reserved, ids start at %d", id, UserIDStart)
	}
	if name == "" {
		common.Fatalf("link: link %d has no name", id)
	}
	l := Link{ID: id, Name: name}
	global.add(l)
	return l
}

// ByID looks a link up by id.
func ByID(id ID) (Link, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	l, ok := global.byID[id]
	return l, ok
}

// ByName looks a link up by name.
func ByName(name string) (Link, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	l, ok := global.byName[name]
	return l, ok
}

// Get returns the registered link with id, panicking when it is unknown.
func Get(id ID) Link {
	l, ok := ByID(id)
	if !ok {
		common.Fatalf("link: unknown link id %d", id)
	}
	return l
}

// ShadowMap returns the i-th shadow-map link.
func ShadowMap(i int) Link {
	if i < 0 || i >= MaxShadowMaps {
		common.Fatalf("link: shadow map %d out of range [0, %d)", i, MaxShadowMaps)
	}
	return Get(ShadowMap0 + ID(i))
}

// Compatible reports whether an output link may feed an input link: the ids match, or
// one side is the generic single-input/single-output link.
func Compatible(input, output ID) bool {
	return input == output || input == SingleInput || output == SingleOutput
}
