package resbind

import (
	"maps"
	"slices"
)

// BindInfo describes where a resource lives in the register space of one
// shader stage.
type BindInfo struct {
	BindPoint uint32
	Space     uint32
	ArraySize uint32
	Kind      ResourceKind
}

// BindingMap maps resource names to their bind info for one stage.
type BindingMap map[string]BindInfo

// Insert adds name to the map. A duplicate name means two resources of
// one pipeline share a name, which cross-signature validation should have
// rejected, so Insert panics.
func (m BindingMap) Insert(name string, info BindInfo) {
	if prev, ok := m[name]; ok {
		panic(InternalErrorf("resource %q is already in the binding map (bind point %d, new %d)",
			name, prev.BindPoint, info.BindPoint))
	}
	m[name] = info
}

// Names returns the resource names in sorted order.
func (m BindingMap) Names() []string {
	return slices.Sorted(maps.Keys(m))
}
