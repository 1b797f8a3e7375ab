package resbind

import (
	"fmt"
)

type mappingKey struct {
	name  string
	index uint32
}

// ResourceMapping associates resource names and array elements with bound
// objects. It is used to bind many resources of a signature or a shader
// resource binding at once.
//
// ResourceMapping is not safe for concurrent use.
type ResourceMapping struct {
	entries map[mappingKey]Binding
}

// NewResourceMapping creates an empty mapping.
func NewResourceMapping() *ResourceMapping {
	return &ResourceMapping{entries: make(map[mappingKey]Binding)}
}

// Add maps element 0 of name to b. With unique set, replacing an existing
// entry by a different object fails with ErrDuplicateMapping.
func (m *ResourceMapping) Add(name string, b Binding, unique bool) error {
	return m.AddArray(name, 0, []Binding{b}, unique)
}

// AddArray maps consecutive elements of name, starting at start.
func (m *ResourceMapping) AddArray(name string, start uint32, objs []Binding, unique bool) error {
	if name == "" {
		return fmt.Errorf("%w: empty resource name in mapping", ErrInvalidDesc)
	}
	for i, b := range objs {
		key := mappingKey{name: name, index: start + uint32(i)}
		if prev, ok := m.entries[key]; ok && unique && prev != b {
			return fmt.Errorf("%w: %q[%d]", ErrDuplicateMapping, name, key.index)
		}
		m.entries[key] = b
	}
	return nil
}

// Remove deletes one element.
func (m *ResourceMapping) Remove(name string, index uint32) {
	delete(m.entries, mappingKey{name: name, index: index})
}

// RemoveByName deletes every element of name.
func (m *ResourceMapping) RemoveByName(name string) {
	for key := range m.entries {
		if key.name == name {
			delete(m.entries, key)
		}
	}
}

// Get returns the object mapped to element index of name.
func (m *ResourceMapping) Get(name string, index uint32) (Binding, bool) {
	b, ok := m.entries[mappingKey{name: name, index: index}]
	return b, ok
}

// Len returns the number of mapped elements.
func (m *ResourceMapping) Len() int { return len(m.entries) }
