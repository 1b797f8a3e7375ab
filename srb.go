package resbind

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ResourceBinding is a shader resource binding: a draw-ready cache for
// one signature holding its static, mutable and dynamic resources.
//
// A ResourceBinding must be populated by one goroutine before it is used
// for drawing.
type ResourceBinding struct {
	id         uuid.UUID
	sig        Signature
	cache      *Cache
	staticInit bool
}

// NewResourceBinding creates a binding for sig. Immutable samplers are
// written into the cache first; with initStatic the static resources of
// sig are copied as well.
func NewResourceBinding(sig Signature, initStatic bool) (*ResourceBinding, error) {
	cache, err := sig.InitResourceCache()
	if err != nil {
		return nil, fmt.Errorf("init resource cache for %q: %w", sig.Desc().Name, err)
	}
	srb := &ResourceBinding{id: uuid.New(), sig: sig, cache: cache}
	Logger().Debug("resbind: resource binding created",
		slog.String("id", srb.id.String()),
		slog.String("signature", sig.Desc().Name),
		slog.Int("cells", cache.TotalCells()))
	if initStatic {
		if err := srb.InitializeStaticResources(); err != nil {
			return nil, err
		}
	}
	return srb, nil
}

// ID returns the unique identity of the binding.
func (r *ResourceBinding) ID() uuid.UUID { return r.id }

// Signature returns the signature the binding was created from.
func (r *ResourceBinding) Signature() Signature { return r.sig }

// Cache returns the draw-ready resource cache.
func (r *ResourceBinding) Cache() *Cache { return r.cache }

// StaticResourcesInitialized reports whether static resources were copied.
func (r *ResourceBinding) StaticResourcesInitialized() bool { return r.staticInit }

// InitializeStaticResources copies the static resources of the signature
// into the binding. Calling it again is a no-op.
func (r *ResourceBinding) InitializeStaticResources() error {
	if r.staticInit {
		return nil
	}
	if r.sig.HasStaticCache() {
		if err := r.sig.CopyStaticResources(r.cache); err != nil {
			return fmt.Errorf("copy static resources of %q: %w", r.sig.Desc().Name, err)
		}
	}
	r.staticInit = true
	return nil
}

// Set binds element arrayIndex of every mutable or dynamic resource called
// name that is visible in stages. StagesNone selects all stages. Every
// matching resource is checked before any is written, so a rejected
// binding leaves the cache unchanged.
func (r *ResourceBinding) Set(stages ShaderStages, name string, arrayIndex uint32, b Binding) error {
	idx := matchResources(r.sig, stages, name, func(VarType) bool { return true })
	if len(idx) == 0 {
		return fmt.Errorf("%w: %q in stages %v of signature %q", ErrResourceNotFound, name, stages, r.sig.Desc().Name)
	}
	for _, i := range idx {
		if r.sig.Resource(i).VarType == VarStatic {
			return fmt.Errorf("%w: %q", ErrStaticVariable, name)
		}
	}
	if err := checkElements(r.sig, idx, arrayIndex, b); err != nil {
		return err
	}
	for _, i := range idx {
		if err := r.sig.SetResource(r.cache, i, arrayIndex, b); err != nil {
			return err
		}
	}
	return nil
}

// BindResources binds every mutable and dynamic resource element found in
// m and returns the number of elements bound.
func (r *ResourceBinding) BindResources(m *ResourceMapping) (int, error) {
	return bindFromMapping(r.sig, r.cache, m, func(vt VarType) bool { return vt != VarStatic })
}
