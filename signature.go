package resbind

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// SamplerFactory creates the device object of an immutable sampler.
// A nil factory leaves immutable sampler bindings without a handle.
type SamplerFactory func(desc *ImmutableSamplerDesc) (hal.Sampler, error)

// Signature is the backend-specific compiled form of a SignatureDesc. It
// owns the bind point layout and the static resource cache.
//
// A signature is immutable after construction, except for its static cache
// which callers populate before the first shader resource binding is
// created.
type Signature interface {
	// Backend returns the name of the backend that built the signature.
	Backend() string

	Desc() *SignatureDesc
	ResourceCount() int
	Resource(i int) *ResourceDesc
	ImmutableSamplerCount() int
	ImmutableSampler(i int) *ImmutableSamplerDesc

	// ImmutableSamplerObjects returns the device samplers created for the
	// immutable samplers, in descriptor order. Entries may be nil.
	ImmutableSamplerObjects() []hal.Sampler

	// BindingMap exports the resources and immutable samplers visible in
	// stage, assuming the signature is the only one in the pipeline.
	BindingMap(stage ShaderStage) BindingMap

	HasStaticCache() bool
	StaticCache() *Cache

	// InitResourceCache creates a draw-ready cache for the signature with
	// the immutable samplers already bound.
	InitResourceCache() (*Cache, error)

	// CopyStaticResources copies every static resource into dst.
	CopyStaticResources(dst *Cache) error

	// SetResource binds element arrayIndex of resource index in cache.
	SetResource(cache *Cache, index int, arrayIndex uint32, b Binding) error
}

// Backend builds signatures for one graphics API.
type Backend interface {
	Name() string

	// ValidateDesc checks the constraints of the backend. It runs after
	// the common SignatureDesc.Validate.
	ValidateDesc(desc *SignatureDesc) error

	NewSignature(desc *SignatureDesc, samplers SamplerFactory) (Signature, error)
}

// Restorer is implemented by backends that can serialize the derived
// layout of a signature and rebuild it from the serialized form.
type Restorer interface {
	SerializeSignature(sig Signature) ([]byte, error)
	RestoreSignature(desc *SignatureDesc, data []byte, samplers SamplerFactory) (Signature, error)
}

// BackendFactory creates a backend instance.
type BackendFactory func() Backend

var (
	registryMu sync.RWMutex
	backends   = make(map[string]BackendFactory)
)

// Register registers a backend factory under name. Backend packages call
// it from init. An existing registration is replaced.
func Register(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend. It is mostly useful in tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the sorted names of registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a backend is registered under name.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get returns a backend instance, or nil if name is not registered.
func Get(name string) Backend {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil
	}
	return factory()
}

// NewSignature validates desc and builds a signature with the named
// backend. The descriptor is copied, so callers may reuse it.
func NewSignature(backend string, desc *SignatureDesc, samplers SamplerFactory) (Signature, error) {
	b := Get(backend)
	if b == nil {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, backend, Available())
	}
	own := desc.Clone()
	if err := own.Validate(); err != nil {
		return nil, err
	}
	if err := b.ValidateDesc(own); err != nil {
		return nil, err
	}
	sig, err := b.NewSignature(own, samplers)
	if err != nil {
		return nil, err
	}
	Logger().Info("resbind: signature created",
		slog.String("backend", b.Name()),
		slog.String("signature", own.Name),
		slog.Int("resources", len(own.Resources)),
		slog.Int("immutable_samplers", len(own.ImmutableSamplers)))
	return sig, nil
}

// Clone returns a deep copy of d.
func (d *SignatureDesc) Clone() *SignatureDesc {
	c := *d
	c.Resources = slices.Clone(d.Resources)
	c.ImmutableSamplers = slices.Clone(d.ImmutableSamplers)
	return &c
}

// matchResources returns the indices of resources named name whose stages
// overlap stages, restricted to variable types accepted by keep. StagesNone
// matches every stage.
func matchResources(sig Signature, stages ShaderStages, name string, keep func(VarType) bool) []int {
	var out []int
	for i := range sig.ResourceCount() {
		res := sig.Resource(i)
		if res.Name != name || !keep(res.VarType) {
			continue
		}
		if stages != StagesNone && !res.Stages.Overlaps(stages) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// checkElements reports the first resource of idx that cannot take b as
// element arrayIndex, so that a failing call binds nothing.
func checkElements(sig Signature, idx []int, arrayIndex uint32, b Binding) error {
	for _, i := range idx {
		res := sig.Resource(i)
		if arrayIndex >= res.ArraySize {
			return fmt.Errorf("%w: %q[%d], array size %d", ErrArrayIndex, res.Name, arrayIndex, res.ArraySize)
		}
		if err := CheckBinding(res, b); err != nil {
			return err
		}
	}
	return nil
}

// BindStatic binds element arrayIndex of every static resource called name
// that is visible in stages. StagesNone selects all stages.
func BindStatic(sig Signature, stages ShaderStages, name string, arrayIndex uint32, b Binding) error {
	if !sig.HasStaticCache() {
		return fmt.Errorf("%w: signature %q", ErrNoStaticCache, sig.Desc().Name)
	}
	idx := matchResources(sig, stages, name, func(vt VarType) bool { return vt == VarStatic })
	if len(idx) == 0 {
		return fmt.Errorf("%w: static resource %q in stages %v of signature %q",
			ErrResourceNotFound, name, stages, sig.Desc().Name)
	}
	if err := checkElements(sig, idx, arrayIndex, b); err != nil {
		return err
	}
	for _, i := range idx {
		if err := sig.SetResource(sig.StaticCache(), i, arrayIndex, b); err != nil {
			return err
		}
	}
	return nil
}

// BindStaticResources binds every static resource element found in m and
// returns the number of elements bound.
func BindStaticResources(sig Signature, m *ResourceMapping) (int, error) {
	if !sig.HasStaticCache() {
		return 0, nil
	}
	return bindFromMapping(sig, sig.StaticCache(), m, func(vt VarType) bool { return vt == VarStatic })
}

func bindFromMapping(sig Signature, cache *Cache, m *ResourceMapping, keep func(VarType) bool) (int, error) {
	bound := 0
	for i := range sig.ResourceCount() {
		res := sig.Resource(i)
		if !keep(res.VarType) {
			continue
		}
		for elem := range res.ArraySize {
			b, ok := m.Get(res.Name, elem)
			if !ok {
				continue
			}
			if err := sig.SetResource(cache, i, elem, b); err != nil {
				return bound, err
			}
			bound++
		}
	}
	return bound, nil
}
