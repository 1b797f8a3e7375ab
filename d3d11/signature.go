package d3d11

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/resbind"
	"github.com/gogpu/wgpu/hal"
)

// BackendName is the registry name of the Direct3D11 backend.
const BackendName = "d3d11"

func init() {
	resbind.Register(BackendName, func() resbind.Backend { return backend{} })
}

type backend struct{}

var (
	_ resbind.Restorer  = backend{}
	_ resbind.Signature = (*Signature)(nil)
)

func (backend) Name() string { return BackendName }

func (backend) ValidateDesc(desc *resbind.SignatureDesc) error { return ValidateDesc(desc) }

func (backend) NewSignature(desc *resbind.SignatureDesc, samplers resbind.SamplerFactory) (resbind.Signature, error) {
	return build(desc, nil, samplers)
}

func (backend) SerializeSignature(sig resbind.Signature) ([]byte, error) {
	s, ok := sig.(*Signature)
	if !ok {
		return nil, fmt.Errorf("%w: %s signature passed to %s backend", resbind.ErrCacheMismatch, sig.Backend(), BackendName)
	}
	return s.MarshalBinary()
}

func (backend) RestoreSignature(desc *resbind.SignatureDesc, data []byte, samplers resbind.SamplerFactory) (resbind.Signature, error) {
	return Restore(desc, data, samplers)
}

// ValidateDesc checks the Direct3D11 constraints of desc: UAVs only in
// pixel and compute stages, no acceleration structures, no stages outside
// the Direct3D11 pipeline. A sampler matched to an immutable sampler must
// not be visible outside the immutable sampler's stages.
func ValidateDesc(desc *resbind.SignatureDesc) error {
	for i := range desc.Resources {
		res := &desc.Resources[i]
		if res.Kind == resbind.KindAccelStruct {
			return fmt.Errorf("%w: signature %q: resource %q: acceleration structures are not available in Direct3D11",
				resbind.ErrUnsupported, desc.Name, res.Name)
		}
		if extra := res.Stages &^ SupportedStages; extra != 0 {
			return fmt.Errorf("%w: signature %q: resource %q: stages %v do not exist in Direct3D11",
				resbind.ErrUnsupported, desc.Name, res.Name, extra)
		}
		if RangeFromKind(res.Kind) == RangeUAV && res.Stages&^UAVStages != 0 {
			return fmt.Errorf("%w: signature %q: resources[%d].Stages (%v) is not valid in Direct3D11 as UAVs are only supported in pixel and compute stages",
				resbind.ErrUnsupported, desc.Name, i, res.Stages)
		}
		if res.Kind != resbind.KindSampler {
			continue
		}
		// A sampler served by an immutable sampler takes its bind points,
		// so it cannot be visible in a stage the immutable sampler is not.
		if imm := findImmutableSampler(desc, res.Stages, res.Name); imm != InvalidIndex {
			immDesc := &desc.ImmutableSamplers[imm]
			if extra := res.Stages &^ immDesc.Stages; extra != 0 {
				return fmt.Errorf("%w: signature %q: sampler %q: stages %v are not covered by immutable sampler %q (%v)",
					resbind.ErrInvalidDesc, desc.Name, res.Name, extra, immDesc.Name, immDesc.Stages)
			}
		}
	}
	for i := range desc.ImmutableSamplers {
		imm := &desc.ImmutableSamplers[i]
		if extra := imm.Stages &^ SupportedStages; extra != 0 {
			return fmt.Errorf("%w: signature %q: immutable sampler %q: stages %v do not exist in Direct3D11",
				resbind.ErrUnsupported, desc.Name, imm.Name, extra)
		}
	}
	return nil
}

// Signature is a Direct3D11 pipeline resource signature.
type Signature struct {
	desc   *resbind.SignatureDesc
	layout *layout

	immSamplers []hal.Sampler
	staticCache *resbind.Cache
}

// New validates desc and builds a signature. samplers creates the device
// objects of immutable samplers and may be nil.
func New(desc *resbind.SignatureDesc, samplers resbind.SamplerFactory) (*Signature, error) {
	own := desc.Clone()
	if err := own.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateDesc(own); err != nil {
		return nil, err
	}
	return build(own, nil, samplers)
}

// Restore rebuilds a signature from desc and the serialized layout
// produced by MarshalBinary. The layout is recomputed from desc and
// compared with data; a mismatch panics with *resbind.InternalError. A
// truncated or corrupt blob returns an error.
func Restore(desc *resbind.SignatureDesc, data []byte, samplers resbind.SamplerFactory) (*Signature, error) {
	own := desc.Clone()
	if err := own.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateDesc(own); err != nil {
		return nil, err
	}
	restored, err := unmarshalLayout(data)
	if err != nil {
		return nil, fmt.Errorf("signature %q: %w", own.Name, err)
	}
	return build(own, restored, samplers)
}

// build computes the layout, creates immutable samplers and the static
// cache, and installs them only when every step succeeded.
func build(desc *resbind.SignatureDesc, restored *layout, samplers resbind.SamplerFactory) (*Signature, error) {
	l, err := createLayout(desc, restored)
	if err != nil {
		return nil, err
	}

	objs := make([]hal.Sampler, len(desc.ImmutableSamplers))
	if samplers != nil {
		for i := range desc.ImmutableSamplers {
			s, err := samplers(&desc.ImmutableSamplers[i])
			if err != nil {
				for _, created := range objs[:i] {
					if created != nil {
						created.Destroy()
					}
				}
				return nil, fmt.Errorf("signature %q: create immutable sampler %q: %w",
					desc.Name, desc.ImmutableSamplers[i].Name, err)
			}
			objs[i] = s
		}
	}

	sig := &Signature{desc: desc, layout: l, immSamplers: objs}
	if desc.HasStaticResources() {
		sig.staticCache = resbind.NewCache(resbind.CacheSignature, l.staticCounters.Slots())
		sig.staticCache.TrackDynamicBuffers(int(RangeCBV), sig.dynamicMasks())
	}

	resbind.Logger().Debug("d3d11: signature layout",
		slog.String("signature", desc.Name),
		slog.String("counters", l.counters.String()),
		slog.String("static_counters", l.staticCounters.String()),
		slog.Bool("restored", restored != nil))
	return sig, nil
}

func (s *Signature) dynamicMasks() []uint64 {
	masks := make([]uint64, NumShaderTypes)
	for i, m := range s.layout.dynamicCBMask {
		masks[i] = uint64(m)
	}
	return masks
}

// Backend implements resbind.Signature.
func (s *Signature) Backend() string { return BackendName }

// Desc returns the descriptor table owned by the signature.
func (s *Signature) Desc() *resbind.SignatureDesc { return s.desc }

// ResourceCount returns the number of resources.
func (s *Signature) ResourceCount() int { return len(s.desc.Resources) }

// Resource returns the descriptor of resource i.
func (s *Signature) Resource(i int) *resbind.ResourceDesc { return &s.desc.Resources[i] }

// ResourceAttribs returns the derived layout of resource i.
func (s *Signature) ResourceAttribs(i int) ResourceAttribs { return s.layout.resAttribs[i] }

// ImmutableSamplerCount returns the number of immutable samplers.
func (s *Signature) ImmutableSamplerCount() int { return len(s.desc.ImmutableSamplers) }

// ImmutableSampler returns the descriptor of immutable sampler i.
func (s *Signature) ImmutableSampler(i int) *resbind.ImmutableSamplerDesc {
	return &s.desc.ImmutableSamplers[i]
}

// ImmutableSamplerAttribs returns the derived layout of immutable sampler i.
func (s *Signature) ImmutableSamplerAttribs(i int) ImmutableSamplerAttribs { return s.layout.immAttribs[i] }

// ImmutableSamplerObjects implements resbind.Signature.
func (s *Signature) ImmutableSamplerObjects() []hal.Sampler { return s.immSamplers }

// Counters returns the number of slots used per range and stage.
func (s *Signature) Counters() ResourceCounters { return s.layout.counters }

// StaticCounters returns the slot counts of the static resource cache.
func (s *Signature) StaticCounters() ResourceCounters { return s.layout.staticCounters }

// DynamicCBSlotsMask returns the constant buffer slots of stage that may
// hold buffers with dynamic offsets.
func (s *Signature) DynamicCBSlotsMask(stage resbind.ShaderStage) uint16 {
	if stage.Index() >= NumShaderTypes {
		return 0
	}
	return s.layout.dynamicCBMask[stage.Index()]
}

// HasStaticCache reports whether the signature has static resources.
func (s *Signature) HasStaticCache() bool { return s.staticCache != nil }

// StaticCache returns the static resource cache, or nil.
func (s *Signature) StaticCache() *resbind.Cache { return s.staticCache }

// checkCache returns ErrCacheMismatch when cache cannot hold the layout of
// the signature.
func (s *Signature) checkCache(cache *resbind.Cache) error {
	if cache == nil {
		return fmt.Errorf("%w: nil cache", resbind.ErrCacheMismatch)
	}
	if cache.NumRanges() != NumRanges || cache.NumStages() != NumShaderTypes {
		return fmt.Errorf("%w: %dx%d cache used with Direct3D11 signature %q",
			resbind.ErrCacheMismatch, cache.NumRanges(), cache.NumStages(), s.desc.Name)
	}
	return nil
}

// SetResource binds element arrayIndex of resource index in cache. The
// static cache only accepts static resources. Samplers served by an
// immutable sampler ignore the binding.
func (s *Signature) SetResource(cache *resbind.Cache, index int, arrayIndex uint32, b resbind.Binding) error {
	if err := s.checkCache(cache); err != nil {
		return err
	}
	if index < 0 || index >= len(s.desc.Resources) {
		return fmt.Errorf("%w: index %d of signature %q", resbind.ErrResourceNotFound, index, s.desc.Name)
	}
	res := &s.desc.Resources[index]
	attr := &s.layout.resAttribs[index]
	if arrayIndex >= res.ArraySize {
		return fmt.Errorf("%w: %q[%d], array size %d", resbind.ErrArrayIndex, res.Name, arrayIndex, res.ArraySize)
	}
	if cache == s.staticCache && res.VarType != resbind.VarStatic {
		return fmt.Errorf("%w: %v resource %q bound to static cache", resbind.ErrCacheMismatch, res.VarType, res.Name)
	}
	if err := resbind.CheckBinding(res, b); err != nil {
		return err
	}
	r := RangeFromKind(res.Kind)
	if r == RangeSampler && attr.ImmutableSamplerAssigned {
		resbind.Logger().Warn("d3d11: sampler is immutable, binding ignored",
			slog.String("signature", s.desc.Name), slog.String("resource", res.Name))
		return nil
	}
	var errs []error
	for stage := range res.Stages.All() {
		st := stage.Index()
		if err := cache.Set(int(r), st, uint32(attr.BindPoints[st])+arrayIndex, b); err != nil {
			errs = append(errs, fmt.Errorf("%q: %w", res.Name, err))
		}
	}
	return errors.Join(errs...)
}

// printName formats an element of res for log messages.
func printName(res *resbind.ResourceDesc, elem uint32) string {
	if res.ArraySize > 1 {
		return fmt.Sprintf("%s[%d]", res.Name, elem)
	}
	return res.Name
}
