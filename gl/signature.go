package gl

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gogpu/resbind"
	"github.com/gogpu/wgpu/hal"
)

// BackendName is the registry name of the OpenGL backend.
const BackendName = "gl"

func init() {
	resbind.Register(BackendName, func() resbind.Backend { return backend{} })
}

type backend struct{}

var _ resbind.Signature = (*Signature)(nil)

func (backend) Name() string { return BackendName }

func (backend) ValidateDesc(desc *resbind.SignatureDesc) error { return ValidateDesc(desc) }

func (backend) NewSignature(desc *resbind.SignatureDesc, samplers resbind.SamplerFactory) (resbind.Signature, error) {
	return build(desc, samplers)
}

// Range is a program-wide OpenGL binding space.
type Range uint8

// Binding ranges. Samplers have no range of their own: they are bound to
// the texture units of their textures.
const (
	RangeUniformBuffer Range = iota
	RangeTexture
	RangeImage
	RangeStorageBuffer

	NumRanges = 4

	// rangeSampler is the cache range that shadows RangeTexture with the
	// sampler of each texture unit.
	rangeSampler = NumRanges
)

var rangeNames = [NumRanges]string{"uniform_buffer", "texture", "image", "storage_buffer"}

func (r Range) String() string {
	if int(r) < NumRanges {
		return rangeNames[r]
	}
	return fmt.Sprintf("range(%d)", uint8(r))
}

// RangeLimits are the minimum binding counts guaranteed by OpenGL 4.3.
var RangeLimits = [NumRanges]uint32{
	RangeUniformBuffer: 84,
	RangeTexture:       80,
	RangeImage:         8,
	RangeStorageBuffer: 8,
}

// RangeFromResource returns the binding range of res. Formatted buffers
// are read through texel buffers and written through image units.
// Samplers have no range and report false.
func RangeFromResource(res *resbind.ResourceDesc) (Range, bool) {
	formatted := res.Flags.Has(resbind.FlagFormattedBuffer)
	switch res.Kind {
	case resbind.KindConstantBuffer:
		return RangeUniformBuffer, true
	case resbind.KindTextureSRV, resbind.KindInputAttachment:
		return RangeTexture, true
	case resbind.KindBufferSRV:
		if formatted {
			return RangeTexture, true
		}
		return RangeStorageBuffer, true
	case resbind.KindTextureUAV:
		return RangeImage, true
	case resbind.KindBufferUAV:
		if formatted {
			return RangeImage, true
		}
		return RangeStorageBuffer, true
	case resbind.KindSampler:
		return 0, false
	default:
		panic(resbind.InternalErrorf("resource kind %v has no OpenGL range", res.Kind))
	}
}

// ValidateDesc checks the OpenGL constraints of desc.
func ValidateDesc(desc *resbind.SignatureDesc) error {
	for i := range desc.Resources {
		res := &desc.Resources[i]
		switch res.Kind {
		case resbind.KindAccelStruct:
			return fmt.Errorf("%w: signature %q: resource %q: acceleration structures are not available in OpenGL",
				resbind.ErrUnsupported, desc.Name, res.Name)
		case resbind.KindSampler:
			if !desc.UseCombinedTextureSamplers {
				return fmt.Errorf("%w: signature %q: separate sampler %q requires combined texture samplers in OpenGL",
					resbind.ErrUnsupported, desc.Name, res.Name)
			}
			t := findTexture(desc, res)
			if t < 0 {
				return fmt.Errorf("%w: signature %q: sampler %q has no texture named %q",
					resbind.ErrInvalidDesc, desc.Name, res.Name, strings.TrimSuffix(res.Name, desc.CombinedSuffix()))
			}
			tex := &desc.Resources[t]
			if res.ArraySize > tex.ArraySize || res.VarType != tex.VarType {
				return fmt.Errorf("%w: signature %q: sampler %q must match the array size and variable type of %q",
					resbind.ErrInvalidDesc, desc.Name, res.Name, tex.Name)
			}
		}
	}
	return nil
}

// findTexture returns the texture a combined sampler belongs to, or -1.
func findTexture(desc *resbind.SignatureDesc, samp *resbind.ResourceDesc) int {
	name, ok := strings.CutSuffix(samp.Name, desc.CombinedSuffix())
	if !ok {
		return -1
	}
	for i := range desc.Resources {
		res := &desc.Resources[i]
		if res.Kind == resbind.KindTextureSRV && res.Name == name && res.Stages.Overlaps(samp.Stages) {
			return i
		}
	}
	return -1
}

// ResourceAttribs is the derived layout of one resource. For samplers,
// Binding is the first texture unit of the texture in TextureIndex.
type ResourceAttribs struct {
	Range        Range
	Binding      uint32
	TextureIndex int

	// ImmutableSampler is the index of the immutable sampler of a texture
	// or of the texture of a sampler, or -1.
	ImmutableSampler int
}

// Signature is an OpenGL pipeline resource signature.
type Signature struct {
	desc           *resbind.SignatureDesc
	attribs        []ResourceAttribs
	counters       [NumRanges]uint32
	staticCounters [NumRanges]uint32
	immSamplers    []hal.Sampler
	staticCache    *resbind.Cache
}

// New validates desc and builds a signature.
func New(desc *resbind.SignatureDesc, samplers resbind.SamplerFactory) (*Signature, error) {
	own := desc.Clone()
	if err := own.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateDesc(own); err != nil {
		return nil, err
	}
	return build(own, samplers)
}

func findImmutableSampler(desc *resbind.SignatureDesc, tex *resbind.ResourceDesc) int {
	for i := range desc.ImmutableSamplers {
		imm := &desc.ImmutableSamplers[i]
		if !imm.Stages.Overlaps(tex.Stages) {
			continue
		}
		if imm.Name == tex.Name || imm.Name == tex.Name+desc.CombinedSuffix() {
			return i
		}
	}
	return -1
}

func build(desc *resbind.SignatureDesc, samplers resbind.SamplerFactory) (*Signature, error) {
	sig := &Signature{desc: desc, attribs: make([]ResourceAttribs, len(desc.Resources))}
	for i := range desc.Resources {
		res := &desc.Resources[i]
		attr := &sig.attribs[i]
		attr.TextureIndex = -1
		attr.ImmutableSampler = -1
		r, ok := RangeFromResource(res)
		if !ok {
			continue
		}
		// Program-wide bindings: every stage shares one slot, and invisible
		// resources take none.
		if res.Stages.IsEmpty() {
			attr.Range = r
			continue
		}
		next := uint64(sig.counters[r]) + uint64(res.ArraySize)
		if next > uint64(RangeLimits[r]) {
			return nil, fmt.Errorf("%w: signature %q: resource %q needs %d %v bindings, limit is %d",
				resbind.ErrTooManyBindings, desc.Name, res.Name, next, r, RangeLimits[r])
		}
		*attr = ResourceAttribs{Range: r, Binding: sig.counters[r], TextureIndex: -1, ImmutableSampler: -1}
		sig.counters[r] = uint32(next)
		if res.VarType == resbind.VarStatic {
			sig.staticCounters[r] = sig.counters[r]
		}
		if res.Kind == resbind.KindTextureSRV {
			attr.ImmutableSampler = findImmutableSampler(desc, res)
		}
	}
	for i := range desc.Resources {
		res := &desc.Resources[i]
		if res.Kind != resbind.KindSampler {
			continue
		}
		tex := findTexture(desc, res)
		resbind.Verify(tex >= 0, "signature %q: sampler %q lost its texture", desc.Name, res.Name)
		t := sig.attribs[tex]
		sig.attribs[i] = ResourceAttribs{Range: RangeTexture, Binding: t.Binding, TextureIndex: tex, ImmutableSampler: t.ImmutableSampler}
	}

	sig.immSamplers = make([]hal.Sampler, len(desc.ImmutableSamplers))
	if samplers != nil {
		for i := range desc.ImmutableSamplers {
			s, err := samplers(&desc.ImmutableSamplers[i])
			if err != nil {
				for _, created := range sig.immSamplers[:i] {
					if created != nil {
						created.Destroy()
					}
				}
				return nil, fmt.Errorf("signature %q: create immutable sampler %q: %w",
					desc.Name, desc.ImmutableSamplers[i].Name, err)
			}
			sig.immSamplers[i] = s
		}
	}
	if desc.HasStaticResources() {
		sig.staticCache = resbind.NewCache(resbind.CacheSignature, cacheSlots(sig.staticCounters))
	}
	resbind.Logger().Debug("gl: signature layout",
		slog.String("signature", desc.Name),
		slog.Any("bindings", sig.counters),
		slog.Any("static_bindings", sig.staticCounters))
	return sig, nil
}

// cacheSlots lays the ranges out with a stage dimension of one and a
// sampler row that mirrors the texture units.
func cacheSlots(counters [NumRanges]uint32) [][]uint32 {
	out := make([][]uint32, NumRanges+1)
	for r := range NumRanges {
		out[r] = []uint32{counters[r]}
	}
	out[rangeSampler] = []uint32{counters[RangeTexture]}
	return out
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
func (s *Signature) ResourceAttribs(i int) ResourceAttribs { return s.attribs[i] }

// ImmutableSamplerCount returns the number of immutable samplers.
func (s *Signature) ImmutableSamplerCount() int { return len(s.desc.ImmutableSamplers) }

// ImmutableSampler returns the descriptor of immutable sampler i.
func (s *Signature) ImmutableSampler(i int) *resbind.ImmutableSamplerDesc {
	return &s.desc.ImmutableSamplers[i]
}

// ImmutableSamplerObjects implements resbind.Signature.
func (s *Signature) ImmutableSamplerObjects() []hal.Sampler { return s.immSamplers }

// Counters returns the number of bindings used per range.
func (s *Signature) Counters() [NumRanges]uint32 { return s.counters }

// HasStaticCache reports whether the signature has static resources.
func (s *Signature) HasStaticCache() bool { return s.staticCache != nil }

// StaticCache returns the static resource cache, or nil.
func (s *Signature) StaticCache() *resbind.Cache { return s.staticCache }

// BindingMap exports the resources visible in stage. Samplers share the
// unit of their texture and are not listed.
func (s *Signature) BindingMap(stage resbind.ShaderStage) resbind.BindingMap {
	m := make(resbind.BindingMap)
	s.UpdateBindingMap(m, stage, [NumRanges]uint32{})
	return m
}

// UpdateBindingMap adds the resources visible in stage to m, offset by
// the bindings of the signatures placed before this one.
func (s *Signature) UpdateBindingMap(m resbind.BindingMap, stage resbind.ShaderStage, base [NumRanges]uint32) {
	for i := range s.desc.Resources {
		res := &s.desc.Resources[i]
		if res.Kind == resbind.KindSampler || !res.Stages.Has(stage) {
			continue
		}
		attr := s.attribs[i]
		m.Insert(res.Name, resbind.BindInfo{
			BindPoint: base[attr.Range] + attr.Binding,
			ArraySize: res.ArraySize,
			Kind:      res.Kind,
		})
	}
}

func (s *Signature) checkCache(cache *resbind.Cache) error {
	if cache == nil {
		return fmt.Errorf("%w: nil cache", resbind.ErrCacheMismatch)
	}
	if cache.NumRanges() != NumRanges+1 || cache.NumStages() != 1 {
		return fmt.Errorf("%w: %dx%d cache used with OpenGL signature %q",
			resbind.ErrCacheMismatch, cache.NumRanges(), cache.NumStages(), s.desc.Name)
	}
	return nil
}

// SetResource binds element arrayIndex of resource index in cache.
// Samplers are written to the sampler row of their texture's units.
func (s *Signature) SetResource(cache *resbind.Cache, index int, arrayIndex uint32, b resbind.Binding) error {
	if err := s.checkCache(cache); err != nil {
		return err
	}
	if index < 0 || index >= len(s.desc.Resources) {
		return fmt.Errorf("%w: index %d of signature %q", resbind.ErrResourceNotFound, index, s.desc.Name)
	}
	res := &s.desc.Resources[index]
	attr := s.attribs[index]
	if arrayIndex >= res.ArraySize {
		return fmt.Errorf("%w: %q[%d], array size %d", resbind.ErrArrayIndex, res.Name, arrayIndex, res.ArraySize)
	}
	if cache == s.staticCache && res.VarType != resbind.VarStatic {
		return fmt.Errorf("%w: %v resource %q bound to static cache", resbind.ErrCacheMismatch, res.VarType, res.Name)
	}
	if err := resbind.CheckBinding(res, b); err != nil {
		return err
	}
	if res.Stages.IsEmpty() {
		return nil
	}
	if res.Kind == resbind.KindSampler {
		if attr.ImmutableSampler >= 0 {
			resbind.Logger().Warn("gl: sampler is immutable, binding ignored",
				slog.String("signature", s.desc.Name), slog.String("resource", res.Name))
			return nil
		}
		return cache.Set(rangeSampler, 0, attr.Binding+arrayIndex, b)
	}
	return cache.Set(int(attr.Range), 0, attr.Binding+arrayIndex, b)
}

// InitResourceCache creates a draw-ready cache and writes the immutable
// samplers into the units of their textures.
func (s *Signature) InitResourceCache() (*resbind.Cache, error) {
	cache := resbind.NewCache(resbind.CacheSRB, cacheSlots(s.counters))
	for i := range s.desc.Resources {
		res := &s.desc.Resources[i]
		attr := s.attribs[i]
		if res.Kind != resbind.KindTextureSRV || attr.ImmutableSampler < 0 || res.Stages.IsEmpty() {
			continue
		}
		b := resbind.SamplerBinding(s.immSamplers[attr.ImmutableSampler])
		for elem := range res.ArraySize {
			if err := cache.Set(rangeSampler, 0, attr.Binding+elem, b); err != nil {
				return nil, err
			}
		}
	}
	cache.MarkImmutableSamplersInitialized()
	return cache, nil
}

// CopyStaticResources copies the static resources into dst. Unbound
// elements are logged when dst is a binding cache.
func (s *Signature) CopyStaticResources(dst *resbind.Cache) error {
	if s.staticCache == nil {
		return nil
	}
	if err := s.checkCache(dst); err != nil {
		return err
	}
	srb := dst.ContentType() == resbind.CacheSRB
	if srb && !dst.ImmutableSamplersInitialized() {
		return fmt.Errorf("%w: signature %q", resbind.ErrCacheNotInitialized, s.desc.Name)
	}
	for r := range NumRanges {
		if dst.SlotCount(r, 0) < s.staticCounters[r] {
			return fmt.Errorf("%w: %v needs %d bindings, cache has %d", resbind.ErrCacheMismatch,
				Range(r), s.staticCounters[r], dst.SlotCount(r, 0))
		}
	}

	start, end := s.desc.ResourceIndexRange(resbind.VarStatic)
	for i := start; i < end; i++ {
		res := &s.desc.Resources[i]
		attr := s.attribs[i]
		if res.Stages.IsEmpty() {
			continue
		}
		r := int(attr.Range)
		if res.Kind == resbind.KindSampler {
			if attr.ImmutableSampler >= 0 {
				if srb {
					for elem := range res.ArraySize {
						resbind.Verify(dst.IsBound(rangeSampler, 0, attr.Binding+elem),
							"signature %q: immutable sampler of %q is missing from the binding cache", s.desc.Name, res.Name)
					}
				}
				continue
			}
			r = rangeSampler
		}
		for elem := range res.ArraySize {
			slot := attr.Binding + elem
			if !dst.CopyFrom(s.staticCache, r, 0, slot, slot) && srb {
				resbind.Logger().Error("gl: no resource is assigned to static shader variable",
					slog.String("variable", fmt.Sprintf("%s[%d]", res.Name, elem)),
					slog.String("signature", s.desc.Name))
			}
		}
	}
	return nil
}
