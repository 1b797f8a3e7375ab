package d3d11

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/resbind"
)

// InitResourceCache creates a draw-ready cache sized from the range
// counters of the signature and writes every immutable sampler into it.
func (s *Signature) InitResourceCache() (*resbind.Cache, error) {
	cache := resbind.NewCache(resbind.CacheSRB, s.layout.counters.Slots())
	cache.TrackDynamicBuffers(int(RangeCBV), s.dynamicMasks())
	for i := range s.desc.ImmutableSamplers {
		attr := s.layout.immAttribs[i]
		resbind.Verify(attr.IsAllocated(), "signature %q: immutable sampler %d has no bind points", s.desc.Name, i)
		resbind.Verify(attr.ArraySize > 0, "signature %q: immutable sampler %d has zero array size", s.desc.Name, i)
		b := resbind.SamplerBinding(s.immSamplers[i])
		for st := range attr.BindPoints.ActiveStages().All() {
			for elem := range attr.ArraySize {
				if err := cache.Set(int(RangeSampler), st.Index(), uint32(attr.BindPoints[st.Index()])+elem, b); err != nil {
					return nil, err
				}
			}
		}
	}
	cache.MarkImmutableSamplersInitialized()
	return cache, nil
}

// CopyStaticResources copies every static resource from the static cache
// into dst, which is either the cache of a shader resource binding or the
// static cache of another signature.
//
// A binding cache must come from InitResourceCache: its immutable samplers
// are required to be in place, and samplers served by them are checked
// rather than copied. Elements that were never bound are logged when dst
// is a binding cache and skipped silently otherwise; the copy continues
// either way.
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

	start, end := s.desc.ResourceIndexRange(resbind.VarStatic)
	for i := start; i < end; i++ {
		res := &s.desc.Resources[i]
		attr := &s.layout.resAttribs[i]
		r := int(RangeFromKind(res.Kind))
		for st := range res.Stages.All() {
			need := uint32(attr.BindPoints[st.Index()]) + res.ArraySize
			if dst.SlotCount(r, st.Index()) < need {
				return fmt.Errorf("%w: %q needs %d %v slots in %v stage, cache has %d", resbind.ErrCacheMismatch,
					res.Name, need, Range(r), st, dst.SlotCount(r, st.Index()))
			}
		}
	}

	src := s.staticCache
	for i := start; i < end; i++ {
		res := &s.desc.Resources[i]
		attr := &s.layout.resAttribs[i]
		r := RangeFromKind(res.Kind)

		if r == RangeSampler && attr.ImmutableSamplerAssigned {
			if srb {
				for st := range res.Stages.All() {
					for elem := range res.ArraySize {
						slot := uint32(attr.BindPoints[st.Index()]) + elem
						resbind.Verify(dst.IsBound(int(r), st.Index(), slot),
							"signature %q: immutable sampler of %q is missing from the binding cache", s.desc.Name, printName(res, elem))
					}
				}
			}
			continue
		}

		for elem := range res.ArraySize {
			copied := true
			for st := range res.Stages.All() {
				slot := uint32(attr.BindPoints[st.Index()]) + elem
				if !dst.CopyFrom(src, int(r), st.Index(), slot, slot) {
					copied = false
				}
			}
			if !copied && srb {
				resbind.Logger().Error("d3d11: no resource is assigned to static shader variable",
					slog.String("variable", printName(res, elem)),
					slog.String("signature", s.desc.Name))
			}
		}
	}

	if srb {
		dst.VerifyDynamicBufferMasks()
	}
	return nil
}

// ValidateCommitted reports whether the first bindCount elements of
// resource index are bound in cache in every stage of the resource. Each
// unbound element is logged.
func (s *Signature) ValidateCommitted(cache *resbind.Cache, index int, bindCount uint32) bool {
	res := &s.desc.Resources[index]
	attr := &s.layout.resAttribs[index]
	resbind.Verify(bindCount <= res.ArraySize, "bind count %d of %q exceeds array size %d", bindCount, res.Name, res.ArraySize)
	r := int(RangeFromKind(res.Kind))
	ok := true
	for st := range res.Stages.All() {
		for elem := range bindCount {
			slot := uint32(attr.BindPoints[st.Index()]) + elem
			if !cache.IsBound(r, st.Index(), slot) {
				resbind.Logger().Error("d3d11: no resource is bound to variable",
					slog.String("variable", printName(res, elem)),
					slog.String("stage", st.String()),
					slog.String("signature", s.desc.Name))
				ok = false
			}
		}
	}
	return ok
}
