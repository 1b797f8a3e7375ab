package d3d11

import (
	"github.com/gogpu/resbind"
)

// BindingMap exports the resources and immutable samplers visible in
// stage with zero base offsets.
func (s *Signature) BindingMap(stage resbind.ShaderStage) resbind.BindingMap {
	m := make(resbind.BindingMap)
	s.UpdateBindingMap(m, stage, ResourceCounters{})
	return m
}

// UpdateBindingMap adds the resources and immutable samplers of the
// signature visible in stage to m. base holds the slots taken by the
// signatures placed before this one in the pipeline.
//
// A resource name already present in m panics: pipelines are validated for
// cross-signature name clashes before their binding maps are built.
func (s *Signature) UpdateBindingMap(m resbind.BindingMap, stage resbind.ShaderStage, base ResourceCounters) {
	resbind.Verify(stage.Index() < NumShaderTypes, "stage %v is not a Direct3D11 stage", stage)
	st := stage.Index()

	for i := range s.desc.Resources {
		res := &s.desc.Resources[i]
		if !res.Stages.Has(stage) {
			continue
		}
		attr := &s.layout.resAttribs[i]
		resbind.Verify(attr.BindPoints.IsStageActive(st), "signature %q: %q has no bind point in %v stage",
			s.desc.Name, res.Name, stage)
		r := RangeFromKind(res.Kind)
		m.Insert(res.Name, resbind.BindInfo{
			BindPoint: uint32(base[r][st]) + uint32(attr.BindPoints[st]),
			Space:     0,
			ArraySize: res.ArraySize,
			Kind:      res.Kind,
		})
	}

	// Immutable samplers go in as well: one may be declared for a texture
	// that has no sampler resource.
	for i := range s.desc.ImmutableSamplers {
		imm := &s.desc.ImmutableSamplers[i]
		if !imm.Stages.Has(stage) {
			continue
		}
		attr := s.layout.immAttribs[i]
		resbind.Verify(attr.BindPoints.IsStageActive(st), "signature %q: immutable sampler %q has no bind point in %v stage",
			s.desc.Name, imm.Name, stage)
		name := imm.Name
		if s.desc.UseCombinedTextureSamplers {
			name += s.desc.CombinedSuffix()
		}
		info := resbind.BindInfo{
			BindPoint: uint32(base[RangeSampler][st]) + uint32(attr.BindPoints[st]),
			ArraySize: attr.ArraySize,
			Kind:      resbind.KindSampler,
		}
		if existing, ok := m[name]; ok {
			// The sampler resource of the same name reuses these bind points.
			resbind.Verify(existing.BindPoint == info.BindPoint,
				"signature %q: immutable sampler %q bind point %d differs from sampler resource bind point %d",
				s.desc.Name, name, info.BindPoint, existing.BindPoint)
			resbind.Verify(existing.ArraySize <= info.ArraySize,
				"signature %q: sampler resource %q array size %d exceeds immutable sampler array size %d",
				s.desc.Name, name, existing.ArraySize, info.ArraySize)
			continue
		}
		m[name] = info
	}
}
