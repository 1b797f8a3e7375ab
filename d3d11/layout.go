package d3d11

import (
	"fmt"
	"strings"

	"github.com/gogpu/resbind"
)

// layout is the derived state of a signature. It is computed into a local
// value and installed only when construction succeeds.
type layout struct {
	resAttribs     []ResourceAttribs
	immAttribs     []ImmutableSamplerAttribs
	counters       ResourceCounters
	staticCounters ResourceCounters
	dynamicCBMask  [NumShaderTypes]uint16
}

// findImmutableSampler returns the index of the immutable sampler that
// serves a sampler resource named name in stages, or InvalidIndex. With
// combined samplers an immutable sampler declared under a texture name
// also matches the texture's sampler.
func findImmutableSampler(desc *resbind.SignatureDesc, stages resbind.ShaderStages, name string) uint32 {
	suffix := ""
	if desc.UseCombinedTextureSamplers {
		suffix = desc.CombinedSuffix()
	}
	for i := range desc.ImmutableSamplers {
		imm := &desc.ImmutableSamplers[i]
		if !imm.Stages.Overlaps(stages) {
			continue
		}
		if name == imm.Name {
			return uint32(i)
		}
		if suffix != "" && strings.HasSuffix(name, suffix) && strings.TrimSuffix(name, suffix) == imm.Name {
			return uint32(i)
		}
	}
	return InvalidIndex
}

// findAssignedSampler returns the index of the sampler resource paired
// with texture tex through the combined sampler convention, or InvalidIndex.
func findAssignedSampler(desc *resbind.SignatureDesc, tex *resbind.ResourceDesc) uint32 {
	if !desc.UseCombinedTextureSamplers {
		return InvalidIndex
	}
	want := tex.Name + desc.CombinedSuffix()
	for i := range desc.Resources {
		res := &desc.Resources[i]
		if res.Kind == resbind.KindSampler && res.Name == want && res.Stages.Overlaps(tex.Stages) {
			return uint32(i)
		}
	}
	return InvalidIndex
}

// allocBindPoints assigns the current counter of every stage in stages to
// bp and advances the counter by arraySize.
func allocBindPoints(counters *ResourceCounters, bp *BindPoints, stages resbind.ShaderStages,
	arraySize uint32, r Range) error {
	for stage := range stages.All() {
		s := stage.Index()
		next := uint64(counters[r][s]) + uint64(arraySize)
		if next > uint64(RangeLimits[r]) {
			return fmt.Errorf("%w: %v range of %v stage needs %d slots, limit is %d",
				resbind.ErrTooManyBindings, r, stage, next, RangeLimits[r])
		}
		bp[s] = counters[r][s]
		counters[r][s] = uint8(next)
	}
	return nil
}

// createLayout runs the allocator over desc. When restored is not nil the
// computed values are compared with it and any difference panics: the
// serialized layout does not belong to desc.
func createLayout(desc *resbind.SignatureDesc, restored *layout) (*layout, error) {
	l := &layout{
		resAttribs: make([]ResourceAttribs, len(desc.Resources)),
		immAttribs: make([]ImmutableSamplerAttribs, len(desc.ImmutableSamplers)),
	}
	if restored != nil {
		resbind.Verify(len(restored.resAttribs) == len(desc.Resources),
			"signature %q: serialized layout has %d resources, descriptor has %d",
			desc.Name, len(restored.resAttribs), len(desc.Resources))
		resbind.Verify(len(restored.immAttribs) == len(desc.ImmutableSamplers),
			"signature %q: serialized layout has %d immutable samplers, descriptor has %d",
			desc.Name, len(restored.immAttribs), len(desc.ImmutableSamplers))
	}
	for i := range l.immAttribs {
		l.immAttribs[i] = ImmutableSamplerAttribs{BindPoints: NewBindPoints(), ArraySize: 1}
	}

	// Only sampler resources are matched against immutable samplers here.
	// Textures inherit the match of their assigned sampler below.
	resToImm := make([]uint32, len(desc.Resources))
	for i := range desc.Resources {
		resToImm[i] = InvalidIndex
		res := &desc.Resources[i]
		if res.Kind != resbind.KindSampler {
			continue
		}
		if imm := findImmutableSampler(desc, res.Stages, res.Name); imm != InvalidIndex {
			resToImm[i] = imm
			// One immutable sampler may serve arrays of different sizes in
			// different stages.
			l.immAttribs[imm].ArraySize = max(l.immAttribs[imm].ArraySize, res.ArraySize)
		}
	}

	for i := range desc.ImmutableSamplers {
		imm := &desc.ImmutableSamplers[i]
		bp := NewBindPoints()
		if err := allocBindPoints(&l.counters, &bp, imm.Stages, l.immAttribs[i].ArraySize, RangeSampler); err != nil {
			return nil, fmt.Errorf("signature %q: immutable sampler %q: %w", desc.Name, imm.Name, err)
		}
		l.immAttribs[i].BindPoints = bp
		if restored != nil {
			resbind.Verify(restored.immAttribs[i] == l.immAttribs[i],
				"signature %q: serialized attributes of immutable sampler %q are invalid", desc.Name, imm.Name)
		}
	}

	for i := range desc.Resources {
		res := &desc.Resources[i]
		resbind.Verify(i == 0 || res.VarType >= desc.Resources[i-1].VarType,
			"signature %q: resources must be sorted by variable type", desc.Name)

		assigned := InvalidIndex
		imm := resToImm[i]
		if res.Kind == resbind.KindTextureSRV {
			assigned = findAssignedSampler(desc, res)
			if assigned != InvalidIndex {
				imm = resToImm[assigned]
			}
		}

		bp := NewBindPoints()
		if res.Kind == resbind.KindSampler && imm != InvalidIndex {
			resbind.Verify(assigned == InvalidIndex, "signature %q: sampler %q cannot be assigned to another sampler",
				desc.Name, res.Name)
			bp = l.immAttribs[imm].BindPoints
			resbind.Verify(!bp.IsEmpty(), "signature %q: immutable sampler of %q has no bind points", desc.Name, res.Name)
		} else {
			r := RangeFromKind(res.Kind)
			if err := allocBindPoints(&l.counters, &bp, res.Stages, res.ArraySize, r); err != nil {
				return nil, fmt.Errorf("signature %q: resource %q: %w", desc.Name, res.Name, err)
			}
			if res.VarType == resbind.VarStatic {
				// The static cache is indexed by the same bind points, so it
				// must cover the highest slot of every static resource.
				for stage := range res.Stages.All() {
					s := stage.Index()
					l.staticCounters[r][s] = max(l.staticCounters[r][s], l.counters[r][s])
				}
			}
			if r == RangeCBV && !res.Flags.Has(resbind.FlagNoDynamicBuffers) {
				for stage := range res.Stages.All() {
					s := stage.Index()
					for elem := range res.ArraySize {
						slot := uint32(bp[s]) + elem
						resbind.Verify(slot < 16, "signature %q: dynamic constant buffer slot %d out of mask range", desc.Name, slot)
						l.dynamicCBMask[s] |= 1 << slot
					}
				}
			}
		}

		l.resAttribs[i] = ResourceAttribs{
			BindPoints:               bp,
			SamplerIndex:             assigned,
			ImmutableSamplerAssigned: imm != InvalidIndex,
		}
		if restored != nil {
			got := restored.resAttribs[i]
			resbind.Verify(got.BindPoints == bp, "signature %q: serialized bind points of %q are invalid", desc.Name, res.Name)
			resbind.Verify(got.SamplerIndex == assigned, "signature %q: serialized sampler index of %q is invalid", desc.Name, res.Name)
			resbind.Verify(got.ImmutableSamplerAssigned == (imm != InvalidIndex),
				"signature %q: serialized immutable sampler flag of %q is invalid", desc.Name, res.Name)
		}
	}
	if restored != nil {
		resbind.Verify(restored.counters == l.counters, "signature %q: serialized range counters %s, computed %s",
			desc.Name, restored.counters.String(), l.counters.String())
		resbind.Verify(restored.staticCounters == l.staticCounters, "signature %q: serialized static counters %s, computed %s",
			desc.Name, restored.staticCounters.String(), l.staticCounters.String())
	}
	return l, nil
}
