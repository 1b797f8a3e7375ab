package d3d11

import (
	"fmt"
	"slices"

	"github.com/gogpu/resbind"
)

// PipelineLayout combines the signatures of one pipeline. Each signature
// starts its register ranges where the previous one ended.
type PipelineLayout struct {
	sigs  []*Signature
	bases []ResourceCounters
	total ResourceCounters
}

// NewPipelineLayout orders sigs by binding index and computes their base
// offsets. Two signatures with the same binding index, or declaring the
// same resource name in a shared stage, are rejected, as is a layout that
// exceeds the Direct3D11 slot limits.
func NewPipelineLayout(sigs ...*Signature) (*PipelineLayout, error) {
	ordered := slices.Clone(sigs)
	slices.SortFunc(ordered, func(a, b *Signature) int {
		return int(a.desc.BindingIndex) - int(b.desc.BindingIndex)
	})
	for i := 1; i < len(ordered); i++ {
		if ordered[i].desc.BindingIndex == ordered[i-1].desc.BindingIndex {
			return nil, fmt.Errorf("%w: signatures %q and %q share binding index %d", resbind.ErrInvalidDesc,
				ordered[i-1].desc.Name, ordered[i].desc.Name, ordered[i].desc.BindingIndex)
		}
	}
	for i, a := range ordered {
		for _, b := range ordered[i+1:] {
			if err := checkNameClash(a, b); err != nil {
				return nil, err
			}
		}
	}

	pl := &PipelineLayout{sigs: ordered, bases: make([]ResourceCounters, len(ordered))}
	var sum [NumRanges][NumShaderTypes]int
	for i, sig := range ordered {
		for r := range NumRanges {
			for s := range NumShaderTypes {
				pl.bases[i][r][s] = uint8(sum[r][s])
				sum[r][s] += int(sig.layout.counters[r][s])
				if sum[r][s] > RangeLimits[r] {
					return nil, fmt.Errorf("%w: pipeline uses %d %v slots in %v stage, limit is %d",
						resbind.ErrTooManyBindings, sum[r][s], Range(r), resbind.ShaderStage(s), RangeLimits[r])
				}
			}
		}
	}
	for r := range NumRanges {
		for s := range NumShaderTypes {
			pl.total[r][s] = uint8(sum[r][s])
		}
	}
	return pl, nil
}

// checkNameClash returns an error when a and b declare the same resource
// name in a shared stage.
func checkNameClash(a, b *Signature) error {
	for i := range a.desc.Resources {
		ra := &a.desc.Resources[i]
		for j := range b.desc.Resources {
			rb := &b.desc.Resources[j]
			if ra.Name == rb.Name && ra.Stages.Overlaps(rb.Stages) {
				return fmt.Errorf("%w: %q is declared by signatures %q and %q in stages %v",
					resbind.ErrDuplicateResource, ra.Name, a.desc.Name, b.desc.Name, ra.Stages&rb.Stages)
			}
		}
	}
	return nil
}

// Signatures returns the signatures in binding index order.
func (pl *PipelineLayout) Signatures() []*Signature { return pl.sigs }

// BaseBindings returns the base offsets of signature i.
func (pl *PipelineLayout) BaseBindings(i int) ResourceCounters { return pl.bases[i] }

// Counters returns the slots used by the whole pipeline.
func (pl *PipelineLayout) Counters() ResourceCounters { return pl.total }

// BindingMap merges the binding maps of all signatures for stage.
func (pl *PipelineLayout) BindingMap(stage resbind.ShaderStage) resbind.BindingMap {
	m := make(resbind.BindingMap)
	for i, sig := range pl.sigs {
		sig.UpdateBindingMap(m, stage, pl.bases[i])
	}
	return m
}
