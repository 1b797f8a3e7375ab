package gl

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gogpu/resbind"
)

// PipelineLayout combines the signatures of one program. Bindings are
// program-wide, so each signature starts where the previous one ended in
// every range.
type PipelineLayout struct {
	sigs  []*Signature
	bases [][NumRanges]uint32
	total [NumRanges]uint32
}

// NewPipelineLayout orders sigs by binding index and computes their base
// bindings. Uniform names are global to a program, so a name declared by
// two signatures is rejected whatever its stages.
func NewPipelineLayout(sigs ...*Signature) (*PipelineLayout, error) {
	ordered := slices.Clone(sigs)
	slices.SortFunc(ordered, func(a, b *Signature) int {
		return cmp.Compare(a.desc.BindingIndex, b.desc.BindingIndex)
	})
	for i := 1; i < len(ordered); i++ {
		if ordered[i].desc.BindingIndex == ordered[i-1].desc.BindingIndex {
			return nil, fmt.Errorf("%w: signatures %q and %q share binding index %d", resbind.ErrInvalidDesc,
				ordered[i-1].desc.Name, ordered[i].desc.Name, ordered[i].desc.BindingIndex)
		}
	}
	for i, a := range ordered {
		for _, b := range ordered[i+1:] {
			for _, ra := range a.desc.Resources {
				if ra.Stages.IsEmpty() {
					continue
				}
				if j := slices.IndexFunc(b.desc.Resources, func(rb resbind.ResourceDesc) bool {
					return rb.Name == ra.Name && !rb.Stages.IsEmpty()
				}); j >= 0 {
					return nil, fmt.Errorf("%w: %q is declared by signatures %q and %q",
						resbind.ErrDuplicateResource, ra.Name, a.desc.Name, b.desc.Name)
				}
			}
		}
	}

	pl := &PipelineLayout{sigs: ordered, bases: make([][NumRanges]uint32, len(ordered))}
	for i, sig := range ordered {
		pl.bases[i] = pl.total
		for r := range NumRanges {
			pl.total[r] += sig.counters[r]
			if pl.total[r] > RangeLimits[r] {
				return nil, fmt.Errorf("%w: program uses %d %v bindings, limit is %d",
					resbind.ErrTooManyBindings, pl.total[r], Range(r), RangeLimits[r])
			}
		}
	}
	return pl, nil
}

// Signatures returns the signatures in binding index order.
func (pl *PipelineLayout) Signatures() []*Signature { return pl.sigs }

// BaseBindings returns the first binding of signature i in every range.
func (pl *PipelineLayout) BaseBindings(i int) [NumRanges]uint32 { return pl.bases[i] }

// Counters returns the bindings used by the whole program.
func (pl *PipelineLayout) Counters() [NumRanges]uint32 { return pl.total }

// BindingMap merges the binding maps of all signatures for stage.
func (pl *PipelineLayout) BindingMap(stage resbind.ShaderStage) resbind.BindingMap {
	m := make(resbind.BindingMap)
	for i, sig := range pl.sigs {
		sig.UpdateBindingMap(m, stage, pl.bases[i])
	}
	return m
}
