package d3d11

import (
	"fmt"

	"github.com/gogpu/resbind"
)

// NumShaderTypes is the number of shader stages Direct3D11 exposes:
// vertex, pixel, geometry, hull, domain and compute. Their indices equal
// the corresponding resbind.ShaderStage values.
const NumShaderTypes = 6

// SupportedStages is the set of stages a Direct3D11 signature may use.
const SupportedStages = resbind.StagesVertex | resbind.StagesPixel | resbind.StagesGeometry |
	resbind.StagesHull | resbind.StagesDomain | resbind.StagesCompute

// UAVStages is the set of stages that can access unordered access views.
const UAVStages = resbind.StagesPixel | resbind.StagesCompute

// Range is a Direct3D11 register space.
type Range uint8

// Register ranges.
const (
	RangeCBV Range = iota // b registers
	RangeSRV              // t registers
	RangeSampler          // s registers
	RangeUAV              // u registers

	NumRanges = 4
)

var rangeNames = [NumRanges]string{"cbv", "srv", "sampler", "uav"}

func (r Range) String() string {
	if int(r) < NumRanges {
		return rangeNames[r]
	}
	return fmt.Sprintf("range(%d)", uint8(r))
}

// Register returns the HLSL register letter of the range.
func (r Range) Register() byte {
	return [NumRanges]byte{'b', 't', 's', 'u'}[r]
}

// Per-stage slot limits of Direct3D11.1.
const (
	MaxConstantBuffers = 14
	MaxShaderResources = 128
	MaxSamplers        = 16
	MaxUAVs            = 64
)

// RangeLimits holds the per-stage slot limit of every range.
var RangeLimits = [NumRanges]int{
	RangeCBV:     MaxConstantBuffers,
	RangeSRV:     MaxShaderResources,
	RangeSampler: MaxSamplers,
	RangeUAV:     MaxUAVs,
}

// RangeFromKind returns the register range of a resource kind. Kinds that
// Direct3D11 cannot express indicate a version mismatch between the
// descriptor and this package and cause a panic.
func RangeFromKind(k resbind.ResourceKind) Range {
	switch k {
	case resbind.KindConstantBuffer:
		return RangeCBV
	case resbind.KindTextureSRV, resbind.KindBufferSRV, resbind.KindInputAttachment:
		return RangeSRV
	case resbind.KindTextureUAV, resbind.KindBufferUAV:
		return RangeUAV
	case resbind.KindSampler:
		return RangeSampler
	default:
		panic(resbind.InternalErrorf("resource kind %v has no Direct3D11 range", k))
	}
}

// InvalidBindPoint marks a stage without an allocated slot.
const InvalidBindPoint = 0xFF

// BindPoints holds one slot per shader stage.
type BindPoints [NumShaderTypes]uint8

// NewBindPoints returns bind points with no active stage.
func NewBindPoints() BindPoints {
	var bp BindPoints
	for i := range bp {
		bp[i] = InvalidBindPoint
	}
	return bp
}

// IsStageActive reports whether stage index s has a slot.
func (bp BindPoints) IsStageActive(s int) bool { return bp[s] != InvalidBindPoint }

// ActiveStages returns the stages that have a slot.
func (bp BindPoints) ActiveStages() resbind.ShaderStages {
	var stages resbind.ShaderStages
	for s := range NumShaderTypes {
		if bp.IsStageActive(s) {
			stages |= resbind.ShaderStage(s).Stages()
		}
	}
	return stages
}

// IsEmpty reports whether no stage has a slot.
func (bp BindPoints) IsEmpty() bool { return bp.ActiveStages() == resbind.StagesNone }

// Add returns the bind points shifted by n in every active stage.
func (bp BindPoints) Add(n uint32) BindPoints {
	for s := range NumShaderTypes {
		if bp.IsStageActive(s) {
			bp[s] += uint8(n)
		}
	}
	return bp
}

// ResourceCounters holds the number of slots used per range and stage.
type ResourceCounters [NumRanges][NumShaderTypes]uint8

// Slots returns the counters as a matrix for resbind.NewCache.
func (c ResourceCounters) Slots() [][]uint32 {
	out := make([][]uint32, NumRanges)
	for r := range NumRanges {
		out[r] = make([]uint32, NumShaderTypes)
		for s := range NumShaderTypes {
			out[r][s] = uint32(c[r][s])
		}
	}
	return out
}

// String formats non-zero counters as "cbv[vertex]=1 ...".
func (c ResourceCounters) String() string {
	var out []byte
	for r := range NumRanges {
		for s := range NumShaderTypes {
			if c[r][s] == 0 {
				continue
			}
			if len(out) > 0 {
				out = append(out, ' ')
			}
			out = fmt.Appendf(out, "%v[%v]=%d", Range(r), resbind.ShaderStage(s), c[r][s])
		}
	}
	if len(out) == 0 {
		return "empty"
	}
	return string(out)
}

// ResourceAttribs is the derived layout of one resource.
type ResourceAttribs struct {
	BindPoints BindPoints

	// SamplerIndex is the index of the sampler resource assigned to a
	// texture, or InvalidIndex.
	SamplerIndex uint32

	// ImmutableSamplerAssigned is set for samplers backed by an immutable
	// sampler and for textures whose assigned sampler is.
	ImmutableSamplerAssigned bool
}

// ImmutableSamplerAttribs is the derived layout of one immutable sampler.
type ImmutableSamplerAttribs struct {
	BindPoints BindPoints
	ArraySize  uint32
}

// IsAllocated reports whether the sampler received slots.
func (a ImmutableSamplerAttribs) IsAllocated() bool { return !a.BindPoints.IsEmpty() }

// InvalidIndex marks a missing sampler or immutable sampler index.
const InvalidIndex = ^uint32(0)
