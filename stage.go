package resbind

import (
	"fmt"
	"iter"
	"math/bits"
	"strings"

	"github.com/gogpu/gputypes"
)

// ShaderStage identifies one programmable pipeline stage.
//
// Stages are enumerated densely so that the value doubles as an index into
// per-stage tables. Backends that expose fewer stages use a prefix of the
// domain.
type ShaderStage uint8

// Shader stages.
const (
	StageVertex ShaderStage = iota
	StagePixel
	StageGeometry
	StageHull
	StageDomain
	StageCompute
	StageAmplification
	StageMesh
)

// NumShaderStages is the size of the stage domain.
const NumShaderStages = 8

var stageNames = [NumShaderStages]string{
	StageVertex:        "vertex",
	StagePixel:         "pixel",
	StageGeometry:      "geometry",
	StageHull:          "hull",
	StageDomain:        "domain",
	StageCompute:       "compute",
	StageAmplification: "amplification",
	StageMesh:          "mesh",
}

// String returns the lower-case stage name.
func (s ShaderStage) String() string {
	if int(s) < NumShaderStages {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Index returns the dense index of the stage.
func (s ShaderStage) Index() int { return int(s) }

// Stages returns the single-element set containing s.
func (s ShaderStage) Stages() ShaderStages { return ShaderStages(1) << s }

// IsValid reports whether s belongs to the stage domain.
func (s ShaderStage) IsValid() bool { return int(s) < NumShaderStages }

// UnmarshalText parses a stage name. Both the lower-case name and the
// common HLSL abbreviations (vs, ps, gs, hs, ds, cs, as, ms) are accepted,
// as is "fragment" for the pixel stage.
func (s *ShaderStage) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	switch name {
	case "vs":
		*s = StageVertex
		return nil
	case "ps", "fragment", "fs":
		*s = StagePixel
		return nil
	case "gs":
		*s = StageGeometry
		return nil
	case "hs", "tesscontrol":
		*s = StageHull
		return nil
	case "ds", "tesseval":
		*s = StageDomain
		return nil
	case "cs":
		*s = StageCompute
		return nil
	case "as", "task":
		*s = StageAmplification
		return nil
	case "ms":
		*s = StageMesh
		return nil
	}
	for i, n := range stageNames {
		if n == name {
			*s = ShaderStage(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown shader stage %q", ErrInvalidDesc, string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (s ShaderStage) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: unknown shader stage %d", ErrInvalidDesc, uint8(s))
	}
	return []byte(s.String()), nil
}

// ShaderStages is a set of shader stages.
type ShaderStages uint8

// Common stage sets.
const (
	StagesNone          ShaderStages = 0
	StagesVertex                     = ShaderStages(1) << StageVertex
	StagesPixel                      = ShaderStages(1) << StagePixel
	StagesGeometry                   = ShaderStages(1) << StageGeometry
	StagesHull                       = ShaderStages(1) << StageHull
	StagesDomain                     = ShaderStages(1) << StageDomain
	StagesCompute                    = ShaderStages(1) << StageCompute
	StagesAmplification              = ShaderStages(1) << StageAmplification
	StagesMesh                       = ShaderStages(1) << StageMesh

	StagesAllGraphics = StagesVertex | StagesPixel | StagesGeometry | StagesHull | StagesDomain
	StagesAll         = StagesAllGraphics | StagesCompute | StagesAmplification | StagesMesh
)

// Stages builds a set from individual stages.
func Stages(stages ...ShaderStage) ShaderStages {
	var set ShaderStages
	for _, s := range stages {
		set |= s.Stages()
	}
	return set
}

// Has reports whether the set contains stage.
func (s ShaderStages) Has(stage ShaderStage) bool { return s&stage.Stages() != 0 }

// Overlaps reports whether the sets share at least one stage.
func (s ShaderStages) Overlaps(other ShaderStages) bool { return s&other != 0 }

// IsEmpty reports whether the set has no stages.
func (s ShaderStages) IsEmpty() bool { return s == 0 }

// Count returns the number of stages in the set.
func (s ShaderStages) Count() int { return bits.OnesCount8(uint8(s)) }

// IsSingle reports whether the set contains exactly one stage.
func (s ShaderStages) IsSingle() bool { return s != 0 && s&(s-1) == 0 }

// First returns the lowest stage in the set. The set must not be empty.
func (s ShaderStages) First() ShaderStage { return ShaderStage(bits.TrailingZeros8(uint8(s))) }

// All yields the stages of the set in ascending order.
// The receiver is a value, so iteration never mutates shared state.
func (s ShaderStages) All() iter.Seq[ShaderStage] {
	return func(yield func(ShaderStage) bool) {
		for rest := s; rest != 0; rest &= rest - 1 {
			if !yield(rest.First()) {
				return
			}
		}
	}
}

// String returns the stage names joined with '|', or "none".
func (s ShaderStages) String() string {
	if s == 0 {
		return "none"
	}
	var b strings.Builder
	for stage := range s.All() {
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(stage.String())
	}
	return b.String()
}

// StagesFromGPUTypes converts a WebGPU stage mask. Fragment maps to the
// pixel stage.
func StagesFromGPUTypes(s gputypes.ShaderStages) ShaderStages {
	var set ShaderStages
	if s&gputypes.ShaderStageVertex != 0 {
		set |= StagesVertex
	}
	if s&gputypes.ShaderStageFragment != 0 {
		set |= StagesPixel
	}
	if s&gputypes.ShaderStageCompute != 0 {
		set |= StagesCompute
	}
	return set
}

// GPUTypes converts the set to a WebGPU stage mask. The boolean result is
// false when the set contains stages WebGPU cannot express.
func (s ShaderStages) GPUTypes() (gputypes.ShaderStages, bool) {
	var out gputypes.ShaderStages
	if s.Has(StageVertex) {
		out |= gputypes.ShaderStageVertex
	}
	if s.Has(StagePixel) {
		out |= gputypes.ShaderStageFragment
	}
	if s.Has(StageCompute) {
		out |= gputypes.ShaderStageCompute
	}
	return out, s&^(StagesVertex|StagesPixel|StagesCompute) == 0
}
