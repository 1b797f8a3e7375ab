package resbind

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestShaderStageUnmarshalText(t *testing.T) {
	tests := []struct {
		in   string
		want ShaderStage
	}{
		{"vertex", StageVertex},
		{"VS", StageVertex},
		{"ps", StagePixel},
		{"fragment", StagePixel},
		{"geometry", StageGeometry},
		{"hs", StageHull},
		{"tesseval", StageDomain},
		{" cs ", StageCompute},
		{"task", StageAmplification},
		{"mesh", StageMesh},
	}
	for _, tt := range tests {
		var got ShaderStage
		if err := got.UnmarshalText([]byte(tt.in)); err != nil {
			t.Errorf("UnmarshalText(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("UnmarshalText(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	var s ShaderStage
	if err := s.UnmarshalText([]byte("raygen")); !errors.Is(err, ErrInvalidDesc) {
		t.Errorf("UnmarshalText(raygen) = %v, want ErrInvalidDesc", err)
	}
	if _, err := ShaderStage(NumShaderStages).MarshalText(); err == nil {
		t.Error("MarshalText of an invalid stage succeeded")
	}
}

func TestShaderStagesSet(t *testing.T) {
	s := Stages(StageCompute, StageVertex, StagePixel)
	if got := slices.Collect(s.All()); !slices.Equal(got, []ShaderStage{StageVertex, StagePixel, StageCompute}) {
		t.Errorf("All() = %v", got)
	}
	if s.Count() != 3 || s.IsSingle() || s.First() != StageVertex {
		t.Errorf("Count=%d IsSingle=%v First=%v", s.Count(), s.IsSingle(), s.First())
	}
	if got := s.String(); got != "vertex|pixel|compute" {
		t.Errorf("String() = %q", got)
	}
	if StagesNone.String() != "none" || !StagesNone.IsEmpty() {
		t.Error("empty set misreported")
	}
	if !StagesPixel.IsSingle() || !s.Overlaps(StagesPixel|StagesMesh) || s.Overlaps(StagesMesh) {
		t.Error("IsSingle or Overlaps misreported")
	}

	// Breaking out of the loop must stop the iterator.
	n := 0
	for range StagesAll.All() {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterated %d stages after break", n)
	}
}

func TestShaderStagesGPUTypes(t *testing.T) {
	tests := []struct {
		in   ShaderStages
		want gputypes.ShaderStages
		ok   bool
	}{
		{StagesVertex | StagesPixel, gputypes.ShaderStageVertex | gputypes.ShaderStageFragment, true},
		{StagesCompute, gputypes.ShaderStageCompute, true},
		{StagesPixel | StagesGeometry, gputypes.ShaderStageFragment, false},
	}
	for _, tt := range tests {
		got, ok := tt.in.GPUTypes()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%v.GPUTypes() = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
		if tt.ok && StagesFromGPUTypes(got) != tt.in {
			t.Errorf("StagesFromGPUTypes(%v) = %v, want %v", got, StagesFromGPUTypes(got), tt.in)
		}
	}
}
