package resbind

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/gogpu/gputypes"
)

// ResourceKind is the semantic type of a shader resource.
type ResourceKind uint8

// Resource kinds.
const (
	KindUnknown ResourceKind = iota
	KindConstantBuffer
	KindTextureSRV
	KindBufferSRV
	KindTextureUAV
	KindBufferUAV
	KindSampler
	KindInputAttachment
	KindAccelStruct
)

var kindNames = [...]string{
	KindUnknown:         "unknown",
	KindConstantBuffer:  "constant_buffer",
	KindTextureSRV:      "texture_srv",
	KindBufferSRV:       "buffer_srv",
	KindTextureUAV:      "texture_uav",
	KindBufferUAV:       "buffer_uav",
	KindSampler:         "sampler",
	KindInputAttachment: "input_attachment",
	KindAccelStruct:     "accel_struct",
}

func (k ResourceKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsValid reports whether k is a known kind other than KindUnknown.
func (k ResourceKind) IsValid() bool { return k > KindUnknown && k <= KindAccelStruct }

// IsTexture reports whether k is read through a texture view.
func (k ResourceKind) IsTexture() bool {
	return k == KindTextureSRV || k == KindTextureUAV || k == KindInputAttachment
}

// IsReadWrite reports whether k is an unordered access view.
func (k ResourceKind) IsReadWrite() bool { return k == KindTextureUAV || k == KindBufferUAV }

// UnmarshalText parses the names produced by String.
func (k *ResourceKind) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range kindNames {
		if i != int(KindUnknown) && n == name {
			*k = ResourceKind(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown resource kind %q", ErrInvalidDesc, string(text))
}

// VarType is the mutability class of a resource. Resources in a
// SignatureDesc are ordered by ascending VarType.
type VarType uint8

// Variable types.
const (
	// VarStatic resources are bound once through the signature and copied
	// into every shader resource binding.
	VarStatic VarType = iota
	// VarMutable resources are bound per shader resource binding.
	VarMutable
	// VarDynamic resources may be rebound at any time.
	VarDynamic

	NumVarTypes = 3
)

var varTypeNames = [NumVarTypes]string{"static", "mutable", "dynamic"}

func (v VarType) String() string {
	if int(v) < NumVarTypes {
		return varTypeNames[v]
	}
	return fmt.Sprintf("vartype(%d)", uint8(v))
}

// UnmarshalText parses "static", "mutable" or "dynamic".
func (v *VarType) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range varTypeNames {
		if n == name {
			*v = VarType(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown variable type %q", ErrInvalidDesc, string(text))
}

// ResourceFlags modify how a resource is bound.
type ResourceFlags uint8

// Resource flags.
const (
	FlagNone ResourceFlags = 0
	// FlagNoDynamicBuffers promises that a constant buffer is never bound
	// with a dynamic offset.
	FlagNoDynamicBuffers ResourceFlags = 1 << (iota - 1)
	// FlagCombinedSampler marks a texture that carries its own sampler.
	FlagCombinedSampler
	// FlagFormattedBuffer marks a buffer view read through a typed format.
	FlagFormattedBuffer
	// FlagRuntimeArray marks an unbounded array.
	FlagRuntimeArray
)

var flagNames = []struct {
	flag ResourceFlags
	name string
}{
	{FlagNoDynamicBuffers, "no_dynamic_buffers"},
	{FlagCombinedSampler, "combined_sampler"},
	{FlagFormattedBuffer, "formatted_buffer"},
	{FlagRuntimeArray, "runtime_array"},
}

// Has reports whether all bits of f2 are set.
func (f ResourceFlags) Has(f2 ResourceFlags) bool { return f&f2 == f2 }

func (f ResourceFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseResourceFlag parses a single flag name.
func ParseResourceFlag(name string) (ResourceFlags, error) {
	for _, fn := range flagNames {
		if fn.name == strings.ToLower(name) {
			return fn.flag, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown resource flag %q", ErrInvalidDesc, name)
}

// ResourceDesc declares one named shader resource.
type ResourceDesc struct {
	Name      string
	Stages    ShaderStages
	ArraySize uint32
	Kind      ResourceKind
	VarType   VarType
	Flags     ResourceFlags
}

// ImmutableSamplerDesc declares a sampler whose state is baked into the
// signature. Name matches a sampler resource directly or, with combined
// samplers, a texture whose name plus the combined suffix equals it.
type ImmutableSamplerDesc struct {
	Stages ShaderStages
	Name   string
	Desc   gputypes.SamplerDescriptor
}

// DefaultCombinedSamplerSuffix is appended to texture names to form the
// name of their combined sampler.
const DefaultCombinedSamplerSuffix = "_sampler"

// MaxBindingIndex bounds SignatureDesc.BindingIndex.
const MaxBindingIndex = 8

// SignatureDesc is the backend-agnostic resource descriptor table of a
// pipeline resource signature.
type SignatureDesc struct {
	Name              string
	Resources         []ResourceDesc
	ImmutableSamplers []ImmutableSamplerDesc

	// BindingIndex orders signatures composed into one pipeline.
	BindingIndex uint8

	// UseCombinedTextureSamplers pairs every texture with the sampler named
	// texture + CombinedSamplerSuffix.
	UseCombinedTextureSamplers bool
	CombinedSamplerSuffix      string
}

// CombinedSuffix returns the effective combined sampler suffix.
func (d *SignatureDesc) CombinedSuffix() string {
	if d.CombinedSamplerSuffix == "" {
		return DefaultCombinedSamplerSuffix
	}
	return d.CombinedSamplerSuffix
}

// Validate performs the checks shared by every backend.
func (d *SignatureDesc) Validate() error {
	if d.BindingIndex >= MaxBindingIndex {
		return fmt.Errorf("%w: signature %q: binding index %d exceeds %d",
			ErrInvalidDesc, d.Name, d.BindingIndex, MaxBindingIndex-1)
	}
	if d.CombinedSamplerSuffix != "" && !d.UseCombinedTextureSamplers {
		return fmt.Errorf("%w: signature %q: combined sampler suffix requires combined texture samplers",
			ErrInvalidDesc, d.Name)
	}
	for i := range d.Resources {
		res := &d.Resources[i]
		if res.Name == "" {
			return fmt.Errorf("%w: signature %q: resource %d has no name", ErrInvalidDesc, d.Name, i)
		}
		if res.ArraySize == 0 {
			return fmt.Errorf("%w: signature %q: resource %q has zero array size", ErrInvalidDesc, d.Name, res.Name)
		}
		if !res.Kind.IsValid() {
			return fmt.Errorf("%w: signature %q: resource %q has invalid kind %v", ErrInvalidDesc, d.Name, res.Name, res.Kind)
		}
		if int(res.VarType) >= NumVarTypes {
			return fmt.Errorf("%w: signature %q: resource %q has invalid variable type %v", ErrInvalidDesc, d.Name, res.Name, res.VarType)
		}
		if i > 0 && res.VarType < d.Resources[i-1].VarType {
			return fmt.Errorf("%w: signature %q: resource %q (%v) follows %q (%v)", ErrUnsortedResources,
				d.Name, res.Name, res.VarType, d.Resources[i-1].Name, d.Resources[i-1].VarType)
		}
		if res.Flags.Has(FlagNoDynamicBuffers) && res.Kind != KindConstantBuffer &&
			res.Kind != KindBufferSRV && res.Kind != KindBufferUAV {
			return fmt.Errorf("%w: signature %q: no_dynamic_buffers applies to buffers only, %q is %v",
				ErrInvalidDesc, d.Name, res.Name, res.Kind)
		}
		if res.Flags.Has(FlagCombinedSampler) && res.Kind != KindTextureSRV {
			return fmt.Errorf("%w: signature %q: combined_sampler applies to textures only, %q is %v",
				ErrInvalidDesc, d.Name, res.Name, res.Kind)
		}
		if res.Flags.Has(FlagCombinedSampler) && !d.UseCombinedTextureSamplers {
			return fmt.Errorf("%w: signature %q: %q is flagged combined_sampler but combined texture samplers are off",
				ErrInvalidDesc, d.Name, res.Name)
		}
		for j := range i {
			other := &d.Resources[j]
			if other.Name == res.Name && other.Stages.Overlaps(res.Stages) {
				return fmt.Errorf("%w: signature %q: %q declared twice in stages %v",
					ErrDuplicateResource, d.Name, res.Name, other.Stages&res.Stages)
			}
		}
	}
	for i := range d.ImmutableSamplers {
		imm := &d.ImmutableSamplers[i]
		if imm.Name == "" {
			return fmt.Errorf("%w: signature %q: immutable sampler %d has no name", ErrInvalidDesc, d.Name, i)
		}
		if imm.Stages.IsEmpty() {
			return fmt.Errorf("%w: signature %q: immutable sampler %q has no stages", ErrInvalidDesc, d.Name, imm.Name)
		}
		for j := range i {
			other := &d.ImmutableSamplers[j]
			if other.Name == imm.Name && other.Stages.Overlaps(imm.Stages) {
				return fmt.Errorf("%w: signature %q: immutable sampler %q declared twice in stages %v",
					ErrDuplicateResource, d.Name, imm.Name, other.Stages&imm.Stages)
			}
		}
	}
	return nil
}

// ResourceIndexRange returns the half-open range of resource indices with
// the given variable type. Resources must be sorted.
func (d *SignatureDesc) ResourceIndexRange(vt VarType) (start, end int) {
	start = len(d.Resources)
	for i := range d.Resources {
		if d.Resources[i].VarType == vt {
			start = i
			break
		}
	}
	end = start
	for end < len(d.Resources) && d.Resources[end].VarType == vt {
		end++
	}
	return start, end
}

// HasStaticResources reports whether any resource is static.
func (d *SignatureDesc) HasStaticResources() bool {
	start, end := d.ResourceIndexRange(VarStatic)
	return end > start
}

// FindResource returns the index of the resource visible in stage with
// the given name, or -1.
func (d *SignatureDesc) FindResource(stages ShaderStages, name string) int {
	for i := range d.Resources {
		res := &d.Resources[i]
		if res.Name == name && (stages == StagesNone || res.Stages.Overlaps(stages)) {
			return i
		}
	}
	return -1
}

// Equal reports whether two descriptor tables are identical.
func (d *SignatureDesc) Equal(o *SignatureDesc) bool {
	if d.Name != o.Name || d.BindingIndex != o.BindingIndex ||
		d.UseCombinedTextureSamplers != o.UseCombinedTextureSamplers ||
		d.CombinedSuffix() != o.CombinedSuffix() ||
		len(d.Resources) != len(o.Resources) || len(d.ImmutableSamplers) != len(o.ImmutableSamplers) {
		return false
	}
	for i := range d.Resources {
		if d.Resources[i] != o.Resources[i] {
			return false
		}
	}
	for i := range d.ImmutableSamplers {
		if d.ImmutableSamplers[i] != o.ImmutableSamplers[i] {
			return false
		}
	}
	return true
}

// Fingerprint returns a stable FNV-1a hash of the descriptor table.
// Equal descriptors have equal fingerprints.
func (d *SignatureDesc) Fingerprint() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:4], v)
		h.Write(buf[:4])
	}
	putStr := func(s string) {
		putU32(uint32(len(s)))
		h.Write([]byte(s))
	}
	putStr(d.Name)
	putU32(uint32(d.BindingIndex))
	if d.UseCombinedTextureSamplers {
		putU32(1)
		putStr(d.CombinedSuffix())
	} else {
		putU32(0)
	}
	putU32(uint32(len(d.Resources)))
	for i := range d.Resources {
		res := &d.Resources[i]
		putStr(res.Name)
		putU32(uint32(res.Stages))
		putU32(res.ArraySize)
		putU32(uint32(res.Kind)<<16 | uint32(res.VarType)<<8 | uint32(res.Flags))
	}
	putU32(uint32(len(d.ImmutableSamplers)))
	for i := range d.ImmutableSamplers {
		imm := &d.ImmutableSamplers[i]
		s := &imm.Desc
		putStr(imm.Name)
		putU32(uint32(imm.Stages))
		putStr(s.Label)
		putU32(uint32(s.AddressModeU))
		putU32(uint32(s.AddressModeV))
		putU32(uint32(s.AddressModeW))
		putU32(uint32(s.MagFilter))
		putU32(uint32(s.MinFilter))
		putU32(uint32(s.MipmapFilter))
		putU32(math.Float32bits(s.LodMinClamp))
		putU32(math.Float32bits(s.LodMaxClamp))
		putU32(uint32(s.Compare))
		putU32(uint32(s.MaxAnisotropy))
	}
	return h.Sum64()
}

// compareVarType orders resources for sorting by variable type.
func compareVarType(a, b ResourceDesc) int { return cmp.Compare(a.VarType, b.VarType) }
