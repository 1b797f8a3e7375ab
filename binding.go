package resbind

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// BindingType tells which handle of a Binding is in use. HAL buffers,
// views and samplers share one method set, so the type is recorded
// explicitly.
type BindingType uint8

// Binding types.
const (
	BindingNone BindingType = iota
	BindingBuffer
	BindingStorageBuffer
	BindingTexture
	BindingStorageTexture
	BindingSampler
)

var bindingTypeNames = [...]string{"none", "buffer", "storage_buffer", "texture", "storage_texture", "sampler"}

func (t BindingType) String() string {
	if int(t) < len(bindingTypeNames) {
		return bindingTypeNames[t]
	}
	return fmt.Sprintf("binding(%d)", uint8(t))
}

// Binding is one object bound to a resource array element. The zero value
// is an unbound element.
type Binding struct {
	Type    BindingType
	Buffer  hal.Buffer
	View    hal.TextureView
	Sampler hal.Sampler

	// Offset and Size select a buffer range. Size 0 means the whole buffer.
	Offset uint64
	Size   uint64

	// Dynamic marks a buffer bound with a per-draw dynamic offset.
	Dynamic bool
}

// BufferBinding binds a uniform buffer range.
func BufferBinding(buf hal.Buffer, offset, size uint64) Binding {
	return Binding{Type: BindingBuffer, Buffer: buf, Offset: offset, Size: size}
}

// DynamicBufferBinding binds a uniform buffer whose offset changes per draw.
func DynamicBufferBinding(buf hal.Buffer, offset, size uint64) Binding {
	return Binding{Type: BindingBuffer, Buffer: buf, Offset: offset, Size: size, Dynamic: true}
}

// StorageBufferBinding binds a structured or raw buffer range.
func StorageBufferBinding(buf hal.Buffer, offset, size uint64) Binding {
	return Binding{Type: BindingStorageBuffer, Buffer: buf, Offset: offset, Size: size}
}

// TextureBinding binds a sampled texture view.
func TextureBinding(view hal.TextureView) Binding {
	return Binding{Type: BindingTexture, View: view}
}

// StorageTextureBinding binds a read-write texture view.
func StorageTextureBinding(view hal.TextureView) Binding {
	return Binding{Type: BindingStorageTexture, View: view}
}

// SamplerBinding binds a sampler.
func SamplerBinding(s hal.Sampler) Binding {
	return Binding{Type: BindingSampler, Sampler: s}
}

// IsNil reports whether nothing is bound.
func (b Binding) IsNil() bool { return b.Type == BindingNone }

// CompatibleWith reports whether b may be bound to a resource of kind k.
func (b Binding) CompatibleWith(k ResourceKind) bool {
	switch k {
	case KindConstantBuffer:
		return b.Type == BindingBuffer
	case KindTextureSRV, KindInputAttachment:
		return b.Type == BindingTexture
	case KindBufferSRV:
		// Formatted buffers are read through texel buffer views.
		return b.Type == BindingStorageBuffer || b.Type == BindingTexture
	case KindTextureUAV:
		return b.Type == BindingStorageTexture
	case KindBufferUAV:
		return b.Type == BindingStorageBuffer
	case KindSampler:
		return b.Type == BindingSampler
	default:
		return false
	}
}

// CheckBinding returns ErrIncompatibleBinding when b cannot be bound to res.
// Dynamic bindings are only accepted by constant buffers that allow them.
func CheckBinding(res *ResourceDesc, b Binding) error {
	if b.IsNil() {
		return nil
	}
	if !b.CompatibleWith(res.Kind) {
		return fmt.Errorf("%w: %s bound to %q (%v)", ErrIncompatibleBinding, b.Type, res.Name, res.Kind)
	}
	if b.Dynamic && (res.Kind != KindConstantBuffer || res.Flags.Has(FlagNoDynamicBuffers)) {
		return fmt.Errorf("%w: dynamic buffer bound to %q which does not allow dynamic offsets",
			ErrIncompatibleBinding, res.Name)
	}
	return nil
}
