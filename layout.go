package resbind

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
)

// SortResources orders resources by ascending variable type, keeping the
// declaration order within a class.
func (d *SignatureDesc) SortResources() {
	slices.SortStableFunc(d.Resources, compareVarType)
}

// DescFromBindGroupLayout imports a WebGPU bind group layout. names maps
// binding numbers to resource names; unnamed bindings get "binding<N>".
// Every resource receives varType.
func DescFromBindGroupLayout(name string, layout *gputypes.BindGroupLayoutDescriptor,
	names map[uint32]string, varType VarType) (*SignatureDesc, error) {
	desc := &SignatureDesc{Name: name}
	for _, e := range layout.Entries {
		res := ResourceDesc{
			Name:      names[e.Binding],
			Stages:    StagesFromGPUTypes(e.Visibility),
			ArraySize: 1,
			VarType:   varType,
		}
		if res.Name == "" {
			res.Name = fmt.Sprintf("binding%d", e.Binding)
		}
		switch {
		case e.Buffer != nil:
			switch e.Buffer.Type {
			case gputypes.BufferBindingTypeUniform:
				res.Kind = KindConstantBuffer
				if !e.Buffer.HasDynamicOffset {
					res.Flags |= FlagNoDynamicBuffers
				}
			case gputypes.BufferBindingTypeReadOnlyStorage:
				res.Kind = KindBufferSRV
			case gputypes.BufferBindingTypeStorage:
				res.Kind = KindBufferUAV
			default:
				return nil, fmt.Errorf("%w: binding %d has unknown buffer type %v", ErrUnsupported, e.Binding, e.Buffer.Type)
			}
		case e.Sampler != nil:
			res.Kind = KindSampler
		case e.Texture != nil:
			res.Kind = KindTextureSRV
		case e.StorageTexture != nil:
			res.Kind = KindTextureUAV
			if e.StorageTexture.Access == gputypes.StorageTextureAccessReadOnly {
				res.Kind = KindTextureSRV
			}
		default:
			return nil, fmt.Errorf("%w: binding %d declares no resource", ErrInvalidDesc, e.Binding)
		}
		desc.Resources = append(desc.Resources, res)
	}
	desc.SortResources()
	return desc, nil
}
