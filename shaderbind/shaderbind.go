// Package shaderbind applies exported binding maps to shaders compiled by
// naga.
//
// A binding map names resources; naga addresses them by WGSL group and
// binding. The functions here match the two through the global variable
// names of the reflected module, so WGSL resources must be declared with
// the names used in the signature.
package shaderbind

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/glsl"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/resbind"
)

var (
	// ErrUnmappedResource is returned when a shader resource has no entry
	// in the binding map.
	ErrUnmappedResource = errors.New("shaderbind: resource missing from binding map")

	// ErrKindMismatch is returned when the shader declares a resource with
	// a different register class than the binding map records.
	ErrKindMismatch = errors.New("shaderbind: resource kind does not match shader declaration")

	// ErrBindingOverflow is returned when a bind point does not fit the
	// target language.
	ErrBindingOverflow = errors.New("shaderbind: bind point out of range")
)

// Reflect parses and lowers WGSL source.
func Reflect(source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("shaderbind: %w", err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("shaderbind: %w", err)
	}
	return module, nil
}

// Resource is a bound global variable of a shader module.
type Resource struct {
	Name      string
	Binding   ir.ResourceBinding
	Register  hlsl.RegisterType
	ArraySize uint32 // 0 for unbounded binding arrays
}

// Resources lists the bound global variables of module in declaration
// order.
func Resources(module *ir.Module) []Resource {
	var out []Resource
	for i := range module.GlobalVariables {
		gv := &module.GlobalVariables[i]
		if gv.Binding == nil {
			continue
		}
		reg, size := classify(module, gv)
		out = append(out, Resource{Name: gv.Name, Binding: *gv.Binding, Register: reg, ArraySize: size})
	}
	return out
}

func classify(module *ir.Module, gv *ir.GlobalVariable) (hlsl.RegisterType, uint32) {
	size := uint32(1)
	inner := module.Types[gv.Type].Inner
	if arr, ok := inner.(ir.BindingArrayType); ok {
		size = 0
		if arr.Size != nil {
			size = *arr.Size
		}
		inner = module.Types[arr.Base].Inner
	}
	switch gv.Space {
	case ir.SpaceUniform:
		return hlsl.RegisterTypeB, size
	case ir.SpaceStorage:
		if gv.Access == ir.StorageRead {
			return hlsl.RegisterTypeT, size
		}
		return hlsl.RegisterTypeU, size
	}
	switch t := inner.(type) {
	case ir.SamplerType:
		return hlsl.RegisterTypeS, size
	case ir.ImageType:
		if t.Class == ir.ImageClassStorage && t.StorageAccess != ir.StorageAccessRead {
			return hlsl.RegisterTypeU, size
		}
	}
	return hlsl.RegisterTypeT, size
}

// RegisterType returns the HLSL register class of a resource kind.
func RegisterType(kind resbind.ResourceKind) hlsl.RegisterType {
	switch kind {
	case resbind.KindConstantBuffer:
		return hlsl.RegisterTypeB
	case resbind.KindTextureSRV, resbind.KindBufferSRV, resbind.KindInputAttachment, resbind.KindAccelStruct:
		return hlsl.RegisterTypeT
	case resbind.KindTextureUAV, resbind.KindBufferUAV:
		return hlsl.RegisterTypeU
	case resbind.KindSampler:
		return hlsl.RegisterTypeS
	default:
		panic(resbind.InternalErrorf("unexpected resource kind %v", kind))
	}
}

// HLSLOptions returns Shader Model 5.0 compile options whose binding map
// places every bound global of module at the register recorded for its
// name in m.
func HLSLOptions(module *ir.Module, m resbind.BindingMap) (*hlsl.Options, error) {
	opts := hlsl.DefaultOptions()
	opts.ShaderModel = hlsl.ShaderModel5_0
	opts.FakeMissingBindings = false
	for _, res := range Resources(module) {
		info, ok := m[res.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q (group %d, binding %d)",
				ErrUnmappedResource, res.Name, res.Binding.Group, res.Binding.Binding)
		}
		if want := RegisterType(info.Kind); want != res.Register {
			return nil, fmt.Errorf("%w: %q is register %s in the shader but %v (register %s) in the map",
				ErrKindMismatch, res.Name, res.Register, info.Kind, want)
		}
		if info.Space > math.MaxUint8 {
			return nil, fmt.Errorf("%w: %q space %d", ErrBindingOverflow, res.Name, info.Space)
		}
		target := hlsl.BindTarget{Space: uint8(info.Space), Register: info.BindPoint}
		if info.ArraySize > 1 {
			target = target.WithArraySize(info.ArraySize)
		}
		opts.BindingMap[hlsl.ResourceBinding{Group: res.Binding.Group, Binding: res.Binding.Binding}] = target
	}
	return opts, nil
}

// GLSLOptions returns compile options whose binding map places every
// bound global of module at the binding recorded for its name in m.
// Samplers missing from m are left out, since GLSL combines them with
// the texture they sample.
func GLSLOptions(module *ir.Module, m resbind.BindingMap, version glsl.Version) (glsl.Options, error) {
	opts := glsl.DefaultOptions()
	opts.LangVersion = version
	opts.BindingMap = make(map[glsl.BindingMapKey]uint8)
	for _, res := range Resources(module) {
		info, ok := m[res.Name]
		if !ok {
			if res.Register == hlsl.RegisterTypeS {
				continue
			}
			return opts, fmt.Errorf("%w: %q (group %d, binding %d)",
				ErrUnmappedResource, res.Name, res.Binding.Group, res.Binding.Binding)
		}
		if info.BindPoint > math.MaxUint8 {
			return opts, fmt.Errorf("%w: %q binding %d", ErrBindingOverflow, res.Name, info.BindPoint)
		}
		opts.BindingMap[glsl.BindingMapKey{Group: res.Binding.Group, Binding: res.Binding.Binding}] = uint8(info.BindPoint)
	}
	return opts, nil
}

// CompileHLSL reflects source and compiles the entry point to HLSL with
// the registers of m.
func CompileHLSL(source, entryPoint string, m resbind.BindingMap) (string, error) {
	module, err := Reflect(source)
	if err != nil {
		return "", err
	}
	opts, err := HLSLOptions(module, m)
	if err != nil {
		return "", err
	}
	opts.EntryPoint = entryPoint
	out, _, err := hlsl.Compile(module, opts)
	if err != nil {
		return "", fmt.Errorf("shaderbind: hlsl: %w", err)
	}
	return out, nil
}

// CompileGLSL reflects source and compiles the entry point to GLSL with
// the bindings of m.
func CompileGLSL(source, entryPoint string, m resbind.BindingMap, version glsl.Version) (string, error) {
	module, err := Reflect(source)
	if err != nil {
		return "", err
	}
	opts, err := GLSLOptions(module, m, version)
	if err != nil {
		return "", err
	}
	opts.EntryPoint = entryPoint
	out, _, err := glsl.Compile(module, opts)
	if err != nil {
		return "", fmt.Errorf("shaderbind: glsl: %w", err)
	}
	return out, nil
}
