// Package resbind maps backend-agnostic shader resource declarations onto
// the binding models of graphics APIs with flat register spaces.
//
// # Overview
//
// A [SignatureDesc] lists named shader resources (constant buffers, shader
// resource views, unordered access views, samplers) together with their
// stage visibility, array size and mutability class, plus a list of
// immutable samplers. A backend compiles it into a [Signature]: every
// resource receives a bind point per stage, samplers are matched to
// immutable samplers, and static resources get a cache of their own.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/resbind"
//	    _ "github.com/gogpu/resbind/d3d11"
//	)
//
//	desc := &resbind.SignatureDesc{
//	    Name: "material",
//	    Resources: []resbind.ResourceDesc{
//	        {Name: "cbFrame", Stages: resbind.StagesVertex | resbind.StagesPixel,
//	            ArraySize: 1, Kind: resbind.KindConstantBuffer, VarType: resbind.VarStatic},
//	        {Name: "g_Sampler", Stages: resbind.StagesPixel,
//	            ArraySize: 1, Kind: resbind.KindSampler, VarType: resbind.VarMutable},
//	    },
//	    ImmutableSamplers: []resbind.ImmutableSamplerDesc{
//	        {Stages: resbind.StagesPixel, Name: "g_Sampler"},
//	    },
//	}
//	sig, err := resbind.NewSignature("d3d11", desc, nil)
//
// # Variable Types
//
// Resources are declared sorted by [VarType]. Static resources are bound
// once with [BindStatic] and copied into every [ResourceBinding]. Mutable
// and dynamic resources are bound per [ResourceBinding].
//
// # Errors
//
// Descriptor problems are configuration errors returned from construction
// (see [ErrInvalidDesc] and friends). Broken internal invariants panic with
// an [*InternalError]. Static resources that were never bound are logged at
// error level when they are copied into a resource binding.
//
// # Logging
//
// Nothing is logged until [SetLogger] is called.
package resbind
