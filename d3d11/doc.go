// Package d3d11 implements pipeline resource signatures for the Direct3D11
// binding model.
//
// Direct3D11 exposes four flat register ranges per shader stage: constant
// buffers (b), shader resource views (t), samplers (s) and unordered access
// views (u). A [Signature] assigns every resource a contiguous block of
// registers in each stage it is visible in, starting at zero and in
// declaration order. Immutable samplers are allocated first; sampler
// resources served by an immutable sampler share its registers.
//
// Importing the package registers the "d3d11" backend with resbind:
//
//	import _ "github.com/gogpu/resbind/d3d11"
//
// A signature can be serialized with [Signature.MarshalBinary] and rebuilt
// with [Restore]. Restoring recomputes the layout and panics if it differs
// from the serialized one.
package d3d11
