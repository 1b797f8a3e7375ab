// Package gl implements pipeline resource signatures for OpenGL and
// OpenGL ES.
//
// OpenGL binding points are program-wide, so every range has a single
// counter shared by all shader stages. Samplers do not occupy bindings
// of their own: a sampler named after a texture plus the combined
// sampler suffix is bound to that texture's units, and an immutable
// sampler is attached to the texture it names.
//
// Importing the package registers the "gl" backend with resbind.
package gl
