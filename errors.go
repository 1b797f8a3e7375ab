package resbind

import (
	"errors"
	"fmt"
)

// Configuration errors. Construction functions wrap these with the
// signature name and the offending resource.
var (
	// ErrInvalidDesc is returned when a descriptor table is malformed.
	ErrInvalidDesc = errors.New("resbind: invalid signature description")

	// ErrUnsortedResources is returned when resources are not ordered by
	// ascending variable type.
	ErrUnsortedResources = errors.New("resbind: resources are not sorted by variable type")

	// ErrDuplicateResource is returned when two resources share a name in
	// overlapping stages.
	ErrDuplicateResource = errors.New("resbind: duplicate resource name")

	// ErrUnsupported is returned when a descriptor uses a feature the
	// backend cannot express.
	ErrUnsupported = errors.New("resbind: unsupported by backend")

	// ErrTooManyBindings is returned when a range exceeds the per-stage
	// slot limit of the backend.
	ErrTooManyBindings = errors.New("resbind: too many bindings")

	// ErrUnknownBackend is returned when no backend is registered under
	// the requested name.
	ErrUnknownBackend = errors.New("resbind: unknown backend")
)

// Binding errors.
var (
	// ErrResourceNotFound is returned when a name does not match any
	// resource of the signature.
	ErrResourceNotFound = errors.New("resbind: resource not found")

	// ErrArrayIndex is returned when an array element is out of range.
	ErrArrayIndex = errors.New("resbind: array index out of range")

	// ErrIncompatibleBinding is returned when the bound object does not
	// match the resource kind.
	ErrIncompatibleBinding = errors.New("resbind: incompatible binding")

	// ErrStaticVariable is returned when a static resource is bound
	// through a shader resource binding.
	ErrStaticVariable = errors.New("resbind: static variable must be bound through the signature")

	// ErrNoStaticCache is returned when a signature without static
	// resources is asked to bind one.
	ErrNoStaticCache = errors.New("resbind: signature has no static resources")

	// ErrCacheMismatch is returned when a cache was not created by the
	// signature it is used with.
	ErrCacheMismatch = errors.New("resbind: cache does not belong to signature")

	// ErrCacheNotInitialized is returned when static resources are copied
	// into a binding cache whose immutable samplers were never written.
	ErrCacheNotInitialized = errors.New("resbind: immutable samplers not initialized in cache")

	// ErrDuplicateMapping is returned when a unique resource mapping entry
	// would be replaced by a different object.
	ErrDuplicateMapping = errors.New("resbind: duplicate resource mapping")
)

// InternalError reports a broken internal invariant: a non-deterministic
// layout, a duplicate binding map name, a sampler assigned to a sampler.
// It is raised with panic and is never recovered by this module.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "resbind: internal error: " + e.Msg }

// InternalErrorf builds an InternalError. Callers panic with the result.
func InternalErrorf(format string, args ...any) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}

// Verify panics with an InternalError when cond is false.
func Verify(cond bool, format string, args ...any) {
	if !cond {
		panic(InternalErrorf(format, args...))
	}
}
