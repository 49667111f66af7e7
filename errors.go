package layeredconfig

import "github.com/pkg/errors"

// NotFoundError is returned when a key is absent from every walked
// source at a given keychain. It is the normal "skip this source"
// signal internally and is only surfaced to callers once every source
// has been exhausted.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return "key '" + e.Key + "' was not found"
}

// NotWritableError is returned when every walked source is read-only
// or locked, so a write has nowhere to go.
type NotWritableError struct {
	Source string
}

func (e *NotWritableError) Error() string {
	if e.Source == "" {
		return "no writable sources found"
	}
	return e.Source + " is a read-only source"
}

// LockedError is distinguished from NotWritableError because the user,
// not the backend, set the flag that rejects the write.
type LockedError struct {
	Source string
}

func (e *LockedError) Error() string {
	return e.Source + " is locked and cannot be changed"
}

// ConflictError is raised during bulk enumeration (Items) when a key is
// a scalar in one source and a subtree in another and no strategy was
// registered to reconcile them.
type ConflictError struct {
	Key    string
	Source string
}

func (e *ConflictError) Error() string {
	return "key '" + e.Key + "' from '" + e.Source + "' conflicts with a " +
		"higher priority source that wants a different shape for the same key"
}

// StructureError marks a backend definition or configuration that
// violates a structural rule of the source contract — e.g. an INI
// section whose nested path collides with an already-inserted scalar.
type StructureError struct {
	Reason string
}

func (e *StructureError) Error() string {
	return e.Reason
}

// MissingDependencyError is raised by a backend whose optional
// transport isn't available at construction time.
type MissingDependencyError struct {
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return "missing optional dependency: " + e.Dependency
}

// BackendError wraps a failure raised by the backing store (file I/O,
// network, parser) with the source's name attached for diagnostics.
// The original error stays reachable through Unwrap (errors.Is and
// errors.As see it).
type BackendError struct {
	Source string
	cause  error
}

func newBackendError(source string, cause error) *BackendError {
	return &BackendError{Source: source, cause: errors.WithStack(cause)}
}

func (e *BackendError) Error() string {
	return e.Source + ": " + e.cause.Error()
}

func (e *BackendError) Unwrap() error {
	return e.cause
}

// IsNotFound reports whether err (or anything it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}
