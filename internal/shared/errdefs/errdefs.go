// Package errdefs defines the error taxonomy shared across the runtime.
//
// Absence of a permission grant is deliberately NOT ErrNotFound; it reads as
// an empty grant. ErrNotFound is reserved for missing apps, files and
// manifests.
package errdefs

import "errors"

var (
	// ErrInvalidArgument indicates bad caller input. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates a missing app, file or manifest.
	ErrNotFound = errors.New("not found")

	// ErrNoCapacity indicates the registry or sandbox pool is full. The
	// caller must free a slot before retrying; nothing is auto-evicted.
	ErrNoCapacity = errors.New("no capacity")

	// ErrSizeExceeded indicates a file or code blob larger than the
	// context's budget allows.
	ErrSizeExceeded = errors.New("size exceeded")

	// ErrInvalidManifest indicates a manifest missing a mandatory key.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrInvalidPackage indicates an install package that is not a
	// directory, tar.gz or zip containing a manifest.
	ErrInvalidPackage = errors.New("invalid package")

	// ErrTableFull indicates a fixed-capacity binding table rejected a new
	// entry. Registration is fallible rather than silently dropping.
	ErrTableFull = errors.New("binding table full")

	// ErrReservedName indicates an attempt to rebind a native function
	// name from script-facing global writes.
	ErrReservedName = errors.New("name reserved by native function")
)
