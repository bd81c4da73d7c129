package system

import "errors"

// Sentinel errors for the failure classes the pipeline distinguishes.
// Wrap them with %w and match with errors.Is.
var (
	// ErrAlreadyExists marks a resource that must not be clobbered, such
	// as an image file already on disk.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound marks a missing prerequisite, such as an image file a
	// step expected to operate on.
	ErrNotFound = errors.New("not found")

	// ErrTool marks a non-zero exit from an external tool.
	ErrTool = errors.New("tool failed")

	// ErrResourceExhausted marks an unsatisfiable resource request, such
	// as no free loop device.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrFetch marks a failed or invalid payload download.
	ErrFetch = errors.New("fetch failed")

	// ErrIO marks a local filesystem operation failure.
	ErrIO = errors.New("i/o error")

	// ErrPrivilege marks insufficient privilege for device and mount
	// operations.
	ErrPrivilege = errors.New("insufficient privileges")
)
