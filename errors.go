package xdvdfs

import "errors"

// Format-error taxonomy (spec.md §7).
var (
	// ErrInvalidVolume indicates none of the three candidate volume-descriptor
	// locations validated.
	ErrInvalidVolume = errors.New("xdvdfs: invalid volume: no magic found at any candidate location")

	// ErrCorruptEntry indicates a short read inside a directory entry, or a
	// name-length that would run past the directory table's bounds. It is
	// recovered locally by the tree walker rather than propagated as fatal.
	ErrCorruptEntry = errors.New("xdvdfs: corrupt directory entry")

	// ErrNoFilesystem indicates the range engine produced only the header
	// range — there is no discoverable filesystem tree to trim.
	ErrNoFilesystem = errors.New("xdvdfs: no filesystem found")

	// ErrMisalignedFiller indicates a gap between valid ranges is not a
	// multiple of the sector size — an invariant breach, not a recoverable
	// condition.
	ErrMisalignedFiller = errors.New("xdvdfs: misaligned filler gap")

	// ErrVerificationFailed indicates the post-trim integrity re-check failed.
	ErrVerificationFailed = errors.New("xdvdfs: post-conversion verification failed")

	// ErrCancelled indicates the caller's cancellation source tripped mid-run.
	ErrCancelled = errors.New("xdvdfs: cancelled")
)

// ResultCode is the status vocabulary exposed by the Trimmer (and, via the
// External Converter Delegate contract, any alternate conversion path) per
// spec.md §6.
type ResultCode int

const (
	// Converted means a trimmed output was written.
	Converted ResultCode = iota
	// AlreadyOptimized means no output was written because the source was
	// already trimmed.
	AlreadyOptimized
	// Failed means the conversion did not complete; inspect the returned
	// error for the taxonomy subtype.
	Failed
)

func (rc ResultCode) String() string {
	switch rc {
	case Converted:
		return "Converted"
	case AlreadyOptimized:
		return "AlreadyOptimized"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}
