package xdvdfs

// This file models the external collaborators spec.md §6 describes the core
// as consuming or exposing, as Go interfaces only. Batch orchestration over
// many files, archive extraction, CUE/BIN pre-conversion, a progress UI,
// disk-space monitoring, update-checking, and bug-report transport remain
// out of scope (spec.md §1) — nothing here implements them; the core simply
// defines the shape it expects a caller to provide.

// ProgressEvent is the structured event a ProgressSink receives.
type ProgressEvent struct {
	StatusText     string
	BytesProcessed int64
	TotalBytes     int64
}

// ProgressSink accepts progress events emitted roughly every 100 MiB of work
// during a Trimmer run (spec.md §4.6, §6). The core never reads from it.
type ProgressSink interface {
	Report(event ProgressEvent)
}

// CancellationSource is a read-only boolean the core polls at the documented
// suspension points (spec.md §5). Setting it is the caller's responsibility;
// the core never mutates it.
type CancellationSource interface {
	IsCancelled() bool
}

// LoggerSink accepts textual diagnostic lines. The core never reads from it
// (spec.md §6).
type LoggerSink interface {
	Printf(format string, args ...interface{})
}

// ExternalConverterDelegate is the optional "shell out to an external tool"
// contract (spec.md §6). If a caller supplies one, it is responsible for
// copy-in/copy-out around an in-place rewrite of the input file; the core
// exposes the same Converted/AlreadyOptimized/Failed vocabulary to either
// path. No implementation is provided here — the external tool itself is out
// of scope (spec.md §1).
type ExternalConverterDelegate interface {
	ConvertInPlace(path string) (ResultCode, error)
}
