package xdvdfs

import (
	"fmt"
	"os"
	"strings"

	"github.com/dsoprea/go-logging"
)

// verifyChunkSize is the read granularity for file-content verification
// (spec.md §4.7 — 4 MiB).
const verifyChunkSize = 4 * 1024 * 1024

// VerifierState is the state machine spec.md §4.7 describes for a single
// image verification.
type VerifierState int

const (
	Opening VerifierState = iota
	DescriptorSearch
	Walking
	Verifying
	Passed
	Failed
	Cancelled
)

func (vs VerifierState) String() string {
	switch vs {
	case Opening:
		return "Opening"
	case DescriptorSearch:
		return "DescriptorSearch"
	case Walking:
		return "Walking"
	case Verifying:
		return "Verifying"
	case Passed:
		return "Passed"
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// VerifierOptions configures a single Verifier.Run invocation.
type VerifierOptions struct {
	Cancel CancellationSource
	Logger LoggerSink
}

// Verifier fully traverses an XDVDFS file tree and sequentially reads every
// file's content, reporting the first failing file name (spec.md §4.7).
type Verifier struct {
	options VerifierOptions
}

// NewVerifier returns a Verifier configured with the given options.
func NewVerifier(options VerifierOptions) *Verifier {
	return &Verifier{options: options}
}

// Run verifies the image at path. A non-Passed, non-Cancelled state is
// always accompanied by a non-nil err describing the first failure.
func (v *Verifier) Run(path string) (state VerifierState, diagnostics error, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			state, err = Failed, wrapRecovered(errRaw)
		}
	}()

	state = Opening

	f, err := os.Open(path)
	log.PanicIf(err)

	defer f.Close()

	state = DescriptorSearch

	ss, err := NewSectorStream(f)
	log.PanicIf(err)

	vd, err := FindVolumeDescriptor(ss)
	if err != nil {
		return Failed, nil, err
	}

	state = Walking

	tw := NewTreeWalker(ss, TreeWalkerOptions{})

	var failingFile string
	var verifyErr error
	var wasCancelled bool

	cb := func(pathParts []string, entry DirectoryEntry) (err error) {
		if entry.IsDirectory() == true || entry.StartSector == 0 {
			return nil
		}

		if v.options.Cancel != nil && v.options.Cancel.IsCancelled() == true {
			wasCancelled = true
			return errVerifierCancelled
		}

		state = Verifying

		displayName := strings.Join(append(append([]string{}, pathParts...), entry.Name), "\\")

		ok, err := v.verifyFile(ss, entry)
		if err == errVerifierCancelled {
			wasCancelled = true
			return errVerifierCancelled
		}
		log.PanicIf(err)

		if ok == false {
			failingFile = displayName
			verifyErr = fmt.Errorf("%w: short read verifying %q", ErrVerificationFailed, displayName)

			return verifyErr
		}

		return nil
	}

	walkDiagnostics, err := tw.Walk(vd.RootDirSector, vd.RootDirSize, cb)

	// A cancellation transitions to Cancelled and does not update any
	// persistent state (spec.md §4.7) — checked ahead of any other outcome
	// regardless of how the walk itself reports the early exit, since the
	// walker's own panic/recover may rewrap the sentinel error.
	if wasCancelled == true {
		return Cancelled, nil, nil
	}

	if err != nil {
		if verifyErr != nil {
			return Failed, walkDiagnostics, verifyErr
		}

		return Failed, walkDiagnostics, err
	}

	if failingFile != "" {
		return Failed, walkDiagnostics, verifyErr
	}

	return Passed, walkDiagnostics, nil
}

// errVerifierCancelled is a sentinel used to unwind the tree walk the moment
// cancellation is observed, without it being mistaken for a corrupt-entry or
// I/O failure.
var errVerifierCancelled = fmt.Errorf("xdvdfs: verification cancelled")

// verifyFile reads a single file's content sequentially in fixed-size
// chunks. Zero-size files pass trivially.
func (v *Verifier) verifyFile(ss *SectorStream, entry DirectoryEntry) (ok bool, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	if entry.FileSize == 0 {
		return true, nil
	}

	buffer := make([]byte, verifyChunkSize)

	var offset int64

	for offset < int64(entry.FileSize) {
		if v.options.Cancel != nil && v.options.Cancel.IsCancelled() == true {
			return false, errVerifierCancelled
		}

		remaining := int64(entry.FileSize) - offset

		chunk := int64(len(buffer))
		if chunk > remaining {
			chunk = remaining
		}

		n, err := ss.ReadFileBytes(entry.StartSector, entry.FileSize, offset, buffer[:chunk])
		log.PanicIf(err)

		if int64(n) < chunk {
			return false, nil
		}

		offset += int64(n)
	}

	return true, nil
}
