package xdvdfs

import (
	"io"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
)

// copyBufferSectors is the reusable streaming-copy buffer size (spec.md §4.6,
// §5 — 64 * 2048 = 128 KiB).
const copyBufferSectors = 64

const progressMilestoneBytes = 100 * 1024 * 1024

// redumpLayout describes one known Redump dump length.
type redumpLayout struct {
	length       int64
	gameOffset   int64
	targetLength int64
}

// redumpLayouts is the fixed table of known Redump dump byte-lengths (spec.md
// §4.6). Anything not present here is treated as an already-XISO source.
var redumpLayouts = []redumpLayout{
	{length: 0x1D26A8000, gameOffset: 0x18300000, targetLength: 0x1A2DB0000}, // XGD1
	{length: 0x1D3301800, gameOffset: 0xFD90000, targetLength: 0x1B3880000},  // XGD2 variant 1
	{length: 0x1D2FEF800, gameOffset: 0xFD90000, targetLength: 0x1B3880000},  // XGD2 variant 2
	{length: 0x1D3082000, gameOffset: 0xFD90000, targetLength: 0x1B3880000},  // XGD2 variant 3
	{length: 0x1D3390000, gameOffset: 0xFD90000, targetLength: 0x1B3880000},  // XGD2 variant 4
	{length: 0x1D31A0000, gameOffset: 0x89D80000, targetLength: 0xBF8A0000},  // XGD2 Hybrid
	{length: 0x208E05800, gameOffset: 0x2080000, targetLength: 0x204510000},  // XGD3 variant 1
	{length: 0x208E03800, gameOffset: 0x2080000, targetLength: 0x204510000},  // XGD3 variant 2
}

// detectSourceLayout classifies a source by its exact byte length, returning
// the game-partition offset into the source and the nominal target length.
// A source matching none of the known lengths is treated as already an
// XISO: inputOffset 0, targetLength equal to the source length.
func detectSourceLayout(sourceLength int64) (inputOffset int64, targetLength int64) {
	for _, layout := range redumpLayouts {
		if layout.length == sourceLength {
			return layout.gameOffset, layout.targetLength
		}
	}

	return 0, sourceLength
}

// TrimmerOptions configures a single Trimmer.Run invocation.
type TrimmerOptions struct {
	// SkipSystemUpdate excludes the $SystemUpdate subtree (exact-match) from
	// the output, per spec.md §4.4. Honoring this is the newer, authoritative
	// behavior (spec.md §9).
	SkipSystemUpdate bool

	// SkipSystemUpdatePrefix additionally excludes any subtree whose name
	// begins with "$SystemUpdate" — the looser variant the source's rebuild
	// path used (spec.md §4.4, §9).
	SkipSystemUpdatePrefix bool

	// CheckIntegrity re-invokes the Verifier against the freshly written
	// output before reporting success (spec.md §4.6).
	CheckIntegrity bool

	Progress ProgressSink
	Cancel   CancellationSource
	Logger   LoggerSink
}

// Trimmer is a streaming writer that copies valid sector ranges from a source
// XDVDFS/Redump image to a trimmed output, zero-filling gaps between ranges
// and truncating after the last valid sector (spec.md §4.6).
type Trimmer struct {
	options TrimmerOptions
}

// NewTrimmer returns a Trimmer configured with the given options.
func NewTrimmer(options TrimmerOptions) *Trimmer {
	return &Trimmer{options: options}
}

// Run converts sourcePath into destPath. See spec.md §4.6 for the full
// algorithm and §6 for the result-code vocabulary.
func (t *Trimmer) Run(sourcePath string, destPath string) (result ResultCode, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			result, err = Failed, wrapRecovered(errRaw)
		}
	}()

	src, err := os.Open(sourcePath)
	log.PanicIf(err)

	defer src.Close()

	info, err := src.Stat()
	log.PanicIf(err)

	sourceLength := info.Size()

	inputOffset, targetLength := detectSourceLayout(sourceLength)

	ss, err := NewSectorStream(src)
	log.PanicIf(err)

	vd, err := FindVolumeDescriptorWithHint(ss, inputOffset)
	if err != nil {
		return Failed, err
	}

	walkOptions := TreeWalkerOptions{
		SkipSystemUpdateExact:  t.options.SkipSystemUpdate,
		SkipSystemUpdatePrefix: t.options.SkipSystemUpdatePrefix,
	}

	ranges, diagnostics, err := BuildRanges(ss, vd, walkOptions)
	log.PanicIf(err)

	if diagnostics != nil && t.options.Logger != nil {
		t.options.Logger.Printf("recovered corrupt entries while scanning %s: %s", sourcePath, diagnostics.Error())
	}

	if len(ranges) <= 1 {
		return Failed, ErrNoFilesystem
	}

	lastValidSector := ranges[len(ranges)-1].End

	if inputOffset == 0 && sourceLength <= int64(lastValidSector+1)*SectorSize {
		return AlreadyOptimized, nil
	}

	written, result, err := t.writeTrimmed(src, destPath, inputOffset, targetLength, lastValidSector, ranges)
	if err != nil {
		os.Remove(destPath)
		return result, err
	}

	if t.options.CheckIntegrity == true {
		err = t.verifyOutput(destPath)
		if err != nil {
			os.Remove(destPath)
			return Failed, ErrVerificationFailed
		}
	}

	if t.options.Logger != nil {
		t.options.Logger.Printf("wrote %s bytes to %s", humanize.Comma(written), destPath)
	}

	return Converted, nil
}

// writeTrimmed performs the streaming copy/zero-fill/truncate loop (spec.md
// §4.6 "Write loop"). src's cursor is expected to track the physical read
// position across iterations; it is only ever seeked forward, for gaps.
func (t *Trimmer) writeTrimmed(src *os.File, destPath string, inputOffset int64, targetLength int64, lastValidSector uint32, ranges []Range) (written int64, result ResultCode, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			result, err = Failed, wrapRecovered(errRaw)
		}
	}()

	dst, err := os.Create(destPath)
	log.PanicIf(err)

	defer dst.Close()

	_, err = src.Seek(inputOffset, io.SeekStart)
	log.PanicIf(err)

	copyBuffer := make([]byte, copyBufferSectors*SectorSize)
	zeroBuffer := make([]byte, copyBufferSectors*SectorSize)

	var bytesDone int64

	rangeIdx := 0
	lastMilestone := int64(0)

	for bytesDone < targetLength {
		if t.options.Cancel != nil && t.options.Cancel.IsCancelled() == true {
			dst.Close()
			os.Remove(destPath)
			return bytesDone, Failed, ErrCancelled
		}

		phys := inputOffset + bytesDone
		curSector := uint32((phys + SectorSize - 1) / SectorSize)

		if curSector > lastValidSector {
			break
		}

		for rangeIdx < len(ranges) && curSector > ranges[rangeIdx].End {
			rangeIdx++
		}

		r := ranges[rangeIdx]

		if curSector >= r.Start {
			copyLen := int64(r.End+1)*SectorSize - phys

			err = copyExact(src, dst, copyBuffer, copyLen)
			log.PanicIf(err)

			bytesDone += copyLen
		} else {
			wipe := int64(r.Start)*SectorSize - phys
			if wipe%SectorSize != 0 {
				return bytesDone, Failed, ErrMisalignedFiller
			}

			err = writeZeroes(dst, zeroBuffer, wipe)
			log.PanicIf(err)

			_, err = src.Seek(wipe, io.SeekCurrent)
			log.PanicIf(err)

			bytesDone += wipe
		}

		if t.options.Progress != nil && bytesDone-lastMilestone >= progressMilestoneBytes {
			lastMilestone = bytesDone

			t.options.Progress.Report(ProgressEvent{
				StatusText:     "converting",
				BytesProcessed: bytesDone,
				TotalBytes:     targetLength,
			})
		}
	}

	err = dst.Truncate(bytesDone)
	log.PanicIf(err)

	return bytesDone, Converted, nil
}

// copyExact copies exactly n bytes from src to dst using the given scratch
// buffer, in buffer-sized chunks.
func copyExact(src io.Reader, dst io.Writer, buffer []byte, n int64) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	remaining := n

	for remaining > 0 {
		chunk := int64(len(buffer))
		if chunk > remaining {
			chunk = remaining
		}

		read, err := io.ReadFull(src, buffer[:chunk])
		log.PanicIf(err)

		_, err = dst.Write(buffer[:read])
		log.PanicIf(err)

		remaining -= int64(read)
	}

	return nil
}

// writeZeroes writes exactly n zero bytes to dst using the given scratch
// buffer (which must already be zeroed), in buffer-sized chunks.
func writeZeroes(dst io.Writer, buffer []byte, n int64) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	remaining := n

	for remaining > 0 {
		chunk := int64(len(buffer))
		if chunk > remaining {
			chunk = remaining
		}

		_, err := dst.Write(buffer[:chunk])
		log.PanicIf(err)

		remaining -= chunk
	}

	return nil
}

func (t *Trimmer) verifyOutput(destPath string) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	verifier := NewVerifier(VerifierOptions{Cancel: t.options.Cancel, Logger: t.options.Logger})

	state, _, err := verifier.Run(destPath)
	log.PanicIf(err)

	if state != Passed {
		return ErrVerificationFailed
	}

	return nil
}

// trimGapAlwaysZero is the older, unexported alternate gap-handling
// algorithm the source also exposed (spec.md §9 "Open questions"): it always
// writes zeros for a gap and unconditionally seeks the input forward by the
// sector size, rather than classifying the gap against the Range List first.
// It is kept for documentation purposes only — Trimmer.Run never calls it.
func trimGapAlwaysZero(src *os.File, dst *os.File, zeroBuffer []byte) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	_, err = dst.Write(zeroBuffer[:SectorSize])
	log.PanicIf(err)

	_, err = src.Seek(SectorSize, io.SeekCurrent)
	log.PanicIf(err)

	return nil
}
