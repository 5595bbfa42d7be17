// This package manages the low-level, on-disk storage structures of an
// XDVDFS (Xbox DVD Volume Descriptor File System) image.
package xdvdfs

import (
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
	"github.com/xaionaro-go/bytesextra"
)

// SectorSize is the fixed XDVDFS sector size in bytes.
const SectorSize = 2048

// SectorStream is a random-access view over a source image, treating it as a
// sequence of SectorSize-byte sectors. It owns the handle it wraps exclusively
// for the duration of a single Trimmer or Verifier invocation (see spec.md §5
// — single-threaded per image, no cross-thread sharing of the stream).
type SectorStream struct {
	rs io.ReadSeeker

	// volumeOffset relocates every subsequent sector address. It is set once,
	// during volume-descriptor discovery, and is fixed thereafter.
	volumeOffset int64

	length int64
}

// NewSectorStream wraps an already-open, read-only random-access handle. The
// core makes no assumption about transport: rs may be a local *os.File, a
// network-backed reader, or an in-memory buffer (see OpenBytesSource).
func NewSectorStream(rs io.ReadSeeker) (ss *SectorStream, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	length, err := rs.Seek(0, io.SeekEnd)
	log.PanicIf(err)

	_, err = rs.Seek(0, io.SeekStart)
	log.PanicIf(err)

	ss = &SectorStream{
		rs:     rs,
		length: length,
	}

	return ss, nil
}

// OpenBytesSource wraps an in-memory image as an io.ReadSeeker, suitable for
// passing to NewSectorStream. This is the transport the test-suite and the
// synthetic-fixture helpers use in place of real disc files.
func OpenBytesSource(image []byte) io.ReadSeeker {
	return bytesextra.NewReadWriteSeeker(image)
}

// Length returns the total byte length of the underlying stream.
func (ss *SectorStream) Length() int64 {
	return ss.length
}

// VolumeOffset returns the currently effective base offset.
func (ss *SectorStream) VolumeOffset() int64 {
	return ss.volumeOffset
}

// SetVolumeOffset commits the base offset discovered by the volume-descriptor
// reader. It is only ever meant to be called once, immediately after a
// successful FindVolumeDescriptor.
func (ss *SectorStream) SetVolumeOffset(offset int64) {
	ss.volumeOffset = offset
}

// AbsolutePosition computes the absolute stream byte position for a given
// sector and intra-sector offset, honoring the current volume offset.
func (ss *SectorStream) AbsolutePosition(sector uint32, intraOffset uint32) int64 {
	return ss.volumeOffset + int64(sector)*SectorSize + int64(intraOffset)
}

// ReadAt is a positioned read. It returns the number of bytes actually read;
// reading at or past end-of-stream is reported as a short read (possibly
// zero), never as an error — I/O errors other than EOF propagate unchanged.
func (ss *SectorStream) ReadAt(position int64, buf []byte) (n int, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	if position >= ss.length {
		return 0, nil
	}

	_, err = ss.rs.Seek(position, io.SeekStart)
	log.PanicIf(err)

	n, err = io.ReadFull(ss.rs, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return n, nil
	}
	log.PanicIf(err)

	return n, nil
}

// ReadFileBytes reads up to len(buf) bytes of file content at logicalOffset
// within a file whose data starts at startSector. If the absolute byte
// position is at or beyond end-of-stream it returns 0; otherwise it returns
// the raw read length, which may be short at EOF.
func (ss *SectorStream) ReadFileBytes(startSector uint32, fileSize uint32, logicalOffset int64, buf []byte) (n int, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	if logicalOffset >= int64(fileSize) {
		return 0, nil
	}

	remaining := int64(fileSize) - logicalOffset
	readLen := int64(len(buf))
	if readLen > remaining {
		readLen = remaining
	}

	position := ss.AbsolutePosition(startSector, 0) + logicalOffset

	n, err = ss.ReadAt(position, buf[:readLen])
	log.PanicIf(err)

	return n, nil
}

// wrapRecovered normalizes a recover() value to an error, mirroring the
// teacher's panic/recover idiom used at every exported boundary.
func wrapRecovered(errRaw interface{}) (err error) {
	if asErr, ok := errRaw.(error); ok == true {
		return log.Wrap(asErr)
	}

	return log.Errorf("error not an error: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
}
