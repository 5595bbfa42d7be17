package xdvdfs

import (
	"bytes"
	"encoding/binary"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// defaultEncoding is the byte order for every multi-byte field in the XDVDFS
// on-disc format (spec.md §6 — all multi-byte integers are little-endian).
var defaultEncoding = binary.LittleEndian

const (
	volumeMagicSize   = 20
	volumeMagicOffset = 0x7EC

	// magicLayoutToolSignature appears in the original source but is not
	// referenced anywhere in the traversal logic; its purpose is unclear and
	// it is deliberately unused here too (spec.md §9).
	magicLayoutToolSignature = "XBOX_DVD_LAYOUT_TOOL_SIG"

	// redumpDualLayerOffset is the volume offset of the game partition on a
	// Redump dual-layer dump (video partition ahead of the game partition).
	// spec.md §4.2 names this candidate as "2048 * 32 * 6192 = 0x5DA80000",
	// but that product is actually 0x18300000 (which collides with the XGD1
	// game-partition offset in redumpLayouts) — the multiplication and the
	// hex literal disagree. The hex literal is the real dual-layer offset
	// (see DESIGN.md); it is stated directly rather than reproduce the
	// spec's incorrect factoring.
	redumpDualLayerOffset = int64(0x5DA80000)
)

var volumeMagic = []byte("MICROSOFT*XBOX*MEDIA")

// volumeCandidate is one of the three fixed (sector, volumeOffset) locations
// the reader tries, in order, to find a valid volume descriptor.
type volumeCandidate struct {
	sector       uint32
	volumeOffset int64
}

var volumeCandidates = []volumeCandidate{
	{sector: 32, volumeOffset: 0},                       // standard XISO
	{sector: 32, volumeOffset: redumpDualLayerOffset},    // Redump dual-layer
	{sector: 0, volumeOffset: 0},                         // rebuilt/trimmed XISO
}

// volumeDescriptorHeader is the fixed-width leading portion of the volume
// descriptor sector that this package actually depends on.
type volumeDescriptorHeader struct {
	Magic         [volumeMagicSize]byte
	RootDirSector uint32
	RootDirSize   uint32
}

// VolumeDescriptor reports the commit of a successful volume-descriptor
// lookup (spec.md §3, §4.2).
type VolumeDescriptor struct {
	RootDirSector uint32
	RootDirSize   uint32
	VolumeOffset  int64
}

// FindVolumeDescriptor tries the three candidate locations in fixed order and
// commits the Sector Stream's volume offset on the first one that validates.
// If all three fail, it returns ErrInvalidVolume.
func FindVolumeDescriptor(ss *SectorStream) (vd VolumeDescriptor, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	for _, candidate := range volumeCandidates {
		vd, found, err := tryVolumeCandidate(ss, candidate)
		log.PanicIf(err)

		if found == true {
			ss.SetVolumeOffset(candidate.volumeOffset)
			return vd, nil
		}
	}

	return VolumeDescriptor{}, ErrInvalidVolume
}

// FindVolumeDescriptorWithHint tries a caller-supplied game-partition offset
// (sector 32 within that offset) ahead of the three standard candidates.
// The Trimmer uses this with the offset its Redump size-table lookup already
// computed (spec.md §4.6), since that offset isn't always one of the three
// fixed candidates §4.2 enumerates for the general case. A zero hint is
// skipped (it is already the first standard candidate).
func FindVolumeDescriptorWithHint(ss *SectorStream, hintOffset int64) (vd VolumeDescriptor, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	if hintOffset != 0 {
		hint := volumeCandidate{sector: 32, volumeOffset: hintOffset}

		vd, found, err := tryVolumeCandidate(ss, hint)
		log.PanicIf(err)

		if found == true {
			ss.SetVolumeOffset(hint.volumeOffset)
			return vd, nil
		}
	}

	vd, err = FindVolumeDescriptor(ss)
	log.PanicIf(err)

	return vd, nil
}

func tryVolumeCandidate(ss *SectorStream, candidate volumeCandidate) (vd VolumeDescriptor, found bool, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	absolute := candidate.volumeOffset + int64(candidate.sector)*SectorSize
	if absolute+SectorSize > ss.Length() {
		return VolumeDescriptor{}, false, nil
	}

	headerRaw := make([]byte, volumeMagicSize+4+4)

	n, err := ss.ReadAt(absolute, headerRaw)
	log.PanicIf(err)

	if n != len(headerRaw) {
		return VolumeDescriptor{}, false, nil
	}

	var header volumeDescriptorHeader

	err = restruct.Unpack(headerRaw, defaultEncoding, &header)
	log.PanicIf(err)

	if bytes.Equal(header.Magic[:], volumeMagic) != true {
		return VolumeDescriptor{}, false, nil
	}

	secondMagic := make([]byte, volumeMagicSize)

	n, err = ss.ReadAt(absolute+volumeMagicOffset, secondMagic)
	log.PanicIf(err)

	if n != volumeMagicSize || bytes.Equal(secondMagic, volumeMagic) != true {
		return VolumeDescriptor{}, false, nil
	}

	vd = VolumeDescriptor{
		RootDirSector: header.RootDirSector,
		RootDirSize:   header.RootDirSize,
		VolumeOffset:  candidate.volumeOffset,
	}

	return vd, true, nil
}
