package xdvdfs

import (
	"github.com/boljen/go-bitmap"
	"github.com/dsoprea/go-logging"
)

// ValidSectorSet tracks which sector indices are referenced by the header,
// a directory table, or file content (spec.md §3). It is backed by a sized
// bitmap rather than a map, since the total sector count is known up front
// from the stream length.
type ValidSectorSet struct {
	bm   bitmap.Bitmap
	size int
}

// NewValidSectorSet allocates a set large enough to address every sector in
// a stream of the given byte length.
func NewValidSectorSet(streamLength int64) *ValidSectorSet {
	size := int((streamLength + SectorSize - 1) / SectorSize)
	if size < 1 {
		size = 1
	}

	return &ValidSectorSet{
		bm:   bitmap.New(size),
		size: size,
	}
}

// Add marks a sector as valid. Sectors beyond the set's bound are ignored —
// they cannot correspond to real data in a stream of the size the set was
// sized for.
func (vss *ValidSectorSet) Add(sector uint32) {
	if int(sector) >= vss.size {
		return
	}

	vss.bm.Set(int(sector), true)
}

// AddRange marks every sector in [start, end] (inclusive) as valid.
func (vss *ValidSectorSet) AddRange(start, end uint32) {
	for s := start; ; s++ {
		vss.Add(s)

		if s >= end {
			break
		}
	}
}

// Range is an inclusive (Start, End) pair of sector indices.
type Range struct {
	Start uint32
	End   uint32
}

// SortedRanges merges contiguous sectors into a sorted, disjoint list of
// inclusive ranges (spec.md §4.5, §8 property 3).
func (vss *ValidSectorSet) SortedRanges() []Range {
	ranges := make([]Range, 0)

	var current *Range

	for i := 0; i < vss.size; i++ {
		if vss.bm.Get(i) == false {
			current = nil
			continue
		}

		if current != nil && current.End == uint32(i)-1 {
			current.End = uint32(i)
			continue
		}

		ranges = append(ranges, Range{Start: uint32(i), End: uint32(i)})
		current = &ranges[len(ranges)-1]
	}

	return ranges
}

// BuildRanges walks the full tree (header + directory tables + file content)
// and returns the merged, sorted Range List the Trimmer consumes, along with
// any recovered CorruptEntry diagnostics (spec.md §4.5).
func BuildRanges(ss *SectorStream, vd VolumeDescriptor, options TreeWalkerOptions) (ranges []Range, diagnostics error, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	vss := NewValidSectorSet(ss.Length())

	// Pre-seed the two header sectors: the volume descriptor's own sector
	// (0x10000 bytes past the volume offset) and the sector after it
	// (spec.md §4.5 step 1 — offset here is the volume offset already
	// committed onto the stream).
	headerBase := uint32((ss.VolumeOffset() + 0x10000) / SectorSize)
	vss.Add(headerBase)
	vss.Add(headerBase + 1)

	// volumeSectorBase relocates a file entry's partition-relative StartSector
	// into the same absolute-sector space the header pre-seed and
	// recordHeaderSectors already use, so a Redump source (non-zero
	// VolumeOffset) marks its real file sectors valid instead of sectors in
	// the video partition ahead of it.
	volumeSectorBase := uint32(ss.VolumeOffset() / SectorSize)

	tw := NewTreeWalker(ss, options)

	cb := func(path []string, entry DirectoryEntry) (err error) {
		if entry.IsDirectory() == false && entry.StartSector != 0 {
			sectorCount := (entry.FileSize + SectorSize - 1) / SectorSize
			if sectorCount == 0 {
				return nil
			}

			start := entry.StartSector + volumeSectorBase
			vss.AddRange(start, start+sectorCount-1)
		}

		return nil
	}

	diagnostics, err = tw.Walk(vd.RootDirSector, vd.RootDirSize, cb)
	log.PanicIf(err)

	for _, sector := range tw.HeaderSectors {
		vss.Add(sector)
	}

	return vss.SortedRanges(), diagnostics, nil
}
