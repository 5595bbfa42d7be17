package xdvdfs

import (
	"encoding/binary"
	"testing"

	"github.com/noxer/bytewriter"
)

// buildTable packs a sequence of entries into a fixed-size directory table
// buffer, in order, using the same sequential-write pattern the source uses
// for assembling on-disc structures from a stream of fields.
func buildTable(t *testing.T, sizeBytes int, entries []DirectoryEntry) []byte {
	t.Helper()

	buf := make([]byte, sizeBytes)
	w := bytewriter.New(buf)

	for _, entry := range entries {
		raw, err := EncodeDirectoryEntry(entry)
		if err != nil {
			t.Fatalf("encode entry %q: %v", entry.Name, err)
		}

		if _, err := w.Write(raw); err != nil {
			t.Fatalf("write entry %q: %v", entry.Name, err)
		}
	}

	return buf
}

// emptyTable returns a table buffer whose first two bytes are the
// empty-table sentinel.
func emptyTable(sizeBytes int) []byte {
	buf := make([]byte, sizeBytes)
	binary.LittleEndian.PutUint16(buf[0:2], emptyTableSentinel)

	return buf
}

// writeVolumeDescriptor stamps a standard-candidate ({sector: 32,
// volumeOffset: 0}) volume descriptor into image.
func writeVolumeDescriptor(image []byte, rootDirSector, rootDirSize uint32) {
	pos := 32 * SectorSize

	copy(image[pos:], volumeMagic)
	binary.LittleEndian.PutUint32(image[pos+volumeMagicSize:], rootDirSector)
	binary.LittleEndian.PutUint32(image[pos+volumeMagicSize+4:], rootDirSize)
	copy(image[pos+volumeMagicOffset:], volumeMagic)
}

// placeBytes copies src into image starting at the given sector, at
// intraOffset 0.
func placeBytes(image []byte, sector uint32, src []byte) {
	pos := int(sector) * SectorSize
	copy(image[pos:], src)
}

// newFixtureImage returns a zero-filled image of the given sector count.
func newFixtureImage(sectorCount int) []byte {
	return make([]byte, sectorCount*SectorSize)
}

// standardFixture builds a small, internally-consistent image:
//
//	root table @ sector 64: "FILE.TXT" (file, 100 bytes @ sector 70),
//	                         "$SystemUpdate" (dir @ sector 80, one-sector table)
//	$SystemUpdate table @ sector 80: "U.BIN" (file, 50 bytes @ sector 90)
func standardFixture(t *testing.T) []byte {
	t.Helper()

	image := newFixtureImage(100)

	writeVolumeDescriptor(image, 64, SectorSize)

	rootEntries := []DirectoryEntry{
		{
			Left: 0, Right: 6,
			Attributes: 0, StartSector: 70, FileSize: 100,
			Name: "FILE.TXT",
		},
		{
			Left: 0, Right: noChildSentinel,
			Attributes: attrDirectoryBit, StartSector: 80, FileSize: SectorSize,
			Name: "$SystemUpdate",
		},
	}

	placeBytes(image, 64, buildTable(t, SectorSize, rootEntries))

	updateEntries := []DirectoryEntry{
		{
			Left: 0, Right: 0,
			Attributes: 0, StartSector: 90, FileSize: 50,
			Name: "U.BIN",
		},
	}

	placeBytes(image, 80, buildTable(t, SectorSize, updateEntries))

	return image
}

// standardFixtureAtOffset builds the same internally-consistent image as
// standardFixture, but with the game partition relocated volumeOffsetSectors
// sectors into the image — simulating a Redump dual-layer dump where a video
// partition precedes the game partition (spec.md §4.2 candidate 2). Every
// directory-entry StartSector stays partition-relative, exactly as the
// on-disc format stores it; only the physical placement within the image
// shifts by the given sector base.
func standardFixtureAtOffset(t *testing.T, volumeOffsetSectors uint32) []byte {
	t.Helper()

	base := volumeOffsetSectors

	image := newFixtureImage(int(base) + 100)

	writeVolumeDescriptor(image[int(base)*SectorSize:], 64, SectorSize)

	rootEntries := []DirectoryEntry{
		{
			Left: 0, Right: 6,
			Attributes: 0, StartSector: 70, FileSize: 100,
			Name: "FILE.TXT",
		},
		{
			Left: 0, Right: noChildSentinel,
			Attributes: attrDirectoryBit, StartSector: 80, FileSize: SectorSize,
			Name: "$SystemUpdate",
		},
	}

	placeBytes(image, base+64, buildTable(t, SectorSize, rootEntries))

	updateEntries := []DirectoryEntry{
		{
			Left: 0, Right: 0,
			Attributes: 0, StartSector: 90, FileSize: 50,
			Name: "U.BIN",
		},
	}

	placeBytes(image, base+80, buildTable(t, SectorSize, updateEntries))

	return image
}

type fakeCancel struct {
	cancelled bool
}

func (f *fakeCancel) IsCancelled() bool {
	return f.cancelled
}
