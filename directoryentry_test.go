package xdvdfs

import (
	"testing"
)

func TestDirectoryEntry_RoundTrip(t *testing.T) {
	original := DirectoryEntry{
		Left:        12,
		Right:       noChildSentinel,
		StartSector: 777,
		FileSize:    54321,
		Attributes:  attrDirectoryBit,
		Name:        "SOMEDIR",
	}

	raw, err := EncodeDirectoryEntry(original)
	if err != nil {
		t.Fatalf("EncodeDirectoryEntry: %v", err)
	}

	tableSize := uint32(len(raw))

	image := newFixtureImage(4)
	placeBytes(image, 1, raw)

	ss, err := NewSectorStream(OpenBytesSource(image))
	if err != nil {
		t.Fatalf("NewSectorStream: %v", err)
	}

	decoded, result, err := DecodeDirectoryEntry(ss, 1, tableSize, 0)
	if err != nil {
		t.Fatalf("DecodeDirectoryEntry: %v", err)
	}

	if result != decodedEntry {
		t.Fatalf("result = %v, want decodedEntry", result)
	}

	if decoded.Left != original.Left || decoded.Right != original.Right ||
		decoded.StartSector != original.StartSector || decoded.FileSize != original.FileSize ||
		decoded.Attributes != original.Attributes || decoded.Name != original.Name {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", decoded, original)
	}

	if decoded.EntrySector != 1 || decoded.EntryOffset != 0 {
		t.Fatalf("coordinate not recorded: got sector=%d offset=%d", decoded.EntrySector, decoded.EntryOffset)
	}
}

func TestDirectoryEntry_EmptyTable(t *testing.T) {
	image := newFixtureImage(2)
	placeBytes(image, 1, emptyTable(SectorSize))

	ss, err := NewSectorStream(OpenBytesSource(image))
	if err != nil {
		t.Fatalf("NewSectorStream: %v", err)
	}

	_, result, err := DecodeDirectoryEntry(ss, 1, SectorSize, 0)
	if err != nil {
		t.Fatalf("DecodeDirectoryEntry: %v", err)
	}

	if result != decodedEmptyTable {
		t.Fatalf("result = %v, want decodedEmptyTable", result)
	}
}

func TestDirectoryEntry_CorruptTruncatedHeader(t *testing.T) {
	image := newFixtureImage(2)
	// Only 4 bytes of table content: enough to fail the emptyTableSentinel
	// check and then fail the header-bounds check.
	image[1*SectorSize] = 0x01
	image[1*SectorSize+1] = 0x00

	ss, err := NewSectorStream(OpenBytesSource(image))
	if err != nil {
		t.Fatalf("NewSectorStream: %v", err)
	}

	_, result, err := DecodeDirectoryEntry(ss, 1, 4, 0)
	if err != nil {
		t.Fatalf("DecodeDirectoryEntry: %v", err)
	}

	if result != decodedCorrupt {
		t.Fatalf("result = %v, want decodedCorrupt", result)
	}
}

func TestDirectoryEntry_CorruptNameRunsPastTable(t *testing.T) {
	entry := DirectoryEntry{
		Left: 0, Right: 0,
		Attributes: 0, StartSector: 5, FileSize: 5,
		Name: "TOOLONGNAME",
	}

	raw, err := EncodeDirectoryEntry(entry)
	if err != nil {
		t.Fatalf("EncodeDirectoryEntry: %v", err)
	}

	image := newFixtureImage(2)
	placeBytes(image, 1, raw)

	ss, err := NewSectorStream(OpenBytesSource(image))
	if err != nil {
		t.Fatalf("NewSectorStream: %v", err)
	}

	// Declare a table size that ends in the middle of the name field.
	truncatedTableSize := uint32(entryHeaderSize + 2)

	_, result, err := DecodeDirectoryEntry(ss, 1, truncatedTableSize, 0)
	if err != nil {
		t.Fatalf("DecodeDirectoryEntry: %v", err)
	}

	if result != decodedCorrupt {
		t.Fatalf("result = %v, want decodedCorrupt", result)
	}
}
