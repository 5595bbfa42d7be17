package xdvdfs

import (
	"strings"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

const (
	// entryHeaderSize is the fixed-width portion of a directory entry, before
	// the variable-length name (spec.md §4.3, §6).
	entryHeaderSize = 14

	// emptyTableSentinel is the value of Left at intraOffset 0 that marks an
	// empty directory table.
	emptyTableSentinel = 0xFFFF

	// noChildSentinel marks "no child" for Left (at non-zero intra-offset)
	// and Right.
	noChildSentinel = 0xFFFF

	attrDirectoryBit = 0x10
)

// entryHeader is the fixed-width on-disc prefix of a directory entry.
type entryHeader struct {
	Left         uint16
	Right        uint16
	StartSector  uint32
	FileSize     uint32
	Attributes   uint8
	NameLength   uint8
}

// DirectoryEntry is a value-typed snapshot of a single on-disc filesystem
// entry. It carries its own (sector, offset) coordinate and no back-
// reference (spec.md §3 "Ownership", §9 "recursive types").
type DirectoryEntry struct {
	Left        uint16
	Right       uint16
	StartSector uint32
	FileSize    uint32
	Attributes  uint8
	Name        string

	EntrySector uint32
	EntryOffset uint32
}

// IsDirectory reports whether attribute bit 4 is set.
func (de DirectoryEntry) IsDirectory() bool {
	return de.Attributes&attrDirectoryBit != 0
}

// LeftChildIntraOffset returns the real intra-table byte offset of the left
// child, or -1 if there is none.
func (de DirectoryEntry) LeftChildIntraOffset() int64 {
	if de.Left == noChildSentinel {
		return -1
	}

	return int64(de.Left) * 4
}

// RightChildIntraOffset returns the real intra-table byte offset of the right
// child, or -1 if there is none.
func (de DirectoryEntry) RightChildIntraOffset() int64 {
	if de.Right == noChildSentinel {
		return -1
	}

	return int64(de.Right) * 4
}

// entryByteLength is the total on-disc length of this entry (header + name,
// padded to a 4-byte boundary).
func entryByteLength(nameLength uint8) uint32 {
	raw := uint32(entryHeaderSize) + uint32(nameLength)
	return (raw + 3) &^ 3
}

// decodeDirectoryEntryResult distinguishes the three terminal states a decode
// attempt can reach.
type decodeDirectoryEntryResult int

const (
	decodedEntry decodeDirectoryEntryResult = iota
	decodedEmptyTable
	decodedCorrupt
)

// DecodeDirectoryEntry reads a single entry at (tableSector, intraOffset)
// within a directory table of the given byte size. It never returns a Go
// error for on-disc corruption — instead result indicates decodedCorrupt,
// decodedEmptyTable, or decodedEntry, matching spec.md §4.3's "the walker
// treats such entries as missing and continues with siblings".
func DecodeDirectoryEntry(ss *SectorStream, tableSector uint32, tableSize uint32, intraOffset uint32) (de DirectoryEntry, result decodeDirectoryEntryResult, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	if intraOffset+2 > tableSize {
		return DirectoryEntry{}, decodedCorrupt, nil
	}

	position := ss.AbsolutePosition(tableSector, intraOffset)

	leftRaw := make([]byte, 2)

	n, err := ss.ReadAt(position, leftRaw)
	log.PanicIf(err)

	if n != 2 {
		return DirectoryEntry{}, decodedCorrupt, nil
	}

	left := defaultEncoding.Uint16(leftRaw)

	if intraOffset == 0 && left == emptyTableSentinel {
		return DirectoryEntry{}, decodedEmptyTable, nil
	}

	if intraOffset+entryHeaderSize > tableSize {
		return DirectoryEntry{}, decodedCorrupt, nil
	}

	headerRaw := make([]byte, entryHeaderSize)

	n, err = ss.ReadAt(position, headerRaw)
	log.PanicIf(err)

	if n != entryHeaderSize {
		return DirectoryEntry{}, decodedCorrupt, nil
	}

	var header entryHeader

	err = restruct.Unpack(headerRaw, defaultEncoding, &header)
	log.PanicIf(err)

	totalLen := entryByteLength(header.NameLength)
	if intraOffset+totalLen > tableSize {
		return DirectoryEntry{}, decodedCorrupt, nil
	}

	nameRaw := make([]byte, header.NameLength)

	if header.NameLength > 0 {
		n, err = ss.ReadAt(position+entryHeaderSize, nameRaw)
		log.PanicIf(err)

		if n != int(header.NameLength) {
			return DirectoryEntry{}, decodedCorrupt, nil
		}
	}

	de = DirectoryEntry{
		Left:        header.Left,
		Right:       header.Right,
		StartSector: header.StartSector,
		FileSize:    header.FileSize,
		Attributes:  header.Attributes,
		Name:        decodeEntryName(nameRaw),
		EntrySector: tableSector,
		EntryOffset: intraOffset,
	}

	return de, decodedEntry, nil
}

// decodeEntryName decodes raw ASCII name bytes: truncate at the first NUL,
// trim surrounding ASCII whitespace.
func decodeEntryName(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			raw = raw[:i]
			break
		}
	}

	return strings.TrimSpace(string(raw))
}

// EncodeDirectoryEntry serializes an entry back to its on-disc bytes,
// including name and padding. Used by the round-trip property test
// (spec.md §8, property 2).
func EncodeDirectoryEntry(de DirectoryEntry) (raw []byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	header := entryHeader{
		Left:        de.Left,
		Right:       de.Right,
		StartSector: de.StartSector,
		FileSize:    de.FileSize,
		Attributes:  de.Attributes,
		NameLength:  uint8(len(de.Name)),
	}

	headerRaw, err := restruct.Pack(defaultEncoding, &header)
	log.PanicIf(err)

	totalLen := entryByteLength(header.NameLength)

	raw = make([]byte, totalLen)
	copy(raw, headerRaw)
	copy(raw[entryHeaderSize:], de.Name)

	return raw, nil
}
