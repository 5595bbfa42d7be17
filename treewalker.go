package xdvdfs

import (
	"fmt"
	"strings"

	"github.com/dsoprea/go-logging"
	"github.com/hashicorp/go-multierror"
)

// EntryVisitorFunc is called once per entry yielded by a tree walk (spec.md
// §4.4 "Emit"). path is the sequence of directory names above this entry
// (empty at the root directory's own children).
type EntryVisitorFunc func(path []string, entry DirectoryEntry) (err error)

// workItem identifies the next entry to read within a directory table.
type workItem struct {
	tableSector uint32
	tableSize   uint32
	intraOffset uint32
	path        []string
}

// TreeWalkerOptions configures a single walk.
type TreeWalkerOptions struct {
	// SkipSystemUpdateExact excludes the subtree of an entry named
	// "$SystemUpdate" (case-insensitive exact match). The entry's own record
	// is still emitted so the parent directory table remains intact.
	SkipSystemUpdateExact bool

	// SkipSystemUpdatePrefix excludes the subtree of any entry whose name
	// begins with "$SystemUpdate" (case-insensitive). This is the looser
	// variant the source's rebuild path used (spec.md §4.4).
	SkipSystemUpdatePrefix bool
}

// TreeWalker performs a cycle-safe iterative traversal over the on-disc
// directory binary tree (spec.md §4.4, §9).
type TreeWalker struct {
	ss      *SectorStream
	options TreeWalkerOptions

	stack   []workItem
	visited map[int64]bool

	// HeaderSectors accumulates the sectors belonging to directory tables
	// visited during the walk (added once per table, at intraOffset 0).
	HeaderSectors []uint32
}

// NewTreeWalker returns a walker ready to traverse starting from the root
// directory table described by a VolumeDescriptor.
func NewTreeWalker(ss *SectorStream, options TreeWalkerOptions) *TreeWalker {
	return &TreeWalker{
		ss:            ss,
		options:       options,
		visited:       make(map[int64]bool),
		HeaderSectors: make([]uint32, 0),
	}
}

// Walk traverses the tree rooted at (rootSector, rootSize), calling cb once
// for every entry. Within a table an entry is emitted before its left and
// right subtrees (pre-order); a directory's own contents are visited after
// the directory entry and its left subtree, and before its right subtree.
// Diagnostics accumulates every recovered CorruptEntry
// encountered along the way; a non-nil Diagnostics does not mean the walk
// failed (spec.md §7 — corruption is recovered locally).
func (tw *TreeWalker) Walk(rootSector uint32, rootSize uint32, cb EntryVisitorFunc) (diagnostics error, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = wrapRecovered(errRaw)
		}
	}()

	var diag *multierror.Error

	tw.stack = append(tw.stack, workItem{tableSector: rootSector, tableSize: rootSize, intraOffset: 0})

	for len(tw.stack) > 0 {
		item := tw.stack[len(tw.stack)-1]
		tw.stack = tw.stack[:len(tw.stack)-1]

		if item.intraOffset >= item.tableSize {
			continue
		}

		position := tw.ss.AbsolutePosition(item.tableSector, item.intraOffset)
		if tw.visited[position] == true {
			continue
		}
		tw.visited[position] = true

		if item.intraOffset == 0 {
			tw.recordHeaderSectors(item.tableSector, item.tableSize)
		}

		entry, result, err := DecodeDirectoryEntry(tw.ss, item.tableSector, item.tableSize, item.intraOffset)
		log.PanicIf(err)

		if result == decodedEmptyTable {
			continue
		}

		if result == decodedCorrupt {
			diag = multierror.Append(diag, fmt.Errorf(
				"%w: at sector %d offset %d", ErrCorruptEntry, item.tableSector, item.intraOffset,
			))
			continue
		}

		if entry.RightChildIntraOffset() >= 0 && entry.Right != 0 {
			tw.stack = append(tw.stack, workItem{
				tableSector: item.tableSector,
				tableSize:   item.tableSize,
				intraOffset: uint32(entry.RightChildIntraOffset()),
				path:        item.path,
			})
		}

		err = cb(item.path, entry)
		log.PanicIf(err)

		if entry.IsDirectory() == true && entry.StartSector != 0 && tw.shouldDescend(entry.Name) == true {
			childPath := append(append([]string{}, item.path...), entry.Name)

			tw.stack = append(tw.stack, workItem{
				tableSector: entry.StartSector,
				tableSize:   entry.FileSize,
				intraOffset: 0,
				path:        childPath,
			})
		}

		if entry.Left != noChildSentinel && entry.Left != 0 && uint32(entry.LeftChildIntraOffset()) != item.intraOffset {
			tw.stack = append(tw.stack, workItem{
				tableSector: item.tableSector,
				tableSize:   item.tableSize,
				intraOffset: uint32(entry.LeftChildIntraOffset()),
				path:        item.path,
			})
		}
	}

	if diag != nil {
		diagnostics = diag
	}

	return diagnostics, nil
}

func (tw *TreeWalker) shouldDescend(name string) bool {
	if tw.options.SkipSystemUpdateExact == true && strings.EqualFold(name, "$SystemUpdate") == true {
		return false
	}

	if tw.options.SkipSystemUpdatePrefix == true && len(name) >= len("$SystemUpdate") &&
		strings.EqualFold(name[:len("$SystemUpdate")], "$SystemUpdate") == true {
		return false
	}

	return true
}

func (tw *TreeWalker) recordHeaderSectors(tableSector uint32, tableSize uint32) {
	base := tw.ss.AbsolutePosition(tableSector, 0) / SectorSize
	sectorCount := (int64(tableSize) + SectorSize - 1) / SectorSize

	for i := int64(0); i < sectorCount; i++ {
		tw.HeaderSectors = append(tw.HeaderSectors, uint32(base+i))
	}
}
