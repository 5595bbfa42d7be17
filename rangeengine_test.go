package xdvdfs

import (
	"reflect"
	"testing"
)

func TestValidSectorSet_SortedRangesMergesContiguous(t *testing.T) {
	vss := NewValidSectorSet(20 * SectorSize)

	vss.AddRange(2, 4)
	vss.AddRange(5, 5)
	vss.AddRange(10, 12)
	vss.Add(13)

	got := vss.SortedRanges()
	want := []Range{{Start: 2, End: 5}, {Start: 10, End: 13}}

	if reflect.DeepEqual(got, want) != true {
		t.Fatalf("SortedRanges = %+v, want %+v", got, want)
	}
}

func TestValidSectorSet_AddIgnoresOutOfBounds(t *testing.T) {
	vss := NewValidSectorSet(4 * SectorSize)

	vss.Add(1000)

	got := vss.SortedRanges()
	if len(got) != 0 {
		t.Fatalf("SortedRanges = %+v, want empty", got)
	}
}

func TestBuildRanges_CoversHeaderTableAndFile(t *testing.T) {
	image := standardFixture(t)

	ss, err := NewSectorStream(OpenBytesSource(image))
	if err != nil {
		t.Fatalf("NewSectorStream: %v", err)
	}

	vd, err := FindVolumeDescriptor(ss)
	if err != nil {
		t.Fatalf("FindVolumeDescriptor: %v", err)
	}

	ranges, diagnostics, err := BuildRanges(ss, vd, TreeWalkerOptions{})
	if err != nil {
		t.Fatalf("BuildRanges: %v", err)
	}

	if diagnostics != nil {
		t.Fatalf("unexpected diagnostics: %v", diagnostics)
	}

	if len(ranges) == 0 {
		t.Fatalf("BuildRanges returned no ranges")
	}

	containsSector := func(sector uint32) bool {
		for _, r := range ranges {
			if sector >= r.Start && sector <= r.End {
				return true
			}
		}
		return false
	}

	for _, sector := range []uint32{32, 33, 64, 70, 80, 90} {
		if containsSector(sector) != true {
			t.Fatalf("expected sector %d to be covered by %+v", sector, ranges)
		}
	}
}

func TestBuildRanges_NonZeroVolumeOffsetMarksFileSectorsValid(t *testing.T) {
	const volumeOffsetSectors = 50

	image := standardFixtureAtOffset(t, volumeOffsetSectors)

	ss, err := NewSectorStream(OpenBytesSource(image))
	if err != nil {
		t.Fatalf("NewSectorStream: %v", err)
	}

	hintOffset := int64(volumeOffsetSectors) * SectorSize

	vd, err := FindVolumeDescriptorWithHint(ss, hintOffset)
	if err != nil {
		t.Fatalf("FindVolumeDescriptorWithHint: %v", err)
	}

	if ss.VolumeOffset() != hintOffset {
		t.Fatalf("VolumeOffset = %d, want %d", ss.VolumeOffset(), hintOffset)
	}

	ranges, diagnostics, err := BuildRanges(ss, vd, TreeWalkerOptions{})
	if err != nil {
		t.Fatalf("BuildRanges: %v", err)
	}

	if diagnostics != nil {
		t.Fatalf("unexpected diagnostics: %v", diagnostics)
	}

	containsSector := func(sector uint32) bool {
		for _, r := range ranges {
			if sector >= r.Start && sector <= r.End {
				return true
			}
		}
		return false
	}

	// Every referenced sector must land in absolute (volume-offset-relative)
	// space: volumeOffsetSectors + the partition-relative sector number.
	for _, relative := range []uint32{32, 33, 64, 70, 80, 90} {
		absolute := volumeOffsetSectors + relative
		if containsSector(absolute) != true {
			t.Fatalf("expected absolute sector %d (partition-relative %d) to be covered by %+v", absolute, relative, ranges)
		}
	}

	// Regression guard: a file's bare partition-relative sector number must
	// not appear as if it were already absolute — that was the bug, where
	// file-data sectors skipped the volume-offset base that header and
	// directory-table sectors already apply.
	if containsSector(70) == true {
		t.Fatalf("file sector recorded at its bare partition-relative position (70) instead of the absolute position %d", volumeOffsetSectors+70)
	}
}
