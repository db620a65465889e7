package gpt

import (
	"errors"
	"testing"

	"github.com/go-gpt/gogpt/geometry"
	"github.com/go-gpt/gogpt/guid"
)

const (
	testBlockSize = geometry.BlockSize(512)
	testDiskSize  = geometry.ByteSize(10 * 1024 * 1024)
)

func mustGUID(t *testing.T, s string) guid.Uuid {
	t.Helper()
	u, err := guid.FromRFC4122String(s)
	if err != nil {
		t.Fatalf("FromRFC4122String(%q): %v", s, err)
	}
	return u
}

// buildScenario1 produces the 10 MiB image described as scenario 1: one
// partition starting at 1 MiB, spanning 8 MiB.
func buildScenario1(t *testing.T) ([]byte, Table) {
	t.Helper()
	diskGUID := mustGUID(t, "A17875FB-1D86-EE4D-8DFE-E3E8ABBCD364")
	partGUID := mustGUID(t, "97954376-2BB6-534B-A015-DF434A94ABA2")

	tbl, err := NewTable(testBlockSize, testDiskSize, WithUUID(diskGUID))
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	startLBA := uint64(1024 * 1024 / uint64(testBlockSize))
	sizeLBA := uint64(8 * 1024 * 1024 / uint64(testBlockSize))
	p := PartitionEntry{
		PartitionTypeGUID:   mustGUID(t, "0FC63DAF-8483-4772-8E79-3D69D8477DE4"),
		UniquePartitionGUID: partGUID,
		StartingLBA:         startLBA,
		EndingLBA:           startLBA + sizeLBA - 1,
	}
	if err := p.SetName("root"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if err := tbl.AddPartition(p); err != nil {
		t.Fatalf("AddPartition: %v", err)
	}

	buf := make([]byte, testDiskSize)
	if err := tbl.ToBytes(buf); err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	return buf, tbl
}

func TestFromBytesScenario1(t *testing.T) {
	buf, _ := buildScenario1(t)
	tbl, err := FromBytes(buf, testBlockSize)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got, want := len(tbl.Partitions()), 1; got != want {
		t.Fatalf("partition count = %d, want %d", got, want)
	}
}

func TestFromBytesMissingMBR(t *testing.T) {
	buf := make([]byte, 1024)
	_, err := FromBytes(buf, testBlockSize)
	if !errors.Is(err, ErrInvalidMbr) {
		t.Fatalf("err = %v, want ErrInvalidMbr", err)
	}
}

func TestFromBytesMissingHeader(t *testing.T) {
	buf, _ := buildScenario1(t)
	for i := 512; i < 1024; i++ {
		buf[i] = 0
	}
	_, err := FromBytes(buf, testBlockSize)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestFromBytesToleratesNonCanonicalCHS(t *testing.T) {
	buf, _ := buildScenario1(t)
	// Overwrite partition record 0's starting CHS (bytes 447-449 of the
	// MBR) with the kind of value parted leaves behind.
	buf[447] = 0x01
	buf[448] = 0x01
	buf[449] = 0x00

	tbl, err := FromBytes(buf, testBlockSize)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if len(tbl.Warnings) != 1 || tbl.Warnings[0].Kind != KindToleratedCHS {
		t.Fatalf("Warnings = %+v, want one KindToleratedCHS warning", tbl.Warnings)
	}
	if got := len(tbl.Partitions()); got != 1 {
		t.Fatalf("partition count = %d, want 1", got)
	}
}

func TestRoundTrip(t *testing.T) {
	buf, original := buildScenario1(t)
	tbl, err := FromBytes(buf, testBlockSize)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}

	fresh := make([]byte, testDiskSize)
	if err := tbl.ToBytes(fresh); err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	reread, err := FromBytes(fresh, testBlockSize)
	if err != nil {
		t.Fatalf("FromBytes (reread): %v", err)
	}

	if reread.UUID() != original.UUID() {
		t.Fatalf("disk GUID changed across round trip")
	}
	origParts := original.Partitions()
	rereadParts := reread.Partitions()
	if len(origParts) != len(rereadParts) {
		t.Fatalf("partition count changed: %d vs %d", len(origParts), len(rereadParts))
	}
	for i := range origParts {
		if origParts[i] != rereadParts[i] {
			t.Fatalf("partition %d changed:\n got  %+v\n want %+v", i, rereadParts[i], origParts[i])
		}
	}
}

func TestCreateFromScratchByteEqualsRead(t *testing.T) {
	buf, _ := buildScenario1(t)

	diskGUID := mustGUID(t, "A17875FB-1D86-EE4D-8DFE-E3E8ABBCD364")
	partGUID := mustGUID(t, "97954376-2BB6-534B-A015-DF434A94ABA2")
	tbl, err := NewTable(testBlockSize, testDiskSize, WithUUID(diskGUID))
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	startLBA := uint64(1024 * 1024 / uint64(testBlockSize))
	sizeLBA := uint64(8 * 1024 * 1024 / uint64(testBlockSize))
	p := PartitionEntry{
		PartitionTypeGUID:   mustGUID(t, "0FC63DAF-8483-4772-8E79-3D69D8477DE4"),
		UniquePartitionGUID: partGUID,
		StartingLBA:         startLBA,
		EndingLBA:           startLBA + sizeLBA - 1,
	}
	if err := p.SetName("root"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if err := tbl.AddPartition(p); err != nil {
		t.Fatalf("AddPartition: %v", err)
	}
	fresh := make([]byte, testDiskSize)
	if err := tbl.ToBytes(fresh); err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	if len(fresh) != len(buf) {
		t.Fatalf("length mismatch: %d vs %d", len(fresh), len(buf))
	}
	for i := range fresh {
		if fresh[i] != buf[i] {
			t.Fatalf("byte %d differs: got %#02x want %#02x", i, fresh[i], buf[i])
		}
	}
}

func TestAddPartitionOverlapRejected(t *testing.T) {
	_, tbl := buildScenario1(t)
	existing := tbl.Partitions()[0]
	dup := existing
	dup.UniquePartitionGUID = mustGUID(t, "11111111-1111-1111-1111-111111111111")
	err := tbl.AddPartition(dup)
	if !errors.Is(err, ErrPartitionOverlap) {
		t.Fatalf("err = %v, want ErrPartitionOverlap", err)
	}
}

func TestAddPartitionOutOfRangeRejected(t *testing.T) {
	tbl, err := NewTable(testBlockSize, testDiskSize)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	p := PartitionEntry{
		PartitionTypeGUID:   mustGUID(t, "0FC63DAF-8483-4772-8E79-3D69D8477DE4"),
		UniquePartitionGUID: mustGUID(t, "22222222-2222-2222-2222-222222222222"),
		StartingLBA:         0,
		EndingLBA:           10,
	}
	if err := tbl.AddPartition(p); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}

func TestAddPartitionCapacityExceeded(t *testing.T) {
	tbl, err := NewTable(testBlockSize, testDiskSize, WithCapacity(1))
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	base := PartitionEntry{
		PartitionTypeGUID: mustGUID(t, "0FC63DAF-8483-4772-8E79-3D69D8477DE4"),
		StartingLBA:       2048,
		EndingLBA:         4095,
	}
	p1 := base
	p1.UniquePartitionGUID = mustGUID(t, "33333333-3333-3333-3333-333333333333")
	if err := tbl.AddPartition(p1); err != nil {
		t.Fatalf("AddPartition 1: %v", err)
	}

	p2 := base
	p2.UniquePartitionGUID = mustGUID(t, "44444444-4444-4444-4444-444444444444")
	p2.StartingLBA = 5000
	p2.EndingLBA = 6000
	if err := tbl.AddPartition(p2); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestRemovePartition(t *testing.T) {
	_, tbl := buildScenario1(t)
	if err := tbl.RemovePartition(0); err != nil {
		t.Fatalf("RemovePartition: %v", err)
	}
	if got := len(tbl.Partitions()); got != 0 {
		t.Fatalf("partition count after remove = %d, want 0", got)
	}
}

func TestSetPartitionNameAndAttributes(t *testing.T) {
	_, tbl := buildScenario1(t)

	if err := tbl.SetPartitionName(0, "data"); err != nil {
		t.Fatalf("SetPartitionName: %v", err)
	}
	if got := tbl.Partitions()[0].Name(); got != "data" {
		t.Fatalf("Name() = %q, want %q", got, "data")
	}

	if err := tbl.SetPartitionAttributes(0, AttrRequiredPartition); err != nil {
		t.Fatalf("SetPartitionAttributes: %v", err)
	}
	if got := tbl.Partitions()[0].Attributes; got != AttrRequiredPartition {
		t.Fatalf("Attributes = %#x, want %#x", got, AttrRequiredPartition)
	}

	if err := tbl.SetPartitionName(5, "nope"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("SetPartitionName(5) err = %v, want ErrOutOfRange", err)
	}
	if err := tbl.SetPartitionAttributes(5, 0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("SetPartitionAttributes(5) err = %v, want ErrOutOfRange", err)
	}
}

func TestRemovePartitionOutOfRange(t *testing.T) {
	tbl, err := NewTable(testBlockSize, testDiskSize)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if err := tbl.RemovePartition(0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}

func TestDestroyOnWriteWithSmallCapacity(t *testing.T) {
	buf, _ := buildScenario1(t)

	// Reading with configured capacity 0 still decodes and CRC-checks the
	// full on-disk array, but retains no partitions in memory.
	small, err := FromBytes(buf, testBlockSize, WithCapacity(0))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got := len(small.Partitions()); got != 0 {
		t.Fatalf("partition count after capacity-0 read = %d, want 0", got)
	}

	out := make([]byte, testDiskSize)
	if err := small.ToBytes(out); err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	reread, err := FromBytes(out, testBlockSize, WithCapacity(128))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got := len(reread.Partitions()); got != 0 {
		t.Fatalf("partition count = %d, want 0", got)
	}
}

func TestNewTableRejectsTinyDisk(t *testing.T) {
	_, err := NewTable(testBlockSize, geometry.ByteSize(100))
	if err == nil {
		t.Fatalf("expected error for disk smaller than 2 blocks")
	}
}

func TestRecoverFromBackupPolicy(t *testing.T) {
	buf, _ := buildScenario1(t)
	// Corrupt the primary header's CRC only; the backup remains intact.
	buf[512+16] ^= 0xFF

	if _, err := FromReaderFn(sliceReadFn(buf), testBlockSize, testDiskSize, StrictPolicy); err == nil {
		t.Fatalf("expected StrictPolicy to reject a corrupt primary header")
	}

	tbl, err := FromReaderFn(sliceReadFn(buf), testBlockSize, testDiskSize, RecoverFromBackupPolicy)
	if err != nil {
		t.Fatalf("RecoverFromBackupPolicy: %v", err)
	}
	if len(tbl.Warnings) == 0 {
		t.Fatalf("expected a recovery warning")
	}
	if got := len(tbl.Partitions()); got != 1 {
		t.Fatalf("partition count = %d, want 1", got)
	}
}

func sliceReadFn(buf []byte) func(offset uint64, dst []byte) error {
	return func(offset uint64, dst []byte) error {
		copy(dst, buf[offset:offset+uint64(len(dst))])
		return nil
	}
}
