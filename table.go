// Package gpt implements the GUID Partition Table format defined by the
// UEFI specification (§5.3): a Protective MBR, a primary header and
// partition array, and a backup copy of both at the end of the device.
//
// The package is synchronous and performs no I/O of its own; callers
// supply either a contiguous byte buffer or a pair of offset-addressed
// callbacks (see the ioadapter subpackage). A Table is safe for concurrent
// readers as long as no goroutine mutates it concurrently; there is no
// internal locking.
package gpt

import (
	"hash/crc32"
	"sort"

	"github.com/go-gpt/gogpt/geometry"
	"github.com/go-gpt/gogpt/guid"
	"github.com/go-gpt/gogpt/ioadapter"
)

// DefaultCapacity is the number of partition slots a Table reserves when no
// WithCapacity option is given, matching the 16 KiB/128-byte-entry minimum
// the on-disk format reserves regardless of how many partitions are
// actually in use.
const DefaultCapacity = 128

// ReadPolicy controls how FromReaderFn behaves when the primary and backup
// copies of the table disagree or one of them fails validation.
type ReadPolicy int

const (
	// StrictPolicy rejects the read unless both the primary and backup
	// header/array validate independently and agree with each other. This
	// is the default and matches the original implementation's
	// unconditional CRC-mismatch rejection.
	StrictPolicy ReadPolicy = iota
	// RecoverFromBackupPolicy allows FromReaderFn to succeed using
	// whichever of the primary/backup copies validates, when the other
	// is corrupt or disagrees. The resulting Table carries a Warning
	// describing which side was used for recovery.
	RecoverFromBackupPolicy
)

// TableOption configures NewTable.
type TableOption func(*tableOptions)

type tableOptions struct {
	capacity    int
	capacitySet bool
	align       geometry.Alignment
	diskGUID    *guid.Uuid
}

// WithCapacity sets the number of partition slots a Table accepts, zero
// included. On read, the on-disk array is still decoded and CRC-checked in
// full; used entries beyond the configured capacity are simply not retained
// in memory. On write, the reserved on-disk region is still at least
// MinPartitionArrayBytes regardless of this value; capacities smaller than
// that many 128-byte entries produce a non-standard but valid table.
func WithCapacity(n int) TableOption {
	return func(o *tableOptions) { o.capacity = n; o.capacitySet = true }
}

// WithAlignment selects where the first usable LBA is placed. The default
// is geometry.AlignmentOptimal.
func WithAlignment(a geometry.Alignment) TableOption {
	return func(o *tableOptions) { o.align = a }
}

// WithUUID sets the table's disk GUID explicitly instead of generating a
// random one.
func WithUUID(u guid.Uuid) TableOption {
	return func(o *tableOptions) { o.diskGUID = &u }
}

// Table is the in-memory model of a GPT-formatted device: a disk GUID,
// block/disk geometry, and an ordered collection of used partitions. It
// holds no external resources and requires no explicit cleanup.
type Table struct {
	blockSize          geometry.BlockSize
	diskSize           geometry.ByteSize
	diskGUID           guid.Uuid
	capacity           int
	align              geometry.Alignment
	partitionEntrySize uint32
	partitions         []PartitionEntry

	// Warnings accumulates non-fatal diagnostics produced by the most
	// recent FromBytes/FromReaderFn call: tolerated Protective MBR CHS
	// deviations, and recovery notices under RecoverFromBackupPolicy.
	Warnings []Warning
}

func resolveOptions(opts []TableOption) (tableOptions, error) {
	o := tableOptions{capacity: DefaultCapacity, align: geometry.AlignmentOptimal}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < 0 {
		return o, newErr(KindInvalidArgument, "capacity must not be negative, got %d", o.capacity)
	}
	return o, nil
}

// NewTable creates an empty table for a device of the given block size and
// total size, with a random v4 disk GUID unless WithUUID overrides it.
func NewTable(bs geometry.BlockSize, diskSize geometry.ByteSize, opts ...TableOption) (Table, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return Table{}, err
	}
	if _, err := geometry.LastLBA(diskSize, bs); err != nil {
		return Table{}, wrapErr(KindGeometryInvalid, err, "validating disk geometry")
	}
	diskGUID := o.diskGUID
	var g guid.Uuid
	if diskGUID != nil {
		g = *diskGUID
	} else {
		g, err = guid.NewV4()
		if err != nil {
			return Table{}, wrapErr(KindIO, err, "generating disk GUID")
		}
	}
	return Table{
		blockSize:          bs,
		diskSize:           diskSize,
		diskGUID:           g,
		capacity:           o.capacity,
		align:              o.align,
		partitionEntrySize: DefaultPartitionEntrySize,
	}, nil
}

// UUID returns the table's disk GUID.
func (t *Table) UUID() guid.Uuid { return t.diskGUID }

// SetUUID replaces the table's disk GUID.
func (t *Table) SetUUID(u guid.Uuid) { t.diskGUID = u }

// Partitions returns a copy of the table's used partitions, sorted by
// starting LBA. Mutating the returned slice does not affect the table.
func (t *Table) Partitions() []PartitionEntry {
	out := make([]PartitionEntry, len(t.partitions))
	copy(out, t.partitions)
	return out
}

func (t *Table) lastLBA() geometry.Block {
	last, _ := geometry.LastLBA(t.diskSize, t.blockSize)
	return last
}

func (t *Table) arrayBlocks() geometry.Block {
	return arrayBlocks(t.capacity, t.partitionEntrySize, t.blockSize)
}

func (t *Table) firstUsableLBA() geometry.Block {
	blocks := t.arrayBlocks()
	if t.align == geometry.AlignmentMinimal {
		return blocks + 2
	}
	return geometry.OptimalAlignmentLBA
}

func (t *Table) lastUsableLBA() geometry.Block {
	return geometry.Block(uint64(t.lastLBA()) - uint64(t.arrayBlocks()) - 1)
}

// AddPartition validates p against the table's usable-LBA range (I1) and
// against every existing used partition for overlap (I2), then inserts it,
// keeping the collection sorted by starting LBA. It fails without
// modifying the table if p is out of range, overlaps an existing
// partition, or the table is already at capacity.
func (t *Table) AddPartition(p PartitionEntry) error {
	first, last := t.firstUsableLBA(), t.lastUsableLBA()
	if p.StartingLBA < uint64(first) || p.EndingLBA > uint64(last) || p.StartingLBA > p.EndingLBA {
		return newErr(KindOutOfRange, "partition [%d, %d] outside usable range [%d, %d]", p.StartingLBA, p.EndingLBA, first, last)
	}
	if p.UniquePartitionGUID.IsZero() {
		return newErr(KindInvalidArgument, "partition GUID must not be zero")
	}
	for _, existing := range t.partitions {
		if existing.UniquePartitionGUID == p.UniquePartitionGUID {
			return newErr(KindInvalidArgument, "partition GUID %v already in use", p.UniquePartitionGUID)
		}
		if existing.overlaps(p) {
			return newErr(KindPartitionOverlap, "partition [%d, %d] overlaps existing [%d, %d]", p.StartingLBA, p.EndingLBA, existing.StartingLBA, existing.EndingLBA)
		}
	}
	if len(t.partitions) >= t.capacity {
		return newErr(KindCapacityExceeded, "table already holds the maximum %d partitions", t.capacity)
	}

	t.partitions = append(t.partitions, p)
	sort.Slice(t.partitions, func(i, j int) bool {
		return t.partitions[i].StartingLBA < t.partitions[j].StartingLBA
	})
	return nil
}

// RemovePartition removes the partition at index i of the slice Partitions
// would currently return. Indices are only valid until the next mutation:
// AddPartition or RemovePartition may reorder or shift every later index.
func (t *Table) RemovePartition(i int) error {
	if i < 0 || i >= len(t.partitions) {
		return newErr(KindOutOfRange, "partition index %d out of range [0, %d)", i, len(t.partitions))
	}
	t.partitions = append(t.partitions[:i], t.partitions[i+1:]...)
	return nil
}

// SetPartitionName renames the partition at index i of the slice Partitions
// would currently return. The name is subject to the same length limit as
// PartitionEntry.SetName.
func (t *Table) SetPartitionName(i int, name string) error {
	if i < 0 || i >= len(t.partitions) {
		return newErr(KindOutOfRange, "partition index %d out of range [0, %d)", i, len(t.partitions))
	}
	return t.partitions[i].SetName(name)
}

// SetPartitionAttributes replaces the attribute bitmask of the partition at
// index i of the slice Partitions would currently return.
func (t *Table) SetPartitionAttributes(i int, attrs uint64) error {
	if i < 0 || i >= len(t.partitions) {
		return newErr(KindOutOfRange, "partition index %d out of range [0, %d)", i, len(t.partitions))
	}
	t.partitions[i].Attributes = attrs
	return nil
}

type headerAndArray struct {
	header Header
	array  []byte
}

func readSide(read ioadapter.ReadFunc, role Role, bs geometry.BlockSize, headerLBA geometry.Block) (headerAndArray, error) {
	buf := make([]byte, bs)
	if err := read(uint64(headerLBA.Offset(bs)), buf); err != nil {
		return headerAndArray{}, wrapErr(KindIO, err, "reading %v header", role)
	}
	h, err := ReadHeader(buf, bs, headerLBA)
	if err != nil {
		return headerAndArray{}, err
	}

	arraySize := uint64(h.NumberOfPartitionEntries) * uint64(h.SizeOfPartitionEntry)
	array := make([]byte, arraySize)
	if arraySize > 0 {
		if err := read(uint64(geometry.Block(h.PartitionEntryLBA).Offset(bs)), array); err != nil {
			return headerAndArray{}, wrapErr(KindIO, err, "reading %v partition array", role)
		}
	}
	if crc32.ChecksumIEEE(array) != h.PartitionEntryArrayCRC32 {
		return headerAndArray{}, newErr(KindBadArrayCrc, "%v partition array CRC mismatch", role)
	}
	return headerAndArray{header: h, array: array}, nil
}

func (r Role) String() string {
	if r == RolePrimary {
		return "primary"
	}
	return "backup"
}

// FromBytes decodes a table from a contiguous in-memory device image of
// exactly len(buf) bytes, under StrictPolicy.
func FromBytes(buf []byte, bs geometry.BlockSize, opts ...TableOption) (Table, error) {
	return FromReaderFn(ioadapter.NewSliceReader(buf), bs, geometry.ByteSize(len(buf)), StrictPolicy, opts...)
}

// FromReaderFn decodes a table by issuing offset-addressed reads against
// read: Protective MBR, primary header and array, backup header and array,
// then cross-validation between the two copies. Under StrictPolicy any failure aborts with no partial
// Table constructed. Under RecoverFromBackupPolicy, a failure or
// disagreement on one side is tolerated if the other side validates fully;
// the returned Table's Warnings records that a recovery occurred.
//
// By default the table's capacity is taken from the on-disk entry count,
// or is DefaultCapacity when the on-disk count is smaller. A
// WithCapacity option overrides it: the full array is still decoded,
// CRC-checked, and validated, but used entries beyond the configured
// capacity are not retained in memory.
func FromReaderFn(read ioadapter.ReadFunc, bs geometry.BlockSize, diskSize geometry.ByteSize, policy ReadPolicy, opts ...TableOption) (Table, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return Table{}, err
	}
	if !bs.Valid() {
		return Table{}, newErr(KindGeometryInvalid, "invalid block size %d", bs)
	}
	last, err := geometry.LastLBA(diskSize, bs)
	if err != nil {
		return Table{}, wrapErr(KindGeometryInvalid, err, "validating disk geometry")
	}

	mbrBuf := make([]byte, MbrSize)
	if err := read(0, mbrBuf); err != nil {
		return Table{}, wrapErr(KindIO, err, "reading protective MBR")
	}
	_, mbrWarnings, err := ReadMbr(mbrBuf)
	if err != nil {
		return Table{}, err
	}

	primary, primaryErr := readSide(read, RolePrimary, bs, 1)
	backup, backupErr := readSide(read, RoleBackup, bs, last)

	var warnings []Warning
	warnings = append(warnings, mbrWarnings...)

	var src headerAndArray
	switch {
	case primaryErr == nil && backupErr == nil:
		if err := crossValidate(primary.header, backup.header, last); err != nil {
			if policy == StrictPolicy {
				return Table{}, err
			}
			warnings = append(warnings, Warning{Kind: KindInconsistentHeaders, Message: "primary/backup disagree, using primary: " + err.Error()})
		}
		src = primary
	case primaryErr == nil && backupErr != nil:
		if policy == StrictPolicy {
			return Table{}, wrapErr(KindInconsistentHeaders, backupErr, "backup header/array invalid")
		}
		warnings = append(warnings, Warning{Kind: KindInconsistentHeaders, Message: "backup invalid, using primary: " + backupErr.Error()})
		src = primary
	case primaryErr != nil && backupErr == nil:
		if policy == StrictPolicy {
			return Table{}, wrapErr(KindInconsistentHeaders, primaryErr, "primary header/array invalid")
		}
		warnings = append(warnings, Warning{Kind: KindInconsistentHeaders, Message: "primary invalid, recovered from backup: " + primaryErr.Error()})
		src = backup
	default:
		return Table{}, wrapErr(KindInconsistentHeaders, primaryErr, "both primary and backup headers invalid (backup: %v)", backupErr)
	}

	t := Table{
		blockSize:          bs,
		diskSize:           diskSize,
		diskGUID:           src.header.DiskGUID,
		capacity:           int(src.header.NumberOfPartitionEntries),
		align:              o.align,
		partitionEntrySize: src.header.SizeOfPartitionEntry,
		Warnings:           warnings,
	}
	if o.capacitySet {
		t.capacity = o.capacity
	} else if t.capacity < DefaultCapacity {
		t.capacity = DefaultCapacity
	}

	count := int(src.header.NumberOfPartitionEntries)
	entrySize := src.header.SizeOfPartitionEntry
	for i := 0; i < count; i++ {
		off := i * int(entrySize)
		e, err := readPartitionEntry(src.array[off:off+int(entrySize)], entrySize)
		if err != nil {
			return Table{}, wrapErr(KindInvalidHeaderSize, err, "decoding partition entry %d", i)
		}
		if !e.IsUsed() {
			continue
		}
		t.partitions = append(t.partitions, e)
	}
	sort.Slice(t.partitions, func(i, j int) bool {
		return t.partitions[i].StartingLBA < t.partitions[j].StartingLBA
	})

	first, lastUsable := geometry.Block(src.header.FirstUsableLBA), geometry.Block(src.header.LastUsableLBA)
	seen := map[guid.Uuid]bool{}
	for i, p := range t.partitions {
		if p.StartingLBA < uint64(first) || p.EndingLBA > uint64(lastUsable) || p.StartingLBA > p.EndingLBA {
			return Table{}, newErr(KindOutOfRange, "partition %d [%d, %d] outside usable range [%d, %d]", i, p.StartingLBA, p.EndingLBA, first, lastUsable)
		}
		if seen[p.UniquePartitionGUID] {
			return Table{}, newErr(KindInvalidArgument, "duplicate partition GUID %v", p.UniquePartitionGUID)
		}
		seen[p.UniquePartitionGUID] = true
		if i > 0 && t.partitions[i-1].overlaps(p) {
			return Table{}, newErr(KindPartitionOverlap, "partitions %d and %d overlap", i-1, i)
		}
	}

	// The on-disk array has been decoded and validated in full above; the
	// in-memory table only retains up to its configured capacity.
	if len(t.partitions) > t.capacity {
		t.partitions = t.partitions[:t.capacity]
	}

	return t, nil
}

// crossValidate checks the step-6 cross-checks between an independently
// validated primary and backup header.
func crossValidate(primary, backup Header, last geometry.Block) error {
	if primary.AlternateLBA != uint64(last) {
		return newErr(KindInconsistentHeaders, "primary alt_lba %d != last LBA %d", primary.AlternateLBA, last)
	}
	if backup.AlternateLBA != 1 {
		return newErr(KindInconsistentHeaders, "backup alt_lba %d != 1", backup.AlternateLBA)
	}
	if primary.Revision != backup.Revision {
		return newErr(KindInconsistentHeaders, "primary/backup revision mismatch")
	}
	if primary.DiskGUID != backup.DiskGUID {
		return newErr(KindInconsistentHeaders, "primary/backup disk GUID mismatch")
	}
	if primary.PartitionEntryArrayCRC32 != backup.PartitionEntryArrayCRC32 {
		return newErr(KindInconsistentHeaders, "primary/backup partition array CRC mismatch")
	}
	if primary.FirstUsableLBA != backup.FirstUsableLBA || primary.LastUsableLBA != backup.LastUsableLBA {
		return newErr(KindInconsistentHeaders, "primary/backup usable range mismatch")
	}
	return nil
}

// encodeArray returns the reserved on-disk array region (zero-padded out to
// arrayBlocks()*blockSize) and the CRC32 of just the declared
// capacity*partitionEntrySize content bytes within it, the same region
// FromReaderFn hashes back when validating PartitionEntryArrayCRC32.
func (t *Table) encodeArray() ([]byte, uint32, error) {
	contentSize := t.capacity * int(t.partitionEntrySize)
	diskSize := int(arrayBlocks(t.capacity, t.partitionEntrySize, t.blockSize)) * int(t.blockSize)
	buf := make([]byte, diskSize)
	for i, p := range t.partitions {
		off := i * int(t.partitionEntrySize)
		if err := writePartitionEntry(p, buf[off:off+int(t.partitionEntrySize)], t.partitionEntrySize); err != nil {
			return nil, 0, err
		}
	}
	return buf, crc32.ChecksumIEEE(buf[:contentSize]), nil
}

// ToBytes serializes the table into buf, which must be exactly
// t.diskSize bytes.
func (t *Table) ToBytes(buf []byte) error {
	if geometry.ByteSize(len(buf)) != t.diskSize {
		return wrapErr(KindGeometryInvalid, nil, "buffer must be %d bytes, got %d", t.diskSize, len(buf))
	}
	return t.ToWriterFn(ioadapter.NewSliceWriter(buf))
}

// ToWriterFn serializes the table by issuing offset-addressed writes
// against write, in order: Protective MBR, backup array, backup header,
// primary array, primary header. This ordering minimizes
// the window during a crash in which neither header would be valid: the
// backup is fully committed before the primary (the copy most readers
// trust) is ever touched.
func (t *Table) ToWriterFn(write ioadapter.WriteFunc) error {
	last, err := geometry.LastLBA(t.diskSize, t.blockSize)
	if err != nil {
		return wrapErr(KindGeometryInvalid, err, "validating disk geometry")
	}

	array, arrayCRC, err := t.encodeArray()
	if err != nil {
		return err
	}

	primaryHeader, err := NewHeader(RolePrimary, t.blockSize, t.diskSize, arrayCRC, t.capacity, t.diskGUID, t.partitionEntrySize, t.align)
	if err != nil {
		return err
	}
	backupHeader, err := NewHeader(RoleBackup, t.blockSize, t.diskSize, arrayCRC, t.capacity, t.diskGUID, t.partitionEntrySize, t.align)
	if err != nil {
		return err
	}

	mbr := NewMbr(last)
	mbrBuf := make([]byte, MbrSize)
	if err := mbr.Write(mbrBuf); err != nil {
		return err
	}
	if err := write(0, mbrBuf); err != nil {
		return wrapErr(KindIO, err, "writing protective MBR")
	}

	if err := write(uint64(geometry.Block(backupHeader.PartitionEntryLBA).Offset(t.blockSize)), array); err != nil {
		return wrapErr(KindIO, err, "writing backup partition array")
	}

	backupBuf := make([]byte, t.blockSize)
	if err := backupHeader.Write(backupBuf); err != nil {
		return err
	}
	if err := write(uint64(last.Offset(t.blockSize)), backupBuf); err != nil {
		return wrapErr(KindIO, err, "writing backup header")
	}

	if err := write(uint64(geometry.Block(primaryHeader.PartitionEntryLBA).Offset(t.blockSize)), array); err != nil {
		return wrapErr(KindIO, err, "writing primary partition array")
	}

	primaryBuf := make([]byte, t.blockSize)
	if err := primaryHeader.Write(primaryBuf); err != nil {
		return err
	}
	if err := write(uint64(geometry.Block(1).Offset(t.blockSize)), primaryBuf); err != nil {
		return wrapErr(KindIO, err, "writing primary header")
	}

	return nil
}
