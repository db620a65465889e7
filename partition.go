package gpt

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"

	"github.com/go-gpt/gogpt/geometry"
	"github.com/go-gpt/gogpt/guid"
	"github.com/go-gpt/gogpt/registry"
)

// Partition attribute bits, the three the UEFI spec defines. Bits 3-47 are
// reserved and bits 48-63 are type-specific; both ranges are preserved
// verbatim on round-trip but not otherwise interpreted.
const (
	// AttrRequiredPartition marks a partition firmware must not ignore.
	AttrRequiredPartition uint64 = 1 << 0
	// AttrNoBlockIOProtocol tells firmware not to produce a block I/O
	// device for this partition.
	AttrNoBlockIOProtocol uint64 = 1 << 1
	// AttrLegacyBIOSBootable mirrors the MBR active/bootable flag for
	// BIOS boot shims that inspect the GPT directly.
	AttrLegacyBIOSBootable uint64 = 1 << 2
)

// partitionNameUTF16Units is the number of UTF-16 code units the on-disk
// 72-byte name field holds.
const partitionNameUTF16Units = 36

// PartitionEntry is one 128-byte record in a GPT partition array: a type
// GUID, a per-partition GUID, a starting/ending LBA range, an attribute
// bitmask, and a UTF-16LE name.
type PartitionEntry struct {
	PartitionTypeGUID   guid.Uuid
	UniquePartitionGUID guid.Uuid
	StartingLBA         uint64
	EndingLBA           uint64
	Attributes          uint64
	PartitionName       [partitionNameUTF16Units]uint16
}

// IsUsed reports whether this entry describes a partition, i.e. whether its
// type GUID is non-zero. The partition array may contain unused entries
// interleaved with used ones; callers should not assume all used entries
// are contiguous at the front of the array.
func (p PartitionEntry) IsUsed() bool {
	return !p.PartitionTypeGUID.IsZero()
}

// Start returns the byte offset of the partition's first block.
func (p PartitionEntry) Start(bs geometry.BlockSize) geometry.Offset {
	return geometry.Block(p.StartingLBA).Offset(bs)
}

// End returns the byte offset one past the partition's last block.
func (p PartitionEntry) End(bs geometry.BlockSize) geometry.Offset {
	return geometry.Block(p.EndingLBA + 1).Offset(bs)
}

// Name decodes the partition's UTF-16LE name, stopping at the first NUL
// code unit (or the end of the field if there is none).
func (p PartitionEntry) Name() string {
	n := len(p.PartitionName)
	for i, u := range p.PartitionName {
		if u == 0 {
			n = i
			break
		}
	}
	return string(utf16.Decode(p.PartitionName[:n]))
}

// SetName encodes name as UTF-16LE into the partition's name field,
// NUL-padding the remainder. It returns an error if the encoded name
// (including a required NUL terminator when shorter than the field) does
// not fit in the 36 UTF-16 code units the field holds.
func (p *PartitionEntry) SetName(name string) error {
	units := utf16.Encode([]rune(name))
	if len(units) > partitionNameUTF16Units {
		return newErr(KindInvalidArgument, "partition name %q is too long: %d UTF-16 units, max %d", name, len(units), partitionNameUTF16Units)
	}
	var field [partitionNameUTF16Units]uint16
	copy(field[:], units)
	p.PartitionName = field
	return nil
}

// readPartitionEntry decodes one 128-byte partition entry from data, which
// must be exactly entrySize bytes. entrySize may exceed the 128-byte fixed
// portion this struct represents, in which case the trailing bytes are
// vendor-defined padding this package ignores.
func readPartitionEntry(data []byte, entrySize uint32) (PartitionEntry, error) {
	fixed := binary.Size(PartitionEntry{})
	if len(data) != int(entrySize) || int(entrySize) < fixed {
		return PartitionEntry{}, wrapErr(KindInvalidHeaderSize, nil, "partition entry must be at least %d bytes, got %d", fixed, len(data))
	}
	var e PartitionEntry
	if err := binary.Read(bytes.NewReader(data[:fixed]), binary.LittleEndian, &e); err != nil {
		return PartitionEntry{}, wrapErr(KindInvalidHeaderSize, err, "decoding partition entry")
	}
	return e, nil
}

// writePartitionEntry serializes e into dest, which must be exactly
// entrySize bytes; any bytes beyond the 128-byte fixed portion are zeroed.
func writePartitionEntry(e PartitionEntry, dest []byte, entrySize uint32) error {
	fixed := binary.Size(PartitionEntry{})
	if len(dest) != int(entrySize) || int(entrySize) < fixed {
		return wrapErr(KindInvalidHeaderSize, nil, "partition entry destination must be at least %d bytes, got %d", fixed, len(dest))
	}
	buf := bytes.NewBuffer(dest[:0])
	if err := binary.Write(buf, binary.LittleEndian, e); err != nil {
		return wrapErr(KindInvalidHeaderSize, err, "encoding partition entry")
	}
	for i := buf.Len(); i < len(dest); i++ {
		dest[i] = 0
	}
	return nil
}

// TypeName returns the well-known name for the partition's type GUID (e.g.
// "Linux filesystem data"), falling back to the GUID's RFC 4122 string form
// for an unrecognized type.
func (p PartitionEntry) TypeName() string {
	return registry.Name(p.PartitionTypeGUID)
}

// overlaps reports whether p and other, both used partitions, share any LBA.
func (p PartitionEntry) overlaps(other PartitionEntry) bool {
	return p.StartingLBA <= other.EndingLBA && other.StartingLBA <= p.EndingLBA
}
