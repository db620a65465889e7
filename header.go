package gpt

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/go-gpt/gogpt/geometry"
	"github.com/go-gpt/gogpt/guid"
)

// HeaderSignature is the ASCII magic "EFI PART" read as a little-endian
// uint64, matching the on-disk field.
const HeaderSignature uint64 = 0x5452415020494645

// HeaderRevision is the only header revision this package understands.
const HeaderRevision uint32 = 0x00010000

// MinHeaderSize is the minimum valid value of Header.HeaderSize.
const MinHeaderSize uint32 = 92

// MinPartitionArrayBytes is the minimum number of bytes reserved for the
// partition array, regardless of how many entries are actually in use.
const MinPartitionArrayBytes = 16384

// DefaultPartitionEntrySize is the on-disk size of one partition entry.
const DefaultPartitionEntrySize uint32 = 128

// Role distinguishes the primary header (LBA 1) from the backup header
// (the disk's last LBA), which differ in MyLBA/AlternateLBA/
// PartitionEntryLBA.
type Role int

const (
	RolePrimary Role = iota
	RoleBackup
)

// Header is the 92-byte (plus reserved padding, out to one logical block)
// GPT header. Two copies exist on every GPT disk: the primary at LBA 1 and
// the backup at the disk's last LBA.
type Header struct {
	Signature                uint64
	Revision                 uint32
	HeaderSize               uint32
	HeaderCRC32              uint32
	Reserved                 uint32
	MyLBA                    uint64
	AlternateLBA             uint64
	FirstUsableLBA           uint64
	LastUsableLBA            uint64
	DiskGUID                 guid.Uuid
	PartitionEntryLBA        uint64
	NumberOfPartitionEntries uint32
	SizeOfPartitionEntry     uint32
	PartitionEntryArrayCRC32 uint32
}

// arrayBlocks returns ceil(max(MinPartitionArrayBytes, count*entrySize) /
// blockSize), the number of blocks reserved for the partition array.
func arrayBlocks(count int, entrySize uint32, bs geometry.BlockSize) geometry.Block {
	sz := geometry.ByteSize(uint64(count) * uint64(entrySize))
	if sz < MinPartitionArrayBytes {
		sz = MinPartitionArrayBytes
	}
	return geometry.BlocksForBytes(sz, bs)
}

// NewHeader derives a Header for the given role from disk geometry, rather
// than reading one off disk. partitionsCRC32 and partitionsCount describe
// the partition array this header will point at; partitionEntrySize is
// normally DefaultPartitionEntrySize.
func NewHeader(
	role Role,
	bs geometry.BlockSize,
	diskSize geometry.ByteSize,
	partitionsCRC32 uint32,
	partitionsCount int,
	diskGUID guid.Uuid,
	partitionEntrySize uint32,
	align geometry.Alignment,
) (Header, error) {
	last, err := geometry.LastLBA(diskSize, bs)
	if err != nil {
		return Header{}, wrapErr(KindGeometryInvalid, err, "deriving header geometry")
	}
	blocks := arrayBlocks(partitionsCount, partitionEntrySize, bs)

	var firstUsable geometry.Block
	switch align {
	case geometry.AlignmentMinimal:
		firstUsable = blocks + 2
	default:
		firstUsable = geometry.OptimalAlignmentLBA
	}
	if uint64(last) < uint64(blocks)+1 {
		return Header{}, newErr(KindGeometryInvalid, "disk too small to hold a %d-block partition array", blocks)
	}
	lastUsable := geometry.Block(uint64(last) - uint64(blocks) - 1)
	if firstUsable > lastUsable {
		return Header{}, newErr(KindGeometryInvalid, "disk too small: first usable LBA %d exceeds last usable LBA %d", firstUsable, lastUsable)
	}

	h := Header{
		Signature:                HeaderSignature,
		Revision:                 HeaderRevision,
		HeaderSize:               MinHeaderSize,
		FirstUsableLBA:           uint64(firstUsable),
		LastUsableLBA:            uint64(lastUsable),
		DiskGUID:                 diskGUID,
		NumberOfPartitionEntries: uint32(partitionsCount),
		SizeOfPartitionEntry:     partitionEntrySize,
		PartitionEntryArrayCRC32: partitionsCRC32,
	}

	switch role {
	case RolePrimary:
		h.MyLBA = 1
		h.AlternateLBA = uint64(last)
		h.PartitionEntryLBA = 2
	case RoleBackup:
		h.MyLBA = uint64(last)
		h.AlternateLBA = 1
		h.PartitionEntryLBA = uint64(lastUsable) + 1
	}
	return h, nil
}

// ReadHeader decodes and validates a GPT header from a block-size buffer,
// checking the signature, revision, header size bounds, CRC32, and that
// MyLBA equals expectedThisLBA (the LBA the buffer was read from).
func ReadHeader(data []byte, bs geometry.BlockSize, expectedThisLBA geometry.Block) (Header, error) {
	if uint64(len(data)) != uint64(bs) {
		return Header{}, wrapErr(KindInvalidHeaderSize, nil, "header block must be %d bytes, got %d", bs, len(data))
	}

	var h Header
	if err := binary.Read(bytes.NewReader(data[:binary.Size(Header{})]), binary.LittleEndian, &h); err != nil {
		return Header{}, wrapErr(KindInvalidHeaderSize, err, "decoding GPT header")
	}

	if h.Signature != HeaderSignature {
		return Header{}, newErr(KindInvalidSignature, "signature %#016x, want %#016x", h.Signature, HeaderSignature)
	}
	if h.Revision != HeaderRevision {
		return Header{}, newErr(KindInvalidRevision, "revision %#08x, want %#08x", h.Revision, HeaderRevision)
	}
	if h.HeaderSize < MinHeaderSize || uint64(h.HeaderSize) > uint64(bs) {
		return Header{}, newErr(KindInvalidHeaderSize, "header size %d out of range [%d, %d]", h.HeaderSize, MinHeaderSize, bs)
	}
	if h.Reserved != 0 {
		return Header{}, newErr(KindInvalidHeaderSize, "reserved field must be zero, got %#08x", h.Reserved)
	}
	if !isValidEntrySize(h.SizeOfPartitionEntry) {
		return Header{}, newErr(KindInvalidHeaderSize, "partition entry size %d is not 128*2^n", h.SizeOfPartitionEntry)
	}
	if h.MyLBA != uint64(expectedThisLBA) {
		return Header{}, newErr(KindWrongLocation, "header claims MyLBA %d, read from LBA %d", h.MyLBA, expectedThisLBA)
	}
	if h.FirstUsableLBA > h.LastUsableLBA {
		return Header{}, newErr(KindInvalidHeaderSize, "first usable LBA %d exceeds last usable LBA %d", h.FirstUsableLBA, h.LastUsableLBA)
	}

	// Hash the raw bytes, not a re-encoding of the struct: a header whose
	// HeaderSize exceeds the 92-byte fixed portion includes its zero
	// reserved padding in the checksum.
	storedCRC := h.HeaderCRC32
	hashed := make([]byte, h.HeaderSize)
	copy(hashed, data[:h.HeaderSize])
	for i := 16; i < 20; i++ {
		hashed[i] = 0
	}
	if gotCRC := crc32.ChecksumIEEE(hashed); gotCRC != storedCRC {
		return Header{}, newErr(KindBadHeaderCrc, "stored %#08x, computed %#08x", storedCRC, gotCRC)
	}

	return h, nil
}

func isValidEntrySize(n uint32) bool {
	if n < DefaultPartitionEntrySize || n%DefaultPartitionEntrySize != 0 {
		return false
	}
	return (n/DefaultPartitionEntrySize)&((n/DefaultPartitionEntrySize)-1) == 0
}

// headerChecksum computes the IEEE CRC32 of h's first headerSize bytes with
// HeaderCRC32 already zeroed by the caller. A headerSize beyond the fixed
// 92-byte portion covers reserved padding, which is always zero on write,
// so the encoding is zero-extended before hashing.
func headerChecksum(h Header, headerSize int) (uint32, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return 0, err
	}
	encoded := buf.Bytes()
	if headerSize > len(encoded) {
		encoded = append(encoded, make([]byte, headerSize-len(encoded))...)
	}
	return crc32.ChecksumIEEE(encoded[:headerSize]), nil
}

// Write serializes h into dest (which must be at least binary.Size(Header{})
// bytes), computing and patching in HeaderCRC32 over h.HeaderSize bytes
// with the CRC field zeroed, per the UEFI spec.
func (h Header) Write(dest []byte) error {
	sz := binary.Size(Header{})
	if len(dest) < sz {
		return wrapErr(KindInvalidHeaderSize, nil, "destination must be at least %d bytes, got %d", sz, len(dest))
	}
	h.HeaderCRC32 = 0
	crc, err := headerChecksum(h, int(h.HeaderSize))
	if err != nil {
		return wrapErr(KindBadHeaderCrc, err, "computing header checksum")
	}
	h.HeaderCRC32 = crc

	buf := bytes.NewBuffer(dest[:0])
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return wrapErr(KindInvalidHeaderSize, err, "encoding GPT header")
	}
	for i := buf.Len(); i < len(dest); i++ {
		dest[i] = 0
	}
	return nil
}
