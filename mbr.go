package gpt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-gpt/gogpt/geometry"
)

// MbrSize is the fixed size in bytes of a Protective MBR.
const MbrSize = 512

const (
	protectiveMBRSignature uint16 = 0xAA55
	protectiveMBROSType    uint8  = 0xEE
	uefiSystemOSType       uint8  = 0xEF
)

var (
	protectiveMBRStartingCHS = [3]byte{0x00, 0x02, 0x00}
	protectiveMBREndingCHS   = [3]byte{0xFF, 0xFF, 0xFF}
)

// MbrPartitionRecord is one of the four 16-byte legacy partition records in
// a Protective MBR.
type MbrPartitionRecord struct {
	BootIndicator uint8
	StartingCHS   [3]byte
	OSType        uint8
	EndingCHS     [3]byte
	StartingLBA   uint32
	SizeInLBA     uint32
}

// Mbr is the 512-byte Protective MBR that occupies LBA 0 of every GPT disk,
// present so legacy, GPT-unaware tools see the disk as entirely occupied by
// a single partition of unrecognized type instead of empty.
type Mbr struct {
	BootCode               [440]byte
	UniqueMBRDiskSignature uint32
	Unknown                uint16
	PartitionRecord        [4]MbrPartitionRecord
	Signature              uint16
}

// NewMbr builds the canonical Protective MBR for a device whose final
// addressable LBA is lastLBA.
func NewMbr(lastLBA geometry.Block) Mbr {
	sizeInLBA := lastLBA.SaturatingUint32()
	return Mbr{
		PartitionRecord: [4]MbrPartitionRecord{
			{
				BootIndicator: 0,
				StartingCHS:   protectiveMBRStartingCHS,
				OSType:        protectiveMBROSType,
				EndingCHS:     protectiveMBREndingCHS,
				StartingLBA:   1,
				SizeInLBA:     sizeInLBA,
			},
		},
		Signature: protectiveMBRSignature,
	}
}

// ReadMbr decodes and validates a 512-byte Protective MBR. A nil error with
// a non-empty Warning slice means the MBR is usable but its CHS fields
// don't match the canonical pattern, a deviation left behind by some
// legacy partitioning tools that this package tolerates rather than
// rejects.
func ReadMbr(data []byte) (Mbr, []Warning, error) {
	if len(data) != MbrSize {
		return Mbr{}, nil, wrapErr(KindInvalidMbr, nil, "expected %d bytes, got %d", MbrSize, len(data))
	}

	var m Mbr
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &m); err != nil {
		return Mbr{}, nil, wrapErr(KindInvalidMbr, err, "decoding Protective MBR")
	}

	if m.Signature != protectiveMBRSignature {
		return Mbr{}, nil, newErr(KindInvalidMbr, "signature %#04x, want %#04x", m.Signature, protectiveMBRSignature)
	}
	if m.UniqueMBRDiskSignature != 0 {
		return Mbr{}, nil, newErr(KindInvalidMbr, "unique MBR disk signature must be zero, got %#08x", m.UniqueMBRDiskSignature)
	}
	if m.Unknown != 0 {
		return Mbr{}, nil, newErr(KindInvalidMbr, "unknown field must be zero, got %#04x", m.Unknown)
	}

	for i, pr := range m.PartitionRecord {
		if pr.OSType == uefiSystemOSType {
			return Mbr{}, nil, newErr(KindInvalidMbr, "partition record %d has OS type 0xEF (UEFI system); legacy layouts are not supported", i)
		}
	}
	for i := 1; i < 4; i++ {
		if m.PartitionRecord[i] != (MbrPartitionRecord{}) {
			return Mbr{}, nil, newErr(KindInvalidMbr, "partition record %d must be zero", i)
		}
	}

	first := m.PartitionRecord[0]
	if first.BootIndicator != 0 {
		return Mbr{}, nil, newErr(KindInvalidMbr, "partition record 0 boot indicator must be 0, got %#02x", first.BootIndicator)
	}
	if first.OSType != protectiveMBROSType {
		return Mbr{}, nil, newErr(KindInvalidMbr, "partition record 0 OS type must be %#02x, got %#02x", protectiveMBROSType, first.OSType)
	}
	if first.StartingLBA != 1 {
		return Mbr{}, nil, newErr(KindInvalidMbr, "partition record 0 starting LBA must be 1, got %d", first.StartingLBA)
	}

	var warnings []Warning
	if first.StartingCHS != protectiveMBRStartingCHS || first.EndingCHS != protectiveMBREndingCHS {
		warnings = append(warnings, Warning{
			Kind:    KindToleratedCHS,
			Message: fmt.Sprintf("non-canonical CHS fields (start=%v end=%v) tolerated", first.StartingCHS, first.EndingCHS),
		})
	}

	return m, warnings, nil
}

// Write serializes m bit-exactly into dest, which must be exactly MbrSize
// bytes long.
func (m Mbr) Write(dest []byte) error {
	if len(dest) != MbrSize {
		return wrapErr(KindInvalidMbr, nil, "destination must be %d bytes, got %d", MbrSize, len(dest))
	}
	buf := bytes.NewBuffer(dest[:0])
	if err := binary.Write(buf, binary.LittleEndian, m); err != nil {
		return wrapErr(KindInvalidMbr, err, "encoding Protective MBR")
	}
	return nil
}
