// Package guid provides the 128-bit identifier type used throughout a GPT
// disk, together with the UEFI mixed-endian wire encoding that is distinct
// from a GUID's RFC 4122 textual form.
//
// The value type is github.com/Microsoft/go-winio/pkg/guid.GUID, the same
// dependency the reference implementation this package is modeled on
// already pulls in for disk GUIDs and partition GUIDs. Its exported fields
// (Data1 uint32, Data2 uint16, Data3 uint16, Data4 [8]byte) already sort
// into the UEFI mixed-endian layout when encoded in field order with
// little-endian multi-byte integers; ToGPTBytes/FromGPTBytes make that
// encoding an explicit, independently tested operation instead of relying
// on a struct's default binary form.
package guid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	wguid "github.com/Microsoft/go-winio/pkg/guid"
)

// Uuid is a 128-bit identifier: a disk GUID or a partition GUID.
type Uuid struct {
	wguid.GUID
}

// Zero is the all-zero GUID, used as the "unused" sentinel for partition
// type GUIDs and as an invalid disk/partition GUID.
var Zero Uuid

// IsZero reports whether u is the all-zero GUID.
func (u Uuid) IsZero() bool {
	return u == Zero
}

// NewV4 generates a random version-4 GUID. It is the only ambient
// capability this package exposes; callers that need determinism should
// build a Uuid explicitly instead (FromRFC4122String or FromGPTBytes).
func NewV4() (Uuid, error) {
	g, err := wguid.NewV4()
	if err != nil {
		return Zero, fmt.Errorf("guid: generating v4 GUID: %w", err)
	}
	return Uuid{g}, nil
}

// ToGPTBytes renders u in the 16-byte UEFI mixed-endian wire form: the
// first three fields little-endian, the last two (Data4, which is already
// a plain byte sequence) unchanged.
func (u Uuid) ToGPTBytes() [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:4], u.Data1)
	binary.LittleEndian.PutUint16(b[4:6], u.Data2)
	binary.LittleEndian.PutUint16(b[6:8], u.Data3)
	copy(b[8:16], u.Data4[:])
	return b
}

// FromGPTBytes parses the 16-byte UEFI mixed-endian wire form produced by
// ToGPTBytes. ToGPTBytes(FromGPTBytes(b)) == b for every b, and
// FromGPTBytes(ToGPTBytes(u)) == u for every u: the conversion is a
// bijection.
func FromGPTBytes(b [16]byte) Uuid {
	var u Uuid
	u.Data1 = binary.LittleEndian.Uint32(b[0:4])
	u.Data2 = binary.LittleEndian.Uint16(b[4:6])
	u.Data3 = binary.LittleEndian.Uint16(b[6:8])
	copy(u.Data4[:], b[8:16])
	return u
}

// rfc4122ToGPTBytes reinterprets a 16-byte buffer laid out in RFC 4122
// canonical (big-endian) field order as the equivalent UEFI mixed-endian
// wire form: the first three fields (4, 2, 2 bytes) are byte-reversed, the
// remaining 8 bytes are copied unchanged.
func rfc4122ToGPTBytes(rfc [16]byte) [16]byte {
	var b [16]byte
	b[0], b[1], b[2], b[3] = rfc[3], rfc[2], rfc[1], rfc[0]
	b[4], b[5] = rfc[5], rfc[4]
	b[6], b[7] = rfc[7], rfc[6]
	copy(b[8:16], rfc[8:16])
	return b
}

// FromRFC4122String parses the canonical hex-and-dash textual form
// ("xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx") into a Uuid. This is distinct
// from FromGPTBytes: the textual form is always in RFC 4122 (big-endian)
// field order regardless of how the value is stored on disk.
func FromRFC4122String(s string) (Uuid, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return Zero, fmt.Errorf("guid: %q is not a valid RFC 4122 GUID string", s)
	}
	lens := [5]int{8, 4, 4, 4, 12}
	var raw [16]byte
	pos := 0
	for i, p := range parts {
		if len(p) != lens[i] {
			return Zero, fmt.Errorf("guid: %q is not a valid RFC 4122 GUID string", s)
		}
		n, err := hex.Decode(raw[pos:pos+len(p)/2], []byte(p))
		if err != nil || n != len(p)/2 {
			return Zero, fmt.Errorf("guid: %q is not a valid RFC 4122 GUID string: %w", s, err)
		}
		pos += len(p) / 2
	}
	return FromGPTBytes(rfc4122ToGPTBytes(raw)), nil
}
