package gpt

import "fmt"

// Kind classifies the errors this package returns, independent of the
// human-readable message attached to a given Error value. Callers compare
// against the sentinel Err* values with errors.Is rather than switching on
// Kind directly.
type Kind int

const (
	// KindInvalidMbr: signature, reserved fields, CHS markers, or
	// partition types in the Protective MBR violate constraints.
	KindInvalidMbr Kind = iota
	// KindInvalidSignature: the GPT header signature is not "EFI PART".
	KindInvalidSignature
	// KindInvalidRevision: the header revision is not 0x00010000.
	KindInvalidRevision
	// KindInvalidHeaderSize: header_size is out of bounds, or
	// partition_size is not 128*2^n.
	KindInvalidHeaderSize
	// KindBadHeaderCrc: the recomputed header CRC doesn't match the
	// stored one.
	KindBadHeaderCrc
	// KindBadArrayCrc: the recomputed partition array CRC doesn't match
	// the stored one.
	KindBadArrayCrc
	// KindInconsistentHeaders: the primary and backup headers disagree on
	// disk GUID, partitions CRC, usable range, or revision.
	KindInconsistentHeaders
	// KindWrongLocation: a header's MyLBA disagrees with the LBA it was
	// read from.
	KindWrongLocation
	// KindPartitionOverlap: two used partitions share an LBA.
	KindPartitionOverlap
	// KindOutOfRange: a partition lies outside [FirstUsableLBA,
	// LastUsableLBA].
	KindOutOfRange
	// KindCapacityExceeded: AddPartition was called on a full table.
	KindCapacityExceeded
	// KindIO: the caller-supplied read/write callback returned an error.
	KindIO
	// KindGeometryInvalid: disk size is too small for the block size, or
	// the block size itself is invalid.
	KindGeometryInvalid
	// KindInvalidArgument: a caller-supplied value violates a local
	// constraint that isn't covered by the kinds above — an overlong
	// partition name, a zero partition GUID, or a duplicate partition
	// GUID within one table.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindInvalidMbr:
		return "InvalidMbr"
	case KindInvalidSignature:
		return "InvalidSignature"
	case KindInvalidRevision:
		return "InvalidRevision"
	case KindInvalidHeaderSize:
		return "InvalidHeaderSize"
	case KindBadHeaderCrc:
		return "BadHeaderCrc"
	case KindBadArrayCrc:
		return "BadArrayCrc"
	case KindInconsistentHeaders:
		return "InconsistentHeaders"
	case KindWrongLocation:
		return "WrongLocation"
	case KindPartitionOverlap:
		return "PartitionOverlap"
	case KindOutOfRange:
		return "OutOfRange"
	case KindCapacityExceeded:
		return "CapacityExceeded"
	case KindIO:
		return "Io"
	case KindGeometryInvalid:
		return "GeometryInvalid"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindToleratedCHS:
		return "ToleratedCHS"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type every fallible operation in this package
// returns. It carries a Kind so callers can errors.Is against the sentinel
// below, plus a message describing exactly which invariant failed.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("gpt: %s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("gpt: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is allows errors.Is(err, ErrBadHeaderCrc) (and the other sentinels below)
// to match any *Error of the same Kind, regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, wrapped error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: wrapped}
}

// Sentinel values, one per Kind, for use with errors.Is. Only Kind is
// compared; Message and Wrapped are ignored.
var (
	ErrInvalidMbr          = &Error{Kind: KindInvalidMbr}
	ErrInvalidSignature    = &Error{Kind: KindInvalidSignature}
	ErrInvalidRevision     = &Error{Kind: KindInvalidRevision}
	ErrInvalidHeaderSize   = &Error{Kind: KindInvalidHeaderSize}
	ErrBadHeaderCrc        = &Error{Kind: KindBadHeaderCrc}
	ErrBadArrayCrc         = &Error{Kind: KindBadArrayCrc}
	ErrInconsistentHeaders = &Error{Kind: KindInconsistentHeaders}
	ErrWrongLocation       = &Error{Kind: KindWrongLocation}
	ErrPartitionOverlap    = &Error{Kind: KindPartitionOverlap}
	ErrOutOfRange          = &Error{Kind: KindOutOfRange}
	ErrCapacityExceeded    = &Error{Kind: KindCapacityExceeded}
	ErrIO                  = &Error{Kind: KindIO}
	ErrGeometryInvalid     = &Error{Kind: KindGeometryInvalid}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
)

// Warning describes a tolerated, non-fatal deviation found while reading a
// table: non-canonical Protective MBR CHS markers left behind by legacy
// partitioning tools, and primary/backup disagreements or failures accepted
// under RecoverFromBackupPolicy.
type Warning struct {
	Kind    Kind
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// KindToleratedCHS is the Warning.Kind used when a Protective MBR's
// starting/ending CHS fields don't match the canonical pattern but every
// other field does.
const KindToleratedCHS Kind = 1000
