// Package registry maps well-known GPT partition-type GUIDs to stable
// symbolic names. It never fails: an unrecognized type GUID simply isn't
// found, and callers fall back to printing the raw GUID.
package registry

import "github.com/go-gpt/gogpt/guid"

// ID is a stable identifier for a well-known partition type, distinct from
// its human-readable Name so callers can compare against a constant instead
// of a string.
type ID int

// Entry describes one well-known partition type.
type Entry struct {
	ID   ID
	Name string
	Uuid guid.Uuid
}

// Well-known partition type identifiers. New entries should be appended, not
// inserted, to keep existing IDs stable across releases.
const (
	Unused ID = iota
	EFISystemPartition
	BIOSBootPartition
	LinuxFilesystemData
	LinuxSwap
	LinuxRAID
	LinuxLVM
	LinuxReserved
	LinuxHome
	LinuxSrv
	FreeBSDBoot
	FreeBSDData
	FreeBSDSwap
	FreeBSDUFS
	DragonFlyUFS1
	OpenBSDData
	NetBSDFFS
	MicrosoftReserved
	MicrosoftBasicData
	MicrosoftLDMMetadata
	MicrosoftLDMData
	MicrosoftRecovery
	AppleHFSPlus
	AppleAPFS
	AppleUFS
	AppleRAID
	ZFS
	VMwareVMFS
	VMwareReserved
	ChromeOSKernel
	ChromeOSRootFS
	ChromeOSReserved
	Plan9
)

func mustParse(s string) guid.Uuid {
	u, err := guid.FromRFC4122String(s)
	if err != nil {
		panic("registry: invalid built-in GUID literal " + s + ": " + err.Error())
	}
	return u
}

// entries is the seed table, built at package-init time. Order mirrors the
// ID block above; it is not otherwise significant.
var entries = []Entry{
	{EFISystemPartition, "EFI System Partition", mustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")},
	{BIOSBootPartition, "BIOS Boot Partition", mustParse("21686148-6449-6E6F-744E-656564454649")},
	{LinuxFilesystemData, "Linux filesystem data", mustParse("0FC63DAF-8483-4772-8E79-3D69D8477DE4")},
	{LinuxSwap, "Linux swap", mustParse("0657FD6D-A4AB-43C4-84E5-0933C84B4F4F")},
	{LinuxRAID, "Linux RAID", mustParse("A19D880F-05FC-4D3B-A006-743F0F84911E")},
	{LinuxLVM, "Linux LVM", mustParse("E6D6D379-F507-44C2-A23C-238F2A3DF928")},
	{LinuxReserved, "Linux reserved", mustParse("8DA63339-0007-60C0-C436-083AC8230908")},
	{LinuxHome, "Linux /home", mustParse("933AC7E1-2EB4-4F13-B844-0E14E2AEF915")},
	{LinuxSrv, "Linux /srv", mustParse("3B8F8425-20E0-4F3B-907F-1A25A76F98E8")},
	{FreeBSDBoot, "FreeBSD boot", mustParse("83BD6B9D-7F41-11DC-BE0B-001560B84F0F")},
	{FreeBSDData, "FreeBSD data", mustParse("516E7CB4-6ECF-11D6-8FF8-00022D09712B")},
	{FreeBSDSwap, "FreeBSD swap", mustParse("516E7CB5-6ECF-11D6-8FF8-00022D09712B")},
	{FreeBSDUFS, "FreeBSD UFS", mustParse("516E7CB6-6ECF-11D6-8FF8-00022D09712B")},
	{DragonFlyUFS1, "DragonFly BSD UFS1", mustParse("9D94CE7C-1CA5-11DC-8817-01301BB8A9F5")},
	{OpenBSDData, "OpenBSD data", mustParse("824CC7A0-36A8-11E3-890A-952519AD3F61")},
	{NetBSDFFS, "NetBSD FFS", mustParse("49F48D5A-B10E-11DC-B99B-0019D1879648")},
	{MicrosoftReserved, "Microsoft reserved", mustParse("E3C9E316-0B5C-4DB8-817D-F92DF00215AE")},
	{MicrosoftBasicData, "Microsoft basic data", mustParse("EBD0A0A2-B9E5-4433-87C0-68B6B72699C7")},
	{MicrosoftLDMMetadata, "Microsoft LDM metadata", mustParse("5808C8AA-7E8F-42E0-85D2-E1E90434CFB3")},
	{MicrosoftLDMData, "Microsoft LDM data", mustParse("AF9B60A0-1431-4F62-BC68-3311714A69AD")},
	{MicrosoftRecovery, "Microsoft recovery", mustParse("DE94BBA4-06D1-4D40-A16A-BFD50179D6AC")},
	{AppleHFSPlus, "Apple HFS+", mustParse("48465300-0000-11AA-AA11-00306543ECAC")},
	{AppleAPFS, "Apple APFS", mustParse("7C3457EF-0000-11AA-AA11-00306543ECAC")},
	{AppleUFS, "Apple UFS", mustParse("55465300-0000-11AA-AA11-00306543ECAC")},
	{AppleRAID, "Apple RAID", mustParse("52414944-0000-11AA-AA11-00306543ECAC")},
	{ZFS, "ZFS", mustParse("6A898CC3-1DD2-11B2-99A6-080020736631")},
	{VMwareVMFS, "VMware VMFS", mustParse("AA31E02A-400F-11DB-9590-000C2911D1B8")},
	{VMwareReserved, "VMware reserved", mustParse("9D275380-40AD-11DB-BF97-000C2911D1B8")},
	{ChromeOSKernel, "ChromeOS kernel", mustParse("FE3A2A5D-4F32-41A7-B725-ACCC3285A309")},
	{ChromeOSRootFS, "ChromeOS rootfs", mustParse("3CB8E202-3B7E-47DD-8A3C-7FF2A13CFCEC")},
	{ChromeOSReserved, "ChromeOS reserved", mustParse("2E0A753D-9E48-43B0-8337-B15192CB1B5E")},
	{Plan9, "Plan 9", mustParse("C91818F9-8025-47AF-89D2-F030D7000C2C")},
}

var byGPTBytes map[[16]byte]Entry

func init() {
	byGPTBytes = make(map[[16]byte]Entry, len(entries))
	for _, e := range entries {
		byGPTBytes[e.Uuid.ToGPTBytes()] = e
	}
}

// Lookup returns the well-known Entry for typeGUID, if any.
func Lookup(typeGUID guid.Uuid) (Entry, bool) {
	if typeGUID.IsZero() {
		return Entry{ID: Unused, Name: "unused"}, true
	}
	e, ok := byGPTBytes[typeGUID.ToGPTBytes()]
	return e, ok
}

// Name returns the well-known name for typeGUID, or its RFC 4122 string if
// it isn't recognized.
func Name(typeGUID guid.Uuid) string {
	if e, ok := Lookup(typeGUID); ok {
		return e.Name
	}
	return typeGUID.String()
}
