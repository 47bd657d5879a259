// Package header decodes single 512-byte TAR header blocks.
//
// Decode does not walk an archive, merge long names, or apply PAX records; see package
// [github.com/nguyengg/unarc/tar/scan] for that.
package header

import (
	"fmt"
	"path"
	"time"
)

// BlockSize is the size of every TAR header and data block.
const BlockSize = 512

// Dialect is one of the three mutually exclusive TAR header layouts.
type Dialect int

const (
	// PrePOSIX is the original Unix V7 layout; nothing after the link name is populated.
	PrePOSIX Dialect = iota
	// UStar is the POSIX.1-1988 layout with owner names, device numbers, and a name prefix.
	UStar
	// GNU is GNU tar's layout with owner names, device numbers, and access/change times in place of the prefix.
	GNU
)

func (d Dialect) String() string {
	switch d {
	case PrePOSIX:
		return "pre-POSIX"
	case UStar:
		return "UStar"
	case GNU:
		return "GNU"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// Magic values as they appear at offset 257 of a header block.
var (
	magicGNU     = [8]byte{'u', 's', 't', 'a', 'r', ' ', ' ', 0}
	magicUStar   = [8]byte{'u', 's', 't', 'a', 'r', 0, '0', '0'}
	magicUStarSp = [8]byte{'u', 's', 't', 'a', 'r', ' ', '0', '0'}
)

// ClassifyMagic maps the 8-byte magic+version field to a Dialect.
//
// Every input maps to exactly one Dialect; unknown values are PrePOSIX.
func ClassifyMagic(magic [8]byte) Dialect {
	switch magic {
	case magicGNU:
		return GNU
	case magicUStar, magicUStarSp:
		return UStar
	default:
		return PrePOSIX
	}
}

// SpecialType is a type flag that marks a header whose data describes the next header rather than being an entry.
type SpecialType byte

const (
	// LongName data holds the full name of the next entry (GNU).
	LongName SpecialType = 'L'
	// LongLinkName data holds the full link name of the next entry (GNU).
	LongLinkName SpecialType = 'K'
	// GlobalExtendedHeader data holds PAX records for all following entries.
	GlobalExtendedHeader SpecialType = 'g'
	// LocalExtendedHeader data holds PAX records for the next entry.
	LocalExtendedHeader SpecialType = 'x'
	// SunExtendedHeader is Solaris tar's older spelling of LocalExtendedHeader.
	SunExtendedHeader SpecialType = 'X'
)

func (t SpecialType) String() string {
	switch t {
	case LongName:
		return "long name"
	case LongLinkName:
		return "long link name"
	case GlobalExtendedHeader:
		return "global extended header"
	case LocalExtendedHeader:
		return "local extended header"
	case SunExtendedHeader:
		return "Sun extended header"
	default:
		return fmt.Sprintf("SpecialType(%q)", byte(t))
	}
}

// ClassifyType returns the SpecialType for flag, or false if flag is a normal entry type.
func ClassifyType(flag byte) (SpecialType, bool) {
	switch t := SpecialType(flag); t {
	case LongName, LongLinkName, GlobalExtendedHeader, LocalExtendedHeader, SunExtendedHeader:
		return t, true
	default:
		return 0, false
	}
}

// Normal entry type flags.
const (
	TypeReg     byte = '0'
	TypeRegA    byte = 0 // pre-POSIX regular file.
	TypeLink    byte = '1'
	TypeSymlink byte = '2'
	TypeChar    byte = '3'
	TypeBlock   byte = '4'
	TypeDir     byte = '5'
	TypeFifo    byte = '6'
	TypeCont    byte = '7'
)

// Header is one decoded header block.
//
// Optional numeric fields are nil when the field was empty, blank, or not a valid number. Size is always present
// since a header without it fails to decode.
type Header struct {
	// Name is the name field (at most 100 bytes). Use Path to include Prefix.
	Name string
	// Prefix is the UStar name prefix (at most 155 bytes); always empty for the other dialects.
	Prefix string
	// Size is the number of data bytes following this header.
	Size int64
	// Typeflag is the raw type byte. See ClassifyType.
	Typeflag byte
	// Mode holds the permission bits (the low 12 bits of the mode field).
	Mode *int64
	// UID and GID are the numeric owner and group.
	UID, GID *int64
	// ModTime is the modification time.
	ModTime *time.Time
	// AccessTime and ChangeTime are only populated by the GNU dialect.
	AccessTime, ChangeTime *time.Time
	// Uname and Gname are the symbolic owner and group (UStar and GNU).
	Uname, Gname string
	// DevMajor and DevMinor are the device numbers (UStar and GNU), meaningful for character and block devices.
	DevMajor, DevMinor *int64
	// Linkname is the target of a hard or symbolic link.
	Linkname string
	// Dialect is derived from the magic field.
	Dialect Dialect
	// Offset is where the header block starts in the buffer.
	Offset int64
	// Checksum is the stored checksum, which matched at least one of the two computed sums.
	Checksum int64
}

// Path returns Prefix and Name joined by a slash, or just Name if there is no prefix.
func (h *Header) Path() string {
	if h.Prefix == "" {
		return h.Name
	}

	return h.Prefix + "/" + h.Name
}

// Special returns the SpecialType of this header, or false if it is a normal entry.
func (h *Header) Special() (SpecialType, bool) {
	return ClassifyType(h.Typeflag)
}

// IsDir returns true for directory entries, including pre-POSIX ones marked only by a trailing slash.
func (h *Header) IsDir() bool {
	return h.Typeflag == TypeDir || (h.Typeflag == TypeRegA || h.Typeflag == TypeReg) && path.Clean(h.Name)+"/" == h.Name
}

// DataOffset returns where the data blocks of this entry start.
func (h *Header) DataOffset() int64 {
	return h.Offset + BlockSize
}

// NextOffset returns where the next header block starts: Offset + 512 + Size rounded up to 512.
//
// The caller must have checked that the data blocks fit in the archive; an untrusted Size near 2^63 overflows.
func (h *Header) NextOffset() int64 {
	return h.Offset + BlockSize + RoundUp(h.Size)
}

// RoundUp rounds n up to a multiple of BlockSize.
func RoundUp(n int64) int64 {
	return (n + BlockSize - 1) / BlockSize * BlockSize
}
