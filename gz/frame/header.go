// Package frame decodes the gzip member framing and dispatches the Deflate blocks inside each member.
//
// ReadMemberHeader parses one member header. Inflate decodes one Deflate stream block by block, delegating symbol
// decoding to an Entropy implementation. Decompress puts the two together over a whole (possibly multi-member) gzip
// file and verifies each member's trailer.
package frame

import (
	"fmt"
	"hash/crc32"
	"strings"
	"time"

	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/bitio"
	"github.com/nguyengg/unarc/textenc"
)

// Magic is the two-byte signature of every gzip member.
var Magic = [2]byte{0x1f, 0x8b}

// MethodDeflate is the only compression method gzip defines.
const MethodDeflate = 8

// Flags is the FLG byte of a member header.
type Flags uint8

const (
	// FlagText hints that the content is probably text.
	FlagText Flags = 1 << iota
	// FlagHeaderCRC means a CRC-16 of the header precedes the compressed data.
	FlagHeaderCRC
	// FlagExtra means a length-prefixed extra field is present.
	FlagExtra
	// FlagName means a NUL-terminated original file name is present.
	FlagName
	// FlagComment means a NUL-terminated comment is present.
	FlagComment
)

func (f Flags) String() string {
	var names []string
	for _, v := range []struct {
		flag Flags
		name string
	}{
		{FlagText, "FTEXT"},
		{FlagHeaderCRC, "FHCRC"},
		{FlagExtra, "FEXTRA"},
		{FlagName, "FNAME"},
		{FlagComment, "FCOMMENT"},
	} {
		if f&v.flag != 0 {
			names = append(names, v.name)
		}
	}

	if r := f &^ 0x1f; r != 0 {
		names = append(names, fmt.Sprintf("0x%02x", uint8(r)))
	}

	if len(names) == 0 {
		return "0"
	}

	return strings.Join(names, "|")
}

// MemberHeader is a decoded gzip member header.
type MemberHeader struct {
	// Offset is where the member starts.
	Offset int64
	// DataOffset is where the first Deflate block starts.
	DataOffset int64

	Method     uint8
	Flags      Flags
	ModTime    uint32
	ExtraFlags uint8
	OS         uint8

	// Extra is the raw extra field if FlagExtra is set.
	Extra []byte
	// Name is the original file name if FlagName is set.
	Name string
	// Comment is the comment if FlagComment is set.
	Comment string
	// HeaderCRC is the stored header CRC-16 if FlagHeaderCRC is set. It has been verified.
	HeaderCRC *uint16
}

// Time converts ModTime to a time.Time. The zero time is returned if ModTime is 0, which means not available.
func (h *MemberHeader) Time() time.Time {
	if h.ModTime == 0 {
		return time.Time{}
	}

	return time.Unix(int64(h.ModTime), 0).UTC()
}

// ReadMemberHeader decodes a gzip member header at the cursor's current position.
//
// On success the cursor is left at the first Deflate block of the member.
func ReadMemberHeader(c *bitio.Cursor) (h MemberHeader, err error) {
	c.Align()
	h.Offset = c.Offset()

	magic, err := c.Bytes(2)
	if err != nil {
		return h, err
	}
	if magic[0] != Magic[0] || magic[1] != Magic[1] {
		return h, unarc.Errorf("read gzip header", h.Offset, unarc.ErrBadMagic, "got 0x%02x%02x", magic[0], magic[1])
	}

	if h.Method, err = c.Byte(); err != nil {
		return h, err
	}
	if h.Method != MethodDeflate {
		return h, unarc.Errorf("read gzip header", h.Offset, unarc.ErrUnsupportedMethod, "method %d", h.Method)
	}

	flags, err := c.Byte()
	if err != nil {
		return h, err
	}
	h.Flags = Flags(flags)

	if h.ModTime, err = c.Uint32(bitio.LittleEndian); err != nil {
		return h, err
	}
	if h.ExtraFlags, err = c.Byte(); err != nil {
		return h, err
	}
	if h.OS, err = c.Byte(); err != nil {
		return h, err
	}

	if h.Flags&FlagExtra != 0 {
		n, err := c.Uint16(bitio.LittleEndian)
		if err != nil {
			return h, err
		}
		if h.Extra, err = c.Bytes(int(n)); err != nil {
			return h, err
		}
	}

	if h.Flags&FlagName != 0 {
		b, err := c.ReadCString()
		if err != nil {
			return h, err
		}
		h.Name = textenc.Decode(b)
	}

	if h.Flags&FlagComment != 0 {
		b, err := c.ReadCString()
		if err != nil {
			return h, err
		}
		h.Comment = textenc.Decode(b)
	}

	if h.Flags&FlagHeaderCRC != 0 {
		b, err := c.Slice(h.Offset, c.Offset())
		if err != nil {
			return h, err
		}

		v, err := c.Uint16(bitio.LittleEndian)
		if err != nil {
			return h, err
		}
		if expected := uint16(crc32.ChecksumIEEE(b)); v != expected {
			return h, unarc.Errorf("read gzip header", h.Offset, unarc.ErrChecksumMismatch,
				"header CRC 0x%04x, computed 0x%04x", v, expected)
		}
		h.HeaderCRC = &v
	}

	h.DataOffset = c.Offset()
	return h, nil
}
