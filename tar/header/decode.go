package header

import (
	"bytes"
	"strconv"
	"time"

	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/bitio"
	"github.com/nguyengg/unarc/textenc"
)

// Options customises Decode.
type Options struct {
	// Observer receives "tar.header" events.
	Observer unarc.Observer
}

const (
	chksumOffset = 148
	chksumSize   = 8
)

// Decode reads one 512-byte header block starting at the cursor's current position.
//
// On success the cursor is left at the end of the header block, i.e. at the first data block of the entry. On failure
// the cursor position is unspecified; callers that want to retry should Seek back to the block start.
//
// Decode does not check whether the block is all zeros. An all-zero block fails with unarc.ErrMissingSizeField.
func Decode(c *bitio.Cursor, optFns ...func(*Options)) (h Header, err error) {
	opts := &Options{}
	for _, fn := range optFns {
		fn(opts)
	}

	c.Align()
	h.Offset = c.Offset()

	var b []byte
	if b, err = c.CString(100); err != nil {
		return h, err
	}
	h.Name = textenc.Decode(b)

	var mode *int64
	if mode, err = readNumeric(c, 8); err != nil {
		return h, err
	}
	if mode != nil {
		*mode &= 0o7777
		h.Mode = mode
	}

	if h.UID, err = readNumeric(c, 8); err != nil {
		return h, err
	}
	if h.GID, err = readNumeric(c, 8); err != nil {
		return h, err
	}

	size, err := readNumeric(c, 12)
	if err != nil {
		return h, err
	}
	if size == nil || *size < 0 {
		return h, unarc.Errorf("read tar header", h.Offset, unarc.ErrMissingSizeField, "")
	}
	h.Size = *size

	if h.ModTime, err = readTime(c, 12); err != nil {
		return h, err
	}

	if err = verifyChecksum(c, &h, opts); err != nil {
		return h, err
	}

	if h.Typeflag, err = c.Byte(); err != nil {
		return h, err
	}

	if b, err = c.CString(100); err != nil {
		return h, err
	}
	h.Linkname = textenc.Decode(b)

	var magic [8]byte
	if b, err = c.Bytes(8); err != nil {
		return h, err
	}
	copy(magic[:], b)

	switch h.Dialect = ClassifyMagic(magic); h.Dialect {
	case UStar, GNU:
		if b, err = c.CString(32); err != nil {
			return h, err
		}
		h.Uname = textenc.Decode(b)
		if b, err = c.CString(32); err != nil {
			return h, err
		}
		h.Gname = textenc.Decode(b)

		if h.DevMajor, err = readNumeric(c, 8); err != nil {
			return h, err
		}
		if h.DevMinor, err = readNumeric(c, 8); err != nil {
			return h, err
		}

		if h.Dialect == GNU {
			if h.AccessTime, err = readTime(c, 12); err != nil {
				return h, err
			}
			if h.ChangeTime, err = readTime(c, 12); err != nil {
				return h, err
			}
		} else {
			if b, err = c.CString(155); err != nil {
				return h, err
			}
			h.Prefix = textenc.Decode(b)
		}
	}

	if err = c.Seek(h.Offset + BlockSize); err != nil {
		return h, err
	}

	unarc.Emit(opts.Observer, "tar.header", "header", h.Offset,
		"name", h.Path(),
		"typeflag", string(rune(h.Typeflag)),
		"size", h.Size,
		"dialect", h.Dialect)

	return h, nil
}

// verifyChecksum reads the checksum field at the cursor and compares it against both sums of the whole block.
func verifyChecksum(c *bitio.Cursor, h *Header, opts *Options) error {
	stored, err := readNumeric(c, chksumSize)
	if err != nil {
		return err
	}

	block, err := c.Slice(h.Offset, h.Offset+BlockSize)
	if err != nil {
		return err
	}

	unsigned, signed := Checksum(block)
	switch {
	case stored == nil:
		return unarc.Errorf("read tar header", h.Offset, unarc.ErrChecksumMismatch, "no stored checksum")
	case *stored == unsigned:
		unarc.Emit(opts.Observer, "tar.header", "checksum", h.Offset, "value", unsigned, "interpretation", "unsigned")
	case *stored == signed:
		unarc.Emit(opts.Observer, "tar.header", "checksum", h.Offset, "value", signed, "interpretation", "signed")
	default:
		return unarc.Errorf("read tar header", h.Offset, unarc.ErrChecksumMismatch,
			"stored %d, computed %d (unsigned) or %d (signed)", *stored, unsigned, signed)
	}

	h.Checksum = *stored
	return nil
}

// Checksum computes the unsigned and signed sums of a header block with the checksum field counted as spaces.
//
// block is normally 512 bytes; bytes past that are ignored.
func Checksum(block []byte) (unsigned, signed int64) {
	if len(block) > BlockSize {
		block = block[:BlockSize]
	}

	for i, c := range block {
		if i >= chksumOffset && i < chksumOffset+chksumSize {
			c = ' '
		}

		unsigned += int64(c)
		signed += int64(int8(c))
	}

	return
}

// readNumeric reads a numeric field of the given width.
//
// The returned pointer is nil if the field is absent or malformed. The only error is unarc.ErrOutOfBounds.
func readNumeric(c *bitio.Cursor, size int) (*int64, error) {
	b, err := c.Bytes(size)
	if err != nil {
		return nil, err
	}

	if v, ok := ParseNumeric(b); ok {
		return &v, nil
	}

	return nil, nil
}

func readTime(c *bitio.Cursor, size int) (*time.Time, error) {
	v, err := readNumeric(c, size)
	if v == nil || err != nil {
		return nil, err
	}

	t := time.Unix(*v, 0).UTC()
	return &t, nil
}

// ParseNumeric parses a TAR numeric field.
//
// Two encodings are accepted: an ASCII octal number padded with spaces or NULs on either side, and the GNU base-256
// encoding that sets the high bit of the first byte. ok is false if the field is empty, blank, or malformed.
func ParseNumeric(b []byte) (v int64, ok bool) {
	if len(b) > 0 && b[0]&0x80 != 0 {
		return parseBase256(b)
	}

	b = bytes.Trim(b, " \x00")
	if len(b) == 0 {
		return 0, false
	}

	// some writers terminate with a NUL and leave garbage after it.
	if i := bytes.IndexByte(b, 0); i != -1 {
		b = bytes.TrimRight(b[:i], " ")
	}

	u, err := strconv.ParseUint(string(b), 8, 63)
	if err != nil {
		return 0, false
	}

	return int64(u), true
}

// parseBase256 decodes a two's complement big-endian number whose first byte has the marker bit 0x80 set.
func parseBase256(b []byte) (int64, bool) {
	var inv byte
	if b[0]&0x40 != 0 {
		inv = 0xff
	}

	var x uint64
	for i, c := range b {
		c ^= inv
		if i == 0 {
			c &= 0x7f
		}
		if x>>56 != 0 {
			return 0, false
		}
		x = x<<8 | uint64(c)
	}

	if x>>63 != 0 {
		return 0, false
	}
	if inv == 0xff {
		return ^int64(x), true
	}

	return int64(x), true
}
