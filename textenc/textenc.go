// Package textenc decides whether a raw name or comment from an archive is UTF-8 or legacy CP437 text.
package textenc

import (
	"bytes"

	"golang.org/x/text/encoding/charmap"
)

var bom = []byte{0xef, 0xbb, 0xbf}

// IsUTF8 returns true if b should be read as UTF-8 rather than CP437.
//
// A leading byte-order mark is conclusive. Otherwise ASCII bytes are skipped since they mean the same thing in both
// encodings, and the first non-ASCII byte decides: if it starts a well-formed, non-overlong, non-surrogate UTF-8
// sequence then b is UTF-8, anything else means CP437. A run of only ASCII bytes returns false; CP437 was the
// historical default and decodes ASCII identically anyway.
func IsUTF8(b []byte) bool {
	if bytes.HasPrefix(b, bom) {
		return true
	}

	for i := 0; i < len(b); i++ {
		c := b[i]
		if c <= 0x7f {
			continue
		}

		var n int
		switch {
		case c >= 0xc2 && c <= 0xdf:
			n = 2
		case c >= 0xe0 && c <= 0xef:
			n = 3
		case c >= 0xf0 && c <= 0xf4:
			n = 4
		default:
			return false
		}

		if i+n > len(b) {
			return false
		}

		for _, cc := range b[i+1 : i+n] {
			if cc&0xc0 != 0x80 {
				return false
			}
		}

		switch n {
		case 3:
			r := rune(c&0x0f)<<12 | rune(b[i+1]&0x3f)<<6 | rune(b[i+2]&0x3f)
			if r < 0x800 || r>>11 == 0x1b {
				return false
			}
		case 4:
			r := rune(c&0x07)<<18 | rune(b[i+1]&0x3f)<<12 | rune(b[i+2]&0x3f)<<6 | rune(b[i+3]&0x3f)
			if r < 0x10000 || r > 0x10ffff {
				return false
			}
		}

		// one valid multi-byte sequence is enough.
		return true
	}

	return false
}

// Decode converts b to a string, as UTF-8 if IsUTF8 says so (dropping any byte-order mark), otherwise as CP437.
func Decode(b []byte) string {
	if IsUTF8(b) {
		return string(bytes.TrimPrefix(b, bom))
	}

	return DecodeCP437(b)
}

// DecodeCP437 converts b from code page 437 regardless of content.
func DecodeCP437(b []byte) string {
	if IsASCII(b) {
		return string(b)
	}

	s, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		// every byte has a CP437 mapping so this never happens.
		return string(b)
	}

	return string(s)
}

// IsASCII returns true if every byte of b is 7-bit ASCII.
func IsASCII(b []byte) bool {
	for _, c := range b {
		if c > 0x7f {
			return false
		}
	}

	return true
}
