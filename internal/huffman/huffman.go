// Package huffman builds canonical Huffman decoding tables from code lengths, as used by Deflate.
package huffman

import (
	"errors"
	"fmt"

	"github.com/nguyengg/unarc/bitio"
)

// MaxBits is the longest code length Deflate allows.
const MaxBits = 15

var (
	// ErrOversubscribed is returned by New if the lengths describe more codes than fit in MaxBits bits.
	ErrOversubscribed = errors.New("over-subscribed code lengths")

	// ErrInvalidCode is returned by Decode if the next bits do not form any code in the table.
	ErrInvalidCode = errors.New("invalid code")
)

// Table decodes the canonical Huffman code described by a list of code lengths.
//
// Codes are assigned in order of increasing length, then increasing symbol value. A table may be incomplete (Deflate
// allows a single distance code, for example); reading an unassigned code from an incomplete table fails with
// ErrInvalidCode.
type Table struct {
	// count[n] is the number of codes of length n. count[0] is unused.
	count [MaxBits + 1]uint16
	// symbols lists the symbols in code order.
	symbols []uint16
}

// New creates a Table where lengths[s] is the code length of symbol s, 0 meaning the symbol is unused.
func New(lengths []uint8) (*Table, error) {
	t := &Table{}
	for s, n := range lengths {
		if n > MaxBits {
			return nil, fmt.Errorf("symbol %d has code length %d: %w", s, n, ErrOversubscribed)
		}
		t.count[n]++
	}
	t.count[0] = 0

	// every length uses up its share of the code space; going negative means there are too many codes.
	left := 1
	for n := 1; n <= MaxBits; n++ {
		left <<= 1
		if left -= int(t.count[n]); left < 0 {
			return nil, ErrOversubscribed
		}
	}

	var offsets [MaxBits + 2]uint16
	for n := 1; n <= MaxBits; n++ {
		offsets[n+1] = offsets[n] + t.count[n]
	}

	t.symbols = make([]uint16, offsets[MaxBits+1])
	for s, n := range lengths {
		if n != 0 {
			t.symbols[offsets[n]] = uint16(s)
			offsets[n]++
		}
	}

	return t, nil
}

// Decode reads one code from c bit by bit and returns its symbol.
//
// Codes are read most significant bit first, which is how Deflate packs them into its LSB-first bit stream.
func (t *Table) Decode(c *bitio.Cursor) (int, error) {
	var code, first, index int
	for n := 1; n <= MaxBits; n++ {
		b, err := c.Bit()
		if err != nil {
			return 0, err
		}

		code |= int(b)
		count := int(t.count[n])
		if code-first < count {
			return int(t.symbols[index+code-first]), nil
		}

		index += count
		first = (first + count) << 1
		code <<= 1
	}

	return 0, ErrInvalidCode
}

// Len returns the number of symbols that have a code.
func (t *Table) Len() int {
	return len(t.symbols)
}
