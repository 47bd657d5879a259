// Package bitio provides a position-tracking cursor over an immutable byte buffer.
//
// A Cursor supports byte-aligned reads, fixed-width integers in either byte order, and single or multi-bit reads in
// a configurable bit order. Every decoder in this module reads its input through a Cursor.
//
// A Cursor is not safe for concurrent use. Independent cursors over the same buffer are.
package bitio

import (
	"bytes"
	"fmt"

	"github.com/nguyengg/unarc"
)

// BitOrder decides which bit of a byte Bit returns first.
type BitOrder int

const (
	// LSBFirst reads bit 0 of each byte first. Deflate uses this order.
	LSBFirst BitOrder = iota
	// MSBFirst reads bit 7 of each byte first.
	MSBFirst
)

func (o BitOrder) String() string {
	switch o {
	case LSBFirst:
		return "LSBFirst"
	case MSBFirst:
		return "MSBFirst"
	default:
		return fmt.Sprintf("BitOrder(%d)", int(o))
	}
}

// ByteOrder decides how Uint assembles multi-byte integers.
type ByteOrder int

const (
	// LittleEndian puts the least significant byte first. TAR base-256 aside, every format here is little-endian.
	LittleEndian ByteOrder = iota
	// BigEndian puts the most significant byte first.
	BigEndian
)

// Cursor is a read-only view over a byte buffer with a current position.
//
// The position is a byte offset plus the number of bits already consumed from the byte at that offset. Byte-level
// reads first discard any partially consumed byte. A failed read leaves the position unchanged.
type Cursor struct {
	buf    []byte
	offset int
	bit    uint
	order  BitOrder
}

// New creates a Cursor at offset 0 of buf.
//
// buf is borrowed, not copied. The caller must not modify it while the Cursor is in use.
func New(buf []byte, order BitOrder) *Cursor {
	return &Cursor{buf: buf, order: order}
}

// Len returns the length of the underlying buffer.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Offset returns the current byte offset.
//
// If some bits of the current byte have been consumed, the offset still points at that byte.
func (c *Cursor) Offset() int64 {
	return int64(c.offset)
}

// BitOffset returns the current position in bits from the start of the buffer.
func (c *Cursor) BitOffset() int64 {
	return int64(c.offset)*8 + int64(c.bit)
}

// Remaining returns the number of whole bytes left after aligning to the next byte boundary.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.aligned()
}

// Aligned returns true if the cursor is at a byte boundary.
func (c *Cursor) Aligned() bool {
	return c.bit == 0
}

// Align discards the rest of a partially consumed byte.
func (c *Cursor) Align() {
	c.offset, c.bit = c.aligned(), 0
}

func (c *Cursor) aligned() int {
	if c.bit != 0 {
		return c.offset + 1
	}

	return c.offset
}

// Seek moves the cursor to the given absolute byte offset.
//
// Seeking to exactly Len is allowed; any read from there fails.
func (c *Cursor) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(c.buf)) {
		return unarc.Errorf("seek", offset, unarc.ErrOutOfBounds, "buffer has %d bytes", len(c.buf))
	}

	c.offset, c.bit = int(offset), 0
	return nil
}

// Skip advances the cursor by n bytes after aligning.
func (c *Cursor) Skip(n int) error {
	start := c.aligned()
	if err := c.check(start, n); err != nil {
		return err
	}

	c.offset, c.bit = start+n, 0
	return nil
}

func (c *Cursor) check(start, n int) error {
	if n < 0 || n > len(c.buf)-start {
		return unarc.Errorf("read", int64(start), unarc.ErrOutOfBounds, "need %d bytes, have %d", n, len(c.buf)-start)
	}

	return nil
}

// Byte reads one byte.
func (c *Cursor) Byte() (byte, error) {
	start := c.aligned()
	if err := c.check(start, 1); err != nil {
		return 0, err
	}

	c.offset, c.bit = start+1, 0
	return c.buf[start], nil
}

// Bytes reads n bytes and returns a copy.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	b, err := c.view(n)
	if err != nil {
		return nil, err
	}

	return bytes.Clone(b), nil
}

// Peek returns a copy of the next n bytes without advancing.
func (c *Cursor) Peek(n int) ([]byte, error) {
	start := c.aligned()
	if err := c.check(start, n); err != nil {
		return nil, err
	}

	return bytes.Clone(c.buf[start : start+n]), nil
}

// view returns the next n bytes without copying and advances past them.
func (c *Cursor) view(n int) ([]byte, error) {
	start := c.aligned()
	if err := c.check(start, n); err != nil {
		return nil, err
	}

	c.offset, c.bit = start+n, 0
	return c.buf[start : start+n : start+n], nil
}

// Uint reads count bytes (1 to 8) and assembles them in the given byte order.
//
// Uint panics if count is out of range.
func (c *Cursor) Uint(count int, order ByteOrder) (uint64, error) {
	if count < 1 || count > 8 {
		panic(fmt.Sprintf("bitio: invalid integer width %d", count))
	}

	b, err := c.view(count)
	if err != nil {
		return 0, err
	}

	var v uint64
	if order == BigEndian {
		for _, x := range b {
			v = v<<8 | uint64(x)
		}
	} else {
		for i := count - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
	}

	return v, nil
}

// Uint16 is a shorthand for a 2-byte Uint.
func (c *Cursor) Uint16(order ByteOrder) (uint16, error) {
	v, err := c.Uint(2, order)
	return uint16(v), err
}

// Uint32 is a shorthand for a 4-byte Uint.
func (c *Cursor) Uint32(order ByteOrder) (uint32, error) {
	v, err := c.Uint(4, order)
	return uint32(v), err
}

// Uint64 is a shorthand for an 8-byte Uint.
func (c *Cursor) Uint64(order ByteOrder) (uint64, error) {
	return c.Uint(8, order)
}

// Bit reads a single bit in the cursor's bit order.
//
// After the eighth bit of a byte is consumed, the cursor moves to the next byte.
func (c *Cursor) Bit() (uint8, error) {
	if c.offset >= len(c.buf) {
		return 0, unarc.Errorf("read bit", int64(c.offset), unarc.ErrOutOfBounds, "")
	}

	var b uint8
	if c.order == MSBFirst {
		b = c.buf[c.offset] >> (7 - c.bit) & 1
	} else {
		b = c.buf[c.offset] >> c.bit & 1
	}

	if c.bit++; c.bit == 8 {
		c.offset, c.bit = c.offset+1, 0
	}

	return b, nil
}

// Bits reads n bits (0 to 32).
//
// With LSBFirst, the first bit read becomes the least significant bit of the result, which is how Deflate packs
// its header fields and extra bits. With MSBFirst, the first bit read becomes the most significant.
func (c *Cursor) Bits(n uint) (uint32, error) {
	if n > 32 {
		panic(fmt.Sprintf("bitio: invalid bit count %d", n))
	}

	if avail := int64(len(c.buf))*8 - c.BitOffset(); int64(n) > avail {
		return 0, unarc.Errorf("read bits", int64(c.offset), unarc.ErrOutOfBounds, "need %d bits, have %d", n, avail)
	}

	var v uint32
	for i := uint(0); i < n; i++ {
		b, _ := c.Bit()
		if c.order == MSBFirst {
			v = v<<1 | uint32(b)
		} else {
			v |= uint32(b) << i
		}
	}

	return v, nil
}

// CString reads a fixed-width field of size bytes and returns a copy of the bytes before the first NUL.
func (c *Cursor) CString(size int) ([]byte, error) {
	b, err := c.view(size)
	if err != nil {
		return nil, err
	}

	if i := bytes.IndexByte(b, 0); i != -1 {
		b = b[:i]
	}

	return bytes.Clone(b), nil
}

// ReadCString reads a NUL-terminated run of unknown length, consuming the terminator.
//
// The returned bytes do not include the NUL. If no NUL exists before the end of the buffer, the cursor does not
// move.
func (c *Cursor) ReadCString() ([]byte, error) {
	start := c.aligned()
	i := bytes.IndexByte(c.buf[start:], 0)
	if i == -1 {
		return nil, unarc.Errorf("read string", int64(start), unarc.ErrOutOfBounds, "unterminated string")
	}

	c.offset, c.bit = start+i+1, 0
	return bytes.Clone(c.buf[start : start+i]), nil
}

// Slice returns a copy of buf[start:end] without moving the cursor.
func (c *Cursor) Slice(start, end int64) ([]byte, error) {
	if start < 0 || end < start || end > int64(len(c.buf)) {
		return nil, unarc.Errorf("slice", start, unarc.ErrOutOfBounds, "range [%d:%d] of %d bytes", start, end, len(c.buf))
	}

	return bytes.Clone(c.buf[start:end]), nil
}
