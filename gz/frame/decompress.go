package frame

import (
	"bytes"
	"hash/crc32"

	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/bitio"
	"github.com/valyala/bytebufferpool"
)

// Member is one fully decoded gzip member.
type Member struct {
	Header MemberHeader
	// CRC32 and ISize are the trailer values, both verified against the decoded data.
	CRC32, ISize uint32
	// Blocks is the number of Deflate blocks in the member; see Result.Blocks.
	Blocks int
	// End is the offset right after the trailer.
	End int64
}

// Result is the outcome of Decompress.
type Result struct {
	Members []Member
	// Blocks lists every Deflate block of every member in order.
	Blocks []BlockHeader
	// Data is the concatenated output of all members.
	Data []byte
}

// outputPool reuses output buffers across Decompress calls.
var outputPool bytebufferpool.Pool

// Decompress decodes every gzip member in buf.
//
// Members follow one another until the end of buf. Trailing NUL padding after the last member is ignored. Each
// member's CRC-32 and size trailer is verified; a mismatch fails with unarc.ErrChecksumMismatch.
func Decompress(buf []byte, optFns ...func(*Options)) (*Result, error) {
	opts := &Options{}
	for _, fn := range optFns {
		fn(opts)
	}

	bb := outputPool.Get()
	defer outputPool.Put(bb)

	var (
		c   = bitio.New(buf, bitio.LSBFirst)
		res = &Result{}
	)

	for {
		h, err := ReadMemberHeader(c)
		if err != nil {
			return nil, err
		}

		unarc.Emit(opts.Observer, "gz.frame", "member", h.Offset,
			"flags", h.Flags,
			"name", h.Name,
			"mtime", h.ModTime,
			"os", h.OS)

		start := len(bb.B)

		var blocks []BlockHeader
		if bb.B, blocks, err = Inflate(c, bb.B, func(o *Options) {
			*o = *opts
		}); err != nil {
			return nil, err
		}

		c.Align()
		offset := c.Offset()

		m := Member{Header: h, Blocks: len(blocks)}
		if m.CRC32, err = c.Uint32(bitio.LittleEndian); err != nil {
			return nil, err
		}
		if m.ISize, err = c.Uint32(bitio.LittleEndian); err != nil {
			return nil, err
		}

		data := bb.B[start:]
		if crc := crc32.ChecksumIEEE(data); crc != m.CRC32 {
			return nil, unarc.Errorf("read gzip trailer", offset, unarc.ErrChecksumMismatch,
				"CRC-32 0x%08x, computed 0x%08x", m.CRC32, crc)
		}
		if size := uint32(len(data)); size != m.ISize {
			return nil, unarc.Errorf("read gzip trailer", offset, unarc.ErrChecksumMismatch,
				"size %d, decoded %d", m.ISize, size)
		}

		m.End = c.Offset()
		res.Members = append(res.Members, m)
		res.Blocks = append(res.Blocks, blocks...)

		if rest := buf[m.End:]; len(bytes.Trim(rest, "\x00")) == 0 {
			break
		}
	}

	res.Data = bytes.Clone(bb.B)
	if res.Data == nil {
		res.Data = []byte{}
	}

	return res, nil
}
