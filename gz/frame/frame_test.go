package frame

import (
	"bytes"
	"hash/crc32"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/bitio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyStatic is a final static Huffman block holding only the end-of-block code.
var emptyStatic = []byte{0x03, 0x00}

func TestReadMemberHeader_Name(t *testing.T) {
	buf := []byte{0x1f, 0x8b, 0x08, 0x08, 0, 0, 0, 0, 0x00, 0x03}
	buf = append(buf, "test.txt\x00"...)
	start := len(buf)
	buf = append(buf, emptyStatic...)

	c := bitio.New(buf, bitio.LSBFirst)
	h, err := ReadMemberHeader(c)
	require.NoErrorf(t, err, "ReadMemberHeader() error = %v", err)
	assert.Equal(t, "test.txt", h.Name)
	assert.Equal(t, FlagName, h.Flags)
	assert.Equal(t, int64(start), c.Offset())
	assert.Equal(t, int64(start), h.DataOffset)
	assert.Equal(t, uint8(3), h.OS)
	assert.Nil(t, h.HeaderCRC)
	assert.True(t, h.Time().IsZero())
}

func TestReadMemberHeader_AllFields(t *testing.T) {
	buf := []byte{0x1f, 0x8b, 0x08, byte(FlagText | FlagHeaderCRC | FlagExtra | FlagName | FlagComment), 0x00, 0xf1, 0x53, 0x65, 0x02, 0xff}
	buf = append(buf, 0x04, 0x00, 'A', 'B', 0x00, 0x00)
	buf = append(buf, "name\x00comment\x00"...)
	crc := uint16(crc32.ChecksumIEEE(buf))
	buf = append(buf, byte(crc), byte(crc>>8))
	start := len(buf)
	buf = append(buf, emptyStatic...)

	c := bitio.New(buf, bitio.LSBFirst)
	h, err := ReadMemberHeader(c)
	require.NoErrorf(t, err, "ReadMemberHeader() error = %v", err)
	assert.Equal(t, []byte{'A', 'B', 0, 0}, h.Extra)
	assert.Equal(t, "name", h.Name)
	assert.Equal(t, "comment", h.Comment)
	assert.Equal(t, uint32(0x6553f100), h.ModTime)
	assert.Equal(t, uint8(2), h.ExtraFlags)
	if assert.NotNil(t, h.HeaderCRC) {
		assert.Equal(t, crc, *h.HeaderCRC)
	}
	assert.Equal(t, int64(start), c.Offset())
	assert.Equal(t, "FTEXT|FHCRC|FEXTRA|FNAME|FCOMMENT", h.Flags.String())

	// corrupting the name breaks the header CRC.
	buf[16] = 'N'
	_, err = ReadMemberHeader(bitio.New(buf, bitio.LSBFirst))
	assert.ErrorIs(t, err, unarc.ErrChecksumMismatch)
}

func TestReadMemberHeader_Errors(t *testing.T) {
	tests := []struct {
		name     string
		buf      []byte
		expected error
	}{
		{name: "bad magic", buf: []byte{0x1f, 0x8c, 0x08, 0, 0, 0, 0, 0, 0, 0}, expected: unarc.ErrBadMagic},
		{name: "zip file", buf: []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"), expected: unarc.ErrBadMagic},
		{name: "method 7", buf: []byte{0x1f, 0x8b, 0x07, 0, 0, 0, 0, 0, 0, 0}, expected: unarc.ErrUnsupportedMethod},
		{name: "empty", buf: nil, expected: unarc.ErrOutOfBounds},
		{name: "short", buf: []byte{0x1f, 0x8b, 0x08, 0, 0, 0}, expected: unarc.ErrOutOfBounds},
		{name: "unterminated name", buf: []byte{0x1f, 0x8b, 0x08, 0x08, 0, 0, 0, 0, 0, 0, 'a', 'b'}, expected: unarc.ErrOutOfBounds},
		{name: "short extra", buf: []byte{0x1f, 0x8b, 0x08, 0x04, 0, 0, 0, 0, 0, 0, 0x10, 0x00, 'a'}, expected: unarc.ErrOutOfBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMemberHeader(bitio.New(tt.buf, bitio.LSBFirst))
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestInflate(t *testing.T) {
	tests := []struct {
		name     string
		stream   []byte
		expected string
		types    []BlockType
	}{
		{name: "empty static", stream: emptyStatic, expected: "", types: []BlockType{StaticHuffman}},
		{name: "static a", stream: []byte{0x4b, 0x04, 0x00}, expected: "a", types: []BlockType{StaticHuffman}},
		{name: "stored", stream: []byte{0x01, 0x05, 0x00, 0xfa, 0xff, 'h', 'e', 'l', 'l', 'o'}, expected: "hello", types: []BlockType{Stored}},
		{
			name:     "stored then static",
			stream:   []byte{0x00, 0x02, 0x00, 0xfd, 0xff, 'h', 'i', 0x03, 0x00},
			expected: "hi",
			types:    []BlockType{Stored, StaticHuffman},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, blocks, err := Inflate(bitio.New(tt.stream, bitio.LSBFirst), nil)
			require.NoErrorf(t, err, "Inflate() error = %v", err)
			assert.Equal(t, tt.expected, string(out))

			var types []BlockType
			for _, b := range blocks {
				types = append(types, b.Type)
			}
			assert.Equal(t, tt.types, types)
			assert.True(t, blocks[len(blocks)-1].Final)
		})
	}
}

func TestInflate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		stream   []byte
		expected error
	}{
		{name: "reserved block type", stream: []byte{0x07}, expected: unarc.ErrInvalidBlockType},
		{name: "stored length mismatch", stream: []byte{0x01, 0x05, 0x00, 0x00, 0x00, 'h', 'e', 'l', 'l', 'o'}, expected: unarc.ErrCorruptStream},
		{name: "stored truncated", stream: []byte{0x01, 0x05, 0x00, 0xfa, 0xff, 'h'}, expected: unarc.ErrOutOfBounds},
		{name: "distance before start", stream: []byte{0x03, 0x02}, expected: unarc.ErrCorruptStream},
		{name: "missing final block", stream: []byte{0x00, 0x00, 0x00, 0xff, 0xff}, expected: unarc.ErrOutOfBounds},
		{name: "empty", stream: nil, expected: unarc.ErrOutOfBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Inflate(bitio.New(tt.stream, bitio.LSBFirst), nil)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestInflate_Entropy(t *testing.T) {
	var calls int
	_, _, err := Inflate(bitio.New([]byte{0x4b, 0x04, 0x00}, bitio.LSBFirst), nil, func(opts *Options) {
		opts.Entropy = func(lengths []uint8) (SymbolDecoder, error) {
			calls++
			return HuffmanEntropy(lengths)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "one table for literal/lengths and one for distances")
}

func gzipBytes(t *testing.T, data []byte, level int, name string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	require.NoError(t, err)
	w.Name = name
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// testData is mostly repetitive text so every compression level has something to find.
func testData(n int) []byte {
	r := rand.New(rand.NewSource(1))
	words := []string{"archive ", "central ", "directory ", "header ", "deflate ", "block ", "\n"}

	var buf bytes.Buffer
	for buf.Len() < n {
		buf.WriteString(words[r.Intn(len(words))])
		if r.Intn(10) == 0 {
			buf.WriteByte(byte(r.Intn(256)))
		}
	}

	return buf.Bytes()[:n]
}

func TestDecompress_Levels(t *testing.T) {
	data := testData(200 * 1024)

	tests := []struct {
		name  string
		level int
		check func(t *testing.T, blocks []BlockHeader)
	}{
		{
			name:  "no compression",
			level: gzip.NoCompression,
			check: func(t *testing.T, blocks []BlockHeader) {
				for _, b := range blocks {
					assert.Equal(t, Stored, b.Type)
				}
			},
		},
		{name: "best speed", level: gzip.BestSpeed},
		{name: "huffman only", level: gzip.HuffmanOnly},
		{name: "default", level: gzip.DefaultCompression},
		{
			name:  "best compression",
			level: gzip.BestCompression,
			check: func(t *testing.T, blocks []BlockHeader) {
				var dynamic bool
				for _, b := range blocks {
					if b.Type == DynamicHuffman {
						dynamic = true
						if assert.NotNil(t, b.Tables) {
							assert.Len(t, b.Tables.LitLen, b.Tables.HLIT)
							assert.Len(t, b.Tables.Dist, b.Tables.HDIST)
						}
					}
				}
				assert.True(t, dynamic, "expected at least one dynamic block")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Decompress(gzipBytes(t, data, tt.level, "data.txt"))
			require.NoErrorf(t, err, "Decompress() error = %v", err)
			assert.True(t, bytes.Equal(data, res.Data), "round trip mismatch")
			require.Len(t, res.Members, 1)
			assert.Equal(t, "data.txt", res.Members[0].Header.Name)
			assert.Equal(t, crc32.ChecksumIEEE(data), res.Members[0].CRC32)
			assert.Equal(t, uint32(len(data)), res.Members[0].ISize)
			assert.Equal(t, len(res.Blocks), res.Members[0].Blocks)

			var total int
			for _, b := range res.Blocks {
				total += b.Size
			}
			assert.Equal(t, len(data), total)

			if tt.check != nil {
				tt.check(t, res.Blocks)
			}
		})
	}
}

func TestDecompress_MultiMember(t *testing.T) {
	a, b := []byte("first member\n"), testData(10*1024)

	buf := append(gzipBytes(t, a, gzip.BestSpeed, "a"), gzipBytes(t, b, gzip.BestCompression, "b")...)
	buf = append(buf, make([]byte, 16)...)

	var events []unarc.Event
	res, err := Decompress(buf, func(opts *Options) {
		opts.Observer = unarc.ObserverFunc(func(e unarc.Event) {
			events = append(events, e)
		})
	})
	require.NoErrorf(t, err, "Decompress() error = %v", err)
	assert.Equal(t, append(bytes.Clone(a), b...), res.Data)
	require.Len(t, res.Members, 2)
	assert.Equal(t, "a", res.Members[0].Header.Name)
	assert.Equal(t, "b", res.Members[1].Header.Name)
	assert.Equal(t, res.Members[0].End, res.Members[1].Header.Offset)

	var members int
	for _, e := range events {
		if e.Name == "member" {
			members++
		}
	}
	assert.Equal(t, 2, members)
}

func TestDecompress_Errors(t *testing.T) {
	good := gzipBytes(t, []byte("hello, world"), gzip.BestSpeed, "")

	tests := []struct {
		name     string
		mutate   func(b []byte) []byte
		expected error
	}{
		{
			name:     "CRC mismatch",
			mutate:   func(b []byte) []byte { b[len(b)-8] ^= 0xff; return b },
			expected: unarc.ErrChecksumMismatch,
		},
		{
			name:     "size mismatch",
			mutate:   func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b },
			expected: unarc.ErrChecksumMismatch,
		},
		{
			name:     "truncated trailer",
			mutate:   func(b []byte) []byte { return b[:len(b)-3] },
			expected: unarc.ErrOutOfBounds,
		},
		{
			name:     "garbage after member",
			mutate:   func(b []byte) []byte { return append(b, "garbage"...) },
			expected: unarc.ErrBadMagic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress(tt.mutate(bytes.Clone(good)))
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}
