package scan

import (
	"archive/tar"
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/tar/header"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type file struct {
	hdr  *tar.Header
	data string
}

func writeTar(t *testing.T, files ...file) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		require.NoError(t, tw.WriteHeader(f.hdr))
		if f.data != "" {
			_, err := tw.Write([]byte(f.data))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func collect(t *testing.T, buf []byte) ([]Entry, error) {
	t.Helper()

	var entries []Entry
	for e, err := range Entries(buf) {
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}

	return entries, nil
}

func TestEntries(t *testing.T) {
	modTime := time.Unix(1700000000, 0)
	longName := strings.Repeat("very/long/", 20) + "name.txt"
	longLink := strings.Repeat("target/", 20) + "file"

	tests := []struct {
		name     string
		files    []file
		expected []string
		verify   func(t *testing.T, entries []Entry)
	}{
		{
			name: "USTAR",
			files: []file{
				{hdr: &tar.Header{Typeflag: tar.TypeDir, Name: "test/", Mode: 0o755, ModTime: modTime, Format: tar.FormatUSTAR}},
				{hdr: &tar.Header{Typeflag: tar.TypeReg, Name: "test/a.txt", Mode: 0o644, Size: 5, ModTime: modTime, Format: tar.FormatUSTAR}, data: "hello"},
				{hdr: &tar.Header{Typeflag: tar.TypeReg, Name: "test/path/b.txt", Mode: 0o644, Size: 600, ModTime: modTime, Format: tar.FormatUSTAR}, data: strings.Repeat("b", 600)},
				{hdr: &tar.Header{Typeflag: tar.TypeReg, Name: "test/c.txt", Mode: 0o644, Size: 1, ModTime: modTime, Format: tar.FormatUSTAR}, data: "c"},
			},
			expected: []string{"test/", "test/a.txt", "test/path/b.txt", "test/c.txt"},
			verify: func(t *testing.T, entries []Entry) {
				assert.Equal(t, "hello", string(entries[1].Data()))
				assert.Equal(t, int64(1024), entries[1].DataOffset)
				assert.Equal(t, strings.Repeat("b", 600), string(entries[2].Data()))
				// 600 bytes of data take two blocks.
				assert.Equal(t, entries[2].Offset+512+1024, entries[3].Offset)
				assert.Equal(t, "c", string(entries[3].Data()))
			},
		},
		{
			name: "GNU long names",
			files: []file{
				{hdr: &tar.Header{Typeflag: tar.TypeReg, Name: longName, Mode: 0o644, Size: 3, ModTime: modTime, Format: tar.FormatGNU}, data: "abc"},
				{hdr: &tar.Header{Typeflag: tar.TypeSymlink, Name: "link", Linkname: longLink, Mode: 0o777, ModTime: modTime, Format: tar.FormatGNU}},
			},
			expected: []string{longName, "link"},
			verify: func(t *testing.T, entries []Entry) {
				assert.Equal(t, header.GNU, entries[0].Dialect)
				assert.Equal(t, "abc", string(entries[0].Data()))
				assert.Equal(t, longLink, entries[1].Linkname)
				assert.Equal(t, header.TypeSymlink, entries[1].Typeflag)
			},
		},
		{
			name: "PAX",
			files: []file{
				{hdr: &tar.Header{Typeflag: tar.TypeXGlobalHeader, PAXRecords: map[string]string{"comment": "global"}, Format: tar.FormatPAX}},
				{hdr: &tar.Header{Typeflag: tar.TypeReg, Name: longName, Mode: 0o644, Size: 3, ModTime: time.Unix(1700000000, 5e8), Format: tar.FormatPAX}, data: "xyz"},
				{hdr: &tar.Header{Typeflag: tar.TypeReg, Name: "short.txt", Mode: 0o644, Size: 2, ModTime: modTime, Format: tar.FormatPAX}, data: "ok"},
			},
			expected: []string{longName, "short.txt"},
			verify: func(t *testing.T, entries []Entry) {
				assert.Equal(t, "xyz", string(entries[0].Data()))
				assert.Equal(t, longName, entries[0].PAX["path"])
				assert.Equal(t, "global", entries[0].Global["comment"])
				if assert.NotNil(t, entries[0].ModTime) {
					assert.Equal(t, time.Unix(1700000000, 5e8).UnixNano(), entries[0].ModTime.UnixNano())
				}
				assert.Equal(t, "global", entries[1].Global["comment"])
				assert.Equal(t, "ok", string(entries[1].Data()))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := collect(t, writeTar(t, tt.files...))
			require.NoErrorf(t, err, "Entries() error = %v", err)

			var names []string
			for _, e := range entries {
				names = append(names, e.Path())
			}
			assert.Equal(t, tt.expected, names)

			if tt.verify != nil {
				tt.verify(t, entries)
			}
		})
	}
}

// block builds a UStar header block with a valid checksum.
func block(name string, typeflag byte, size int64) []byte {
	return blockWithSize(name, typeflag, []byte(fmt.Sprintf("%011o\x00", size)))
}

// maxSizeBlock builds a header whose base-256 size field holds the largest int64.
func maxSizeBlock(name string, typeflag byte) []byte {
	return blockWithSize(name, typeflag, []byte{0x80, 0, 0, 0, 0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
}

func blockWithSize(name string, typeflag byte, size []byte) []byte {
	b := make([]byte, header.BlockSize)
	copy(b, name)
	copy(b[100:], "0000644\x00")
	copy(b[124:136], size)
	copy(b[136:], "00000000000\x00")
	b[156] = typeflag
	copy(b[257:], "ustar\x0000")
	u, _ := header.Checksum(b)
	copy(b[148:], fmt.Sprintf("%06o\x00 ", u))
	return b
}

func pad(b []byte) []byte {
	return append(b, make([]byte, header.RoundUp(int64(len(b)))-int64(len(b)))...)
}

func TestEntries_PAXSize(t *testing.T) {
	records := "10 size=3\n"

	var buf []byte
	buf = append(buf, block("PaxHeaders/a.txt", 'x', int64(len(records)))...)
	buf = append(buf, pad([]byte(records))...)
	buf = append(buf, block("a.txt", header.TypeReg, 0)...)
	buf = append(buf, pad([]byte("abc"))...)
	buf = append(buf, make([]byte, 1024)...)

	entries, err := collect(t, buf)
	require.NoErrorf(t, err, "Entries() error = %v", err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].Size)
	assert.Equal(t, "abc", string(entries[0].Data()))
}

const maxSizePAX = "28 size=9223372036854775807\n"

func TestEntries_Termination(t *testing.T) {
	one := append(block("a.txt", header.TypeReg, 1), pad([]byte("a"))...)

	tests := []struct {
		name     string
		buf      []byte
		count    int
		expected error
	}{
		{name: "two zero blocks then garbage", buf: append(append(bytes.Clone(one), make([]byte, 1024)...), "garbage"...), count: 1},
		{name: "one zero block at end", buf: append(bytes.Clone(one), make([]byte, 512)...), count: 1},
		{name: "no zero blocks", buf: bytes.Clone(one), count: 1},
		{name: "empty", buf: nil, count: 0},
		{name: "lone zero block", buf: append(append(make([]byte, 512), one...), make([]byte, 1024)...), count: 0, expected: unarc.ErrCorruptStream},
		{name: "truncated data", buf: block("a.txt", header.TypeReg, 1000), count: 0, expected: unarc.ErrOutOfBounds},
		{name: "truncated header", buf: append(bytes.Clone(one), 'x'), count: 1, expected: unarc.ErrOutOfBounds},
		{name: "malformed pax", buf: append(block("pax", 'x', 4), pad([]byte("oops"))...), count: 0, expected: unarc.ErrCorruptStream},
		{name: "max size regular", buf: append(maxSizeBlock("a.txt", header.TypeReg), make([]byte, 1024)...), count: 0, expected: unarc.ErrOutOfBounds},
		{name: "max size long name", buf: append(maxSizeBlock("././@LongLink", 'L'), make([]byte, 1024)...), count: 0, expected: unarc.ErrOutOfBounds},
		{name: "max size pax record", buf: append(append(block("pax", 'x', int64(len(maxSizePAX))), pad([]byte(maxSizePAX))...), block("a.txt", header.TypeReg, 0)...), count: 0, expected: unarc.ErrOutOfBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := collect(t, tt.buf)
			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
			} else {
				assert.NoErrorf(t, err, "Entries() error = %v", err)
			}
			assert.Len(t, entries, tt.count)
		})
	}
}

func TestEntries_StopEarly(t *testing.T) {
	buf := writeTar(t,
		file{hdr: &tar.Header{Typeflag: tar.TypeReg, Name: "a", Size: 1, Format: tar.FormatUSTAR}, data: "a"},
		file{hdr: &tar.Header{Typeflag: tar.TypeReg, Name: "b", Size: 1, Format: tar.FormatUSTAR}, data: "b"})

	n := 0
	for range Entries(buf) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}
