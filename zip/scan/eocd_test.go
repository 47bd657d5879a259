package scan

import (
	"archive/zip"
	"bytes"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/nguyengg/unarc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindEOCD_WithComment(t *testing.T) {
	alphabet := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	tests := []struct {
		commentLength int
	}{
		{
			commentLength: 8 * 1024,
		},
		{
			commentLength: 16 * 1024,
		},
		{
			commentLength: 32 * 1024,
		},
		{
			commentLength: 48 * 1024,
		},
	}

	for _, tt := range tests {
		for _, delta := range []int{-4, -3, -2, -1, 0, 1, 2, 3, 4} {
			t.Run(fmt.Sprintf("%d with delta=%d", tt.commentLength, delta), func(t *testing.T) {
				n := tt.commentLength + delta
				comment := make([]byte, n)
				for i := range n {
					comment[i] = alphabet[rand.IntN(len(alphabet))]
				}

				buf := &bytes.Buffer{}
				zw := zip.NewWriter(buf)

				err := zw.SetComment(string(comment))
				assert.NoErrorf(t, err, "SetComment(...) error = %v", err)

				err = zw.Close()
				assert.NoErrorf(t, err, "Close() error = %v", err)
				assert.Equalf(t, tt.commentLength+22+delta, buf.Len(), "Mismatched buffer size; got = %d, want = %d", buf.Len(), tt.commentLength+22+delta)

				r, err := FindEOCD(buf.Bytes())
				assert.NoErrorf(t, err, "FindEOCD() error = %v", err)
				assert.Equal(t, string(comment), r.Comment)
				assert.Equal(t, int64(0), r.Offset)
			})
		}
	}
}

func TestFindEOCD_CommentBounds(t *testing.T) {
	for _, n := range []int{0, 1, 21, 22, 23, 0xffff} {
		t.Run(fmt.Sprintf("comment length %d", n), func(t *testing.T) {
			// some leading garbage so the record is not at offset 0.
			buf := append([]byte("leading data"), appendEOCD(nil, eocdFields{comment: string(bytes.Repeat([]byte{'c'}, n))})...)

			r, err := FindEOCD(buf)
			require.NoErrorf(t, err, "FindEOCD() error = %v", err)
			assert.Equal(t, int64(12), r.Offset)
			assert.Len(t, r.Comment, n)
		})
	}
}

func TestFindEOCD_SignatureInComment(t *testing.T) {
	// the last 22 bytes of the comment look like an EOCD record whose own comment would run past the end.
	fake := appendEOCD(nil, eocdFields{count: 7})
	fake[20], fake[21] = 0xff, 0xff
	comment := append([]byte("real comment "), fake...)

	buf := appendEOCD(nil, eocdFields{comment: string(comment)})

	r, err := FindEOCD(buf)
	require.NoErrorf(t, err, "FindEOCD() error = %v", err)
	assert.Equal(t, int64(0), r.Offset)
	assert.Equal(t, uint16(0), r.CDCount)
	assert.Equal(t, string(comment), r.Comment)
}

func TestFindEOCD_NotFound(t *testing.T) {
	noise := make([]byte, 4096)
	for i := range noise {
		noise[i] = byte(rand.IntN(256))
	}
	// make sure the noise does not accidentally contain the signature.
	noise = bytes.ReplaceAll(noise, []byte("PK"), []byte("pk"))

	// a valid record followed by more than the longest comment is out of reach.
	tooFar := append(appendEOCD(nil, eocdFields{}), make([]byte, 0x10000)...)

	tests := []struct {
		name string
		buf  []byte
	}{
		{name: "empty", buf: nil},
		{name: "shorter than a record", buf: appendEOCD(nil, eocdFields{})[:21]},
		{name: "noise", buf: noise},
		{name: "beyond max comment", buf: tooFar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FindEOCD(tt.buf)
			assert.ErrorIs(t, err, unarc.ErrCentralDirectoryNotFound)
		})
	}
}
