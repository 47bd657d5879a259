package huffman

import (
	"testing"

	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/bitio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pack writes codes MSB first into an LSB-first bit stream.
func pack(codes ...string) []byte {
	var (
		out []byte
		n   uint
	)
	for _, code := range codes {
		for _, ch := range code {
			if n%8 == 0 {
				out = append(out, 0)
			}
			if ch == '1' {
				out[len(out)-1] |= 1 << (n % 8)
			}
			n++
		}
	}

	return out
}

func TestTable_Decode(t *testing.T) {
	// lengths (3, 3, 3, 3, 3, 2, 4, 4) for A-H give F=00, A=010, B=011, C=100, D=101, E=110, G=1110, H=1111.
	table, err := New([]uint8{3, 3, 3, 3, 3, 2, 4, 4})
	require.NoErrorf(t, err, "New() error = %v", err)
	assert.Equal(t, 8, table.Len())

	c := bitio.New(pack("00", "010", "011", "100", "101", "110", "1110", "1111"), bitio.LSBFirst)

	var got []int
	for range 8 {
		s, err := table.Decode(c)
		require.NoErrorf(t, err, "Decode() error = %v", err)
		got = append(got, s)
	}

	assert.Equal(t, []int{5, 0, 1, 2, 3, 4, 6, 7}, got)
}

func TestTable_UnusedSymbols(t *testing.T) {
	// only symbols 1 and 3 have codes: 1=0, 3=1.
	table, err := New([]uint8{0, 1, 0, 1})
	require.NoError(t, err)

	c := bitio.New(pack("1", "0", "1"), bitio.LSBFirst)
	for _, expected := range []int{3, 1, 3} {
		s, err := table.Decode(c)
		require.NoError(t, err)
		assert.Equal(t, expected, s)
	}
}

func TestTable_Incomplete(t *testing.T) {
	// a single code of length 1 is allowed but the code 1 is unassigned.
	table, err := New([]uint8{1})
	require.NoError(t, err)

	s, err := table.Decode(bitio.New(pack("0"), bitio.LSBFirst))
	require.NoError(t, err)
	assert.Equal(t, 0, s)

	_, err = table.Decode(bitio.New([]byte{0xff, 0xff}, bitio.LSBFirst))
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestNew_Oversubscribed(t *testing.T) {
	_, err := New([]uint8{1, 1, 1})
	assert.ErrorIs(t, err, ErrOversubscribed)

	_, err = New([]uint8{16})
	assert.ErrorIs(t, err, ErrOversubscribed)
}

func TestTable_OutOfBounds(t *testing.T) {
	table, err := New([]uint8{3, 3, 3, 3, 3, 2, 4, 4})
	require.NoError(t, err)

	c := bitio.New(nil, bitio.LSBFirst)
	_, err = table.Decode(c)
	assert.ErrorIs(t, err, unarc.ErrOutOfBounds)
}
