package frame

import (
	"errors"
	"fmt"

	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/bitio"
	"github.com/nguyengg/unarc/internal/huffman"
)

// BlockType is the 2-bit BTYPE of a Deflate block header.
type BlockType uint8

const (
	Stored BlockType = iota
	StaticHuffman
	DynamicHuffman
	// Reserved is type 11 which is always an error.
	Reserved
)

func (t BlockType) String() string {
	switch t {
	case Stored:
		return "stored"
	case StaticHuffman:
		return "static"
	case DynamicHuffman:
		return "dynamic"
	case Reserved:
		return "reserved"
	default:
		return fmt.Sprintf("BlockType(%d)", uint8(t))
	}
}

// BlockHeader describes one Deflate block.
type BlockHeader struct {
	// Final is the BFINAL bit.
	Final bool
	// Type is the BTYPE field.
	Type BlockType
	// Offset is the position of the block header in bits from the start of the buffer.
	Offset int64
	// Size is the number of bytes the block decoded to.
	Size int
	// Tables holds the transmitted code lengths of a DynamicHuffman block, and is nil otherwise.
	Tables *CodeTables
}

// CodeTables holds the code length description transmitted at the start of a DynamicHuffman block.
type CodeTables struct {
	// HLIT, HDIST, and HCLEN are the number of literal/length, distance, and code length codes.
	HLIT, HDIST, HCLEN int
	// CodeLengthLengths is indexed by code length symbol (0-18), not by transmission order.
	CodeLengthLengths [19]uint8
	// LitLen and Dist are the code lengths of the literal/length and distance alphabets.
	LitLen, Dist []uint8
}

// SymbolDecoder decodes one symbol from the bit stream.
type SymbolDecoder interface {
	Decode(c *bitio.Cursor) (int, error)
}

// Entropy creates a SymbolDecoder from code lengths indexed by symbol, 0 meaning unused.
type Entropy func(lengths []uint8) (SymbolDecoder, error)

// HuffmanEntropy is the default Entropy, a canonical Huffman decoder.
func HuffmanEntropy(lengths []uint8) (SymbolDecoder, error) {
	t, err := huffman.New(lengths)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// Options customises Inflate and Decompress.
type Options struct {
	// Entropy builds the symbol decoders. Defaults to HuffmanEntropy.
	Entropy Entropy
	// Observer receives "gz.frame" events.
	Observer unarc.Observer
}

var (
	// codeLengthOrder is the order in which the code length code lengths are transmitted.
	codeLengthOrder = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

	lengthBase  = [29]int{3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31, 35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258}
	lengthExtra = [29]uint{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}
	distBase    = [30]int{1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193, 257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577}
	distExtra   = [30]uint{0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13}
)

// staticLengths returns the fixed literal/length and distance code lengths of a StaticHuffman block.
func staticLengths() (litLen, dist []uint8) {
	litLen = make([]uint8, 288)
	for i := range litLen {
		switch {
		case i < 144:
			litLen[i] = 8
		case i < 256:
			litLen[i] = 9
		case i < 280:
			litLen[i] = 7
		default:
			litLen[i] = 8
		}
	}

	// 32 codes keep the table complete; 30 and 31 never appear in valid data.
	dist = make([]uint8, 32)
	for i := range dist {
		dist[i] = 5
	}

	return
}

// Inflate decodes the Deflate stream at the cursor's current position, appending the output to dst.
//
// On success the cursor is left right after the final block, possibly mid-byte. Back-references never reach into
// the part of dst that existed before the call.
func Inflate(c *bitio.Cursor, dst []byte, optFns ...func(*Options)) ([]byte, []BlockHeader, error) {
	opts := &Options{Entropy: HuffmanEntropy}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.Entropy == nil {
		opts.Entropy = HuffmanEntropy
	}

	d := &inflater{c: c, out: dst, start: len(dst), opts: opts}

	var blocks []BlockHeader
	for {
		bh, err := d.block()
		if err != nil {
			return dst, blocks, err
		}

		blocks = append(blocks, bh)
		if bh.Final {
			return d.out, blocks, nil
		}
	}
}

type inflater struct {
	c     *bitio.Cursor
	out   []byte
	start int
	opts  *Options
}

func (d *inflater) corrupt(offset int64, format string, args ...any) error {
	return unarc.Errorf("inflate", offset, unarc.ErrCorruptStream, format, args...)
}

// wrap passes cursor errors through and reports everything else, typically from Entropy, as a corrupt stream.
func (d *inflater) wrap(offset int64, err error) error {
	var de *unarc.DecodeError
	if errors.As(err, &de) {
		return err
	}

	return d.corrupt(offset, "%v", err)
}

// block decodes one block header and its data.
func (d *inflater) block() (bh BlockHeader, err error) {
	bh.Offset = d.c.BitOffset()
	offset := d.c.Offset()

	v, err := d.c.Bits(3)
	if err != nil {
		return bh, err
	}
	bh.Final, bh.Type = v&1 == 1, BlockType(v>>1)

	n := len(d.out)
	switch bh.Type {
	case Stored:
		err = d.stored()
	case StaticHuffman:
		litLen, dist := staticLengths()
		err = d.huffman(litLen, dist)
	case DynamicHuffman:
		if bh.Tables, err = d.tables(); err == nil {
			err = d.huffman(bh.Tables.LitLen, bh.Tables.Dist)
		}
	default:
		return bh, unarc.Errorf("inflate", offset, unarc.ErrInvalidBlockType, "")
	}
	if err != nil {
		return bh, err
	}

	bh.Size = len(d.out) - n
	unarc.Emit(d.opts.Observer, "gz.frame", "block", offset,
		"bit", bh.Offset,
		"final", bh.Final,
		"type", bh.Type,
		"size", bh.Size)

	return bh, nil
}

func (d *inflater) stored() error {
	d.c.Align()
	offset := d.c.Offset()

	n, err := d.c.Uint16(bitio.LittleEndian)
	if err != nil {
		return err
	}
	nn, err := d.c.Uint16(bitio.LittleEndian)
	if err != nil {
		return err
	}
	if n != ^nn {
		return d.corrupt(offset, "stored block length 0x%04x does not match complement 0x%04x", n, nn)
	}

	b, err := d.c.Bytes(int(n))
	if err != nil {
		return err
	}

	d.out = append(d.out, b...)
	return nil
}

// tables reads the code length description of a DynamicHuffman block.
func (d *inflater) tables() (*CodeTables, error) {
	offset := d.c.Offset()

	v, err := d.c.Bits(14)
	if err != nil {
		return nil, err
	}

	t := &CodeTables{
		HLIT:  int(v&0x1f) + 257,
		HDIST: int(v>>5&0x1f) + 1,
		HCLEN: int(v>>10) + 4,
	}
	if t.HLIT > 286 || t.HDIST > 30 {
		return nil, d.corrupt(offset, "too many codes (HLIT=%d, HDIST=%d)", t.HLIT, t.HDIST)
	}

	for i := 0; i < t.HCLEN; i++ {
		n, err := d.c.Bits(3)
		if err != nil {
			return nil, err
		}
		t.CodeLengthLengths[codeLengthOrder[i]] = uint8(n)
	}

	cl, err := d.opts.Entropy(t.CodeLengthLengths[:])
	if err != nil {
		return nil, d.wrap(offset, err)
	}

	lengths := make([]uint8, t.HLIT+t.HDIST)
	for i := 0; i < len(lengths); {
		sym, err := cl.Decode(d.c)
		if err != nil {
			return nil, d.wrap(offset, err)
		}

		if sym < 16 {
			lengths[i] = uint8(sym)
			i++
			continue
		}

		var (
			rep  uint32
			fill uint8
		)
		switch sym {
		case 16:
			if i == 0 {
				return nil, d.corrupt(offset, "repeat code with no previous length")
			}
			fill = lengths[i-1]
			rep, err = d.c.Bits(2)
			rep += 3
		case 17:
			rep, err = d.c.Bits(3)
			rep += 3
		case 18:
			rep, err = d.c.Bits(7)
			rep += 11
		default:
			return nil, d.corrupt(offset, "invalid code length symbol %d", sym)
		}
		if err != nil {
			return nil, err
		}

		if i+int(rep) > len(lengths) {
			return nil, d.corrupt(offset, "code lengths repeat past %d codes", len(lengths))
		}
		for ; rep > 0; rep-- {
			lengths[i] = fill
			i++
		}
	}

	t.LitLen, t.Dist = lengths[:t.HLIT], lengths[t.HLIT:]
	if t.LitLen[256] == 0 {
		return nil, d.corrupt(offset, "no end-of-block code")
	}

	unarc.Emit(d.opts.Observer, "gz.frame", "tables", offset, "hlit", t.HLIT, "hdist", t.HDIST, "hclen", t.HCLEN)
	return t, nil
}

// huffman decodes symbols until the end-of-block code.
func (d *inflater) huffman(litLenLengths, distLengths []uint8) error {
	offset := d.c.Offset()

	litLen, err := d.opts.Entropy(litLenLengths)
	if err != nil {
		return d.wrap(offset, err)
	}
	dist, err := d.opts.Entropy(distLengths)
	if err != nil {
		return d.wrap(offset, err)
	}

	for {
		sym, err := litLen.Decode(d.c)
		if err != nil {
			return d.wrap(d.c.Offset(), err)
		}

		switch {
		case sym < 256:
			d.out = append(d.out, byte(sym))
			continue
		case sym == 256:
			return nil
		case sym > 285:
			return d.corrupt(d.c.Offset(), "invalid length symbol %d", sym)
		}

		sym -= 257
		extra, err := d.c.Bits(lengthExtra[sym])
		if err != nil {
			return err
		}
		length := lengthBase[sym] + int(extra)

		ds, err := dist.Decode(d.c)
		if err != nil {
			return d.wrap(d.c.Offset(), err)
		}
		if ds >= len(distBase) {
			return d.corrupt(d.c.Offset(), "invalid distance symbol %d", ds)
		}
		if extra, err = d.c.Bits(distExtra[ds]); err != nil {
			return err
		}
		distance := distBase[ds] + int(extra)

		if distance > len(d.out)-d.start {
			return d.corrupt(d.c.Offset(), "distance %d too far back (%d bytes available)", distance, len(d.out)-d.start)
		}

		// byte by byte since the source and destination may overlap.
		for i := len(d.out) - distance; length > 0; length-- {
			d.out = append(d.out, d.out[i])
			i++
		}
	}
}
