package scan

import (
	"encoding/binary"

	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/bitio"
	"github.com/nguyengg/unarc/textenc"
)

const (
	eocdSig         = 0x06054b50
	zip64LocatorSig = 0x07064b50
	zip64EOCDSig    = 0x06064b50

	// eocdLen is the size of the EOCD record without its comment.
	eocdLen = 22
	// zip64LocatorLen is the size of the ZIP64 end of central directory locator.
	zip64LocatorLen = 20
	// maxCommentLen bounds how far back from the end FindEOCD has to look.
	maxCommentLen = 0xffff

	sentinel16 = 0xffff
	sentinel32 = 0xffffffff
)

// EOCDRecord models the end of central directory record of a ZIP file.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#End_of_central_directory_record_(EOCD).
type EOCDRecord struct {
	// DiskNumber is number of this disk (or 0xffff for ZIP64).
	DiskNumber uint16
	// CDDiskNumber is disk where central directory starts (or 0xffff for ZIP64).
	CDDiskNumber uint16
	// CDCountOnDisk is the number of central directory records on this disk (or 0xffff for ZIP64).
	CDCountOnDisk uint16
	// CDCount is the total number of central directory records (or 0xffff for ZIP64).
	CDCount uint16
	// CDSize is size of central directory (bytes) (or 0xffffffff for ZIP64).
	CDSize uint32
	// CDOffset is offset of start of central directory, relative to start of archive (or 0xffffffff for ZIP64).
	CDOffset uint32
	// Comment is the comment section of the EOCD.
	Comment string
	// Offset is where the record starts.
	Offset int64
}

// IsZip64 returns true if any field holds its all-ones sentinel, meaning the true value is in the ZIP64 record.
func (r *EOCDRecord) IsZip64() bool {
	return r.DiskNumber == sentinel16 ||
		r.CDDiskNumber == sentinel16 ||
		r.CDCountOnDisk == sentinel16 ||
		r.CDCount == sentinel16 ||
		r.CDSize == sentinel32 ||
		r.CDOffset == sentinel32
}

// Zip64Locator models the ZIP64 end of central directory locator which immediately precedes the EOCD record.
type Zip64Locator struct {
	// Zip64EOCDDisk is the disk holding the ZIP64 end of central directory record.
	Zip64EOCDDisk uint32
	// Zip64EOCDOffset is the offset of the ZIP64 end of central directory record.
	Zip64EOCDOffset uint64
	// TotalDisks is the number of disks.
	TotalDisks uint32
	// Offset is where the locator starts.
	Offset int64
}

// Zip64EOCDRecord models the ZIP64 end of central directory record whose 64-bit fields replace those of EOCDRecord.
type Zip64EOCDRecord struct {
	// Size is the size of the remaining record, not counting the signature and this field.
	Size          uint64
	VersionMadeBy uint16
	VersionNeeded uint16
	DiskNumber    uint32
	CDDiskNumber  uint32
	CDCountOnDisk uint64
	CDCount       uint64
	CDSize        uint64
	CDOffset      uint64
	// Offset is where the record starts.
	Offset int64
}

// FindEOCD searches buf backwards for the EOCD record.
//
// The search steps back one byte at a time from the last possible position, and gives up after looking as far back
// as the longest possible comment. A signature whose declared comment would run past the end of buf is not a real
// EOCD record (it is most likely inside the comment or compressed data) and is skipped.
func FindEOCD(buf []byte) (EOCDRecord, error) {
	n := len(buf)
	for i := n - eocdLen; i >= 0 && i >= n-eocdLen-maxCommentLen; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) != eocdSig {
			continue
		}

		if commentLen := int(binary.LittleEndian.Uint16(buf[i+20:])); i+eocdLen+commentLen > n {
			continue
		}

		return readEOCDRecord(bitio.New(buf, bitio.LSBFirst), int64(i))
	}

	return EOCDRecord{}, unarc.Errorf("find EOCD", int64(max(n-eocdLen, 0)), unarc.ErrCentralDirectoryNotFound, "")
}

// readEOCDRecord decodes the EOCD record at offset.
func readEOCDRecord(c *bitio.Cursor, offset int64) (r EOCDRecord, err error) {
	r.Offset = offset
	if err = c.Seek(offset); err != nil {
		return
	}

	if err = expectSignature(c, eocdSig, "read EOCD"); err != nil {
		return
	}

	var v [4]uint16
	for i := range v {
		if v[i], err = c.Uint16(bitio.LittleEndian); err != nil {
			return
		}
	}
	r.DiskNumber, r.CDDiskNumber, r.CDCountOnDisk, r.CDCount = v[0], v[1], v[2], v[3]

	if r.CDSize, err = c.Uint32(bitio.LittleEndian); err != nil {
		return
	}
	if r.CDOffset, err = c.Uint32(bitio.LittleEndian); err != nil {
		return
	}

	commentLen, err := c.Uint16(bitio.LittleEndian)
	if err != nil {
		return
	}
	comment, err := c.Bytes(int(commentLen))
	if err != nil {
		return
	}
	r.Comment = textenc.Decode(comment)

	return r, nil
}

// readZip64Locator decodes the ZIP64 locator that must immediately precede the EOCD record.
func readZip64Locator(c *bitio.Cursor, eocdOffset int64) (l Zip64Locator, err error) {
	l.Offset = eocdOffset - zip64LocatorLen
	if l.Offset < 0 {
		return l, unarc.Errorf("read ZIP64 locator", eocdOffset, unarc.ErrOutOfBounds, "no room for ZIP64 locator before EOCD")
	}
	if err = c.Seek(l.Offset); err != nil {
		return
	}

	if err = expectSignature(c, zip64LocatorSig, "read ZIP64 locator"); err != nil {
		return
	}
	if l.Zip64EOCDDisk, err = c.Uint32(bitio.LittleEndian); err != nil {
		return
	}
	if l.Zip64EOCDOffset, err = c.Uint64(bitio.LittleEndian); err != nil {
		return
	}
	if l.TotalDisks, err = c.Uint32(bitio.LittleEndian); err != nil {
		return
	}

	return l, nil
}

// readZip64EOCDRecord decodes the ZIP64 end of central directory record at offset.
func readZip64EOCDRecord(c *bitio.Cursor, offset uint64) (r Zip64EOCDRecord, err error) {
	if offset > uint64(c.Len()) {
		return r, unarc.Errorf("read ZIP64 EOCD", int64(offset&(1<<63-1)), unarc.ErrOutOfBounds, "offset past end of buffer")
	}

	r.Offset = int64(offset)
	if err = c.Seek(r.Offset); err != nil {
		return
	}

	if err = expectSignature(c, zip64EOCDSig, "read ZIP64 EOCD"); err != nil {
		return
	}
	if r.Size, err = c.Uint64(bitio.LittleEndian); err != nil {
		return
	}
	if r.VersionMadeBy, err = c.Uint16(bitio.LittleEndian); err != nil {
		return
	}
	if r.VersionNeeded, err = c.Uint16(bitio.LittleEndian); err != nil {
		return
	}
	if r.DiskNumber, err = c.Uint32(bitio.LittleEndian); err != nil {
		return
	}
	if r.CDDiskNumber, err = c.Uint32(bitio.LittleEndian); err != nil {
		return
	}

	for _, v := range []*uint64{&r.CDCountOnDisk, &r.CDCount, &r.CDSize, &r.CDOffset} {
		if *v, err = c.Uint64(bitio.LittleEndian); err != nil {
			return
		}
	}

	return r, nil
}

func expectSignature(c *bitio.Cursor, sig uint32, op string) error {
	offset := c.Offset()

	v, err := c.Uint32(bitio.LittleEndian)
	if err != nil {
		return err
	}
	if v != sig {
		return unarc.Errorf(op, offset, unarc.ErrBadEntrySignature, "got 0x%08x, expected 0x%08x", v, sig)
	}

	return nil
}
