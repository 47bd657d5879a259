package scan

import (
	"time"

	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/bitio"
	"github.com/nguyengg/unarc/textenc"
)

const (
	lfhSig  = 0x04034b50
	cdfhSig = 0x02014b50

	// lfhLen is the fixed-size part of a local file header.
	lfhLen = 30

	// Zip64ExtraID is the header ID of the ZIP64 extended information extra field.
	Zip64ExtraID = 0x0001

	// flagUTF8 is general purpose flag bit 11, meaning the name and comment are UTF-8.
	flagUTF8 = 0x800
)

// ExtraField is one record of an entry's extra field chain.
type ExtraField struct {
	ID   uint16
	Data []byte
}

// Entry is a decoded central directory file header.
//
// Sizes, Offset, and DiskNumberStart have already been resolved from the ZIP64 extra field if needed.
type Entry struct {
	VersionMadeBy uint16
	VersionNeeded uint16
	Flags         uint16
	Method        uint16
	ModifiedTime  uint16
	ModifiedDate  uint16
	// Modified is ModifiedDate and ModifiedTime as a time.Time in UTC.
	Modified         time.Time
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	Name             string
	Comment          string
	// NonUTF8 is true if the name was decoded as CP437.
	NonUTF8         bool
	DiskNumberStart uint32
	InternalAttrs   uint16
	ExternalAttrs   uint32
	// Offset is the offset of the entry's local file header.
	Offset uint64
	// Extra is the raw extra field chain.
	Extra []ExtraField
	// HeaderOffset is where this central directory file header starts.
	HeaderOffset int64
}

// IsDir returns true if the entry name ends with a slash.
func (e *Entry) IsDir() bool {
	return len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/'
}

// readEntry decodes the central directory file header at the cursor's current position.
func readEntry(c *bitio.Cursor) (e Entry, err error) {
	e.HeaderOffset = c.Offset()
	if err = expectSignature(c, cdfhSig, "read CD file header"); err != nil {
		return
	}

	for _, v := range []*uint16{&e.VersionMadeBy, &e.VersionNeeded, &e.Flags, &e.Method, &e.ModifiedTime, &e.ModifiedDate} {
		if *v, err = c.Uint16(bitio.LittleEndian); err != nil {
			return
		}
	}
	e.Modified = msDosTimeToTime(e.ModifiedDate, e.ModifiedTime)

	if e.CRC32, err = c.Uint32(bitio.LittleEndian); err != nil {
		return
	}

	var compressedSize, uncompressedSize uint32
	if compressedSize, err = c.Uint32(bitio.LittleEndian); err != nil {
		return
	}
	if uncompressedSize, err = c.Uint32(bitio.LittleEndian); err != nil {
		return
	}
	e.CompressedSize, e.UncompressedSize = uint64(compressedSize), uint64(uncompressedSize)

	var nameLen, extraLen, commentLen, diskNumberStart uint16
	for _, v := range []*uint16{&nameLen, &extraLen, &commentLen, &diskNumberStart, &e.InternalAttrs} {
		if *v, err = c.Uint16(bitio.LittleEndian); err != nil {
			return
		}
	}
	e.DiskNumberStart = uint32(diskNumberStart)

	if e.ExternalAttrs, err = c.Uint32(bitio.LittleEndian); err != nil {
		return
	}

	var offset uint32
	if offset, err = c.Uint32(bitio.LittleEndian); err != nil {
		return
	}
	e.Offset = uint64(offset)

	name, err := c.Bytes(int(nameLen))
	if err != nil {
		return
	}
	e.Name, e.NonUTF8 = decodeText(name, e.Flags)

	if e.Extra, err = readExtraFields(c, int(extraLen)); err != nil {
		return
	}

	comment, err := c.Bytes(int(commentLen))
	if err != nil {
		return
	}
	e.Comment, _ = decodeText(comment, e.Flags)

	if err = e.applyZip64(); err != nil {
		return
	}

	return e, nil
}

// decodeText decodes a name or comment, returning true if it was not UTF-8.
func decodeText(b []byte, flags uint16) (string, bool) {
	if flags&flagUTF8 != 0 {
		return string(b), false
	}

	return textenc.Decode(b), !textenc.IsUTF8(b) && !textenc.IsASCII(b)
}

// readExtraFields walks exactly n bytes of extra field records.
func readExtraFields(c *bitio.Cursor, n int) (fields []ExtraField, err error) {
	start := c.Offset()
	end := start + int64(n)
	if int64(c.Remaining()) < int64(n) {
		return nil, unarc.Errorf("read extra field", start, unarc.ErrOutOfBounds, "need %d bytes, have %d", n, c.Remaining())
	}

	// some writers pad the chain with fewer bytes than a record header; those are skipped.
	for end-c.Offset() >= 4 {
		var f ExtraField
		if f.ID, err = c.Uint16(bitio.LittleEndian); err != nil {
			return nil, err
		}

		size, err := c.Uint16(bitio.LittleEndian)
		if err != nil {
			return nil, err
		}
		if c.Offset()+int64(size) > end {
			return nil, unarc.Errorf("read extra field", c.Offset()-4, unarc.ErrOutOfBounds,
				"record 0x%04x of %d bytes runs past end of extra field", f.ID, size)
		}

		if f.Data, err = c.Bytes(int(size)); err != nil {
			return nil, err
		}

		fields = append(fields, f)
	}

	if err = c.Seek(end); err != nil {
		return nil, err
	}

	return fields, nil
}

// applyZip64 replaces sentinel values with those from the ZIP64 extra field.
//
// The extra field holds, in order, only the values whose fixed fields are sentinels: uncompressed size, compressed
// size, local header offset (8 bytes each) and start disk (4 bytes).
func (e *Entry) applyZip64() error {
	needUncompressed := e.UncompressedSize == sentinel32
	needCompressed := e.CompressedSize == sentinel32
	needOffset := e.Offset == sentinel32
	needDisk := e.DiskNumberStart == sentinel16
	if !needUncompressed && !needCompressed && !needOffset && !needDisk {
		return nil
	}

	var data []byte
	found := false
	for _, f := range e.Extra {
		if f.ID == Zip64ExtraID {
			data, found = f.Data, true
			break
		}
	}
	if !found {
		return unarc.Errorf("read CD file header", e.HeaderOffset, unarc.ErrMissingZip64Field, "entry %q", e.Name)
	}

	c := bitio.New(data, bitio.LSBFirst)
	for _, v := range []struct {
		need bool
		name string
		dst  *uint64
	}{
		{needUncompressed, "uncompressed size", &e.UncompressedSize},
		{needCompressed, "compressed size", &e.CompressedSize},
		{needOffset, "local header offset", &e.Offset},
	} {
		if !v.need {
			continue
		}

		x, err := c.Uint64(bitio.LittleEndian)
		if err != nil {
			return unarc.Errorf("read CD file header", e.HeaderOffset, unarc.ErrMissingZip64Field,
				"entry %q: ZIP64 extra field has no %s", e.Name, v.name)
		}
		*v.dst = x
	}

	if needDisk {
		x, err := c.Uint32(bitio.LittleEndian)
		if err != nil {
			return unarc.Errorf("read CD file header", e.HeaderOffset, unarc.ErrMissingZip64Field,
				"entry %q: ZIP64 extra field has no start disk", e.Name)
		}
		e.DiskNumberStart = x
	}

	return nil
}

// LocalDataOffset returns where the data of e starts by reading its local file header in buf.
func LocalDataOffset(buf []byte, e Entry) (int64, error) {
	c := bitio.New(buf, bitio.LSBFirst)
	if e.Offset > uint64(len(buf)) {
		return 0, unarc.Errorf("read local file header", int64(len(buf)), unarc.ErrOutOfBounds, "entry %q at offset %d", e.Name, e.Offset)
	}

	offset := int64(e.Offset)
	if err := c.Seek(offset); err != nil {
		return 0, err
	}
	if err := expectSignature(c, lfhSig, "read local file header"); err != nil {
		return 0, err
	}
	if err := c.Skip(22); err != nil {
		return 0, err
	}

	nameLen, err := c.Uint16(bitio.LittleEndian)
	if err != nil {
		return 0, err
	}
	extraLen, err := c.Uint16(bitio.LittleEndian)
	if err != nil {
		return 0, err
	}

	dataOffset := offset + lfhLen + int64(nameLen) + int64(extraLen)
	if dataOffset > int64(len(buf)) || e.CompressedSize > uint64(len(buf))-uint64(dataOffset) {
		return 0, unarc.Errorf("read local file header", offset, unarc.ErrOutOfBounds,
			"entry %q data of %d bytes runs past end of buffer", e.Name, e.CompressedSize)
	}

	return dataOffset, nil
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
// See: https://learn.microsoft.com/en-us/windows/win32/api/winbase/nf-winbase-dosdatetimetofiletime
//
// taken from https://go.dev/src/archive/zip/struct.go.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		// date bits 0-4: day of month; 5-8: month; 9-15: years since 1980
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),

		// time bits 0-4: second/2; 5-10: minute; 11-15: hour
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0, // nanoseconds

		time.UTC,
	)
}
