// Package scan decodes the central directory of a fully loaded ZIP archive.
//
// The end of central directory (EOCD) record is located by scanning backwards from the end of the buffer; ZIP64
// records are followed if any EOCD field holds its sentinel value. Local file headers are only read on demand by
// LocalDataOffset.
package scan

import (
	"iter"

	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/bitio"
)

const (
	// DefaultMaxVersion is the default value of [Options.MaxVersion]: 4.5, the version that introduced ZIP64.
	DefaultMaxVersion uint16 = 45
)

// Options customises how the central directory is scanned.
type Options struct {
	// MaxVersion is the highest "version needed to extract" accepted from the ZIP64 EOCD record and every entry.
	//
	// By default, DefaultMaxVersion is used.
	MaxVersion uint16

	// Observer receives "zip.scan" events.
	Observer unarc.Observer
}

// Directory holds the resolved end of central directory values.
//
// The resolved fields come from the ZIP64 EOCD record if there is one, and from the EOCD record otherwise.
type Directory struct {
	EOCD EOCDRecord
	// Locator and Zip64 are nil unless the EOCD record has any sentinel value.
	Locator *Zip64Locator
	Zip64   *Zip64EOCDRecord

	DiskNumber    uint32
	CDDiskNumber  uint32
	CDCountOnDisk uint64
	CDCount       uint64
	CDSize        uint64
	CDOffset      uint64

	// Entries is populated by CentralDirectory but not by Entries.
	Entries []Entry
}

// IsZip64 returns true if the ZIP64 records were used.
func (d *Directory) IsZip64() bool {
	return d.Zip64 != nil
}

// Entries locates the central directory in buf and returns an iterator over its entries.
//
// Errors locating the central directory are returned immediately. The iterator yields exactly Directory.CDCount
// entries and stops at the first error.
func Entries(buf []byte, optFns ...func(*Options)) (Directory, iter.Seq2[Entry, error], error) {
	opts := &Options{MaxVersion: DefaultMaxVersion}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.MaxVersion == 0 {
		opts.MaxVersion = DefaultMaxVersion
	}

	d, err := readDirectory(buf, opts)
	if err != nil {
		return d, nil, err
	}

	return d, func(yield func(Entry, error) bool) {
		c := bitio.New(buf, bitio.LSBFirst)
		if d.CDOffset > uint64(len(buf)) {
			yield(Entry{}, unarc.Errorf("read CD file header", d.EOCD.Offset, unarc.ErrOutOfBounds,
				"central directory offset %d past end of buffer", d.CDOffset))
			return
		}
		if err := c.Seek(int64(d.CDOffset)); err != nil {
			yield(Entry{}, err)
			return
		}

		for i := uint64(0); i < d.CDCount; i++ {
			e, err := readEntry(c)
			if err != nil {
				yield(Entry{}, err)
				return
			}

			if e.VersionNeeded > opts.MaxVersion {
				yield(Entry{}, unarc.Errorf("read CD file header", e.HeaderOffset, unarc.ErrUnsupportedVersion,
					"entry %q needs version %d, max is %d", e.Name, e.VersionNeeded, opts.MaxVersion))
				return
			}
			if e.DiskNumberStart != d.DiskNumber {
				yield(Entry{}, unarc.Errorf("read CD file header", e.HeaderOffset, unarc.ErrDiskMismatch,
					"entry %q starts on disk %d, EOCD is on disk %d", e.Name, e.DiskNumberStart, d.DiskNumber))
				return
			}

			unarc.Emit(opts.Observer, "zip.scan", "entry", e.HeaderOffset,
				"name", e.Name,
				"method", e.Method,
				"compressed", e.CompressedSize,
				"uncompressed", e.UncompressedSize,
				"offset", e.Offset)

			if !yield(e, nil) {
				return
			}
		}
	}, nil
}

// CentralDirectory locates and decodes the whole central directory in buf.
//
// Either the returned Directory has all CDCount entries in Directory.Entries, or an error is returned.
func CentralDirectory(buf []byte, optFns ...func(*Options)) (Directory, error) {
	d, it, err := Entries(buf, optFns...)
	if err != nil {
		return d, err
	}

	// each entry takes at least 46 bytes so a bogus count cannot force a huge allocation.
	d.Entries = make([]Entry, 0, min(d.CDCount, uint64(len(buf)/46)))
	for e, err := range it {
		if err != nil {
			return Directory{}, err
		}
		d.Entries = append(d.Entries, e)
	}

	return d, nil
}

// readDirectory finds the EOCD record and resolves ZIP64 values.
func readDirectory(buf []byte, opts *Options) (d Directory, err error) {
	if d.EOCD, err = FindEOCD(buf); err != nil {
		return
	}

	r := d.EOCD
	unarc.Emit(opts.Observer, "zip.scan", "eocd", r.Offset,
		"disk", r.DiskNumber,
		"entries", r.CDCount,
		"cd_size", r.CDSize,
		"cd_offset", r.CDOffset,
		"comment_len", len(r.Comment))

	if r.DiskNumber != r.CDDiskNumber {
		return d, unarc.Errorf("read EOCD", r.Offset, unarc.ErrDiskMismatch,
			"central directory starts on disk %d, EOCD is on disk %d", r.CDDiskNumber, r.DiskNumber)
	}
	if r.CDCountOnDisk != r.CDCount {
		return d, unarc.Errorf("read EOCD", r.Offset, unarc.ErrDiskMismatch,
			"%d of %d entries on this disk", r.CDCountOnDisk, r.CDCount)
	}

	d.DiskNumber, d.CDDiskNumber = uint32(r.DiskNumber), uint32(r.CDDiskNumber)
	d.CDCountOnDisk, d.CDCount = uint64(r.CDCountOnDisk), uint64(r.CDCount)
	d.CDSize, d.CDOffset = uint64(r.CDSize), uint64(r.CDOffset)

	if !r.IsZip64() {
		return d, nil
	}

	c := bitio.New(buf, bitio.LSBFirst)

	l, err := readZip64Locator(c, r.Offset)
	if err != nil {
		return d, err
	}
	d.Locator = &l

	if r.DiskNumber != sentinel16 && l.Zip64EOCDDisk != uint32(r.DiskNumber) {
		return d, unarc.Errorf("read ZIP64 locator", l.Offset, unarc.ErrDiskMismatch,
			"ZIP64 EOCD is on disk %d, EOCD is on disk %d", l.Zip64EOCDDisk, r.DiskNumber)
	}
	if l.TotalDisks != 1 {
		return d, unarc.Errorf("read ZIP64 locator", l.Offset, unarc.ErrDiskMismatch,
			"archive spans %d disks", l.TotalDisks)
	}

	z, err := readZip64EOCDRecord(c, l.Zip64EOCDOffset)
	if err != nil {
		return d, err
	}
	d.Zip64 = &z

	unarc.Emit(opts.Observer, "zip.scan", "zip64", z.Offset,
		"version_needed", z.VersionNeeded,
		"entries", z.CDCount,
		"cd_size", z.CDSize,
		"cd_offset", z.CDOffset)

	if z.VersionNeeded > opts.MaxVersion {
		return d, unarc.Errorf("read ZIP64 EOCD", z.Offset, unarc.ErrUnsupportedVersion,
			"needs version %d, max is %d", z.VersionNeeded, opts.MaxVersion)
	}
	if z.DiskNumber != z.CDDiskNumber {
		return d, unarc.Errorf("read ZIP64 EOCD", z.Offset, unarc.ErrDiskMismatch,
			"central directory starts on disk %d, ZIP64 EOCD is on disk %d", z.CDDiskNumber, z.DiskNumber)
	}
	if z.CDCountOnDisk != z.CDCount {
		return d, unarc.Errorf("read ZIP64 EOCD", z.Offset, unarc.ErrDiskMismatch,
			"%d of %d entries on this disk", z.CDCountOnDisk, z.CDCount)
	}

	d.DiskNumber, d.CDDiskNumber = z.DiskNumber, z.CDDiskNumber
	d.CDCountOnDisk, d.CDCount = z.CDCountOnDisk, z.CDCount
	d.CDSize, d.CDOffset = z.CDSize, z.CDOffset

	return d, nil
}
