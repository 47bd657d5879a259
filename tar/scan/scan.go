// Package scan walks the header blocks of a fully loaded TAR archive.
//
// The walker decodes each header with package [github.com/nguyengg/unarc/tar/header], skips over its data blocks,
// and merges GNU long name and PAX extended header blocks into the entry they describe. Only normal entries are
// returned.
package scan

import (
	"bytes"
	"iter"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/bitio"
	"github.com/nguyengg/unarc/tar/header"
	"github.com/nguyengg/unarc/textenc"
)

// Options customises Entries.
type Options struct {
	// Observer receives "tar.scan" events as well as the "tar.header" events of every decoded header.
	Observer unarc.Observer
}

// Entry is one normal archive entry after long name and extended header records have been applied.
type Entry struct {
	// Header is the merged header. Header.Offset is the offset of the entry's own header block, not of any
	// preceding long name or extended header block.
	header.Header

	// DataOffset is where the entry's data starts in the buffer.
	DataOffset int64

	// PAX holds the local extended header records that applied to this entry, if any.
	PAX map[string]string

	// Global holds every global extended header record seen so far, if any.
	Global map[string]string

	buf []byte
}

// Data returns a copy of the entry's data.
func (e *Entry) Data() []byte {
	return bytes.Clone(e.buf[e.DataOffset : e.DataOffset+e.Size])
}

var zeroBlock [header.BlockSize]byte

// pending holds what special headers have contributed to the next normal entry.
type pending struct {
	longName, longLink *string
	pax                map[string]string
}

// Entries returns an iterator over the normal entries of the TAR archive in buf.
//
// The walk ends at two consecutive all-zero blocks, or cleanly at the end of buf if the archive is not terminated.
// The iterator stops at the first error.
func Entries(buf []byte, optFns ...func(*Options)) iter.Seq2[Entry, error] {
	opts := &Options{}
	for _, fn := range optFns {
		fn(opts)
	}

	return func(yield func(Entry, error) bool) {
		var (
			c      = bitio.New(buf, bitio.LSBFirst)
			offset int64
			p      pending
			global map[string]string
		)

		for {
			switch end, err := endOfArchive(buf, offset); {
			case err != nil:
				yield(Entry{}, err)
				return
			case end:
				unarc.Emit(opts.Observer, "tar.scan", "end", offset)
				return
			}

			if err := c.Seek(offset); err != nil {
				yield(Entry{}, err)
				return
			}

			h, err := header.Decode(c, func(o *header.Options) {
				o.Observer = opts.Observer
			})
			if err != nil {
				yield(Entry{}, err)
				return
			}

			if st, ok := h.Special(); ok {
				unarc.Emit(opts.Observer, "tar.scan", "special", h.Offset, "type", st, "size", h.Size)

				if !fits(buf, h.DataOffset(), h.Size) {
					yield(Entry{}, unarc.Errorf("read tar entry", h.Offset, unarc.ErrOutOfBounds,
						"data of %d bytes runs past end of archive", h.Size))
					return
				}
				data := buf[h.DataOffset() : h.DataOffset()+h.Size]

				switch st {
				case header.LongName:
					s := textenc.Decode(trimNUL(data))
					p.longName = &s
				case header.LongLinkName:
					s := textenc.Decode(trimNUL(data))
					p.longLink = &s
				case header.LocalExtendedHeader, header.SunExtendedHeader:
					if p.pax == nil {
						p.pax = make(map[string]string)
					}
					if err = parsePAX(data, p.pax); err != nil {
						yield(Entry{}, unarc.Errorf("read pax records", h.Offset, unarc.ErrCorruptStream, "%v", err))
						return
					}
				case header.GlobalExtendedHeader:
					if global == nil {
						global = make(map[string]string)
					}
					if err = parsePAX(data, global); err != nil {
						yield(Entry{}, unarc.Errorf("read pax records", h.Offset, unarc.ErrCorruptStream, "%v", err))
						return
					}
				}

				offset = h.NextOffset()
				continue
			}

			e := Entry{Header: h, PAX: p.pax, Global: maps.Clone(global), buf: buf}
			if err = p.apply(&e); err != nil {
				yield(Entry{}, unarc.Errorf("apply pax records", h.Offset, unarc.ErrCorruptStream, "%v", err))
				return
			}
			e.DataOffset = e.Header.DataOffset()

			if !fits(buf, e.DataOffset, e.Size) {
				yield(Entry{}, unarc.Errorf("read tar entry", h.Offset, unarc.ErrOutOfBounds,
					"data of %d bytes runs past end of archive", e.Size))
				return
			}

			p = pending{}
			offset = e.NextOffset()

			if !yield(e, nil) {
				return
			}
		}
	}
}

// fits reports whether size bytes starting at offset lie within buf.
//
// Size comes from the archive and may be anywhere in int64 so the comparison must not add to offset. Once fits returns
// true, Header.NextOffset cannot overflow.
func fits(buf []byte, offset, size int64) bool {
	return size >= 0 && offset <= int64(len(buf)) && size <= int64(len(buf))-offset
}

// endOfArchive returns true if there is nothing more to read at offset.
//
// A lone zero block at the very end of buf also counts as the end since some writers omit the second one.
func endOfArchive(buf []byte, offset int64) (bool, error) {
	n := int64(len(buf))
	if offset >= n {
		return true, nil
	}

	if n-offset < header.BlockSize || !bytes.Equal(buf[offset:offset+header.BlockSize], zeroBlock[:]) {
		return false, nil
	}

	next := offset + header.BlockSize
	switch {
	case next >= n:
		return true, nil
	case n-next >= header.BlockSize && bytes.Equal(buf[next:next+header.BlockSize], zeroBlock[:]):
		return true, nil
	default:
		return false, unarc.Errorf("read tar header", offset, unarc.ErrCorruptStream, "zero block not followed by another")
	}
}

// apply merges the pending long names and PAX records into e.
//
// PAX records take precedence over GNU long names; local records take precedence over global ones.
func (p *pending) apply(e *Entry) error {
	if p.longName != nil {
		e.Name, e.Prefix = *p.longName, ""
	}
	if p.longLink != nil {
		e.Linkname = *p.longLink
	}

	records := make(map[string]string, len(e.Global)+len(p.pax))
	maps.Copy(records, e.Global)
	maps.Copy(records, p.pax)

	for k, v := range records {
		if v == "" {
			continue
		}

		switch k {
		case "path":
			e.Name, e.Prefix = v, ""
		case "linkpath":
			e.Linkname = v
		case "uname":
			e.Uname = v
		case "gname":
			e.Gname = v
		case "size":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return errInvalidRecord(k, v)
			}
			e.Size = n
		case "uid", "gid":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errInvalidRecord(k, v)
			}
			if k == "uid" {
				e.UID = &n
			} else {
				e.GID = &n
			}
		case "mtime", "atime", "ctime":
			t, err := parsePAXTime(v)
			if err != nil {
				return errInvalidRecord(k, v)
			}
			switch k {
			case "mtime":
				e.ModTime = &t
			case "atime":
				e.AccessTime = &t
			default:
				e.ChangeTime = &t
			}
		}
	}

	return nil
}

// parsePAX parses "%d %s=%s\n" records into m. Later records overwrite earlier ones.
func parsePAX(b []byte, m map[string]string) error {
	for len(b) > 0 {
		sp := bytes.IndexByte(b, ' ')
		if sp <= 0 {
			return errMalformedRecord
		}

		n, err := strconv.Atoi(string(b[:sp]))
		if err != nil || n <= sp+1 || n > len(b) {
			return errMalformedRecord
		}

		rec := b[sp+1 : n]
		if rec[len(rec)-1] != '\n' {
			return errMalformedRecord
		}

		k, v, ok := strings.Cut(string(rec[:len(rec)-1]), "=")
		if !ok || k == "" {
			return errMalformedRecord
		}

		m[k] = v
		b = b[n:]
	}

	return nil
}

// parsePAXTime parses a decimal number of seconds with an optional fraction.
func parsePAXTime(s string) (time.Time, error) {
	secs, frac, _ := strings.Cut(s, ".")

	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	var nsec int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		if nsec, err = strconv.ParseInt(frac, 10, 64); err != nil || nsec < 0 {
			return time.Time{}, errMalformedRecord
		}
		if sec < 0 || strings.HasPrefix(secs, "-") {
			nsec = -nsec
		}
	}

	return time.Unix(sec, nsec).UTC(), nil
}

func trimNUL(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i != -1 {
		return b[:i]
	}

	return b
}
