// Package codec identifies an input and strips its compression layers so that the archive decoders see plain TAR or
// ZIP bytes.
package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/mholt/archives"
	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/gz/frame"
	"github.com/ulikunitz/xz"
	"github.com/valyala/bytebufferpool"
)

// ErrUnsupportedFormat is returned when the input is identified as an archive or compression format that is neither
// TAR, ZIP, gzip, zstd, nor xz.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ErrTooManyLayers is returned when an input has more nested compression layers than Options.MaxLayers.
var ErrTooManyLayers = errors.New("too many compression layers")

// Kind is what is left once every compression layer has been removed.
type Kind string

const (
	KindTar Kind = "tar"
	KindZip Kind = "zip"
	// KindRaw means the remaining bytes are not a recognised archive.
	KindRaw Kind = "raw"
)

// Layer describes one compression layer that was removed.
type Layer struct {
	// Format is "gzip", "zstd", or "xz".
	Format string
	// Size is the size of the layer's input.
	Size int
	// Gzip is the full decode result if Format is "gzip".
	Gzip *frame.Result
}

// Input is an identified and fully unwrapped input.
type Input struct {
	// Name is the name after stripping the extension of each layer, e.g. "a.tar" for "a.tar.gz".
	Name   string
	Kind   Kind
	Layers []Layer
	Data   []byte
}

// Options customises Unwrap.
type Options struct {
	// MaxLayers bounds the number of compression layers; 0 means 4.
	MaxLayers int

	// Observer receives "gz.frame" events from gzip layers.
	Observer unarc.Observer
}

// Unwrap identifies buf, which was read from name, and removes compression layers until a TAR or ZIP archive or an
// unrecognised payload remains.
func Unwrap(ctx context.Context, name string, buf []byte, optFns ...func(*Options)) (*Input, error) {
	opts := &Options{MaxLayers: 4}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.MaxLayers <= 0 {
		opts.MaxLayers = 4
	}

	in := &Input{Name: name, Data: buf}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		format, _, err := archives.Identify(ctx, filepath.Base(in.Name), bytes.NewReader(in.Data))
		switch {
		case errors.Is(err, archives.NoMatch):
			in.Kind = KindRaw
			return in, nil
		case err != nil:
			return nil, fmt.Errorf("identify error: %w", err)
		}

		var comp archives.Compression
		var arch archives.Archival
		switch f := format.(type) {
		case archives.CompressedArchive:
			comp, arch = f.Compression, f.Archival
		case *archives.CompressedArchive:
			comp, arch = f.Compression, f.Archival
		case archives.Compression:
			comp = f
		case archives.Archival:
			arch = f
		}

		if comp == nil {
			switch arch.(type) {
			case archives.Tar, *archives.Tar:
				in.Kind = KindTar
			case archives.Zip, *archives.Zip:
				in.Kind = KindZip
			default:
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format.Extension())
			}

			return in, nil
		}

		if len(in.Layers) == opts.MaxLayers {
			return nil, fmt.Errorf("%w: more than %d", ErrTooManyLayers, opts.MaxLayers)
		}

		layer := Layer{Size: len(in.Data)}
		switch comp.(type) {
		case archives.Gz, *archives.Gz:
			layer.Format = "gzip"
			if layer.Gzip, err = frame.Decompress(in.Data, func(o *frame.Options) {
				o.Observer = opts.Observer
			}); err == nil {
				in.Data = layer.Gzip.Data
			}
		case archives.Zstd, *archives.Zstd:
			layer.Format = "zstd"
			in.Data, err = decodeZstd(in.Data)
		case archives.Xz, *archives.Xz:
			layer.Format = "xz"
			in.Data, err = decodeXz(in.Data)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, comp.Extension())
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s error: %w", layer.Format, err)
		}

		in.Layers = append(in.Layers, layer)
		in.Name = trimExt(in.Name, comp.Extension())
	}
}

// trimExt removes the compression extension from name; ".tgz" and similar shorthands become ".tar".
func trimExt(name, ext string) string {
	if stem, ok := strings.CutSuffix(name, ext); ok {
		return stem
	}

	lower := strings.ToLower(filepath.Ext(name))
	switch lower {
	case ".tgz", ".tzst", ".txz":
		return strings.TrimSuffix(name, filepath.Ext(name)) + ".tar"
	}

	return strings.TrimSuffix(name, filepath.Ext(name))
}

func decodeZstd(buf []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return dec.DecodeAll(buf, nil)
}

var xzPool bytebufferpool.Pool

func decodeXz(buf []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}

	bb := xzPool.Get()
	defer xzPool.Put(bb)

	if _, err = io.Copy(bb, r); err != nil {
		return nil, err
	}

	return bytes.Clone(bb.B), nil
}
