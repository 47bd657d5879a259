package cmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/internal"
	"github.com/nguyengg/unarc/internal/codec"
	"github.com/nguyengg/unarc/internal/load"
	"github.com/nguyengg/unarc/tar/header"
	tarscan "github.com/nguyengg/unarc/tar/scan"
	zipscan "github.com/nguyengg/unarc/zip/scan"
	"golang.org/x/time/rate"
)

// decodeOptions are shared by every command that decodes archives.
type decodeOptions struct {
	observer   unarc.Observer
	progress   io.Writer
	maxVersion uint16
}

// openInput loads and unwraps the named input.
func openInput(ctx context.Context, name string, opts decodeOptions) (*codec.Input, error) {
	logger := internal.MustLogger(ctx)

	buf, err := load.Load(ctx, name, func(o *load.Options) {
		o.Progress = opts.progress
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}

	return codec.Unwrap(ctx, name, buf, func(o *codec.Options) {
		o.Observer = opts.observer
	})
}

// walk calls fn with every TAR or ZIP entry of in.
//
// Exactly one of tarEntry and zipEntry is non-nil per call. The ZIP directory, if any, is returned.
func walk(ctx context.Context, in *codec.Input, opts decodeOptions, fn func(tarEntry *tarscan.Entry, zipEntry *zipscan.Entry) error) (*zipscan.Directory, error) {
	logger := internal.MustLogger(ctx)
	sometimes := rate.Sometimes{Interval: 5 * time.Second}
	sometimes.Do(func() {})

	i := 0
	progress := func() error {
		i++
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			sometimes.Do(func() {
				logger.Printf("decoded %d entries so far", i)
			})
			return nil
		}
	}

	switch in.Kind {
	case codec.KindTar:
		for e, err := range tarscan.Entries(in.Data, func(o *tarscan.Options) {
			o.Observer = opts.observer
		}) {
			if err != nil {
				return nil, err
			}
			if err = fn(&e, nil); err != nil {
				return nil, err
			}
			if err = progress(); err != nil {
				return nil, err
			}
		}

		return nil, nil

	case codec.KindZip:
		d, it, err := zipscan.Entries(in.Data, func(o *zipscan.Options) {
			o.MaxVersion = opts.maxVersion
			o.Observer = opts.observer
		})
		if err != nil {
			return nil, err
		}

		for e, err := range it {
			if err != nil {
				return nil, err
			}
			if err = fn(nil, &e); err != nil {
				return nil, err
			}
			if err = progress(); err != nil {
				return nil, err
			}
		}

		return &d, nil

	default:
		return nil, nil
	}
}

// describeLayers renders the unwrapping chain, e.g. "zstd > gzip > tar".
func describeLayers(in *codec.Input) string {
	parts := make([]string, 0, len(in.Layers)+1)
	for _, l := range in.Layers {
		parts = append(parts, l.Format)
	}

	return strings.Join(append(parts, string(in.Kind)), " > ")
}

// tarMode renders the entry's type and permission bits like `ls -l`.
func tarMode(e *tarscan.Entry) string {
	var m fs.FileMode
	if e.Mode != nil {
		m = fs.FileMode(*e.Mode & 0o777)
	}

	switch e.Typeflag {
	case header.TypeDir:
		m |= fs.ModeDir
	case header.TypeSymlink:
		m |= fs.ModeSymlink
	case header.TypeChar:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case header.TypeBlock:
		m |= fs.ModeDevice
	case header.TypeFifo:
		m |= fs.ModeNamedPipe
	}

	return m.String()
}

// zipMethod names the common ZIP compression methods.
func zipMethod(method uint16) string {
	switch method {
	case 0:
		return "store"
	case 8:
		return "deflate"
	case 9:
		return "deflate64"
	case 12:
		return "bzip2"
	case 14:
		return "lzma"
	case 93:
		return "zstd"
	case 95:
		return "xz"
	default:
		return fmt.Sprintf("method(%d)", method)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return t.UTC().Format(time.DateTime)
}

func formatSize(n uint64) string {
	return humanize.IBytes(n)
}
