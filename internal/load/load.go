// Package load reads a local file or an S3 object fully into memory.
//
// The decoders only ever work on a complete buffer so there is no point streaming inputs.
package load

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/nguyengg/unarc/internal"
	"github.com/nguyengg/unarc/internal/config"
)

// ErrIsDirectory is returned when the named input is a local directory.
var ErrIsDirectory = errors.New("input is a directory")

// Options customises Load.
type Options struct {
	// Loader provides S3 clients and bucket settings.
	//
	// By default, config.DefaultLoader is used.
	Loader *config.Loader

	// Progress receives the progress bar; nil disables the progress bar.
	Progress io.Writer

	// Logger receives progress messages of S3 downloads; nil disables them.
	Logger *log.Logger

	// Concurrency is the number of S3 parts downloaded in parallel, 0 meaning the manager default.
	Concurrency int
}

// Load returns the complete content of name, which is either a local path or an `s3://bucket/key` URI.
func Load(ctx context.Context, name string, optFns ...func(*Options)) ([]byte, error) {
	opts := &Options{Loader: config.DefaultLoader}
	for _, fn := range optFns {
		fn(opts)
	}

	if bucket, key, ok := ParseS3URI(name); ok {
		return fromS3(ctx, bucket, key, opts)
	}

	return fromFile(ctx, name, opts)
}

// ParseS3URI splits an `s3://bucket/key` URI, returning false if name is not one.
func ParseS3URI(name string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(name, "s3://")
	if !found {
		return "", "", false
	}

	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}

	return bucket, key, true
}

func fromFile(ctx context.Context, name string, opts *Options) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf(`read "%s" error: %w`, name, ErrIsDirectory)
	}

	buf := bytes.NewBuffer(make([]byte, 0, fi.Size()))

	var w io.Writer = buf
	if opts.Progress != nil {
		bar := internal.NewBytesBar(opts.Progress, fi.Size(), fmt.Sprintf(`reading "%s"`, filepath.Base(name)))
		defer bar.Close()
		w = io.MultiWriter(buf, bar)
	}

	if err = copyWithContext(ctx, w, f); err != nil {
		return nil, fmt.Errorf(`read "%s" error: %w`, name, err)
	}

	return buf.Bytes(), nil
}

// copyWithContext is io.Copy that checks ctx after every write.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (err error) {
	buf := make([]byte, 32*1024)

	var nr, nw int
	for {
		nr, err = src.Read(buf)

		if nr > 0 {
			switch nw, err = dst.Write(buf[0:nr]); {
			case err != nil:
				return err
			case nr != nw:
				return io.ErrShortWrite
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
