package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/gz/frame"
	"github.com/nguyengg/unarc/internal"
	"github.com/nguyengg/unarc/internal/codec"
	"github.com/nguyengg/unarc/internal/config"
	"github.com/nguyengg/unarc/tar/header"
	tarscan "github.com/nguyengg/unarc/tar/scan"
	zipscan "github.com/nguyengg/unarc/zip/scan"
)

type Inspect struct {
	MaxVersion uint16 `long:"max-version" description:"highest accepted ZIP \"version needed to extract\"; defaults to [zip] max-version from .unarc, or 45"`
	NoEvents   bool   `long:"no-events" description:"do not print decoder events to stderr"`
	Args       struct {
		Files []string `positional-arg-name:"file" description:"local files or s3://bucket/key URIs to inspect" required:"yes"`
	} `positional-args:"yes"`

	stdout io.Writer
	stderr io.Writer
}

func (c *Inspect) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, err := c.run(ctx)
	return err
}

// run inspects every input one after another and returns the number of successes.
func (c *Inspect) run(ctx context.Context) (int, error) {
	if c.stdout == nil {
		c.stdout = os.Stdout
	}
	if c.stderr == nil {
		c.stderr = os.Stderr
	}
	if c.MaxVersion == 0 {
		c.MaxVersion = config.ForZip().MaxVersion
	}

	success := 0
	n := len(c.Args.Files)
	for i, file := range c.Args.Files {
		ctx := internal.WithPrefixLoggerTo(ctx, c.stderr, internal.Prefix(i, n, file))
		logger := internal.MustLogger(ctx)

		opts := decodeOptions{maxVersion: c.MaxVersion, progress: c.stderr}
		if !c.NoEvents {
			opts.observer = unarc.LogObserver(logger)
		}

		err := c.inspect(ctx, file, opts)
		if err == nil {
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			return success, err
		}

		logger.Printf("inspect error: %v", err)
	}

	log.New(c.stderr, "", 0).Printf("successfully inspected %d/%d files", success, n)
	return success, nil
}

func (c *Inspect) inspect(ctx context.Context, name string, opts decodeOptions) error {
	in, err := openInput(ctx, name, opts)
	if err != nil {
		return err
	}

	w := &fieldWriter{w: c.stdout}
	w.printf("%s\n", name)
	w.field(1, "format", describeLayers(in))

	for i, l := range in.Layers {
		w.printf("  layer %d: %s (%d bytes)\n", i, l.Format, l.Size)
		if l.Gzip != nil {
			inspectGzip(w, l.Gzip)
		}
	}

	d, err := walk(ctx, in, opts, func(t *tarscan.Entry, z *zipscan.Entry) error {
		if t != nil {
			inspectTarEntry(w, t)
		} else {
			inspectZipEntry(w, z)
		}

		return w.err
	})
	if err != nil {
		return err
	}
	if d != nil {
		inspectZipDirectory(w, d)
	}
	if in.Kind == codec.KindRaw {
		w.field(1, "size", len(in.Data))
	}

	return w.err
}

func inspectGzip(w *fieldWriter, res *frame.Result) {
	for i, m := range res.Members {
		h := m.Header
		w.printf("    member %d @%d\n", i, h.Offset)
		w.field(3, "flags", h.Flags)
		w.field(3, "mtime", h.Time().UTC())
		w.field(3, "xfl", h.ExtraFlags)
		w.field(3, "os", h.OS)
		if h.Extra != nil {
			w.field(3, "extra", fmt.Sprintf("%x", h.Extra))
		}
		if h.Name != "" {
			w.field(3, "name", h.Name)
		}
		if h.Comment != "" {
			w.field(3, "comment", h.Comment)
		}
		if h.HeaderCRC != nil {
			w.field(3, "hcrc", fmt.Sprintf("0x%04x", *h.HeaderCRC))
		}
		w.field(3, "crc32", fmt.Sprintf("0x%08x", m.CRC32))
		w.field(3, "isize", m.ISize)
		w.field(3, "blocks", m.Blocks)
	}

	counts := make(map[frame.BlockType]int)
	for _, b := range res.Blocks {
		counts[b.Type]++
	}
	types := make([]frame.BlockType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		w.field(2, t.String()+" blocks", counts[t])
	}
}

func inspectTarEntry(w *fieldWriter, e *tarscan.Entry) {
	w.printf("  %s @%d\n", e.Path(), e.Offset)
	w.field(2, "dialect", e.Dialect)
	w.field(2, "typeflag", fmt.Sprintf("%q", e.Typeflag))
	w.field(2, "mode", tarMode(e))
	w.field(2, "size", e.Size)
	w.field(2, "data offset", e.DataOffset)
	w.optional(2, "uid", e.UID)
	w.optional(2, "gid", e.GID)
	if e.Uname != "" || e.Gname != "" {
		w.field(2, "owner", e.Uname+":"+e.Gname)
	}
	w.field(2, "mtime", formatTime(e.ModTime))
	if e.AccessTime != nil || e.ChangeTime != nil {
		w.field(2, "atime", formatTime(e.AccessTime))
		w.field(2, "ctime", formatTime(e.ChangeTime))
	}
	if e.Linkname != "" {
		w.field(2, "linkname", e.Linkname)
	}
	if e.Typeflag == header.TypeChar || e.Typeflag == header.TypeBlock {
		w.optional(2, "devmajor", e.DevMajor)
		w.optional(2, "devminor", e.DevMinor)
	}
	w.field(2, "checksum", fmt.Sprintf("0%o", e.Checksum))
	for _, k := range slices.Sorted(maps.Keys(e.PAX)) {
		w.field(2, "pax "+k, e.PAX[k])
	}
	for _, k := range slices.Sorted(maps.Keys(e.Global)) {
		w.field(2, "global "+k, e.Global[k])
	}
}

func inspectZipEntry(w *fieldWriter, e *zipscan.Entry) {
	w.printf("  %s @%d\n", e.Name, e.HeaderOffset)
	w.field(2, "version made by", e.VersionMadeBy)
	w.field(2, "version needed", e.VersionNeeded)
	w.field(2, "flags", fmt.Sprintf("0x%04x", e.Flags))
	w.field(2, "method", zipMethod(e.Method))
	w.field(2, "modified", formatTime(&e.Modified))
	w.field(2, "crc32", fmt.Sprintf("0x%08x", e.CRC32))
	w.field(2, "compressed", e.CompressedSize)
	w.field(2, "uncompressed", e.UncompressedSize)
	w.field(2, "local header offset", e.Offset)
	if e.NonUTF8 {
		w.field(2, "encoding", "cp437")
	}
	if e.Comment != "" {
		w.field(2, "comment", e.Comment)
	}
	w.field(2, "external attrs", fmt.Sprintf("0x%08x", e.ExternalAttrs))
	for _, f := range e.Extra {
		w.field(2, fmt.Sprintf("extra 0x%04x", f.ID), fmt.Sprintf("%d bytes", len(f.Data)))
	}
}

func inspectZipDirectory(w *fieldWriter, d *zipscan.Directory) {
	w.printf("  end of central directory @%d\n", d.EOCD.Offset)
	w.field(2, "zip64", d.IsZip64())
	w.field(2, "entries", d.CDCount)
	w.field(2, "cd size", d.CDSize)
	w.field(2, "cd offset", d.CDOffset)
	if d.EOCD.Comment != "" {
		w.field(2, "comment", d.EOCD.Comment)
	}
	if d.Zip64 != nil {
		w.field(2, "zip64 record offset", d.Zip64.Offset)
		w.field(2, "zip64 version needed", d.Zip64.VersionNeeded)
	}
}

// fieldWriter remembers the first write error so that callers only check once.
type fieldWriter struct {
	w   io.Writer
	err error
}

func (w *fieldWriter) printf(format string, args ...any) {
	if w.err == nil {
		_, w.err = fmt.Fprintf(w.w, format, args...)
	}
}

func (w *fieldWriter) field(depth int, key string, value any) {
	w.printf("%s%s: %v\n", strings.Repeat("  ", depth), key, value)
}

func (w *fieldWriter) optional(depth int, key string, value *int64) {
	if value == nil {
		w.field(depth, key, "-")
		return
	}

	w.field(depth, key, *value)
}
