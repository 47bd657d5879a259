package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/unarc/internal"
	"github.com/nguyengg/unarc/internal/codec"
	"github.com/nguyengg/unarc/internal/config"
	tarscan "github.com/nguyengg/unarc/tar/scan"
	zipscan "github.com/nguyengg/unarc/zip/scan"
	"golang.org/x/sync/errgroup"
)

type List struct {
	MaxConcurrency int    `short:"P" long:"max-concurrency" description:"number of inputs decoded in parallel; defaults to [scan] max-concurrency from .unarc, or 4"`
	MaxVersion     uint16 `long:"max-version" description:"highest accepted ZIP \"version needed to extract\"; defaults to [zip] max-version from .unarc, or 45"`
	Quiet          bool   `short:"q" long:"quiet" description:"do not show progress bars"`
	Args           struct {
		Files []string `positional-arg-name:"file" description:"local files or s3://bucket/key URIs of TAR or ZIP archives, optionally compressed with gzip, zstd, or xz" required:"yes"`
	} `positional-args:"yes"`

	stdout io.Writer
	stderr io.Writer
	mu     sync.Mutex
}

// Failure records why an input could not be listed.
type Failure struct {
	File string
	Err  error
}

func (c *List) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, err := c.run(ctx)
	return err
}

// run lists every input and returns those that failed.
func (c *List) run(ctx context.Context) ([]Failure, error) {
	if c.stdout == nil {
		c.stdout = os.Stdout
	}
	if c.stderr == nil {
		c.stderr = os.Stderr
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = config.ForScan().MaxConcurrency
	}
	if c.MaxVersion == 0 {
		c.MaxVersion = config.ForZip().MaxVersion
	}

	var progress io.Writer
	if !c.Quiet && c.MaxConcurrency == 1 {
		// interleaved progress bars are unreadable.
		progress = c.stderr
	}

	var (
		n        = len(c.Args.Files)
		g        errgroup.Group
		failures []Failure
		fmu      sync.Mutex
	)
	g.SetLimit(c.MaxConcurrency)

	for i, file := range c.Args.Files {
		ctx := internal.WithPrefixLoggerTo(ctx, c.stderr, internal.Prefix(i, n, file))

		g.Go(func() error {
			err := c.list(ctx, file, decodeOptions{progress: progress, maxVersion: c.MaxVersion})
			if err == nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return err
			}

			internal.MustLogger(ctx).Printf("list error: %v", err)
			fmu.Lock()
			failures = append(failures, Failure{File: file, Err: err})
			fmu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return failures, err
	}

	log.New(c.stderr, "", 0).Printf("successfully listed %d/%d files", n-len(failures), n)
	return failures, nil
}

// list writes the listing of one input to stdout in one go so that concurrent listings do not interleave.
func (c *List) list(ctx context.Context, name string, opts decodeOptions) error {
	in, err := openInput(ctx, name, opts)
	if err != nil {
		return err
	}

	var (
		buf   bytes.Buffer
		tw    = tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
		root  internal.RootFinder
		count int
		total uint64
	)

	d, err := walk(ctx, in, opts, func(t *tarscan.Entry, z *zipscan.Entry) error {
		count++

		if t != nil {
			root.Add(t.Path())
			total += uint64(t.Size)
			_, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tarMode(t), formatSize(uint64(t.Size)), formatTime(t.ModTime), tarName(t))
			return err
		}

		root.Add(z.Name)
		total += z.UncompressedSize
		_, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", zipMethod(z.Method), formatSize(z.CompressedSize), formatSize(z.UncompressedSize), formatTime(&z.Modified), z.Name)
		return err
	})
	if err != nil {
		return err
	}
	if err = tw.Flush(); err != nil {
		return err
	}

	summary := fmt.Sprintf("%s (%s): %d entries, %s", name, describeLayers(in), count, formatSize(total))
	switch {
	case in.Kind == codec.KindRaw:
		summary = fmt.Sprintf("%s (%s): %s", name, describeLayers(in), formatSize(uint64(len(in.Data))))
	case root.Root() != "":
		summary += ", root " + root.Root()
	}
	if d != nil && d.EOCD.Comment != "" {
		summary += fmt.Sprintf(", comment %q", d.EOCD.Comment)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err = fmt.Fprintln(c.stdout, summary); err != nil {
		return err
	}
	_, err = buf.WriteTo(c.stdout)
	return err
}

func tarName(e *tarscan.Entry) string {
	if e.Linkname != "" {
		return e.Path() + " -> " + e.Linkname
	}

	return e.Path()
}

var _ flags.Commander = (*List)(nil)
