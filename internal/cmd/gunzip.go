package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/unarc"
	"github.com/nguyengg/unarc/gz/frame"
	"github.com/nguyengg/unarc/internal"
	"github.com/nguyengg/unarc/internal/load"
)

type Gunzip struct {
	UseName bool   `short:"N" long:"name" description:"name the output after the original file name stored in the gzip header, if any"`
	Verbose bool   `short:"v" long:"verbose" description:"print decoder events to stderr"`
	NoTimes bool   `long:"no-times" description:"do not set the modification time of the output from the gzip header"`
	Output  string `short:"o" long:"output-dir" description:"directory to write to; defaults to the directory of each input, or the working directory for S3 inputs"`
	Args    struct {
		Files []string `positional-arg-name:"file" description:"local .gz files or s3://bucket/key URIs to decompress" required:"yes"`
	} `positional-args:"yes"`

	stderr io.Writer
}

// Success records where an input was decompressed to.
type Success struct {
	File   string
	Output string
}

func (c *Gunzip) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, _, err := c.run(ctx)
	return err
}

func (c *Gunzip) run(ctx context.Context) ([]Success, []Failure, error) {
	if c.stderr == nil {
		c.stderr = os.Stderr
	}

	// save the results so that at the end, we can reprint them.
	n := len(c.Args.Files)
	successes := make([]Success, 0, n)
	failures := make([]Failure, 0)

	for i, file := range c.Args.Files {
		ctx := internal.WithPrefixLoggerTo(ctx, c.stderr, internal.Prefix(i, n, file))
		logger := internal.MustLogger(ctx)

		output, err := c.gunzip(ctx, file)
		if err == nil {
			logger.Printf(`successfully decompressed to "%s"`, output)
			successes = append(successes, Success{File: file, Output: output})
			continue
		}

		if errors.Is(err, context.Canceled) {
			return successes, failures, err
		}

		logger.Printf("decompress error: %v", err)
		failures = append(failures, Failure{File: file, Err: err})
	}

	log.New(c.stderr, "", 0).Printf("successfully decompressed %d/%d files", len(successes), n)
	return successes, failures, nil
}

// gunzip decompresses the named file and returns the newly created output file.
func (c *Gunzip) gunzip(ctx context.Context, name string) (string, error) {
	logger := internal.MustLogger(ctx)

	buf, err := load.Load(ctx, name, func(o *load.Options) {
		o.Logger = logger
	})
	if err != nil {
		return "", err
	}

	res, err := frame.Decompress(buf, func(o *frame.Options) {
		if c.Verbose {
			o.Observer = unarc.LogObserver(logger)
		}
	})
	if err != nil {
		return "", err
	}

	if err = ctx.Err(); err != nil {
		return "", err
	}

	dir := c.Output
	if dir == "" {
		if _, _, ok := load.ParseS3URI(name); !ok {
			dir = filepath.Dir(name)
		}
	}

	base := outputName(name)
	if c.UseName && len(res.Members) > 0 && res.Members[0].Header.Name != "" {
		base = filepath.Base(filepath.FromSlash(res.Members[0].Header.Name))
	}

	stem, ext := internal.StemAndExt(base)
	f, err := internal.OpenExclFile(dir, stem, ext, 0666)
	if err != nil {
		return "", err
	}

	if _, err = f.Write(res.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write output error: %w", err)
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close output error: %w", err)
	}

	if h := res.Members[0].Header; !c.NoTimes && h.ModTime != 0 {
		if err = os.Chtimes(f.Name(), h.Time(), h.Time()); err != nil {
			logger.Printf("set modification time error: %v", err)
		}
	}

	logger.Printf("%d members, %d blocks, %s", len(res.Members), len(res.Blocks), humanize.IBytes(uint64(len(res.Data))))
	return f.Name(), nil
}

// outputName strips the gzip extension from the base name of the input.
func outputName(name string) string {
	if _, key, ok := load.ParseS3URI(name); ok {
		name = key
	}

	base := filepath.Base(filepath.FromSlash(name))
	lower := strings.ToLower(base)
	switch {
	case strings.HasSuffix(lower, ".tgz"):
		return base[:len(base)-4] + ".tar"
	case strings.HasSuffix(lower, ".gz") && len(base) > 3:
		return base[:len(base)-3]
	case strings.HasSuffix(lower, ".z") && len(base) > 2:
		return base[:len(base)-2]
	default:
		return base + ".out"
	}
}
