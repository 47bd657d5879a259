package cmd

import (
	"github.com/jessevdk/go-flags"
)

// Unarc is the root of the command tree.
type Unarc struct {
	Profile string  `short:"p" long:"profile" description:"AWS profile to use for S3 inputs, taking precedence over .unarc settings"`
	List    List    `command:"list" alias:"ls" description:"list the entries of TAR or ZIP archives, optionally compressed"`
	Inspect Inspect `command:"inspect" description:"print every decoded field and decoder event of the given files"`
	Gunzip  Gunzip  `command:"gunzip" alias:"gz" description:"decompress gzip files next to their inputs"`
}

// NewParser returns a parser that populates opts.
func NewParser(opts *Unarc) *flags.Parser {
	p := flags.NewParser(opts, flags.Default)
	p.Name = "unarc"
	return p
}
