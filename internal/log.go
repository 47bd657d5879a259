package internal

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
)

// Prefix creates a consistent prefix for all file-based commands to use.
//
// i and n are the zero-based ordinal and expected count. name may be a local path or an S3 URI.
func Prefix(i, n int, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return fmt.Sprintf(`[%d/%d] "%s" - `, i+1, n, TruncateRightWithSuffix(base, 30, "..."))
}

type loggerKey struct{}

// WithPrefixLoggerTo creates a new logger writing to w using the given prefix, then attaches the logger to context.
func WithPrefixLoggerTo(ctx context.Context, w io.Writer, prefix string) context.Context {
	return context.WithValue(ctx, loggerKey{}, log.New(w, prefix, 0))
}

// MustLogger returns the logger attached to the given context.
func MustLogger(ctx context.Context) *log.Logger {
	return ctx.Value(loggerKey{}).(*log.Logger)
}
