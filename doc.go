// Package unarc holds what is shared by the archive and compressed stream decoders in its sub-packages: the error
// kinds every decoder reports, and the Observer through which they emit diagnostic events.
//
// The decoders themselves live in:
//   - [github.com/nguyengg/unarc/bitio] for the byte/bit cursor all decoders read through.
//   - [github.com/nguyengg/unarc/textenc] for the UTF-8 versus CP437 decision on file names.
//   - [github.com/nguyengg/unarc/tar/header] and [github.com/nguyengg/unarc/tar/scan] for TAR.
//   - [github.com/nguyengg/unarc/gz/frame] for gzip members and Deflate blocks.
//   - [github.com/nguyengg/unarc/zip/scan] for the ZIP central directory, including ZIP64.
//
// Every decoder works on a fully loaded []byte and never mutates it. Decoded records are copies; they do not alias
// the input buffer.
package unarc
