package unarc

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when a read or seek would go past the end of the buffer.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrBadMagic is returned when a format's fixed magic bytes are absent.
	ErrBadMagic = errors.New("bad magic")

	// ErrBadEntrySignature is returned when a ZIP record does not start with its expected signature.
	ErrBadEntrySignature = errors.New("bad entry signature")

	// ErrUnsupportedMethod is returned for a recognised format using a compression method that is not supported.
	ErrUnsupportedMethod = errors.New("unsupported method")

	// ErrUnsupportedVersion is returned when a ZIP record needs a newer feature level than supported.
	ErrUnsupportedVersion = errors.New("unsupported version")

	// ErrChecksumMismatch is returned when a stored checksum does not match the recomputed one.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrDiskMismatch is returned when a ZIP archive spans more than one disk or its disk fields disagree.
	ErrDiskMismatch = errors.New("disk mismatch; multi-volume archives are not supported")

	// ErrMissingSizeField is returned when a TAR header has no parsable size field.
	ErrMissingSizeField = errors.New("missing size field")

	// ErrMissingZip64Field is returned when a ZIP entry has a sentinel value but no ZIP64 extra field to resolve it.
	ErrMissingZip64Field = errors.New("missing ZIP64 extra field")

	// ErrCentralDirectoryNotFound is returned when no end of central directory record exists; most likely not a ZIP
	// file.
	ErrCentralDirectoryNotFound = errors.New("end of central directory not found; most likely not a ZIP file")

	// ErrInvalidBlockType is returned for the reserved Deflate block type 11.
	ErrInvalidBlockType = errors.New("invalid block type")

	// ErrCorruptStream is returned when a Deflate stream contains an invalid code, length, or distance, or when a TAR
	// archive has a malformed extended header record or a stray end-of-archive block.
	ErrCorruptStream = errors.New("corrupt stream")
)

// DecodeError records which decode operation failed and where in the buffer it happened.
//
// Err is always one of the sentinel errors in this package, or wraps one, so errors.Is can be used to find out the
// kind of failure.
type DecodeError struct {
	// Op is a short description of the operation such as "read tar header".
	Op string
	// Offset is the byte offset into the buffer at which the failing record starts.
	Offset int64
	// Err is the underlying cause.
	Err error
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s at offset %d (0x%x): %v", e.Op, e.Offset, e.Offset, e.Err)
}

// Errorf creates a DecodeError whose Err wraps kind with the formatted detail.
//
// If format is empty, kind is used as-is.
func Errorf(op string, offset int64, kind error, format string, args ...any) error {
	err := kind
	if format != "" {
		err = fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
	}

	return &DecodeError{Op: op, Offset: offset, Err: err}
}
