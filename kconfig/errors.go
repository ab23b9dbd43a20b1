package kconfig

import (
	"errors"
	"fmt"
)

// Structural rejections of a config area. Every *CheckError unwraps
// to exactly one of these.
var (
	ErrMalformedLayout       = errors.New("malformed layout")
	ErrUnrecognizedTag       = errors.New("unrecognized tag")
	ErrTagOutOfRange         = errors.New("tag out of range")
	ErrBaseSegmentMismatch   = errors.New("base segment mismatch")
	ErrPointerBeforeSegment  = errors.New("pointer before segment")
	ErrPointerOutOfBounds    = errors.New("pointer out of bounds")
	ErrRelocationOutOfBounds = errors.New("relocation out of bounds")
)

// Decoding rejections, reported when a payload of a relocated
// area cannot be read.
var (
	ErrPayloadOutOfBounds = errors.New("payload out of bounds")
	ErrBadDeviceTree      = errors.New("bad device tree blob")
)

var (
	// ErrRecoveryFailed wraps the recovery error that caused
	// a relocation to be aborted.
	ErrRecoveryFailed = errors.New("recovery failed")

	// ErrAreaConsumed is returned when relocating an Area that
	// was already handed to Relocate.
	ErrAreaConsumed = errors.New("config area was already relocated")

	// ErrWalkerConsumed is returned by a Walker obtained from
	// a View that was already walked.
	ErrWalkerConsumed = errors.New("entries were already walked")
)

// CheckError describes a failed consistency check.
type CheckError struct {
	// Err is the sentinel identifying the check.
	Err error

	// Offset is the byte offset into the buffer the
	// check was evaluating.
	Offset int

	// Value is the (byte order corrected) word that
	// failed the check, if any.
	Value uint32

	// Detail is a human readable explanation.
	Detail string
}

func (o *CheckError) Error() string {
	return fmt.Sprintf("%s at offset 0x%x (value 0x%08x) - %s",
		o.Err, o.Offset, o.Value, o.Detail)
}

func (o *CheckError) Unwrap() error {
	return o.Err
}

func checkErr(sentinel error, offset int, value uint32, format string, a ...interface{}) *CheckError {
	return &CheckError{
		Err:    sentinel,
		Offset: offset,
		Value:  value,
		Detail: fmt.Sprintf(format, a...),
	}
}

// FailedCheck returns the name of the consistency check that err
// reports, or an empty string if err is not a check failure.
func FailedCheck(err error) string {
	var checkErr *CheckError
	if errors.As(err, &checkErr) {
		return checkErr.Err.Error()
	}

	return ""
}
