package msp

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated indicates a buffer ended before the frame did.
	ErrTruncated = errors.New("truncated frame")
	// ErrTrailingBytes indicates a buffer holds more than one frame.
	ErrTrailingBytes = errors.New("trailing bytes after frame")
)

// ChecksumError reports a frame discarded on checksum mismatch.
type ChecksumError struct {
	Code uint16
	Want byte
	Got  byte
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("bad crc on frame %d: want %#02x, got %#02x", e.Code, e.Want, e.Got)
}
