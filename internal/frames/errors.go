package frames

import (
	"errors"
	"fmt"
)

var (
	// ErrChecksumMismatch marks a frame whose trailing checksum byte does not
	// match its payload. The frame is skipped; the stream continues.
	ErrChecksumMismatch = errors.New("frame checksum mismatch")

	// ErrInvalidTimestamp marks a GNSS frame whose embedded date fails
	// calendar validation. The record is kept with a NaN timestamp.
	ErrInvalidTimestamp = errors.New("invalid frame timestamp")

	// ErrTruncatedFrame is returned by the single-frame decoders when the
	// buffer is shorter than the frame layout. Scanners never surface it:
	// a truncated tail is dropped silently.
	ErrTruncatedFrame = errors.New("truncated frame")

	// ErrBadHeader is returned when a buffer does not start with the magic
	// header and length byte of the requested frame type.
	ErrBadHeader = errors.New("frame header mismatch")
)

// FrameError annotates a per-frame decoding problem with its position in the
// input stream.
type FrameError struct {
	Kind   Kind
	Offset int64 // byte offset of the frame start in the decoded stream
	Detail string
	Err    error
}

func (e *FrameError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s frame at offset %d: %v (%s)", e.Kind, e.Offset, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s frame at offset %d: %v", e.Kind, e.Offset, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

type checksumError struct {
	want, got byte
}

func (c checksumError) Error() string {
	return fmt.Sprintf("%v: computed 0x%02x, frame carries 0x%02x", ErrChecksumMismatch, c.want, c.got)
}

func (c checksumError) Unwrap() error { return ErrChecksumMismatch }

// annotate converts a decoder error into a *FrameError at offset.
func annotate(kind Kind, offset int64, err error) *FrameError {
	if err == nil {
		return nil
	}
	fe := &FrameError{Kind: kind, Offset: offset, Err: err}
	var ce checksumError
	if errors.As(err, &ce) {
		fe.Err = ErrChecksumMismatch
		fe.Detail = fmt.Sprintf("computed 0x%02x, frame carries 0x%02x", ce.want, ce.got)
		return fe
	}
	var te *timeError
	if errors.As(err, &te) {
		fe.Err = ErrInvalidTimestamp
		fe.Detail = te.reason
	}
	return fe
}
