package frames

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Frame is one item of a decoded stream. Exactly one of Gnss or Imu is
// populated according to Kind. Err is nil for a clean frame, otherwise a
// *FrameError wrapping ErrChecksumMismatch (record untrusted) or
// ErrInvalidTimestamp (GNSS record kept with a NaN timestamp).
type Frame struct {
	Offset int64
	Kind   Kind
	Gnss   GnssRecord
	Imu    ImuRecord
	Err    error
}

// Usable reports whether the frame's record should be kept: checksum
// failures are dropped, invalid timestamps are kept.
func (f Frame) Usable() bool {
	return f.Err == nil || !errors.Is(f.Err, ErrChecksumMismatch)
}

// Stats counts what a decode pass saw.
type Stats struct {
	GnssFrames        int
	ImuFrames         int
	ChecksumErrors    int
	InvalidTimestamps int
	SkippedBytes      int64 // bytes discarded while hunting for a header
	TruncatedBytes    int64 // incomplete frame dropped at end of input
}

// Frames returns the number of complete frames decoded, including corrupt ones.
func (s Stats) Frames() int {
	return s.GnssFrames + s.ImuFrames
}

func (s *Stats) observe(f Frame) {
	switch f.Kind {
	case KindGnss:
		s.GnssFrames++
	case KindImu:
		s.ImuFrames++
	}
	switch {
	case f.Err == nil:
	case errors.Is(f.Err, ErrChecksumMismatch):
		s.ChecksumErrors++
	case errors.Is(f.Err, ErrInvalidTimestamp):
		s.InvalidTimestamps++
	}
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.GnssFrames += other.GnssFrames
	s.ImuFrames += other.ImuFrames
	s.ChecksumErrors += other.ChecksumErrors
	s.InvalidTimestamps += other.InvalidTimestamps
	s.SkippedBytes += other.SkippedBytes
	s.TruncatedBytes += other.TruncatedBytes
}

// Scanner lazily decodes frames from a raw byte stream. Memory use is
// bounded by its read buffer regardless of input size.
//
// At the cursor a matching magic header and length byte start a frame, and
// the cursor then advances a full frame length whatever the checksum says.
// Any other byte is skipped.
type Scanner struct {
	r      *bufio.Reader
	closer io.Closer
	offset int64
	frame  Frame
	stats  Stats
	err    error
	done   bool
}

// NewScanner decodes raw (binary) frame bytes from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, DEFAULT_BUFFER_SIZE)}
}

// Open starts a new decode pass over src. The caller must Close the scanner.
func Open(src Source, enc Encoding) (*Scanner, error) {
	rc, err := OpenRaw(src, enc)
	if err != nil {
		return nil, err
	}
	s := NewScanner(rc)
	s.closer = rc
	return s, nil
}

// Next advances to the next complete frame. It returns false at end of
// input or on a stream error; check Err afterwards.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	for {
		hdr, err := s.r.Peek(HEADER_SIZE)
		if err != nil {
			return s.finish(len(hdr), err)
		}
		kind := matchHeader(hdr)
		if kind == KindUnknown {
			_, _ = s.r.Discard(1)
			s.offset++
			s.stats.SkippedBytes++
			continue
		}

		buf, err := s.r.Peek(kind.Size())
		if err != nil {
			return s.finish(len(buf), err)
		}
		s.frame = decodeFrame(kind, buf, s.offset)
		s.stats.observe(s.frame)
		if s.frame.Err != nil {
			debugf("frames: %v", s.frame.Err)
		}
		_, _ = s.r.Discard(len(buf))
		s.offset += int64(len(buf))
		return true
	}
}

// finish handles a short Peek: end of input drops the remainder as a
// truncated frame, anything else is a stream error.
func (s *Scanner) finish(remaining int, err error) bool {
	s.done = true
	s.frame = Frame{}
	if isEOF(err) {
		if remaining > 0 {
			s.stats.TruncatedBytes += int64(remaining)
			debugf("frames: dropped %d trailing bytes at offset %d", remaining, s.offset)
		}
		return false
	}
	s.err = fmt.Errorf("reading frames at offset %d: %w", s.offset, err)
	return false
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Frame returns the frame produced by the last successful Next.
func (s *Scanner) Frame() Frame { return s.frame }

// Err returns the stream error that stopped the scan, if any. Per-frame
// problems are reported on each Frame instead.
func (s *Scanner) Err() error { return s.err }

// Stats returns counters for the frames seen so far.
func (s *Scanner) Stats() Stats { return s.stats }

// Offset returns the number of decoded bytes consumed so far.
func (s *Scanner) Offset() int64 { return s.offset }

// Close releases the underlying source, if the scanner owns one.
func (s *Scanner) Close() error {
	s.done = true
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

func decodeFrame(kind Kind, buf []byte, offset int64) Frame {
	f := Frame{Offset: offset, Kind: kind}
	var err error
	switch kind {
	case KindGnss:
		f.Gnss, err = DecodeGnss(buf)
	case KindImu:
		f.Imu, err = DecodeImu(buf)
	}
	if fe := annotate(kind, offset, err); fe != nil {
		f.Err = fe
	}
	return f
}
