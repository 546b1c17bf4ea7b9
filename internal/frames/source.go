package frames

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Encoding describes how frames are represented in a source.
type Encoding int

const (
	// EncodingAuto sniffs the first KiB: hex digits and whitespace only
	// means hex text, anything else is raw binary.
	EncodingAuto Encoding = iota
	EncodingHex
	EncodingRaw
)

const sniffSize = 1024

func (e Encoding) String() string {
	switch e {
	case EncodingHex:
		return "hex"
	case EncodingRaw:
		return "raw"
	default:
		return "auto"
	}
}

// ParseEncoding accepts "auto", "hex" or "raw" (case-insensitive, empty
// means auto).
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return EncodingAuto, nil
	case "hex", "text":
		return EncodingHex, nil
	case "raw", "bin", "binary":
		return EncodingRaw, nil
	default:
		return EncodingAuto, fmt.Errorf("unknown frame encoding %q: expected auto, hex or raw", s)
	}
}

// Source yields a fresh byte stream on every Open, which is what makes a
// decode restartable.
type Source interface {
	Open() (io.ReadCloser, error)
}

// FileSource opens the named file.
type FileSource string

func (p FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(p))
}

// BytesSource serves an in-memory buffer.
type BytesSource []byte

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// ReaderSource wraps a stream that can only be consumed once, such as a
// serial port. A second Open fails.
type ReaderSource struct {
	r    io.Reader
	used bool
}

// NewReaderSource wraps r for a single decode pass.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

func (s *ReaderSource) Open() (io.ReadCloser, error) {
	if s.used {
		return nil, fmt.Errorf("reader source already consumed")
	}
	s.used = true
	return io.NopCloser(s.r), nil
}

// decodeLayer returns a reader producing raw frame bytes from r.
func decodeLayer(r io.Reader, enc Encoding) (io.Reader, error) {
	br := bufio.NewReaderSize(r, DEFAULT_BUFFER_SIZE)
	if enc == EncodingAuto {
		head, err := br.Peek(sniffSize)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, fmt.Errorf("sniffing frame encoding: %w", err)
		}
		enc = sniff(head)
	}
	if enc == EncodingHex {
		return hex.NewDecoder(hexText{br}), nil
	}
	return br, nil
}

func sniff(head []byte) Encoding {
	if len(head) == 0 {
		return EncodingRaw
	}
	for _, c := range head {
		if !isHexDigit(c) && !isSpace(c) {
			return EncodingRaw
		}
	}
	return EncodingHex
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// hexText drops whitespace so that line-per-frame logs feed a single
// continuous hex digit stream.
type hexText struct {
	r io.Reader
}

func (h hexText) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := h.r.Read(p)
		j := 0
		for _, c := range p[:n] {
			if !isSpace(c) {
				p[j] = c
				j++
			}
		}
		if j > 0 || err != nil {
			return j, err
		}
	}
}

// OpenRaw opens src and returns its content as raw bytes, decoding hex
// text when enc (or the sniffed encoding) says so. Other fixed-record
// formats recorded alongside the frames reuse it.
func OpenRaw(src Source, enc Encoding) (io.ReadCloser, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	r, err := decodeLayer(rc, enc)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{r, rc}, nil
}
