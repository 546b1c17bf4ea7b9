package navresult

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/sensorsync/internal/frames"
)

// Format identifies how a navigation result file is stored.
type Format int

const (
	FormatText      Format = iota // 26 whitespace separated fields per line
	FormatSentence                // $BDFPD sentences
	FormatBinary                  // raw 160-byte records
	FormatBinaryHex               // 160-byte records as hex text
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatSentence:
		return "sentence"
	case FormatBinary:
		return "binary"
	case FormatBinaryHex:
		return "binary-hex"
	default:
		return "unknown"
	}
}

// DetectFormat guesses the format from the first bytes of a file.
func DetectFormat(head []byte) Format {
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '$' {
		return FormatSentence
	}
	hexOnly := true
	for _, c := range head {
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
		case ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F'):
		case c == '.' || c == '-' || c == '+':
			hexOnly = false
		default:
			if c < 0x20 || c > 0x7e {
				return FormatBinary
			}
			hexOnly = false
		}
	}
	// A text record has many short numeric fields; hex records are one
	// long token per line.
	firstLine, _, _ := bytes.Cut(trimmed, []byte("\n"))
	if hexOnly && len(bytes.Fields(firstLine)) == 1 {
		return FormatBinaryHex
	}
	return FormatText
}

// Set is the content of a navigation result file.
type Set struct {
	Format    Format
	Results   []Result
	Positions []Position
	Stats     Stats
}

// Timestamps returns the record times in file order, whichever format the
// file used.
func (s Set) Timestamps() []float64 {
	if s.Format == FormatSentence {
		out := make([]float64, len(s.Positions))
		for i, p := range s.Positions {
			out[i] = p.UnixSeconds()
		}
		return out
	}
	return Timestamps(s.Results)
}

// Len returns the number of records in the set.
func (s Set) Len() int { return len(s.Results) + len(s.Positions) }

// ReadFile detects the format of path and reads it.
func ReadFile(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return Set{}, fmt.Errorf("opening navigation results: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read detects the format of r and reads it to the end.
func Read(r io.Reader) (Set, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return Set{}, fmt.Errorf("sniffing navigation results: %w", err)
	}
	set := Set{Format: DetectFormat(head)}
	switch set.Format {
	case FormatSentence:
		set.Positions, set.Stats, err = ReadSentences(br)
	case FormatBinary:
		set.Results, set.Stats, err = ReadBinary(frames.NewReaderSource(br), frames.EncodingRaw)
	case FormatBinaryHex:
		set.Results, set.Stats, err = ReadBinary(frames.NewReaderSource(br), frames.EncodingHex)
	default:
		set.Results, set.Stats, err = ReadText(br)
	}
	return set, err
}
