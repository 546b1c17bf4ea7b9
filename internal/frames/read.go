package frames

import (
	"iter"
)

// All returns a lazy sequence over every frame in src. The sequence can be
// ranged over repeatedly; each pass reopens the source. Per-frame problems
// arrive on Frame.Err; a non-nil second value is a stream error and ends
// the sequence.
func All(src Source, enc Encoding) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		s, err := Open(src, enc)
		if err != nil {
			yield(Frame{}, err)
			return
		}
		defer s.Close()

		for s.Next() {
			if !yield(s.Frame(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(Frame{}, err)
		}
	}
}

// Decoded holds the usable records of a full decode pass.
type Decoded struct {
	Gnss  []GnssRecord
	Imu   []ImuRecord
	Stats Stats
}

// ReadAll decodes src to completion. Frames failing their checksum are
// dropped; GNSS records with invalid dates are kept with NaN timestamps.
func ReadAll(src Source, enc Encoding) (Decoded, error) {
	s, err := Open(src, enc)
	if err != nil {
		return Decoded{}, err
	}
	defer s.Close()

	var out Decoded
	for s.Next() {
		out.append(s.Frame())
	}
	out.Stats = s.Stats()
	return out, s.Err()
}

func (d *Decoded) append(f Frame) {
	if !f.Usable() {
		return
	}
	switch f.Kind {
	case KindGnss:
		d.Gnss = append(d.Gnss, f.Gnss)
	case KindImu:
		d.Imu = append(d.Imu, f.Imu)
	}
}
