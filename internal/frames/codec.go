package frames

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeGnss decodes one GNSS frame from the start of buf.
//
// A checksum mismatch returns the decoded (untrusted) record with
// ChecksumValid=false and an error wrapping ErrChecksumMismatch. An invalid
// embedded date returns the full numeric payload with a NaN timestamp and an
// error wrapping ErrInvalidTimestamp.
func DecodeGnss(buf []byte) (GnssRecord, error) {
	if len(buf) < GNSS_FRAME_SIZE {
		return GnssRecord{Timestamp: math.NaN()}, fmt.Errorf("%w: gnss needs %d bytes, have %d", ErrTruncatedFrame, GNSS_FRAME_SIZE, len(buf))
	}
	frame := buf[:GNSS_FRAME_SIZE]
	if matchHeader(frame) != KindGnss {
		return GnssRecord{Timestamp: math.NaN()}, fmt.Errorf("%w: % x is not a gnss header", ErrBadHeader, frame[:HEADER_SIZE])
	}

	le := binary.LittleEndian
	rec := GnssRecord{
		Time: GnssTime{
			Year:        le.Uint16(frame[GNSS_YEAR_OFFSET:]),
			Month:       frame[GNSS_MONTH_OFFSET],
			Day:         frame[GNSS_DAY_OFFSET],
			Hour:        frame[GNSS_HOUR_OFFSET],
			Minute:      frame[GNSS_MINUTE_OFFSET],
			Microsecond: le.Uint32(frame[GNSS_MICROSECOND_OFFSET:]),
		},
		Longitude:     math.Float64frombits(le.Uint64(frame[GNSS_LONGITUDE_OFFSET:])),
		Latitude:      math.Float64frombits(le.Uint64(frame[GNSS_LATITUDE_OFFSET:])),
		Altitude:      float64(math.Float32frombits(le.Uint32(frame[GNSS_ALTITUDE_OFFSET:]))),
		VelX:          float64(math.Float32frombits(le.Uint32(frame[GNSS_VX_OFFSET:]))),
		VelY:          float64(math.Float32frombits(le.Uint32(frame[GNSS_VY_OFFSET:]))),
		VelZ:          float64(math.Float32frombits(le.Uint32(frame[GNSS_VZ_OFFSET:]))),
		ChecksumValid: true,
	}

	ts, timeErr := rec.Time.Seconds()
	rec.Timestamp = ts

	if want, got := frameChecksum(frame), frame[GNSS_FRAME_SIZE-1]; want != got {
		rec.ChecksumValid = false
		return rec, checksumError{want: want, got: got}
	}
	return rec, timeErr
}

// DecodeImu decodes one IMU frame from the start of buf. The returned record
// has a NaN timestamp.
func DecodeImu(buf []byte) (ImuRecord, error) {
	if len(buf) < IMU_FRAME_SIZE {
		return ImuRecord{Timestamp: math.NaN()}, fmt.Errorf("%w: imu needs %d bytes, have %d", ErrTruncatedFrame, IMU_FRAME_SIZE, len(buf))
	}
	frame := buf[:IMU_FRAME_SIZE]
	if matchHeader(frame) != KindImu {
		return ImuRecord{Timestamp: math.NaN()}, fmt.Errorf("%w: % x is not an imu header", ErrBadHeader, frame[:HEADER_SIZE])
	}

	f64 := func(off int) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(frame[off:]))
	}
	rec := ImuRecord{
		GyroX:         f64(IMU_GYRO_X_OFFSET),
		GyroY:         f64(IMU_GYRO_Y_OFFSET),
		GyroZ:         f64(IMU_GYRO_Z_OFFSET),
		AccelX:        f64(IMU_ACCEL_X_OFFSET),
		AccelY:        f64(IMU_ACCEL_Y_OFFSET),
		AccelZ:        f64(IMU_ACCEL_Z_OFFSET),
		Timestamp:     math.NaN(),
		ChecksumValid: true,
	}

	if want, got := frameChecksum(frame), frame[IMU_FRAME_SIZE-1]; want != got {
		rec.ChecksumValid = false
		return rec, checksumError{want: want, got: got}
	}
	return rec, nil
}

// EncodeGnss serialises a record into a 46-byte frame with a valid checksum.
// Altitude and velocities are narrowed to float32 as on the wire; Timestamp
// and ChecksumValid are ignored.
func EncodeGnss(rec GnssRecord) []byte {
	frame := make([]byte, GNSS_FRAME_SIZE)
	frame[0], frame[1], frame[2] = GNSS_HEADER_0, GNSS_HEADER_1, GNSS_FRAME_SIZE

	le := binary.LittleEndian
	le.PutUint16(frame[GNSS_YEAR_OFFSET:], rec.Time.Year)
	frame[GNSS_MONTH_OFFSET] = rec.Time.Month
	frame[GNSS_DAY_OFFSET] = rec.Time.Day
	frame[GNSS_HOUR_OFFSET] = rec.Time.Hour
	frame[GNSS_MINUTE_OFFSET] = rec.Time.Minute
	le.PutUint32(frame[GNSS_MICROSECOND_OFFSET:], rec.Time.Microsecond)
	le.PutUint64(frame[GNSS_LONGITUDE_OFFSET:], math.Float64bits(rec.Longitude))
	le.PutUint64(frame[GNSS_LATITUDE_OFFSET:], math.Float64bits(rec.Latitude))
	le.PutUint32(frame[GNSS_ALTITUDE_OFFSET:], math.Float32bits(float32(rec.Altitude)))
	le.PutUint32(frame[GNSS_VX_OFFSET:], math.Float32bits(float32(rec.VelX)))
	le.PutUint32(frame[GNSS_VY_OFFSET:], math.Float32bits(float32(rec.VelY)))
	le.PutUint32(frame[GNSS_VZ_OFFSET:], math.Float32bits(float32(rec.VelZ)))

	frame[GNSS_FRAME_SIZE-1] = frameChecksum(frame)
	return frame
}

// EncodeImu serialises a record into a 52-byte frame with a valid checksum.
func EncodeImu(rec ImuRecord) []byte {
	frame := make([]byte, IMU_FRAME_SIZE)
	frame[0], frame[1], frame[2] = IMU_HEADER_0, IMU_HEADER_1, IMU_FRAME_SIZE

	put := func(off int, v float64) {
		binary.LittleEndian.PutUint64(frame[off:], math.Float64bits(v))
	}
	put(IMU_GYRO_X_OFFSET, rec.GyroX)
	put(IMU_GYRO_Y_OFFSET, rec.GyroY)
	put(IMU_GYRO_Z_OFFSET, rec.GyroZ)
	put(IMU_ACCEL_X_OFFSET, rec.AccelX)
	put(IMU_ACCEL_Y_OFFSET, rec.AccelY)
	put(IMU_ACCEL_Z_OFFSET, rec.AccelZ)

	frame[IMU_FRAME_SIZE-1] = frameChecksum(frame)
	return frame
}
