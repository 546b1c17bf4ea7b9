package frames

// Frame layout constants. Offsets are absolute positions inside a frame.
const (
	GNSS_HEADER_0   = 0x99
	GNSS_HEADER_1   = 0x66
	GNSS_FRAME_SIZE = 0x2E // 46 bytes: header, length, 42 payload bytes, checksum

	IMU_HEADER_0   = 0x55
	IMU_HEADER_1   = 0xAA
	IMU_FRAME_SIZE = 0x34 // 52 bytes: header, length, 48 payload bytes, checksum

	HEADER_SIZE    = 3 // two magic bytes plus the length byte
	PAYLOAD_OFFSET = HEADER_SIZE
	CHECKSUM_SIZE  = 1
	MAX_FRAME_SIZE = IMU_FRAME_SIZE

	// GNSS payload offsets
	GNSS_YEAR_OFFSET        = 3  // u16
	GNSS_MONTH_OFFSET       = 5  // u8
	GNSS_DAY_OFFSET         = 6  // u8
	GNSS_HOUR_OFFSET        = 7  // u8
	GNSS_MINUTE_OFFSET      = 8  // u8
	GNSS_MICROSECOND_OFFSET = 9  // u32, microseconds within the minute
	GNSS_LONGITUDE_OFFSET   = 13 // f64, degrees
	GNSS_LATITUDE_OFFSET    = 21 // f64, degrees
	GNSS_ALTITUDE_OFFSET    = 29 // f32, metres
	GNSS_VX_OFFSET          = 33 // f32, m/s
	GNSS_VY_OFFSET          = 37 // f32, m/s
	GNSS_VZ_OFFSET          = 41 // f32, m/s

	// IMU payload offsets, all f64
	IMU_GYRO_X_OFFSET  = 3 // rad/s
	IMU_GYRO_Y_OFFSET  = 11
	IMU_GYRO_Z_OFFSET  = 19
	IMU_ACCEL_X_OFFSET = 27 // m/s²
	IMU_ACCEL_Y_OFFSET = 35
	IMU_ACCEL_Z_OFFSET = 43

	// Calendar bounds accepted for the embedded GNSS date.
	MIN_VALID_YEAR      = 2000
	MAX_VALID_YEAR      = 2100
	MICROS_PER_MINUTE   = 60_000_000
	MICROS_PER_SECOND   = 1e6
	DEFAULT_BUFFER_SIZE = 64 * 1024
)

// Kind identifies which sensor produced a frame.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindGnss
	KindImu
)

func (k Kind) String() string {
	switch k {
	case KindGnss:
		return "gnss"
	case KindImu:
		return "imu"
	default:
		return "unknown"
	}
}

// Size returns the total frame length for the kind, or 0 when unknown.
func (k Kind) Size() int {
	switch k {
	case KindGnss:
		return GNSS_FRAME_SIZE
	case KindImu:
		return IMU_FRAME_SIZE
	default:
		return 0
	}
}

// matchHeader reports which frame type starts with hdr. hdr must hold at
// least HEADER_SIZE bytes; the length byte has to agree with the magic.
func matchHeader(hdr []byte) Kind {
	switch {
	case hdr[0] == GNSS_HEADER_0 && hdr[1] == GNSS_HEADER_1 && hdr[2] == GNSS_FRAME_SIZE:
		return KindGnss
	case hdr[0] == IMU_HEADER_0 && hdr[1] == IMU_HEADER_1 && hdr[2] == IMU_FRAME_SIZE:
		return KindImu
	default:
		return KindUnknown
	}
}

// Checksum returns the low 8 bits of the unsigned sum of payload.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return sum
}

// frameChecksum computes the checksum over the payload region of a full frame.
func frameChecksum(frame []byte) byte {
	return Checksum(frame[PAYLOAD_OFFSET : len(frame)-CHECKSUM_SIZE])
}
