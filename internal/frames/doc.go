// Package frames decodes the fixed-layout binary sensor frames recorded by
// the GNSS receiver and the inertial unit.
//
// Both frame types share the same envelope:
//
//	byte 0-1   magic header (GNSS 0x99 0x66, IMU 0x55 0xAA)
//	byte 2     total frame length (GNSS 0x2E = 46, IMU 0x34 = 52)
//	byte 3..   little-endian payload
//	last byte  checksum: low 8 bits of the unsigned payload byte sum
//
// Logs are usually stored as ASCII hex text, one frame per line, but raw
// binary captures are accepted too. Decoding is streaming: a Scanner walks
// the byte stream, resynchronising on magic headers, and yields one Frame
// at a time. A corrupt frame is reported on that Frame and never stops the
// stream; a truncated frame at the end of input is dropped silently.
//
// The 8-bit sum detects every single-byte payload corruption (a one-byte
// change always shifts the sum modulo 256), but corruption spread over
// several bytes collides with probability about 1/256.
package frames
