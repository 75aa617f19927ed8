// Package stringid implements the shared integer and identifier encodings
// used across the chunked framing, block-checksum, and block-map formats:
// varint128, zigzag64, and the packed StringId.
package stringid

// EncodeVarint128 appends the base-128 varint encoding of v to dst and
// returns the extended slice. Each byte carries seven data bits, low-order
// group first; the high bit is a continuation flag. At most 10 bytes are
// ever emitted, covering the full uint64 range.
func EncodeVarint128(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// DecodeVarint128 reads a varint128 from the front of src, returning the
// decoded value and the number of bytes consumed. It returns (0, 0) if src
// is too short to contain a complete varint (no continuation-terminated
// byte found within 10 bytes) — callers interpret n == 0 as "need more
// input", matching the chunked decoder's resumability requirement.
func DecodeVarint128(src []byte) (value uint64, n int) {
	var shift uint
	for i := 0; i < len(src) && i < 10; i++ {
		b := src[i]
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// SizeVarint128 returns the number of bytes EncodeVarint128 would emit for v,
// without allocating.
func SizeVarint128(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
