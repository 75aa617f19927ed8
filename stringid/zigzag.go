package stringid

// ToZigZag64 maps a signed 64-bit integer onto the unsigned range so that
// small-magnitude values (positive or negative) stay small after encoding,
// which keeps chunk-size deltas compact under varint128.
func ToZigZag64(x int64) uint64 {
	return uint64(x<<1) ^ uint64(x>>63)
}

// FromZigZag64 inverts ToZigZag64.
func FromZigZag64(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
