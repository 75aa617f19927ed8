package stringid

import "fmt"

// StringId packs a short identifier (filter name, command, option) into a
// uint64 so it can be compared and hashed without allocation. Two widths are
// supported: a 5-bit alphabet for short, lowercase-and-digit identifiers
// packed into 32 bits, and a 6-bit alphabet (adding uppercase and dash) for
// longer identifiers packed into 64 bits. Code 0 is reserved as a
// terminator in both alphabets, so decoding tolerates a string that was
// stored in a wider, zero-padded field: decoding stops at the first zero
// code rather than requiring an exact-width field.
type StringId uint64

// alphabet5 covers lowercase letters and the digits 0-4 — enough for the
// short option/command words used as filter parameters ("in", "out",
// "raw0"..."raw4"). 31 usable symbols, codes 1..31; 0 is the terminator.
const alphabet5 = "abcdefghijklmnopqrstuvwxyz01234"

// alphabet6 covers lowercase, uppercase, digits and dash — enough for
// codec/filter identifiers that mix digits and case ("sha256", "xxh128",
// "Bz2", "lz4", "gzip-9"). 63 usable symbols, codes 1..63; 0 is the
// terminator.
const alphabet6 = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-"

const (
	maxChars5 = 6  // 6 * 5 = 30 bits, fits in 32
	maxChars6 = 10 // 10 * 6 = 60 bits, fits in 64
)

var code5 = buildCodeTable(alphabet5)
var code6 = buildCodeTable(alphabet6)

func buildCodeTable(alphabet string) map[byte]uint64 {
	m := make(map[byte]uint64, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = uint64(i + 1) // codes start at 1; 0 is terminator
	}
	return m
}

// Encode5 packs s (length 1..6, characters drawn from alphabet5) into a
// 5-bit-per-character StringId.
func Encode5(s string) (StringId, error) {
	return encode(s, code5, maxChars5, 5, "5-bit")
}

// Decode5 unpacks a StringId produced by Encode5.
func Decode5(id StringId) string {
	return decode(uint64(id), alphabet5, maxChars5, 5)
}

// Encode6 packs s (length 1..10, characters drawn from alphabet6) into a
// 6-bit-per-character StringId.
func Encode6(s string) (StringId, error) {
	return encode(s, code6, maxChars6, 6, "6-bit")
}

// Decode6 unpacks a StringId produced by Encode6.
func Decode6(id StringId) string {
	return decode(uint64(id), alphabet6, maxChars6, 6)
}

func encode(s string, table map[byte]uint64, maxChars int, bits uint, label string) (StringId, error) {
	if len(s) == 0 || len(s) > maxChars {
		return 0, fmt.Errorf("stringid: %s identifier length %d out of range [1,%d]", label, len(s), maxChars)
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		code, ok := table[s[i]]
		if !ok {
			return 0, fmt.Errorf("stringid: %q not in %s alphabet", s[i], label)
		}
		v |= code << (uint(i) * bits)
	}
	return StringId(v), nil
}

func decode(v uint64, alphabet string, maxChars int, bits uint) string {
	mask := uint64(1)<<bits - 1
	buf := make([]byte, 0, maxChars)
	for i := 0; i < maxChars; i++ {
		code := (v >> (uint(i) * bits)) & mask
		if code == 0 {
			break
		}
		buf = append(buf, alphabet[code-1])
	}
	return string(buf)
}

// String decodes id assuming the 6-bit alphabet, the width used by filter
// type identifiers (IoFilter's primary consumer). Callers holding a 5-bit id
// should call Decode5 directly.
func (id StringId) String() string {
	return Decode6(id)
}
