package codec

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"

	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// Xxh128 is a CapIn observer computing a truncated xxhash-128 digest over
// the bytes that pass through it, used for content addressing and block
// identity where cryptographic strength is not required (spec.md §4.5).
// size selects how many of the canonical big-endian 16 digest bytes are
// kept, 1..16.
type Xxh128 struct {
	id    stringid.StringId
	size  int
	state xxh3.Hasher
}

// NewXxh128 builds a truncated xxhash-128 filter. size must be in [1, 16].
func NewXxh128(size int) (*Xxh128, *errkit.Error) {
	if size < 1 || size > 16 {
		return nil, errkit.New(errkit.KindOptionInvalid, "xxh128 truncation size %d out of range [1,16]", size)
	}
	id, idErr := stringid.Encode6("xxh128")
	if idErr != nil {
		return nil, errkit.Wrap(errkit.KindAssert, idErr, "encoding xxh128 filter id")
	}
	return &Xxh128{id: id, size: size}, nil
}

func (f *Xxh128) Id() stringid.StringId           { return f.id }
func (f *Xxh128) Capabilities() filter.Capability { return filter.CapIn | filter.CapResult }

func (f *Xxh128) ProcessIn(in []byte) *errkit.Error {
	f.state.Write(in)
	return nil
}

func (f *Xxh128) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return 0, false, false, nil
}

func (f *Xxh128) Result() *pack.Pack {
	return pack.New().AddBin(1, f.Sum())
}

// Sum returns the truncated digest directly, for callers that need the
// bytes without going through a Pack.
func (f *Xxh128) Sum() []byte {
	digest := f.state.Sum128()
	var full [16]byte
	binary.BigEndian.PutUint64(full[0:8], digest.Hi)
	binary.BigEndian.PutUint64(full[8:16], digest.Lo)
	return append([]byte{}, full[:f.size]...)
}

// Reset clears the running hash so the filter can be reused for the next
// block, the way BlockChecksum/BlockHash reset their per-block context.
func (f *Xxh128) Reset() {
	f.state.Reset()
}

func (f *Xxh128) Close() *errkit.Error { return nil }
