package pack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgbr/errkit"
)

func TestEncodeDecodeRoundTripScalars(t *testing.T) {
	now := time.Unix(1700000000, 123000000).UTC()
	p := New().
		AddBool(1, true).
		AddI32(2, -5).
		AddI64(3, -9000000000).
		AddU32(4, 42).
		AddU64(5, 1<<40).
		AddTime(6, now).
		AddBin(7, []byte{0x01, 0x02, 0x03}).
		AddStr(8, "hello")

	decoded, err := Decode(p.Encode())
	require.Nil(t, err)

	f, ok := decoded.Get(1)
	require.True(t, ok)
	assert.True(t, f.Bool())

	f, _ = decoded.Get(2)
	assert.Equal(t, int32(-5), f.I32())

	f, _ = decoded.Get(3)
	assert.Equal(t, int64(-9000000000), f.I64())

	f, _ = decoded.Get(4)
	assert.Equal(t, uint32(42), f.U32())

	f, _ = decoded.Get(5)
	assert.Equal(t, uint64(1<<40), f.U64())

	f, _ = decoded.Get(6)
	assert.True(t, now.Equal(f.Time()))

	f, _ = decoded.Get(7)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, f.Bin())

	f, _ = decoded.Get(8)
	assert.Equal(t, "hello", f.Str())
}

func TestUnknownTrailingFieldsIgnoredOnRead(t *testing.T) {
	p := New().AddI32(1, 1).AddI32(2, 2).AddI32(99, 99)
	decoded, err := Decode(p.Encode())
	require.Nil(t, err)

	f, ok := decoded.Get(1)
	require.True(t, ok)
	assert.Equal(t, int32(1), f.I32())

	_, ok = decoded.Get(50)
	assert.False(t, ok)
}

func TestNestedObjAndArray(t *testing.T) {
	inner := New().AddStr(1, "leaf")
	arr := []*Pack{New().AddI32(1, 1), New().AddI32(1, 2)}
	p := New().AddObj(1, inner).AddArray(2, arr)

	decoded, err := Decode(p.Encode())
	require.Nil(t, err)

	f, ok := decoded.Get(1)
	require.True(t, ok)
	inF, ok := f.Obj().Get(1)
	require.True(t, ok)
	assert.Equal(t, "leaf", inF.Str())

	f, ok = decoded.Get(2)
	require.True(t, ok)
	require.Len(t, f.Array(), 2)
	e0, _ := f.Array()[0].Get(1)
	e1, _ := f.Array()[1].Get(1)
	assert.Equal(t, int32(1), e0.I32())
	assert.Equal(t, int32(2), e1.I32())
}

func TestNullField(t *testing.T) {
	p := New().AddStr(1, "present").AddNull(2)
	decoded, err := Decode(p.Encode())
	require.Nil(t, err)

	f, ok := decoded.Get(2)
	require.True(t, ok)
	assert.True(t, f.IsNull())
}

func TestNonIncreasingFieldIdPanics(t *testing.T) {
	assert.Panics(t, func() {
		New().AddI32(2, 1).AddI32(1, 2)
	})
	assert.Panics(t, func() {
		New().AddI32(1, 1).AddI32(1, 2)
	})
}

func TestDecodeTruncatedBufferIsFormatError(t *testing.T) {
	p := New().AddBin(1, []byte("abcdef"))
	enc := p.Encode()
	_, err := Decode(enc[:len(enc)-2])
	require.NotNil(t, err)
	assert.True(t, err.Kind().Is(errkit.KindFormat))
}
