package iobuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBufferInvariant(t *testing.T) {
	b := New(16)
	assert.Equal(t, 16, b.Size())
	assert.Equal(t, 0, b.Used())
	assert.Equal(t, 16, b.Remaining())
}

func TestUsedIncAndPtr(t *testing.T) {
	b := New(8)
	copy(b.PtrFree(), []byte("abcd"))
	b.UsedInc(4)
	assert.Equal(t, 4, b.Used())
	assert.Equal(t, 4, b.Remaining())
	assert.Equal(t, []byte("abcd"), b.Ptr())
}

func TestUsedIncOverflowPanics(t *testing.T) {
	b := New(4)
	assert.Panics(t, func() { b.UsedInc(5) })
}

func TestUsedSetRange(t *testing.T) {
	b := New(4)
	b.UsedSet(4)
	assert.Equal(t, 4, b.Used())
	assert.Panics(t, func() { b.UsedSet(5) })
	assert.Panics(t, func() { b.UsedSet(-1) })
}

func TestResizePreservesContentAndTruncates(t *testing.T) {
	b := New(4)
	b.Cat([]byte("wxyz"), 0, 4)
	b.Resize(2)
	assert.Equal(t, 2, b.Size())
	assert.Equal(t, 2, b.Used())
	assert.Equal(t, []byte("wx"), b.Ptr())

	b.Resize(6)
	assert.Equal(t, 6, b.Size())
	assert.Equal(t, 2, b.Used())
}

func TestCatAppendsAndTracksUsed(t *testing.T) {
	b := New(10)
	b.Cat([]byte("hello"), 0, 5)
	b.Cat([]byte("world!!"), 0, 5)
	assert.Equal(t, "helloworld", string(b.Ptr()))
	assert.Equal(t, 0, b.Remaining())
}

func TestCatOverflowPanics(t *testing.T) {
	b := New(2)
	assert.Panics(t, func() { b.Cat([]byte("abc"), 0, 3) })
}

func TestNewFromBytesFullyUsed(t *testing.T) {
	b := NewFromBytes([]byte("seed"))
	assert.Equal(t, 4, b.Size())
	assert.Equal(t, 4, b.Used())
	assert.Equal(t, 0, b.Remaining())
}

func TestResetKeepsCapacity(t *testing.T) {
	b := New(4)
	b.Cat([]byte("ab"), 0, 2)
	b.Reset()
	assert.Equal(t, 0, b.Used())
	assert.Equal(t, 4, b.Size())
}
