package filter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgbr/errkit"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// countFilter is a CapIn observer: it never transforms bytes, only tallies
// how many passed through.
type countFilter struct {
	id    stringid.StringId
	total int
}

func newCountFilter() *countFilter {
	id, _ := stringid.Encode6("count")
	return &countFilter{id: id}
}

func (c *countFilter) Id() stringid.StringId   { return c.id }
func (c *countFilter) Capabilities() Capability { return CapIn | CapResult }
func (c *countFilter) ProcessIn(in []byte) *errkit.Error {
	c.total += len(in)
	return nil
}
func (c *countFilter) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return 0, false, false, nil
}
func (c *countFilter) Result() *pack.Pack {
	return pack.New().AddI64(1, int64(c.total))
}
func (c *countFilter) Close() *errkit.Error { return nil }

// upperFilter is a CapInOut transform: uppercases ASCII letters.
type upperFilter struct {
	id stringid.StringId
}

func newUpperFilter() *upperFilter {
	id, _ := stringid.Encode6("upper")
	return &upperFilter{id: id}
}

func (u *upperFilter) Id() stringid.StringId   { return u.id }
func (u *upperFilter) Capabilities() Capability { return CapInOut | CapDone | CapInputSame }
func (u *upperFilter) ProcessIn(in []byte) *errkit.Error { return nil }
func (u *upperFilter) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	if in == nil {
		return 0, false, true, nil
	}
	n := len(in)
	if n > out.Remaining() {
		n = out.Remaining()
	}
	free := out.PtrFree()
	for i := 0; i < n; i++ {
		c := in[i]
		if c >= 'a' && c <= 'z' {
			c -= 32
		}
		free[i] = c
	}
	out.UsedInc(n)
	return n, n < len(in), false, nil
}
func (u *upperFilter) Result() *pack.Pack   { return nil }
func (u *upperFilter) Close() *errkit.Error { return nil }

func TestGroupPassthroughAndCount(t *testing.T) {
	g := NewGroup(newCountFilter())
	src := bytes.NewReader([]byte("hello world"))
	var dst bytes.Buffer

	results, err := g.Run(src, &dst)
	require.Nil(t, err)
	assert.Equal(t, "hello world", dst.String())

	cf := g.filters[0].(*countFilter)
	r, ok := results[cf.Id()]
	require.True(t, ok)
	f, _ := r.Get(1)
	assert.EqualValues(t, 11, f.I64())
}

func TestGroupTransform(t *testing.T) {
	g := NewGroup(newUpperFilter())
	src := bytes.NewReader([]byte("mixedCase123"))
	var dst bytes.Buffer

	_, err := g.Run(src, &dst)
	require.Nil(t, err)
	assert.Equal(t, "MIXEDCASE123", dst.String())
}

func TestGroupChainedFilters(t *testing.T) {
	g := NewGroup(newCountFilter(), newUpperFilter())
	src := bytes.NewReader([]byte("abc"))
	var dst bytes.Buffer

	results, err := g.Run(src, &dst)
	require.Nil(t, err)
	assert.Equal(t, "ABC", dst.String())

	cf := g.filters[0].(*countFilter)
	r := results[cf.Id()]
	f, _ := r.Get(1)
	assert.EqualValues(t, 3, f.I64())
}

func TestGroupEmptyInput(t *testing.T) {
	g := NewGroup(newUpperFilter())
	var dst bytes.Buffer
	_, err := g.Run(bytes.NewReader(nil), &dst)
	require.Nil(t, err)
	assert.Equal(t, "", dst.String())
}

func TestGroupCloseReleasesAllFilters(t *testing.T) {
	g := NewGroup(newCountFilter(), newUpperFilter())
	err := g.Close()
	assert.Nil(t, err)
	// idempotent
	assert.Nil(t, g.Close())
}
