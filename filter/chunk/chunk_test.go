package chunk

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgbr/filter"
	"pgbr/iobuf"
	"pgbr/stringid"
)

func runPipe(t *testing.T, input []byte, fs ...filter.IoFilter) []byte {
	t.Helper()
	g := filter.NewGroup(fs...)
	defer g.Close()
	var out bytes.Buffer
	_, err := g.Run(bytes.NewReader(input), &out)
	require.Nil(t, err)
	return out.Bytes()
}

func TestChunkRoundTripSingleBuffer(t *testing.T) {
	payload := []byte("POSTGRESQL.CONF payload bytes for one chunk")
	encoded := runPipe(t, payload, NewEncode())
	decoded := runPipe(t, encoded, NewDecode())
	assert.Equal(t, payload, decoded)
}

func TestChunkRoundTripEmptyInput(t *testing.T) {
	encoded := runPipe(t, nil, NewEncode())
	decoded := runPipe(t, encoded, NewDecode())
	assert.Len(t, decoded, 0)
}

func TestChunkHeaderSequenceMatchesDeltaEncoding(t *testing.T) {
	sizes := []int{8192, 8193, 8191, 1}
	var input []byte
	last := 0
	var want []byte
	for i, size := range sizes {
		buf := bytes.Repeat([]byte{byte('a' + i)}, size)
		input = append(input, buf...)
		if i == 0 {
			want = append(want, stringid.EncodeVarint128(nil, uint64(size))...)
		} else {
			delta := int64(size - last)
			want = append(want, stringid.EncodeVarint128(nil, stringid.ToZigZag64(delta)+1)...)
		}
		want = append(want, buf...)
		last = size
	}
	want = append(want, 0x00)

	e := NewEncode()
	g := filter.NewGroup(e)
	defer g.Close()

	var out bytes.Buffer
	readers := make([]io.Reader, 0, len(sizes))
	offset := 0
	for _, size := range sizes {
		readers = append(readers, bytes.NewReader(input[offset:offset+size]))
		offset += size
	}
	_, err := g.Run(io.MultiReader(readers...), &out)
	require.Nil(t, err)

	assert.Equal(t, want, out.Bytes())
}

func TestChunkDecodeToleratesSplitHeaderAcrossCalls(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 300)
	encoded := runPipe(t, payload, NewEncode())

	d := NewDecode()
	var out bytes.Buffer
	for i := 0; i < len(encoded); i++ {
		buf := iobuf.New(4096)
		_, _, done, err := d.ProcessInOut(encoded[i:i+1], buf)
		require.Nil(t, err)
		out.Write(buf.PtrConst())
		if done {
			break
		}
	}
	assert.Equal(t, payload, out.Bytes())
}
