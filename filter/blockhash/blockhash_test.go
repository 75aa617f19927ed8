package blockhash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgbr/filter"
)

func TestBlockChecksumZeroedFileEightIdenticalDigests(t *testing.T) {
	f, err := NewBlockChecksum(8*1024, 6)
	require.Nil(t, err)

	g := filter.NewGroup(f)
	defer g.Close()

	zeros := make([]byte, 64*1024)
	var out bytes.Buffer
	results, runErr := g.Run(bytes.NewReader(zeros), &out)
	require.Nil(t, runErr)

	r := results[f.Id()]
	require.NotNil(t, r)
	digestsField, ok := r.Get(1)
	require.True(t, ok)
	digests := digestsField.Bin()

	require.Len(t, digests, 8*6)
	first := digests[0:6]
	for i := 1; i < 8; i++ {
		assert.Equal(t, first, digests[i*6:(i+1)*6])
	}
}

func TestBlockChecksumShortFinalBlockIncluded(t *testing.T) {
	f, err := NewBlockChecksum(8*1024, 6)
	require.Nil(t, err)

	g := filter.NewGroup(f)
	defer g.Close()

	data := make([]byte, 8*1024+100)
	var out bytes.Buffer
	_, runErr := g.Run(bytes.NewReader(data), &out)
	require.Nil(t, runErr)

	assert.Equal(t, 2, f.BlockCount())
}

func TestBlockChecksumInvalidOptions(t *testing.T) {
	_, err := NewBlockChecksum(0, 6)
	assert.NotNil(t, err)

	_, err = NewBlockChecksum(1024, 0)
	assert.NotNil(t, err)

	_, err = NewBlockChecksum(1024, 17)
	assert.NotNil(t, err)
}

func TestBlockHashDistinctIdentifierFromBlockChecksum(t *testing.T) {
	c, err := NewBlockChecksum(1024, 6)
	require.Nil(t, err)
	h, err := NewBlockHash(1024, 6)
	require.Nil(t, err)
	assert.NotEqual(t, c.Id(), h.Id())
}
