package pagechecksum

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgbr/filter"
)

const pageSize = 8192

func buildValidPage(blockNo uint32) []byte {
	page := make([]byte, pageSize)
	for i := range page {
		page[i] = byte(i)
	}
	binary.LittleEndian.PutUint16(page[checksumOffset:checksumOffset+2], 0)
	cksm := computePageChecksum(page, blockNo)
	binary.LittleEndian.PutUint16(page[checksumOffset:checksumOffset+2], cksm)
	return page
}

func TestPageChecksumPassesBytesThroughUnchanged(t *testing.T) {
	f, err := New(pageSize, 0)
	require.Nil(t, err)

	page := buildValidPage(0)
	g := filter.NewGroup(f)
	defer g.Close()

	var out bytes.Buffer
	_, runErr := g.Run(bytes.NewReader(page), &out)
	require.Nil(t, runErr)
	assert.Equal(t, page, out.Bytes())
}

func TestPageChecksumDetectsCorruption(t *testing.T) {
	f, err := New(pageSize, 0)
	require.Nil(t, err)

	good := buildValidPage(0)
	bad := buildValidPage(1)
	bad[100] ^= 0xff // corrupt a byte outside the checksum field

	input := append(append([]byte{}, good...), bad...)

	g := filter.NewGroup(f)
	defer g.Close()
	var out bytes.Buffer
	results, runErr := g.Run(bytes.NewReader(input), &out)
	require.Nil(t, runErr)
	assert.Equal(t, input, out.Bytes())

	r := results[f.Id()]
	require.NotNil(t, r)
	valid, _ := r.Get(1)
	mismatchCount, _ := r.Get(2)
	assert.EqualValues(t, 1, valid.U32())
	assert.EqualValues(t, 1, mismatchCount.U32())
}

func TestPageChecksumZeroStoredChecksumIsAlwaysValid(t *testing.T) {
	f, err := New(pageSize, 0)
	require.Nil(t, err)

	page := make([]byte, pageSize)
	binary.LittleEndian.PutUint16(page[checksumOffset:checksumOffset+2], 0)

	g := filter.NewGroup(f)
	defer g.Close()
	var out bytes.Buffer
	results, runErr := g.Run(bytes.NewReader(page), &out)
	require.Nil(t, runErr)

	r := results[f.Id()]
	valid, _ := r.Get(1)
	assert.EqualValues(t, 1, valid.U32())
}
