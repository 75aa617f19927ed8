package blockmap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/filter/blockhash"
)

const blockSize = 8 * 1024
const checksumSize = 6

func digestsOf(t *testing.T, data []byte) [][]byte {
	t.Helper()
	f, err := blockhash.NewBlockChecksum(blockSize, checksumSize)
	require.Nil(t, err)
	g := filter.NewGroup(f)
	defer g.Close()

	var out bytes.Buffer
	results, runErr := g.Run(bytes.NewReader(data), &out)
	require.Nil(t, runErr)

	flat, ok := results[f.Id()].Get(1)
	require.True(t, ok)
	return SplitDigests(flat.Bin(), checksumSize)
}

func TestBuildMapZeroedFileSingleSelfEntry(t *testing.T) {
	zeros := make([]byte, 64*1024)
	digests := digestsOf(t, zeros)

	entries := BuildMap(nil, digests)
	require.Len(t, entries, 1)
	assert.Equal(t, SelfReference, entries[0].Reference)
	assert.Equal(t, 0, entries[0].BlockIndex)
	assert.Equal(t, 8, entries[0].Length)
}

func TestBuildMapDiffBackupAlternatesFullAndSelf(t *testing.T) {
	original := make([]byte, 64*1024) // all zeros, 8 blocks
	refDigests := digestsOf(t, original)
	reference := []Reference{{Label: "full", ChecksumSize: checksumSize, Digests: refDigests}}

	newFile := make([]byte, 96*1024)
	ones := bytes.Repeat([]byte{0x01}, 32*1024)
	copy(newFile[16*1024:48*1024], ones)
	newDigests := digestsOf(t, newFile)

	entries := BuildMap(reference, newDigests)

	require.Len(t, entries, 4)
	assert.Equal(t, Entry{Reference: "full", BlockIndex: 0, Length: 2}, entries[0])
	assert.Equal(t, SelfReference, entries[1].Reference)
	assert.Equal(t, 4, entries[1].Length)
	assert.Equal(t, "full", entries[2].Reference)
	assert.Equal(t, 2, entries[2].Length)
	assert.Equal(t, SelfReference, entries[3].Reference)
	assert.Equal(t, 4, entries[3].Length)

	total := 0
	for _, e := range entries {
		total += e.Length
	}
	assert.Equal(t, 12, total)
}

func TestResolveLatestPicksLastLabel(t *testing.T) {
	assert.Equal(t, "20260731F", ResolveLatest([]string{"20260701F", "20260715D", "20260731F"}))
	assert.Equal(t, "", ResolveLatest(nil))
}

// memSource serves blocks from an in-memory reference file, standing in
// for a previously restored backup artifact during RestoreDelta tests.
type memSource struct {
	data      []byte
	blockSize int
}

func (m memSource) ReadBlock(blockIndex, size int) ([]byte, *errkit.Error) {
	offset := blockIndex * m.blockSize
	return append([]byte{}, m.data[offset:offset+size]...), nil
}

type memTarget struct {
	data []byte
}

func (m *memTarget) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(m.data) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[off:end], p)
	return len(p), nil
}

func TestRestoreDeltaReconstructsFileFromMapAndReference(t *testing.T) {
	original := make([]byte, 64*1024)
	refDigests := digestsOf(t, original)
	reference := []Reference{{Label: "full", ChecksumSize: checksumSize, Digests: refDigests}}

	newFile := make([]byte, 96*1024)
	ones := bytes.Repeat([]byte{0x01}, 32*1024)
	copy(newFile[16*1024:48*1024], ones)
	newDigests := digestsOf(t, newFile)

	entries := BuildMap(reference, newDigests)

	var selfBytes []byte
	logical := 0
	for _, e := range entries {
		if e.Reference == SelfReference {
			selfBytes = append(selfBytes, newFile[logical*blockSize:(logical+e.Length)*blockSize]...)
		}
		logical += e.Length
	}

	refs := map[string]Source{"full": memSource{data: original, blockSize: blockSize}}
	target := &memTarget{}

	rerr := RestoreDelta(entries, blockSize, checksumSize, int64(len(newFile)), newDigests,
		bytes.NewReader(selfBytes), refs, target, false, nil)
	require.Nil(t, rerr)
	assert.Equal(t, newFile, target.data)
}

func TestRestoreDeltaMissingReferenceFailsWithFileMissing(t *testing.T) {
	original := make([]byte, 64*1024)
	refDigests := digestsOf(t, original)
	reference := []Reference{{Label: "full", ChecksumSize: checksumSize, Digests: refDigests}}

	newFile := make([]byte, 16*1024) // two blocks, both match reference
	newDigests := digestsOf(t, newFile)
	entries := BuildMap(reference, newDigests)

	target := &memTarget{}
	rerr := RestoreDelta(entries, blockSize, checksumSize, int64(len(newFile)), newDigests,
		bytes.NewReader(nil), map[string]Source{}, target, false, nil)
	require.NotNil(t, rerr)
	assert.True(t, rerr.Kind().Is(errkit.KindFileMissing))
}
