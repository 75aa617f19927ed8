// Package blockmap implements the block-incremental engine (spec.md
// §4.10): building a deduplicated map of a file's blocks against one or
// more reference backups, and replaying that map to restore a file while
// pulling unchanged ranges from the reference artifacts instead of the
// current one.
package blockmap

import (
	"encoding/binary"
	"io"

	"github.com/zeebo/xxh3"

	"pgbr/errkit"
)

// SelfReference is the sentinel Reference value used for a block that
// wasn't found in any reference backup and so was written fresh into the
// current artifact.
const SelfReference = "self"

// Reference is one prior backup's block-checksum list, used as a dedup
// source when building a map for a new backup.
type Reference struct {
	Label        string
	ChecksumSize int
	Digests      [][]byte // one per block, in file block order
}

// SplitDigests slices a block-checksum filter's concatenated Result bin
// field back into one digest per block.
func SplitDigests(flat []byte, checksumSize int) [][]byte {
	if checksumSize <= 0 || len(flat)%checksumSize != 0 {
		return nil
	}
	n := len(flat) / checksumSize
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = flat[i*checksumSize : (i+1)*checksumSize]
	}
	return out
}

// Entry is one block map record. Reference is either SelfReference or a
// prior backup's label; BlockIndex is the block index within that source
// (the reference's block list for a hit, or a running counter over only
// the self-written blocks for a miss); Length is the run length in blocks.
// Entries are always produced in ascending file-block order, so the
// logical block position of an entry is the running sum of every prior
// entry's Length — it is not stored per entry.
type Entry struct {
	Reference  string
	BlockIndex int
	Length     int
}

// builder accumulates entries for one file's map build pass, coalescing
// adjacent same-source contiguous runs as it goes (spec.md §4.10 "Map
// build").
type builder struct {
	references  []Reference
	entries     []Entry
	selfCounter int
}

// BuildMap streams through a file's own block-checksum digest list and
// produces its block map against an ordered list of reference backups.
// References earlier in the list win ties, matching "reference-list:
// ordered list of prior backup labels this map draws from" (spec.md
// §4.10). Matching is positional: new file block i is compared against
// reference block i of each candidate reference in order, not against an
// arbitrary position via a global content index — a reference only
// supplies a hit where it has a block at that same index with an equal
// digest, and file blocks beyond every reference's length are
// unconditionally self. This reproduces the worked example in spec.md §8
// scenario 4, where content-only (position-independent) matching would
// over-match and under-count the self blocks.
func BuildMap(references []Reference, selfDigests [][]byte) []Entry {
	b := &builder{references: references}
	for i, digest := range selfDigests {
		b.addBlock(i, digest)
	}
	return b.entries
}

func (b *builder) addBlock(index int, digest []byte) {
	for _, ref := range b.references {
		if index < len(ref.Digests) && bytesEqual(ref.Digests[index], digest) {
			b.appendEntry(ref.Label, index)
			return
		}
	}
	b.appendEntry(SelfReference, b.selfCounter)
	b.selfCounter++
}

func (b *builder) appendEntry(label string, index int) {
	if n := len(b.entries); n > 0 {
		last := &b.entries[n-1]
		if last.Reference == label && last.BlockIndex+last.Length == index {
			last.Length++
			return
		}
	}
	b.entries = append(b.entries, Entry{Reference: label, BlockIndex: index, Length: 1})
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ResolveLatest pins a "latest" reference label to a concrete backup label
// at plan time (spec.md §4.10 edge case); labels must be given oldest
// first. The higher layers that sort and validate backup labels live
// outside this core.
func ResolveLatest(labelsOldestFirst []string) string {
	if len(labelsOldestFirst) == 0 {
		return ""
	}
	return labelsOldestFirst[len(labelsOldestFirst)-1]
}

// Source provides random-access reads of a reference backup's blocks
// during restore.
type Source interface {
	ReadBlock(blockIndex int, size int) ([]byte, *errkit.Error)
}

// LocalMatch reports whether the target already holds the expected bytes
// at offset (same checksum and size), letting restore skip a read
// entirely in --delta mode (spec.md §4.10 "Restore delta").
type LocalMatch func(offset int64, expectedDigest []byte, size int64) bool

// RestoreDelta replays a block map, pulling each entry's bytes from
// selfData (the current artifact's embedded raw blocks, consumed
// sequentially in entry order) or from the matching Source in refs, and
// writing them into target at their logical file offset. Every block is
// verified against expectedDigests before being written; a reference
// backup missing from refs aborts with FileMissingError, matching spec.md
// §4.10's edge case.
func RestoreDelta(
	entries []Entry,
	blockSize int,
	checksumSize int,
	fileSize int64,
	expectedDigests [][]byte,
	selfData io.Reader,
	refs map[string]Source,
	target io.WriterAt,
	delta bool,
	localMatch LocalMatch,
) *errkit.Error {
	logicalBlock := 0
	for _, e := range entries {
		for bi := 0; bi < e.Length; bi++ {
			fileBlock := logicalBlock + bi
			targetOffset := int64(fileBlock) * int64(blockSize)
			size := blockByteSize(fileBlock, blockSize, fileSize)
			expected := expectedDigests[fileBlock]

			if delta && localMatch != nil && localMatch(targetOffset, expected, size) {
				continue
			}

			var data []byte
			if e.Reference == SelfReference {
				buf := make([]byte, size)
				if _, rerr := io.ReadFull(selfData, buf); rerr != nil {
					return errkit.Wrap(errkit.KindFileRead, rerr, "reading self block %d from artifact", fileBlock)
				}
				data = buf
			} else {
				src, ok := refs[e.Reference]
				if !ok {
					return errkit.New(errkit.KindFileMissing, "reference backup %q missing for block map entry at file block %d", e.Reference, fileBlock)
				}
				refBlockIndex := e.BlockIndex + bi
				d, rerr := src.ReadBlock(refBlockIndex, int(size))
				if rerr != nil {
					return rerr
				}
				data = d
			}

			if !verifyBlockDigest(data, expected) {
				return errkit.New(errkit.KindChecksum, "block map entry for file block %d failed xxhash verification", fileBlock)
			}

			if _, werr := target.WriteAt(data, targetOffset); werr != nil {
				return errkit.Wrap(errkit.KindFileWrite, werr, "writing restored block %d", fileBlock)
			}
		}
		logicalBlock += e.Length
	}
	return nil
}

func blockByteSize(fileBlock, blockSize int, fileSize int64) int64 {
	offset := int64(fileBlock) * int64(blockSize)
	remaining := fileSize - offset
	if remaining > int64(blockSize) {
		return int64(blockSize)
	}
	return remaining
}

func verifyBlockDigest(data []byte, expected []byte) bool {
	return bytesEqual(truncatedHash(data, len(expected)), expected)
}

// truncatedHash computes the same truncated big-endian xxhash-128 digest
// as blockhash.Filter, so a block map built from a blockhash Result can be
// verified here without re-deriving the hash scheme.
func truncatedHash(data []byte, size int) []byte {
	digest := xxh3.Hash128(data)
	var full [16]byte
	binary.BigEndian.PutUint64(full[0:8], digest.Hi)
	binary.BigEndian.PutUint64(full[8:16], digest.Lo)
	if size > len(full) {
		size = len(full)
	}
	return append([]byte{}, full[:size]...)
}
