package backupfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupRestoreRoundTripGzipCipherChunked(t *testing.T) {
	content := bytes.Repeat([]byte("postgresql data page bytes "), 500)

	var artifact bytes.Buffer
	manifest, err := Backup(bytes.NewReader(content), &artifact, Options{
		Compress: CompressGzip,
		Cipher:   true, Passphrase: "s3cr3t",
		Chunked: true,
	})
	require.Nil(t, err)
	require.NotEmpty(t, manifest.IntegrityHash)

	var restored bytes.Buffer
	rerr := Restore(bytes.NewReader(artifact.Bytes()), &restored, RestoreOptions{
		Compress: CompressGzip,
		Cipher:   true, Passphrase: "s3cr3t",
		Chunked:      true,
		ExpectedHash: manifest.IntegrityHash,
	})
	require.Nil(t, rerr)
	assert.Equal(t, content, restored.Bytes())
}

func TestRestoreWrongHashFails(t *testing.T) {
	content := []byte("small file content")

	var artifact bytes.Buffer
	manifest, err := Backup(bytes.NewReader(content), &artifact, Options{Compress: CompressNone})
	require.Nil(t, err)

	wrongHash := append([]byte{}, manifest.IntegrityHash...)
	wrongHash[0] ^= 0xff

	var restored bytes.Buffer
	rerr := Restore(bytes.NewReader(artifact.Bytes()), &restored, RestoreOptions{
		Compress:     CompressNone,
		ExpectedHash: wrongHash,
	})
	require.NotNil(t, rerr)
}

func TestBackupWithBlockIncrementalAndPageChecksumProducesManifest(t *testing.T) {
	content := make([]byte, 3*8192)

	var artifact bytes.Buffer
	manifest, err := Backup(bytes.NewReader(content), &artifact, Options{
		PageChecksum:     true,
		PageSize:         8192,
		BlockIncremental: true,
		BlockSize:        8192,
		ChecksumSize:     6,
		Compress:         CompressNone,
	})
	require.Nil(t, err)
	assert.Len(t, manifest.BlockChecksums, 3*6)
	assert.EqualValues(t, 3, manifest.PageValidCount)
}
