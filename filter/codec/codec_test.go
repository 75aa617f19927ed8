package codec

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/iobuf"
)

func runPipe(t *testing.T, fs ...filter.IoFilter) func(input []byte) ([]byte, *errkit.Error) {
	return func(input []byte) ([]byte, *errkit.Error) {
		g := filter.NewGroup(fs...)
		defer g.Close()
		var out bytes.Buffer
		_, err := g.Run(bytes.NewReader(input), &out)
		if err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}
}

func TestGzipRoundTrip(t *testing.T) {
	run := runPipe(t, NewGzipCompress(0), NewGzipDecompress())
	out, err := run([]byte("POSTGRESQL.CONF"))
	require.Nil(t, err)
	assert.Equal(t, "POSTGRESQL.CONF", string(out))
}

func TestGzipCorruptTailFormatError(t *testing.T) {
	var compressed bytes.Buffer
	g := filter.NewGroup(NewGzipCompress(0))
	defer g.Close()
	_, err := g.Run(bytes.NewReader(bytes.Repeat([]byte("x"), 100)), &compressed)
	require.Nil(t, err)

	truncated := compressed.Bytes()[:compressed.Len()-1]
	g2 := filter.NewGroup(NewGzipDecompress())
	defer g2.Close()
	var out bytes.Buffer
	_, derr := g2.Run(bytes.NewReader(truncated), &out)
	require.NotNil(t, derr)
	assert.True(t, derr.Kind().Is(errkit.KindFormat))
}

func TestDeflateRoundTrip(t *testing.T) {
	run := runPipe(t, NewDeflateCompress(6), NewDeflateDecompress())
	out, err := run([]byte("the quick brown fox jumps over the lazy dog"))
	require.Nil(t, err)
	assert.Equal(t, "the quick brown fox jumps over the lazy dog", string(out))
}

func TestZstdRoundTrip(t *testing.T) {
	run := runPipe(t, NewZstdCompress(zstd.SpeedDefault), NewZstdDecompress())
	out, err := run([]byte("zstd payload data 12345"))
	require.Nil(t, err)
	assert.Equal(t, "zstd payload data 12345", string(out))
}

func TestBzip2RoundTrip(t *testing.T) {
	run := runPipe(t, NewBzip2Compress(6), NewBzip2Decompress())
	out, err := run([]byte("bzip2 payload data 67890"))
	require.Nil(t, err)
	assert.Equal(t, "bzip2 payload data 67890", string(out))
}

func TestLz4RoundTrip(t *testing.T) {
	run := runPipe(t, NewLz4Compress(lz4.Level1), NewLz4Decompress())
	out, err := run([]byte("lz4 payload data abcde"))
	require.Nil(t, err)
	assert.Equal(t, "lz4 payload data abcde", string(out))
}

func TestCipherRoundTrip(t *testing.T) {
	run := runPipe(t, NewCipherEncrypt("correct horse"), NewCipherDecrypt("correct horse"))
	out, err := run([]byte("secret backup bytes"))
	require.Nil(t, err)
	assert.Equal(t, "secret backup bytes", string(out))
}

func TestCipherWrongPassphraseFails(t *testing.T) {
	var ciphertext bytes.Buffer
	g := filter.NewGroup(NewCipherEncrypt("correct horse"))
	defer g.Close()
	_, err := g.Run(bytes.NewReader([]byte("secret backup bytes")), &ciphertext)
	require.Nil(t, err)

	g2 := filter.NewGroup(NewCipherDecrypt("wrong passphrase"))
	defer g2.Close()
	var out bytes.Buffer
	_, derr := g2.Run(bytes.NewReader(ciphertext.Bytes()), &out)
	require.NotNil(t, derr)
	assert.True(t, derr.Kind().Is(errkit.KindCipher))
}

// TestGzipCompressStreamsBeforeFlush demonstrates that compressed output
// appears as soon as the codec produces it rather than only at flush,
// which is what bounds the pipeline's memory use to the codec's own window
// instead of the size of the file being processed.
func TestGzipCompressStreamsBeforeFlush(t *testing.T) {
	f := NewGzipCompress(0)
	defer f.Close()

	big := bytes.Repeat([]byte("stream me now, compress incrementally "), 200000)
	out := iobuf.New(len(big))

	consumed, _, done, err := f.ProcessInOut(big, out)
	require.Nil(t, err)
	assert.Equal(t, len(big), consumed)
	assert.False(t, done)
	assert.Greater(t, out.Used(), 0, "compressor should have emitted bytes before the flush call")
	assert.Less(t, out.Used(), len(big), "a highly compressible input should not have produced a flush-sized buffer yet")
}

// TestGzipDecompressDeliversAcrossCalls demonstrates that a decompress
// filter releases plaintext for the bytes it has already seen instead of
// waiting for the whole compressed stream to arrive.
func TestGzipDecompressDeliversAcrossCalls(t *testing.T) {
	plain := bytes.Repeat([]byte("decompress me incrementally please "), 200000)

	c := NewGzipCompress(0)
	defer c.Close()
	compressed := iobuf.New(len(plain))
	_, _, _, cerr := c.ProcessInOut(plain, compressed)
	require.Nil(t, cerr)
	_, _, _, cerr = c.ProcessInOut(nil, compressed)
	require.Nil(t, cerr)

	d := NewGzipDecompress()
	defer d.Close()
	out := iobuf.New(len(plain))
	mid := compressed.Used() / 2
	_, _, done, derr := d.ProcessInOut(compressed.Ptr()[:mid], out)
	require.Nil(t, derr)
	assert.False(t, done)
	assert.Greater(t, out.Used(), 0, "decompressor should have released plaintext for the first half already")

	_, _, _, derr = d.ProcessInOut(compressed.Ptr()[mid:], out)
	require.Nil(t, derr)
	_, _, done, derr = d.ProcessInOut(nil, out)
	require.Nil(t, derr)
	assert.True(t, done)
	assert.Equal(t, string(plain), string(out.Ptr()))
}

func TestCryptoHashResultSha1(t *testing.T) {
	h, herr := NewCryptoHash("sha1")
	require.Nil(t, herr)
	g := filter.NewGroup(h)
	defer g.Close()

	var out bytes.Buffer
	results, err := g.Run(bytes.NewReader([]byte("POSTGRESQL.CONF")), &out)
	require.Nil(t, err)
	assert.Equal(t, "POSTGRESQL.CONF", out.String())

	r := results[h.Id()]
	require.NotNil(t, r)
	f, ok := r.Get(1)
	require.True(t, ok)
	assert.Len(t, f.Bin(), 20) // sha1 digest length
}

func TestXxh128TruncationLength(t *testing.T) {
	x, xerr := NewXxh128(6)
	require.Nil(t, xerr)
	x.ProcessIn([]byte("some block bytes"))
	assert.Len(t, x.Sum(), 6)

	x2, _ := NewXxh128(16)
	x2.ProcessIn([]byte("some block bytes"))
	assert.Len(t, x2.Sum(), 16)
}

func TestXxh128InvalidSize(t *testing.T) {
	_, err := NewXxh128(0)
	assert.NotNil(t, err)
	_, err = NewXxh128(17)
	assert.NotNil(t, err)
}
