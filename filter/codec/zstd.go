package codec

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// ZstdCompress compresses with zstd at the given encoder level, streamed
// incrementally through zstd.Encoder's io.Writer interface rather than
// buffered through EncodeAll.
type ZstdCompress struct {
	id    stringid.StringId
	level zstd.EncoderLevel
	streamCompress
}

func NewZstdCompress(level zstd.EncoderLevel) *ZstdCompress {
	id, _ := stringid.Encode6("zstd-c")
	f := &ZstdCompress{id: id, level: level}
	f.build = f.newWriter
	return f
}

func (f *ZstdCompress) newWriter(dst io.Writer) (io.WriteCloser, *errkit.Error) {
	enc, eerr := zstd.NewWriter(dst, zstd.WithEncoderLevel(f.level))
	if eerr != nil {
		return nil, errkit.Wrap(errkit.KindFormat, eerr, "initializing zstd encoder")
	}
	return enc, nil
}

func (f *ZstdCompress) Id() stringid.StringId           { return f.id }
func (f *ZstdCompress) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *ZstdCompress) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *ZstdCompress) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return f.processInOut(in, out)
}
func (f *ZstdCompress) Result() *pack.Pack   { return nil }
func (f *ZstdCompress) Close() *errkit.Error { return nil }

// ZstdDecompress decompresses a zstd stream, streamed incrementally through
// zstd.Decoder's io.Reader interface rather than buffered through DecodeAll.
type ZstdDecompress struct {
	id stringid.StringId
	streamDecompress
}

func NewZstdDecompress() *ZstdDecompress {
	id, _ := stringid.Encode6("zstd-d")
	f := &ZstdDecompress{id: id}
	f.build = zstdReader
	return f
}

// zstdDecoderCloser adapts zstd.Decoder's argument-less Close to io.Closer
// so streamDecompress.run can release it like any other codec reader.
type zstdDecoderCloser struct {
	*zstd.Decoder
}

func (z zstdDecoderCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func zstdReader(src io.Reader) (io.Reader, *errkit.Error) {
	dec, derr := zstd.NewReader(src)
	if derr != nil {
		return nil, errkit.Wrap(errkit.KindFormat, derr, "initializing zstd decoder")
	}
	return zstdDecoderCloser{dec}, nil
}

func (f *ZstdDecompress) Id() stringid.StringId           { return f.id }
func (f *ZstdDecompress) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *ZstdDecompress) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *ZstdDecompress) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return f.processInOut(in, out)
}
func (f *ZstdDecompress) Result() *pack.Pack   { return nil }
func (f *ZstdDecompress) Close() *errkit.Error { return nil }
