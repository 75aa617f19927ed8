package codec

import (
	"io"

	"github.com/pierrec/lz4/v4"

	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// Lz4Compress compresses with LZ4 framing at the given compression level
// (0 uses the library default).
type Lz4Compress struct {
	id    stringid.StringId
	level lz4.CompressionLevel
	streamCompress
}

func NewLz4Compress(level lz4.CompressionLevel) *Lz4Compress {
	id, _ := stringid.Encode6("lz4-c")
	f := &Lz4Compress{id: id, level: level}
	f.build = f.newWriter
	return f
}

func (f *Lz4Compress) newWriter(dst io.Writer) (io.WriteCloser, *errkit.Error) {
	w := lz4.NewWriter(dst)
	if werr := w.Apply(lz4.CompressionLevelOption(f.level)); werr != nil {
		return nil, errkit.Wrap(errkit.KindFormat, werr, "configuring lz4 writer")
	}
	return w, nil
}

func (f *Lz4Compress) Id() stringid.StringId           { return f.id }
func (f *Lz4Compress) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *Lz4Compress) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *Lz4Compress) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return f.processInOut(in, out)
}
func (f *Lz4Compress) Result() *pack.Pack   { return nil }
func (f *Lz4Compress) Close() *errkit.Error { return nil }

// Lz4Decompress decompresses an LZ4-framed stream.
type Lz4Decompress struct {
	id stringid.StringId
	streamDecompress
}

func NewLz4Decompress() *Lz4Decompress {
	id, _ := stringid.Encode6("lz4-d")
	f := &Lz4Decompress{id: id}
	f.build = lz4Reader
	return f
}

func lz4Reader(src io.Reader) (io.Reader, *errkit.Error) {
	return lz4.NewReader(src), nil
}

func (f *Lz4Decompress) Id() stringid.StringId           { return f.id }
func (f *Lz4Decompress) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *Lz4Decompress) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *Lz4Decompress) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return f.processInOut(in, out)
}
func (f *Lz4Decompress) Result() *pack.Pack   { return nil }
func (f *Lz4Decompress) Close() *errkit.Error { return nil }
