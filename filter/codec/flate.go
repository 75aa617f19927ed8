package codec

import (
	"io"

	"github.com/klauspost/compress/flate"

	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// DeflateCompress compresses with raw DEFLATE framing (no zlib/gzip
// container), used when the caller supplies its own chunk/hash framing
// around the compressed bytes.
type DeflateCompress struct {
	id    stringid.StringId
	level int
	streamCompress
}

func NewDeflateCompress(level int) *DeflateCompress {
	id, _ := stringid.Encode6("flate-c")
	f := &DeflateCompress{id: id, level: level}
	f.build = f.newWriter
	return f
}

func (f *DeflateCompress) newWriter(dst io.Writer) (io.WriteCloser, *errkit.Error) {
	w, werr := flate.NewWriter(dst, f.level)
	if werr != nil {
		return nil, errkit.Wrap(errkit.KindFormat, werr, "initializing deflate writer at level %d", f.level)
	}
	return w, nil
}

func (f *DeflateCompress) Id() stringid.StringId           { return f.id }
func (f *DeflateCompress) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *DeflateCompress) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *DeflateCompress) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return f.processInOut(in, out)
}
func (f *DeflateCompress) Result() *pack.Pack   { return nil }
func (f *DeflateCompress) Close() *errkit.Error { return nil }

// DeflateDecompress decompresses a raw DEFLATE stream.
type DeflateDecompress struct {
	id stringid.StringId
	streamDecompress
}

func NewDeflateDecompress() *DeflateDecompress {
	id, _ := stringid.Encode6("flate-d")
	f := &DeflateDecompress{id: id}
	f.build = deflateReader
	return f
}

func deflateReader(src io.Reader) (io.Reader, *errkit.Error) {
	return flate.NewReader(src), nil
}

func (f *DeflateDecompress) Id() stringid.StringId           { return f.id }
func (f *DeflateDecompress) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *DeflateDecompress) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *DeflateDecompress) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return f.processInOut(in, out)
}
func (f *DeflateDecompress) Result() *pack.Pack   { return nil }
func (f *DeflateDecompress) Close() *errkit.Error { return nil }
