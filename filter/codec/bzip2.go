package codec

import (
	"io"

	"github.com/dsnet/compress/bzip2"

	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// Bzip2Compress compresses with bzip2. The standard library's
// compress/bzip2 is decode-only, so bzip2 writing is grounded on
// github.com/dsnet/compress instead.
type Bzip2Compress struct {
	id    stringid.StringId
	level int
	streamCompress
}

func NewBzip2Compress(level int) *Bzip2Compress {
	id, _ := stringid.Encode6("bz2-c")
	f := &Bzip2Compress{id: id, level: level}
	f.build = f.newWriter
	return f
}

func (f *Bzip2Compress) newWriter(dst io.Writer) (io.WriteCloser, *errkit.Error) {
	w, werr := bzip2.NewWriter(dst, &bzip2.WriterConfig{Level: f.level})
	if werr != nil {
		return nil, errkit.Wrap(errkit.KindFormat, werr, "initializing bzip2 writer at level %d", f.level)
	}
	return w, nil
}

func (f *Bzip2Compress) Id() stringid.StringId           { return f.id }
func (f *Bzip2Compress) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *Bzip2Compress) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *Bzip2Compress) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return f.processInOut(in, out)
}
func (f *Bzip2Compress) Result() *pack.Pack   { return nil }
func (f *Bzip2Compress) Close() *errkit.Error { return nil }

// Bzip2Decompress decompresses a bzip2 stream.
type Bzip2Decompress struct {
	id stringid.StringId
	streamDecompress
}

func NewBzip2Decompress() *Bzip2Decompress {
	id, _ := stringid.Encode6("bz2-d")
	f := &Bzip2Decompress{id: id}
	f.build = bzip2Reader
	return f
}

func bzip2Reader(src io.Reader) (io.Reader, *errkit.Error) {
	r, rerr := bzip2.NewReader(src, nil)
	if rerr != nil {
		return nil, errkit.Wrap(errkit.KindFormat, rerr, "initializing bzip2 reader")
	}
	return r, nil
}

func (f *Bzip2Decompress) Id() stringid.StringId           { return f.id }
func (f *Bzip2Decompress) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *Bzip2Decompress) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *Bzip2Decompress) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return f.processInOut(in, out)
}
func (f *Bzip2Decompress) Result() *pack.Pack   { return nil }
func (f *Bzip2Decompress) Close() *errkit.Error { return nil }
