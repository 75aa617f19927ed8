package codec

import (
	"io"

	"github.com/klauspost/compress/gzip"

	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// GzipCompress compresses its input stream with gzip framing at the given
// level (gzip.DefaultCompression if level is 0).
type GzipCompress struct {
	id    stringid.StringId
	level int
	streamCompress
}

// NewGzipCompress constructs a gzip compress filter. level follows
// compress/gzip's convention (gzip.DefaultCompression, gzip.BestSpeed, …).
func NewGzipCompress(level int) *GzipCompress {
	id, _ := stringid.Encode6("gzip-c")
	f := &GzipCompress{id: id, level: level}
	f.build = f.newWriter
	return f
}

func (f *GzipCompress) newWriter(dst io.Writer) (io.WriteCloser, *errkit.Error) {
	level := f.level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	w, werr := gzip.NewWriterLevel(dst, level)
	if werr != nil {
		return nil, errkit.Wrap(errkit.KindFormat, werr, "initializing gzip writer at level %d", level)
	}
	return w, nil
}

func (f *GzipCompress) Id() stringid.StringId           { return f.id }
func (f *GzipCompress) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *GzipCompress) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *GzipCompress) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return f.processInOut(in, out)
}
func (f *GzipCompress) Result() *pack.Pack   { return nil }
func (f *GzipCompress) Close() *errkit.Error { return nil }

// GzipDecompress decompresses a gzip stream. End-of-input before the
// stream reports its own end (or any trailing bytes after it) is a
// FormatError, per spec.md §4.5.
type GzipDecompress struct {
	id stringid.StringId
	streamDecompress
}

func NewGzipDecompress() *GzipDecompress {
	id, _ := stringid.Encode6("gzip-d")
	f := &GzipDecompress{id: id}
	f.build = gzipReader
	return f
}

func gzipReader(src io.Reader) (io.Reader, *errkit.Error) {
	r, rerr := gzip.NewReader(src)
	if rerr != nil {
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return nil, errkit.New(errkit.KindFormat, "unexpected eof in compressed data")
		}
		return nil, errkit.Wrap(errkit.KindFormat, rerr, "reading gzip header")
	}
	r.Multistream(false)
	return r, nil
}

func (f *GzipDecompress) Id() stringid.StringId           { return f.id }
func (f *GzipDecompress) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *GzipDecompress) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *GzipDecompress) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return f.processInOut(in, out)
}
func (f *GzipDecompress) Result() *pack.Pack   { return nil }
func (f *GzipDecompress) Close() *errkit.Error { return nil }
