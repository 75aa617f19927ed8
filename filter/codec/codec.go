// Package codec implements the compress/decompress, cipher, and hash
// filters that plug into a filter.FilterGroup (spec.md §4.5).
//
// Compression filters drive their underlying io.Writer-based codec straight
// off each ProcessInOut call, so compressed output appears as soon as the
// codec produces it instead of only once the whole input has been seen.
// Decompression filters bridge the library's blocking io.Reader-based API
// to ProcessInOut's push model with a background goroutine reading off an
// io.Pipe, the same shape containers/storage's zstdChunkedWriter uses to
// hand a tar-split stream to a pipe-fed goroutine
// (pkg/chunked/compressor/compressor.go: zstdChunkedWriterWithLevel). Either
// way, the whole file is never held at once; codec output waits in a sink
// until ProcessInOut drains it, and that sink has no size limit, so a
// decompressor can queue more than one output buffer's worth of bytes.
package codec

import (
	"bytes"
	"io"
	"sync"

	"pgbr/errkit"
	"pgbr/iobuf"
)

// codecWriter wraps dst with a compressing io.WriteCloser.
type codecWriter func(dst io.Writer) (io.WriteCloser, *errkit.Error)

// codecReader wraps src with a decompressing io.Reader. The returned reader
// may also implement io.Closer; run() releases it if so.
type codecReader func(src io.Reader) (io.Reader, *errkit.Error)

// sink is a lock-guarded byte queue holding what a codec has produced but
// the ProcessInOut caller has not yet drained. It has no size limit; Write
// never blocks.
type sink struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  bytes.Buffer
	err  *errkit.Error
	done bool
}

func newSink() *sink {
	s := &sink{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.buf.Write(p)
	s.cond.Broadcast()
	s.mu.Unlock()
	return len(p), nil
}

func (s *sink) fail(err *errkit.Error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.done = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *sink) finish() {
	s.mu.Lock()
	s.done = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// drain copies whatever is immediately available into out, without
// blocking for more. Reports whether the codec has finished and every byte
// it will ever produce has now been drained.
func (s *sink) drain(out *iobuf.Buffer) (bool, *errkit.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(out.PtrFree(), s.buf.Bytes())
	out.UsedInc(n)
	s.buf.Next(n)
	return s.done && s.buf.Len() == 0, s.err
}

// waitDrain blocks until the producing goroutine has either emitted more
// bytes or finished, then drains. Only safe to call once no further input
// will ever be pushed (the flush call) — otherwise a decompressor still
// waiting on more input would block this call forever.
func (s *sink) waitDrain(out *iobuf.Buffer) (bool, *errkit.Error) {
	s.mu.Lock()
	for s.buf.Len() == 0 && !s.done {
		s.cond.Wait()
	}
	n := copy(out.PtrFree(), s.buf.Bytes())
	out.UsedInc(n)
	s.buf.Next(n)
	complete := s.done && s.buf.Len() == 0
	err := s.err
	s.mu.Unlock()
	return complete, err
}

// streamCompress is the shared ProcessInOut driver for every compress
// filter: input is written straight into the wrapped codec as it arrives,
// and out is drained from the sink the codec writes into. Everything here
// runs synchronously in the caller's goroutine — a compressor's Write/Close
// never blocks waiting on more input the way a decompressor's Read does, so
// no background goroutine is needed on this side.
type streamCompress struct {
	build     codecWriter
	w         io.WriteCloser
	out       *sink
	started   bool
	closeOnce sync.Once
}

func (s *streamCompress) ensureStarted() *errkit.Error {
	if s.started {
		return nil
	}
	s.started = true
	s.out = newSink()
	w, err := s.build(s.out)
	if err != nil {
		s.out.fail(err)
		return err
	}
	s.w = w
	return nil
}

func (s *streamCompress) processInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	if err := s.ensureStarted(); err != nil {
		return 0, false, true, err
	}

	consumed := 0
	if in != nil {
		n, werr := s.w.Write(in)
		consumed = n
		if werr != nil {
			err := errkit.Wrap(errkit.KindFormat, werr, "writing compressed stream")
			s.out.fail(err)
			return consumed, false, true, err
		}
	} else {
		s.closeOnce.Do(func() {
			if cerr := s.w.Close(); cerr != nil {
				s.out.fail(errkit.Wrap(errkit.KindFormat, cerr, "finalizing compressed stream"))
				return
			}
			s.out.finish()
		})
	}

	complete, serr := s.out.drain(out)
	if serr != nil {
		return consumed, false, true, serr
	}
	return consumed, false, complete, nil
}

// streamDecompress is the shared ProcessInOut driver for every decompress
// filter: a background goroutine owns the blocking codecReader, fed by an
// io.Pipe that ProcessInOut writes newly-arrived bytes into. Interior calls
// drain whatever is already available without blocking, since the
// decompressor may legitimately be waiting on the next call's bytes before
// it can produce anything; only the flush call (no more input ever coming)
// blocks until the codec finishes.
type streamDecompress struct {
	build     codecReader
	pr        *io.PipeReader
	pw        *io.PipeWriter
	out       *sink
	started   bool
	closeOnce sync.Once
}

func (s *streamDecompress) ensureStarted() {
	if s.started {
		return
	}
	s.started = true
	s.out = newSink()
	s.pr, s.pw = io.Pipe()
	go s.run()
}

func (s *streamDecompress) run() {
	r, err := s.build(s.pr)
	if err != nil {
		s.out.fail(err)
		io.Copy(io.Discard, s.pr)
		return
	}
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}

	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			s.out.Write(buf[:n])
		}
		if rerr == nil {
			continue
		}
		if rerr == io.EOF {
			trailing, _ := io.Copy(io.Discard, s.pr)
			if trailing > 0 {
				s.out.fail(errkit.New(errkit.KindFormat, "trailing bytes after compressed stream end"))
				return
			}
			s.out.finish()
			return
		}
		if rerr == io.ErrUnexpectedEOF {
			s.out.fail(errkit.New(errkit.KindFormat, "unexpected eof in compressed data"))
		} else {
			s.out.fail(errkit.Wrap(errkit.KindFormat, rerr, "decompressing stream"))
		}
		io.Copy(io.Discard, s.pr)
		return
	}
}

func (s *streamDecompress) processInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	s.ensureStarted()

	if in != nil {
		n, werr := s.pw.Write(in)
		if werr != nil {
			_, serr := s.out.drain(out)
			if serr != nil {
				return n, false, true, serr
			}
			return n, false, true, errkit.Wrap(errkit.KindFormat, werr, "feeding compressed stream")
		}
		complete, serr := s.out.drain(out)
		if serr != nil {
			return n, false, true, serr
		}
		return n, false, complete, nil
	}

	s.closeOnce.Do(func() {
		s.pw.Close()
	})
	complete, serr := s.out.waitDrain(out)
	if serr != nil {
		return 0, false, true, serr
	}
	return 0, false, complete, nil
}
