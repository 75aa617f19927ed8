package chunk

import (
	"bytes"

	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// Decode reverses Encode. It accumulates raw bytes across calls and
// extracts as many complete chunks as are currently available, so a
// header or body straddling two driver-supplied buffers is tolerated:
// the decoder simply waits for the next call's bytes (spec.md §4.6,
// "decoder treats out-of-buffer mid-chunk by requesting more input
// without loss").
type Decode struct {
	id       stringid.StringId
	accum    bytes.Buffer
	pending  []byte
	sizeLast int64
	hasFirst bool
	finished bool
}

func NewDecode() *Decode {
	id, _ := stringid.Encode6("chunk-d")
	return &Decode{id: id, sizeLast: -1}
}

func (d *Decode) Id() stringid.StringId           { return d.id }
func (d *Decode) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (d *Decode) ProcessIn([]byte) *errkit.Error   { return nil }
func (d *Decode) Result() *pack.Pack               { return nil }
func (d *Decode) Close() *errkit.Error             { return nil }

func (d *Decode) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	consumed := 0
	if in != nil {
		d.accum.Write(in)
		consumed = len(in)
	}

	if !d.finished {
		if err := d.extractChunks(); err != nil {
			return 0, false, false, err
		}
	}

	n := copy(out.PtrFree(), d.pending)
	out.UsedInc(n)
	d.pending = d.pending[n:]

	if in == nil && !d.finished {
		return 0, false, false, errkit.New(errkit.KindFormat, "unexpected eof in chunked stream")
	}

	done := d.finished && len(d.pending) == 0
	return consumed, false, done, nil
}

func (d *Decode) extractChunks() *errkit.Error {
	for {
		data := d.accum.Bytes()
		raw, n := stringid.DecodeVarint128(data)
		if n == 0 {
			return nil // header incomplete, wait for more bytes
		}
		if raw == 0 {
			d.accum.Next(n)
			d.finished = true
			return nil
		}

		var size int64
		if !d.hasFirst {
			size = int64(raw)
			d.hasFirst = true
		} else {
			size = d.sizeLast + stringid.FromZigZag64(raw-1)
		}
		if size < 0 {
			return errkit.New(errkit.KindFormat, "chunk header decodes to negative size %d", size)
		}

		if n+int(size) > len(data) {
			return nil // body incomplete, wait for more bytes
		}
		body := data[n : n+int(size)]
		d.pending = append(d.pending, body...)
		d.sizeLast = size
		d.accum.Next(n + int(size))
	}
}
