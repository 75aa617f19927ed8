// Package chunk implements the length-prefixed, delta-encoded chunked
// framing used to serialize an unknown-length byte stream (spec.md §3,
// §4.6): each chunk is `varint128(header) || bytes(size)`, the first
// chunk's header is its absolute size, every later chunk's header is
// `zigzag(size - size_last) + 1`, and a single zero header byte terminates
// the stream.
package chunk

import (
	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// Encode turns each buffer handed to it by the driver into one chunk. A
// chunk that does not fully fit the current output buffer is drained
// across as many subsequent calls as needed before the next chunk is
// accepted, so callers never see interleaved chunk bytes.
type Encode struct {
	id       stringid.StringId
	sizeLast int64
	hasFirst bool
	backlog  []byte
	finished bool
}

func NewEncode() *Encode {
	id, _ := stringid.Encode6("chunk-e")
	return &Encode{id: id, sizeLast: -1}
}

func (e *Encode) Id() stringid.StringId           { return e.id }
func (e *Encode) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone | filter.CapInputSame }
func (e *Encode) ProcessIn([]byte) *errkit.Error   { return nil }
func (e *Encode) Result() *pack.Pack               { return nil }
func (e *Encode) Close() *errkit.Error             { return nil }

func (e *Encode) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	if in == nil {
		if !e.finished {
			e.backlog = append(e.backlog, 0x00)
			e.finished = true
		}
		drain(&e.backlog, out)
		return 0, false, e.finished && len(e.backlog) == 0, nil
	}

	if len(e.backlog) > 0 {
		drain(&e.backlog, out)
		return 0, true, false, nil
	}

	header := e.header(len(in))
	e.backlog = append(header, in...)
	e.sizeLast = int64(len(in))
	drain(&e.backlog, out)
	return len(in), len(e.backlog) > 0, false, nil
}

func (e *Encode) header(size int) []byte {
	if !e.hasFirst {
		e.hasFirst = true
		return stringid.EncodeVarint128(nil, uint64(size))
	}
	delta := int64(size) - e.sizeLast
	return stringid.EncodeVarint128(nil, stringid.ToZigZag64(delta)+1)
}

func drain(backlog *[]byte, out *iobuf.Buffer) int {
	n := copy(out.PtrFree(), *backlog)
	out.UsedInc(n)
	*backlog = (*backlog)[n:]
	return n
}
