// Package filter implements the streaming IoFilter contract and the
// FilterGroup that drives a linear pipeline of filters (spec.md §4.3–§4.4).
package filter

import (
	"pgbr/errkit"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// Capability is the vector of execution shapes a filter supports. Not all
// bits coexist on one filter: an In-shape filter (CapIn) never sets CapInOut,
// and vice versa.
type Capability uint8

const (
	// CapIn marks an observer filter: it consumes input but produces no
	// per-call output of its own (a running hash, a byte counter). Bytes
	// pass through the stage unchanged.
	CapIn Capability = 1 << iota
	// CapInOut marks a transforming filter: it reads input and writes a
	// (possibly different-sized) output.
	CapInOut
	// CapDone marks a filter that can signal internal completion before
	// its upstream is exhausted (a decompressor reaching stream-end).
	CapDone
	// CapInputSame marks a filter that may leave input partially
	// unconsumed in a single call, requiring the same remainder on the
	// next call.
	CapInputSame
	// CapResult marks a filter that yields a Pack at end-of-stream.
	CapResult
)

// Has reports whether c includes every bit of want.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// IoFilter is the uniform streaming contract every codec, chunk, and
// block-hash filter implements. A filter is identified by a stable
// StringId so it can be re-instantiated from a parameter Pack across a
// worker-process boundary (spec.md §9).
type IoFilter interface {
	// Id returns the filter's stable type identifier.
	Id() stringid.StringId

	// Capabilities returns the filter's fixed execution shape.
	Capabilities() Capability

	// ProcessIn is called for CapIn filters. It must fully consume in.
	ProcessIn(in []byte) *errkit.Error

	// ProcessInOut is called for CapInOut filters. in is the unconsumed
	// remainder since the previous call (nil signals a flush once the
	// filter's upstream is exhausted). The filter writes output into out
	// via out.PtrFree()/out.UsedInc and returns how many bytes of in it
	// consumed.
	//
	// inputSame must be true when consumed < len(in): the driver will
	// call again with the same unconsumed remainder once out has been
	// drained downstream. done signals the filter is internally
	// finished and tolerates at most one further flush call with a nil
	// in.
	ProcessInOut(in []byte, out *iobuf.Buffer) (consumed int, inputSame bool, done bool, err *errkit.Error)

	// Result returns the filter's end-of-stream Pack for CapResult
	// filters. Called once, after the filter has reported done (or after
	// upstream EOF for filters with no done signal of their own).
	Result() *pack.Pack

	// Close releases filter resources (codec contexts, digests). Called
	// by the owning FilterGroup on destruction, including on error paths.
	Close() *errkit.Error
}
