package filter

import (
	"io"

	"pgbr/errkit"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// stageBufSize is the default scratch-buffer capacity allocated between
// adjacent CapInOut stages.
const stageBufSize = 64 * 1024

// bufferAdapter is the implicit trailing filter appended to any group whose
// last real filter is not itself an in-out stage producing a plain byte
// stream — it exists purely so callers can always drive a group with
// fixed-size I/O buffers (spec.md §4.4).
type bufferAdapter struct {
	id stringid.StringId
}

func newBufferAdapter() *bufferAdapter {
	id, err := stringid.Encode6("bufadpt")
	if err != nil {
		panic(err)
	}
	return &bufferAdapter{id: id}
}

func (a *bufferAdapter) Id() stringid.StringId       { return a.id }
func (a *bufferAdapter) Capabilities() Capability     { return CapInOut | CapDone }
func (a *bufferAdapter) ProcessIn([]byte) *errkit.Error { return nil }
func (a *bufferAdapter) Result() *pack.Pack           { return nil }
func (a *bufferAdapter) Close() *errkit.Error         { return nil }

func (a *bufferAdapter) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	if in == nil {
		return 0, false, true, nil
	}
	n := len(in)
	if n > out.Remaining() {
		n = out.Remaining()
	}
	out.Cat(in, 0, n)
	return n, n < len(in), false, nil
}

// FilterGroup drives an ordered list of filters as one linear pipeline.
// A group owns every filter in it: Close releases them all, in reverse
// order, even if an earlier filter's Close fails.
type FilterGroup struct {
	filters []IoFilter
	results []*pack.Pack // parallel to filters; set once each reports done
	closed  bool
}

// NewGroup builds a group from filters, appending the implicit trailing
// buffer-adapter filter if the last filter is not itself a plain in-out
// stage (so the group can always be driven with caller-owned buffers).
func NewGroup(filters ...IoFilter) *FilterGroup {
	g := &FilterGroup{filters: append([]IoFilter{}, filters...)}
	if len(g.filters) == 0 || !g.filters[len(g.filters)-1].Capabilities().Has(CapInOut) {
		g.filters = append(g.filters, newBufferAdapter())
	}
	g.results = make([]*pack.Pack, len(g.filters))
	return g
}

// stage holds one filter's state that persists across pumpOnce calls within
// a Run: the unconsumed remainder of a previous input-same call.
type stage struct {
	pending []byte
	done    bool
}

// Run drives the group to completion over src, writing its final
// byte-stream output to dst. It returns the ordered, filter-id-keyed
// results collected at end-of-stream.
func (g *FilterGroup) Run(src io.Reader, dst io.Writer) (map[stringid.StringId]*pack.Pack, *errkit.Error) {
	states := make([]stage, len(g.filters))
	readBuf := make([]byte, stageBufSize)
	outBuf := iobuf.New(stageBufSize)

	upstreamEOF := false
	for {
		if !upstreamEOF && states[0].pending == nil {
			n, rerr := src.Read(readBuf)
			if n > 0 {
				buf := make([]byte, n)
				copy(buf, readBuf[:n])
				states[0].pending = buf
			}
			if rerr == io.EOF {
				upstreamEOF = true
			} else if rerr != nil {
				return nil, errkit.Wrap(errkit.KindFileRead, rerr, "reading pipeline input")
			}
		}

		outBuf.Reset()
		advanced, err := g.pumpOnce(states, upstreamEOF, outBuf)
		if err != nil {
			return nil, err
		}
		if outBuf.Used() > 0 {
			if _, werr := dst.Write(outBuf.PtrConst()); werr != nil {
				return nil, errkit.Wrap(errkit.KindFileWrite, werr, "writing pipeline output")
			}
		}
		if states[len(states)-1].done && len(states[len(states)-1].pending) == 0 {
			break
		}
		if !advanced && outBuf.Used() == 0 {
			// No stage made progress and upstream is exhausted: the
			// pipeline cannot reach end-of-stream on its own, which is a
			// driver bug (a filter failing to honor CapDone), not a
			// user-recoverable condition.
			if upstreamEOF {
				return nil, errkit.New(errkit.KindAssert, "filter group stalled before reaching end-of-stream")
			}
		}
	}

	return g.collectResults(), nil
}

// pumpOnce drives every stage once, left to right, propagating each stage's
// unconsumed output into the next stage's pending input. Every stage (not
// just the head) carries its own leftover-input buffer across rounds, so a
// middle-of-pipeline filter that only partially drains its input on one
// call (input-same) does not lose the remainder. It returns whether any
// stage made forward progress.
func (g *FilterGroup) pumpOnce(states []stage, upstreamEOF bool, finalOut *iobuf.Buffer) (bool, *errkit.Error) {
	advanced := false
	var carry []byte
	haveNewCarry := false

	for i, f := range g.filters {
		// This stage's input is whatever it still owes from a prior
		// round, plus anything the previous stage produced this round.
		in := states[i].pending
		if haveNewCarry && len(carry) > 0 {
			if len(in) == 0 {
				in = carry
			} else {
				in = append(append([]byte{}, in...), carry...)
			}
		}
		upstreamDone := i == 0 || states[i-1].done
		eofHere := upstreamEOF && len(in) == 0 && upstreamDone

		switch {
		case f.Capabilities().Has(CapIn):
			if len(in) > 0 {
				if err := f.ProcessIn(in); err != nil {
					return advanced, err
				}
				advanced = true
			}
			carry = in
			haveNewCarry = true
			states[i].pending = nil
			if eofHere {
				states[i].done = true
			}

		case f.Capabilities().Has(CapInOut):
			if states[i].done {
				// already flushed; nothing more ever flows from this stage
				carry = nil
				haveNewCarry = false
				continue
			}
			if len(in) == 0 && !eofHere {
				// nothing to feed this stage yet and upstream not at EOF
				carry = nil
				haveNewCarry = false
				continue
			}

			var stageOut *iobuf.Buffer
			if i == len(g.filters)-1 {
				stageOut = finalOut
			} else {
				stageOut = iobuf.New(stageBufSize)
			}

			var flushInput []byte
			if len(in) == 0 {
				flushInput = nil // explicit flush call, upstream exhausted
			} else {
				flushInput = in
			}

			consumed, inputSame, done, err := f.ProcessInOut(flushInput, stageOut)
			if err != nil {
				return advanced, err
			}
			if consumed > 0 || stageOut.Used() > 0 || done {
				advanced = true
			}
			if inputSame && consumed < len(in) {
				states[i].pending = in[consumed:]
			} else {
				states[i].pending = nil
			}
			if done {
				states[i].done = true
			}
			carry = stageOut.PtrConst()
			haveNewCarry = true

		default:
			return advanced, errkit.New(errkit.KindAssert, "filter %s has neither CapIn nor CapInOut", f.Id())
		}
	}
	return advanced, nil
}

func (g *FilterGroup) collectResults() map[stringid.StringId]*pack.Pack {
	out := make(map[stringid.StringId]*pack.Pack)
	for i, f := range g.filters {
		if f.Capabilities().Has(CapResult) {
			if r := f.Result(); r != nil {
				g.results[i] = r
				out[f.Id()] = r
			}
		}
	}
	return out
}

// Close releases every filter's resources in reverse order, continuing
// past individual failures so a leaked descriptor in one filter cannot
// hide a leak in another; it returns the first error encountered, if any.
func (g *FilterGroup) Close() *errkit.Error {
	if g.closed {
		return nil
	}
	g.closed = true
	var first *errkit.Error
	for i := len(g.filters) - 1; i >= 0; i-- {
		if err := g.filters[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
