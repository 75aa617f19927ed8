package errkit

import "os"

// Scope is the Go realization of the source's per-task try/catch/finally
// block: a TRY_BEGIN/CATCH/FINALLY/TRY_END sequence becomes a Scope value
// passed down the call chain, rather than implicit thread-local error state.
// A Scope is not safe for concurrent use from more than one goroutine; a
// FilterGroup pump and the worker that owns it share one Scope per task.
type Scope struct {
	cleanup []func()
}

// NewScope allocates an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// OnExit registers a cleanup handler that runs when Try returns, whether the
// body completed normally or raised an error. Handlers run LIFO, mirroring
// nested FINALLY blocks closest to the panic site running first.
func (s *Scope) OnExit(fn func()) {
	s.cleanup = append(s.cleanup, fn)
}

// Throw raises a typed error, unwinding through Try the way a C longjmp
// unwinds to its setjmp point. Throw never returns.
func Throw(kind *Kind, format string, args ...interface{}) {
	panic(New(kind, format, args...))
}

// Rethrow re-raises an already-constructed error, preserving its original
// stack trace rather than capturing a new one at the rethrow site.
func Rethrow(err *Error) {
	panic(err)
}

// Try runs body, recovering any *Error raised via Throw/Rethrow within it
// (including from nested Try calls that chose not to handle it themselves).
// A panic that is not an *Error is re-raised unchanged after cleanup runs,
// consistent with the source's "non-error exceptions are not ours to catch"
// behavior (segfaults, stdlib panics, etc. keep propagating).
//
// Registered OnExit handlers always run before Try returns, in last-in
// first-out order, even when body panics with something Try does not
// recognize as an *Error.
func (s *Scope) Try(body func()) (outcome *Error) {
	defer s.runCleanup()
	defer func() {
		if r := recover(); r != nil {
			if te, ok := r.(*Error); ok {
				outcome = te
				return
			}
			panic(r)
		}
	}()
	body()
	return nil
}

func (s *Scope) runCleanup() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

// Catch inspects err and, if it belongs to kind (or a descendant), invokes
// handler and reports the error as handled by returning nil. Otherwise err
// is returned unchanged for the caller to pass up the chain or re-Catch
// against a different kind. An error of a fatal kind is only caught by a
// fatal kind; against a non-fatal kind it is returned unchanged. A nil err
// passes through as nil.
func Catch(err *Error, kind *Kind, handler func(*Error)) *Error {
	if err == nil {
		return nil
	}
	if !err.kind.Is(kind) || (err.kind.Fatal() && !kind.Fatal()) {
		return err
	}
	handler(err)
	return nil
}

// Terminate ends the process with the exit code associated with err's kind.
// It is the realization of the source's "uncaught error" top-level handler:
// every command entrypoint should route an error escaping its outermost
// Scope.Try through Terminate rather than returning it further.
func Terminate(err *Error) {
	if err == nil {
		os.Exit(0)
	}
	os.Exit(err.Kind().Code())
}
