package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Runtime errors surfaced to callers
// ---------------------------------------------------------------------------

var (
	// ErrTracebackLoop is the ValueError raised when setting tb_next would
	// create a cycle.
	ErrTracebackLoop = errors.New("traceback loop detected")

	// ErrStopIteration signals iterator exhaustion.
	ErrStopIteration = errors.New("StopIteration")

	// ErrGeneratorRunning is returned when a running generator is closed.
	ErrGeneratorRunning = errors.New("generator already executing")

	// ErrRecursionDepth is returned by Enter when the call chain exceeds
	// Options.MaxDepth.
	ErrRecursionDepth = errors.New("maximum recursion depth exceeded")

	// ErrCallStackTooShallow is returned by GetFrame for a depth beyond the
	// active call chain.
	ErrCallStackTooShallow = errors.New("call stack is not deep enough")
)

// StopIteration carries the return value of a finished generator.
type StopIteration struct {
	Value Value
}

func (e *StopIteration) Error() string {
	if e.Value == nil {
		return "StopIteration"
	}
	return fmt.Sprintf("StopIteration: %v", e.Value)
}

func (e *StopIteration) Is(target error) bool {
	return target == ErrStopIteration
}

// ---------------------------------------------------------------------------
// Contract violations
// ---------------------------------------------------------------------------

// Violation classifies a broken contract between the interpreter and this
// package. Violations are bugs in the driver, never user errors.
type Violation int

const (
	// IllegalReentry: resuming a generator that is already running.
	IllegalReentry Violation = iota + 1
	// IllegalStateTransition: replacing an attached frame, setting custom
	// locals twice, leaving a frame out of order, and similar.
	IllegalStateTransition
)

func (v Violation) String() string {
	switch v {
	case IllegalReentry:
		return "illegal reentry"
	case IllegalStateTransition:
		return "illegal state transition"
	}
	return fmt.Sprintf("Violation(%d)", int(v))
}

// ProgrammerError is the panic value raised when a contract is violated.
type ProgrammerError struct {
	Kind    Violation
	Message string
}

func (e *ProgrammerError) Error() string {
	return fmt.Sprintf("vm: %s: %s", e.Kind, e.Message)
}

// assertf panics with a *ProgrammerError when cond is false. The check is
// compiled out with the pyframe_noassert build tag.
func assertf(cond bool, kind Violation, format string, args ...any) {
	if assertionsEnabled && !cond {
		panic(&ProgrammerError{Kind: kind, Message: fmt.Sprintf(format, args...)})
	}
}
