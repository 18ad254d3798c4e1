package vm

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Raw unwind data
// ---------------------------------------------------------------------------

// StackElement is one entry of the host's unwind trace.
type StackElement struct {
	// Location is where the activation was executing; nil for internal
	// plumbing frames.
	Location Location
	// Target identifies the call target; the catch boundary is matched
	// against it.
	Target any
	// Data is the captured activation.
	Data *FrameData
	// Ref is the activation's frame reference, if it registered one.
	Ref Handle
}

// Unwind is the raw data captured when an exception is caught. Elements
// are ordered innermost call first, as the unwinder produces them.
type Unwind struct {
	Elements []StackElement
	// HideLocation drops the first element (the raising site).
	HideLocation bool
	// Boundary reports the element at which the exception was caught.
	// Consumption stops there so frames of the still-active stack below
	// the catch point never leak in.
	Boundary func(StackElement) bool
	// Wanted reports elements that are real user-level frames. When nil,
	// elements with a location are wanted.
	Wanted func(StackElement) bool

	// CatchingFrameWanted places the catching frame itself at the head of
	// the chain, located by CatchLocation and CatchBci.
	CatchingFrameWanted bool
	CatchLocation       BytecodeLocation
	CatchBci            int
	CatchRef            Handle

	// NextChain is the already built traceback of an earlier segment; it
	// becomes the tail of this one.
	NextChain *Traceback
}

func (u *Unwind) isBoundary(el StackElement) bool {
	return u.Boundary != nil && u.Boundary(el)
}

func (u *Unwind) wanted(el StackElement) bool {
	if u.Wanted != nil {
		return u.Wanted(el)
	}
	return el.Location != nil
}

// ---------------------------------------------------------------------------
// Traceback
// ---------------------------------------------------------------------------

// Traceback is one node of a traceback chain. The head is the frame where
// the exception was caught; Next walks toward the raising frame, which is
// last.
//
// A node built from an Unwind stays lazy until one of Frame, Lineno, Lasti,
// Next or SetNext needs it. Materialization happens once; concurrent
// callers are serialised and the result is published atomically.
type Traceback struct {
	mu           sync.Mutex
	materialized atomic.Bool

	frame    *Frame
	frameRef Handle
	lineno   int
	lasti    int
	next     *Traceback
	lazy     *Unwind
}

// NewTraceback creates a lazy traceback for u. The catching reference and
// every element reference that is still executing are marked escaped, so
// their frames are kept when the calls return.
func NewTraceback(ctx *ExecContext, u *Unwind) *Traceback {
	if ref := ctx.arena.Get(u.CatchRef); ref != nil {
		ref.MarkEscaped()
	}
	for _, el := range u.Elements {
		if ref := ctx.arena.Get(el.Ref); ref != nil && ref.live != nil {
			ref.MarkEscaped()
		}
	}
	return &Traceback{
		frameRef: u.CatchRef,
		lineno:   NoLine,
		lasti:    u.CatchBci,
		lazy:     u,
	}
}

// NewTracebackNode creates a materialized node, as the traceback type's
// constructor does.
func NewTracebackNode(frame *Frame, lineno, lasti int, next *Traceback) *Traceback {
	tb := &Traceback{
		frame:  frame,
		lineno: lineno,
		lasti:  lasti,
		next:   next,
	}
	if frame != nil {
		tb.frameRef = frame.Ref()
	}
	tb.materialized.Store(true)
	return tb
}

// IsMaterialized reports whether the raw unwind data was converted.
func (tb *Traceback) IsMaterialized() bool { return tb.materialized.Load() }

// Materialize converts the raw unwind data into frames and links. It is a
// no-op on a materialized node. When the catching frame is not wanted and
// no element survives the filters, the node stays an empty head: no frame,
// NoLine, no next.
func (tb *Traceback) Materialize(ctx *ExecContext) {
	if tb.materialized.Load() {
		return
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.materialized.Load() {
		return
	}
	u := tb.lazy
	if u == nil {
		tb.materialized.Store(true)
		return
	}

	next := u.NextChain
	skipFirst := u.HideLocation
	built := 0
	for _, el := range u.Elements {
		if u.isBoundary(el) {
			break
		}
		if skipFirst {
			skipFirst = false
			continue
		}
		if !u.wanted(el) {
			continue
		}
		f := materializeElement(ctx, el)
		next = NewTracebackNode(f, f.Line(), f.Lasti(), next)
		built++
	}

	if u.CatchingFrameWanted {
		if u.CatchLocation != nil {
			tb.lineno = u.CatchLocation.BciToLine(u.CatchBci)
		}
		tb.next = next
	} else if next != nil {
		tb.lineno = next.lineno
		tb.lasti = next.lasti
		tb.frame = next.frame
		tb.frameRef = next.frameRef
		tb.next = next.next
	} else {
		tb.lineno = NoLine
		tb.frameRef = NoHandle
	}
	log.Debugf("materialized traceback: %d frames from %d unwind elements", built, len(u.Elements))
	tb.materialized.Store(true)
}

// materializeElement creates the frame of one unwind element and refreshes
// its locals from the captured data.
func materializeElement(ctx *ExecContext, el StackElement) *Frame {
	location := el.Location
	if el.Data != nil {
		if bl, ok := el.Data.Location.(BytecodeLocation); ok {
			location = bl
		}
	}
	if ref := ctx.arena.Get(el.Ref); ref != nil {
		return Materialize(ctx, el.Ref, el.Data, location, MarkEscaped(), SyncLocals())
	}
	return newDetachedFrame(location, el.Data)
}

// catchingFrameVisible reports whether the node's own frame reference
// supplies its frame.
func (tb *Traceback) catchingFrameVisible() bool {
	return tb.lazy == nil || tb.lazy.CatchingFrameWanted
}

// Frame returns tb_frame. A visible catching frame is taken from its
// reference, materializing it from the live activation if it is still on
// the stack; otherwise the raw unwind data is materialized.
func (tb *Traceback) Frame(ctx *ExecContext) *Frame {
	tb.mu.Lock()
	if tb.frame != nil {
		f := tb.frame
		tb.mu.Unlock()
		return f
	}
	visible := tb.catchingFrameVisible()
	h := tb.frameRef
	tb.mu.Unlock()

	if visible {
		if ref := ctx.arena.Get(h); ref != nil {
			f := ref.Frame()
			if f == nil || !f.IsAssociated() {
				f = ctx.materializeRef(h, ref)
			}
			tb.mu.Lock()
			tb.frame = f
			tb.mu.Unlock()
			return f
		}
	}
	tb.Materialize(ctx)
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.frame
}

// Lineno returns tb_lineno.
func (tb *Traceback) Lineno(ctx *ExecContext) int {
	tb.Materialize(ctx)
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lineno
}

// Lasti returns tb_lasti.
func (tb *Traceback) Lasti(ctx *ExecContext) int {
	tb.Materialize(ctx)
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lasti
}

// Next returns tb_next, or nil at the end of the chain.
func (tb *Traceback) Next(ctx *ExecContext) *Traceback {
	tb.Materialize(ctx)
	return tb.peekNext()
}

func (tb *Traceback) peekNext() *Traceback {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.next
}

// peekTail returns the node tb links to without materializing it. A lazy
// node links to its NextChain; the nodes it builds in front of that are
// new and cannot already be part of another chain.
func (tb *Traceback) peekTail() *Traceback {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.materialized.Load() || tb.lazy == nil {
		return tb.next
	}
	return tb.lazy.NextChain
}

// SetNext replaces tb_next. It fails with ErrTracebackLoop when tb is
// reachable from next, lazy links included, leaving both chains untouched.
// The lazy part of tb is materialized first so it cannot later overwrite
// the new link.
func (tb *Traceback) SetNext(ctx *ExecContext, next *Traceback) error {
	for t := next; t != nil; t = t.peekTail() {
		if t == tb {
			return ErrTracebackLoop
		}
	}
	tb.Materialize(ctx)
	tb.mu.Lock()
	tb.next = next
	tb.mu.Unlock()
	return nil
}

// ClearNext sets tb_next to None.
func (tb *Traceback) ClearNext(ctx *ExecContext) {
	tb.Materialize(ctx)
	tb.mu.Lock()
	tb.next = nil
	tb.mu.Unlock()
}

// Walk calls fn for tb and every following node until fn returns false.
func (tb *Traceback) Walk(ctx *ExecContext, fn func(*Traceback) bool) {
	for t := tb; t != nil; t = t.Next(ctx) {
		if !fn(t) {
			return
		}
	}
}

// Len returns the number of nodes in the chain starting at tb.
func (tb *Traceback) Len(ctx *ExecContext) int {
	n := 0
	tb.Walk(ctx, func(*Traceback) bool {
		n++
		return true
	})
	return n
}

// Dir lists the attributes of a traceback object.
func (tb *Traceback) Dir() []string {
	return []string{"tb_frame", "tb_lasti", "tb_lineno", "tb_next"}
}
