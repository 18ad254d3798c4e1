package vm

import (
	"github.com/chazu/pyframe/pkg/sequence"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("pyframe.vm")

// Options tunes an ExecContext.
type Options struct {
	// InitialCapacity is the backing capacity of sequences created
	// through NewStorage.
	InitialCapacity int
	// TracebackLimit bounds formatted tracebacks; 0 means unlimited.
	TracebackLimit int
	// MaxDepth bounds the call chain; 0 means unlimited.
	MaxDepth int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		InitialCapacity: 8,
		TracebackLimit:  0,
		MaxDepth:        1000,
	}
}

// ---------------------------------------------------------------------------
// ExecContext: explicit per-thread execution state
// ---------------------------------------------------------------------------

// ExecContext is the state of one logical thread of execution: its frame
// arena, the top of its call chain, and its globals. Every entry point
// takes the context explicitly; nothing here is process-wide.
//
// An ExecContext is driven by one goroutine at a time.
type ExecContext struct {
	arena   *FrameArena
	top     Handle
	depth   int
	globals Globals
	opts    Options
}

// NewExecContext creates a context with an empty call chain.
func NewExecContext(globals Globals, opts Options) *ExecContext {
	if globals == nil {
		globals = Globals{}
	}
	return &ExecContext{
		arena:   NewFrameArena(),
		globals: globals,
		opts:    opts,
	}
}

func (c *ExecContext) Arena() *FrameArena { return c.arena }
func (c *ExecContext) Globals() Globals   { return c.globals }
func (c *ExecContext) Options() Options   { return c.opts }

// Top returns the handle of the innermost active call.
func (c *ExecContext) Top() Handle { return c.top }

// Depth returns the number of active calls.
func (c *ExecContext) Depth() int { return c.depth }

// Reference resolves h in this context's arena.
func (c *ExecContext) Reference(h Handle) *Reference { return c.arena.Get(h) }

// NewStorage creates sequence storage sized by Options.InitialCapacity.
func (c *ExecContext) NewStorage(values []any) sequence.Storage {
	capacity := c.opts.InitialCapacity
	if capacity < len(values) {
		capacity = len(values)
	}
	return sequence.CreateStorageCapacity(values, capacity)
}

// ---------------------------------------------------------------------------
// Call chain
// ---------------------------------------------------------------------------

// Enter pushes a call. data stays owned by the interpreter; the reference
// only points at it until Leave. When the frame-info slot of data.Args holds
// a generator's reference, that reference is pushed again so every
// resumption shares one frame. Otherwise a new reference is allocated and
// stored in the slot unless the slot already resolves.
func (c *ExecContext) Enter(data *FrameData, callNode Location) (Handle, error) {
	if c.opts.MaxDepth > 0 && c.depth >= c.opts.MaxDepth {
		return NoHandle, ErrRecursionDepth
	}
	if caller := c.arena.Get(c.top); caller != nil {
		caller.SetCallNode(callNode)
	}
	var slot *Reference
	if data.Args != nil {
		slot = c.arena.Get(data.Args.FrameInfo())
	}
	if slot != nil && slot.pinned {
		assertf(slot.live == nil, IllegalReentry, "generator reference %s is already executing", data.Args.FrameInfo())
		if slot.live == nil {
			h := data.Args.FrameInfo()
			slot.live = data
			slot.caller = c.top
			c.top = h
			c.depth++
			return h, nil
		}
	}
	h := c.arena.Alloc(c.top)
	ref := c.arena.Get(h)
	ref.live = data
	if data.Args != nil && slot == nil {
		data.Args.SetFrameInfo(h)
	}
	c.top = h
	c.depth++
	return h, nil
}

// Leave pops the call h, which must be the top of the chain. An escaped
// call materializes its frame from the final data and keeps its reference
// alive; it also marks its caller escaped so the back chain of the
// surviving frame can still be materialized. Other references are
// recycled. A generator's reference only detaches from the caller; its
// frame keeps its own state until the next resumption.
func (c *ExecContext) Leave(h Handle) {
	assertf(h == c.top, IllegalStateTransition, "leaving %s while %s is on top", h, c.top)
	ref := c.arena.Get(h)
	if ref == nil {
		return
	}
	c.top = ref.caller
	c.depth--

	if ref.pinned {
		if f := ref.Frame(); f != nil && ref.live != nil {
			f.SetLasti(ref.live.Bci)
			syncLocals(f, ref.live.Regs)
		}
		ref.live = nil
		ref.caller = NoHandle
		return
	}
	if !ref.escaped {
		c.arena.Release(h)
		return
	}
	data := ref.live
	if data != nil {
		f := ref.Frame()
		if f == nil || !f.IsAssociated() {
			f = Materialize(c, h, data, data.Location)
		}
		f.SetLasti(data.Bci)
		syncLocals(f, data.Regs)
		ref.live = nil
	}
	if caller := c.arena.Get(ref.caller); caller != nil {
		caller.MarkEscaped()
		if f := ref.Frame(); f != nil && f.Backref() == NoHandle {
			f.SetBackref(ref.caller)
		}
	}
	log.Debugf("frame %s escaped on return", h)
}

// Release frees an escaped reference whose frame is no longer needed by
// its owner (a generator or a stored traceback).
func (c *ExecContext) Release(h Handle) {
	if h == c.top {
		return
	}
	c.arena.Release(h)
}

// Current returns the data of the innermost active call, or nil.
func (c *ExecContext) Current() *FrameData {
	if ref := c.arena.Get(c.top); ref != nil {
		return ref.live
	}
	return nil
}

// GetFrame returns the frame depth calls below the top, as sys._getframe
// does. The frame and its back link escape.
func (c *ExecContext) GetFrame(depth int) (*Frame, error) {
	h := c.top
	for i := 0; i < depth && h != NoHandle; i++ {
		ref := c.arena.Get(h)
		if ref == nil {
			break
		}
		h = ref.caller
	}
	ref := c.arena.Get(h)
	if ref == nil {
		return nil, ErrCallStackTooShallow
	}
	return c.materializeRef(h, ref), nil
}

// materializeRef materializes an arbitrary reference of this context,
// live or returned, and marks it escaped.
func (c *ExecContext) materializeRef(h Handle, ref *Reference) *Frame {
	if f := ref.Frame(); f != nil && f.IsAssociated() {
		ref.MarkEscaped()
		if ref.live != nil {
			f.SetLasti(ref.live.Bci)
		}
		return f
	}
	var loc Location
	if ref.live != nil {
		loc = ref.live.Location
	}
	f := Materialize(c, h, ref.live, loc, MarkEscaped())
	if !ref.pinned && ref.caller != NoHandle && f.Backref() == NoHandle {
		f.SetBackref(ref.caller)
	}
	return f
}

// Back returns the frame of f's caller (f_back), or nil at the bottom of
// the chain and for frames whose caller reference was released.
func (c *ExecContext) Back(f *Frame) *Frame {
	b := f.Backref()
	if b == NoHandle {
		if ref := c.arena.Get(f.ref); ref != nil {
			b = ref.caller
		}
	}
	ref := c.arena.Get(b)
	if ref == nil {
		return nil
	}
	return c.materializeRef(b, ref)
}

// Locals returns the reconciled locals of f. While f's call is executing
// the live registers are merged in.
func (c *ExecContext) Locals(f *Frame) map[string]Value {
	var regs Registers
	if ref := c.arena.Get(f.ref); ref != nil && ref.live != nil {
		regs = ref.live.Regs
	}
	return GetLocals(f, regs)
}
