package vm

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Handle
// ---------------------------------------------------------------------------

// Handle addresses a Reference in a FrameArena. The low 32 bits hold the
// slot index plus one, the high 32 bits the slot generation, so a handle to
// a recycled slot goes stale instead of aliasing the new occupant.
type Handle uint64

// NoHandle is the zero handle; it never resolves.
const NoHandle Handle = 0

func makeHandle(index int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(uint32(index+1)))
}

func (h Handle) index() int         { return int(uint32(h)) - 1 }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

func (h Handle) String() string {
	if h == NoHandle {
		return "frame#none"
	}
	return fmt.Sprintf("frame#%d.%d", h.index(), h.generation())
}

// ---------------------------------------------------------------------------
// Reference: indirection cell for lazy frame materialization
// ---------------------------------------------------------------------------

// Reference stands for one call in the chain. It carries the materialized
// Frame once somebody asked for it, the live FrameData while the call is
// still executing, and the caller's handle.
type Reference struct {
	frame    atomic.Pointer[Frame]
	callNode Location
	escaped  bool
	caller   Handle
	live     *FrameData
	// pinned references belong to a generator and are reused by every
	// resumption of its body instead of being allocated per call.
	pinned bool

	gen   uint32
	inUse bool
}

// Frame returns the materialized frame, or nil.
func (r *Reference) Frame() *Frame { return r.frame.Load() }

// SetFrame attaches f. A complete frame, once attached, can only be
// replaced by itself.
func (r *Reference) SetFrame(f *Frame) {
	old := r.frame.Load()
	assertf(old == nil || old.IsIncomplete() || old == f, IllegalStateTransition,
		"cannot change the escaped frame")
	r.frame.Store(f)
}

// SetCustomLocals attaches an incomplete frame carrying caller-supplied
// locals, as exec/eval with an explicit mapping do.
func (r *Reference) SetCustomLocals(locals map[string]Value) {
	assertf(locals != nil, IllegalStateTransition, "cannot set nil custom locals")
	assertf(r.frame.Load() == nil, IllegalStateTransition,
		"cannot set custom locals when a frame is already attached")
	r.frame.Store(newIncompleteFrame(locals))
}

// SetBackref records the caller handle on the attached frame.
func (r *Reference) SetBackref(b Handle) {
	f := r.frame.Load()
	assertf(f != nil, IllegalStateTransition, "setBackref requires an escaped frame")
	if f != nil {
		f.SetBackref(b)
	}
}

// MarkEscaped flags the frame as observable off the call stack. An escaped
// reference materializes its frame when the call returns.
func (r *Reference) MarkEscaped() { r.escaped = true }

func (r *Reference) IsEscaped() bool { return r.escaped }

// IsPinned reports a generator-owned reference.
func (r *Reference) IsPinned() bool { return r.pinned }

// CallNode is the location of the last call made from this activation.
func (r *Reference) CallNode() Location { return r.callNode }

func (r *Reference) SetCallNode(n Location) { r.callNode = n }

// Caller returns the handle of the calling activation.
func (r *Reference) Caller() Handle { return r.caller }

// Live returns the interpreter data while the call is executing, or nil
// after it returned.
func (r *Reference) Live() *FrameData { return r.live }

// ---------------------------------------------------------------------------
// FrameArena
// ---------------------------------------------------------------------------

// FrameArena owns the references of one execution context. Records are
// addressed by Handle; each holds its caller's handle, so the chain has no
// owning pointers between records.
//
// The arena is confined to the goroutine driving its ExecContext.
type FrameArena struct {
	records []*Reference
	free    []int
	live    int
}

// NewFrameArena creates an empty arena.
func NewFrameArena() *FrameArena {
	return &FrameArena{records: make([]*Reference, 0, 64)}
}

// Alloc creates a reference whose caller is caller.
func (a *FrameArena) Alloc(caller Handle) Handle {
	var idx int
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = len(a.records)
		a.records = append(a.records, &Reference{})
	}
	old := a.records[idx]
	ref := &Reference{caller: caller, gen: old.gen + 1, inUse: true}
	a.records[idx] = ref
	a.live++
	return makeHandle(idx, ref.gen)
}

// Get resolves h, returning nil for NoHandle and stale handles.
func (a *FrameArena) Get(h Handle) *Reference {
	idx := h.index()
	if idx < 0 || idx >= len(a.records) {
		return nil
	}
	ref := a.records[idx]
	if !ref.inUse || ref.gen != h.generation() {
		return nil
	}
	return ref
}

// Release frees the slot addressed by h. Frames already handed out stay
// valid; only the handle goes stale.
func (a *FrameArena) Release(h Handle) {
	ref := a.Get(h)
	if ref == nil {
		return
	}
	idx := h.index()
	a.records[idx] = &Reference{gen: ref.gen}
	a.free = append(a.free, idx)
	a.live--
}

// Len returns the number of live references.
func (a *FrameArena) Len() int { return a.live }
