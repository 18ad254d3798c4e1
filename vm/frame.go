package vm

import "fmt"

const (
	// LineUnknown means the line must be computed from the location.
	LineUnknown = -2
	// NoLine is reported when no source information exists.
	NoLine = -1
	// NoLasti means no bytecode position has been recorded yet.
	NoLasti = -1
)

// ---------------------------------------------------------------------------
// Frame: materialized activation record
// ---------------------------------------------------------------------------

// Frame is the introspectable record of an activation, the object user
// code sees as a frame. A frame is either associated (it has a Reference)
// or incomplete (no location and no reference; it only carries custom
// locals until the activation materializes).
type Frame struct {
	arguments    Arguments
	locals       map[string]Value
	customLocals bool

	line     int
	lasti    int
	lockLine bool

	location Location
	ref      Handle
	backref  Handle

	localTrace Value
	traceLine  bool
}

func newFrame(ref Handle, location Location, locals map[string]Value, custom bool) *Frame {
	return &Frame{
		locals:       locals,
		customLocals: custom,
		line:         LineUnknown,
		lasti:        NoLasti,
		location:     location,
		ref:          ref,
		traceLine:    true,
	}
}

func newIncompleteFrame(locals map[string]Value) *Frame {
	return newFrame(NoHandle, nil, locals, true)
}

// NewFrameForCode builds a free-standing frame for code, as the frame
// constructor does. The frame gets its own escaped reference in ctx.
func NewFrameForCode(ctx *ExecContext, code *CodeUnit, globals Globals, locals map[string]Value) *Frame {
	h := ctx.arena.Alloc(NoHandle)
	ref := ctx.arena.Get(h)
	var loc Location
	if code != nil {
		loc = code
	}
	f := newFrame(h, loc, locals, locals != nil)
	f.arguments = NewArguments(globals)
	f.arguments.SetFrameInfo(h)
	if loc == nil {
		f.line = NoLine
	}
	ref.SetFrame(f)
	ref.MarkEscaped()
	return f
}

// Line returns the current line. While the line is unknown it is resolved
// from the location: bytecode locations through their line table, AST
// nodes through their source section. Neither result is cached since the
// position keeps moving.
func (f *Frame) Line() int {
	if f.line == LineUnknown {
		switch loc := f.location.(type) {
		case nil:
			f.line = NoLine
		case BytecodeLocation:
			return loc.BciToLine(f.lasti)
		default:
			sec := loc.Section()
			if sec == nil {
				return NoLine
			}
			return sec.StartLine
		}
	}
	return f.line
}

// SetLine records the line unless it is locked.
func (f *Frame) SetLine(line int) {
	if f.lockLine {
		return
	}
	f.line = line
}

// SetLineLock pins the reported line while trace events are delivered.
func (f *Frame) SetLineLock(line int) {
	f.line = line
	f.lockLine = true
}

func (f *Frame) LineUnlock() { f.lockLine = false }

func (f *Frame) IsLineLocked() bool { return f.lockLine }

// Lasti is the last bytecode index, or NoLasti.
func (f *Frame) Lasti() int { return f.lasti }

func (f *Frame) SetLasti(lasti int) { f.lasti = lasti }

func (f *Frame) Location() Location { return f.location }

func (f *Frame) SetLocation(loc Location) { f.location = loc }

// Code returns the code unit being executed, or nil for AST locations.
func (f *Frame) Code() *CodeUnit {
	c, _ := f.location.(*CodeUnit)
	return c
}

func (f *Frame) Arguments() Arguments { return f.arguments }

func (f *Frame) SetArguments(args Arguments) { f.arguments = args }

// Globals returns slot 0 of the arguments, or nil for incomplete frames.
func (f *Frame) Globals() Globals {
	if f.arguments == nil {
		return nil
	}
	return f.arguments.Globals()
}

// LocalsDict returns the stored locals mapping without reconciling it with
// live registers. Use ExecContext.Locals for the reconciled view.
func (f *Frame) LocalsDict() map[string]Value { return f.locals }

func (f *Frame) HasCustomLocals() bool { return f.customLocals }

// Ref returns the handle of the reference this frame belongs to.
func (f *Frame) Ref() Handle { return f.ref }

// Backref returns the caller's handle, recorded when the frame escaped.
func (f *Frame) Backref() Handle { return f.backref }

// SetBackref records the caller. It may be set again only to the same
// handle.
func (f *Frame) SetBackref(b Handle) {
	assertf(f.backref == NoHandle || f.backref == b, IllegalStateTransition,
		"backref already set to %s, not %s", f.backref, b)
	f.backref = b
}

// IsIncomplete reports a frame that only carries custom locals.
func (f *Frame) IsIncomplete() bool {
	return f.location == nil && f.ref == NoHandle
}

// IsAssociated reports a frame that belongs to a reference.
func (f *Frame) IsAssociated() bool { return f.ref != NoHandle }

func (f *Frame) LocalTrace() Value { return f.localTrace }

func (f *Frame) SetLocalTrace(fn Value) { f.localTrace = fn }

// TraceLine reports whether line events are delivered to the local trace
// function.
func (f *Frame) TraceLine() bool { return f.traceLine }

func (f *Frame) SetTraceLine(on bool) { f.traceLine = on }

func (f *Frame) String() string {
	return fmt.Sprintf("<frame at %s, file '%s', line %d, code %s>",
		f.ref, filenameOf(f.location), f.Line(), nameOf(f.location))
}
