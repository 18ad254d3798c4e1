package vm

import "fmt"

// ---------------------------------------------------------------------------
// Call targets
// ---------------------------------------------------------------------------

// ResumePoint describes where a suspended generator continues: the
// bytecode index after the yield and the operand stack depth at that
// point.
type ResumePoint struct {
	Bci      int
	StackTop int
}

// Outcome is the result of invoking a target.
type Outcome struct {
	Value   Value
	Yielded bool
	// Resume is meaningful when Yielded is set.
	Resume ResumePoint
}

// Target is an invocable call target.
type Target interface {
	Invoke(ctx *ExecContext, args Arguments) (Outcome, error)
}

// RootTarget is the entry target of a generator body. ResumeAt builds a
// variant of the body that starts executing at a resume point.
type RootTarget interface {
	Target
	ResumeAt(point ResumePoint) Target
	Code() *CodeUnit
}

// YieldFromResolver is optionally implemented by a RootTarget that knows
// where the bytecode keeps the delegation target of a yield-from.
type YieldFromResolver interface {
	YieldFrom(gf *GeneratorFrame, bci, stackTop int) Value
}

// ---------------------------------------------------------------------------
// GeneratorFrame: captured locals and operand stack
// ---------------------------------------------------------------------------

// GeneratorFrame holds the registers and operand stack of a generator body
// between resumptions. It travels in the generator-frame slot of the
// argument vector.
type GeneratorFrame struct {
	*RegisterFile
	Stack []Value
	// Sent is the value passed to the current resumption.
	Sent Value
}

// NewGeneratorFrame sizes the captured state for code.
func NewGeneratorFrame(code *CodeUnit) *GeneratorFrame {
	var names []string
	stack := 0
	if code != nil {
		names = code.Varnames
		stack = code.StackSize
	}
	return &GeneratorFrame{
		RegisterFile: NewRegisterFile(names),
		Stack:        make([]Value, stack),
	}
}

// ---------------------------------------------------------------------------
// Continuation
// ---------------------------------------------------------------------------

type resumeEntry struct {
	point  ResumePoint
	target Target
}

// Continuation is a suspended generator activation. Each resume point
// reached gets its own target, built from the root on first use and
// cached afterwards. Index 0 is the root itself and means "not started".
//
// A continuation carries no lock; the interpreter serialises resumption
// and SetRunning turns double entry into a panic.
type Continuation struct {
	name     string
	qualname string

	root      RootTarget
	entries   map[int]*resumeEntry
	arguments Arguments
	current   int
	finished  bool
	running   bool

	ref Handle
}

// NewContinuation captures a generator body. args must be the vector the
// body was called with; its generator-frame slot is filled here.
func NewContinuation(ctx *ExecContext, name, qualname string, root RootTarget, args Arguments) *Continuation {
	gf := NewGeneratorFrame(root.Code())
	args.SetGeneratorFrame(gf)
	h := ctx.arena.Alloc(NoHandle)
	ref := ctx.arena.Get(h)
	ref.MarkEscaped()
	ref.pinned = true
	args.SetFrameInfo(h)
	return &Continuation{
		name:      name,
		qualname:  qualname,
		root:      root,
		entries:   map[int]*resumeEntry{0: {target: root}},
		arguments: args,
		ref:       h,
	}
}

// HandleResult records a yield: the next resumption continues at
// point.Bci, building its target if that index was not reached before.
func (c *Continuation) HandleResult(point ResumePoint) {
	c.current = point.Bci
	if _, ok := c.entries[point.Bci]; !ok {
		c.entries[point.Bci] = &resumeEntry{point: point, target: c.root.ResumeAt(point)}
		log.Debugf("generator %s: resume target at bci %d (stack %d)", c.qualname, point.Bci, point.StackTop)
	}
}

// CurrentTarget returns the target the next resumption invokes.
func (c *Continuation) CurrentTarget() Target {
	return c.entries[c.current].target
}

// CurrentResumePoint returns the descriptor of the current target.
func (c *Continuation) CurrentResumePoint() ResumePoint {
	return c.entries[c.current].point
}

// ResumePoints returns how many distinct entry points have been built,
// including the root.
func (c *Continuation) ResumePoints() int { return len(c.entries) }

// IsStarted reports a generator that yielded at least once and is not on
// the stack right now.
func (c *Continuation) IsStarted() bool {
	return c.current != 0 && !c.running
}

func (c *Continuation) IsFinished() bool { return c.finished }

func (c *Continuation) MarkFinished() { c.finished = true }

func (c *Continuation) IsRunning() bool { return c.running }

// SetRunning flips the running flag. Setting it while already running is
// an IllegalReentry violation.
func (c *Continuation) SetRunning(running bool) {
	assertf(!running || !c.running, IllegalReentry,
		"attempted to set already running generator %s as running", c.qualname)
	c.running = running
}

// Bci is the bytecode position reported as gi_frame.f_lasti: NoLasti
// before the first yield, the code length once finished.
func (c *Continuation) Bci() int {
	switch {
	case !c.IsStarted():
		return NoLasti
	case c.finished:
		if code := c.root.Code(); code != nil {
			return code.CodeLength
		}
		return 0
	}
	return c.entries[c.current].point.Bci
}

// YieldFrom returns the delegation target of a suspended yield-from, or
// nil when running, finished, or not delegating.
func (c *Continuation) YieldFrom() Value {
	if c.running || c.finished {
		return nil
	}
	r, ok := c.root.(YieldFromResolver)
	if !ok {
		return nil
	}
	return r.YieldFrom(c.arguments.GeneratorFrame(), c.Bci(), c.CurrentResumePoint().StackTop)
}

func (c *Continuation) Arguments() Arguments { return c.arguments }

func (c *Continuation) GeneratorFrame() *GeneratorFrame { return c.arguments.GeneratorFrame() }

func (c *Continuation) Name() string { return c.name }

func (c *Continuation) SetName(name string) { c.name = name }

func (c *Continuation) Qualname() string { return c.qualname }

func (c *Continuation) SetQualname(q string) { c.qualname = q }

// Ref returns the handle of the generator's frame reference.
func (c *Continuation) Ref() Handle { return c.ref }

func (c *Continuation) String() string {
	return fmt.Sprintf("<generator object %s at %p>", c.qualname, c)
}

// ---------------------------------------------------------------------------
// Driving
// ---------------------------------------------------------------------------

// Resume runs the generator until it yields or finishes. A yield returns
// the yielded value. Returning from the body finishes the generator and
// reports a *StopIteration carrying the return value; a raised error also
// finishes it and is passed through.
func (c *Continuation) Resume(ctx *ExecContext, sent Value) (Value, error) {
	if c.finished {
		return nil, &StopIteration{}
	}
	c.SetRunning(true)
	defer c.SetRunning(false)

	c.arguments.GeneratorFrame().Sent = sent
	out, err := c.CurrentTarget().Invoke(ctx, c.arguments)
	if err != nil {
		c.finish(ctx)
		return nil, err
	}
	if !out.Yielded {
		c.finish(ctx)
		return nil, &StopIteration{Value: out.Value}
	}
	c.HandleResult(out.Resume)
	if f := c.attachedFrame(ctx); f != nil {
		f.SetLasti(out.Resume.Bci)
	}
	return out.Value, nil
}

// Close finishes a suspended or unstarted generator.
func (c *Continuation) Close(ctx *ExecContext) error {
	if c.running {
		return ErrGeneratorRunning
	}
	c.finish(ctx)
	return nil
}

func (c *Continuation) finish(ctx *ExecContext) {
	c.MarkFinished()
	if f := c.attachedFrame(ctx); f != nil {
		syncLocals(f, nil)
	}
	ctx.Release(c.ref)
}

func (c *Continuation) attachedFrame(ctx *ExecContext) *Frame {
	if ref := ctx.arena.Get(c.ref); ref != nil {
		return ref.Frame()
	}
	return nil
}

// Frame returns the generator's frame (gi_frame), materializing it from
// the captured state. It returns nil once the generator finished.
func (c *Continuation) Frame(ctx *ExecContext) *Frame {
	if c.finished {
		return nil
	}
	var loc Location
	if code := c.root.Code(); code != nil {
		loc = code
	}
	data := &FrameData{
		Args:     c.arguments,
		Regs:     c.arguments.GeneratorFrame(),
		Bci:      c.Bci(),
		Location: loc,
	}
	f := Materialize(ctx, c.ref, data, loc, SyncLocals())
	f.SetLasti(c.Bci())
	return f
}
