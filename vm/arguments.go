package vm

// Value is any runtime value. The object model is owned by the interpreter.
type Value = any

// Globals is the module namespace carried in slot 0 of every argument
// vector.
type Globals map[string]Value

// ---------------------------------------------------------------------------
// Arguments: the per-call argument vector
// ---------------------------------------------------------------------------

// Arguments is the vector handed to a call target. The first slots are
// reserved; user arguments follow.
type Arguments []Value

const (
	ArgGlobals        = 0 // Globals
	ArgFrameInfo      = 1 // Handle of the call's Reference
	ArgGeneratorFrame = 2 // *GeneratorFrame for generator bodies, nil otherwise
	ArgUserStart      = 3
)

// NewArguments creates a vector with the reserved slots initialised.
func NewArguments(globals Globals, user ...Value) Arguments {
	args := make(Arguments, ArgUserStart+len(user))
	args[ArgGlobals] = globals
	args[ArgFrameInfo] = NoHandle
	copy(args[ArgUserStart:], user)
	return args
}

func (a Arguments) Globals() Globals {
	g, _ := a[ArgGlobals].(Globals)
	return g
}

func (a Arguments) SetGlobals(g Globals) { a[ArgGlobals] = g }

func (a Arguments) FrameInfo() Handle {
	h, _ := a[ArgFrameInfo].(Handle)
	return h
}

func (a Arguments) SetFrameInfo(h Handle) { a[ArgFrameInfo] = h }

// GeneratorFrame returns the captured generator state, or nil for a
// regular call.
func (a Arguments) GeneratorFrame() *GeneratorFrame {
	gf, _ := a[ArgGeneratorFrame].(*GeneratorFrame)
	return gf
}

func (a Arguments) SetGeneratorFrame(gf *GeneratorFrame) { a[ArgGeneratorFrame] = gf }

// IsGeneratorFrame reports whether the vector belongs to a generator body.
func (a Arguments) IsGeneratorFrame() bool { return a.GeneratorFrame() != nil }

// User returns the user arguments.
func (a Arguments) User() []Value { return a[ArgUserStart:] }

// ---------------------------------------------------------------------------
// Registers: live local slots of an activation
// ---------------------------------------------------------------------------

// Registers exposes the interpreter's local slots for locals
// reconciliation.
type Registers interface {
	NumSlots() int
	// SlotName returns the local name bound to slot i, or "" for
	// anonymous slots.
	SlotName(i int) string
	// Read returns the value of slot i and whether it is bound.
	Read(i int) (Value, bool)
}

// RegisterFile is a simple Registers implementation.
type RegisterFile struct {
	Names  []string
	Values []Value
	Bound  []bool
}

// NewRegisterFile creates unbound slots for the given names.
func NewRegisterFile(names []string) *RegisterFile {
	return &RegisterFile{
		Names:  names,
		Values: make([]Value, len(names)),
		Bound:  make([]bool, len(names)),
	}
}

func (r *RegisterFile) NumSlots() int { return len(r.Values) }

func (r *RegisterFile) SlotName(i int) string {
	if i < len(r.Names) {
		return r.Names[i]
	}
	return ""
}

func (r *RegisterFile) Read(i int) (Value, bool) {
	return r.Values[i], r.Bound[i]
}

// Store binds slot i.
func (r *RegisterFile) Store(i int, v Value) {
	r.Values[i] = v
	r.Bound[i] = true
}

// Delete unbinds slot i.
func (r *RegisterFile) Delete(i int) {
	r.Values[i] = nil
	r.Bound[i] = false
}

// Lookup returns the slot index for a name, or -1.
func (r *RegisterFile) Lookup(name string) int {
	for i, n := range r.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// FrameData: the lightweight activation
// ---------------------------------------------------------------------------

// FrameData is the interpreter-owned state of one call. It is never
// copied by this package; a Frame snapshots from it on materialization.
type FrameData struct {
	Args     Arguments
	Regs     Registers
	Bci      int
	Location Location
}
