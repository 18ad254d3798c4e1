package vm

import "sort"

// ---------------------------------------------------------------------------
// Locations: where an activation is executing
// ---------------------------------------------------------------------------

// SourceSection is a span of source text.
type SourceSection struct {
	Filename    string
	StartLine   int // 1-based
	StartColumn int // 1-based
	EndLine     int
}

// Location is an execution location: a code unit or an AST node.
type Location interface {
	// Name is the function name reported in tracebacks.
	Name() string
	// Section returns the static source span, or nil if unknown.
	Section() *SourceSection
}

// BytecodeLocation is a location with a bytecode offset to line table.
type BytecodeLocation interface {
	Location
	BciToLine(bci int) int
}

// ---------------------------------------------------------------------------
// CodeUnit
// ---------------------------------------------------------------------------

// LineEntry maps the bytecode range starting at Bci to Line. Entries in a
// line table are sorted by Bci.
type LineEntry struct {
	Bci  int
	Line int
}

// CodeUnit is a compiled function body as seen by this package: its
// identity, the offset to line table, and the register layout generators
// need when capturing locals.
type CodeUnit struct {
	FuncName   string
	Qualname   string
	Filename   string
	FirstLine  int
	CodeLength int
	LineTable  []LineEntry
	Varnames   []string // register names, one per local slot
	StackSize  int
}

func (c *CodeUnit) Name() string { return c.FuncName }

func (c *CodeUnit) Section() *SourceSection {
	return &SourceSection{Filename: c.Filename, StartLine: c.FirstLine, StartColumn: 1, EndLine: c.lastLine()}
}

// BciToLine returns the source line for a bytecode index. A negative bci
// (not yet started) maps to the first line.
func (c *CodeUnit) BciToLine(bci int) int {
	if bci < 0 || len(c.LineTable) == 0 {
		return c.FirstLine
	}
	i := sort.Search(len(c.LineTable), func(i int) bool {
		return c.LineTable[i].Bci > bci
	})
	if i == 0 {
		return c.FirstLine
	}
	return c.LineTable[i-1].Line
}

func (c *CodeUnit) lastLine() int {
	last := c.FirstLine
	for _, e := range c.LineTable {
		if e.Line > last {
			last = e.Line
		}
	}
	return last
}

// ---------------------------------------------------------------------------
// Node
// ---------------------------------------------------------------------------

// Node is an AST execution location. Its line is taken from the source
// section of whichever node is active, so it is never cached.
type Node struct {
	FuncName string
	Source   *SourceSection
}

func (n *Node) Name() string            { return n.FuncName }
func (n *Node) Section() *SourceSection { return n.Source }

// filenameOf returns the file of a location, or "<unknown>".
func filenameOf(loc Location) string {
	if loc != nil {
		if sec := loc.Section(); sec != nil && sec.Filename != "" {
			return sec.Filename
		}
	}
	return "<unknown>"
}

// nameOf returns the function name of a location, or "?".
func nameOf(loc Location) string {
	if loc != nil && loc.Name() != "" {
		return loc.Name()
	}
	return "?"
}
