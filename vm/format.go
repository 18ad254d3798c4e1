package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Traceback summaries and formatting
// ---------------------------------------------------------------------------

// FrameSummary is the printable state of one traceback entry.
type FrameSummary struct {
	Filename string
	Name     string
	Line     int
	Lasti    int
	// Locals is the reconciled locals mapping of the frame, or nil.
	Locals map[string]Value
}

// StackSummary lists traceback entries from the catching frame to the
// raising frame.
type StackSummary []FrameSummary

// Summarize walks tb and collects at most limit entries; limit <= 0 means
// all of them. When the chain is longer, the innermost entries are kept,
// matching how tracebacks are trimmed on print.
func Summarize(ctx *ExecContext, tb *Traceback, limit int) StackSummary {
	var out StackSummary
	tb.Walk(ctx, func(t *Traceback) bool {
		s := FrameSummary{
			Line:     t.Lineno(ctx),
			Lasti:    t.Lasti(ctx),
			Filename: "<unknown>",
			Name:     "?",
		}
		if f := t.Frame(ctx); f != nil {
			s.Filename = filenameOf(f.Location())
			s.Name = nameOf(f.Location())
			s.Locals = ctx.Locals(f)
		}
		out = append(out, s)
		return true
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// String renders one entry in the "File ..., line N, in name" form.
func (s FrameSummary) String() string {
	if s.Line < 0 {
		return fmt.Sprintf("  File %q, in %s", s.Filename, s.Name)
	}
	return fmt.Sprintf("  File %q, line %d, in %s", s.Filename, s.Line, s.Name)
}

// Format renders the summary with its header.
func (ss StackSummary) Format() string {
	var b strings.Builder
	b.WriteString("Traceback (most recent call last):\n")
	for _, s := range ss {
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Format renders tb followed by the exception line, bounded by the
// context's TracebackLimit. An empty message prints the type alone.
func Format(ctx *ExecContext, tb *Traceback, excType, message string) string {
	var b strings.Builder
	if tb != nil {
		b.WriteString(Summarize(ctx, tb, ctx.opts.TracebackLimit).Format())
	}
	b.WriteString(excType)
	if message != "" {
		b.WriteString(": ")
		b.WriteString(message)
	}
	b.WriteByte('\n')
	return b.String()
}
