// Package dist implements the portable form of a traceback. A Snapshot
// captures the printable state of a materialized chain so it can be stored
// or shipped to another process using CBOR encoding.
package dist

import (
	"fmt"
	"sort"
	"time"

	"github.com/chazu/pyframe/vm"
	"github.com/google/uuid"
)

// Frame is one traceback entry of a snapshot.
type Frame struct {
	Filename string            `cbor:"1,keyasint"`
	Name     string            `cbor:"2,keyasint"`
	Line     int               `cbor:"3,keyasint"`
	Lasti    int               `cbor:"4,keyasint"`
	Locals   map[string]string `cbor:"5,keyasint,omitempty"` // repr of each local
}

// Snapshot is a captured traceback together with its exception.
type Snapshot struct {
	ID        uuid.UUID `cbor:"1,keyasint"`
	ExcType   string    `cbor:"2,keyasint"`
	Message   string    `cbor:"3,keyasint,omitempty"`
	CreatedAt int64     `cbor:"4,keyasint"` // unix seconds
	Frames    []Frame   `cbor:"5,keyasint"` // catching frame first
}

// Capture walks tb, materializing it, and records every entry.
func Capture(ctx *vm.ExecContext, tb *vm.Traceback, excType, message string) *Snapshot {
	s := &Snapshot{
		ID:        uuid.New(),
		ExcType:   excType,
		Message:   message,
		CreatedAt: time.Now().Unix(),
	}
	if tb == nil {
		return s
	}
	for _, fs := range vm.Summarize(ctx, tb, 0) {
		s.Frames = append(s.Frames, Frame{
			Filename: fs.Filename,
			Name:     fs.Name,
			Line:     fs.Line,
			Lasti:    fs.Lasti,
			Locals:   reprLocals(fs.Locals),
		})
	}
	return s
}

func reprLocals(locals map[string]vm.Value) map[string]string {
	if len(locals) == 0 {
		return nil
	}
	out := make(map[string]string, len(locals))
	for k, v := range locals {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// Summary converts the snapshot back into a printable stack summary.
func (s *Snapshot) Summary() vm.StackSummary {
	ss := make(vm.StackSummary, len(s.Frames))
	for i, f := range s.Frames {
		ss[i] = vm.FrameSummary{Filename: f.Filename, Name: f.Name, Line: f.Line, Lasti: f.Lasti}
	}
	return ss
}

// Format renders the snapshot like a live traceback.
func (s *Snapshot) Format() string {
	out := s.Summary().Format() + s.ExcType
	if s.Message != "" {
		out += ": " + s.Message
	}
	return out + "\n"
}

// LocalNames returns the sorted local names of frame i.
func (s *Snapshot) LocalNames(i int) []string {
	names := make([]string, 0, len(s.Frames[i].Locals))
	for k := range s.Frames[i].Locals {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
