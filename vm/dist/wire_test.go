package dist

import (
	"testing"

	"github.com/chazu/pyframe/vm"
)

func sampleTraceback(t *testing.T) (*vm.ExecContext, *vm.Traceback) {
	t.Helper()
	ctx := vm.NewExecContext(nil, vm.DefaultOptions())
	main := &vm.CodeUnit{
		FuncName: "main", Filename: "main.py", FirstLine: 1,
		LineTable: []vm.LineEntry{{Bci: 0, Line: 1}, {Bci: 4, Line: 2}},
		Varnames:  []string{"n"},
	}
	leaf := &vm.CodeUnit{
		FuncName: "leaf", Filename: "leaf.py", FirstLine: 10,
		LineTable: []vm.LineEntry{{Bci: 0, Line: 10}, {Bci: 2, Line: 11}},
		Varnames:  []string{"x"},
	}

	regs := vm.NewRegisterFile(main.Varnames)
	regs.Store(0, 7)
	h, err := ctx.Enter(&vm.FrameData{Args: vm.NewArguments(nil), Regs: regs, Bci: 4, Location: main}, nil)
	if err != nil {
		t.Fatal(err)
	}
	leafRegs := vm.NewRegisterFile(leaf.Varnames)
	leafRegs.Store(0, "boom")

	tb := vm.NewTraceback(ctx, &vm.Unwind{
		Elements: []vm.StackElement{
			{Location: leaf, Data: &vm.FrameData{Args: vm.NewArguments(nil), Regs: leafRegs, Bci: 2, Location: leaf}},
			{Location: main, Ref: h},
		},
		Boundary:            func(el vm.StackElement) bool { return el.Ref == h },
		CatchingFrameWanted: true,
		CatchLocation:       main,
		CatchBci:            4,
		CatchRef:            h,
	})
	return ctx, tb
}

func TestCapture(t *testing.T) {
	ctx, tb := sampleTraceback(t)
	s := Capture(ctx, tb, "ValueError", "bad")

	if len(s.Frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(s.Frames))
	}
	if s.Frames[0].Name != "main" || s.Frames[0].Line != 2 {
		t.Errorf("frame 0 = %+v", s.Frames[0])
	}
	if s.Frames[1].Name != "leaf" || s.Frames[1].Line != 11 {
		t.Errorf("frame 1 = %+v", s.Frames[1])
	}
	if s.Frames[0].Locals["n"] != "7" {
		t.Errorf("main locals = %v", s.Frames[0].Locals)
	}
	if s.Frames[1].Locals["x"] != "boom" {
		t.Errorf("leaf locals = %v", s.Frames[1].Locals)
	}

	want := "Traceback (most recent call last):\n" +
		"  File \"main.py\", line 2, in main\n" +
		"  File \"leaf.py\", line 11, in leaf\n" +
		"ValueError: bad\n"
	if got := s.Format(); got != want {
		t.Errorf("Format =\n%s\nwant\n%s", got, want)
	}
	if got := vm.Format(ctx, tb, "ValueError", "bad"); got != want {
		t.Errorf("snapshot and live formatting differ:\n%s", got)
	}
}

func TestSnapshot_CBORRoundTrip(t *testing.T) {
	ctx, tb := sampleTraceback(t)
	s := Capture(ctx, tb, "KeyError", "'k'")

	data, err := MarshalSnapshot(s)
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}
	got, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}

	if got.ID != s.ID {
		t.Errorf("ID: got %s, want %s", got.ID, s.ID)
	}
	if got.ExcType != s.ExcType || got.Message != s.Message || got.CreatedAt != s.CreatedAt {
		t.Errorf("header mismatch: %+v", got)
	}
	if len(got.Frames) != len(s.Frames) {
		t.Fatalf("frames: got %d, want %d", len(got.Frames), len(s.Frames))
	}
	if got.Frames[1].Locals["x"] != "boom" {
		t.Errorf("locals lost: %v", got.Frames[1].Locals)
	}
	if names := got.LocalNames(0); len(names) != 1 || names[0] != "n" {
		t.Errorf("LocalNames = %v", names)
	}
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	ctx, tb := sampleTraceback(t)
	s := Capture(ctx, tb, "ValueError", "bad")
	s.Frames[0].Locals = map[string]string{"b": "2", "a": "1", "c": "3"}

	first, err := MarshalSnapshot(s)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, _ := MarshalSnapshot(s)
		if string(again) != string(first) {
			t.Fatal("canonical encoding should be deterministic")
		}
	}
}

func TestDigestIgnoresIdentity(t *testing.T) {
	ctx, tb := sampleTraceback(t)
	a := Capture(ctx, tb, "ValueError", "first")
	b := Capture(ctx, tb, "ValueError", "second")
	b.Frames[1].Locals = map[string]string{"x": "other"}

	da, err := Digest(a)
	if err != nil {
		t.Fatal(err)
	}
	db, _ := Digest(b)
	if da != db {
		t.Error("same failure should share a digest")
	}

	c := Capture(ctx, tb, "TypeError", "first")
	dc, _ := Digest(c)
	if dc == da {
		t.Error("different exception types should not share a digest")
	}
}

func TestUnmarshalSnapshot_Invalid(t *testing.T) {
	if _, err := UnmarshalSnapshot([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error for invalid CBOR")
	}
}
