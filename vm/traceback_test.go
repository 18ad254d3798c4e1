package vm

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func unitCode(name, file string, first int) *CodeUnit {
	return &CodeUnit{
		FuncName:   name,
		Qualname:   name,
		Filename:   file,
		FirstLine:  first,
		CodeLength: 12,
		LineTable:  []LineEntry{{0, first}, {4, first + 1}, {8, first + 2}},
		Varnames:   []string{"x"},
	}
}

type unwindFixture struct {
	ctx                   *ExecContext
	main, mid, leaf       *CodeUnit
	mainRef               Handle
	leafEl, midEl, mainEl StackElement
}

// newUnwindFixture models main() catching an exception raised in leaf()
// called through mid(). main is still executing; mid and leaf are gone.
func newUnwindFixture(t *testing.T) *unwindFixture {
	t.Helper()
	fx := &unwindFixture{
		ctx:  newTestContext(),
		main: unitCode("main", "main.py", 1),
		mid:  unitCode("mid", "mid.py", 20),
		leaf: unitCode("leaf", "leaf.py", 40),
	}
	fx.mainRef, _, _ = enterCode(t, fx.ctx, fx.main, 8)
	fx.leafEl = StackElement{
		Location: fx.leaf,
		Target:   "leaf",
		Data:     &FrameData{Args: NewArguments(nil), Bci: 0, Location: fx.leaf},
	}
	fx.midEl = StackElement{
		Location: fx.mid,
		Target:   "mid",
		Data:     &FrameData{Args: NewArguments(nil), Bci: 4, Location: fx.mid},
	}
	fx.mainEl = StackElement{Location: fx.main, Target: "main", Ref: fx.mainRef}
	return fx
}

func (fx *unwindFixture) unwind() *Unwind {
	return &Unwind{
		Elements: []StackElement{
			fx.leafEl,
			fx.midEl,
			fx.mainEl,
			{Location: unitCode("outer", "outer.py", 90), Target: "outer"},
		},
		Boundary:            func(el StackElement) bool { return el.Target == "main" },
		CatchingFrameWanted: true,
		CatchLocation:       fx.main,
		CatchBci:            8,
		CatchRef:            fx.mainRef,
	}
}

func chainNames(ctx *ExecContext, tb *Traceback) []string {
	var names []string
	tb.Walk(ctx, func(t *Traceback) bool {
		f := t.Frame(ctx)
		if f == nil {
			names = append(names, "<nil>")
		} else {
			names = append(names, nameOf(f.Location()))
		}
		return true
	})
	return names
}

func equalNames(a, b []string) bool {
	return strings.Join(a, ",") == strings.Join(b, ",")
}

// ---------------------------------------------------------------------------
// Materialization
// ---------------------------------------------------------------------------

func TestTracebackOrder(t *testing.T) {
	fx := newUnwindFixture(t)
	tb := NewTraceback(fx.ctx, fx.unwind())
	if tb.IsMaterialized() {
		t.Fatal("traceback should start lazy")
	}

	got := chainNames(fx.ctx, tb)
	want := []string{"main", "mid", "leaf"}
	if !equalNames(got, want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	if !tb.IsMaterialized() {
		t.Error("walking should materialize")
	}

	if tb.Lineno(fx.ctx) != 3 {
		t.Errorf("catching line = %d, want 3", tb.Lineno(fx.ctx))
	}
	if tb.Lasti(fx.ctx) != 8 {
		t.Errorf("catching lasti = %d, want 8", tb.Lasti(fx.ctx))
	}
	mid := tb.Next(fx.ctx)
	if mid.Lineno(fx.ctx) != 21 || mid.Lasti(fx.ctx) != 4 {
		t.Errorf("mid node = line %d lasti %d", mid.Lineno(fx.ctx), mid.Lasti(fx.ctx))
	}
	leaf := mid.Next(fx.ctx)
	if leaf.Lineno(fx.ctx) != 40 {
		t.Errorf("leaf line = %d, want 40", leaf.Lineno(fx.ctx))
	}
	if leaf.Next(fx.ctx) != nil {
		t.Error("raising frame should be last")
	}
	if tb.Len(fx.ctx) != 3 {
		t.Errorf("Len = %d, want 3", tb.Len(fx.ctx))
	}
}

func TestTracebackCatchingFrameIsLive(t *testing.T) {
	fx := newUnwindFixture(t)
	tb := NewTraceback(fx.ctx, fx.unwind())
	f := tb.Frame(fx.ctx)
	if f == nil || f.Ref() != fx.mainRef {
		t.Fatalf("catching frame = %v, want frame of %s", f, fx.mainRef)
	}
	live, err := fx.ctx.GetFrame(0)
	if err != nil {
		t.Fatal(err)
	}
	if live != f {
		t.Error("catching frame should be the live frame of main")
	}
	if !fx.ctx.Reference(fx.mainRef).IsEscaped() {
		t.Error("catching frame should be escaped")
	}
}

func TestTracebackHideLocation(t *testing.T) {
	fx := newUnwindFixture(t)
	u := fx.unwind()
	u.HideLocation = true
	got := chainNames(fx.ctx, NewTraceback(fx.ctx, u))
	if want := []string{"main", "mid"}; !equalNames(got, want) {
		t.Errorf("chain = %v, want %v", got, want)
	}
}

func TestTracebackWantedPredicate(t *testing.T) {
	fx := newUnwindFixture(t)
	u := fx.unwind()
	u.Elements = []StackElement{
		{Target: "builtin"},
		fx.leafEl,
		{Location: fx.mid, Target: "internal"},
		fx.midEl,
		fx.mainEl,
	}
	u.Wanted = func(el StackElement) bool {
		return el.Location != nil && el.Target != "internal"
	}
	got := chainNames(fx.ctx, NewTraceback(fx.ctx, u))
	if want := []string{"main", "mid", "leaf"}; !equalNames(got, want) {
		t.Errorf("chain = %v, want %v", got, want)
	}
}

func TestTracebackBoundaryStopsConsumption(t *testing.T) {
	fx := newUnwindFixture(t)
	u := fx.unwind()
	u.Boundary = func(el StackElement) bool { return el.Target == "mid" }
	got := chainNames(fx.ctx, NewTraceback(fx.ctx, u))
	if want := []string{"main", "leaf"}; !equalNames(got, want) {
		t.Errorf("chain = %v, want %v", got, want)
	}
}

func TestTracebackGraftsFirstNode(t *testing.T) {
	fx := newUnwindFixture(t)
	u := fx.unwind()
	u.CatchingFrameWanted = false
	tb := NewTraceback(fx.ctx, u)

	if got, want := chainNames(fx.ctx, tb), []string{"mid", "leaf"}; !equalNames(got, want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	if tb.Lineno(fx.ctx) != 21 {
		t.Errorf("grafted line = %d, want 21", tb.Lineno(fx.ctx))
	}
	if tb.Lasti(fx.ctx) != 4 {
		t.Errorf("grafted lasti = %d, want 4", tb.Lasti(fx.ctx))
	}
}

func TestTracebackEmptyHead(t *testing.T) {
	fx := newUnwindFixture(t)
	u := fx.unwind()
	u.CatchingFrameWanted = false
	u.Boundary = func(el StackElement) bool { return el.Target == "leaf" }
	tb := NewTraceback(fx.ctx, u)

	if tb.Lineno(fx.ctx) != NoLine {
		t.Errorf("line = %d, want NoLine", tb.Lineno(fx.ctx))
	}
	if tb.Frame(fx.ctx) != nil {
		t.Error("empty head should have no frame")
	}
	if tb.Next(fx.ctx) != nil {
		t.Error("empty head should have no next")
	}
	if tb.Len(fx.ctx) != 1 {
		t.Errorf("Len = %d, want 1", tb.Len(fx.ctx))
	}
}

func TestTracebackSurvivesCatchingFrameReturn(t *testing.T) {
	fx := newUnwindFixture(t)
	tb := NewTraceback(fx.ctx, fx.unwind())
	fx.ctx.Leave(fx.mainRef)

	if fx.ctx.Reference(fx.mainRef) == nil {
		t.Fatal("captured catching reference should survive Leave")
	}
	f := tb.Frame(fx.ctx)
	if f == nil || f.Ref() != fx.mainRef {
		t.Fatalf("catching frame = %v, want frame of %s", f, fx.mainRef)
	}
	if f.Lasti() != 8 {
		t.Errorf("lasti = %d, want 8", f.Lasti())
	}
	if got, want := chainNames(fx.ctx, tb), []string{"main", "mid", "leaf"}; !equalNames(got, want) {
		t.Errorf("chain = %v, want %v", got, want)
	}
}

func TestTracebackNextChain(t *testing.T) {
	fx := newUnwindFixture(t)
	earlier := NewTracebackNode(newFrame(NoHandle, unitCode("old", "old.py", 70), nil, false), 70, 0, nil)
	u := fx.unwind()
	u.NextChain = earlier
	got := chainNames(fx.ctx, NewTraceback(fx.ctx, u))
	if want := []string{"main", "mid", "leaf", "old"}; !equalNames(got, want) {
		t.Errorf("chain = %v, want %v", got, want)
	}
}

func TestTracebackMaterializesReferencedElements(t *testing.T) {
	ctx := newTestContext()
	caller := unitCode("caller", "c.py", 1)
	callee := unitCode("callee", "d.py", 30)
	callerRef, _, _ := enterCode(t, ctx, caller, 4)
	calleeRef, calleeData, regs := enterCode(t, ctx, callee, 8)
	regs.Store(0, "v")

	u := &Unwind{
		Elements: []StackElement{
			{Location: callee, Data: calleeData, Ref: calleeRef},
			{Location: caller, Ref: callerRef},
		},
		Boundary:            func(el StackElement) bool { return el.Ref == callerRef },
		CatchingFrameWanted: true,
		CatchLocation:       caller,
		CatchBci:            4,
		CatchRef:            callerRef,
	}
	tb := NewTraceback(ctx, u)
	node := tb.Next(ctx)
	f := node.Frame(ctx)
	if f.Ref() != calleeRef {
		t.Fatalf("frame ref = %s, want %s", f.Ref(), calleeRef)
	}
	if !ctx.Reference(calleeRef).IsEscaped() {
		t.Error("element reference should be escaped")
	}
	if f.LocalsDict()["x"] != "v" {
		t.Errorf("locals = %v", f.LocalsDict())
	}
	if node.Lineno(ctx) != 32 {
		t.Errorf("line = %d, want 32", node.Lineno(ctx))
	}

	ctx.Leave(calleeRef)
	if ctx.Reference(calleeRef) == nil {
		t.Error("escaped callee should survive Leave")
	}
}

func TestTracebackMaterializeIdempotent(t *testing.T) {
	fx := newUnwindFixture(t)
	tb := NewTraceback(fx.ctx, fx.unwind())
	tb.Materialize(fx.ctx)
	next := tb.Next(fx.ctx)
	tb.Materialize(fx.ctx)
	if tb.Next(fx.ctx) != next {
		t.Error("second materialization should not rebuild the chain")
	}
}

func TestTracebackConcurrentMaterialize(t *testing.T) {
	fx := newUnwindFixture(t)
	tb := NewTraceback(fx.ctx, fx.unwind())

	const n = 16
	results := make([]*Traceback, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tb.Next(fx.ctx)
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d saw a different chain", i)
		}
	}
}

// ---------------------------------------------------------------------------
// tb_next assignment
// ---------------------------------------------------------------------------

func TestSetNextRejectsCycle(t *testing.T) {
	ctx := newTestContext()
	b := NewTracebackNode(nil, 2, 0, nil)
	a := NewTracebackNode(nil, 1, 0, b)

	if err := b.SetNext(ctx, a); !errors.Is(err, ErrTracebackLoop) {
		t.Fatalf("SetNext err = %v, want ErrTracebackLoop", err)
	}
	if a.Next(ctx) != b || b.Next(ctx) != nil {
		t.Error("chains should be unchanged after a rejected SetNext")
	}
	if err := a.SetNext(ctx, a); !errors.Is(err, ErrTracebackLoop) {
		t.Errorf("self link err = %v", err)
	}
}

func TestSetNextRejectsCycleThroughLazyNode(t *testing.T) {
	ctx := newTestContext()
	b := NewTracebackNode(nil, 2, 0, nil)
	a := NewTraceback(ctx, &Unwind{CatchingFrameWanted: true, NextChain: b})

	if err := b.SetNext(ctx, a); !errors.Is(err, ErrTracebackLoop) {
		t.Fatalf("SetNext err = %v, want ErrTracebackLoop", err)
	}
	if a.IsMaterialized() {
		t.Error("cycle check should not materialize the lazy node")
	}
	if b.Next(ctx) != nil {
		t.Error("rejected SetNext should leave b unlinked")
	}
	if a.Len(ctx) != 2 {
		t.Errorf("Len = %d, want 2", a.Len(ctx))
	}
}

func TestSetNextMaterializesFirst(t *testing.T) {
	fx := newUnwindFixture(t)
	tb := NewTraceback(fx.ctx, fx.unwind())
	tail := NewTracebackNode(nil, 99, 0, nil)
	if err := tb.SetNext(fx.ctx, tail); err != nil {
		t.Fatal(err)
	}
	if !tb.IsMaterialized() {
		t.Error("SetNext should materialize the node")
	}
	if tb.Next(fx.ctx) != tail {
		t.Error("user link should survive materialization")
	}

	tb.ClearNext(fx.ctx)
	if tb.Next(fx.ctx) != nil {
		t.Error("ClearNext should drop the link")
	}
}

func TestTracebackDir(t *testing.T) {
	got := NewTracebackNode(nil, 0, 0, nil).Dir()
	want := []string{"tb_frame", "tb_lasti", "tb_lineno", "tb_next"}
	if !equalNames(got, want) {
		t.Errorf("Dir = %v", got)
	}
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

func TestFormatTraceback(t *testing.T) {
	fx := newUnwindFixture(t)
	got := Format(fx.ctx, NewTraceback(fx.ctx, fx.unwind()), "ValueError", "bad value")
	want := "Traceback (most recent call last):\n" +
		"  File \"main.py\", line 3, in main\n" +
		"  File \"mid.py\", line 21, in mid\n" +
		"  File \"leaf.py\", line 40, in leaf\n" +
		"ValueError: bad value\n"
	if got != want {
		t.Errorf("Format =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatTracebackLimit(t *testing.T) {
	fx := newUnwindFixture(t)
	fx.ctx.opts.TracebackLimit = 1
	got := Format(fx.ctx, NewTraceback(fx.ctx, fx.unwind()), "KeyError", "")
	want := "Traceback (most recent call last):\n" +
		"  File \"leaf.py\", line 40, in leaf\n" +
		"KeyError\n"
	if got != want {
		t.Errorf("Format =\n%s\nwant\n%s", got, want)
	}
}

func TestSummarize(t *testing.T) {
	fx := newUnwindFixture(t)
	ss := Summarize(fx.ctx, NewTraceback(fx.ctx, fx.unwind()), 0)
	if len(ss) != 3 {
		t.Fatalf("len = %d, want 3", len(ss))
	}
	if ss[1].Filename != "mid.py" || ss[1].Name != "mid" || ss[1].Lasti != 4 {
		t.Errorf("summary[1] = %+v", ss[1])
	}
}
