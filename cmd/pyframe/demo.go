package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/chazu/pyframe/config"
	"github.com/chazu/pyframe/store"
	"github.com/chazu/pyframe/vm"
	"github.com/chazu/pyframe/vm/dist"
)

var errDivisionByZero = errors.New("division by zero")

// The demo program, as the runtime would have compiled it:
//
//	1 def inverse(seq):
//	2     for x in reversed(seq):
//	3         yield 100 // x
//	4
//	5 def main():
//	6     items = [4, 2, 0, 5]
//	7     for v in inverse(items):
//	8         print(v)
var (
	inverseCode = &vm.CodeUnit{
		FuncName: "inverse", Qualname: "inverse", Filename: "demo.py",
		FirstLine: 1, CodeLength: 12,
		LineTable: []vm.LineEntry{{Bci: 0, Line: 1}, {Bci: 2, Line: 2}, {Bci: 6, Line: 3}},
		Varnames:  []string{"seq", "x"},
		StackSize: 1,
	}
	mainCode = &vm.CodeUnit{
		FuncName: "main", Qualname: "main", Filename: "demo.py",
		FirstLine: 5, CodeLength: 16,
		LineTable: []vm.LineEntry{{Bci: 0, Line: 6}, {Bci: 4, Line: 7}, {Bci: 10, Line: 8}},
		Varnames:  []string{"items", "v"},
	}
)

const raiseBci = 8

// inverseBody interprets inverse(); the reverse iterator lives on the
// captured operand stack between resumptions.
type inverseBody struct{}

func (inverseBody) Code() *vm.CodeUnit { return inverseCode }

func (b inverseBody) ResumeAt(vm.ResumePoint) vm.Target { return b }

func (inverseBody) Invoke(ctx *vm.ExecContext, args vm.Arguments) (vm.Outcome, error) {
	gf := args.GeneratorFrame()
	it, ok := gf.Stack[0].(*vm.ReverseIterator)
	if !ok {
		seq := args.User()[0].(vm.Indexable)
		gf.Store(0, seq)
		it = vm.NewReverseIterator(seq)
		gf.Stack[0] = it
	}
	v, err := it.Next()
	if errors.Is(err, vm.ErrStopIteration) {
		return vm.Outcome{}, nil
	}
	if err != nil {
		return vm.Outcome{}, err
	}
	gf.Store(1, v)
	x := v.(int)
	if x == 0 {
		return vm.Outcome{}, errDivisionByZero
	}
	return vm.Outcome{Value: 100 / x, Yielded: true, Resume: vm.ResumePoint{Bci: 10, StackTop: 1}}, nil
}

// recordDemo runs the demo program, captures the ZeroDivisionError it
// raises and saves it.
func recordDemo(st *store.Store, cfg *config.Config, w io.Writer) error {
	ctx := vm.NewExecContext(vm.Globals{"__name__": "__main__"}, cfg.Options())

	regs := vm.NewRegisterFile(mainCode.Varnames)
	items := ctx.NewStorage([]any{4, 2, 0, 5})
	regs.Store(0, vm.StorageSequence{Storage: items})
	mainData := &vm.FrameData{Args: vm.NewArguments(ctx.Globals()), Regs: regs, Bci: 4, Location: mainCode}
	mainRef, err := ctx.Enter(mainData, nil)
	if err != nil {
		return err
	}
	defer ctx.Leave(mainRef)

	genArgs := vm.NewArguments(ctx.Globals(), vm.StorageSequence{Storage: items})
	gen := vm.NewContinuation(ctx, "inverse", "inverse", inverseBody{}, genArgs)
	for {
		v, err := gen.Resume(ctx, nil)
		if errors.Is(err, vm.ErrStopIteration) {
			fmt.Fprintln(w, "demo finished without error")
			return nil
		}
		if err != nil {
			tb := vm.NewTraceback(ctx, &vm.Unwind{
				Elements: []vm.StackElement{
					{
						Location: inverseCode,
						Target:   inverseBody{},
						Data:     &vm.FrameData{Args: gen.Arguments(), Regs: gen.GeneratorFrame(), Bci: raiseBci, Location: inverseCode},
						Ref:      gen.Ref(),
					},
					{Location: mainCode, Ref: mainRef},
				},
				Boundary:            func(el vm.StackElement) bool { return el.Ref == mainRef },
				CatchingFrameWanted: true,
				CatchLocation:       mainCode,
				CatchBci:            mainData.Bci,
				CatchRef:            mainRef,
			})
			snap := dist.Capture(ctx, tb, "ZeroDivisionError", err.Error())
			if err := st.Save(snap); err != nil {
				return err
			}
			fmt.Fprint(w, vm.Format(ctx, tb, snap.ExcType, snap.Message))
			fmt.Fprintf(w, "recorded %s\n", snap.ID)
			return nil
		}
		regs.Store(1, v)
		fmt.Fprintf(w, "%v\n", v)
	}
}
