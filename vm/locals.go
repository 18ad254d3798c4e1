package vm

// GetLocals returns the locals mapping of f reconciled with regs. Named
// registers that are bound are upserted; named registers that are unbound
// remove any earlier entry. Generator frames reconcile against their
// captured registers instead of regs. Custom locals are returned as
// supplied.
func GetLocals(f *Frame, regs Registers) map[string]Value {
	if f.customLocals {
		return f.locals
	}
	if f.arguments != nil {
		if gf := f.arguments.GeneratorFrame(); gf != nil {
			regs = gf
		}
	}
	if f.locals == nil {
		f.locals = make(map[string]Value)
	}
	if regs == nil {
		return f.locals
	}
	for i, n := 0, regs.NumSlots(); i < n; i++ {
		name := regs.SlotName(i)
		if name == "" {
			continue
		}
		if v, ok := regs.Read(i); ok {
			f.locals[name] = v
		} else {
			delete(f.locals, name)
		}
	}
	return f.locals
}

func syncLocals(f *Frame, regs Registers) {
	GetLocals(f, regs)
}
