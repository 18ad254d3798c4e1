package vm

// ---------------------------------------------------------------------------
// Frame materialization
// ---------------------------------------------------------------------------

type materializeConfig struct {
	escape     bool
	syncLocals bool
}

// MaterializeOption adjusts Materialize.
type MaterializeOption func(*materializeConfig)

// MarkEscaped flags the reference as escaped after materializing.
func MarkEscaped() MaterializeOption {
	return func(c *materializeConfig) { c.escape = true }
}

// SyncLocals refreshes the locals mapping from the live registers.
func SyncLocals() MaterializeOption {
	return func(c *materializeConfig) { c.syncLocals = true }
}

// Materialize returns the frame of reference h, creating it from data on
// first request. It is idempotent: later calls return the same frame. A
// reference that only carried custom locals is upgraded once to a complete
// frame holding those locals. A frame that already escaped is frozen and
// takes no new execution data; a frame still private to its call has its
// bytecode position refreshed from data.
//
// data may be nil when the activation is no longer available.
func Materialize(ctx *ExecContext, h Handle, data *FrameData, location Location, opts ...MaterializeOption) *Frame {
	ref := ctx.arena.Get(h)
	assertf(ref != nil, IllegalStateTransition, "materializing released reference %s", h)
	if ref == nil {
		return nil
	}
	var cfg materializeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if location == nil && data != nil {
		location = data.Location
	}

	frame := ref.Frame()
	switch {
	case frame == nil:
		frame = newFrame(h, location, nil, false)
		fillFrame(frame, data)
		ref.SetFrame(frame)
		log.Debugf("materialized %s at %s", h, nameOf(location))
	case !frame.IsAssociated():
		upgraded := newFrame(h, location, frame.locals, true)
		fillFrame(upgraded, data)
		ref.SetFrame(upgraded)
		frame = upgraded
		log.Debugf("materialized %s with custom locals", h)
	case ref.escaped:
		// frozen
	case data != nil:
		frame.lasti = data.Bci
		if frame.location == nil {
			frame.location = location
		}
	}

	if cfg.escape {
		ref.MarkEscaped()
	}
	if cfg.syncLocals && data != nil {
		syncLocals(frame, data.Regs)
	}
	return frame
}

func fillFrame(f *Frame, data *FrameData) {
	if data == nil {
		return
	}
	f.arguments = data.Args
	f.lasti = data.Bci
}

// newDetachedFrame snapshots data into a frame without a reference, for
// unwind elements that never registered one.
func newDetachedFrame(location Location, data *FrameData) *Frame {
	f := newFrame(NoHandle, location, nil, false)
	fillFrame(f, data)
	if data != nil {
		syncLocals(f, data.Regs)
	}
	return f
}
