// Package vm implements the activation model of a Python-style runtime:
// how a running call is represented, how it escapes into an inspectable
// frame object, and how suspended generators resume.
//
// This package contains:
//   - ExecContext, the explicit per-thread execution state
//   - FrameArena and Reference, the handle-addressed call chain
//   - Frame, the materialized activation record, and locals reconciliation
//   - Continuation, the suspended generator activation
//   - Traceback, lazily built from raw unwind data
//   - ReverseIterator and traceback formatting
//
// The bytecode interpreter is an external collaborator. It owns FrameData
// (arguments, live registers, current bytecode index) for every call and
// hands it to this package at call entry, at suspension, and on unwind.
package vm
