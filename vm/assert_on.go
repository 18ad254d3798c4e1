//go:build !pyframe_noassert

package vm

const assertionsEnabled = true
