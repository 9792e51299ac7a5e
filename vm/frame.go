// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

// CallFrame is one activation record on the VM's call stack. Registers are
// addressed relative to base, never as absolute stack indices, so a stack
// growth that relocates the underlying array never invalidates a frame (§4.5,
// §9's "stack indices, not addresses, on the hot path").
type CallFrame struct {
	closure    *closureObj
	ip         int
	base       int // this frame's register window starts at vm.stack[base]
	resultSlot int // absolute stack index the return value is written into
}
