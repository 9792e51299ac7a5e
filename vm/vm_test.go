// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

import (
	"math"
	"testing"
)

func newTestVM() *VM {
	return New(WithFramesMax(64), WithStackMax(1024))
}

// program is a small hand-rolled bytecode-builder helper in the teacher's
// own vm_test.go style: tests that need a chunk with no nested functions or
// string constants build it directly rather than pulling in the asm
// package, keeping this package's own tests dependency-free.
func program(code ...Instruction) *Chunk {
	return &Chunk{Name: "test", Code: code}
}

func runTopLevel(t *testing.T, m *VM, chunk *Chunk, maxRegs int) Value {
	t.Helper()
	fnVal := m.heap.newFunction(&functionObj{arity: 0, maxRegs: maxRegs, chunk: chunk, name: "main"})
	cl := m.heap.newClosure(fnVal, nil)
	result, err := m.CallFunction(cl, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

func TestArithmeticAndHalt(t *testing.T) {
	m := newTestVM()
	chunk := program(
		encodeABx(OpLoadConst, 0, 0), // R0 = 3
		encodeABx(OpLoadConst, 1, 1), // R1 = 4
		encodeABC(OpAdd, 2, 0, 1),    // R2 = R0 + R1
		encodeA(OpHalt, 2),
	)
	chunk.Constants = []Value{Number(3), Number(4)}

	result := runTopLevel(t, m, chunk, 4)
	if !result.IsNumber() || result.AsNumber() != 7 {
		t.Fatalf("expected 7, got %v", result)
	}
}

func TestClosureCounterSharesUpvalue(t *testing.T) {
	m := newTestVM()

	// makeCounter's body: upvalue 0 starts closed over local 0 (set to 0 by
	// the caller before CLOSURE), increments it each call, and returns it.
	counterBody := program(
		encodeAB(OpGetUpvalue, 0, 0),
		encodeABx(OpLoadConst, 1, 0), // R1 = 1
		encodeABC(OpAdd, 0, 0, 1),
		encodeAB(OpSetUpvalue, 0, 0),
		encodeAB(OpRet, 0, 1),
	)
	counterBody.Constants = []Value{Number(1)}
	counterFn := m.heap.newFunction(&functionObj{
		arity: 0, maxRegs: 2, chunk: counterBody, name: "counter",
		upvalueDescs: []UpvalueDescriptor{{FromParentLocal: true, Index: 0}},
	})

	mainChunk := program(
		encodeABx(OpLoadConst, 0, 0), // R0 = 0, the local the closure captures
		encodeABx(OpClosure, 4, 1),   // R4 = closure over counterFn capturing local 0, outside the callee's window R2..R3
		encodeAB(OpMove, 1, 4),
		encodeABC(OpCall, 1, 0, 0), // call it: R1 = 1
		encodeAB(OpMove, 1, 4),
		encodeABC(OpCall, 1, 0, 0), // call it again: R1 = 2
		encodeA(OpHalt, 1),
	)
	mainChunk.Constants = []Value{Number(0), objValue(counterFn.hdr().handle)}

	result := runTopLevel(t, m, mainChunk, 5)
	if !result.IsNumber() || result.AsNumber() != 2 {
		t.Fatalf("expected the shared upvalue to have been incremented twice, got %v", result)
	}
}

// TestDivisionByZero checks IEEE-754 double semantics: dividing by zero
// yields an infinity or NaN, never a runtime error.
func TestDivisionByZero(t *testing.T) {
	m := newTestVM()
	chunk := program(
		encodeABx(OpLoadConst, 0, 0),
		encodeABx(OpLoadConst, 1, 1),
		encodeABC(OpDiv, 2, 0, 1),
		encodeA(OpHalt, 2),
	)
	chunk.Constants = []Value{Number(1), Number(0)}

	result := runTopLevel(t, m, chunk, 4)
	if !result.IsNumber() || !math.IsInf(result.AsNumber(), 1) {
		t.Fatalf("expected +Inf for 1/0, got %v", result)
	}
}

func TestDivisionZeroOverZeroIsNaN(t *testing.T) {
	m := newTestVM()
	chunk := program(
		encodeABx(OpLoadConst, 0, 0),
		encodeABx(OpLoadConst, 1, 1),
		encodeABC(OpDiv, 2, 0, 1),
		encodeA(OpHalt, 2),
	)
	chunk.Constants = []Value{Number(0), Number(0)}

	result := runTopLevel(t, m, chunk, 4)
	if !result.IsNumber() || !math.IsNaN(result.AsNumber()) {
		t.Fatalf("expected NaN for 0/0, got %v", result)
	}
}

// TestModUsesFloatSemantics checks that MOD is math.Mod, not a truncating
// integer remainder.
func TestModUsesFloatSemantics(t *testing.T) {
	m := newTestVM()
	chunk := program(
		encodeABx(OpLoadConst, 0, 0),
		encodeABx(OpLoadConst, 1, 1),
		encodeABC(OpMod, 2, 0, 1),
		encodeA(OpHalt, 2),
	)
	chunk.Constants = []Value{Number(5.5), Number(2.0)}

	result := runTopLevel(t, m, chunk, 4)
	if !result.IsNumber() || result.AsNumber() != 1.5 {
		t.Fatalf("expected math.Mod(5.5, 2.0) = 1.5, got %v", result)
	}
}

// TestStackOverflowIsBounded checks that growStack refuses to grow past
// STACK_MAX rather than doubling without bound.
func TestStackOverflowIsBounded(t *testing.T) {
	m := New(WithFramesMax(8), WithStackMax(4))
	chunk := program(encodeA(OpHalt, 0))
	fnVal := m.heap.newFunction(&functionObj{arity: 0, maxRegs: 64, chunk: chunk, name: "big"})
	cl := m.heap.newClosure(fnVal, nil)

	_, err := m.CallFunction(cl, nil)
	if err == nil {
		t.Fatalf("expected a stack overflow error")
	}
	re, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected *RuntimeError, got %T", err)
	}
	if re.Kind != KindBound {
		t.Fatalf("expected KindBound, got %v", re.Kind)
	}
}

// TestSlotMakeRefDoesNotFlatten checks §8's "slot ref does not flatten":
// MAKE_REF through an existing local Reference chases to its ultimate
// target, while SLOT_MAKE_REF stops after exactly one level.
func TestSlotMakeRefDoesNotFlatten(t *testing.T) {
	m := newTestVM()
	chunk := program(
		encodeABx(OpLoadConst, 0, 0),  // R0 = 9
		encodeABC(OpMakeRef, 1, 0, 0), // R1 = ref(local 0), targets R0
		encodeABC(OpMakeRef, 2, 1, 0), // R2 = ref(local 1), chases through R1 to R0
		encodeABC(OpSlotMakeRef, 3, 1, 0), // R3 = slot-ref(local 1), stops at R1 itself
		encodeAB(OpDerefGet, 4, 2),    // R4 = *R2, should read R0's 9 directly
		encodeA(OpHalt, 4),
	)
	chunk.Constants = []Value{Number(9)}

	result := runTopLevel(t, m, chunk, 5)
	if !result.IsNumber() || result.AsNumber() != 9 {
		t.Fatalf("expected MAKE_REF to flatten through R1 to 9, got %v", result)
	}

	chunk2 := program(
		encodeABx(OpLoadConst, 0, 0),
		encodeABC(OpMakeRef, 1, 0, 0),
		encodeABC(OpSlotMakeRef, 3, 1, 0),
		encodeAB(OpDerefGet, 4, 3), // R4 = *R3, should read R1's own Reference value
		encodeA(OpHalt, 4),
	)
	chunk2.Constants = []Value{Number(9)}

	result2 := runTopLevel(t, m, chunk2, 5)
	if result2.IsNumber() {
		t.Fatalf("expected SLOT_MAKE_REF not to flatten through R1, got the underlying number %v", result2)
	}
	if !result2.IsObject() {
		t.Fatalf("expected *R3 to be the Reference object stored in R1, got %v", result2)
	}
}

func TestPromptAbortDeliversValue(t *testing.T) {
	m := newTestVM()
	tag := m.heap.newPromptTag(1, "t")

	// body: ABORT(tag, 42) — unwinds straight out without ever reaching HALT
	body := program(
		encodeABx(OpLoadConst, 0, 0), // tag
		encodeABx(OpLoadConst, 1, 1), // 42
		encodeAB(OpAbort, 0, 1),
	)
	body.Constants = []Value{objValue(tag.hdr().handle), Number(42)}

	if err := m.pushPrompt(tag); err != nil {
		t.Fatalf("pushPrompt: %v", err)
	}
	result := runTopLevel(t, m, body, 4)
	if !result.IsNumber() || result.AsNumber() != 42 {
		t.Fatalf("expected abort value 42, got %v", result)
	}
}

func TestGCCollectsUnreachableStrings(t *testing.T) {
	m := newTestVM()
	s := m.heap.copyString([]byte("transient"))
	if s.hdr().isMarked {
		t.Fatalf("fresh object should not start marked")
	}
	// Nothing roots this string (no stack slot, no global, no frame); a
	// cycle should reclaim it and forget its intern-table entry.
	if err := m.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if _, ok := m.heap.strings[s.hash]; ok {
		t.Fatalf("expected the intern table entry for an unreachable string to be cleaned up")
	}
}

func TestGCPreservesReachableGlobal(t *testing.T) {
	m := newTestVM()
	s := m.heap.copyString([]byte("kept"))
	m.globals["g"] = objValue(s.hdr().handle)

	if err := m.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	v, ok := m.globals["g"]
	if !ok {
		t.Fatalf("global should survive collection")
	}
	resolved, ok := m.heap.resolve(v.handle()).(*stringObj)
	if !ok || resolved.String() != "kept" {
		t.Fatalf("expected the global's string object to survive with its contents intact")
	}
}
