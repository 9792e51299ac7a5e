// Copyright 2026 The Ember Authors
// This file is part of Ember.

package control

import (
	"testing"

	"github.com/ember-lang/embervm/asm"
	"github.com/ember-lang/embervm/vm"
)

func newTestVM(t *testing.T) *vm.VM {
	t.Helper()
	m := vm.New(vm.WithFramesMax(64), vm.WithStackMax(1024))
	if err := Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return m
}

// closureFromBuilder finalizes b's chunk as a zero-upvalue top-level closure,
// the shape CallFunction expects.
func closureFromBuilder(t *testing.T, m *vm.VM, b *asm.Builder, arity, maxRegs int) vm.Value {
	t.Helper()
	chunk := b.Chunk()
	fnVal := m.Heap().NewFunctionPublic(chunk.Name, arity, maxRegs, chunk, nil, nil)
	closureVal, ok := m.Heap().NewClosurePublic(fnVal)
	if !ok {
		t.Fatalf("NewClosurePublic failed")
	}
	return closureVal
}

func TestRegisterInstallsAllContNatives(t *testing.T) {
	m := newTestVM(t)
	names := []string{
		"Cont.newPrompt", "Cont.pushPrompt", "Cont.popPrompt",
		"Cont.capture", "Cont.resume", "Cont.abort",
		"Cont.shift", "Cont.withPrompt",
	}
	for _, name := range names {
		if _, ok := m.Global(name); !ok {
			t.Fatalf("expected %s to be registered as a global", name)
		}
	}
}

func TestNewPromptReturnsDistinctTags(t *testing.T) {
	m := newTestVM(t)
	a := newPrompt(m, []vm.Value{m.Heap().CopyStringPublic([]byte("a"))})
	b := newPrompt(m, []vm.Value{m.Heap().CopyStringPublic([]byte("b"))})
	if a == b {
		t.Fatalf("expected two distinct prompt tags, got the same value twice")
	}
}

func TestPushPromptThenAbortReturnsControlTransfer(t *testing.T) {
	m := newTestVM(t)
	tag := newPrompt(m, []vm.Value{m.Heap().CopyStringPublic([]byte("p"))})

	if v := pushPrompt(m, []vm.Value{tag}); v.IsError() {
		t.Fatalf("pushPrompt reported an error")
	}
	if v := abort(m, []vm.Value{tag, vm.Number(7)}); !v.IsControlTransfer() {
		t.Fatalf("expected abort to return the control-transfer sentinel, got %v", v)
	}
}

func TestCaptureThenResumeLifecycle(t *testing.T) {
	m := newTestVM(t)
	tag := newPrompt(m, []vm.Value{m.Heap().CopyStringPublic([]byte("p"))})

	if v := pushPrompt(m, []vm.Value{tag}); v.IsError() {
		t.Fatalf("pushPrompt reported an error")
	}
	cont := capture(m, []vm.Value{tag})
	if cont.IsError() {
		t.Fatalf("capture reported an error")
	}

	state, err := m.ContinuationState(cont)
	if err != nil {
		t.Fatalf("ContinuationState: %v", err)
	}
	if state != int(vm.ContinuationValid) {
		t.Fatalf("expected a freshly captured continuation to be Valid, got %d", state)
	}

	if v := resume(m, []vm.Value{cont, vm.Number(99)}); !v.IsControlTransfer() {
		t.Fatalf("expected resume to return the control-transfer sentinel, got %v", v)
	}

	state, err = m.ContinuationState(cont)
	if err != nil {
		t.Fatalf("ContinuationState after resume: %v", err)
	}
	if state != int(vm.ContinuationConsumed) {
		t.Fatalf("expected the continuation to be Consumed after one resume, got %d", state)
	}

	if v := resume(m, []vm.Value{cont, vm.Number(1)}); !v.IsError() {
		t.Fatalf("expected resuming a Consumed continuation twice to report an error")
	}
}

// TestWithPromptNormalReturn exercises the ordinary path: body runs to
// completion without touching the boundary at all, and withPrompt cleans up
// the prompt it pushed itself.
func TestWithPromptNormalReturn(t *testing.T) {
	m := newTestVM(t)
	tag := m.NewPromptTag("t")

	b := asm.New(m.Heap(), "body")
	b.LoadConst(0, b.ConstNumber(5))
	b.Ret(0, true)
	bodyVal := closureFromBuilder(t, m, b, 0, 1)

	before := m.PromptDepth()
	result := withPrompt(m, []vm.Value{tag, bodyVal})
	if result.IsError() {
		t.Fatalf("withPrompt reported an error")
	}
	if !result.IsNumber() || result.AsNumber() != 5 {
		t.Fatalf("expected 5, got %v", result)
	}
	if m.PromptDepth() != before {
		t.Fatalf("expected withPrompt to pop its own prompt, depth went from %d to %d", before, m.PromptDepth())
	}
}

// TestWithPromptBodyAborts checks that an abort from inside body delivers its
// value as withPrompt's own result and that withPrompt does not try to pop a
// prompt the abort already removed.
func TestWithPromptBodyAborts(t *testing.T) {
	m := newTestVM(t)
	tag := m.NewPromptTag("t")

	b := asm.New(m.Heap(), "body")
	b.GetGlobal(0, b.ConstString("Cont.abort"))
	b.LoadConst(1, b.ConstValue(tag))
	b.LoadConst(2, b.ConstNumber(9))
	b.CallNative(0, 2)
	b.Halt(0)
	bodyVal := closureFromBuilder(t, m, b, 0, 3)

	before := m.PromptDepth()
	result := withPrompt(m, []vm.Value{tag, bodyVal})
	if result.IsError() {
		t.Fatalf("withPrompt reported an error")
	}
	if !result.IsNumber() || result.AsNumber() != 9 {
		t.Fatalf("expected the aborted value 9, got %v", result)
	}
	if m.PromptDepth() != before {
		t.Fatalf("expected withPrompt's guarded pop to leave depth at %d, got %d", before, m.PromptDepth())
	}
}

// TestShiftWithoutResumingReplacesResult checks that a handler which never
// calls the continuation it's given simply becomes the delimited
// computation's result, discarding whatever body would otherwise have done.
func TestShiftWithoutResumingReplacesResult(t *testing.T) {
	m := newTestVM(t)
	tag := m.NewPromptTag("t")

	h := asm.New(m.Heap(), "handler")
	h.LoadConst(1, h.ConstNumber(7)) // ignore the continuation parameter in R0
	h.Ret(1, true)
	handlerVal := closureFromBuilder(t, m, h, 1, 2)

	b := asm.New(m.Heap(), "body")
	b.GetGlobal(0, b.ConstString("Cont.shift"))
	b.LoadConst(1, b.ConstValue(tag))
	b.LoadConst(2, b.ConstValue(handlerVal))
	b.CallNative(0, 2)
	b.LoadConst(0, b.ConstNumber(999)) // unreachable: body's own frame is discarded
	b.Ret(0, true)
	bodyVal := closureFromBuilder(t, m, b, 0, 3)

	if err := m.PushPrompt(tag); err != nil {
		t.Fatalf("PushPrompt: %v", err)
	}
	bodyClosure, _ := m.Heap().ResolveClosure(bodyVal)
	result, err := m.CallFunction(bodyClosure, nil)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if !result.IsNumber() || result.AsNumber() != 7 {
		t.Fatalf("expected the handler's own value 7 (body's tail never runs), got %v", result)
	}
}

// TestShiftHandlerResumesDeliversValueAtCapturePoint is the resume property:
// a handler that resumes its continuation splices the suspended computation
// back in with the resume value landing exactly where shift was called, and
// that computation's own result flows back out through the handler.
func TestShiftHandlerResumesDeliversValueAtCapturePoint(t *testing.T) {
	m := newTestVM(t)
	tag := m.NewPromptTag("t")

	h := asm.New(m.Heap(), "handler")
	h.GetGlobal(1, h.ConstString("Cont.resume")) // R1 = Cont.resume
	h.Move(2, 0)                                 // R2 = k (the parameter in R0)
	h.LoadConst(3, h.ConstNumber(32))            // R3 = 32
	h.CallNative(1, 2)                           // R1 <- redirected result of resuming k with 32
	h.Move(0, 1)
	h.Ret(0, true)
	handlerVal := closureFromBuilder(t, m, h, 1, 4)

	b := asm.New(m.Heap(), "body")
	b.GetGlobal(0, b.ConstString("Cont.shift"))
	b.LoadConst(1, b.ConstValue(tag))
	b.LoadConst(2, b.ConstValue(handlerVal))
	b.CallNative(0, 2) // R0 <- resumed value (32) once body is spliced back in
	b.LoadConst(3, b.ConstNumber(10))
	b.Add(4, 0, 3) // R4 = R0 + 10
	b.Ret(4, true)
	bodyVal := closureFromBuilder(t, m, b, 0, 5)

	if err := m.PushPrompt(tag); err != nil {
		t.Fatalf("PushPrompt: %v", err)
	}
	bodyClosure, _ := m.Heap().ResolveClosure(bodyVal)
	result, err := m.CallFunction(bodyClosure, nil)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if !result.IsNumber() || result.AsNumber() != 42 {
		t.Fatalf("expected 32+10=42, got %v", result)
	}
}
