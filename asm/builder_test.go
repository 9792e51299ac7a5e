// Copyright 2026 The Ember Authors
// This file is part of Ember.

package asm

import (
	"testing"

	"github.com/ember-lang/embervm/vm"
)

func runChunk(t *testing.T, m *vm.VM, chunk *vm.Chunk, maxRegs int) vm.Value {
	t.Helper()
	fnVal := m.Heap().NewFunctionPublic(chunk.Name, 0, maxRegs, chunk, nil, nil)
	closureVal, ok := m.Heap().NewClosurePublic(fnVal)
	if !ok {
		t.Fatalf("NewClosurePublic failed")
	}
	closure, ok := m.Heap().ResolveClosure(closureVal)
	if !ok {
		t.Fatalf("ResolveClosure failed")
	}
	result, err := m.CallFunction(closure, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

func TestBuilderArithmeticRoundTrip(t *testing.T) {
	m := vm.New(vm.WithFramesMax(64), vm.WithStackMax(1024))
	b := New(m.Heap(), "add")

	c3 := b.ConstNumber(3)
	c4 := b.ConstNumber(4)
	b.LoadConst(0, c3)
	b.LoadConst(1, c4)
	b.Add(2, 0, 1)
	b.Halt(2)

	chunk := b.Chunk()
	if len(chunk.Code) != 4 {
		t.Fatalf("expected 4 instructions, got %d", len(chunk.Code))
	}
	if chunk.Code[2].Opcode() != vm.OpAdd {
		t.Fatalf("expected OpAdd at index 2, got %v", chunk.Code[2].Opcode())
	}

	result := runChunk(t, m, chunk, 4)
	if !result.IsNumber() || result.AsNumber() != 7 {
		t.Fatalf("expected 7, got %v", result)
	}
}

func TestBuilderPatchJumpSkipsInstruction(t *testing.T) {
	m := vm.New(vm.WithFramesMax(64), vm.WithStackMax(1024))
	b := New(m.Heap(), "jump")

	trueIdx := b.ConstBool(true)
	oneIdx := b.ConstNumber(1)
	twoIdx := b.ConstNumber(2)

	b.LoadConst(0, trueIdx) // R0 = true
	jmp := b.JumpIfFalse(0) // skip the "wrong" branch if R0 is false
	b.LoadConst(1, oneIdx)  // taken: R1 = 1
	skip := b.Jump()
	dest := b.Label()
	b.LoadConst(1, twoIdx) // not taken: R1 = 2
	b.PatchJump(jmp, dest)
	end := b.Label()
	b.PatchJump(skip, end)
	b.Halt(1)

	chunk := b.Chunk()
	result := runChunk(t, m, chunk, 4)
	if !result.IsNumber() || result.AsNumber() != 1 {
		t.Fatalf("expected the true branch to run and leave 1, got %v", result)
	}
}

func TestBuilderConstStringInterns(t *testing.T) {
	m := vm.New(vm.WithFramesMax(64), vm.WithStackMax(1024))
	b := New(m.Heap(), "str")
	idx := b.ConstString("hello")
	b.LoadConst(0, idx)
	b.Halt(0)

	chunk := b.Chunk()
	result := runChunk(t, m, chunk, 2)
	s, ok := m.Heap().StringValue(result)
	if !ok || s != "hello" {
		t.Fatalf("expected the interned string %q, got %v", "hello", result)
	}
}

func TestBuilderLabelTracksCodeLength(t *testing.T) {
	m := vm.New(vm.WithFramesMax(64), vm.WithStackMax(1024))
	b := New(m.Heap(), "label")
	if got := b.Label(); got != 0 {
		t.Fatalf("expected label 0 on an empty builder, got %d", got)
	}
	b.Nop()
	b.Nop()
	if got := b.Label(); got != 2 {
		t.Fatalf("expected label 2 after two instructions, got %d", got)
	}
}
