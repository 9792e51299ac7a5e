// Copyright 2026 The Ember Authors
// This file is part of Ember.

// Package asm provides a small programmatic bytecode builder for
// github.com/ember-lang/embervm/vm, standing in for the AST-to-bytecode
// compiler that is out of scope for this execution core. It lets tests and
// cmd/embervm construct runnable vm.Chunk values without a source-language
// front end.
package asm

import "github.com/ember-lang/embervm/vm"

// Builder accumulates instructions and constants for a single vm.Chunk. Its
// method names mirror the instruction mnemonics so a sequence of calls reads
// like the disassembly it produces.
type Builder struct {
	chunk *vm.Chunk
	heap  *vm.Heap
	lines []int32
	line  int32
}

// New starts a fresh Builder. heap is needed so string constants can be
// interned directly through the same allocator the running VM will use.
func New(heap *vm.Heap, name string) *Builder {
	return &Builder{chunk: &vm.Chunk{Name: name}, heap: heap}
}

// AtLine sets the source line attributed to subsequently emitted
// instructions, for chunks that want a populated line table.
func (b *Builder) AtLine(line int) *Builder { b.line = int32(line); return b }

func (b *Builder) emit(ins vm.Instruction) int {
	b.chunk.Code = append(b.chunk.Code, ins)
	b.lines = append(b.lines, b.line)
	return len(b.chunk.Code) - 1
}

// ConstNumber/ConstString/ConstBool/ConstNull append a constant-pool entry
// and return its index, for use as the Bx/C operand of a LOAD_CONST or
// GET_GLOBAL-family instruction.
func (b *Builder) ConstNumber(f float64) uint16 {
	b.chunk.Constants = append(b.chunk.Constants, vm.Number(f))
	b.chunk.ConstStrings = append(b.chunk.ConstStrings, "")
	return uint16(len(b.chunk.Constants) - 1)
}

func (b *Builder) ConstString(s string) uint16 {
	obj := b.heap.CopyStringPublic([]byte(s))
	b.chunk.Constants = append(b.chunk.Constants, obj)
	b.chunk.ConstStrings = append(b.chunk.ConstStrings, s)
	return uint16(len(b.chunk.Constants) - 1)
}

func (b *Builder) ConstBool(v bool) uint16 {
	b.chunk.Constants = append(b.chunk.Constants, vm.Bool(v))
	b.chunk.ConstStrings = append(b.chunk.ConstStrings, "")
	return uint16(len(b.chunk.Constants) - 1)
}

func (b *Builder) ConstNull() uint16 {
	b.chunk.Constants = append(b.chunk.Constants, vm.Null)
	b.chunk.ConstStrings = append(b.chunk.ConstStrings, "")
	return uint16(len(b.chunk.Constants) - 1)
}

// ConstValue appends an already-constructed Value (e.g. a prompt tag or
// function object handed back by NewFunction) as a constant and returns its
// index.
func (b *Builder) ConstValue(v vm.Value) uint16 {
	b.chunk.Constants = append(b.chunk.Constants, v)
	b.chunk.ConstStrings = append(b.chunk.ConstStrings, "")
	return uint16(len(b.chunk.Constants) - 1)
}

// Label returns the index the next emitted instruction will occupy, for
// patching a later jump's relative offset back to it.
func (b *Builder) Label() int { return len(b.chunk.Code) }

// PatchJump overwrites the ABx-form instruction at ip so its signed offset
// targets dest.
func (b *Builder) PatchJump(ip, dest int) {
	ins := b.chunk.Code[ip]
	op := ins.Opcode()
	offset := int16(dest - ip - 1)
	b.chunk.Code[ip] = vm.EncodeABx(op, ins.A(), uint16(offset))
}

// Chunk finalizes and returns the built chunk, attaching the accumulated
// line table.
func (b *Builder) Chunk() *vm.Chunk {
	lines := make([]int32, len(b.lines))
	copy(lines, b.lines)
	b.chunk.Lines = lines
	return b.chunk
}

// ---- mnemonic instruction emitters --------------------------------------

func (b *Builder) LoadConst(dst uint8, constIdx uint16) int { return b.emit(vm.EncodeABx(vm.OpLoadConst, dst, constIdx)) }
func (b *Builder) LoadNull(dst uint8) int                   { return b.emit(vm.EncodeA(vm.OpLoadNull, uint32(dst))) }
func (b *Builder) LoadBool(dst uint8, v bool) int {
	var w uint16
	if v {
		w = 1
	}
	return b.emit(vm.EncodeAB(vm.OpLoadBool, dst, w))
}
func (b *Builder) Move(dst, src uint8) int { return b.emit(vm.EncodeAB(vm.OpMove, dst, uint16(src))) }

func (b *Builder) Add(dst, lhs, rhs uint8) int { return b.emit(vm.EncodeABC(vm.OpAdd, dst, lhs, rhs)) }
func (b *Builder) Sub(dst, lhs, rhs uint8) int { return b.emit(vm.EncodeABC(vm.OpSub, dst, lhs, rhs)) }
func (b *Builder) Mul(dst, lhs, rhs uint8) int { return b.emit(vm.EncodeABC(vm.OpMul, dst, lhs, rhs)) }
func (b *Builder) Div(dst, lhs, rhs uint8) int { return b.emit(vm.EncodeABC(vm.OpDiv, dst, lhs, rhs)) }
func (b *Builder) Mod(dst, lhs, rhs uint8) int { return b.emit(vm.EncodeABC(vm.OpMod, dst, lhs, rhs)) }
func (b *Builder) Neg(dst, src uint8) int      { return b.emit(vm.EncodeAB(vm.OpNeg, dst, uint16(src))) }
func (b *Builder) Not(dst, src uint8) int      { return b.emit(vm.EncodeAB(vm.OpNot, dst, uint16(src))) }
func (b *Builder) Eq(dst, lhs, rhs uint8) int  { return b.emit(vm.EncodeABC(vm.OpEq, dst, lhs, rhs)) }
func (b *Builder) Lt(dst, lhs, rhs uint8) int  { return b.emit(vm.EncodeABC(vm.OpLt, dst, lhs, rhs)) }
func (b *Builder) Le(dst, lhs, rhs uint8) int  { return b.emit(vm.EncodeABC(vm.OpLe, dst, lhs, rhs)) }

func (b *Builder) GetGlobal(dst uint8, nameConst uint16) int {
	return b.emit(vm.EncodeABx(vm.OpGetGlobal, dst, nameConst))
}
func (b *Builder) SetGlobal(src uint8, nameConst uint16) int {
	return b.emit(vm.EncodeABx(vm.OpSetGlobal, src, nameConst))
}
func (b *Builder) SlotSetGlobal(src uint8, nameConst uint16) int {
	return b.emit(vm.EncodeABx(vm.OpSlotSetGlobal, src, nameConst))
}

func (b *Builder) GetUpvalue(dst, idx uint8) int { return b.emit(vm.EncodeAB(vm.OpGetUpvalue, dst, uint16(idx))) }
func (b *Builder) SetUpvalue(src, idx uint8) int { return b.emit(vm.EncodeAB(vm.OpSetUpvalue, src, uint16(idx))) }
func (b *Builder) CloseFrameUpvalues(floor uint8) int {
	return b.emit(vm.EncodeA(vm.OpCloseFrameUpvalues, uint32(floor)))
}

func (b *Builder) NewStruct(dst uint8, schemaConst uint16) int {
	return b.emit(vm.EncodeABx(vm.OpNewStruct, dst, schemaConst))
}
func (b *Builder) GetField(dst, container uint8, keyConst uint8) int {
	return b.emit(vm.EncodeABC(vm.OpGetField, dst, container, keyConst))
}
func (b *Builder) SetField(src, container uint8, keyConst uint8) int {
	return b.emit(vm.EncodeABC(vm.OpSetField, src, container, keyConst))
}
func (b *Builder) NewList(dst uint8, capHint uint16) int { return b.emit(vm.EncodeAB(vm.OpNewList, dst, capHint)) }
func (b *Builder) ListAppend(dst, elem uint8) int        { return b.emit(vm.EncodeAB(vm.OpListAppend, dst, uint16(elem))) }
func (b *Builder) NewMap(dst uint8) int                  { return b.emit(vm.EncodeA(vm.OpNewMap, uint32(dst))) }
func (b *Builder) NewEnum(dst uint8, typeID, variant uint8) int {
	return b.emit(vm.EncodeABC(vm.OpNewEnum, dst, typeID, variant))
}
func (b *Builder) IndexGet(dst, container, index uint8) int {
	return b.emit(vm.EncodeABC(vm.OpIndexGet, dst, container, index))
}
func (b *Builder) IndexSet(src, container, index uint8) int {
	return b.emit(vm.EncodeABC(vm.OpIndexSet, src, container, index))
}

func (b *Builder) MakeRefLocal(dst, slot uint8) int {
	return b.emit(vm.EncodeABC(vm.OpMakeRef, dst, slot, 0))
}
func (b *Builder) SlotMakeRefLocal(dst, slot uint8) int {
	return b.emit(vm.EncodeABC(vm.OpSlotMakeRef, dst, slot, 0))
}
func (b *Builder) DerefGet(dst, ref uint8) int { return b.emit(vm.EncodeAB(vm.OpDerefGet, dst, uint16(ref))) }
func (b *Builder) DerefSet(ref, val uint8) int { return b.emit(vm.EncodeAB(vm.OpDerefSet, ref, uint16(val))) }
func (b *Builder) SlotDerefSet(ref, val uint8) int {
	return b.emit(vm.EncodeAB(vm.OpSlotDerefSet, ref, uint16(val)))
}

// Jump/JumpIfFalse/JumpIfTrue emit with a placeholder offset of 0; call
// PatchJump once the destination is known.
func (b *Builder) Jump() int         { return b.emit(vm.EncodeABx(vm.OpJump, 0, 0)) }
func (b *Builder) JumpIfFalse(cond uint8) int { return b.emit(vm.EncodeABx(vm.OpJumpIfFalse, cond, 0)) }
func (b *Builder) JumpIfTrue(cond uint8) int  { return b.emit(vm.EncodeABx(vm.OpJumpIfTrue, cond, 0)) }

func (b *Builder) Closure(dst uint8, fnConst uint16) int { return b.emit(vm.EncodeABx(vm.OpClosure, dst, fnConst)) }
func (b *Builder) Call(callee uint8, argc uint8) int     { return b.emit(vm.EncodeABC(vm.OpCall, callee, argc, 0)) }
func (b *Builder) TailCall(callee uint8, argc uint8) int { return b.emit(vm.EncodeAB(vm.OpTailCall, callee, uint16(argc))) }
func (b *Builder) CallNative(callee uint8, argc uint8) int {
	return b.emit(vm.EncodeABC(vm.OpCallNative, callee, argc, 0))
}
func (b *Builder) Ret(src uint8, hasValue bool) int {
	var w uint16
	if hasValue {
		w = 1
	}
	return b.emit(vm.EncodeAB(vm.OpRet, src, w))
}
func (b *Builder) Halt(src uint8) int { return b.emit(vm.EncodeA(vm.OpHalt, uint32(src))) }

func (b *Builder) PushPrompt(tagReg uint8) int { return b.emit(vm.EncodeA(vm.OpPushPrompt, uint32(tagReg))) }
func (b *Builder) PopPrompt() int              { return b.emit(vm.EncodeA(vm.OpPopPrompt, 0)) }
func (b *Builder) Capture(dst uint8, tagConst uint16) int {
	return b.emit(vm.EncodeABx(vm.OpCapture, dst, tagConst))
}
func (b *Builder) Resume(cont, val uint8) int { return b.emit(vm.EncodeABC(vm.OpResume, cont, val, 0)) }
func (b *Builder) Abort(tag, val uint8) int   { return b.emit(vm.EncodeAB(vm.OpAbort, tag, uint16(val))) }

func (b *Builder) Typeof(dst, src uint8) int { return b.emit(vm.EncodeAB(vm.OpTypeof, dst, uint16(src))) }
func (b *Builder) Nop() int                  { return b.emit(vm.EncodeA(vm.OpNop, 0)) }

// NewFunction allocates a functionObj on heap and wraps it as a constant
// Value ready for ConstValue, mirroring what a real compiler's codegen
// backend would hand to the chunk builder for each nested function.
func (b *Builder) NewFunction(name string, arity, maxRegs int, body *vm.Chunk, upvalueDescs []vm.UpvalueDescriptor, paramQuals []vm.Qualifier) vm.Value {
	return b.heap.NewFunctionPublic(name, arity, maxRegs, body, upvalueDescs, paramQuals)
}

// NewPromptTag allocates a fresh PromptTag object and wraps it as a Value.
func (b *Builder) NewPromptTag(id uint32, name string) vm.Value {
	return b.heap.NewPromptTagPublic(id, name)
}
