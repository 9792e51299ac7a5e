// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

// This file is the seam a bytecode builder outside this package (see asm)
// uses to construct chunks and the handful of heap objects — functions and
// prompt tags — that only make sense as compile-time constants, without
// reaching into vm's unexported instruction encoding or allocator.

// EncodeABC, EncodeAB, EncodeABx, and EncodeA build instruction words in
// each of §4.4's operand forms.
func EncodeABC(op Opcode, a, b, c uint8) Instruction { return encodeABC(op, a, b, c) }
func EncodeAB(op Opcode, a uint8, b uint16) Instruction { return encodeAB(op, a, b) }
func EncodeABx(op Opcode, a uint8, bx uint16) Instruction { return encodeABx(op, a, bx) }
func EncodeA(op Opcode, a uint32) Instruction { return encodeA(op, a) }

func (i Instruction) Opcode() Opcode { return i.opcode() }
func (i Instruction) A() uint8       { return i.a() }
func (i Instruction) B() uint8       { return i.b() }
func (i Instruction) C() uint8       { return i.c() }
func (i Instruction) BWide() uint16  { return i.bWide() }
func (i Instruction) Bx() uint16     { return i.bx() }
func (i Instruction) SBx() int32     { return i.sBx() }
func (i Instruction) AWide() uint32  { return i.aWide() }

// CopyStringPublic interns b and returns it wrapped as a Value, for a
// builder populating a chunk's constant pool with string literals.
func (h *Heap) CopyStringPublic(b []byte) Value {
	return objValue(h.copyString(b).hdr().handle)
}

// NewFunctionPublic allocates a functionObj and wraps it as a Value, for a
// builder assembling a nested function constant.
func (h *Heap) NewFunctionPublic(name string, arity, maxRegs int, body *Chunk, upvalueDescs []UpvalueDescriptor, paramQuals []Qualifier) Value {
	sig := SigAllNormalNoRefs
	for _, q := range paramQuals {
		if q != QualNone && q != QualVal {
			sig = SigHasQualifiers
			break
		}
	}
	fn := h.newFunction(&functionObj{
		arity:        arity,
		maxRegs:      maxRegs,
		chunk:        body,
		name:         name,
		upvalueDescs: upvalueDescs,
		paramQuals:   paramQuals,
		qualSig:      sig,
	})
	return objValue(fn.hdr().handle)
}

// BytesAllocated reports the heap's current live-allocation estimate, for
// GC.getBytesTracked().
func (h *Heap) BytesAllocated() uint64 { return h.bytesAllocated }

// SetGCEnabled turns the automatic collect-at-threshold behavior on or off;
// Collect (and VM.Collect) still runs on an explicit request either way.
func (h *Heap) SetGCEnabled(enabled bool) { h.gcEnabled = enabled }

// StringValue returns the Go string backing v if v is a String object.
func (h *Heap) StringValue(v Value) (string, bool) {
	if !v.IsObject() {
		return "", false
	}
	s, ok := h.resolve(v.handle()).(*stringObj)
	if !ok {
		return "", false
	}
	return s.String(), true
}

// NewPromptTagPublic allocates a fresh PromptTag object and wraps it as a
// Value, for a builder that needs a compile-time prompt tag constant.
func (h *Heap) NewPromptTagPublic(id uint32, name string) Value {
	return objValue(h.newPromptTag(id, name).hdr().handle)
}

// NewClosurePublic wraps a top-level function (one with no captured
// upvalues) as a directly callable closure Value — the shape CallFunction
// and a host's program entry point need.
func (h *Heap) NewClosurePublic(fnVal Value) (Value, bool) {
	fn, ok := h.resolve(fnVal.handle()).(*functionObj)
	if !ok {
		return Value(0), false
	}
	cl := h.newClosure(fn, nil)
	return objValue(cl.hdr().handle), true
}

// ResolveClosure is a convenience for hosts/tests that already hold a Value
// known to wrap a Closure and want the concrete object to pass to
// VM.CallFunction.
func (h *Heap) ResolveClosure(v Value) (*closureObj, bool) {
	if !v.IsObject() {
		return nil, false
	}
	c, ok := h.resolve(v.handle()).(*closureObj)
	return c, ok
}
