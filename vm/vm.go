// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

import (
	"fmt"
	"math"
	"sync/atomic"
)

const (
	defaultStackMax  = 64 * 1024
	defaultFramesMax = 1024
	defaultPromptMax = 256
	defaultResumeMax = 256
)

// VM is one instance of the Ember execution core: its register stack, call
// frames, heap, globals, prompt stack, and preemption state. A VM is not
// safe for concurrent use from multiple goroutines (§5).
type VM struct {
	stack    []Value
	stackTop int
	stackMax int // hard cap on stack growth (§9's STACK_MAX); growStack refuses beyond this

	frames     []CallFrame
	frameCount int

	heap         *Heap
	globals      map[string]Value
	openUpvalues *upvalueObj // ordered by descending location

	prompts        []promptEntry
	promptsMax     int
	resumeDepthMax int
	nextPromptID   uint32

	resumeStack []ResumeContext // one entry per in-flight RESUME, innermost last (§4.7)

	tempRoots []Value // pushed by native functions that need to protect an intermediate value across an allocation

	nativeResultSlot int // absolute destination register of the native call currently executing; read by Capture/Resume

	preemptEnabled   bool
	preemptRequested atomic.Bool
	timeslice        int
	budget           int

	errorCallback ErrorCallback
	lastError     *RuntimeError
	gcRunning     bool

	frameOverflowGuard int // not read anywhere; no spare frames are reserved for stack-overflow error unwinding
}

// Option configures a VM at construction time (§1's "generalizing the
// teacher's fixed-argument constructor into the functional-options idiom").
type Option func(*VM)

// WithStackMax sets both the initial number of Value slots the register
// stack is allocated with and the hard ceiling growStack refuses to grow
// past (§9's STACK_MAX).
func WithStackMax(n int) Option {
	return func(vm *VM) { vm.stack = make([]Value, n); vm.stackMax = n }
}

// WithFramesMax sets the maximum call-frame depth.
func WithFramesMax(n int) Option { return func(vm *VM) { vm.frames = make([]CallFrame, n) } }

// WithGCThreshold overrides the heap's initial collection threshold.
func WithGCThreshold(bytes uint64) Option {
	return func(vm *VM) { vm.heap.nextGC = bytes }
}

// WithErrorCallback installs the host's error-reporting hook (§6).
func WithErrorCallback(cb ErrorCallback) Option { return func(vm *VM) { vm.errorCallback = cb } }

// WithPreemption enables cooperative preemption with the given timeslice at
// construction time, equivalent to calling EnablePreemption immediately
// after New.
func WithPreemption(timeslice int) Option {
	return func(vm *VM) { vm.preemptEnabled = true; vm.timeslice = timeslice; vm.budget = timeslice }
}

// New constructs a VM with no code loaded, applying any functional options
// over sensible defaults; code is run afterwards through CallFunction.
func New(opts ...Option) *VM {
	vm := &VM{
		heap:           newHeap(),
		globals:        make(map[string]Value),
		promptsMax:     defaultPromptMax,
		resumeDepthMax: defaultResumeMax,
	}
	for _, o := range opts {
		o(vm)
	}
	if vm.stack == nil {
		vm.stack = make([]Value, defaultStackMax)
	}
	if vm.stackMax == 0 {
		vm.stackMax = len(vm.stack)
	}
	if vm.frames == nil {
		vm.frames = make([]CallFrame, defaultFramesMax)
	}
	return vm
}

// Heap exposes the VM's heap so stdlib packages can allocate objects and
// intern strings on the host's behalf.
func (vm *VM) Heap() *Heap { return vm.heap }

// SetGlobal installs v as the named global, for host bootstrap code that
// predates any compiled chunk (e.g. registering native stdlib bundles).
func (vm *VM) SetGlobal(name string, v Value) { vm.globals[name] = v }

// Global looks up a global by name.
func (vm *VM) Global(name string) (Value, bool) { v, ok := vm.globals[name]; return v, ok }

// PushTempRoot protects v from collection across subsequent allocations
// until a matching PopTempRoot, for native functions that build up a
// composite value across more than one allocating call (§5).
func (vm *VM) PushTempRoot(v Value) { vm.tempRoots = append(vm.tempRoots, v) }

// PopTempRoot releases the most recently pushed temp root.
func (vm *VM) PopTempRoot() {
	if n := len(vm.tempRoots); n > 0 {
		vm.tempRoots = vm.tempRoots[:n-1]
	}
}

func (vm *VM) growStack(minSize int) error {
	if minSize <= len(vm.stack) {
		return nil
	}
	if minSize > vm.stackMax {
		return vm.runtimeErrorf(KindBound, ErrStackOverflow, "value stack overflow (max %d)", vm.stackMax)
	}
	newSize := len(vm.stack) * 2
	if newSize < minSize {
		newSize = minSize
	}
	if newSize > vm.stackMax {
		newSize = vm.stackMax
	}
	grown := make([]Value, newSize)
	copy(grown, vm.stack)
	vm.stack = grown
	// Registers are addressed frame-base-relative (§9), so growing never
	// requires rewriting any frame's base or any open upvalue's location:
	// both are plain indices into vm.stack, which still denote the same
	// logical slots after this copy.
	return nil
}

func (vm *VM) readRegister(i int) Value  { return vm.stack[i] }
func (vm *VM) writeRegister(i int, v Value) { vm.stack[i] = v }

func (vm *VM) push(v Value) error {
	if err := vm.growStack(vm.stackTop + 1); err != nil {
		return err
	}
	vm.stack[vm.stackTop] = v
	vm.stackTop++
	return nil
}

// ---- upvalues -----------------------------------------------------------

// findOrCreateUpvalue returns the existing open upvalue for stack slot
// location if one is already in the VM-wide open list, preserving the
// aliasing guarantee two closures capturing the same local share one
// Upvalue object (§4.6); otherwise it allocates and inserts a new one,
// keeping the list ordered by descending location.
func (vm *VM) findOrCreateUpvalue(location int) *upvalueObj {
	var prev *upvalueObj
	cur := vm.openUpvalues
	for cur != nil && cur.location > location {
		prev = cur
		cur = cur.nextOpen
	}
	if cur != nil && cur.location == location {
		return cur
	}
	fresh := vm.heap.newUpvalue(location)
	fresh.nextOpen = cur
	if prev == nil {
		vm.openUpvalues = fresh
	} else {
		prev.nextOpen = fresh
	}
	return fresh
}

// closeUpvaluesFrom closes every open upvalue whose location is >= floor,
// copying the live stack value into the upvalue and detaching it from the
// open list (§4.6's CLOSE_FRAME_UPVALUES).
func (vm *VM) closeUpvaluesFrom(floor int) {
	for vm.openUpvalues != nil && vm.openUpvalues.location >= floor {
		uv := vm.openUpvalues
		uv.closed = vm.stack[uv.location]
		uv.state = upvalueClosed
		vm.openUpvalues = uv.nextOpen
		uv.nextOpen = nil
	}
}

// ---- error reporting ------------------------------------------------------

func (vm *VM) reportError(re *RuntimeError) {
	vm.lastError = re
	if vm.errorCallback != nil {
		line := 0
		if len(re.Trace) > 0 {
			line = re.Trace[0].Line
		}
		vm.errorCallback(vm, StatusRuntimeError, "", line, re.Error())
	}
}

// LastError returns the most recently reported runtime error, or nil.
func (vm *VM) LastError() *RuntimeError { return vm.lastError }

// ---- calling --------------------------------------------------------------

// callClosure pushes a new CallFrame for closure over the arguments already
// sitting at vm.stack[argBase:argBase+argc], growing the stack to fit the
// callee's register window (§4.5).
func (vm *VM) callClosure(closure *closureObj, argBase, argc, resultSlot int) error {
	fn := closure.fn
	if argc != fn.arity {
		return vm.runtimeErrorf(KindRuntime, ErrArityMismatch, "%s expects %d argument(s), got %d", fn.name, fn.arity, argc)
	}
	if vm.frameCount >= len(vm.frames) {
		return vm.runtimeErrorf(KindBound, ErrFrameOverflow, "call frame overflow (max %d)", len(vm.frames))
	}
	needed := argBase + fn.maxRegs
	if err := vm.growStack(needed); err != nil {
		return err
	}
	if needed > vm.stackTop {
		vm.stackTop = needed
	}
	vm.frames[vm.frameCount] = CallFrame{closure: closure, ip: 0, base: argBase, resultSlot: resultSlot}
	vm.frameCount++
	return nil
}

// Run executes from the VM's current frame until HALT, RET past the
// outermost frame, an uncaught error, or a preemption yield point, and
// returns the top-level result value.
func (vm *VM) Run() (Value, error) {
	for {
		result, halted, err := vm.Step()
		if err != nil {
			return Value(0), err
		}
		if halted {
			return result, nil
		}
		if vm.preemptEnabled && vm.checkPreempt() {
			return Value(0), nil
		}
	}
}

// CallFunction invokes closure as a fresh top-level call with args, running
// it to completion (or an error/HALT) and returning its result. This is the
// host embedding entry point (§6) — e.g. stdlib/control uses it to run a
// Cont.shift handler and a Cont.withPrompt body.
func (vm *VM) CallFunction(closure *closureObj, args []Value) (Value, error) {
	base := vm.stackTop
	for _, a := range args {
		if err := vm.push(a); err != nil {
			return Value(0), err
		}
	}
	floor := vm.frameCount
	if err := vm.callClosure(closure, base, len(args), base); err != nil {
		return Value(0), err
	}
	for vm.frameCount > floor {
		result, halted, err := vm.Step()
		if err != nil {
			return Value(0), err
		}
		// HALT (and a RET that empties the whole frame stack) report their
		// value directly since there's no caller register left to hold it;
		// a RET that only unwinds back to this call's own floor already
		// wrote it to base, the call's own result slot.
		if halted {
			return result, nil
		}
	}
	return vm.stack[base], nil
}

// Step decodes and executes exactly one instruction at the current frame's
// ip. It reports halted=true when HALT was executed or the outermost frame
// returned, in which case result is the program's final value.
func (vm *VM) Step() (result Value, halted bool, err error) {
	if vm.frameCount == 0 {
		return Value(0), true, nil
	}
	frame := &vm.frames[vm.frameCount-1]
	chunk := frame.closure.fn.chunk
	if frame.ip >= len(chunk.Code) {
		return Value(0), true, nil
	}
	ins := chunk.Code[frame.ip]
	op := ins.opcode()
	frame.ip++

	switch op {
	case OpNop:

	case OpLoadConst:
		vm.writeRegister(frame.base+int(ins.a()), chunk.Constants[ins.bx()])

	case OpLoadNull:
		vm.writeRegister(frame.base+int(ins.a()), Null)

	case OpLoadBool:
		vm.writeRegister(frame.base+int(ins.a()), Bool(ins.bWide() != 0))

	case OpMove:
		vm.writeRegister(frame.base+int(ins.a()), vm.readRegister(frame.base+int(ins.bWide())))

	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		l := vm.readRegister(frame.base + int(ins.b()))
		r := vm.readRegister(frame.base + int(ins.c()))
		v, e := vm.arith(op, l, r)
		if e != nil {
			return Value(0), false, e
		}
		vm.writeRegister(frame.base+int(ins.a()), v)

	case OpNeg:
		v := vm.readRegister(frame.base + int(ins.bWide()))
		if !v.IsNumber() {
			return Value(0), false, vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "cannot negate a %s", TypeName(vm.heap, v))
		}
		vm.writeRegister(frame.base+int(ins.a()), Number(-v.AsNumber()))

	case OpNot:
		v := vm.readRegister(frame.base + int(ins.bWide()))
		vm.writeRegister(frame.base+int(ins.a()), Bool(v.IsFalsy()))

	case OpEq:
		l := vm.readRegister(frame.base + int(ins.b()))
		r := vm.readRegister(frame.base + int(ins.c()))
		vm.writeRegister(frame.base+int(ins.a()), Bool(Equal(l, r)))

	case OpLt, OpLe:
		l := vm.readRegister(frame.base + int(ins.b()))
		r := vm.readRegister(frame.base + int(ins.c()))
		if !l.IsNumber() || !r.IsNumber() {
			return Value(0), false, vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "cannot compare %s and %s", TypeName(vm.heap, l), TypeName(vm.heap, r))
		}
		ok := l.AsNumber() < r.AsNumber()
		if op == OpLe {
			ok = l.AsNumber() <= r.AsNumber()
		}
		vm.writeRegister(frame.base+int(ins.a()), Bool(ok))

	case OpGetGlobal, OpGetGlobalCached:
		name := vm.constString(chunk, int(ins.bx()))
		v, ok := vm.globals[name]
		if !ok {
			return Value(0), false, vm.runtimeErrorf(KindRuntime, ErrUndefinedGlobal, "undefined global %q", name)
		}
		vm.writeRegister(frame.base+int(ins.a()), v)

	case OpSetGlobal, OpSetGlobalCached:
		name := vm.constString(chunk, int(ins.bx()))
		if e := vm.setGlobalFollow(name, vm.readRegister(frame.base+int(ins.a()))); e != nil {
			return Value(0), false, e
		}

	case OpSlotSetGlobal:
		name := vm.constString(chunk, int(ins.bx()))
		vm.globals[name] = vm.readRegister(frame.base + int(ins.a()))

	case OpGetUpvalue:
		uv := frame.closure.upvalues[ins.bWide()]
		vm.writeRegister(frame.base+int(ins.a()), vm.readUpvalue(uv))

	case OpSetUpvalue:
		uv := frame.closure.upvalues[ins.bWide()]
		vm.writeUpvalue(uv, vm.readRegister(frame.base+int(ins.a())))

	case OpCloseUpvalue:
		vm.closeUpvaluesFrom(frame.base + int(ins.aWide()))

	case OpCloseFrameUpvalues:
		vm.closeUpvaluesFrom(frame.base + int(ins.aWide()))

	case OpNewStruct:
		schemaVal := chunk.Constants[ins.bx()]
		schema, ok := vm.heap.resolve(schemaVal.handle()).(*structSchemaObj)
		if !ok {
			return Value(0), false, vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "NEW_STRUCT constant is not a struct schema")
		}
		inst := vm.heap.newStructInstance(schema)
		vm.writeRegister(frame.base+int(ins.a()), objValue(inst.hdr().handle))

	case OpNewEnum:
		vm.writeRegister(frame.base+int(ins.a()), Enum(uint16(ins.b()), uint16(ins.c())))

	case OpNewList:
		l := vm.heap.newListCap(int(ins.bWide()))
		vm.writeRegister(frame.base+int(ins.a()), objValue(l.hdr().handle))

	case OpListAppend:
		dst := vm.readRegister(frame.base + int(ins.a()))
		elem := vm.readRegister(frame.base + int(ins.bWide()))
		if !dst.IsObject() {
			return Value(0), false, vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "not a list")
		}
		l, ok := vm.heap.resolve(dst.handle()).(*listObj)
		if !ok {
			return Value(0), false, vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "not a list")
		}
		l.elems = append(l.elems, elem)

	case OpNewMap:
		m := vm.heap.newMap()
		vm.writeRegister(frame.base+int(ins.aWide()), objValue(m.hdr().handle))

	case OpGetField:
		v := vm.readRegister(frame.base + int(ins.b()))
		key := vm.constString(chunk, int(ins.c()))
		result, e := vm.getField(v, key)
		if e != nil {
			return Value(0), false, e
		}
		vm.writeRegister(frame.base+int(ins.a()), result)

	case OpSetField:
		target := vm.readRegister(frame.base + int(ins.b()))
		val := vm.readRegister(frame.base + int(ins.a()))
		key := vm.constString(chunk, int(ins.c()))
		if e := vm.setField(target, key, val); e != nil {
			return Value(0), false, e
		}

	case OpIndexGet:
		container := vm.readRegister(frame.base + int(ins.b()))
		idx := vm.readRegister(frame.base + int(ins.c()))
		v, e := vm.indexGet(container, idx)
		if e != nil {
			return Value(0), false, e
		}
		vm.writeRegister(frame.base+int(ins.a()), v)

	case OpIndexSet:
		container := vm.readRegister(frame.base + int(ins.b()))
		idx := vm.readRegister(frame.base + int(ins.c()))
		val := vm.readRegister(frame.base + int(ins.a()))
		if e := vm.indexSet(container, idx, val); e != nil {
			return Value(0), false, e
		}

	case OpTypeof:
		v := vm.readRegister(frame.base + int(ins.bWide()))
		name := TypeName(vm.heap, v)
		vm.writeRegister(frame.base+int(ins.a()), objValue(vm.heap.copyString([]byte(name)).hdr().handle))

	case OpJump:
		frame.ip += int(ins.sBx())

	case OpJumpIfFalse:
		if vm.readRegister(frame.base + int(ins.a())).IsFalsy() {
			frame.ip += int(int16(ins.bx()))
		}

	case OpJumpIfTrue:
		if !vm.readRegister(frame.base + int(ins.a())).IsFalsy() {
			frame.ip += int(int16(ins.bx()))
		}

	case OpClosure:
		idx := int(ins.bx())
		fn, ok := vm.heap.resolve(chunk.Constants[idx].handle()).(*functionObj)
		if !ok {
			return Value(0), false, vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "CLOSURE constant is not a function")
		}
		upvalues := make([]*upvalueObj, len(fn.upvalueDescs))
		for i, desc := range fn.upvalueDescs {
			if desc.FromParentLocal {
				upvalues[i] = vm.findOrCreateUpvalue(frame.base + desc.Index)
			} else {
				upvalues[i] = frame.closure.upvalues[desc.Index]
			}
		}
		cl := vm.heap.newClosure(fn, upvalues)
		vm.writeRegister(frame.base+int(ins.a()), objValue(cl.hdr().handle))

	case OpCall:
		calleeSlot := frame.base + int(ins.a())
		argc := int(ins.b())
		callee := vm.readRegister(calleeSlot)
		if e := vm.execCall(callee, calleeSlot+1, argc, calleeSlot); e != nil {
			return Value(0), false, e
		}

	case OpTailCall, OpSmartTailCall:
		calleeSlot := frame.base + int(ins.a())
		argc := int(ins.bWide())
		callee := vm.readRegister(calleeSlot)
		vm.closeUpvaluesFrom(frame.base)
		resultSlot := frame.resultSlot
		vm.frameCount--
		if e := vm.execCall(callee, calleeSlot+1, argc, resultSlot); e != nil {
			return Value(0), false, e
		}

	case OpCallNative:
		calleeSlot := frame.base + int(ins.a())
		argc := int(ins.b())
		callee := vm.readRegister(calleeSlot)
		args := append([]Value(nil), vm.stack[calleeSlot+1:calleeSlot+1+argc]...)
		v, e := vm.dispatchNative(callee, args, calleeSlot)
		if e != nil {
			return Value(0), false, e
		}
		if !v.IsControlTransfer() {
			vm.writeRegister(calleeSlot, v)
		}

	case OpRet:
		var retVal Value
		if ins.bWide() != 0 {
			retVal = vm.readRegister(frame.base + int(ins.a()))
		} else {
			retVal = Null
		}
		vm.closeUpvaluesFrom(frame.base)
		resultSlot := frame.resultSlot
		vm.frameCount--

		// A RET that lands exactly on a resumed computation's original frame
		// boundary redirects its result to the RESUME call's own destination
		// register instead of the (stale) frame's resultSlot (§4.7).
		if n := len(vm.resumeStack); n > 0 && vm.frameCount == vm.resumeStack[n-1].frameBoundary {
			resultSlot = vm.resumeStack[n-1].resultSlot
			vm.resumeStack = vm.resumeStack[:n-1]
		}

		// Always deliver retVal to resultSlot before checking whether this was
		// the outermost frame: CallFunction reads the call's own base register
		// once its loop ends, so that slot must hold the real result even when
		// frameCount has just dropped to zero and there is no caller frame left
		// to resume stepping.
		vm.writeRegister(resultSlot, retVal)
		if vm.frameCount == 0 {
			return retVal, true, nil
		}

	case OpHalt:
		return vm.readRegister(frame.base + int(ins.aWide())), true, nil

	case OpMakeRef:
		v, e := vm.makeRef(frame, ins, true)
		if e != nil {
			return Value(0), false, e
		}
		vm.writeRegister(frame.base+int(ins.a()), v)

	case OpSlotMakeRef:
		v, e := vm.makeRef(frame, ins, false)
		if e != nil {
			return Value(0), false, e
		}
		vm.writeRegister(frame.base+int(ins.a()), v)

	case OpDerefGet:
		ref := vm.readRegister(frame.base + int(ins.bWide()))
		v, e := vm.derefGet(ref)
		if e != nil {
			return Value(0), false, e
		}
		vm.writeRegister(frame.base+int(ins.a()), v)

	case OpDerefSet:
		ref := vm.readRegister(frame.base + int(ins.a()))
		val := vm.readRegister(frame.base + int(ins.bWide()))
		if e := vm.derefSet(ref, val); e != nil {
			return Value(0), false, e
		}

	case OpSlotDerefSet:
		ref := vm.readRegister(frame.base + int(ins.a()))
		val := vm.readRegister(frame.base + int(ins.bWide()))
		if e := vm.derefSetSlot(ref, val); e != nil {
			return Value(0), false, e
		}

	case OpPushPrompt:
		tagVal := vm.readRegister(frame.base + int(ins.aWide()))
		if !tagVal.IsObject() {
			return Value(0), false, vm.runtimeErrorf(KindControl, ErrTypeMismatch, "PUSH_PROMPT operand is not a prompt tag")
		}
		tag, ok := vm.heap.resolve(tagVal.handle()).(*promptTagObj)
		if !ok {
			return Value(0), false, vm.runtimeErrorf(KindControl, ErrTypeMismatch, "PUSH_PROMPT operand is not a prompt tag")
		}
		if e := vm.pushPrompt(tag); e != nil {
			return Value(0), false, e
		}

	case OpPopPrompt:
		vm.popPrompt()

	case OpCapture:
		tagVal := chunk.Constants[ins.bx()]
		tag, ok := vm.heap.resolve(tagVal.handle()).(*promptTagObj)
		if !ok {
			return Value(0), false, vm.runtimeErrorf(KindControl, ErrTypeMismatch, "CAPTURE constant is not a prompt tag")
		}
		idx, ok := vm.findPrompt(tag)
		if !ok {
			return Value(0), false, vm.runtimeErrorf(KindControl, ErrPromptNotFound, "no prompt matches tag %q", tag.name)
		}
		dst := frame.base + int(ins.a())
		cont := vm.capture(idx, dst)
		vm.writeRegister(dst, objValue(cont.hdr().handle))

	case OpResume:
		contVal := vm.readRegister(frame.base + int(ins.a()))
		resumeVal := vm.readRegister(frame.base + int(ins.b()))
		if !contVal.IsObject() {
			return Value(0), false, vm.runtimeErrorf(KindControl, ErrTypeMismatch, "RESUME operand is not a continuation")
		}
		cont, ok := vm.heap.resolve(contVal.handle()).(*continuationObj)
		if !ok {
			return Value(0), false, vm.runtimeErrorf(KindControl, ErrTypeMismatch, "RESUME operand is not a continuation")
		}
		if e := vm.resume(cont, resumeVal, frame.base+int(ins.a())); e != nil {
			return Value(0), false, e
		}

	case OpAbort:
		tagVal := vm.readRegister(frame.base + int(ins.a()))
		val := vm.readRegister(frame.base + int(ins.bWide()))
		if !tagVal.IsObject() {
			return Value(0), false, vm.runtimeErrorf(KindControl, ErrTypeMismatch, "ABORT operand is not a prompt tag")
		}
		tag, ok := vm.heap.resolve(tagVal.handle()).(*promptTagObj)
		if !ok {
			return Value(0), false, vm.runtimeErrorf(KindControl, ErrTypeMismatch, "ABORT operand is not a prompt tag")
		}
		if e := vm.abort(tag, val); e != nil {
			return Value(0), false, e
		}

	default:
		return Value(0), false, vm.runtimeErrorf(KindFatal, ErrInvalidOpcode, "invalid opcode %d at ip %d", op, frame.ip-1)
	}

	if err := vm.maybeCollect(); err != nil {
		return Value(0), false, err
	}
	return Value(0), false, nil
}

func (vm *VM) constString(chunk *Chunk, idx int) string {
	if idx < len(chunk.ConstStrings) && chunk.ConstStrings[idx] != "" {
		return chunk.ConstStrings[idx]
	}
	v := chunk.Constants[idx]
	if v.IsObject() {
		if s, ok := vm.heap.resolve(v.handle()).(*stringObj); ok {
			return s.String()
		}
	}
	return ""
}

func (vm *VM) readUpvalue(uv *upvalueObj) Value {
	if uv.state == upvalueOpen {
		return vm.stack[uv.location]
	}
	return uv.closed
}

func (vm *VM) writeUpvalue(uv *upvalueObj, v Value) {
	if uv.state == upvalueOpen {
		vm.stack[uv.location] = v
		return
	}
	uv.closed = v
}

func (vm *VM) arith(op Opcode, l, r Value) (Value, error) {
	if !l.IsNumber() || !r.IsNumber() {
		return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "arithmetic on non-number operands (%s, %s)", TypeName(vm.heap, l), TypeName(vm.heap, r))
	}
	a, b := l.AsNumber(), r.AsNumber()
	switch op {
	case OpAdd:
		return Number(a + b), nil
	case OpSub:
		return Number(a - b), nil
	case OpMul:
		return Number(a * b), nil
	case OpDiv:
		// IEEE-754 division: a/0 yields +/-Inf, 0/0 yields NaN, never an
		// error (§8's boundary behavior for doubles).
		return Number(a / b), nil
	case OpMod:
		return Number(math.Mod(a, b)), nil
	}
	return Value(0), fmt.Errorf("vm: unreachable arith opcode %s", op)
}

// setGlobalFollow writes val to the global named name, chasing through an
// existing RefLocal/RefGlobal Reference already stored there rather than
// overwriting the reference itself — the behavior plain SET_GLOBAL has and
// SLOT_SET_GLOBAL deliberately does not (§4.5, §8's "slot ref does not
// flatten").
func (vm *VM) setGlobalFollow(name string, val Value) error {
	if cur, ok := vm.globals[name]; ok && cur.IsObject() {
		if r, ok := vm.heap.resolve(cur.handle()).(*referenceObj); ok {
			return vm.derefSet(objValue(r.hdr().handle), val)
		}
	}
	vm.globals[name] = val
	return nil
}

// execCall dispatches a CALL-family operand to a closure call, a native
// call, or an error, depending on the callee's dynamic type.
func (vm *VM) execCall(callee Value, argBase, argc, resultSlot int) error {
	if !callee.IsObject() {
		return vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "value of type %s is not callable", TypeName(vm.heap, callee))
	}
	switch o := vm.heap.resolve(callee.handle()).(type) {
	case *closureObj:
		return vm.callClosure(o, argBase, argc, resultSlot)
	case *nativeFunctionObj, *nativeClosureObj, *dispatcherObj:
		args := append([]Value(nil), vm.stack[argBase:argBase+argc]...)
		v, err := vm.dispatchNative(callee, args, resultSlot)
		if err != nil {
			return err
		}
		if !v.IsControlTransfer() {
			vm.writeRegister(resultSlot, v)
		}
		return nil
	default:
		return vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "value of type %s is not callable", o.typeName())
	}
}
