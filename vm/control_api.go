// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

// NewPromptTag allocates a fresh PromptTag value with a process-unique id
// drawn from the VM's own counter, for host code (see stdlib/control) that
// wants to create a new delimited-control boundary without going through a
// compiled NEW_ENUM-style literal.
func (vm *VM) NewPromptTag(name string) Value {
	vm.nextPromptID++
	tag := vm.heap.newPromptTag(vm.nextPromptID, name)
	return objValue(tag.hdr().handle)
}

func tagFromValue(vm *VM, v Value) (*promptTagObj, error) {
	if !v.IsObject() {
		return nil, vm.runtimeErrorf(KindControl, ErrTypeMismatch, "value is not a prompt tag")
	}
	tag, ok := vm.heap.resolve(v.handle()).(*promptTagObj)
	if !ok {
		return nil, vm.runtimeErrorf(KindControl, ErrTypeMismatch, "value is not a prompt tag")
	}
	return tag, nil
}

func contFromValue(vm *VM, v Value) (*continuationObj, error) {
	if !v.IsObject() {
		return nil, vm.runtimeErrorf(KindControl, ErrTypeMismatch, "value is not a continuation")
	}
	c, ok := vm.heap.resolve(v.handle()).(*continuationObj)
	if !ok {
		return nil, vm.runtimeErrorf(KindControl, ErrTypeMismatch, "value is not a continuation")
	}
	return c, nil
}

// PushPrompt installs tagVal (a PromptTag) as a new delimited-control
// boundary at the VM's current stack/frame floor.
func (vm *VM) PushPrompt(tagVal Value) error {
	tag, err := tagFromValue(vm, tagVal)
	if err != nil {
		return err
	}
	return vm.pushPrompt(tag)
}

// PopPrompt removes the innermost prompt unconditionally.
func (vm *VM) PopPrompt() { vm.popPrompt() }

// Capture captures the delimited continuation up to the innermost prompt
// matching tagVal and returns it as a Continuation value.
func (vm *VM) Capture(tagVal Value) (Value, error) {
	tag, err := tagFromValue(vm, tagVal)
	if err != nil {
		return Value(0), err
	}
	idx, ok := vm.findPrompt(tag)
	if !ok {
		return Value(0), vm.runtimeErrorf(KindControl, ErrPromptNotFound, "no prompt matches tag %q", tag.name)
	}
	cont := vm.capture(idx, vm.nativeResultSlot)
	return objValue(cont.hdr().handle), nil
}

// Resume resumes contVal (a Continuation) with resumeVal as the result
// delivered to the point it was captured at.
func (vm *VM) Resume(contVal, resumeVal Value) error {
	cont, err := contFromValue(vm, contVal)
	if err != nil {
		return err
	}
	return vm.resume(cont, resumeVal, vm.nativeResultSlot)
}

// Abort unwinds to the prompt matching tagVal, delivering val as the result
// of the with_prompt call that installed it.
func (vm *VM) Abort(tagVal, val Value) error {
	tag, err := tagFromValue(vm, tagVal)
	if err != nil {
		return err
	}
	return vm.abort(tag, val)
}

// PromptDepth reports how many prompts are currently live, for a native
// function (e.g. Cont.withPrompt) that needs to tell whether its own pushed
// prompt is still there after running a callback, or whether an inner
// abort/capture already consumed it.
func (vm *VM) PromptDepth() int { return len(vm.prompts) }

// DeliverAtCaptureSite writes value into the stack slot a continuation's
// originating prompt occupied — the same slot Abort targets for that prompt
// — and is used by Cont.shift to deliver its handler's result as if the
// delimited computation captured by contVal had aborted with that value.
func (vm *VM) DeliverAtCaptureSite(contVal, value Value) error {
	cont, err := contFromValue(vm, contVal)
	if err != nil {
		return err
	}
	if err := vm.growStack(cont.stackBase + 1); err != nil {
		return err
	}
	vm.writeRegister(cont.stackBase, value)
	if vm.stackTop <= cont.stackBase {
		vm.stackTop = cont.stackBase + 1
	}
	return nil
}

// ContinuationState reports a Continuation value's lifecycle state, for
// hosts that want to check validity before calling Resume.
func (vm *VM) ContinuationState(contVal Value) (int, error) {
	cont, err := contFromValue(vm, contVal)
	if err != nil {
		return 0, err
	}
	return int(cont.state), nil
}

// ContinuationTrace reports a still-suspended continuation's captured frame
// trace, innermost first, for hosts inspecting a value before resuming it.
func (vm *VM) ContinuationTrace(contVal Value) ([]FrameTrace, error) {
	cont, err := contFromValue(vm, contVal)
	if err != nil {
		return nil, err
	}
	return cont.trace(), nil
}
