// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

// capture snapshots every call frame and stack slot above the prompt at
// promptIdx into a fresh Continuation object, then unwinds the live VM down
// to that prompt so the suspended computation stops running and control
// returns at the prompt's own call site (§4.7's "frame_count := pf;
// stack_top := prompt.stack_base; popPrompt()"). resultSlot is the absolute
// register the CAPTURE expression (or the native call invoking Capture)
// writes its result to; it becomes the continuation's own entry point.
func (vm *VM) capture(promptIdx, resultSlot int) *continuationObj {
	entry := vm.prompts[promptIdx]

	stackSlice := make([]Value, vm.stackTop-entry.stackBase)
	copy(stackSlice, vm.stack[entry.stackBase:vm.stackTop])

	// A first-class Reference to a local below the capture boundary would
	// dangle once that frame's slot is reused after the unwind below, so it
	// is rewritten here into a private copy of what it pointed at right now.
	for i, v := range stackSlice {
		if !v.IsObject() {
			continue
		}
		r, ok := vm.heap.resolve(v.handle()).(*referenceObj)
		if !ok || r.kind != RefLocal || r.slot >= entry.stackBase {
			continue
		}
		owned := vm.heap.newReference(RefOwned)
		owned.owned = vm.stack[r.slot]
		stackSlice[i] = objValue(owned.hdr().handle)
	}

	frames := make([]savedFrame, vm.frameCount-entry.frameIndex)
	for i := range frames {
		f := vm.frames[entry.frameIndex+i]
		frames[i] = savedFrame{
			closure:    f.closure,
			ip:         f.ip,
			base:       f.base - entry.stackBase,
			resultSlot: f.resultSlot - entry.stackBase,
		}
		if entry.frameIndex+i > 0 {
			caller := vm.frames[entry.frameIndex+i-1]
			frames[i].callerChunk = caller.closure.fn.chunk
			frames[i].callerIP = caller.ip
		}
	}

	var home *CallFrame
	if vm.frameCount > 0 {
		home = &vm.frames[vm.frameCount-1]
	}

	cont := vm.heap.newContinuation()
	cont.frames = frames
	cont.stack = stackSlice
	cont.stackBase = entry.stackBase
	cont.promptTag = entry.tag
	cont.state = ContinuationValid
	cont.returnSlot = resultSlot - entry.stackBase
	if home != nil {
		cont.savedIP = home.ip
		cont.savedChunk = home.closure.fn.chunk
	}

	vm.frameCount = entry.frameIndex
	vm.stackTop = entry.stackBase
	vm.prompts = vm.prompts[:promptIdx]
	vm.dropResumeContextsAbove(entry.frameIndex)

	// Deliver the continuation itself at the prompt's own call site, exactly
	// as ABORT delivers a plain value: whatever called into the now-discarded
	// computation sees it as if that call had simply returned cont. A direct
	// CAPTURE with nothing above it to discard writes its own destination
	// register separately (see OpCapture) and leaves this write harmlessly
	// above the still-live stack.
	vm.writeRegister(entry.stackBase, objValue(cont.hdr().handle))
	if vm.stackTop <= entry.stackBase {
		vm.stackTop = entry.stackBase + 1
	}

	return cont
}

// resume splices a previously captured, still-Valid continuation back onto
// the live stack above its own prompt (re-pushed at the VM's current floor),
// marks it Consumed so it cannot be resumed twice (§4.7's three-state
// lifecycle), and delivers resumeValue as the result of the CAPTURE call
// that produced it. resultSlot is the absolute register the RESUME call
// itself writes its own (eventual) result to; once the resumed computation's
// innermost frame returns, a ResumeContext redirects that return value here
// (§4.7).
//
// A continuation captured with no intervening call frames above its prompt —
// Capture invoked directly from the frame that pushed the prompt, with no
// closure call in between — has nothing to splice back in: cont.frames is
// empty. resumeValue is then delivered straight to resultSlot with no
// ResumeContext at all, since there is no frame left to redirect a RET from.
func (vm *VM) resume(cont *continuationObj, resumeValue Value, resultSlot int) error {
	if cont.state != ContinuationValid {
		return vm.runtimeErrorf(KindControl, ErrContinuationState, "continuation is not Valid (state=%d)", cont.state)
	}
	if len(vm.resumeStack) >= vm.resumeDepthMax {
		return vm.runtimeErrorf(KindBound, ErrResumeOverflow, "resume nesting overflow (max %d)", vm.resumeDepthMax)
	}
	cont.state = ContinuationConsumed

	if len(cont.frames) == 0 {
		vm.writeRegister(resultSlot, resumeValue)
		return nil
	}

	if err := vm.pushPrompt(cont.promptTag); err != nil {
		return err
	}

	newFloor := vm.stackTop
	if err := vm.growStack(newFloor + len(cont.stack)); err != nil {
		return err
	}
	copy(vm.stack[newFloor:], cont.stack)
	vm.stackTop = newFloor + len(cont.stack)

	frameBoundary := vm.frameCount
	for _, sf := range cont.frames {
		if vm.frameCount >= len(vm.frames) {
			return vm.runtimeErrorf(KindBound, ErrFrameOverflow, "call frame overflow during resume (max %d)", len(vm.frames))
		}
		vm.frames[vm.frameCount] = CallFrame{
			closure:    sf.closure,
			ip:         sf.ip,
			base:       sf.base + newFloor,
			resultSlot: sf.resultSlot + newFloor,
		}
		vm.frameCount++
	}
	// The innermost resumed frame picks up exactly where the continuation's
	// own saved_ip recorded, rather than the last savedFrame entry's ip
	// (identical in practice, but saved_ip is the Continuation's documented
	// resume point per §4.7).
	vm.frames[vm.frameCount-1].ip = cont.savedIP

	vm.resumeStack = append(vm.resumeStack, ResumeContext{frameBoundary: frameBoundary, resultSlot: resultSlot})
	vm.writeRegister(newFloor+cont.returnSlot, resumeValue)
	return nil
}

// abort unwinds to the prompt matching tag, discarding every frame and
// stack slot above it and every pending ResumeContext that pointed into
// that discarded range, pops the prompt itself, and delivers value as the
// result of the call that originally pushed the prompt — the register at
// exactly the discarded stack floor, which is that call's own result slot
// (§4.7).
func (vm *VM) abort(tag *promptTagObj, value Value) error {
	idx, ok := vm.findPrompt(tag)
	if !ok {
		return vm.runtimeErrorf(KindControl, ErrPromptNotFound, "no prompt matches tag %q", tag.name)
	}
	entry := vm.prompts[idx]

	vm.frameCount = entry.frameIndex
	vm.stackTop = entry.stackBase
	vm.prompts = vm.prompts[:idx]
	vm.dropResumeContextsAbove(entry.frameIndex)

	if err := vm.growStack(entry.stackBase + 1); err != nil {
		return err
	}
	vm.writeRegister(entry.stackBase, value)
	if vm.stackTop <= entry.stackBase {
		vm.stackTop = entry.stackBase + 1
	}
	return nil
}

// trace renders a frame-by-frame trace of a still-suspended continuation,
// mirroring VM.captureTrace for the live call stack, using the caller
// chunk/ip each captured frame recorded at capture time.
func (c *continuationObj) trace() []FrameTrace {
	out := make([]FrameTrace, 0, len(c.frames))
	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		name := "<anonymous>"
		if f.closure != nil && f.closure.fn.name != "" {
			name = f.closure.fn.name
		}
		line := 0
		if f.callerChunk != nil {
			line = f.callerChunk.LineFor(f.callerIP)
		}
		out = append(out, FrameTrace{FunctionName: name, Line: line})
	}
	return out
}
