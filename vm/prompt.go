// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

// promptEntry is one live entry on the VM's prompt stack (§4.7). stackBase
// is the absolute stack index this prompt was pushed at; a capture or abort
// targeting this prompt discards everything above stackBase/frameIndex.
type promptEntry struct {
	tag        *promptTagObj
	stackBase  int // stack floor at push time
	frameIndex int // frameCount at push time; the pushing frame itself sits at frameIndex-1 and always survives
}

// pushPrompt installs a new prompt keyed by tag at the VM's current stack
// and frame floor.
func (vm *VM) pushPrompt(tag *promptTagObj) error {
	if len(vm.prompts) >= vm.promptsMax {
		return vm.runtimeErrorf(KindBound, ErrPromptOverflow, "prompt stack overflow (max %d)", vm.promptsMax)
	}
	vm.prompts = append(vm.prompts, promptEntry{
		tag:        tag,
		stackBase:  vm.stackTop,
		frameIndex: vm.frameCount,
	})
	return nil
}

// popPrompt removes the innermost prompt. Called both by POP_PROMPT and by
// normal fallthrough when a with_prompt body returns without performing a
// control effect.
func (vm *VM) popPrompt() {
	if len(vm.prompts) == 0 {
		return
	}
	vm.prompts = vm.prompts[:len(vm.prompts)-1]
}

// findPrompt locates the innermost prompt entry matching tag by identity
// (promptTagObj.id, not address — §3), searching from the top down.
func (vm *VM) findPrompt(tag *promptTagObj) (int, bool) {
	for i := len(vm.prompts) - 1; i >= 0; i-- {
		if vm.prompts[i].tag.id == tag.id {
			return i, true
		}
	}
	return 0, false
}

// ResumeContext records the bookkeeping a RESUME needs to redirect control
// back to the RESUME call site once the resumed computation's innermost
// frame returns: frameBoundary is the live vm.frameCount a matching RET must
// fall to, and resultSlot is where the returned value is delivered instead
// of that frame's own (stale) resultSlot (§4.7).
type ResumeContext struct {
	frameBoundary int
	resultSlot    int
}

// dropResumeContextsAbove discards every pending ResumeContext whose
// frameBoundary lies at or above frameFloor, since the frames it would have
// redirected no longer exist once a capture or abort unwinds past them.
func (vm *VM) dropResumeContextsAbove(frameFloor int) {
	n := len(vm.resumeStack)
	for n > 0 && vm.resumeStack[n-1].frameBoundary >= frameFloor {
		n--
	}
	vm.resumeStack = vm.resumeStack[:n]
}
