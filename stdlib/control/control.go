// Copyright 2026 The Ember Authors
// This file is part of Ember.

// Package control registers the Cont.* native functions that expose
// Ember's delimited-continuation primitives (prompt/capture/resume/abort)
// to compiled bytecode through the native call bridge, mirroring the shape
// of the teacher's own native stdlib packages: one Register(vm) entry point
// per bundle, each call wrapping a handful of core VM operations.
package control

import (
	"fmt"

	"github.com/ember-lang/embervm/vm"
)

// Register installs every Cont.* native function onto m.
func Register(m *vm.VM) error {
	fns := map[string]func(*vm.VM, []vm.Value) vm.Value{
		"Cont.newPrompt(val)":      newPrompt,
		"Cont.pushPrompt(val)":     pushPrompt,
		"Cont.popPrompt()":         popPrompt,
		"Cont.capture(val)":        capture,
		"Cont.resume(val, val)":    resume,
		"Cont.abort(val, val)":     abort,
		"Cont.shift(val, val)":     shift,
		"Cont.withPrompt(val, val)": withPrompt,
	}
	for sig, fn := range fns {
		if err := m.RegisterNative(sig, fn); err != nil {
			return err
		}
	}
	return nil
}

func newPrompt(m *vm.VM, args []vm.Value) vm.Value {
	name := "prompt"
	if len(args) == 1 {
		if s, ok := m.Heap().StringValue(args[0]); ok {
			name = s
		}
	}
	return m.NewPromptTag(name)
}

func pushPrompt(m *vm.VM, args []vm.Value) vm.Value {
	if err := m.PushPrompt(args[0]); err != nil {
		m.ReportRuntimeError(err)
		return vm.ErrorSentinel()
	}
	return vm.Null
}

func popPrompt(m *vm.VM, args []vm.Value) vm.Value {
	m.PopPrompt()
	return vm.Null
}

func capture(m *vm.VM, args []vm.Value) vm.Value {
	cont, err := m.Capture(args[0])
	if err != nil {
		m.ReportRuntimeError(err)
		return vm.ErrorSentinel()
	}
	return cont
}

func resume(m *vm.VM, args []vm.Value) vm.Value {
	if err := m.Resume(args[0], args[1]); err != nil {
		m.ReportRuntimeError(err)
		return vm.ErrorSentinel()
	}
	return vm.ControlTransferSentinel()
}

func abort(m *vm.VM, args []vm.Value) vm.Value {
	if err := m.Abort(args[0], args[1]); err != nil {
		m.ReportRuntimeError(err)
		return vm.ErrorSentinel()
	}
	return vm.ControlTransferSentinel()
}

// shift captures the continuation up to tag and hands it to handler as that
// closure's sole argument, then delivers handler's result as if the
// delimited computation under tag had aborted with it — so a handler that
// never calls the continuation it's given simply replaces that computation's
// value, and one that does call it splices the suspended computation back in
// around wherever it chooses to resume.
func shift(m *vm.VM, args []vm.Value) vm.Value {
	tagVal, handlerVal := args[0], args[1]
	handler, ok := m.Heap().ResolveClosure(handlerVal)
	if !ok {
		m.ReportRuntimeError(fmt.Errorf("Cont.shift: second argument is not a closure"))
		return vm.ErrorSentinel()
	}
	k, err := m.Capture(tagVal)
	if err != nil {
		m.ReportRuntimeError(err)
		return vm.ErrorSentinel()
	}
	result, err := m.CallFunction(handler, []vm.Value{k})
	if err != nil {
		m.ReportRuntimeError(err)
		return vm.ErrorSentinel()
	}
	if err := m.DeliverAtCaptureSite(k, result); err != nil {
		m.ReportRuntimeError(err)
		return vm.ErrorSentinel()
	}
	return vm.ControlTransferSentinel()
}

// withPrompt pushes a fresh boundary under tag, runs body under it to
// completion, and pops that boundary again — unless body's own execution
// already consumed it via an abort, capture, or shift targeting tag, in
// which case the prompt is already gone and popping it again would remove
// whatever boundary now sits on top instead.
func withPrompt(m *vm.VM, args []vm.Value) vm.Value {
	tagVal, bodyVal := args[0], args[1]
	body, ok := m.Heap().ResolveClosure(bodyVal)
	if !ok {
		m.ReportRuntimeError(fmt.Errorf("Cont.withPrompt: second argument is not a closure"))
		return vm.ErrorSentinel()
	}
	if err := m.PushPrompt(tagVal); err != nil {
		m.ReportRuntimeError(err)
		return vm.ErrorSentinel()
	}
	before := m.PromptDepth()
	result, err := m.CallFunction(body, nil)
	if err != nil {
		m.ReportRuntimeError(err)
		return vm.ErrorSentinel()
	}
	if m.PromptDepth() == before {
		m.PopPrompt()
	}
	return result
}
