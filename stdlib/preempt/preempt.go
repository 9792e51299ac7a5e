// Copyright 2026 The Ember Authors
// This file is part of Ember.

// Package preempt registers the Preempt.* native functions that let
// compiled bytecode cooperate with the VM's yield-budget mechanism (§4.9),
// following the teacher's native-package shape.
package preempt

import "github.com/ember-lang/embervm/vm"

// Register installs every Preempt.* native function onto m.
func Register(m *vm.VM) error {
	fns := map[string]func(*vm.VM, []vm.Value) vm.Value{
		"Preempt.enable(val)":      enable,
		"Preempt.disable()":        disable,
		"Preempt.setTimeslice(val)": setTimeslice,
		"Preempt.request()":        request,
		"Preempt.reset()":          reset,
		"Preempt.remaining()":      remaining,
		"Preempt.yield()":          yield,
	}
	for sig, fn := range fns {
		if err := m.RegisterNative(sig, fn); err != nil {
			return err
		}
	}
	return nil
}

func enable(m *vm.VM, args []vm.Value) vm.Value {
	n := 10000
	if len(args) == 1 && args[0].IsNumber() {
		n = int(args[0].AsNumber())
	}
	m.EnablePreemption(n)
	return vm.Null
}

func disable(m *vm.VM, args []vm.Value) vm.Value {
	m.DisablePreemption()
	return vm.Null
}

func setTimeslice(m *vm.VM, args []vm.Value) vm.Value {
	m.EnablePreemption(int(args[0].AsNumber()))
	return vm.Null
}

func request(m *vm.VM, args []vm.Value) vm.Value {
	m.RequestPreempt()
	return vm.Null
}

func reset(m *vm.VM, args []vm.Value) vm.Value {
	m.ResetPreemptBudget()
	return vm.Null
}

func remaining(m *vm.VM, args []vm.Value) vm.Value {
	return vm.Number(float64(m.RemainingBudget()))
}

// yield asks the current Step/Run loop to return control to the host at the
// next safe point, the same effect a native "yield" keyword would have in a
// host language with real coroutines — here it is just RequestPreempt, and
// like any other native it returns Null into the call's destination
// register.
func yield(m *vm.VM, args []vm.Value) vm.Value {
	m.RequestPreempt()
	return vm.Null
}
