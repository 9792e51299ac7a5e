// Copyright 2026 The Ember Authors
// This file is part of Ember.

// Package gcapi registers the GC.* native functions that let compiled
// bytecode (or a host test) observe and drive the tracing collector
// directly, following the same one-Register-entry-point shape as the
// teacher's native stdlib packages.
package gcapi

import "github.com/ember-lang/embervm/vm"

// Register installs every GC.* native function onto m.
func Register(m *vm.VM) error {
	fns := map[string]func(*vm.VM, []vm.Value) vm.Value{
		"GC.cycle()":          cycle,
		"GC.getBytesTracked()": bytesTracked,
		"GC.enable()":          enable,
		"GC.disable()":         disable,
	}
	for sig, fn := range fns {
		if err := m.RegisterNative(sig, fn); err != nil {
			return err
		}
	}
	return nil
}

func cycle(m *vm.VM, args []vm.Value) vm.Value {
	if err := m.Collect(); err != nil {
		m.ReportRuntimeError(err)
		return vm.ErrorSentinel()
	}
	return vm.Null
}

func bytesTracked(m *vm.VM, args []vm.Value) vm.Value {
	return vm.Number(float64(m.Heap().BytesAllocated()))
}

func enable(m *vm.VM, args []vm.Value) vm.Value {
	m.Heap().SetGCEnabled(true)
	return vm.Null
}

func disable(m *vm.VM, args []vm.Value) vm.Value {
	m.Heap().SetGCEnabled(false)
	return vm.Null
}
