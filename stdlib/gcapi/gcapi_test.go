// Copyright 2026 The Ember Authors
// This file is part of Ember.

package gcapi

import (
	"testing"

	"github.com/ember-lang/embervm/vm"
)

func newTestVM(t *testing.T) *vm.VM {
	t.Helper()
	m := vm.New(vm.WithFramesMax(64), vm.WithStackMax(1024))
	if err := Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return m
}

func TestRegisterInstallsAllGCNatives(t *testing.T) {
	m := newTestVM(t)
	for _, name := range []string{"GC.cycle", "GC.getBytesTracked", "GC.enable", "GC.disable"} {
		if _, ok := m.Global(name); !ok {
			t.Fatalf("expected %s to be registered as a global", name)
		}
	}
}

func TestCycleReclaimsUnreachableAllocation(t *testing.T) {
	m := newTestVM(t)
	m.Heap().CopyStringPublic([]byte("unrooted, nothing holds it"))

	before := bytesTracked(m, nil)
	if v := cycle(m, nil); v.IsError() {
		t.Fatalf("cycle reported an error")
	}
	after := bytesTracked(m, nil)
	if !(after.AsNumber() < before.AsNumber()) {
		t.Fatalf("expected a GC cycle to reclaim the unrooted string: before=%v after=%v", before, after)
	}
}

func TestEnableDisableToggleAutomaticCollection(t *testing.T) {
	m := newTestVM(t)
	if v := disable(m, nil); v != vm.Null {
		t.Fatalf("expected disable to return Null, got %v", v)
	}
	if v := enable(m, nil); v != vm.Null {
		t.Fatalf("expected enable to return Null, got %v", v)
	}
	// An explicit GC.cycle() must still run even while automatic collection
	// is disabled (Collect ignores gcEnabled by design).
	disable(m, nil)
	if v := cycle(m, nil); v.IsError() {
		t.Fatalf("cycle should still run an explicit collection while disabled")
	}
}
