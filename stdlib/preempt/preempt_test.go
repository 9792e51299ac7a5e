// Copyright 2026 The Ember Authors
// This file is part of Ember.

package preempt

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

func TestRegisterInstallsAllPreemptNatives(t *testing.T) {
	m := newTestVM(t)
	for _, name := range []string{
		"Preempt.enable", "Preempt.disable", "Preempt.setTimeslice",
		"Preempt.request", "Preempt.reset", "Preempt.remaining", "Preempt.yield",
	} {
		if _, ok := m.Global(name); !ok {
			t.Fatalf("expected %s to be registered as a global", name)
		}
	}
}

func TestSetTimesliceThenRemainingReflectsBudget(t *testing.T) {
	m := newTestVM(t)
	setTimeslice(m, []vm.Value{vm.Number(100)})
	if got := remaining(m, nil); got.AsNumber() != 100 {
		t.Fatalf("expected a fresh timeslice to leave a full budget of 100, got %v", got)
	}
}

func TestResetRestoresFullBudget(t *testing.T) {
	m := newTestVM(t)
	setTimeslice(m, []vm.Value{vm.Number(10)})
	for i := 0; i < 5; i++ {
		m.RemainingBudget() // does not spend; only checkPreempt() in Step() spends
	}
	reset(m, nil)
	if got := remaining(m, nil); got.AsNumber() != 10 {
		t.Fatalf("expected reset to restore the full budget, got %v", got)
	}
}

func TestRequestAndYieldReturnNull(t *testing.T) {
	m := newTestVM(t)
	m.EnablePreemption(1)
	if v := request(m, nil); v != vm.Null {
		t.Fatalf("expected request to return Null, got %v", v)
	}
	if v := yield(m, nil); v != vm.Null {
		t.Fatalf("expected yield to return Null, got %v", v)
	}
}

func TestEnableAfterDisableResetsBudget(t *testing.T) {
	m := newTestVM(t)
	m.EnablePreemption(5)
	disable(m, nil)
	enable(m, []vm.Value{vm.Number(3)})
	if got := remaining(m, nil); got.AsNumber() != 3 {
		t.Fatalf("expected enable(3) to reset the budget to 3, got %v", got)
	}
}
