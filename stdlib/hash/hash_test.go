// Copyright 2026 The Ember Authors
// This file is part of Ember.

package hash

import (
	"testing"

	"golang.org/x/crypto/sha3"

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

func TestRegisterInstallsCryptoNatives(t *testing.T) {
	m := newTestVM(t)
	for _, name := range []string{"Crypto.sha3", "Crypto.shake256"} {
		if _, ok := m.Global(name); !ok {
			t.Fatalf("expected %s to be registered as a global", name)
		}
	}
}

func TestSha3MatchesReferenceSum(t *testing.T) {
	m := newTestVM(t)
	msg := []byte("ember")
	want := sha3.Sum256(msg)

	result := sha3Hash(m, []vm.Value{m.Heap().CopyStringPublic(msg)})
	got, ok := m.Heap().StringValue(result)
	if !ok {
		t.Fatalf("expected sha3Hash to return a string value")
	}
	if got != string(want[:]) {
		t.Fatalf("sha3 digest mismatch")
	}
}

func TestSha3RejectsNonString(t *testing.T) {
	m := newTestVM(t)
	result := sha3Hash(m, []vm.Value{vm.Number(1)})
	if !result.IsError() {
		t.Fatalf("expected a type-mismatch error for a non-string argument")
	}
}

func TestShake256ProducesRequestedLength(t *testing.T) {
	m := newTestVM(t)
	msg := []byte("ember")
	for _, n := range []int{0, 16, 64} {
		result := shake256(m, []vm.Value{m.Heap().CopyStringPublic(msg), vm.Number(float64(n))})
		got, ok := m.Heap().StringValue(result)
		if !ok {
			t.Fatalf("expected shake256 to return a string value")
		}
		if len(got) != n {
			t.Fatalf("expected a %d-byte digest, got %d", n, len(got))
		}
	}
}

func TestShake256RejectsNegativeLength(t *testing.T) {
	m := newTestVM(t)
	result := shake256(m, []vm.Value{m.Heap().CopyStringPublic([]byte("x")), vm.Number(-1)})
	if !result.IsError() {
		t.Fatalf("expected a negative length to be rejected")
	}
}
