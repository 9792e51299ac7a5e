// Copyright 2026 The Ember Authors
// This file is part of Ember.

// Package hash registers a Crypto.sha3 / Crypto.shake256 native binding
// backed by golang.org/x/crypto/sha3, finishing the wiring the teacher's own
// stdlib/crypto package left as TODO stubs.
package hash

import (
	"golang.org/x/crypto/sha3"

	"github.com/ember-lang/embervm/vm"
)

// Register installs Crypto.sha3 and Crypto.shake256 onto m.
func Register(m *vm.VM) error {
	if err := m.RegisterNative("Crypto.sha3(val)", sha3Hash); err != nil {
		return err
	}
	return m.RegisterNative("Crypto.shake256(val, val)", shake256)
}

func sha3Hash(m *vm.VM, args []vm.Value) vm.Value {
	s, ok := m.Heap().StringValue(args[0])
	if !ok {
		m.ReportRuntimeError(vm.ErrTypeMismatch)
		return vm.ErrorSentinel()
	}
	sum := sha3.Sum256([]byte(s))
	return m.Heap().CopyStringPublic(sum[:])
}

// shake256 takes the message and a desired output length in bytes.
func shake256(m *vm.VM, args []vm.Value) vm.Value {
	s, ok := m.Heap().StringValue(args[0])
	if !ok || !args[1].IsNumber() {
		m.ReportRuntimeError(vm.ErrTypeMismatch)
		return vm.ErrorSentinel()
	}
	n := int(args[1].AsNumber())
	if n < 0 || n > 1<<20 {
		m.ReportRuntimeError(vm.ErrIndexOutOfRange)
		return vm.ErrorSentinel()
	}
	out := make([]byte, n)
	sha3.ShakeSum256(out, []byte(s))
	return m.Heap().CopyStringPublic(out)
}
