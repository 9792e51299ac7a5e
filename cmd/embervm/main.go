// Copyright 2026 The Ember Authors
// This file is part of Ember.

// Command embervm loads a serialized Ember chunk, optionally disassembles
// it, and runs it to completion, printing the result value and the heap's
// tracked byte count — the CLI shape the teacher's cmd/probec used for
// its own "-emit" bytecode workflow, adapted from a blockchain transaction
// runner to a general-purpose bytecode runner.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ember-lang/embervm/stdlib/control"
	"github.com/ember-lang/embervm/stdlib/gcapi"
	"github.com/ember-lang/embervm/stdlib/hash"
	"github.com/ember-lang/embervm/stdlib/preempt"
	"github.com/ember-lang/embervm/vm"
)

func main() {
	var (
		disasm    = flag.Bool("disasm", false, "print the chunk's disassembly before running")
		noRun     = flag.Bool("no-run", false, "disassemble only, do not execute")
		gcThresh  = flag.Uint64("gc-threshold", 0, "override the initial GC byte threshold (0 = default)")
		timeslice = flag.Int("preempt", 0, "enable cooperative preemption with this instruction timeslice (0 = disabled)")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: embervm [flags] <chunk-file>")
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "embervm: %v\n", err)
		os.Exit(1)
	}

	opts := []vm.Option{
		vm.WithErrorCallback(func(m *vm.VM, status vm.ErrorStatus, file string, line int, message string) {
			fmt.Fprintf(os.Stderr, "embervm: %s:%d: %s\n", file, line, message)
		}),
	}
	if *gcThresh > 0 {
		opts = append(opts, vm.WithGCThreshold(*gcThresh))
	}
	if *timeslice > 0 {
		opts = append(opts, vm.WithPreemption(*timeslice))
	}
	m := vm.New(opts...)

	chunk, err := vm.DecodeChunk(m.Heap(), data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "embervm: %v\n", err)
		os.Exit(1)
	}

	if *disasm {
		fmt.Print(vm.Disassemble(chunk))
	}
	if *noRun {
		return
	}

	for _, reg := range []func(*vm.VM) error{control.Register, gcapi.Register, preempt.Register, hash.Register} {
		if err := reg(m); err != nil {
			fmt.Fprintf(os.Stderr, "embervm: registering native stdlib: %v\n", err)
			os.Exit(1)
		}
	}

	fnVal := m.Heap().NewFunctionPublic(chunk.Name, 0, entryPointRegs(chunk), chunk, nil, nil)
	closureVal, ok := m.Heap().NewClosurePublic(fnVal)
	if !ok {
		fmt.Fprintln(os.Stderr, "embervm: internal error constructing entry point closure")
		os.Exit(1)
	}
	closure, _ := m.Heap().ResolveClosure(closureVal)

	result, err := m.CallFunction(closure, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "embervm: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("result: %s\n", formatValue(m, result))
	fmt.Printf("bytes tracked: %d\n", m.Heap().BytesAllocated())
}

// entryPointRegs picks a generously large register window for the synthetic
// top-level function wrapping a bare chunk, since a chunk produced by a real
// compiler would carry its own exact maxRegs but a hand-assembled one
// (via asm.Builder) typically does not bother recording it separately.
func entryPointRegs(chunk *vm.Chunk) int {
	return 256
}

func formatValue(m *vm.VM, v vm.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsBool():
		return fmt.Sprintf("%v", v.AsBool())
	case v.IsNumber():
		return fmt.Sprintf("%g", v.AsNumber())
	default:
		if s, ok := m.Heap().StringValue(v); ok {
			return fmt.Sprintf("%q", s)
		}
		return fmt.Sprintf("<%s>", vm.TypeName(m.Heap(), v))
	}
}
