// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

import (
	"fmt"
	"strings"
)

// Disassemble renders chunk's instruction stream as human-readable text, one
// line per instruction, in the vein of the teacher's own opcode table plus
// String()/IsWideImmediate() helpers — useful for debugging the interpreter
// and for golden-output tests, not part of the execution path itself.
func Disassemble(chunk *Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", chunk.Name)
	for ip, ins := range chunk.Code {
		disassembleInstruction(&b, chunk, ip, ins)
	}
	return b.String()
}

func disassembleInstruction(b *strings.Builder, chunk *Chunk, ip int, ins Instruction) {
	op := ins.opcode()
	line := chunk.LineFor(ip)
	fmt.Fprintf(b, "%04d  L%-4d  %-20s", ip, line, op.String())

	switch op.form() {
	case FormABC:
		fmt.Fprintf(b, "A=%d B=%d C=%d", ins.a(), ins.b(), ins.c())
	case FormAB:
		fmt.Fprintf(b, "A=%d B=%d", ins.a(), ins.bWide())
	case FormABx:
		bx := ins.bx()
		fmt.Fprintf(b, "A=%d Bx=%d", ins.a(), bx)
		if op == OpLoadConst || op == OpGetGlobal || op == OpSetGlobal ||
			op == OpGetGlobalCached || op == OpSetGlobalCached || op == OpNewStruct || op == OpCapture {
			if int(bx) < len(chunk.Constants) {
				fmt.Fprintf(b, "  ; %s", describeConstant(chunk, int(bx)))
			}
		}
	case FormA:
		fmt.Fprintf(b, "A=%d", ins.aWide())
	case FormVariable:
		fmt.Fprintf(b, "A=%d Bx=%d", ins.a(), ins.bx())
	}
	b.WriteByte('\n')
}

func describeConstant(chunk *Chunk, idx int) string {
	if idx < len(chunk.ConstStrings) && chunk.ConstStrings[idx] != "" {
		return fmt.Sprintf("%q", chunk.ConstStrings[idx])
	}
	v := chunk.Constants[idx]
	switch {
	case v.IsNull():
		return "null"
	case v.IsBool():
		return fmt.Sprintf("%v", v.AsBool())
	case v.IsNumber():
		return fmt.Sprintf("%g", v.AsNumber())
	default:
		return "<object>"
	}
}
