// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

// Opcode identifies one of the VM's instructions. Values are stable across a
// release of this package because compiled chunks may be serialized (§6).
type Opcode uint8

const (
	OpNop Opcode = iota

	// ---- loads / moves (ABC or ABx) ----
	OpLoadConst  // A = Bx: R[A] = K[Bx]
	OpLoadNull   // A: R[A] = Null
	OpLoadBool   // AB: R[A] = bool(B)
	OpMove       // AB: R[A] = R[B]

	// ---- arithmetic / comparison (ABC, three-address) ----
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg // AB
	OpNot // AB
	OpEq
	OpLt
	OpLe

	// ---- globals ----
	OpGetGlobal       // ABx: R[A] = globals[K[Bx].(string)]
	OpSetGlobal       // ABx: globals[K[Bx].(string)] = R[A], chasing through an existing Reference
	OpGetGlobalCached // ABx: executed exactly like GetGlobal (Bx names the global in K); no cache or slot table is used
	OpSetGlobalCached
	OpSlotSetGlobal // ABx: globals[K[Bx].(string)] = R[A], exactly one level, never chasing (slot qualifier)

	// ---- upvalues ----
	OpGetUpvalue // AB: R[A] = *Upvalues[B]
	OpSetUpvalue // AB: *Upvalues[B] = R[A]
	OpCloseUpvalue       // A: close every open upvalue with location >= A (same effect as CloseFrameUpvalues)
	OpCloseFrameUpvalues // A: close every open upvalue with location >= A

	// ---- structs / enums / lists / maps ----
	OpNewStruct   // ABx: R[A] = new instance of K[Bx].(*structSchemaObj)
	OpGetField    // ABC: R[A] = R[B].field[K[C].(string)]
	OpSetField    // ABC: R[B].field[K[C].(string)] = R[A]
	OpNewList     // AB: R[A] = new list with capacity hint B
	OpListAppend  // AB: append R[B] to list R[A]
	OpNewMap      // A: R[A] = new empty map
	OpNewEnum     // ABC: R[A] = Enum(B, C) — type id B, variant index C
	OpIndexGet    // ABC: R[A] = R[B][R[C]]
	OpIndexSet    // ABC: R[B][R[C]] = R[A]

	// ---- references ----
	OpMakeRef     // ABC: R[A] = a Reference describing R[B]/C per addressing mode, chasing through an existing local Reference
	OpSlotMakeRef // ABC: like MakeRef but never chases/flattens an existing Reference (slot qualifier)
	OpDerefGet    // AB: R[A] = *R[B]
	OpDerefSet    // AB: *R[A] = R[B], chasing through an existing Reference at the target
	OpSlotDerefSet // AB: *R[A] = R[B], exactly one level, never chasing (slot qualifier)

	// ---- control flow ----
	OpJump     // sBx: ip += sBx
	OpJumpIfFalse // ABx: if falsy(R[A]) ip += Bx
	OpJumpIfTrue  // ABx: if truthy(R[A]) ip += Bx
	OpCall         // ABC: R[A] = call R[A](R[A+1..A+B]), C = expected result count (0 or 1)
	OpTailCall     // AB: tail-call R[A](R[A+1..A+B]) reusing the current frame
	OpSmartTailCall // AB: executed exactly like TailCall; no check of the callee or of open upvalues is made, and it never falls back to a normal Call
	OpClosure  // ABx: R[A] = new closure over K[Bx].(*functionObj); captures come from the function's upvalueDescs, no operand words follow
	OpRet      // AB: return R[A] (B=1) or no value (B=0) from the current frame
	OpHalt     // A: stop the interpreter loop, R[A] is the program result

	// ---- native calls ----
	OpCallNative // ABC: R[A] = call the native in R[A] with args R[A+1..A+B]; C is not read

	// ---- delimited control (§4.4/§4.7) ----
	OpPushPrompt // A: push a new prompt with tag R[A] onto the prompt stack
	OpPopPrompt  // pop the innermost prompt
	OpCapture    // ABx: R[A] = capture up to the innermost prompt matching tag K[Bx]'s identity
	OpResume     // ABC: resume R[A] (a Continuation) with value R[B]; C is not read
	OpAbort      // AB: abort to the prompt matching tag R[A] with value R[B]

	// ---- typeof / misc ----
	OpTypeof // AB: R[A] = type name string of R[B]
)

// operandForm classifies how an instruction word's 24 payload bits are
// sliced, matching §4.4's ABC/AB/ABx/A-only/variable-length taxonomy.
type operandForm uint8

const (
	FormABC operandForm = iota
	FormAB
	FormABx
	FormA
	FormVariable
)

type opcodeInfo struct {
	name string
	form operandForm
}

var opcodeTable = [...]opcodeInfo{
	OpNop:                {"NOP", FormA},
	OpLoadConst:          {"LOAD_CONST", FormABx},
	OpLoadNull:           {"LOAD_NULL", FormA},
	OpLoadBool:           {"LOAD_BOOL", FormAB},
	OpMove:               {"MOVE", FormAB},
	OpAdd:                {"ADD", FormABC},
	OpSub:                {"SUB", FormABC},
	OpMul:                {"MUL", FormABC},
	OpDiv:                {"DIV", FormABC},
	OpMod:                {"MOD", FormABC},
	OpNeg:                {"NEG", FormAB},
	OpNot:                {"NOT", FormAB},
	OpEq:                 {"EQ", FormABC},
	OpLt:                 {"LT", FormABC},
	OpLe:                 {"LE", FormABC},
	OpGetGlobal:          {"GET_GLOBAL", FormABx},
	OpSetGlobal:          {"SET_GLOBAL", FormABx},
	OpGetGlobalCached:    {"GET_GLOBAL_CACHED", FormABx},
	OpSetGlobalCached:    {"SET_GLOBAL_CACHED", FormABx},
	OpSlotSetGlobal:      {"SLOT_SET_GLOBAL", FormABx},
	OpGetUpvalue:         {"GET_UPVALUE", FormAB},
	OpSetUpvalue:         {"SET_UPVALUE", FormAB},
	OpCloseUpvalue:       {"CLOSE_UPVALUE", FormA},
	OpCloseFrameUpvalues: {"CLOSE_FRAME_UPVALUES", FormA},
	OpNewStruct:          {"NEW_STRUCT", FormABx},
	OpGetField:           {"GET_FIELD", FormABC},
	OpSetField:           {"SET_FIELD", FormABC},
	OpNewList:            {"NEW_LIST", FormAB},
	OpListAppend:         {"LIST_APPEND", FormAB},
	OpNewMap:             {"NEW_MAP", FormA},
	OpNewEnum:            {"NEW_ENUM", FormABC},
	OpIndexGet:           {"INDEX_GET", FormABC},
	OpIndexSet:           {"INDEX_SET", FormABC},
	OpMakeRef:            {"MAKE_REF", FormABC},
	OpSlotMakeRef:        {"SLOT_MAKE_REF", FormABC},
	OpDerefGet:           {"DEREF_GET", FormAB},
	OpDerefSet:           {"DEREF_SET", FormAB},
	OpSlotDerefSet:       {"SLOT_DEREF_SET", FormAB},
	OpJump:               {"JUMP", FormABx},
	OpJumpIfFalse:        {"JUMP_IF_FALSE", FormABx},
	OpJumpIfTrue:         {"JUMP_IF_TRUE", FormABx},
	OpCall:               {"CALL", FormABC},
	OpTailCall:           {"TAIL_CALL", FormAB},
	OpSmartTailCall:      {"SMART_TAIL_CALL", FormAB},
	OpClosure:            {"CLOSURE", FormVariable},
	OpRet:                {"RET", FormAB},
	OpHalt:               {"HALT", FormA},
	OpCallNative:         {"CALL_NATIVE", FormABC},
	OpPushPrompt:         {"PUSH_PROMPT", FormA},
	OpPopPrompt:          {"POP_PROMPT", FormA},
	OpCapture:            {"CAPTURE", FormABx},
	OpResume:             {"RESUME", FormABC},
	OpAbort:              {"ABORT", FormAB},
	OpTypeof:             {"TYPEOF", FormAB},
}

func (op Opcode) String() string {
	if int(op) < len(opcodeTable) && opcodeTable[op].name != "" {
		return opcodeTable[op].name
	}
	return "UNKNOWN"
}

func (op Opcode) form() operandForm {
	if int(op) < len(opcodeTable) {
		return opcodeTable[op].form
	}
	return FormA
}

// IsWideImmediate reports whether this opcode's primary immediate is a
// 16-bit Bx/sBx field rather than an 8-bit B/C register field, matching the
// teacher's disassembly helper of the same name.
func (op Opcode) IsWideImmediate() bool {
	switch op.form() {
	case FormABx, FormVariable:
		return true
	default:
		return false
	}
}

// Instruction is one decoded 32-bit instruction word: an 8-bit opcode
// followed by a payload sliced according to its form.
//
//	[31:24] opcode
//	FormABC : [23:16] A  [15:8] B  [7:0] C
//	FormAB  : [23:16] A  [15:0] B  (16-bit B)
//	FormABx : [23:16] A  [15:0] Bx (16-bit, signed for jumps)
//	FormA   : [23:0]  A  (24-bit)
//	FormVariable: opcode-specific; the opcode's handler reads trailing words
type Instruction uint32

func encodeABC(op Opcode, a, b, c uint8) Instruction {
	return Instruction(uint32(op)<<24 | uint32(a)<<16 | uint32(b)<<8 | uint32(c))
}

func encodeAB(op Opcode, a uint8, b uint16) Instruction {
	return Instruction(uint32(op)<<24 | uint32(a)<<16 | uint32(b))
}

func encodeABx(op Opcode, a uint8, bx uint16) Instruction {
	return Instruction(uint32(op)<<24 | uint32(a)<<16 | uint32(bx))
}

func encodeA(op Opcode, a uint32) Instruction {
	return Instruction(uint32(op)<<24 | (a & 0x00FFFFFF))
}

func (i Instruction) opcode() Opcode { return Opcode(i >> 24) }
func (i Instruction) a() uint8       { return uint8(i >> 16) }
func (i Instruction) b() uint8       { return uint8(i >> 8) }
func (i Instruction) c() uint8       { return uint8(i) }
func (i Instruction) bWide() uint16  { return uint16(i) }
func (i Instruction) bx() uint16     { return uint16(i) }
func (i Instruction) sBx() int32     { return int32(int16(uint16(i))) }
func (i Instruction) aWide() uint32  { return uint32(i) & 0x00FFFFFF }
