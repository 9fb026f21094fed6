// Copyright (C) 1994-2018 Lua.org, PUC-Rio.
// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

//go:generate stringer -type=OpCode,OpMode,OperandKind -linecomment -output=instruction_string.go

package luacode

// OpCode is an enumeration of [Instruction] types.
type OpCode uint8

// Defined [OpCode] values.
const (
	// A B R(A) := R(B)
	OpMove OpCode = 0 // MOVE
	// A Bx R(A) := Kst(Bx)
	OpLoadK OpCode = 1 // LOADK
	// A R(A) := Kst(extra arg)
	OpLoadKX OpCode = 2 // LOADKX
	// A B C R(A) := (Bool)B; if (C) pc++
	OpLoadBool OpCode = 3 // LOADBOOL
	// A B R(A), R(A+1), ..., R(A+B) := nil
	OpLoadNil OpCode = 4 // LOADNIL
	// A B R(A) := UpValue[B]
	OpGetUpval OpCode = 5 // GETUPVAL

	// A B C R(A) := UpValue[B][RK(C)]
	OpGetTabUp OpCode = 6 // GETTABUP
	// A B C R(A) := R(B)[RK(C)]
	OpGetTable OpCode = 7 // GETTABLE

	// A B C UpValue[A][RK(B)] := RK(C)
	OpSetTabUp OpCode = 8 // SETTABUP
	// A B UpValue[B] := R(A)
	OpSetUpval OpCode = 9 // SETUPVAL
	// A B C R(A)[RK(B)] := RK(C)
	OpSetTable OpCode = 10 // SETTABLE

	// A B C R(A) := {} (size = B,C)
	OpNewTable OpCode = 11 // NEWTABLE

	// A B C R(A+1) := R(B); R(A) := R(B)[RK(C)]
	OpSelf OpCode = 12 // SELF

	// A B C R(A) := RK(B) + RK(C)
	OpAdd OpCode = 13 // ADD
	// A B C R(A) := RK(B) - RK(C)
	OpSub OpCode = 14 // SUB
	// A B C R(A) := RK(B) * RK(C)
	OpMul OpCode = 15 // MUL
	// A B C R(A) := RK(B) % RK(C)
	OpMod OpCode = 16 // MOD
	// A B C R(A) := RK(B) ^ RK(C)
	OpPow OpCode = 17 // POW
	// A B C R(A) := RK(B) / RK(C)
	OpDiv OpCode = 18 // DIV
	// A B C R(A) := RK(B) // RK(C)
	OpIDiv OpCode = 19 // IDIV
	// A B C R(A) := RK(B) & RK(C)
	OpBAnd OpCode = 20 // BAND
	// A B C R(A) := RK(B) | RK(C)
	OpBOr OpCode = 21 // BOR
	// A B C R(A) := RK(B) ~ RK(C)
	OpBXOR OpCode = 22 // BXOR
	// A B C R(A) := RK(B) << RK(C)
	OpSHL OpCode = 23 // SHL
	// A B C R(A) := RK(B) >> RK(C)
	OpSHR OpCode = 24 // SHR
	// A B R(A) := -R(B)
	OpUNM OpCode = 25 // UNM
	// A B R(A) := ~R(B)
	OpBNot OpCode = 26 // BNOT
	// A B R(A) := not R(B)
	OpNot OpCode = 27 // NOT
	// A B R(A) := length of R(B)
	OpLen OpCode = 28 // LEN

	// A B C R(A) := R(B).. ... ..R(C)
	OpConcat OpCode = 29 // CONCAT

	// A sBx pc+=sBx; if (A) close all upvalues >= R(A - 1)
	OpJMP OpCode = 30 // JMP
	// A B C if ((RK(B) == RK(C)) ~= A) then pc++
	OpEQ OpCode = 31 // EQ
	// A B C if ((RK(B) <  RK(C)) ~= A) then pc++
	OpLT OpCode = 32 // LT
	// A B C if ((RK(B) <= RK(C)) ~= A) then pc++
	OpLE OpCode = 33 // LE

	// A C if not (R(A) <=> C) then pc++
	OpTest OpCode = 34 // TEST
	// A B C if (R(B) <=> C) then R(A) := R(B) else pc++
	OpTestSet OpCode = 35 // TESTSET

	// A B C R(A), ... ,R(A+C-2) := R(A)(R(A+1), ... ,R(A+B-1))
	OpCall OpCode = 36 // CALL
	// A B C return R(A)(R(A+1), ... ,R(A+B-1))
	OpTailCall OpCode = 37 // TAILCALL
	// OpReturn returns R(A), ... ,R(A+B-2) to the caller.
	// If B == 0, then it returns up to 'top'.
	OpReturn OpCode = 38 // RETURN

	// A sBx R(A)+=R(A+2); if R(A) <?= R(A+1) then { pc+=sBx; R(A+3)=R(A) }
	OpForLoop OpCode = 39 // FORLOOP
	// A sBx R(A)-=R(A+2); pc+=sBx
	OpForPrep OpCode = 40 // FORPREP

	// A C R(A+3), ... ,R(A+2+C) := R(A)(R(A+1), R(A+2));
	OpTForCall OpCode = 41 // TFORCALL
	// A sBx if R(A+1) ~= nil then { R(A)=R(A+1); pc += sBx }
	OpTForLoop OpCode = 42 // TFORLOOP

	// OpSetList sets R(A)[(C-1)*FPF+i] := R(A+i), 1 <= i <= B.
	// If B == 0, then B = 'top'.
	// If C == 0, then the next instruction is an [OpExtraArg]
	// holding the real C.
	OpSetList OpCode = 43 // SETLIST

	// A Bx R(A) := closure(KPROTO[Bx])
	OpClosure OpCode = 44 // CLOSURE

	// A B R(A), R(A+1), ..., R(A+B-2) = vararg
	OpVararg OpCode = 45 // VARARG

	// Ax extra (larger) argument for previous opcode
	OpExtraArg OpCode = 46 // EXTRAARG

	maxOpCode = OpExtraArg
)

// NumOpCodes is the number of defined opcodes.
const NumOpCodes = int(maxOpCode) + 1

// ParseOpCode returns the [OpCode] with the given numeric code.
// It returns an error matching [InvalidOpCode] for codes outside the table.
func ParseOpCode(code uint8) (OpCode, error) {
	op := OpCode(code)
	if !op.IsValid() {
		return 0, &InstructionError{Code: code}
	}
	return op, nil
}

// IsValid reports whether the opcode is one of the known instructions.
func (op OpCode) IsValid() bool {
	return op <= maxOpCode
}

func (op OpCode) info() opInfo {
	if !op.IsValid() {
		return opInfo{}
	}
	return opTable[op]
}

// OpMode returns the format of an [Instruction] that uses the opcode,
// or zero if the opcode is not valid.
//
// Equivalent to `getOpMode` in upstream Lua.
func (op OpCode) OpMode() OpMode {
	return op.info().mode
}

// SetsA reports whether an [Instruction] that uses the opcode
// would change the value of the register given in [Instruction.ArgA].
//
// Equivalent to `testAMode` in upstream Lua.
func (op OpCode) SetsA() bool {
	return op.info().setsA
}

// IsTest reports whether the instruction is a test.
// In a valid program, the next instruction will be a jump.
//
// Equivalent to `testTMode` in upstream Lua.
func (op OpCode) IsTest() bool {
	return op.info().test
}

// ArgBMode returns how the instruction uses its B argument.
//
// Equivalent to `getBMode` in upstream Lua.
func (op OpCode) ArgBMode() ArgMode {
	return op.info().b
}

// ArgCMode returns how the instruction uses its C argument.
//
// Equivalent to `getCMode` in upstream Lua.
func (op OpCode) ArgCMode() ArgMode {
	return op.info().c
}

// Operands returns the meaning of each of the instruction's operands
// in the order they appear in the layout:
// A, B, C for [OpModeABC];
// A, Bx for [OpModeABx];
// A, sBx for [OpModeAsBx];
// and Ax for [OpModeAx].
// Unused positions are [OperandNone].
func (op OpCode) Operands() [3]OperandKind {
	return op.info().operands
}

// OpMode is an enumeration of [Instruction] formats.
type OpMode uint8

// Instruction formats.
const (
	OpModeABC  OpMode = 1 + iota // iABC
	OpModeABx                    // iABx
	OpModeAsBx                   // iAsBx
	OpModeAx                     // iAx
)

// ArgMode describes how an instruction uses its B or C argument.
type ArgMode uint8

// Argument modes.
const (
	// ArgUnused is used for arguments that are not used.
	ArgUnused ArgMode = iota
	// ArgUsed is used for arguments that are used as plain values.
	ArgUsed
	// ArgRegister is used for arguments that are a register or a jump offset.
	ArgRegister
	// ArgRegisterOrConstant is used for arguments
	// that are a constant or register (see [IsConstant]).
	ArgRegisterOrConstant
)

// OperandKind is the meaning of an instruction operand.
type OperandKind uint8

// Operand kinds.
const (
	OperandNone OperandKind = iota // none
	// OperandRegister is a register index.
	OperandRegister // register
	// OperandConstant is an index into [Prototype.Constants].
	OperandConstant // constant
	// OperandRegisterOrConstant is a register index
	// or a constant index as determined by [IsConstant].
	OperandRegisterOrConstant // rk
	// OperandInteger is a small unsigned integer.
	OperandInteger // integer
	// OperandSignedInteger is a signed integer such as a jump offset.
	OperandSignedInteger // signed
	// OperandBool is zero for false and non-zero for true.
	OperandBool // bool
	// OperandUpvalue is an index into the closure's upvalues.
	OperandUpvalue // upvalue
)

type opInfo struct {
	mode     OpMode
	b, c     ArgMode
	setsA    bool
	test     bool
	operands [3]OperandKind
}

const (
	oR  = OperandRegister
	oK  = OperandConstant
	oRK = OperandRegisterOrConstant
	oI  = OperandInteger
	oS  = OperandSignedInteger
	oB  = OperandBool
	oU  = OperandUpvalue
	o_  = OperandNone

	aN = ArgUnused
	aU = ArgUsed
	aR = ArgRegister
	aK = ArgRegisterOrConstant
)

// opTable is lopcodes.c's luaP_opmodes
// along with the operand meanings from lopcodes.h.
var opTable = [...]opInfo{
	OpMove:     {OpModeABC, aR, aN, true, false, [3]OperandKind{oR, oR, o_}},
	OpLoadK:    {OpModeABx, aK, aN, true, false, [3]OperandKind{oR, oK, o_}},
	OpLoadKX:   {OpModeABx, aN, aN, true, false, [3]OperandKind{oR, o_, o_}},
	OpLoadBool: {OpModeABC, aU, aU, true, false, [3]OperandKind{oR, oB, oB}},
	OpLoadNil:  {OpModeABC, aU, aN, true, false, [3]OperandKind{oR, oI, o_}},
	OpGetUpval: {OpModeABC, aU, aN, true, false, [3]OperandKind{oR, oU, o_}},
	OpGetTabUp: {OpModeABC, aU, aK, true, false, [3]OperandKind{oR, oU, oRK}},
	OpGetTable: {OpModeABC, aR, aK, true, false, [3]OperandKind{oR, oR, oRK}},
	OpSetTabUp: {OpModeABC, aK, aK, false, false, [3]OperandKind{oU, oRK, oRK}},
	OpSetUpval: {OpModeABC, aU, aN, false, false, [3]OperandKind{oR, oU, o_}},
	OpSetTable: {OpModeABC, aK, aK, false, false, [3]OperandKind{oR, oRK, oRK}},
	OpNewTable: {OpModeABC, aU, aU, true, false, [3]OperandKind{oR, oI, oI}},
	OpSelf:     {OpModeABC, aR, aK, true, false, [3]OperandKind{oR, oR, oRK}},
	OpAdd:      {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpSub:      {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpMul:      {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpMod:      {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpPow:      {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpDiv:      {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpIDiv:     {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpBAnd:     {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpBOr:      {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpBXOR:     {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpSHL:      {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpSHR:      {OpModeABC, aK, aK, true, false, [3]OperandKind{oR, oRK, oRK}},
	OpUNM:      {OpModeABC, aR, aN, true, false, [3]OperandKind{oR, oR, o_}},
	OpBNot:     {OpModeABC, aR, aN, true, false, [3]OperandKind{oR, oR, o_}},
	OpNot:      {OpModeABC, aR, aN, true, false, [3]OperandKind{oR, oR, o_}},
	OpLen:      {OpModeABC, aR, aN, true, false, [3]OperandKind{oR, oR, o_}},
	OpConcat:   {OpModeABC, aR, aR, true, false, [3]OperandKind{oR, oR, oR}},
	OpJMP:      {OpModeAsBx, aR, aN, false, false, [3]OperandKind{oI, oS, o_}},
	OpEQ:       {OpModeABC, aK, aK, false, true, [3]OperandKind{oB, oRK, oRK}},
	OpLT:       {OpModeABC, aK, aK, false, true, [3]OperandKind{oB, oRK, oRK}},
	OpLE:       {OpModeABC, aK, aK, false, true, [3]OperandKind{oB, oRK, oRK}},
	OpTest:     {OpModeABC, aN, aU, false, true, [3]OperandKind{oR, o_, oB}},
	OpTestSet:  {OpModeABC, aR, aU, true, true, [3]OperandKind{oR, oR, oB}},
	OpCall:     {OpModeABC, aU, aU, true, false, [3]OperandKind{oR, oI, oI}},
	OpTailCall: {OpModeABC, aU, aU, true, false, [3]OperandKind{oR, oI, oI}},
	OpReturn:   {OpModeABC, aU, aN, false, false, [3]OperandKind{oR, oI, o_}},
	OpForLoop:  {OpModeAsBx, aR, aN, true, false, [3]OperandKind{oR, oS, o_}},
	OpForPrep:  {OpModeAsBx, aR, aN, true, false, [3]OperandKind{oR, oS, o_}},
	OpTForCall: {OpModeABC, aN, aU, false, false, [3]OperandKind{oR, o_, oI}},
	OpTForLoop: {OpModeAsBx, aR, aN, true, false, [3]OperandKind{oR, oS, o_}},
	OpSetList:  {OpModeABC, aU, aU, false, false, [3]OperandKind{oR, oI, oI}},
	OpClosure:  {OpModeABx, aU, aN, true, false, [3]OperandKind{oR, oI, o_}},
	OpVararg:   {OpModeABC, aU, aN, true, false, [3]OperandKind{oR, oI, o_}},
	OpExtraArg: {OpModeAx, aU, aU, false, false, [3]OperandKind{oI, o_, o_}},
}
