// Copyright (C) 1994-2018 Lua.org, PUC-Rio.
// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"fmt"
	"strings"
)

// Instruction is a single virtual machine instruction.
type Instruction uint32

// Field sizes in bits.
// Positions are derived from the sizes.
const (
	sizeOp = 6
	sizeA  = 8
	sizeB  = 9
	sizeC  = 9
	sizeBx = sizeC + sizeB
	sizeAx = sizeC + sizeB + sizeA
)

// Field positions.
const (
	posOp = 0
	posA  = posOp + sizeOp
	posC  = posA + sizeA
	posB  = posC + sizeC
	posBx = posC
	posAx = posA
)

// Maximum argument values.
const (
	maxArgA   = 1<<sizeA - 1
	maxArgB   = 1<<sizeB - 1
	maxArgC   = 1<<sizeC - 1
	maxArgBx  = 1<<sizeBx - 1
	maxArgAx  = 1<<sizeAx - 1
	maxArgSBx = maxArgBx >> 1

	maskOp = 1<<sizeOp - 1
)

// MaxArgSBx is the largest magnitude of a signed Bx argument
// and the excess used to store it.
// Signed Bx arguments are in the range [-MaxArgSBx, MaxArgSBx+1].
const MaxArgSBx = maxArgSBx

// Register-or-constant arguments.
const (
	// bitRK is set in a register-or-constant argument
	// that refers to a constant.
	bitRK = 1 << (sizeB - 1)
	// maxIndexRK is the largest constant index
	// that can be stored in a register-or-constant argument.
	maxIndexRK = bitRK - 1
)

// IsConstant reports whether a register-or-constant argument
// (see [ArgRegisterOrConstant]) refers to a constant.
//
// Equivalent to `ISK` in upstream Lua.
func IsConstant(arg uint16) bool {
	return arg&bitRK != 0
}

// ConstantIndex returns the constant index
// referred to by a register-or-constant argument.
// The result is only meaningful if [IsConstant] reports true.
//
// Equivalent to `INDEXK` in upstream Lua.
func ConstantIndex(arg uint16) int {
	return int(arg &^ bitRK)
}

// RKConstant returns the register-or-constant argument
// that refers to the k'th constant.
// RKConstant panics if k cannot be represented.
//
// Equivalent to `RKASK` in upstream Lua.
func RKConstant(k int) uint16 {
	if k < 0 || k > maxIndexRK {
		panic("constant index out of range")
	}
	return uint16(k) | bitRK
}

// Fields is an [Instruction] unpacked into its arguments.
// Only the fields that belong to the [OpCode]'s [OpMode] are used;
// the others are zero.
type Fields struct {
	OpCode OpCode

	// A is used by [OpModeABC], [OpModeABx], and [OpModeAsBx].
	A uint8
	// B and C are used by [OpModeABC].
	B, C uint16
	// Bx is used by [OpModeABx].
	Bx uint32
	// SBx is used by [OpModeAsBx].
	SBx int32
	// Ax is used by [OpModeAx].
	Ax uint32
}

// Decode unpacks the instruction's fields
// according to the [OpMode] of its [OpCode].
// Decode returns an error matching [InvalidOpCode]
// if the instruction does not have a known [OpCode].
func Decode(i Instruction) (Fields, error) {
	op := i.OpCode()
	f := Fields{OpCode: op}
	switch op.OpMode() {
	case OpModeABC:
		f.A = uint8(i >> posA & maxArgA)
		f.B = uint16(i >> posB & maxArgB)
		f.C = uint16(i >> posC & maxArgC)
	case OpModeABx:
		f.A = uint8(i >> posA & maxArgA)
		f.Bx = uint32(i >> posBx & maxArgBx)
	case OpModeAsBx:
		f.A = uint8(i >> posA & maxArgA)
		f.SBx = int32(i>>posBx&maxArgBx) - maxArgSBx
	case OpModeAx:
		f.Ax = uint32(i >> posAx & maxArgAx)
	default:
		return Fields{}, &InstructionError{Instruction: i, Code: uint8(op)}
	}
	return f, nil
}

// Encode packs the fields into an [Instruction].
// Fields that do not belong to the opcode's [OpMode] must be zero.
func Encode(f Fields) (Instruction, error) {
	mode := f.OpCode.OpMode()
	if mode == 0 {
		return 0, &InstructionError{Code: uint8(f.OpCode)}
	}
	canonical := Fields{OpCode: f.OpCode}
	switch mode {
	case OpModeABC:
		canonical.A, canonical.B, canonical.C = f.A, f.B, f.C
	case OpModeABx:
		canonical.A, canonical.Bx = f.A, f.Bx
	case OpModeAsBx:
		canonical.A, canonical.SBx = f.A, f.SBx
	case OpModeAx:
		canonical.Ax = f.Ax
	}
	if canonical != f {
		return 0, fmt.Errorf("encode %v: arguments do not match %v", f.OpCode, mode)
	}

	switch mode {
	case OpModeABC:
		if f.B > maxArgB || f.C > maxArgC {
			return 0, fmt.Errorf("encode %v: argument out of range", f.OpCode)
		}
		return ABCInstruction(f.OpCode, f.A, f.B, f.C), nil
	case OpModeABx:
		if f.Bx > maxArgBx {
			return 0, fmt.Errorf("encode %v: Bx argument %d out of range", f.OpCode, f.Bx)
		}
		return ABxInstruction(f.OpCode, f.A, f.Bx), nil
	case OpModeAsBx:
		if !fitsSignedBx(int64(f.SBx)) {
			return 0, fmt.Errorf("encode %v: sBx argument %d out of range", f.OpCode, f.SBx)
		}
		return AsBxInstruction(f.OpCode, f.A, f.SBx), nil
	default:
		if f.Ax > maxArgAx {
			return 0, fmt.Errorf("encode %v: Ax argument %d out of range", f.OpCode, f.Ax)
		}
		return AxInstruction(f.OpCode, f.Ax), nil
	}
}

// ABCInstruction returns a new [OpModeABC] [Instruction]
// with the given arguments.
// ABCInstruction panics if the [OpCode] given
// does not return [OpModeABC] from [OpCode.OpMode]
// or if b or c do not fit in 9 bits.
func ABCInstruction(op OpCode, a uint8, b, c uint16) Instruction {
	if op.OpMode() != OpModeABC {
		panic("ABCInstruction with invalid OpCode")
	}
	if b > maxArgB || c > maxArgC {
		panic("ABCInstruction argument out of range")
	}
	return Instruction(op)<<posOp |
		Instruction(a)<<posA |
		Instruction(b)<<posB |
		Instruction(c)<<posC
}

// ABxInstruction returns a new [OpModeABx] [Instruction]
// with the given arguments.
// ABxInstruction panics if the [OpCode] given
// does not return [OpModeABx] from [OpCode.OpMode]
// or if bx does not fit in 18 bits.
func ABxInstruction(op OpCode, a uint8, bx uint32) Instruction {
	if op.OpMode() != OpModeABx {
		panic("ABxInstruction with invalid OpCode")
	}
	if bx > maxArgBx {
		panic("Bx argument out of range")
	}
	return Instruction(op)<<posOp |
		Instruction(a)<<posA |
		Instruction(bx)<<posBx
}

// AsBxInstruction returns a new [OpModeAsBx] [Instruction]
// with the given arguments.
// AsBxInstruction panics if the [OpCode] given
// does not return [OpModeAsBx] from [OpCode.OpMode]
// or if sbx is outside [-MaxArgSBx, MaxArgSBx+1].
func AsBxInstruction(op OpCode, a uint8, sbx int32) Instruction {
	if op.OpMode() != OpModeAsBx {
		panic("AsBxInstruction with invalid OpCode")
	}
	if !fitsSignedBx(int64(sbx)) {
		panic("sBx argument out of range")
	}
	return Instruction(op)<<posOp |
		Instruction(a)<<posA |
		Instruction(sbx+maxArgSBx)<<posBx
}

// AxInstruction returns a new [OpModeAx] [Instruction]
// with the given argument.
// AxInstruction panics if the [OpCode] given
// does not return [OpModeAx] from [OpCode.OpMode]
// or if ax does not fit in 26 bits.
func AxInstruction(op OpCode, ax uint32) Instruction {
	if op.OpMode() != OpModeAx {
		panic("AxInstruction with invalid OpCode")
	}
	if ax > maxArgAx {
		panic("Ax argument out of range")
	}
	return Instruction(op)<<posOp | Instruction(ax)<<posAx
}

// fitsSignedBx reports whether i can be stored in a signed Bx argument.
func fitsSignedBx(i int64) bool {
	return -maxArgSBx <= i && i <= maxArgBx-maxArgSBx
}

// OpCode returns the instruction's type.
// The result may not be valid: use [OpCode.IsValid] or [Decode] to check.
func (i Instruction) OpCode() OpCode {
	return OpCode(i >> posOp & maskOp)
}

// ArgA returns the first (A) argument
// of an [OpModeABC], [OpModeABx], or [OpModeAsBx] instruction.
func (i Instruction) ArgA() uint8 {
	switch i.OpCode().OpMode() {
	case OpModeABC, OpModeABx, OpModeAsBx:
		return uint8(i >> posA & maxArgA)
	default:
		return 0
	}
}

// ArgB returns the second (B) argument of an [OpModeABC] instruction.
func (i Instruction) ArgB() uint16 {
	if i.OpCode().OpMode() != OpModeABC {
		return 0
	}
	return uint16(i >> posB & maxArgB)
}

// ArgC returns the third (C) argument of an [OpModeABC] instruction.
func (i Instruction) ArgC() uint16 {
	if i.OpCode().OpMode() != OpModeABC {
		return 0
	}
	return uint16(i >> posC & maxArgC)
}

// ArgBx returns the unsigned second (Bx) argument of an [OpModeABx] instruction.
func (i Instruction) ArgBx() uint32 {
	if i.OpCode().OpMode() != OpModeABx {
		return 0
	}
	return uint32(i >> posBx & maxArgBx)
}

// ArgSBx returns the signed second (sBx) argument of an [OpModeAsBx] instruction.
func (i Instruction) ArgSBx() int32 {
	if i.OpCode().OpMode() != OpModeAsBx {
		return 0
	}
	return int32(i>>posBx&maxArgBx) - maxArgSBx
}

// ArgAx returns the argument of an [OpModeAx] instruction.
func (i Instruction) ArgAx() uint32 {
	if i.OpCode().OpMode() != OpModeAx {
		return 0
	}
	return uint32(i >> posAx & maxArgAx)
}

// String decodes the instruction
// and formats it in a manner similar to [luac] -l.
// Constant arguments are shown as negative numbers.
//
// [luac]: https://www.lua.org/manual/5.3/luac.html
func (i Instruction) String() string {
	op := i.OpCode()
	sb := new(strings.Builder)
	fmt.Fprintf(sb, "%-9s\t", op)
	switch op.OpMode() {
	case OpModeABC:
		fmt.Fprintf(sb, "%d", i.ArgA())
		if op.ArgBMode() != ArgUnused {
			fmt.Fprintf(sb, " %d", rkArg(i.ArgB()))
		}
		if op.ArgCMode() != ArgUnused {
			fmt.Fprintf(sb, " %d", rkArg(i.ArgC()))
		}
	case OpModeABx:
		fmt.Fprintf(sb, "%d", i.ArgA())
		switch op.ArgBMode() {
		case ArgRegisterOrConstant:
			fmt.Fprintf(sb, " %d", -1-int(i.ArgBx()))
		case ArgUsed:
			fmt.Fprintf(sb, " %d", i.ArgBx())
		}
	case OpModeAsBx:
		fmt.Fprintf(sb, "%d %d", i.ArgA(), i.ArgSBx())
	case OpModeAx:
		fmt.Fprintf(sb, "%d", -1-int(i.ArgAx()))
	default:
		return fmt.Sprintf("Instruction(%#08x)", uint32(i))
	}
	return sb.String()
}

// rkArg returns the luac -l representation of a B or C argument.
func rkArg(arg uint16) int {
	if IsConstant(arg) {
		return -1 - ConstantIndex(arg)
	}
	return int(arg)
}
