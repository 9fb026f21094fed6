// Copyright (C) 1994-2018 Lua.org, PUC-Rio.
// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MarshalBinary marshals the function as a precompiled chunk
// in the same format as [luac 5.3],
// using the byte order of the running program.
//
// [luac 5.3]: https://www.lua.org/manual/5.3/luac.html
func (f *Prototype) MarshalBinary() ([]byte, error) {
	var buf []byte

	buf = append(buf, Signature...)
	buf = append(buf, luacVersion, luacFormat)
	buf = append(buf, luacData...)
	buf = append(buf, intSize, sizeTSize, instructionSize, integerSize, numberSize)
	buf = binary.NativeEndian.AppendUint64(buf, luacInt)
	buf = binary.NativeEndian.AppendUint64(buf, math.Float64bits(luacNum))

	if len(f.Upvalues) > maxArgA {
		return nil, fmt.Errorf("dump lua chunk: too many upvalues (%d)", len(f.Upvalues))
	}
	buf = append(buf, byte(len(f.Upvalues)))

	buf, err := dumpFunction(buf, f, "")
	if err != nil {
		return nil, fmt.Errorf("dump lua chunk: %w", err)
	}
	return buf, nil
}

func dumpFunction(buf []byte, f *Prototype, parentSource Source) ([]byte, error) {
	if f.Source == parentSource {
		buf = append(buf, 0)
	} else {
		buf = dumpString(buf, string(f.Source))
	}
	buf = dumpInt(buf, f.LineDefined)
	buf = dumpInt(buf, f.LastLineDefined)
	buf = append(buf, f.NumParams)
	buf = dumpBool(buf, f.IsVararg)
	buf = append(buf, f.MaxStackSize)

	// Code
	buf = dumpInt(buf, len(f.Code))
	for pc, code := range f.Code {
		if !code.OpCode().IsValid() {
			return nil, fmt.Errorf("Code[%d]: %w", pc, &InstructionError{Instruction: code, Code: uint8(code.OpCode())})
		}
		buf = binary.NativeEndian.AppendUint32(buf, uint32(code))
	}

	// Constants
	buf = dumpInt(buf, len(f.Constants))
	for i, value := range f.Constants {
		switch t := value.Type(); t {
		case TypeNil:
			buf = append(buf, byte(t))
		case TypeBoolean:
			b, _ := value.Bool()
			buf = append(buf, byte(t))
			buf = dumpBool(buf, b)
		case TypeInteger:
			n, _ := value.Int64()
			buf = append(buf, byte(t))
			buf = binary.NativeEndian.AppendUint64(buf, uint64(n))
		case TypeFloat:
			x, _ := value.Float64()
			buf = append(buf, byte(t))
			buf = binary.NativeEndian.AppendUint64(buf, math.Float64bits(x))
		case TypeShortString, TypeLongString:
			s, _ := value.Unquoted()
			buf = append(buf, byte(t))
			buf = dumpString(buf, s)
		default:
			return nil, fmt.Errorf("Constants[%d] cannot be represented", i)
		}
	}

	// Upvalues
	buf = dumpInt(buf, len(f.Upvalues))
	for _, upval := range f.Upvalues {
		buf = dumpBool(buf, upval.InStack)
		buf = append(buf, upval.Index)
	}

	// Protos
	buf = dumpInt(buf, len(f.Functions))
	for i, p := range f.Functions {
		var err error
		buf, err = dumpFunction(buf, p, f.Source)
		if err != nil {
			return nil, fmt.Errorf("Functions[%d]: %w", i, err)
		}
	}

	// Debug information
	buf = dumpInt(buf, len(f.LineInfo))
	for _, line := range f.LineInfo {
		buf = dumpInt(buf, line)
	}
	buf = dumpInt(buf, len(f.LocalVariables))
	for _, v := range f.LocalVariables {
		buf = dumpString(buf, v.Name)
		buf = dumpInt(buf, v.StartPC)
		buf = dumpInt(buf, v.EndPC)
	}
	if !f.hasUpvalueNames() {
		buf = dumpInt(buf, 0)
	} else {
		buf = dumpInt(buf, len(f.Upvalues))
		for _, upval := range f.Upvalues {
			buf = dumpString(buf, upval.Name)
		}
	}

	return buf, nil
}

// dumpString appends a string with its length prefix.
// Lengths that do not fit in a single byte
// are written as a size_t after a 0xff marker.
func dumpString(buf []byte, s string) []byte {
	size := uint64(len(s)) + 1
	if size < longStringMarker {
		buf = append(buf, byte(size))
	} else {
		buf = append(buf, longStringMarker)
		buf = binary.NativeEndian.AppendUint64(buf, size)
	}
	return append(buf, s...)
}

func dumpInt(buf []byte, i int) []byte {
	return binary.NativeEndian.AppendUint32(buf, uint32(int32(i)))
}

func dumpBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	} else {
		return append(buf, 0)
	}
}
