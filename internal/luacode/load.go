// Copyright (C) 1994-2018 Lua.org, PUC-Rio.
// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Signature is the magic header for a binary (pre-compiled) Lua chunk.
// Data with this prefix can be loaded with [Load].
const Signature = "\x1bLua"

const (
	luacVersion byte    = 5*16 + 3
	luacFormat  byte    = 0
	luacData            = "\x19\x93\r\n\x1a\n"
	luacInt             = 0x5678
	luacNum     float64 = 370.5
)

// minFunctionSize is the smallest number of bytes a function can occupy:
// an absent source, two line numbers, three single-byte fields,
// and seven empty lists.
const minFunctionSize = 1 + 2*intSize + 3 + 7*intSize

// LoadOptions is the set of parameters for [*LoadOptions.Load].
// A nil *LoadOptions is equivalent to the zero value.
type LoadOptions struct {
	// ForeignByteOrder permits loading a chunk
	// written on a machine with the opposite byte order.
	// By default, such a chunk fails verification
	// the same way it would in the reference implementation.
	ForeignByteOrder bool
}

// Load reads a precompiled chunk like those produced by [luac] 5.3
// and returns its main function.
// name is used only in error messages.
// The chunk must have the same byte order as the running program.
//
// Errors returned by Load can be tested against an [ErrorKind]
// using [errors.Is].
//
// [luac]: https://www.lua.org/manual/5.3/luac.html
func Load(r io.Reader, name string) (*Prototype, error) {
	return (*LoadOptions)(nil).Load(r, name)
}

// Load reads a precompiled chunk like [Load],
// using the options in opts.
func (opts *LoadOptions) Load(r io.Reader, name string) (*Prototype, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return opts.load(data, name)
}

func (opts *LoadOptions) load(data []byte, name string) (*Prototype, error) {
	if opts == nil {
		opts = new(LoadOptions)
	}
	f, err := opts.loadChunk(newChunkReader(data))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return f, nil
}

// UnmarshalBinary unmarshals a precompiled chunk like those produced by [luac]
// using the default [LoadOptions].
//
// [luac]: https://www.lua.org/manual/5.3/luac.html
func (f *Prototype) UnmarshalBinary(data []byte) error {
	f2, err := (*LoadOptions)(nil).load(data, "?")
	if err != nil {
		return err
	}
	*f = *f2
	return nil
}

func (opts *LoadOptions) loadChunk(r *chunkReader) (*Prototype, error) {
	if err := opts.verifyHeader(r); err != nil {
		return nil, err
	}
	// The main closure's upvalue count is only needed to create a closure.
	if _, err := r.readByte(); err != nil {
		return nil, fmt.Errorf("upvalue count: %w", err)
	}
	f := new(Prototype)
	if err := loadFunction(f, r, ""); err != nil {
		return nil, err
	}
	if !r.finished() {
		return nil, &LoadError{
			Kind:   BufferNotEmpty,
			Offset: r.offset(),
			Detail: fmt.Sprintf("%d bytes", r.remaining()),
		}
	}
	return f, nil
}

func (opts *LoadOptions) verifyHeader(r *chunkReader) error {
	if err := r.literal("header", Signature); err != nil {
		return err
	}
	if err := r.verifyByte("version", luacVersion); err != nil {
		return err
	}
	if err := r.verifyByte("format", luacFormat); err != nil {
		return err
	}
	if err := r.literal("data", luacData); err != nil {
		return err
	}
	sizes := []struct {
		field string
		size  byte
	}{
		{"int size", intSize},
		{"size_t size", sizeTSize},
		{"Instruction size", instructionSize},
		{"lua_Integer size", integerSize},
		{"lua_Number size", numberSize},
	}
	for _, s := range sizes {
		if err := r.verifyByte(s.field, s.size); err != nil {
			return err
		}
	}

	start := r.offset()
	b, err := r.readBytes(integerSize)
	if err != nil {
		return err
	}
	foreign := foreignByteOrder()
	switch {
	case binary.NativeEndian.Uint64(b) == luacInt:
		r.byteOrder = binary.NativeEndian
	case foreign.Uint64(b) == luacInt && opts.ForeignByteOrder:
		r.byteOrder = foreign
	case foreign.Uint64(b) == luacInt:
		return &LoadError{
			Kind:   InvalidVerification,
			Offset: start,
			Field:  "endianness",
			Detail: "chunk uses " + foreign.String(),
		}
	default:
		return &LoadError{
			Kind:   InvalidVerification,
			Offset: start,
			Field:  "endianness",
			Detail: fmt.Sprintf("integer format mismatch (%#x)", binary.NativeEndian.Uint64(b)),
		}
	}

	start = r.offset()
	n, err := r.readNumber()
	if err != nil {
		return err
	}
	if n != luacNum {
		return &LoadError{
			Kind:   InvalidVerification,
			Offset: start,
			Field:  "float format",
			Detail: fmt.Sprintf("got %v, want %v", n, luacNum),
		}
	}
	return nil
}

// foreignByteOrder returns the byte order opposite to [binary.NativeEndian].
func foreignByteOrder() interface {
	binary.ByteOrder
	binary.AppendByteOrder
} {
	if binary.NativeEndian.Uint16([]byte{0x01, 0x00}) == 0x0001 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func loadFunction(f *Prototype, r *chunkReader, parentSource Source) error {
	start := r.offset()
	source, _, err := r.readString()
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	// An absent or empty source is inherited from the parent.
	if source != "" {
		f.Source = Source(source)
		if !f.Source.IsValid() {
			return &LoadError{
				Kind:   InvalidSourceName,
				Offset: start,
				Detail: fmt.Sprintf("%q", source),
			}
		}
	} else {
		f.Source = parentSource
	}

	f.LineDefined, err = r.readInt()
	if err != nil {
		return fmt.Errorf("line defined: %w", err)
	}
	f.LastLineDefined, err = r.readInt()
	if err != nil {
		return fmt.Errorf("last line defined: %w", err)
	}
	f.NumParams, err = r.readByte()
	if err != nil {
		return fmt.Errorf("number of parameters: %w", err)
	}
	f.IsVararg, err = r.readBool()
	if err != nil {
		return fmt.Errorf("is vararg: %w", err)
	}
	f.MaxStackSize, err = r.readByte()
	if err != nil {
		return fmt.Errorf("max stack size: %w", err)
	}

	if err := loadCode(f, r); err != nil {
		return err
	}
	if err := loadConstants(f, r); err != nil {
		return err
	}
	if err := loadUpvalues(f, r); err != nil {
		return err
	}

	// Protos
	n, err := r.readCount("function count", minFunctionSize)
	if err != nil {
		return fmt.Errorf("functions: %w", err)
	}
	f.Functions = make([]*Prototype, n)
	for i := range f.Functions {
		fi := new(Prototype)
		if err := loadFunction(fi, r, f.Source); err != nil {
			return fmt.Errorf("functions [%d]: %w", i, err)
		}
		f.Functions[i] = fi
	}

	return loadDebug(f, r)
}

func loadCode(f *Prototype, r *chunkReader) error {
	n, err := r.readCount("code size", instructionSize)
	if err != nil {
		return fmt.Errorf("instructions: %w", err)
	}
	f.Code = make([]Instruction, n)
	for pc := range f.Code {
		start := r.offset()
		i, err := r.readInstruction()
		if err != nil {
			return fmt.Errorf("instructions [%d]: %w", pc, err)
		}
		if _, err := Decode(i); err != nil {
			return fmt.Errorf("instructions [%d]: %w", pc, &LoadError{
				Kind:   InvalidOpCode,
				Offset: start,
				Value:  int64(i.OpCode()),
				Err:    err,
			})
		}
		f.Code[pc] = i
	}
	return nil
}

func loadConstants(f *Prototype, r *chunkReader) error {
	n, err := r.readCount("constant count", 1)
	if err != nil {
		return fmt.Errorf("constant table: %w", err)
	}
	f.Constants = make([]Value, n)
	for i := range f.Constants {
		start := r.offset()
		tag, err := r.readByte()
		if err != nil {
			return fmt.Errorf("constant table [%d]: %w", i, err)
		}
		t, err := ParseType(tag)
		if err != nil || !t.isConstant() {
			return fmt.Errorf("constant table [%d]: %w", i, &LoadError{
				Kind:   InvalidConstantType,
				Offset: start,
				Value:  int64(tag),
				Err:    err,
			})
		}
		switch t {
		case TypeNil:
			// Already zeroed; nothing to do.
		case TypeBoolean:
			b, err := r.readBool()
			if err != nil {
				return fmt.Errorf("constant table [%d]: %w", i, err)
			}
			f.Constants[i] = BoolValue(b)
		case TypeFloat:
			x, err := r.readNumber()
			if err != nil {
				return fmt.Errorf("constant table [%d]: %w", i, err)
			}
			f.Constants[i] = FloatValue(x)
		case TypeInteger:
			x, err := r.readInteger()
			if err != nil {
				return fmt.Errorf("constant table [%d]: %w", i, err)
			}
			f.Constants[i] = IntegerValue(x)
		case TypeShortString, TypeLongString:
			s, _, err := r.readString()
			if err != nil {
				return fmt.Errorf("constant table [%d]: %w", i, err)
			}
			f.Constants[i] = StringValue(s)
		}
	}
	return nil
}

func loadUpvalues(f *Prototype, r *chunkReader) error {
	n, err := r.readCount("upvalue count", 2)
	if err != nil {
		return fmt.Errorf("upvalues: %w", err)
	}
	f.Upvalues = make([]UpvalueDescriptor, n)
	for i := range f.Upvalues {
		f.Upvalues[i].InStack, err = r.readBool()
		if err != nil {
			return fmt.Errorf("upvalues [%d]: %w", i, err)
		}
		f.Upvalues[i].Index, err = r.readByte()
		if err != nil {
			return fmt.Errorf("upvalues [%d]: %w", i, err)
		}
	}
	return nil
}

func loadDebug(f *Prototype, r *chunkReader) error {
	n, err := r.readCount("line info size", intSize)
	if err != nil {
		return fmt.Errorf("line info: %w", err)
	}
	f.LineInfo = make([]int, n)
	for i := range f.LineInfo {
		f.LineInfo[i], err = r.readInt()
		if err != nil {
			return fmt.Errorf("line info [%d]: %w", i, err)
		}
	}

	n, err = r.readCount("local variable count", 1+2*intSize)
	if err != nil {
		return fmt.Errorf("local variables: %w", err)
	}
	f.LocalVariables = make([]LocalVariable, n)
	for i := range f.LocalVariables {
		f.LocalVariables[i].Name, _, err = r.readString()
		if err != nil {
			return fmt.Errorf("local variables [%d]: name: %w", i, err)
		}
		f.LocalVariables[i].StartPC, err = r.readInt()
		if err != nil {
			return fmt.Errorf("local variables [%d]: start pc: %w", i, err)
		}
		f.LocalVariables[i].EndPC, err = r.readInt()
		if err != nil {
			return fmt.Errorf("local variables [%d]: end pc: %w", i, err)
		}
	}

	start := r.offset()
	n, err = r.readInt()
	if err != nil {
		return fmt.Errorf("upvalue names: %w", err)
	}
	if n > len(f.Upvalues) {
		return fmt.Errorf("upvalue names: %w", &LoadError{
			Kind:   InvalidUpvalueIndex,
			Offset: start,
			Value:  int64(len(f.Upvalues)),
			Detail: fmt.Sprintf("%d names for %d upvalues", n, len(f.Upvalues)),
		})
	}
	if err := r.checkCount(start, "upvalue name count", n, 1); err != nil {
		return fmt.Errorf("upvalue names: %w", err)
	}
	for i := range n {
		f.Upvalues[i].Name, _, err = r.readString()
		if err != nil {
			return fmt.Errorf("upvalue names [%d]: %w", i, err)
		}
	}
	return nil
}
