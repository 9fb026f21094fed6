// Copyright (C) 1994-2018 Lua.org, PUC-Rio.
// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"iter"
	"slices"
	"strconv"
)

// Prototype represents a loaded function.
type Prototype struct {
	// NumParams is the number of fixed (named) parameters.
	NumParams uint8
	IsVararg  bool
	// MaxStackSize is the number of registers needed by this function.
	MaxStackSize uint8

	Constants []Value
	Code      []Instruction
	Functions []*Prototype
	Upvalues  []UpvalueDescriptor

	// Debug information:

	Source Source
	// LocalVariables is a list of the function's local variables in declaration order.
	LocalVariables []LocalVariable
	// LineInfo maps each instruction in Code to its source line.
	// It is empty if the debug information was stripped.
	LineInfo        []int
	LineDefined     int
	LastLineDefined int
}

// IsMainChunk reports whether the prototype represents a compiled source file
// (as opposed to a function inside a file).
func (f *Prototype) IsMainChunk() bool {
	return f.LineDefined == 0
}

// Line returns the source line of the instruction at pc.
// ok is false if pc is out of range
// or the debug information has been stripped.
func (f *Prototype) Line(pc int) (line int, ok bool) {
	if pc < 0 || pc >= len(f.LineInfo) {
		return 0, false
	}
	return f.LineInfo[pc], true
}

// StripDebug returns a copy of a [Prototype]
// with the debug information removed.
func (f *Prototype) StripDebug() *Prototype {
	f2 := new(Prototype)
	*f2 = *f
	f2.Source = ""
	f2.LineInfo = nil
	f2.LocalVariables = nil

	if len(f.Upvalues) > 0 {
		f2.Upvalues = slices.Clone(f.Upvalues)
		for i := range f2.Upvalues {
			f2.Upvalues[i].Name = ""
		}
	}

	if len(f.Functions) > 0 {
		f2.Functions = make([]*Prototype, len(f.Functions))
		for i, p := range f.Functions {
			f2.Functions[i] = p.StripDebug()
		}
	}

	return f2
}

// LocalName returns the name of the local variable the given register represents
// during the execution of the given instruction,
// or the empty string if the register does not represent a local variable
// (or the debug information has been stripped).
func (f *Prototype) LocalName(register uint8, pc int) string {
	for _, v := range f.LocalVariables {
		if v.StartPC > pc {
			// Local variables are ordered by StartPC,
			// so this variable and any subsequent ones will be out of scope.
			break
		}
		if pc < v.EndPC {
			if register == 0 {
				return v.Name
			}
			register--
		}
	}
	return ""
}

// Walk returns an iterator over f and all of its nested functions
// in depth-first pre-order.
// Each function is paired with a path:
// "main" for f itself, "F[0]" for its first nested function,
// "F[0][1]" for the second function nested inside that one, and so on.
func (f *Prototype) Walk() iter.Seq2[string, *Prototype] {
	return func(yield func(string, *Prototype) bool) {
		if !yield("main", f) {
			return
		}
		f.walkFunctions("F", yield)
	}
}

func (f *Prototype) walkFunctions(prefix string, yield func(string, *Prototype) bool) bool {
	for i, p := range f.Functions {
		path := prefix + "[" + strconv.Itoa(i) + "]"
		if !yield(path, p) || !p.walkFunctions(path, yield) {
			return false
		}
	}
	return true
}

func (f *Prototype) hasUpvalueNames() bool {
	for _, upval := range f.Upvalues {
		if upval.Name != "" {
			return true
		}
	}
	return false
}

// UpvalueDescriptor describes an upvalue in a [Prototype].
type UpvalueDescriptor struct {
	// Name is the upvalue's name from the debug information.
	// It is empty if the debug information was stripped.
	Name string
	// InStack is true if the upvalue refers to a local variable
	// in the containing function.
	// Otherwise, the upvalue refers to an upvalue in the containing function.
	InStack bool
	// Index is the index of the local variable or upvalue
	// to initialize the upvalue to.
	// Its interpretation depends on the value of InStack.
	Index uint8
}

// LocalVariable is a description of a local variable in [Prototype]
// used for debug information.
type LocalVariable struct {
	Name string
	// StartPC is the first instruction in the [Prototype.Code] slice
	// where the variable is active.
	StartPC int
	// EndPC is the first instruction in the [Prototype.Code] slice
	// where the variable is dead.
	EndPC int
}
