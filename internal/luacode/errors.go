// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"fmt"
	"io"
)

// ErrorKind is the category of a failure to load a chunk.
// ErrorKind implements the error interface
// so that it can be used as the target of [errors.Is]:
//
//	if errors.Is(err, luacode.BufferNotEmpty) {
//		// ...
//	}
type ErrorKind int

// Error kinds.
const (
	// BufferNotReadable indicates that the chunk ended
	// before a read could be satisfied.
	BufferNotReadable ErrorKind = 1 + iota
	// BufferNotEmpty indicates that bytes remained
	// after a structurally complete chunk.
	BufferNotEmpty
	// InvalidVerification indicates a mismatch in the chunk header
	// or a count that cannot be valid.
	InvalidVerification
	// InvalidConstantType indicates a constant with an unsupported type tag.
	InvalidConstantType
	// InvalidUpvalueIndex indicates an upvalue name
	// for an upvalue that does not exist.
	InvalidUpvalueIndex
	// InvalidSourceName indicates a function source name
	// that is not valid UTF-8.
	InvalidSourceName
	// InvalidOpCode indicates an instruction with an unknown opcode.
	InvalidOpCode
	// InvalidType indicates a byte that is not a known type tag.
	InvalidType
)

// Error returns a short description of the kind.
func (kind ErrorKind) Error() string {
	switch kind {
	case BufferNotReadable:
		return "unexpected end of chunk"
	case BufferNotEmpty:
		return "bytes left over after chunk"
	case InvalidVerification:
		return "verification failed"
	case InvalidConstantType:
		return "bad constant type"
	case InvalidUpvalueIndex:
		return "invalid upvalue index"
	case InvalidSourceName:
		return "source name is not valid UTF-8"
	case InvalidOpCode:
		return "invalid opcode"
	case InvalidType:
		return "invalid type tag"
	default:
		return fmt.Sprintf("luacode.ErrorKind(%d)", int(kind))
	}
}

// LoadError describes a problem found while reading a binary chunk.
// Loading stops at the first problem.
type LoadError struct {
	Kind ErrorKind
	// Offset is the position in the chunk (in bytes)
	// at which the problem was detected.
	Offset int64
	// Field names the header field or record
	// that failed verification, if applicable.
	Field string
	// Value is the offending tag, opcode, or index, if applicable.
	Value int64
	// Detail is an optional human-readable elaboration.
	Detail string
	// Err is the underlying error, if any.
	Err error
}

// Error formats the error, including its position.
func (e *LoadError) Error() string {
	var msg string
	switch e.Kind {
	case InvalidVerification:
		msg = "verify " + e.Field
		if e.Detail != "" {
			msg += ": " + e.Detail
		}
		return fmt.Sprintf("offset %d: %s", e.Offset, msg)
	case InvalidConstantType:
		msg = fmt.Sprintf("%v %#02x", e.Kind, e.Value)
	case InvalidUpvalueIndex:
		msg = fmt.Sprintf("%v %d", e.Kind, e.Value)
	case InvalidOpCode:
		msg = fmt.Sprintf("%v %d", e.Kind, e.Value)
	case InvalidType:
		msg = fmt.Sprintf("%v %#02x", e.Kind, e.Value)
	default:
		msg = e.Kind.Error()
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return fmt.Sprintf("offset %d: %s", e.Offset, msg)
}

// Is reports whether target is e's [ErrorKind].
func (e *LoadError) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// InstructionError is returned by [Decode] and [ParseOpCode]
// for an opcode that is not a known [OpCode].
type InstructionError struct {
	// Instruction is the instruction being decoded, if any.
	Instruction Instruction
	// Code is the unknown numeric opcode.
	Code uint8
}

func (e *InstructionError) Error() string {
	if e.Instruction == 0 {
		return fmt.Sprintf("%v %d", InvalidOpCode, e.Code)
	}
	return fmt.Sprintf("decode instruction %#08x: %v %d", uint32(e.Instruction), InvalidOpCode, e.Code)
}

// Is reports whether target is [InvalidOpCode].
func (e *InstructionError) Is(target error) bool {
	return target == InvalidOpCode
}

// TypeError is returned by [ParseType] for an unknown type tag.
type TypeError struct {
	Tag byte
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%v %#02x", InvalidType, e.Tag)
}

// Is reports whether target is [InvalidType].
func (e *TypeError) Is(target error) bool {
	return target == InvalidType
}

func unexpectedEOF(offset int64, want, have int) *LoadError {
	return &LoadError{
		Kind:   BufferNotReadable,
		Offset: offset,
		Detail: fmt.Sprintf("need %d bytes, %d remaining", want, have),
		Err:    io.ErrUnexpectedEOF,
	}
}
