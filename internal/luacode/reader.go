// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Sizes in bytes of the C types recorded in a chunk header.
const (
	intSize         = 4
	sizeTSize       = 8
	instructionSize = 4
	integerSize     = 8
	numberSize      = 8
)

// longStringMarker is the length byte that indicates
// the string's length follows as a size_t.
const longStringMarker = 0xff

// chunkReader is a cursor over an in-memory binary chunk.
// Fixed-width values are decoded in byteOrder,
// which is only trusted once the header has been verified.
type chunkReader struct {
	s         []byte
	pos       int
	byteOrder binary.ByteOrder
}

func newChunkReader(s []byte) *chunkReader {
	return &chunkReader{
		s:         s,
		byteOrder: binary.NativeEndian,
	}
}

// offset returns the number of bytes consumed so far.
func (r *chunkReader) offset() int64 {
	return int64(r.pos)
}

// remaining returns the number of unconsumed bytes.
func (r *chunkReader) remaining() int {
	return len(r.s) - r.pos
}

// finished reports whether every byte has been consumed.
func (r *chunkReader) finished() bool {
	return r.remaining() == 0
}

// readBytes consumes exactly n bytes.
// The returned slice aliases the chunk and must not be modified.
func (r *chunkReader) readBytes(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, unexpectedEOF(r.offset(), n, r.remaining())
	}
	b := r.s[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *chunkReader) readByte() (byte, error) {
	b, err := r.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *chunkReader) readBool() (bool, error) {
	b, err := r.readByte()
	return b != 0, err
}

// readInt reads a C int.
func (r *chunkReader) readInt() (int, error) {
	b, err := r.readBytes(intSize)
	if err != nil {
		return 0, err
	}
	return int(int32(r.byteOrder.Uint32(b))), nil
}

// readSize reads a C size_t.
func (r *chunkReader) readSize() (uint64, error) {
	b, err := r.readBytes(sizeTSize)
	if err != nil {
		return 0, err
	}
	return r.byteOrder.Uint64(b), nil
}

// readInteger reads a lua_Integer.
func (r *chunkReader) readInteger() (int64, error) {
	b, err := r.readBytes(integerSize)
	if err != nil {
		return 0, err
	}
	return int64(r.byteOrder.Uint64(b)), nil
}

// readNumber reads a lua_Number.
func (r *chunkReader) readNumber() (float64, error) {
	b, err := r.readBytes(numberSize)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(r.byteOrder.Uint64(b)), nil
}

func (r *chunkReader) readInstruction() (Instruction, error) {
	b, err := r.readBytes(instructionSize)
	if err != nil {
		return 0, err
	}
	return Instruction(r.byteOrder.Uint32(b)), nil
}

// readCount reads the length of a list
// whose elements each occupy at least elemSize bytes.
// Counts that cannot be satisfied by the rest of the chunk
// are rejected before the caller allocates anything.
func (r *chunkReader) readCount(field string, elemSize int) (int, error) {
	start := r.offset()
	n, err := r.readInt()
	if err != nil {
		return 0, err
	}
	if err := r.checkCount(start, field, n, elemSize); err != nil {
		return 0, err
	}
	return n, nil
}

// checkCount verifies that n elements of elemSize bytes each
// could follow in the remaining input.
// start is the offset of the count.
func (r *chunkReader) checkCount(start int64, field string, n, elemSize int) error {
	if n < 0 {
		return &LoadError{
			Kind:   InvalidVerification,
			Offset: start,
			Field:  field,
			Value:  int64(n),
			Detail: fmt.Sprintf("negative count %d", n),
		}
	}
	if need := int64(n) * int64(elemSize); need > int64(r.remaining()) {
		err := unexpectedEOF(r.offset(), int(min(need, math.MaxInt)), r.remaining())
		err.Field = field
		return err
	}
	return nil
}

// readString reads a length-prefixed string.
// A zero length means the string is absent,
// which is reported with present = false.
func (r *chunkReader) readString() (s string, present bool, err error) {
	b, err := r.readByte()
	if err != nil {
		return "", false, err
	}
	size := uint64(b)
	if b == longStringMarker {
		size, err = r.readSize()
		if err != nil {
			return "", false, err
		}
	}
	if size == 0 {
		return "", false, nil
	}
	n := size - 1
	if n > uint64(r.remaining()) {
		return "", false, unexpectedEOF(r.offset(), int(min(n, math.MaxInt)), r.remaining())
	}
	payload, err := r.readBytes(int(n))
	if err != nil {
		return "", false, err
	}
	return string(payload), true, nil
}

// literal consumes want from the chunk
// or returns an [InvalidVerification] error for the named field.
func (r *chunkReader) literal(field string, want string) error {
	start := r.offset()
	n := min(len(want), r.remaining())
	got := string(r.s[r.pos : r.pos+n])
	if got != want {
		if n < len(want) && got == want[:n] {
			return unexpectedEOF(start, len(want), n)
		}
		return &LoadError{
			Kind:   InvalidVerification,
			Offset: start,
			Field:  field,
			Detail: fmt.Sprintf("got %q, want %q", got, want),
		}
	}
	r.pos += n
	return nil
}

// verifyByte reads a single byte and checks that it equals want.
func (r *chunkReader) verifyByte(field string, want byte) error {
	start := r.offset()
	got, err := r.readByte()
	if err != nil {
		return err
	}
	if got != want {
		return &LoadError{
			Kind:   InvalidVerification,
			Offset: start,
			Field:  field,
			Value:  int64(got),
			Detail: fmt.Sprintf("got %d, want %d", got, want),
		}
	}
	return nil
}
