// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luadump

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"golang.org/x/term"
	"zb.256lights.llc/luaundump/internal/luacode"
)

// chunkDocument is the machine-readable form of a loaded chunk.
// The struct tags are shared by the JSON and CBOR encoders.
type chunkDocument struct {
	File string            `json:"file"`
	Main *functionDocument `json:"main"`
}

type functionDocument struct {
	Path            string                `json:"path"`
	Source          string                `json:"source,omitempty"`
	LineDefined     int                   `json:"lineDefined"`
	LastLineDefined int                   `json:"lastLineDefined"`
	NumParams       uint8                 `json:"numParams"`
	IsVararg        bool                  `json:"isVararg"`
	MaxStackSize    uint8                 `json:"maxStackSize"`
	Code            []instructionDocument `json:"code"`
	Constants       []constantDocument    `json:"constants"`
	Upvalues        []upvalueDocument     `json:"upvalues"`
	Locals          []localDocument       `json:"locals,omitempty"`
	Functions       []*functionDocument   `json:"functions,omitempty"`
}

type instructionDocument struct {
	Word   uint32  `json:"word"`
	OpCode string  `json:"op"`
	Args   []int64 `json:"args"`
	// Operands names the meaning of each element of Args.
	Operands []string `json:"operands"`
	SetsA    bool     `json:"setsA,omitempty"`
	Test     bool     `json:"test,omitempty"`
	Line     int      `json:"line,omitempty"`
}

type constantDocument struct {
	Type string `json:"type"`
	// Value is the constant's text without quotes.
	// It is omitted for nil.
	Value string `json:"value,omitempty"`
}

type upvalueDocument struct {
	Name    string `json:"name,omitempty"`
	InStack bool   `json:"inStack"`
	Index   uint8  `json:"index"`
}

type localDocument struct {
	Name    string `json:"name"`
	StartPC int    `json:"startPC"`
	EndPC   int    `json:"endPC"`
}

func newChunkDocument(path string, f *luacode.Prototype) *chunkDocument {
	return &chunkDocument{
		File: path,
		Main: newFunctionDocument("main", f),
	}
}

func newFunctionDocument(path string, f *luacode.Prototype) *functionDocument {
	doc := &functionDocument{
		Path:            path,
		Source:          string(f.Source),
		LineDefined:     f.LineDefined,
		LastLineDefined: f.LastLineDefined,
		NumParams:       f.NumParams,
		IsVararg:        f.IsVararg,
		MaxStackSize:    f.MaxStackSize,
		Code:            make([]instructionDocument, 0, len(f.Code)),
		Constants:       make([]constantDocument, 0, len(f.Constants)),
		Upvalues:        make([]upvalueDocument, 0, len(f.Upvalues)),
	}
	for pc := range f.Code {
		doc.Code = append(doc.Code, newInstructionDocument(f, pc))
	}
	for _, k := range f.Constants {
		kdoc := constantDocument{Type: k.Type().String()}
		switch {
		case k.IsNil():
		case k.IsBoolean():
			kdoc.Value = k.String()
		default:
			kdoc.Value, _ = k.Unquoted()
		}
		doc.Constants = append(doc.Constants, kdoc)
	}
	for _, uv := range f.Upvalues {
		doc.Upvalues = append(doc.Upvalues, upvalueDocument{
			Name:    uv.Name,
			InStack: uv.InStack,
			Index:   uv.Index,
		})
	}
	for _, v := range f.LocalVariables {
		doc.Locals = append(doc.Locals, localDocument{
			Name:    v.Name,
			StartPC: v.StartPC,
			EndPC:   v.EndPC,
		})
	}
	for i, p := range f.Functions {
		doc.Functions = append(doc.Functions, newFunctionDocument(fmt.Sprintf("%s[%d]", functionPathPrefix(path), i), p))
	}
	return doc
}

func newInstructionDocument(f *luacode.Prototype, pc int) instructionDocument {
	i := f.Code[pc]
	op := i.OpCode()
	doc := instructionDocument{
		Word:   uint32(i),
		OpCode: op.String(),
		Args:   instructionArgs(i),
		SetsA:  op.SetsA(),
		Test:   op.IsTest(),
	}
	kinds := op.Operands()
	doc.Operands = make([]string, 0, len(doc.Args))
	for j := range doc.Args {
		doc.Operands = append(doc.Operands, kinds[j].String())
	}
	doc.Line, _ = f.Line(pc)
	return doc
}

// functionPathPrefix returns the prefix used for the paths of
// functions nested inside the function at path.
// It matches the names produced by [luacode.Prototype.Walk].
func functionPathPrefix(path string) string {
	if path == "main" {
		return "F"
	}
	return path
}

// instructionArgs returns the arguments used by the instruction's mode.
func instructionArgs(i luacode.Instruction) []int64 {
	fields, err := luacode.Decode(i)
	if err != nil {
		return nil
	}
	switch fields.OpCode.OpMode() {
	case luacode.OpModeABC:
		return []int64{int64(fields.A), int64(fields.B), int64(fields.C)}
	case luacode.OpModeABx:
		return []int64{int64(fields.A), int64(fields.Bx)}
	case luacode.OpModeAsBx:
		return []int64{int64(fields.A), int64(fields.SBx)}
	case luacode.OpModeAx:
		return []int64{int64(fields.Ax)}
	default:
		return nil
	}
}

// writeJSON writes a JSON document for each chunk to w.
// Output to a terminal is indented.
func writeJSON(w io.Writer, paths []string, protos []*luacode.Prototype) error {
	enc := jsontext.NewEncoder(w,
		jsontext.Multiline(isTerminal(w)),
		jsontext.AllowInvalidUTF8(true),
	)
	for i, f := range protos {
		if err := jsonv2.MarshalEncode(enc, newChunkDocument(paths[i], f)); err != nil {
			return fmt.Errorf("%s: %v", paths[i], err)
		}
	}
	return nil
}

var cborEncMode = sync.OnceValues(func() (cbor.EncMode, error) {
	return cbor.CanonicalEncOptions().EncMode()
})

// writeCBOR writes a sequence of CBOR data items, one for each chunk, to w.
func writeCBOR(w io.Writer, paths []string, protos []*luacode.Prototype) error {
	em, err := cborEncMode()
	if err != nil {
		return err
	}
	enc := em.NewEncoder(w)
	for i, f := range protos {
		if err := enc.Encode(newChunkDocument(paths[i], f)); err != nil {
			return fmt.Errorf("%s: %v", paths[i], err)
		}
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
