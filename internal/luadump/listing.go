// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luadump

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"zb.256lights.llc/luaundump/internal/luacode"
)

// printListing writes a luac-style listing of f and its nested functions to w.
// pcBase is added to every printed instruction index.
// If full is true, then the constant, local, and upvalue tables are printed too.
func printListing(w io.Writer, f *luacode.Prototype, pcBase int, full bool) error {
	functionNames := make(map[*luacode.Prototype]string)
	for name, p := range f.Walk() {
		functionNames[p] = name
	}
	for _, p := range f.Walk() {
		if err := printFunction(w, p, functionNames, pcBase, full); err != nil {
			return err
		}
	}
	return nil
}

func printFunction(w io.Writer, f *luacode.Prototype, functionNames map[*luacode.Prototype]string, pcBase int, full bool) error {
	_, err := fmt.Fprintf(w,
		"\n%s <%s:%d,%d> (%s for %s)\n",
		ifElse(f.IsMainChunk(), "main", "function"),
		displaySource(f.Source),
		f.LineDefined,
		f.LastLineDefined,
		plural(len(f.Code), "instruction", "instructions"),
		functionNames[f],
	)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w,
		"%d%s %s, %s, %s, %s, %s, %s\n",
		f.NumParams,
		ifElse(f.IsVararg, "+", ""),
		pluralUnit(int(f.NumParams), "param", "params"),
		plural(int(f.MaxStackSize), "slot", "slots"),
		plural(len(f.Upvalues), "upvalue", "upvalues"),
		plural(len(f.LocalVariables), "local", "locals"),
		plural(len(f.Constants), "constant", "constants"),
		plural(len(f.Functions), "function", "functions"),
	)
	if err != nil {
		return err
	}

	lineBuf := new(bytes.Buffer)
	for pc, i := range f.Code {
		lineBuf.Reset()
		fmt.Fprintf(lineBuf, "\t%d\t", pcBase+pc)
		if line, ok := f.Line(pc); ok {
			fmt.Fprintf(lineBuf, "[%d]\t", line)
		} else {
			lineBuf.WriteString("[-]\t")
		}
		lineBuf.WriteString(i.String())
		writeComment(lineBuf, f, pc, functionNames, pcBase)
		if full {
			writeLocals(lineBuf, f, pc)
		}
		lineBuf.WriteByte('\n')
		if _, err := w.Write(lineBuf.Bytes()); err != nil {
			return err
		}
	}

	if !full {
		return nil
	}

	if _, err := fmt.Fprintf(w, "constants (%d) for %s:\n", len(f.Constants), functionNames[f]); err != nil {
		return err
	}
	for i, k := range f.Constants {
		if _, err := fmt.Fprintf(w, "\t%d\t%s\n", pcBase+i, k); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "locals (%d) for %s:\n", len(f.LocalVariables), functionNames[f]); err != nil {
		return err
	}
	for i, v := range f.LocalVariables {
		_, err := fmt.Fprintf(w,
			"\t%d\t%s\t%d\t%d\n",
			i,
			v.Name,
			pcBase+v.StartPC,
			pcBase+v.EndPC,
		)
		if err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "upvalues (%d) for %s:\n", len(f.Upvalues), functionNames[f]); err != nil {
		return err
	}
	for i, uv := range f.Upvalues {
		_, err := fmt.Fprintf(w,
			"\t%d\t%s\t%s\t%d\n",
			i,
			upvalueName(f, i),
			ifElse(uv.InStack, "1", "0"),
			uv.Index,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeComment appends the annotation for the instruction at pc, if any.
func writeComment(buf *bytes.Buffer, f *luacode.Prototype, pc int, functionNames map[*luacode.Prototype]string, pcBase int) {
	i := f.Code[pc]
	op := i.OpCode()
	switch op {
	case luacode.OpJMP, luacode.OpForLoop, luacode.OpForPrep, luacode.OpTForLoop:
		fmt.Fprintf(buf, "\t; to %d", pcBase+pc+1+int(i.ArgSBx()))
		return
	case luacode.OpClosure:
		if bx := i.ArgBx(); int(bx) < len(f.Functions) {
			fmt.Fprintf(buf, "\t; %s", functionNames[f.Functions[bx]])
		}
		return
	case luacode.OpSetList:
		if c := i.ArgC(); c != 0 {
			fmt.Fprintf(buf, "\t; %d", c)
		} else if pc+1 < len(f.Code) && f.Code[pc+1].OpCode() == luacode.OpExtraArg {
			fmt.Fprintf(buf, "\t; %d", f.Code[pc+1].ArgAx())
		}
		return
	}

	// Register operands in an RK position print as "-"
	// unless the instruction names an upvalue.
	args := instructionArgs(i)
	var parts []string
	hasUpvalue, hasConstant := false, false
	for j, kind := range op.Operands() {
		if j >= len(args) {
			break
		}
		switch kind {
		case luacode.OperandUpvalue:
			hasUpvalue = true
		case luacode.OperandConstant:
			hasConstant = true
		case luacode.OperandRegisterOrConstant:
			if luacode.IsConstant(uint16(args[j])) {
				hasConstant = true
			}
		}
	}
	for j, kind := range op.Operands() {
		if j >= len(args) {
			break
		}
		switch kind {
		case luacode.OperandUpvalue:
			parts = append(parts, upvalueName(f, int(args[j])))
		case luacode.OperandConstant:
			parts = append(parts, constantString(f, int(args[j])))
		case luacode.OperandRegisterOrConstant:
			if arg := uint16(args[j]); luacode.IsConstant(arg) {
				parts = append(parts, constantString(f, luacode.ConstantIndex(arg)))
			} else if !hasUpvalue {
				parts = append(parts, "-")
			}
		}
	}
	if !hasUpvalue && !hasConstant {
		return
	}
	buf.WriteString("\t; ")
	buf.WriteString(strings.Join(parts, " "))
}

// writeLocals appends the names of the local variables
// held by the instruction's register operands.
func writeLocals(buf *bytes.Buffer, f *luacode.Prototype, pc int) {
	i := f.Code[pc]
	args := instructionArgs(i)
	var parts []string
	for j, kind := range i.OpCode().Operands() {
		if j >= len(args) || kind != luacode.OperandRegister {
			continue
		}
		reg := uint8(args[j])
		if name := f.LocalName(reg, pc); name != "" {
			parts = append(parts, fmt.Sprintf("R%d=%s", reg, name))
		}
	}
	if len(parts) == 0 {
		return
	}
	buf.WriteString("\t(")
	buf.WriteString(strings.Join(parts, " "))
	buf.WriteString(")")
}

func constantString(f *luacode.Prototype, k int) string {
	if k < 0 || k >= len(f.Constants) {
		return "?"
	}
	return f.Constants[k].String()
}

func upvalueName(f *luacode.Prototype, i int) string {
	if i < 0 || i >= len(f.Upvalues) || f.Upvalues[i].Name == "" {
		return "-"
	}
	return f.Upvalues[i].Name
}

// displaySource returns the chunk name shown in a function header.
func displaySource(source luacode.Source) string {
	if source == "" {
		return "?"
	}
	if s, ok := source.Abstract(); ok {
		return s
	}
	if s, ok := source.Filename(); ok {
		return s
	}
	if strings.HasPrefix(string(source), luacode.Signature[:1]) {
		return "(bstring)"
	}
	return "(string)"
}

func ifElse(b bool, t, f string) string {
	if b {
		return t
	} else {
		return f
	}
}

func plural(n int, unit string, unitPlural string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %s", n, unitPlural)
}

func pluralUnit(n int, unit string, unitPlural string) string {
	if n == 1 {
		return unit
	}
	return unitPlural
}
