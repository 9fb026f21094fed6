// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luadump

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	jsonv2 "github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"zb.256lights.llc/luaundump/internal/luacode"
	"zb.256lights.llc/luaundump/internal/testcontext"
)

// helloPrototype returns the prototype for:
//
//	print("hello")
//	local function f() end
//	goto done
//	::done::
func helloPrototype() *luacode.Prototype {
	return &luacode.Prototype{
		Source:       luacode.FilenameSource("hello.lua"),
		IsVararg:     true,
		MaxStackSize: 2,
		Constants: []luacode.Value{
			luacode.StringValue("print"),
			luacode.StringValue("hello"),
		},
		Code: []luacode.Instruction{
			luacode.ABCInstruction(luacode.OpGetTabUp, 0, 0, luacode.RKConstant(0)),
			luacode.ABxInstruction(luacode.OpLoadK, 1, 1),
			luacode.ABCInstruction(luacode.OpCall, 0, 2, 1),
			luacode.ABxInstruction(luacode.OpClosure, 0, 0),
			luacode.AsBxInstruction(luacode.OpJMP, 0, 0),
			luacode.ABCInstruction(luacode.OpReturn, 0, 1, 0),
		},
		LineInfo: []int{1, 1, 1, 2, 3, 4},
		Upvalues: []luacode.UpvalueDescriptor{
			{Name: "_ENV", InStack: true, Index: 0},
		},
		LocalVariables: []luacode.LocalVariable{
			{Name: "f", StartPC: 4, EndPC: 6},
		},
		Functions: []*luacode.Prototype{
			{
				Source:          luacode.FilenameSource("hello.lua"),
				LineDefined:     2,
				LastLineDefined: 2,
				MaxStackSize:    2,
				Code: []luacode.Instruction{
					luacode.ABCInstruction(luacode.OpReturn, 0, 1, 0),
				},
				LineInfo: []int{2},
			},
		},
	}
}

// writeChunk writes the binary chunk for f to a new file in dir.
func writeChunk(tb testing.TB, dir, name string, f *luacode.Prototype) string {
	tb.Helper()
	data, err := f.MarshalBinary()
	if err != nil {
		tb.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o666); err != nil {
		tb.Fatal(err)
	}
	return path
}

func runCommand(ctx context.Context, defaults *Options, args ...string) (string, error) {
	c := New(defaults)
	c.SetArgs(args)
	stdout := new(bytes.Buffer)
	c.SetOut(stdout)
	c.SetErr(io.Discard)
	err := c.ExecuteContext(ctx)
	return stdout.String(), err
}

func TestListing(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	path := writeChunk(t, t.TempDir(), "hello.luac", helloPrototype())

	got, err := runCommand(ctx, nil, path)
	if err != nil {
		t.Fatal(err)
	}

	code := helloPrototype().Code
	want := "\n" +
		"main <hello.lua:0,0> (6 instructions for main)\n" +
		"0+ params, 2 slots, 1 upvalue, 1 local, 2 constants, 1 function\n" +
		"\t1\t[1]\t" + code[0].String() + "\t; _ENV \"print\"\n" +
		"\t2\t[1]\t" + code[1].String() + "\t; \"hello\"\n" +
		"\t3\t[1]\t" + code[2].String() + "\n" +
		"\t4\t[2]\t" + code[3].String() + "\t; F[0]\n" +
		"\t5\t[3]\t" + code[4].String() + "\t; to 6\n" +
		"\t6\t[4]\t" + code[5].String() + "\n" +
		"\n" +
		"function <hello.lua:2,2> (1 instruction for F[0])\n" +
		"0 params, 2 slots, 0 upvalues, 0 locals, 0 constants, 0 functions\n" +
		"\t1\t[2]\t" + code[5].String() + "\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
}

func TestListingFull(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	path := writeChunk(t, t.TempDir(), "hello.luac", helloPrototype())

	got, err := runCommand(ctx, nil, "-l", "-l", "--raw-pc", path)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"\t0\t[1]\t",
		"\t4\t[3]\t" + helloPrototype().Code[4].String() + "\t; to 5\n",
		"\t5\t[4]\t" + helloPrototype().Code[5].String() + "\t(R0=f)\n",
		"constants (2) for main:\n\t0\t\"print\"\n\t1\t\"hello\"\n",
		"locals (1) for main:\n\t0\tf\t4\t6\n",
		"upvalues (1) for main:\n\t0\t_ENV\t1\t0\n",
		"constants (0) for F[0]:\n",
		"upvalues (0) for F[0]:\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output does not contain %q. Output:\n%s", want, got)
		}
	}
}

func TestListingStripped(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	path := writeChunk(t, t.TempDir(), "hello.luac", helloPrototype())

	got, err := runCommand(ctx, nil, "--strip-debug", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"main <?:0,0> (6 instructions for main)\n",
		"\t1\t[-]\t" + helloPrototype().Code[0].String() + "\t; - \"print\"\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output does not contain %q. Output:\n%s", want, got)
		}
	}
}

func TestWriteComment(t *testing.T) {
	tests := []struct {
		i    luacode.Instruction
		want string
	}{
		{luacode.ABCInstruction(luacode.OpAdd, 0, 1, luacode.RKConstant(1)), "\t; - 1"},
		{luacode.ABCInstruction(luacode.OpAdd, 0, 1, 2), ""},
		{luacode.ABCInstruction(luacode.OpGetTable, 0, 1, 2), ""},
		{luacode.ABCInstruction(luacode.OpGetTable, 0, 1, luacode.RKConstant(0)), "\t; \"x\""},
		{luacode.ABCInstruction(luacode.OpSetTabUp, 0, luacode.RKConstant(0), 1), "\t; _ENV \"x\""},
		{luacode.ABCInstruction(luacode.OpGetTabUp, 0, 0, 1), "\t; _ENV"},
		{luacode.ABCInstruction(luacode.OpSetUpval, 0, 0, 0), "\t; _ENV"},
		{luacode.ABxInstruction(luacode.OpLoadK, 0, 1), "\t; 1"},
		{luacode.ABCInstruction(luacode.OpMove, 0, 1, 0), ""},
		{luacode.AsBxInstruction(luacode.OpForPrep, 0, 3), "\t; to 14"},
	}
	f := &luacode.Prototype{
		Constants: []luacode.Value{luacode.StringValue("x"), luacode.IntegerValue(1)},
		Upvalues:  []luacode.UpvalueDescriptor{{Name: "_ENV"}},
	}
	for _, test := range tests {
		f.Code = append(f.Code, test.i)
	}
	for pc, test := range tests {
		buf := new(bytes.Buffer)
		writeComment(buf, f, pc, nil, 1)
		if got := buf.String(); got != test.want {
			t.Errorf("comment for %v = %q; want %q", test.i, got, test.want)
		}
	}
}

func TestDisplaySource(t *testing.T) {
	tests := []struct {
		source luacode.Source
		want   string
	}{
		{"", "?"},
		{luacode.FilenameSource("foo.lua"), "foo.lua"},
		{luacode.AbstractSource("stdin"), "stdin"},
		{"return 42", "(string)"},
		{"\x1bLua", "(bstring)"},
	}
	for _, test := range tests {
		if got := displaySource(test.source); got != test.want {
			t.Errorf("displaySource(%q) = %q; want %q", test.source, got, test.want)
		}
	}
}

func TestJSON(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	dir := t.TempDir()
	path := writeChunk(t, dir, "hello.luac", helloPrototype())

	got, err := runCommand(ctx, &Options{Format: FormatJSON}, path)
	if err != nil {
		t.Fatal(err)
	}
	doc := new(chunkDocument)
	if err := jsonv2.Unmarshal([]byte(got), doc); err != nil {
		t.Fatal(err)
	}

	if doc.File != path {
		t.Errorf("file = %q; want %q", doc.File, path)
	}
	wantConstants := []constantDocument{
		{Type: "string", Value: "print"},
		{Type: "string", Value: "hello"},
	}
	if diff := cmp.Diff(wantConstants, doc.Main.Constants); diff != "" {
		t.Errorf("constants (-want +got):\n%s", diff)
	}
	wantCode := map[int]instructionDocument{
		0: {
			Word:     uint32(helloPrototype().Code[0]),
			OpCode:   "GETTABUP",
			Args:     []int64{0, 0, int64(luacode.RKConstant(0))},
			Operands: []string{"register", "upvalue", "rk"},
			SetsA:    true,
			Line:     1,
		},
		4: {
			Word:     uint32(helloPrototype().Code[4]),
			OpCode:   "JMP",
			Args:     []int64{0, 0},
			Operands: []string{"integer", "signed"},
			Line:     3,
		},
	}
	for pc, want := range wantCode {
		if diff := cmp.Diff(want, doc.Main.Code[pc]); diff != "" {
			t.Errorf("code[%d] (-want +got):\n%s", pc, diff)
		}
	}
	if len(doc.Main.Functions) != 1 || doc.Main.Functions[0].Path != "F[0]" {
		t.Errorf("functions = %+v; want one function with path F[0]", doc.Main.Functions)
	}
}

func TestInstructionDocument(t *testing.T) {
	f := &luacode.Prototype{
		Code: []luacode.Instruction{
			luacode.ABCInstruction(luacode.OpEQ, 1, 0, luacode.RKConstant(2)),
			luacode.AxInstruction(luacode.OpExtraArg, 300),
		},
	}
	tests := []instructionDocument{
		{
			Word:     uint32(f.Code[0]),
			OpCode:   "EQ",
			Args:     []int64{1, 0, int64(luacode.RKConstant(2))},
			Operands: []string{"bool", "rk", "rk"},
			Test:     true,
		},
		{
			Word:     uint32(f.Code[1]),
			OpCode:   "EXTRAARG",
			Args:     []int64{300},
			Operands: []string{"integer"},
		},
	}
	for pc, want := range tests {
		got := newInstructionDocument(f, pc)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("newInstructionDocument(f, %d) (-want +got):\n%s", pc, diff)
		}
	}
}

func TestCBOR(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	dir := t.TempDir()
	paths := []string{
		writeChunk(t, dir, "a.luac", helloPrototype()),
		writeChunk(t, dir, "b.luac", helloPrototype().StripDebug()),
	}

	got, err := runCommand(ctx, &Options{Format: FormatCBOR, Jobs: 2}, paths...)
	if err != nil {
		t.Fatal(err)
	}

	dec := cbor.NewDecoder(strings.NewReader(got))
	for i, path := range paths {
		doc := new(chunkDocument)
		if err := dec.Decode(doc); err != nil {
			t.Fatalf("item %d: %v", i, err)
		}
		f, err := luacode.Load(bytes.NewReader(mustReadFile(t, path)), path)
		if err != nil {
			t.Fatal(err)
		}
		want := newChunkDocument(path, f)
		if diff := cmp.Diff(want, doc, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("item %d (-want +got):\n%s", i, diff)
		}
	}
	if err := dec.Decode(new(chunkDocument)); !errors.Is(err, io.EOF) {
		t.Errorf("decoding after last item: %v; want %v", err, io.EOF)
	}
}

func TestOutput(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	dir := t.TempDir()
	path := writeChunk(t, dir, "hello.luac", helloPrototype())
	outPath := filepath.Join(dir, "stripped.luac")

	got, err := runCommand(ctx, nil, "--strip-debug", "-o", outPath, path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("output = %q; want empty", got)
	}

	f, err := luacode.Load(bytes.NewReader(mustReadFile(t, outPath)), outPath)
	if err != nil {
		t.Fatal(err)
	}
	want := helloPrototype().StripDebug()
	diffOptions := cmp.Options{
		cmp.Comparer(func(v1, v2 luacode.Value) bool { return v1 == v2 }),
		cmpopts.EquateEmpty(),
	}
	if diff := cmp.Diff(want, f, diffOptions); diff != "" {
		t.Errorf("re-encoded chunk (-want +got):\n%s", diff)
	}
}

func TestOutputMultipleFiles(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	dir := t.TempDir()
	a := writeChunk(t, dir, "a.luac", helloPrototype())
	b := writeChunk(t, dir, "b.luac", helloPrototype())

	if _, err := runCommand(ctx, nil, "-o", filepath.Join(dir, "out.luac"), a, b); err == nil {
		t.Error("command did not return an error")
	}
}

func TestMultipleFilesInOrder(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"one.lua", "two.lua", "three.lua"} {
		f := helloPrototype()
		f.Source = luacode.FilenameSource(name)
		f.Functions[0].Source = f.Source
		paths = append(paths, writeChunk(t, dir, name+"c", f))
	}

	got, err := runCommand(ctx, &Options{Jobs: 3}, paths...)
	if err != nil {
		t.Fatal(err)
	}
	one := strings.Index(got, "main <one.lua:")
	two := strings.Index(got, "main <two.lua:")
	three := strings.Index(got, "main <three.lua:")
	if one < 0 || two < 0 || three < 0 || !(one < two && two < three) {
		t.Errorf("main chunks not printed in argument order. Output:\n%s", got)
	}
}

func TestLoadErrors(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	dir := t.TempDir()
	good := writeChunk(t, dir, "good.luac", helloPrototype())
	data := mustReadFile(t, good)

	truncated := filepath.Join(dir, "truncated.luac")
	if err := os.WriteFile(truncated, data[:len(data)-3], 0o666); err != nil {
		t.Fatal(err)
	}
	trailing := filepath.Join(dir, "trailing.luac")
	if err := os.WriteFile(trailing, append(data, 0), 0o666); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want error
	}{
		{truncated, luacode.BufferNotReadable},
		{trailing, luacode.BufferNotEmpty},
		{filepath.Join(dir, "missing.luac"), os.ErrNotExist},
	}
	for _, test := range tests {
		_, err := runCommand(ctx, nil, good, test.path)
		if !errors.Is(err, test.want) {
			t.Errorf("luadump %s: %v; want %v", filepath.Base(test.path), err, test.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for _, f := range []Format{FormatListing, FormatJSON, FormatCBOR} {
		got, err := ParseFormat(f.String())
		if got != f || err != nil {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q, <nil>", f, got, err, f)
		}
	}
	if got, err := ParseFormat("yaml"); err == nil {
		t.Errorf("ParseFormat(\"yaml\") = %q, <nil>; want error", got)
	}
}

func mustReadFile(tb testing.TB, path string) []byte {
	tb.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		tb.Fatal(err)
	}
	return data
}
