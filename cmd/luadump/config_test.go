// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"zb.256lights.llc/luaundump/internal/luadump"
)

func TestDefaultGlobalConfig(t *testing.T) {
	got := defaultGlobalConfig()
	if got.Format != luadump.FormatListing {
		t.Errorf("defaultGlobalConfig().Format = %q; want %q", got.Format, luadump.FormatListing)
	}
	if err := got.validate(); err != nil {
		t.Errorf("defaultGlobalConfig().validate() = %v", err)
	}
}

func TestGlobalConfigMergeFiles(t *testing.T) {
	dir := t.TempDir()
	var paths [3]string
	paths[0] = filepath.Join(dir, "config1.jwcc")
	const config1 = `{
		// Comments are permitted.
		"debug": true,
		"format": "json",
		"jobs": 4,
		"futureOption": {"nested": [1, 2, 3]},
	}` + "\n"
	if err := os.WriteFile(paths[0], []byte(config1), 0o666); err != nil {
		t.Fatal(err)
	}
	paths[1] = filepath.Join(dir, "missing.jwcc")
	paths[2] = filepath.Join(dir, "config2.jwcc")
	if err := os.WriteFile(paths[2], []byte(`{"format": "cbor", "list": 2, "rawPC": true}`+"\n"), 0o666); err != nil {
		t.Fatal(err)
	}

	g := defaultGlobalConfig()
	err := g.mergeFiles(func(yield func(string) bool) {
		for _, path := range paths {
			if !yield(path) {
				return
			}
		}
	})
	if err != nil {
		t.Error("mergeFiles:", err)
	}
	want := &globalConfig{
		Debug:  true,
		Format: luadump.FormatCBOR,
		List:   2,
		RawPC:  true,
		Jobs:   4,
	}
	if diff := cmp.Diff(want, g); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestGlobalConfigMergeFilesErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "NotObject", data: `[]`},
		{name: "BadFormat", data: `{"format": "yaml"}`},
		{name: "BadJobs", data: `{"jobs": "many"}`},
		{name: "Syntax", data: `{"debug": }`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.jwcc")
			if err := os.WriteFile(path, []byte(test.data), 0o666); err != nil {
				t.Fatal(err)
			}
			g := defaultGlobalConfig()
			if err := g.mergeFiles(slices.Values([]string{path})); err == nil {
				t.Errorf("mergeFiles did not return an error; config = %+v", g)
			}
		})
	}
}

func TestGlobalConfigMergeEnvironment(t *testing.T) {
	t.Setenv("LUADUMP_DEBUG", "1")
	t.Setenv("LUADUMP_FORMAT", "json")
	g := defaultGlobalConfig()
	if err := g.mergeEnvironment(); err != nil {
		t.Fatal(err)
	}
	if !g.Debug {
		t.Error("g.Debug = false; want true")
	}
	if g.Format != luadump.FormatJSON {
		t.Errorf("g.Format = %q; want %q", g.Format, luadump.FormatJSON)
	}

	t.Setenv("LUADUMP_FORMAT", "yaml")
	if err := defaultGlobalConfig().mergeEnvironment(); err == nil {
		t.Error("mergeEnvironment with LUADUMP_FORMAT=yaml did not return an error")
	}
}

func TestGlobalConfigValidate(t *testing.T) {
	for _, g := range []*globalConfig{{List: -1}, {Jobs: -1}} {
		if err := g.validate(); err == nil {
			t.Errorf("%+v.validate() = <nil>; want error", g)
		}
	}
}

func TestGlobalConfigOptions(t *testing.T) {
	g := &globalConfig{
		Debug:            true,
		Format:           luadump.FormatJSON,
		List:             1,
		RawPC:            true,
		ForeignByteOrder: true,
		Jobs:             3,
	}
	want := &luadump.Options{
		Format:           luadump.FormatJSON,
		List:             1,
		RawPC:            true,
		ForeignByteOrder: true,
		Jobs:             3,
	}
	if diff := cmp.Diff(want, g.options()); diff != "" {
		t.Errorf("options() (-want +got):\n%s", diff)
	}
}
