// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/tailscale/hujson"
	"zb.256lights.llc/luaundump/internal/luadump"
)

type globalConfig struct {
	Debug            bool           `json:"debug"`
	Format           luadump.Format `json:"format"`
	List             int            `json:"list"`
	RawPC            bool           `json:"rawPC"`
	ForeignByteOrder bool           `json:"foreignByteOrder"`
	Jobs             int            `json:"jobs"`
}

// defaultGlobalConfig returns the configuration used
// when no files or environment variables are present.
func defaultGlobalConfig() *globalConfig {
	return &globalConfig{
		Format: luadump.FormatListing,
	}
}

// configFiles returns the paths of the configuration files to read
// in increasing order of preference.
func configFiles() iter.Seq[string] {
	return func(yield func(string) bool) {
		for dir := range systemConfigDirs() {
			if !yield(filepath.Join(dir, "luadump", "config.jwcc")) {
				return
			}
		}
	}
}

func (g *globalConfig) mergeEnvironment() error {
	if s := os.Getenv("LUADUMP_DEBUG"); s != "" {
		debug, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("LUADUMP_DEBUG: %v", err)
		}
		g.Debug = debug
	}

	if s := os.Getenv("LUADUMP_FORMAT"); s != "" {
		format, err := luadump.ParseFormat(s)
		if err != nil {
			return fmt.Errorf("LUADUMP_FORMAT: %v", err)
		}
		g.Format = format
	}

	return nil
}

func (g *globalConfig) mergeFiles(paths iter.Seq[string]) error {
	for path := range paths {
		huJSONData, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		jsonData, err := hujson.Standardize(huJSONData)
		if err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
		if err := jsonv2.Unmarshal(jsonData, g, jsonv2.RejectUnknownMembers(false)); err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
	}

	return nil
}

// UnmarshalJSONFrom unmarshals the configuration object from the JSON decoder,
// merging any fields in the JSON object with existing values.
func (g *globalConfig) UnmarshalJSONFrom(in *jsontext.Decoder) error {
	tok, err := in.ReadToken()
	if err != nil {
		return err
	}
	if got := tok.Kind(); got != '{' {
		return fmt.Errorf("config must be an object not a %v", got)
	}

	for {
		keyToken, err := in.ReadToken()
		if err != nil {
			return err
		}
		switch kind := keyToken.Kind(); kind {
		case '}':
			return nil
		case '"':
			// Keep going.
		default:
			return fmt.Errorf("unexpected non-string key (%v) in object", kind)
		}

		switch k := keyToken.String(); k {
		case "debug":
			if err := jsonv2.UnmarshalDecode(in, &g.Debug); err != nil {
				return fmt.Errorf("unmarshal config.debug: %w", err)
			}
		case "format":
			if err := jsonv2.UnmarshalDecode(in, &g.Format); err != nil {
				return fmt.Errorf("unmarshal config.format: %w", err)
			}
		case "list":
			if err := jsonv2.UnmarshalDecode(in, &g.List); err != nil {
				return fmt.Errorf("unmarshal config.list: %w", err)
			}
		case "rawPC":
			if err := jsonv2.UnmarshalDecode(in, &g.RawPC); err != nil {
				return fmt.Errorf("unmarshal config.rawPC: %w", err)
			}
		case "foreignByteOrder":
			if err := jsonv2.UnmarshalDecode(in, &g.ForeignByteOrder); err != nil {
				return fmt.Errorf("unmarshal config.foreignByteOrder: %w", err)
			}
		case "jobs":
			if err := jsonv2.UnmarshalDecode(in, &g.Jobs); err != nil {
				return fmt.Errorf("unmarshal config.jobs: %w", err)
			}
		default:
			if reject, _ := jsonv2.GetOption(in.Options(), jsonv2.RejectUnknownMembers); reject {
				return fmt.Errorf("unmarshal config: unknown field %q", k)
			}
			if err := in.SkipValue(); err != nil {
				return err
			}
		}
	}
}

func (g *globalConfig) validate() error {
	if g.List < 0 {
		return fmt.Errorf("list must be non-negative (got %d)", g.List)
	}
	if g.Jobs < 0 {
		return fmt.Errorf("jobs must be non-negative (got %d)", g.Jobs)
	}
	return nil
}

// options returns the defaults for the luadump command's flags.
func (g *globalConfig) options() *luadump.Options {
	return &luadump.Options{
		Format:           g.Format,
		List:             g.List,
		RawPC:            g.RawPC,
		ForeignByteOrder: g.ForeignByteOrder,
		Jobs:             g.Jobs,
	}
}
