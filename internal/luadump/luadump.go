// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

// Package luadump provides a Cobra command that inspects precompiled Lua 5.3 chunks.
// Its listing format is roughly the same as that of [luac(1)] -l.
//
// [luac(1)]: https://www.lua.org/manual/5.3/luac.html
package luadump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"zb.256lights.llc/luaundump/internal/luacode"
	"zombiezen.com/go/log"
)

// Options holds the settings for the luadump command.
// The values passed to [New] are used as the flags' defaults.
type Options struct {
	// Format is the output format.
	// The zero value is treated as [FormatListing].
	Format Format
	// List is the listing verbosity.
	// 2 or more includes constants, locals, and upvalues.
	List int
	// RawPC shows 0-based instruction indices in listings.
	RawPC bool
	// Strip removes debug information before printing or writing.
	Strip bool
	// ForeignByteOrder accepts chunks written on a machine
	// with the opposite byte order.
	ForeignByteOrder bool
	// Jobs is the maximum number of files loaded concurrently.
	// Zero or negative means the number of CPUs.
	Jobs int
	// OutputFilename is the path to write the re-encoded chunk to.
	// Only valid with a single input file.
	OutputFilename string
}

// New returns a new luadump command.
func New(defaults *Options) *cobra.Command {
	c := &cobra.Command{
		Use:                   "luadump [flags] FILE [...]",
		Short:                 "print precompiled Lua chunks",
		Args:                  cobra.MinimumNArgs(1),
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(Options)
	if defaults != nil {
		*opts = *defaults
	}
	if opts.Format == "" {
		opts.Format = FormatListing
	}
	addFlags(c.Flags(), opts)
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cmd.OutOrStdout(), args, opts)
	}
	return c
}

func addFlags(fset *pflag.FlagSet, opts *Options) {
	// CountVarP resets its target to zero.
	list := opts.List
	fset.CountVarP(&opts.List, "list", "l", "produce a listing (use twice for constants, locals, and upvalues)")
	opts.List = list
	fset.VarP(&opts.Format, "format", "f", "output `format` (listing, json, or cbor)")
	fset.StringVarP(&opts.OutputFilename, "output", "o", opts.OutputFilename, "re-encode chunk to `filename`")
	fset.BoolVarP(&opts.Strip, "strip-debug", "s", opts.Strip, "strip debug information")
	fset.BoolVarP(&opts.RawPC, "raw-pc", "0", opts.RawPC, "show literal PC values")
	fset.BoolVar(&opts.ForeignByteOrder, "foreign-byte-order", opts.ForeignByteOrder, "accept chunks with the opposite byte order")
	fset.IntVarP(&opts.Jobs, "jobs", "j", opts.Jobs, "maximum `number` of files to load at once")
}

func run(ctx context.Context, stdout io.Writer, paths []string, opts *Options) error {
	if opts.OutputFilename != "" && len(paths) != 1 {
		return errors.New("--output requires exactly one input file")
	}

	protos, err := loadFiles(ctx, paths, opts)
	if err != nil {
		return err
	}
	if opts.Strip {
		for i, f := range protos {
			protos[i] = f.StripDebug()
		}
	}

	quiet := opts.OutputFilename != "" && opts.List == 0 && opts.Format == FormatListing
	if !quiet {
		if err := printChunks(stdout, paths, protos, opts); err != nil {
			return err
		}
	}

	if opts.OutputFilename != "" {
		output, err := protos[0].MarshalBinary()
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.OutputFilename, output, 0o666); err != nil {
			return err
		}
		log.Debugf(ctx, "Wrote %s (%d bytes)", opts.OutputFilename, len(output))
	}
	return nil
}

// loadFiles loads each of the named files concurrently.
// The returned slice is in the same order as paths.
func loadFiles(ctx context.Context, paths []string, opts *Options) ([]*luacode.Prototype, error) {
	loadOpts := &luacode.LoadOptions{
		ForeignByteOrder: opts.ForeignByteOrder,
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	protos := make([]*luacode.Prototype, len(paths))
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(jobs)
	for i, path := range paths {
		grp.Go(func() error {
			if err := grpCtx.Err(); err != nil {
				return err
			}
			start := time.Now()
			f, size, err := loadFile(path, loadOpts)
			if err != nil {
				return err
			}
			log.Debugf(grpCtx, "Loaded %s (%d bytes) in %v", path, size, time.Since(start))
			protos[i] = f
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return protos, nil
}

func loadFile(path string, opts *luacode.LoadOptions) (_ *luacode.Prototype, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	cr := &countingReader{r: f}
	proto, err := opts.Load(cr, path)
	if err != nil {
		return nil, cr.n, err
	}
	return proto, cr.n, nil
}

func printChunks(w io.Writer, paths []string, protos []*luacode.Prototype, opts *Options) error {
	switch opts.Format {
	case FormatListing, "":
		pcBase := 1
		if opts.RawPC {
			pcBase = 0
		}
		for _, f := range protos {
			if err := printListing(w, f, pcBase, opts.List > 1); err != nil {
				return err
			}
		}
		return nil
	case FormatJSON:
		return writeJSON(w, paths, protos)
	case FormatCBOR:
		return writeCBOR(w, paths, protos)
	default:
		return fmt.Errorf("unknown format %q", opts.Format)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
