// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luadump

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Format is an output format for the luadump command.
type Format string

// Output formats.
const (
	// FormatListing is a human-readable listing similar to luac -l.
	FormatListing Format = "listing"
	// FormatJSON is a JSON document per input file.
	FormatJSON Format = "json"
	// FormatCBOR is a CBOR data item per input file.
	FormatCBOR Format = "cbor"
)

var _ pflag.Value = (*Format)(nil)

// ParseFormat parses the name of a [Format].
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatListing, FormatJSON, FormatCBOR:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (must be one of %s, %s, or %s)", s, FormatListing, FormatJSON, FormatCBOR)
	}
}

// String returns the format's name.
func (f Format) String() string {
	return string(f)
}

// Set implements [pflag.Value] by calling [ParseFormat].
func (f *Format) Set(s string) error {
	parsed, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Type returns "format".
func (f *Format) Type() string {
	return "format"
}

// MarshalText returns the format's name.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f), nil
}

// UnmarshalText parses a format name with [ParseFormat].
func (f *Format) UnmarshalText(data []byte) error {
	return f.Set(string(data))
}
