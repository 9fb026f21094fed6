// Copyright (C) 1994-2018 Lua.org, PUC-Rio.
// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"strings"
	"unicode/utf8"
)

// Source is a description of a chunk that created a [Prototype].
// The first byte determines how the rest is interpreted:
// "@" introduces a file name, "=" introduces a user-provided description,
// and anything else is the text of the chunk itself.
// The zero value is the source of a stripped chunk.
type Source string

// FilenameSource returns a [Source] for a filesystem path.
// The path can be retrieved later using [Source.Filename].
func FilenameSource(path string) Source {
	return Source("@" + path)
}

// AbstractSource returns a [Source] from a user-dependent description.
// The description can be retrieved later using [Source.Abstract].
func AbstractSource(description string) Source {
	return Source("=" + description)
}

// Filename returns the file name of the chunk
// provided to [FilenameSource].
func (source Source) Filename() (_ string, isFilename bool) {
	return strings.CutPrefix(string(source), "@")
}

// Abstract returns the user-dependent description of the source
// provided to [AbstractSource].
func (source Source) Abstract() (_ string, isAbstract bool) {
	return strings.CutPrefix(string(source), "=")
}

// IsValid reports whether the source is valid UTF-8.
func (source Source) IsValid() bool {
	return utf8.ValidString(string(source))
}

// idSize is the size of the buffer luaO_chunkid writes into,
// including the terminating NUL.
const idSize = 60

// String formats the source in the same abbreviated form
// that Lua uses in error messages and luac -l listings.
func (source Source) String() string {
	const maxLen = idSize - 1
	const ellipsis = "..."

	if s, ok := source.Abstract(); ok {
		if len(s) <= maxLen {
			return s
		}
		return s[:maxLen]
	}
	if s, ok := source.Filename(); ok {
		if len(s) <= maxLen {
			return s
		}
		return ellipsis + s[len(s)-(maxLen-len(ellipsis)):]
	}

	const prefix = `[string "`
	const suffix = `"]`
	const bufLen = idSize - (len(prefix) + len(ellipsis) + len(suffix)) - 1
	s := string(source)
	line, _, multipleLines := strings.Cut(s, "\n")
	if !multipleLines && len(s) < bufLen {
		return prefix + s + suffix
	}
	if len(line) > bufLen {
		line = line[:bufLen]
	}
	return prefix + line + ellipsis + suffix
}
