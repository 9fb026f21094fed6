// Copyright (C) 1994-2018 Lua.org, PUC-Rio.
// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

/*
Package luacode reads and writes precompiled Lua 5.3 chunks
and decodes the virtual machine instructions inside them.
See [Load] for more details.

The package does not compile or execute Lua:
a loaded [Prototype] is a plain tree of data
that callers may inspect, strip, or write back out with [*Prototype.MarshalBinary].

# Provenance

This package is a hand-written conversion of Lua 5.3.5 to Go,
specifically borrowing from:

  - lopcodes.h and lopcodes.c
  - lobject.h (for Proto and the type tags)
  - lundump.c
  - ldump.c
  - luac.c (for the instruction listing format)

Ideally, this package should continue to resemble upstream
so that improvements in Lua can be easily ported over.

# Lua License

Copyright (C) 1994-2018 Lua.org, PUC-Rio.

Permission is hereby granted, free of charge, to any person obtaining
a copy of this software and associated documentation files (the
"Software"), to deal in the Software without restriction, including
without limitation the rights to use, copy, modify, merge, publish,
distribute, sublicense, and/or sell copies of the Software, and to
permit persons to whom the Software is furnished to do so, subject to
the following conditions:

The above copyright notice and this permission notice shall be
included in all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/
package luacode
