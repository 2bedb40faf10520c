//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

package execution

import (
	"strings"

	"github.com/opencodeblocks/codegraph-go/richtext"
)

// OutputBuffer assembles streamed output fragments into a display
// value. Complete lines are cached as they arrive; the trailing
// unterminated line is held separately so it can be re-rendered in
// place on each new fragment without re-displaying finished lines.
// Backspace and carriage-return characters are stripped before
// buffering.
type OutputBuffer struct {
	cached  strings.Builder
	partial string
}

// Feed appends a fragment and returns the current display value.
func (b *OutputBuffer) Feed(fragment string) string {
	b.partial += richtext.StripControl(fragment)
	if i := strings.LastIndexByte(b.partial, '\n'); i >= 0 {
		b.cached.WriteString(b.partial[:i+1])
		b.partial = b.partial[i+1:]
	}
	return b.Value()
}

// Value returns the full buffered output: cached lines plus the
// trailing partial line.
func (b *OutputBuffer) Value() string {
	return b.cached.String() + b.partial
}

// Cached returns only the completed lines.
func (b *OutputBuffer) Cached() string {
	return b.cached.String()
}

// Partial returns the trailing line still being produced.
func (b *OutputBuffer) Partial() string {
	return b.partial
}

// Reset clears the buffer for a new run.
func (b *OutputBuffer) Reset() {
	b.cached.Reset()
	b.partial = ""
}
