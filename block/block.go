//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

// Package block defines the block and socket data model for graph
// documents. A block is a node in the visual graph; sockets are its
// typed connection points. The package holds pure model types only,
// serialization lives in the document package and run-state
// transitions in the execution package.
package block

import "errors"

// ErrUnknownType is returned when a serialized block carries a
// variant tag that is not in the recognized set. Callers decide
// whether to skip the block or fail the whole load; the tag is never
// coerced to a default variant.
var ErrUnknownType = errors.New("unknown block type")

// Default layout values used to complete partially specified blocks.
const (
	DefaultWidth  = 180
	DefaultHeight = 240
)

// Base carries the fields shared by every block variant. Position and
// size are layout data owned by the presentation layer; the core only
// round-trips them.
type Base struct {
	// ID is the document-wide unique identifier of the block.
	ID string
	// Title is the human-readable label of the block.
	Title string
	// Pos is the x, y position of the block on the canvas.
	Pos [2]float64
	// Width and Height are the block dimensions on the canvas.
	Width  float64
	Height float64
	// Sockets is the ordered collection of connection points owned by
	// the block.
	Sockets []*Socket
}

// Block is the interface implemented by all graph block variants.
type Block interface {
	// Meta returns the shared base fields of the block.
	Meta() *Base
	// Type returns the variant tag of the block.
	Type() Type
}

// Meta returns the shared base fields.
func (b *Base) Meta() *Base { return b }

// AddSocket attaches a socket to the block, assigning ownership and
// the position index among same-side siblings.
func (b *Base) AddSocket(s *Socket) {
	s.BlockID = b.ID
	s.Index = b.socketCount(s.Type)
	b.Sockets = append(b.Sockets, s)
}

// Socket returns the socket with the given id, if the block owns it.
func (b *Base) Socket(id string) (*Socket, bool) {
	for _, s := range b.Sockets {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// SocketsBy returns the block's sockets matching the given side and
// flow, in index order.
func (b *Base) SocketsBy(socketType SocketType, flow FlowType) []*Socket {
	var out []*Socket
	for _, s := range b.Sockets {
		if s.Type == socketType && s.Flow == flow {
			out = append(out, s)
		}
	}
	return out
}

func (b *Base) socketCount(socketType SocketType) int {
	n := 0
	for _, s := range b.Sockets {
		if s.Type == socketType {
			n++
		}
	}
	return n
}

// CodeBlock is an executable block holding source code and the last
// rendered output.
type CodeBlock struct {
	Base

	// Source is the code to execute.
	Source string
	// Stdout is the last rendered output. It may encode plain text,
	// an HTML fragment or an embedded image, distinguished by the
	// richtext package markers.
	Stdout string
	// HasBeenRun is true only while the current Source is the one
	// that was executed. Any source mutation resets it for this block
	// and for every downstream consumer.
	HasBeenRun bool
}

// NewCodeBlock creates a code block with the given id and source and
// default layout values. Execution-flow sockets are attached by the
// caller since socket ids are allocated at the document level.
func NewCodeBlock(id, source string) *CodeBlock {
	return &CodeBlock{
		Base: Base{
			ID:     id,
			Width:  DefaultWidth,
			Height: DefaultHeight,
		},
		Source: source,
	}
}

// Type implements Block.
func (b *CodeBlock) Type() Type { return TypeCode }

// MarkdownBlock is a non-executable block holding markdown text.
type MarkdownBlock struct {
	Base

	// Text is the markdown body of the block.
	Text string
}

// NewMarkdownBlock creates a markdown block with the given id and
// text and default layout values.
func NewMarkdownBlock(id, text string) *MarkdownBlock {
	return &MarkdownBlock{
		Base: Base{
			ID:     id,
			Width:  DefaultWidth,
			Height: DefaultHeight,
		},
		Text: text,
	}
}

// Type implements Block.
func (b *MarkdownBlock) Type() Type { return TypeMarkdown }
