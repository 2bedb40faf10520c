//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

package notebook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opencodeblocks/codegraph-go/block"
	"github.com/opencodeblocks/codegraph-go/document"
	"github.com/opencodeblocks/codegraph-go/log"
	"github.com/opencodeblocks/codegraph-go/richtext"
)

// maxTitleLength is the longest markdown cell text still usable as a
// block title: a short phrase, not a sentence or heading.
const maxTitleLength = 60

// generic title given to blocks without an inferred one.
const defaultTitle = "Untitled"

// Horizontal layout applied to converted blocks so they read left to
// right like the notebook reads top to bottom.
const blockSpacing = 80

// Converter transforms notebook documents into graph documents and
// back. The block-type name table is injected so the converter and
// the document validator agree on serialized names.
type Converter struct {
	typeNames block.TypeNames
}

// Option configures a Converter.
type Option func(*Converter)

// WithTypeNames injects the block-type name table.
func WithTypeNames(names block.TypeNames) Option {
	return func(c *Converter) {
		c.typeNames = names
	}
}

// NewConverter creates a Converter.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{typeNames: block.DefaultTypeNames()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsTitle reports whether a markdown cell's text can be used as the
// title of the following block rather than as body content: it must
// be non-empty, fit on one line, not be a heading, and not exceed the
// title length threshold.
func IsTitle(text string) bool {
	if text == "" {
		return false
	}
	if strings.ContainsRune(text, '\n') {
		return false
	}
	if strings.HasPrefix(text, "#") {
		return false
	}
	return len([]rune(text)) <= maxTitleLength
}

// ToGraph converts a notebook document into a graph document. Every
// block and socket receives a freshly allocated id; notebook cell
// identifiers are never reused. An empty notebook converts to an
// empty document.
func (c *Converter) ToGraph(data []byte) (*document.Document, error) {
	doc := document.New(document.WithTypeNames(c.typeNames))
	if err := c.ToGraphInto(doc, data); err != nil {
		return nil, err
	}
	return doc, nil
}

// ToGraphInto converts a notebook document into an existing graph
// document, which supports importing a notebook into a live session.
func (c *Converter) ToGraphInto(doc *document.Document, data []byte) error {
	var nb Notebook
	if err := unmarshalNotebook(data, &nb); err != nil {
		return err
	}

	pendingTitle := ""
	var lastCode *block.CodeBlock
	col := 0
	for i, cell := range nb.Cells {
		switch cell.CellType {
		case CellTypeCode:
			cb := c.codeCellToBlock(doc, cell)
			if pendingTitle != "" {
				cb.Title = pendingTitle
				pendingTitle = ""
			}
			placeBlock(&cb.Base, col)
			col++
			if err := doc.AddBlock(cb); err != nil {
				return err
			}
			if lastCode != nil {
				if err := linkSequential(doc, lastCode, cb); err != nil {
					return err
				}
			}
			lastCode = cb
		default:
			// Markdown and raw text cells. A short one-line text is a
			// title for the next cell, whatever its type, not a block
			// of its own.
			text := cell.Source.String()
			if IsTitle(text) && i+1 < len(nb.Cells) {
				pendingTitle = text
				continue
			}
			mb := block.NewMarkdownBlock(doc.NewID(), text)
			mb.Title = defaultTitle
			if pendingTitle != "" {
				mb.Title = pendingTitle
				pendingTitle = ""
			}
			placeBlock(&mb.Base, col)
			col++
			if err := doc.AddBlock(mb); err != nil {
				return err
			}
		}
	}
	return nil
}

// codeCellToBlock builds a code block from a code cell, attaching the
// execution-flow socket pair and classifying the cell's first
// renderable output.
func (c *Converter) codeCellToBlock(doc *document.Document, cell Cell) *block.CodeBlock {
	cb := block.NewCodeBlock(doc.NewID(), cell.Source.String())
	cb.Title = defaultTitle
	cb.AddSocket(block.NewSocket(doc.NewID(), block.SocketInput, block.FlowExe))
	cb.AddSocket(block.NewSocket(doc.NewID(), block.SocketOutput, block.FlowExe))
	cb.Stdout = firstRenderableOutput(cell.Outputs)
	return cb
}

// firstRenderableOutput classifies a cell's outputs: an image output
// wins over text, text is taken from the first output carrying any.
func firstRenderableOutput(outputs []Output) string {
	for _, out := range outputs {
		if img, exists := out.Data["image/png"]; exists && img != "" {
			return richtext.ImageMarker + strings.TrimRight(img.String(), "\n")
		}
	}
	for _, out := range outputs {
		if text := out.Text.String(); text != "" {
			return text
		}
		if text, exists := out.Data["text/plain"]; exists && text != "" {
			return text.String()
		}
	}
	return ""
}

// linkSequential connects two consecutive code blocks with an
// execution-flow edge, establishing the default top-to-bottom run
// order of the notebook.
func linkSequential(doc *document.Document, from, to *block.CodeBlock) error {
	out := from.SocketsBy(block.SocketOutput, block.FlowExe)
	in := to.SocketsBy(block.SocketInput, block.FlowExe)
	if len(out) == 0 || len(in) == 0 {
		return fmt.Errorf("%w: code block without execution sockets", document.ErrMalformedDocument)
	}
	return doc.AddEdge(document.Edge{
		Source:      document.Endpoint{Block: from.ID, Socket: out[0].ID},
		Destination: document.Endpoint{Block: to.ID, Socket: in[0].ID},
	})
}

func placeBlock(b *block.Base, col int) {
	b.Pos = [2]float64{float64(col) * (b.Width + blockSpacing), 0}
}

func unmarshalNotebook(data []byte, nb *Notebook) error {
	if err := json.Unmarshal(data, nb); err != nil {
		return fmt.Errorf("parse notebook: %w", err)
	}
	if len(nb.Cells) == 0 {
		log.Debugf("notebook has no cells, converting to empty document")
	}
	return nil
}
