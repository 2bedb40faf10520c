//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

package document

import (
	"encoding/json"
	"fmt"

	"github.com/opencodeblocks/codegraph-go/block"
)

// IDMap records the id remapping performed during deserialization:
// serialized id to live id. When ids are restored verbatim each id
// maps to itself.
type IDMap map[string]string

type socketJSON struct {
	ID   string `json:"id"`
	Type string `json:"socket_type"`
	Flow string `json:"flow_type"`
}

type blockJSON struct {
	ID        string       `json:"id"`
	BlockType string       `json:"block_type"`
	Title     string       `json:"title"`
	Position  []float64    `json:"position,omitempty"`
	Width     float64      `json:"width,omitempty"`
	Height    float64      `json:"height,omitempty"`
	Source    *string      `json:"source,omitempty"`
	Stdout    *string      `json:"stdout,omitempty"`
	Text      *string      `json:"text,omitempty"`
	Sockets   []socketJSON `json:"sockets"`
}

type documentJSON struct {
	Blocks []blockJSON `json:"blocks"`
	Edges  []Edge      `json:"edges"`
}

// Serialize produces a JSON document containing every block with its
// variant-specific fields and every edge, sufficient for exact
// reconstruction.
func (d *Document) Serialize() ([]byte, error) {
	doc := documentJSON{
		Blocks: make([]blockJSON, 0, len(d.order)),
		Edges:  make([]Edge, 0, len(d.edges)),
	}
	for _, id := range d.order {
		bj, err := d.serializeBlock(d.blocks[id])
		if err != nil {
			return nil, err
		}
		doc.Blocks = append(doc.Blocks, bj)
	}
	doc.Edges = append(doc.Edges, d.edges...)
	return json.Marshal(doc)
}

func (d *Document) serializeBlock(b block.Block) (blockJSON, error) {
	meta := b.Meta()
	name, ok := d.typeNames.NameOf(b.Type())
	if !ok {
		return blockJSON{}, fmt.Errorf("%w: %q", block.ErrUnknownType, b.Type())
	}
	bj := blockJSON{
		ID:        meta.ID,
		BlockType: name,
		Title:     meta.Title,
		Position:  []float64{meta.Pos[0], meta.Pos[1]},
		Width:     meta.Width,
		Height:    meta.Height,
		Sockets:   make([]socketJSON, 0, len(meta.Sockets)),
	}
	for _, s := range meta.Sockets {
		bj.Sockets = append(bj.Sockets, socketJSON{
			ID:   s.ID,
			Type: string(s.Type),
			Flow: string(s.Flow),
		})
	}
	switch v := b.(type) {
	case *block.CodeBlock:
		bj.Source = &v.Source
		bj.Stdout = &v.Stdout
	case *block.MarkdownBlock:
		bj.Text = &v.Text
	}
	return bj, nil
}

// Deserialize rebuilds blocks and edges from serialized form into the
// document. When restoreIDs is true the serialized ids are preserved,
// which supports loading a document from storage. When false, fresh
// ids are generated for every block and socket and the remapping is
// returned, which supports paste and duplicate into a live document.
//
// Missing optional fields are filled from per-variant defaults before
// use. An edge referencing an id absent from the restored blocks
// fails the whole load with ErrMalformedDocument.
func (d *Document) Deserialize(data []byte, restoreIDs bool) (IDMap, error) {
	var doc documentJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	idMap := make(IDMap)
	mapped := func(id string) string {
		if restoreIDs {
			idMap[id] = id
			return id
		}
		if fresh, done := idMap[id]; done {
			return fresh
		}
		fresh := d.NewID()
		idMap[id] = fresh
		return fresh
	}

	for _, bj := range doc.Blocks {
		b, err := d.deserializeBlock(bj, mapped)
		if err != nil {
			return nil, err
		}
		if err := d.AddBlock(b); err != nil {
			return nil, err
		}
	}

	for _, e := range doc.Edges {
		remapped, err := remapEdge(e, idMap)
		if err != nil {
			return nil, err
		}
		if err := d.AddEdge(remapped); err != nil {
			return nil, err
		}
	}
	return idMap, nil
}

func (d *Document) deserializeBlock(bj blockJSON, mapped func(string) string) (block.Block, error) {
	if bj.ID == "" {
		return nil, fmt.Errorf("%w: block has empty id", ErrMalformedDocument)
	}
	tag, ok := d.typeNames.TypeOf(bj.BlockType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", block.ErrUnknownType, bj.BlockType)
	}

	var b block.Block
	switch tag {
	case block.TypeCode:
		cb := block.NewCodeBlock(mapped(bj.ID), stringOrEmpty(bj.Source))
		cb.Stdout = stringOrEmpty(bj.Stdout)
		b = cb
	case block.TypeMarkdown:
		b = block.NewMarkdownBlock(mapped(bj.ID), stringOrEmpty(bj.Text))
	default:
		return nil, fmt.Errorf("%w: %q", block.ErrUnknownType, bj.BlockType)
	}

	meta := b.Meta()
	meta.Title = bj.Title
	if len(bj.Position) == 2 {
		meta.Pos = [2]float64{bj.Position[0], bj.Position[1]}
	}
	if bj.Width > 0 {
		meta.Width = bj.Width
	}
	if bj.Height > 0 {
		meta.Height = bj.Height
	}

	for _, sj := range bj.Sockets {
		socketType := block.SocketType(sj.Type)
		if socketType != block.SocketInput && socketType != block.SocketOutput {
			return nil, fmt.Errorf("%w: socket %s has invalid socket_type %q",
				ErrMalformedDocument, sj.ID, sj.Type)
		}
		flow := block.FlowType(sj.Flow)
		if flow == "" {
			flow = block.FlowExe
		}
		if flow != block.FlowData && flow != block.FlowExe {
			return nil, fmt.Errorf("%w: socket %s has invalid flow_type %q",
				ErrMalformedDocument, sj.ID, sj.Flow)
		}
		meta.AddSocket(block.NewSocket(mapped(sj.ID), socketType, flow))
	}
	return b, nil
}

func remapEdge(e Edge, idMap IDMap) (Edge, error) {
	remap := func(ep Endpoint) (Endpoint, error) {
		blockID, ok := idMap[ep.Block]
		if !ok {
			return Endpoint{}, fmt.Errorf("%w: edge references unknown block %s",
				ErrMalformedDocument, ep.Block)
		}
		socketID, ok := idMap[ep.Socket]
		if !ok {
			return Endpoint{}, fmt.Errorf("%w: edge references unknown socket %s",
				ErrMalformedDocument, ep.Socket)
		}
		return Endpoint{Block: blockID, Socket: socketID}, nil
	}
	src, err := remap(e.Source)
	if err != nil {
		return Edge{}, err
	}
	dst, err := remap(e.Destination)
	if err != nil {
		return Edge{}, err
	}
	return Edge{Source: src, Destination: dst}, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
