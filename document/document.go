//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

// Package document implements the graph document: the complete
// mapping of blocks and edges with document-wide unique-id
// invariants, its JSON serialization, and the adjacency view the
// execution package traverses. A document is created empty, by
// deserializing persisted state, or by notebook conversion. It is a
// single-writer structure and not safe for concurrent mutation.
package document

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/opencodeblocks/codegraph-go/block"
)

// Document owns a collection of blocks keyed by id and an ordered
// sequence of edges between their sockets.
type Document struct {
	typeNames block.TypeNames

	blocks map[string]block.Block
	// order preserves block insertion order for deterministic
	// serialization and iteration.
	order []string
	edges []Edge
	// socketOwner maps every socket id in the document to its owning
	// block id, enforcing document-wide socket id uniqueness.
	socketOwner map[string]string
}

// Option configures a Document.
type Option func(*Document)

// WithTypeNames injects the block-type name table used when
// serializing and validating block variants.
func WithTypeNames(names block.TypeNames) Option {
	return func(d *Document) {
		d.typeNames = names
	}
}

// New creates an empty document.
func New(opts ...Option) *Document {
	d := &Document{
		typeNames:   block.DefaultTypeNames(),
		blocks:      make(map[string]block.Block),
		socketOwner: make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewID allocates a fresh document-unique identifier.
func (d *Document) NewID() string {
	return uuid.NewString()
}

// TypeNames returns the injected block-type name table.
func (d *Document) TypeNames() block.TypeNames {
	return d.typeNames
}

// AddBlock adds a block and registers its sockets. The block id and
// every socket id must be unique across the whole document.
func (d *Document) AddBlock(b block.Block) error {
	meta := b.Meta()
	if meta.ID == "" {
		return fmt.Errorf("%w: block has empty id", ErrMalformedDocument)
	}
	if _, exists := d.blocks[meta.ID]; exists {
		return fmt.Errorf("%w: block %s", ErrDuplicateID, meta.ID)
	}
	for _, s := range meta.Sockets {
		if owner, exists := d.socketOwner[s.ID]; exists {
			return fmt.Errorf("%w: socket %s already owned by block %s", ErrDuplicateID, s.ID, owner)
		}
	}
	d.blocks[meta.ID] = b
	d.order = append(d.order, meta.ID)
	for _, s := range meta.Sockets {
		d.socketOwner[s.ID] = meta.ID
	}
	return nil
}

// RemoveBlock removes a block, its sockets and every edge touching
// them.
func (d *Document) RemoveBlock(id string) error {
	b, exists := d.blocks[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	for _, s := range b.Meta().Sockets {
		delete(d.socketOwner, s.ID)
	}
	delete(d.blocks, id)
	for i, blockID := range d.order {
		if blockID == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	kept := d.edges[:0]
	for _, e := range d.edges {
		if e.Source.Block != id && e.Destination.Block != id {
			kept = append(kept, e)
		}
	}
	d.edges = kept
	return nil
}

// Block returns the block with the given id.
func (d *Document) Block(id string) (block.Block, bool) {
	b, exists := d.blocks[id]
	return b, exists
}

// Blocks returns all blocks in insertion order.
func (d *Document) Blocks() []block.Block {
	out := make([]block.Block, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.blocks[id])
	}
	return out
}

// Len returns the number of blocks in the document.
func (d *Document) Len() int {
	return len(d.blocks)
}

// AddEdge appends an edge after checking that all four referenced ids
// resolve to existing entities and that each socket belongs to the
// block named by its endpoint.
func (d *Document) AddEdge(e Edge) error {
	for _, ep := range []Endpoint{e.Source, e.Destination} {
		b, exists := d.blocks[ep.Block]
		if !exists {
			return fmt.Errorf("%w: edge references unknown block %s", ErrMalformedDocument, ep.Block)
		}
		if _, exists := b.Meta().Socket(ep.Socket); !exists {
			return fmt.Errorf("%w: edge references unknown socket %s on block %s",
				ErrMalformedDocument, ep.Socket, ep.Block)
		}
	}
	d.edges = append(d.edges, e)
	return nil
}

// Edges returns the ordered edge sequence.
func (d *Document) Edges() []Edge {
	out := make([]Edge, len(d.edges))
	copy(out, d.edges)
	return out
}

// Downstream returns the ids of blocks directly consuming the given
// block through execution-flow edges, ordered by source socket index
// and then edge order. Unknown block ids yield nil.
func (d *Document) Downstream(blockID string) []string {
	return d.exeNeighbors(blockID, block.SocketOutput)
}

// Upstream returns the ids of blocks directly feeding the given block
// through execution-flow edges, ordered by destination socket index
// and then edge order.
func (d *Document) Upstream(blockID string) []string {
	return d.exeNeighbors(blockID, block.SocketInput)
}

// exeNeighbors computes one adjacency direction from the edge list.
// The traversal never follows live object references, only ids.
func (d *Document) exeNeighbors(blockID string, side block.SocketType) []string {
	b, exists := d.blocks[blockID]
	if !exists {
		return nil
	}
	type hop struct {
		socketIndex int
		edgeIndex   int
		neighbor    string
	}
	var hops []hop
	for i, e := range d.edges {
		var local, remote Endpoint
		if side == block.SocketOutput {
			local, remote = e.Source, e.Destination
		} else {
			local, remote = e.Destination, e.Source
		}
		if local.Block != blockID {
			continue
		}
		s, exists := b.Meta().Socket(local.Socket)
		if !exists || !s.IsExe() {
			continue
		}
		hops = append(hops, hop{socketIndex: s.Index, edgeIndex: i, neighbor: remote.Block})
	}
	sort.Slice(hops, func(i, j int) bool {
		if hops[i].socketIndex != hops[j].socketIndex {
			return hops[i].socketIndex < hops[j].socketIndex
		}
		return hops[i].edgeIndex < hops[j].edgeIndex
	})
	seen := make(map[string]struct{}, len(hops))
	var out []string
	for _, h := range hops {
		if _, dup := seen[h.neighbor]; dup {
			continue
		}
		seen[h.neighbor] = struct{}{}
		out = append(out, h.neighbor)
	}
	return out
}

// Validate checks the document invariants: unique block and socket
// ids and fully resolvable edges.
func (d *Document) Validate() error {
	socketSeen := make(map[string]string)
	for _, id := range d.order {
		b := d.blocks[id]
		for _, s := range b.Meta().Sockets {
			if owner, dup := socketSeen[s.ID]; dup {
				return fmt.Errorf("%w: socket %s on blocks %s and %s", ErrDuplicateID, s.ID, owner, id)
			}
			socketSeen[s.ID] = id
		}
	}
	for _, e := range d.edges {
		for _, ep := range []Endpoint{e.Source, e.Destination} {
			b, exists := d.blocks[ep.Block]
			if !exists {
				return fmt.Errorf("%w: edge references unknown block %s", ErrMalformedDocument, ep.Block)
			}
			if _, exists := b.Meta().Socket(ep.Socket); !exists {
				return fmt.Errorf("%w: edge references unknown socket %s on block %s",
					ErrMalformedDocument, ep.Socket, ep.Block)
			}
		}
	}
	return nil
}
