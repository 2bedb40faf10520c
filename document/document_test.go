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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodeblocks/codegraph-go/block"
)

// newCodeBlock builds a code block with one exe input and one exe
// output socket, the shape every executable block carries.
func newCodeBlock(d *Document, source string) *block.CodeBlock {
	cb := block.NewCodeBlock(d.NewID(), source)
	cb.AddSocket(block.NewSocket(d.NewID(), block.SocketInput, block.FlowExe))
	cb.AddSocket(block.NewSocket(d.NewID(), block.SocketOutput, block.FlowExe))
	return cb
}

// linkExe connects from's first exe output to to's first exe input.
func linkExe(t *testing.T, d *Document, from, to block.Block) {
	t.Helper()
	out := from.Meta().SocketsBy(block.SocketOutput, block.FlowExe)
	in := to.Meta().SocketsBy(block.SocketInput, block.FlowExe)
	require.NotEmpty(t, out)
	require.NotEmpty(t, in)
	require.NoError(t, d.AddEdge(Edge{
		Source:      Endpoint{Block: from.Meta().ID, Socket: out[0].ID},
		Destination: Endpoint{Block: to.Meta().ID, Socket: in[0].ID},
	}))
}

func TestAddBlockRejectsDuplicateIDs(t *testing.T) {
	d := New()
	a := newCodeBlock(d, "a = 1")
	require.NoError(t, d.AddBlock(a))

	dup := block.NewCodeBlock(a.ID, "other")
	err := d.AddBlock(dup)
	assert.ErrorIs(t, err, ErrDuplicateID)

	// A fresh block reusing an existing socket id is also rejected.
	b := block.NewCodeBlock(d.NewID(), "b = 2")
	b.AddSocket(block.NewSocket(a.Sockets[0].ID, block.SocketInput, block.FlowExe))
	err = d.AddBlock(b)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestAddEdgeValidatesReferences(t *testing.T) {
	d := New()
	a := newCodeBlock(d, "")
	b := newCodeBlock(d, "")
	require.NoError(t, d.AddBlock(a))
	require.NoError(t, d.AddBlock(b))

	err := d.AddEdge(Edge{
		Source:      Endpoint{Block: "missing", Socket: a.Sockets[1].ID},
		Destination: Endpoint{Block: b.ID, Socket: b.Sockets[0].ID},
	})
	assert.ErrorIs(t, err, ErrMalformedDocument)

	err = d.AddEdge(Edge{
		Source:      Endpoint{Block: a.ID, Socket: "missing"},
		Destination: Endpoint{Block: b.ID, Socket: b.Sockets[0].ID},
	})
	assert.ErrorIs(t, err, ErrMalformedDocument)

	linkExe(t, d, a, b)
	assert.Len(t, d.Edges(), 1)
}

func TestRemoveBlockDropsEdges(t *testing.T) {
	d := New()
	a := newCodeBlock(d, "")
	b := newCodeBlock(d, "")
	c := newCodeBlock(d, "")
	for _, blk := range []*block.CodeBlock{a, b, c} {
		require.NoError(t, d.AddBlock(blk))
	}
	linkExe(t, d, a, b)
	linkExe(t, d, b, c)

	require.NoError(t, d.RemoveBlock(b.ID))

	assert.Equal(t, 2, d.Len())
	assert.Empty(t, d.Edges())
	assert.NoError(t, d.Validate())

	err := d.RemoveBlock(b.ID)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestDownstreamUpstreamAdjacency(t *testing.T) {
	d := New()
	a := newCodeBlock(d, "")
	b := newCodeBlock(d, "")
	c := newCodeBlock(d, "")
	for _, blk := range []*block.CodeBlock{a, b, c} {
		require.NoError(t, d.AddBlock(blk))
	}
	linkExe(t, d, a, b)
	linkExe(t, d, a, c)

	assert.Equal(t, []string{b.ID, c.ID}, d.Downstream(a.ID))
	assert.Empty(t, d.Downstream(b.ID))
	assert.Equal(t, []string{a.ID}, d.Upstream(b.ID))
	assert.Equal(t, []string{a.ID}, d.Upstream(c.ID))
	assert.Empty(t, d.Upstream(a.ID))
	assert.Nil(t, d.Downstream("missing"))
}

func TestAdjacencyIgnoresDataEdges(t *testing.T) {
	d := New()
	a := newCodeBlock(d, "")
	b := newCodeBlock(d, "")
	dataOut := block.NewSocket(d.NewID(), block.SocketOutput, block.FlowData)
	dataIn := block.NewSocket(d.NewID(), block.SocketInput, block.FlowData)
	a.AddSocket(dataOut)
	b.AddSocket(dataIn)
	require.NoError(t, d.AddBlock(a))
	require.NoError(t, d.AddBlock(b))

	require.NoError(t, d.AddEdge(Edge{
		Source:      Endpoint{Block: a.ID, Socket: dataOut.ID},
		Destination: Endpoint{Block: b.ID, Socket: dataIn.ID},
	}))

	// Data edges carry values, not run order.
	assert.Empty(t, d.Downstream(a.ID))
	assert.Empty(t, d.Upstream(b.ID))
}
