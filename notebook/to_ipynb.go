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

	"github.com/opencodeblocks/codegraph-go/block"
	"github.com/opencodeblocks/codegraph-go/document"
	"github.com/opencodeblocks/codegraph-go/richtext"
)

// FromGraph converts a graph document back into a notebook document.
// Every code block becomes a code cell with matching source and
// outputs, every markdown block a markdown cell with matching text.
// Cell order follows the execution-flow edges where they exist and
// falls back to block insertion order between unconnected blocks.
func (c *Converter) FromGraph(doc *document.Document) ([]byte, error) {
	nb := Notebook{Cells: []Cell{}}
	for _, b := range orderBlocks(doc) {
		cell, err := blockToCell(b)
		if err != nil {
			return nil, err
		}
		nb.Cells = append(nb.Cells, cell)
	}
	return json.Marshal(nb)
}

// orderBlocks produces a topological order over the execution-flow
// edges, breaking ties by block insertion order so unconnected blocks
// keep their document position.
func orderBlocks(doc *document.Document) []block.Block {
	blocks := doc.Blocks()
	position := make(map[string]int, len(blocks))
	indegree := make(map[string]int, len(blocks))
	for i, b := range blocks {
		id := b.Meta().ID
		position[id] = i
		indegree[id] = len(doc.Upstream(id))
	}

	emitted := make(map[string]struct{}, len(blocks))
	ordered := make([]block.Block, 0, len(blocks))
	for len(ordered) < len(blocks) {
		// Pick the earliest-inserted block with no unemitted producer.
		next := ""
		for _, b := range blocks {
			id := b.Meta().ID
			if _, done := emitted[id]; done {
				continue
			}
			if indegree[id] > 0 {
				continue
			}
			if next == "" || position[id] < position[next] {
				next = id
			}
		}
		if next == "" {
			// Cycle among the remaining blocks; fall back to
			// insertion order so conversion still terminates.
			for _, b := range blocks {
				id := b.Meta().ID
				if _, done := emitted[id]; !done {
					next = id
					break
				}
			}
		}
		emitted[next] = struct{}{}
		nb, _ := doc.Block(next)
		ordered = append(ordered, nb)
		for _, consumer := range doc.Downstream(next) {
			indegree[consumer]--
		}
	}
	return ordered
}

func blockToCell(b block.Block) (Cell, error) {
	switch v := b.(type) {
	case *block.CodeBlock:
		return Cell{
			CellType: CellTypeCode,
			Source:   JoinedText(v.Source),
			Outputs:  stdoutToOutputs(v.Stdout),
		}, nil
	case *block.MarkdownBlock:
		return Cell{
			CellType: CellTypeMarkdown,
			Source:   JoinedText(v.Text),
		}, nil
	default:
		return Cell{}, fmt.Errorf("%w: %q", block.ErrUnknownType, b.Type())
	}
}

// stdoutToOutputs maps a block's rendered output back to notebook
// output entries, reversing the classification applied on import.
func stdoutToOutputs(stdout string) []Output {
	if stdout == "" {
		return nil
	}
	kind, payload := richtext.Classify(stdout)
	switch kind {
	case richtext.KindImage:
		return []Output{{
			OutputType: "display_data",
			Data:       map[string]JoinedText{"image/png": JoinedText(payload)},
		}}
	case richtext.KindRich:
		return []Output{{
			OutputType: "display_data",
			Data:       map[string]JoinedText{"text/html": JoinedText(payload)},
		}}
	default:
		return []Output{{
			OutputType: "stream",
			Name:       "stdout",
			Text:       JoinedText(payload),
		}}
	}
}
