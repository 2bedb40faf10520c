//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

// Package notebook converts standard notebook documents (an ordered
// sequence of code and markdown cells) into graph documents and back.
// Conversion allocates fresh graph ids, infers block titles from
// short markdown cells and links consecutive code cells with
// execution-flow edges so a purely sequential notebook becomes a
// minimally-connected graph.
package notebook

import (
	"encoding/json"
	"strings"
)

// Cell type tags used by the notebook format.
const (
	CellTypeCode     = "code"
	CellTypeMarkdown = "markdown"
)

// Notebook is the subset of the notebook document the converter
// reads and writes.
type Notebook struct {
	Cells []Cell `json:"cells"`
}

// Cell is a single notebook cell.
type Cell struct {
	CellType string     `json:"cell_type"`
	Source   JoinedText `json:"source"`
	Outputs  []Output   `json:"outputs,omitempty"`
}

// Output is one entry of a code cell's outputs list.
type Output struct {
	OutputType string                `json:"output_type"`
	Name       string                `json:"name,omitempty"`
	Text       JoinedText            `json:"text,omitempty"`
	Data       map[string]JoinedText `json:"data,omitempty"`
}

// JoinedText accepts the two encodings notebooks use for text: a
// plain string or a list of line strings, and joins the latter. A
// missing field degrades to the empty string rather than failing the
// conversion.
type JoinedText string

// UnmarshalJSON implements json.Unmarshaler.
func (t *JoinedText) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = JoinedText(single)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err == nil {
		*t = JoinedText(strings.Join(lines, ""))
		return nil
	}
	// Unexpected shapes degrade to empty text.
	*t = ""
	return nil
}

// String returns the joined text.
func (t JoinedText) String() string { return string(t) }
