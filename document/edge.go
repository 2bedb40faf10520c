//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

package document

// Endpoint identifies one end of an edge by block and socket id. The
// references are non-owning: the edge does not own the sockets it
// connects.
type Endpoint struct {
	Block  string `json:"block"`
	Socket string `json:"socket"`
}

// Edge is a directed connection between two sockets on two blocks.
type Edge struct {
	Source      Endpoint `json:"source"`
	Destination Endpoint `json:"destination"`
}
