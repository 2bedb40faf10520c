//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

package block

// SocketType indicates which side of a block a socket sits on.
type SocketType string

// Socket side constants.
const (
	SocketInput  SocketType = "input"
	SocketOutput SocketType = "output"
)

// FlowType indicates what a socket carries: data values or run order.
type FlowType string

// Socket flow constants.
const (
	FlowData FlowType = "data"
	FlowExe  FlowType = "exe"
)

// Socket is a typed connection point on a block. A socket belongs to
// exactly one block and its ID is unique within a document.
type Socket struct {
	// ID is the document-wide unique identifier of the socket.
	ID string
	// BlockID is the identifier of the owning block.
	BlockID string
	// Type is the side of the block the socket sits on.
	Type SocketType
	// Flow distinguishes data sockets from execution-flow sockets.
	Flow FlowType
	// Index is the position among same-side siblings on the owning
	// block. It is derived from socket order and not serialized.
	Index int
}

// NewSocket creates an unattached socket. BlockID and Index are set
// when the socket is added to a block.
func NewSocket(id string, socketType SocketType, flow FlowType) *Socket {
	return &Socket{
		ID:   id,
		Type: socketType,
		Flow: flow,
	}
}

// IsExe reports whether the socket carries execution flow.
func (s *Socket) IsExe() bool {
	return s.Flow == FlowExe
}
