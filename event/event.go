//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

// Package event provides the event stream between the execution
// worker and the coordinator. A run emits zero or more stdout and
// image events followed by exactly one done event. Worker failures
// arrive as error events and are rendered as output, never raised.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type is the kind of an execution event.
type Type string

// Event types.
const (
	// TypeStdout carries an incremental text fragment. Fragments are
	// not line-aligned; buffering is the coordinator's job.
	TypeStdout Type = "stdout"
	// TypeImage carries a base64-encoded image produced by the run.
	TypeImage Type = "image"
	// TypeError carries worker failure text, routed to the standard
	// error channel of the block output.
	TypeError Type = "error"
	// TypeDone signals completion of the run.
	TypeDone Type = "done"
)

// Event is a single execution event for one block run.
type Event struct {
	// ID is the unique identifier of the event.
	ID string `json:"id"`

	// ExecutionID identifies the run this event belongs to.
	ExecutionID string `json:"executionId"`

	// BlockID is the block whose run produced the event.
	BlockID string `json:"blockId"`

	// Type is the event kind.
	Type Type `json:"type"`

	// Payload is the text fragment, base64 image data or error text,
	// depending on Type.
	Payload string `json:"payload,omitempty"`

	// Timestamp is the emission time of the event.
	Timestamp time.Time `json:"timestamp"`
}

// Option is a function that configures an Event.
type Option func(*Event)

// WithExecutionID sets the run identifier on the event.
func WithExecutionID(executionID string) Option {
	return func(e *Event) {
		e.ExecutionID = executionID
	}
}

// WithPayload sets the payload of the event.
func WithPayload(payload string) Option {
	return func(e *Event) {
		e.Payload = payload
	}
}

// New creates an event for the given block and type.
func New(blockID string, eventType Type, opts ...Option) *Event {
	e := &Event{
		ID:        uuid.NewString(),
		BlockID:   blockID,
		Type:      eventType,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewStdout creates a stdout fragment event.
func NewStdout(blockID, chunk string, opts ...Option) *Event {
	return New(blockID, TypeStdout, append([]Option{WithPayload(chunk)}, opts...)...)
}

// NewImage creates an image event with base64-encoded data.
func NewImage(blockID, data string, opts ...Option) *Event {
	return New(blockID, TypeImage, append([]Option{WithPayload(data)}, opts...)...)
}

// NewError creates an error event with the worker failure text.
func NewError(blockID, message string, opts ...Option) *Event {
	return New(blockID, TypeError, append([]Option{WithPayload(message)}, opts...)...)
}

// NewDone creates a completion event.
func NewDone(blockID string, opts ...Option) *Event {
	return New(blockID, TypeDone, opts...)
}

// Clone creates a copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}
