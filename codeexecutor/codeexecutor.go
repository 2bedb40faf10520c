//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

// Package codeexecutor defines the boundary to the external worker
// that runs block source code. Implementations stream incremental
// output through an emit callback while the run is in flight and
// return the accumulated result on completion. The graph core never
// interprets execution failures as errors of its own: failure text is
// ordinary output.
package codeexecutor

import (
	"context"

	"github.com/opencodeblocks/codegraph-go/event"
)

// CodeExecutor is an interface for executing block source code in
// different environments.
type CodeExecutor interface {
	// ExecuteCode runs the given source and returns the accumulated
	// result. If emit is non-nil it is called for each incremental
	// stdout fragment and image produced while the run is in flight.
	// Cancellation of ctx interrupts the run.
	ExecuteCode(ctx context.Context, input CodeExecutionInput, emit EmitFunc) (CodeExecutionResult, error)
}

// EmitFunc receives execution events as they are produced. It is
// called from the executor's goroutine; implementations must not
// block for long.
type EmitFunc func(*event.Event)

// CodeExecutionInput describes one block run.
type CodeExecutionInput struct {
	// BlockID is the graph block whose source is being run.
	BlockID string
	// Code is the source to execute.
	Code string
	// Language selects the interpreter; empty defaults to python.
	Language string
	// ExecutionID identifies this run across events.
	ExecutionID string
}

// CodeExecutionResult is the accumulated outcome of a run.
type CodeExecutionResult struct {
	// Output is the combined stdout and stderr text.
	Output string
	// Images holds base64-encoded images produced by the run.
	Images []string
}
