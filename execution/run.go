//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

package execution

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opencodeblocks/codegraph-go/codeexecutor"
	"github.com/opencodeblocks/codegraph-go/event"
	"github.com/opencodeblocks/codegraph-go/log"
	"github.com/opencodeblocks/codegraph-go/richtext"
	"github.com/opencodeblocks/codegraph-go/telemetry/trace"
)

// Execution is a handle to one in-flight block run.
type Execution struct {
	// ID identifies the run across its events.
	ID string
	// BlockID is the block being run.
	BlockID string

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Wait blocks until the run completes and returns its error, if any.
// Output produced by failing code is not an error; only worker
// failures and interruptions are.
func (e *Execution) Wait() error {
	<-e.done
	return e.err
}

// Interrupt signals the in-flight worker to stop.
func (e *Execution) Interrupt() {
	e.cancel()
}

// Run executes a block's source on the external worker without
// blocking the caller. If a previous run of the same block is still
// in flight it is interrupted rather than queueing a second
// concurrent execution. HasBeenRun becomes true for the executed
// block only, and only when the run completes without interruption.
func (c *Coordinator) Run(ctx context.Context, blockID string) (*Execution, error) {
	c.mu.Lock()
	cb, err := c.codeBlock(blockID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if prev, busy := c.inflight[blockID]; busy {
		prev.Interrupt()
	}

	runCtx, cancel := context.WithCancel(ctx)
	exec := &Execution{
		ID:      uuid.NewString(),
		BlockID: blockID,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.inflight[blockID] = exec

	// A new run starts from an empty output panel.
	buffer := &OutputBuffer{}
	cb.Stdout = ""
	source := cb.Source
	c.mu.Unlock()

	input := codeexecutor.CodeExecutionInput{
		BlockID:     blockID,
		Code:        source,
		ExecutionID: exec.ID,
	}
	submitErr := c.pool.Submit(func() {
		defer close(exec.done)
		exec.err = c.runBlock(runCtx, exec, input, buffer)
	})
	if submitErr != nil {
		c.clearInflight(exec)
		cancel()
		close(exec.done)
		return nil, submitErr
	}
	return exec, nil
}

// runBlock drives one execution on the worker and applies its result
// to the block.
func (c *Coordinator) runBlock(
	ctx context.Context,
	exec *Execution,
	input codeexecutor.CodeExecutionInput,
	buffer *OutputBuffer,
) error {
	ctx, span := trace.Tracer.Start(ctx, "run_block")
	span.SetAttributes(
		attribute.String("block.id", exec.BlockID),
		attribute.String("execution.id", exec.ID),
	)
	defer span.End()

	result, err := c.executor.ExecuteCode(ctx, input, func(e *event.Event) {
		c.applyEvent(exec, buffer, e)
		c.notify(e)
	})

	c.mu.Lock()
	current := c.inflight[exec.BlockID] == exec
	if current {
		delete(c.inflight, exec.BlockID)
	}
	cb, ok := c.lookupCode(exec.BlockID)
	if ok && current {
		if err != nil {
			cb.HasBeenRun = false
		} else {
			if len(result.Images) > 0 {
				cb.Stdout = richtext.ImageMarker + result.Images[len(result.Images)-1]
			} else {
				cb.Stdout = buffer.Value()
			}
			cb.HasBeenRun = true
		}
	}
	c.mu.Unlock()

	if err != nil {
		log.Debugf("run %s of block %s failed: %v", exec.ID, exec.BlockID, err)
		c.notify(event.NewError(exec.BlockID, err.Error(), event.WithExecutionID(exec.ID)))
	}
	c.notify(event.NewDone(exec.BlockID, event.WithExecutionID(exec.ID)))
	return err
}

// applyEvent folds a streamed event into the block's output. Events
// from an interrupted run that has already been superseded are
// dropped so they cannot clobber the replacement run.
func (c *Coordinator) applyEvent(exec *Execution, buffer *OutputBuffer, e *event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[exec.BlockID] != exec {
		return
	}
	cb, ok := c.lookupCode(exec.BlockID)
	if !ok {
		return
	}
	switch e.Type {
	case event.TypeStdout:
		cb.Stdout = buffer.Feed(e.Payload)
	case event.TypeImage:
		cb.Stdout = richtext.ImageMarker + e.Payload
	}
}

func (c *Coordinator) clearInflight(exec *Execution) {
	c.mu.Lock()
	if c.inflight[exec.BlockID] == exec {
		delete(c.inflight, exec.BlockID)
	}
	c.mu.Unlock()
}

// RunChain executes a block together with its neighborhood along
// execution-flow edges. With Upstream, the block's transitive
// dependencies run first, then the block itself. With Downstream, the
// block and its dependencies run first, then every transitive
// consumer, each preceded by its own not-yet-run dependencies.
// Branches are followed in ascending socket index order and all
// branches are collected. Already-run dependencies are skipped; the
// origin always re-runs. The ids of the blocks that ran are returned
// in order. If a run fails, blocks still queued are left marked as
// not run.
func (c *Coordinator) RunChain(ctx context.Context, blockID string, direction Direction) ([]string, error) {
	c.mu.Lock()
	if _, err := c.codeBlock(blockID); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	order := c.chainOrderLocked(blockID, direction)
	c.mu.Unlock()

	var ran []string
	for i, id := range order {
		c.mu.Lock()
		cb, ok := c.lookupCode(id)
		skip := ok && id != blockID && cb.HasBeenRun
		c.mu.Unlock()
		if !ok || skip {
			continue
		}

		exec, err := c.Run(ctx, id)
		if err == nil {
			err = exec.Wait()
		}
		if err != nil {
			c.resetQueued(order[i+1:])
			return ran, err
		}
		ran = append(ran, id)
	}
	return ran, nil
}

// chainOrderLocked computes the execution order for RunChain.
func (c *Coordinator) chainOrderLocked(blockID string, direction Direction) []string {
	order := c.upstreamOrder(blockID, nil)
	if direction == Upstream {
		return order
	}
	seen := make(map[string]struct{}, len(order))
	for _, id := range order {
		seen[id] = struct{}{}
	}
	for _, consumer := range bfs(blockID, c.doc.Downstream)[1:] {
		for _, id := range c.upstreamOrder(consumer, seen) {
			seen[id] = struct{}{}
			order = append(order, id)
		}
	}
	return order
}

// upstreamOrder returns a block's transitive dependencies farthest
// first, followed by the block itself, skipping ids already in seen.
func (c *Coordinator) upstreamOrder(blockID string, seen map[string]struct{}) []string {
	closure := bfs(blockID, c.doc.Upstream)
	var order []string
	for i := len(closure) - 1; i >= 0; i-- {
		id := closure[i]
		if seen != nil {
			if _, dup := seen[id]; dup {
				continue
			}
		}
		order = append(order, id)
	}
	return order
}

// resetQueued marks blocks that were waiting to run as not run, the
// way an interrupted queue is reset.
func (c *Coordinator) resetQueued(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if cb, ok := c.lookupCode(id); ok {
			cb.HasBeenRun = false
		}
	}
}

// Interrupt stops the in-flight execution of a block, if any.
func (c *Coordinator) Interrupt(blockID string) bool {
	c.mu.Lock()
	exec, busy := c.inflight[blockID]
	c.mu.Unlock()
	if !busy {
		return false
	}
	exec.Interrupt()
	return true
}
