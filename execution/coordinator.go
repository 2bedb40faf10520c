//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

// Package execution maintains the run-state invariant across the
// block graph: mutating a code block's source invalidates every
// downstream consumer before the mutation commits, and running a
// block delegates to the external worker while streaming its output
// into the block. Graph mutations are serialized through the
// coordinator; the underlying document is a single-writer structure.
package execution

import (
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/opencodeblocks/codegraph-go/block"
	"github.com/opencodeblocks/codegraph-go/codeexecutor"
	"github.com/opencodeblocks/codegraph-go/document"
	"github.com/opencodeblocks/codegraph-go/event"
	"github.com/opencodeblocks/codegraph-go/richtext"
)

// Errors.
var (
	// ErrNotExecutable is returned when a run is requested for a
	// block variant without source code.
	ErrNotExecutable = errors.New("block is not executable")
)

// Direction selects which way RunChain follows execution-flow edges.
type Direction int

// Chain directions.
const (
	// Upstream runs the block's dependencies first, then the block.
	Upstream Direction = iota
	// Downstream runs the block and every consumer, each preceded by
	// its own not-yet-run dependencies.
	Downstream
)

// EventHandler receives every event the coordinator emits or relays.
type EventHandler func(*event.Event)

// Coordinator owns run-state bookkeeping for one graph document.
type Coordinator struct {
	doc      *document.Document
	executor codeexecutor.CodeExecutor
	pool     *ants.Pool
	handler  EventHandler

	mu sync.Mutex
	// inflight tracks at most one active execution per block.
	inflight map[string]*Execution
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	poolSize int
	handler  EventHandler
}

// WithPoolSize sets the size of the worker-dispatch pool.
func WithPoolSize(size int) Option {
	return func(o *options) {
		o.poolSize = size
	}
}

// WithEventHandler registers a handler for execution events. The
// handler is invoked from worker goroutines and must not block.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.handler = handler
	}
}

// NewCoordinator creates a coordinator for the given document and
// worker.
func NewCoordinator(doc *document.Document, executor codeexecutor.CodeExecutor, opts ...Option) (*Coordinator, error) {
	if doc == nil {
		return nil, errors.New("document is nil")
	}
	if executor == nil {
		return nil, errors.New("executor is nil")
	}
	o := options{poolSize: 4}
	for _, opt := range opts {
		opt(&o)
	}
	pool, err := ants.NewPool(o.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Coordinator{
		doc:      doc,
		executor: executor,
		pool:     pool,
		handler:  o.handler,
		inflight: make(map[string]*Execution),
	}, nil
}

// Close interrupts in-flight executions and releases the pool.
func (c *Coordinator) Close() {
	c.mu.Lock()
	for _, exec := range c.inflight {
		exec.Interrupt()
	}
	c.mu.Unlock()
	c.pool.Release()
}

// Document returns the coordinated document.
func (c *Coordinator) Document() *document.Document {
	return c.doc
}

// SetSource commits a new source to a code block. The downstream
// invalidation runs first, over the graph shape at the time of
// change, so staleness reflects the pre-mutation edges. The ids of
// all invalidated blocks are returned; an unchanged source is a
// no-op.
func (c *Coordinator) SetSource(blockID, source string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, err := c.codeBlock(blockID)
	if err != nil {
		return nil, err
	}
	if cb.Source == source {
		return nil, nil
	}
	affected := c.invalidateDownstreamLocked(blockID)
	cb.Source = source
	return affected, nil
}

// InvalidateDownstream marks the block and every consumer reachable
// through execution-flow edges as not run, visiting each block at
// most once, and returns the visited ids in traversal order.
func (c *Coordinator) InvalidateDownstream(blockID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidateDownstreamLocked(blockID)
}

func (c *Coordinator) invalidateDownstreamLocked(blockID string) []string {
	affected := bfs(blockID, c.doc.Downstream)
	for _, id := range affected {
		if cb, ok := c.lookupCode(id); ok {
			cb.HasBeenRun = false
		}
	}
	return affected
}

// bfs traverses the adjacency view breadth first starting at (and
// including) start, visiting each block at most once.
func bfs(start string, next func(string) []string) []string {
	visited := map[string]struct{}{start: {}}
	order := []string{start}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, neighbor := range next(current) {
			if _, seen := visited[neighbor]; seen {
				continue
			}
			visited[neighbor] = struct{}{}
			order = append(order, neighbor)
			queue = append(queue, neighbor)
		}
	}
	return order
}

// RenderedOutput returns the HTML fragment to display for a block's
// current output, classified as text, image or rich content.
func (c *Coordinator) RenderedOutput(blockID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, err := c.codeBlock(blockID)
	if err != nil {
		return "", err
	}
	return richtext.Render(cb.Stdout), nil
}

func (c *Coordinator) codeBlock(blockID string) (*block.CodeBlock, error) {
	b, exists := c.doc.Block(blockID)
	if !exists {
		return nil, fmt.Errorf("%w: %s", document.ErrBlockNotFound, blockID)
	}
	cb, ok := b.(*block.CodeBlock)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotExecutable, blockID, b.Type())
	}
	return cb, nil
}

func (c *Coordinator) lookupCode(blockID string) (*block.CodeBlock, bool) {
	b, exists := c.doc.Block(blockID)
	if !exists {
		return nil, false
	}
	cb, ok := b.(*block.CodeBlock)
	return cb, ok
}

// notify hands the registered handler its own copy of the event.
func (c *Coordinator) notify(e *event.Event) {
	if c.handler != nil {
		c.handler(e.Clone())
	}
}
