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
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodeblocks/codegraph-go/block"
	"github.com/opencodeblocks/codegraph-go/codeexecutor"
	"github.com/opencodeblocks/codegraph-go/document"
	"github.com/opencodeblocks/codegraph-go/event"
	"github.com/opencodeblocks/codegraph-go/richtext"
)

// fakeExecutor runs scripted behaviors keyed by source code instead of
// talking to a real interpreter.
type fakeExecutor struct {
	mu      sync.Mutex
	runs    []string
	emitted []*event.Event
}

func (f *fakeExecutor) ExecuteCode(
	ctx context.Context,
	input codeexecutor.CodeExecutionInput,
	emit codeexecutor.EmitFunc,
) (codeexecutor.CodeExecutionResult, error) {
	f.mu.Lock()
	f.runs = append(f.runs, input.BlockID)
	f.mu.Unlock()

	switch {
	case strings.HasPrefix(input.Code, "fail"):
		return codeexecutor.CodeExecutionResult{}, errors.New("worker exploded")
	case strings.HasPrefix(input.Code, "hang"):
		<-ctx.Done()
		return codeexecutor.CodeExecutionResult{}, ctx.Err()
	case strings.HasPrefix(input.Code, "image"):
		f.emit(emit, event.NewImage(input.BlockID, "aGVsbG8=", event.WithExecutionID(input.ExecutionID)))
		return codeexecutor.CodeExecutionResult{Images: []string{"aGVsbG8="}}, nil
	default:
		for _, chunk := range []string{"abc\ndef", "gh\n"} {
			f.emit(emit, event.NewStdout(input.BlockID, chunk, event.WithExecutionID(input.ExecutionID)))
		}
		return codeexecutor.CodeExecutionResult{Output: "abc\ndefgh\n"}, nil
	}
}

func (f *fakeExecutor) emit(emit codeexecutor.EmitFunc, e *event.Event) {
	if emit == nil {
		return
	}
	f.mu.Lock()
	f.emitted = append(f.emitted, e)
	f.mu.Unlock()
	emit(e)
}

func (f *fakeExecutor) ranBlocks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...)
}

// newCodeBlock builds a code block with one exe input and one exe
// output socket.
func newCodeBlock(t *testing.T, d *document.Document, source string) *block.CodeBlock {
	t.Helper()
	cb := block.NewCodeBlock(d.NewID(), source)
	cb.AddSocket(block.NewSocket(d.NewID(), block.SocketInput, block.FlowExe))
	cb.AddSocket(block.NewSocket(d.NewID(), block.SocketOutput, block.FlowExe))
	require.NoError(t, d.AddBlock(cb))
	return cb
}

func linkExe(t *testing.T, d *document.Document, from, to *block.CodeBlock) {
	t.Helper()
	out := from.SocketsBy(block.SocketOutput, block.FlowExe)
	in := to.SocketsBy(block.SocketInput, block.FlowExe)
	require.NoError(t, d.AddEdge(document.Edge{
		Source:      document.Endpoint{Block: from.ID, Socket: out[0].ID},
		Destination: document.Endpoint{Block: to.ID, Socket: in[0].ID},
	}))
}

// chain builds a -> b -> c and returns a coordinator over it.
func chain(t *testing.T) (*Coordinator, *fakeExecutor, []*block.CodeBlock) {
	t.Helper()
	d := document.New()
	a := newCodeBlock(t, d, "a = 1")
	b := newCodeBlock(t, d, "b = a + 1")
	c := newCodeBlock(t, d, "c = b + 1")
	linkExe(t, d, a, b)
	linkExe(t, d, b, c)

	exec := &fakeExecutor{}
	coord, err := NewCoordinator(d, exec)
	require.NoError(t, err)
	t.Cleanup(coord.Close)
	return coord, exec, []*block.CodeBlock{a, b, c}
}

func TestNewCoordinatorValidation(t *testing.T) {
	_, err := NewCoordinator(nil, &fakeExecutor{})
	assert.Error(t, err)
	_, err = NewCoordinator(document.New(), nil)
	assert.Error(t, err)
}

func TestSetSourceInvalidatesDownstream(t *testing.T) {
	coord, _, blocks := chain(t)
	a, b, c := blocks[0], blocks[1], blocks[2]
	for _, cb := range blocks {
		cb.HasBeenRun = true
	}

	affected, err := coord.SetSource(a.ID, "a = 2")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, affected)
	assert.Equal(t, "a = 2", a.Source)
	for _, cb := range blocks {
		assert.False(t, cb.HasBeenRun)
	}
}

func TestSetSourceUnchangedIsNoOp(t *testing.T) {
	coord, _, blocks := chain(t)
	a := blocks[0]
	a.HasBeenRun = true

	affected, err := coord.SetSource(a.ID, a.Source)
	require.NoError(t, err)
	assert.Empty(t, affected)
	assert.True(t, a.HasBeenRun)
}

func TestSetSourceMidChain(t *testing.T) {
	coord, _, blocks := chain(t)
	a, b, c := blocks[0], blocks[1], blocks[2]
	for _, cb := range blocks {
		cb.HasBeenRun = true
	}

	affected, err := coord.SetSource(b.ID, "b = a * 2")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, c.ID}, affected)
	assert.True(t, a.HasBeenRun)
	assert.False(t, b.HasBeenRun)
	assert.False(t, c.HasBeenRun)
}

func TestSetSourceRejectsMarkdownBlocks(t *testing.T) {
	d := document.New()
	mb := block.NewMarkdownBlock(d.NewID(), "notes")
	require.NoError(t, d.AddBlock(mb))
	coord, err := NewCoordinator(d, &fakeExecutor{})
	require.NoError(t, err)
	defer coord.Close()

	_, err = coord.SetSource(mb.ID, "x = 1")
	assert.ErrorIs(t, err, ErrNotExecutable)

	_, err = coord.SetSource("missing", "x = 1")
	assert.ErrorIs(t, err, document.ErrBlockNotFound)
}

func TestRunStreamsAndMarksBlock(t *testing.T) {
	coord, _, blocks := chain(t)
	a := blocks[0]

	exec, err := coord.Run(context.Background(), a.ID)
	require.NoError(t, err)
	require.NoError(t, exec.Wait())

	assert.Equal(t, "abc\ndefgh\n", a.Stdout)
	assert.True(t, a.HasBeenRun)
	assert.False(t, blocks[1].HasBeenRun)
}

func TestRunImageOutput(t *testing.T) {
	d := document.New()
	cb := newCodeBlock(t, d, "image")
	coord, err := NewCoordinator(d, &fakeExecutor{})
	require.NoError(t, err)
	defer coord.Close()

	exec, err := coord.Run(context.Background(), cb.ID)
	require.NoError(t, err)
	require.NoError(t, exec.Wait())

	assert.Equal(t, richtext.ImageMarker+"aGVsbG8=", cb.Stdout)

	html, err := coord.RenderedOutput(cb.ID)
	require.NoError(t, err)
	assert.Contains(t, html, "data:image/png;base64,aGVsbG8=")
}

func TestRunWorkerFailureResetsBlock(t *testing.T) {
	d := document.New()
	cb := newCodeBlock(t, d, "fail")
	cb.HasBeenRun = true

	var events []*event.Event
	var mu sync.Mutex
	coord, err := NewCoordinator(d, &fakeExecutor{}, WithEventHandler(func(e *event.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))
	require.NoError(t, err)
	defer coord.Close()

	exec, err := coord.Run(context.Background(), cb.ID)
	require.NoError(t, err)
	assert.Error(t, exec.Wait())
	assert.False(t, cb.HasBeenRun)

	mu.Lock()
	defer mu.Unlock()
	var kinds []event.Type
	for _, e := range events {
		kinds = append(kinds, e.Type)
	}
	assert.Contains(t, kinds, event.TypeError)
	assert.Equal(t, event.TypeDone, kinds[len(kinds)-1])
}

func TestHandlerReceivesEventCopies(t *testing.T) {
	d := document.New()
	cb := newCodeBlock(t, d, "print('x')")
	fake := &fakeExecutor{}

	var mu sync.Mutex
	received := make(map[string]*event.Event)
	coord, err := NewCoordinator(d, fake, WithEventHandler(func(e *event.Event) {
		mu.Lock()
		received[e.ID] = e
		mu.Unlock()
	}))
	require.NoError(t, err)
	defer coord.Close()

	exec, err := coord.Run(context.Background(), cb.ID)
	require.NoError(t, err)
	require.NoError(t, exec.Wait())

	// Every relayed event reaches the handler as an equal but distinct
	// copy, so the handler cannot mutate coordinator-owned events.
	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.NotEmpty(t, fake.emitted)
	for _, e := range fake.emitted {
		got, ok := received[e.ID]
		require.True(t, ok, "event %s never reached the handler", e.ID)
		assert.Equal(t, e, got)
		assert.NotSame(t, e, got)
	}
}

func TestInterruptStopsRun(t *testing.T) {
	d := document.New()
	cb := newCodeBlock(t, d, "hang")
	coord, err := NewCoordinator(d, &fakeExecutor{})
	require.NoError(t, err)
	defer coord.Close()

	exec, err := coord.Run(context.Background(), cb.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return coord.Interrupt(cb.ID)
	}, time.Second, 10*time.Millisecond)

	assert.Error(t, exec.Wait())
	assert.False(t, cb.HasBeenRun)

	assert.False(t, coord.Interrupt(cb.ID))
}

func TestRunChainUpstream(t *testing.T) {
	coord, fake, blocks := chain(t)
	a, b, c := blocks[0], blocks[1], blocks[2]

	ran, err := coord.RunChain(context.Background(), c.ID, Upstream)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ran)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, fake.ranBlocks())
	for _, cb := range blocks {
		assert.True(t, cb.HasBeenRun)
	}
}

func TestRunChainUpstreamSkipsAlreadyRun(t *testing.T) {
	coord, fake, blocks := chain(t)
	a, b, c := blocks[0], blocks[1], blocks[2]
	a.HasBeenRun = true
	c.HasBeenRun = true

	ran, err := coord.RunChain(context.Background(), c.ID, Upstream)
	require.NoError(t, err)
	// The origin always re-runs; the satisfied dependency does not.
	assert.Equal(t, []string{b.ID, c.ID}, ran)
	assert.Equal(t, []string{b.ID, c.ID}, fake.ranBlocks())
	assert.True(t, a.HasBeenRun)
}

func TestRunChainDownstream(t *testing.T) {
	coord, fake, blocks := chain(t)
	a, b, c := blocks[0], blocks[1], blocks[2]
	a.HasBeenRun = true

	ran, err := coord.RunChain(context.Background(), a.ID, Downstream)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ran)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, fake.ranBlocks())
	for _, cb := range blocks {
		assert.True(t, cb.HasBeenRun)
	}
}

func TestRunChainDownstreamFailureResetsQueued(t *testing.T) {
	coord, _, blocks := chain(t)
	a, b, c := blocks[0], blocks[1], blocks[2]
	b.Source = "fail"
	c.HasBeenRun = true

	ran, err := coord.RunChain(context.Background(), a.ID, Downstream)
	assert.Error(t, err)
	assert.Equal(t, []string{a.ID}, ran)
	assert.True(t, a.HasBeenRun)
	assert.False(t, b.HasBeenRun)
	// The consumer queued behind the failure is reset, not left stale.
	assert.False(t, c.HasBeenRun)
}

func TestRunChainDownstreamBranches(t *testing.T) {
	d := document.New()
	root := newCodeBlock(t, d, "root")
	left := newCodeBlock(t, d, "left")
	right := newCodeBlock(t, d, "right")
	linkExe(t, d, root, left)
	linkExe(t, d, root, right)

	fake := &fakeExecutor{}
	coord, err := NewCoordinator(d, fake)
	require.NoError(t, err)
	defer coord.Close()

	ran, err := coord.RunChain(context.Background(), root.ID, Downstream)
	require.NoError(t, err)
	assert.Equal(t, []string{root.ID, left.ID, right.ID}, ran)
}

func TestRunChainDownstreamRunsUnmetDependencies(t *testing.T) {
	// a -> c and b -> c: running downstream from a must run b before c.
	d := document.New()
	a := newCodeBlock(t, d, "a")
	b := newCodeBlock(t, d, "b")
	c := newCodeBlock(t, d, "c")
	c.AddSocket(block.NewSocket(d.NewID(), block.SocketInput, block.FlowExe))
	linkExe(t, d, a, c)
	require.NoError(t, d.AddEdge(document.Edge{
		Source: document.Endpoint{
			Block:  b.ID,
			Socket: b.SocketsBy(block.SocketOutput, block.FlowExe)[0].ID,
		},
		Destination: document.Endpoint{
			Block:  c.ID,
			Socket: c.SocketsBy(block.SocketInput, block.FlowExe)[1].ID,
		},
	}))

	fake := &fakeExecutor{}
	coord, err := NewCoordinator(d, fake)
	require.NoError(t, err)
	defer coord.Close()

	ran, err := coord.RunChain(context.Background(), a.ID, Downstream)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ran)
}

func TestRunChainRejectsUnknownBlock(t *testing.T) {
	coord, _, _ := chain(t)
	_, err := coord.RunChain(context.Background(), "missing", Downstream)
	assert.ErrorIs(t, err, document.ErrBlockNotFound)
}

func TestInvalidateDownstreamIgnoresCycles(t *testing.T) {
	coord, _, blocks := chain(t)
	a, c := blocks[0], blocks[2]
	linkExe(t, coord.Document(), c, a)
	for _, cb := range blocks {
		cb.HasBeenRun = true
	}

	affected := coord.InvalidateDownstream(a.ID)
	assert.Len(t, affected, 3)
	for _, cb := range blocks {
		assert.False(t, cb.HasBeenRun)
	}
}
