package combinator_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opereon/opereon-sub000/internal/combinator"
	"github.com/opereon/opereon-sub000/internal/opcontext"
	"github.com/opereon/opereon-sub000/internal/operation"
	"github.com/opereon/opereon-sub000/internal/outcome"
	"github.com/opereon/opereon-sub000/internal/progress"
)

type stubContext string

func (s stubContext) Kind() string { return string(s) }

// leafImpl reports done on its first NextProgress call and returns a fixed
// result, optionally observing cancellation before completing.
type leafImpl struct {
	result     outcome.Outcome
	err        error
	waitCancel bool
}

func (l *leafImpl) Init(context.Context, operation.Engine, *operation.Operation) error { return nil }

func (l *leafImpl) NextProgress(ctx context.Context, eng operation.Engine, op *operation.Operation) (progress.Update, error) {
	if l.waitCancel {
		<-op.CancelChan()
	}
	return progress.Update{Value: 1}, nil
}

func (l *leafImpl) Done(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
	return l.result, l.err
}

// fakeEngine runs each enqueued operation's registered Impl through
// operation.RunDriver on its own goroutine, mirroring the real engine's
// run loop (internal/engine/engine.go) closely enough to exercise
// Sequence/Parallel's reliance on Enqueue's returned done channel.
type fakeEngine struct {
	mu    sync.Mutex
	impls map[uuid.UUID]operation.Impl
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{impls: make(map[uuid.UUID]operation.Impl)}
}

func (e *fakeEngine) register(op *operation.Operation, impl operation.Impl) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.impls[op.ID()] = impl
}

func (e *fakeEngine) Enqueue(op *operation.Operation) <-chan struct{} {
	e.mu.Lock()
	impl := e.impls[op.ID()]
	e.mu.Unlock()
	go func() {
		out, err := operation.RunDriver(context.Background(), e, op, impl)
		op.SetOutcome(out, err)
		op.Finish()
	}()
	return op.Done()
}

func (e *fakeEngine) EnqueueWithResult(ctx context.Context, op *operation.Operation) (outcome.Outcome, error) {
	<-e.Enqueue(op)
	out, err, _ := op.TakeOutcome()
	return out, err
}

func (e *fakeEngine) NotifyProgress(op *operation.Operation) {}

func newLeaf(eng *fakeEngine, impl operation.Impl) *operation.Operation {
	op := operation.New("leaf", stubContext("leaf"))
	eng.register(op, impl)
	return op
}

func TestSequenceRunsChildrenInOrderAndReturnsAccumulatedOutcomes(t *testing.T) {
	eng := newFakeEngine()
	mk := func(i int) *operation.Operation {
		return newLeaf(eng, &leafImpl{result: outcome.NewNodeSet(i)})
	}
	a, b, c := mk(1), mk(2), mk(3)

	op, impl := combinator.NewSequenceOperation("seq", []*operation.Operation{a, b, c})
	eng.register(op, impl)

	out, err := operation.RunDriver(context.Background(), eng, op, impl)
	require.NoError(t, err)
	require.True(t, out.IsMany())
	require.Len(t, out.Items, 3)
	assert.Equal(t, 1, out.Items[0].Node)
	assert.Equal(t, 2, out.Items[1].Node)
	assert.Equal(t, 3, out.Items[2].Node)

	for _, child := range []*operation.Operation{a, b, c} {
		_, _, ok := child.TakeOutcome()
		assert.True(t, ok, "every child must have run to completion")
	}
}

func TestSequenceStopsAtFirstError(t *testing.T) {
	eng := newFakeEngine()
	wantErr := errors.New("boom")
	a := newLeaf(eng, &leafImpl{result: outcome.NewEmpty()})
	b := newLeaf(eng, &leafImpl{err: wantErr})
	c := newLeaf(eng, &leafImpl{result: outcome.NewNodeSet("never")})

	op, impl := combinator.NewSequenceOperation("seq", []*operation.Operation{a, b, c})
	eng.register(op, impl)

	_, err := operation.RunDriver(context.Background(), eng, op, impl)
	assert.ErrorIs(t, err, wantErr)

	_, _, ok := c.TakeOutcome()
	assert.False(t, ok, "third child must never run after the second fails")
}

func TestSequenceProgressReboundsToChildCountInScalarUnits(t *testing.T) {
	eng := newFakeEngine()
	mk := func(i int) *operation.Operation {
		return newLeaf(eng, &leafImpl{result: outcome.NewNodeSet(i)})
	}
	a, b, c := mk(1), mk(2), mk(3)

	op, impl := combinator.NewSequenceOperation("seq", []*operation.Operation{a, b, c})
	eng.register(op, impl)

	_, err := operation.RunDriver(context.Background(), eng, op, impl)
	require.NoError(t, err)

	p := op.Progress()
	assert.Equal(t, progress.Scalar, p.Unit())
	assert.Equal(t, 0.0, p.Min())
	assert.Equal(t, 3.0, p.Max())
	assert.Equal(t, 3.0, p.Value())
}

func TestSequenceEmptyIsImmediatelyDone(t *testing.T) {
	eng := newFakeEngine()
	op, impl := combinator.NewSequenceOperation("seq", nil)
	eng.register(op, impl)

	out, err := operation.RunDriver(context.Background(), eng, op, impl)
	require.NoError(t, err)
	assert.True(t, out.IsMany())
	assert.Empty(t, out.Items)
}

func TestParallelAllWaitsForEverySiblingAndReportsFirstError(t *testing.T) {
	eng := newFakeEngine()
	wantErr := errors.New("boom")
	a := newLeaf(eng, &leafImpl{result: outcome.NewNodeSet("a")})
	b := newLeaf(eng, &leafImpl{err: wantErr})
	c := newLeaf(eng, &leafImpl{result: outcome.NewNodeSet("c")})

	op, impl := combinator.NewParallelOperation("par", []*operation.Operation{a, b, c}, opcontext.All)
	eng.register(op, impl)

	_, err := operation.RunDriver(context.Background(), eng, op, impl)
	assert.ErrorIs(t, err, wantErr)

	for _, child := range []*operation.Operation{a, b, c} {
		_, _, ok := child.TakeOutcome()
		assert.True(t, ok, "every sibling must be drained under Policy All even after an error")
	}
}

func TestParallelFirstCancelsRemainingSiblings(t *testing.T) {
	eng := newFakeEngine()
	winner := newLeaf(eng, &leafImpl{result: outcome.NewNodeSet("winner")})
	loser := newLeaf(eng, &leafImpl{result: outcome.NewNodeSet("loser"), waitCancel: true})

	op, impl := combinator.NewParallelOperation("par", []*operation.Operation{winner, loser}, opcontext.First)
	eng.register(op, impl)

	out, err := operation.RunDriver(context.Background(), eng, op, impl)
	require.NoError(t, err)
	assert.True(t, loser.Cancelled(), "Policy First must cancel every non-winning sibling")
	require.True(t, out.IsMany())
	require.Len(t, out.Items, 1)
	assert.Equal(t, "winner", out.Items[0].Node)
}

func TestParallelEmptyIsImmediatelyDone(t *testing.T) {
	eng := newFakeEngine()
	op, impl := combinator.NewParallelOperation("par", nil, opcontext.All)
	eng.register(op, impl)

	out, err := operation.RunDriver(context.Background(), eng, op, impl)
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
}

func TestImplForRebuildsSequenceAndParallel(t *testing.T) {
	leaf := operation.New("leaf", stubContext("leaf"))
	seqCtx := opcontext.Context{Tag: opcontext.SequenceKind, Sequence: &opcontext.SequencePayload{Ops: []*operation.Operation{leaf}}}
	assert.IsType(t, &combinator.SequenceImpl{}, combinator.ImplFor(seqCtx))

	parCtx := opcontext.Context{Tag: opcontext.ParallelKind, Parallel: &opcontext.ParallelPayload{Ops: []*operation.Operation{leaf}, Policy: opcontext.First}}
	assert.IsType(t, &combinator.ParallelImpl{}, combinator.ImplFor(parCtx))
}
