package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opereon/opereon-sub000/internal/opcontext"
	"github.com/opereon/opereon-sub000/internal/operation"
	"github.com/opereon/opereon-sub000/internal/outcome"
)

type noopEngine struct{}

func (noopEngine) Enqueue(op *operation.Operation) <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (noopEngine) EnqueueWithResult(ctx context.Context, op *operation.Operation) (outcome.Outcome, error) {
	return outcome.Outcome{}, nil
}
func (noopEngine) NotifyProgress(op *operation.Operation) {}

func TestOnceImplRunsInInitAndReportsTerminalImmediately(t *testing.T) {
	var ran bool
	impl := &onceImpl{run: func(ctx context.Context, eng operation.Engine, op *operation.Operation) (outcome.Outcome, error) {
		ran = true
		return outcome.NewNodeSet("done"), nil
	}}

	op := operation.New("test", opcontext.Context{Tag: opcontext.ModelQuery})
	require.NoError(t, impl.Init(context.Background(), noopEngine{}, op))
	assert.True(t, ran)

	u, err := impl.NextProgress(context.Background(), noopEngine{}, op)
	require.NoError(t, err)
	assert.True(t, u.Value > 0)

	out, err := impl.Done(context.Background(), noopEngine{}, op)
	require.NoError(t, err)
	assert.Equal(t, "done", out.Node)
}

func TestOnceImplPropagatesRunError(t *testing.T) {
	wantErr := errors.New("boom")
	impl := &onceImpl{run: func(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
		return outcome.Outcome{}, wantErr
	}}
	op := operation.New("test", opcontext.Context{Tag: opcontext.ModelQuery})
	require.NoError(t, impl.Init(context.Background(), noopEngine{}, op))

	_, err := impl.Done(context.Background(), noopEngine{}, op)
	assert.ErrorIs(t, err, wantErr)
}

// fakeChildEngine runs the child built by a delegateImpl to completion as
// soon as it is enqueued, mirroring the real engine's spawn behavior
// closely enough to exercise delegateImpl's Init/NextProgress/Done.
type fakeChildEngine struct {
	childImpl operation.Impl
}

func (f *fakeChildEngine) Enqueue(op *operation.Operation) <-chan struct{} {
	out, err := operation.RunDriver(context.Background(), f, op, f.childImpl)
	op.SetOutcome(out, err)
	op.Finish()
	return op.Done()
}
func (f *fakeChildEngine) EnqueueWithResult(ctx context.Context, op *operation.Operation) (outcome.Outcome, error) {
	return outcome.Outcome{}, nil
}
func (f *fakeChildEngine) NotifyProgress(op *operation.Operation) {}

func TestDelegateImplForwardsChildOutcome(t *testing.T) {
	child := operation.New("child", opcontext.Context{Tag: opcontext.ModelQuery})
	eng := &fakeChildEngine{childImpl: &onceImpl{run: func(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
		return outcome.NewNodeSet("child-result"), nil
	}}}

	impl := &delegateImpl{build: func(operation.Engine, *operation.Operation) (*operation.Operation, error) {
		return child, nil
	}}

	op := operation.New("parent", opcontext.Context{Tag: opcontext.ProcExec})
	require.NoError(t, impl.Init(context.Background(), eng, op))

	_, err := impl.NextProgress(context.Background(), eng, op)
	require.NoError(t, err)

	out, err := impl.Done(context.Background(), eng, op)
	require.NoError(t, err)
	assert.Equal(t, "child-result", out.Node)
}

func TestDelegateImplPropagatesBuildError(t *testing.T) {
	wantErr := errors.New("bad staging")
	impl := &delegateImpl{build: func(operation.Engine, *operation.Operation) (*operation.Operation, error) {
		return nil, wantErr
	}}
	op := operation.New("parent", opcontext.Context{Tag: opcontext.ProcExec})
	err := impl.Init(context.Background(), noopEngine{}, op)
	assert.ErrorIs(t, err, wantErr)
}

func TestBuildFallsBackToFailImplForUnknownContext(t *testing.T) {
	e := New(nil, Deps{})
	impl := e.build(opcontext.Context{Tag: opcontext.Kind("nonsense")})

	err := impl.Init(context.Background(), noopEngine{}, operation.New("x", opcontext.Context{}))
	assert.Error(t, err)
}

func TestBuildFallsBackForNonOpcontextContext(t *testing.T) {
	e := New(nil, Deps{})
	impl := e.build(plainStubContext("whatever"))

	err := impl.Init(context.Background(), noopEngine{}, operation.New("x", opcontext.Context{}))
	assert.Error(t, err)
}

type plainStubContext string

func (p plainStubContext) Kind() string { return string(p) }

func TestBuildRoutesSequenceAndParallelThroughCombinator(t *testing.T) {
	e := New(nil, Deps{})
	leaf := operation.New("leaf", opcontext.Context{Tag: opcontext.ModelQuery})

	seq := e.build(opcontext.Context{Tag: opcontext.SequenceKind, Sequence: &opcontext.SequencePayload{Ops: []*operation.Operation{leaf}}})
	assert.NotNil(t, seq)

	par := e.build(opcontext.Context{Tag: opcontext.ParallelKind, Parallel: &opcontext.ParallelPayload{Ops: []*operation.Operation{leaf}, Policy: opcontext.All}})
	assert.NotNil(t, par)
}
