package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/opereon/opereon-sub000/internal/errs"
	"github.com/opereon/opereon-sub000/internal/operation"
	"github.com/opereon/opereon-sub000/internal/outcome"
	"github.com/opereon/opereon-sub000/internal/progress"
)

func errUnknownContext(ctx operation.Context) error {
	kind := "<nil>"
	if ctx != nil {
		kind = ctx.Kind()
	}
	return errs.New(errs.KindCustom, "E_UNKNOWN_CONTEXT", fmt.Sprintf("engine: no Impl registered for context kind %q", kind))
}

// failImpl is an Impl that fails immediately in Init, used when build
// cannot recognize a Context.
type failImpl struct{ err error }

func (f failImpl) Init(context.Context, operation.Engine, *operation.Operation) error { return f.err }
func (f failImpl) NextProgress(context.Context, operation.Engine, *operation.Operation) (progress.Update, error) {
	return progress.Update{Value: terminal()}, nil
}
func (f failImpl) Done(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
	return outcome.Outcome{}, f.err
}

// terminal is the non-finite sentinel progress.Apply snaps straight to
// done, mirrored here (see internal/combinator/util.go) so engine's Impls
// don't need to import combinator for one constant.
func terminal() float64 { return math.Inf(1) }

// onceImpl adapts a synchronous compute-then-done Impl pattern: Init runs
// the work and stores its result; NextProgress immediately reports
// terminal; Done returns the stored result. Most Model* operations
// (Commit/Query/Test/Diff/Init) fit this shape since they complete within
// one blocking call rather than exposing incremental progress.
type onceImpl struct {
	run func(ctx context.Context, eng operation.Engine, op *operation.Operation) (outcome.Outcome, error)

	out outcome.Outcome
	err error
}

func (o *onceImpl) Init(ctx context.Context, eng operation.Engine, op *operation.Operation) error {
	o.out, o.err = o.run(ctx, eng, op)
	return nil
}

func (o *onceImpl) NextProgress(context.Context, operation.Engine, *operation.Operation) (progress.Update, error) {
	return progress.Update{Value: terminal()}, nil
}

func (o *onceImpl) Done(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
	return o.out, o.err
}

// delegateImpl adapts the common "this operation's real work is a child
// operation tree" shape (ProcExec -> Sequence of StepExec, StepExec ->
// Parallel of per-host Sequences, ModelUpdate/Check/Probe -> Parallel of
// ProcExec): Init builds and enqueues the child, NextProgress blocks (once)
// until the child finishes or the parent is cancelled, and Done forwards
// the child's outcome.
type delegateImpl struct {
	build func(eng operation.Engine, parent *operation.Operation) (*operation.Operation, error)

	child *operation.Operation
	done  <-chan struct{}
}

func (d *delegateImpl) Init(ctx context.Context, eng operation.Engine, op *operation.Operation) error {
	child, err := d.build(eng, op)
	if err != nil {
		return err
	}
	d.child = child
	d.done = eng.Enqueue(child)
	return nil
}

func (d *delegateImpl) NextProgress(ctx context.Context, eng operation.Engine, op *operation.Operation) (progress.Update, error) {
	select {
	case <-op.CancelChan():
		d.child.Cancel()
		<-d.done
	case <-d.done:
	}
	return progress.Update{Value: terminal()}, nil
}

func (d *delegateImpl) Done(ctx context.Context, eng operation.Engine, op *operation.Operation) (outcome.Outcome, error) {
	out, err, _ := d.child.TakeOutcome()
	return out, err
}
