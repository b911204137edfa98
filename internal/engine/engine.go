// Package engine implements the L5 scheduler from spec.md §4.2: a
// dual-queue drain/swap driver that spawns each enqueued operation's
// OperationImpl onto a goroutine, folds progress updates through a
// single-subscriber callback, and retires completed operations.
//
// The queue1/queue2 swap and the wake-on-mutation discipline are adapted
// from the ingress/wakeup pattern in joeycumines-go-utilpkg's eventloop
// package (ChunkedIngress drain + channel-based doWakeup), generalized from
// a JS-style reactor tick to the engine's operation lifecycle: instead of
// polling a Future, Run blocks on a channel that every state mutation
// (Enqueue, Stop, finishOperation, progress callback registration) signals.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/joeycumines/logiface"
	"github.com/opereon/opereon-sub000/internal/errs"
	"github.com/opereon/opereon-sub000/internal/logging"
	"github.com/opereon/opereon-sub000/internal/operation"
	"github.com/opereon/opereon-sub000/internal/outcome"
)

// queuedOp pairs an Operation with the Impl driving it, as staged for the
// next scheduler tick.
type queuedOp struct {
	op   *operation.Operation
	impl operation.Impl
}

// ProgressCallback is invoked whenever a progress update is folded into an
// operation. Per spec.md §4.2, it must not block indefinitely and must not
// re-enter the engine (Enqueue/Stop/etc. from within the callback deadlocks).
type ProgressCallback func(e *Engine, op *operation.Operation)

// Engine is the scheduler and registry owning the top-level (and, per
// spec.md §9's chosen behavior, nested-parented) operation set.
type Engine struct {
	log  *logiface.Logger[logiface.Event]
	deps Deps

	queueMu sync.Mutex
	queue1  []queuedOp
	queue2  []queuedOp
	ops     map[uuid.UUID]*operation.Operation

	stopped atomic.Bool

	wake chan struct{}

	cbMu sync.Mutex
	cb   ProgressCallback

	wg sync.WaitGroup
}

// New constructs an idle Engine. log may be nil, in which case all
// components log to a discard sink. deps supplies the model loader, SSH
// pool, and rsync configuration the Context->Impl factory needs to build
// operations beyond the pure combinators (Sequence/Parallel).
func New(log *logiface.Logger[logiface.Event], deps Deps) *Engine {
	if log == nil {
		log = logging.Discard()
	}
	return &Engine{
		log:  logging.For(log, "engine"),
		deps: deps,
		ops:  make(map[uuid.UUID]*operation.Operation),
		wake: make(chan struct{}, 1),
	}
}

func (e *Engine) doWake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// RegisterProgressCallback installs the single-subscriber progress sink.
// Passing nil clears it.
func (e *Engine) RegisterProgressCallback(cb ProgressCallback) {
	e.cbMu.Lock()
	e.cb = cb
	e.cbMu.Unlock()
}

// NotifyProgress implements operation.Engine.
func (e *Engine) NotifyProgress(op *operation.Operation) {
	e.cbMu.Lock()
	cb := e.cb
	e.cbMu.Unlock()
	if cb != nil {
		cb(e, op)
	}
}

// Enqueue implements operation.Engine: stages op (and its Impl, looked up
// via the Context->Impl factory) for the next scheduler tick.
func (e *Engine) Enqueue(op *operation.Operation) <-chan struct{} {
	impl := e.build(op.Context())
	e.enqueueImpl(op, impl)
	return op.Done()
}

// EnqueueChild enqueues a pre-constructed child Operation with an Impl the
// caller already holds, bypassing the Context factory, and records parent
// as its parent. A parented operation is not removed from the registry when
// it finishes (see finishOperation). The combinators in internal/combinator
// do not call this; they enqueue children through Enqueue.
func (e *Engine) EnqueueChild(parent *operation.Operation, child *operation.Operation, impl operation.Impl) <-chan struct{} {
	child.SetParent(parent.ID())
	e.enqueueImpl(child, impl)
	return child.Done()
}

func (e *Engine) enqueueImpl(op *operation.Operation, impl operation.Impl) {
	e.queueMu.Lock()
	e.queue1 = append(e.queue1, queuedOp{op: op, impl: impl})
	e.queueMu.Unlock()
	e.log.Debug().Str("op_id", op.ID().String()).Str("label", op.Label()).Log("enqueued operation")
	e.doWake()
}

// EnqueueWithResult implements operation.Engine: enqueues op and awaits its
// outcome. Cancelling ctx stops waiting but does not cancel op itself — the
// only ways to stop work are Operation.Cancel and Engine.Stop (spec.md §5).
func (e *Engine) EnqueueWithResult(ctx context.Context, op *operation.Operation) (outcome.Outcome, error) {
	done := e.Enqueue(op)
	select {
	case <-done:
		out, err, ok := op.TakeOutcome()
		if !ok {
			return outcome.Outcome{}, errs.New(errs.KindCustom, "E_NO_OUTCOME", "operation finished without an outcome")
		}
		return out, err
	case <-ctx.Done():
		return outcome.Outcome{}, ctx.Err()
	}
}

// finishOperation implements spec.md §4.2's finish_operation: sets the
// outcome exactly once, signals done, and conditionally retires the
// operation from the top-level registry.
func (e *Engine) finishOperation(op *operation.Operation, out outcome.Outcome, err error) {
	op.SetOutcome(out, err)
	op.Finish()

	e.queueMu.Lock()
	if _, hasParent := op.Parent(); !hasParent {
		delete(e.ops, op.ID())
	}
	e.queueMu.Unlock()

	if err != nil {
		e.log.Warning().Str("op_id", op.ID().String()).Err(err).Log("operation finished with error")
	} else {
		e.log.Debug().Str("op_id", op.ID().String()).Log("operation finished")
	}

	e.doWake()
}

// spawn drives one queued operation on its own goroutine, matching
// spec.md's "spawns each operation's driver onto a multi-threaded
// asynchronous runtime" — in Go, a goroutine is that runtime slot.
func (e *Engine) spawn(ctx context.Context, qo queuedOp) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		out, err := operation.RunDriver(ctx, e, qo.op, qo.impl)
		e.finishOperation(qo.op, out, err)
	}()
}

// Stop marks the engine stopped: in-flight drivers run to completion, and
// Run resolves once operations drains (per the idle predicate in spec.md
// §4.2). While any tracked operation is still live, Run keeps spawning what
// is queued (such as children an in-flight driver enqueues); once none is
// live, Run returns and anything still queued is never spawned.
func (e *Engine) Stop() {
	e.stopped.Store(true)
	e.doWake()
}

// Stopped reports whether Stop has been called.
func (e *Engine) Stopped() bool { return e.stopped.Load() }

// idle reports whether Run may resolve: stopped, and no top-level or
// nested-parented operation remains live.
func (e *Engine) idle() bool {
	if !e.stopped.Load() {
		return false
	}
	e.queueMu.Lock()
	n := len(e.ops)
	e.queueMu.Unlock()
	return n == 0
}

// tick implements spec.md §4.2 steps 3-4: drain queue1 (spawning each
// operation), insert into ops, then swap queue1<->queue2 so operations
// re-queued while draining (blocked children, say) retry next tick.
func (e *Engine) tick(ctx context.Context) {
	e.queueMu.Lock()
	batch := e.queue1
	e.queue1 = e.queue2
	e.queue2 = batch[:0]
	e.queueMu.Unlock()

	for _, qo := range batch {
		e.queueMu.Lock()
		e.ops[qo.op.ID()] = qo.op
		e.queueMu.Unlock()
		e.spawn(ctx, qo)
	}
}

// Run blocks until the engine stops and every tracked operation has
// retired, or ctx is cancelled. It is the scheduler's main task: on each
// iteration it drains whatever was enqueued, then parks until woken by the
// next mutation (Enqueue/Stop/finishOperation).
func (e *Engine) Run(ctx context.Context) error {
	for {
		if e.idle() {
			return nil
		}

		e.tick(ctx)

		if e.idle() {
			return nil
		}

		select {
		case <-ctx.Done():
			e.wg.Wait()
			return ctx.Err()
		case <-e.wake:
		}
	}
}

// OperationCount returns the number of currently tracked operations
// (top-level and nested-parented), for tests and diagnostics.
func (e *Engine) OperationCount() int {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return len(e.ops)
}
