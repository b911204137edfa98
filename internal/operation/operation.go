// Package operation implements the universal unit of work described in
// spec.md §3/§4.1: identity, progress, outcome, cancellation, and the
// OperationImpl driver contract plus its macro-loop.
//
// Operations never hold a reference back to the engine that scheduled them
// (see spec.md §9, "Cyclic ownership"); instead OperationImpl methods
// receive the engine through the Engine interface parameter, and
// cross-references between operations use uuid.UUID identifiers.
package operation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/opereon/opereon-sub000/internal/errs"
	"github.com/opereon/opereon-sub000/internal/outcome"
	"github.com/opereon/opereon-sub000/internal/outputlog"
	"github.com/opereon/opereon-sub000/internal/progress"
)

// Context is the minimal surface Operation needs from whatever tagged
// payload describes "what to do" (see internal/opcontext.Context). Keeping
// it this small lets opcontext depend on operation (its Sequence/Parallel
// payloads hold concrete child *Operation values) without a cycle back.
type Context interface {
	// Kind returns the stable tag of the underlying Context variant, used
	// for logging/diagnostics (e.g. "proc_exec", "sequence").
	Kind() string
}

// Engine is the subset of engine behavior an OperationImpl may invoke. It is
// declared here, not in the engine package, so that operation has no
// dependency on engine (engine depends on operation, not the reverse).
type Engine interface {
	// Enqueue appends op to the scheduler's queue and returns immediately;
	// the returned channel closes once op reaches a terminal state.
	Enqueue(op *Operation) <-chan struct{}

	// EnqueueWithResult composes Enqueue with awaiting the outcome; dropping
	// ctx before completion does not cancel op (fire-and-forget semantics
	// belong to Operation.Cancel, not to abandoning this call).
	EnqueueWithResult(ctx context.Context, op *Operation) (outcome.Outcome, error)

	// NotifyProgress invokes the registered progress callback, if any, for
	// op. Drivers call this after folding an Update into op's Progress.
	NotifyProgress(op *Operation)
}

// Impl is the driver plugged into every Operation (OperationImpl in the
// source). init may enqueue children or register a cancel hook; next_progress
// is polled until the Operation's Progress.IsDone(); done performs final
// (possibly blocking) cleanup and returns the terminal Outcome.
type Impl interface {
	Init(ctx context.Context, eng Engine, op *Operation) error
	NextProgress(ctx context.Context, eng Engine, op *Operation) (progress.Update, error)
	Done(ctx context.Context, eng Engine, op *Operation) (outcome.Outcome, error)
}

// Operation is the handle shared between the engine, the driver, and any
// combinator parent.
type Operation struct {
	id    uuid.UUID
	label string
	ctx   Context

	mu       sync.Mutex
	progress *progress.Progress

	outcomeMu  sync.Mutex
	outcomeSet bool
	outcomeVal outcome.Outcome
	outcomeErr error

	parent *uuid.UUID

	log *outputlog.OutputLog

	doneCh   chan struct{}
	doneOnce sync.Once

	cancelCh   chan struct{}
	cancelOnce sync.Once
	cancelled  atomic.Bool
}

// New constructs an Operation with a fresh identity. label is a
// human-readable, non-unique name; ctx is the tagged Context describing
// what the operation does (see opcontext.Context).
func New(label string, ctx Context) *Operation {
	return &Operation{
		id:       uuid.New(),
		label:    label,
		ctx:      ctx,
		progress: progress.New(0, 1, progress.Scalar),
		log:      outputlog.New(),
		doneCh:   make(chan struct{}),
		cancelCh: make(chan struct{}),
	}
}

func (o *Operation) ID() uuid.UUID                   { return o.id }
func (o *Operation) Label() string                   { return o.label }
func (o *Operation) Context() Context                { return o.ctx }
func (o *Operation) OutputLog() *outputlog.OutputLog { return o.log }

// Parent returns the enqueuing operation's id, if op was enqueued as a
// child of a combinator.
func (o *Operation) Parent() (uuid.UUID, bool) {
	if o.parent == nil {
		return uuid.UUID{}, false
	}
	return *o.parent, true
}

// SetParent records the enqueuing operation. Called by the engine at
// enqueue time, before the operation is spawned.
func (o *Operation) SetParent(id uuid.UUID) {
	o.parent = &id
}

// Progress returns the live Progress, for read-only inspection under the
// caller's own synchronization (progress mutation always goes through
// ApplyProgress or SetProgressBounds, both of which are synchronized).
func (o *Operation) Progress() *progress.Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// ApplyProgress folds an Update into the Operation's Progress under lock,
// bumping its monotone counter.
func (o *Operation) ApplyProgress(u progress.Update) {
	o.mu.Lock()
	o.progress.Apply(u)
	o.mu.Unlock()
}

// SetProgressBounds rebounds the Operation's Progress to [min, max] under
// unit, snapping its value back to min. Composite Impls call this from
// Init once their child count is known (e.g. Sequence/Parallel sizing
// their Progress to the number of children).
func (o *Operation) SetProgressBounds(min, max float64, unit progress.Unit) {
	o.mu.Lock()
	o.progress.Rebound(min, max, unit)
	o.mu.Unlock()
}

// IsDone reports whether the Progress has reached its terminal value.
func (o *Operation) IsDone() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress.IsDone()
}

// SetOutcome is called by the engine exactly once, before the done
// notifier fires. A second call panics: it indicates a scheduler bug, not a
// recoverable runtime condition.
func (o *Operation) SetOutcome(val outcome.Outcome, err error) {
	o.outcomeMu.Lock()
	defer o.outcomeMu.Unlock()
	if o.outcomeSet {
		panic("operation: SetOutcome called more than once for " + o.id.String())
	}
	o.outcomeVal = val
	o.outcomeErr = err
	o.outcomeSet = true
}

// TakeOutcome returns the operation's terminal result. It must only be
// called after Done() has closed; calling it earlier returns false.
func (o *Operation) TakeOutcome() (outcome.Outcome, error, bool) {
	o.outcomeMu.Lock()
	defer o.outcomeMu.Unlock()
	if !o.outcomeSet {
		return outcome.Outcome{}, nil, false
	}
	return o.outcomeVal, o.outcomeErr, true
}

// Done returns the channel that the engine closes exactly once, strictly
// after SetOutcome, when the operation reaches a terminal state.
func (o *Operation) Done() <-chan struct{} {
	return o.doneCh
}

// Finish is called by the engine's finish_operation step: it closes the
// done channel. Safe to call at most meaningfully once; subsequent calls
// are no-ops via sync.Once, matching "signalled exactly once" in spec.md §3.
func (o *Operation) Finish() {
	o.doneOnce.Do(func() {
		close(o.doneCh)
	})
}

// Cancel marks the operation cancelled and broadcasts to every receiver
// obtained via CancelChan. Idempotent.
func (o *Operation) Cancel() {
	o.cancelled.Store(true)
	o.cancelOnce.Do(func() {
		close(o.cancelCh)
	})
}

// Cancelled reports whether Cancel has been called.
func (o *Operation) Cancelled() bool {
	return o.cancelled.Load()
}

// CancelChan returns a channel that closes when Cancel is called. Unlike
// the source's single-outstanding-receiver broadcast channel, a closed Go
// channel is itself a natural broadcast: any number of goroutines may
// select on the same channel returned here.
func (o *Operation) CancelChan() <-chan struct{} {
	return o.cancelCh
}

// RunDriver executes the init -> next_progress* -> done macro-loop from
// spec.md §4.1. Any error returned by a phase short-circuits and becomes
// the returned outcome error; the caller (the engine) is responsible for
// calling SetOutcome/Finish with the result.
func RunDriver(ctx context.Context, eng Engine, op *Operation, impl Impl) (outcome.Outcome, error) {
	if op.Cancelled() {
		return outcome.Outcome{}, errs.Cancelled
	}

	if err := impl.Init(ctx, eng, op); err != nil {
		return outcome.Outcome{}, err
	}

	for !op.IsDone() {
		u, err := impl.NextProgress(ctx, eng, op)
		if err != nil {
			return outcome.Outcome{}, err
		}
		op.ApplyProgress(u)
		eng.NotifyProgress(op)
	}

	return impl.Done(ctx, eng, op)
}
