// Package combinator implements the Sequence and Parallel composition
// operators from spec.md §4.3: both are ordinary operation.Impl values whose
// children are themselves Operations, enqueued through the engine rather
// than run inline, so cancellation and progress flow through the same
// machinery as any leaf operation.
package combinator

import (
	"context"

	"github.com/opereon/opereon-sub000/internal/operation"
	"github.com/opereon/opereon-sub000/internal/outcome"
	"github.com/opereon/opereon-sub000/internal/progress"
)

// SequenceImpl drives its children one at a time, in order, stopping at the
// first error. Its own Outcome is Outcome::Many of every child's Outcome,
// in order, or the error.
type SequenceImpl struct {
	children []*operation.Operation

	idx      int
	done     bool
	err      error
	outcomes []outcome.Outcome
}

// NewSequence builds a Sequence operation.Impl over children, run strictly
// in order. Children are not enqueued until Init runs.
func NewSequence(children []*operation.Operation) *SequenceImpl {
	return &SequenceImpl{children: children}
}

func (s *SequenceImpl) Init(ctx context.Context, eng operation.Engine, op *operation.Operation) error {
	if len(s.children) == 0 {
		s.done = true
		return nil
	}
	op.SetProgressBounds(0, float64(len(s.children)), progress.Scalar)
	return nil
}

// NextProgress drives the current child to completion (blocking on its
// Done channel, itself backed by the engine's own scheduling), accumulates
// its Outcome, and advances the sequence's own Progress by one step.
func (s *SequenceImpl) NextProgress(ctx context.Context, eng operation.Engine, op *operation.Operation) (progress.Update, error) {
	if s.done || s.idx >= len(s.children) {
		s.done = true
		return progress.Update{Value: fTerminal()}, nil
	}

	child := s.children[s.idx]
	done := eng.Enqueue(child)

	select {
	case <-op.CancelChan():
		child.Cancel()
		<-done
		s.done = true
		return progress.Update{Value: fTerminal()}, nil
	case <-done:
	}

	out, err := s.takeChildResult(child)
	s.outcomes = append(s.outcomes, out)
	s.idx++
	if err != nil {
		s.err = err
		s.done = true
		return progress.Update{Value: fTerminal()}, nil
	}

	if s.idx >= len(s.children) {
		s.done = true
		return progress.Update{Value: fTerminal()}, nil
	}
	return progress.Update{Value: float64(s.idx)}, nil
}

func (s *SequenceImpl) Done(ctx context.Context, eng operation.Engine, op *operation.Operation) (outcome.Outcome, error) {
	if s.err != nil {
		return outcome.Outcome{}, s.err
	}
	if op.Cancelled() {
		return outcome.Outcome{}, nil
	}
	if len(s.children) == 0 {
		return outcome.NewMany([]outcome.Outcome{}), nil
	}
	return outcome.NewMany(s.outcomes), nil
}

// takeChildResult retrieves a finished child's outcome and error.
func (s *SequenceImpl) takeChildResult(child *operation.Operation) (outcome.Outcome, error) {
	out, err, ok := child.TakeOutcome()
	if !ok {
		return outcome.Outcome{}, nil
	}
	return out, err
}
