package combinator

import (
	"context"

	"github.com/opereon/opereon-sub000/internal/opcontext"
	"github.com/opereon/opereon-sub000/internal/operation"
	"github.com/opereon/opereon-sub000/internal/outcome"
	"github.com/opereon/opereon-sub000/internal/progress"
)

type childResult struct {
	idx int
	out outcome.Outcome
	err error
}

// ParallelImpl drives its children concurrently. Under Policy All it waits
// for every child and reports the first error encountered, having let every
// sibling run to completion regardless (spec.md §7's "first error wins,
// siblings drained"). Under Policy First it resolves as soon as any one
// child completes and cancels the rest.
type ParallelImpl struct {
	children []*operation.Operation
	policy   opcontext.ParallelPolicy

	results chan childResult
	outs    []outcome.Outcome

	numDone  int
	firstErr error
	winner   childResult
	done     bool
}

// NewParallel builds a Parallel operation.Impl over children, run
// concurrently under policy. Children are not enqueued until Init runs.
func NewParallel(children []*operation.Operation, policy opcontext.ParallelPolicy) *ParallelImpl {
	return &ParallelImpl{children: children, policy: policy}
}

func (p *ParallelImpl) Init(ctx context.Context, eng operation.Engine, op *operation.Operation) error {
	if len(p.children) == 0 {
		p.done = true
		return nil
	}

	p.outs = make([]outcome.Outcome, len(p.children))
	// Buffered to the full child count: every forwarder can deliver its
	// result without blocking, even after NextProgress/Done stop reading
	// (the Policy First early-exit path), so no forwarder goroutine leaks.
	p.results = make(chan childResult, len(p.children))

	for i, c := range p.children {
		done := eng.Enqueue(c)
		go forwardChildResult(op, i, c, done, p.results)
	}
	return nil
}

func forwardChildResult(parent *operation.Operation, idx int, child *operation.Operation, done <-chan struct{}, out chan<- childResult) {
	select {
	case <-parent.CancelChan():
		child.Cancel()
		<-done
	case <-done:
	}
	res, err, _ := child.TakeOutcome()
	out <- childResult{idx: idx, out: res, err: err}
}

func (p *ParallelImpl) NextProgress(ctx context.Context, eng operation.Engine, op *operation.Operation) (progress.Update, error) {
	if p.done {
		return progress.Update{Value: fTerminal()}, nil
	}

	res := <-p.results

	switch p.policy {
	case opcontext.First:
		p.winner = res
		p.done = true
		for _, c := range p.children {
			c.Cancel()
		}
		return progress.Update{Value: fTerminal()}, nil

	default: // opcontext.All
		p.numDone++
		p.outs[res.idx] = res.out
		if res.err != nil && p.firstErr == nil {
			p.firstErr = res.err
		}
		if p.numDone >= len(p.children) {
			p.done = true
			return progress.Update{Value: fTerminal()}, nil
		}
		return progress.Update{Value: float64(p.numDone) / float64(len(p.children))}, nil
	}
}

func (p *ParallelImpl) Done(ctx context.Context, eng operation.Engine, op *operation.Operation) (outcome.Outcome, error) {
	if len(p.children) == 0 {
		return outcome.NewEmpty(), nil
	}
	if p.policy == opcontext.First {
		if p.winner.err != nil {
			return outcome.Outcome{}, p.winner.err
		}
		return outcome.NewMany([]outcome.Outcome{p.winner.out}), nil
	}
	if p.firstErr != nil {
		return outcome.Outcome{}, p.firstErr
	}
	return outcome.NewMany(p.outs), nil
}
