package combinator

import (
	"github.com/opereon/opereon-sub000/internal/opcontext"
	"github.com/opereon/opereon-sub000/internal/operation"
)

// NewSequenceOperation builds both the Operation and its Impl for an
// ordered composition of children, ready to hand to Engine.Enqueue (the
// factory recognizes opcontext.SequenceKind and rebuilds an equivalent Impl
// through ImplFor, which is what internal/engine/factory.go calls for a
// Context built by a caller directly, e.g. a procedure's top-level step
// sequence).
func NewSequenceOperation(label string, children []*operation.Operation) (*operation.Operation, operation.Impl) {
	ctx := opcontext.Context{
		Tag:      opcontext.SequenceKind,
		Sequence: &opcontext.SequencePayload{Ops: children},
	}
	return operation.New(label, ctx), NewSequence(children)
}

// NewParallelOperation builds both the Operation and its Impl for a
// concurrent composition of children under policy.
func NewParallelOperation(label string, children []*operation.Operation, policy opcontext.ParallelPolicy) (*operation.Operation, operation.Impl) {
	ctx := opcontext.Context{
		Tag:      opcontext.ParallelKind,
		Parallel: &opcontext.ParallelPayload{Ops: children, Policy: policy},
	}
	return operation.New(label, ctx), NewParallel(children, policy)
}

// ImplFor rebuilds the Impl for a Context already carrying its children —
// used by internal/engine/factory.go when a Sequence/Parallel operation
// arrives through Engine.Enqueue instead of combinator's own constructors.
func ImplFor(ctx opcontext.Context) operation.Impl {
	switch ctx.Tag {
	case opcontext.SequenceKind:
		return NewSequence(ctx.Sequence.Ops)
	case opcontext.ParallelKind:
		return NewParallel(ctx.Parallel.Ops, ctx.Parallel.Policy)
	default:
		return nil
	}
}
