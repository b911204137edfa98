package engine

import (
	"github.com/opereon/opereon-sub000/internal/combinator"
	"github.com/opereon/opereon-sub000/internal/opcontext"
	"github.com/opereon/opereon-sub000/internal/operation"
)

// build maps an operation's Context to the operation.Impl that drives it,
// the "Glue (typed contexts -> impls)" layer from spec.md §2. ctx arrives
// as the narrow operation.Context interface; every concrete Context this
// engine knows how to build is an opcontext.Context, so the single type
// assertion here is the one place that dependency is recovered.
func (e *Engine) build(ctx operation.Context) operation.Impl {
	oc, ok := ctx.(opcontext.Context)
	if !ok {
		return failImpl{err: errUnknownContext(ctx)}
	}

	switch oc.Tag {
	case opcontext.SequenceKind, opcontext.ParallelKind:
		return combinator.ImplFor(oc)

	case opcontext.ModelCommit:
		return modelCommitImpl(e.deps, oc.ModelCommit)
	case opcontext.ModelQuery:
		return modelQueryImpl(e.deps, oc.ModelQuery)
	case opcontext.ModelTest:
		return modelTestImpl(e.deps, oc.ModelTest)
	case opcontext.ModelDiff:
		return modelDiffImpl(e.deps, oc.ModelDiff)
	case opcontext.ModelInit:
		return modelInitImpl(e.deps, oc.ModelInit)
	case opcontext.ModelUpdate:
		return modelUpdateImpl(e.deps, oc.ModelUpdate)
	case opcontext.ModelCheck:
		return modelCheckImpl(e.deps, oc.ModelCheck)
	case opcontext.ModelProbe:
		return modelProbeImpl(e.deps, oc.ModelProbe)

	case opcontext.ProcExec:
		return procExecImpl(e.deps, oc.ProcExec)
	case opcontext.StepExec:
		return stepExecImpl(e.deps, oc.StepExec)
	case opcontext.TaskExec:
		return taskExecImpl(e.deps, oc.TaskExec)

	case opcontext.FileCopyExec:
		return fileCopyImpl(e.deps, oc.FileCopyExec)
	case opcontext.FileCompareExec:
		return fileCompareImpl(e.deps, oc.FileCompareExec)

	case opcontext.RemoteExec:
		return remoteExecImpl(e.deps, oc.RemoteExec)

	default:
		return failImpl{err: errUnknownContext(ctx)}
	}
}
