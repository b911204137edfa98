package engine

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/opereon/opereon-sub000/internal/model"
	"github.com/opereon/opereon-sub000/internal/opcontext"
	"github.com/opereon/opereon-sub000/internal/operation"
	"github.com/opereon/opereon-sub000/internal/outcome"
	"github.com/opereon/opereon-sub000/internal/procdef"
)

// decodeProcEntry re-parses one model-tree `procs` entry (an arbitrary
// YAML-shaped `any`, since the model tree is untyped) as a procdef.Definition.
func decodeProcEntry(raw any) (procdef.Definition, error) {
	b, err := yaml.Marshal(raw)
	if err != nil {
		return procdef.Definition{}, err
	}
	var def procdef.Definition
	if err := yaml.Unmarshal(b, &def); err != nil {
		return procdef.Definition{}, err
	}
	return def, nil
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		return true
	}
}

// matchingProcs selects every tree.Procs entry whose Proc kind matches and
// whose filterExpr (if non-empty) evaluates truthy against the raw entry.
func matchingProcs(tree *model.Tree, kind procdef.Kind, filterExpr string, eval model.Evaluator) ([]procdef.Definition, error) {
	var out []procdef.Definition
	for _, raw := range tree.Procs {
		def, err := decodeProcEntry(raw)
		if err != nil {
			continue
		}
		if def.Proc != kind {
			continue
		}
		if filterExpr != "" && eval != nil {
			v, err := eval.Eval(filterExpr, raw)
			if err != nil {
				return nil, err
			}
			if !isTruthy(v) {
				continue
			}
		}
		out = append(out, def)
	}
	return out, nil
}

func procLabel(def procdef.Definition, idx int) string {
	if def.Label != "" {
		return def.Label
	}
	if def.ID != "" {
		return def.ID
	}
	return fmt.Sprintf("proc[%d]", idx)
}

// stageProcs stages every def under deps.StagingRoot and builds one
// ProcExec operation per staged directory.
func stageProcs(deps Deps, defs []procdef.Definition) ([]*operation.Operation, error) {
	now := deps.now()
	ops := make([]*operation.Operation, len(defs))
	for i, def := range defs {
		layout, err := procdef.Stage(deps.StagingRoot, procLabel(def, i), def, now)
		if err != nil {
			return nil, err
		}
		ctx := opcontext.Context{Tag: opcontext.ProcExec, ProcExec: &opcontext.ProcExecPayload{ExecPath: layout.Root}}
		ops[i] = operation.New("proc:"+procLabel(def, i), ctx)
	}
	return ops, nil
}

// modelUpdateImpl runs every `update` procedure of the model loaded at
// Next, unconditionally (per DESIGN.md's Open Question decision). It does
// not load Prev, does not call deps.Differ, and does not match any
// procedure's `watch`/`watch_file` entries against a diff: a procedure runs
// whether or not the change between Prev and Next touches what it watches.
func modelUpdateImpl(deps Deps, payload *opcontext.ModelUpdatePayload) operation.Impl {
	if payload.DryRun {
		return &onceImpl{run: func(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
			tree, err := deps.loader().Load(payload.Next, model.Manifest{})
			if err != nil {
				return outcome.Outcome{}, err
			}
			defs, err := matchingProcs(tree, procdef.KindUpdate, "", deps.Evaluator)
			if err != nil {
				return outcome.Outcome{}, err
			}
			labels := make([]any, len(defs))
			for i, d := range defs {
				labels[i] = procLabel(d, i)
			}
			return outcome.NewNodeSet(labels), nil
		}}
	}

	return &delegateImpl{build: func(eng operation.Engine, parent *operation.Operation) (*operation.Operation, error) {
		tree, err := deps.loader().Load(payload.Next, model.Manifest{})
		if err != nil {
			return nil, err
		}
		defs, err := matchingProcs(tree, procdef.KindUpdate, "", deps.Evaluator)
		if err != nil {
			return nil, err
		}
		children, err := stageProcs(deps, defs)
		if err != nil {
			return nil, err
		}
		parCtx := opcontext.Context{Tag: opcontext.ParallelKind, Parallel: &opcontext.ParallelPayload{Ops: children, Policy: opcontext.All}}
		return operation.New("model_update", parCtx), nil
	}}
}

func modelCheckImpl(deps Deps, payload *opcontext.ModelCheckPayload) operation.Impl {
	if payload.DryRun {
		return &onceImpl{run: func(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
			tree, err := deps.loader().Load(payload.Rev, model.Manifest{})
			if err != nil {
				return outcome.Outcome{}, err
			}
			defs, err := matchingProcs(tree, procdef.KindCheck, payload.Filter, deps.Evaluator)
			if err != nil {
				return outcome.Outcome{}, err
			}
			labels := make([]any, len(defs))
			for i, d := range defs {
				labels[i] = procLabel(d, i)
			}
			return outcome.NewNodeSet(labels), nil
		}}
	}

	return &delegateImpl{build: func(eng operation.Engine, parent *operation.Operation) (*operation.Operation, error) {
		tree, err := deps.loader().Load(payload.Rev, model.Manifest{})
		if err != nil {
			return nil, err
		}
		defs, err := matchingProcs(tree, procdef.KindCheck, payload.Filter, deps.Evaluator)
		if err != nil {
			return nil, err
		}
		children, err := stageProcs(deps, defs)
		if err != nil {
			return nil, err
		}
		parCtx := opcontext.Context{Tag: opcontext.ParallelKind, Parallel: &opcontext.ParallelPayload{Ops: children, Policy: opcontext.All}}
		return operation.New("model_check", parCtx), nil
	}}
}

// modelProbeImpl runs every matching `probe` procedure against a single
// SSH destination. Per DESIGN.md's Open Question decision, a probe's
// steps run with their `hosts` expression overridden by payload.SSHDest
// rather than evaluated dynamically (a probe inherently targets one host).
func modelProbeImpl(deps Deps, payload *opcontext.ModelProbePayload) operation.Impl {
	return &delegateImpl{build: func(eng operation.Engine, parent *operation.Operation) (*operation.Operation, error) {
		tree, err := deps.loader().Load(payload.Rev, model.Manifest{})
		if err != nil {
			return nil, err
		}
		defs, err := matchingProcs(tree, procdef.KindProbe, payload.Filter, deps.Evaluator)
		if err != nil {
			return nil, err
		}
		for i := range defs {
			for j := range defs[i].Run {
				defs[i].Run[j].Hosts = payload.SSHDest
			}
		}
		children, err := stageProcs(deps, defs)
		if err != nil {
			return nil, err
		}
		parCtx := opcontext.Context{Tag: opcontext.ParallelKind, Parallel: &opcontext.ParallelPayload{Ops: children, Policy: opcontext.All}}
		return operation.New("model_probe:"+payload.SSHDest, parCtx), nil
	}}
}
