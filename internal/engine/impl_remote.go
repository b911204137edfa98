package engine

import (
	"strings"

	"github.com/opereon/opereon-sub000/internal/model"
	"github.com/opereon/opereon-sub000/internal/opcontext"
	"github.com/opereon/opereon-sub000/internal/operation"
	"github.com/opereon/opereon-sub000/internal/procdef"
)

// hostToken extracts the "local" / "ssh://..." destination string a model
// tree's hosts entry carries. Entries are untyped (the model tree has no
// fixed host schema beyond what .operc/opath produces), so a bare string
// entry is used as-is and a mapping entry is probed for the conventional
// "ssh" or "host" key.
func hostToken(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case map[string]any:
		if s, ok := v["ssh"].(string); ok {
			return s, true
		}
		if s, ok := v["host"].(string); ok {
			return s, true
		}
	}
	return "", false
}

// remoteExecImpl runs one shell command against every host in the model
// tree (loaded at payload.Rev) for which payload.Expr evaluates truthy.
// It stages a single synthetic procedure with one step whose Hosts is the
// matched host list and hands off to the normal ProcExec/StepExec pipeline,
// so ad hoc remote commands and a procedure's own "command" tasks share
// exactly one fan-out/dispatch path rather than a parallel bespoke one.
func remoteExecImpl(deps Deps, payload *opcontext.RemoteExecPayload) operation.Impl {
	return &delegateImpl{build: func(eng operation.Engine, parent *operation.Operation) (*operation.Operation, error) {
		tree, err := deps.loader().Load(payload.Rev, model.Manifest{})
		if err != nil {
			return nil, err
		}

		var matched []string
		for _, raw := range tree.Hosts {
			if payload.Expr != "" && deps.Evaluator != nil {
				v, err := deps.Evaluator.Eval(payload.Expr, raw)
				if err != nil {
					return nil, err
				}
				if !isTruthy(v) {
					continue
				}
			}
			if token, ok := hostToken(raw); ok {
				matched = append(matched, token)
			}
		}

		var tasks []procdef.Task
		if len(matched) > 0 {
			tasks = []procdef.Task{{Kind: opcontext.TaskCommand, Cmd: "bash", Args: []string{"-lc", payload.Command}}}
		}
		def := procdef.Definition{
			Proc:  procdef.KindExec,
			ID:    "remote_exec",
			Label: "remote_exec:" + payload.Expr,
			Run: []procdef.Step{{
				Label: "remote",
				Hosts: strings.Join(matched, ","),
				Tasks: tasks,
			}},
		}

		layout, err := procdef.Stage(deps.StagingRoot, "remote_exec", def, deps.now())
		if err != nil {
			return nil, err
		}
		procCtx := opcontext.Context{Tag: opcontext.ProcExec, ProcExec: &opcontext.ProcExecPayload{ExecPath: layout.Root}}
		return operation.New("remote_exec", procCtx), nil
	}}
}
