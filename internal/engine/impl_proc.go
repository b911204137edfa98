package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opereon/opereon-sub000/internal/cmdexec"
	"github.com/opereon/opereon-sub000/internal/errs"
	"github.com/opereon/opereon-sub000/internal/opcontext"
	"github.com/opereon/opereon-sub000/internal/operation"
	"github.com/opereon/opereon-sub000/internal/outcome"
	"github.com/opereon/opereon-sub000/internal/outputlog"
	"github.com/opereon/opereon-sub000/internal/procdef"
	"github.com/opereon/opereon-sub000/internal/rsyncadapter"
	"github.com/opereon/opereon-sub000/internal/scriptprep"
	"github.com/opereon/opereon-sub000/internal/sshsession"
)

// resolveDest parses a non-local host string into an sshsession.Dest. Hosts
// are carried as "ssh://[user@]host[:port]" strings end to end (from
// Step.Hosts through TaskExecPayload.Host), so no separate host-registry
// lookup is needed here.
func resolveDest(host string) (sshsession.Dest, error) {
	return sshsession.ParseDest(host, sshsession.Auth{Method: sshsession.AuthDefault})
}

func loadStagedProc(execPath string) (procdef.Definition, error) {
	return procdef.Load(filepath.Join(execPath, "_proc.yaml"))
}

// procExecImpl runs every step of a pre-staged procedure in order
// (spec.md §6's ProcExec), delegating to one Sequence operation of
// StepExec children so ordering and cancellation flow through the normal
// combinator machinery rather than a bespoke loop.
func procExecImpl(_ Deps, payload *opcontext.ProcExecPayload) operation.Impl {
	return &delegateImpl{build: func(eng operation.Engine, parent *operation.Operation) (*operation.Operation, error) {
		def, err := loadStagedProc(payload.ExecPath)
		if err != nil {
			return nil, err
		}
		children := make([]*operation.Operation, len(def.Run))
		for i := range def.Run {
			ctx := opcontext.Context{
				Tag:      opcontext.StepExec,
				StepExec: &opcontext.StepExecPayload{ExecPath: payload.ExecPath, StepIndex: i},
			}
			children[i] = operation.New(fmt.Sprintf("step[%d]", i), ctx)
		}
		seqCtx := opcontext.Context{Tag: opcontext.SequenceKind, Sequence: &opcontext.SequencePayload{Ops: children}}
		return operation.New("proc:"+payload.ExecPath, seqCtx), nil
	}}
}

// stepExecImpl resolves the hosts a step targets and runs every task of
// that step, once per host, in parallel across hosts (tasks within one
// host's run stay ordered via a nested Sequence).
//
// Host resolution: spec.md §6 describes `hosts` as "a dynamic opath
// expression"; since opath itself is injected (Non-goal), a step whose
// Hosts field is empty runs against a single implicit "local" host, and a
// non-empty Hosts field is treated as a literal comma-separated list of
// host tokens rather than evaluated — see DESIGN.md's Open Question
// decision on dynamic host-expression evaluation. Each token is either
// "local" or an "ssh://[user@]host[:port]" destination string, resolved to
// an sshsession.Dest by the task leaf (resolveDest) when it actually needs
// to dispatch a remote command or script.
func stepExecImpl(_ Deps, payload *opcontext.StepExecPayload) operation.Impl {
	return &delegateImpl{build: func(eng operation.Engine, parent *operation.Operation) (*operation.Operation, error) {
		def, err := loadStagedProc(payload.ExecPath)
		if err != nil {
			return nil, err
		}
		if payload.StepIndex < 0 || payload.StepIndex >= len(def.Run) {
			return nil, errs.New(errs.KindDefs, "E_STEP_INDEX", fmt.Sprintf("procdef: step index %d out of range", payload.StepIndex))
		}
		step := def.Run[payload.StepIndex]
		hosts := resolveHosts(step.Hosts)

		var perHost []*operation.Operation
		for _, host := range hosts {
			taskChildren := make([]*operation.Operation, len(step.Tasks))
			for i := range step.Tasks {
				ctx := opcontext.Context{
					Tag: opcontext.TaskExec,
					TaskExec: &opcontext.TaskExecPayload{
						ExecPath:  payload.ExecPath,
						StepIndex: payload.StepIndex,
						TaskIndex: i,
						Host:      host,
					},
				}
				taskChildren[i] = operation.New(fmt.Sprintf("task[%d]", i), ctx)
			}
			seqCtx := opcontext.Context{Tag: opcontext.SequenceKind, Sequence: &opcontext.SequencePayload{Ops: taskChildren}}
			perHost = append(perHost, operation.New("host:"+host, seqCtx))
		}

		parCtx := opcontext.Context{Tag: opcontext.ParallelKind, Parallel: &opcontext.ParallelPayload{Ops: perHost, Policy: opcontext.All}}
		return operation.New(fmt.Sprintf("step[%d]", payload.StepIndex), parCtx), nil
	}}
}

func resolveHosts(hostsExpr string) []string {
	if hostsExpr == "" {
		return []string{"local"}
	}
	return splitTrim(hostsExpr, ",")
}

func splitTrim(s, sep string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || string(s[i]) == sep {
			if part := trimSpace(s[start:i]); part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

// taskExecImpl runs one task leaf against its resolved host, local or
// remote depending on deps.SSHPool and payload.Host.
func taskExecImpl(deps Deps, payload *opcontext.TaskExecPayload) operation.Impl {
	return &onceImpl{run: func(ctx context.Context, eng operation.Engine, op *operation.Operation) (outcome.Outcome, error) {
		def, err := loadStagedProc(payload.ExecPath)
		if err != nil {
			return outcome.Outcome{}, err
		}
		if payload.StepIndex < 0 || payload.StepIndex >= len(def.Run) {
			return outcome.Outcome{}, errs.New(errs.KindDefs, "E_STEP_INDEX", "procdef: step index out of range")
		}
		step := def.Run[payload.StepIndex]
		if payload.TaskIndex < 0 || payload.TaskIndex >= len(step.Tasks) {
			return outcome.Outcome{}, errs.New(errs.KindDefs, "E_TASK_INDEX", "procdef: task index out of range")
		}
		task := step.Tasks[payload.TaskIndex]

		layout := procdef.StagingLayout{Root: payload.ExecPath}
		stepDir, err := layout.StepDir(payload.StepIndex, payload.Host)
		if err != nil {
			return outcome.Outcome{}, err
		}
		log := outputlog.New()
		defer flushOutputLog(layout.OutputLogPath(stepDir), log)

		return runTask(ctx, deps, payload.Host, task, log)
	}}
}

func flushOutputLog(path string, log *outputlog.OutputLog) {
	_ = os.WriteFile(path, []byte(log.Render()), 0o644)
}

func runTask(ctx context.Context, deps Deps, host string, task procdef.Task, log *outputlog.OutputLog) (outcome.Outcome, error) {
	switch task.Kind {
	case opcontext.TaskCommand:
		return runCommandTask(ctx, deps, host, task, log)
	case opcontext.TaskScript:
		return runScriptTask(ctx, deps, host, task, log)
	case opcontext.TaskFileCopy:
		return runFileCopyTask(ctx, deps, task, log)
	case opcontext.TaskFileCompare:
		return runFileCompareTask(ctx, deps, task, log)
	case opcontext.TaskTemplate:
		return runTemplateTask(task)
	case opcontext.TaskSwitch:
		return runSwitchTask(ctx, deps, host, task, log)
	case opcontext.TaskExecKind:
		// A nested "exec" task references another staged procedure;
		// out of scope for the leaf runner (ProcExec already drives the
		// top-level sequence) — surfaced as a no-op outcome.
		return outcome.NewEmpty(), nil
	default:
		return outcome.Outcome{}, errs.New(errs.KindDefs, "E_TASK_KIND", fmt.Sprintf("procdef: unknown task kind %q", task.Kind))
	}
}

func isRemoteHost(host string) bool {
	return host != "" && host != "local"
}

func runCommandTask(ctx context.Context, deps Deps, host string, task procdef.Task, log *outputlog.OutputLog) (outcome.Outcome, error) {
	if isRemoteHost(host) {
		if deps.SSHPool == nil {
			return outcome.Outcome{}, errs.New(errs.KindCustom, "E_REMOTE_NO_POOL", "task command: remote host requires an sshsession.Pool")
		}
		dest, err := resolveDest(host)
		if err != nil {
			return outcome.Outcome{}, err
		}
		sess, err := deps.SSHPool.Get(ctx, dest)
		if err != nil {
			return outcome.Outcome{}, err
		}
		h, err := sess.SpawnCommand(ctx, task.Cmd, task.Args, task.Env, log)
		if err != nil {
			return outcome.Outcome{}, err
		}
		<-h.Done()
		if err := h.Err(); err != nil {
			return outcome.Outcome{}, errs.Wrap(errs.KindIO, "E_TASK_COMMAND", "task command failed", err).WithStderr(log.Render())
		}
		return outcome.NewNodeSet(h.ExitCode()), nil
	}

	argv := append([]string{task.Cmd}, task.Args...)
	h, err := cmdexec.Spawn(ctx, argv, cmdexec.Options{Dir: task.Cwd, Env: envSlice(task.Env), Log: log})
	if err != nil {
		return outcome.Outcome{}, err
	}
	<-h.Done()
	if err := h.Err(); err != nil {
		return outcome.Outcome{}, errs.Wrap(errs.KindIO, "E_TASK_COMMAND", "task command failed", err).WithStderr(log.Render())
	}
	return outcome.NewNodeSet(h.ExitCode()), nil
}

func runScriptTask(ctx context.Context, deps Deps, host string, task procdef.Task, log *outputlog.OutputLog) (outcome.Outcome, error) {
	body, err := scriptprep.Build(task.Script, scriptprep.Options{Cwd: task.Cwd, Env: task.Env, Args: task.Args})
	if err != nil {
		return outcome.Outcome{}, err
	}

	if isRemoteHost(host) {
		if deps.SSHPool == nil {
			return outcome.Outcome{}, errs.New(errs.KindCustom, "E_REMOTE_NO_POOL", "task script: remote host requires an sshsession.Pool")
		}
		dest, err := resolveDest(host)
		if err != nil {
			return outcome.Outcome{}, err
		}
		sess, err := deps.SSHPool.Get(ctx, dest)
		if err != nil {
			return outcome.Outcome{}, err
		}
		h, err := sess.SpawnScript(ctx, body, log)
		if err != nil {
			return outcome.Outcome{}, err
		}
		<-h.Done()
		if err := h.Err(); err != nil {
			return outcome.Outcome{}, errs.Wrap(errs.KindIO, "E_TASK_SCRIPT", "task script failed", err).WithStderr(log.Render())
		}
		return outcome.NewNodeSet(h.ExitCode()), nil
	}

	h, err := cmdexec.Spawn(ctx, []string{"bash", "-s"}, cmdexec.Options{Stdin: strings.NewReader(body), Log: log})
	if err != nil {
		return outcome.Outcome{}, err
	}
	<-h.Done()
	if err := h.Err(); err != nil {
		return outcome.Outcome{}, errs.Wrap(errs.KindIO, "E_TASK_SCRIPT", "task script failed", err).WithStderr(log.Render())
	}
	return outcome.NewNodeSet(h.ExitCode()), nil
}

func runFileCopyTask(ctx context.Context, deps Deps, task procdef.Task, log *outputlog.OutputLog) (outcome.Outcome, error) {
	params := rsyncadapter.Params{
		SrcPaths: []string{task.SrcPath},
		DstPath:  task.DstPath,
		Chown:    task.Chown,
		Chmod:    task.Chmod,
	}
	copier := rsyncadapter.Copy{Bin: deps.RsyncBin}
	updates, wait, err := copier.Spawn(ctx, params, log)
	if err != nil {
		return outcome.Outcome{}, err
	}
	for range updates {
		// progress is folded at the engine level via NextProgress in
		// richer leaves; this leaf reports only the terminal outcome,
		// draining updates so the spawn's goroutine never blocks.
	}
	if err := wait(); err != nil {
		return outcome.Outcome{}, err
	}
	return outcome.NewEmpty(), nil
}

func runFileCompareTask(ctx context.Context, deps Deps, task procdef.Task, log *outputlog.OutputLog) (outcome.Outcome, error) {
	params := rsyncadapter.Params{
		SrcPaths: []string{task.SrcPath},
		DstPath:  task.DstPath,
		Chown:    task.Chown,
		Chmod:    task.Chmod,
	}
	comparer := rsyncadapter.Compare{Bin: deps.RsyncBin}
	diffs, err := comparer.Spawn(ctx, params, log)
	if err != nil {
		return outcome.Outcome{}, err
	}
	return outcome.NewNodeSet(diffs.Entries), nil
}

func runTemplateTask(task procdef.Task) (outcome.Outcome, error) {
	raw, err := os.ReadFile(task.TemplateSrc)
	if err != nil {
		return outcome.Outcome{}, errs.Wrap(errs.KindIO, "E_TEMPLATE_READ", "task template: read "+task.TemplateSrc, err)
	}
	if err := os.WriteFile(task.TemplateDst, raw, 0o644); err != nil {
		return outcome.Outcome{}, errs.Wrap(errs.KindIO, "E_TEMPLATE_WRITE", "task template: write "+task.TemplateDst, err)
	}
	return outcome.NewEmpty(), nil
}

func runSwitchTask(ctx context.Context, deps Deps, host string, task procdef.Task, log *outputlog.OutputLog) (outcome.Outcome, error) {
	for expr, branch := range task.Switch {
		if deps.Evaluator == nil {
			break
		}
		v, err := deps.Evaluator.Eval(expr, nil)
		if err != nil {
			continue
		}
		if isTruthy(v) {
			return runTask(ctx, deps, host, branch, log)
		}
	}
	return outcome.NewEmpty(), nil
}

func envSlice(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}
