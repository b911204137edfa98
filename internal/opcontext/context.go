// Package opcontext defines the tagged Context union from spec.md §6: the
// closed set of operation kinds the engine knows how to construct, plus the
// task-kind scope variables carried by procedure steps.
//
// Context is a sum type in spirit: Tag discriminates which payload field is
// meaningful, mirroring the taxonomy in internal/errs rather than reaching
// for a generated/interface-per-variant encoding — a single constructor
// function (see internal/engine/factory.go) maps a Context to its
// operation.Impl, exactly as spec.md §9 asks for ("no reflection is
// needed").
//
// opcontext depends on operation (Sequence/Parallel payloads hold concrete
// child *operation.Operation values), never the reverse: operation only
// knows the narrow opcontext.Context.Kind() surface, declared as the
// operation.Context interface.
package opcontext

import "github.com/opereon/opereon-sub000/internal/operation"

// Kind discriminates the Context payload.
type Kind string

const (
	ModelCommit     Kind = "model_commit"
	ModelQuery      Kind = "model_query"
	ModelTest       Kind = "model_test"
	ModelDiff       Kind = "model_diff"
	ModelUpdate     Kind = "model_update"
	ModelCheck      Kind = "model_check"
	ModelProbe      Kind = "model_probe"
	ModelInit       Kind = "model_init"
	ProcExec        Kind = "proc_exec"
	StepExec        Kind = "step_exec"
	TaskExec        Kind = "task_exec"
	FileCopyExec    Kind = "file_copy_exec"
	FileCompareExec Kind = "file_compare_exec"
	RemoteExec      Kind = "remote_exec"
	SequenceKind    Kind = "sequence"
	ParallelKind    Kind = "parallel"
)

// RevPath is a reference to a workdir (Current) or a named revision.
type RevPath struct {
	Current  bool
	Revision string
}

func CurrentRev() RevPath           { return RevPath{Current: true} }
func AtRevision(rev string) RevPath { return RevPath{Revision: rev} }

func (r RevPath) String() string {
	if r.Current {
		return "current"
	}
	return r.Revision
}

// ParallelPolicy selects between Parallel(All) and Parallel(First).
type ParallelPolicy int

const (
	All ParallelPolicy = iota
	First
)

// Context is the tagged payload carried by every Operation. Only the
// field(s) matching Tag are meaningful. It implements operation.Context so
// that operation.New(label, ctx) accepts a Context directly.
type Context struct {
	Tag Kind

	ModelCommit *ModelCommitPayload
	ModelQuery  *ModelQueryPayload
	ModelTest   *ModelTestPayload
	ModelDiff   *ModelDiffPayload
	ModelUpdate *ModelUpdatePayload
	ModelCheck  *ModelCheckPayload
	ModelProbe  *ModelProbePayload
	ModelInit   *ModelInitPayload

	ProcExec        *ProcExecPayload
	StepExec        *StepExecPayload
	TaskExec        *TaskExecPayload
	FileCopyExec    *FileCopyPayload
	FileCompareExec *FileCopyPayload
	RemoteExec      *RemoteExecPayload

	Sequence *SequencePayload
	Parallel *ParallelPayload
}

// Kind implements operation.Context.
func (c Context) Kind() string { return string(c.Tag) }

// New returns a Context carrying only tag and no payload; call sites that
// need a payload build a Context literal directly.
func New(tag Kind) Context { return Context{Tag: tag} }

type ModelCommitPayload struct{ Message string }

type ModelQueryPayload struct {
	RevPath RevPath
	Expr    string
}

type ModelTestPayload struct{ RevPath RevPath }

type ModelDiffPayload struct {
	Prev, Next RevPath
}

type ModelUpdatePayload struct {
	Prev, Next RevPath
	DryRun     bool
}

type ModelCheckPayload struct {
	Rev    RevPath
	Filter string // opath expression; empty means "all"
	DryRun bool
}

type ModelProbePayload struct {
	SSHDest string
	Rev     RevPath
	Filter  string
	Args    map[string]string
}

type ModelInitPayload struct{ Path string }

type ProcExecPayload struct{ ExecPath string }

type StepExecPayload struct {
	ExecPath  string
	StepIndex int
}

type TaskExecPayload struct {
	ExecPath  string
	StepIndex int
	TaskIndex int
	Host      string // resolved host this task runs against; "" means local
}

type FileCopyPayload struct {
	CurrDir string
	Src     []string
	Dst     string
	Chown   string
	Chmod   string
	Host    string
}

type RemoteExecPayload struct {
	Expr    string
	Command string
	Rev     RevPath
}

// SequencePayload holds the ordered children a Sequence operation drives,
// one after another, stopping at the first error (spec.md §4.3).
type SequencePayload struct {
	Ops []*operation.Operation
}

// ParallelPayload holds the children a Parallel operation drives
// concurrently, plus the policy selecting between "wait for all" and
// "resolve on first completion" (spec.md §4.3).
type ParallelPayload struct {
	Ops    []*operation.Operation
	Policy ParallelPolicy
}

// TaskKind enumerates the kinds a procedure step's task list may contain.
type TaskKind string

const (
	TaskExecKind     TaskKind = "exec"
	TaskSwitch       TaskKind = "switch"
	TaskCommand      TaskKind = "command"
	TaskScript       TaskKind = "script"
	TaskTemplate     TaskKind = "template"
	TaskFileCopy     TaskKind = "file-copy"
	TaskFileCompare  TaskKind = "file-compare"
)
