package engine

import (
	"time"

	"github.com/opereon/opereon-sub000/internal/model"
	"github.com/opereon/opereon-sub000/internal/sshsession"
)

// Differ is the injected tree-diff black box (spec.md's Non-goals treat
// the diff library the same way as the opath evaluator: an interface, not
// an implementation this module owns).
type Differ interface {
	Diff(prev, next any) (any, error)
}

// Deps bundles every external dependency the Context->Impl factory
// (factory.go) needs to construct operations that touch the model loader,
// SSH, or rsync — everything RunDriver's init/next_progress/done phases
// may call into beyond the engine's own scheduler state.
type Deps struct {
	RepoDir     string
	Evaluator   model.Evaluator
	Differ      Differ
	SSHPool     *sshsession.Pool
	RsyncBin    string
	StagingRoot string
	Now         func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) loader() *model.Loader {
	return model.NewLoader(d.RepoDir, d.Evaluator)
}
