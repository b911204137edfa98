package engine

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"gopkg.in/yaml.v3"

	"github.com/opereon/opereon-sub000/internal/errs"
	"github.com/opereon/opereon-sub000/internal/model"
	"github.com/opereon/opereon-sub000/internal/opcontext"
	"github.com/opereon/opereon-sub000/internal/operation"
	"github.com/opereon/opereon-sub000/internal/outcome"
)

func modelCommitImpl(deps Deps, payload *opcontext.ModelCommitPayload) operation.Impl {
	return &onceImpl{run: func(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
		repo, err := git.PlainOpen(deps.RepoDir)
		if err != nil {
			return outcome.Outcome{}, errs.Wrap(errs.KindGit, "E_GIT_OPEN", "model commit: open repository", err)
		}
		wt, err := repo.Worktree()
		if err != nil {
			return outcome.Outcome{}, errs.Wrap(errs.KindGit, "E_GIT_WORKTREE", "model commit: resolve worktree", err)
		}
		if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
			return outcome.Outcome{}, errs.Wrap(errs.KindGit, "E_GIT_ADD", "model commit: stage changes", err)
		}
		msg := payload.Message
		if msg == "" {
			msg = "opereon: commit workdir"
		}
		hash, err := wt.Commit(msg, &git.CommitOptions{AllowEmptyCommits: true})
		if err != nil {
			return outcome.Outcome{}, errs.Wrap(errs.KindGit, "E_GIT_COMMIT", "model commit: commit", err)
		}
		return outcome.NewNodeSet(hash.String()), nil
	}}
}

func modelQueryImpl(deps Deps, payload *opcontext.ModelQueryPayload) operation.Impl {
	return &onceImpl{run: func(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
		tree, err := deps.loader().Load(payload.RevPath, model.Manifest{})
		if err != nil {
			return outcome.Outcome{}, err
		}
		result, err := deps.Evaluator.Eval(payload.Expr, tree.Root)
		if err != nil {
			return outcome.Outcome{}, errs.Wrap(errs.KindDefs, "E_QUERY_EVAL", "model query: evaluate "+payload.Expr, err)
		}
		return outcome.NewNodeSet(result), nil
	}}
}

func modelTestImpl(deps Deps, payload *opcontext.ModelTestPayload) operation.Impl {
	return &onceImpl{run: func(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
		tree, err := deps.loader().Load(payload.RevPath, model.Manifest{})
		if err != nil {
			return outcome.Outcome{}, err
		}
		raw, err := yaml.Marshal(tree.Root)
		if err != nil {
			return outcome.Outcome{}, errs.Wrap(errs.KindDefs, "E_MODEL_SERIALIZE", "model test: serialize tree", err)
		}
		return outcome.NewNodeSet(string(raw)), nil
	}}
}

func modelDiffImpl(deps Deps, payload *opcontext.ModelDiffPayload) operation.Impl {
	return &onceImpl{run: func(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
		prev, err := deps.loader().Load(payload.Prev, model.Manifest{})
		if err != nil {
			return outcome.Outcome{}, err
		}
		next, err := deps.loader().Load(payload.Next, model.Manifest{})
		if err != nil {
			return outcome.Outcome{}, err
		}
		d, err := deps.Differ.Diff(prev.Root, next.Root)
		if err != nil {
			return outcome.Outcome{}, errs.Wrap(errs.KindDefs, "E_MODEL_DIFF", "model diff: compute diff", err)
		}
		return outcome.NewNodeSet(d), nil
	}}
}

func modelInitImpl(_ Deps, payload *opcontext.ModelInitPayload) operation.Impl {
	return &onceImpl{run: func(context.Context, operation.Engine, *operation.Operation) (outcome.Outcome, error) {
		if _, err := git.PlainInit(payload.Path, false); err != nil {
			return outcome.Outcome{}, errs.Wrap(errs.KindGit, "E_GIT_INIT", "model init: initialize repository at "+payload.Path, err)
		}
		return outcome.NewNodeSet(fmt.Sprintf("initialized repository at %s", payload.Path)), nil
	}}
}
