// Package model implements spec.md §4.7's revision-scoped model loader:
// walking a Git tree at a committed revision, applying a configured
// include/exclude/mapping pipeline (via `.operc` documents) to materialize
// the model tree, then merging manifest defines/overrides and interpolating
// `${…}` placeholders.
//
// The `opath` expression language itself is out of scope (spec.md's
// Non-goals): every expression-bearing field here is evaluated through an
// injected Evaluator, the same "black-box evaluator with the contract in
// §6" pattern SPEC_FULL.md's Non-goals section asks for.
package model

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"gopkg.in/yaml.v3"

	"github.com/opereon/opereon-sub000/internal/errs"
	"github.com/opereon/opereon-sub000/internal/opcontext"
)

// FileMeta is the file metadata annotation passed alongside raw bytes to
// Evaluator.EvalItem, per spec.md §4.7 step 3 ("item node... annotated
// with file metadata").
type FileMeta struct {
	Path string
	Type string // "file" | "symlink" (go-git trees don't carry directory blobs)
}

// Evaluator is the injected `opath` black box: item/mapping evaluation
// during the tree walk, and general expression evaluation for ModelQuery
// and `${…}` interpolation lookups.
type Evaluator interface {
	// EvalItem turns one matched file's raw bytes into a model-tree item.
	EvalItem(expr string, raw []byte, meta FileMeta) (any, error)
	// EvalMapping places item into root at the path expr describes,
	// returning the (possibly same, mutated) root.
	EvalMapping(expr string, root any, item any) (any, error)
	// Eval evaluates expr against scope, used for ModelQuery and for
	// resolving `${expr}` interpolation placeholders.
	Eval(expr string, scope any) (any, error)
}

// Manifest is the repo-root manifest document contributing `defines` and
// `overrides` to the model tree (spec.md §4.7 step 4).
type Manifest struct {
	Defines   map[string]any
	Overrides map[string]any
}

// Tree is a fully-resolved model tree for one revision: the root node plus
// the three top-level sequences spec.md calls out.
type Tree struct {
	Root  map[string]any
	Hosts []any
	Users []any
	Procs []any

	rev  plumbing.Hash
	repo *git.Repository
}

// Revision returns the resolved commit hash this tree was built from.
func (t *Tree) Revision() string { return t.rev.String() }

// LoadFile reads the blob at filePath in this tree's revision and parses
// it per format (or filePath's extension when format is empty): one of
// yaml|yml|toml|json|text|binary.
func (t *Tree) LoadFile(filePath string, format string) (any, error) {
	return loadFileAt(t.repo, t.rev, filePath, format)
}

// Loader resolves model Trees at arbitrary revisions of the repository at
// repoDir; each Load call opens the repository afresh.
type Loader struct {
	repoDir string
	eval    Evaluator
}

func NewLoader(repoDir string, eval Evaluator) *Loader {
	return &Loader{repoDir: repoDir, eval: eval}
}

// Load implements the full §4.7 algorithm for one revision.
func (l *Loader) Load(rev opcontext.RevPath, manifest Manifest) (*Tree, error) {
	repo, err := git.PlainOpen(l.repoDir)
	if err != nil {
		return nil, errs.Wrap(errs.KindGit, "E_GIT_OPEN", "model: open repository", err)
	}

	hash, err := resolveRevision(repo, rev)
	if err != nil {
		return nil, err
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, errs.Wrap(errs.KindGit, "E_GIT_COMMIT", "model: resolve commit "+hash.String(), err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, errs.Wrap(errs.KindGit, "E_GIT_TREE", "model: resolve tree for "+hash.String(), err)
	}

	entries, err := listFiles(tree)
	if err != nil {
		return nil, err
	}

	resolver, err := buildConfigResolver(tree, entries)
	if err != nil {
		return nil, err
	}

	root := map[string]any{}
	for _, e := range entries {
		if path.Base(e.Name) == ".operc" {
			continue
		}
		if err := l.applyEntry(tree, resolver, root, e); err != nil {
			return nil, err
		}
	}

	mergeInto(root, manifest.Defines)
	mergeInto(root, manifest.Overrides)

	if err := interpolate(root, root, l.eval); err != nil {
		return nil, errs.Wrap(errs.KindDefs, "E_MODEL_INTERPOLATE", "model: interpolation failed", err)
	}

	return &Tree{
		Root:  root,
		Hosts: asSlice(root["hosts"]),
		Users: asSlice(root["users"]),
		Procs: asSlice(root["procs"]),
		rev:   hash,
		repo:  repo,
	}, nil
}

func (l *Loader) applyEntry(tree *object.Tree, resolver *ConfigResolver, root map[string]any, e fileEntry) error {
	dir := path.Dir(e.Name)
	if dir == "." {
		dir = ""
	}
	layer := resolver.Resolve(dir)

	rule, matched, excluded := layer.Match(e.Name, "file")
	if excluded || !matched {
		return nil
	}

	f, err := tree.File(e.Name)
	if err != nil {
		return errs.Wrap(errs.KindGit, "E_GIT_BLOB", "model: read blob "+e.Name, err)
	}
	content, err := f.Contents()
	if err != nil {
		return errs.Wrap(errs.KindGit, "E_GIT_BLOB", "model: read blob contents "+e.Name, err)
	}

	item, err := l.eval.EvalItem(rule.ItemExpr, []byte(content), FileMeta{Path: e.Name, Type: "file"})
	if err != nil {
		return errs.Wrap(errs.KindDefs, "E_MODEL_ITEM", "model: item-expr failed for "+e.Name, err)
	}

	updated, err := l.eval.EvalMapping(rule.MappingExpr, root, item)
	if err != nil {
		return errs.Wrap(errs.KindDefs, "E_MODEL_MAPPING", "model: mapping-expr failed for "+e.Name, err)
	}
	if m, ok := updated.(map[string]any); ok {
		for k, v := range m {
			root[k] = v
		}
	}
	return nil
}

func resolveRevision(repo *git.Repository, rev opcontext.RevPath) (plumbing.Hash, error) {
	if rev.Current {
		head, err := repo.Head()
		if err != nil {
			return plumbing.Hash{}, errs.Wrap(errs.KindGit, "E_GIT_HEAD", "model: resolve HEAD", err)
		}
		return head.Hash(), nil
	}
	h, err := repo.ResolveRevision(plumbing.Revision(rev.Revision))
	if err != nil {
		return plumbing.Hash{}, errs.Wrap(errs.KindGit, "E_GIT_REVISION", "model: resolve revision "+rev.Revision, err)
	}
	return *h, nil
}

type fileEntry struct {
	Name string
}

// listFiles returns every blob in tree, pre-order by path, matching
// spec.md §4.7 step 1 ("walk the commit's tree pre-order").
func listFiles(tree *object.Tree) ([]fileEntry, error) {
	var entries []fileEntry
	iter := tree.Files()
	defer iter.Close()
	if err := iter.ForEach(func(f *object.File) error {
		entries = append(entries, fileEntry{Name: f.Name})
		return nil
	}); err != nil {
		return nil, errs.Wrap(errs.KindGit, "E_GIT_WALK", "model: walk tree", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// buildConfigResolver reads every `.operc` blob found while walking and
// parses it as YAML into an OperConfig, keyed by its containing directory.
func buildConfigResolver(tree *object.Tree, entries []fileEntry) (*ConfigResolver, error) {
	byDir := make(map[string]OperConfig)
	for _, e := range entries {
		if path.Base(e.Name) != ".operc" {
			continue
		}
		f, err := tree.File(e.Name)
		if err != nil {
			return nil, errs.Wrap(errs.KindGit, "E_GIT_BLOB", "model: read .operc "+e.Name, err)
		}
		content, err := f.Contents()
		if err != nil {
			return nil, errs.Wrap(errs.KindGit, "E_GIT_BLOB", "model: read .operc contents "+e.Name, err)
		}
		var cfg OperConfig
		if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
			return nil, errs.Wrap(errs.KindConfig, "E_OPERC_PARSE", "model: parse .operc "+e.Name, err)
		}
		dir := path.Dir(e.Name)
		if dir == "." {
			dir = ""
		}
		byDir[dir] = cfg
	}
	return NewConfigResolver(byDir), nil
}

// loadFileAt reads filePath's blob as of rev and parses it by format (or
// filePath's extension when format == ""), implementing the `loadFile`
// function spec.md §4.7 step 5 binds into the evaluation scope.
func loadFileAt(repo *git.Repository, rev plumbing.Hash, filePath string, format string) (any, error) {
	commit, err := repo.CommitObject(rev)
	if err != nil {
		return nil, errs.Wrap(errs.KindGit, "E_GIT_COMMIT", "loadFile: resolve commit", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, errs.Wrap(errs.KindGit, "E_GIT_TREE", "loadFile: resolve tree", err)
	}
	f, err := tree.File(filePath)
	if err != nil {
		return nil, errs.Wrap(errs.KindGit, "E_GIT_BLOB", "loadFile: read "+filePath, err)
	}
	content, err := f.Contents()
	if err != nil {
		return nil, errs.Wrap(errs.KindGit, "E_GIT_BLOB", "loadFile: contents of "+filePath, err)
	}

	if format == "" {
		format = strings.TrimPrefix(path.Ext(filePath), ".")
	}
	return parseByFormat(content, format)
}

func parseByFormat(content, format string) (any, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		var v any
		if err := yaml.Unmarshal([]byte(content), &v); err != nil {
			return nil, fmt.Errorf("loadFile: decode yaml: %w", err)
		}
		return v, nil
	case "json":
		var v any
		if err := yamlJSONCompat(content, &v); err != nil {
			return nil, fmt.Errorf("loadFile: decode json: %w", err)
		}
		return v, nil
	case "toml":
		return decodeTOMLAny(content)
	case "text":
		return content, nil
	case "binary":
		return []byte(content), nil
	default:
		return content, nil
	}
}

// mergeInto deep-merges src over dst, matching the manifest
// defines/overrides merge order from spec.md §4.7 step 4.
func mergeInto(dst map[string]any, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				mergeInto(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}

func asSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}
