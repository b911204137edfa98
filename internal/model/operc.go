package model

import (
	"path"
	"strings"
)

// IncludeRule matches a file entry and describes how to turn it into a
// model-tree item (spec.md §4.7 step 2-3).
type IncludeRule struct {
	Glob        string
	FileType    string // optional; empty matches any
	ItemExpr    string // opath expression evaluated against the raw bytes + metadata
	MappingExpr string // opath expression evaluated against the model root to place the item
}

// ExcludeRule suppresses a file entry before any IncludeRule is tried.
type ExcludeRule struct {
	Glob     string
	FileType string
}

// OperConfig is one `.operc` document: ordered include/exclude rules, plus
// whether this document inherits (appends its rules to) the rules of its
// ancestor directories' `.operc` documents or replaces them outright.
type OperConfig struct {
	Inherit  bool
	Includes []IncludeRule
	Excludes []ExcludeRule
}

// ConfigLayer is the resolved, ancestor-merged configuration in effect for
// one tree path: the ordered union of every inherited ancestor's rules,
// innermost-last so a closer `.operc` can still add rules after outer
// ones (exclude still short-circuits regardless of position, per Match).
type ConfigLayer struct {
	Includes []IncludeRule
	Excludes []ExcludeRule
}

// Match reports whether filePath (tree-relative, forward-slash separated)
// is excluded, and if not, which IncludeRule (if any) matches first.
func (l ConfigLayer) Match(filePath, fileType string) (rule IncludeRule, matched bool, excluded bool) {
	base := path.Base(filePath)
	for _, ex := range l.Excludes {
		if globMatch(ex.Glob, filePath, base) && (ex.FileType == "" || ex.FileType == fileType) {
			return IncludeRule{}, false, true
		}
	}
	for _, in := range l.Includes {
		if globMatch(in.Glob, filePath, base) && (in.FileType == "" || in.FileType == fileType) {
			return in, true, false
		}
	}
	return IncludeRule{}, false, false
}

func globMatch(pattern, fullPath, base string) bool {
	if ok, err := path.Match(pattern, base); err == nil && ok {
		return true
	}
	ok, err := path.Match(pattern, fullPath)
	return err == nil && ok
}

// ConfigResolver maps a tree path to its ConfigLayer, computed on each
// Resolve call from the `.operc` documents found along the ancestor chain.
type ConfigResolver struct {
	// byDir maps a directory's tree path ("" for root) to its parsed
	// `.operc`, when one exists at that directory.
	byDir map[string]OperConfig
}

// NewConfigResolver builds a resolver from every discovered `.operc`
// document, keyed by the directory (tree-relative, "" for repo root) it
// was found in.
func NewConfigResolver(byDir map[string]OperConfig) *ConfigResolver {
	return &ConfigResolver{byDir: byDir}
}

// Resolve returns the merged ConfigLayer in effect for dir, walking from
// the root down: an `.operc` with Inherit=true appends its rules to the
// layer built so far, one with Inherit=false replaces it, so the nearest
// non-inheriting `.operc` discards every rule above it.
func (r *ConfigResolver) Resolve(dir string) ConfigLayer {
	segments := splitDir(dir)

	var layer ConfigLayer
	cur := ""
	for i := -1; i < len(segments); i++ {
		if i >= 0 {
			if cur == "" {
				cur = segments[i]
			} else {
				cur = cur + "/" + segments[i]
			}
		}
		cfg, ok := r.byDir[cur]
		if !ok {
			continue
		}
		if cfg.Inherit {
			layer.Includes = append(layer.Includes, cfg.Includes...)
			layer.Excludes = append(layer.Excludes, cfg.Excludes...)
		} else {
			layer = ConfigLayer{Includes: append([]IncludeRule{}, cfg.Includes...), Excludes: append([]ExcludeRule{}, cfg.Excludes...)}
		}
	}
	return layer
}

func splitDir(dir string) []string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return nil
	}
	return strings.Split(dir, "/")
}
