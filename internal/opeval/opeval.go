// Package opeval is a minimal stand-in for the real opath expression
// evaluator, which spec.md treats as an injected black box (Non-goal: "the
// opath expression language itself"). It implements model.Evaluator with
// dot-path lookups and YAML item decoding only, enough to let cmd/opengine
// run end to end against a real repository; a production deployment wires
// in the real opath implementation instead.
package opeval

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opereon/opereon-sub000/internal/model"
)

// DotPath implements model.Evaluator with "a.b.c" / "a.b[0].c" dot-path
// lookups for Eval, whole-document YAML decode for EvalItem, and single-key
// placement for EvalMapping.
type DotPath struct{}

func (DotPath) EvalItem(expr string, raw []byte, meta model.FileMeta) (any, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return string(raw), nil
	}
	return v, nil
}

func (DotPath) EvalMapping(expr string, root any, item any) (any, error) {
	rootMap, ok := root.(map[string]any)
	if !ok {
		return root, nil
	}
	if expr == "" {
		if m, ok := item.(map[string]any); ok {
			for k, v := range m {
				rootMap[k] = v
			}
		}
		return rootMap, nil
	}
	rootMap[expr] = item
	return rootMap, nil
}

func (DotPath) Eval(expr string, scope any) (any, error) {
	cur := scope
	for _, seg := range strings.Split(strings.TrimPrefix(expr, "."), ".") {
		if seg == "" {
			continue
		}
		name, idx, hasIdx := splitIndex(seg)
		if name != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, nil
			}
			cur = m[name]
		}
		if hasIdx {
			s, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(s) {
				return nil, nil
			}
			cur = s[idx]
		}
	}
	return cur, nil
}

// splitIndex splits "name[idx]" into ("name", idx, true), or returns
// (seg, 0, false) when seg has no trailing index.
func splitIndex(seg string) (string, int, bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}
	idx, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil {
		return seg, 0, false
	}
	return seg[:open], idx, true
}
