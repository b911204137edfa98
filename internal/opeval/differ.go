package opeval

import "reflect"

// StructuralDiff is a minimal stand-in for the real tree-diff library
// spec.md treats as an injected Differ. It reports added/removed/changed
// top-level keys between two decoded model trees; a production deployment
// wires in the real diff implementation instead.
type StructuralDiff struct{}

// Change describes one top-level key difference between prev and next.
type Change struct {
	Path string
	Prev any
	Next any
}

func (StructuralDiff) Diff(prev, next any) (any, error) {
	prevMap, _ := prev.(map[string]any)
	nextMap, _ := next.(map[string]any)

	var changes []Change
	for k, pv := range prevMap {
		nv, ok := nextMap[k]
		if !ok {
			changes = append(changes, Change{Path: k, Prev: pv, Next: nil})
			continue
		}
		if !reflect.DeepEqual(pv, nv) {
			changes = append(changes, Change{Path: k, Prev: pv, Next: nv})
		}
	}
	for k, nv := range nextMap {
		if _, ok := prevMap[k]; !ok {
			changes = append(changes, Change{Path: k, Prev: nil, Next: nv})
		}
	}
	return changes, nil
}
