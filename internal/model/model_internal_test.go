package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEval struct {
	values map[string]any
}

func (s stubEval) EvalItem(expr string, raw []byte, meta FileMeta) (any, error) { return nil, nil }
func (s stubEval) EvalMapping(expr string, root any, item any) (any, error)     { return root, nil }
func (s stubEval) Eval(expr string, scope any) (any, error)                     { return s.values[expr], nil }

func TestMergeIntoOverwritesScalarsAndDeepMergesMaps(t *testing.T) {
	dst := map[string]any{
		"name": "original",
		"nested": map[string]any{
			"a": 1,
			"b": 2,
		},
	}
	src := map[string]any{
		"name": "overridden",
		"nested": map[string]any{
			"b": 20,
			"c": 3,
		},
	}
	mergeInto(dst, src)

	assert.Equal(t, "overridden", dst["name"])
	nested := dst["nested"].(map[string]any)
	assert.Equal(t, 1, nested["a"])
	assert.Equal(t, 20, nested["b"])
	assert.Equal(t, 3, nested["c"])
}

func TestMergeIntoAddsNewTopLevelKeys(t *testing.T) {
	dst := map[string]any{}
	src := map[string]any{"added": true}
	mergeInto(dst, src)
	assert.Equal(t, true, dst["added"])
}

func TestInterpolateReplacesWholeStringPlaceholder(t *testing.T) {
	eval := stubEval{values: map[string]any{"hosts.default.ip": "10.0.0.1"}}
	root := map[string]any{
		"target": "${hosts.default.ip}",
	}
	require.NoError(t, interpolate(root, root, eval))
	assert.Equal(t, "10.0.0.1", root["target"])
}

func TestInterpolateWalksNestedMapsAndSlices(t *testing.T) {
	eval := stubEval{values: map[string]any{"x": "resolved"}}
	root := map[string]any{
		"list": []any{"${x}", "literal"},
		"nested": map[string]any{
			"key": "${x}",
		},
	}
	require.NoError(t, interpolate(root, root, eval))
	assert.Equal(t, "resolved", root["list"].([]any)[0])
	assert.Equal(t, "literal", root["list"].([]any)[1])
	assert.Equal(t, "resolved", root["nested"].(map[string]any)["key"])
}

func TestInterpolateLeavesNonPlaceholderStringsUnchanged(t *testing.T) {
	eval := stubEval{}
	root := map[string]any{"plain": "just text"}
	require.NoError(t, interpolate(root, root, eval))
	assert.Equal(t, "just text", root["plain"])
}

func TestParseByFormatYAML(t *testing.T) {
	v, err := parseByFormat("a: 1\nb: two\n", "yaml")
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "two", m["b"])
}

func TestParseByFormatJSON(t *testing.T) {
	v, err := parseByFormat(`{"a": 1, "b": "two"}`, "json")
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "two", m["b"])
}

func TestParseByFormatTOML(t *testing.T) {
	v, err := parseByFormat("a = 1\nb = \"two\"\n", "toml")
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "two", m["b"])
}

func TestParseByFormatTextPassesThrough(t *testing.T) {
	v, err := parseByFormat("raw content", "text")
	require.NoError(t, err)
	assert.Equal(t, "raw content", v)
}

func TestParseByFormatBinaryReturnsBytes(t *testing.T) {
	v, err := parseByFormat("raw", "binary")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), v)
}

func TestAsSliceReturnsNilForNonSlice(t *testing.T) {
	assert.Nil(t, asSlice("not a slice"))
	assert.Nil(t, asSlice(nil))
}

func TestAsSlicePassesThroughSlice(t *testing.T) {
	s := []any{1, 2, 3}
	assert.Equal(t, s, asSlice(s))
}
