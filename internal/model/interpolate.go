package model

import (
	"encoding/json"
	"regexp"

	toml2 "github.com/pelletier/go-toml/v2"
)

// yamlJSONCompat decodes JSON via the stdlib decoder (yaml.v3's own
// unmarshaller is a YAML superset of JSON in practice, but loadFile keeps
// JSON on the stdlib path so the parsed result's numeric types match a
// typical JSON consumer's expectations: float64, not yaml.v3's int/float
// split).
func yamlJSONCompat(content string, v any) error {
	return json.Unmarshal([]byte(content), v)
}

// decodeTOMLAny decodes a TOML document into a generic any via
// pelletier/go-toml/v2, used by loadFile's TOML branch so a document can be
// re-serialized losslessly (BurntSushi/toml, used by internal/config,
// decodes straight into a typed struct instead).
func decodeTOMLAny(content string) (any, error) {
	var v map[string]any
	if err := toml2.Unmarshal([]byte(content), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// interpolatePattern matches a whole-string `${expr}` placeholder; per
// spec.md §4.7 step 4, the tree resolver substitutes these after defines/
// overrides have been merged so interpolation sees override values.
var interpolatePattern = regexp.MustCompile(`^\$\{(.+)\}$`)

// interpolate walks node recursively, replacing every string value that is
// exactly one `${expr}` placeholder with the result of evaluating expr
// against root. Maps and slices are walked in place; other values pass
// through unchanged.
func interpolate(root any, node any, eval Evaluator) error {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			if s, ok := v.(string); ok {
				if m := interpolatePattern.FindStringSubmatch(s); m != nil {
					resolved, err := eval.Eval(m[1], root)
					if err != nil {
						return err
					}
					n[k] = resolved
					continue
				}
			}
			if err := interpolate(root, v, eval); err != nil {
				return err
			}
		}
	case []any:
		for i, v := range n {
			if s, ok := v.(string); ok {
				if m := interpolatePattern.FindStringSubmatch(s); m != nil {
					resolved, err := eval.Eval(m[1], root)
					if err != nil {
						return err
					}
					n[i] = resolved
					continue
				}
			}
			if err := interpolate(root, v, eval); err != nil {
				return err
			}
		}
	}
	return nil
}
