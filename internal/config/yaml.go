package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON returns the document as JSON so one strict decoder serves both
// formats. Files ending in .yaml or .yml are converted; anything else is
// passed through. The second result names the source format.
func toJSON(path string, data []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, "json", nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", err
	}
	if len(doc.Content) == 0 {
		return []byte("null"), "yaml", nil
	}
	v, err := yamlValue(doc.Content[0], "")
	if err != nil {
		return nil, "yaml", err
	}
	j, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml to json: %w", err)
	}
	return j, "yaml", nil
}

// yamlValue walks the node tree. Mapping keys keep their source text, so a
// channel id such as 0012 or 1_000 is not reformatted as a number.
func yamlValue(n *yaml.Node, at string) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return yamlValue(n.Alias, at)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%s: line %d: mapping key must be a scalar", keyPath(at, "?"), k.Line)
			}
			p := keyPath(at, k.Value)
			if _, dup := m[k.Value]; dup {
				return nil, fmt.Errorf("%s: line %d: key repeated", p, k.Line)
			}
			v, err := yamlValue(n.Content[i+1], p)
			if err != nil {
				return nil, err
			}
			m[k.Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for i, c := range n.Content {
			v, err := yamlValue(c, fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", keyPath(at, ""), n.Line, err)
		}
		return v, nil
	}
}

func keyPath(at, key string) string {
	switch {
	case at == "" && key == "":
		return "(root)"
	case at == "":
		return key
	case key == "":
		return at
	}
	return at + "." + key
}
