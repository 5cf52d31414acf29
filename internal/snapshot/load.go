// Package snapshot serves entity reads from bundled local files when the
// remote store is unavailable. Files hold a JSON (or YAML) array per family,
// optionally nested inside a wrapper document selected by a JSONPath root.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// ErrLoadFailed is returned when a snapshot file is missing, unreadable or malformed.
var ErrLoadFailed = errors.New("snapshot load failed")

// Paths locates the file for each family. An empty path means the family has
// no snapshot.
type Paths struct {
	Products     string
	Outfits      string
	Users        string
	Tribes       string
	TribeMembers string
	Challenges   string
	Submissions  string
}

// loadRecords reads path and returns the raw elements of its collection.
// A "{family}" placeholder in root is replaced with family.
func loadRecords(family, path, root string) ([]json.RawMessage, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no file configured", ErrLoadFailed)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, filepath.Base(path), err)
		}
	}

	if root != "" {
		expr := strings.ReplaceAll(root, "{family}", family)
		if data, err = selectRoot(data, expr); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, filepath.Base(path), err)
		}
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: %s: invalid JSON", ErrLoadFailed, filepath.Base(path))
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return nil, fmt.Errorf("%w: %s: top level is not an array", ErrLoadFailed, filepath.Base(path))
	}

	var out []json.RawMessage
	doc.ForEach(func(_, value gjson.Result) bool {
		out = append(out, json.RawMessage(value.Raw))
		return true
	})
	return out, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(normalize(doc))
}

// normalize turns map[any]any produced for non-string YAML keys into
// map[string]any so the document can be encoded as JSON.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			t[k] = normalize(inner)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[fmt.Sprint(k)] = normalize(inner)
		}
		return out
	case []any:
		for i, inner := range t {
			t[i] = normalize(inner)
		}
		return t
	default:
		return v
	}
}

func selectRoot(data []byte, root string) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	selected, err := jsonpath.Get(root, doc)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", root, err)
	}
	return json.Marshal(selected)
}
