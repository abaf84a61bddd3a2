package batch

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/gateway"
)

// File is the YAML document read by LoadFile and written by WriteFile.
//
//	queries:
//	  - name: count-people
//	    query: MATCH (p:Person) RETURN count(p) AS total
//	    params: {}
type File struct {
	Queries []FileQuery `yaml:"queries"`
}

// FileQuery is one entry of a batch file.
type FileQuery struct {
	Name   string         `yaml:"name,omitempty"`
	Query  string         `yaml:"query"`
	Params map[string]any `yaml:"params,omitempty"`
}

// LoadFile reads a batch file from disk.
func LoadFile(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	items, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("parse batch file %s: %w", path, err)
	}
	return items, nil
}

// Decode parses a batch document. YAML integers become int64 so they bind as
// Cypher integers the same way JSON payloads do.
func Decode(r io.Reader) ([]Item, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	items := make([]Item, 0, len(file.Queries))
	for i, q := range file.Queries {
		params, err := normalizeParams(q.Params)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		items = append(items, Item{
			Name:    q.Name,
			Request: gateway.NewQueryRequest(q.Query, params),
		})
	}
	return items, nil
}

// WriteFile encodes requests as a batch file at path.
func WriteFile(path string, queries []FileQuery) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := Encode(f, queries); err != nil {
		return fmt.Errorf("encode batch file %s: %w", path, err)
	}
	return f.Close()
}

// Encode writes queries as a batch document.
func Encode(w io.Writer, queries []FileQuery) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(File{Queries: queries}); err != nil {
		return err
	}
	return encoder.Close()
}

func normalizeParams(params map[string]any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out, err := normalizeValue(params)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func normalizeValue(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case uint64:
		if v > 1<<63-1 {
			return nil, fmt.Errorf("integer %d overflows int64", v)
		}
		return int64(v), nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			converted, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[key] = converted
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			name, ok := key.(string)
			if !ok {
				return nil, fmt.Errorf("map key %v is not a string", key)
			}
			converted, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[name] = converted
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			converted, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	default:
		return v, nil
	}
}
