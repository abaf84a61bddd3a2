package graph

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const (
	dateLayout          = "2006-01-02"
	localTimeLayout     = "15:04:05.999999999"
	offsetTimeLayout    = "15:04:05.999999999Z07:00"
	localDateTimeLayout = "2006-01-02T15:04:05.999999999"
)

// UnsupportedValueError reports a record value that has no JSON-compatible form.
type UnsupportedValueError struct {
	Field  string
	Type   string
	Reason string
}

func (e *UnsupportedValueError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("field %q: %s (%s)", e.Field, e.Reason, e.Type)
	}
	return fmt.Sprintf("field %q: unsupported value type %s", e.Field, e.Type)
}

// NormalizeRecord maps every value of rec into plain JSON-compatible Go values:
// nil, bool, int64, float64, string, []any and map[string]any. Graph entities,
// spatial and temporal values are converted to maps and strings.
func NormalizeRecord(rec Record) (map[string]any, error) {
	row := make(map[string]any, len(rec))
	for key, value := range rec {
		normalized, err := normalizeValue(key, value)
		if err != nil {
			return nil, err
		}
		row[key] = normalized
	}
	return row, nil
}

func normalizeValue(field string, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool, string, int64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		return normalizeUnsigned(field, uint64(v))
	case uint64:
		return normalizeUnsigned(field, v)
	case float32:
		return normalizeFloat(field, float64(v))
	case float64:
		return normalizeFloat(field, v)
	case []byte:
		return base64.StdEncoding.EncodeToString(v), nil
	case []any:
		return normalizeList(field, v)
	case map[string]any:
		return normalizeMap(field, v)
	case Record:
		return normalizeMap(field, v)
	case neo4j.Node:
		return normalizeNode(field, v)
	case neo4j.Relationship:
		return normalizeRelationship(field, v)
	case neo4j.Path:
		return normalizePath(field, v)
	case neo4j.Point2D:
		return map[string]any{"srid": int64(v.SpatialRefId), "x": v.X, "y": v.Y}, nil
	case neo4j.Point3D:
		return map[string]any{"srid": int64(v.SpatialRefId), "x": v.X, "y": v.Y, "z": v.Z}, nil
	case neo4j.Date:
		return v.Time().Format(dateLayout), nil
	case neo4j.LocalTime:
		return v.Time().Format(localTimeLayout), nil
	case neo4j.Time:
		return v.Time().Format(offsetTimeLayout), nil
	case neo4j.LocalDateTime:
		return v.Time().Format(localDateTimeLayout), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case neo4j.Duration:
		return v.String(), nil
	}
	return normalizeReflect(field, value)
}

// normalizeReflect handles typed slices and maps, e.g. []string from the driver
// or caller-provided test data.
func normalizeReflect(field string, value any) (any, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := normalizeValue(field, rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &UnsupportedValueError{Field: field, Type: rv.Type().String(), Reason: "map keys must be strings"}
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			item, err := normalizeValue(field, iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = item
		}
		return out, nil
	}
	return nil, &UnsupportedValueError{Field: field, Type: fmt.Sprintf("%T", value)}
}

func normalizeUnsigned(field string, v uint64) (any, error) {
	if v > math.MaxInt64 {
		return nil, &UnsupportedValueError{Field: field, Type: "uint64", Reason: "integer overflows int64"}
	}
	return int64(v), nil
}

func normalizeFloat(field string, v float64) (any, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, &UnsupportedValueError{Field: field, Type: "float64", Reason: "non-finite number"}
	}
	return v, nil
}

func normalizeList(field string, items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		normalized, err := normalizeValue(field, item)
		if err != nil {
			return nil, err
		}
		out[i] = normalized
	}
	return out, nil
}

func normalizeMap(field string, m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for key, item := range m {
		normalized, err := normalizeValue(field, item)
		if err != nil {
			return nil, err
		}
		out[key] = normalized
	}
	return out, nil
}

func normalizeNode(field string, n neo4j.Node) (map[string]any, error) {
	props, err := normalizeMap(field, n.Props)
	if err != nil {
		return nil, err
	}
	labels := make([]any, len(n.Labels))
	for i, label := range n.Labels {
		labels[i] = label
	}
	return map[string]any{
		"elementId":  n.ElementId,
		"labels":     labels,
		"properties": props,
	}, nil
}

func normalizeRelationship(field string, r neo4j.Relationship) (map[string]any, error) {
	props, err := normalizeMap(field, r.Props)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"elementId":      r.ElementId,
		"type":           r.Type,
		"startElementId": r.StartElementId,
		"endElementId":   r.EndElementId,
		"properties":     props,
	}, nil
}

func normalizePath(field string, p neo4j.Path) (map[string]any, error) {
	nodes := make([]any, len(p.Nodes))
	for i, n := range p.Nodes {
		node, err := normalizeNode(field, n)
		if err != nil {
			return nil, err
		}
		nodes[i] = node
	}
	rels := make([]any, len(p.Relationships))
	for i, r := range p.Relationships {
		rel, err := normalizeRelationship(field, r)
		if err != nil {
			return nil, err
		}
		rels[i] = rel
	}
	return map[string]any{
		"nodes":         nodes,
		"relationships": rels,
	}, nil
}
