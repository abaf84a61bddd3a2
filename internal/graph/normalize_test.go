package graph

import (
	"math"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRecord_Scalars(t *testing.T) {
	row, err := NormalizeRecord(Record{
		"name":   "Ada",
		"age":    int32(36),
		"score":  float32(0.5),
		"active": true,
		"none":   nil,
		"raw":    []byte("hi"),
		"tags":   []string{"a", "b"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Ada", row["name"])
	assert.Equal(t, int64(36), row["age"])
	assert.Equal(t, 0.5, row["score"])
	assert.Equal(t, true, row["active"])
	assert.Nil(t, row["none"])
	assert.Equal(t, "aGk=", row["raw"])
	assert.Equal(t, []any{"a", "b"}, row["tags"])
}

func TestNormalizeRecord_GraphEntities(t *testing.T) {
	alice := neo4j.Node{ElementId: "4:x:1", Labels: []string{"Person"}, Props: map[string]any{"name": "Alice"}}
	bob := neo4j.Node{ElementId: "4:x:2", Labels: []string{"Person"}, Props: map[string]any{"name": "Bob"}}
	knows := neo4j.Relationship{
		ElementId:      "5:x:1",
		StartElementId: alice.ElementId,
		EndElementId:   bob.ElementId,
		Type:           "KNOWS",
		Props:          map[string]any{"since": int64(2020)},
	}

	row, err := NormalizeRecord(Record{
		"n": alice,
		"r": knows,
		"p": neo4j.Path{Nodes: []neo4j.Node{alice, bob}, Relationships: []neo4j.Relationship{knows}},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"elementId":  "4:x:1",
		"labels":     []any{"Person"},
		"properties": map[string]any{"name": "Alice"},
	}, row["n"])

	rel := row["r"].(map[string]any)
	assert.Equal(t, "KNOWS", rel["type"])
	assert.Equal(t, "4:x:1", rel["startElementId"])
	assert.Equal(t, "4:x:2", rel["endElementId"])

	path := row["p"].(map[string]any)
	assert.Len(t, path["nodes"], 2)
	assert.Len(t, path["relationships"], 1)
}

func TestNormalizeRecord_SpatialAndTemporal(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)
	row, err := NormalizeRecord(Record{
		"point": neo4j.Point2D{X: 1.5, Y: 2.5, SpatialRefId: 7203},
		"date":  neo4j.Date(ts),
		"local": neo4j.LocalDateTime(ts),
		"at":    ts,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"srid": int64(7203), "x": 1.5, "y": 2.5}, row["point"])
	assert.Equal(t, "2024-03-09", row["date"])
	assert.Equal(t, "2024-03-09T14:30:00", row["local"])
	assert.Equal(t, "2024-03-09T14:30:00Z", row["at"])
}

func TestNormalizeRecord_Unsupported(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"nan", math.NaN()},
		{"infinity", math.Inf(1)},
		{"non-string keys", map[int]string{1: "a"}},
		{"struct", struct{ A int }{A: 1}},
		{"nested nan", []any{1.0, math.NaN()}},
		{"channel", make(chan int)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeRecord(Record{"v": tt.value})
			require.Error(t, err)
			var unsupported *UnsupportedValueError
			require.ErrorAs(t, err, &unsupported)
			assert.Equal(t, "v", unsupported.Field)
		})
	}
}
