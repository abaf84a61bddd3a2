package batch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/gateway"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/graph"
)

type funcExecutor func(ctx context.Context, req gateway.QueryRequest) (gateway.QueryResponse, error)

func (f funcExecutor) Execute(ctx context.Context, req gateway.QueryRequest) (gateway.QueryResponse, error) {
	return f(ctx, req)
}

func items(queries ...string) []Item {
	out := make([]Item, len(queries))
	for i, q := range queries {
		out[i] = Item{Name: q, Request: gateway.NewQueryRequest(q, nil)}
	}
	return out
}

func TestRunner_PreservesOrder(t *testing.T) {
	exec := funcExecutor(func(_ context.Context, req gateway.QueryRequest) (gateway.QueryResponse, error) {
		if req.Query() == "a" {
			time.Sleep(10 * time.Millisecond)
		}
		return gateway.QueryResponse{Rows: []gateway.ResultRow{{"q": req.Query()}}}, nil
	})

	outcomes, err := NewRunner(exec, 3).Run(context.Background(), items("a", "b", "c", "d"))
	require.NoError(t, err)
	require.Len(t, outcomes, 4)
	for i, want := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, want, outcomes[i].Name)
		assert.Equal(t, want, outcomes[i].Response.Rows[0]["q"])
	}
}

func TestRunner_AggregatesFailures(t *testing.T) {
	store := graph.NewMemoryStore()
	store.PushRecords(graph.Record{"n": int64(1)})
	pool := gateway.NewSessionPool(store, 1)
	t.Cleanup(func() { _ = pool.Close(context.Background()) })
	gw := gateway.New(pool)

	outcomes, err := NewRunner(gw, 1).Run(context.Background(), []Item{
		{Name: "ok", Request: gateway.NewQueryRequest("RETURN 1 AS n", nil)},
		{Name: "empty", Request: gateway.NewQueryRequest("", nil)},
	})

	require.Error(t, err)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	require.Len(t, taskErr.Errors, 1)

	var itemErr *ItemError
	require.ErrorAs(t, taskErr.Errors[0], &itemErr)
	assert.Equal(t, 1, itemErr.Index)
	assert.Equal(t, "empty", itemErr.Name)
	assert.Equal(t, gateway.KindValidation, gateway.KindOf(err))

	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 1, Failed(outcomes, gateway.KindValidation))
	assert.Equal(t, 0, Failed(outcomes, gateway.KindStore))
	assert.Equal(t, 1, Failed(outcomes, ""))
	assert.Equal(t, 0, store.OpenSessions())
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	var active, peak int32
	var mu sync.Mutex
	exec := funcExecutor(func(context.Context, gateway.QueryRequest) (gateway.QueryResponse, error) {
		n := atomic.AddInt32(&active, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return gateway.QueryResponse{}, nil
	})

	_, err := NewRunner(exec, 2).Run(context.Background(), items("1", "2", "3", "4", "5", "6"))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, int32(2))
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := funcExecutor(func(context.Context, gateway.QueryRequest) (gateway.QueryResponse, error) {
		return gateway.QueryResponse{}, nil
	})

	_, err := NewRunner(exec, 1).Run(ctx, items("a", "b", "c"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunner_Empty(t *testing.T) {
	outcomes, err := NewRunner(nil, 0).Run(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestTaskError_Message(t *testing.T) {
	var e TaskError
	assert.Equal(t, "no errors", e.Error())
	e.append(errors.New("first"))
	assert.Equal(t, "first", e.Error())
	e.append(errors.New("second"))
	assert.Equal(t, "2 queries failed: first; second;", e.Error())
}

func TestDecode(t *testing.T) {
	doc := `
queries:
  - name: count
    query: MATCH (p:Person) RETURN count(p) AS total
  - name: by-age
    query: MATCH (p:Person) WHERE p.age > $min RETURN p.name AS name
    params:
      min: 30
      tags: [a, b]
      window: {from: 1, to: 2.5}
`
	got, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "count", got[0].Name)
	assert.Empty(t, got[0].Request.Params())
	assert.Equal(t, map[string]any{
		"min":    int64(30),
		"tags":   []any{"a", "b"},
		"window": map[string]any{"from": int64(1), "to": 2.5},
	}, got[1].Request.Params())
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("queries:\n  - cypher: RETURN 1\n"))
	assert.Error(t, err)
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, WriteFile(path, []FileQuery{
		{Name: "p1", Query: "CREATE (:Person {name: $name, age: $age})", Params: map[string]any{"name": "Ada", "age": int64(36)}},
	}))

	got, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CREATE (:Person {name: $name, age: $age})", got[0].Request.Query())
	assert.Equal(t, map[string]any{"name": "Ada", "age": int64(36)}, got[0].Request.Params())
}
