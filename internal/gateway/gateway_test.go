package gateway

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/graph"
)

const countPersons = "MATCH (p:Person) RETURN count(p) AS total"

func newTestGateway(t *testing.T, store *graph.MemoryStore, poolSize int, opts ...Option) *Gateway {
	t.Helper()
	pool := NewSessionPool(store, poolSize)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Close(ctx)
	})
	return New(pool, opts...)
}

func requireKind(t *testing.T, err error, kind Kind, code string) *ExecutionError {
	t.Helper()
	require.Error(t, err)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, kind, execErr.Kind)
	if code != "" {
		assert.Equal(t, code, execErr.Code)
	}
	return execErr
}

func TestExecute_CountScenario(t *testing.T) {
	store := graph.NewMemoryStore()
	store.PushRecords(graph.Record{"total": int64(3)})
	gw := newTestGateway(t, store, 2)

	resp, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
	require.NoError(t, err)
	assert.Equal(t, []ResultRow{{"total": int64(3)}}, resp.Rows)

	calls := store.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, countPersons, calls[0].Query)
	assert.Equal(t, 0, gw.Pool().InUse())
	assert.Equal(t, 0, store.OpenSessions())
}

func TestExecute_RowCountMatchesStore(t *testing.T) {
	store := graph.NewMemoryStore()
	records := []graph.Record{{"name": "Ada"}, {"name": "Grace"}, {"name": "Edsger"}, {"name": "Barbara"}}
	store.PushRecords(records...)
	gw := newTestGateway(t, store, 1)

	resp, err := gw.Execute(context.Background(), NewQueryRequest("MATCH (p:Person) RETURN p.name AS name", nil))
	require.NoError(t, err)
	require.Equal(t, len(records), resp.Len())
	for i, rec := range records {
		assert.Equal(t, rec["name"], resp.Rows[i]["name"])
	}
}

func TestExecute_EmptyResultIsNotAnError(t *testing.T) {
	gw := newTestGateway(t, graph.NewMemoryStore(), 1)

	resp, err := gw.Execute(context.Background(), NewQueryRequest("MATCH (n:Missing) RETURN n", nil))
	require.NoError(t, err)
	assert.NotNil(t, resp.Rows)
	assert.Empty(t, resp.Rows)
}

func TestExecute_ValidationNeverContactsStore(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		params map[string]any
		code   string
	}{
		{"empty", "", nil, CodeEmptyQuery},
		{"whitespace", "  \n\t ", nil, CodeEmptyQuery},
		{"invalid utf8", "RETURN \xff", nil, CodeMalformedQuery},
		{"empty param name", "RETURN $x", map[string]any{"": 1}, CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := graph.NewMemoryStore()
			gw := newTestGateway(t, store, 1)

			resp, err := gw.Execute(context.Background(), NewQueryRequest(tt.query, tt.params))
			execErr := requireKind(t, err, KindValidation, tt.code)
			assert.False(t, execErr.Retryable)
			assert.Nil(t, resp.Rows)
			assert.Equal(t, 0, store.SessionsOpened())
			assert.Empty(t, store.Calls())
		})
	}
}

func TestExecute_EmptyQueryIgnoresStoreState(t *testing.T) {
	store := graph.NewMemoryStore().WithOpenError(errors.New("unreachable"))
	gw := newTestGateway(t, store, 1)
	require.NoError(t, gw.Pool().Close(context.Background()))

	_, err := gw.Execute(context.Background(), NewQueryRequest("", nil))
	requireKind(t, err, KindValidation, CodeEmptyQuery)
}

func TestExecute_PolicyDenied(t *testing.T) {
	policy, err := NewPatternPolicy(nil, ReadOnlyDenyPatterns)
	require.NoError(t, err)
	store := graph.NewMemoryStore()
	gw := newTestGateway(t, store, 1, WithPolicy(policy))

	_, err = gw.Execute(context.Background(), NewQueryRequest("MATCH (n) DETACH DELETE n", nil))
	execErr := requireKind(t, err, KindValidation, CodePolicyDenied)
	assert.ErrorIs(t, execErr, ErrQueryDenied)
	assert.Equal(t, 0, store.SessionsOpened())

	_, err = gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
	require.NoError(t, err)
}

func TestExecute_AcquisitionTimeout(t *testing.T) {
	store := graph.NewMemoryStore()
	started := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	store.WithRunHook(func(ctx context.Context) error {
		once.Do(func() { close(started) })
		select {
		case <-unblock:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	gw := newTestGateway(t, store, 1, WithAcquisitionTimeout(50*time.Millisecond))

	firstDone := make(chan error, 1)
	go func() {
		_, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
		firstDone <- err
	}()
	<-started
	assert.Equal(t, 1, gw.Pool().InUse())

	_, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
	execErr := requireKind(t, err, KindAcquisitionTimeout, CodeAcquireTimeout)
	assert.True(t, execErr.Retryable)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.Equal(t, 1, store.SessionsOpened())

	close(unblock)
	require.NoError(t, <-firstDone)
	assert.Equal(t, 0, gw.Pool().InUse())
	assert.Equal(t, 0, store.OpenSessions())
}

func TestExecute_ZeroTimeoutsKeepDefaults(t *testing.T) {
	store := graph.NewMemoryStore()
	var deadline time.Time
	var hasDeadline bool
	store.WithRunHook(func(ctx context.Context) error {
		deadline, hasDeadline = ctx.Deadline()
		return nil
	})
	gw := newTestGateway(t, store, 1, WithAcquisitionTimeout(0), WithQueryTimeout(-time.Second))

	assert.Equal(t, defaultAcquisitionTimeout, gw.acquisitionTimeout)
	assert.Equal(t, defaultQueryTimeout, gw.queryTimeout)

	_, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
	require.NoError(t, err)
	require.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(defaultQueryTimeout), deadline, 5*time.Second)
}

func TestExecute_ZeroAcquisitionTimeoutStillFailsFast(t *testing.T) {
	store := graph.NewMemoryStore()
	gw := newTestGateway(t, store, 1, WithAcquisitionTimeout(30*time.Millisecond), WithAcquisitionTimeout(0))

	lease, err := gw.Pool().Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer func() { _ = lease.Release(context.Background()) }()

	done := make(chan error, 1)
	go func() {
		_, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
		done <- err
	}()

	select {
	case err := <-done:
		requireKind(t, err, KindAcquisitionTimeout, CodeAcquireTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("Execute blocked on a held session")
	}
}

func TestExecute_StoreFailureReleasesSession(t *testing.T) {
	store := graph.NewMemoryStore()
	store.PushResult(graph.Result{Err: &graph.StoreFailure{
		Code:    "Neo.ClientError.Statement.SyntaxError",
		Message: "Invalid input 'MATC'",
	}})
	gw := newTestGateway(t, store, 1)

	resp, err := gw.Execute(context.Background(), NewQueryRequest("MATC (n) RETURN n", nil))
	execErr := requireKind(t, err, KindStore, "Neo.ClientError.Statement.SyntaxError")
	assert.Equal(t, "Invalid input 'MATC'", execErr.Message)
	assert.False(t, execErr.Retryable)
	assert.Nil(t, resp.Rows)
	assert.Equal(t, 0, gw.Pool().InUse())
	assert.Equal(t, 0, store.OpenSessions())
}

func TestExecute_TransientStoreFailureIsRetryable(t *testing.T) {
	store := graph.NewMemoryStore()
	store.PushResult(graph.Result{Err: &graph.StoreFailure{Code: "Connectivity", Message: "connection reset", Transient: true}})
	gw := newTestGateway(t, store, 1)

	_, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
	requireKind(t, err, KindStore, "Connectivity")
	assert.True(t, IsRetryable(err))
}

func TestExecute_UnclassifiedStoreError(t *testing.T) {
	store := graph.NewMemoryStore().WithError(errors.New("socket closed"))
	gw := newTestGateway(t, store, 1)

	_, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
	execErr := requireKind(t, err, KindStore, "")
	assert.Equal(t, "socket closed", execErr.Message)
	assert.Equal(t, 0, gw.Pool().InUse())
}

func TestExecute_SessionOpenFailure(t *testing.T) {
	store := graph.NewMemoryStore().WithOpenError(&graph.StoreFailure{Message: "routing table unavailable", Transient: true})
	gw := newTestGateway(t, store, 1)

	_, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
	requireKind(t, err, KindStore, CodeSessionFailed)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 0, gw.Pool().InUse())
}

func TestExecute_QueryTimeoutCancelsAndReleases(t *testing.T) {
	store := graph.NewMemoryStore()
	store.WithRunHook(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	gw := newTestGateway(t, store, 1, WithQueryTimeout(30*time.Millisecond))

	start := time.Now()
	_, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
	requireKind(t, err, KindStore, CodeQueryTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, gw.Pool().InUse())
	assert.Equal(t, 0, store.OpenSessions())
}

func TestExecute_CallerCancellation(t *testing.T) {
	store := graph.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	store.WithRunHook(func(runCtx context.Context) error {
		cancel()
		<-runCtx.Done()
		return runCtx.Err()
	})
	gw := newTestGateway(t, store, 1)

	_, err := gw.Execute(ctx, NewQueryRequest(countPersons, nil))
	requireKind(t, err, KindStore, CodeQueryCanceled)
	assert.Equal(t, 0, gw.Pool().InUse())
	assert.Equal(t, 0, store.OpenSessions())
}

func TestExecute_SerializationErrorReturnsNoRows(t *testing.T) {
	store := graph.NewMemoryStore()
	store.PushRecords(graph.Record{"ok": int64(1)}, graph.Record{"bad": math.NaN()})
	gw := newTestGateway(t, store, 1)

	resp, err := gw.Execute(context.Background(), NewQueryRequest("RETURN 0.0/0.0 AS bad", nil))
	requireKind(t, err, KindSerialization, CodeUnsupportedType)
	assert.Nil(t, resp.Rows)
	assert.Equal(t, 0, gw.Pool().InUse())
}

func TestExecute_Idempotent(t *testing.T) {
	store := graph.NewMemoryStore()
	rows := []graph.Record{{"name": "Ada", "age": int64(36)}, {"name": "Grace", "age": int64(85)}}
	store.PushRecords(rows...)
	store.PushRecords(rows...)
	gw := newTestGateway(t, store, 1)

	req := NewQueryRequest("MATCH (p:Person) WHERE p.age > $min RETURN p.name AS name, p.age AS age", map[string]any{"min": 30})
	first, err := gw.Execute(context.Background(), req)
	require.NoError(t, err)
	second, err := gw.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	calls := store.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0], calls[1])
}

func TestExecute_PoolClosed(t *testing.T) {
	store := graph.NewMemoryStore()
	gw := newTestGateway(t, store, 1)
	require.NoError(t, gw.Pool().Close(context.Background()))

	_, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
	execErr := requireKind(t, err, KindAcquisitionTimeout, CodePoolClosed)
	assert.False(t, execErr.Retryable)
	assert.Equal(t, 0, store.SessionsOpened())
}

func TestExecute_ConcurrencyBoundedByPool(t *testing.T) {
	const poolSize = 3
	store := graph.NewMemoryStore()
	var current, peak atomic.Int64
	store.WithRunHook(func(context.Context) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return nil
	})
	gw := newTestGateway(t, store, poolSize, WithAcquisitionTimeout(5*time.Second))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, peak.Load(), int64(poolSize))
	assert.Equal(t, 20, store.SessionsOpened())
	assert.Equal(t, 0, store.OpenSessions())
	assert.Equal(t, 0, gw.Pool().InUse())
}

func TestQueryRequest_Immutable(t *testing.T) {
	params := map[string]any{"name": "Ada"}
	req := NewQueryRequest("MATCH (p {name: $name}) RETURN p", params)

	params["name"] = "Grace"
	assert.Equal(t, "Ada", req.Params()["name"])

	got := req.Params()
	got["name"] = "Barbara"
	assert.Equal(t, "Ada", req.Params()["name"])
	assert.NotNil(t, NewQueryRequest("RETURN 1", nil).Params())
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []string
	rows     []int
	acquires int
}

func (r *recordingRecorder) ObserveAcquire(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acquires++
}

func (r *recordingRecorder) ObserveExecution(outcome string, _ time.Duration, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	r.rows = append(r.rows, rows)
}

func (r *recordingRecorder) SetSessionsInUse(int) {}

func TestExecute_RecordsOutcomes(t *testing.T) {
	store := graph.NewMemoryStore()
	store.PushRecords(graph.Record{"total": int64(3)})
	rec := &recordingRecorder{}
	gw := newTestGateway(t, store, 1, WithRecorder(rec))

	_, err := gw.Execute(context.Background(), NewQueryRequest(countPersons, nil))
	require.NoError(t, err)
	_, err = gw.Execute(context.Background(), NewQueryRequest("", nil))
	require.Error(t, err)

	assert.Equal(t, []string{OutcomeOK, string(KindValidation)}, rec.outcomes)
	assert.Equal(t, []int{1, 0}, rec.rows)
	assert.Equal(t, 1, rec.acquires)
}
