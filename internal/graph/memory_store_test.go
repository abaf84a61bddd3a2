package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RunReturnsQueuedResults(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PushRecords(Record{"total": int64(3)})

	session, err := store.OpenSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.OpenSessions())

	params := map[string]any{"label": "Person"}
	records, err := session.Run(ctx, "MATCH (p:Person) RETURN count(p) AS total", params)
	require.NoError(t, err)
	assert.Equal(t, []Record{{"total": int64(3)}}, records)

	params["label"] = "mutated"
	calls := store.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Person", calls[0].Params["label"])

	records, err = session.Run(ctx, "MATCH (n) RETURN n", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)

	require.NoError(t, session.Close(ctx))
	assert.Equal(t, 0, store.OpenSessions())
	assert.ErrorIs(t, session.Close(ctx), ErrSessionClosed)
}

func TestMemoryStore_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	store := NewMemoryStore().WithOpenError(boom)
	_, err := store.OpenSession(ctx)
	assert.ErrorIs(t, err, boom)

	store = NewMemoryStore()
	store.PushResult(Result{Err: boom})
	session, err := store.OpenSession(ctx)
	require.NoError(t, err)
	_, err = session.Run(ctx, "RETURN 1", nil)
	assert.ErrorIs(t, err, boom)
}

func TestStoreFailure_UnwrapOnlyContextErrors(t *testing.T) {
	failure := &StoreFailure{Code: "Neo.TransientError.General.Unknown", Message: "x", cause: errors.New("driver internal")}
	assert.Nil(t, errors.Unwrap(failure))
	assert.Equal(t, "Neo.TransientError.General.Unknown: x", failure.Error())

	failure = &StoreFailure{Message: "deadline", cause: context.DeadlineExceeded}
	assert.ErrorIs(t, failure, context.DeadlineExceeded)
}
