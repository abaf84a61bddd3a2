package graph

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionClosed is returned when a closed in-memory session is used.
var ErrSessionClosed = errors.New("session closed")

// MemoryStore is an in-memory implementation of Store used to unit test the
// gateway and its transports without a running graph database.
type MemoryStore struct {
	mu           sync.Mutex
	calls        []ExecutedQuery
	results      []Result
	err          error
	openErr      error
	connectivity error
	runHook      func(ctx context.Context) error
	open         int
	opened       int
	closed       bool
}

// Result is a canned response returned by MemoryStore.
type Result struct {
	Records []Record
	Err     error
}

// ExecutedQuery captures a cypher statement and parameters executed against the graph.
type ExecutedQuery struct {
	Query  string
	Params map[string]any
}

// NewMemoryStore instantiates the in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// WithError configures every subsequent Run to fail with err.
func (m *MemoryStore) WithError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithOpenError makes OpenSession fail with err.
func (m *MemoryStore) WithOpenError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
	return m
}

// WithConnectivityError forces VerifyConnectivity to return the supplied error.
func (m *MemoryStore) WithConnectivityError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivity = err
	return m
}

// WithRunHook installs fn to be called at the start of every Run, outside the
// store lock. A hook that blocks on ctx simulates a slow query.
func (m *MemoryStore) WithRunHook(fn func(ctx context.Context) error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runHook = fn
	return m
}

// PushResult appends a result that will be returned on the next Run call.
func (m *MemoryStore) PushResult(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
}

// PushRecords is shorthand for PushResult with records only.
func (m *MemoryStore) PushRecords(records ...Record) {
	m.PushResult(Result{Records: records})
}

func (m *MemoryStore) OpenSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.open++
	m.opened++
	return &memorySession{store: m}, nil
}

func (m *MemoryStore) VerifyConnectivity(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectivity
}

func (m *MemoryStore) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns a snapshot of executed queries.
func (m *MemoryStore) Calls() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedQuery(nil), m.calls...)
}

// OpenSessions reports sessions opened and not yet closed.
func (m *MemoryStore) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// SessionsOpened reports the total number of sessions ever opened.
func (m *MemoryStore) SessionsOpened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// Closed reports whether Close was called.
func (m *MemoryStore) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MemoryStore) run(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	m.mu.Lock()
	hook := m.runHook
	m.calls = append(m.calls, ExecutedQuery{
		Query:  cypher,
		Params: cloneMap(params),
	})
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if len(m.results) == 0 {
		return []Record{}, nil
	}

	res := m.results[0]
	m.results = m.results[1:]
	if res.Err != nil {
		return nil, res.Err
	}
	return append([]Record{}, res.Records...), nil
}

type memorySession struct {
	store  *MemoryStore
	mu     sync.Mutex
	closed bool
}

func (s *memorySession) Run(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}
	return s.store.run(ctx, cypher, params)
}

func (s *memorySession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true

	s.store.mu.Lock()
	s.store.open--
	s.store.mu.Unlock()
	return nil
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
