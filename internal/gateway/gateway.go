// Package gateway executes single graph queries under a bounded execution
// policy and maps their outcome into a stable, driver-neutral shape.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/graph"
)

const (
	defaultAcquisitionTimeout = 5 * time.Second
	defaultQueryTimeout       = 30 * time.Second

	spanExecute = "graph.gateway.execute"
)

// Phase names the steps of one execution. They are recorded as span events.
type Phase string

const (
	PhaseAcquiring Phase = "acquiring"
	PhaseExecuting Phase = "executing"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseReleased  Phase = "released"
)

// OutcomeOK labels successful executions for the Recorder.
const OutcomeOK = "ok"

// Recorder receives execution measurements.
type Recorder interface {
	ObserveAcquire(wait time.Duration)
	ObserveExecution(outcome string, duration time.Duration, rows int)
	SetSessionsInUse(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAcquire(time.Duration)                {}
func (nopRecorder) ObserveExecution(string, time.Duration, int) {}
func (nopRecorder) SetSessionsInUse(int)                        {}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPolicy installs the query allow/deny hook.
func WithPolicy(p Policy) Option {
	return func(g *Gateway) {
		if p != nil {
			g.policy = p
		}
	}
}

// WithAcquisitionTimeout bounds how long Execute waits for a free session.
// Non-positive values keep the default.
func WithAcquisitionTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.acquisitionTimeout = d
		}
	}
}

// WithQueryTimeout bounds the store call. Non-positive values keep the
// default.
func WithQueryTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.queryTimeout = d
		}
	}
}

// WithRecorder reports measurements to r.
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithTracer traces executions with t.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// Gateway runs queries against pooled sessions. It is safe for concurrent use.
// It does not log, cache or retry.
type Gateway struct {
	pool               *SessionPool
	policy             Policy
	acquisitionTimeout time.Duration
	queryTimeout       time.Duration
	recorder           Recorder
	tracer             trace.Tracer
}

// New builds a Gateway over pool.
func New(pool *SessionPool, opts ...Option) *Gateway {
	g := &Gateway{
		pool:               pool,
		policy:             allowAll{},
		acquisitionTimeout: defaultAcquisitionTimeout,
		queryTimeout:       defaultQueryTimeout,
		recorder:           nopRecorder{},
		tracer:             noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Pool returns the session pool backing the gateway.
func (g *Gateway) Pool() *SessionPool {
	return g.pool
}

// Ping verifies the store is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

// Execute runs req exactly once. It returns either every row the store
// produced or an *ExecutionError; never both, never a partial response.
func (g *Gateway) Execute(ctx context.Context, req QueryRequest) (resp QueryResponse, err error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, spanExecute,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "neo4j"),
			attribute.Int("db.query.parameter_count", len(req.params)),
		),
	)
	defer func() {
		g.finish(span, start, resp, err)
	}()

	if execErr := validate(req); execErr != nil {
		return QueryResponse{}, execErr
	}
	if perr := g.policy.Check(req.query); perr != nil {
		return QueryResponse{}, &ExecutionError{Kind: KindValidation, Code: CodePolicyDenied, Message: perr.Error(), Err: perr}
	}

	span.AddEvent(string(PhaseAcquiring))
	acquireStart := time.Now()
	lease, aerr := g.pool.Acquire(ctx, g.acquisitionTimeout)
	g.recorder.ObserveAcquire(time.Since(acquireStart))
	if aerr != nil {
		if errors.Is(aerr, ErrPoolClosed) || errors.Is(aerr, ErrAcquireTimeout) {
			return QueryResponse{}, acquisitionError(aerr)
		}
		return QueryResponse{}, sessionError(aerr)
	}
	g.recorder.SetSessionsInUse(g.pool.InUse())
	defer func() {
		if rerr := lease.Release(ctx); rerr != nil {
			span.RecordError(rerr)
		}
		span.AddEvent(string(PhaseReleased))
		g.recorder.SetSessionsInUse(g.pool.InUse())
	}()

	span.AddEvent(string(PhaseExecuting))
	runCtx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	records, rerr := lease.Session().Run(runCtx, req.query, req.Params())
	if rerr != nil {
		return QueryResponse{}, g.storeError(ctx, runCtx, rerr)
	}

	rows := make([]ResultRow, 0, len(records))
	for _, rec := range records {
		row, nerr := graph.NormalizeRecord(rec)
		if nerr != nil {
			return QueryResponse{}, &ExecutionError{Kind: KindSerialization, Code: CodeUnsupportedType, Message: nerr.Error(), Err: nerr}
		}
		rows = append(rows, row)
	}
	return QueryResponse{Rows: rows}, nil
}

func (g *Gateway) finish(span trace.Span, start time.Time, resp QueryResponse, err error) {
	elapsed := time.Since(start)
	if err != nil {
		outcome := string(KindOf(err))
		span.AddEvent(string(PhaseFailed))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.type", outcome))
		g.recorder.ObserveExecution(outcome, elapsed, 0)
	} else {
		span.AddEvent(string(PhaseCompleted))
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Int("db.response.returned_rows", resp.Len()))
		g.recorder.ObserveExecution(OutcomeOK, elapsed, resp.Len())
	}
	span.End()
}

func validate(req QueryRequest) *ExecutionError {
	if strings.TrimSpace(req.query) == "" {
		return validationError(CodeEmptyQuery, "query must not be empty")
	}
	if !utf8.ValidString(req.query) {
		return validationError(CodeMalformedQuery, "query is not valid UTF-8")
	}
	for key := range req.params {
		if strings.TrimSpace(key) == "" {
			return validationError(CodeInvalidParams, "parameter names must not be empty")
		}
	}
	return nil
}

func (g *Gateway) storeError(parent, runCtx context.Context, err error) *ExecutionError {
	switch {
	case parent.Err() != nil:
		return &ExecutionError{Kind: KindStore, Code: CodeQueryCanceled, Message: parent.Err().Error(), Err: parent.Err()}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return &ExecutionError{
			Kind:      KindStore,
			Code:      CodeQueryTimeout,
			Message:   fmt.Sprintf("query exceeded %s", g.queryTimeout),
			Retryable: true,
			Err:       context.DeadlineExceeded,
		}
	}
	return fromStoreFailure("", err)
}

func sessionError(err error) *ExecutionError {
	return fromStoreFailure(CodeSessionFailed, err)
}

func fromStoreFailure(fallbackCode string, err error) *ExecutionError {
	var failure *graph.StoreFailure
	if errors.As(err, &failure) {
		code := failure.Code
		if code == "" {
			code = fallbackCode
		}
		return &ExecutionError{Kind: KindStore, Code: code, Message: failure.Message, Retryable: failure.Transient, Err: failure}
	}
	return &ExecutionError{Kind: KindStore, Code: fallbackCode, Message: err.Error(), Err: err}
}
