// Package natsrpc serves gateway queries over NATS request/reply. Each request
// carries a {query, params} JSON body and receives either a {rows} or an
// {error_kind, message} body on the reply subject.
package natsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/semaphore"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/api"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/gateway"
)

const (
	transport = "nats"

	// HeaderErrorKind is set on replies that carry an error body.
	HeaderErrorKind = "Error-Kind"

	drainTimeout = 10 * time.Second
)

// Executor runs a single query. gateway.Gateway implements it.
type Executor interface {
	Execute(ctx context.Context, req gateway.QueryRequest) (gateway.QueryResponse, error)
}

// RequestRecorder counts handled requests. metric.Metrics implements it.
type RequestRecorder interface {
	RecordRequest(transport string, status int)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, int) {}

// Config identifies where the responder listens. Concurrency caps the
// requests handled at once and defaults to 1.
type Config struct {
	Subject     string
	Queue       string
	Concurrency int
}

// Responder answers query requests published on a subject. Instances sharing
// a queue group split the load.
type Responder struct {
	conn     *nats.Conn
	exec     Executor
	cfg      Config
	logger   *slog.Logger
	recorder RequestRecorder
	slots    *semaphore.Weighted

	mu     sync.Mutex
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

// NewResponder constructs a Responder. recorder may be nil.
func NewResponder(conn *nats.Conn, exec Executor, cfg Config, logger *slog.Logger, recorder RequestRecorder) *Responder {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Responder{
		conn:     conn,
		exec:     exec,
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		slots:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		ctx:      context.Background(),
	}
}

// Start subscribes to the configured subject. Requests in flight when ctx is
// cancelled observe the cancellation.
func (r *Responder) Start(ctx context.Context) error {
	if r.cfg.Subject == "" {
		return errors.New("natsrpc: subject is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return errors.New("natsrpc: responder already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	sub, err := r.conn.QueueSubscribe(r.cfg.Subject, r.cfg.Queue, r.handle)
	if err != nil {
		r.cancel()
		return fmt.Errorf("subscribe %s: %w", r.cfg.Subject, err)
	}
	r.sub = sub
	r.logger.Info("nats responder started",
		"subject", r.cfg.Subject,
		"queue", r.cfg.Queue,
		"concurrency", r.cfg.Concurrency,
	)
	return nil
}

// Stop drains the subscription so queued requests are still answered, then
// waits for in-flight requests to finish.
func (r *Responder) Stop() error {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub == nil {
		return nil
	}
	err := sub.Drain()
	if err == nil {
		waitClosed(sub, drainTimeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if werr := r.wait(ctx); werr != nil && err == nil {
		err = fmt.Errorf("wait for in-flight requests: %w", werr)
	}
	r.cancel()
	r.logger.Info("nats responder stopped", "subject", r.cfg.Subject)
	return err
}

// wait blocks until every handled request has replied.
func (r *Responder) wait(ctx context.Context) error {
	n := int64(r.cfg.Concurrency)
	if err := r.slots.Acquire(ctx, n); err != nil {
		return err
	}
	r.slots.Release(n)
	return nil
}

func waitClosed(sub *nats.Subscription, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

// handle is called by the subscription one message at a time. It takes a
// slot and answers on its own goroutine, so up to Concurrency requests run
// together; when every slot is busy the subscription waits.
func (r *Responder) handle(msg *nats.Msg) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	if err := r.slots.Acquire(ctx, 1); err != nil {
		r.respond(msg, r.process(ctx, msg.Data), time.Now())
		return
	}
	go func() {
		defer r.slots.Release(1)
		start := time.Now()
		r.respond(msg, r.process(ctx, msg.Data), start)
	}()
}

func (r *Responder) respond(msg *nats.Msg, rep reply, start time.Time) {
	out := nats.NewMsg(msg.Reply)
	out.Data = rep.body
	if rep.kind != "" {
		out.Header.Set(HeaderErrorKind, rep.kind)
	}
	if err := msg.RespondMsg(out); err != nil {
		r.logger.Error("failed to send nats reply", "subject", msg.Subject, "error", err)
		return
	}
	r.logger.Debug("nats request handled",
		"subject", msg.Subject,
		"status", rep.status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

type reply struct {
	body   []byte
	kind   string
	status int
}

// process decodes data, executes it and encodes the outcome.
func (r *Responder) process(ctx context.Context, data []byte) reply {
	payload, err := api.DecodeQueryPayloadBytes(data)
	if err != nil {
		return r.failure(api.MalformedPayloadError(err))
	}

	resp, err := r.exec.Execute(ctx, payload.ToRequest())
	if err != nil {
		return r.failure(api.NewErrorPayload(err))
	}

	body, err := json.Marshal(api.NewRowsPayload(resp))
	if err != nil {
		return r.failure(api.ErrorPayload{
			ErrorKind: string(gateway.KindSerialization),
			Code:      gateway.CodeUnsupportedType,
			Message:   err.Error(),
		})
	}
	r.recorder.RecordRequest(transport, 200)
	return reply{body: body, status: 200}
}

func (r *Responder) failure(payload api.ErrorPayload) reply {
	status := api.HTTPStatus(payload)
	level := slog.LevelError
	if payload.ErrorKind == string(gateway.KindValidation) {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "nats query failed",
		"error_kind", payload.ErrorKind,
		"code", payload.Code,
		"status", strconv.Itoa(status),
		"error", payload.Message,
	)
	r.recorder.RecordRequest(transport, status)

	body, _ := json.Marshal(payload)
	return reply{body: body, kind: payload.ErrorKind, status: status}
}
